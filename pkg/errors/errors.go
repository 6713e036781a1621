// Package errors は liverrisk 全体で使うエラー型と警告の仕組みを提供します。
//
// すべてのコンストラクタは github.com/cockroachdb/errors でスタックトレースを
// 付与するので、%+v で出力すると発生箇所まで辿れます。型の判定には
// このパッケージの Is / As を使ってください。
//
//	if errors.Is(err, errors.ErrModelUnavailable) { ... }
//
//	var dim *errors.DimensionError
//	if errors.As(err, &dim) { ... }
package errors

import (
	"github.com/cockroachdb/errors"
)

// 共通のセンチネルエラー
var (
	// ErrEmptyData は行がひとつもない入力を受け取ったことを示します。
	ErrEmptyData = errors.New("empty data")

	// ErrModelUnavailable は推論時にモデルか前処理器が読み込まれていないことを示します。
	ErrModelUnavailable = errors.New("model or preprocessor unavailable")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with message and a stack trace. A nil err stays nil.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New returns an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf is New with a format string.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}
