package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/rs/zerolog"
)

// 警告の出力先。zerologが設定されていればそちらを優先する。
var (
	warnMu      sync.Mutex
	warnHandler = func(w error) {
		log.Printf("liverrisk-warning: %v\n", w)
	}
	// pkg/log からの循環importを避けるため関数で受け取る
	zerologWarn func(w error)
)

// SetWarningHandler replaces the fallback used when no zerolog function is set.
func SetWarningHandler(handler func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	warnHandler = handler
}

// SetZerologWarnFunc routes every warning to fn. Passing nil restores the
// fallback handler. pkg/log.InstallWarnings is the usual caller.
func SetZerologWarnFunc(fn func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	zerologWarn = fn
}

// Warn emits a non-fatal warning, for example a column value that had to be
// discarded or a metric that is undefined for the given labels.
func Warn(w error) {
	warnMu.Lock()
	defer warnMu.Unlock()

	switch {
	case zerologWarn != nil:
		zerologWarn(w)
	case warnHandler != nil:
		warnHandler(w)
	}
}

// ConvergenceWarning は探索や学習が意味のある解に届かなかったことを示します。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message == "" {
		return fmt.Sprintf("%s failed to converge after %d iterations", w.Algorithm, w.Iterations)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "ConvergenceWarning").
		Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("detail", w.Message)
}

// NewConvergenceWarning creates a ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// DataConversionWarning は値を別の型へ強制変換したときに出ます。
// SQLダンプの文字列を数値列・二値列へ変換できなかった場合など。
type DataConversionWarning struct {
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("data converted from %s to %s: %s", w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "DataConversionWarning").
		Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason)
}

// NewDataConversionWarning creates a DataConversionWarning.
func NewDataConversionWarning(from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{FromType: from, ToType: to, Reason: reason}
}

// UndefinedMetricWarning は指標が定義できず既定値を返したことを示します。
// ラベルが1クラスしかないときのAUCが典型例です。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("%s is undefined (%s); returning %g", w.Metric, w.Condition, w.Result)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "UndefinedMetricWarning").
		Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result)
}

// NewUndefinedMetricWarning creates an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}
