package errors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const prefix = "liverrisk: "

// NotFittedError は Fit 前に Transform / Predict が呼ばれたことを示します。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf(prefix+"%s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *NotFittedError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "NotFittedError").Str("model_name", e.ModelName).Str("method", e.Method)
}

// NewNotFittedError returns a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は行数または列数が期待と違うことを示します。
// Axis は 0 が行、1 が特徴量。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf(prefix+"%s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *DimensionError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "DimensionError").
		Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("axis", e.axisName())
}

// NewDimensionError returns a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は設定値や引数が許容範囲外であることを示します。
// ParamName は設定キー（"tuning.factor" など）か環境変数名。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(prefix+"validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ValidationError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "ValidationError").
		Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value)
}

// NewValidationError returns a ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の中身が不正なこと（非二値ラベル、未知カテゴリなど）を示します。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return prefix + e.Op + ": " + e.Message
}

// NewValueError returns a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError wraps a failure inside an estimator operation.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return prefix + e.Op + ": " + e.Kind
	}
	return fmt.Sprintf(prefix+"%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError returns a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ArtifactError は成果物（CSV・前処理器・モデル）の読み書きに失敗したことを示します。
// Stage はパイプラインの段階名。
type ArtifactError struct {
	Stage string
	Path  string
	Err   error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf(prefix+"%s: artifact %q: %v", e.Stage, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ArtifactError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "ArtifactError").
		Str("stage", e.Stage).
		Str("path", e.Path).
		AnErr("cause", e.Err)
}

// NewArtifactError returns an ArtifactError with a stack trace.
func NewArtifactError(stage, path string, err error) error {
	return errors.WithStack(&ArtifactError{Stage: stage, Path: path, Err: err})
}

// NumericalInstabilityError は損失や勾配に NaN / Inf が現れたことを示します。
// Iteration はエポック番号。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

// maxReportedValues 以上の値は省略して表示する
const maxReportedValues = 5

func (e *NumericalInstabilityError) Error() string {
	parts := make([]string, 0, maxReportedValues+1)
	for i, v := range e.Values {
		if i == maxReportedValues {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, strconv.FormatFloat(v, 'g', 6, 64))
	}
	return fmt.Sprintf(prefix+"numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, strings.Join(parts, ", "))
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *NumericalInstabilityError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "NumericalInstabilityError").
		Str("operation", e.Operation).
		Int("iteration", e.Iteration).
		Int("values", len(e.Values))
}

// NewNumericalInstabilityError returns a NumericalInstabilityError with a
// stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration})
}
