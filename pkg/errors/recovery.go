package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// PanicError は回復したpanicをエラーとして運びます。
// 推論リクエストやチューニングの試行ひとつがプロセスを落とさないように使います。
type PanicError struct {
	Operation string
	Value     interface{}
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// String includes the goroutine stack captured at recovery.
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.Stack
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(operation string, value interface{}) *PanicError {
	return &PanicError{Operation: operation, Value: value, Stack: string(debug.Stack())}
}

// Recover converts a panic into *err. Use it deferred with a named result:
//
//	func (s *Server) score(row []string) (p float64, err error) {
//	    defer errors.Recover(&err, "server.score")
//	    ...
//	}
//
// When *err was already set, the panic is attached as a secondary error so
// that Is and As still see the original.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	pe := NewPanicError(operation, r)
	if *err == nil {
		*err = pe
		return
	}
	*err = errors.WithSecondaryError(errors.Wrapf(*err, "panic in %s: %v", operation, r), pe)
}

// SafeExecute runs fn and converts a panic into a PanicError.
//
//	err := errors.SafeExecute("trial "+id, func() error {
//	    return t.runTrial(ctx, trial)
//	})
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
