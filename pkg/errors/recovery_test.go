package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover(t *testing.T) {
	original := fmt.Errorf("original error")

	tests := []struct {
		name      string
		run       func() error
		wantNil   bool
		wantValue string
		wantOrig  bool
	}{
		{
			name: "no panic",
			run: func() (err error) {
				defer Recover(&err, "server.predict")
				return nil
			},
			wantNil: true,
		},
		{
			name: "string panic",
			run: func() (err error) {
				defer Recover(&err, "server.predict")
				panic("index out of range")
			},
			wantValue: "index out of range",
		},
		{
			name: "int panic",
			run: func() (err error) {
				defer Recover(&err, "server.predict")
				panic(42)
			},
			wantValue: "42",
		},
		{
			name: "panic after error",
			run: func() (err error) {
				defer Recover(&err, "server.predict")
				err = original
				panic("panic after error")
			},
			wantValue: "panic after error",
			wantOrig:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.wantNil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error from recovered panic")
			}
			if !strings.Contains(err.Error(), "panic in server.predict: "+tt.wantValue) {
				t.Errorf("unexpected message: %s", err.Error())
			}
			if tt.wantOrig {
				if !errors.Is(err, original) {
					t.Error("original error should stay in the chain")
				}
				return
			}
			var pe *PanicError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PanicError, got %T", err)
			}
			if fmt.Sprint(pe.Value) != tt.wantValue {
				t.Errorf("Value = %v, want %s", pe.Value, tt.wantValue)
			}
			if pe.Stack == "" {
				t.Error("expected captured stack")
			}
		})
	}
}

func TestSafeExecute(t *testing.T) {
	fnErr := fmt.Errorf("trial failed")

	if err := SafeExecute("trial 0001", func() error { return nil }); err != nil {
		t.Errorf("success: got %v", err)
	}
	if err := SafeExecute("trial 0001", func() error { return fnErr }); err != fnErr {
		t.Errorf("error passthrough: got %v", err)
	}

	err := SafeExecute("trial 0001", func() error {
		var m map[string]int
		m["boom"]++
		return nil
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	if pe.Operation != "trial 0001" {
		t.Errorf("Operation = %q", pe.Operation)
	}
}

func TestPanicErrorString(t *testing.T) {
	pe := NewPanicError("/predict", "bad row")

	if pe.Error() != "panic in /predict: bad row" {
		t.Errorf("Error() = %q", pe.Error())
	}
	s := pe.String()
	if !strings.HasPrefix(s, "panic in /predict: bad row\nStack trace:\n") {
		t.Errorf("String() = %q", s)
	}
}
