package errors

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "model error with cause",
			err:  NewModelError("Fit", "invalid input", fmt.Errorf("test error")),
			want: "liverrisk: Fit: invalid input: test error",
		},
		{
			name: "model error without cause",
			err:  NewModelError("Predict", "not fitted", nil),
			want: "liverrisk: Predict: not fitted",
		},
		{
			name: "dimension on features",
			err:  NewDimensionError("Network.Predict", 23, 21, 1),
			want: "liverrisk: Network.Predict: dimension mismatch on axis 1 (features). Expected 23, got 21",
		},
		{
			name: "dimension on rows",
			err:  NewDimensionError("Frame.Set", 10, 9, 0),
			want: "liverrisk: Frame.Set: dimension mismatch on axis 0 (rows). Expected 10, got 9",
		},
		{
			name: "not fitted",
			err:  NewNotFittedError("ColumnTransformer", "Transform"),
			want: "liverrisk: ColumnTransformer: this model is not fitted yet. Call Fit() before using Transform()",
		},
		{
			name: "validation",
			err:  NewValidationError("test_size", "must be in (0, 1)", 1.5),
			want: "liverrisk: validation failed for parameter 'test_size': must be in (0, 1) (got: 1.5)",
		},
		{
			name: "value",
			err:  NewValueError("AUC", "labels must be 0 or 1"),
			want: "liverrisk: AUC: labels must be 0 or 1",
		},
		{
			name: "numerical instability truncates values",
			err:  NewNumericalInstabilityError("Network.Fit", []float64{1, 2, 3, 4, 5, 6, 7}, 4),
			want: "liverrisk: numerical instability detected in Network.Fit at iteration 4. Values: [1, 2, 3, 4, 5, ...]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			// コンストラクタはスタックを付ける
			if formatted := fmt.Sprintf("%+v", tt.err); !strings.Contains(formatted, "errors_test.go") {
				t.Errorf("expected stack trace pointing at the test, got %s", formatted)
			}
		})
	}
}

func TestAsFindsConcreteTypes(t *testing.T) {
	var (
		modelErr *ModelError
		dimErr   *DimensionError
		valErr   *ValidationError
		nfErr    *NotFittedError
	)

	if !As(NewModelError("Fit", "failed", nil), &modelErr) {
		t.Error("expected *ModelError")
	}
	if !As(NewDimensionError("op", 1, 2, 1), &dimErr) || dimErr.Got != 2 {
		t.Errorf("expected *DimensionError with Got=2, got %+v", dimErr)
	}
	if !As(NewValidationError("tuning.factor", "must be at least 2", 1), &valErr) || valErr.ParamName != "tuning.factor" {
		t.Errorf("expected *ValidationError for tuning.factor, got %+v", valErr)
	}
	if !As(NewNotFittedError("SimpleImputer", "Transform"), &nfErr) || nfErr.Method != "Transform" {
		t.Errorf("expected *NotFittedError for Transform, got %+v", nfErr)
	}
}

func TestArtifactErrorUnwraps(t *testing.T) {
	err := NewArtifactError("train", "artefactos/preprocessor.gob", os.ErrNotExist)

	if !Is(err, os.ErrNotExist) {
		t.Error("ArtifactError should unwrap to the cause")
	}
	if !strings.Contains(err.Error(), `train: artifact "artefactos/preprocessor.gob"`) {
		t.Errorf("unexpected message: %s", err.Error())
	}

	var artErr *ArtifactError
	if !As(err, &artErr) {
		t.Fatal("expected *ArtifactError")
	}
	if artErr.Stage != "train" {
		t.Errorf("Stage = %q, want train", artErr.Stage)
	}
}

func TestWrapKeepsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{"wrap", Wrap(ErrModelUnavailable, "in /predict"), ErrModelUnavailable, "in /predict"},
		{"wrapf", Wrapf(ErrEmptyData, "in %s: expected %d rows, got %d", "ExtractSQL", 10, 0), ErrEmptyData, "in ExtractSQL: expected 10 rows, got 0"},
		{"model error cause", NewModelError("OneHotEncoder.Fit", "empty data", ErrEmptyData), ErrEmptyData, "empty data"},
		{"with stack", WithStack(ErrEmptyData), ErrEmptyData, "empty data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Is(tt.err, tt.sentinel) {
				t.Errorf("Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("%q does not contain %q", tt.err.Error(), tt.contains)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ignored") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
