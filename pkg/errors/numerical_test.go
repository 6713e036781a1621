package errors

import (
	"math"
	"testing"
)

func TestCheckScalar(t *testing.T) {
	tests := []struct {
		name    string
		v       float64
		wantErr bool
	}{
		{"finite", 0.5, false},
		{"zero", 0, false},
		{"nan", math.NaN(), true},
		{"+inf", math.Inf(1), true},
		{"-inf", math.Inf(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScalar("loss", tt.v, 3)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckScalar(%v) error = %v, wantErr %v", tt.v, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var instab *NumericalInstabilityError
			if !As(err, &instab) {
				t.Fatalf("expected NumericalInstabilityError, got %T", err)
			}
			if instab.Iteration != 3 || instab.Operation != "loss" {
				t.Errorf("unexpected fields: %+v", instab)
			}
		})
	}
}

func TestCheckFinite(t *testing.T) {
	if err := CheckFinite("probabilities", []float64{0.1, 0.9}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := CheckFinite("probabilities", []float64{0.1, math.Inf(1), 0.3, math.NaN()}, 0)
	var instab *NumericalInstabilityError
	if !As(err, &instab) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if len(instab.Values) != 2 {
		t.Errorf("reported %d values, want only the 2 non-finite ones", len(instab.Values))
	}
}

func TestSigmoid(t *testing.T) {
	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1000, 1},
		{-1000, 0},
		{2, 1 / (1 + math.Exp(-2))},
		{-2, 1 - 1/(1+math.Exp(-2))},
	}
	for _, tt := range tests {
		got := Sigmoid(tt.x)
		if math.IsNaN(got) || math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Sigmoid(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestClipValue(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{2, 0, 1, 1},
		{-1, 0, 1, 0},
		{0.25, 0, 1, 0.25},
		{1e-20, 1e-15, 1 - 1e-15, 1e-15},
	}
	for _, tt := range tests {
		if got := ClipValue(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("ClipValue(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}
