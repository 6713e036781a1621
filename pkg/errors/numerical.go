package errors

import "math"

// maxExp より大きい指数は exp がオーバーフローする
const maxExp = 700.0

// CheckScalar returns a NumericalInstabilityError when v is NaN or ±Inf.
// Training calls it on the epoch loss.
func CheckScalar(operation string, v float64, iteration int) error {
	if isFinite(v) {
		return nil
	}
	return NewNumericalInstabilityError(operation, []float64{v}, iteration)
}

// CheckFinite is CheckScalar over a slice. Only the non-finite values are
// reported.
func CheckFinite(operation string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if !isFinite(v) {
			bad = append(bad, v)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return NewNumericalInstabilityError(operation, bad, iteration)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ClipValue clamps v to [lo, hi].
func ClipValue(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Sigmoid computes 1/(1+exp(-x)) without overflow for large |x|.
func Sigmoid(x float64) float64 {
	x = ClipValue(x, -maxExp, maxExp)
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
