package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// minScale 未満の標準偏差は定数列とみなし、スケール1で割る
const minScale = 1e-8

// StandardScaler は数値列を (x - Mean) / Scale に変換する。
// Scale は母標準偏差。NaN は統計量から除外され、変換後も NaN のまま残る
// （欠損は前段の SimpleImputer が埋める）。
type StandardScaler struct {
	Mean  []float64
	Scale []float64
	State *model.StateManager
}

func NewStandardScaler() *StandardScaler {
	return &StandardScaler{State: model.NewStateManager()}
}

// Fit computes per-column mean and population standard deviation. A column
// with no observed value is an error.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	for j := range c {
		col := observed(mat.Col(nil, j, X))
		if len(col) == 0 {
			return errors.NewValueError("StandardScaler.Fit", "column has no observed values")
		}
		m, v := stat.PopMeanVariance(col, nil)
		mean[j], scale[j] = m, 1
		if sd := math.Sqrt(v); sd >= minScale {
			scale[j] = sd
		}
	}
	s.Mean, s.Scale = mean, scale
	s.State.SetFitted(c, r)
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("Transform", X, func(v float64, j int) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized values back to the original units.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("InverseTransform", X, func(v float64, j int) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

func (s *StandardScaler) apply(method string, X mat.Matrix, f func(v float64, j int) float64) (mat.Matrix, error) {
	if s.State == nil {
		return nil, errors.NewNotFittedError("StandardScaler", method)
	}
	if err := s.State.RequireFitted("StandardScaler", method); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("StandardScaler."+method, c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewModelError("StandardScaler."+method, "empty data", errors.ErrEmptyData)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 { return f(v, j) }, X)
	return out, nil
}

// observed drops NaN entries.
func observed(col []float64) []float64 {
	out := col[:0:0]
	for _, v := range col {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
