package preprocessing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// Imputation strategies.
const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
	StrategyConstant     = "constant"
)

// SimpleImputer replaces NaN cells column by column with a statistic learned
// during Fit.
type SimpleImputer struct {
	Strategy string
	// FillValue is used by the constant strategy.
	FillValue float64
	// Statistics holds the fill value per column.
	Statistics []float64

	State *model.StateManager
}

// NewSimpleImputer creates an imputer for the given strategy.
func NewSimpleImputer(strategy string) *SimpleImputer {
	return &SimpleImputer{Strategy: strategy, State: model.NewStateManager()}
}

// Fit learns one fill value per column. A column with no observed values is
// an error unless the strategy is constant.
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}

	stats := make([]float64, c)
	for j := 0; j < c; j++ {
		if s.Strategy == StrategyConstant {
			stats[j] = s.FillValue
			continue
		}
		col := observed(mat.Col(nil, j, X))
		if len(col) == 0 {
			return errors.NewValueError("SimpleImputer.Fit",
				"cannot use "+s.Strategy+" strategy on a column with no observed values")
		}
		switch s.Strategy {
		case StrategyMean:
			stats[j] = mean(col)
		case StrategyMedian:
			stats[j] = median(col)
		case StrategyMostFrequent:
			stats[j] = mostFrequent(col)
		default:
			return errors.NewValidationError("strategy", "unknown imputation strategy", s.Strategy)
		}
	}

	s.Statistics = stats
	s.State.SetFitted(c, r)
	return nil
}

// Transform fills NaN cells with the learned statistics.
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if s.State == nil {
		return nil, errors.NewNotFittedError("SimpleImputer", "Transform")
	}
	if err := s.State.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("SimpleImputer.Transform", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewModelError("SimpleImputer.Transform", "empty data", errors.ErrEmptyData)
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return s.Statistics[j]
		}
		return v
	}, X)
	return out, nil
}

// FitTransform fits and transforms X.
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func mean(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// median averages the two middle values for even lengths.
func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// mostFrequent returns the mode; ties go to the smallest value.
func mostFrequent(x []float64) float64 {
	counts := make(map[float64]int, len(x))
	for _, v := range x {
		counts[v]++
	}
	best, bestN := math.Inf(1), 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// StringImputer fills missing ("") categorical cells. Input is column-major:
// cols[j] holds every row of column j.
type StringImputer struct {
	Strategy   string
	FillValue  string
	Statistics []string

	State *model.StateManager
}

// NewStringImputer creates an imputer for categorical columns. Only
// most_frequent and constant are supported.
func NewStringImputer(strategy string) *StringImputer {
	return &StringImputer{Strategy: strategy, State: model.NewStateManager()}
}

// Fit learns one fill value per column.
func (s *StringImputer) Fit(cols [][]string) error {
	if len(cols) == 0 || len(cols[0]) == 0 {
		return errors.NewModelError("StringImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}

	stats := make([]string, len(cols))
	for j, col := range cols {
		switch s.Strategy {
		case StrategyConstant:
			stats[j] = s.FillValue
		case StrategyMostFrequent:
			v, ok := mostFrequentString(col)
			if !ok {
				return errors.NewValueError("StringImputer.Fit",
					"cannot use most_frequent strategy on a column with no observed values")
			}
			stats[j] = v
		default:
			return errors.NewValidationError("strategy", "unsupported for categorical data", s.Strategy)
		}
	}

	s.Statistics = stats
	s.State.SetFitted(len(cols), len(cols[0]))
	return nil
}

// Transform returns a copy of cols with missing cells filled.
func (s *StringImputer) Transform(cols [][]string) ([][]string, error) {
	if s.State == nil {
		return nil, errors.NewNotFittedError("StringImputer", "Transform")
	}
	if err := s.State.RequireFitted("StringImputer", "Transform"); err != nil {
		return nil, err
	}
	if err := s.State.RequireFeatures("StringImputer.Transform", len(cols)); err != nil {
		return nil, err
	}

	out := make([][]string, len(cols))
	for j, col := range cols {
		out[j] = make([]string, len(col))
		for i, v := range col {
			if v == "" {
				v = s.Statistics[j]
			}
			out[j][i] = v
		}
	}
	return out, nil
}

// FitTransform fits and transforms cols.
func (s *StringImputer) FitTransform(cols [][]string) ([][]string, error) {
	if err := s.Fit(cols); err != nil {
		return nil, err
	}
	return s.Transform(cols)
}

func mostFrequentString(col []string) (string, bool) {
	counts := map[string]int{}
	for _, v := range col {
		if v != "" {
			counts[v]++
		}
	}
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, bestN > 0
}
