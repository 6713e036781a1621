package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/dataset"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// ColumnTransformer applies one preprocessing branch per column kind and
// concatenates the results in the order numeric, categorical, binary,
// remainder.
//
//   - numeric: median imputation, then standard scaling
//   - categorical: most-frequent imputation, then one-hot encoding (unknown ignored)
//   - binary: most-frequent imputation
//   - remainder: every other input column, passed through as floats
//
// All fields are exported so that a fitted transformer can be saved with
// model.SaveModel.
type ColumnTransformer struct {
	Numeric     []string
	Categorical []string
	Binary      []string
	Remainder   []string

	NumImputer *SimpleImputer
	Scaler     *StandardScaler
	CatImputer *StringImputer
	Encoder    *OneHotEncoder
	BinImputer *SimpleImputer

	State *model.StateManager
}

// NewColumnTransformer builds the three branches from the schema's feature
// columns. The target column is never part of any branch.
func NewColumnTransformer(schema dataset.Schema) *ColumnTransformer {
	return &ColumnTransformer{
		Numeric:     schema.FeaturesOf(dataset.Numeric),
		Categorical: schema.FeaturesOf(dataset.Categorical),
		Binary:      schema.FeaturesOf(dataset.Binary),
		NumImputer:  NewSimpleImputer(StrategyMedian),
		Scaler:      NewStandardScaler(),
		CatImputer:  NewStringImputer(StrategyMostFrequent),
		Encoder:     NewOneHotEncoder(HandleUnknownIgnore),
		BinImputer:  NewSimpleImputer(StrategyMostFrequent),
		State:       model.NewStateManager(),
	}
}

// Fit learns every branch from f. Columns of f outside the three branches
// become the passthrough remainder.
func (ct *ColumnTransformer) Fit(f *dataset.Frame) error {
	_, err := ct.run(f, true)
	return err
}

// FitTransform fits on f and returns the transformed matrix.
func (ct *ColumnTransformer) FitTransform(f *dataset.Frame) (*mat.Dense, error) {
	return ct.run(f, true)
}

// Transform applies the fitted branches to f. Every column seen during Fit
// must be present.
func (ct *ColumnTransformer) Transform(f *dataset.Frame) (*mat.Dense, error) {
	if ct.State == nil {
		return nil, errors.NewNotFittedError("ColumnTransformer", "Transform")
	}
	if err := ct.State.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	return ct.run(f, false)
}

func (ct *ColumnTransformer) run(f *dataset.Frame, fit bool) (*mat.Dense, error) {
	op := "ColumnTransformer.Transform"
	if fit {
		op = "ColumnTransformer.Fit"
	}
	if f.Len() == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if fit {
		if ct.State == nil {
			ct.State = model.NewStateManager()
		}
		ct.State.Reset()
		ct.Remainder = remainder(f.Columns(), ct.Numeric, ct.Categorical, ct.Binary)
	}

	var blocks []mat.Matrix
	if len(ct.Numeric) > 0 {
		X, err := floatBlock(f, ct.Numeric)
		if err != nil {
			return nil, err
		}
		imputed, err := step(ct.NumImputer, X, fit)
		if err != nil {
			return nil, errors.Wrap(err, "numeric branch")
		}
		scaled, err := step(ct.Scaler, imputed, fit)
		if err != nil {
			return nil, errors.Wrap(err, "numeric branch")
		}
		blocks = append(blocks, scaled)
	}
	if len(ct.Categorical) > 0 {
		cols, err := stringBlock(f, ct.Categorical)
		if err != nil {
			return nil, err
		}
		if fit {
			cols, err = ct.CatImputer.FitTransform(cols)
		} else {
			cols, err = ct.CatImputer.Transform(cols)
		}
		if err != nil {
			return nil, errors.Wrap(err, "categorical branch")
		}
		var encoded *mat.Dense
		if fit {
			encoded, err = ct.Encoder.FitTransform(cols)
		} else {
			encoded, err = ct.Encoder.Transform(cols)
		}
		if err != nil {
			return nil, errors.Wrap(err, "categorical branch")
		}
		blocks = append(blocks, encoded)
	}
	if len(ct.Binary) > 0 {
		X, err := floatBlock(f, ct.Binary)
		if err != nil {
			return nil, err
		}
		imputed, err := step(ct.BinImputer, X, fit)
		if err != nil {
			return nil, errors.Wrap(err, "binary branch")
		}
		blocks = append(blocks, imputed)
	}
	if len(ct.Remainder) > 0 {
		X, err := floatBlock(f, ct.Remainder)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, X)
	}

	out, err := hstack(f.Len(), blocks)
	if err != nil {
		return nil, err
	}
	if fit {
		_, c := out.Dims()
		ct.State.SetFitted(c, f.Len())
	}
	return out, nil
}

func step(t model.Transformer, X mat.Matrix, fit bool) (mat.Matrix, error) {
	if fit {
		return t.FitTransform(X)
	}
	return t.Transform(X)
}

func remainder(columns []string, groups ...[]string) []string {
	used := map[string]bool{}
	for _, g := range groups {
		for _, c := range g {
			used[c] = true
		}
	}
	var out []string
	for _, c := range columns {
		if !used[c] {
			out = append(out, c)
		}
	}
	return out
}

var _ model.FeatureNamer = (*ColumnTransformer)(nil)

// FeatureNamesOut returns the output column names with a branch prefix:
// num__age, cat__gender_Female, bin__diabetes, remainder__x.
func (ct *ColumnTransformer) FeatureNamesOut() []string {
	var names []string
	for _, c := range ct.Numeric {
		names = append(names, "num__"+c)
	}
	if ct.Encoder != nil {
		for _, c := range ct.Encoder.FeatureNamesOut(ct.Categorical) {
			names = append(names, "cat__"+c)
		}
	}
	for _, c := range ct.Binary {
		names = append(names, "bin__"+c)
	}
	for _, c := range ct.Remainder {
		names = append(names, "remainder__"+c)
	}
	return names
}

// FeatureNamesIn returns the raw input columns Transform reads, branch by
// branch.
func (ct *ColumnTransformer) FeatureNamesIn() []string {
	names := make([]string, 0, len(ct.Numeric)+len(ct.Categorical)+len(ct.Binary)+len(ct.Remainder))
	names = append(names, ct.Numeric...)
	names = append(names, ct.Categorical...)
	names = append(names, ct.Binary...)
	return append(names, ct.Remainder...)
}

// NFeaturesOut returns the width of the transformed matrix.
func (ct *ColumnTransformer) NFeaturesOut() int {
	if ct.State == nil {
		return 0
	}
	n, _ := ct.State.Shape()
	return n
}

func floatBlock(f *dataset.Frame, names []string) (*mat.Dense, error) {
	X := mat.NewDense(f.Len(), len(names), nil)
	for j, name := range names {
		col, err := f.Float(name)
		if err != nil {
			return nil, err
		}
		X.SetCol(j, col)
	}
	return X, nil
}

func stringBlock(f *dataset.Frame, names []string) ([][]string, error) {
	cols := make([][]string, len(names))
	for j, name := range names {
		col, err := f.Strings(name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	return cols, nil
}

// hstack concatenates blocks with the same row count left to right.
func hstack(rows int, blocks []mat.Matrix) (*mat.Dense, error) {
	width := 0
	for _, b := range blocks {
		_, c := b.Dims()
		width += c
	}
	if width == 0 {
		return nil, errors.NewValueError("ColumnTransformer", "no output columns")
	}
	out := mat.NewDense(rows, width, nil)
	offset := 0
	for _, b := range blocks {
		_, c := b.Dims()
		if c == 0 {
			continue
		}
		out.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(b)
		offset += c
	}
	return out, nil
}
