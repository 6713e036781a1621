package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// HandleUnknown values for OneHotEncoder.
const (
	HandleUnknownIgnore = "ignore"
	HandleUnknownError  = "error"
)

// OneHotEncoder expands categorical columns into 0/1 indicator columns.
// Input is column-major like StringImputer.
type OneHotEncoder struct {
	HandleUnknown string
	// Categories holds the sorted categories seen per column during Fit.
	Categories [][]string

	State *model.StateManager
}

// NewOneHotEncoder creates an encoder with the given unknown-category policy.
func NewOneHotEncoder(handleUnknown string) *OneHotEncoder {
	return &OneHotEncoder{HandleUnknown: handleUnknown, State: model.NewStateManager()}
}

// Fit learns the categories of each column. Missing cells are not categories.
func (e *OneHotEncoder) Fit(cols [][]string) error {
	if len(cols) == 0 || len(cols[0]) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	switch e.HandleUnknown {
	case HandleUnknownIgnore, HandleUnknownError:
	default:
		return errors.NewValidationError("handle_unknown", "must be ignore or error", e.HandleUnknown)
	}
	if e.State == nil {
		e.State = model.NewStateManager()
	}

	cats := make([][]string, len(cols))
	for j, col := range cols {
		seen := map[string]bool{}
		for _, v := range col {
			if v != "" && !seen[v] {
				seen[v] = true
				cats[j] = append(cats[j], v)
			}
		}
		sort.Strings(cats[j])
	}

	e.Categories = cats
	e.State.SetFitted(len(cols), len(cols[0]))
	return nil
}

// NOutputs returns the number of indicator columns Transform produces.
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c)
	}
	return n
}

// Transform returns a dense len(rows) × NOutputs() indicator matrix. Unknown
// or missing categories encode as all zeros when HandleUnknown is ignore.
func (e *OneHotEncoder) Transform(cols [][]string) (*mat.Dense, error) {
	if e.State == nil {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if err := e.State.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	if err := e.State.RequireFeatures("OneHotEncoder.Transform", len(cols)); err != nil {
		return nil, err
	}
	rows := len(cols[0])
	if rows == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	out := mat.NewDense(rows, e.NOutputs(), nil)
	offset := 0
	for j, col := range cols {
		cats := e.Categories[j]
		for i, v := range col {
			k := sort.SearchStrings(cats, v)
			if k < len(cats) && cats[k] == v {
				out.Set(i, offset+k, 1)
				continue
			}
			if e.HandleUnknown == HandleUnknownError {
				return nil, errors.NewValueError("OneHotEncoder.Transform",
					fmt.Sprintf("found unknown category %q in column %d", v, j))
			}
		}
		offset += len(cats)
	}
	return out, nil
}

// FitTransform fits and transforms cols.
func (e *OneHotEncoder) FitTransform(cols [][]string) (*mat.Dense, error) {
	if err := e.Fit(cols); err != nil {
		return nil, err
	}
	return e.Transform(cols)
}

// FeatureNamesOut returns "<input>_<category>" for every indicator column.
func (e *OneHotEncoder) FeatureNamesOut(inputs []string) []string {
	var names []string
	for j, cats := range e.Categories {
		for _, c := range cats {
			names = append(names, inputs[j]+"_"+c)
		}
	}
	return names
}
