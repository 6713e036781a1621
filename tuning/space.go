// Package tuning searches the network's hyperparameters with Hyperband.
package tuning

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// ParamKind is the type of a searchable hyperparameter.
type ParamKind int

const (
	KindInt ParamKind = iota
	KindFloat
	KindChoice
)

// Param describes one hyperparameter. Int and Float parameters take values
// Min, Min+Step, ... up to Max inclusive.
type Param struct {
	Name   string
	Kind   ParamKind
	Min    float64
	Max    float64
	Step   float64
	Values []interface{}
}

func (p Param) grid() []interface{} {
	if p.Kind == KindChoice {
		return p.Values
	}
	if p.Step <= 0 || p.Max < p.Min {
		return nil
	}
	count := int(math.Floor((p.Max-p.Min)/p.Step+1e-9)) + 1
	out := make([]interface{}, count)
	for i := range out {
		v := p.Min + float64(i)*p.Step
		if p.Kind == KindInt {
			out[i] = int(math.Round(v))
		} else {
			out[i] = math.Round(v*1e10) / 1e10
		}
	}
	return out
}

// Space is an ordered set of hyperparameters.
type Space struct {
	params []Param
}

// NewSpace returns an empty search space.
func NewSpace() *Space { return &Space{} }

// Int adds an integer parameter.
func (s *Space) Int(name string, min, max, step int) *Space {
	s.params = append(s.params, Param{Name: name, Kind: KindInt, Min: float64(min), Max: float64(max), Step: float64(step)})
	return s
}

// Float adds a float parameter sampled on a step grid.
func (s *Space) Float(name string, min, max, step float64) *Space {
	s.params = append(s.params, Param{Name: name, Kind: KindFloat, Min: min, Max: max, Step: step})
	return s
}

// Choice adds a categorical parameter.
func (s *Space) Choice(name string, values ...interface{}) *Space {
	s.params = append(s.params, Param{Name: name, Kind: KindChoice, Values: values})
	return s
}

// Params returns the parameters in declaration order.
func (s *Space) Params() []Param { return s.params }

// Size returns the number of distinct combinations.
func (s *Space) Size() int {
	total := 1
	for _, p := range s.params {
		total *= len(p.grid())
	}
	return total
}

// Validate checks names are unique and every grid is non-empty.
func (s *Space) Validate() error {
	if len(s.params) == 0 {
		return errors.NewValidationError("space", "no hyperparameters", 0)
	}
	seen := map[string]bool{}
	for _, p := range s.params {
		if p.Name == "" {
			return errors.NewValidationError("name", "must not be empty", p.Name)
		}
		if seen[p.Name] {
			return errors.NewValidationError(p.Name, "declared twice", p.Name)
		}
		seen[p.Name] = true
		if len(p.grid()) == 0 {
			return errors.NewValidationError(p.Name, "has no admissible values", fmt.Sprintf("[%v, %v] step %v", p.Min, p.Max, p.Step))
		}
	}
	return nil
}

// Sample draws one value per parameter uniformly from its grid.
func (s *Space) Sample(rng *rand.Rand) HyperParameters {
	hp := make(HyperParameters, len(s.params))
	for _, p := range s.params {
		g := p.grid()
		hp[p.Name] = g[rng.IntN(len(g))]
	}
	return hp
}

// LiverCancerSpace is the space searched for the risk network.
func LiverCancerSpace() *Space {
	return NewSpace().
		Int("units_1", 32, 128, 32).
		Float("dropout", 0.2, 0.5, 0.1).
		Int("units_2", 16, 64, 16)
}

// HyperParameters maps parameter names to values.
type HyperParameters map[string]interface{}

// Int returns name as an int. Values decoded from JSON arrive as float64.
func (hp HyperParameters) Int(name string) int {
	switch v := hp[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	}
	return 0
}

// Float returns name as a float64.
func (hp HyperParameters) Float(name string) float64 {
	switch v := hp[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Clone returns a shallow copy.
func (hp HyperParameters) Clone() HyperParameters {
	out := make(HyperParameters, len(hp))
	for k, v := range hp {
		out[k] = v
	}
	return out
}

// key identifies a combination independently of map order and of the
// int/float64 distinction introduced by JSON.
func (hp HyperParameters) key() string {
	names := make([]string, 0, len(hp))
	for k := range hp {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		v := hp[k]
		switch n := v.(type) {
		case int:
			v = float64(n)
		case int64:
			v = float64(n)
		}
		fmt.Fprintf(&b, "%s=%v;", k, v)
	}
	return b.String()
}
