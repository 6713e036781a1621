// Package dataset loads the liver-cancer table: SQL dump extraction, CSV
// round trips, a small column-major frame and train/test splitting.
package dataset

// Kind は列の型
type Kind int

const (
	// Numeric は連続値の列
	Numeric Kind = iota
	// Categorical は文字列カテゴリの列
	Categorical
	// Binary は0/1の列
	Binary
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Column は列名と型
type Column struct {
	Name string
	Kind Kind
}

// Schema は列の並びと目的変数
type Schema struct {
	Columns []Column
	Target  string
}

// TargetColumn is the label of the liver-cancer dataset.
const TargetColumn = "liver_cancer"

// LiverCancerColumns are the dump's columns in CREATE TABLE order.
var LiverCancerColumns = []Column{
	{"age", Numeric},
	{"gender", Categorical},
	{"bmi", Numeric},
	{"alcohol_consumption", Categorical},
	{"smoking_status", Categorical},
	{"hepatitis_b", Binary},
	{"hepatitis_c", Binary},
	{"liver_function_score", Numeric},
	{"alpha_fetoprotein_level", Numeric},
	{"cirrhosis_history", Binary},
	{"family_history_cancer", Binary},
	{"physical_activity_level", Categorical},
	{"diabetes", Binary},
	{TargetColumn, Binary},
}

// LiverCancerSchema returns the schema of the synthetic liver-cancer dump.
func LiverCancerSchema() Schema {
	cols := make([]Column, len(LiverCancerColumns))
	copy(cols, LiverCancerColumns)
	return Schema{Columns: cols, Target: TargetColumn}
}

// Names returns every column name in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Features returns every column name except the target.
func (s Schema) Features() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name != s.Target {
			out = append(out, c.Name)
		}
	}
	return out
}

// FeaturesOf returns the non-target columns of kind k, in schema order.
func (s Schema) FeaturesOf(k Kind) []string {
	var out []string
	for _, c := range s.Columns {
		if c.Kind == k && c.Name != s.Target {
			out = append(out, c.Name)
		}
	}
	return out
}

// KindOf returns the kind of column name and whether it exists.
func (s Schema) KindOf(name string) (Kind, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return 0, false
}
