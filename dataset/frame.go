package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// Frame is a column-major table of string cells. An empty cell is missing.
type Frame struct {
	names []string
	index map[string]int
	cells [][]string
}

// NewFrame creates an empty frame with the given column names.
func NewFrame(columns []string) *Frame {
	f := &Frame{
		names: append([]string(nil), columns...),
		index: make(map[string]int, len(columns)),
		cells: make([][]string, len(columns)),
	}
	for i, c := range columns {
		f.index[c] = i
	}
	return f
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.names...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.cells) == 0 {
		return 0
	}
	return len(f.cells[0])
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// AppendRow adds one row; len(row) must equal the number of columns.
func (f *Frame) AppendRow(row []string) error {
	if len(row) != len(f.names) {
		return errors.NewDimensionError("Frame.AppendRow", len(f.names), len(row), 1)
	}
	for i, v := range row {
		f.cells[i] = append(f.cells[i], v)
	}
	return nil
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []string {
	out := make([]string, len(f.names))
	for c := range f.names {
		out[c] = f.cells[c][i]
	}
	return out
}

// Strings returns a copy of column name.
func (f *Frame) Strings(name string) ([]string, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, errors.NewValidationError("column", "not present in frame", name)
	}
	return append([]string(nil), f.cells[i]...), nil
}

// Float returns column name parsed as float64. Missing or unparsable cells
// become NaN.
func (f *Frame) Float(name string) ([]float64, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, errors.NewValidationError("column", "not present in frame", name)
	}
	out := make([]float64, len(f.cells[i]))
	for r, v := range f.cells[i] {
		out[r] = ParseCell(v)
	}
	return out, nil
}

// ParseCell parses a numeric cell, returning NaN for missing or invalid text.
func ParseCell(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return math.NaN()
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return x
}

// Set replaces or appends column name.
func (f *Frame) Set(name string, values []string) error {
	if len(f.names) > 0 && len(values) != f.Len() {
		return errors.NewDimensionError("Frame.Set", f.Len(), len(values), 0)
	}
	vals := append([]string(nil), values...)
	if i, ok := f.index[name]; ok {
		f.cells[i] = vals
		return nil
	}
	f.index[name] = len(f.names)
	f.names = append(f.names, name)
	f.cells = append(f.cells, vals)
	return nil
}

// Drop returns a new frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []string
	for _, n := range f.names {
		if !drop[n] {
			keep = append(keep, n)
		}
	}
	out, _ := f.Select(keep...)
	return out
}

// Select returns a new frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := NewFrame(names)
	for j, n := range names {
		i, ok := f.index[n]
		if !ok {
			return nil, errors.NewValidationError("column", "not present in frame", n)
		}
		out.cells[j] = append([]string(nil), f.cells[i]...)
	}
	return out, nil
}

// Take returns a new frame holding the given rows in the given order.
func (f *Frame) Take(indices []int) *Frame {
	out := NewFrame(f.names)
	for c := range f.names {
		col := make([]string, len(indices))
		for k, r := range indices {
			col[k] = f.cells[c][r]
		}
		out.cells[c] = col
	}
	return out
}

// DropMissing returns the rows whose column name is not missing, and the
// number of rows removed.
func (f *Frame) DropMissing(name string) (*Frame, int, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, 0, errors.NewValidationError("column", "not present in frame", name)
	}
	keep := make([]int, 0, f.Len())
	for r, v := range f.cells[i] {
		if strings.TrimSpace(v) != "" {
			keep = append(keep, r)
		}
	}
	return f.Take(keep), f.Len() - len(keep), nil
}

// Head renders the first n rows as an aligned text table, missing cells as NaN.
func (f *Frame) Head(n int) string {
	if n > f.Len() {
		n = f.Len()
	}
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, name := range f.names {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprintln(tw)
	for r := 0; r < n; r++ {
		fmt.Fprintf(tw, "%d\t", r)
		for c := range f.names {
			v := f.cells[c][r]
			if v == "" {
				v = "NaN"
			}
			fmt.Fprintf(tw, "%s\t", v)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
	return sb.String()
}
