package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

// ColumnInfo summarises one column.
type ColumnInfo struct {
	Name    string
	NonNull int
	// Dtype is "int64", "float64" or "object", inferred from the non-missing cells.
	Dtype string
}

// Describe returns one ColumnInfo per column.
func (f *Frame) Describe() []ColumnInfo {
	out := make([]ColumnInfo, len(f.names))
	for c, name := range f.names {
		info := ColumnInfo{Name: name, Dtype: "int64"}
		for _, v := range f.cells[c] {
			if v == "" {
				continue
			}
			info.NonNull++
			info.Dtype = widen(info.Dtype, v)
		}
		if info.NonNull == 0 {
			info.Dtype = "object"
		}
		out[c] = info
	}
	return out
}

func widen(dtype, v string) string {
	switch dtype {
	case "int64":
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			return "int64"
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return "float64"
		}
		return "object"
	case "float64":
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return "float64"
		}
		return "object"
	default:
		return "object"
	}
}

// Info renders Describe in the layout of a dataframe summary.
func (f *Frame) Info() string {
	var sb strings.Builder
	n := f.Len()
	fmt.Fprintf(&sb, "RangeIndex: %d entries", n)
	if n > 0 {
		fmt.Fprintf(&sb, ", 0 to %d", n-1)
	}
	fmt.Fprintf(&sb, "\nData columns (total %d columns):\n", len(f.names))

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " #\tColumn\tNon-Null Count\tDtype")
	fmt.Fprintln(tw, "---\t------\t--------------\t-----")
	counts := map[string]int{}
	for i, ci := range f.Describe() {
		fmt.Fprintf(tw, " %d\t%s\t%d non-null\t%s\n", i, ci.Name, ci.NonNull, ci.Dtype)
		counts[ci.Dtype]++
	}
	_ = tw.Flush()

	var parts []string
	for _, d := range []string{"float64", "int64", "object"} {
		if counts[d] > 0 {
			parts = append(parts, fmt.Sprintf("%s(%d)", d, counts[d]))
		}
	}
	fmt.Fprintf(&sb, "dtypes: %s\n", strings.Join(parts, ", "))
	return sb.String()
}
