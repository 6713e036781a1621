package dataset

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// valuesRe matches the value list of an INSERT statement, up to the first
// closing parenthesis followed by a semicolon.
var valuesRe = regexp.MustCompile(`(?is)VALUES\s*(\(.*?\))\s*;`)

// ExtractStats reports what ExtractSQL saw.
type ExtractStats struct {
	Statements int
	Rows       int
	Skipped    int
	// SkipReasons holds one message per skipped tuple or statement.
	SkipReasons []string
	// Coerced counts cells per column that could not be converted and were
	// set to missing.
	Coerced map[string]int
}

// ExtractSQL scans an SQL dump for INSERT ... VALUES tuples and returns them
// as a frame with the schema's columns.
//
// Fields are split with a quote-aware tokenizer: surrounding single quotes are
// stripped, doubled single quotes are unescaped, and "." or NULL become
// missing. Tuples whose field count differs from the schema are skipped and
// reported in ExtractStats. Numeric columns keep parseable numbers; binary
// columns keep integral values that fit in an int64.
// Anything else becomes missing and raises a DataConversionWarning.
func ExtractSQL(r io.Reader, schema Schema) (*Frame, ExtractStats, error) {
	stats := ExtractStats{Coerced: map[string]int{}}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, errors.Wrap(err, "failed to read SQL dump")
	}

	frame := NewFrame(schema.Names())
	want := len(schema.Columns)

	for _, m := range valuesRe.FindAllSubmatch(content, -1) {
		stats.Statements++
		tuples, err := splitTuples(string(m[1]))
		if err != nil {
			stats.Skipped++
			stats.SkipReasons = append(stats.SkipReasons, fmt.Sprintf("statement %d: %v", stats.Statements, err))
			continue
		}
		for _, values := range tuples {
			if len(values) != want {
				stats.Skipped++
				stats.SkipReasons = append(stats.SkipReasons,
					fmt.Sprintf("expected %d values, got %d", want, len(values)))
				continue
			}
			for i, col := range schema.Columns {
				v, ok := coerce(values[i], col.Kind)
				if !ok {
					stats.Coerced[col.Name]++
				}
				values[i] = v
			}
			if err := frame.AppendRow(values); err != nil {
				return nil, stats, err
			}
			stats.Rows++
		}
	}

	for _, col := range schema.Columns {
		if n := stats.Coerced[col.Name]; n > 0 {
			errors.Warn(errors.NewDataConversionWarning("string", col.Kind.String(),
				fmt.Sprintf("%d values in column %s could not be converted and were set to missing", n, col.Name)))
		}
	}

	if stats.Rows == 0 {
		return nil, stats, errors.Wrap(errors.ErrEmptyData, "no rows parsed from SQL dump")
	}
	return frame, stats, nil
}

// coerce normalises a raw field for its column kind. The second result is
// false when a non-missing value had to be discarded.
func coerce(v string, k Kind) (string, bool) {
	if v == "" || k == Categorical {
		return v, true
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return "", false
	}
	if k == Binary {
		// int64 に収まらない整数値は欠損扱い
		if x != math.Trunc(x) || math.Abs(x) >= math.MaxInt64 {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return strconv.FormatFloat(x, 'f', -1, 64), true
}

// splitTuples tokenizes a VALUES list into rows of fields, for example
//
//	(a, 'b', .), (c, 'd''e', NULL)
//
// Missing fields come back as "".
func splitTuples(s string) ([][]string, error) {
	var (
		rows    [][]string
		row     []string
		raw     strings.Builder
		quoted  strings.Builder
		inTuple bool
		inQuote bool
		wasQuot bool
	)
	endField := func() {
		var v string
		if wasQuot {
			v = quoted.String()
		} else {
			v = strings.TrimSpace(raw.String())
			if strings.EqualFold(v, "NULL") {
				v = ""
			}
		}
		if v == "." {
			v = ""
		}
		row = append(row, v)
		raw.Reset()
		quoted.Reset()
		wasQuot = false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					quoted.WriteByte('\'')
					i++
					continue
				}
				inQuote = false
				continue
			}
			quoted.WriteByte(c)
		case !inTuple:
			switch c {
			case '(':
				inTuple = true
				row = nil
			case ',', ' ', '\t', '\n', '\r':
			default:
				return nil, errors.Newf("unexpected %q between tuples at offset %d", c, i)
			}
		default:
			switch c {
			case '\'':
				inQuote = true
				wasQuot = true
			case ',':
				endField()
			case ')':
				endField()
				rows = append(rows, row)
				inTuple = false
			default:
				raw.WriteByte(c)
			}
		}
	}
	if inQuote {
		return nil, errors.New("unterminated string literal")
	}
	if inTuple {
		return nil, errors.New("unterminated tuple")
	}
	return rows, nil
}
