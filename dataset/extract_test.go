package dataset

import (
	"strings"
	"testing"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

const sampleDump = `-- synthetic liver cancer dataset
CREATE TABLE liver (age FLOAT, gender TEXT);
INSERT INTO liver (age, gender) VALUES (55, 'Male', 27.5, 'Moderate', 'Never', 0, 1, 71.2, 5.4, 0, 1, 'Low', 0, 1);
insert into liver values (60, 'Female', ., 'High', 'Current', 1, 0, 60, 10.1, 1, 0, 'Moderate', 1, 0);
INSERT INTO liver VALUES (1, 2, 3);
INSERT INTO liver VALUES
  (42, 'O''Brien', 22, 'Low', 'Former', 0.5, 0, 80, 3, 0, 0, 'High', NULL, 0),
  (43, 'Male', abc, 'Low', 'Never', 0, 0, 81, 2.5, 0, 0, 'High', 0, 1);
`

func TestExtractSQL(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	frame, stats, err := ExtractSQL(strings.NewReader(sampleDump), LiverCancerSchema())
	if err != nil {
		t.Fatalf("ExtractSQL() error = %v", err)
	}

	if stats.Statements != 4 || stats.Rows != 4 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 4 statements, 4 rows, 1 skipped", stats)
	}
	if len(stats.SkipReasons) != 1 || stats.SkipReasons[0] != "expected 14 values, got 3" {
		t.Errorf("SkipReasons = %v", stats.SkipReasons)
	}
	if stats.Coerced["hepatitis_b"] != 1 || stats.Coerced["bmi"] != 1 {
		t.Errorf("Coerced = %v, want hepatitis_b=1 bmi=1", stats.Coerced)
	}
	if len(warnings) != 2 {
		t.Errorf("got %d conversion warnings, want 2", len(warnings))
	}

	tests := []struct {
		row  int
		col  string
		want string
	}{
		{0, "age", "55"},
		{0, "gender", "Male"},
		{0, "bmi", "27.5"},
		{0, TargetColumn, "1"},
		{1, "bmi", ""},
		{1, "smoking_status", "Current"},
		{2, "gender", "O'Brien"},
		{2, "hepatitis_b", ""},
		{2, "diabetes", ""},
		{3, "bmi", ""},
		{3, "alpha_fetoprotein_level", "2.5"},
	}
	for _, tt := range tests {
		col, err := frame.Strings(tt.col)
		if err != nil {
			t.Fatal(err)
		}
		if col[tt.row] != tt.want {
			t.Errorf("row %d %s = %q, want %q", tt.row, tt.col, col[tt.row], tt.want)
		}
	}
}

func TestExtractSQLBinaryOutOfRange(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	schema := Schema{Columns: []Column{{"id", Numeric}, {"b", Binary}}}
	dump := "INSERT INTO t VALUES (1, 1e19), (2, -1e19), (3, 1.0), (4, 1e3);"

	frame, stats, err := ExtractSQL(strings.NewReader(dump), schema)
	if err != nil {
		t.Fatalf("ExtractSQL() error = %v", err)
	}
	if stats.Coerced["b"] != 2 {
		t.Errorf("Coerced[b] = %d, want 2", stats.Coerced["b"])
	}
	if len(warnings) != 1 {
		t.Errorf("got %d conversion warnings, want 1", len(warnings))
	}

	col, err := frame.Strings("b")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"", "", "1", "1000"}
	for i := range want {
		if col[i] != want[i] {
			t.Errorf("row %d b = %q, want %q", i, col[i], want[i])
		}
	}
}

func TestExtractSQLNoRows(t *testing.T) {
	_, stats, err := ExtractSQL(strings.NewReader("INSERT INTO t VALUES (1, 2);"), LiverCancerSchema())
	if !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("error = %v, want ErrEmptyData", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestSplitTuples(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    [][]string
		wantErr bool
	}{
		{"single", "(1, 'a', .)", [][]string{{"1", "a", ""}}, false},
		{"multi", "(1,'x'), (2,'y')", [][]string{{"1", "x"}, {"2", "y"}}, false},
		{"comma in string", "('a,b', 2)", [][]string{{"a,b", "2"}}, false},
		{"escaped quote", "('it''s')", [][]string{{"it's"}}, false},
		{"quoted dot", "('.', NULL)", [][]string{{"", ""}}, false},
		{"unterminated string", "('abc)", nil, true},
		{"garbage", "x(1)", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitTuples(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitTuples() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tuples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if strings.Join(got[i], "|") != strings.Join(tt.want[i], "|") {
					t.Errorf("tuple %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
