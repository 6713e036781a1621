package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func smallFrame(t *testing.T) *Frame {
	t.Helper()
	f := NewFrame([]string{"age", "gender", "liver_cancer"})
	rows := [][]string{
		{"55", "Male", "1"},
		{"", "Female", "0"},
		{"61.5", "", ""},
	}
	for _, r := range rows {
		if err := f.AppendRow(r); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func TestFrameAccessors(t *testing.T) {
	f := smallFrame(t)
	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	if err := f.AppendRow([]string{"1"}); err == nil {
		t.Error("AppendRow with wrong width should fail")
	}

	age, err := f.Float("age")
	if err != nil {
		t.Fatal(err)
	}
	if age[0] != 55 || !math.IsNaN(age[1]) || age[2] != 61.5 {
		t.Errorf("Float(age) = %v", age)
	}
	if _, err := f.Float("missing"); err == nil {
		t.Error("Float on unknown column should fail")
	}

	dropped := f.Drop("liver_cancer")
	if dropped.Has("liver_cancer") || len(dropped.Columns()) != 2 {
		t.Errorf("Drop() columns = %v", dropped.Columns())
	}

	taken := f.Take([]int{2, 0})
	if got := taken.Row(0); got[0] != "61.5" {
		t.Errorf("Take() first row = %v", got)
	}

	clean, removed, err := f.DropMissing("liver_cancer")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 || clean.Len() != 2 {
		t.Errorf("DropMissing() removed %d, kept %d", removed, clean.Len())
	}

	if err := f.Set("bmi", []string{"20", "21", "22"}); err != nil {
		t.Fatal(err)
	}
	if !f.Has("bmi") {
		t.Error("Set should append a new column")
	}
	if err := f.Set("bmi", []string{"1"}); err == nil {
		t.Error("Set with wrong length should fail")
	}
}

func TestFrameHeadAndInfo(t *testing.T) {
	f := smallFrame(t)

	head := f.Head(2)
	if !strings.Contains(head, "gender") || !strings.Contains(head, "NaN") {
		t.Errorf("Head() = %q", head)
	}
	if strings.Contains(head, "61.5") {
		t.Error("Head(2) should not render the third row")
	}

	infos := f.Describe()
	want := []ColumnInfo{
		{"age", 2, "float64"},
		{"gender", 2, "object"},
		{"liver_cancer", 2, "int64"},
	}
	for i, w := range want {
		if infos[i] != w {
			t.Errorf("Describe()[%d] = %+v, want %+v", i, infos[i], w)
		}
	}

	info := f.Info()
	if !strings.Contains(info, "RangeIndex: 3 entries, 0 to 2") {
		t.Errorf("Info() = %q", info)
	}
	if !strings.Contains(info, "dtypes: float64(1), int64(1), object(1)") {
		t.Errorf("Info() dtypes line missing: %q", info)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	f := smallFrame(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, f); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "age,gender,liver_cancer\n55,Male,1\n,Female,0\n") {
		t.Errorf("unexpected CSV: %q", buf.String())
	}

	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if back.Len() != 3 || strings.Join(back.Row(2), ",") != "61.5,," {
		t.Errorf("ReadCSV() row 2 = %v", back.Row(2))
	}

	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Error("ReadCSV on empty input should fail")
	}
}

func TestCSVFiles(t *testing.T) {
	path := t.TempDir() + "/datos/out.csv"
	if err := WriteCSVFile(path, smallFrame(t)); err != nil {
		t.Fatal(err)
	}
	f, err := ReadCSVFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.Len())
	}
	if _, err := ReadCSVFile(t.TempDir() + "/nope.csv"); err == nil {
		t.Error("missing file should fail")
	}
}

func TestSchema(t *testing.T) {
	s := LiverCancerSchema()
	if len(s.Features()) != 13 {
		t.Errorf("Features() = %d, want 13", len(s.Features()))
	}
	if got := s.FeaturesOf(Numeric); strings.Join(got, ",") != "age,bmi,liver_function_score,alpha_fetoprotein_level" {
		t.Errorf("numeric = %v", got)
	}
	if got := s.FeaturesOf(Binary); len(got) != 5 {
		t.Errorf("binary features = %v, want 5 (target excluded)", got)
	}
	if k, ok := s.KindOf("gender"); !ok || k != Categorical {
		t.Errorf("KindOf(gender) = %v, %v", k, ok)
	}
}
