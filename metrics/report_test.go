package metrics

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func vec(xs ...float64) *mat.VecDense { return mat.NewVecDense(len(xs), xs) }

func TestConfusionMatrix(t *testing.T) {
	yTrue := vec(0, 0, 0, 1, 1)
	yPred := vec(0, 1, 0, 1, 0)

	cm, err := ConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewDense(2, 2, []float64{
		2, 1,
		1, 1,
	})
	if !mat.Equal(cm, want) {
		t.Errorf("ConfusionMatrix() = %v", mat.Formatted(cm))
	}

	if got := FormatConfusionMatrix(cm); got != "[[2 1]\n [1 1]]" {
		t.Errorf("FormatConfusionMatrix() = %q", got)
	}

	if _, err := ConfusionMatrix(yTrue, vec(0), nil); err == nil {
		t.Error("length mismatch should fail")
	}
}

func TestPrecisionRecallFScoreSupport(t *testing.T) {
	prfs, err := PrecisionRecallFScoreSupport(vec(0, 0, 0, 1, 1), vec(0, 1, 0, 1, 0), []float64{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"precision 0", prfs.Precision[0], 2.0 / 3},
		{"recall 0", prfs.Recall[0], 2.0 / 3},
		{"precision 1", prfs.Precision[1], 0.5},
		{"recall 1", prfs.Recall[1], 0.5},
		{"f1 1", prfs.F1[1], 0.5},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-12 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if prfs.Support[0] != 3 || prfs.Support[1] != 2 {
		t.Errorf("Support = %v, want [3 2]", prfs.Support)
	}
}

func TestPrecisionZeroDivision(t *testing.T) {
	prfs, err := PrecisionRecallFScoreSupport(vec(0, 1, 1), vec(0, 0, 0), []float64{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if prfs.Precision[1] != 0 || prfs.F1[1] != 0 {
		t.Errorf("label 1 never predicted: precision %v, f1 %v, want 0", prfs.Precision[1], prfs.F1[1])
	}
}

func TestClassificationReport(t *testing.T) {
	report, err := ClassificationReport(vec(0, 0, 0, 1, 1), vec(0, 1, 0, 1, 0), []float64{0, 1},
		[]string{"Riesgo Bajo (0)", "Riesgo Alto (1)"}, 2)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(report, "\n")
	wantLines := []string{
		"                 precision    recall  f1-score   support",
		"",
		"Riesgo Bajo (0)       0.67      0.67      0.67         3",
		"Riesgo Alto (1)       0.50      0.50      0.50         2",
		"",
		"       accuracy                           0.60         5",
		"      macro avg       0.58      0.58      0.58         5",
		"   weighted avg       0.60      0.60      0.60         5",
	}
	if len(lines) < len(wantLines) {
		t.Fatalf("report has %d lines:\n%s", len(lines), report)
	}
	for i, want := range wantLines {
		if lines[i] != want {
			t.Errorf("line %d:\n got %q\nwant %q", i, lines[i], want)
		}
	}

	if _, err := ClassificationReport(vec(0, 1), vec(0, 1), nil, []string{"only one"}, 2); err == nil {
		t.Error("target name count mismatch should fail")
	}
}

func TestConfusionHeatmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "confusion_matrix.png")
	cm := mat.NewDense(2, 2, []float64{150, 12, 20, 118})

	if err := ConfusionHeatmap(cm, PredictedLabels, ActualLabels, path); err != nil {
		t.Fatalf("ConfusionHeatmap() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("heatmap PNG is empty")
	}

	if err := ConfusionHeatmap(cm, []string{"a"}, ActualLabels, path); err == nil {
		t.Error("label count mismatch should fail")
	}
}

func TestPlotLearningCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.png")
	err := PlotLearningCurves([]int{1, 2, 3}, map[string][]float64{
		"loss":     {0.7, 0.5, 0.4},
		"val_loss": {0.72, 0.55, 0.5},
	}, path)
	if err != nil {
		t.Fatalf("PlotLearningCurves() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}

	if err := PlotLearningCurves(nil, nil, path); err == nil {
		t.Error("empty history should fail")
	}
}
