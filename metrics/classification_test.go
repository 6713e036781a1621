package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

func vec(v ...float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

// riskLabels / riskScores は評価ステージでよくある形: 陽性が少なく、スコアが一部重なる
var (
	riskLabels = []float64{0, 0, 0, 0, 0, 0, 1, 1, 1, 0}
	riskScores = []float64{0.05, 0.12, 0.30, 0.41, 0.08, 0.66, 0.91, 0.58, 0.66, 0.22}
)

func TestAUC(t *testing.T) {
	tests := []struct {
		name   string
		yTrue  []float64
		yScore []float64
		want   float64
	}{
		{"separated", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []float64{0, 0, 1, 1}, []float64{0.9, 0.8, 0.2, 0.1}, 0},
		{"constant score", []float64{1, 0, 1, 0}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"one swap", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		// 7 negatives x 3 positives; 0.58 loses to 0.66, the tie at 0.66 counts half
		{"imbalanced with tie", riskLabels, riskScores, (7 + 6 + 6.5) / 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue...), vec(tt.yScore...))
			if err != nil {
				t.Fatalf("AUC() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUCMatrixUsesFirstColumn(t *testing.T) {
	yTrue := mat.NewDense(len(riskLabels), 1, riskLabels)
	yScore := mat.NewDense(len(riskScores), 1, riskScores)

	got, err := AUCMatrix(yTrue, yScore)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := AUC(vec(riskLabels...), vec(riskScores...))
	if got != want {
		t.Errorf("AUCMatrix() = %v, AUC() = %v", got, want)
	}

	if _, err := AUCMatrix(yTrue, mat.NewDense(3, 1, nil)); err == nil {
		t.Error("expected error for row mismatch")
	}
	if _, err := AUCMatrix(nil, yScore); err == nil {
		t.Error("expected error for nil matrix")
	}
}

func TestAccuracyAndError(t *testing.T) {
	yTrue := vec(riskLabels...)
	yPred := Threshold(vec(riskScores...), 0.5)

	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	// 0.66 の陰性が1件だけ誤分類
	if acc != 0.9 {
		t.Errorf("Accuracy() = %v, want 0.9", acc)
	}

	cerr, err := ClassificationError(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(cerr-0.1) > 1e-12 {
		t.Errorf("ClassificationError() = %v, want 0.1", cerr)
	}
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yProb []float64
		want  float64
		tol   float64
	}{
		{"confident and right", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, (-2*math.Log(0.9) - 2*math.Log(0.8)) / 4, 1e-12},
		{"confident and wrong", []float64{0, 1}, []float64{0.9, 0.1}, -math.Log(0.1), 1e-12},
		{"clipped at the bounds", []float64{0, 1}, []float64{0, 1}, 0, 1e-12},
		{"hard miss is finite", []float64{1}, []float64{0}, -math.Log(logLossEps), 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(vec(tt.yTrue...), vec(tt.yProb...))
			if err != nil {
				t.Fatalf("BinaryLogLoss() error = %v", err)
			}
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("BinaryLogLoss() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInputValidation(t *testing.T) {
	funcs := map[string]func(a, b *mat.VecDense) (float64, error){
		"Accuracy":            Accuracy,
		"ClassificationError": ClassificationError,
		"AUC":                 AUC,
		"BinaryLogLoss":       BinaryLogLoss,
	}
	inputs := []struct {
		name       string
		yTrue      *mat.VecDense
		yPred      *mat.VecDense
		onlyLabels bool // Accuracy は任意の値を比較できる
	}{
		{name: "nil", yTrue: nil, yPred: vec(0.5)},
		{name: "length mismatch", yTrue: vec(0, 1), yPred: vec(0.5)},
		{name: "non-binary labels", yTrue: vec(0, 0.5, 1), yPred: vec(0.1, 0.5, 0.9), onlyLabels: true},
	}

	for fname, fn := range funcs {
		for _, in := range inputs {
			if in.onlyLabels && (fname == "Accuracy" || fname == "ClassificationError") {
				continue
			}
			t.Run(fname+"/"+in.name, func(t *testing.T) {
				if _, err := fn(in.yTrue, in.yPred); err == nil {
					t.Errorf("%s() expected error", fname)
				}
			})
		}
	}

	var dimErr *errors.DimensionError
	if _, err := AUC(vec(0, 1), vec(0.5)); !errors.As(err, &dimErr) {
		t.Errorf("AUC() length mismatch should be a DimensionError, got %v", err)
	}
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(error) {})

	for _, label := range []float64{0, 1} {
		got, err := AUC(vec(label, label, label), vec(0.2, 0.5, 0.9))
		if err != nil {
			t.Fatal(err)
		}
		if got != 0.5 {
			t.Errorf("AUC() with only class %v = %v, want 0.5", label, got)
		}
	}

	if len(warned) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(warned))
	}
	var umw *errors.UndefinedMetricWarning
	if !errors.As(warned[0], &umw) || umw.Metric != "roc_auc" {
		t.Errorf("expected roc_auc UndefinedMetricWarning, got %v", warned[0])
	}
}

func TestThreshold(t *testing.T) {
	got := Threshold(vec(0.2, 0.5, 0.51, 0.99), 0.5)
	want := []float64{0, 0, 1, 1}
	for i, w := range want {
		if got.AtVec(i) != w {
			t.Errorf("Threshold()[%d] = %v, want %v (strictly greater than 0.5)", i, got.AtVec(i), w)
		}
	}
}
