package model

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

type gobFixture struct {
	Name   string
	Means  []float64
	State  *StateManager
	Labels map[string]int
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	if s.IsFitted() {
		t.Fatal("new StateManager should not be fitted")
	}

	err := s.RequireFitted("StandardScaler", "Transform")
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Fatalf("RequireFitted() = %v, want NotFittedError", err)
	}

	s.SetFitted(4, 100)
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		t.Errorf("RequireFitted() after SetFitted = %v", err)
	}
	if f, n := s.Shape(); f != 4 || n != 100 {
		t.Errorf("Shape() = (%d, %d), want (4, 100)", f, n)
	}
	if err := s.RequireFeatures("StandardScaler.Transform", 3); err == nil {
		t.Error("RequireFeatures(3) should fail for a 4-feature model")
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset() should clear the fitted flag")
	}
}

func TestSaveLoadModelKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preprocessor.gob")

	in := gobFixture{
		Name:   "ColumnTransformer",
		Means:  []float64{55.2, 27.1},
		State:  NewStateManager(),
		Labels: map[string]int{"Female": 0, "Male": 1},
	}
	in.State.SetFitted(2, 1200)

	if err := SaveModel(&in, path); err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}

	var out gobFixture
	if err := LoadModel(&out, path); err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if out.Name != in.Name || len(out.Means) != 2 || out.Labels["Male"] != 1 {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.State == nil || !out.State.IsFitted() {
		t.Fatal("fitted state must survive gob encoding")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in the directory, found %d entries", len(entries))
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	var out gobFixture
	err := LoadModel(&out, filepath.Join(t.TempDir(), "missing.gob"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadModel() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadModelFromReaderGarbage(t *testing.T) {
	var out gobFixture
	if err := LoadModelFromReader(&out, bytes.NewBufferString("not gob")); err == nil {
		t.Error("expected decode error")
	}
}

func fittedWeights() *ModelWeights {
	return &ModelWeights{
		ModelType: "Network",
		Version:   WeightsVersion,
		InputDim:  2,
		IsFitted:  true,
		Layers: []LayerWeights{
			{Kind: "dense", Units: 3, Activation: "relu",
				Kernel: [][]float64{{1, 2, 3}, {4, 5, 6}}, Bias: []float64{0, 0, 0}},
			{Kind: "dropout", Rate: 0.2},
			{Kind: "dense", Units: 1, Activation: "sigmoid",
				Kernel: [][]float64{{1}, {1}, {1}}, Bias: []float64{0.5}},
		},
		Hyperparameters: map[string]interface{}{"units_1": 3},
	}
}

func TestModelWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ModelWeights)
		wantErr bool
	}{
		{"valid", func(*ModelWeights) {}, false},
		{"missing type", func(w *ModelWeights) { w.ModelType = "" }, true},
		{"bad version", func(w *ModelWeights) { w.Version = "0" }, true},
		{"no layers", func(w *ModelWeights) { w.Layers = nil }, true},
		{"kernel rows", func(w *ModelWeights) { w.Layers[2].Kernel = w.Layers[2].Kernel[:2] }, true},
		{"kernel cols", func(w *ModelWeights) { w.Layers[0].Kernel[1] = []float64{1} }, true},
		{"bias", func(w *ModelWeights) { w.Layers[2].Bias = nil }, true},
		{"dropout rate", func(w *ModelWeights) { w.Layers[1].Rate = 1 }, true},
		{"unknown kind", func(w *ModelWeights) { w.Layers[1].Kind = "conv" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fittedWeights()
			tt.mutate(w)
			if err := w.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelWeightsCloneIsDeep(t *testing.T) {
	w := fittedWeights()
	c := w.Clone()
	c.Layers[0].Kernel[0][0] = 99
	c.Hyperparameters["units_1"] = 64
	if w.Layers[0].Kernel[0][0] != 1 {
		t.Error("Clone() shares kernel storage")
	}
	if w.Hyperparameters["units_1"] != 3 {
		t.Error("Clone() shares hyperparameter map")
	}
}

func TestSaveLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best_model.json")
	if err := SaveWeights(fittedWeights(), path); err != nil {
		t.Fatalf("SaveWeights() error = %v", err)
	}
	got, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights() error = %v", err)
	}
	if got.Layers[2].Bias[0] != 0.5 {
		t.Errorf("bias = %v, want 0.5", got.Layers[2].Bias[0])
	}
	// JSON numbers decode as float64
	if got.Hyperparameters["units_1"] != 3.0 {
		t.Errorf("units_1 = %v", got.Hyperparameters["units_1"])
	}
}
