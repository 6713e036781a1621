package model

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// WeightsVersion はModelWeightsのフォーマットバージョン
const WeightsVersion = "1"

// LayerWeights は1層分のアーキテクチャと重み
type LayerWeights struct {
	// Kind は "dense" または "dropout"
	Kind       string  `json:"kind"`
	Units      int     `json:"units,omitempty"`
	Activation string  `json:"activation,omitempty"`
	Rate       float64 `json:"rate,omitempty"`

	// Kernel は入力次元×Unitsの重み行列（行優先）
	Kernel [][]float64 `json:"kernel,omitempty"`
	Bias   []float64   `json:"bias,omitempty"`
}

// ModelWeights はモデルの重みを表す構造体（シリアライゼーション用）
type ModelWeights struct {
	// ModelType はモデルの種類（"Network"等）
	ModelType string `json:"model_type"`

	// Version はフォーマットのバージョン（互換性チェック用）
	Version string `json:"version"`

	// InputDim は入力特徴量の数
	InputDim int `json:"input_dim"`

	Layers []LayerWeights `json:"layers"`

	// Features は特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Hyperparameters は探索で選ばれたハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は追加のメタデータ（学習時の統計等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
//
// Dense層のカーネル形状が前の層の出力次元と一致することを確認する。
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.New("model_type is required")
	}
	if mw.Version != WeightsVersion {
		return errors.Newf("unsupported weights version %q", mw.Version)
	}
	if mw.InputDim <= 0 {
		return errors.NewValidationError("input_dim", "must be positive", mw.InputDim)
	}
	if len(mw.Layers) == 0 {
		return errors.New("model has no layers")
	}

	dim := mw.InputDim
	for i, l := range mw.Layers {
		switch l.Kind {
		case "dropout":
			if l.Rate < 0 || l.Rate >= 1 {
				return errors.Newf("layer %d: dropout rate %v out of [0, 1)", i, l.Rate)
			}
		case "dense":
			if l.Units <= 0 {
				return errors.Newf("layer %d: units must be positive", i)
			}
			if !mw.IsFitted {
				if len(l.Kernel) > 0 {
					return errors.Newf("layer %d: unfitted model should not have weights", i)
				}
				dim = l.Units
				continue
			}
			if len(l.Kernel) != dim {
				return errors.NewDimensionError("ModelWeights.Validate", dim, len(l.Kernel), 0)
			}
			for _, row := range l.Kernel {
				if len(row) != l.Units {
					return errors.NewDimensionError("ModelWeights.Validate", l.Units, len(row), 1)
				}
			}
			if len(l.Bias) != l.Units {
				return errors.Newf("layer %d: bias has %d values, want %d", i, len(l.Bias), l.Units)
			}
			dim = l.Units
		default:
			return errors.Newf("layer %d: unknown kind %q", i, l.Kind)
		}
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		InputDim:        mw.InputDim,
		IsFitted:        mw.IsFitted,
		Layers:          make([]LayerWeights, len(mw.Layers)),
		Features:        append([]string(nil), mw.Features...),
		Hyperparameters: make(map[string]interface{}, len(mw.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(mw.Metadata)),
	}
	for i, l := range mw.Layers {
		c := l
		c.Kernel = make([][]float64, len(l.Kernel))
		for j, row := range l.Kernel {
			c.Kernel[j] = append([]float64(nil), row...)
		}
		c.Bias = append([]float64(nil), l.Bias...)
		clone.Layers[i] = c
	}
	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}
	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SaveWeights はModelWeightsをJSONファイルとして保存する
func SaveWeights(mw *ModelWeights, filename string) error {
	data, err := mw.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", filename)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", filename)
	}
	return nil
}

// LoadWeights はJSONファイルからModelWeightsを読み込み、検証する
func LoadWeights(filename string) (*ModelWeights, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights")
	}
	var mw ModelWeights
	if err := mw.FromJSON(data); err != nil {
		return nil, errors.Wrap(err, "failed to decode weights")
	}
	if err := mw.Validate(); err != nil {
		return nil, err
	}
	return &mw, nil
}
