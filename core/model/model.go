// Package model holds what the transformers and the network share: the
// matrix interfaces, fit bookkeeping that survives gob encoding, the weight
// exchange format and atomic artifact persistence.
package model

import "gonum.org/v1/gonum/mat"

// Transformer は数値行列を学習・変換する前処理ステップ
// (SimpleImputer, StandardScaler)。
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// ProbabilityPredictor returns the positive-class probability of every row
// as an n×1 matrix.
type ProbabilityPredictor interface {
	PredictProba(X mat.Matrix) (*mat.Dense, error)
}

// FeatureNamer exposes the column names of a transformer's output.
type FeatureNamer interface {
	FeatureNamesOut() []string
}
