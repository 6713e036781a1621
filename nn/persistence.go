package nn

import (
	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// modelType identifies a Network in ModelWeights.
const modelType = "Network"

// ToModelWeights exports the architecture, weights and hyperparameters.
func (n *Network) ToModelWeights() *model.ModelWeights {
	mw := &model.ModelWeights{
		ModelType:       modelType,
		Version:         model.WeightsVersion,
		InputDim:        n.InputDim,
		Layers:          make([]model.LayerWeights, len(n.Layers)),
		Features:        append([]string(nil), n.Features...),
		Hyperparameters: make(map[string]interface{}, len(n.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(n.Metadata)),
		IsFitted:        true,
	}
	for i, l := range n.Layers {
		mw.Layers[i] = l.export()
	}
	for k, v := range n.Hyperparameters {
		mw.Hyperparameters[k] = v
	}
	for k, v := range n.Metadata {
		mw.Metadata[k] = v
	}
	return mw
}

// FromModelWeights rebuilds a Network from exported weights. opts are
// applied after the stored hyperparameters and feature names.
func FromModelWeights(mw *model.ModelWeights, opts ...Option) (*Network, error) {
	if err := mw.Validate(); err != nil {
		return nil, err
	}
	if mw.ModelType != modelType {
		return nil, errors.Newf("unexpected model type %q", mw.ModelType)
	}
	if !mw.IsFitted {
		return nil, errors.NewNotFittedError(modelType, "FromModelWeights")
	}

	layers := make([]Layer, len(mw.Layers))
	for i, lw := range mw.Layers {
		switch lw.Kind {
		case "dense":
			layers[i] = NewDense(lw.Units, lw.Activation)
		case "dropout":
			layers[i] = NewDropout(lw.Rate)
		}
	}
	base := []Option{
		WithHyperparameters(mw.Hyperparameters),
		WithFeatureNames(mw.Features),
	}
	n, err := NewNetwork(mw.InputDim, layers, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	for i, lw := range mw.Layers {
		d, ok := n.Layers[i].(*Dense)
		if !ok {
			continue
		}
		in := len(lw.Kernel)
		for r := 0; r < in; r++ {
			d.W.SetRow(r, lw.Kernel[r])
		}
		copy(d.B, lw.Bias)
	}
	for k, v := range mw.Metadata {
		n.Metadata[k] = v
	}
	n.State.SetFitted(mw.InputDim, 0)
	return n, nil
}

// Save writes the network as JSON ModelWeights.
func (n *Network) Save(path string) error {
	if err := n.State.RequireFitted(modelType, "Save"); err != nil {
		return err
	}
	return model.SaveWeights(n.ToModelWeights(), path)
}

// Load reads a network written by Save.
func Load(path string) (*Network, error) {
	mw, err := model.LoadWeights(path)
	if err != nil {
		return nil, err
	}
	return FromModelWeights(mw)
}

// Clone returns an independent copy with the same weights and a fresh
// optimizer. The copy keeps the seed unless opts override it.
func (n *Network) Clone(opts ...Option) (*Network, error) {
	return FromModelWeights(n.ToModelWeights(), append([]Option{WithSeed(n.seed)}, opts...)...)
}
