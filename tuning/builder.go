package tuning

import (
	"github.com/YuminosukeSato/liverrisk/nn"
)

// BuildFunc creates a compiled network for one set of hyperparameters.
type BuildFunc func(hp HyperParameters, inputDim int, seed uint64) (*nn.Network, error)

// BuildLiverCancerNetwork builds
// Dense(units_1, relu) → Dropout(dropout) → Dense(units_2, relu) → Dense(1, sigmoid)
// compiled with Adam at the default learning rate.
func BuildLiverCancerNetwork(hp HyperParameters, inputDim int, seed uint64) (*nn.Network, error) {
	layers := []nn.Layer{
		nn.NewDense(hp.Int("units_1"), nn.ActivationReLU),
		nn.NewDropout(hp.Float("dropout")),
		nn.NewDense(hp.Int("units_2"), nn.ActivationReLU),
		nn.NewDense(1, nn.ActivationSigmoid),
	}
	net, err := nn.NewNetwork(inputDim, layers,
		nn.WithSeed(seed),
		nn.WithHyperparameters(hp),
	)
	if err != nil {
		return nil, err
	}
	net.Compile(nn.NewAdam(nn.DefaultLearningRate))
	return net, nil
}
