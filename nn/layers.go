package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// Activation names accepted by Dense.
const (
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationLinear  = "linear"
)

// Layer is one step of a Network. Implementations live in this package.
type Layer interface {
	outputDim(in int) int
	build(in int, rng *rand.Rand) error
	// forward returns the layer output and, for layers that need one, the
	// mask used during training.
	forward(x *mat.Dense, training bool, rng *rand.Rand) (out, mask *mat.Dense)
	backward(grad, x, out, mask *mat.Dense) *mat.Dense
	params() (values, grads [][]float64)
	export() model.LayerWeights
}

// Dense is a fully connected layer: out = activation(x·W + b).
// W is initialised Glorot-uniform and b with zeros.
type Dense struct {
	Units      int
	Activation string

	W *mat.Dense
	B []float64

	dW *mat.Dense
	dB []float64
}

// NewDense creates a dense layer. The weights are allocated when the
// network is built.
func NewDense(units int, activation string) *Dense {
	return &Dense{Units: units, Activation: activation}
}

func (d *Dense) outputDim(int) int { return d.Units }

func (d *Dense) build(in int, rng *rand.Rand) error {
	if d.Units <= 0 {
		return errors.NewValidationError("units", "must be positive", d.Units)
	}
	switch d.Activation {
	case ActivationReLU, ActivationSigmoid, ActivationLinear:
	default:
		return errors.NewValidationError("activation", "must be relu, sigmoid or linear", d.Activation)
	}

	limit := math.Sqrt(6 / float64(in+d.Units))
	data := make([]float64, in*d.Units)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	d.W = mat.NewDense(in, d.Units, data)
	d.B = make([]float64, d.Units)
	d.dW = mat.NewDense(in, d.Units, nil)
	d.dB = make([]float64, d.Units)
	return nil
}

func (d *Dense) forward(x *mat.Dense, _ bool, _ *rand.Rand) (*mat.Dense, *mat.Dense) {
	r, _ := x.Dims()
	out := mat.NewDense(r, d.Units, nil)
	out.Mul(x, d.W)
	out.Apply(func(_, j int, v float64) float64 {
		return activate(d.Activation, v+d.B[j])
	}, out)
	return out, nil
}

func (d *Dense) backward(grad, x, out, _ *mat.Dense) *mat.Dense {
	r, _ := grad.Dims()
	dz := mat.NewDense(r, d.Units, nil)
	dz.Apply(func(i, j int, g float64) float64 {
		return g * derivative(d.Activation, out.At(i, j))
	}, grad)
	return d.backwardZ(dz, x)
}

// backwardZ propagates a gradient taken with respect to the pre-activation.
func (d *Dense) backwardZ(dz, x *mat.Dense) *mat.Dense {
	d.dW.Mul(x.T(), dz)
	for j := range d.dB {
		d.dB[j] = mat.Sum(dz.ColView(j))
	}
	r, _ := dz.Dims()
	in, _ := d.W.Dims()
	dx := mat.NewDense(r, in, nil)
	dx.Mul(dz, d.W.T())
	return dx
}

func (d *Dense) params() (values, grads [][]float64) {
	return [][]float64{d.W.RawMatrix().Data, d.B}, [][]float64{d.dW.RawMatrix().Data, d.dB}
}

func (d *Dense) export() model.LayerWeights {
	in, _ := d.W.Dims()
	kernel := make([][]float64, in)
	for i := range kernel {
		kernel[i] = mat.Row(nil, i, d.W)
	}
	return model.LayerWeights{
		Kind:       "dense",
		Units:      d.Units,
		Activation: d.Activation,
		Kernel:     kernel,
		Bias:       append([]float64(nil), d.B...),
	}
}

// Dropout zeroes a fraction Rate of its inputs during training and scales
// the rest by 1/(1-Rate). At inference it is the identity.
type Dropout struct {
	Rate float64
}

// NewDropout creates a dropout layer.
func NewDropout(rate float64) *Dropout {
	return &Dropout{Rate: rate}
}

func (d *Dropout) outputDim(in int) int { return in }

func (d *Dropout) build(int, *rand.Rand) error {
	if d.Rate < 0 || d.Rate >= 1 {
		return errors.NewValidationError("rate", "must be in [0, 1)", d.Rate)
	}
	return nil
}

func (d *Dropout) forward(x *mat.Dense, training bool, rng *rand.Rand) (*mat.Dense, *mat.Dense) {
	if !training || d.Rate == 0 {
		return x, nil
	}
	r, c := x.Dims()
	keep := 1 - d.Rate
	mask := mat.NewDense(r, c, nil)
	mask.Apply(func(_, _ int, _ float64) float64 {
		if rng.Float64() < keep {
			return 1 / keep
		}
		return 0
	}, mask)
	out := mat.NewDense(r, c, nil)
	out.MulElem(x, mask)
	return out, mask
}

func (d *Dropout) backward(grad, _, _, mask *mat.Dense) *mat.Dense {
	if mask == nil {
		return grad
	}
	r, c := grad.Dims()
	dx := mat.NewDense(r, c, nil)
	dx.MulElem(grad, mask)
	return dx
}

func (d *Dropout) params() (values, grads [][]float64) { return nil, nil }

func (d *Dropout) export() model.LayerWeights {
	return model.LayerWeights{Kind: "dropout", Rate: d.Rate}
}

func activate(name string, v float64) float64 {
	switch name {
	case ActivationReLU:
		return math.Max(0, v)
	case ActivationSigmoid:
		return errors.Sigmoid(v)
	default:
		return v
	}
}

// derivative is expressed in terms of the activation output.
func derivative(name string, out float64) float64 {
	switch name {
	case ActivationReLU:
		if out > 0 {
			return 1
		}
		return 0
	case ActivationSigmoid:
		return out * (1 - out)
	default:
		return 1
	}
}
