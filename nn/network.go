// Package nn implements the small dense feed-forward network used to score
// liver-cancer risk: sequential Dense and Dropout layers trained with Adam on
// binary cross-entropy.
package nn

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/core/parallel"
	"github.com/YuminosukeSato/liverrisk/metrics"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

const (
	// lossEps clips probabilities inside the cross-entropy.
	lossEps = 1e-7

	// DefaultBatchSize is the mini-batch size used when FitOptions leaves it unset.
	DefaultBatchSize = 32

	// DefaultSeed seeds weight initialisation, shuffling and dropout.
	DefaultSeed uint64 = 42

	// predictParallelThreshold 以下の行数では逐次に推論する
	predictParallelThreshold = 1024
)

// Network is a sequential stack of layers ending in a single output unit.
type Network struct {
	InputDim        int
	Layers          []Layer
	Optimizer       *Adam
	Hyperparameters map[string]interface{}
	Features        []string
	Metadata        map[string]interface{}
	State           *model.StateManager

	seed uint64
	rng  *rand.Rand
}

// Option configures a Network.
type Option func(*Network)

// WithSeed sets the random seed for initialisation and training.
func WithSeed(seed uint64) Option {
	return func(n *Network) { n.seed = seed }
}

// WithHyperparameters records the hyperparameters the network was built from.
func WithHyperparameters(hp map[string]interface{}) Option {
	return func(n *Network) {
		n.Hyperparameters = make(map[string]interface{}, len(hp))
		for k, v := range hp {
			n.Hyperparameters[k] = v
		}
	}
}

// WithFeatureNames records the names of the input columns.
func WithFeatureNames(names []string) Option {
	return func(n *Network) { n.Features = append([]string(nil), names...) }
}

// NewNetwork builds the layers for inputDim inputs. The last layer must
// produce a single output.
func NewNetwork(inputDim int, layers []Layer, opts ...Option) (*Network, error) {
	if inputDim <= 0 {
		return nil, errors.NewValidationError("input_dim", "must be positive", inputDim)
	}
	if len(layers) == 0 {
		return nil, errors.NewValidationError("layers", "at least one layer is required", 0)
	}

	n := &Network{
		InputDim:        inputDim,
		Layers:          layers,
		Optimizer:       NewAdam(DefaultLearningRate),
		Hyperparameters: map[string]interface{}{},
		Metadata:        map[string]interface{}{},
		State:           model.NewStateManager(),
		seed:            DefaultSeed,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.rng = rand.New(rand.NewPCG(n.seed, n.seed^0x9e3779b97f4a7c15))

	dim := inputDim
	for i, l := range layers {
		if err := l.build(dim, n.rng); err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		dim = l.outputDim(dim)
	}
	if dim != 1 {
		return nil, errors.NewValidationError("layers", "last layer must have a single unit", dim)
	}
	return n, nil
}

// Compile replaces the optimizer and clears its state.
func (n *Network) Compile(opt *Adam) {
	opt.reset()
	n.Optimizer = opt
}

// ValidationData is evaluated at the end of each epoch.
type ValidationData struct {
	X mat.Matrix
	Y []float64
}

// FitOptions controls a call to Fit.
type FitOptions struct {
	// Epochs is the index of the last epoch, exclusive.
	Epochs int
	// InitialEpoch lets a later Fit call continue where an earlier one stopped.
	InitialEpoch int
	BatchSize    int
	Shuffle      bool
	Validation   *ValidationData
	Callbacks    []Callback
}

// DefaultFitOptions trains for epochs epochs with shuffled batches of 32.
func DefaultFitOptions(epochs int) FitOptions {
	return FitOptions{Epochs: epochs, BatchSize: DefaultBatchSize, Shuffle: true}
}

// Fit trains the network on X and binary labels y.
//
// Each epoch records loss, accuracy and auc on the training batches and,
// when Validation is set, val_loss, val_accuracy and val_auc. Callbacks run
// after every epoch and may stop training early.
func (n *Network) Fit(ctx context.Context, X mat.Matrix, y []float64, opts FitOptions) (*History, error) {
	r, c := X.Dims()
	if r == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "Network.Fit")
	}
	if c != n.InputDim {
		return nil, errors.NewDimensionError("Network.Fit", n.InputDim, c, 1)
	}
	if len(y) != r {
		return nil, errors.NewDimensionError("Network.Fit", r, len(y), 0)
	}
	if err := checkLabels("Network.Fit", y); err != nil {
		return nil, err
	}
	if opts.Epochs <= opts.InitialEpoch {
		return nil, errors.NewValidationError("epochs", "must be greater than initial_epoch", opts.Epochs)
	}
	var val *mat.Dense
	if opts.Validation != nil {
		vr, vc := opts.Validation.X.Dims()
		if vc != n.InputDim {
			return nil, errors.NewDimensionError("Network.Fit", n.InputDim, vc, 1)
		}
		if len(opts.Validation.Y) != vr {
			return nil, errors.NewDimensionError("Network.Fit", vr, len(opts.Validation.Y), 0)
		}
		val = mat.DenseCopyOf(opts.Validation.X)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	xd := mat.DenseCopyOf(X)
	history := NewHistory()
	env := &CallbackEnv{Network: n}
	for _, cb := range opts.Callbacks {
		if b, ok := cb.(TrainBeginCallback); ok {
			b.OnTrainBegin(env)
		}
	}

	order := make([]int, r)
	for i := range order {
		order[i] = i
	}
	probs := make([]float64, r)
	labels := make([]float64, r)

	for epoch := opts.InitialEpoch; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, errors.Wrapf(err, "training cancelled at epoch %d", epoch)
		}
		if opts.Shuffle {
			n.rng.Shuffle(r, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		lossSum := 0.0
		for start := 0; start < r; start += batch {
			end := min(start+batch, r)
			idx := order[start:end]
			xb := gather(xd, idx)
			yb := make([]float64, len(idx))
			for i, k := range idx {
				yb[i] = y[k]
			}

			p, loss := n.trainStep(xb, yb)
			lossSum += loss * float64(len(idx))
			copy(probs[start:end], p)
			copy(labels[start:end], yb)
		}

		logs := map[string]float64{"loss": lossSum / float64(r)}
		if err := errors.CheckScalar("Network.Fit", logs["loss"], epoch); err != nil {
			return history, err
		}
		acc, auc, err := scores(labels, probs)
		if err != nil {
			return history, err
		}
		logs["accuracy"], logs["auc"] = acc, auc

		if val != nil {
			vl, va, vauc, err := n.evaluate(val, opts.Validation.Y)
			if err != nil {
				return history, err
			}
			logs["val_loss"], logs["val_accuracy"], logs["val_auc"] = vl, va, vauc
		}

		history.Append(epoch, logs)
		env.Epoch = epoch
		env.Logs = logs
		for _, cb := range opts.Callbacks {
			if err := cb.OnEpochEnd(env); err != nil {
				return history, errors.Wrapf(err, "callback failed at epoch %d", epoch)
			}
		}
		if env.StopTraining {
			break
		}
	}

	for _, cb := range opts.Callbacks {
		if e, ok := cb.(TrainEndCallback); ok {
			e.OnTrainEnd(env)
		}
	}
	n.State.SetFitted(c, r)
	return history, nil
}

// trainStep runs forward and backward passes over one batch and applies an
// optimizer update. It returns the batch predictions and loss computed
// before the update.
func (n *Network) trainStep(xb *mat.Dense, yb []float64) ([]float64, float64) {
	inputs := make([]*mat.Dense, len(n.Layers))
	outputs := make([]*mat.Dense, len(n.Layers))
	masks := make([]*mat.Dense, len(n.Layers))

	cur := xb
	for i, l := range n.Layers {
		inputs[i] = cur
		outputs[i], masks[i] = l.forward(cur, true, n.rng)
		cur = outputs[i]
	}

	b := len(yb)
	p := mat.Col(nil, 0, cur)
	loss := crossEntropy(yb, p)

	// 最終層がsigmoidのDenseならロジットに対する勾配 (p - y)/b を直接使う
	last := len(n.Layers) - 1
	var grad *mat.Dense
	if d, ok := n.Layers[last].(*Dense); ok && d.Activation == ActivationSigmoid {
		dz := mat.NewDense(b, 1, nil)
		for i := range yb {
			dz.Set(i, 0, (p[i]-yb[i])/float64(b))
		}
		grad = d.backwardZ(dz, inputs[last])
	} else {
		g := mat.NewDense(b, 1, nil)
		for i := range yb {
			pc := errors.ClipValue(p[i], lossEps, 1-lossEps)
			g.Set(i, 0, (-yb[i]/pc+(1-yb[i])/(1-pc))/float64(b))
		}
		grad = n.Layers[last].backward(g, inputs[last], outputs[last], masks[last])
	}
	for i := last - 1; i >= 0; i-- {
		grad = n.Layers[i].backward(grad, inputs[i], outputs[i], masks[i])
	}

	params, grads := n.slots()
	n.Optimizer.Step(params, grads)
	return p, loss
}

func (n *Network) slots() (params, grads [][]float64) {
	for _, l := range n.Layers {
		v, g := l.params()
		params = append(params, v...)
		grads = append(grads, g...)
	}
	return params, grads
}

func (n *Network) forwardInference(x *mat.Dense) *mat.Dense {
	cur := x
	for _, l := range n.Layers {
		cur, _ = l.forward(cur, false, nil)
	}
	return cur
}

// Predict returns the positive-class probability for each row of X as an
// n×1 matrix.
func (n *Network) Predict(X mat.Matrix) (*mat.Dense, error) {
	r, c := X.Dims()
	if r == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "Network.Predict")
	}
	if c != n.InputDim {
		return nil, errors.NewDimensionError("Network.Predict", n.InputDim, c, 1)
	}

	xd := mat.DenseCopyOf(X)
	out := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, predictParallelThreshold, func(start, end int) {
		p := n.forwardInference(xd.Slice(start, end, 0, c).(*mat.Dense))
		for i := 0; i < end-start; i++ {
			out.Set(start+i, 0, p.At(i, 0))
		}
	})
	return out, nil
}

var _ model.ProbabilityPredictor = (*Network)(nil)

// PredictProba is Predict.
func (n *Network) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	return n.Predict(X)
}

// Evaluate computes loss, accuracy and auc of the network on X and y.
func (n *Network) Evaluate(X mat.Matrix, y []float64) (map[string]float64, error) {
	r, c := X.Dims()
	if c != n.InputDim {
		return nil, errors.NewDimensionError("Network.Evaluate", n.InputDim, c, 1)
	}
	if len(y) != r {
		return nil, errors.NewDimensionError("Network.Evaluate", r, len(y), 0)
	}
	loss, acc, auc, err := n.evaluate(mat.DenseCopyOf(X), y)
	if err != nil {
		return nil, err
	}
	return map[string]float64{"loss": loss, "accuracy": acc, "auc": auc}, nil
}

func (n *Network) evaluate(x *mat.Dense, y []float64) (loss, acc, auc float64, err error) {
	out, err := n.Predict(x)
	if err != nil {
		return 0, 0, 0, err
	}
	p := mat.Col(nil, 0, out)
	acc, auc, err = scores(y, p)
	return crossEntropy(y, p), acc, auc, err
}

// Weights returns a copy of every trainable slot.
func (n *Network) Weights() [][]float64 {
	params, _ := n.slots()
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p...)
	}
	return out
}

// SetWeights copies ws into the trainable slots. ws must come from Weights
// on a network with the same architecture.
func (n *Network) SetWeights(ws [][]float64) error {
	params, _ := n.slots()
	if len(ws) != len(params) {
		return errors.NewDimensionError("Network.SetWeights", len(params), len(ws), 0)
	}
	for i := range params {
		if len(ws[i]) != len(params[i]) {
			return errors.NewDimensionError("Network.SetWeights", len(params[i]), len(ws[i]), 1)
		}
	}
	for i := range params {
		copy(params[i], ws[i])
	}
	return nil
}

// ParamCount returns the number of trainable parameters.
func (n *Network) ParamCount() int {
	params, _ := n.slots()
	total := 0
	for _, p := range params {
		total += len(p)
	}
	return total
}

// Summary describes the layers and their parameter counts.
func (n *Network) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-12s %8s\n", "Layer (type)", "Output", "Param #")
	dim := n.InputDim
	for i, l := range n.Layers {
		out := l.outputDim(dim)
		params, _ := l.params()
		count := 0
		for _, p := range params {
			count += len(p)
		}
		name := "dropout"
		if d, ok := l.(*Dense); ok {
			name = "dense_" + d.Activation
		}
		fmt.Fprintf(&b, "%-24s %-12s %8d\n", fmt.Sprintf("%s_%d", name, i), fmt.Sprintf("(None, %d)", out), count)
		dim = out
	}
	fmt.Fprintf(&b, "Total params: %d\n", n.ParamCount())
	return b.String()
}

func gather(x *mat.Dense, idx []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, k := range idx {
		out.SetRow(i, x.RawRowView(k))
	}
	return out
}

func crossEntropy(y, p []float64) float64 {
	sum := 0.0
	for i := range y {
		pc := errors.ClipValue(p[i], lossEps, 1-lossEps)
		sum -= y[i]*math.Log(pc) + (1-y[i])*math.Log(1-pc)
	}
	return sum / float64(len(y))
}

func scores(y, p []float64) (acc, auc float64, err error) {
	yTrue := mat.NewVecDense(len(y), append([]float64(nil), y...))
	prob := mat.NewVecDense(len(p), append([]float64(nil), p...))
	acc, err = metrics.Accuracy(yTrue, metrics.Threshold(prob, 0.5))
	if err != nil {
		return 0, 0, err
	}
	auc, err = metrics.AUC(yTrue, prob)
	return acc, auc, err
}

func checkLabels(op string, y []float64) error {
	for _, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v", v))
		}
	}
	return nil
}
