package nn

import "math"

// Adam optimizer defaults.
const (
	DefaultLearningRate = 0.001
	DefaultBeta1        = 0.9
	DefaultBeta2        = 0.999
	DefaultEpsilon      = 1e-7
)

// Adam implements the Adam update with bias-corrected step size.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	// Iterations counts the updates applied so far.
	Iterations int

	m, v [][]float64
}

// NewAdam returns an optimizer with the usual beta and epsilon values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        DefaultBeta1,
		Beta2:        DefaultBeta2,
		Epsilon:      DefaultEpsilon,
	}
}

// Step updates params in place from grads. The slot layout must not change
// between calls.
func (a *Adam) Step(params, grads [][]float64) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for k, p := range params {
			a.m[k] = make([]float64, len(p))
			a.v[k] = make([]float64, len(p))
		}
	}
	a.Iterations++
	t := float64(a.Iterations)
	alpha := a.LearningRate * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))

	for k, p := range params {
		m, v, g := a.m[k], a.v[k], grads[k]
		for i := range p {
			m[i] += (g[i] - m[i]) * (1 - a.Beta1)
			v[i] += (g[i]*g[i] - v[i]) * (1 - a.Beta2)
			p[i] -= alpha * m[i] / (math.Sqrt(v[i]) + a.Epsilon)
		}
	}
}

// reset drops the moment estimates.
func (a *Adam) reset() {
	a.m, a.v = nil, nil
	a.Iterations = 0
}
