package tuning

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/liverrisk/nn"
)

// TrialStatus is the lifecycle state of a trial.
type TrialStatus string

const (
	TrialRunning   TrialStatus = "RUNNING"
	TrialCompleted TrialStatus = "COMPLETED"
	TrialFailed    TrialStatus = "FAILED"
)

// Trial is one training run. Promoted trials keep a reference to the trial
// whose checkpoint they resume from.
type Trial struct {
	ID              string             `json:"trial_id"`
	ParentID        string             `json:"parent_id,omitempty"`
	Order           int                `json:"order"`
	Hyperparameters HyperParameters    `json:"hyperparameters"`
	Iteration       int                `json:"iteration"`
	Bracket         int                `json:"bracket"`
	Round           int                `json:"round"`
	InitialEpoch    int                `json:"initial_epoch"`
	Epochs          int                `json:"epochs"`
	Seed            uint64             `json:"seed"`
	Status          TrialStatus        `json:"status"`
	Score           float64            `json:"score"`
	BestEpoch       int                `json:"best_epoch"`
	BestMetrics     map[string]float64 `json:"best_metrics,omitempty"`
	History         *nn.History        `json:"history,omitempty"`
	Error           string             `json:"error,omitempty"`
	DurationMs      int64              `json:"duration_ms"`

	network *nn.Network
}

// Network returns the checkpointed network of a completed trial.
func (t *Trial) Network() *nn.Network { return t.network }

// metricsAt returns every metric of the history at the given epoch.
func metricsAt(h *nn.History, epoch int) map[string]float64 {
	out := map[string]float64{}
	for i, e := range h.Epoch {
		if e != epoch {
			continue
		}
		for k, vs := range h.Metrics {
			if i < len(vs) {
				out[k] = vs[i]
			}
		}
	}
	return out
}

// better reports whether a ranks above b for the objective direction.
// Equal scores keep creation order.
func better(a, b *Trial, maximize bool) bool {
	if a.Score != b.Score && !math.IsNaN(a.Score) && !math.IsNaN(b.Score) {
		if maximize {
			return a.Score > b.Score
		}
		return a.Score < b.Score
	}
	return a.Order < b.Order
}

// rank returns the completed trials, best first.
func rank(trials []*Trial, maximize bool) []*Trial {
	out := make([]*Trial, 0, len(trials))
	for _, t := range trials {
		if t.Status == TrialCompleted {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j], maximize) })
	return out
}

// topK returns at most k of the best completed trials.
func topK(trials []*Trial, k int, maximize bool) []*Trial {
	ranked := rank(trials, maximize)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// checkpoint keeps the weights of the epoch with the best objective.
type checkpoint struct {
	objective string
	maximize  bool
	best      float64
	weights   [][]float64
}

func (c *checkpoint) OnEpochEnd(env *nn.CallbackEnv) error {
	v, ok := env.Logs[c.objective]
	if !ok {
		return nil
	}
	if c.weights == nil || (c.maximize && v > c.best) || (!c.maximize && v < c.best) {
		c.best = v
		c.weights = env.Network.Weights()
	}
	return nil
}
