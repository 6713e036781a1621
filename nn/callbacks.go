package nn

import (
	"math"
	"strings"
	"time"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
)

// CallbackEnv is handed to callbacks at the end of each epoch.
type CallbackEnv struct {
	Network *Network
	Epoch   int
	Logs    map[string]float64
	// StopTraining ends Fit after the current epoch when set by a callback.
	StopTraining bool
}

// Callback is invoked after every epoch.
type Callback interface {
	OnEpochEnd(env *CallbackEnv) error
}

// TrainBeginCallback is implemented by callbacks that reset state when Fit starts.
type TrainBeginCallback interface {
	OnTrainBegin(env *CallbackEnv)
}

// TrainEndCallback is implemented by callbacks that act once Fit finishes.
type TrainEndCallback interface {
	OnTrainEnd(env *CallbackEnv)
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(env *CallbackEnv) error

// OnEpochEnd calls f(env).
func (f CallbackFunc) OnEpochEnd(env *CallbackEnv) error { return f(env) }

// History holds the metrics of every completed epoch.
type History struct {
	Epoch   []int
	Metrics map[string][]float64
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{Metrics: map[string][]float64{}}
}

// Append records the logs of one epoch.
func (h *History) Append(epoch int, logs map[string]float64) {
	h.Epoch = append(h.Epoch, epoch)
	for k, v := range logs {
		h.Metrics[k] = append(h.Metrics[k], v)
	}
}

// Len returns the number of recorded epochs.
func (h *History) Len() int { return len(h.Epoch) }

// Last returns the most recent value of metric.
func (h *History) Last(metric string) (float64, bool) {
	vs := h.Metrics[metric]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

// Best returns the best value of metric and the epoch it was reached at.
// Ties keep the earliest epoch.
func (h *History) Best(metric string, maximize bool) (value float64, epoch int, ok bool) {
	vs := h.Metrics[metric]
	for i, v := range vs {
		if !ok || (maximize && v > value) || (!maximize && v < value) {
			value, epoch, ok = v, h.Epoch[i], true
		}
	}
	return value, epoch, ok
}

// Merge appends the epochs of other.
func (h *History) Merge(other *History) {
	if other == nil {
		return
	}
	for i, e := range other.Epoch {
		logs := make(map[string]float64, len(other.Metrics))
		for k, vs := range other.Metrics {
			if i < len(vs) {
				logs[k] = vs[i]
			}
		}
		h.Append(e, logs)
	}
}

// Monitor modes for EarlyStopping.
const (
	ModeAuto = "auto"
	ModeMin  = "min"
	ModeMax  = "max"
)

// EarlyStopping stops training when the monitored metric has not improved
// for Patience epochs.
//
// A value improves on the best one when it is lower by more than MinDelta
// (min mode) or higher by more than MinDelta (max mode). In auto mode,
// metrics containing "acc" or "auc" are maximised and everything else is
// minimised. With RestoreBestWeights, the weights of the best epoch are put
// back when training ends.
type EarlyStopping struct {
	Monitor            string
	Patience           int
	MinDelta           float64
	Mode               string
	RestoreBestWeights bool

	Best         float64
	BestEpoch    int
	StoppedEpoch int

	wait        int
	maximize    bool
	bestWeights [][]float64
	logger      log.Logger
}

// NewEarlyStopping monitors the given metric in auto mode.
func NewEarlyStopping(monitor string, patience int, restoreBestWeights bool) *EarlyStopping {
	return &EarlyStopping{
		Monitor:            monitor,
		Patience:           patience,
		Mode:               ModeAuto,
		RestoreBestWeights: restoreBestWeights,
		logger:             log.Nop(),
	}
}

// WithLogger reports stops and restores to l.
func (e *EarlyStopping) WithLogger(l log.Logger) *EarlyStopping {
	e.logger = l
	return e
}

// OnTrainBegin resets the state so the callback can be reused across Fit calls.
func (e *EarlyStopping) OnTrainBegin(*CallbackEnv) {
	switch e.Mode {
	case ModeMax:
		e.maximize = true
	case ModeMin:
		e.maximize = false
	default:
		m := strings.ToLower(e.Monitor)
		e.maximize = strings.Contains(m, "acc") || strings.Contains(m, "auc")
	}
	e.Best = math.Inf(1)
	if e.maximize {
		e.Best = math.Inf(-1)
	}
	e.BestEpoch = 0
	e.StoppedEpoch = 0
	e.wait = 0
	e.bestWeights = nil
	if e.logger == nil {
		e.logger = log.Nop()
	}
}

func (e *EarlyStopping) improved(v float64) bool {
	if e.maximize {
		return v-math.Abs(e.MinDelta) > e.Best
	}
	return v+math.Abs(e.MinDelta) < e.Best
}

// OnEpochEnd updates the best value and requests a stop once patience runs out.
func (e *EarlyStopping) OnEpochEnd(env *CallbackEnv) error {
	v, ok := env.Logs[e.Monitor]
	if !ok {
		return errors.NewValueError("EarlyStopping", "metric "+e.Monitor+" is not available")
	}
	e.wait++
	if e.improved(v) {
		e.Best = v
		e.BestEpoch = env.Epoch
		e.wait = 0
		if e.RestoreBestWeights {
			e.bestWeights = env.Network.Weights()
		}
		return nil
	}
	if e.wait >= e.Patience && env.Epoch > 0 {
		e.StoppedEpoch = env.Epoch
		env.StopTraining = true
		e.logger.Info("early stopping",
			log.EpochKey, env.Epoch,
			"monitor", e.Monitor,
			"best", e.Best,
			"best_epoch", e.BestEpoch,
		)
	}
	return nil
}

// OnTrainEnd restores the best weights when requested.
func (e *EarlyStopping) OnTrainEnd(env *CallbackEnv) {
	if !e.RestoreBestWeights || e.bestWeights == nil {
		return
	}
	if err := env.Network.SetWeights(e.bestWeights); err != nil {
		e.logger.Error("restore best weights", log.ErrAttrKey, err)
		return
	}
	e.logger.Debug("restored best weights", log.EpochKey, e.BestEpoch)
}

// RecordHistory appends every epoch to dst.
func RecordHistory(dst *History) Callback {
	return CallbackFunc(func(env *CallbackEnv) error {
		dst.Append(env.Epoch, env.Logs)
		return nil
	})
}

// LogProgress logs the epoch metrics every period epochs.
func LogProgress(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return CallbackFunc(func(env *CallbackEnv) error {
		if (env.Epoch+1)%period != 0 {
			return nil
		}
		fields := []any{log.EpochKey, env.Epoch + 1}
		for _, k := range []struct{ metric, key string }{
			{"loss", log.LossKey},
			{"accuracy", log.AccuracyKey},
			{"auc", log.AUCKey},
			{"val_loss", log.ValLossKey},
			{"val_accuracy", log.ValAccuracyKey},
			{"val_auc", log.ValAUCKey},
		} {
			if v, ok := env.Logs[k.metric]; ok {
				fields = append(fields, k.key, v)
			}
		}
		logger.Debug("epoch finished", fields...)
		return nil
	})
}

// TimeLimit stops training after the epoch during which MaxDuration has
// elapsed since Fit started. The epoch in progress always completes.
type TimeLimit struct {
	MaxDuration time.Duration

	now   func() time.Time
	start time.Time
}

// NewTimeLimit creates a TimeLimit. A non-positive d never stops training.
func NewTimeLimit(d time.Duration) *TimeLimit {
	return &TimeLimit{MaxDuration: d, now: time.Now}
}

func (tl *TimeLimit) clock() time.Time {
	if tl.now == nil {
		return time.Now()
	}
	return tl.now()
}

// OnTrainBegin starts the clock.
func (tl *TimeLimit) OnTrainBegin(*CallbackEnv) {
	tl.start = tl.clock()
}

// OnEpochEnd sets StopTraining once the budget is spent.
func (tl *TimeLimit) OnEpochEnd(env *CallbackEnv) error {
	if tl.MaxDuration <= 0 {
		return nil
	}
	if tl.start.IsZero() {
		tl.start = tl.clock()
	}
	if tl.clock().Sub(tl.start) >= tl.MaxDuration {
		env.StopTraining = true
	}
	return nil
}
