package tuning

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/nn"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
)

// Objective directions.
const (
	DirectionMax = "max"
	DirectionMin = "min"
)

// ErrSpaceExhausted is returned by sampling when no unseen combination was
// found within MaxCollisions attempts.
var ErrSpaceExhausted = errors.New("search space exhausted")

// Config controls a Hyperband search.
type Config struct {
	Objective           string
	Direction           string
	MaxEpochs           int
	MinEpochs           int
	Factor              int
	HyperbandIterations int
	BatchSize           int
	Seed                uint64
	MaxCollisions       int
	// Parallelism bounds how many trials of a round train at once.
	Parallelism int

	// Directory and ProjectName locate the stored search. Empty Directory
	// keeps everything in memory.
	Directory   string
	ProjectName string
	// Overwrite discards a stored search. Without it a completed stored
	// search is reloaded instead of run again.
	Overwrite bool
}

// DefaultConfig returns the search settings used by the train stage.
func DefaultConfig() Config {
	return Config{
		Objective:           "val_auc",
		Direction:           DirectionMax,
		MaxEpochs:           30,
		MinEpochs:           1,
		Factor:              3,
		HyperbandIterations: 1,
		BatchSize:           nn.DefaultBatchSize,
		Seed:                42,
		MaxCollisions:       20,
		Parallelism:         1,
		Directory:           "tuner_results",
		ProjectName:         "liver_cancer_tuning",
		Overwrite:           true,
	}
}

// Validate rejects configurations Hyperband cannot schedule.
func (c Config) Validate() error {
	if c.Objective == "" {
		return errors.NewValidationError("objective", "must not be empty", c.Objective)
	}
	if c.Direction != DirectionMax && c.Direction != DirectionMin {
		return errors.NewValidationError("direction", "must be max or min", c.Direction)
	}
	if c.MaxEpochs < 1 {
		return errors.NewValidationError("max_epochs", "must be at least 1", c.MaxEpochs)
	}
	if c.MinEpochs < 1 || c.MinEpochs > c.MaxEpochs {
		return errors.NewValidationError("min_epochs", "must be in [1, max_epochs]", c.MinEpochs)
	}
	if c.Factor < 2 {
		return errors.NewValidationError("factor", "must be at least 2", c.Factor)
	}
	if c.HyperbandIterations < 1 {
		return errors.NewValidationError("hyperband_iterations", "must be at least 1", c.HyperbandIterations)
	}
	if c.Directory != "" && c.ProjectName == "" {
		return errors.NewValidationError("project_name", "required when directory is set", c.ProjectName)
	}
	return nil
}

// Tuner runs a Hyperband search over a Space.
type Tuner struct {
	cfg       Config
	space     *Space
	build     BuildFunc
	logger    log.Logger
	callbacks func() []nn.Callback
	store     *Store

	rng    *rand.Rand
	seen   map[string]bool
	trials []*Trial
}

// Option configures a Tuner.
type Option func(*Tuner)

// WithLogger sets the logger for search progress.
func WithLogger(l log.Logger) Option {
	return func(t *Tuner) { t.logger = l }
}

// WithCallbacks sets a factory for the callbacks of each trial. It is called
// once per trial so that stateful callbacks are not shared.
func WithCallbacks(factory func() []nn.Callback) Option {
	return func(t *Tuner) { t.callbacks = factory }
}

// NewTuner creates a tuner.
func NewTuner(space *Space, build BuildFunc, cfg Config, opts ...Option) (*Tuner, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if build == nil {
		return nil, errors.NewValidationError("build", "must not be nil", nil)
	}
	if cfg.MaxCollisions <= 0 {
		cfg.MaxCollisions = 20
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	t := &Tuner{
		cfg:       cfg,
		space:     space,
		build:     build,
		logger:    log.Nop(),
		callbacks: func() []nn.Callback { return nil },
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		seen:      map[string]bool{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.ComponentKey, "tuning", log.ModelNameKey, "Hyperband")
	if cfg.Directory != "" {
		t.store = NewStore(cfg.Directory, cfg.ProjectName)
	}
	return t, nil
}

func (t *Tuner) maximize() bool { return t.cfg.Direction == DirectionMax }

// Result is the outcome of a search.
type Result struct {
	// Trials holds the completed trials, best first.
	Trials []*Trial
	Best   *Trial
}

// BestHyperparameters returns the hyperparameters of the best trial.
func (r *Result) BestHyperparameters() HyperParameters {
	return r.Best.Hyperparameters.Clone()
}

// BestModel returns the checkpointed network of the best trial.
func (r *Result) BestModel() *nn.Network {
	return r.Best.network
}

// Summary renders the top k trials as a table.
func (r *Result) Summary(k int, space *Space) string {
	var b strings.Builder
	names := make([]string, 0, len(space.Params()))
	for _, p := range space.Params() {
		names = append(names, p.Name)
	}
	fmt.Fprintf(&b, "%-4s %-36s %-8s %-6s %-8s %s\n", "rank", "trial", "bracket", "epochs", "score", strings.Join(names, " "))
	for i, tr := range r.Trials {
		if i >= k {
			break
		}
		vals := make([]string, len(names))
		for j, n := range names {
			vals[j] = fmt.Sprintf("%v", tr.Hyperparameters[n])
		}
		fmt.Fprintf(&b, "%-4d %-36s %-8d %-6d %-8.4f %s\n", i+1, tr.ID, tr.Bracket, tr.Epochs, tr.Score, strings.Join(vals, " "))
	}
	return b.String()
}

// sample draws an unseen combination.
func (t *Tuner) sample() (HyperParameters, error) {
	for collisions := 0; collisions <= t.cfg.MaxCollisions; collisions++ {
		hp := t.space.Sample(t.rng)
		if k := hp.key(); !t.seen[k] {
			t.seen[k] = true
			return hp, nil
		}
	}
	return nil, ErrSpaceExhausted
}

func (t *Tuner) newTrial(hp HyperParameters, iteration int, plan RoundPlan) *Trial {
	order := len(t.trials)
	tr := &Trial{
		ID:              uuid.NewString(),
		Order:           order,
		Hyperparameters: hp,
		Iteration:       iteration,
		Bracket:         plan.Bracket,
		Round:           plan.Round,
		Epochs:          plan.Epochs,
		Seed:            t.cfg.Seed + uint64(order)*7919 + 1,
		Status:          TrialRunning,
	}
	t.trials = append(t.trials, tr)
	return tr
}

// Search runs Hyperband on (X, y), scoring every epoch on val.
func (t *Tuner) Search(ctx context.Context, X mat.Matrix, y []float64, val nn.ValidationData) (*Result, error) {
	start := time.Now()
	if t.store != nil {
		if t.cfg.Overwrite {
			if err := t.store.Clear(); err != nil {
				return nil, err
			}
		} else if res, err := t.reload(); err == nil {
			t.logger.Info("reloaded completed search", log.PathKey, t.store.Dir(), log.ObjectiveKey, res.Best.Score)
			return res, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("stored search is unusable, starting over", log.ErrAttrKey, err)
			if err := t.store.Clear(); err != nil {
				return nil, err
			}
		}
	}

	plan := Schedule(t.cfg.MaxEpochs, t.cfg.MinEpochs, t.cfg.Factor)
	t.logger.Info("search started",
		log.OperationKey, log.OperationSearch,
		log.SamplesKey, rows(X),
		log.BatchSizeKey, t.cfg.BatchSize,
		log.RandomSeedKey, t.cfg.Seed,
		"space_size", t.space.Size(),
		"rounds", len(plan),
	)

	exhausted := false
	for it := 0; it < t.cfg.HyperbandIterations; it++ {
		var prev []*Trial
		for _, p := range plan {
			if p.Round == 0 {
				prev = nil
				if exhausted {
					continue
				}
			} else if len(prev) == 0 {
				continue
			}

			var round []*Trial
			if p.Round == 0 {
				for i := 0; i < p.Trials; i++ {
					hp, err := t.sample()
					if err != nil {
						exhausted = true
						t.logger.Warn("no unseen hyperparameters left", log.BracketKey, p.Bracket, "collisions", t.cfg.MaxCollisions)
						break
					}
					round = append(round, t.newTrial(hp, it, p))
				}
			} else {
				for _, parent := range topK(prev, p.Trials, t.maximize()) {
					tr := t.newTrial(parent.Hyperparameters.Clone(), it, p)
					tr.ParentID = parent.ID
					tr.InitialEpoch = parent.Epochs
					round = append(round, tr)
				}
			}
			if len(round) == 0 {
				prev = nil
				continue
			}

			if err := t.runRound(ctx, round, X, y, val); err != nil {
				return nil, err
			}
			if err := t.saveOracle(false); err != nil {
				return nil, err
			}
			prev = round
		}
	}

	ranked := rank(t.trials, t.maximize())
	if len(ranked) == 0 {
		return nil, errors.NewModelError("Hyperband.Search", "no trial completed", nil)
	}
	res := &Result{Trials: ranked, Best: ranked[0]}
	if err := t.saveOracle(true); err != nil {
		return nil, err
	}
	t.logger.Info("search finished",
		log.TrialIDKey, res.Best.ID,
		log.ObjectiveKey, res.Best.Score,
		log.HyperParamsKey, map[string]interface{}(res.Best.Hyperparameters),
		"trials", len(t.trials),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// runRound trains the trials of one round, at most Parallelism at a time.
// Individual trial failures are recorded on the trial; only cancellation
// aborts the round.
func (t *Tuner) runRound(ctx context.Context, round []*Trial, X mat.Matrix, y []float64, val nn.ValidationData) error {
	parents := map[string]*Trial{}
	for _, tr := range t.trials {
		parents[tr.ID] = tr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Parallelism)
	var mu sync.Mutex
	for _, tr := range round {
		parent := parents[tr.ParentID]
		g.Go(func() error {
			err := errors.SafeExecute("tuning.trial", func() error {
				return t.runTrial(gctx, tr, parent, X, y, val)
			})
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				tr.Status = TrialFailed
				tr.Error = err.Error()
				t.logger.Error("trial failed", log.TrialIDKey, tr.ID, log.ErrAttrKey, err)
			}
			if t.store != nil {
				mu.Lock()
				defer mu.Unlock()
				if err := t.store.SaveTrial(tr); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "hyperband round")
	}
	return nil
}

func (t *Tuner) runTrial(ctx context.Context, tr *Trial, parent *Trial, X mat.Matrix, y []float64, val nn.ValidationData) error {
	start := time.Now()
	logger := t.logger.With(
		log.TrialIDKey, tr.ID,
		log.BracketKey, tr.Bracket,
		log.RoundKey, tr.Round,
	)

	var (
		net *nn.Network
		err error
	)
	if parent != nil {
		if parent.network == nil {
			return errors.Newf("parent trial %s has no checkpoint", parent.ID)
		}
		net, err = parent.network.Clone(nn.WithSeed(tr.Seed))
	} else {
		_, c := X.Dims()
		net, err = t.build(tr.Hyperparameters, c, tr.Seed)
	}
	if err != nil {
		return errors.Wrap(err, "build network")
	}

	ckpt := &checkpoint{objective: t.cfg.Objective, maximize: t.maximize()}
	cbs := append(t.callbacks(), ckpt)
	opts := nn.FitOptions{
		Epochs:       tr.Epochs,
		InitialEpoch: tr.InitialEpoch,
		BatchSize:    t.cfg.BatchSize,
		Shuffle:      true,
		Validation:   &val,
		Callbacks:    cbs,
	}
	logger.Debug("trial started",
		log.HyperParamsKey, map[string]interface{}(tr.Hyperparameters),
		"initial_epoch", tr.InitialEpoch,
		"epochs", tr.Epochs,
	)

	hist, err := net.Fit(ctx, X, y, opts)
	if err != nil {
		return err
	}
	score, bestEpoch, ok := hist.Best(t.cfg.Objective, t.maximize())
	if !ok {
		return errors.Newf("objective %q was not reported", t.cfg.Objective)
	}
	if err := net.SetWeights(ckpt.weights); err != nil {
		return err
	}
	net.Metadata["trial_id"] = tr.ID
	net.Metadata["best_epoch"] = bestEpoch
	net.Metadata[t.cfg.Objective] = score

	tr.History = hist
	tr.Score = score
	tr.BestEpoch = bestEpoch
	tr.BestMetrics = metricsAt(hist, bestEpoch)
	tr.DurationMs = time.Since(start).Milliseconds()
	tr.network = net
	tr.Status = TrialCompleted

	logger.Info("trial completed",
		log.ObjectiveKey, score,
		log.EpochKey, bestEpoch,
		log.DurationMsKey, tr.DurationMs,
	)
	return nil
}

func (t *Tuner) saveOracle(completed bool) error {
	if t.store == nil {
		return nil
	}
	o := &OracleState{
		Objective: t.cfg.Objective,
		Direction: t.cfg.Direction,
		MaxEpochs: t.cfg.MaxEpochs,
		Factor:    t.cfg.Factor,
		Seed:      t.cfg.Seed,
		Completed: completed,
	}
	for _, tr := range t.trials {
		o.TrialIDs = append(o.TrialIDs, tr.ID)
	}
	if ranked := rank(t.trials, t.maximize()); len(ranked) > 0 {
		o.BestTrialID = ranked[0].ID
	}
	return t.store.SaveOracle(o)
}

// reload rebuilds the result of a completed stored search.
func (t *Tuner) reload() (*Result, error) {
	o, err := t.store.LoadOracle()
	if err != nil {
		return nil, err
	}
	if !o.Completed {
		return nil, errors.New("stored search did not complete")
	}
	if o.Objective != t.cfg.Objective || o.Direction != t.cfg.Direction {
		return nil, errors.Newf("stored search optimised %s (%s)", o.Objective, o.Direction)
	}
	trials := make([]*Trial, 0, len(o.TrialIDs))
	for _, id := range o.TrialIDs {
		tr, err := t.store.LoadTrial(id)
		if err != nil {
			return nil, err
		}
		trials = append(trials, tr)
	}
	ranked := rank(trials, t.maximize())
	if len(ranked) == 0 {
		return nil, errors.New("stored search has no completed trial")
	}
	best := ranked[0]
	net, err := t.store.LoadCheckpoint(best.ID)
	if err != nil {
		return nil, err
	}
	best.network = net
	t.trials = trials
	return &Result{Trials: ranked, Best: best}, nil
}

func rows(X mat.Matrix) int {
	r, _ := X.Dims()
	return r
}
