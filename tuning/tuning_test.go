package tuning

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/nn"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		name      string
		maxEpochs int
		factor    int
		want      []RoundPlan
	}{
		{
			name: "max 30 factor 3", maxEpochs: 30, factor: 3,
			want: []RoundPlan{
				{3, 0, 5, 2}, {3, 1, 2, 4}, {3, 2, 1, 10}, {3, 3, 1, 30},
				{2, 0, 5, 4}, {2, 1, 2, 10}, {2, 2, 1, 30},
				{1, 0, 5, 10}, {1, 1, 2, 30},
				{0, 0, 5, 30},
			},
		},
		{
			name: "max 9 factor 3", maxEpochs: 9, factor: 3,
			want: []RoundPlan{
				{2, 0, 3, 1}, {2, 1, 1, 3}, {2, 2, 1, 9},
				{1, 0, 3, 3}, {1, 1, 1, 9},
				{0, 0, 3, 9},
			},
		},
		{
			name: "max 3 factor 3", maxEpochs: 3, factor: 3,
			want: []RoundPlan{
				{1, 0, 2, 1}, {1, 1, 1, 3},
				{0, 0, 2, 3},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Schedule(tt.maxEpochs, 1, tt.factor))
		})
	}
}

func TestNumBrackets(t *testing.T) {
	assert.Equal(t, 4, numBrackets(30, 1, 3))
	assert.Equal(t, 1, numBrackets(1, 1, 3))
	assert.Equal(t, 2, numBrackets(30, 10, 3))
}

func TestLiverCancerSpace(t *testing.T) {
	s := LiverCancerSpace()
	require.NoError(t, s.Validate())
	assert.Equal(t, 64, s.Size())

	rng := rand.New(rand.NewPCG(1, 2))
	allowedUnits1 := map[int]bool{32: true, 64: true, 96: true, 128: true}
	allowedUnits2 := map[int]bool{16: true, 32: true, 48: true, 64: true}
	allowedDropout := map[float64]bool{0.2: true, 0.3: true, 0.4: true, 0.5: true}
	for i := 0; i < 200; i++ {
		hp := s.Sample(rng)
		assert.True(t, allowedUnits1[hp.Int("units_1")], "units_1 = %v", hp["units_1"])
		assert.True(t, allowedUnits2[hp.Int("units_2")], "units_2 = %v", hp["units_2"])
		assert.True(t, allowedDropout[hp.Float("dropout")], "dropout = %v", hp["dropout"])
	}
}

func TestSpaceValidate(t *testing.T) {
	assert.Error(t, NewSpace().Validate())
	assert.Error(t, NewSpace().Int("a", 1, 2, 1).Int("a", 1, 2, 1).Validate())
	assert.Error(t, NewSpace().Int("a", 5, 1, 1).Validate())
	assert.Error(t, NewSpace().Choice("c").Validate())
	assert.NoError(t, NewSpace().Choice("c", "x", "y").Validate())
}

func TestHyperParametersKeyIgnoresNumericType(t *testing.T) {
	a := HyperParameters{"units_1": 32, "dropout": 0.2}
	b := HyperParameters{"dropout": 0.2, "units_1": float64(32)}
	assert.Equal(t, a.key(), b.key())
	assert.Equal(t, 32, b.Int("units_1"))
}

func TestSampleAvoidsCollisions(t *testing.T) {
	space := NewSpace().Choice("c", "x", "y")
	tuner, err := NewTuner(space, BuildLiverCancerNetwork, Config{
		Objective: "val_auc", Direction: DirectionMax,
		MaxEpochs: 1, MinEpochs: 1, Factor: 3, HyperbandIterations: 1,
		Seed: 3,
	})
	require.NoError(t, err)

	first, err := tuner.sample()
	require.NoError(t, err)
	second, err := tuner.sample()
	require.NoError(t, err)
	assert.NotEqual(t, first["c"], second["c"])

	_, err = tuner.sample()
	assert.ErrorIs(t, err, ErrSpaceExhausted)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty objective", func(c *Config) { c.Objective = "" }},
		{"bad direction", func(c *Config) { c.Direction = "up" }},
		{"zero max epochs", func(c *Config) { c.MaxEpochs = 0 }},
		{"min above max", func(c *Config) { c.MinEpochs = 31 }},
		{"factor one", func(c *Config) { c.Factor = 1 }},
		{"no iterations", func(c *Config) { c.HyperbandIterations = 0 }},
		{"directory without project", func(c *Config) { c.ProjectName = "" }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			var valErr *errors.ValidationError
			assert.True(t, errors.As(cfg.Validate(), &valErr))
		})
	}
}

func TestRankKeepsCreationOrderOnTies(t *testing.T) {
	trials := []*Trial{
		{ID: "a", Order: 0, Status: TrialCompleted, Score: 0.8},
		{ID: "b", Order: 1, Status: TrialFailed, Score: 0.99},
		{ID: "c", Order: 2, Status: TrialCompleted, Score: 0.9},
		{ID: "d", Order: 3, Status: TrialCompleted, Score: 0.8},
	}
	ids := func(ts []*Trial) []string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = t.ID
		}
		return out
	}
	assert.Equal(t, []string{"c", "a", "d"}, ids(rank(trials, true)))
	assert.Equal(t, []string{"a", "d", "c"}, ids(rank(trials, false)))
	assert.Equal(t, []string{"c", "a"}, ids(topK(trials, 2, true)))
}

// toyData は x0 + x1 の符号で決まる2クラスデータ
func toyData(n int, seed uint64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; {
		a, b := 2*rng.Float64()-1, 2*rng.Float64()-1
		if math.Abs(a+b) < 0.2 {
			continue
		}
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		if a+b > 0 {
			y[i] = 1
		}
		i++
	}
	return X, y
}

func smallSpace() *Space {
	return NewSpace().
		Int("units_1", 4, 8, 4).
		Float("dropout", 0.0, 0.1, 0.1).
		Int("units_2", 4, 8, 4)
}

func smallConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.MaxEpochs = 3
	cfg.Factor = 3
	cfg.Seed = 11
	cfg.Parallelism = 2
	cfg.Directory = dir
	cfg.ProjectName = "toy"
	return cfg
}

func earlyStopping() []nn.Callback {
	return []nn.Callback{nn.NewEarlyStopping("val_loss", 10, true)}
}

func TestSearch(t *testing.T) {
	X, y := toyData(120, 1)
	Xv, yv := toyData(40, 2)
	dir := t.TempDir()

	tuner, err := NewTuner(smallSpace(), BuildLiverCancerNetwork, smallConfig(dir), WithCallbacks(earlyStopping))
	require.NoError(t, err)

	res, err := tuner.Search(context.Background(), X, y, nn.ValidationData{X: Xv, Y: yv})
	require.NoError(t, err)

	// 2 + 2 new trials plus one promoted trial
	require.Len(t, res.Trials, 5)
	for i := 1; i < len(res.Trials); i++ {
		assert.GreaterOrEqual(t, res.Trials[i-1].Score, res.Trials[i].Score)
	}
	assert.Same(t, res.Trials[0], res.Best)

	var promoted []*Trial
	for _, tr := range res.Trials {
		assert.Equal(t, TrialCompleted, tr.Status)
		assert.GreaterOrEqual(t, tr.Score, 0.0)
		assert.LessOrEqual(t, tr.Score, 1.0)
		if tr.ParentID != "" {
			promoted = append(promoted, tr)
		}
	}
	require.Len(t, promoted, 1)
	assert.Equal(t, 1, promoted[0].InitialEpoch)
	assert.Equal(t, 3, promoted[0].Epochs)
	assert.Equal(t, []int{1, 2}, promoted[0].History.Epoch)

	hp := res.BestHyperparameters()
	assert.Contains(t, []int{4, 8}, hp.Int("units_1"))
	assert.Contains(t, []int{4, 8}, hp.Int("units_2"))

	best := res.BestModel()
	require.NotNil(t, best)
	probs, err := best.Predict(Xv)
	require.NoError(t, err)
	r, _ := probs.Dims()
	assert.Equal(t, 40, r)

	// the checkpoint holds the weights of the best objective epoch
	scores, err := best.Evaluate(Xv, yv)
	require.NoError(t, err)
	assert.InDelta(t, res.Best.Score, scores["auc"], 1e-9)

	store := NewStore(dir, "toy")
	oracle, err := store.LoadOracle()
	require.NoError(t, err)
	assert.True(t, oracle.Completed)
	assert.Len(t, oracle.TrialIDs, 5)
	assert.Equal(t, res.Best.ID, oracle.BestTrialID)
	for _, id := range oracle.TrialIDs {
		_, err := os.Stat(filepath.Join(dir, "toy", "trial_"+id+".json"))
		assert.NoError(t, err)
	}

	assert.Contains(t, res.Summary(3, smallSpace()), res.Best.ID)
}

func TestSearchReloadsCompletedSearch(t *testing.T) {
	X, y := toyData(80, 3)
	Xv, yv := toyData(30, 4)
	dir := t.TempDir()
	val := nn.ValidationData{X: Xv, Y: yv}

	first, err := NewTuner(smallSpace(), BuildLiverCancerNetwork, smallConfig(dir))
	require.NoError(t, err)
	want, err := first.Search(context.Background(), X, y, val)
	require.NoError(t, err)

	cfg := smallConfig(dir)
	cfg.Overwrite = false
	built := 0
	counting := func(hp HyperParameters, inputDim int, seed uint64) (*nn.Network, error) {
		built++
		return BuildLiverCancerNetwork(hp, inputDim, seed)
	}
	second, err := NewTuner(smallSpace(), counting, cfg)
	require.NoError(t, err)
	got, err := second.Search(context.Background(), X, y, val)
	require.NoError(t, err)

	assert.Equal(t, 0, built)
	assert.Equal(t, want.Best.ID, got.Best.ID)
	assert.InDelta(t, want.Best.Score, got.Best.Score, 1e-12)

	p1, err := want.BestModel().Predict(Xv)
	require.NoError(t, err)
	p2, err := got.BestModel().Predict(Xv)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(p1, p2, 1e-12))
}

func TestSearchIndependentOfParallelism(t *testing.T) {
	X, y := toyData(120, 7)
	Xv, yv := toyData(40, 8)
	val := nn.ValidationData{X: Xv, Y: yv}

	run := func(parallelism int) *Result {
		cfg := smallConfig("")
		cfg.Directory = ""
		cfg.MaxEpochs = 9
		cfg.Parallelism = parallelism
		tuner, err := NewTuner(LiverCancerSpace(), BuildLiverCancerNetwork, cfg)
		require.NoError(t, err)
		res, err := tuner.Search(context.Background(), X, y, val)
		require.NoError(t, err)
		return res
	}

	serial, parallel := run(1), run(4)
	require.Len(t, parallel.Trials, len(serial.Trials))
	require.NotEmpty(t, serial.Trials)
	for i := range serial.Trials {
		a, b := serial.Trials[i], parallel.Trials[i]
		assert.Equal(t, a.Order, b.Order, "rank %d", i)
		assert.Equal(t, a.Score, b.Score, "rank %d", i)
		assert.Equal(t, a.Hyperparameters.key(), b.Hyperparameters.key(), "rank %d", i)
	}
}

func TestSearchOverwriteClearsStore(t *testing.T) {
	X, y := toyData(60, 9)
	dir := t.TempDir()
	project := filepath.Join(dir, "toy")
	require.NoError(t, os.MkdirAll(project, 0o755))
	stale := filepath.Join(project, "trial_x.json")
	require.NoError(t, os.WriteFile(stale, []byte(`{"trial_id":"x"}`), 0o644))

	cfg := smallConfig(dir)
	cfg.Overwrite = true
	tuner, err := NewTuner(smallSpace(), BuildLiverCancerNetwork, cfg)
	require.NoError(t, err)
	_, err = tuner.Search(context.Background(), X, y, nn.ValidationData{X: X, Y: y})
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale trial file survived: %v", err)
	assert.FileExists(t, filepath.Join(project, "oracle.json"))
}

func TestSearchCancelled(t *testing.T) {
	X, y := toyData(40, 5)
	cfg := smallConfig("")
	cfg.Directory = ""

	tuner, err := NewTuner(smallSpace(), BuildLiverCancerNetwork, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tuner.Search(ctx, X, y, nn.ValidationData{X: X, Y: y})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSearchRecordsFailedTrials(t *testing.T) {
	X, y := toyData(40, 6)
	cfg := smallConfig("")
	cfg.Directory = ""
	failing := func(HyperParameters, int, uint64) (*nn.Network, error) {
		return nil, errors.New("boom")
	}
	tuner, err := NewTuner(smallSpace(), failing, cfg)
	require.NoError(t, err)

	_, err = tuner.Search(context.Background(), X, y, nn.ValidationData{X: X, Y: y})
	require.Error(t, err)
	for _, tr := range tuner.trials {
		assert.Equal(t, TrialFailed, tr.Status)
		assert.Contains(t, tr.Error, "boom")
	}
}
