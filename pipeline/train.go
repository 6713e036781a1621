package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/dataset"
	"github.com/YuminosukeSato/liverrisk/internal/config"
	"github.com/YuminosukeSato/liverrisk/metrics"
	"github.com/YuminosukeSato/liverrisk/nn"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
	"github.com/YuminosukeSato/liverrisk/tuning"
)

// TrainResult is the outcome of the train stage.
type TrainResult struct {
	Search *tuning.Result
	Model  *nn.Network
}

// TuningConfig converts the configuration section into search settings.
func TuningConfig(c config.TuningConfig) tuning.Config {
	return tuning.Config{
		Objective:           c.Objective,
		Direction:           c.Direction,
		MaxEpochs:           c.MaxEpochs,
		MinEpochs:           1,
		Factor:              c.Factor,
		HyperbandIterations: c.HyperbandIterations,
		BatchSize:           c.BatchSize,
		Seed:                c.Seed,
		MaxCollisions:       c.MaxCollisions,
		Parallelism:         c.Parallelism,
		Directory:           c.Directory,
		ProjectName:         c.ProjectName,
		Overwrite:           c.Overwrite,
	}
}

// stratifiedData loads the CSV, applies the preprocessor and returns the
// train and test matrices of the stratified split shared by train and evaluate.
type stratifiedData struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest []float64
}

func (p *Pipeline) stratified(stage string, transform func(*dataset.Frame) (*mat.Dense, error), logger log.Logger) (*stratifiedData, error) {
	frame, err := p.loadFrame(stage)
	if err != nil {
		return nil, err
	}
	X, y, err := p.labelled(stage, frame, logger)
	if err != nil {
		return nil, err
	}
	split, err := dataset.TrainTestSplit(X.Len(), dataset.SplitOptions{
		TestSize: p.cfg.Split.TestSize,
		Seed:     p.cfg.Split.Seed,
		Stratify: y,
	})
	if err != nil {
		return nil, errors.Wrap(err, "stratified split")
	}

	d := &stratifiedData{YTrain: pick(y, split.Train), YTest: pick(y, split.Test)}
	if stage == StageTrain {
		if d.XTrain, err = transform(X.Take(split.Train)); err != nil {
			return nil, errors.Wrap(err, "transform train rows")
		}
	}
	if d.XTest, err = transform(X.Take(split.Test)); err != nil {
		return nil, errors.Wrap(err, "transform test rows")
	}
	return d, nil
}

// Train searches the network hyperparameters with Hyperband, validating on
// the held-out split, and saves the best model.
func (p *Pipeline) Train(ctx context.Context) (*TrainResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := p.stageLogger(StageTrain)

	ct, err := LoadPreprocessor(p.cfg.Artifacts.Preprocessor)
	if err != nil {
		return nil, errors.NewArtifactError(StageTrain, p.cfg.Artifacts.Preprocessor, err)
	}
	logger.Info("applying preprocessor")
	data, err := p.stratified(StageTrain, ct.Transform, logger)
	if err != nil {
		return nil, err
	}
	_, inputDim := data.XTrain.Dims()
	logger.Info("input features", log.FeaturesKey, inputDim, log.SamplesKey, len(data.YTrain))

	tc := p.cfg.Tuning
	tuner, err := tuning.NewTuner(tuning.LiverCancerSpace(), tuning.BuildLiverCancerNetwork, TuningConfig(tc),
		tuning.WithLogger(logger),
		tuning.WithCallbacks(func() []nn.Callback {
			cbs := []nn.Callback{
				nn.NewEarlyStopping(tc.EarlyStoppingMonitor, tc.EarlyStoppingPatience, true).WithLogger(logger),
				nn.LogProgress(logger, 1),
			}
			if limit := p.cfg.GetTrialTimeLimit(); limit > 0 {
				cbs = append(cbs, nn.NewTimeLimit(limit))
			}
			return cbs
		}),
	)
	if err != nil {
		return nil, err
	}

	res, err := tuner.Search(ctx, data.XTrain, data.YTrain, nn.ValidationData{X: data.XTest, Y: data.YTest})
	if err != nil {
		return nil, errors.Wrap(err, "hyperparameter search")
	}

	if strings.Contains(tc.Objective, "auc") && res.Best.Score <= 0.5 {
		errors.Warn(errors.NewConvergenceWarning("Hyperband", len(res.Trials),
			fmt.Sprintf("best %s %.4f is no better than chance", tc.Objective, res.Best.Score)))
	}

	hp := res.BestHyperparameters()
	fmt.Fprintf(p.out, "\nResumen de los mejores hiperparámetros encontrados:\n"+
		"- Neuronas en Capa 1: %d\n- Tasa de Dropout: %.2f\n- Neuronas en Capa 2: %d\n",
		hp.Int("units_1"), hp.Float("dropout"), hp.Int("units_2"))
	logger.Debug("top trials\n" + res.Summary(5, tuning.LiverCancerSpace()))

	best := res.BestModel()
	best.Features = ct.FeatureNamesOut()
	best.Metadata["test_size"] = p.cfg.Split.TestSize
	best.Metadata["split_seed"] = p.cfg.Split.Seed
	best.Metadata["n_train"] = len(data.YTrain)
	if err := best.Save(p.cfg.Artifacts.Model); err != nil {
		return nil, errors.NewArtifactError(StageTrain, p.cfg.Artifacts.Model, err)
	}
	logger.Info("best model saved",
		log.PathKey, p.cfg.Artifacts.Model,
		log.TrialIDKey, res.Best.ID,
		log.ObjectiveKey, res.Best.Score,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if path := p.cfg.Artifacts.LearningCurves; path != "" && res.Best.History != nil {
		h := res.Best.History
		series := map[string][]float64{}
		for _, k := range []string{"loss", "val_loss", "auc", "val_auc"} {
			if vs, ok := h.Metrics[k]; ok {
				series[k] = vs
			}
		}
		if err := metrics.PlotLearningCurves(h.Epoch, series, path); err != nil {
			logger.Warn("learning curves not written", log.PathKey, path, log.ErrAttrKey, err)
		}
	}
	return &TrainResult{Search: res, Model: best}, nil
}
