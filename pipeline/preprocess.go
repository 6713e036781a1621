package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/dataset"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
	"github.com/YuminosukeSato/liverrisk/preprocessing"
)

// BuildPreprocessor fits the column transformer on the training rows of an
// unstratified split and saves it.
func (p *Pipeline) BuildPreprocessor(ctx context.Context) (*preprocessing.ColumnTransformer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := p.stageLogger(StagePreprocess)

	frame, err := p.loadFrame(StagePreprocess)
	if err != nil {
		return nil, err
	}
	X := frame.Drop(p.schema.Target)

	split, err := dataset.TrainTestSplit(X.Len(), dataset.SplitOptions{
		TestSize: p.cfg.Split.TestSize,
		Seed:     p.cfg.Split.Seed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "preprocess split")
	}

	logger.Info("fitting preprocessor",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, len(split.Train),
	)
	ct := preprocessing.NewColumnTransformer(p.schema)
	if err := ct.Fit(X.Take(split.Train)); err != nil {
		return nil, errors.Wrap(err, "fit preprocessor")
	}

	if err := model.SaveModel(ct, p.cfg.Artifacts.Preprocessor); err != nil {
		return nil, errors.NewArtifactError(StagePreprocess, p.cfg.Artifacts.Preprocessor, err)
	}
	logger.Info("preprocessor saved",
		log.PathKey, p.cfg.Artifacts.Preprocessor,
		log.FeaturesKey, ct.NFeaturesOut(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ct, nil
}
