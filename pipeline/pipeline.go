// Package pipeline runs the four batch stages of the risk model: extract,
// preprocess, train and evaluate. Each stage reads the artifact written by
// the previous one.
package pipeline

import (
	"context"
	"io"
	"os"

	"github.com/YuminosukeSato/liverrisk/core/model"
	"github.com/YuminosukeSato/liverrisk/dataset"
	"github.com/YuminosukeSato/liverrisk/internal/config"
	"github.com/YuminosukeSato/liverrisk/nn"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
	"github.com/YuminosukeSato/liverrisk/preprocessing"
)

// Stage names used in logs and artifact errors.
const (
	StageExtract    = "extract"
	StagePreprocess = "preprocess"
	StageTrain      = "train"
	StageEvaluate   = "evaluate"
)

// TargetNames label the classes in the evaluation report.
var TargetNames = []string{"Riesgo Bajo (0)", "Riesgo Alto (1)"}

// Pipeline runs the stages with one configuration.
type Pipeline struct {
	cfg    *config.Config
	schema dataset.Schema
	logger log.Logger
	out    io.Writer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithOutput sets where the human readable summaries are printed.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

// New creates a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		schema: dataset.LiverCancerSchema(),
		logger: log.Nop(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage in order.
func (p *Pipeline) Run(ctx context.Context) error {
	if _, err := p.Extract(ctx); err != nil {
		return err
	}
	if _, err := p.BuildPreprocessor(ctx); err != nil {
		return err
	}
	if _, err := p.Train(ctx); err != nil {
		return err
	}
	_, err := p.Evaluate(ctx)
	return err
}

// Extract runs the extract stage of a pipeline built from cfg.
func Extract(ctx context.Context, cfg *config.Config, opts ...Option) (*ExtractResult, error) {
	return New(cfg, opts...).Extract(ctx)
}

// BuildPreprocessor runs the preprocess stage of a pipeline built from cfg.
func BuildPreprocessor(ctx context.Context, cfg *config.Config, opts ...Option) (*preprocessing.ColumnTransformer, error) {
	return New(cfg, opts...).BuildPreprocessor(ctx)
}

// Train runs the train stage of a pipeline built from cfg.
func Train(ctx context.Context, cfg *config.Config, opts ...Option) (*TrainResult, error) {
	return New(cfg, opts...).Train(ctx)
}

// Evaluate runs the evaluate stage of a pipeline built from cfg.
func Evaluate(ctx context.Context, cfg *config.Config, opts ...Option) (*EvaluateResult, error) {
	return New(cfg, opts...).Evaluate(ctx)
}

func (p *Pipeline) stageLogger(stage string) log.Logger {
	return p.logger.With(log.StageKey, stage)
}

// loadFrame reads the extracted CSV.
func (p *Pipeline) loadFrame(stage string) (*dataset.Frame, error) {
	f, err := dataset.ReadCSVFile(p.cfg.Data.CSVPath)
	if err != nil {
		return nil, errors.NewArtifactError(stage, p.cfg.Data.CSVPath, err)
	}
	return f, nil
}

// labelled drops rows without a target and returns the features and labels.
func (p *Pipeline) labelled(stage string, f *dataset.Frame, logger log.Logger) (*dataset.Frame, []float64, error) {
	f, dropped, err := f.DropMissing(p.schema.Target)
	if err != nil {
		return nil, nil, err
	}
	if dropped > 0 {
		logger.Warn("rows without target dropped", log.SkippedKey, dropped)
	}
	y, err := f.Float(p.schema.Target)
	if err != nil {
		return nil, nil, err
	}
	return f.Drop(p.schema.Target), y, nil
}

// LoadPreprocessor reads a ColumnTransformer written by BuildPreprocessor.
func LoadPreprocessor(path string) (*preprocessing.ColumnTransformer, error) {
	var ct preprocessing.ColumnTransformer
	if err := model.LoadModel(&ct, path); err != nil {
		return nil, err
	}
	if ct.State == nil || !ct.State.IsFitted() {
		return nil, errors.NewNotFittedError("ColumnTransformer", "LoadPreprocessor")
	}
	return &ct, nil
}

// LoadArtifacts reads the preprocessor and the model.
func LoadArtifacts(cfg *config.Config) (*preprocessing.ColumnTransformer, *nn.Network, error) {
	ct, err := LoadPreprocessor(cfg.Artifacts.Preprocessor)
	if err != nil {
		return nil, nil, errors.NewArtifactError("load", cfg.Artifacts.Preprocessor, err)
	}
	net, err := nn.Load(cfg.Artifacts.Model)
	if err != nil {
		return nil, nil, errors.NewArtifactError("load", cfg.Artifacts.Model, err)
	}
	return ct, net, nil
}

func pick(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = y[k]
	}
	return out
}
