package pipeline

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/metrics"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
)

// EvaluateResult holds the test-set metrics.
type EvaluateResult struct {
	Accuracy  float64
	AUC       float64
	Report    string
	Confusion *mat.Dense
}

// Evaluate scores the saved model on the held-out rows of the stratified
// split, prints the report and renders the confusion-matrix heatmap.
func (p *Pipeline) Evaluate(ctx context.Context) (*EvaluateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := p.stageLogger(StageEvaluate)

	ct, net, err := LoadArtifacts(p.cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("artifacts loaded",
		"preprocessor", p.cfg.Artifacts.Preprocessor,
		"model", p.cfg.Artifacts.Model,
	)

	data, err := p.stratified(StageEvaluate, ct.Transform, logger)
	if err != nil {
		return nil, err
	}

	probs, err := net.Predict(data.XTest)
	if err != nil {
		return nil, errors.Wrap(err, "predict test rows")
	}
	yProb := mat.NewVecDense(len(data.YTest), mat.Col(nil, 0, probs))
	yTrue := mat.NewVecDense(len(data.YTest), data.YTest)
	yPred := metrics.Threshold(yProb, p.cfg.Evaluate.Threshold)

	res := &EvaluateResult{}
	if res.Accuracy, err = metrics.Accuracy(yTrue, yPred); err != nil {
		return nil, err
	}
	if res.AUC, err = metrics.AUC(yTrue, yProb); err != nil {
		return nil, err
	}
	labels := []float64{0, 1}
	if res.Report, err = metrics.ClassificationReport(yTrue, yPred, labels, TargetNames, 2); err != nil {
		return nil, err
	}
	if res.Confusion, err = metrics.ConfusionMatrix(yTrue, yPred, labels); err != nil {
		return nil, err
	}

	fmt.Fprintf(p.out, "\n--- Métricas de Evaluación en Set de Prueba ---\n")
	fmt.Fprintf(p.out, "Accuracy (Exactitud): %.4f\n", res.Accuracy)
	fmt.Fprintf(p.out, "AUC-ROC: %.4f\n", res.AUC)
	fmt.Fprintf(p.out, "\nReporte de Clasificación:\n%s\n", res.Report)
	fmt.Fprintf(p.out, "\nMatriz de Confusión:\n%s\n", metrics.FormatConfusionMatrix(res.Confusion))

	logger.Info("evaluation finished",
		log.PhaseKey, log.PhaseTesting,
		log.SamplesKey, len(data.YTest),
		log.AccuracyKey, res.Accuracy,
		log.AUCKey, res.AUC,
		log.ThresholdKey, p.cfg.Evaluate.Threshold,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if path := p.cfg.Artifacts.Heatmap; path != "" {
		if err := metrics.ConfusionHeatmap(res.Confusion, metrics.PredictedLabels, metrics.ActualLabels, path); err != nil {
			return nil, errors.NewArtifactError(StageEvaluate, path, err)
		}
		logger.Info("confusion heatmap written", log.PathKey, path)
	}
	return res, nil
}
