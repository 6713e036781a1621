package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/YuminosukeSato/liverrisk/dataset"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
)

// ExtractResult is the outcome of the extract stage.
type ExtractResult struct {
	Frame *dataset.Frame
	Stats dataset.ExtractStats
}

// Extract parses the SQL dump and writes it as CSV.
func (p *Pipeline) Extract(ctx context.Context) (*ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := p.stageLogger(StageExtract)
	logger.Info("parsing SQL dump", log.PathKey, p.cfg.Data.SQLPath)

	f, err := os.Open(p.cfg.Data.SQLPath)
	if err != nil {
		return nil, errors.NewArtifactError(StageExtract, p.cfg.Data.SQLPath, err)
	}
	defer f.Close()

	frame, stats, err := dataset.ExtractSQL(f, p.schema)
	for _, reason := range stats.SkipReasons {
		logger.Warn("row skipped", "reason", reason)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "extract %s", p.cfg.Data.SQLPath)
	}
	for col, n := range stats.Coerced {
		logger.Warn("values set to missing", "column", col, "count", n)
	}
	logger.Info("rows parsed",
		log.SamplesKey, stats.Rows,
		log.SkippedKey, stats.Skipped,
		"statements", stats.Statements,
	)

	if err := dataset.WriteCSVFile(p.cfg.Data.CSVPath, frame); err != nil {
		return nil, errors.NewArtifactError(StageExtract, p.cfg.Data.CSVPath, err)
	}
	logger.Info("dataset written",
		log.PathKey, p.cfg.Data.CSVPath,
		log.SamplesKey, frame.Len(),
		log.FeaturesKey, len(frame.Columns()),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	fmt.Fprintf(p.out, "\n--- Resumen de los datos cargados (primeras 5 filas) ---\n%s\n", frame.Head(5))
	fmt.Fprintf(p.out, "\n--- Información del DataFrame ---\n%s\n", frame.Info())
	return &ExtractResult{Frame: frame, Stats: stats}, nil
}
