package main

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/jonathan/pdfprep/internal/config"
	"github.com/jonathan/pdfprep/internal/extract"
	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/pipeline"
	"github.com/jonathan/pdfprep/internal/textprep"
)

// loadConfig reads the environment, applies the --config overlay when given,
// and validates the result.
func loadConfig(path string) (config.Config, error) {
	cfg := config.FromEnv()
	if path != "" {
		overlay, err := config.LoadFile(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = cfg.Merge(*overlay)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newRunner wires the configured extractor and the stopword preprocessor into
// a pipeline runner writing to store.
func newRunner(cfg config.Config, store jobs.Store, logger *slog.Logger, onProgress pipeline.ProgressCallback) (*pipeline.Runner, *observability.Metrics, error) {
	ex, err := extract.New(extract.Options{
		Backend:       cfg.Extractor,
		PdftotextPath: cfg.Pdftotext,
		PdfinfoPath:   cfg.Pdfinfo,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	metrics := observability.NewMetrics(otel.GetMeterProvider())
	runner := pipeline.NewRunner(store, ex, textprep.New(logger), pipeline.Options{
		OutputDir:  cfg.OutputDir,
		Timeout:    cfg.Timeout(),
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     observability.NewTracer(otel.GetTracerProvider()),
		OnProgress: onProgress,
	})
	return runner, metrics, nil
}
