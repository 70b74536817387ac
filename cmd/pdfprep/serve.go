package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/pdfprep/internal/config"
	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/logging"
	"github.com/jonathan/pdfprep/internal/server"
	"github.com/jonathan/pdfprep/internal/server/ratelimit"
	"github.com/jonathan/pdfprep/internal/worker"
)

var (
	servePort            int
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server that accepts PDF uploads and serves processing status and results.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "Time allowed for in-flight jobs on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg = cfg.Merge(config.Config{Port: servePort})
	}

	logs, err := logging.Setup(logging.Options{
		Directory: cfg.LogDirectory,
		Level:     cfg.LogLevel,
		Console:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logs.Close()
	logger := logs.Logger

	logger.Info("starting PDF processing server",
		"input_dir", cfg.InputDir,
		"output_dir", cfg.OutputDir,
		"max_content_length", cfg.MaxContentLength,
		"processing_timeout", cfg.ProcessingTimeout,
		"workers", cfg.WorkerCount,
		"queue_size", cfg.QueueSize,
		"extractor", cfg.Extractor,
		"log_file", logs.FilePath,
	)

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	store := jobs.NewMemoryStore()
	runner, metrics, err := newRunner(cfg, store, logger, nil)
	if err != nil {
		return err
	}

	pool := worker.New(runner, logger,
		worker.WithWorkers(cfg.WorkerCount),
		worker.WithQueueSize(cfg.QueueSize),
	)

	srv := server.New(cfg, server.Deps{
		Store:     store,
		Scheduler: pool,
		Limiter:   ratelimit.NewLimiter(ratelimit.LoadConfig()),
		Metrics:   metrics,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx, serveShutdownTimeout)
}
