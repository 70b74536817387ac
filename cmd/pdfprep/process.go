package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/pdfprep/internal/config"
	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/logging"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/pipeline"
	"github.com/jonathan/pdfprep/internal/server"
)

var (
	processOutDir string
	processJSON   bool
	processQuiet  bool
)

var processCmd = &cobra.Command{
	Use:   "process <file.pdf>",
	Short: "Process a PDF locally and print the result",
	Long:  "Runs the extraction and preprocessing pipeline on a local PDF without starting the server.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOutDir, "out", "o", "", "Output directory (overrides PROCESSED_FILE_FOLDER)")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Print the final job record as JSON")
	processCmd.Flags().BoolVarP(&processQuiet, "quiet", "q", false, "Do not print progress updates")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if processOutDir != "" {
		cfg = cfg.Merge(config.Config{OutputDir: processOutDir})
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := processFile(ctx, cfg, args[0], logs.Logger, cmd.OutOrStdout(), !processQuiet && !processJSON)
	if err != nil {
		return err
	}

	if processJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	} else {
		observability.NewPrinter(cmd.OutOrStdout()).PrintRecord(rec)
	}

	if rec.Status != jobs.StatusComplete {
		return fmt.Errorf("processing failed: %s", rec.Details)
	}
	return nil
}

// processFile runs the pipeline for the PDF at path to completion and returns
// its final record.
func processFile(ctx context.Context, cfg config.Config, path string, logger *slog.Logger, out io.Writer, showProgress bool) (jobs.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return jobs.Record{}, fmt.Errorf("PDF file not found: %s", path)
	}
	if info.IsDir() {
		return jobs.Record{}, fmt.Errorf("%s is a directory", path)
	}

	jobID := server.SecureFilename(filepath.Base(path))
	if jobID == "" {
		return jobs.Record{}, fmt.Errorf("cannot derive a job id from %q", path)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return jobs.Record{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	var onProgress pipeline.ProgressCallback
	if showProgress {
		printer := observability.NewPrinter(out)
		onProgress = func(ev pipeline.Event) { printer.PrintProgress(ev.Progress, ev.Details) }
	}

	store := jobs.NewMemoryStore()
	runner, _, err := newRunner(cfg, store, logger, onProgress)
	if err != nil {
		return jobs.Record{}, err
	}

	return runner.Run(ctx, pipeline.Accept(store, jobID, path, runner.Timeout())), nil
}
