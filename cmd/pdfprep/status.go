package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/schemas"
)

var (
	statusServer   string
	statusWait     bool
	statusInterval time.Duration
	statusJSON     bool
	statusSchema   bool
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the processing status of an uploaded PDF",
	Args: func(cmd *cobra.Command, args []string) error {
		if statusSchema {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runStatus,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the jobs known to a running server",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, jobsCmd} {
		c.Flags().StringVarP(&statusServer, "server", "s", "http://localhost:5001", "Base URL of the pdfprep server")
	}
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "Poll until the job reaches a terminal state")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", time.Second, "Polling interval for --wait")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the record as JSON")
	statusCmd.Flags().BoolVar(&statusSchema, "schema", false, "Print the JSON Schema of status documents and exit")
	rootCmd.AddCommand(statusCmd, jobsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusSchema {
		_, err := io.WriteString(cmd.OutOrStdout(), schemas.StatusSchema())
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 30 * time.Second}
	printer := observability.NewPrinter(cmd.OutOrStdout())

	var (
		rec jobs.Record
		err error
	)
	if statusWait {
		var onUpdate func(jobs.Record)
		if !statusJSON {
			onUpdate = func(r jobs.Record) { printer.PrintProgress(r.Progress, r.Details) }
		}
		rec, err = waitForStatus(ctx, client, statusServer, args[0], statusInterval, onUpdate)
	} else {
		rec, err = fetchStatus(ctx, client, statusServer, args[0])
	}
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	} else {
		printer.PrintRecord(rec)
	}

	if rec.ErrorKind == jobs.ErrorKindNotFound {
		return fmt.Errorf("job %s not found", args[0])
	}
	return nil
}

func runJobs(cmd *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: 30 * time.Second}
	records, err := fetchJobs(cmd.Context(), client, statusServer)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintJobList(records)
	return nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// fetchStatus queries one job and checks the document against the status
// schema before decoding it.
func fetchStatus(ctx context.Context, client *http.Client, base, jobID string) (jobs.Record, error) {
	body, err := getJSON(ctx, client, strings.TrimRight(base, "/")+"/process_status/"+url.PathEscape(jobID))
	if err != nil {
		return jobs.Record{}, err
	}
	if err := schemas.ValidateStatus(body); err != nil {
		return jobs.Record{}, fmt.Errorf("invalid status document: %w", err)
	}

	var rec jobs.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return jobs.Record{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return rec, nil
}

// waitForStatus polls until the job is terminal or ctx ends. onUpdate, when
// set, is called whenever progress or details change.
func waitForStatus(ctx context.Context, client *http.Client, base, jobID string, interval time.Duration, onUpdate func(jobs.Record)) (jobs.Record, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last jobs.Record
	for {
		rec, err := fetchStatus(ctx, client, base, jobID)
		if err != nil {
			return jobs.Record{}, err
		}
		if rec.Status.IsTerminal() {
			return rec, nil
		}
		if onUpdate != nil && (rec.Progress != last.Progress || rec.Details != last.Details) {
			onUpdate(rec)
		}
		last = rec

		select {
		case <-ctx.Done():
			return last, fmt.Errorf("stopped waiting for %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func fetchJobs(ctx context.Context, client *http.Client, base string) ([]jobs.Record, error) {
	body, err := getJSON(ctx, client, strings.TrimRight(base, "/")+"/jobs")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Jobs []jobs.Record `json:"jobs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}
	return resp.Jobs, nil
}
