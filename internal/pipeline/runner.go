// Package pipeline runs the per-job processing state machine: load resources,
// read, extract, preprocess and save, writing progress into the job store and
// guaranteeing that every run ends in exactly one terminal record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/progress"
)

// DefaultTimeout applies when Options.Timeout is not positive.
const DefaultTimeout = 300 * time.Second

// Extractor returns the text layer of the PDF at path.
type Extractor interface {
	Extract(ctx context.Context, path string, rep progress.Reporter) (string, error)
}

// Preprocessor tokenizes and filters extracted text.
type Preprocessor interface {
	Prepare(ctx context.Context) error
	Preprocess(ctx context.Context, text string, rep progress.Reporter) (string, error)
}

// Task identifies one run of the pipeline. Deadline, when set, is the moment
// the run times out, counted from acceptance rather than from the start of
// processing.
type Task struct {
	JobID    string
	RunID    string
	Path     string
	Deadline time.Time
}

// Event is a progress update accepted by the store.
type Event struct {
	JobID    string `json:"job_id"`
	RunID    string `json:"run_id"`
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Details  string `json:"details"`
}

// ProgressCallback is called after each accepted progress update.
type ProgressCallback func(event Event)

// Options configures a Runner.
type Options struct {
	OutputDir  string
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	OnProgress ProgressCallback
}

// Runner executes the pipeline for one task at a time per call; it holds no
// per-job state and may be shared by many goroutines.
type Runner struct {
	store        jobs.Store
	extractor    Extractor
	preprocessor Preprocessor
	outputDir    string
	timeout      time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	onProgress   ProgressCallback
}

// NewRunner creates a Runner writing to store.
func NewRunner(store jobs.Store, extractor Extractor, preprocessor Preprocessor, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		store:        store,
		extractor:    extractor,
		preprocessor: preprocessor,
		outputDir:    opts.OutputDir,
		timeout:      opts.Timeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		onProgress:   opts.OnProgress,
	}
}

// OutputName is the file name the processed text of jobID is saved under.
func OutputName(jobID string) string {
	return "processed_" + jobID + ".txt"
}

// Accept writes the initial processing record for jobID, replacing any earlier
// record, and returns the task to hand to a Runner. A positive timeout starts
// the job's clock now; otherwise it starts when the run does.
func Accept(store jobs.Store, jobID, path string, timeout time.Duration) Task {
	t := Task{JobID: jobID, RunID: uuid.NewString(), Path: path}
	if timeout > 0 {
		t.Deadline = time.Now().Add(timeout)
	}
	store.Put(jobID, jobs.NewProcessing(jobID, t.RunID))
	return t
}

// Timeout returns the per-job processing limit.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes every stage for t and returns the record held for the job once
// the run has ended. It never panics and never returns before a terminal record
// has been written for the run, unless a newer upload replaced the job.
//
// A stage that ignores cancellation keeps running after the watchdog has
// recorded the timeout; Run returns only when that stage call does.
func (r *Runner) Run(ctx context.Context, t Task) jobs.Record {
	j := r.newRun(t)
	if !j.deadline.After(j.started) {
		j.timedOut()
	} else {
		j.execute(ctx)
	}

	rec, _ := r.store.Get(t.JobID)
	return rec
}

// Expire records the timeout of a task that never started. It is a no-op once
// the run has finished or the job was replaced.
func (r *Runner) Expire(t Task) jobs.Record {
	r.newRun(t).timedOut()
	rec, _ := r.store.Get(t.JobID)
	return rec
}

func (r *Runner) newRun(t Task) *run {
	now := time.Now()
	deadline := t.Deadline
	if deadline.IsZero() {
		deadline = now.Add(r.timeout)
	}
	return &run{
		r:        r,
		task:     t,
		logger:   r.logger.With("job_id", t.JobID, "run_id", t.RunID),
		started:  now,
		deadline: deadline,
	}
}

type run struct {
	r        *Runner
	task     Task
	logger   *slog.Logger
	started  time.Time
	deadline time.Time
	watchdog *time.Timer
	timings  jobs.Timings
}

func (j *run) execute(parent context.Context) {
	ctx, cancel := context.WithDeadline(parent, j.deadline)
	defer cancel()

	ctx, span := j.r.tracer.StartJob(ctx, j.task.JobID, j.task.RunID)
	defer span.End()

	j.watchdog = time.AfterFunc(time.Until(j.deadline), j.timedOut)
	defer j.watchdog.Stop()

	defer func() {
		if p := recover(); p != nil {
			j.logger.Error("unexpected error processing PDF", "panic", p, "stack", string(debug.Stack()))
			j.finish(ctx, jobs.ErrorKindInternal,
				fmt.Sprintf("Unexpected error processing PDF %s: %v", j.task.JobID, p))
		}
	}()

	j.logger.Info("starting PDF processing", "path", j.task.Path)

	res, err := j.stages(ctx)
	if err != nil {
		observability.RecordError(span, err)
		j.fail(ctx, err)
		return
	}
	j.complete(ctx, res)
}

// output carries the values stages hand to each other.
type output struct {
	size      int64
	raw       string
	processed string
	name      string
	path      string
}

// stages runs every stage in StageOrder, refusing any stage whose
// dependencies have not completed.
func (j *run) stages(ctx context.Context) (jobs.Result, error) {
	var out output
	done := make(map[Stage]bool, len(StageOrder))
	for _, name := range StageOrder {
		def, ok := StageRegistry[name]
		if !ok {
			return jobs.Result{}, fmt.Errorf("unknown stage %q", name)
		}
		for _, dep := range def.Dependencies {
			if !done[dep] {
				return jobs.Result{}, fmt.Errorf("stage %s requires %s, which has not run", name, dep)
			}
		}
		if err := j.step(ctx, name, &out); err != nil {
			return jobs.Result{}, err
		}
		done[name] = true
	}

	return jobs.Result{
		Filename:          out.name,
		FileSize:          out.size,
		ExtractedLength:   len(out.raw),
		ProcessedLength:   len(out.processed),
		FilePath:          j.task.Path,
		ProcessedFilePath: out.path,
	}, nil
}

func (j *run) step(ctx context.Context, name Stage, out *output) error {
	t := j.task
	j.begin(name)

	switch name {
	case StageResources:
		secs, err := j.timed(ctx, name, func(ctx context.Context) error {
			return j.r.preprocessor.Prepare(ctx)
		})
		if err != nil {
			return err
		}
		j.timings.ResourceLoading = secs
		j.advance(name, StageRegistry[name].End,
			fmt.Sprintf("Stopword resources loaded in %.3f seconds", secs))

	case StageReading:
		_, err := j.timed(ctx, name, func(context.Context) error {
			f, err := os.Open(t.Path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			out.size = info.Size()
			return nil
		})
		if err != nil {
			return err
		}

	case StageExtracting:
		sp := j.span(name)
		secs, err := j.timed(ctx, name, func(ctx context.Context) error {
			var err error
			out.raw, err = j.r.extractor.Extract(ctx, t.Path, sp)
			return err
		})
		if err != nil {
			return err
		}
		j.timings.Extraction = secs
		sp.Done(fmt.Sprintf("Text extracted, length: %d characters, time: %.3fs", len(out.raw), secs))

	case StagePreprocessing:
		sp := j.span(name)
		secs, err := j.timed(ctx, name, func(ctx context.Context) error {
			var err error
			out.processed, err = j.r.preprocessor.Preprocess(ctx, out.raw, sp)
			return err
		})
		if err != nil {
			return err
		}
		j.timings.Preprocessing = secs
		sp.Done(fmt.Sprintf("Text preprocessed, length: %d characters, time: %.3fs", len(out.processed), secs))

	case StageSaving:
		out.name = OutputName(t.JobID)
		out.path = filepath.Join(j.r.outputDir, out.name)
		secs, err := j.timed(ctx, name, func(context.Context) error {
			return writeFileAtomic(out.path, []byte(out.processed), j.owned)
		})
		if err != nil {
			return err
		}
		j.timings.Saving = secs

	default:
		return fmt.Errorf("no handler for stage %q", name)
	}
	return nil
}

// owned reports whether the job's record still belongs to this run and is not
// yet terminal.
func (j *run) owned() bool {
	rec, ok := j.r.store.Get(j.task.JobID)
	return ok && rec.RunID == j.task.RunID && !rec.Status.IsTerminal()
}

// timed runs fn as stage name. It refuses to start once ctx is done and wraps
// failures in *StageError.
func (j *run) timed(ctx context.Context, name Stage, fn func(ctx context.Context) error) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ctx, span := j.r.tracer.StartStage(ctx, string(name))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	j.r.metrics.RecordStage(ctx, string(name), elapsed)

	if err != nil {
		observability.RecordError(span, err)
		return elapsed.Seconds(), &StageError{Stage: name, Err: err}
	}
	j.logger.Debug("stage finished", "stage", name, "duration_ms", elapsed.Milliseconds())
	return elapsed.Seconds(), nil
}

func (j *run) begin(name Stage) {
	def := StageRegistry[name]
	j.logger.Info(def.StartDetails, "stage", name, "progress", def.Start)
	j.advance(name, def.Start, def.StartDetails)
}

func (j *run) span(name Stage) *progress.Span {
	def := StageRegistry[name]
	return progress.NewSpan(def.Start, def.End, def.ProgressLabel, func(p int, details string) {
		j.advance(name, p, details)
	}, j.logger)
}

// advance writes a progress update and notifies the callback. A panicking
// callback is logged and ignored.
func (j *run) advance(stage Stage, pct int, details string) {
	if !j.r.store.Advance(j.task.JobID, j.task.RunID, pct, details) {
		j.logger.Debug("progress update ignored", "stage", stage, "progress", pct)
		return
	}
	j.logger.Debug("processing progress", "stage", stage, "progress", pct, "details", details)

	if j.r.onProgress == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			j.r.metrics.RecordProgressFault(context.Background(), string(stage))
			j.logger.Warn("progress callback panicked", "stage", stage, "panic", p)
		}
	}()
	j.r.onProgress(Event{
		JobID:    j.task.JobID,
		RunID:    j.task.RunID,
		Stage:    stage,
		Progress: pct,
		Details:  details,
	})
}

func (j *run) fail(ctx context.Context, err error) {
	switch {
	case errors.Is(err, errSuperseded):
		j.watchdog.Stop()
		j.logger.Warn("discarding output, job already finished or replaced")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		j.logger.Warn("stage returned after deadline", "error", err)
		j.finish(ctx, jobs.ErrorKindTimeout, j.timeoutDetails())
	case errors.Is(ctx.Err(), context.Canceled):
		j.finish(ctx, jobs.ErrorKindInternal, fmt.Sprintf("Processing of %s was cancelled", j.task.JobID))
	default:
		var se *StageError
		if errors.As(err, &se) {
			j.logger.Error("stage failed", "stage", se.Stage, "error", se.Err)
			j.finish(ctx, jobs.ErrorKindStage, se.Error())
			return
		}
		j.finish(ctx, jobs.ErrorKindInternal,
			fmt.Sprintf("Unexpected error processing PDF %s: %v", j.task.JobID, err))
	}
}

func (j *run) complete(ctx context.Context, res jobs.Result) {
	total := time.Since(j.started).Seconds()
	j.timings.Total = total
	res.Timings = j.timings

	j.watchdog.Stop()
	rec := jobs.Record{JobID: j.task.JobID, RunID: j.task.RunID, Status: jobs.StatusProcessing}.
		Completed(res, fmt.Sprintf("Processing completed in %.3f seconds", total))
	if !j.r.store.Finish(j.task.JobID, j.task.RunID, rec) {
		j.logger.Warn("discarding result, job already finished or replaced", "output", res.ProcessedFilePath)
		return
	}
	j.r.metrics.RecordFinished(ctx, string(jobs.StatusComplete), "", time.Since(j.started))
	j.logger.Info("PDF processing completed",
		"output", res.ProcessedFilePath,
		"extracted_length", res.ExtractedLength,
		"processed_length", res.ProcessedLength,
		"total_time", total,
	)
}

// finish stops the watchdog and writes an error record for the run.
func (j *run) finish(ctx context.Context, kind jobs.ErrorKind, details string) {
	j.watchdog.Stop()
	j.writeError(ctx, kind, details)
}

// timedOut runs on the watchdog's goroutine, or directly when a task is
// already past its deadline.
func (j *run) timedOut() {
	details := j.timeoutDetails()
	j.logger.Error(details)
	j.writeError(context.Background(), jobs.ErrorKindTimeout, details)
}

func (j *run) writeError(ctx context.Context, kind jobs.ErrorKind, details string) {
	rec := jobs.Record{JobID: j.task.JobID, RunID: j.task.RunID, Status: jobs.StatusProcessing}.
		Failed(kind, details)
	if !j.r.store.Finish(j.task.JobID, j.task.RunID, rec) {
		j.logger.Debug("terminal write rejected", "kind", kind, "details", details)
		return
	}
	j.r.metrics.RecordFinished(ctx, string(jobs.StatusError), string(kind), time.Since(j.started))
	j.logger.Error("PDF processing failed", "kind", kind, "details", details)
}

func (j *run) timeoutDetails() string {
	return fmt.Sprintf("PDF processing timed out after %s seconds", strconv.FormatFloat(j.r.timeout.Seconds(), 'f', -1, 64))
}

// errSuperseded means the run lost its job record before its output could be
// published.
var errSuperseded = errors.New("run no longer owns the job")

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place when commit allows it. A failed or refused save leaves
// no partial output.
func writeFileAtomic(path string, data []byte, commit func() bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".processed-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if commit != nil && !commit() {
		return errSuperseded
	}
	return os.Rename(tmp.Name(), path)
}
