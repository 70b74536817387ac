package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/pdfprep/internal/extract"
	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/progress"
	"github.com/jonathan/pdfprep/internal/testutil"
	"github.com/jonathan/pdfprep/internal/textprep"
)

type fakeExtractor struct {
	text  string
	err   error
	delay time.Duration
	steps int
	panic bool
	calls atomic.Int32
	fail  map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, path string, rep progress.Reporter) (string, error) {
	f.calls.Add(1)
	if f.panic {
		panic("nil page dictionary")
	}
	if err, ok := f.fail[filepath.Base(path)]; ok {
		return "", err
	}
	if f.delay > 0 {
		// Ignores ctx on purpose: models a blocking library call.
		time.Sleep(f.delay)
	}
	for i := 1; i <= f.steps; i++ {
		rep.Report(float64(i) * 100 / float64(f.steps))
	}
	return f.text, f.err
}

type fakePreprocessor struct {
	prepareErr error
	err        error
	called     atomic.Bool
}

func (f *fakePreprocessor) Prepare(context.Context) error { return f.prepareErr }

func (f *fakePreprocessor) Preprocess(_ context.Context, text string, rep progress.Reporter) (string, error) {
	f.called.Store(true)
	if f.err != nil {
		return "", f.err
	}
	rep.Report(50)
	return strings.ToUpper(text), nil
}

type fixture struct {
	store  *jobs.MemoryStore
	inDir  string
	outDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{store: jobs.NewMemoryStore(), inDir: t.TempDir(), outDir: t.TempDir()}
}

func (f fixture) upload(t *testing.T, name string) Task {
	t.Helper()
	path := filepath.Join(f.inDir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644))
	return Accept(f.store, name, path, 0)
}

func (f fixture) runner(ex Extractor, pre Preprocessor, opts Options) *Runner {
	opts.OutputDir = f.outDir
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoopMetrics()
	}
	return NewRunner(f.store, ex, pre, opts)
}

func TestRunner_Completes(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "doc.pdf")
	r := f.runner(&fakeExtractor{text: "raw text", steps: 4}, &fakePreprocessor{}, Options{})

	rec := r.Run(context.Background(), task)

	require.Equal(t, jobs.StatusComplete, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Contains(t, rec.Details, "Processing completed in")
	require.NotNil(t, rec.Result)
	assert.Equal(t, "processed_doc.pdf.txt", rec.Filename)
	assert.Equal(t, int64(len("%PDF-1.4 stub")), rec.FileSize)
	assert.Equal(t, 8, rec.ExtractedLength)
	assert.Equal(t, 8, rec.ProcessedLength)
	assert.Equal(t, filepath.Join(f.outDir, "processed_doc.pdf.txt"), rec.ProcessedFilePath)
	assert.GreaterOrEqual(t, rec.Total, rec.Extraction)

	data, err := os.ReadFile(rec.ProcessedFilePath)
	require.NoError(t, err)
	assert.Equal(t, "RAW TEXT", string(data))
}

func TestRunner_ProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "doc.pdf")

	var mu sync.Mutex
	var events []Event
	r := f.runner(&fakeExtractor{text: "x", steps: 10}, &fakePreprocessor{}, Options{
		OnProgress: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	r.Run(context.Background(), task)

	require.NotEmpty(t, events)
	stagesSeen := map[Stage]bool{}
	for i, e := range events {
		stagesSeen[e.Stage] = true
		assert.Less(t, e.Progress, 100)
		if i > 0 {
			assert.GreaterOrEqual(t, e.Progress, events[i-1].Progress, "event %d (%s)", i, e.Details)
		}
	}
	for _, s := range StageOrder {
		assert.True(t, stagesSeen[s], "no progress for stage %s", s)
	}
	assert.Contains(t, events[0].Details, "Loading stopword resources")
}

func TestRunner_ExtractionFailureShortCircuits(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "bad.pdf")
	pre := &fakePreprocessor{}
	r := f.runner(&fakeExtractor{err: errors.New("xref table not found")}, pre, Options{})

	rec := r.Run(context.Background(), task)

	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindStage, rec.ErrorKind)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, "Error extracting text from PDF: xref table not found", rec.Details)
	assert.Nil(t, rec.Result)
	assert.False(t, pre.called.Load(), "preprocessing must not run")
	assert.NoFileExists(t, filepath.Join(f.outDir, OutputName("bad.pdf")))
}

func TestRunner_StageFailures(t *testing.T) {
	tests := []struct {
		name   string
		ex     *fakeExtractor
		pre    *fakePreprocessor
		mutate func(t *testing.T, f fixture, task *Task)
		prefix string
	}{
		{
			name:   "resources",
			ex:     &fakeExtractor{},
			pre:    &fakePreprocessor{prepareErr: errors.New("stopword list is empty")},
			prefix: "Error loading stopword resources: stopword list is empty",
		},
		{
			name: "open",
			ex:   &fakeExtractor{},
			pre:  &fakePreprocessor{},
			mutate: func(t *testing.T, f fixture, task *Task) {
				require.NoError(t, os.Remove(task.Path))
			},
			prefix: "Error opening file: ",
		},
		{
			name:   "preprocess",
			ex:     &fakeExtractor{text: "t"},
			pre:    &fakePreprocessor{err: errors.New("tokenizer exploded")},
			prefix: "Error preprocessing text: tokenizer exploded",
		},
		{
			name: "save",
			ex:   &fakeExtractor{text: "t"},
			pre:  &fakePreprocessor{},
			mutate: func(t *testing.T, f fixture, task *Task) {
				// A directory squatting on the output path makes the rename fail.
				require.NoError(t, os.Mkdir(filepath.Join(f.outDir, OutputName(task.JobID)), 0o755))
			},
			prefix: "Error saving processed text: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.upload(t, "doc.pdf")
			if tt.mutate != nil {
				tt.mutate(t, f, &task)
			}

			rec := f.runner(tt.ex, tt.pre, Options{}).Run(context.Background(), task)

			assert.Equal(t, jobs.StatusError, rec.Status)
			assert.Equal(t, jobs.ErrorKindStage, rec.ErrorKind)
			assert.True(t, strings.HasPrefix(rec.Details, tt.prefix), rec.Details)
		})
	}
}

func TestRunner_TimeoutWinsOverLateSuccess(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "slow.pdf")
	r := f.runner(&fakeExtractor{text: "late", delay: 300 * time.Millisecond}, &fakePreprocessor{},
		Options{Timeout: 50 * time.Millisecond})

	done := make(chan jobs.Record, 1)
	go func() { done <- r.Run(context.Background(), task) }()

	require.Eventually(t, func() bool {
		rec, _ := f.store.Get(task.JobID)
		return rec.Status == jobs.StatusError
	}, time.Second, 5*time.Millisecond, "watchdog should record the timeout while the stage is still blocked")

	rec := <-done
	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindTimeout, rec.ErrorKind)
	assert.Contains(t, rec.Details, "timed out")
	assert.Equal(t, "PDF processing timed out after 0.05 seconds", rec.Details)
	assert.NoFileExists(t, filepath.Join(f.outDir, OutputName(task.JobID)))
}

func TestRunner_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "doc.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := f.runner(&fakeExtractor{text: "t"}, &fakePreprocessor{}, Options{}).Run(ctx, task)

	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindInternal, rec.ErrorKind)
	assert.Contains(t, rec.Details, "cancelled")
}

func TestRunner_PanicBecomesInternalError(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "doc.pdf")

	var rec jobs.Record
	require.NotPanics(t, func() {
		rec = f.runner(&fakeExtractor{panic: true}, &fakePreprocessor{}, Options{}).Run(context.Background(), task)
	})

	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindInternal, rec.ErrorKind)
	assert.Equal(t, "Unexpected error processing PDF doc.pdf: nil page dictionary", rec.Details)
}

func TestRunner_ProgressCallbackPanicIsTolerated(t *testing.T) {
	f := newFixture(t)
	task := f.upload(t, "doc.pdf")
	r := f.runner(&fakeExtractor{text: "kept", steps: 3}, &fakePreprocessor{}, Options{
		OnProgress: func(Event) {
			var total int
			_ = 100 / total
		},
	})

	rec := r.Run(context.Background(), task)

	assert.Equal(t, jobs.StatusComplete, rec.Status)
	assert.Equal(t, 4, rec.ExtractedLength)
}

func TestRunner_IndependentJobs(t *testing.T) {
	f := newFixture(t)
	good := f.upload(t, "good.pdf")
	bad := f.upload(t, "bad.pdf")
	ex := &fakeExtractor{text: "fine", steps: 5, fail: map[string]error{"bad.pdf": errors.New("corrupt")}}
	r := f.runner(ex, &fakePreprocessor{}, Options{})

	var wg sync.WaitGroup
	for _, task := range []Task{good, bad} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(context.Background(), task)
		}()
	}
	wg.Wait()

	goodRec, _ := f.store.Get("good.pdf")
	badRec, _ := f.store.Get("bad.pdf")
	assert.Equal(t, jobs.StatusComplete, goodRec.Status)
	assert.Equal(t, jobs.StatusError, badRec.Status)
	assert.FileExists(t, filepath.Join(f.outDir, OutputName("good.pdf")))
	assert.NoFileExists(t, filepath.Join(f.outDir, OutputName("bad.pdf")))
}

func TestRunner_StaleRunCannotOverwriteNewerUpload(t *testing.T) {
	f := newFixture(t)
	stale := f.upload(t, "doc.pdf")
	fresh := Accept(f.store, "doc.pdf", stale.Path, 0)

	f.runner(&fakeExtractor{text: "old"}, &fakePreprocessor{}, Options{}).Run(context.Background(), stale)

	rec, ok := f.store.Get("doc.pdf")
	require.True(t, ok)
	assert.Equal(t, fresh.RunID, rec.RunID)
	assert.Equal(t, jobs.StatusProcessing, rec.Status)
	assert.Equal(t, 0, rec.Progress)
}

func TestRunner_StaleRunDoesNotReplaceNewerOutput(t *testing.T) {
	f := newFixture(t)
	stale := f.upload(t, "doc.pdf")
	fresh := Accept(f.store, "doc.pdf", stale.Path, 0)

	freshRec := f.runner(&fakeExtractor{text: "new"}, &fakePreprocessor{}, Options{}).Run(context.Background(), fresh)
	require.Equal(t, jobs.StatusComplete, freshRec.Status)

	staleRec := f.runner(&fakeExtractor{text: "old"}, &fakePreprocessor{}, Options{}).Run(context.Background(), stale)
	assert.Equal(t, fresh.RunID, staleRec.RunID)
	assert.Equal(t, jobs.StatusComplete, staleRec.Status)

	data, err := os.ReadFile(freshRec.ProcessedFilePath)
	require.NoError(t, err)
	assert.Equal(t, "NEW", string(data))

	leftovers, err := filepath.Glob(filepath.Join(f.outDir, ".processed-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRunner_ExpiredTaskSkipsStages(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.inDir, "late.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644))
	task := Accept(f.store, "late.pdf", path, 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	ex := &fakeExtractor{text: "never"}
	rec := f.runner(ex, &fakePreprocessor{}, Options{Timeout: 20 * time.Millisecond}).Run(context.Background(), task)

	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindTimeout, rec.ErrorKind)
	assert.Equal(t, "PDF processing timed out after 0.02 seconds", rec.Details)
	assert.Zero(t, ex.calls.Load())
	assert.NoFileExists(t, filepath.Join(f.outDir, OutputName("late.pdf")))
}

func TestRunner_DeadlineCountsFromAcceptance(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.inDir, "queued.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644))
	task := Accept(f.store, "queued.pdf", path, 150*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	r := f.runner(&fakeExtractor{text: "slow", delay: 100 * time.Millisecond}, &fakePreprocessor{},
		Options{Timeout: 150 * time.Millisecond})
	rec := r.Run(context.Background(), task)

	assert.Equal(t, jobs.ErrorKindTimeout, rec.ErrorKind, "time spent waiting counts against the limit")
}

func TestRunner_Expire(t *testing.T) {
	f := newFixture(t)
	r := f.runner(&fakeExtractor{text: "done"}, &fakePreprocessor{}, Options{Timeout: time.Minute})

	waiting := f.upload(t, "waiting.pdf")
	rec := r.Expire(waiting)
	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindTimeout, rec.ErrorKind)
	assert.Equal(t, "PDF processing timed out after 60 seconds", rec.Details)

	finished := f.upload(t, "finished.pdf")
	require.Equal(t, jobs.StatusComplete, r.Run(context.Background(), finished).Status)
	assert.Equal(t, jobs.StatusComplete, r.Expire(finished).Status, "a finished run keeps its record")
}

func TestRunner_RefusesStageWithUnmetDependency(t *testing.T) {
	saved := StageOrder
	StageOrder = []Stage{StageResources, StageExtracting, StagePreprocessing, StageSaving}
	defer func() { StageOrder = saved }()

	f := newFixture(t)
	task := f.upload(t, "doc.pdf")
	ex := &fakeExtractor{text: "t"}
	rec := f.runner(ex, &fakePreprocessor{}, Options{}).Run(context.Background(), task)

	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindInternal, rec.ErrorKind)
	assert.Contains(t, rec.Details, "requires reading")
	assert.Zero(t, ex.calls.Load())
}

func TestRunner_RoundTripRealPDF(t *testing.T) {
	f := newFixture(t)
	pages := []string{
		"The annual report describes the growth of the company over the last year",
		"Revenue increased while the operating costs were kept under control",
		"In the final section the board outlines its plans for the next decade",
	}
	path := testutil.WritePDF(t, f.inDir, "report.pdf", pages)
	task := Accept(f.store, "report.pdf", path, 0)

	r := f.runner(extract.NewNative(nil), textprep.New(nil), Options{})
	rec := r.Run(context.Background(), task)

	require.Equal(t, jobs.StatusComplete, rec.Status, rec.Details)
	out, err := os.ReadFile(rec.ProcessedFilePath)
	require.NoError(t, err)

	rawWords := textprep.CountWords(strings.Join(pages, " "))
	processedWords := textprep.CountWords(string(out))
	assert.Greater(t, processedWords, 0)
	assert.LessOrEqual(t, processedWords, rawWords)
	assert.Contains(t, string(out), "revenue increased")
	assert.NotContains(t, strings.Fields(string(out)), "the")
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "processed_report.pdf.txt", OutputName("report.pdf"))
}
