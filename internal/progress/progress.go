// Package progress defines how pipeline stages report completion and how those
// stage-local percentages are mapped onto a job's overall progress.
package progress

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Reporter receives a stage-local completion percentage in [0,100].
// Callers should report non-decreasing values; a stage may finish without ever
// reporting 100.
type Reporter interface {
	Report(percent float64)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(percent float64)

// Report calls f(percent).
func (f ReporterFunc) Report(percent float64) { f(percent) }

// Discard is a Reporter that ignores every update.
var Discard Reporter = ReporterFunc(func(float64) {})

// Sink receives job-level progress (0-100) and a details line.
type Sink func(progress int, details string)

// Span maps a stage's own 0-100 range onto the [Lo, Hi] slice of a job's
// progress. It clamps input, drops updates that would move backwards and
// recovers from a panicking sink so a reporting defect never aborts a stage.
type Span struct {
	lo, hi int
	label  string
	sink   Sink
	logger *slog.Logger

	mu   sync.Mutex
	last float64
	done bool
}

// NewSpan creates a Span covering [lo, hi] of overall progress. label prefixes
// the details line, e.g. "Extracting text" gives "Extracting text: 42.0% complete".
func NewSpan(lo, hi int, label string, sink Sink, logger *slog.Logger) *Span {
	if hi < lo {
		lo, hi = hi, lo
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Span{lo: lo, hi: hi, label: label, sink: sink, logger: logger, last: -1}
}

// Report implements Reporter.
func (s *Span) Report(percent float64) {
	if math.IsNaN(percent) {
		return
	}
	percent = math.Max(0, math.Min(100, percent))

	s.mu.Lock()
	if s.done || percent < s.last {
		s.mu.Unlock()
		return
	}
	s.last = percent
	s.mu.Unlock()

	s.emit(s.Map(percent), fmt.Sprintf("%s: %.1f%% complete", s.label, percent))
}

// Map converts a stage-local percentage into overall job progress.
func (s *Span) Map(percent float64) int {
	return s.lo + int(percent*float64(s.hi-s.lo)/100)
}

// Done closes the span at its upper bound with the given details. Further
// reports are ignored.
func (s *Span) Done(details string) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.last = 100
	s.mu.Unlock()

	s.emit(s.hi, details)
}

func (s *Span) emit(progress int, details string) {
	if s.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("progress report failed", "stage", s.label, "progress", progress, "panic", r)
		}
	}()
	s.sink(progress, details)
}

// Safe wraps r so that a panic raised while reporting is logged and swallowed.
func Safe(r Reporter, logger *slog.Logger) Reporter {
	if r == nil {
		return Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return ReporterFunc(func(percent float64) {
		defer func() {
			if p := recover(); p != nil {
				logger.Warn("progress reporter panicked", "percent", percent, "panic", p)
			}
		}()
		r.Report(percent)
	})
}
