package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	jobsSubmitted  metric.Int64Counter
	jobsRejected   metric.Int64Counter
	jobsFinished   metric.Int64Counter
	stageDuration  metric.Float64Histogram
	jobDuration    metric.Float64Histogram
	progressFaults metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	var err error

	m.jobsSubmitted, err = meter.Int64Counter(
		"pdfprep.jobs.submitted",
		metric.WithDescription("Uploads accepted for processing"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobsSubmitted, _ = meter.Int64Counter("pdfprep.jobs.submitted")
	}

	m.jobsRejected, err = meter.Int64Counter(
		"pdfprep.jobs.rejected",
		metric.WithDescription("Uploads refused because the job queue was full or closed"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobsRejected, _ = meter.Int64Counter("pdfprep.jobs.rejected")
	}

	m.jobsFinished, err = meter.Int64Counter(
		"pdfprep.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal status"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobsFinished, _ = meter.Int64Counter("pdfprep.jobs.finished")
	}

	m.stageDuration, err = meter.Float64Histogram(
		"pdfprep.stage.duration",
		metric.WithDescription("Duration of pipeline stages in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.stageDuration, _ = meter.Float64Histogram("pdfprep.stage.duration")
	}

	m.jobDuration, err = meter.Float64Histogram(
		"pdfprep.job.duration",
		metric.WithDescription("End-to-end job duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.jobDuration, _ = meter.Float64Histogram("pdfprep.job.duration")
	}

	m.progressFaults, err = meter.Int64Counter(
		"pdfprep.progress.faults",
		metric.WithDescription("Progress reports that panicked and were discarded"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		m.progressFaults, _ = meter.Int64Counter("pdfprep.progress.faults")
	}

	return m
}

// RecordSubmitted counts an accepted upload.
func (m *Metrics) RecordSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsSubmitted.Add(ctx, 1)
}

// RecordRejected counts an upload refused by the scheduler.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.jobsRejected.Add(ctx, 1, metric.WithAttributes(ErrorKindAttr(reason)))
}

// RecordFinished counts a terminal write and records the job duration.
func (m *Metrics) RecordFinished(ctx context.Context, status, errorKind string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(StatusAttr(status), ErrorKindAttr(errorKind))
	m.jobsFinished.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordStage records how long a pipeline stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(StageAttr(stage)))
}

// RecordProgressFault counts a progress report that panicked.
func (m *Metrics) RecordProgressFault(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.progressFaults.Add(ctx, 1, metric.WithAttributes(StageAttr(stage)))
}
