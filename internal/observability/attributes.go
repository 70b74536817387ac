// Package observability provides OpenTelemetry instrumentation for the job
// pipeline, Server-Timing helpers for HTTP handlers and formatted summaries for
// the CLI.
//
// Metrics and tracing are opt-in. Without a configured provider the no-op
// implementations are used.
package observability

import "go.opentelemetry.io/otel/attribute"

const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/jonathan/pdfprep"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/jonathan/pdfprep"
)

// Attribute keys.
const (
	AttrJobID     = "pdfprep.job_id"
	AttrStage     = "pdfprep.stage"
	AttrStatus    = "pdfprep.status"
	AttrErrorKind = "pdfprep.error_kind"
	AttrBackend   = "pdfprep.extractor"
)

// JobIDAttr returns the job id attribute.
func JobIDAttr(id string) attribute.KeyValue { return attribute.String(AttrJobID, id) }

// StageAttr returns the pipeline stage attribute.
func StageAttr(stage string) attribute.KeyValue { return attribute.String(AttrStage, stage) }

// StatusAttr returns the terminal status attribute.
func StatusAttr(status string) attribute.KeyValue { return attribute.String(AttrStatus, status) }

// ErrorKindAttr returns the error kind attribute.
func ErrorKindAttr(kind string) attribute.KeyValue { return attribute.String(AttrErrorKind, kind) }
