// Package jobs holds the job record model, the in-memory job store and the
// read-only status lookup served to polling clients.
package jobs

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusProcessing means a runner owns the job and is still working on it.
	StatusProcessing Status = "processing"
	// StatusComplete is terminal: the processed text was saved.
	StatusComplete Status = "complete"
	// StatusError is terminal: a stage failed, the job timed out, or it was rejected.
	StatusError Status = "error"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// ErrorKind discriminates the causes of an error record.
type ErrorKind string

const (
	ErrorKindStage    ErrorKind = "stage"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindInternal ErrorKind = "internal"
	ErrorKindRejected ErrorKind = "rejected"
	// ErrorKindNotFound only appears on synthetic records returned for unknown ids.
	ErrorKindNotFound ErrorKind = "not_found"
)

// Timings holds per-stage elapsed durations, in seconds.
type Timings struct {
	ResourceLoading float64 `json:"resource_loading_time"`
	Extraction      float64 `json:"extraction_time"`
	Preprocessing   float64 `json:"preprocessing_time"`
	Saving          float64 `json:"saving_time"`
	Total           float64 `json:"total_time"`
}

// Result is the metadata attached to a complete record.
type Result struct {
	Filename          string `json:"filename"`
	FileSize          int64  `json:"file_size"`
	ExtractedLength   int    `json:"extracted_length"`
	ProcessedLength   int    `json:"processed_length"`
	FilePath          string `json:"file_path"`
	ProcessedFilePath string `json:"processed_file_path"`
	Timings
}

// Record is the full state of one job. Records are values: the store hands out
// copies and replaces them whole, so a reader never sees a partial update.
type Record struct {
	JobID     string    `json:"job_id"`
	RunID     string    `json:"run_id,omitempty"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Details   string    `json:"details"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	*Result
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProcessing builds the initial record written when an upload is accepted.
func NewProcessing(jobID, runID string) Record {
	now := time.Now().UTC()
	return Record{
		JobID:     jobID,
		RunID:     runID,
		Status:    StatusProcessing,
		Progress:  0,
		Details:   "Starting PDF processing...",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Failed returns a terminal error copy of r. Progress is pinned to 100.
func (r Record) Failed(kind ErrorKind, details string) Record {
	r.Status = StatusError
	r.Progress = 100
	r.Details = details
	r.ErrorKind = kind
	r.Result = nil
	return r
}

// Completed returns a terminal complete copy of r carrying res.
func (r Record) Completed(res Result, details string) Record {
	r.Status = StatusComplete
	r.Progress = 100
	r.Details = details
	r.ErrorKind = ""
	r.Result = &res
	return r
}

func (r Record) clone() Record {
	if r.Result != nil {
		res := *r.Result
		r.Result = &res
	}
	return r
}
