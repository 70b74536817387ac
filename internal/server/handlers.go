package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/pipeline"
)

const pdfMIME = "application/pdf"

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	JobID     string      `json:"job_id"`
	RunID     string      `json:"run_id"`
	Status    jobs.Status `json:"status"`
	StatusURL string      `json:"status_url"`
	EventsURL string      `json:"events_url"`
	ResultURL string      `json:"result_url"`
}

// JobsResponse lists every known job.
type JobsResponse struct {
	Jobs  []jobs.Record `json:"jobs"`
	Count int           `json:"count"`
	Queue any           `json:"queue,omitempty"`
}

// handleUpload validates and stores an uploaded PDF, then schedules its
// processing and answers 202 without waiting for it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parse := observability.StartServerTiming(ctx, "parse")
	file, header, err := s.readUpload(w, r)
	parse.Stop()
	if err != nil {
		s.logger.Warn("upload rejected", "error", err)
		s.errorResponse(w, HTTPStatus(err), publicMessage(err))
		return
	}
	defer file.Close()

	sniff := observability.StartServerTimingWithDesc(ctx, "sniff", "content type detection")
	err = checkPDF(file)
	sniff.Stop()
	if err != nil {
		s.logger.Warn("upload rejected", "filename", header.Filename, "error", err)
		s.errorResponse(w, HTTPStatus(err), publicMessage(err))
		return
	}

	jobID := SecureFilename(header.Filename)
	if jobID == "" {
		err := &ErrValidation{Field: "file", Message: "Invalid file name"}
		s.logger.Warn("upload rejected", "filename", header.Filename, "error", err)
		s.errorResponse(w, HTTPStatus(err), publicMessage(err))
		return
	}

	save := observability.StartServerTiming(ctx, "save")
	path, size, err := s.saveUpload(jobID, file)
	save.Stop()
	if err != nil {
		s.logger.Error("saving upload", "job_id", jobID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Error saving uploaded file")
		return
	}
	s.logger.Info("file uploaded", "job_id", jobID, "path", path, "bytes", size)

	task := pipeline.Accept(s.store, jobID, path, s.cfg.Timeout())
	if err := s.scheduler.Submit(ctx, task); err != nil {
		s.reject(w, r, task, err)
		return
	}
	s.metrics.RecordSubmitted(ctx)

	s.jsonResponse(w, http.StatusAccepted, UploadResponse{
		JobID:     jobID,
		RunID:     task.RunID,
		Status:    jobs.StatusProcessing,
		StatusURL: "/process_status/" + url.PathEscape(jobID),
		EventsURL: "/process_status/" + url.PathEscape(jobID) + "/events",
		ResultURL: "/processed/" + url.PathEscape(pipeline.OutputName(jobID)),
	})
}

// readUpload extracts the "file" part of a multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if s.cfg.MaxContentLength > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxContentLength)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, &ErrTooLarge{Limit: s.cfg.MaxContentLength}
		}
		return nil, nil, &ErrValidation{Field: "file", Message: "No file part"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// A part without a file name is parsed as a plain form value.
		if _, ok := r.MultipartForm.Value["file"]; ok {
			return nil, nil, &ErrValidation{Field: "file", Message: "No selected file"}
		}
		return nil, nil, &ErrValidation{Field: "file", Message: "No file part"}
	}
	if header.Filename == "" {
		file.Close()
		return nil, nil, &ErrValidation{Field: "file", Message: "No selected file"}
	}
	return file, header, nil
}

// checkPDF sniffs the content type of file and rewinds it.
func checkPDF(file multipart.File) error {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("detecting content type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding upload: %w", err)
	}
	if !mtype.Is(pdfMIME) {
		return &ErrValidation{Field: "file", Message: "Invalid file type. Please upload a PDF file."}
	}
	return nil
}

// saveUpload writes the upload into the input directory under jobID. An
// earlier file of the same name is replaced by rename, so a run still reading
// it keeps its own copy.
func (s *Server) saveUpload(jobID string, src io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.cfg.InputDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating input directory: %w", err)
	}
	path := filepath.Join(s.cfg.InputDir, jobID)

	tmp, err := os.CreateTemp(s.cfg.InputDir, ".upload-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("replacing %s: %w", path, err)
	}
	return path, n, nil
}

// reject closes out a task the scheduler refused.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, task pipeline.Task, cause error) {
	details := fmt.Sprintf("Upload rejected: %s", publicMessage(cause))
	if rec, ok := s.store.Get(task.JobID); ok {
		s.store.Finish(task.JobID, task.RunID, rec.Failed(jobs.ErrorKindRejected, details))
	}
	s.metrics.RecordRejected(r.Context(), "queue")
	s.logger.Warn("upload not scheduled", "job_id", task.JobID, "run_id", task.RunID, "error", cause)

	w.Header().Set("Retry-After", "5")
	s.jsonResponse(w, HTTPStatus(cause), map[string]string{
		"error":  publicMessage(cause),
		"job_id": task.JobID,
	})
}

// handleStatus returns the current record for a job. Unknown ids get a
// not-found shaped record with status 200.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lookup := s.query.Lookup(id)
	s.logger.Debug("status query", "job_id", id, "found", lookup.Found, "status", lookup.Status)
	s.jsonResponse(w, http.StatusOK, lookup)
}

// handleEvents streams a job's record as Server-Sent Events until it reaches
// a terminal state or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	id := r.PathValue("id")
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	var last jobs.Record
	sent := false
	for {
		lookup := s.query.Lookup(id)
		if !sent || changed(last, lookup.Record) {
			done, err := sse.WriteRecord(lookup.Record)
			if err != nil || done {
				return
			}
			last, sent = lookup.Record, true
		}

		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if err := sse.WriteKeepAlive(); err != nil {
				return
			}
		case <-ticker.C:
		}
	}
}

func changed(a, b jobs.Record) bool {
	return a.RunID != b.RunID || a.Status != b.Status || a.Progress != b.Progress || a.Details != b.Details
}

// handleProcessed serves a processed text file as an attachment. Only the base
// name of the requested path is used.
func (s *Server) handleProcessed(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(filepath.Clean("/" + r.PathValue("filename")))
	if name == "/" || name == "." {
		s.errorResponse(w, http.StatusNotFound, "File not found")
		return
	}
	path := filepath.Join(s.cfg.OutputDir, name)

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("opening processed file", "path", path, "error", err)
		}
		s.errorResponse(w, HTTPStatus(err), publicMessage(err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.errorResponse(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// handleJobs lists every job record, newest first.
func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	records := s.query.All()
	if records == nil {
		records = []jobs.Record{}
	}
	resp := JobsResponse{Jobs: records, Count: len(records)}
	if s.scheduler != nil {
		resp.Queue = s.scheduler.Stats()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
