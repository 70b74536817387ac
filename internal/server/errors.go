// Package server provides the HTTP API for uploading PDFs and following their
// processing.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jonathan/pdfprep/internal/worker"
)

// ErrValidation indicates request validation failure. Message is returned to
// the client verbatim.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrTooLarge indicates the request body exceeded the configured upload limit.
type ErrTooLarge struct {
	Limit int64
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("upload exceeds the %d byte limit", e.Limit)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	var tooLarge *ErrTooLarge
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text shown to clients for err.
func publicMessage(err error) string {
	var validation *ErrValidation
	var tooLarge *ErrTooLarge
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &tooLarge):
		return "File too large"
	case errors.Is(err, worker.ErrQueueFull):
		return "Server busy, please retry later"
	case errors.Is(err, worker.ErrClosed):
		return "Server is shutting down"
	case errors.Is(err, os.ErrNotExist):
		return "File not found"
	default:
		return "An unexpected error occurred"
	}
}
