package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/pdfprep/internal/worker"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "file", Message: "No file part"}
	assert.Equal(t, "validation error: file - No file part", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "No file part", publicMessage(err))
}

func TestErrTooLarge(t *testing.T) {
	err := &ErrTooLarge{Limit: 1024}
	assert.Equal(t, "upload exceeds the 1024 byte limit", err.Error())
	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "validation", err: &ErrValidation{Field: "file", Message: "x"}, expected: http.StatusBadRequest},
		{name: "wrapped validation", err: fmt.Errorf("upload: %w", &ErrValidation{}), expected: http.StatusBadRequest},
		{name: "too large", err: &ErrTooLarge{}, expected: http.StatusRequestEntityTooLarge},
		{name: "queue full", err: worker.ErrQueueFull, expected: http.StatusServiceUnavailable},
		{name: "closed", err: fmt.Errorf("submit: %w", worker.ErrClosed), expected: http.StatusServiceUnavailable},
		{name: "not exist", err: os.ErrNotExist, expected: http.StatusNotFound},
		{name: "generic", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred", publicMessage(errors.New("open /secret/path: permission denied")))
	assert.Equal(t, "Server busy, please retry later", publicMessage(worker.ErrQueueFull))
}
