// Package extract implements the text extraction stage: reading a PDF from disk
// and returning its text layer page by page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/pdfprep/internal/progress"
)

// ErrNoPages is returned for documents whose page tree is empty.
var ErrNoPages = errors.New("document has no pages")

// Backend names accepted by New.
const (
	BackendNative    = "native"
	BackendPdftotext = "pdftotext"
)

// Extractor returns the text of the PDF at path, reporting per-page progress.
type Extractor interface {
	Extract(ctx context.Context, path string, rep progress.Reporter) (string, error)
}

// Options selects and configures an extraction backend.
type Options struct {
	Backend       string
	PdftotextPath string
	PdfinfoPath   string
	Logger        *slog.Logger
}

// New returns the extractor for opts.Backend. An empty backend selects the
// native reader.
func New(opts Options) (Extractor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Backend {
	case "", BackendNative:
		return NewNative(logger), nil
	case BackendPdftotext:
		return NewPdftotext(opts.PdftotextPath, opts.PdfinfoPath, nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown extractor backend %q", opts.Backend)
	}
}

func pagePercent(page, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(page) * 100 / float64(total)
}
