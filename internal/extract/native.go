package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/jonathan/pdfprep/internal/progress"
)

// Native extracts text in-process with github.com/ledongthuc/pdf.
type Native struct {
	logger *slog.Logger
}

// NewNative creates a Native extractor.
func NewNative(logger *slog.Logger) *Native {
	if logger == nil {
		logger = slog.Default()
	}
	return &Native{logger: logger}
}

// Extract reads every page's plain text. The context is checked between pages;
// a single page is never interrupted.
func (n *Native) Extract(ctx context.Context, path string, rep progress.Reporter) (text string, err error) {
	rep = progress.Safe(rep, n.logger)

	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	if total == 0 {
		return "", ErrNoPages
	}
	n.logger.Debug("extracting PDF", "path", path, "pages", total)

	var b strings.Builder
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("extraction interrupted at page %d of %d: %w", i, total, err)
		}

		page := r.Page(i)
		if page.V.IsNull() {
			rep.Report(pagePercent(i, total))
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(content)
		rep.Report(pagePercent(i, total))
	}

	return CleanText(b.String()), nil
}
