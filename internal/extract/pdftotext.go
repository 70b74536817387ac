package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jonathan/pdfprep/internal/progress"
)

// Pdftotext extracts text by shelling out to poppler's pdftotext, one page per
// invocation so progress can be reported. When pdfinfo cannot count the pages
// the whole document is converted in a single call.
type Pdftotext struct {
	pdftotext string
	pdfinfo   string
	runner    Runner
	logger    *slog.Logger
}

// NewPdftotext creates a Pdftotext extractor. Empty binary paths fall back to
// the names on PATH; a nil runner executes real processes.
func NewPdftotext(pdftotextPath, pdfinfoPath string, runner Runner, logger *slog.Logger) *Pdftotext {
	if pdftotextPath == "" {
		pdftotextPath = "pdftotext"
	}
	if pdfinfoPath == "" {
		pdfinfoPath = "pdfinfo"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	return &Pdftotext{pdftotext: pdftotextPath, pdfinfo: pdfinfoPath, runner: runner, logger: logger}
}

// Extract implements Extractor.
func (p *Pdftotext) Extract(ctx context.Context, path string, rep progress.Reporter) (string, error) {
	rep = progress.Safe(rep, p.logger)

	total, err := p.pageCount(ctx, path)
	if err != nil {
		p.logger.Warn("pdfinfo failed, converting whole document", "path", path, "error", err)
		text, err := p.convert(ctx, path)
		if err != nil {
			return "", err
		}
		rep.Report(100)
		return CleanText(text), nil
	}
	if total == 0 {
		return "", ErrNoPages
	}

	var b strings.Builder
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("extraction interrupted at page %d of %d: %w", i, total, err)
		}
		page := strconv.Itoa(i)
		text, err := p.convert(ctx, path, "-f", page, "-l", page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
		rep.Report(pagePercent(i, total))
	}
	return CleanText(b.String()), nil
}

func (p *Pdftotext) convert(ctx context.Context, path string, extra ...string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix [-f N -l N] <path> -
	args := append([]string{"-layout", "-enc", "UTF-8", "-eol", "unix"}, extra...)
	args = append(args, path, "-")
	out, errb, err := p.runner.Run(ctx, p.pdftotext, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return "", fmt.Errorf("pdftotext: %w: %s", err, truncate(msg, 512))
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func (p *Pdftotext) pageCount(ctx context.Context, path string) (int, error) {
	out, _, err := p.runner.Run(ctx, p.pdfinfo, path)
	if err != nil {
		return 0, err
	}
	return parsePages(out)
}

func parsePages(info []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(info))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("invalid page count %q: %w", value, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output has no Pages field")
}
