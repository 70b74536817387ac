// Package textprep implements the preprocessing stage: tokenization followed by
// English stopword removal.
package textprep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/pdfprep/internal/progress"
)

// DefaultChunkSize is the number of tokens filtered between progress reports
// and cancellation checks.
const DefaultChunkSize = 2000

// Preprocessor filters stopwords out of extracted text.
type Preprocessor struct {
	ChunkSize int
	Logger    *slog.Logger
}

// New creates a Preprocessor with default settings.
func New(logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{ChunkSize: DefaultChunkSize, Logger: logger}
}

// Prepare loads the stopword list. It is cheap after the first call.
func (p *Preprocessor) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := len(Stopwords()); n == 0 {
		return fmt.Errorf("stopword list is empty")
	}
	return nil
}

// Preprocess tokenizes text and removes stopwords, returning the remaining
// tokens joined by single spaces. Progress is reported per chunk of tokens.
func (p *Preprocessor) Preprocess(ctx context.Context, text string, rep progress.Reporter) (string, error) {
	rep = progress.Safe(rep, p.Logger)
	stop := Stopwords()

	tokens := Tokenize(text)
	total := len(tokens)
	if total == 0 {
		rep.Report(100)
		return "", nil
	}

	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	kept := make([]string, 0, total/2)
	for start := 0; start < total; start += chunk {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("preprocessing interrupted at token %d of %d: %w", start, total, err)
		}
		end := min(start+chunk, total)
		for _, tok := range tokens[start:end] {
			if _, ok := stop[tok]; ok {
				continue
			}
			kept = append(kept, tok)
		}
		rep.Report(float64(end) * 100 / float64(total))
	}

	p.Logger.Debug("text preprocessed", "tokens", total, "kept", len(kept))
	return strings.Join(kept, " "), nil
}
