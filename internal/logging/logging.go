// Package logging configures the process-wide slog logger: a text handler on
// the console and, when a log directory is configured, a per-run log file.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.Level(12)

// Options configures Setup.
type Options struct {
	// Directory receives app_<uuid>.log. Empty disables file logging.
	Directory string
	// Level is one of DEBUG, INFO, WARN, WARNING, ERROR, CRITICAL.
	Level string
	// Console defaults to os.Stderr.
	Console io.Writer
}

// Result is the outcome of Setup.
type Result struct {
	Logger *slog.Logger
	// FilePath is empty when file logging is disabled.
	FilePath string
	// Removed counts log files of earlier runs that were deleted.
	Removed int
	file    *os.File
}

// Close flushes and closes the log file, if any.
func (r *Result) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// ParseLevel maps a level name onto a slog level. Unknown names give INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "CRITICAL":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger described by opts and installs it as slog's default.
func Setup(opts Options) (*Result, error) {
	level := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: renameCritical}
	handlers := []slog.Handler{slog.NewTextHandler(console, handlerOpts)}

	res := &Result{}
	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		removed, err := cleanupOldLogs(opts.Directory)
		if err != nil {
			fmt.Fprintf(console, "warning: %v\n", err)
		}
		res.Removed = removed

		res.FilePath = filepath.Join(opts.Directory, fmt.Sprintf("app_%s.log", uuid.NewString()))
		f, err := os.OpenFile(res.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		res.file = f
		handlers = append(handlers, slog.NewTextHandler(f, handlerOpts))
	}

	res.Logger = slog.New(fanout(handlers))
	slog.SetDefault(res.Logger)
	return res, nil
}

// cleanupOldLogs removes app_*.log files left by previous runs. It keeps going
// after a failed removal and reports every failure.
func cleanupOldLogs(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "app_*.log"))
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			errs = append(errs, fmt.Errorf("error deleting old log file %s: %w", m, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func renameCritical(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
			a.Value = slog.StringValue("CRITICAL")
		}
	}
	return a
}

// fanout sends every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
