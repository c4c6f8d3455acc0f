// internal/logging/logging.go

// Package logging builds the service logger. Entries fan out to stdout
// and, when configured, a log file, so behaviour is visible both in
// containers and through attached volumes. The stdout handler can be
// switched to colorized output for interactive runs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
)

// Options selects the handlers and their level.
type Options struct {
	// FilePath is the log file location; empty disables the file sink.
	FilePath string
	// Level is one of debug, info, warn, error. Unknown values mean
	// info.
	Level string
	// Pretty switches the stdout handler to colorized output.
	Pretty bool
}

// Setup builds the logger and returns a closer for the file sink. The
// closer is never nil.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)

	var console slog.Handler
	if opts.Pretty {
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	} else {
		console = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	handlers := []slog.Handler{console}
	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(opts.FilePath) != "" {
		f, err := openLogFile(opts.FilePath)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(&teeHandler{handlers: handlers}), closer, nil
}

// ParseLevel maps a level name to its slog value, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// teeHandler fans records out to every underlying handler.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if err := h.Handle(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		next = append(next, h.WithAttrs(attrs))
	}
	return &teeHandler{handlers: next}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		next = append(next, h.WithGroup(name))
	}
	return &teeHandler{handlers: next}
}
