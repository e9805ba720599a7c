package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Fields represents structured logging fields.
type Fields map[string]any

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// NewHandler builds the slog handler for the given format.
// "console" is colored output, "text" is plain key=value and "json" is one object per line.
func NewHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	switch format {
	case "console", "":
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}), nil
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

// SetupLogger configures the global logger. When file is not empty records
// are also appended to it as plain text; the returned closer releases it.
func SetupLogger(level slog.Level, format, file string) (io.Closer, error) {
	handler, err := NewHandler(os.Stderr, level, format)
	if err != nil {
		return nil, err
	}

	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path comes from config
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handler = fanout{handler, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})}
		closer = f
	}

	slog.SetDefault(slog.New(handler))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout passes each record to every handler that accepts its level.
type fanout []slog.Handler

func (h fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(h))
	for i, handler := range h {
		out[i] = handler.WithAttrs(attrs)
	}
	return out
}

func (h fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(h))
	for i, handler := range h {
		out[i] = handler.WithGroup(name)
	}
	return out
}

// LogError logs an error with additional context.
func LogError(err error, msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("error", err.Error()))

	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	slog.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// LogWarn logs a warning message with fields.
func LogWarn(msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	slog.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}
