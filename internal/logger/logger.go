// Package logger provides the structured logger shared by
// the training driver, the scoring server and the layers
// that emit diagnostics.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the logging interface used throughout anylm.
// It wraps slog.Logger so that callers can inject their
// own handlers in tests.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// Output formats understood by ForFile.
const (
	FormatAuto   = "auto"
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// SlogLogger is a Logger backed by a slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New creates a Logger with the given handler.
func New(handler slog.Handler) Logger {
	return &SlogLogger{logger: slog.New(handler)}
}

// Default creates a text Logger writing to stderr at info
// level.
func Default() Logger {
	return Text(os.Stderr, slog.LevelInfo)
}

// Nop creates a Logger that discards everything.
func Nop() Logger {
	return Text(io.Discard, slog.LevelError+1)
}

// Text creates a Logger with slog's key=value handler.
func Text(w io.Writer, level slog.Level) Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// JSON creates a Logger emitting one JSON object per
// record.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Pretty creates a colored Logger for interactive use.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
}

// ForFile creates a Logger for a file in the given format.
// FormatAuto picks Pretty when f is a terminal and JSON
// otherwise.
func ForFile(f *os.File, format string, level slog.Level) (Logger, error) {
	switch strings.ToLower(format) {
	case FormatAuto, "":
		if IsTerminal(f) {
			return Pretty(f, level), nil
		}
		return JSON(f, level), nil
	case FormatText:
		return Text(f, level), nil
	case FormatJSON:
		return JSON(f, level), nil
	case FormatPretty:
		return Pretty(f, level), nil
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}
}

// FromContext retrieves a Logger from the context.
// If no logger is found, it returns Default().
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return Default()
}

// WithContext adds the logger to the context.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

type loggerKey struct{}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{logger: l.logger.WithGroup(name)}
}

// ParseLevel converts a level name to a slog.Level.
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
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}
