package utils

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger wraps a structured slog.Logger with the short-form call sites the
// rest of the codebase is written against.
type Logger struct {
	*slog.Logger
	level string
}

// NewLogger builds a Logger writing structured text records to stdout.
// Recognized levels: "debug", "info", "warn", "error". Unknown levels fall
// back to "info".
func NewLogger(level string) *Logger {
	lvl := parseLevel(level)
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &Logger{Logger: slog.New(h), level: level}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger whose records carry the given key/value pairs,
// preserving the configured level.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Logger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.Logger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Logger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Logger.Error(fmt.Sprintf(format, args...))
}
