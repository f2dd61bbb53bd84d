// Package logger provides structured logging for the conductor, wrapping
// log/slog the way the teacher's logger package wraps it.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/flowconductor/conductor/internal/infrastructure/config"
)

// Logger wraps slog.Logger with the handful of helpers the controller and
// its goroutines use.
type Logger struct {
	logger *slog.Logger
}

// New creates a new logger based on the configuration.
func New(cfg config.LoggingConfig) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{logger: slog.New(handler)}
}

// With returns a logger with the given attributes attached to every
// subsequent record.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// WithExecution returns a logger with execution_id attached, sparing the
// controller's per-execution log sites from repeating the key string.
func (l *Logger) WithExecution(executionID int64) *Logger {
	return l.With("execution_id", executionID)
}

// WithExecWf returns a logger with exec_wf_id attached.
func (l *Logger) WithExecWf(execWfID int64) *Logger {
	return l.With("exec_wf_id", execWfID)
}

// WithVertex returns a logger with exec_vertex_id attached.
func (l *Logger) WithVertex(execVertexID int64) *Logger {
	return l.With("exec_vertex_id", execVertexID)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.logger.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...interface{}) {
	l.logger.DebugContext(ctx, msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	l.logger.InfoContext(ctx, msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...interface{}) {
	l.logger.WarnContext(ctx, msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	l.logger.ErrorContext(ctx, msg, args...)
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
