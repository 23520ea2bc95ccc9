// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// SessionIDKey is the context key for a pipeline session ID
	SessionIDKey contextKey = "session_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger that writes to w. The TUI uses this to keep
// log lines off the terminal it is drawing on.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and session_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		newLogger = newLogger.WithSessionID(sessionID)
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithSessionID returns a logger with pipeline session ID
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("session_id", sessionID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs a request that ended in an error: at error level for 5xx,
// warn otherwise.
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, "http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// StageFetchFailed logs a page-1 fetch that failed for a single stage.
func (l *Logger) StageFetchFailed(stageID string, generation uint64, err error) {
	l.Warn("stage_fetch_failed",
		slog.String("stage_id", stageID),
		slog.Uint64("generation", generation),
		slog.String("error", err.Error()),
	)
}

// LoadMoreFailed logs an incremental page load that failed.
func (l *Logger) LoadMoreFailed(stageID string, page int, err error) {
	l.Warn("load_more_failed",
		slog.String("stage_id", stageID),
		slog.Int("page", page),
		slog.String("error", err.Error()),
	)
}

// FetchDiscarded logs a fetch result dropped because a newer generation exists.
func (l *Logger) FetchDiscarded(kind string, generation, current uint64) {
	l.Debug("fetch_discarded",
		slog.String("kind", kind),
		slog.Uint64("generation", generation),
		slog.Uint64("current", current),
	)
}

// TransitionFailed logs a stage transition that could not be committed.
func (l *Logger) TransitionFailed(leadID, targetStageID string, override bool, err error) {
	l.Error("transition_failed",
		slog.String("lead_id", leadID),
		slog.String("target_stage_id", targetStageID),
		slog.Bool("override", override),
		slog.String("error", err.Error()),
	)
}

// TransitionResolved logs the final state of a stage transition.
func (l *Logger) TransitionResolved(leadID, targetStageID, state string) {
	l.Info("transition_resolved",
		slog.String("lead_id", leadID),
		slog.String("target_stage_id", targetStageID),
		slog.String("state", state),
	)
}

// RealtimeEvent logs a push event received from another client.
func (l *Logger) RealtimeEvent(kind, source string) {
	l.Debug("realtime_event",
		slog.String("kind", kind),
		slog.String("source", source),
	)
}

// RateLimitExceeded logs a rejected request. key is the user or client IP
// the budget belongs to.
func (l *Logger) RateLimitExceeded(key, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("key", key),
		slog.String("path", path),
	)
}
