// Package logger wraps log/slog with the event helpers the service logs
// through. Development gets text output at debug level; every other
// environment gets JSON at info level.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
)

type Logger struct {
	*slog.Logger
}

func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard drops every record. Tests use it.
func Discard() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// ContextWithRequestID stores the request id picked up by WithContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithSessionID stores the visitor session picked up by WithContext.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithContext adds request_id and session_id when ctx carries them.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	out := l
	if id, _ := ctx.Value(requestIDKey).(string); id != "" {
		out = out.WithRequestID(id)
	}
	if id, _ := ctx.Value(sessionIDKey).(string); id != "" {
		out = out.WithSessionID(id)
	}
	return out
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{l.With(slog.String("request_id", requestID))}
}

func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{l.With(slog.String("session_id", sessionID))}
}

func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Any("error", err),
		slog.String("client_ip", clientIP),
	)
}

// LeadScoreSynced is logged at debug level: every sync produces one.
func (l *Logger) LeadScoreSynced(sessionID string, score int, tier string, isVIP bool) {
	l.Debug("lead_score_synced",
		slog.String("session_id", sessionID),
		slog.Int("score", score),
		slog.String("tier", tier),
		slog.Bool("is_vip", isVIP),
	)
}

func (l *Logger) VIPEscalation(sessionID, alertType string, score int, adminNotified bool) {
	l.Info("vip_escalation",
		slog.String("session_id", sessionID),
		slog.String("alert_type", alertType),
		slog.Int("score", score),
		slog.Bool("admin_notified", adminNotified),
	)
}

func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error", slog.String("operation", operation), slog.Any("error", err))
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", slog.String("client_ip", clientIP), slog.String("path", path))
}
