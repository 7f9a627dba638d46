// Package logger wraps logrus with request and trace correlation.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

var requestIDKey ctxKey

type Logger struct {
	*logrus.Logger
}

// New builds a JSON logger writing to stdout. Unknown levels fall back to info.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

func NewWithWriter(level string, w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &Logger{Logger: l}
}

// Ctx returns an entry carrying the request id and the active span ids, when present.
func (l *Logger) Ctx(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}

	if id := RequestID(ctx); id != "" {
		fields["request_id"] = id
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}

	return l.Logger.WithContext(ctx).WithFields(fields)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
