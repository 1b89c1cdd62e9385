package observability

import (
	"context"
	"log/slog"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/correlation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// contextLogHandler adds request context to log records: the request id, the
// active OpenTelemetry span and the authenticated workspace. Ingested spans log
// their own trace_id and span_id, so the request span uses otel_ prefixed
// keys.
type contextLogHandler struct {
	inner slog.Handler
}

// NewContextLogHandler wraps inner, or the default handler when inner is nil.
func NewContextLogHandler(inner slog.Handler) slog.Handler {
	if inner == nil {
		inner = slog.Default().Handler()
	}
	return &contextLogHandler{inner: inner}
}

func (h *contextLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx == nil {
		return h.inner.Handle(ctx, record)
	}
	if requestID, ok := correlation.FromContext(ctx); ok {
		record.AddAttrs(slog.String("request_id", requestID))
	}
	span := oteltrace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() && span.IsRecording() {
		record.AddAttrs(
			slog.String("otel_trace_id", sc.TraceID().String()),
			slog.String("otel_span_id", sc.SpanID().String()),
		)
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		if identity.WorkspaceID != "" {
			record.AddAttrs(slog.String("workspace_id", identity.WorkspaceID))
		}
		if identity.KeyID != "" {
			record.AddAttrs(slog.String("api_key_id", identity.KeyID))
		}
	}
	return h.inner.Handle(ctx, record)
}

func (h *contextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextLogHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextLogHandler) WithGroup(name string) slog.Handler {
	return &contextLogHandler{inner: h.inner.WithGroup(name)}
}
