package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type recordingExporter struct {
	mu       sync.Mutex
	spans    []sdktrace.ReadOnlySpan
	shutdown bool
}

func (e *recordingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *recordingExporter) Shutdown(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}

func (e *recordingExporter) Spans() []sdktrace.ReadOnlySpan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdktrace.ReadOnlySpan(nil), e.spans...)
}

func exportOne(t *testing.T, stub tracetest.SpanStub) sdktrace.ReadOnlySpan {
	t.Helper()

	inner := &recordingExporter{}
	exporter := newScrubbingExporter(inner)
	stub.SpanContext = trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{1},
	})
	if err := exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}); err != nil {
		t.Fatalf("ExportSpans() error: %v", err)
	}
	spans := inner.Spans()
	if len(spans) != 1 {
		t.Fatalf("exported spans=%d, want 1", len(spans))
	}
	return spans[0]
}

func TestScrubbingExporterRedactsAttributes(t *testing.T) {
	t.Parallel()

	span := exportOne(t, tracetest.SpanStub{
		Name: "POST /api/spans",
		Attributes: []attribute.KeyValue{
			attribute.String("error.message", "workspace store dial postgres://tracelens:hunter22@db/spans"),
			attribute.String("tracelens.workspace_id", "ws-1"),
			attribute.Int("http.response.status_code", 503),
		},
	})

	attrs := spanAttrMap(span)
	if got := attrs["error.message"]; got != "workspace store dial postgres://tracelens:[CREDENTIAL_REDACTED]@db/spans" {
		t.Fatalf("error.message=%q, want password redacted", got)
	}
	if got := attrs["tracelens.workspace_id"]; got != "ws-1" {
		t.Fatalf("tracelens.workspace_id=%q, want ws-1", got)
	}
	if got := attrs["http.response.status_code"]; got != "503" {
		t.Fatalf("http.response.status_code=%q, want 503", got)
	}
}

func TestScrubbingExporterRedactsEventsAndStatus(t *testing.T) {
	t.Parallel()

	span := exportOne(t, tracetest.SpanStub{
		Name: "span.process",
		Events: []sdktrace.Event{{
			Name: "exception",
			Time: time.Now(),
			Attributes: []attribute.KeyValue{
				attribute.String("exception.message", "rejected token=my_secret_token_value"),
			},
		}},
		Status: sdktrace.Status{
			Code:        codes.Error,
			Description: "write failed with password=supersecret123",
		},
	})

	events := span.Events()
	if len(events) != 1 || len(events[0].Attributes) != 1 {
		t.Fatalf("events=%+v, want one event with one attribute", events)
	}
	if got := events[0].Attributes[0].Value.AsString(); ContainsCredential(got) {
		t.Fatalf("event attribute=%q, want credential redacted", got)
	}
	if ContainsCredential(span.Status().Description) {
		t.Fatalf("status description=%q, want credential redacted", span.Status().Description)
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("status code=%v, want %v", span.Status().Code, codes.Error)
	}
}

func TestScrubAttributesLeavesCleanSliceUntouched(t *testing.T) {
	t.Parallel()

	attrs := []attribute.KeyValue{
		attribute.String("tracelens.key_id", "ingest-a"),
		attribute.String("span_type", "completion"),
	}
	out, dirty := scrubAttributes(attrs)
	if dirty {
		t.Fatalf("scrubAttributes() dirty=true, want false")
	}
	if &out[0] != &attrs[0] {
		t.Fatalf("scrubAttributes() copied a clean slice")
	}

	attrs = append(attrs, attribute.String("auth", "Bearer abcdefghijklmnop"))
	out, dirty = scrubAttributes(attrs)
	if !dirty {
		t.Fatalf("scrubAttributes() dirty=false, want true")
	}
	if attrs[2].Value.AsString() != "Bearer abcdefghijklmnop" {
		t.Fatalf("scrubAttributes() modified its input")
	}
	if out[2].Value.AsString() != credentialRedacted {
		t.Fatalf("scrubbed value=%q, want %q", out[2].Value.AsString(), credentialRedacted)
	}
}

func TestScrubbingExporterShutdownDelegates(t *testing.T) {
	t.Parallel()

	inner := &recordingExporter{}
	if err := newScrubbingExporter(inner).Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if !inner.shutdown {
		t.Fatalf("wrapped exporter was not shut down")
	}
}
