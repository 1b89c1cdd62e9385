package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/span"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

type memoryEnqueuer struct {
	mu      sync.Mutex
	records []*spanstore.Span
	full    bool
}

func (e *memoryEnqueuer) Enqueue(record *spanstore.Span) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.full {
		return false
	}
	e.records = append(e.records, record)
	return true
}

func (e *memoryEnqueuer) bySpanID() map[string]*spanstore.Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*spanstore.Span, len(e.records))
	for _, record := range e.records {
		out[record.SpanID] = record
	}
	return out
}

type recordingMetrics struct {
	mu        sync.Mutex
	processed map[string]int
	costUnits int64
}

func (m *recordingMetrics) RecordSpanProcessed(spanType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed == nil {
		m.processed = map[string]int{}
	}
	m.processed[spanType+"/"+outcome]++
}

func (m *recordingMetrics) RecordCostUnits(_, _ string, units int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costUnits += units
}

func newTestPipeline(t *testing.T, options Options) *Pipeline {
	t.Helper()

	if options.Table == nil {
		options.Table = span.NewTable(span.Dependencies{})
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pipeline, err := NewPipeline(options)
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	pipeline.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return pipeline
}

func testIdentity() *auth.Identity {
	return &auth.Identity{KeyID: "key-1", KeyName: "collector", WorkspaceID: "ws-1", WorkspaceName: "Acme"}
}

const completionBatch = `{"spans": [{
	"trace_id": "trace-1",
	"span_id": "span-1",
	"name": "chat gpt-4",
	"kind": "client",
	"status": "STATUS_CODE_OK",
	"start_time": "2026-03-01T11:59:58Z",
	"end_time": "2026-03-01T12:00:00Z",
	"attributes": {
		"gen_ai": {
			"operation": {"name": "chat"},
			"system": "openai",
			"request": {"model": "gpt-4"},
			"usage": {"input_tokens": 1000, "output_tokens": 500}
		}
	}
}]}`

func TestPipelineBuildsCompletionRecord(t *testing.T) {
	t.Parallel()

	raws, err := DecodeSpans(strings.NewReader(completionBatch))
	if err != nil {
		t.Fatalf("DecodeSpans() error: %v", err)
	}

	writer := &memoryEnqueuer{}
	metrics := &recordingMetrics{}
	pipeline := newTestPipeline(t, Options{Writer: writer, Metrics: metrics})
	pipeline.newID = func() string { return "record-1" }

	result, err := pipeline.Process(context.Background(), testIdentity(), raws)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if result.Accepted != 1 || result.Rejected != 0 || result.Dropped != 0 {
		t.Fatalf("result=%+v, want one accepted span", result)
	}
	outcome := result.Spans[0]
	if outcome.ID != "record-1" || outcome.Type != span.TypeCompletion || outcome.Outcome != OutcomeProcessed {
		t.Fatalf("outcome=%+v, want processed completion record-1", outcome)
	}
	if _, ok := outcome.Metadata.(*span.CompletionMetadata); !ok {
		t.Fatalf("Metadata=%T, want *span.CompletionMetadata", outcome.Metadata)
	}

	record := writer.bySpanID()["span-1"]
	if record == nil {
		t.Fatal("record for span-1 was not enqueued")
	}
	if record.WorkspaceID != "ws-1" || record.APIKeyID != "key-1" || record.TraceID != "trace-1" {
		t.Fatalf("record scope=%+v, want ws-1 key-1 trace-1", record)
	}
	if record.Type != "completion" || record.Status != "ok" || record.Kind != "client" {
		t.Fatalf("type/status/kind=%q/%q/%q, want completion/ok/client", record.Type, record.Status, record.Kind)
	}
	if record.Provider != "openai" || record.Model != "gpt-4" {
		t.Fatalf("provider/model=%q/%q, want openai/gpt-4", record.Provider, record.Model)
	}
	if record.InputTokens != 1000 || record.OutputTokens != 500 {
		t.Fatalf("tokens=%d/%d, want 1000/500", record.InputTokens, record.OutputTokens)
	}
	if record.CostUnits != 6000 || !record.CostImplemented {
		t.Fatalf("cost=%d implemented=%t, want 6000 true", record.CostUnits, record.CostImplemented)
	}
	if record.FinishReason != string(span.FinishUnknown) {
		t.Fatalf("FinishReason=%q, want unknown", record.FinishReason)
	}
	if !strings.Contains(record.Metadata, `"costImplemented":true`) {
		t.Fatalf("Metadata=%s, want encoded completion metadata", record.Metadata)
	}
	if record.ExtractionError != "" {
		t.Fatalf("ExtractionError=%q, want empty", record.ExtractionError)
	}

	if metrics.costUnits != 6000 || metrics.processed["completion/processed"] != 1 {
		t.Fatalf("metrics=%+v, want one processed completion costing 6000", metrics)
	}
}

func TestPipelineStoresFailedExtractionAsUnknown(t *testing.T) {
	t.Parallel()

	writer := &memoryEnqueuer{}
	metrics := &recordingMetrics{}
	pipeline := newTestPipeline(t, Options{Writer: writer, Metrics: metrics})

	result, err := pipeline.Process(context.Background(), testIdentity(), []RawSpan{{
		TraceID:    "trace-1",
		SpanID:     "span-1",
		Type:       "completion",
		Attributes: map[string]any{"gen_ai.request.model": "gpt-4"},
	}})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	outcome := result.Spans[0]
	if outcome.Outcome != OutcomeExtractionError || outcome.Type != span.TypeUnknown {
		t.Fatalf("outcome=%+v, want unknown extraction error", outcome)
	}
	if !strings.Contains(outcome.Error, "provider is required") {
		t.Fatalf("Error=%q, want provider is required", outcome.Error)
	}
	if result.Accepted != 1 {
		t.Fatalf("Accepted=%d, want 1", result.Accepted)
	}

	record := writer.bySpanID()["span-1"]
	if record == nil || record.Type != "unknown" || record.ExtractionError != outcome.Error {
		t.Fatalf("record=%+v, want unknown record carrying the extraction error", record)
	}
	if record.Metadata != "{}" {
		t.Fatalf("Metadata=%q, want {}", record.Metadata)
	}
	if metrics.processed["unknown/extraction_error"] != 1 {
		t.Fatalf("processed=%v, want one unknown/extraction_error", metrics.processed)
	}
}

func TestPipelineRejectsInvalidSpans(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  RawSpan
		want string
	}{
		{name: "missing trace id", raw: RawSpan{SpanID: "s"}, want: "trace_id is required"},
		{name: "missing span id", raw: RawSpan{TraceID: "t", SpanID: "  "}, want: "span_id is required"},
		{name: "unknown type", raw: RawSpan{TraceID: "t", SpanID: "s", Type: "banana"}, want: `unknown span type "banana"`},
		{name: "ends before start", raw: RawSpan{TraceID: "t", SpanID: "s", StartTime: start, EndTime: start.Add(-time.Second)}, want: "end_time is before start_time"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			writer := &memoryEnqueuer{}
			pipeline := newTestPipeline(t, Options{Writer: writer})
			result, err := pipeline.Process(context.Background(), testIdentity(), []RawSpan{tt.raw})
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if result.Rejected != 1 || result.Accepted != 0 {
				t.Fatalf("result=%+v, want one rejected span", result)
			}
			if got := result.Spans[0].Error; got != tt.want {
				t.Fatalf("Error=%q, want %q", got, tt.want)
			}
			if len(writer.records) != 0 {
				t.Fatalf("enqueued=%d, want 0", len(writer.records))
			}
		})
	}
}

func TestPipelineReportsDroppedRecords(t *testing.T) {
	t.Parallel()

	metrics := &recordingMetrics{}
	pipeline := newTestPipeline(t, Options{Writer: &memoryEnqueuer{full: true}, Metrics: metrics})
	result, err := pipeline.Process(context.Background(), nil, []RawSpan{{TraceID: "t", SpanID: "s"}})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if result.Dropped != 1 || result.Spans[0].Outcome != OutcomeDropped {
		t.Fatalf("result=%+v, want one dropped span", result)
	}
	if metrics.processed["unknown/dropped"] != 1 {
		t.Fatalf("processed=%v, want one unknown/dropped", metrics.processed)
	}
}

func TestPipelineWithoutWriterReturnsMetadata(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t, Options{})
	result, err := pipeline.Process(context.Background(), nil, []RawSpan{{
		TraceID: "t",
		SpanID:  "s",
		Status:  "error",
		Attributes: map[string]any{
			"openinference.span.kind": "TOOL",
			"tool.name":               "get_weather",
			"tool_call.id":            "call_1",
			"input.value":             `{"city":"Paris"}`,
		},
	}})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	outcome := result.Spans[0]
	tool, ok := outcome.Metadata.(*span.ToolMetadata)
	if !ok {
		t.Fatalf("Metadata=%T (%s), want *span.ToolMetadata", outcome.Metadata, outcome.Error)
	}
	if tool.Name != "get_weather" || tool.Result != nil {
		t.Fatalf("tool=%+v, want get_weather without result", tool)
	}
	if outcome.ID == "" || len(outcome.ID) != 36 {
		t.Fatalf("ID=%q, want generated uuid", outcome.ID)
	}
}

func TestPipelinePreservesRequestOrder(t *testing.T) {
	t.Parallel()

	raws := make([]RawSpan, 50)
	for i := range raws {
		raws[i] = RawSpan{TraceID: "t", SpanID: fmt.Sprintf("span-%02d", i)}
	}
	writer := &memoryEnqueuer{}
	pipeline := newTestPipeline(t, Options{Writer: writer, Concurrency: 4})

	result, err := pipeline.Process(context.Background(), testIdentity(), raws)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	for i, outcome := range result.Spans {
		if want := fmt.Sprintf("span-%02d", i); outcome.SpanID != want {
			t.Fatalf("Spans[%d].SpanID=%q, want %q", i, outcome.SpanID, want)
		}
	}
	if got := len(writer.bySpanID()); got != 50 {
		t.Fatalf("enqueued=%d, want 50", got)
	}
}

func TestPipelineRefusesBatches(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t, Options{MaxBatch: 2})
	raw := RawSpan{TraceID: "t", SpanID: "s"}

	if _, err := pipeline.Process(context.Background(), nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("Process(empty) error=%v, want %v", err, ErrEmptyBatch)
	}
	if _, err := pipeline.Process(context.Background(), nil, []RawSpan{raw, raw, raw}); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("Process(3 spans) error=%v, want %v", err, ErrBatchTooLarge)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pipeline.Process(ctx, nil, []RawSpan{raw}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Process(canceled) error=%v, want %v", err, context.Canceled)
	}

	if _, err := NewPipeline(Options{}); err == nil {
		t.Fatal("NewPipeline(no table) error=nil, want error")
	}
}

func TestDecodeSpans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    int
		wantErr error
	}{
		{name: "envelope", body: `{"spans":[{"trace_id":"t","span_id":"a"},{"trace_id":"t","span_id":"b"}]}`, want: 2},
		{name: "bare array", body: ` [{"trace_id":"t","span_id":"a"}] `, want: 1},
		{name: "empty body", body: "  ", wantErr: ErrEmptyBatch},
		{name: "empty envelope", body: `{"spans":[]}`, wantErr: ErrEmptyBatch},
		{name: "invalid json", body: `{"spans":`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spans, err := DecodeSpans(strings.NewReader(tt.body))
			if tt.want > 0 {
				if err != nil {
					t.Fatalf("DecodeSpans() error: %v", err)
				}
				if len(spans) != tt.want {
					t.Fatalf("len(spans)=%d, want %d", len(spans), tt.want)
				}
				return
			}
			if err == nil {
				t.Fatal("DecodeSpans() error=nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeSpans() error=%v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRawSpanBagFlattensNestedAttributes(t *testing.T) {
	t.Parallel()

	raw := RawSpan{Attributes: map[string]any{
		"gen_ai":          map[string]any{"system": "openai", "usage": map[string]any{"input_tokens": 3.0}},
		"llm.model_name":  "gpt-4o",
		"ai.values":       []any{"a", "b"},
		"latitude.type":   "embedding",
		"empty.container": map[string]any{},
	}}
	bag := raw.Bag()

	if bag["gen_ai.system"] != "openai" || bag["gen_ai.usage.input_tokens"] != 3.0 || bag["llm.model_name"] != "gpt-4o" {
		t.Fatalf("Bag()=%v, want flattened dotted keys", bag)
	}
	if values, ok := bag["ai.values"].([]any); !ok || len(values) != 2 {
		t.Fatalf("ai.values=%#v, want array kept", bag["ai.values"])
	}
	if _, ok := bag["empty.container"]; ok {
		t.Fatal("empty object produced a key")
	}
	if got := raw.ResolveType(bag); got != span.TypeEmbedding {
		t.Fatalf("ResolveType()=%q, want embedding", got)
	}
	if got := (RawSpan{Type: "Tool"}).ResolveType(bag); got != span.TypeTool {
		t.Fatalf("ResolveType(explicit)=%q, want tool", got)
	}
}
