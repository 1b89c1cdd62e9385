package span

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/spanerr"
	"github.com/ongoingai/tracelens/internal/workspacestore"
)

func process(t *testing.T, table *Table, spanType Type, bag attrs.Bag, status Status) (Metadata, error) {
	t.Helper()
	return table.Process(context.Background(), spanType, Args{
		Attributes: bag,
		Status:     status,
		Workspace:  Workspace{ID: "ws-1"},
	})
}

func TestTableRegistersEveryType(t *testing.T) {
	t.Parallel()

	table := NewTable(Dependencies{})
	for _, spanType := range Types {
		spec, ok := table.Lookup(spanType)
		if !ok {
			t.Fatalf("Lookup(%q) missing", spanType)
		}
		if spec.Name() == "" || spec.Description() == "" {
			t.Fatalf("%q spec has empty name or description", spanType)
		}
	}

	genAI := map[Type]bool{
		TypeCompletion: true,
		TypeTool:       true,
		TypeEmbedding:  true,
		TypeRetrieval:  true,
		TypeReranking:  true,
	}
	for _, spanType := range Types {
		if got := table.IsGenAI(spanType); got != genAI[spanType] {
			t.Fatalf("IsGenAI(%q)=%t, want %t", spanType, got, genAI[spanType])
		}
	}
}

func TestTableRoutesUnregisteredTypeToUnknown(t *testing.T) {
	t.Parallel()

	meta, err := process(t, NewTable(Dependencies{}), Type("hologram"), attrs.Bag{"a": "b"}, StatusOK)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if meta.SpanType() != TypeUnknown {
		t.Fatalf("SpanType()=%q, want unknown", meta.SpanType())
	}
}

func TestToolSpec(t *testing.T) {
	t.Parallel()

	table := NewTable(Dependencies{})

	tests := []struct {
		name    string
		bag     attrs.Bag
		status  Status
		want    *ToolMetadata
		wantErr string
	}{
		{
			name: "opentelemetry",
			bag: attrs.Bag{
				"gen_ai.tool.name":           "get_weather",
				"gen_ai.tool.call.id":        "call_1",
				"gen_ai.tool.call.arguments": `{"city":"Paris"}`,
				"gen_ai.tool.result.value":   `{"forecast":"sunny"}`,
			},
			status: StatusOK,
			want: &ToolMetadata{
				Name:      "get_weather",
				CallID:    "call_1",
				Arguments: map[string]any{"city": "Paris"},
				Result:    &ToolResult{Value: map[string]any{"forecast": "sunny"}},
			},
		},
		{
			name: "vercel with plain text result",
			bag: attrs.Bag{
				"ai.toolCall.name":   "search",
				"ai.toolCall.id":     "call_2",
				"ai.toolCall.args":   `{"q":"go"}`,
				"ai.toolCall.result": "no results",
			},
			status: StatusOK,
			want: &ToolMetadata{
				Name:      "search",
				CallID:    "call_2",
				Arguments: map[string]any{"q": "go"},
				Result:    &ToolResult{Value: "no results"},
			},
		},
		{
			name: "error status omits result",
			bag: attrs.Bag{
				"tool.name":    "search",
				"tool_call.id": "call_3",
				"output.value": "boom",
			},
			status: StatusError,
			want:   &ToolMetadata{Name: "search", CallID: "call_3", Arguments: map[string]any{}},
		},
		{
			name:    "missing name",
			bag:     attrs.Bag{"gen_ai.tool.call.id": "call_1"},
			status:  StatusOK,
			wantErr: "tool name is required",
		},
		{
			name:    "missing call id",
			bag:     attrs.Bag{"gen_ai.tool.name": "get_weather"},
			status:  StatusOK,
			wantErr: "tool call id is required",
		},
		{
			name:    "arguments not an object",
			bag:     attrs.Bag{"gen_ai.tool.name": "t", "gen_ai.tool.call.id": "c", "gen_ai.tool.call.arguments": "[1]"},
			status:  StatusOK,
			wantErr: "invalid tool arguments",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta, err := process(t, table, TypeTool, tt.bag, tt.status)
			if tt.wantErr != "" {
				if err == nil || !spanerr.IsUnprocessable(err) || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Process() error=%v, want unprocessable %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if !reflect.DeepEqual(meta, tt.want) {
				t.Fatalf("Process()=%+v, want %+v", meta, tt.want)
			}
		})
	}
}

func TestHTTPSpec(t *testing.T) {
	t.Parallel()

	table := NewTable(Dependencies{})

	meta, err := process(t, table, TypeHTTP, attrs.Bag{
		"http.request.method":               "post",
		"url.full":                          "https://api.openai.com/v1/chat/completions",
		"http.request.header.Content-Type":  "application/json",
		"http.request.header.accept":        []any{"text/plain", "application/json"},
		"http.request.body":                 `{"model":"gpt-4o"}`,
		"http.response.status_code":         int64(200),
		"http.response.header.x-request-id": "req_1",
		"http.response.body":                `{"id":"chatcmpl-1"}`,
	}, StatusOK)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	want := &HTTPMetadata{
		Request: HTTPRequest{
			Method: "POST",
			URL:    "https://api.openai.com/v1/chat/completions",
			Headers: map[string]string{
				"content-type": "application/json",
				"accept":       "text/plain, application/json",
			},
			Body: `{"model":"gpt-4o"}`,
		},
		Response: &HTTPResponse{
			Status:  200,
			Headers: map[string]string{"x-request-id": "req_1"},
			Body:    `{"id":"chatcmpl-1"}`,
		},
	}
	if !reflect.DeepEqual(meta, want) {
		t.Fatalf("Process()=%+v, want %+v", meta, want)
	}

	errored, err := process(t, table, TypeHTTP, attrs.Bag{
		"http.method": "GET",
		"http.url":    "https://example.com",
	}, StatusError)
	if err != nil {
		t.Fatalf("Process(error status) error: %v", err)
	}
	if errored.(*HTTPMetadata).Response != nil {
		t.Fatal("Response set on errored span without status code")
	}

	requiredCases := []struct {
		bag     attrs.Bag
		wantErr string
	}{
		{bag: attrs.Bag{"url.full": "https://example.com", "http.status_code": 200.0}, wantErr: "method is required"},
		{bag: attrs.Bag{"http.method": "GET", "http.status_code": 200.0}, wantErr: "url is required"},
		{bag: attrs.Bag{"http.method": "GET", "url.full": "https://example.com"}, wantErr: "status code is required"},
		{bag: attrs.Bag{"http.method": "GET", "url.full": "https://example.com", "http.status_code": int64(99)}, wantErr: "status code is required"},
		{bag: attrs.Bag{"http.method": "GET", "url.full": "https://example.com", "http.status_code": "1e30"}, wantErr: "status code is required"},
	}
	for _, tc := range requiredCases {
		_, err := process(t, table, TypeHTTP, tc.bag, StatusOK)
		if err == nil || !spanerr.IsUnprocessable(err) || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("Process(%v) error=%v, want %q", tc.bag, err, tc.wantErr)
		}
	}
}

func TestHTTPSpecStatusCodeRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bag  attrs.Bag
		want int
	}{
		{name: "lower bound", bag: attrs.Bag{"http.response.status_code": int64(100)}, want: 100},
		{name: "upper bound", bag: attrs.Bag{"http.response.status_code": "599"}, want: 599},
		{
			name: "out of range falls back to legacy key",
			bag:  attrs.Bag{"http.response.status_code": int64(600), "http.status_code": 502.0},
			want: 502,
		},
	}

	table := NewTable(Dependencies{})
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.bag["http.method"] = "GET"
			tt.bag["url.full"] = "https://example.com"
			meta, err := process(t, table, TypeHTTP, tt.bag, StatusOK)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			response := meta.(*HTTPMetadata).Response
			if response == nil || response.Status != tt.want {
				t.Fatalf("Response=%+v, want status %d", response, tt.want)
			}
		})
	}

	errored, err := process(t, table, TypeHTTP, attrs.Bag{
		"http.method":      "GET",
		"url.full":         "https://example.com",
		"http.status_code": int64(-1),
	}, StatusError)
	if err != nil {
		t.Fatalf("Process(error status) error: %v", err)
	}
	if errored.(*HTTPMetadata).Response != nil {
		t.Fatal("Response set on errored span with out of range status code")
	}
}

func TestPromptSpec(t *testing.T) {
	t.Parallel()

	table := NewTable(Dependencies{})
	base := func() attrs.Bag {
		return attrs.Bag{
			"gen_ai.request.template":    "Hello {{name}}",
			"gen_ai.request.parameters":  `{"name":"Ada"}`,
			"latitude.document_log_uuid": "log-1",
			"latitude.document_uuid":     "doc-1",
			"latitude.commit_uuid":       "commit-1",
			"latitude.experiment_uuid":   "exp-1",
			"latitude.project_id":        "12",
		}
	}

	meta, err := process(t, table, TypePrompt, base(), StatusOK)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	want := &PromptMetadata{
		Template:        "Hello {{name}}",
		Parameters:      map[string]any{"name": "Ada"},
		DocumentLogUUID: "log-1",
		PromptUUID:      "doc-1",
		VersionUUID:     "commit-1",
		ExperimentUUID:  "exp-1",
		ProjectID:       12,
	}
	if !reflect.DeepEqual(meta, want) {
		t.Fatalf("Process()=%+v, want %+v", meta, want)
	}

	noParameters := base()
	delete(noParameters, "gen_ai.request.parameters")
	meta, err = process(t, table, TypePrompt, noParameters, StatusOK)
	if err != nil {
		t.Fatalf("Process(no parameters) error: %v", err)
	}
	if got := meta.(*PromptMetadata).Parameters; got == nil || len(got) != 0 {
		t.Fatalf("Parameters=%#v, want empty map", got)
	}

	for _, key := range []string{"gen_ai.request.template", "latitude.document_log_uuid", "latitude.document_uuid", "latitude.commit_uuid"} {
		bag := base()
		delete(bag, key)
		if _, err := process(t, table, TypePrompt, bag, StatusOK); !spanerr.IsUnprocessable(err) {
			t.Fatalf("Process(without %s) error=%v, want unprocessable", key, err)
		}
	}

	bad := base()
	bad["gen_ai.request.parameters"] = "{"
	if _, err := process(t, table, TypePrompt, bad, StatusOK); err == nil || !strings.Contains(err.Error(), "invalid prompt parameters") {
		t.Fatalf("Process(bad parameters) error=%v, want invalid prompt parameters", err)
	}
}

func TestUnresolvedExternalSpec(t *testing.T) {
	t.Parallel()

	store := workspacestore.NewStaticStore(nil, []workspacestore.PromptDocument{{
		WorkspaceID:  "ws-1",
		ProjectID:    12,
		VersionUUID:  "commit-1",
		DocumentUUID: "doc-7",
		Path:         "support/triage",
		Content:      "Triage the ticket.",
	}})
	table := NewTable(Dependencies{Workspaces: store})

	bag := attrs.Bag{
		"latitude.prompt_path":       "/support/triage",
		"latitude.project_id":        int64(12),
		"latitude.commit_uuid":       "commit-1",
		"latitude.document_log_uuid": "log-9",
		"gen_ai.request.parameters":  `{"ticket":42}`,
	}
	meta, err := process(t, table, TypeUnresolvedExternal, bag, StatusOK)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	want := &PromptMetadata{
		Template:        "Triage the ticket.",
		Parameters:      map[string]any{"ticket": float64(42)},
		DocumentLogUUID: "log-9",
		PromptUUID:      "doc-7",
		VersionUUID:     "commit-1",
		ProjectID:       12,
	}
	if !reflect.DeepEqual(meta, want) {
		t.Fatalf("Process()=%+v, want %+v", meta, want)
	}
	if meta.SpanType() != TypePrompt {
		t.Fatalf("SpanType()=%q, want prompt", meta.SpanType())
	}

	withoutLog := attrs.Bag{
		"latitude.prompt_path": "support/triage",
		"latitude.project_id":  int64(12),
		"latitude.commit_uuid": "commit-1",
	}
	meta, err = process(t, table, TypeUnresolvedExternal, withoutLog, StatusOK)
	if err != nil {
		t.Fatalf("Process(no log uuid) error: %v", err)
	}
	if got := meta.(*PromptMetadata).DocumentLogUUID; len(got) != 36 {
		t.Fatalf("DocumentLogUUID=%q, want generated uuid", got)
	}

	missing := attrs.Bag{
		"latitude.prompt_path": "support/unknown",
		"latitude.project_id":  int64(12),
		"latitude.commit_uuid": "commit-1",
	}
	if _, err := process(t, table, TypeUnresolvedExternal, missing, StatusOK); !spanerr.IsUnprocessable(err) {
		t.Fatalf("Process(unknown path) error=%v, want unprocessable", err)
	}

	if _, err := process(t, NewTable(Dependencies{}), TypeUnresolvedExternal, withoutLog, StatusOK); err == nil {
		t.Fatal("Process() without workspace store error=nil, want error")
	}
}

func TestSoftSpecs(t *testing.T) {
	t.Parallel()

	table := NewTable(Dependencies{})

	tests := []struct {
		name     string
		spanType Type
		bag      attrs.Bag
		want     Metadata
	}{
		{
			name:     "embedding openinference",
			spanType: TypeEmbedding,
			bag: attrs.Bag{
				"llm.provider":                            "openai",
				"embedding.model_name":                    "text-embedding-3-small",
				"embedding.embeddings.0.embedding.text":   "a",
				"embedding.embeddings.1.embedding.text":   "b",
				"embedding.embeddings.1.embedding.vector": []any{0.1, 0.2},
				"llm.token_count.prompt":                  int64(6),
			},
			want: &EmbeddingMetadata{Provider: "openai", Model: "text-embedding-3-small", Count: 2, Tokens: 6},
		},
		{
			name:     "embedding vercel",
			spanType: TypeEmbedding,
			bag: attrs.Bag{
				"ai.model.provider": "openai.embedding",
				"ai.model.id":       "text-embedding-3-large",
				"ai.values":         `["a","b","c"]`,
				"ai.usage.tokens":   int64(3),
			},
			want: &EmbeddingMetadata{Provider: "openai", Model: "text-embedding-3-large", Count: 3, Tokens: 3},
		},
		{
			name:     "retrieval",
			spanType: TypeRetrieval,
			bag: attrs.Bag{
				"input.value":                          "refund policy",
				"retrieval.documents.0.document.id":    "d1",
				"retrieval.documents.1.document.id":    "d2",
				"retrieval.documents.1.document.score": 0.5,
			},
			want: &RetrievalMetadata{Query: "refund policy", Documents: 2},
		},
		{
			name:     "reranking",
			spanType: TypeReranking,
			bag: attrs.Bag{
				"reranker.model_name":                     "rerank-v3",
				"reranker.query":                          "refund policy",
				"reranker.top_k":                          int64(1),
				"reranker.input_documents.0.document.id":  "d1",
				"reranker.input_documents.1.document.id":  "d2",
				"reranker.output_documents.0.document.id": "d2",
			},
			want: &RerankingMetadata{Model: "rerank-v3", Query: "refund policy", TopK: 1, InputDocuments: 2, OutputDocuments: 1},
		},
		{
			name:     "step",
			spanType: TypeStep,
			bag:      attrs.Bag{"traceloop.entity.name": "plan_trip"},
			want:     &StepMetadata{Name: "plan_trip"},
		},
		{
			name:     "embedding with nothing",
			spanType: TypeEmbedding,
			bag:      attrs.Bag{},
			want:     &EmbeddingMetadata{},
		},
		{
			name:     "unknown",
			spanType: TypeUnknown,
			bag:      attrs.Bag{"anything": true},
			want:     &UnknownMetadata{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta, err := process(t, table, tt.spanType, tt.bag, StatusOK)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if !reflect.DeepEqual(meta, tt.want) {
				t.Fatalf("Process()=%+v, want %+v", meta, tt.want)
			}
		})
	}
}
