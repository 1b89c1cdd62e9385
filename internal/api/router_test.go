package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/ingest"
	"github.com/ongoingai/tracelens/internal/span"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

type stubStore struct {
	mu                  sync.Mutex
	getByID             map[string]*spanstore.Span
	queryResult         *spanstore.SpanResult
	queryErr            error
	usageSummary        *spanstore.UsageSummary
	costSummary         *spanstore.CostSummary
	modelStats          []spanstore.ModelStats
	analyticsErr        error
	lastSpanFilter      spanstore.SpanFilter
	lastAnalyticsFilter spanstore.AnalyticsFilter
}

func (s *stubStore) WriteSpan(context.Context, *spanstore.Span) error    { return nil }
func (s *stubStore) WriteBatch(context.Context, []*spanstore.Span) error { return nil }
func (s *stubStore) Close() error                                        { return nil }

func (s *stubStore) GetSpan(_ context.Context, id string) (*spanstore.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.getByID[id]
	if !ok {
		return nil, spanstore.ErrNotFound
	}
	return item, nil
}

func (s *stubStore) QuerySpans(_ context.Context, filter spanstore.SpanFilter) (*spanstore.SpanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSpanFilter = filter
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.queryResult == nil {
		return &spanstore.SpanResult{}, nil
	}
	return s.queryResult, nil
}

func (s *stubStore) GetUsageSummary(_ context.Context, filter spanstore.AnalyticsFilter) (*spanstore.UsageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAnalyticsFilter = filter
	if s.analyticsErr != nil {
		return nil, s.analyticsErr
	}
	return s.usageSummary, nil
}

func (s *stubStore) GetCostSummary(_ context.Context, filter spanstore.AnalyticsFilter) (*spanstore.CostSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAnalyticsFilter = filter
	if s.analyticsErr != nil {
		return nil, s.analyticsErr
	}
	return s.costSummary, nil
}

func (s *stubStore) GetModelStats(_ context.Context, filter spanstore.AnalyticsFilter) ([]spanstore.ModelStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAnalyticsFilter = filter
	if s.analyticsErr != nil {
		return nil, s.analyticsErr
	}
	return s.modelStats, nil
}

type stubEnqueuer struct {
	mu      sync.Mutex
	records []*spanstore.Span
}

func (e *stubEnqueuer) Enqueue(record *spanstore.Span) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	return true
}

type stubDiagnosticsReader struct {
	snapshot spanstore.PipelineDiagnostics
}

func (s stubDiagnosticsReader) SpanPipelineDiagnostics() spanstore.PipelineDiagnostics {
	return s.snapshot
}

func newTestRouter(t *testing.T, store *stubStore, writer ingest.Enqueuer, diagnostics spanstore.DiagnosticsReader) http.Handler {
	t.Helper()

	pipeline, err := ingest.NewPipeline(ingest.Options{
		Table:    span.NewTable(span.Dependencies{}),
		Writer:   writer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxBatch: 3,
	})
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	options := RouterOptions{
		AppVersion:    "test",
		StorageDriver: "sqlite",
		Pipeline:      pipeline,
		Diagnostics:   diagnostics,
		MaxBodyBytes:  4 << 10,
	}
	if store != nil {
		options.Store = store
	}
	return NewRouter(options)
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func viewerRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	identity := &auth.Identity{KeyID: "viewer-1", WorkspaceID: "ws-1", Role: "viewer"}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestHealthHandlerCountsSpans(t *testing.T) {
	t.Parallel()

	store := &stubStore{modelStats: []spanstore.ModelStats{{Model: "gpt-4o", SpanCount: 3}, {Model: "llama3", SpanCount: 2}}}
	rec := serve(newTestRouter(t, store, nil, nil), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}

	var body healthResponse
	decodeBody(t, rec, &body)
	if body.Status != "ok" || body.SpanCount != 5 || body.StorageDriver != "sqlite" || body.Version != "test" {
		t.Fatalf("health=%+v, want ok with 5 spans", body)
	}

	rec = serve(newTestRouter(t, store, nil, nil), httptest.NewRequest(http.MethodDelete, "/api/health", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "GET, HEAD, OPTIONS" {
		t.Fatalf("status=%d allow=%q, want 405 with GET, HEAD, OPTIONS", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestHealthHandlerReportsPipelinePressure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pressure   string
		wantStatus string
	}{
		{name: "ok queue", pressure: spanstore.QueuePressureOK, wantStatus: "ok"},
		{name: "high queue", pressure: spanstore.QueuePressureHigh, wantStatus: "ok"},
		{name: "saturated queue", pressure: spanstore.QueuePressureSaturated, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			diagnostics := stubDiagnosticsReader{snapshot: spanstore.PipelineDiagnostics{QueuePressureState: tt.pressure}}
			rec := serve(newTestRouter(t, &stubStore{}, nil, diagnostics), httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
			}

			var body healthResponse
			decodeBody(t, rec, &body)
			if body.Status != tt.wantStatus || body.PipelinePressure != tt.pressure {
				t.Fatalf("health status=%q pressure=%q, want %q %q", body.Status, body.PipelinePressure, tt.wantStatus, tt.pressure)
			}
			if body.PricedProviders == 0 {
				t.Fatal("priced_providers=0, want default registry providers")
			}
		})
	}
}

func TestIngestSpans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantAccepted int
		wantRejected int
	}{
		{
			name:         "accepted batch",
			body:         `{"spans":[{"trace_id":"t1","span_id":"s1","attributes":{"gen_ai.operation.name":"chat","gen_ai.system":"openai","gen_ai.request.model":"gpt-4o"}},{"trace_id":"t1","span_id":"s2"}]}`,
			wantStatus:   http.StatusAccepted,
			wantAccepted: 2,
		},
		{
			name:         "partially rejected",
			body:         `[{"trace_id":"t1","span_id":"s1"},{"trace_id":"t1"}]`,
			wantStatus:   http.StatusAccepted,
			wantAccepted: 1,
			wantRejected: 1,
		},
		{
			name:         "all rejected",
			body:         `[{"span_id":"s1"}]`,
			wantStatus:   http.StatusUnprocessableEntity,
			wantRejected: 1,
		},
		{name: "invalid json", body: `{"spans":`, wantStatus: http.StatusBadRequest},
		{name: "empty batch", body: `{"spans":[]}`, wantStatus: http.StatusBadRequest},
		{name: "too many spans", body: `[{"trace_id":"t","span_id":"1"},{"trace_id":"t","span_id":"2"},{"trace_id":"t","span_id":"3"},{"trace_id":"t","span_id":"4"}]`, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "body too large", body: `[{"trace_id":"t","span_id":"1","name":"` + strings.Repeat("x", 8<<10) + `"}]`, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			writer := &stubEnqueuer{}
			rec := serve(newTestRouter(t, &stubStore{}, writer, nil), viewerRequest(http.MethodPost, "/api/spans", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantAccepted == 0 && tt.wantRejected == 0 {
				return
			}

			var result struct {
				Accepted int `json:"accepted"`
				Rejected int `json:"rejected"`
			}
			decodeBody(t, rec, &result)
			if result.Accepted != tt.wantAccepted || result.Rejected != tt.wantRejected {
				t.Fatalf("accepted=%d rejected=%d, want %d/%d", result.Accepted, result.Rejected, tt.wantAccepted, tt.wantRejected)
			}
			if len(writer.records) != tt.wantAccepted {
				t.Fatalf("enqueued=%d, want %d", len(writer.records), tt.wantAccepted)
			}
			for _, record := range writer.records {
				if record.WorkspaceID != "ws-1" || record.APIKeyID != "viewer-1" {
					t.Fatalf("record scope=%q/%q, want ws-1/viewer-1", record.WorkspaceID, record.APIKeyID)
				}
			}
		})
	}
}

func TestIngestWithoutPipeline(t *testing.T) {
	t.Parallel()

	handler := SpansHandler(SpansOptions{Store: &stubStore{}})
	rec := serve(handler, httptest.NewRequest(http.MethodPost, "/api/spans", strings.NewReader(`[]`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestListSpans(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{queryResult: &spanstore.SpanResult{
		Items: []*spanstore.Span{{
			ID:              "a",
			TraceID:         "t1",
			SpanID:          "s1",
			Type:            "completion",
			Status:          "ok",
			Provider:        "openai",
			Model:           "gpt-4o",
			CostUnits:       750,
			CostImplemented: true,
			CreatedAt:       created,
		}},
		NextCursor: "next",
	}}
	router := newTestRouter(t, store, nil, nil)

	rec := serve(router, viewerRequest(http.MethodGet, "/api/spans?type=Completion&status=STATUS_CODE_ERROR&limit=20&provider=openai&workspace_id=ws-2&from=2026-03-01&to=2026-03-01", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body spansResponse
	decodeBody(t, rec, &body)
	if len(body.Items) != 1 || body.NextCursor != "next" {
		t.Fatalf("response=%+v, want one item and next cursor", body)
	}
	if body.Items[0].CostUSD != 0.0075 {
		t.Fatalf("CostUSD=%v, want 0.0075", body.Items[0].CostUSD)
	}

	filter := store.lastSpanFilter
	if filter.Type != "completion" || filter.Status != "error" || filter.Limit != 20 || filter.Provider != "openai" {
		t.Fatalf("filter=%+v, want normalized completion/error filter", filter)
	}
	if filter.WorkspaceID != "ws-1" {
		t.Fatalf("WorkspaceID=%q, want scoped ws-1", filter.WorkspaceID)
	}
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !filter.From.Equal(day) || !filter.To.Equal(day.Add(24*time.Hour-time.Nanosecond)) {
		t.Fatalf("range=%v..%v, want the whole of %v", filter.From, filter.To, day)
	}

	for _, target := range []string{"/api/spans?limit=500", "/api/spans?type=banana", "/api/spans?from=yesterday", "/api/spans?from=2026-03-02&to=2026-03-01"} {
		if rec := serve(router, viewerRequest(http.MethodGet, target, nil)); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d, want %d", target, rec.Code, http.StatusBadRequest)
		}
	}

	store.queryErr = spanstore.ErrInvalidCursor
	if rec := serve(router, viewerRequest(http.MethodGet, "/api/spans?cursor=bad", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid cursor status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
	store.queryErr = errors.New("disk full")
	if rec := serve(router, viewerRequest(http.MethodGet, "/api/spans", nil)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("store error status=%d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestAdminListIsNotScoped(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	req := httptest.NewRequest(http.MethodGet, "/api/spans?workspace_id=ws-2", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{KeyID: "admin-1", WorkspaceID: "ws-1", Role: "admin"}))
	if rec := serve(newTestRouter(t, store, nil, nil), req); rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	if store.lastSpanFilter.WorkspaceID != "ws-2" {
		t.Fatalf("WorkspaceID=%q, want requested ws-2", store.lastSpanFilter.WorkspaceID)
	}
}

func TestSpanDetail(t *testing.T) {
	t.Parallel()

	store := &stubStore{getByID: map[string]*spanstore.Span{
		"a": {ID: "a", WorkspaceID: "ws-1", Type: "tool", Metadata: `{"name":"get_weather","callId":"call_1"}`},
		"b": {ID: "b", WorkspaceID: "ws-2", Type: "tool", Metadata: `{}`},
	}}
	router := newTestRouter(t, store, nil, nil)

	rec := serve(router, viewerRequest(http.MethodGet, "/api/spans/a", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	metadata, ok := body["metadata"].(map[string]any)
	if !ok || metadata["name"] != "get_weather" {
		t.Fatalf("metadata=%#v, want decoded tool metadata", body["metadata"])
	}
	if body["workspace_id"] != "ws-1" || body["type"] != "tool" {
		t.Fatalf("detail=%v, want ws-1 tool span", body)
	}

	tests := []struct {
		target string
		want   int
	}{
		{target: "/api/spans/b", want: http.StatusNotFound},
		{target: "/api/spans/missing", want: http.StatusNotFound},
		{target: "/api/spans/a/extra", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := serve(router, viewerRequest(http.MethodGet, tt.target, nil)); rec.Code != tt.want {
			t.Fatalf("%s: status=%d, want %d", tt.target, rec.Code, tt.want)
		}
	}
}

func TestAnalyticsHandlers(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		usageSummary: &spanstore.UsageSummary{SpanCount: 2, TotalInputTokens: 10, TotalOutputTokens: 5, TotalTokens: 15},
		costSummary:  &spanstore.CostSummary{TotalCostUnits: 750, TotalCostUSD: 0.0075, PricedSpans: 1, UnpricedSpans: 1},
		modelStats:   []spanstore.ModelStats{{Provider: "openai", Model: "gpt-4o", SpanCount: 2, TotalTokens: 15}},
	}
	router := newTestRouter(t, store, nil, nil)

	rec := serve(router, viewerRequest(http.MethodGet, "/api/analytics/usage?provider=openai&api_key_id=key-9", nil))
	var usage usageResponse
	decodeBody(t, rec, &usage)
	if rec.Code != http.StatusOK || usage.TotalTokens != 15 || usage.SpanCount != 2 {
		t.Fatalf("usage status=%d body=%+v, want 15 tokens over 2 spans", rec.Code, usage)
	}
	if filter := store.lastAnalyticsFilter; filter.Provider != "openai" || filter.APIKeyID != "key-9" || filter.WorkspaceID != "ws-1" {
		t.Fatalf("analytics filter=%+v, want scoped openai key-9 filter", filter)
	}

	rec = serve(router, viewerRequest(http.MethodGet, "/api/analytics/cost", nil))
	var cost costResponse
	decodeBody(t, rec, &cost)
	if cost.TotalCostUnits != 750 || cost.PricedSpans != 1 || cost.UnpricedSpans != 1 {
		t.Fatalf("cost=%+v, want 750 units with 1 priced and 1 unpriced", cost)
	}

	rec = serve(router, viewerRequest(http.MethodGet, "/api/analytics/models", nil))
	var models modelsResponse
	decodeBody(t, rec, &models)
	if len(models.Items) != 1 || models.Items[0].Provider != "openai" {
		t.Fatalf("models=%+v, want one openai row", models)
	}

	if rec := serve(router, viewerRequest(http.MethodGet, "/api/analytics/cost?to=nope", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad range status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
	store.analyticsErr = errors.New("boom")
	if rec := serve(router, viewerRequest(http.MethodGet, "/api/analytics/models", nil)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("store error status=%d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandlersWithoutStore(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil, nil, nil)
	for _, target := range []string{"/api/spans", "/api/spans/a", "/api/analytics/usage"} {
		if rec := serve(router, httptest.NewRequest(http.MethodGet, target, nil)); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status=%d, want %d", target, rec.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestPricingCatalog(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil, nil, nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/pricing/OpenAI", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var visible pricingCatalogResponse
	decodeBody(t, rec, &visible)
	if visible.Provider != "openai" || visible.DefaultModel != "gpt-4o-mini" {
		t.Fatalf("catalog=%s/%s, want openai/gpt-4o-mini", visible.Provider, visible.DefaultModel)
	}
	for _, model := range visible.Models {
		if model.Hidden {
			t.Fatalf("hidden model %q listed without all=true", model.Name)
		}
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/pricing/openai?all=true", nil))
	var all pricingCatalogResponse
	decodeBody(t, rec, &all)
	if len(all.Models) <= len(visible.Models) {
		t.Fatalf("all=true listed %d models, want more than %d", len(all.Models), len(visible.Models))
	}

	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/pricing/not-a-provider", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown provider status=%d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestPricingEstimate(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil, nil, nil)

	tests := []struct {
		name            string
		body            string
		wantStatus      int
		wantUnits       int64
		wantImplemented bool
	}{
		{name: "gpt-4", body: `{"provider":"openai","model":"gpt-4","input_tokens":1000,"output_tokens":500}`, wantStatus: http.StatusOK, wantUnits: 6000, wantImplemented: true},
		{name: "cached folds into input", body: `{"provider":"openai","model":"gpt-4","input_tokens":500,"cached_tokens":500,"output_tokens":500}`, wantStatus: http.StatusOK, wantUnits: 6000, wantImplemented: true},
		{name: "unknown provider", body: `{"provider":"ollama","model":"llama3","input_tokens":1000}`, wantStatus: http.StatusOK},
		{name: "missing provider", body: `{"model":"gpt-4"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"provider":"openai","tokens":5}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/pricing/estimate", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body pricingEstimateResponse
			decodeBody(t, rec, &body)
			if body.CostUnits != tt.wantUnits || body.Implemented != tt.wantImplemented {
				t.Fatalf("estimate=%+v, want %d units implemented=%t", body, tt.wantUnits, tt.wantImplemented)
			}
		})
	}
}

func TestSpanPipelineDiagnostics(t *testing.T) {
	t.Parallel()

	rec := serve(newTestRouter(t, nil, nil, nil), httptest.NewRequest(http.MethodGet, "/api/diagnostics/span-pipeline", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	reader := stubDiagnosticsReader{snapshot: spanstore.PipelineDiagnostics{QueueCapacity: 1024, EnqueueDroppedTotal: 3, QueuePressureState: spanstore.QueuePressureOK}}
	rec = serve(newTestRouter(t, nil, nil, reader), httptest.NewRequest(http.MethodGet, "/api/diagnostics/span-pipeline", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var body spanPipelineDiagnosticsResponse
	decodeBody(t, rec, &body)
	if body.SchemaVersion != spanPipelineDiagnosticsSchemaVersion || body.Diagnostics.EnqueueDroppedTotal != 3 || body.Diagnostics.QueueCapacity != 1024 {
		t.Fatalf("diagnostics=%+v, want schema v1 with 3 drops", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterOptions{AuthHeader: "X-Custom-Key"})
	rec := serve(router, httptest.NewRequest(http.MethodOptions, "/api/spans", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-Custom-Key") || !strings.Contains(got, "X-Tracelens-Key") {
		t.Fatalf("allow headers=%q, want custom and default key headers", got)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["name"] != "tracelens" {
		t.Fatalf("root=%v, want tracelens", body)
	}
	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d, want %d", rec.Code, http.StatusNotFound)
	}
}
