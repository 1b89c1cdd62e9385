package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/ingest"
	"github.com/ongoingai/tracelens/internal/pathutil"
	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/span"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

type SpansOptions struct {
	Store        spanstore.Store
	Pipeline     *ingest.Pipeline
	MaxBodyBytes int64
}

type spansResponse struct {
	Items      []spanSummary `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type spanSummary struct {
	ID              string    `json:"id"`
	TraceID         string    `json:"trace_id"`
	SpanID          string    `json:"span_id"`
	ParentSpanID    string    `json:"parent_span_id,omitempty"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Provider        string    `json:"provider,omitempty"`
	Model           string    `json:"model,omitempty"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	CostUnits       int64     `json:"cost_units"`
	CostUSD         float64   `json:"cost_usd"`
	CostImplemented bool      `json:"cost_implemented"`
	DurationMS      int64     `json:"duration_ms"`
	StartedAt       time.Time `json:"started_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type spanDetail struct {
	spanSummary

	Kind            string    `json:"kind,omitempty"`
	WorkspaceID     string    `json:"workspace_id"`
	APIKeyID        string    `json:"api_key_id,omitempty"`
	StatusMessage   string    `json:"status_message,omitempty"`
	FinishReason    string    `json:"finish_reason,omitempty"`
	EndedAt         time.Time `json:"ended_at"`
	Metadata        any       `json:"metadata,omitempty"`
	ExtractionError string    `json:"extraction_error,omitempty"`
}

// SpansHandler lists stored spans on GET and ingests a batch on POST.
func SpansHandler(options SpansOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodPost {
			handleIngest(w, r, options)
			return
		}
		if options.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "span store is not configured")
			return
		}

		filter, err := parseSpanFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := options.Store.QuerySpans(r.Context(), filter)
		if err != nil {
			if errors.Is(err, spanstore.ErrInvalidCursor) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to query spans")
			return
		}

		items := make([]spanSummary, 0, len(result.Items))
		for _, item := range result.Items {
			items = append(items, summarizeSpan(item))
		}
		writeJSON(w, http.StatusOK, spansResponse{
			Items:      items,
			NextCursor: result.NextCursor,
		})
	})
}

func handleIngest(w http.ResponseWriter, r *http.Request, options SpansOptions) {
	if options.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "span ingest is not configured")
		return
	}

	raws, err := ingest.DecodeSpans(http.MaxBytesReader(w, r.Body, options.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	result, err := options.Pipeline.Process(r.Context(), identity, raws)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrBatchTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ingest.ErrEmptyBatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, "span ingest interrupted")
		}
		return
	}

	status := http.StatusAccepted
	if result.Accepted == 0 && result.Rejected > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func SpanDetailHandler(store spanstore.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "span store is not configured")
			return
		}

		id, ok := parseSpanPathID(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		item, err := store.GetSpan(r.Context(), id)
		if err != nil {
			if errors.Is(err, spanstore.ErrNotFound) {
				writeError(w, http.StatusNotFound, "span not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to read span")
			return
		}
		if !spanVisibleInScope(r, item) {
			writeError(w, http.StatusNotFound, "span not found")
			return
		}
		writeJSON(w, http.StatusOK, detailSpan(item))
	})
}

func parseSpanFilter(r *http.Request) (spanstore.SpanFilter, error) {
	query := r.URL.Query()
	limit, err := parseIntQuery(query.Get("limit"), "limit", 0, 200)
	if err != nil {
		return spanstore.SpanFilter{}, err
	}

	spanType := strings.TrimSpace(query.Get("type"))
	if spanType != "" {
		parsed, ok := span.ParseType(spanType)
		if !ok {
			return spanstore.SpanFilter{}, fmt.Errorf("unknown span type %q", spanType)
		}
		spanType = string(parsed)
	}
	status := strings.TrimSpace(query.Get("status"))
	if status != "" {
		status = string(span.ParseStatus(status))
	}

	from, to, err := parseTimeRange(query.Get("from"), query.Get("to"))
	if err != nil {
		return spanstore.SpanFilter{}, err
	}

	filter := spanstore.SpanFilter{
		WorkspaceID: strings.TrimSpace(query.Get("workspace_id")),
		TraceID:     strings.TrimSpace(query.Get("trace_id")),
		Type:        spanType,
		Provider:    strings.TrimSpace(query.Get("provider")),
		Model:       strings.TrimSpace(query.Get("model")),
		Status:      status,
		From:        from,
		To:          to,
		Limit:       limit,
		Cursor:      strings.TrimSpace(query.Get("cursor")),
	}
	applySpanScope(r, &filter)
	return filter, nil
}

func summarizeSpan(item *spanstore.Span) spanSummary {
	return spanSummary{
		ID:              item.ID,
		TraceID:         item.TraceID,
		SpanID:          item.SpanID,
		ParentSpanID:    item.ParentSpanID,
		Name:            item.Name,
		Type:            item.Type,
		Status:          item.Status,
		Provider:        item.Provider,
		Model:           item.Model,
		InputTokens:     item.InputTokens,
		OutputTokens:    item.OutputTokens,
		CostUnits:       item.CostUnits,
		CostUSD:         pricing.FromCostUnits(item.CostUnits),
		CostImplemented: item.CostImplemented,
		DurationMS:      item.DurationMS,
		StartedAt:       item.StartedAt,
		CreatedAt:       item.CreatedAt,
	}
}

func detailSpan(item *spanstore.Span) spanDetail {
	return spanDetail{
		spanSummary:     summarizeSpan(item),
		Kind:            item.Kind,
		WorkspaceID:     item.WorkspaceID,
		APIKeyID:        item.APIKeyID,
		StatusMessage:   item.StatusMessage,
		FinishReason:    item.FinishReason,
		EndedAt:         item.EndedAt,
		Metadata:        decodeJSONField(item.Metadata),
		ExtractionError: item.ExtractionError,
	}
}

func parseSpanPathID(path string) (string, bool) {
	return pathutil.SingleSegment(path, "/api/spans")
}

func parseIntQuery(raw, name string, min, max int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if parsed < min {
		return 0, fmt.Errorf("%s must be >= %d", name, min)
	}
	if max != 0 && parsed > max {
		return 0, fmt.Errorf("%s must be <= %d", name, max)
	}
	return parsed, nil
}

func parseTimeRange(rawFrom, rawTo string) (time.Time, time.Time, error) {
	from, err := parseTimeQuery(rawFrom, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
	}
	to, err := parseTimeQuery(rawTo, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be greater than or equal to from")
	}
	return from, to, nil
}

// parseTimeQuery accepts RFC3339 or a bare date. A bare "to" date covers the
// whole day.
func parseTimeQuery(raw string, endOfDay bool) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC); err == nil {
		if endOfDay {
			return parsed.Add(24*time.Hour - time.Nanosecond), nil
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD")
}

func decodeJSONField(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	return decoded
}
