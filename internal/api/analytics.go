package api

import (
	"net/http"
	"strings"

	"github.com/ongoingai/tracelens/internal/spanstore"
)

type modelsResponse struct {
	Items []modelStatsResponse `json:"items"`
}

type modelStatsResponse struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	SpanCount      int64   `json:"span_count"`
	AvgDurationMS  float64 `json:"avg_duration_ms"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCostUnits int64   `json:"total_cost_units"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
}

type usageResponse struct {
	SpanCount         int64 `json:"span_count"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	TotalTokens       int64 `json:"total_tokens"`
}

type costResponse struct {
	TotalCostUnits int64   `json:"total_cost_units"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	PricedSpans    int64   `json:"priced_spans"`
	UnpricedSpans  int64   `json:"unpriced_spans"`
}

func UsageHandler(store spanstore.Store) http.Handler {
	return analyticsHandler(store, func(w http.ResponseWriter, r *http.Request, filter spanstore.AnalyticsFilter) {
		summary, err := store.GetUsageSummary(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read analytics")
			return
		}
		writeJSON(w, http.StatusOK, usageResponse{
			SpanCount:         summary.SpanCount,
			TotalInputTokens:  summary.TotalInputTokens,
			TotalOutputTokens: summary.TotalOutputTokens,
			TotalTokens:       summary.TotalTokens,
		})
	})
}

func CostHandler(store spanstore.Store) http.Handler {
	return analyticsHandler(store, func(w http.ResponseWriter, r *http.Request, filter spanstore.AnalyticsFilter) {
		summary, err := store.GetCostSummary(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read analytics")
			return
		}
		writeJSON(w, http.StatusOK, costResponse{
			TotalCostUnits: summary.TotalCostUnits,
			TotalCostUSD:   summary.TotalCostUSD,
			PricedSpans:    summary.PricedSpans,
			UnpricedSpans:  summary.UnpricedSpans,
		})
	})
}

func ModelsHandler(store spanstore.Store) http.Handler {
	return analyticsHandler(store, func(w http.ResponseWriter, r *http.Request, filter spanstore.AnalyticsFilter) {
		items, err := store.GetModelStats(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read analytics")
			return
		}
		writeJSON(w, http.StatusOK, modelsResponse{Items: toModelStatsResponse(items)})
	})
}

func analyticsHandler(store spanstore.Store, serve func(http.ResponseWriter, *http.Request, spanstore.AnalyticsFilter)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "span store is not configured")
			return
		}

		filter, err := parseAnalyticsFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		serve(w, r, filter)
	})
}

func parseAnalyticsFilter(r *http.Request) (spanstore.AnalyticsFilter, error) {
	query := r.URL.Query()
	from, to, err := parseTimeRange(query.Get("from"), query.Get("to"))
	if err != nil {
		return spanstore.AnalyticsFilter{}, err
	}

	filter := spanstore.AnalyticsFilter{
		WorkspaceID: strings.TrimSpace(query.Get("workspace_id")),
		APIKeyID:    strings.TrimSpace(query.Get("api_key_id")),
		Provider:    strings.TrimSpace(query.Get("provider")),
		Model:       strings.TrimSpace(query.Get("model")),
		From:        from,
		To:          to,
	}
	applyAnalyticsScope(r, &filter)
	return filter, nil
}

func toModelStatsResponse(items []spanstore.ModelStats) []modelStatsResponse {
	out := make([]modelStatsResponse, 0, len(items))
	for _, item := range items {
		out = append(out, modelStatsResponse{
			Provider:       item.Provider,
			Model:          item.Model,
			SpanCount:      item.SpanCount,
			AvgDurationMS:  item.AvgDurationMS,
			TotalTokens:    item.TotalTokens,
			TotalCostUnits: item.TotalCostUnits,
			TotalCostUSD:   item.TotalCostUSD,
		})
	}
	return out
}
