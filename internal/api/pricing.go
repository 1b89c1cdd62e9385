package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ongoingai/tracelens/internal/pathutil"
	"github.com/ongoingai/tracelens/internal/pricing"
)

const pricingEstimateBodyLimit = 16 << 10

type pricingCatalogResponse struct {
	Provider     string              `json:"provider"`
	DefaultModel string              `json:"default_model,omitempty"`
	Models       []pricing.ModelSpec `json:"models"`
}

type pricingEstimateRequest struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	InputTokens     int64  `json:"input_tokens"`
	CachedTokens    int64  `json:"cached_tokens"`
	ReasoningTokens int64  `json:"reasoning_tokens"`
	OutputTokens    int64  `json:"output_tokens"`
}

type pricingEstimateResponse struct {
	pricing.Estimate

	CostUnits int64         `json:"cost_units"`
	Usage     pricing.Usage `json:"usage"`
}

// PricingCatalogHandler serves GET /api/pricing/{provider}. Hidden models are
// listed only with ?all=true.
func PricingCatalogHandler(registry *pricing.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}

		provider, ok := pathutil.SingleSegment(r.URL.Path, "/api/pricing")
		if !ok {
			http.NotFound(w, r)
			return
		}
		catalog, ok := registry.Catalog(provider)
		if !ok {
			writeError(w, http.StatusNotFound, "no pricing catalog for provider")
			return
		}

		all := strings.EqualFold(r.URL.Query().Get("all"), "true")
		models := make([]pricing.ModelSpec, 0)
		for _, spec := range catalog.Specs() {
			if spec.Hidden && !all {
				continue
			}
			models = append(models, spec)
		}
		writeJSON(w, http.StatusOK, pricingCatalogResponse{
			Provider:     pricing.NormalizeProvider(provider),
			DefaultModel: catalog.DefaultModel(),
			Models:       models,
		})
	})
}

// PricingEstimateHandler prices a token usage the way completion spans are
// priced: cached tokens fold into input, reasoning tokens into output.
func PricingEstimateHandler(registry *pricing.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		var request pricingEstimateRequest
		decoder := json.NewDecoder(io.LimitReader(r.Body, pricingEstimateBodyLimit))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid estimate request")
			return
		}
		if strings.TrimSpace(request.Provider) == "" {
			writeError(w, http.StatusBadRequest, "provider is required")
			return
		}

		usage := pricing.FoldUsage(request.InputTokens, request.CachedTokens, request.ReasoningTokens, request.OutputTokens)
		estimate := registry.EstimateCost(usage, request.Provider, strings.TrimSpace(request.Model))
		writeJSON(w, http.StatusOK, pricingEstimateResponse{
			Estimate:  estimate,
			CostUnits: pricing.ToCostUnits(estimate.Cost),
			Usage:     usage,
		})
	})
}
