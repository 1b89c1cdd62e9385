package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

type HealthOptions struct {
	Version       string
	StartedAt     time.Time
	StorageDriver string
	StoragePath   string
	Store         spanstore.Store
	Pricing       *pricing.Registry
	Diagnostics   spanstore.DiagnosticsReader
}

type healthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	UptimeSec        int64  `json:"uptime_sec"`
	StorageDriver    string `json:"storage_driver"`
	SpanCount        int64  `json:"span_count"`
	DBSizeBytes      int64  `json:"db_size_bytes,omitempty"`
	PricedProviders  int    `json:"priced_providers"`
	PipelinePressure string `json:"pipeline_pressure,omitempty"`
}

// HealthHandler reports liveness. A saturated span writer queue turns the
// status to "degraded"; store errors only zero the counters.
func HealthHandler(options HealthOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}

		response := healthResponse{
			Status:        "ok",
			Version:       options.Version,
			UptimeSec:     int64(time.Since(options.StartedAt).Seconds()),
			StorageDriver: options.StorageDriver,
		}
		if options.Store != nil {
			if models, err := options.Store.GetModelStats(r.Context(), spanstore.AnalyticsFilter{}); err == nil {
				for _, model := range models {
					response.SpanCount += model.SpanCount
				}
			}
		}
		if strings.EqualFold(options.StorageDriver, "sqlite") && options.StoragePath != "" {
			if info, err := os.Stat(options.StoragePath); err == nil {
				response.DBSizeBytes = info.Size()
			}
		}
		if options.Pricing != nil {
			response.PricedProviders = len(options.Pricing.Providers())
		}
		if options.Diagnostics != nil {
			response.PipelinePressure = options.Diagnostics.SpanPipelineDiagnostics().QueuePressureState
			if response.PipelinePressure == spanstore.QueuePressureSaturated {
				response.Status = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, response)
	})
}
