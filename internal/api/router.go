package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ongoingai/tracelens/internal/ingest"
	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

const defaultMaxBodyBytes = 8 << 20

type RouterOptions struct {
	AppVersion    string
	Store         spanstore.Store
	StorageDriver string
	StoragePath   string
	Pipeline      *ingest.Pipeline
	Pricing       *pricing.Registry
	Diagnostics   spanstore.DiagnosticsReader
	AuthHeader    string
	MaxBodyBytes  int64
}

func NewRouter(options RouterOptions) http.Handler {
	startedAt := time.Now().UTC()
	if options.Pricing == nil {
		options.Pricing = pricing.DefaultRegistry()
	}
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = defaultMaxBodyBytes
	}
	mux := http.NewServeMux()

	mux.Handle("/api/health", HealthHandler(HealthOptions{
		Version:       options.AppVersion,
		StartedAt:     startedAt,
		StorageDriver: options.StorageDriver,
		StoragePath:   options.StoragePath,
		Store:         options.Store,
		Pricing:       options.Pricing,
		Diagnostics:   options.Diagnostics,
	}))
	mux.Handle("/api/spans", SpansHandler(SpansOptions{
		Store:        options.Store,
		Pipeline:     options.Pipeline,
		MaxBodyBytes: options.MaxBodyBytes,
	}))
	mux.Handle("/api/spans/", SpanDetailHandler(options.Store))
	mux.Handle("/api/analytics/usage", UsageHandler(options.Store))
	mux.Handle("/api/analytics/cost", CostHandler(options.Store))
	mux.Handle("/api/analytics/models", ModelsHandler(options.Store))
	mux.Handle("/api/pricing/estimate", PricingEstimateHandler(options.Pricing))
	mux.Handle("/api/pricing/", PricingCatalogHandler(options.Pricing))
	mux.Handle("/api/diagnostics/span-pipeline", SpanPipelineDiagnosticsHandler(SpanPipelineDiagnosticsOptions{
		Reader: options.Diagnostics,
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"name":    "tracelens",
			"version": options.AppVersion,
			"status":  "ok",
		})
	})

	return withCORS(mux, options.AuthHeader)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("{\"error\":\"internal server error\"}\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(append(methods, http.MethodOptions), ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func withCORS(next http.Handler, authHeader string) http.Handler {
	allowedHeaders := []string{"Content-Type", "Authorization", "X-Tracelens-Key"}
	customHeader := strings.TrimSpace(authHeader)
	if customHeader != "" {
		alreadyAllowed := false
		for _, header := range allowedHeaders {
			if strings.EqualFold(header, customHeader) {
				alreadyAllowed = true
				break
			}
		}
		if !alreadyAllowed {
			allowedHeaders = append(allowedHeaders, customHeader)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
