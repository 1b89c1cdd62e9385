package api

import (
	"net/http"
	"time"

	"github.com/ongoingai/tracelens/internal/spanstore"
)

const spanPipelineDiagnosticsSchemaVersion = "span-pipeline-diagnostics.v1"

type SpanPipelineDiagnosticsOptions struct {
	Reader spanstore.DiagnosticsReader
}

type spanPipelineDiagnosticsResponse struct {
	SchemaVersion string                        `json:"schema_version"`
	GeneratedAt   time.Time                     `json:"generated_at"`
	Diagnostics   spanstore.PipelineDiagnostics `json:"diagnostics"`
}

func SpanPipelineDiagnosticsHandler(options SpanPipelineDiagnosticsOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if options.Reader == nil {
			writeError(w, http.StatusServiceUnavailable, "span pipeline diagnostics unavailable")
			return
		}

		writeJSON(w, http.StatusOK, spanPipelineDiagnosticsResponse{
			SchemaVersion: spanPipelineDiagnosticsSchemaVersion,
			GeneratedAt:   time.Now().UTC(),
			Diagnostics:   options.Reader.SpanPipelineDiagnostics(),
		})
	})
}
