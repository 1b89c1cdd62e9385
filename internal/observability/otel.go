package observability

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/config"
	"github.com/ongoingai/tracelens/internal/ingest"
	"github.com/ongoingai/tracelens/internal/pathutil"
	"github.com/ongoingai/tracelens/internal/spanstore"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "tracelens"
)

const (
	metricSpanProcessed    = "tracelens.span.processed_total"
	metricExtractionErrors = "tracelens.span.extraction_errors_total"
	metricCostUnits        = "tracelens.span.cost_units_total"
	metricWriterDropped    = "tracelens.writer.queue_dropped_total"
	metricWriteFailed      = "tracelens.writer.write_failed_total"
	metricWriterFlush      = "tracelens.writer.flush_duration_ms"
)

var _ ingest.Metrics = (*Runtime)(nil)

// Runtime exposes OpenTelemetry HTTP wrappers and span pipeline metric hooks.
type Runtime struct {
	enabled bool

	spanProcessedCounter    metric.Int64Counter
	extractionErrorCounter  metric.Int64Counter
	costUnitsCounter        metric.Int64Counter
	writerDroppedCounter    metric.Int64Counter
	writeFailedCounter      metric.Int64Counter
	writerFlushDurationHist metric.Float64Histogram

	shutdownFns []func(context.Context) error
}

// Setup initializes OpenTelemetry providers and runtime hooks.
func Setup(ctx context.Context, cfg config.OTelConfig, serviceVersion string, logger *slog.Logger) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runtime := &Runtime{}
	if !cfg.Enabled {
		return runtime, nil
	}

	exportTimeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond
	metricInterval := time.Duration(cfg.MetricExportIntervalMS) * time.Millisecond
	otlpEndpoint, inferredInsecure, err := normalizeOTLPEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	insecure := cfg.Insecure
	if strings.Contains(strings.TrimSpace(cfg.Endpoint), "://") {
		// An explicit scheme wins over the insecure toggle.
		insecure = inferredInsecure
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", strings.TrimSpace(cfg.ServiceName)),
		attribute.String("service.version", strings.TrimSpace(serviceVersion)),
	)

	if cfg.TracesEnabled {
		traceExporterOptions := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(otlpEndpoint),
			otlptracehttp.WithTimeout(exportTimeout),
		}
		if insecure {
			traceExporterOptions = append(traceExporterOptions, otlptracehttp.WithInsecure())
		}
		traceExporter, err := otlptracehttp.New(ctx, traceExporterOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize otel trace exporter: %w", err)
		}

		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
			sdktrace.WithBatcher(newScrubbingExporter(traceExporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		runtime.shutdownFns = append(runtime.shutdownFns, tracerProvider.Shutdown)
	}

	if cfg.MetricsEnabled {
		metricExporterOptions := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithTimeout(exportTimeout),
		}
		if insecure {
			metricExporterOptions = append(metricExporterOptions, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err := otlpmetrichttp.New(ctx, metricExporterOptions...)
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, fmt.Errorf("initialize otel metric exporter: %w", err)
		}

		reader := sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(metricInterval),
			sdkmetric.WithTimeout(exportTimeout),
		)
		meterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(meterProvider)
		runtime.shutdownFns = append(runtime.shutdownFns, meterProvider.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	runtime.registerInstruments(otel.Meter(instrumentationName), logger)
	runtime.enabled = true
	if logger != nil {
		logger.Info(
			"opentelemetry enabled",
			"otel_endpoint", otlpEndpoint,
			"otel_traces_enabled", cfg.TracesEnabled,
			"otel_metrics_enabled", cfg.MetricsEnabled,
			"otel_sampling_ratio", cfg.SamplingRatio,
		)
	}

	return runtime, nil
}

func (r *Runtime) registerInstruments(meter metric.Meter, logger *slog.Logger) {
	warn := func(name string, err error) {
		if err != nil && logger != nil {
			logger.Warn("failed to create opentelemetry instrument", "metric", name, "error", err)
		}
	}

	var err error
	r.spanProcessedCounter, err = meter.Int64Counter(
		metricSpanProcessed,
		metric.WithDescription("Count of ingested spans by span type and outcome."),
	)
	warn(metricSpanProcessed, err)

	r.extractionErrorCounter, err = meter.Int64Counter(
		metricExtractionErrors,
		metric.WithDescription("Count of spans whose metadata extraction failed."),
	)
	warn(metricExtractionErrors, err)

	r.costUnitsCounter, err = meter.Int64Counter(
		metricCostUnits,
		metric.WithDescription("Estimated spend in cost units (100000 per USD)."),
	)
	warn(metricCostUnits, err)

	r.writerDroppedCounter, err = meter.Int64Counter(
		metricWriterDropped,
		metric.WithDescription("Count of span records dropped because the writer queue was full."),
	)
	warn(metricWriterDropped, err)

	r.writeFailedCounter, err = meter.Int64Counter(
		metricWriteFailed,
		metric.WithDescription("Count of span records dropped after storage write failures."),
	)
	warn(metricWriteFailed, err)

	r.writerFlushDurationHist, err = meter.Float64Histogram(
		metricWriterFlush,
		metric.WithDescription("Duration of span writer batch flushes."),
		metric.WithUnit("ms"),
	)
	warn(metricWriterFlush, err)
}

// Enabled reports whether OpenTelemetry instrumentation is active.
func (r *Runtime) Enabled() bool {
	return r != nil && r.enabled
}

// WrapHTTPHandler wraps an inbound HTTP handler with OpenTelemetry spans.
func (r *Runtime) WrapHTTPHandler(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	if !r.Enabled() {
		return next
	}
	return otelhttp.NewHandler(
		next,
		"tracelens.request",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return serverSpanName(req.Method, req.URL.Path)
		}),
	)
}

// SpanEnrichmentMiddleware adds the calling workspace and key to the request
// span and marks 5xx responses as errors.
func (r *Runtime) SpanEnrichmentMiddleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	if !r.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusCapturingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(recorder, req)

		span := oteltrace.SpanFromContext(req.Context())
		if span == nil || !span.IsRecording() {
			return
		}

		statusCode := recorder.StatusCode()
		if statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("http %d", statusCode))
		}

		identity, ok := auth.IdentityFromContext(req.Context())
		if !ok || identity == nil {
			return
		}
		attrs := make([]attribute.KeyValue, 0, 3)
		if workspaceID := strings.TrimSpace(identity.WorkspaceID); workspaceID != "" {
			attrs = append(attrs, attribute.String("tracelens.workspace_id", workspaceID))
		}
		if keyID := strings.TrimSpace(identity.KeyID); keyID != "" {
			attrs = append(attrs, attribute.String("tracelens.key_id", keyID))
		}
		if role := strings.TrimSpace(identity.Role); role != "" {
			attrs = append(attrs, attribute.String("tracelens.role", role))
		}
		if len(attrs) > 0 {
			span.SetAttributes(attrs...)
		}
	})
}

// RecordSpanProcessed counts one ingested span.
func (r *Runtime) RecordSpanProcessed(spanType, outcome string) {
	if !r.Enabled() || r.spanProcessedCounter == nil {
		return
	}
	r.spanProcessedCounter.Add(
		context.Background(),
		1,
		metric.WithAttributes(
			attribute.String("span_type", spanType),
			attribute.String("outcome", outcome),
		),
	)
	if outcome == ingest.OutcomeExtractionError && r.extractionErrorCounter != nil {
		r.extractionErrorCounter.Add(context.Background(), 1)
	}
}

// RecordCostUnits adds the priced cost of a completion span.
func (r *Runtime) RecordCostUnits(provider, model string, units int64) {
	if !r.Enabled() || units <= 0 || r.costUnitsCounter == nil {
		return
	}
	r.costUnitsCounter.Add(
		context.Background(),
		units,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
		),
	)
}

// RecordWriterDrop counts a span record refused by a full writer queue.
func (r *Runtime) RecordWriterDrop() {
	if !r.Enabled() || r.writerDroppedCounter == nil {
		return
	}
	r.writerDroppedCounter.Add(context.Background(), 1)
}

// RecordWriteFailure counts span records lost to storage write failures.
func (r *Runtime) RecordWriteFailure(failure spanstore.WriteFailure) {
	if !r.Enabled() || failure.FailedCount <= 0 || r.writeFailedCounter == nil {
		return
	}
	r.writeFailedCounter.Add(
		context.Background(),
		int64(failure.FailedCount),
		metric.WithAttributes(
			attribute.String("operation", strings.TrimSpace(failure.Operation)),
			attribute.String("error_class", strings.TrimSpace(failure.ErrorClass)),
		),
	)
}

// WriterMetrics returns span writer callbacks that feed the runtime meters.
func (r *Runtime) WriterMetrics() *spanstore.WriterMetrics {
	if !r.Enabled() {
		return &spanstore.WriterMetrics{}
	}
	return &spanstore.WriterMetrics{
		OnDrop: r.RecordWriterDrop,
		OnFlush: func(batchSize int, duration time.Duration) {
			if r.writerFlushDurationHist == nil {
				return
			}
			r.writerFlushDurationHist.Record(
				context.Background(),
				float64(duration)/float64(time.Millisecond),
				metric.WithAttributes(attribute.Int("batch_size", batchSize)),
			)
		},
	}
}

// Shutdown flushes and stops OpenTelemetry providers.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || len(r.shutdownFns) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i := len(r.shutdownFns) - 1; i >= 0; i-- {
		if err := r.shutdownFns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func normalizeOTLPEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, errors.New("observability.otel.endpoint must not be empty")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse observability.otel.endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", false, fmt.Errorf("observability.otel.endpoint must include host (got %q)", raw)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return parsed.Host, true, nil
	case "https":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("observability.otel.endpoint scheme must be http or https when provided (got %q)", parsed.Scheme)
	}
}

// routePatternForPath collapses ids out of request paths so span names keep
// a bounded cardinality.
func routePatternForPath(path string) string {
	switch {
	case path == "/api/spans":
		return "/api/spans"
	case pathutil.HasPathPrefix(path, "/api/spans"):
		return "/api/spans/{id}"
	case pathutil.HasPathPrefix(path, "/api/analytics"):
		return "/api/analytics/*"
	case path == "/api/pricing/estimate":
		return "/api/pricing/estimate"
	case pathutil.HasPathPrefix(path, "/api/pricing"):
		return "/api/pricing/{provider}"
	case pathutil.HasPathPrefix(path, "/api"):
		return "/api/*"
	default:
		return "/other"
	}
}

func serverSpanName(method, path string) string {
	return normalizedMethod(method) + " " + routePatternForPath(path)
}

func normalizedMethod(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return "UNKNOWN"
	}
	return method
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusCapturingResponseWriter) Unwrap() http.ResponseWriter {
	if w == nil {
		return nil
	}
	return w.ResponseWriter
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusCapturingResponseWriter) StatusCode() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *statusCapturingResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusCapturingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func (w *statusCapturingResponseWriter) ReadFrom(r io.Reader) (int64, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	readerFrom, ok := w.ResponseWriter.(io.ReaderFrom)
	if !ok {
		return io.Copy(w.ResponseWriter, r)
	}
	return readerFrom.ReadFrom(r)
}
