package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ongoingai/tracelens/internal/api"
	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/config"
	"github.com/ongoingai/tracelens/internal/ingest"
	"github.com/ongoingai/tracelens/internal/observability"
	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/span"
	"github.com/ongoingai/tracelens/internal/spanstore"
	"github.com/ongoingai/tracelens/internal/version"
	"github.com/ongoingai/tracelens/internal/workspacestore"
)

const defaultConfigPath = "tracelens.yaml"

const spanWriterShutdownTimeout = 5 * time.Second
const otelShutdownTimeout = 5 * time.Second
const serverShutdownTimeoutFallback = 10 * time.Second
const serverReadHeaderTimeout = 10 * time.Second
const serverReadTimeout = 30 * time.Second
const serverIdleTimeout = 2 * time.Minute

type asyncSpanWriter interface {
	Start(ctx context.Context)
	Enqueue(span *spanstore.Span) bool
	Shutdown(ctx context.Context) error
	SetMetrics(m *spanstore.WriterMetrics)
	SetWriteFailureHandler(handler spanstore.WriteFailureHandler)
	SpanPipelineDiagnostics() spanstore.PipelineDiagnostics
}

var newSpanWriter = func(store spanstore.Store, options spanstore.WriterOptions) asyncSpanWriter {
	return spanstore.NewWriter(store, options)
}

var newWorkspaceStore = func(ctx context.Context, cfg config.Config) (workspacestore.Store, error) {
	if strings.TrimSpace(cfg.Workspaces.Driver) == config.WorkspacesDriverPostgres {
		return workspacestore.NewPostgresStore(ctx, cfg.WorkspacesDSN())
	}
	return workspacestore.NewStaticStore(cfg.Workspaces.Credentials, cfg.Workspaces.Prompts), nil
}

var signalNotifyContext = signal.NotifyContext

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runServe(nil)
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "serve":
		return runServe(args[1:])
	case "config":
		return runConfig(args[1:], os.Stdout, os.Stderr)
	case "process":
		return runProcess(args[1:], os.Stdin, os.Stdout, os.Stderr)
	case "pricing":
		return runPricing(args[1:], os.Stdout, os.Stderr)
	case "report":
		return runReport(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printConfigUsage(errOut)
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], out, errOut)
	default:
		printConfigUsage(errOut)
		return 2
	}
}

func runConfigValidate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	if _, stage, err := loadAndValidateConfig(*configPath); err != nil {
		reportConfigError(errOut, stage, err)
		return 1
	}

	fmt.Fprintf(out, "config is valid: %s\n", *configPath)
	return 0
}

func runServe(args []string) int {
	flagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		reportConfigError(os.Stderr, stage, err)
		return 1
	}

	logger := slog.New(observability.NewContextLogHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	otelRuntime, otelErr := observability.Setup(context.Background(), cfg.Observability.OTel, version.Short(), logger)
	if otelErr != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", otelErr)
	}
	if otelRuntime != nil {
		defer shutdownOpenTelemetry(logger, otelRuntime, otelShutdownTimeout)
	}

	store, err := openSpanStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize %s storage: %v\n", cfg.Storage.Driver, err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close span store", "error", err, "driver", cfg.Storage.Driver)
		}
	}()

	writer := newSpanWriter(store, spanstore.WriterOptions{
		BufferSize:  cfg.Ingest.QueueSize,
		BatchSize:   cfg.Ingest.BatchSize,
		StoreDriver: cfg.Storage.Driver,
		Logger:      logger,
	})
	attachSpanWriterTelemetry(logger, writer, otelRuntime)
	writer.Start(context.Background())
	defer shutdownSpanWriter(logger, writer, spanWriterShutdownTimeout)

	workspaces, err := newWorkspaceStore(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize workspace store: %v\n", err)
		return 1
	}
	defer func() {
		if err := workspaces.Close(); err != nil {
			logger.Error("failed to close workspace store", "error", err)
		}
	}()

	registry, err := loadPricingRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load pricing overrides: %v\n", err)
		return 1
	}

	authorizer, err := auth.NewAuthorizer(auth.Options{
		Enabled: cfg.Auth.Enabled,
		Header:  cfg.Auth.Header,
		Keys:    authKeysFromConfig(cfg.Auth.Keys),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize auth config: %v\n", err)
		return 1
	}

	pipeline, err := newIngestPipeline(cfg, logger, workspaces, registry, writer, otelRuntime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize ingest pipeline: %v\n", err)
		return 1
	}

	apiHandler := api.NewRouter(api.RouterOptions{
		AppVersion:    version.String(),
		Store:         store,
		StorageDriver: cfg.Storage.Driver,
		StoragePath:   cfg.Storage.Path,
		Pipeline:      pipeline,
		Pricing:       registry,
		Diagnostics:   writer,
		AuthHeader:    cfg.Auth.Header,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})
	server := newServer(cfg, logger, otelRuntime, auth.Middleware(authorizer, "/api", apiHandler))

	logger.Info(
		"startup banner",
		"version", version.String(),
		"addr", server.Addr,
		"storage_driver", cfg.Storage.Driver,
		"workspaces_driver", cfg.Workspaces.Driver,
		"pricing_providers", len(registry.Providers()),
		"config_path", *configPath,
		"auth_enabled", cfg.Auth.Enabled,
	)

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout(cfg))
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown", "error", err)
			return 1
		}
		logger.Info("tracelens stopped")
		return 0
	case err := <-errCh:
		if err != nil {
			logger.Error("tracelens failed", "error", err)
			return 1
		}
		return 0
	}
}

func newIngestPipeline(
	cfg config.Config,
	logger *slog.Logger,
	workspaces workspacestore.Store,
	registry *pricing.Registry,
	writer ingest.Enqueuer,
	otelRuntime *observability.Runtime,
) (*ingest.Pipeline, error) {
	table := span.NewTable(span.Dependencies{
		Workspaces: workspaces,
		Pricing:    registry,
		Logger:     logger,
	})
	options := ingest.Options{
		Table:       table,
		Writer:      writer,
		Logger:      logger,
		Concurrency: cfg.Ingest.Concurrency,
		SpanTimeout: time.Duration(cfg.Ingest.SpanTimeoutMS) * time.Millisecond,
		MaxBatch:    cfg.Ingest.MaxBatch,
	}
	if otelRuntime != nil {
		options.Metrics = otelRuntime
	}
	return ingest.NewPipeline(options)
}

func newServer(cfg config.Config, logger *slog.Logger, otelRuntime *observability.Runtime, handler http.Handler) *http.Server {
	if otelRuntime != nil {
		handler = otelRuntime.WrapHTTPHandler(otelRuntime.SpanEnrichmentMiddleware(handler))
	}
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.LoggingMiddleware(logger, handler),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
	}
}

func serverShutdownTimeout(cfg config.Config) time.Duration {
	if cfg.Server.ShutdownTimeoutMS <= 0 {
		return serverShutdownTimeoutFallback
	}
	return time.Duration(cfg.Server.ShutdownTimeoutMS) * time.Millisecond
}

func authKeysFromConfig(keys []config.APIKeyConfig) []auth.KeyConfig {
	out := make([]auth.KeyConfig, 0, len(keys))
	for _, key := range keys {
		out = append(out, auth.KeyConfig{
			ID:            key.ID,
			Name:          key.Name,
			Token:         key.Token,
			TokenHash:     key.TokenHash,
			WorkspaceID:   key.WorkspaceID,
			WorkspaceName: key.WorkspaceName,
			Role:          key.Role,
			Permissions:   append([]string(nil), key.Permissions...),
		})
	}
	return out
}

func attachSpanWriterTelemetry(logger *slog.Logger, writer asyncSpanWriter, otelRuntime *observability.Runtime) {
	if writer == nil {
		return
	}
	if otelRuntime != nil && otelRuntime.Enabled() {
		writer.SetMetrics(otelRuntime.WriterMetrics())
	}
	writer.SetWriteFailureHandler(func(failure spanstore.WriteFailure) {
		if failure.FailedCount <= 0 {
			return
		}
		if otelRuntime != nil {
			otelRuntime.RecordWriteFailure(failure)
		}
		if logger != nil {
			logger.Error(
				"span persistence failed; dropped span records",
				"operation", strings.TrimSpace(failure.Operation),
				"batch_size", failure.BatchSize,
				"failed_count", failure.FailedCount,
				"error_class", failure.ErrorClass,
				"error_kind", fmt.Sprintf("%T", failure.Err),
			)
		}
	})
}

func shutdownSpanWriter(logger *slog.Logger, writer asyncSpanWriter, timeout time.Duration) {
	if writer == nil {
		return
	}

	start := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := writer.Shutdown(shutdownCtx); err != nil {
		if logger != nil {
			logger.Error(
				"failed to flush pending spans before shutdown",
				"error", err,
				"timeout", timeout.String(),
			)
		}
		return
	}

	if logger != nil {
		logger.Info("flushed pending spans before shutdown", "duration_ms", time.Since(start).Milliseconds())
	}
}

func shutdownOpenTelemetry(logger *slog.Logger, runtime *observability.Runtime, timeout time.Duration) {
	if runtime == nil || !runtime.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := runtime.Shutdown(ctx); err != nil {
		if logger != nil {
			logger.Error("failed to shutdown opentelemetry providers", "error", err, "timeout", timeout.String())
		}
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  tracelens serve [--config path/to/tracelens.yaml]")
	fmt.Fprintln(out, "  tracelens version")
	fmt.Fprintln(out, "  tracelens config validate [--config path/to/tracelens.yaml]")
	fmt.Fprintln(out, "  tracelens process [--config path/to/tracelens.yaml] [--input PATH|-] [--workspace-id ID]")
	fmt.Fprintln(out, "  tracelens pricing list [--config path/to/tracelens.yaml] [--provider NAME] [--all] [--format text|json]")
	fmt.Fprintln(out, "  tracelens pricing estimate [--config path/to/tracelens.yaml] --provider NAME [--model NAME] [--input-tokens N] [--output-tokens N] [--cached-tokens N] [--reasoning-tokens N] [--format text|json]")
	fmt.Fprintln(out, "  tracelens report [--config path/to/tracelens.yaml] [--format text|json] [--from RFC3339|YYYY-MM-DD] [--to RFC3339|YYYY-MM-DD] [--workspace-id ID] [--provider NAME] [--model NAME] [--limit N]")
}

func printConfigUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  tracelens config validate [--config path/to/tracelens.yaml]")
}
