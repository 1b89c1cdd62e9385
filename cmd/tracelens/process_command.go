package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/ingest"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

// runProcess runs a file of spans through the ingest pipeline and prints the
// per-span outcomes. With --persist the records are also written to the
// configured span store.
func runProcess(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("process", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	input := flagSet.String("input", "-", "Spans JSON file, or - for stdin")
	workspaceID := flagSet.String("workspace-id", "", "Workspace to attribute spans to")
	persist := flagSet.Bool("persist", false, "Write processed spans to the configured store")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "process does not accept positional arguments")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		reportConfigError(errOut, stage, err)
		return 1
	}

	reader := in
	if path := strings.TrimSpace(*input); path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(errOut, "failed to open input: %v\n", err)
			return 1
		}
		defer file.Close()
		reader = file
	}
	raws, err := ingest.DecodeSpans(reader)
	if err != nil {
		fmt.Fprintf(errOut, "invalid spans input: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	workspaces, err := newWorkspaceStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize workspace store: %v\n", err)
		return 1
	}
	defer func() {
		if err := workspaces.Close(); err != nil {
			fmt.Fprintf(errOut, "warning: failed to close workspace store: %v\n", err)
		}
	}()

	registry, err := loadPricingRegistry(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load pricing overrides: %v\n", err)
		return 1
	}

	var writer asyncSpanWriter
	if *persist {
		store, err := openSpanStore(cfg)
		if err != nil {
			fmt.Fprintf(errOut, "failed to initialize span store: %v\n", err)
			return 1
		}
		defer closeSpanStoreWithWarning(store, errOut)

		writer = newSpanWriter(store, spanstore.WriterOptions{
			BufferSize:  max(cfg.Ingest.QueueSize, len(raws)),
			BatchSize:   cfg.Ingest.BatchSize,
			StoreDriver: cfg.Storage.Driver,
			Logger:      logger,
		})
		attachSpanWriterTelemetry(logger, writer, nil)
		writer.Start(ctx)
	}

	var enqueuer ingest.Enqueuer
	if writer != nil {
		enqueuer = writer
	}
	pipeline, err := newIngestPipeline(cfg, logger, workspaces, registry, enqueuer, nil)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize ingest pipeline: %v\n", err)
		return 1
	}

	identity := auth.Anonymous()
	if id := strings.TrimSpace(*workspaceID); id != "" {
		identity.WorkspaceID = id
	}
	result, err := pipeline.Process(ctx, identity, raws)
	if writer != nil {
		shutdownSpanWriter(nil, writer, spanWriterShutdownTimeout)
	}
	if err != nil {
		fmt.Fprintf(errOut, "failed to process spans: %v\n", err)
		return 1
	}

	if err := writeJSON(out, result); err != nil {
		fmt.Fprintf(errOut, "failed to write result: %v\n", err)
		return 1
	}
	if result.Accepted == 0 {
		return 1
	}
	return 0
}
