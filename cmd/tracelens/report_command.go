package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/tracelens/internal/config"
	"github.com/ongoingai/tracelens/internal/spanstore"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReportFormat = "text"
	defaultReportLimit  = 10
	maxReportLimit      = 200
	reportSchemaVersion = "report.v1"
)

type reportDocument struct {
	SchemaVersion string            `json:"schema_version"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Storage       reportStorageInfo `json:"storage"`
	Filters       reportFilterInfo  `json:"filters"`
	Summary       reportSummaryInfo `json:"summary"`
	Models        []reportModelInfo `json:"models"`
	Recent        []reportSpanInfo  `json:"recent_spans"`
}

type reportStorageInfo struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
}

type reportFilterInfo struct {
	WorkspaceID string     `json:"workspace_id,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	Model       string     `json:"model,omitempty"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Limit       int        `json:"limit"`
}

type reportSummaryInfo struct {
	SpanCount         int64   `json:"span_count"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	PricedSpans       int64   `json:"priced_spans"`
	UnpricedSpans     int64   `json:"unpriced_spans"`
	TopModel          string  `json:"top_model,omitempty"`
}

type reportModelInfo struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	SpanCount     int64   `json:"span_count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

type reportSpanInfo struct {
	ID           string    `json:"id"`
	TraceID      string    `json:"trace_id"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"started_at"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	Status       string    `json:"status"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUnits    int64     `json:"cost_units"`
	DurationMS   int64     `json:"duration_ms"`
}

func runReport(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("report", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultReportFormat, "Output format: text or json")
	fromRaw := flagSet.String("from", "", "Report start time (RFC3339 or YYYY-MM-DD)")
	toRaw := flagSet.String("to", "", "Report end time (RFC3339 or YYYY-MM-DD)")
	workspaceID := flagSet.String("workspace-id", "", "Workspace filter")
	provider := flagSet.String("provider", "", "Provider filter")
	model := flagSet.String("model", "", "Model filter")
	limit := flagSet.Int("limit", defaultReportLimit, "Recent span count (1-200)")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "report does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("report", *format, defaultReportFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if *limit <= 0 || *limit > maxReportLimit {
		fmt.Fprintf(errOut, "limit must be between 1 and %d\n", maxReportLimit)
		return 2
	}

	from, err := parseReportTime(*fromRaw, false)
	if err != nil {
		fmt.Fprintf(errOut, "invalid from: %v\n", err)
		return 2
	}
	to, err := parseReportTime(*toRaw, true)
	if err != nil {
		fmt.Fprintf(errOut, "invalid to: %v\n", err)
		return 2
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		fmt.Fprintln(errOut, "invalid range: to must be greater than or equal to from")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		reportConfigError(errOut, stage, err)
		return 1
	}

	store, err := openSpanStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize span store: %v\n", err)
		return 1
	}
	defer closeSpanStoreWithWarning(store, errOut)

	analyticsFilter := spanstore.AnalyticsFilter{
		WorkspaceID: strings.TrimSpace(*workspaceID),
		Provider:    strings.TrimSpace(*provider),
		Model:       strings.TrimSpace(*model),
		From:        from,
		To:          to,
	}
	spanFilter := spanstore.SpanFilter{
		WorkspaceID: analyticsFilter.WorkspaceID,
		Provider:    analyticsFilter.Provider,
		Model:       analyticsFilter.Model,
		From:        analyticsFilter.From,
		To:          analyticsFilter.To,
		Limit:       *limit,
	}

	report, err := buildReport(context.Background(), store, analyticsFilter, spanFilter)
	if err != nil {
		fmt.Fprintf(errOut, "failed to build report: %v\n", err)
		return 1
	}
	report.Storage = reportStorageInfo{Driver: cfg.Storage.Driver}
	if cfg.Storage.Driver == config.StorageDriverSQLite {
		report.Storage.Path = cfg.Storage.Path
	}

	if normalizedFormat == "json" {
		err = writeJSON(out, report)
	} else {
		err = writeReportText(out, report)
	}
	if err != nil {
		fmt.Fprintf(errOut, "failed to write report: %v\n", err)
		return 1
	}
	return 0
}

func parseReportTime(raw string, endOfDay bool) (time.Time, error) {
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

// buildReport runs the report queries concurrently; the first failure wins.
func buildReport(
	ctx context.Context,
	store spanstore.Store,
	analyticsFilter spanstore.AnalyticsFilter,
	spanFilter spanstore.SpanFilter,
) (reportDocument, error) {
	var (
		usage  *spanstore.UsageSummary
		cost   *spanstore.CostSummary
		models []spanstore.ModelStats
		recent *spanstore.SpanResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		usage, err = store.GetUsageSummary(gctx, analyticsFilter)
		return err
	})
	g.Go(func() error {
		var err error
		cost, err = store.GetCostSummary(gctx, analyticsFilter)
		return err
	})
	g.Go(func() error {
		var err error
		models, err = store.GetModelStats(gctx, analyticsFilter)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = store.QuerySpans(gctx, spanFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return reportDocument{}, err
	}
	if usage == nil {
		usage = &spanstore.UsageSummary{}
	}
	if cost == nil {
		cost = &spanstore.CostSummary{}
	}
	if recent == nil {
		recent = &spanstore.SpanResult{}
	}

	modelRows := make([]reportModelInfo, 0, len(models))
	for _, stat := range models {
		modelRows = append(modelRows, reportModelInfo{
			Provider:      stat.Provider,
			Model:         stat.Model,
			SpanCount:     stat.SpanCount,
			AvgDurationMS: stat.AvgDurationMS,
			TotalTokens:   stat.TotalTokens,
			TotalCostUSD:  stat.TotalCostUSD,
		})
	}
	sort.SliceStable(modelRows, func(i, j int) bool {
		if modelRows[i].SpanCount != modelRows[j].SpanCount {
			return modelRows[i].SpanCount > modelRows[j].SpanCount
		}
		return modelRows[i].Model < modelRows[j].Model
	})
	topModel := ""
	if len(modelRows) > 0 {
		topModel = modelRows[0].Model
	}

	recentRows := make([]reportSpanInfo, 0, len(recent.Items))
	for _, item := range recent.Items {
		if item == nil {
			continue
		}
		recentRows = append(recentRows, reportSpanInfo{
			ID:           item.ID,
			TraceID:      item.TraceID,
			Type:         item.Type,
			Name:         item.Name,
			StartedAt:    item.StartedAt.UTC(),
			Provider:     item.Provider,
			Model:        item.Model,
			Status:       item.Status,
			InputTokens:  item.InputTokens,
			OutputTokens: item.OutputTokens,
			CostUnits:    item.CostUnits,
			DurationMS:   item.DurationMS,
		})
	}

	return reportDocument{
		SchemaVersion: reportSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Filters: reportFilterInfo{
			WorkspaceID: analyticsFilter.WorkspaceID,
			Provider:    analyticsFilter.Provider,
			Model:       analyticsFilter.Model,
			From:        reportOptionalTime(analyticsFilter.From),
			To:          reportOptionalTime(analyticsFilter.To),
			Limit:       spanFilter.Limit,
		},
		Summary: reportSummaryInfo{
			SpanCount:         usage.SpanCount,
			TotalInputTokens:  usage.TotalInputTokens,
			TotalOutputTokens: usage.TotalOutputTokens,
			TotalTokens:       usage.TotalTokens,
			TotalCostUSD:      cost.TotalCostUSD,
			PricedSpans:       cost.PricedSpans,
			UnpricedSpans:     cost.UnpricedSpans,
			TopModel:          topModel,
		},
		Models: modelRows,
		Recent: recentRows,
	}, nil
}

func writeReportText(out io.Writer, report reportDocument) error {
	fmt.Fprintln(out, "Tracelens Report")

	metadataWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(metadataWriter, "Schema version\t%s\n", report.SchemaVersion)
	fmt.Fprintf(metadataWriter, "Generated at\t%s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(metadataWriter, "Storage driver\t%s\n", report.Storage.Driver)
	if strings.TrimSpace(report.Storage.Path) != "" {
		fmt.Fprintf(metadataWriter, "Storage path\t%s\n", report.Storage.Path)
	}
	fmt.Fprintf(metadataWriter, "Filter workspace\t%s\n", valueOr(report.Filters.WorkspaceID, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter provider\t%s\n", valueOr(report.Filters.Provider, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter model\t%s\n", valueOr(report.Filters.Model, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter from\t%s\n", timePtrOr(report.Filters.From, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter to\t%s\n", timePtrOr(report.Filters.To, "(all)"))
	if err := metadataWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSummary")
	summaryWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(summaryWriter, "Spans\t%d\n", report.Summary.SpanCount)
	fmt.Fprintf(summaryWriter, "Total input tokens\t%d\n", report.Summary.TotalInputTokens)
	fmt.Fprintf(summaryWriter, "Total output tokens\t%d\n", report.Summary.TotalOutputTokens)
	fmt.Fprintf(summaryWriter, "Total tokens\t%d\n", report.Summary.TotalTokens)
	fmt.Fprintf(summaryWriter, "Estimated cost (USD)\t%.6f\n", report.Summary.TotalCostUSD)
	fmt.Fprintf(summaryWriter, "Priced spans\t%d\n", report.Summary.PricedSpans)
	fmt.Fprintf(summaryWriter, "Unpriced spans\t%d\n", report.Summary.UnpricedSpans)
	fmt.Fprintf(summaryWriter, "Top model\t%s\n", valueOr(report.Summary.TopModel, "(none)"))
	if err := summaryWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nModels")
	if len(report.Models) == 0 {
		fmt.Fprintln(out, "(no model data)")
	} else {
		modelWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(modelWriter, "PROVIDER\tMODEL\tSPANS\tTOTAL_TOKENS\tTOTAL_COST_USD\tAVG_DURATION_MS")
		for _, row := range report.Models {
			fmt.Fprintf(modelWriter, "%s\t%s\t%d\t%d\t%.6f\t%.2f\n", valueOr(row.Provider, "(unknown)"), valueOr(row.Model, "(unknown)"), row.SpanCount, row.TotalTokens, row.TotalCostUSD, row.AvgDurationMS)
		}
		if err := modelWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nRecent Spans")
	if len(report.Recent) == 0 {
		fmt.Fprintln(out, "(no spans)")
		return nil
	}
	spanWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(spanWriter, "STARTED_AT\tTYPE\tNAME\tMODEL\tSTATUS\tTOKENS\tCOST_UNITS\tDURATION_MS\tID")
	for _, row := range report.Recent {
		fmt.Fprintf(
			spanWriter,
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			row.StartedAt.Format(time.RFC3339),
			row.Type,
			valueOr(row.Name, "(unnamed)"),
			valueOr(row.Model, "-"),
			valueOr(row.Status, "unset"),
			row.InputTokens+row.OutputTokens,
			row.CostUnits,
			row.DurationMS,
			row.ID,
		)
	}
	return spanWriter.Flush()
}

func reportOptionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timePtrOr(value *time.Time, fallback string) string {
	if value == nil {
		return fallback
	}
	return value.Format(time.RFC3339)
}
