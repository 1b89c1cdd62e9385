package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/span"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

const (
	defaultConcurrency = 8
	defaultSpanTimeout = 5 * time.Second
	defaultMaxBatch    = 1000
)

const (
	OutcomeProcessed       = "processed"
	OutcomeExtractionError = "extraction_error"
	OutcomeRejected        = "rejected"
	OutcomeDropped         = "dropped"
)

var ErrBatchTooLarge = errors.New("too many spans in request")

// Enqueuer accepts span records for asynchronous persistence.
type Enqueuer interface {
	Enqueue(span *spanstore.Span) bool
}

// Metrics receives per-span pipeline counters. A nil Metrics records nothing.
type Metrics interface {
	RecordSpanProcessed(spanType, outcome string)
	RecordCostUnits(provider, model string, units int64)
}

type Options struct {
	Table       *span.Table
	Writer      Enqueuer
	Metrics     Metrics
	Logger      *slog.Logger
	Concurrency int
	SpanTimeout time.Duration
	MaxBatch    int
}

// Pipeline processes batches of raw spans. It is safe for concurrent use.
type Pipeline struct {
	table       *span.Table
	writer      Enqueuer
	metrics     Metrics
	logger      *slog.Logger
	concurrency int
	spanTimeout time.Duration
	maxBatch    int
	now         func() time.Time
	newID       func() string
}

// SpanOutcome reports what happened to one submitted span, in request order.
type SpanOutcome struct {
	ID       string        `json:"id,omitempty"`
	TraceID  string        `json:"trace_id"`
	SpanID   string        `json:"span_id"`
	Type     span.Type     `json:"type,omitempty"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Metadata span.Metadata `json:"metadata,omitempty"`
}

type Result struct {
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Dropped  int           `json:"dropped"`
	Spans    []SpanOutcome `json:"spans"`
}

// NewPipeline builds a pipeline. Without a Writer, records are built but not
// persisted.
func NewPipeline(options Options) (*Pipeline, error) {
	if options.Table == nil {
		return nil, errors.New("ingest pipeline requires a span table")
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Concurrency <= 0 {
		options.Concurrency = defaultConcurrency
	}
	if options.SpanTimeout <= 0 {
		options.SpanTimeout = defaultSpanTimeout
	}
	if options.MaxBatch <= 0 {
		options.MaxBatch = defaultMaxBatch
	}
	return &Pipeline{
		table:       options.Table,
		writer:      options.Writer,
		metrics:     options.Metrics,
		logger:      options.Logger,
		concurrency: options.Concurrency,
		spanTimeout: options.SpanTimeout,
		maxBatch:    options.MaxBatch,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

func (p *Pipeline) MaxBatch() int {
	return p.maxBatch
}

// Process runs every span through its specification. A span that fails
// extraction is still stored, as unknown with the extraction error. The
// returned error is non-nil only when the batch as a whole was refused or ctx
// ended before every span was dispatched.
func (p *Pipeline) Process(ctx context.Context, identity *auth.Identity, raws []RawSpan) (*Result, error) {
	if len(raws) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(raws) > p.maxBatch {
		return nil, fmt.Errorf("%w: %d spans, limit %d", ErrBatchTooLarge, len(raws), p.maxBatch)
	}
	if identity == nil {
		identity = auth.Anonymous()
	}

	outcomes := make([]SpanOutcome, len(raws))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range raws {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return nil, err
		}
		i := i
		g.Go(func() error {
			outcomes[i] = p.processOne(ctx, identity, raws[i])
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Spans: outcomes}
	for _, outcome := range outcomes {
		switch outcome.Outcome {
		case OutcomeRejected:
			result.Rejected++
		case OutcomeDropped:
			result.Dropped++
		default:
			result.Accepted++
		}
	}
	return result, nil
}

func (p *Pipeline) processOne(ctx context.Context, identity *auth.Identity, raw RawSpan) SpanOutcome {
	outcome := SpanOutcome{TraceID: raw.TraceID, SpanID: raw.SpanID}
	if err := raw.Validate(); err != nil {
		outcome.Outcome = OutcomeRejected
		outcome.Error = err.Error()
		p.recordProcessed(span.TypeUnknown, OutcomeRejected)
		return outcome
	}

	bag := raw.Bag()
	spanType := raw.ResolveType(bag)
	outcome.Type = spanType
	outcome.Outcome = OutcomeProcessed

	spanCtx, cancel := context.WithTimeout(ctx, p.spanTimeout)
	metadata, err := p.table.Process(spanCtx, spanType, span.Args{
		Attributes: bag,
		Status:     span.ParseStatus(raw.Status),
		Scope:      raw.Scope,
		APIKey:     span.APIKey{ID: identity.KeyID, Name: identity.KeyName},
		Workspace:  span.Workspace{ID: identity.WorkspaceID, Name: identity.WorkspaceName},
	})
	cancel()

	extractionError := ""
	if err != nil {
		p.logger.Warn(
			"span extraction failed",
			"span_id", raw.SpanID,
			"trace_id", raw.TraceID,
			"type", string(spanType),
			"error", err,
		)
		extractionError = err.Error()
		metadata = &span.UnknownMetadata{}
		outcome.Type = span.TypeUnknown
		outcome.Outcome = OutcomeExtractionError
		outcome.Error = extractionError
	}
	outcome.Metadata = metadata

	record, err := p.buildRecord(identity, raw, outcome.Type, metadata, extractionError)
	if err != nil {
		p.logger.Warn("span record encoding failed", "span_id", raw.SpanID, "error", err)
		outcome.Outcome = OutcomeRejected
		outcome.Error = err.Error()
		p.recordProcessed(outcome.Type, OutcomeRejected)
		return outcome
	}
	outcome.ID = record.ID

	if p.writer != nil && !p.writer.Enqueue(record) {
		outcome.Outcome = OutcomeDropped
	}
	p.recordProcessed(outcome.Type, outcome.Outcome)
	if outcome.Outcome != OutcomeDropped && record.CostImplemented && p.metrics != nil {
		p.metrics.RecordCostUnits(record.Provider, record.Model, record.CostUnits)
	}
	return outcome
}

func (p *Pipeline) buildRecord(identity *auth.Identity, raw RawSpan, spanType span.Type, metadata span.Metadata, extractionError string) (*spanstore.Span, error) {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", spanType, err)
	}

	record := &spanstore.Span{
		ID:              p.newID(),
		TraceID:         strings.TrimSpace(raw.TraceID),
		SpanID:          strings.TrimSpace(raw.SpanID),
		ParentSpanID:    strings.TrimSpace(raw.ParentSpanID),
		Name:            raw.Name,
		Kind:            raw.Kind,
		WorkspaceID:     identity.WorkspaceID,
		APIKeyID:        identity.KeyID,
		Type:            string(spanType),
		Status:          string(span.ParseStatus(raw.Status)),
		StatusMessage:   raw.StatusMessage,
		StartedAt:       raw.StartTime,
		EndedAt:         raw.EndTime,
		Metadata:        string(encoded),
		ExtractionError: extractionError,
		CreatedAt:       p.now().UTC(),
	}

	switch typed := metadata.(type) {
	case *span.CompletionMetadata:
		applyCompletion(record, typed)
	case *span.EmbeddingMetadata:
		record.Provider, record.Model, record.InputTokens = typed.Provider, typed.Model, typed.Tokens
	}
	return record, nil
}

func applyCompletion(record *spanstore.Span, meta *span.CompletionMetadata) {
	record.Provider = meta.Provider
	record.Model = meta.Model
	record.FinishReason = string(meta.FinishReason)
	record.CostImplemented = meta.CostImplemented
	if meta.Tokens != nil {
		record.InputTokens = meta.Tokens.Prompt + meta.Tokens.Cached
		record.OutputTokens = meta.Tokens.Completion + meta.Tokens.Reasoning
	}
	if meta.Cost != nil {
		record.CostUnits = *meta.Cost
	}
}

func (p *Pipeline) recordProcessed(spanType span.Type, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordSpanProcessed(string(spanType), outcome)
}
