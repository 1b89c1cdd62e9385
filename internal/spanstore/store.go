package spanstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("span store record not found")
var ErrInvalidCursor = errors.New("span cursor is invalid")
var ErrDuplicateSpan = errors.New("span already stored")

// Span is one normalized span as persisted. Metadata holds the JSON encoding
// of the extracted span metadata; ExtractionError is set instead when
// extraction failed.
type Span struct {
	ID              string
	TraceID         string
	SpanID          string
	ParentSpanID    string
	Name            string
	Kind            string
	WorkspaceID     string
	APIKeyID        string
	Type            string
	Status          string
	StatusMessage   string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationMS      int64
	Provider        string
	Model           string
	InputTokens     int64
	OutputTokens    int64
	CostUnits       int64
	CostImplemented bool
	FinishReason    string
	Metadata        string
	ExtractionError string
	CreatedAt       time.Time
}

type Store interface {
	WriteSpan(ctx context.Context, span *Span) error
	WriteBatch(ctx context.Context, spans []*Span) error
	GetSpan(ctx context.Context, id string) (*Span, error)
	QuerySpans(ctx context.Context, filter SpanFilter) (*SpanResult, error)
	GetUsageSummary(ctx context.Context, filter AnalyticsFilter) (*UsageSummary, error)
	GetCostSummary(ctx context.Context, filter AnalyticsFilter) (*CostSummary, error)
	GetModelStats(ctx context.Context, filter AnalyticsFilter) ([]ModelStats, error)
	Close() error
}

type SpanFilter struct {
	WorkspaceID string
	TraceID     string
	Type        string
	Provider    string
	Model       string
	Status      string
	From        time.Time
	To          time.Time
	Limit       int
	Cursor      string
}

type SpanResult struct {
	Items      []*Span
	NextCursor string
}

type AnalyticsFilter struct {
	WorkspaceID string
	APIKeyID    string
	Provider    string
	Model       string
	From        time.Time
	To          time.Time
}

type UsageSummary struct {
	SpanCount         int64
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalTokens       int64
}

// CostSummary totals cost units. Spans whose model has no known price count
// toward UnpricedSpans and contribute zero cost.
type CostSummary struct {
	TotalCostUnits int64
	TotalCostUSD   float64
	PricedSpans    int64
	UnpricedSpans  int64
}

type ModelStats struct {
	Provider       string
	Model          string
	SpanCount      int64
	AvgDurationMS  float64
	TotalTokens    int64
	TotalCostUnits int64
	TotalCostUSD   float64
}

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
