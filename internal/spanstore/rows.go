package spanstore

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

var spanColumns = []string{
	"id",
	"trace_id",
	"span_id",
	"parent_span_id",
	"name",
	"kind",
	"workspace_id",
	"api_key_id",
	"type",
	"status",
	"status_message",
	"started_at",
	"ended_at",
	"duration_ms",
	"provider",
	"model",
	"input_tokens",
	"output_tokens",
	"cost_units",
	"cost_implemented",
	"finish_reason",
	"metadata",
	"extraction_error",
	"created_at",
}

func insertSpanSQL(placeholder func(int) string) string {
	marks := make([]string, len(spanColumns))
	for i := range spanColumns {
		marks[i] = placeholder(i + 1)
	}
	return "INSERT INTO spans (" + strings.Join(spanColumns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

func spanValues(row *Span) []any {
	return []any{
		row.ID,
		row.TraceID,
		row.SpanID,
		row.ParentSpanID,
		row.Name,
		row.Kind,
		row.WorkspaceID,
		row.APIKeyID,
		row.Type,
		row.Status,
		row.StatusMessage,
		row.StartedAt,
		row.EndedAt,
		row.DurationMS,
		row.Provider,
		row.Model,
		row.InputTokens,
		row.OutputTokens,
		row.CostUnits,
		row.CostImplemented,
		row.FinishReason,
		row.Metadata,
		row.ExtractionError,
		row.CreatedAt,
	}
}

// normalizeSpan fills defaults on a copy so stored rows always carry a scope,
// a type and ordered timestamps.
func normalizeSpan(in *Span) *Span {
	row := *in
	now := time.Now().UTC()

	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = row.CreatedAt
	}
	if row.EndedAt.IsZero() || row.EndedAt.Before(row.StartedAt) {
		row.EndedAt = row.StartedAt
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.StartedAt = row.StartedAt.UTC()
	row.EndedAt = row.EndedAt.UTC()
	if row.DurationMS <= 0 {
		row.DurationMS = row.EndedAt.Sub(row.StartedAt).Milliseconds()
	}
	if row.WorkspaceID == "" {
		row.WorkspaceID = "default"
	}
	if row.Type == "" {
		row.Type = "unknown"
	}
	if row.Status == "" {
		row.Status = "unset"
	}
	if row.Metadata == "" {
		row.Metadata = "{}"
	}
	if row.InputTokens < 0 {
		row.InputTokens = 0
	}
	if row.OutputTokens < 0 {
		row.OutputTokens = 0
	}
	if row.CostUnits < 0 {
		row.CostUnits = 0
	}
	return &row
}

func encodeSpanCursor(createdAt time.Time, id string) string {
	if createdAt.IsZero() || id == "" {
		return ""
	}
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeSpanCursor(cursor string) (time.Time, string, error) {
	payload, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: decode base64 cursor", ErrInvalidCursor)
	}
	createdRaw, id, ok := strings.Cut(string(payload), "|")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(createdRaw))
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: parse created_at", ErrInvalidCursor)
	}
	return createdAt.UTC(), id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// pageResult trims the extra row fetched to detect a following page.
func pageResult(items []*Span, limit int) *SpanResult {
	result := &SpanResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		last := result.Items[len(result.Items)-1]
		result.NextCursor = encodeSpanCursor(last.CreatedAt, last.ID)
	}
	return result
}
