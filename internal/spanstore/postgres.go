package spanstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
	if err := migrations.Apply(ctx, db, migrations.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	return &PostgresStore{DSN: dsn, db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var postgresInsertSpan = insertSpanSQL(func(n int) string {
	if spanColumns[n-1] == "metadata" {
		return fmt.Sprintf("$%d::jsonb", n)
	}
	return fmt.Sprintf("$%d", n)
})

func (s *PostgresStore) WriteSpan(ctx context.Context, span *Span) error {
	if span == nil {
		return nil
	}
	row := normalizeSpan(span)
	if _, err := s.db.ExecContext(ctx, postgresInsertSpan, spanValues(row)...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("write span %q: %w: %w", row.ID, ErrDuplicateSpan, err)
		}
		return fmt.Errorf("write span %q: %w", row.ID, err)
	}
	return nil
}

func (s *PostgresStore) WriteBatch(ctx context.Context, spans []*Span) error {
	if len(spans) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin postgres batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, postgresInsertSpan)
	if err != nil {
		return fmt.Errorf("prepare postgres batch insert: %w", err)
	}
	defer stmt.Close()

	for _, span := range spans {
		if span == nil {
			continue
		}
		row := normalizeSpan(span)
		if _, err := stmt.ExecContext(ctx, spanValues(row)...); err != nil {
			return fmt.Errorf("write span %q in batch: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit postgres batch transaction: %w", err)
	}
	return nil
}

var postgresSelectColumns = func() string {
	columns := make([]string, len(spanColumns))
	for i, column := range spanColumns {
		if column == "metadata" {
			columns[i] = "metadata::text"
			continue
		}
		columns[i] = column
	}
	return strings.Join(columns, ", ")
}()

func (s *PostgresStore) GetSpan(ctx context.Context, id string) (*Span, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postgresSelectColumns+" FROM spans WHERE id = $1 LIMIT 1", id)
	span, err := scanPostgresSpan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get span %q: %w", id, err)
	}
	return span, nil
}

func (s *PostgresStore) QuerySpans(ctx context.Context, filter SpanFilter) (*SpanResult, error) {
	limit := normalizeLimit(filter.Limit)
	builder, err := buildPostgresSpanWhere(filter)
	if err != nil {
		return nil, err
	}
	limitArg := builder.addArg(limit + 1)

	query := "SELECT " + postgresSelectColumns + " FROM spans WHERE " + builder.where() + " ORDER BY created_at DESC, id DESC LIMIT " + limitArg
	rows, err := s.db.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	items := make([]*Span, 0, limit+1)
	for rows.Next() {
		span, err := scanPostgresSpan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan span row: %w", err)
		}
		items = append(items, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate span rows: %w", err)
	}
	return pageResult(items, limit), nil
}

func (s *PostgresStore) GetUsageSummary(ctx context.Context, filter AnalyticsFilter) (*UsageSummary, error) {
	builder := buildPostgresAnalyticsWhere(filter)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0)
FROM spans
WHERE type IN ('completion', 'embedding') AND `+builder.where(), builder.args...)

	var summary UsageSummary
	if err := row.Scan(&summary.SpanCount, &summary.TotalInputTokens, &summary.TotalOutputTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	summary.TotalTokens = summary.TotalInputTokens + summary.TotalOutputTokens
	return &summary, nil
}

func (s *PostgresStore) GetCostSummary(ctx context.Context, filter AnalyticsFilter) (*CostSummary, error) {
	builder := buildPostgresAnalyticsWhere(filter)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(cost_units), 0)::bigint,
	COUNT(*) FILTER (WHERE cost_implemented),
	COUNT(*) FILTER (WHERE NOT cost_implemented)
FROM spans
WHERE type = 'completion' AND extraction_error = '' AND `+builder.where(), builder.args...)

	var summary CostSummary
	if err := row.Scan(&summary.TotalCostUnits, &summary.PricedSpans, &summary.UnpricedSpans); err != nil {
		return nil, fmt.Errorf("query cost summary: %w", err)
	}
	summary.TotalCostUSD = pricing.FromCostUnits(summary.TotalCostUnits)
	return &summary, nil
}

func (s *PostgresStore) GetModelStats(ctx context.Context, filter AnalyticsFilter) ([]ModelStats, error) {
	builder := buildPostgresAnalyticsWhere(filter)
	query := `
SELECT
	provider,
	model,
	COUNT(*) AS span_count,
	COALESCE(AVG(duration_ms), 0)::double precision,
	COALESCE(SUM(input_tokens + output_tokens), 0)::bigint,
	COALESCE(SUM(cost_units), 0)::bigint
FROM spans
WHERE type = 'completion' AND extraction_error = '' AND ` + builder.where() + `
GROUP BY provider, model
ORDER BY span_count DESC, provider ASC, model ASC
`
	rows, err := s.db.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	stats := make([]ModelStats, 0)
	for rows.Next() {
		var item ModelStats
		if err := rows.Scan(&item.Provider, &item.Model, &item.SpanCount, &item.AvgDurationMS, &item.TotalTokens, &item.TotalCostUnits); err != nil {
			return nil, fmt.Errorf("scan model stats row: %w", err)
		}
		item.TotalCostUSD = pricing.FromCostUnits(item.TotalCostUnits)
		stats = append(stats, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model stats rows: %w", err)
	}
	return stats, nil
}

func buildPostgresSpanWhere(filter SpanFilter) (*postgresWhereBuilder, error) {
	builder := newPostgresWhereBuilder()

	if filter.WorkspaceID != "" {
		builder.addComparison("workspace_id", "=", filter.WorkspaceID)
	}
	if filter.TraceID != "" {
		builder.addComparison("trace_id", "=", filter.TraceID)
	}
	if filter.Type != "" {
		builder.addComparison("type", "=", filter.Type)
	}
	if filter.Provider != "" {
		builder.addComparison("provider", "=", filter.Provider)
	}
	if filter.Model != "" {
		builder.addComparison("model", "=", filter.Model)
	}
	if filter.Status != "" {
		builder.addComparison("status", "=", filter.Status)
	}
	if !filter.From.IsZero() {
		builder.addComparison("started_at", ">=", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		builder.addComparison("started_at", "<=", filter.To.UTC())
	}
	if filter.Cursor != "" {
		createdAt, id, err := decodeSpanCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		p1 := builder.addArg(createdAt)
		p2 := builder.addArg(id)
		builder.addCondition("(created_at < " + p1 + " OR (created_at = " + p1 + " AND id < " + p2 + "))")
	}
	return builder, nil
}

func buildPostgresAnalyticsWhere(filter AnalyticsFilter) *postgresWhereBuilder {
	builder := newPostgresWhereBuilder()

	if filter.WorkspaceID != "" {
		builder.addComparison("workspace_id", "=", filter.WorkspaceID)
	}
	if filter.APIKeyID != "" {
		builder.addComparison("api_key_id", "=", filter.APIKeyID)
	}
	if filter.Provider != "" {
		builder.addComparison("provider", "=", filter.Provider)
	}
	if filter.Model != "" {
		builder.addComparison("model", "=", filter.Model)
	}
	if !filter.From.IsZero() {
		builder.addComparison("started_at", ">=", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		builder.addComparison("started_at", "<=", filter.To.UTC())
	}
	return builder
}

type postgresWhereBuilder struct {
	conditions []string
	args       []any
}

func newPostgresWhereBuilder() *postgresWhereBuilder {
	return &postgresWhereBuilder{
		conditions: make([]string, 0, 8),
		args:       make([]any, 0, 8),
	}
}

func (b *postgresWhereBuilder) addArg(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *postgresWhereBuilder) addComparison(column, operator string, value any) {
	b.conditions = append(b.conditions, column+" "+operator+" "+b.addArg(value))
}

func (b *postgresWhereBuilder) addCondition(condition string) {
	b.conditions = append(b.conditions, condition)
}

func (b *postgresWhereBuilder) where() string {
	if len(b.conditions) == 0 {
		return "1=1"
	}
	return strings.Join(b.conditions, " AND ")
}

func scanPostgresSpan(scanner rowScanner) (*Span, error) {
	var item Span
	if err := scanner.Scan(
		&item.ID,
		&item.TraceID,
		&item.SpanID,
		&item.ParentSpanID,
		&item.Name,
		&item.Kind,
		&item.WorkspaceID,
		&item.APIKeyID,
		&item.Type,
		&item.Status,
		&item.StatusMessage,
		&item.StartedAt,
		&item.EndedAt,
		&item.DurationMS,
		&item.Provider,
		&item.Model,
		&item.InputTokens,
		&item.OutputTokens,
		&item.CostUnits,
		&item.CostImplemented,
		&item.FinishReason,
		&item.Metadata,
		&item.ExtractionError,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.StartedAt = item.StartedAt.UTC()
	item.EndedAt = item.EndedAt.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}
