package spanstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/migrations"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	Path string
	db   *sql.DB
	// SQLite allows one writer at a time; writes are serialized to keep
	// SQLITE_BUSY out of concurrent WriteSpan/WriteBatch callers.
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	store := &SQLiteStore{Path: path, db: db}
	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) configure() error {
	pragmas := []struct {
		sql  string
		what string
	}{
		{sql: `PRAGMA journal_mode = WAL;`, what: "enable sqlite WAL mode"},
		{sql: `PRAGMA synchronous = NORMAL;`, what: "set sqlite synchronous mode"},
		{sql: `PRAGMA busy_timeout = 5000;`, what: "set sqlite busy timeout"},
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma.sql); err != nil {
			return fmt.Errorf("%s: %w", pragma.what, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var sqliteInsertSpan = insertSpanSQL(func(int) string { return "?" })

func (s *SQLiteStore) WriteSpan(ctx context.Context, span *Span) error {
	if span == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row := normalizeSpan(span)
	err := retrySQLiteBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, sqliteInsertSpan, spanValues(row)...)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("write span %q: %w: %w", row.ID, ErrDuplicateSpan, err)
		}
		return fmt.Errorf("write span %q: %w", row.ID, err)
	}
	return nil
}

func (s *SQLiteStore) WriteBatch(ctx context.Context, spans []*Span) error {
	if len(spans) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return retrySQLiteBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin sqlite batch transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		stmt, err := tx.PrepareContext(ctx, sqliteInsertSpan)
		if err != nil {
			return fmt.Errorf("prepare sqlite batch insert: %w", err)
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
			return fmt.Errorf("commit sqlite batch transaction: %w", err)
		}
		return nil
	})
}

const (
	sqliteBusyMaxRetries     = 12
	sqliteBusyInitialBackoff = 5 * time.Millisecond
	sqliteBusyMaxBackoff     = 250 * time.Millisecond
)

// retrySQLiteBusy retries fn while SQLite reports lock contention, backing
// off exponentially up to sqliteBusyMaxBackoff.
func retrySQLiteBusy(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusyError(err) || retries >= sqliteBusyMaxRetries {
			return err
		}

		wait := sqliteBusyInitialBackoff << retries
		if wait > sqliteBusyMaxBackoff {
			wait = sqliteBusyMaxBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyWriteError(err) == WriteErrorClassContention
}

var sqliteSelectColumns = func() string {
	columns := make([]string, len(spanColumns))
	for i, column := range spanColumns {
		switch column {
		case "started_at", "ended_at", "created_at":
			columns[i] = "CAST(" + column + " AS TEXT)"
		default:
			columns[i] = column
		}
	}
	return strings.Join(columns, ", ")
}()

func (s *SQLiteStore) GetSpan(ctx context.Context, id string) (*Span, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteSelectColumns+" FROM spans WHERE id = ? LIMIT 1", id)
	span, err := scanSQLiteSpan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get span %q: %w", id, err)
	}
	return span, nil
}

func (s *SQLiteStore) QuerySpans(ctx context.Context, filter SpanFilter) (*SpanResult, error) {
	limit := normalizeLimit(filter.Limit)
	whereSQL, args, err := buildSQLiteSpanWhere(filter)
	if err != nil {
		return nil, err
	}
	args = append(args, limit+1)

	query := "SELECT " + sqliteSelectColumns + " FROM spans WHERE " + whereSQL + " ORDER BY created_at DESC, id DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	items := make([]*Span, 0, limit+1)
	for rows.Next() {
		span, err := scanSQLiteSpan(rows)
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

func (s *SQLiteStore) GetUsageSummary(ctx context.Context, filter AnalyticsFilter) (*UsageSummary, error) {
	whereSQL, args := buildSQLiteAnalyticsWhere(filter)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0)
FROM spans
WHERE type IN ('completion', 'embedding') AND `+whereSQL, args...)

	var summary UsageSummary
	if err := row.Scan(&summary.SpanCount, &summary.TotalInputTokens, &summary.TotalOutputTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	summary.TotalTokens = summary.TotalInputTokens + summary.TotalOutputTokens
	return &summary, nil
}

func (s *SQLiteStore) GetCostSummary(ctx context.Context, filter AnalyticsFilter) (*CostSummary, error) {
	whereSQL, args := buildSQLiteAnalyticsWhere(filter)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(cost_units), 0),
	COALESCE(SUM(CASE WHEN cost_implemented = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN cost_implemented = 1 THEN 0 ELSE 1 END), 0)
FROM spans
WHERE type = 'completion' AND extraction_error = '' AND `+whereSQL, args...)

	var summary CostSummary
	if err := row.Scan(&summary.TotalCostUnits, &summary.PricedSpans, &summary.UnpricedSpans); err != nil {
		return nil, fmt.Errorf("query cost summary: %w", err)
	}
	summary.TotalCostUSD = pricing.FromCostUnits(summary.TotalCostUnits)
	return &summary, nil
}

func (s *SQLiteStore) GetModelStats(ctx context.Context, filter AnalyticsFilter) ([]ModelStats, error) {
	whereSQL, args := buildSQLiteAnalyticsWhere(filter)
	query := `
SELECT
	provider,
	model,
	COUNT(*) AS span_count,
	COALESCE(AVG(duration_ms), 0),
	COALESCE(SUM(input_tokens + output_tokens), 0),
	COALESCE(SUM(cost_units), 0)
FROM spans
WHERE type = 'completion' AND extraction_error = '' AND ` + whereSQL + `
GROUP BY provider, model
ORDER BY span_count DESC, provider ASC, model ASC
`
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func buildSQLiteSpanWhere(filter SpanFilter) (string, []any, error) {
	where := make([]string, 0, 10)
	args := make([]any, 0, 10)
	add := func(condition string, values ...any) {
		where = append(where, condition)
		args = append(args, values...)
	}

	if filter.WorkspaceID != "" {
		add("workspace_id = ?", filter.WorkspaceID)
	}
	if filter.TraceID != "" {
		add("trace_id = ?", filter.TraceID)
	}
	if filter.Type != "" {
		add("type = ?", filter.Type)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		add("started_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("started_at <= ?", filter.To.UTC())
	}
	if filter.Cursor != "" {
		createdAt, id, err := decodeSpanCursor(filter.Cursor)
		if err != nil {
			return "", nil, err
		}
		add("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, id)
	}

	if len(where) == 0 {
		return "1=1", args, nil
	}
	return strings.Join(where, " AND "), args, nil
}

func buildSQLiteAnalyticsWhere(filter AnalyticsFilter) (string, []any) {
	where := make([]string, 0, 6)
	args := make([]any, 0, 6)

	if filter.WorkspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.APIKeyID != "" {
		where = append(where, "api_key_id = ?")
		args = append(args, filter.APIKeyID)
	}
	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		where = append(where, "model = ?")
		args = append(args, filter.Model)
	}
	if !filter.From.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "started_at <= ?")
		args = append(args, filter.To.UTC())
	}

	if len(where) == 0 {
		return "1=1", args
	}
	return strings.Join(where, " AND "), args
}

func scanSQLiteSpan(scanner rowScanner) (*Span, error) {
	var (
		item            Span
		startedAt       string
		endedAt         string
		createdAt       string
		costImplemented int64
	)
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
		&startedAt,
		&endedAt,
		&item.DurationMS,
		&item.Provider,
		&item.Model,
		&item.InputTokens,
		&item.OutputTokens,
		&item.CostUnits,
		&costImplemented,
		&item.FinishReason,
		&item.Metadata,
		&item.ExtractionError,
		&createdAt,
	); err != nil {
		return nil, err
	}
	item.CostImplemented = costImplemented != 0

	var err error
	if item.StartedAt, err = parseSQLiteTimestamp(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	if item.EndedAt, err = parseSQLiteTimestamp(endedAt); err != nil {
		return nil, fmt.Errorf("parse ended_at %q: %w", endedAt, err)
	}
	if item.CreatedAt, err = parseSQLiteTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return &item, nil
}

func parseSQLiteTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}

	withTZLayouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
	}
	for _, layout := range withTZLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}

	withoutTZLayouts := []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
	}
	for _, layout := range withoutTZLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported sqlite timestamp format")
}
