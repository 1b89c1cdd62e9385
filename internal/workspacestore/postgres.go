package workspacestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the workspace tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres workspace store dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open postgres workspace store: %w", err)
	}
	store := &PostgresStore{pool: pool}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres workspace store: %w", err)
	}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ProviderCredentials(ctx context.Context, workspaceID, name string) (*ProviderCredential, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}

	var item ProviderCredential
	err := s.pool.QueryRow(ctx, `
SELECT workspace_id, name, provider, default_model
FROM provider_credentials
WHERE workspace_id = $1 AND name = $2 AND deleted_at IS NULL
LIMIT 1`, nonEmpty(strings.TrimSpace(workspaceID), "default"), name).Scan(
		&item.WorkspaceID,
		&item.Name,
		&item.Provider,
		&item.DefaultModel,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get provider credentials %q: %w", name, err)
	}
	item = normalizeCredential(item)
	return &item, nil
}

func (s *PostgresStore) ResolvePrompt(ctx context.Context, workspaceID string, projectID int64, versionUUID, path string) (*PromptDocument, error) {
	path = normalizePath(path)
	versionUUID = strings.ToLower(strings.TrimSpace(versionUUID))
	if path == "" || versionUUID == "" {
		return nil, ErrNotFound
	}

	var item PromptDocument
	err := s.pool.QueryRow(ctx, `
SELECT workspace_id, project_id, version_uuid, document_uuid, path, content
FROM prompt_documents
WHERE workspace_id = $1 AND project_id = $2 AND version_uuid = $3 AND path = $4
LIMIT 1`, nonEmpty(strings.TrimSpace(workspaceID), "default"), projectID, versionUUID, path).Scan(
		&item.WorkspaceID,
		&item.ProjectID,
		&item.VersionUUID,
		&item.DocumentUUID,
		&item.Path,
		&item.Content,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve prompt %q: %w", path, err)
	}
	item = normalizePrompt(item)
	return &item, nil
}

// UpsertProviderCredential creates or replaces a credential by workspace and
// name.
func (s *PostgresStore) UpsertProviderCredential(ctx context.Context, item ProviderCredential) error {
	item = normalizeCredential(item)
	if item.Name == "" || item.Provider == "" {
		return fmt.Errorf("provider credential name and provider are required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO provider_credentials (workspace_id, name, provider, default_model)
VALUES ($1, $2, $3, $4)
ON CONFLICT (workspace_id, name) DO UPDATE
SET provider = EXCLUDED.provider,
    default_model = EXCLUDED.default_model,
    deleted_at = NULL`, item.WorkspaceID, item.Name, item.Provider, item.DefaultModel)
	if err != nil {
		return fmt.Errorf("upsert provider credential %q: %w", item.Name, err)
	}
	return nil
}

// UpsertPromptDocument creates or replaces a document by project version and
// path.
func (s *PostgresStore) UpsertPromptDocument(ctx context.Context, item PromptDocument) error {
	item = normalizePrompt(item)
	if item.Path == "" || item.VersionUUID == "" || item.DocumentUUID == "" {
		return fmt.Errorf("prompt document path, version uuid and document uuid are required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO prompt_documents (workspace_id, project_id, version_uuid, document_uuid, path, content)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (workspace_id, project_id, version_uuid, path) DO UPDATE
SET document_uuid = EXCLUDED.document_uuid,
    content = EXCLUDED.content`, item.WorkspaceID, item.ProjectID, item.VersionUUID, item.DocumentUUID, item.Path, item.Content)
	if err != nil {
		return fmt.Errorf("upsert prompt document %q: %w", item.Path, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS provider_credentials (
    workspace_id TEXT NOT NULL DEFAULT 'default',
    name TEXT NOT NULL,
    provider TEXT NOT NULL,
    default_model TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,
    PRIMARY KEY (workspace_id, name)
);

CREATE TABLE IF NOT EXISTS prompt_documents (
    workspace_id TEXT NOT NULL DEFAULT 'default',
    project_id BIGINT NOT NULL,
    version_uuid TEXT NOT NULL,
    document_uuid TEXT NOT NULL,
    path TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (workspace_id, project_id, version_uuid, path)
);

CREATE INDEX IF NOT EXISTS idx_prompt_documents_document_uuid ON prompt_documents(document_uuid);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure postgres workspace store schema: %w", err)
	}
	return nil
}
