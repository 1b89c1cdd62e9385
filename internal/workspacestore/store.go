// Package workspacestore resolves workspace scoped records used while spans
// are processed: provider credentials and prompt documents.
package workspacestore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("workspace store record not found")

// ProviderCredential binds a provider name chosen by a workspace (for example
// "my-azure") to the provider type it was created for.
type ProviderCredential struct {
	WorkspaceID  string `yaml:"workspace_id" json:"workspaceId"`
	Name         string `yaml:"name" json:"name"`
	Provider     string `yaml:"provider" json:"provider"`
	DefaultModel string `yaml:"default_model" json:"defaultModel,omitempty"`
}

// PromptDocument is a prompt version addressable by project, version and path.
type PromptDocument struct {
	WorkspaceID  string `yaml:"workspace_id" json:"workspaceId"`
	ProjectID    int64  `yaml:"project_id" json:"projectId"`
	VersionUUID  string `yaml:"version_uuid" json:"versionUuid"`
	DocumentUUID string `yaml:"document_uuid" json:"documentUuid"`
	Path         string `yaml:"path" json:"path"`
	Content      string `yaml:"content" json:"content"`
}

type Store interface {
	// ProviderCredentials returns the credential named name in workspaceID.
	ProviderCredentials(ctx context.Context, workspaceID, name string) (*ProviderCredential, error)
	// ResolvePrompt returns the document at path for a project version.
	ResolvePrompt(ctx context.Context, workspaceID string, projectID int64, versionUUID, path string) (*PromptDocument, error)
	Close() error
}

var _ Store = (*StaticStore)(nil)
var _ Store = (*PostgresStore)(nil)

// StaticStore serves records declared in configuration.
type StaticStore struct {
	credentials map[string]ProviderCredential
	prompts     map[string]PromptDocument
}

func NewStaticStore(credentials []ProviderCredential, prompts []PromptDocument) *StaticStore {
	store := &StaticStore{
		credentials: make(map[string]ProviderCredential, len(credentials)),
		prompts:     make(map[string]PromptDocument, len(prompts)),
	}
	for _, item := range credentials {
		item = normalizeCredential(item)
		if item.Name == "" {
			continue
		}
		store.credentials[credentialKey(item.WorkspaceID, item.Name)] = item
	}
	for _, item := range prompts {
		item = normalizePrompt(item)
		if item.Path == "" {
			continue
		}
		store.prompts[promptKey(item.WorkspaceID, item.ProjectID, item.VersionUUID, item.Path)] = item
	}
	return store
}

func (s *StaticStore) ProviderCredentials(_ context.Context, workspaceID, name string) (*ProviderCredential, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	item, ok := s.credentials[credentialKey(nonEmpty(workspaceID, "default"), name)]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (s *StaticStore) ResolvePrompt(_ context.Context, workspaceID string, projectID int64, versionUUID, path string) (*PromptDocument, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	item, ok := s.prompts[promptKey(nonEmpty(workspaceID, "default"), projectID, versionUUID, normalizePath(path))]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

// Credentials lists every configured credential ordered by workspace and name.
func (s *StaticStore) Credentials() []ProviderCredential {
	if s == nil {
		return nil
	}
	out := make([]ProviderCredential, 0, len(s.credentials))
	for _, item := range s.credentials {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkspaceID == out[j].WorkspaceID {
			return out[i].Name < out[j].Name
		}
		return out[i].WorkspaceID < out[j].WorkspaceID
	})
	return out
}

func (s *StaticStore) Close() error {
	return nil
}

func normalizeCredential(item ProviderCredential) ProviderCredential {
	item.WorkspaceID = nonEmpty(strings.TrimSpace(item.WorkspaceID), "default")
	item.Name = strings.TrimSpace(item.Name)
	item.Provider = strings.ToLower(strings.TrimSpace(item.Provider))
	item.DefaultModel = strings.TrimSpace(item.DefaultModel)
	return item
}

func normalizePrompt(item PromptDocument) PromptDocument {
	item.WorkspaceID = nonEmpty(strings.TrimSpace(item.WorkspaceID), "default")
	item.VersionUUID = strings.ToLower(strings.TrimSpace(item.VersionUUID))
	item.DocumentUUID = strings.TrimSpace(item.DocumentUUID)
	item.Path = normalizePath(item.Path)
	return item
}

// normalizePath drops surrounding whitespace and leading slashes so "/a/b"
// and "a/b" address the same document.
func normalizePath(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}

func credentialKey(workspaceID, name string) string {
	return strings.TrimSpace(workspaceID) + "\x00" + strings.TrimSpace(name)
}

func promptKey(workspaceID string, projectID int64, versionUUID, path string) string {
	return strings.Join([]string{
		strings.TrimSpace(workspaceID),
		strconv.FormatInt(projectID, 10),
		strings.ToLower(strings.TrimSpace(versionUUID)),
		path,
	}, "\x00")
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
