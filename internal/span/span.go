// Package span turns span attribute bags into typed metadata. Each span type
// has one Specification; Table dispatches to it.
package span

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/workspacestore"
)

type Type string

const (
	TypeCompletion         Type = "completion"
	TypeTool               Type = "tool"
	TypeHTTP               Type = "http"
	TypeEmbedding          Type = "embedding"
	TypeRetrieval          Type = "retrieval"
	TypeReranking          Type = "reranking"
	TypePrompt             Type = "prompt"
	TypeStep               Type = "step"
	TypeUnresolvedExternal Type = "unresolved_external"
	TypeUnknown            Type = "unknown"
)

// Types lists every span type in dispatch table order.
var Types = []Type{
	TypeCompletion,
	TypeTool,
	TypeHTTP,
	TypeEmbedding,
	TypeRetrieval,
	TypeReranking,
	TypePrompt,
	TypeStep,
	TypeUnresolvedExternal,
	TypeUnknown,
}

// ParseType returns the Type named by value, case insensitively.
func ParseType(value string) (Type, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range Types {
		if string(candidate) == value {
			return candidate, true
		}
	}
	return "", false
}

type Status string

const (
	StatusUnset Status = "unset"
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ParseStatus accepts status names and OTLP status code strings. Anything
// unrecognized is unset.
func ParseStatus(value string) Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ok", "status_code_ok", "1":
		return StatusOK
	case "error", "status_code_error", "2":
		return StatusError
	default:
		return StatusUnset
	}
}

// Scope is the instrumentation scope that emitted the span.
type Scope struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// APIKey identifies the ingest key a span arrived with.
type APIKey struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Workspace scopes credential and prompt lookups.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Args is the input to every Specification.
type Args struct {
	Attributes attrs.Bag
	Status     Status
	Scope      Scope
	APIKey     APIKey
	Workspace  Workspace
}

// Metadata is the typed result of processing one span.
type Metadata interface {
	SpanType() Type
}

// Specification processes spans of one type. Process returns a
// *spanerr.UnprocessableEntityError when the span is malformed.
type Specification interface {
	Name() string
	Description() string
	IsGenAI() bool
	Process(ctx context.Context, args Args) (Metadata, error)
}

// Dependencies are the collaborators shared by the specifications. Every
// field is optional.
type Dependencies struct {
	Workspaces workspacestore.Store
	Pricing    *pricing.Registry
	Logger     *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Pricing == nil {
		d.Pricing = pricing.DefaultRegistry()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Table maps span types to their specification. It is read-only after
// NewTable returns.
type Table struct {
	specs map[Type]Specification
}

func NewTable(deps Dependencies) *Table {
	deps = deps.withDefaults()
	return &Table{specs: map[Type]Specification{
		TypeCompletion:         &completionSpec{deps: deps},
		TypeTool:               toolSpec{},
		TypeHTTP:               httpSpec{},
		TypeEmbedding:          embeddingSpec{},
		TypeRetrieval:          retrievalSpec{},
		TypeReranking:          rerankingSpec{},
		TypePrompt:             promptSpec{},
		TypeStep:               stepSpec{},
		TypeUnresolvedExternal: &unresolvedExternalSpec{deps: deps},
		TypeUnknown:            unknownSpec{},
	}}
}

// Lookup returns the specification for spanType.
func (t *Table) Lookup(spanType Type) (Specification, bool) {
	spec, ok := t.specs[spanType]
	return spec, ok
}

// Process dispatches args to the specification for spanType. Unregistered
// types are processed as unknown.
func (t *Table) Process(ctx context.Context, spanType Type, args Args) (Metadata, error) {
	spec, ok := t.Lookup(spanType)
	if !ok {
		spec = t.specs[TypeUnknown]
	}
	return spec.Process(ctx, args)
}

// IsGenAI reports whether spanType represents a model or agent operation.
func (t *Table) IsGenAI(spanType Type) bool {
	spec, ok := t.Lookup(spanType)
	return ok && spec.IsGenAI()
}
