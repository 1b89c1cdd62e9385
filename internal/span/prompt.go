package span

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/spanerr"
	"github.com/ongoingai/tracelens/internal/workspacestore"
)

// PromptMetadata describes a run of a versioned prompt.
type PromptMetadata struct {
	Template        string         `json:"template"`
	Parameters      map[string]any `json:"parameters"`
	DocumentLogUUID string         `json:"documentLogUuid"`
	PromptUUID      string         `json:"promptUuid"`
	VersionUUID     string         `json:"versionUuid"`
	ExperimentUUID  string         `json:"experimentUuid,omitempty"`
	ExternalID      string         `json:"externalId,omitempty"`
	ProjectID       int64          `json:"projectId,omitempty"`
	Source          string         `json:"source,omitempty"`
}

func (PromptMetadata) SpanType() Type { return TypePrompt }

type promptSpec struct{}

func (promptSpec) Name() string        { return "Prompt" }
func (promptSpec) Description() string { return "A prompt span" }
func (promptSpec) IsGenAI() bool       { return false }

func (promptSpec) Process(_ context.Context, args Args) (Metadata, error) {
	bag := args.Attributes

	template, ok := stringValue(bag, attrs.GenAIRequestTemplate)
	if !ok {
		return nil, spanerr.Unprocessable("prompt template is required")
	}
	parameters, err := promptParameters(bag)
	if err != nil {
		return nil, err
	}
	documentLogUUID, ok := attrs.String(bag, attrs.LatitudeDocumentLogUUID)
	if !ok {
		return nil, spanerr.Unprocessable("document log uuid is required")
	}
	promptUUID, ok := attrs.String(bag, attrs.LatitudeDocumentUUID)
	if !ok {
		return nil, spanerr.Unprocessable("prompt uuid is required")
	}
	versionUUID, ok := attrs.String(bag, attrs.LatitudeCommitUUID)
	if !ok {
		return nil, spanerr.Unprocessable("version uuid is required")
	}

	meta := &PromptMetadata{
		Template:        template,
		Parameters:      parameters,
		DocumentLogUUID: documentLogUUID,
		PromptUUID:      promptUUID,
		VersionUUID:     versionUUID,
	}
	fillPromptOptionals(bag, meta)
	return meta, nil
}

func promptParameters(bag attrs.Bag) (map[string]any, error) {
	raw, ok := bag[string(attrs.GenAIRequestParameters)]
	if !ok {
		return map[string]any{}, nil
	}
	parameters, err := decodeObject(raw)
	if err != nil {
		return nil, spanerr.Wrap("invalid prompt parameters", err)
	}
	return parameters, nil
}

func fillPromptOptionals(bag attrs.Bag, meta *PromptMetadata) {
	meta.ExperimentUUID, _ = attrs.String(bag, attrs.LatitudeExperimentUUID)
	meta.ExternalID, _ = attrs.String(bag, attrs.LatitudeExternalID)
	meta.Source, _ = attrs.String(bag, attrs.LatitudeSource)
	if projectID, ok := attrs.Int(bag, attrs.LatitudeProjectID); ok {
		meta.ProjectID = projectID
	}
}

// unresolvedExternalSpec turns a span that names a prompt by path into prompt
// metadata by resolving the path in the workspace store.
type unresolvedExternalSpec struct {
	deps Dependencies
}

func (*unresolvedExternalSpec) Name() string { return "Unresolved External" }

func (*unresolvedExternalSpec) Description() string {
	return "An external span referencing a prompt by path"
}

func (*unresolvedExternalSpec) IsGenAI() bool { return false }

func (s *unresolvedExternalSpec) Process(ctx context.Context, args Args) (Metadata, error) {
	bag := args.Attributes

	path, ok := attrs.String(bag, attrs.LatitudePromptPath)
	if !ok {
		return nil, spanerr.Unprocessable("prompt path is required")
	}
	projectID, ok := attrs.Int(bag, attrs.LatitudeProjectID)
	if !ok {
		return nil, spanerr.Unprocessable("project id is required")
	}
	versionUUID, ok := attrs.String(bag, attrs.LatitudeCommitUUID)
	if !ok {
		return nil, spanerr.Unprocessable("version uuid is required")
	}
	parameters, err := promptParameters(bag)
	if err != nil {
		return nil, err
	}
	if s.deps.Workspaces == nil {
		return nil, errors.New("workspace store is not configured")
	}

	document, err := s.deps.Workspaces.ResolvePrompt(ctx, args.Workspace.ID, projectID, versionUUID, path)
	if err != nil {
		if errors.Is(err, workspacestore.ErrNotFound) {
			return nil, spanerr.Unprocessable(fmt.Sprintf("prompt %q not found in version %s", path, versionUUID))
		}
		return nil, fmt.Errorf("resolve prompt %q: %w", path, err)
	}

	documentLogUUID, ok := attrs.String(bag, attrs.LatitudeDocumentLogUUID)
	if !ok {
		documentLogUUID = uuid.NewString()
	}
	meta := &PromptMetadata{
		Template:        document.Content,
		Parameters:      parameters,
		DocumentLogUUID: documentLogUUID,
		PromptUUID:      document.DocumentUUID,
		VersionUUID:     versionUUID,
	}
	fillPromptOptionals(bag, meta)
	meta.ProjectID = projectID
	return meta, nil
}
