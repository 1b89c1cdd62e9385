package span

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/message"
	"github.com/ongoingai/tracelens/internal/naming"
	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/spanerr"
	"github.com/ongoingai/tracelens/internal/workspacestore"
)

// Tokens is the usage reported by a completion span. Cached tokens are not
// included in Prompt and reasoning tokens are not included in Completion.
type Tokens struct {
	Prompt     int64 `json:"prompt"`
	Cached     int64 `json:"cached"`
	Reasoning  int64 `json:"reasoning"`
	Completion int64 `json:"completion"`
}

// CompletionMetadata is a normalized model call. Output, Tokens, Cost and
// FinishReason are unset when the span ended with an error.
type CompletionMetadata struct {
	Provider        string            `json:"provider"`
	Model           string            `json:"model"`
	Configuration   map[string]any    `json:"configuration"`
	Input           []message.Message `json:"input"`
	Output          []message.Message `json:"output,omitempty"`
	Tokens          *Tokens           `json:"tokens,omitempty"`
	Cost            *int64            `json:"cost,omitempty"`
	CostImplemented bool              `json:"costImplemented"`
	FinishReason    FinishReason      `json:"finishReason,omitempty"`
}

func (CompletionMetadata) SpanType() Type { return TypeCompletion }

var (
	providerKeys = []attribute.Key{
		attrs.GenAISystem,
		attrs.GenAIProviderName,
		attrs.OpenInferenceLLMProvider,
		attrs.OpenInferenceLLMSystem,
	}
	modelKeys = []attribute.Key{
		attrs.GenAIResponseModel,
		attrs.GenAIRequestModel,
		attrs.OpenInferenceLLMModelName,
		attrs.VercelResponseModel,
		attrs.VercelModelID,
	}
	requestParameterKeys = []attribute.Key{
		attrs.GenAIRequestTemperature,
		attrs.GenAIRequestMaxTokens,
		attrs.GenAIRequestTopP,
		attrs.GenAIRequestTopK,
		attrs.GenAIRequestFrequencyPenalty,
		attrs.GenAIRequestPresencePenalty,
		attrs.GenAIRequestStopSequences,
		attrs.GenAIRequestSeed,
	}
	promptTokenKeys = []attribute.Key{
		attrs.GenAIUsagePromptTokens,
		attrs.GenAIUsageInputTokens,
		attrs.OpenInferencePromptTokens,
		attrs.VercelUsagePromptTokens,
		attrs.VercelUsageInputTokens,
	}
	cachedTokenKeys = []attribute.Key{
		attrs.GenAIUsageCachedTokens,
		attrs.OpenLLMetryCacheReadInputTokens,
	}
	openInferenceCacheKeys = []attribute.Key{
		attrs.OpenInferenceCacheInputTokens,
		attrs.OpenInferenceCacheReadTokens,
		attrs.OpenInferenceCacheWriteTokens,
	}
	reasoningTokenKeys = []attribute.Key{
		attrs.GenAIUsageReasoningTokens,
		attrs.OpenInferenceReasoningTokens,
		attrs.VercelUsageReasoningTokens,
	}
	completionTokenKeys = []attribute.Key{
		attrs.GenAIUsageCompletionTokens,
		attrs.GenAIUsageOutputTokens,
		attrs.OpenInferenceCompletionTokens,
		attrs.VercelUsageCompletionTokens,
		attrs.VercelUsageOutputTokens,
	}
)

type completionSpec struct {
	deps Dependencies
}

func (*completionSpec) Name() string { return "Completion" }

func (*completionSpec) Description() string {
	return "A completion call to a model provider"
}

func (*completionSpec) IsGenAI() bool { return true }

func (s *completionSpec) Process(ctx context.Context, args Args) (Metadata, error) {
	bag := args.Attributes

	provider, err := extractProvider(bag)
	if err != nil {
		return nil, err
	}
	model, err := extractModel(bag)
	if err != nil {
		return nil, err
	}
	configuration, err := extractConfiguration(bag)
	if err != nil {
		return nil, err
	}
	input, err := extractMessages(bag, inputConventions, "input")
	if err != nil {
		return nil, err
	}

	meta := &CompletionMetadata{
		Provider:      provider,
		Model:         model,
		Configuration: configuration,
		Input:         input,
	}
	if args.Status == StatusError {
		return meta, nil
	}

	output, err := extractMessages(bag, outputConventions, "output")
	if err != nil {
		return nil, err
	}
	tokens := extractTokens(bag)
	cost, implemented := s.enrichCost(ctx, args.Workspace, provider, model, tokens)

	meta.Output = output
	meta.Tokens = &tokens
	meta.Cost = &cost
	meta.CostImplemented = implemented
	meta.FinishReason = extractFinishReason(bag)
	return meta, nil
}

func extractProvider(bag attrs.Bag) (string, error) {
	if provider, ok := attrs.String(bag, providerKeys...); ok {
		return provider, nil
	}
	// Vercel reports "openai.chat", "anthropic.messages" and similar.
	if provider, ok := attrs.String(bag, attrs.VercelModelProvider); ok {
		head, _, _ := strings.Cut(provider, ".")
		if head = strings.TrimSpace(head); head != "" {
			return head, nil
		}
	}
	return "", spanerr.Unprocessable("provider is required")
}

func extractModel(bag attrs.Bag) (string, error) {
	if model, ok := attrs.String(bag, modelKeys...); ok {
		return model, nil
	}
	return "", spanerr.Unprocessable("model is required")
}

func extractConfiguration(bag attrs.Bag) (map[string]any, error) {
	if raw, ok := bag[string(attrs.GenAIRequestConfiguration)]; ok {
		configuration, err := decodeObject(raw)
		if err != nil {
			return nil, spanerr.Wrap("invalid configuration", err)
		}
		return configuration, nil
	}
	if raw, ok := bag[string(attrs.OpenInferenceInvocationParameters)]; ok {
		parameters, err := decodeObject(raw)
		if err != nil {
			return nil, spanerr.Wrap("invalid invocation parameters", err)
		}
		return camelKeys(parameters), nil
	}

	configuration := make(map[string]any)
	for _, key := range requestParameterKeys {
		if value, ok := bag[string(key)]; ok {
			name := strings.TrimPrefix(string(key), "gen_ai.request.")
			configuration[naming.ToCamelCase(name)] = value
		}
	}
	settings := attrs.ByPrefix(bag, attrs.VercelSettings)
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := naming.ToCamelCase(key)
		if _, exists := configuration[name]; !exists {
			configuration[name] = settings[key]
		}
	}
	return configuration, nil
}

func extractTokens(bag attrs.Bag) Tokens {
	var tokens Tokens
	tokens.Prompt, _ = attrs.Count(bag, promptTokenKeys...)
	tokens.Cached = extractCachedTokens(bag)
	tokens.Reasoning, _ = attrs.Count(bag, reasoningTokenKeys...)
	tokens.Completion, _ = attrs.Count(bag, completionTokenKeys...)
	return tokens
}

// OpenInference splits cached prompt usage into input, read and write counts
// that are summed.
func extractCachedTokens(bag attrs.Bag) int64 {
	if cached, ok := attrs.Count(bag, cachedTokenKeys...); ok {
		return cached
	}
	if cached, ok := attrs.SumCounts(bag, openInferenceCacheKeys...); ok {
		return cached
	}
	cached, _ := attrs.Count(bag, attrs.VercelUsageCachedTokens)
	return cached
}

// enrichCost prices tokens in cost units. The span provider may be the name of
// a workspace credential, in which case the credential's provider type picks
// the catalog. Lookup failures price the span at zero.
func (s *completionSpec) enrichCost(ctx context.Context, workspace Workspace, provider, model string, tokens Tokens) (int64, bool) {
	providerType := provider
	if s.deps.Workspaces != nil {
		credential, err := s.deps.Workspaces.ProviderCredentials(ctx, workspace.ID, provider)
		switch {
		case err == nil:
			providerType = credential.Provider
		case errors.Is(err, workspacestore.ErrNotFound):
		default:
			s.deps.Logger.Warn("provider credentials lookup failed",
				"workspace_id", workspace.ID,
				"provider", provider,
				"error", err,
			)
			return 0, false
		}
	}

	usage := pricing.FoldUsage(tokens.Prompt, tokens.Cached, tokens.Reasoning, tokens.Completion)
	estimate := s.deps.Pricing.EstimateCost(usage, providerType, model)
	return pricing.ToCostUnits(estimate.Cost), estimate.Implemented
}

func decodeObject(raw any) (map[string]any, error) {
	decoded, err := attrs.DecodeJSON(raw)
	if err != nil {
		return nil, err
	}
	object, ok := decoded.(map[string]any)
	if !ok {
		return nil, spanerr.Unprocessable("expected a JSON object")
	}
	return object, nil
}

// camelKeys camelCases top level keys only. On collision the key that is
// already camel case wins.
func camelKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		name := naming.ToCamelCase(key)
		if _, exists := out[name]; exists && name != key {
			continue
		}
		out[name] = value
	}
	return out
}
