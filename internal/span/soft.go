package span

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/tracelens/internal/attrs"
)

// The specifications below record what a span carries and never fail.

type EmbeddingMetadata struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Count    int    `json:"count"`
	Tokens   int64  `json:"tokens"`
}

func (EmbeddingMetadata) SpanType() Type { return TypeEmbedding }

type RetrievalMetadata struct {
	Query     string `json:"query,omitempty"`
	Documents int    `json:"documents"`
}

func (RetrievalMetadata) SpanType() Type { return TypeRetrieval }

type RerankingMetadata struct {
	Model           string `json:"model,omitempty"`
	Query           string `json:"query,omitempty"`
	TopK            int64  `json:"topK,omitempty"`
	InputDocuments  int    `json:"inputDocuments"`
	OutputDocuments int    `json:"outputDocuments"`
}

func (RerankingMetadata) SpanType() Type { return TypeReranking }

type StepMetadata struct {
	Name string `json:"name,omitempty"`
}

func (StepMetadata) SpanType() Type { return TypeStep }

type UnknownMetadata struct{}

func (UnknownMetadata) SpanType() Type { return TypeUnknown }

var (
	embeddingModelKeys = []attribute.Key{
		attrs.OpenInferenceEmbeddingModelName,
		attrs.GenAIResponseModel,
		attrs.GenAIRequestModel,
		attrs.VercelModelID,
	}
	embeddingTokenKeys = []attribute.Key{
		attrs.GenAIUsageInputTokens,
		attrs.OpenInferencePromptTokens,
		attrs.VercelUsageTokens,
	}
	queryKeys = []attribute.Key{
		attrs.OpenInferenceRerankerQuery,
		attrs.OpenInferenceInputValue,
		attrs.TraceloopEntityInput,
	}
	stepNameKeys = []attribute.Key{
		attrs.TraceloopEntityName,
		attrs.VercelOperationID,
		attrs.GenAIOperationName,
	}
)

type embeddingSpec struct{}

func (embeddingSpec) Name() string        { return "Embedding" }
func (embeddingSpec) Description() string { return "An embedding call" }
func (embeddingSpec) IsGenAI() bool       { return true }

func (embeddingSpec) Process(_ context.Context, args Args) (Metadata, error) {
	bag := args.Attributes
	meta := &EmbeddingMetadata{}
	meta.Provider, _ = extractProvider(bag)
	meta.Model, _ = attrs.String(bag, embeddingModelKeys...)
	meta.Tokens, _ = attrs.Count(bag, embeddingTokenKeys...)
	meta.Count = countIndexed(attrs.ByPrefix(bag, attrs.OpenInferenceEmbeddingEmbeddings))
	if meta.Count == 0 {
		meta.Count = arrayLength(bag, attrs.VercelValues)
	}
	return meta, nil
}

type retrievalSpec struct{}

func (retrievalSpec) Name() string        { return "Retrieval" }
func (retrievalSpec) Description() string { return "A document retrieval" }
func (retrievalSpec) IsGenAI() bool       { return true }

func (retrievalSpec) Process(_ context.Context, args Args) (Metadata, error) {
	bag := args.Attributes
	meta := &RetrievalMetadata{}
	meta.Query, _ = attrs.String(bag, queryKeys...)
	meta.Documents = countIndexed(attrs.ByPrefix(bag, attrs.OpenInferenceRetrievalDocuments))
	return meta, nil
}

type rerankingSpec struct{}

func (rerankingSpec) Name() string        { return "Reranking" }
func (rerankingSpec) Description() string { return "A document reranking" }
func (rerankingSpec) IsGenAI() bool       { return true }

func (rerankingSpec) Process(_ context.Context, args Args) (Metadata, error) {
	bag := args.Attributes
	meta := &RerankingMetadata{}
	meta.Model, _ = attrs.String(bag, attrs.OpenInferenceRerankerModelName)
	meta.Query, _ = attrs.String(bag, queryKeys...)
	meta.TopK, _ = attrs.Count(bag, attrs.OpenInferenceRerankerTopK)
	meta.InputDocuments = countIndexed(attrs.ByPrefix(bag, attrs.OpenInferenceRerankerInputDocs))
	meta.OutputDocuments = countIndexed(attrs.ByPrefix(bag, attrs.OpenInferenceRerankerOutputDocs))
	return meta, nil
}

type stepSpec struct{}

func (stepSpec) Name() string        { return "Step" }
func (stepSpec) Description() string { return "A step of an agent or workflow" }
func (stepSpec) IsGenAI() bool       { return false }

func (stepSpec) Process(_ context.Context, args Args) (Metadata, error) {
	meta := &StepMetadata{}
	meta.Name, _ = attrs.String(args.Attributes, stepNameKeys...)
	return meta, nil
}

type unknownSpec struct{}

func (unknownSpec) Name() string        { return "Unknown" }
func (unknownSpec) Description() string { return "An unknown span" }
func (unknownSpec) IsGenAI() bool       { return false }

func (unknownSpec) Process(context.Context, Args) (Metadata, error) {
	return &UnknownMetadata{}, nil
}

// countIndexed counts distinct leading indices such as the 0 and 1 of
// "0.document.id" and "1.document.id".
func countIndexed(bag attrs.Bag) int {
	seen := make(map[string]struct{})
	for key := range bag {
		head, _, _ := strings.Cut(key, ".")
		if isIndex(head) {
			seen[head] = struct{}{}
		}
	}
	return len(seen)
}

func arrayLength(bag attrs.Bag, key attribute.Key) int {
	raw, ok := bag[string(key)]
	if !ok {
		return 0
	}
	decoded, err := attrs.DecodeJSON(raw)
	if err != nil {
		return 0
	}
	items, _ := decoded.([]any)
	return len(items)
}
