package span

import (
	"strings"

	"github.com/ongoingai/tracelens/internal/attrs"
)

// DetermineType infers the span type from the conventions an instrumentation
// library uses to label its spans. The explicit latitude.type attribute wins,
// then OpenInference, OpenLLMetry, OpenTelemetry GenAI and Vercel AI SDK
// labels, then HTTP attributes.
func DetermineType(bag attrs.Bag) Type {
	if len(bag) == 0 {
		return TypeUnknown
	}
	if value, ok := attrs.String(bag, attrs.LatitudeType); ok {
		if spanType, ok := ParseType(value); ok {
			return spanType
		}
	}
	if value, ok := attrs.String(bag, attrs.OpenInferenceSpanKind); ok {
		if spanType, ok := openInferenceKind(value); ok {
			return spanType
		}
	}
	if value, ok := attrs.String(bag, attrs.TraceloopSpanKind); ok {
		if spanType, ok := traceloopKind(value); ok {
			return spanType
		}
	}
	if value, ok := attrs.String(bag, attrs.OpenLLMetryLLMRequestType); ok {
		if spanType, ok := traceloopRequestType(value); ok {
			return spanType
		}
	}
	if value, ok := attrs.String(bag, attrs.GenAIOperationName); ok {
		if spanType, ok := genAIOperation(value); ok {
			return spanType
		}
	}
	if value, ok := attrs.String(bag, attrs.VercelOperationID); ok {
		if spanType, ok := vercelOperation(value); ok {
			return spanType
		}
	}
	_, hasMethod := attrs.String(bag, httpMethodKeys...)
	_, hasURL := attrs.String(bag, httpURLKeys...)
	if hasMethod && hasURL {
		return TypeHTTP
	}
	return TypeUnknown
}

func openInferenceKind(value string) (Type, bool) {
	switch strings.ToUpper(value) {
	case "LLM":
		return TypeCompletion, true
	case "TOOL":
		return TypeTool, true
	case "EMBEDDING":
		return TypeEmbedding, true
	case "RETRIEVER":
		return TypeRetrieval, true
	case "RERANKER":
		return TypeReranking, true
	case "CHAIN", "AGENT":
		return TypeStep, true
	}
	return "", false
}

func traceloopKind(value string) (Type, bool) {
	switch strings.ToLower(value) {
	case "llm":
		return TypeCompletion, true
	case "tool":
		return TypeTool, true
	case "embedding":
		return TypeEmbedding, true
	case "retriever":
		return TypeRetrieval, true
	case "rerank":
		return TypeReranking, true
	case "workflow", "task", "agent":
		return TypeStep, true
	}
	return "", false
}

func traceloopRequestType(value string) (Type, bool) {
	switch strings.ToLower(value) {
	case "chat", "completion":
		return TypeCompletion, true
	case "embedding":
		return TypeEmbedding, true
	case "rerank":
		return TypeReranking, true
	}
	return "", false
}

func genAIOperation(value string) (Type, bool) {
	switch strings.ToLower(value) {
	case "chat", "text_completion", "generate_content":
		return TypeCompletion, true
	case "embeddings":
		return TypeEmbedding, true
	case "execute_tool":
		return TypeTool, true
	case "invoke_agent", "create_agent":
		return TypeStep, true
	}
	return "", false
}

// vercelOperation maps ai.operationId values. The inner doGenerate/doStream
// spans are the model calls; the outer generateText style spans wrap them.
func vercelOperation(value string) (Type, bool) {
	switch {
	case value == "ai.toolCall":
		return TypeTool, true
	case strings.HasSuffix(value, ".doEmbed"):
		return TypeEmbedding, true
	case strings.HasSuffix(value, ".doGenerate"), strings.HasSuffix(value, ".doStream"):
		return TypeCompletion, true
	case strings.HasPrefix(value, "ai."):
		return TypeStep, true
	}
	return "", false
}
