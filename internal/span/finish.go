package span

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/naming"
)

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

var finishReasonKeys = []attribute.Key{
	attrs.GenAIResponseFinishReasons,
	attrs.GenAICompletion + ".0.finish_reason",
	attrs.OpenInferenceOutputMessages + ".0.message.finish_reason",
	attrs.VercelResponseFinishReason,
}

// extractFinishReason never fails; unmapped or missing values are unknown.
func extractFinishReason(bag attrs.Bag) FinishReason {
	raw, ok := attrs.Raw(bag, finishReasonKeys...)
	if !ok {
		return FinishUnknown
	}
	return ParseFinishReason(firstElement(raw))
}

// ParseFinishReason maps a provider or convention finish reason to its
// canonical value.
func ParseFinishReason(value string) FinishReason {
	switch naming.ToCamelCase(value) {
	case "stop", "endTurn", "stopSequence", "complete":
		return FinishStop
	case "length", "maxTokens", "modelLength":
		return FinishLength
	case "contentFilter", "safety", "recitation", "refusal":
		return FinishContentFilter
	case "toolCalls", "toolUse", "functionCall":
		return FinishToolCalls
	case "error":
		return FinishError
	case "other":
		return FinishOther
	default:
		return FinishUnknown
	}
}

// firstElement returns the first entry of array valued finish reasons, which
// arrive as []any or as a JSON encoded array.
func firstElement(raw any) string {
	if text, ok := raw.(string); ok {
		if decoded, err := attrs.DecodeJSON(text); err == nil {
			if items, ok := decoded.([]any); ok {
				raw = items
			}
		}
	}
	if items, ok := raw.([]any); ok {
		if len(items) == 0 {
			return ""
		}
		raw = items[0]
	}
	text, _ := attrs.Stringify(raw)
	return text
}
