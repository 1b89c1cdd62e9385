package span

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/spanerr"
)

// ToolMetadata is one tool execution. Result is nil when the span errored or
// the result was not recorded.
type ToolMetadata struct {
	Name      string         `json:"name"`
	CallID    string         `json:"callId"`
	Arguments map[string]any `json:"arguments"`
	Result    *ToolResult    `json:"result,omitempty"`
}

type ToolResult struct {
	Value   any  `json:"value"`
	IsError bool `json:"isError"`
}

func (ToolMetadata) SpanType() Type { return TypeTool }

var (
	toolNameKeys = []attribute.Key{
		attrs.GenAIToolName,
		attrs.OpenInferenceToolName,
		attrs.VercelToolCallName,
		attrs.OpenInferenceToolCallFunctionName,
	}
	toolCallIDKeys = []attribute.Key{
		attrs.GenAIToolCallID,
		attrs.OpenInferenceToolCallID,
		attrs.VercelToolCallID,
	}
	toolArgumentKeys = []attribute.Key{
		attrs.GenAIToolCallArguments,
		attrs.VercelToolCallArgs,
		attrs.OpenInferenceToolCallFunctionArgs,
		attrs.OpenInferenceInputValue,
		attrs.TraceloopEntityInput,
	}
	toolResultKeys = []attribute.Key{
		attrs.GenAIToolResultValue,
		attrs.VercelToolCallResult,
		attrs.OpenInferenceOutputValue,
		attrs.TraceloopEntityOutput,
	}
)

type toolSpec struct{}

func (toolSpec) Name() string        { return "Tool" }
func (toolSpec) Description() string { return "A tool call" }
func (toolSpec) IsGenAI() bool       { return true }

func (toolSpec) Process(_ context.Context, args Args) (Metadata, error) {
	bag := args.Attributes

	name, ok := attrs.String(bag, toolNameKeys...)
	if !ok {
		return nil, spanerr.Unprocessable("tool name is required")
	}
	callID, ok := attrs.String(bag, toolCallIDKeys...)
	if !ok {
		return nil, spanerr.Unprocessable("tool call id is required")
	}
	arguments, err := toolArguments(bag)
	if err != nil {
		return nil, err
	}

	meta := &ToolMetadata{Name: name, CallID: callID, Arguments: arguments}
	if args.Status == StatusError {
		return meta, nil
	}
	if raw, ok := attrs.Raw(bag, toolResultKeys...); ok {
		isError, _ := attrs.Bool(bag, attrs.GenAIToolResultIsError)
		meta.Result = &ToolResult{Value: decodeLoose(raw), IsError: isError}
	}
	return meta, nil
}

func toolArguments(bag attrs.Bag) (map[string]any, error) {
	raw, ok := attrs.Raw(bag, toolArgumentKeys...)
	if !ok {
		return map[string]any{}, nil
	}
	if text, ok := raw.(string); ok && strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}
	arguments, err := decodeObject(raw)
	if err != nil {
		return nil, spanerr.Wrap("invalid tool arguments", err)
	}
	return arguments, nil
}

// decodeLoose decodes strings holding a JSON object or array and returns any
// other value unchanged.
func decodeLoose(raw any) any {
	text, ok := raw.(string)
	if !ok {
		return raw
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return text
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return text
	}
	return decoded
}
