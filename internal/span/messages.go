package span

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/message"
	"github.com/ongoingai/tracelens/internal/spanerr"
)

// messageConvention reads messages in one attribute convention. found is false
// when the convention has no messages in the bag.
type messageConvention struct {
	name    string
	extract func(bag attrs.Bag) (messages []message.Message, found bool, err error)
}

var inputConventions = []messageConvention{
	{name: "latitude", extract: canonicalMessages(attrs.GenAIRequestMessages)},
	{name: "openinference", extract: nestedMessages(attrs.OpenInferenceInputMessages)},
	{name: "vercel", extract: nestedMessages(attrs.VercelPromptMessages)},
	{name: "opentelemetry", extract: flattenedMessages(attrs.GenAIPrompt)},
	{name: "openinference flattened", extract: flattenedMessages(attrs.OpenInferenceInputMessages)},
}

var outputConventions = []messageConvention{
	{name: "latitude", extract: canonicalMessages(attrs.GenAIResponseMessages)},
	{name: "openinference", extract: nestedMessages(attrs.OpenInferenceOutputMessages)},
	{name: "vercel", extract: vercelResponse},
	{name: "opentelemetry", extract: flattenedMessages(attrs.GenAICompletion)},
	{name: "openinference flattened", extract: flattenedMessages(attrs.OpenInferenceOutputMessages)},
}

// extractMessages returns the messages of the first convention present in bag,
// or an empty slice when none is.
func extractMessages(bag attrs.Bag, conventions []messageConvention, direction string) ([]message.Message, error) {
	for _, convention := range conventions {
		messages, found, err := convention.extract(bag)
		if err != nil {
			return nil, spanerr.Wrap(fmt.Sprintf("invalid %s messages (%s)", direction, convention.name), err)
		}
		if found {
			return messages, nil
		}
	}
	return []message.Message{}, nil
}

// canonicalMessages reads messages already in canonical form.
func canonicalMessages(key attribute.Key) func(attrs.Bag) ([]message.Message, bool, error) {
	return func(bag attrs.Bag) ([]message.Message, bool, error) {
		raw, ok := bag[string(key)]
		if !ok {
			return nil, false, nil
		}
		decoded, err := attrs.DecodeJSON(raw)
		if err != nil {
			return nil, false, err
		}
		messages, err := message.DecodeCanonical(decoded)
		if err != nil {
			return nil, false, err
		}
		return messages, len(messages) > 0, nil
	}
}

// nestedMessages reads a JSON array of messages stored under a single key.
func nestedMessages(key attribute.Key) func(attrs.Bag) ([]message.Message, bool, error) {
	return func(bag attrs.Bag) ([]message.Message, bool, error) {
		raw, ok := bag[string(key)]
		if !ok {
			return nil, false, nil
		}
		decoded, err := attrs.DecodeJSON(raw)
		if err != nil {
			return nil, false, err
		}
		items, ok := decoded.([]any)
		if !ok {
			return nil, false, spanerr.Unprocessable(fmt.Sprintf("expected an array, got %T", decoded))
		}
		if len(items) == 0 {
			return nil, false, nil
		}
		messages, err := message.ConvertMessages(prepareMessages(items))
		if err != nil {
			return nil, false, err
		}
		return messages, true, nil
	}
}

// flattenedMessages rebuilds messages from indexed keys such as
// gen_ai.prompt.0.role or llm.input_messages.0.message.content.
func flattenedMessages(prefix attribute.Key) func(attrs.Bag) ([]message.Message, bool, error) {
	return func(bag attrs.Bag) ([]message.Message, bool, error) {
		indexed := make(attrs.Bag)
		for key, value := range attrs.ByPrefix(bag, prefix) {
			head, _, _ := strings.Cut(key, ".")
			if isIndex(head) {
				indexed[key] = value
			}
		}
		if len(indexed) == 0 {
			return nil, false, nil
		}

		tree, err := attrs.Unflatten(indexed)
		if err != nil {
			return nil, false, spanerr.Wrap("invalid nested messages", err)
		}
		items, ok := tree.([]any)
		if !ok {
			return nil, false, spanerr.Unprocessable("invalid nested messages")
		}
		if !attrs.ValidateHoles(items) {
			return nil, false, spanerr.Unprocessable("invalid nested messages: missing message indices")
		}
		messages, err := message.ConvertMessages(prepareMessages(items))
		if err != nil {
			return nil, false, err
		}
		return messages, true, nil
	}
}

// vercelResponse builds the single assistant message a Vercel AI SDK span
// describes with ai.response.text, ai.response.reasoning and
// ai.response.toolCalls.
func vercelResponse(bag attrs.Bag) ([]message.Message, bool, error) {
	text, hasText := stringValue(bag, attrs.VercelResponseText)
	reasoning, hasReasoning := stringValue(bag, attrs.VercelResponseReasoning)
	rawCalls, hasCalls := bag[string(attrs.VercelResponseToolCalls)]
	if !hasText && !hasReasoning && !hasCalls {
		return nil, false, nil
	}

	content := make([]message.Content, 0, 2)
	if hasReasoning && reasoning != "" {
		content = append(content, message.Reasoning(reasoning))
	}
	if hasText {
		content = append(content, message.Text(text))
	}
	if hasCalls {
		decoded, err := attrs.DecodeJSON(rawCalls)
		if err != nil {
			return nil, false, err
		}
		calls, ok := decoded.([]any)
		if !ok {
			return nil, false, spanerr.Unprocessable(fmt.Sprintf("tool calls must be an array, got %T", decoded))
		}
		converted, err := message.ConvertToolCalls(calls)
		if err != nil {
			return nil, false, err
		}
		content = append(content, converted...)
	}
	return []message.Message{{Role: message.RoleAssistant, Content: content}}, true, nil
}

// prepareMessages copies raw message objects, drops the OpenInference "message"
// wrapper and decodes content strings that hold a JSON array of typed parts.
func prepareMessages(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		if inner, ok := fields["message"].(map[string]any); ok {
			fields = inner
		}
		copied := make(map[string]any, len(fields))
		for key, value := range fields {
			copied[key] = value
		}
		if content, ok := copied["content"].(string); ok {
			if parts, ok := decodeParts(content); ok {
				copied["content"] = parts
			}
		}
		out = append(out, copied)
	}
	return out
}

func decodeParts(content string) ([]any, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var parts []any
	if err := json.Unmarshal([]byte(trimmed), &parts); err != nil || len(parts) == 0 {
		return nil, false
	}
	for _, part := range parts {
		fields, ok := part.(map[string]any)
		if !ok {
			return nil, false
		}
		if _, ok := fields["type"].(string); !ok {
			return nil, false
		}
	}
	return parts, true
}

// stringValue returns the string form of key, including the empty string.
func stringValue(bag attrs.Bag, key attribute.Key) (string, bool) {
	raw, ok := bag[string(key)]
	if !ok {
		return "", false
	}
	return attrs.Stringify(raw)
}

func isIndex(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
