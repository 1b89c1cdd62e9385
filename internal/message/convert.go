package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/naming"
	"github.com/ongoingai/tracelens/internal/spanerr"
)

// maxURLDepth bounds how far resolveURL descends into nested image objects.
const maxURLDepth = 4

// ConvertContentType maps a content type tag from any convention to its
// canonical tag.
func ConvertContentType(raw string) (ContentType, error) {
	switch naming.ToCamelCase(raw) {
	case "text", "inputText", "outputText":
		return ContentText, nil
	case "image", "imageUrl", "inputImage":
		return ContentImage, nil
	case "file", "inputFile", "document":
		return ContentFile, nil
	case "reasoning", "thinking":
		return ContentReasoning, nil
	case "redactedReasoning", "redactedThinking":
		return ContentRedactedReasoning, nil
	case "toolCall", "toolUse", "functionCall":
		return ContentToolCall, nil
	case "toolResult", "functionResult", "functionCallOutput":
		return ContentToolResult, nil
	}
	if strings.TrimSpace(raw) == "" {
		return "", spanerr.Unprocessable("content type is required")
	}
	return "", spanerr.Unprocessable(fmt.Sprintf("invalid content type %q", raw))
}

// ConvertContent turns a string, an array of content parts or a single content
// part into canonical blocks.
func ConvertContent(raw any) ([]Content, error) {
	switch typed := raw.(type) {
	case nil:
		return []Content{}, nil
	case string:
		return []Content{Text(typed)}, nil
	case []any:
		out := make([]Content, 0, len(typed))
		for i, item := range typed {
			block, err := convertContentItem(item)
			if err != nil {
				return nil, spanerr.Wrap(fmt.Sprintf("content %d", i), err)
			}
			out = append(out, block)
		}
		return out, nil
	case map[string]any:
		block, err := convertContentPart(typed)
		if err != nil {
			return nil, err
		}
		return []Content{block}, nil
	default:
		return nil, spanerr.Unprocessable(fmt.Sprintf("invalid message content of type %T", raw))
	}
}

func convertContentItem(item any) (Content, error) {
	switch typed := item.(type) {
	case map[string]any:
		return convertContentPart(typed)
	case string:
		trimmed := strings.TrimSpace(typed)
		if !strings.HasPrefix(trimmed, "{") {
			return Text(typed), nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return Content{}, spanerr.Wrap("invalid content part", err)
		}
		return convertContentPart(decoded)
	default:
		return Content{}, spanerr.Unprocessable(fmt.Sprintf("invalid content part of type %T", item))
	}
}

func convertContentPart(raw map[string]any) (Content, error) {
	part := normalizeKeys(raw)
	// OpenInference wraps each part as {"message_content": {...}}.
	if inner, ok := part["messageContent"].(map[string]any); ok {
		part = normalizeKeys(inner)
	}

	kind, _ := part["type"].(string)
	contentType, err := ConvertContentType(kind)
	if err != nil {
		return Content{}, err
	}

	switch contentType {
	case ContentText:
		return Text(firstString(part, "text", "content", "value")), nil
	case ContentImage:
		return Image(resolveURL(firstValue(part, "image", "imageUrl", "url", "source", "data"), 0)), nil
	case ContentFile:
		file := resolveURL(firstValue(part, "file", "data", "url", "fileUrl", "fileData", "source"), 0)
		return File(file, firstString(part, "mimeType", "mediaType")), nil
	case ContentReasoning:
		return Reasoning(firstString(part, "text", "reasoning", "thinking")), nil
	case ContentRedactedReasoning:
		return RedactedReasoning(firstString(part, "data")), nil
	case ContentToolCall:
		return convertToolCall(part)
	default:
		return convertToolResult(part), nil
	}
}

// ConvertToolCalls normalizes tool calls from OpenAI, Anthropic, Vercel and
// flattened conventions. One malformed call fails the whole batch.
func ConvertToolCalls(raws []any) ([]Content, error) {
	out := make([]Content, 0, len(raws))
	for i, raw := range raws {
		fields, err := objectOf(raw)
		if err != nil {
			return nil, spanerr.Wrap(fmt.Sprintf("tool call %d", i), err)
		}
		call, err := convertToolCall(normalizeKeys(fields))
		if err != nil {
			return nil, spanerr.Wrap(fmt.Sprintf("tool call %d", i), err)
		}
		out = append(out, call)
	}
	return out, nil
}

func convertToolCall(call map[string]any) (Content, error) {
	// OpenInference flattened calls nest one level as {"tool_call": {...}}.
	if inner, ok := call["toolCall"].(map[string]any); ok {
		call = normalizeKeys(inner)
	}

	id := firstString(call, "toolCallId", "callId", "toolUseId", "id")
	var name string
	var rawArguments any
	if function, ok := call["function"].(map[string]any); ok {
		function = normalizeKeys(function)
		name = firstString(function, "name")
		rawArguments = firstValue(function, "arguments", "input", "args")
	} else {
		name = firstString(call, "toolName", "name")
		rawArguments = firstValue(call, "toolArguments", "arguments", "input", "args")
	}
	if name == "" {
		return Content{}, spanerr.Unprocessable("tool call name is required")
	}

	arguments, err := parseArguments(rawArguments)
	if err != nil {
		return Content{}, spanerr.Wrap(fmt.Sprintf("invalid arguments for tool %q", name), err)
	}
	return ToolCall(id, name, arguments), nil
}

func parseArguments(raw any) (map[string]any, error) {
	switch typed := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return typed, nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return map[string]any{}, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil, err
		}
		object, ok := decoded.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("arguments must be a JSON object, got %T", decoded)
		}
		return object, nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", raw)
	}
}

// ConvertToolResults normalizes tool results from the supported conventions.
func ConvertToolResults(raws []any) ([]Content, error) {
	out := make([]Content, 0, len(raws))
	for i, raw := range raws {
		fields, err := objectOf(raw)
		if err != nil {
			return nil, spanerr.Wrap(fmt.Sprintf("tool result %d", i), err)
		}
		out = append(out, convertToolResult(normalizeKeys(fields)))
	}
	return out, nil
}

func convertToolResult(part map[string]any) Content {
	id := firstString(part, "toolCallId", "callId", "toolUseId", "id")
	name := firstString(part, "toolName", "name")
	result := firstValue(part, "result", "output", "content")
	isError, _ := attrs.CoerceBool(part["isError"])

	// Vercel v5 tool outputs are {"type": "json"|"text"|"error-json"|"error-text", "value": ...}.
	if output, ok := result.(map[string]any); ok {
		if kind, ok := output["type"].(string); ok {
			if value, ok := output["value"]; ok {
				switch kind {
				case "json", "text":
					result = value
				case "error-json", "error-text":
					result = value
					isError = true
				}
			}
		}
	}
	return ToolResult(id, name, result, isError)
}

// ConvertMessages converts raw message objects into canonical messages. Every
// message needs a role and a content field; an empty string is valid content.
func ConvertMessages(raws []any) ([]Message, error) {
	out := make([]Message, 0, len(raws))
	toolNames := make(map[string]string)

	for i, raw := range raws {
		fields, err := objectOf(raw)
		if err != nil {
			return nil, spanerr.Wrap(fmt.Sprintf("message %d", i), err)
		}
		msg, err := convertMessage(normalizeKeys(fields), toolNames)
		if err != nil {
			return nil, spanerr.Wrap(fmt.Sprintf("message %d", i), err)
		}
		for _, block := range msg.Content {
			if block.Type == ContentToolCall && block.ToolCallID != "" {
				toolNames[block.ToolCallID] = block.ToolName
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func convertMessage(fields map[string]any, toolNames map[string]string) (Message, error) {
	rawRole, _ := fields["role"].(string)
	if strings.TrimSpace(rawRole) == "" {
		return Message{}, spanerr.Unprocessable("role is required")
	}
	role, err := convertRole(rawRole)
	if err != nil {
		return Message{}, err
	}

	rawContent, hasContent := fields["content"]
	if !hasContent {
		rawContent, hasContent = fields["contents"]
	}
	rawToolCalls, hasToolCalls := fields["toolCalls"].([]any)
	rawFunctionCall, hasFunctionCall := fields["functionCall"].(map[string]any)
	if !hasContent && !hasToolCalls && !hasFunctionCall {
		return Message{}, spanerr.Unprocessable("content is required")
	}

	content, err := ConvertContent(rawContent)
	if err != nil {
		return Message{}, err
	}
	if hasToolCalls {
		calls, err := ConvertToolCalls(rawToolCalls)
		if err != nil {
			return Message{}, err
		}
		content = append(content, calls...)
	}
	if hasFunctionCall {
		call, err := convertToolCall(map[string]any{"function": rawFunctionCall})
		if err != nil {
			return Message{}, err
		}
		content = append(content, call)
	}

	msg := Message{Role: role, Content: content}
	if role != RoleTool {
		return msg, nil
	}
	return liftToolFields(msg, fields, toolNames)
}

// liftToolFields fills ToolID, ToolName and IsError on a tool message from the
// message itself, its first tool result, or the assistant call it answers.
func liftToolFields(msg Message, fields map[string]any, toolNames map[string]string) (Message, error) {
	msg.ToolID = firstString(fields, "toolCallId", "toolId", "toolUseId", "id")
	msg.ToolName = firstString(fields, "toolName", "name")
	msg.IsError, _ = attrs.CoerceBool(fields["isError"])

	var result *Content
	for i := range msg.Content {
		if msg.Content[i].Type == ContentToolResult {
			result = &msg.Content[i]
			break
		}
	}
	if result != nil {
		if msg.ToolID == "" {
			msg.ToolID = result.ToolCallID
		}
		if msg.ToolName == "" {
			msg.ToolName = result.ToolName
		}
		msg.IsError = msg.IsError || result.IsError
	}
	if msg.ToolName == "" {
		msg.ToolName = toolNames[msg.ToolID]
	}
	if msg.ToolID == "" {
		return Message{}, spanerr.Unprocessable("tool message requires a tool call id")
	}
	if msg.ToolName == "" {
		return Message{}, spanerr.Unprocessable("tool message requires a tool name")
	}

	if result == nil {
		msg.Content = []Content{ToolResult(msg.ToolID, msg.ToolName, textResult(msg.Content), msg.IsError)}
		return msg, nil
	}
	for i := range msg.Content {
		block := &msg.Content[i]
		if block.Type != ContentToolResult {
			continue
		}
		if block.ToolCallID == "" {
			block.ToolCallID = msg.ToolID
		}
		if block.ToolName == "" {
			block.ToolName = msg.ToolName
		}
	}
	return msg, nil
}

// textResult joins text blocks of a tool message into a single result. JSON
// objects and arrays are decoded so they compare equal to structured results.
func textResult(content []Content) any {
	parts := make([]string, 0, len(content))
	for _, block := range content {
		if block.Type == ContentText {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "")
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return text
}

func convertRole(raw string) (Role, error) {
	switch naming.ToCamelCase(raw) {
	case "system":
		return RoleSystem, nil
	case "user", "human":
		return RoleUser, nil
	case "assistant", "ai", "model", "bot":
		return RoleAssistant, nil
	case "developer":
		return RoleDeveloper, nil
	case "tool", "function", "toolResult":
		return RoleTool, nil
	}
	return "", spanerr.Unprocessable(fmt.Sprintf("invalid message role %q", raw))
}

// DecodeCanonical reads messages that are already in canonical form, for
// example a decoded JSON array. Unknown content tags are dropped.
func DecodeCanonical(raw any) ([]Message, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, spanerr.Wrap("invalid canonical messages", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, spanerr.Wrap("invalid canonical messages", err)
	}
	for _, item := range items {
		if text, ok := item["content"].(string); ok {
			item["content"] = []any{map[string]any{"type": string(ContentText), "text": text}}
		}
	}
	if encoded, err = json.Marshal(items); err != nil {
		return nil, spanerr.Wrap("invalid canonical messages", err)
	}
	var messages []Message
	if err := json.Unmarshal(encoded, &messages); err != nil {
		return nil, spanerr.Wrap("invalid canonical messages", err)
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return nil, spanerr.Unprocessable(fmt.Sprintf("message %d: invalid message role %q", i, msg.Role))
		}
	}
	return Canonicalize(messages)
}

func objectOf(raw any) (map[string]any, error) {
	switch typed := raw.(type) {
	case map[string]any:
		return typed, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(typed)), &decoded); err != nil {
			return nil, spanerr.Wrap("invalid JSON object", err)
		}
		return decoded, nil
	default:
		return nil, spanerr.Unprocessable(fmt.Sprintf("expected an object, got %T", raw))
	}
}

// normalizeKeys camelCases the top level keys of fields only; nested values
// such as tool arguments keep their original keys.
func normalizeKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		converted := naming.ToCamelCase(key)
		if _, exists := out[converted]; exists && converted != key {
			continue
		}
		out[converted] = value
	}
	return out
}

func firstValue(fields map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := fields[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := fields[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func resolveURL(raw any, depth int) string {
	if depth > maxURLDepth {
		return ""
	}
	switch typed := raw.(type) {
	case string:
		return typed
	case map[string]any:
		fields := normalizeKeys(typed)
		return resolveURL(firstValue(fields, "url", "image", "imageUrl", "data", "uri"), depth+1)
	}
	return ""
}
