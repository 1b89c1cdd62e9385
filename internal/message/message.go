// Package message defines the canonical conversation representation shared by
// every span convention and converts raw message payloads into it.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/ongoingai/tracelens/internal/spanerr"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleDeveloper, RoleTool:
		return true
	}
	return false
}

type ContentType string

const (
	ContentText              ContentType = "text"
	ContentImage             ContentType = "image"
	ContentFile              ContentType = "file"
	ContentReasoning         ContentType = "reasoning"
	ContentRedactedReasoning ContentType = "redacted-reasoning"
	ContentToolCall          ContentType = "tool-call"
	ContentToolResult        ContentType = "tool-result"
)

// Known reports whether t is one of the canonical content tags.
func (t ContentType) Known() bool {
	switch t {
	case ContentText, ContentImage, ContentFile, ContentReasoning,
		ContentRedactedReasoning, ContentToolCall, ContentToolResult:
		return true
	}
	return false
}

// Content is one typed block of a message. Type decides which fields carry
// data; use the constructors below rather than filling fields by hand.
type Content struct {
	Type          ContentType    `json:"type"`
	Text          string         `json:"text,omitempty"`
	Image         string         `json:"image,omitempty"`
	File          string         `json:"file,omitempty"`
	MimeType      string         `json:"mimeType,omitempty"`
	Data          string         `json:"data,omitempty"`
	ToolCallID    string         `json:"toolCallId,omitempty"`
	ToolName      string         `json:"toolName,omitempty"`
	ToolArguments map[string]any `json:"toolArguments,omitempty"`
	Result        any            `json:"result,omitempty"`
	IsError       bool           `json:"isError,omitempty"`
}

func Text(text string) Content {
	return Content{Type: ContentText, Text: text}
}

func Image(image string) Content {
	return Content{Type: ContentImage, Image: image}
}

func File(file, mimeType string) Content {
	return Content{Type: ContentFile, File: file, MimeType: mimeType}
}

func Reasoning(text string) Content {
	return Content{Type: ContentReasoning, Text: text}
}

func RedactedReasoning(data string) Content {
	return Content{Type: ContentRedactedReasoning, Data: data}
}

func ToolCall(id, name string, arguments map[string]any) Content {
	if arguments == nil {
		arguments = map[string]any{}
	}
	return Content{Type: ContentToolCall, ToolCallID: id, ToolName: name, ToolArguments: arguments}
}

func ToolResult(id, name string, result any, isError bool) Content {
	return Content{Type: ContentToolResult, ToolCallID: id, ToolName: name, Result: result, IsError: isError}
}

// MarshalJSON writes only the fields that belong to c.Type.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentText, ContentReasoning:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{c.Type, c.Text})
	case ContentImage:
		return json.Marshal(struct {
			Type  ContentType `json:"type"`
			Image string      `json:"image"`
		}{c.Type, c.Image})
	case ContentFile:
		return json.Marshal(struct {
			Type     ContentType `json:"type"`
			File     string      `json:"file"`
			MimeType string      `json:"mimeType"`
		}{c.Type, c.File, c.MimeType})
	case ContentRedactedReasoning:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Data string      `json:"data"`
		}{c.Type, c.Data})
	case ContentToolCall:
		arguments := c.ToolArguments
		if arguments == nil {
			arguments = map[string]any{}
		}
		return json.Marshal(struct {
			Type          ContentType    `json:"type"`
			ToolCallID    string         `json:"toolCallId"`
			ToolName      string         `json:"toolName"`
			ToolArguments map[string]any `json:"toolArguments"`
		}{c.Type, c.ToolCallID, c.ToolName, arguments})
	case ContentToolResult:
		return json.Marshal(struct {
			Type       ContentType `json:"type"`
			ToolCallID string      `json:"toolCallId"`
			ToolName   string      `json:"toolName"`
			Result     any         `json:"result"`
			IsError    bool        `json:"isError"`
		}{c.Type, c.ToolCallID, c.ToolName, c.Result, c.IsError})
	default:
		type plain Content
		return json.Marshal(plain(c))
	}
}

// Message is one canonical conversation turn. ToolName, ToolID and IsError
// are set on tool messages only.
type Message struct {
	Role     Role      `json:"role"`
	Content  []Content `json:"content"`
	ToolName string    `json:"toolName,omitempty"`
	ToolID   string    `json:"toolId,omitempty"`
	IsError  bool      `json:"isError,omitempty"`
}

// Canonicalize drops content blocks with unknown tags and enforces the role
// invariants: tool messages carry a tool id and name, taken from their first
// tool result or the assistant call they answer when missing, and non-tool
// messages carry neither.
func Canonicalize(messages []Message) ([]Message, error) {
	out := make([]Message, 0, len(messages))
	toolNames := make(map[string]string)
	for i, msg := range messages {
		content := make([]Content, 0, len(msg.Content))
		for _, block := range msg.Content {
			if !block.Type.Known() {
				continue
			}
			if block.Type == ContentToolCall && block.ToolCallID != "" {
				toolNames[block.ToolCallID] = block.ToolName
			}
			content = append(content, block)
		}
		msg.Content = content
		if msg.Role != RoleTool {
			msg.ToolName = ""
			msg.ToolID = ""
			msg.IsError = false
			out = append(out, msg)
			continue
		}
		for _, block := range msg.Content {
			if block.Type != ContentToolResult {
				continue
			}
			if msg.ToolID == "" {
				msg.ToolID = block.ToolCallID
			}
			if msg.ToolName == "" {
				msg.ToolName = block.ToolName
			}
			msg.IsError = msg.IsError || block.IsError
			break
		}
		if msg.ToolName == "" {
			msg.ToolName = toolNames[msg.ToolID]
		}
		if msg.ToolID == "" || msg.ToolName == "" {
			return nil, spanerr.Unprocessable(fmt.Sprintf("message %d: tool message requires a tool name and tool call id", i))
		}
		out = append(out, msg)
	}
	return out, nil
}
