package models

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type PartType string

const (
	PartText           PartType = "text"
	PartToolInvocation PartType = "tool-invocation"
)

// Tool invocation states.
const (
	ToolStateCall   = "call"
	ToolStateResult = "result"
)

// ToolInvocation is a function call requested by the model and, once executed, its result.
type ToolInvocation struct {
	State      string         `json:"state"` // "call" | "result"
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
	Result     any            `json:"result,omitempty"`
}

// Part is one ordered element of a message body.
type Part struct {
	Type           PartType        `json:"type"`
	Text           string          `json:"text,omitempty"`
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty"`
}

// Message represents a single turn in a conversation.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// NewTextMessage builds a message with a fresh id and a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: text,
		Parts:   []Part{{Type: PartText, Text: text}},
	}
}

// Text returns the concatenated text parts, falling back to Content for
// messages that carry no parts.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}
