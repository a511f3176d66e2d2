package models

// Chat error types.
const (
	ErrConfigMissing = "config_missing"
	ErrQuotaExceeded = "quota_exceeded"
	ErrRateLimit     = "rate_limit"
	ErrAuth          = "auth_error"
	ErrGeneric       = "generic_error"
)

// ChatErrorResponse is the JSON body returned by the chat endpoint on failure.
type ChatErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Details string `json:"details,omitempty"`
}

// WSChatEvent is a single frame sent over the websocket chat transport.
type WSChatEvent struct {
	Type         string         `json:"type"` // "text" | "tool-call" | "tool-result" | "finish" | "error"
	Text         string         `json:"text,omitempty"`
	ToolCallID   string         `json:"toolCallId,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	Result       any            `json:"result,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorType    string         `json:"errorType,omitempty"`
	Details      string         `json:"details,omitempty"`
	Status       int            `json:"status,omitempty"`
}
