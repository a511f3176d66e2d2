// Package stream defines the provider-neutral response chunk and the
// line-oriented data stream codec used between the chat endpoint and its
// clients.
package stream

type Kind string

const (
	KindText       Kind = "text"
	KindToolCall   Kind = "tool-call"
	KindToolResult Kind = "tool-result"
	KindFinish     Kind = "finish"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Chunk is one incremental piece of a streamed assistant response.
type Chunk struct {
	Kind         Kind
	Text         string
	ToolCallID   string
	ToolName     string
	Args         map[string]any
	Result       any
	FinishReason string
	Usage        *Usage
}

func Text(delta string) Chunk {
	return Chunk{Kind: KindText, Text: delta}
}

func ToolCall(id, name string, args map[string]any) Chunk {
	return Chunk{Kind: KindToolCall, ToolCallID: id, ToolName: name, Args: args}
}

func ToolResult(id, name string, args map[string]any, result any) Chunk {
	return Chunk{Kind: KindToolResult, ToolCallID: id, ToolName: name, Args: args, Result: result}
}

func Finish(reason string, usage *Usage) Chunk {
	return Chunk{Kind: KindFinish, FinishReason: reason, Usage: usage}
}
