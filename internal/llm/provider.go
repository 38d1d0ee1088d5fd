// Package llm abstracts the chat model behind a provider-neutral
// request shape. The turn loop speaks only this vocabulary; OpenAI and
// Anthropic adapters translate it onto their wire formats.
package llm

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model-requested tool invocation. Arguments stay raw so
// the caller can decode them against the tool's own input type.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one entry of the conversation sent to the provider. Tool
// result messages carry ToolCallID; assistant messages may carry the
// calls the model made on a previous round.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool describes a callable tool in JSON Schema form.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

type Request struct {
	System    string
	Messages  []Message
	Tools     []Tool
	MaxTokens int
}

type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
}

// StreamHandler receives incremental output. OnTextDelta fires per text
// fragment; OnToolCall fires once per tool call, after its arguments
// have fully accumulated.
type StreamHandler struct {
	OnTextDelta func(delta string)
	OnToolCall  func(call ToolCall)
}

type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request, handler StreamHandler) (*Completion, error)
}
