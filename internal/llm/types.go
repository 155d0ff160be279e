// Package llm provides LLM client implementations.
package llm

import (
	"time"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // Provider-assigned, when available
	Function FunctionCall `json:"function"`
}

// FunctionCall names the target tool and its argument mapping.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types — wire format conversion happens
// at provider boundaries (ollama.go, llamacpp.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage (provider-neutral). Zero when the provider did not
	// report usage; UsageKnown distinguishes that from a true zero.
	InputTokens  int
	OutputTokens int
	UsageKnown   bool

	// Timing (populated when available)
	TotalDuration time.Duration
}
