package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reeve-ai/reeve/internal/llm"
	"github.com/reeve-ai/reeve/internal/toolcall"
)

// strategy adapts the orchestration loop to how a provider surfaces
// tool calls. It is chosen once at construction from the provider name
// and never changes mid-conversation.
type strategy interface {
	// Name labels the strategy in logs.
	Name() string

	// PrepareTools returns the wire-level tool parameter and a system
	// prompt suffix. Exactly one of the two carries the schemas:
	// native protocols put them on the wire, text protocols render
	// them into the prompt.
	PrepareTools(schemas []map[string]any) ([]map[string]any, string)

	// Calls returns the tool invocations a response requests.
	Calls(resp *llm.ChatResponse) []llm.ToolCall

	// Content returns the response's display text with any tool-call
	// syntax removed.
	Content(resp *llm.ChatResponse) string

	// ResultMessage renders one tool outcome as the message that
	// carries it back to the model.
	ResultMessage(tool string, success bool, content string) llm.Message
}

// strategyFor maps a provider name to its detection strategy.
func strategyFor(provider string, logger *slog.Logger) (strategy, error) {
	switch provider {
	case "", "ollama":
		return nativeStrategy{}, nil
	case "llamacpp":
		return &textStrategy{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: ollama, llamacpp)", provider)
	}
}

// nativeStrategy serves protocols with a first-class tool channel:
// schemas travel as a request parameter and calls come back on the
// response's tool_calls field.
type nativeStrategy struct{}

func (nativeStrategy) Name() string { return "native" }

func (nativeStrategy) PrepareTools(schemas []map[string]any) ([]map[string]any, string) {
	return schemas, ""
}

func (nativeStrategy) Calls(resp *llm.ChatResponse) []llm.ToolCall {
	return resp.Message.ToolCalls
}

func (nativeStrategy) Content(resp *llm.ChatResponse) string {
	return strings.TrimSpace(resp.Message.Content)
}

func (nativeStrategy) ResultMessage(tool string, success bool, content string) llm.Message {
	return llm.Message{Role: "tool", Content: content}
}

// textStrategy serves completion-style protocols with no tool channel:
// schemas are rendered into the system prompt, the model emits calls
// inside <tool_call> blocks, and results go back as <tool_result>
// text.
type textStrategy struct {
	logger *slog.Logger
}

func (s *textStrategy) Name() string { return "text" }

const textToolPrompt = `You can call tools. The available tools are described by these JSON schemas:

%s

To call a tool, respond with a block of this exact form:

<tool_call>
{"name": "tool_name", "arguments": {"param": "value"}}
</tool_call>

Emit one block per call and no other text when calling tools. Results
arrive inside <tool_result> blocks; use them to answer the user in
plain text.`

func (s *textStrategy) PrepareTools(schemas []map[string]any) ([]map[string]any, string) {
	data, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		// Schemas are plain maps of strings and maps; this cannot
		// happen with registry-produced input.
		data = []byte("[]")
	}
	return nil, fmt.Sprintf(textToolPrompt, data)
}

func (s *textStrategy) Calls(resp *llm.ChatResponse) []llm.ToolCall {
	extracted := toolcall.Extract(s.logger, resp.Message.Content)
	calls := make([]llm.ToolCall, 0, len(extracted))
	for _, c := range extracted {
		calls = append(calls, llm.ToolCall{
			Function: llm.FunctionCall{Name: c.Name, Arguments: c.Arguments},
		})
	}
	return calls
}

func (s *textStrategy) Content(resp *llm.ChatResponse) string {
	return toolcall.Strip(resp.Message.Content)
}

func (s *textStrategy) ResultMessage(tool string, success bool, content string) llm.Message {
	return llm.Message{Role: "tool", Content: toolcall.FormatResult(tool, success, content)}
}
