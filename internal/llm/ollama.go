package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reeve-ai/reeve/internal/config"
	"github.com/reeve-ai/reeve/internal/httpkit"
	"github.com/reeve-ai/reeve/internal/redact"
)

// OllamaClient speaks the Ollama chat API. Ollama delivers tool calls
// natively on the response message's tool_calls field, so no text
// extraction is needed for this provider.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client. A zero timeout means
// no overall limit; lifetime is then governed by the request context.
func NewOllamaClient(baseURL string, timeout time.Duration, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Large models with tools can think for minutes before sending
	// headers; relax the shared transport's header timeout.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OllamaClient{
		baseURL: baseURL,
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithTransport(t),
		),
	}
}

// ollamaChatRequest is the request format for the Ollama chat API.
type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

// ollamaChatResponse is the response from the Ollama chat API.
type ollamaChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	// Usage stats (when done=true)
	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// Chat sends a chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Tools:    tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", redact.Filter(string(jsonData)))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		apiErr := fmt.Errorf("API error: %s", errBody)
		if retryableStatus(resp.StatusCode) {
			return nil, &TransportError{Provider: "ollama", Status: resp.StatusCode, Err: apiErr}
		}
		return nil, &ProtocolError{Provider: "ollama", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errBody)}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &ProtocolError{Provider: "ollama", Err: fmt.Errorf("decode response: %w", err)}
	}
	if chatResp.Message.Role == "" && chatResp.Message.Content == "" && len(chatResp.Message.ToolCalls) == 0 {
		return nil, &ProtocolError{Provider: "ollama", Err: fmt.Errorf("response has no message")}
	}

	result := &ChatResponse{
		Model:         chatResp.Model,
		Message:       chatResp.Message,
		Done:          chatResp.Done,
		InputTokens:   chatResp.PromptEvalCount,
		OutputTokens:  chatResp.EvalCount,
		UsageKnown:    chatResp.PromptEvalCount > 0 || chatResp.EvalCount > 0,
		TotalDuration: time.Duration(chatResp.TotalDuration),
	}
	if created, err := time.Parse(time.RFC3339Nano, chatResp.CreatedAt); err == nil {
		result.CreatedAt = created
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", redact.Filter(result.Message.Content))

	return result, nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Provider: "ollama", Err: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Provider: "ollama", Status: resp.StatusCode, Err: fmt.Errorf("ping failed")}
	}
	return nil
}
