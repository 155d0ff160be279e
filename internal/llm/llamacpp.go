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

// LlamaCppClient speaks the OpenAI-compatible completion API exposed
// by llama.cpp's server. This protocol has no native tool-call
// channel: tool schemas are rendered into the prompt by the caller,
// and requested calls come back embedded in the response text as
// <tool_call> blocks. This client only moves text; the extraction
// lives with the orchestrator's text strategy.
type LlamaCppClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLlamaCppClient creates a client for a llama.cpp server.
func NewLlamaCppClient(baseURL string, timeout time.Duration, logger *slog.Logger) *LlamaCppClient {
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &LlamaCppClient{
		baseURL: baseURL,
		logger:  logger.With("provider", "llamacpp"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithTransport(t),
		),
	}
}

// OpenAI-compatible wire types. Only the fields we use.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type oaiChatResponse struct {
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request. The tools parameter is
// ignored at the wire level — this protocol cannot carry schemas, so
// the orchestrator renders them into a system message instead.
func (c *LlamaCppClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := oaiChatRequest{
		Model:    model,
		Messages: make([]oaiMessage, 0, len(messages)),
		Stream:   false,
	}
	for _, m := range messages {
		role := m.Role
		// No tool-result role on this wire; results travel as user
		// text formatted by the orchestrator.
		if role == "tool" {
			role = "user"
		}
		req.Messages = append(req.Messages, oaiMessage{Role: role, Content: m.Content})
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", redact.Filter(string(jsonData)))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: "llamacpp", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		apiErr := fmt.Errorf("API error: %s", errBody)
		if retryableStatus(resp.StatusCode) {
			return nil, &TransportError{Provider: "llamacpp", Status: resp.StatusCode, Err: apiErr}
		}
		return nil, &ProtocolError{Provider: "llamacpp", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errBody)}
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &ProtocolError{Provider: "llamacpp", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &ProtocolError{Provider: "llamacpp", Err: fmt.Errorf("response has no choices")}
	}

	choice := chatResp.Choices[0]
	result := &ChatResponse{
		Model: chatResp.Model,
		Message: Message{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		},
		Done: true,
	}
	if chatResp.Created > 0 {
		result.CreatedAt = time.Unix(chatResp.Created, 0)
	}
	if chatResp.Usage != nil {
		result.InputTokens = chatResp.Usage.PromptTokens
		result.OutputTokens = chatResp.Usage.CompletionTokens
		result.UsageKnown = true
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"finish_reason", choice.FinishReason,
		"content_len", len(result.Message.Content),
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", redact.Filter(result.Message.Content))

	return result, nil
}

// Ping checks if the llama.cpp server is reachable.
func (c *LlamaCppClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Provider: "llamacpp", Err: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Provider: "llamacpp", Status: resp.StatusCode, Err: fmt.Errorf("ping failed")}
	}
	return nil
}
