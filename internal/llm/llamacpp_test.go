package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLlamaCppChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// Tool-result turns must arrive as user-role text on this wire.
		for _, m := range req.Messages {
			if m.Role == "tool" {
				t.Errorf("tool role leaked onto OpenAI-compatible wire")
			}
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model":   "qwen2.5-7b",
			"created": time.Now().Unix(),
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": `<tool_call>{"name": "get_time"}</tool_call>`,
				},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 9},
		})
	}))
	defer srv.Close()

	c := NewLlamaCppClient(srv.URL, 5*time.Second, nil)
	resp, err := c.Chat(context.Background(), "qwen2.5-7b", []Message{
		{Role: "user", Content: "what time is it?"},
		{Role: "tool", Content: `<tool_result>{"tool":"x"}</tool_result>`},
	}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if !strings.Contains(resp.Message.Content, "tool_call") {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 0 {
		t.Error("native tool calls on a text-only protocol")
	}
	if !resp.UsageKnown || resp.InputTokens != 40 || resp.OutputTokens != 9 {
		t.Errorf("usage = %d/%d known=%v", resp.InputTokens, resp.OutputTokens, resp.UsageKnown)
	}
}

func TestLlamaCppChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model": "m", "choices": []}`))
	}))
	defer srv.Close()

	c := NewLlamaCppClient(srv.URL, 5*time.Second, nil)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}}, nil)

	var protocol *ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("error type %T, want ProtocolError", err)
	}
}

func TestLlamaCppChatOverloadedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slot unavailable", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewLlamaCppClient(srv.URL, 5*time.Second, nil)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}}, nil)
	if !IsTransient(err) {
		t.Errorf("429 not transient: %v", err)
	}
}

func TestLlamaCppPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c := NewLlamaCppClient(srv.URL, 5*time.Second, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
