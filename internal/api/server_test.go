package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reeve-ai/reeve/internal/agent"
	"github.com/reeve-ai/reeve/internal/history"
	"github.com/reeve-ai/reeve/internal/llm"
	"github.com/reeve-ai/reeve/internal/metrics"
	"github.com/reeve-ai/reeve/internal/retry"
)

// cannedClient always answers with the same text.
type cannedClient struct {
	answer string
}

func (c *cannedClient) Chat(ctx context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Model:        model,
		Message:      llm.Message{Role: "assistant", Content: c.answer},
		Done:         true,
		InputTokens:  10,
		OutputTokens: 5,
		UsageKnown:   true,
	}, nil
}

func (c *cannedClient) Ping(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *history.Buffer, *metrics.Collector) {
	t.Helper()

	h, err := history.NewBuffer(10)
	if err != nil {
		t.Fatal(err)
	}
	coll := metrics.NewCollector(100)
	o, err := agent.New(agent.Options{
		Client:  &cannedClient{answer: "canned reply"},
		Model:   "test-model",
		History: h,
		Metrics: coll,
		Retry:   retry.Policy{MaxAttempts: 1, BackoffFactor: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer("", 0, o, h, coll, nil), h, coll
}

func TestChatEndpoint(t *testing.T) {
	srv, h, coll := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message": "hello"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "canned reply" {
		t.Errorf("response = %q", resp.Response)
	}
	if h.Len() != 2 {
		t.Errorf("history len = %d, want 2", h.Len())
	}
	if coll.Len() != 1 {
		t.Errorf("samples = %d, want 1", coll.Len())
	}
}

func TestChatEndpointRejectsBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"empty message", `{"message": "  "}`},
		{"missing message", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	srv, h, _ := newTestServer(t)
	if err := h.AddUser("q"); err != nil {
		t.Fatal(err)
	}
	if err := h.AddAssistant("a"); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		Capacity int              `json:"capacity"`
		Turns    []history.Record `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Capacity != 10 || len(doc.Turns) != 2 {
		t.Errorf("capacity = %d, turns = %d", doc.Capacity, len(doc.Turns))
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/history/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if h.Len() != 0 {
		t.Errorf("history not cleared: %d turns", h.Len())
	}
}

func TestMetricsEndpoints(t *testing.T) {
	srv, _, coll := newTestServer(t)
	coll.Record(metrics.Sample{Model: "m", Success: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		Summary metrics.Summary `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Summary.TotalRequests != 1 {
		t.Errorf("total requests = %d", doc.Summary.TotalRequests)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("exposition status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "reeve_requests_total") {
		t.Errorf("exposition body = %q", rec.Body.String())
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/health", "/api/version", "/"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
			t.Errorf("%s content type = %q", path, ct)
		}
	}
}

func TestRootRejectsUnknownPath(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
