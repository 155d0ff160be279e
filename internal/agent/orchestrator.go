// Package agent drives the tool-calling conversation loop.
//
// One Orchestrator owns one conversation: it assembles the message
// context from the system prompt and bounded history, exchanges
// messages with the provider through retry, detects requested tool
// calls via a provider-appropriate strategy, executes them, and feeds
// the results back until the model produces a final text answer or a
// budget runs out. History is committed only when a turn succeeds, so
// a failed turn leaves the conversation exactly as it found it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reeve-ai/reeve/internal/config"
	"github.com/reeve-ai/reeve/internal/history"
	"github.com/reeve-ai/reeve/internal/llm"
	"github.com/reeve-ai/reeve/internal/metrics"
	"github.com/reeve-ai/reeve/internal/redact"
	"github.com/reeve-ai/reeve/internal/retry"
	"github.com/reeve-ai/reeve/internal/tools"
)

const (
	// DefaultMaxIterations caps provider round-trips per turn when the
	// caller does not set a limit.
	DefaultMaxIterations = 10

	// emptyResponseThreshold is the number of consecutive contentless
	// responses at which the turn stops re-prompting and synthesizes a
	// fallback answer. Re-prompts happen while under the threshold.
	emptyResponseThreshold = 2

	// maxFallbackResults bounds how many recent tool results feed the
	// synthesized fallback answer.
	maxFallbackResults = 3

	// fallbackResultLimit truncates each tool result used in the
	// fallback answer.
	fallbackResultLimit = 500
)

// reprompt is sent after an empty model response, with tools withheld,
// to coax a plain-text answer out of the context already gathered.
const reprompt = "Using only the information already gathered above, answer the original question directly in plain text."

// Options configures an Orchestrator. Client, History, and Model are
// required; everything else has a usable default.
type Options struct {
	Client       llm.Client
	Provider     string // "ollama" or "llamacpp"; selects the tool-call strategy
	Model        string
	SystemPrompt string

	// Registry supplies the callable tools. Nil or empty means the
	// model is never offered tools.
	Registry *tools.Registry

	History *history.Buffer

	// Metrics, when non-nil, receives one sample per provider call.
	Metrics *metrics.Collector

	// Retry governs provider calls. The zero value means DefaultPolicy.
	// RetryIf is always overridden to retry transport errors only.
	Retry retry.Policy

	// MaxIterations caps tool-call round-trips per turn. Zero means
	// DefaultMaxIterations.
	MaxIterations int

	Logger *slog.Logger
}

// Orchestrator runs conversation turns against one provider.
// Safe for sequential use; one conversation is one goroutine's.
type Orchestrator struct {
	client   llm.Client
	model    string
	system   string
	registry *tools.Registry
	history  *history.Buffer
	metrics  *metrics.Collector
	policy   retry.Policy
	strat    strategy
	maxIters int
	logger   *slog.Logger
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, &ConfigError{Reason: "no provider client"}
	}
	if opts.History == nil {
		return nil, &ConfigError{Reason: "no history buffer"}
	}
	if opts.Model == "" {
		return nil, &ConfigError{Reason: "no model configured"}
	}
	if opts.MaxIterations < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("max iterations must not be negative, got %d", opts.MaxIterations)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	strat, err := strategyFor(opts.Provider, logger)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	policy.RetryIf = llm.IsTransient

	maxIters := opts.MaxIterations
	if maxIters == 0 {
		maxIters = DefaultMaxIterations
	}

	return &Orchestrator{
		client:   opts.Client,
		model:    opts.Model,
		system:   opts.SystemPrompt,
		registry: opts.Registry,
		history:  opts.History,
		metrics:  opts.Metrics,
		policy:   policy,
		strat:    strat,
		maxIters: maxIters,
		logger:   logger.With("component", "agent", "strategy", strat.Name()),
	}, nil
}

// Run executes one conversation turn and returns the model's final
// answer. On success exactly two turns are committed to history, the
// user message and the answer; on any failure history is untouched.
func (o *Orchestrator) Run(ctx context.Context, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", fmt.Errorf("empty user message")
	}

	logger := o.logger.With("request_id", requestID())
	logger.Info("turn started", "input_len", len(userText))

	msgs := o.buildContext(userText)
	wireTools, _ := o.preparedTools()

	iterations := 0
	emptyResponses := 0
	toolsEnabled := true
	var toolNotes []string

	for {
		if iterations >= o.maxIters {
			logger.Warn("iteration budget exhausted", "iterations", iterations)
			return "", &ExhaustionError{
				Iterations: iterations,
				Reason:     "tool-call iteration budget exhausted",
			}
		}

		callTools := wireTools
		if !toolsEnabled {
			callTools = nil
		}
		resp, err := o.chat(ctx, logger, msgs, callTools)
		if err != nil {
			logger.Error("provider exchange failed", "error", err)
			return "", &ProviderError{Err: err}
		}

		calls := o.strat.Calls(resp)
		text := o.strat.Content(resp)

		switch {
		case len(calls) > 0:
			iterations++
			if o.registry == nil || o.registry.Len() == 0 {
				return "", &ConfigError{
					Reason: fmt.Sprintf("model requested %d tool call(s) but no tools are registered", len(calls)),
				}
			}
			msgs = append(msgs, resp.Message)
			msgs = append(msgs, o.runCalls(ctx, logger, calls, &toolNotes)...)

		case text == "":
			emptyResponses++
			if emptyResponses >= emptyResponseThreshold {
				answer, ok := fallbackAnswer(toolNotes)
				if !ok {
					logger.Warn("giving up on empty responses", "count", emptyResponses)
					return "", &ExhaustionError{
						Iterations:     iterations,
						EmptyResponses: emptyResponses,
						Reason:         "model returned no content and no tool results were gathered",
					}
				}
				logger.Warn("synthesizing answer from tool results", "empty_responses", emptyResponses)
				o.commit(userText, answer)
				return answer, nil
			}
			logger.Warn("empty model response, re-prompting without tools", "count", emptyResponses)
			toolsEnabled = false
			msgs = o.withholdTools(msgs)
			msgs = append(msgs, llm.Message{Role: history.RoleUser, Content: reprompt})

		default:
			logger.Info("turn complete", "iterations", iterations, "answer_len", len(text))
			o.commit(userText, text)
			return text, nil
		}
	}
}

// buildContext assembles the provider message sequence: system prompt
// (with the strategy's tool suffix), prior history, then the new user
// message.
func (o *Orchestrator) buildContext(userText string) []llm.Message {
	turns := o.history.Turns()
	msgs := make([]llm.Message, 0, len(turns)+2)

	sys := o.system
	if _, suffix := o.preparedTools(); suffix != "" {
		if sys != "" {
			sys += "\n\n"
		}
		sys += suffix
	}
	if sys != "" {
		msgs = append(msgs, llm.Message{Role: history.RoleSystem, Content: sys})
	}

	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	return append(msgs, llm.Message{Role: history.RoleUser, Content: userText})
}

// withholdTools removes the tool offer from an in-flight context. The
// native strategy advertises tools as a request parameter, which the
// caller simply stops sending; the text strategy advertises them
// inside the system message, which is rewritten here to the bare
// system prompt.
func (o *Orchestrator) withholdTools(msgs []llm.Message) []llm.Message {
	_, suffix := o.preparedTools()
	if suffix == "" || len(msgs) == 0 || msgs[0].Role != history.RoleSystem {
		return msgs
	}
	if o.system == "" {
		return msgs[1:]
	}
	msgs[0] = llm.Message{Role: history.RoleSystem, Content: o.system}
	return msgs
}

// preparedTools returns the wire tool parameter and system prompt
// suffix for the current registry, or nothing when no tools exist.
func (o *Orchestrator) preparedTools() ([]map[string]any, string) {
	if o.registry == nil || o.registry.Len() == 0 {
		return nil, ""
	}
	return o.strat.PrepareTools(o.registry.Schemas())
}

// chat performs one provider exchange through the retry policy and
// records a metrics sample per call attempt.
func (o *Orchestrator) chat(ctx context.Context, logger *slog.Logger, msgs []llm.Message, wireTools []map[string]any) (*llm.ChatResponse, error) {
	return retry.Do(ctx, logger, o.policy, func(ctx context.Context) (*llm.ChatResponse, error) {
		start := time.Now()
		resp, err := o.client.Chat(ctx, o.model, msgs, wireTools)
		o.record(resp, err, time.Since(start))
		return resp, err
	})
}

// record feeds one provider call outcome to the metrics collector.
func (o *Orchestrator) record(resp *llm.ChatResponse, err error, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	s := metrics.Sample{
		Model:     o.model,
		Latency:   elapsed,
		Timestamp: time.Now(),
	}
	if err != nil {
		s.Error = err.Error()
	} else {
		s.Success = true
		if resp.Model != "" {
			s.Model = resp.Model
		}
		if resp.UsageKnown {
			s.Tokens = &metrics.TokenUsage{Input: resp.InputTokens, Output: resp.OutputTokens}
		}
	}
	o.metrics.Record(s)
}

// runCalls executes requested tool calls in order and returns one
// result message per call. Failed outcomes are rendered for the model
// as explicit "Error: …" text rather than aborting the turn.
// Successful results are noted for a possible fallback answer.
func (o *Orchestrator) runCalls(ctx context.Context, logger *slog.Logger, calls []llm.ToolCall, notes *[]string) []llm.Message {
	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		out := o.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)

		content := out.Result
		if !out.Success {
			content = "Error: " + out.Error
		}

		logger.Info("tool executed",
			"tool", out.Tool,
			"success", out.Success,
			"elapsed", out.Elapsed,
		)
		logger.Log(ctx, config.LevelTrace, "tool result", "content", redact.Filter(content))

		if out.Success {
			*notes = append(*notes, fmt.Sprintf("%s: %s", out.Tool, truncate(out.Result, fallbackResultLimit)))
		}
		results = append(results, o.strat.ResultMessage(out.Tool, out.Success, content))
	}
	return results
}

// fallbackAnswer synthesizes a degraded answer from the most recent
// tool results when the model refuses to produce one. Returns false
// when there is nothing to build from.
func fallbackAnswer(notes []string) (string, bool) {
	if len(notes) == 0 {
		return "", false
	}
	if len(notes) > maxFallbackResults {
		notes = notes[len(notes)-maxFallbackResults:]
	}

	var b strings.Builder
	b.WriteString("I could not compose a final answer, but here is what the tools returned:\n")
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), true
}

// commit records the completed turn. Both strings are non-empty by the
// time a turn succeeds, so the appends cannot fail.
func (o *Orchestrator) commit(user, assistant string) {
	_ = o.history.AddUser(user)
	_ = o.history.AddAssistant(assistant)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func requestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
