// Package metrics collects per-call outcome records for provider
// requests. Samples live in a thread-safe bounded ring (oldest evicted
// first) with running aggregation and two export encodings: a JSON
// document and a Prometheus-style text exposition. An optional sqlite
// archive persists samples across restarts.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// DefaultMaxSamples bounds the ring when no explicit cap is given.
const DefaultMaxSamples = 10000

// TokenUsage carries provider-reported token counts. A nil TokenUsage
// on a Sample means the provider did not report usage; such samples are
// skipped in token aggregation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Sample is one provider call outcome. Immutable once recorded.
type Sample struct {
	Model     string        `json:"model"`
	Latency   time.Duration `json:"latency_ms"`
	Success   bool          `json:"success"`
	Tokens    *TokenUsage   `json:"tokens,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// MarshalJSON renders Latency as integer milliseconds so exported
// documents stay stable for downstream tooling.
func (s Sample) MarshalJSON() ([]byte, error) {
	type alias Sample
	return json.Marshal(struct {
		alias
		Latency int64 `json:"latency_ms"`
	}{alias(s), s.Latency.Milliseconds()})
}

// Summary holds running aggregates over the current ring contents.
type Summary struct {
	TotalRequests     int           `json:"total_requests"`
	Successful        int           `json:"successful"`
	Failed            int           `json:"failed"`
	SuccessRate       float64       `json:"success_rate"`
	AvgLatency        time.Duration `json:"avg_latency_ms"`
	MinLatency        time.Duration `json:"min_latency_ms"`
	MaxLatency        time.Duration `json:"max_latency_ms"`
	TotalInputTokens  int64         `json:"total_input_tokens"`
	TotalOutputTokens int64         `json:"total_output_tokens"`
}

// MarshalJSON renders durations as integer milliseconds.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	return json.Marshal(struct {
		alias
		AvgLatency int64 `json:"avg_latency_ms"`
		MinLatency int64 `json:"min_latency_ms"`
		MaxLatency int64 `json:"max_latency_ms"`
	}{alias(s), s.AvgLatency.Milliseconds(), s.MinLatency.Milliseconds(), s.MaxLatency.Milliseconds()})
}

// Collector is a process-wide, internally synchronized sample ring.
// Safe for concurrent use by many conversation sessions.
type Collector struct {
	mu      sync.Mutex
	samples []Sample // ring storage, len == cap
	start   int
	count   int
	archive *Archive
}

// NewCollector creates a collector holding at most maxSamples entries.
// Non-positive values use DefaultMaxSamples.
func NewCollector(maxSamples int) *Collector {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Collector{samples: make([]Sample, maxSamples)}
}

// SetArchive attaches a persistent archive; every subsequently recorded
// sample is also written through. Pass nil to detach.
func (c *Collector) SetArchive(a *Archive) {
	c.mu.Lock()
	c.archive = a
	c.mu.Unlock()
}

// Record appends a sample, evicting the oldest if the ring is full.
// A zero Timestamp is filled with the current time.
func (c *Collector) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	c.mu.Lock()
	if c.count == len(c.samples) {
		c.samples[c.start] = s
		c.start = (c.start + 1) % len(c.samples)
	} else {
		c.samples[(c.start+c.count)%len(c.samples)] = s
		c.count++
	}
	archive := c.archive
	c.mu.Unlock()

	// Archive writes happen outside the ring lock; sqlite I/O must not
	// stall concurrent sessions recording samples.
	if archive != nil {
		archive.Record(s)
	}
}

// Samples returns a copy of the ring contents, oldest first.
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Sample, c.count)
	for i := 0; i < c.count; i++ {
		out[i] = c.samples[(c.start+i)%len(c.samples)]
	}
	return out
}

// Len returns the number of samples currently held.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Summary aggregates the current ring contents. An empty collector
// reports all zeros.
func (c *Collector) Summary() Summary {
	samples := c.Samples()

	var s Summary
	s.TotalRequests = len(samples)
	if len(samples) == 0 {
		return s
	}

	var totalLatency time.Duration
	s.MinLatency = samples[0].Latency

	for _, sample := range samples {
		if sample.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		totalLatency += sample.Latency
		if sample.Latency < s.MinLatency {
			s.MinLatency = sample.Latency
		}
		if sample.Latency > s.MaxLatency {
			s.MaxLatency = sample.Latency
		}
		if sample.Tokens != nil {
			s.TotalInputTokens += int64(sample.Tokens.Input)
			s.TotalOutputTokens += int64(sample.Tokens.Output)
		}
	}

	s.SuccessRate = float64(s.Successful) / float64(s.TotalRequests)
	s.AvgLatency = totalLatency / time.Duration(s.TotalRequests)
	return s
}

// exportDocument is the stable JSON export shape.
type exportDocument struct {
	Summary Summary  `json:"summary"`
	Metrics []Sample `json:"metrics"`
}

// WriteJSON writes the {summary, metrics[]} document to w.
func (c *Collector) WriteJSON(w io.Writer) error {
	doc := exportDocument{
		Summary: c.Summary(),
		Metrics: c.Samples(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode metrics document: %w", err)
	}
	return nil
}

// WriteJSONFile writes the JSON document to path, creating or
// truncating the file.
func (c *Collector) WriteJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer f.Close()

	if err := c.WriteJSON(f); err != nil {
		return err
	}
	return f.Close()
}

// perModel holds exposition counters for one model.
type perModel struct {
	requests     int
	failures     int
	inputTokens  int64
	outputTokens int64
	latencySum   time.Duration
}

// WriteExposition writes a Prometheus-style text exposition of
// per-model counters. Models are sorted so output is stable and
// parseable by downstream tooling.
func (c *Collector) WriteExposition(w io.Writer) error {
	byModel := make(map[string]*perModel)
	for _, s := range c.Samples() {
		m := byModel[s.Model]
		if m == nil {
			m = &perModel{}
			byModel[s.Model] = m
		}
		m.requests++
		if !s.Success {
			m.failures++
		}
		if s.Tokens != nil {
			m.inputTokens += int64(s.Tokens.Input)
			m.outputTokens += int64(s.Tokens.Output)
		}
		m.latencySum += s.Latency
	}

	models := make([]string, 0, len(byModel))
	for name := range byModel {
		models = append(models, name)
	}
	sort.Strings(models)

	write := func(format string, args ...any) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	}

	if err := write("# HELP reeve_requests_total Total provider requests observed.\n# TYPE reeve_requests_total counter\n"); err != nil {
		return err
	}
	for _, name := range models {
		if err := write("reeve_requests_total{model=%q} %d\n", name, byModel[name].requests); err != nil {
			return err
		}
	}

	if err := write("# HELP reeve_request_failures_total Provider requests that failed.\n# TYPE reeve_request_failures_total counter\n"); err != nil {
		return err
	}
	for _, name := range models {
		if err := write("reeve_request_failures_total{model=%q} %d\n", name, byModel[name].failures); err != nil {
			return err
		}
	}

	if err := write("# HELP reeve_tokens_total Tokens consumed, by direction.\n# TYPE reeve_tokens_total counter\n"); err != nil {
		return err
	}
	for _, name := range models {
		m := byModel[name]
		if err := write("reeve_tokens_total{model=%q,direction=\"input\"} %d\n", name, m.inputTokens); err != nil {
			return err
		}
		if err := write("reeve_tokens_total{model=%q,direction=\"output\"} %d\n", name, m.outputTokens); err != nil {
			return err
		}
	}

	if err := write("# HELP reeve_request_latency_seconds_sum Cumulative request latency.\n# TYPE reeve_request_latency_seconds_sum counter\n"); err != nil {
		return err
	}
	for _, name := range models {
		if err := write("reeve_request_latency_seconds_sum{model=%q} %.3f\n", name, byModel[name].latencySum.Seconds()); err != nil {
			return err
		}
	}

	return nil
}
