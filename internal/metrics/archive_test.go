package metrics

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(filepath.Join(t.TempDir(), "metrics.db"), nil)
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveRecordAndRecent(t *testing.T) {
	a := newTestArchive(t)

	a.Record(Sample{
		Model:     "qwen3:4b",
		Latency:   120 * time.Millisecond,
		Success:   true,
		Tokens:    &TokenUsage{Input: 11, Output: 42},
		Timestamp: time.Now(),
	})
	a.Record(Sample{
		Model:     "qwen3:4b",
		Latency:   80 * time.Millisecond,
		Success:   false,
		Error:     "connection refused",
		Timestamp: time.Now().Add(time.Second),
	})

	got, err := a.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// Newest first.
	if got[0].Error != "connection refused" {
		t.Errorf("first sample = %+v, want the failure", got[0])
	}
	if got[1].Tokens == nil || got[1].Tokens.Output != 42 {
		t.Errorf("token usage not round-tripped: %+v", got[1].Tokens)
	}
	// The failed sample reported no usage; it must come back nil, not zero.
	if got[0].Tokens != nil {
		t.Errorf("absent tokens became %+v", got[0].Tokens)
	}
}

func TestArchiveCount(t *testing.T) {
	a := newTestArchive(t)
	for i := 0; i < 5; i++ {
		a.Record(Sample{Model: "m", Success: true, Timestamp: time.Now()})
	}

	n, err := a.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Errorf("count = %d, want 5", n)
	}
}

func TestCollectorWritesThroughToArchive(t *testing.T) {
	a := newTestArchive(t)
	c := NewCollector(10)
	c.SetArchive(a)

	c.Record(Sample{Model: "m", Success: true})

	n, err := a.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("archived count = %d, want 1", n)
	}
}
