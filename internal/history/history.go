// Package history provides bounded, thread-safe conversation memory.
//
// A Buffer records the turns of one conversation in insertion order up
// to a fixed capacity. Once full, appending evicts the oldest turn.
// This is a deliberate recency-biased memory policy, not an error
// condition: old context ages out silently so the conversation can
// continue indefinitely in constant space.
package history

import (
	"fmt"
	"sync"
)

// Turn roles. Tool results use RoleTool so providers can distinguish
// them from ordinary user text.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role    string
	Content string
}

// Record is the plain export/import form of a Turn.
type Record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Buffer is a fixed-capacity ring of conversation turns. All methods
// are safe for concurrent use, though a Buffer is normally owned by a
// single conversation session.
type Buffer struct {
	mu    sync.Mutex
	turns []Turn // ring storage, len == capacity
	start int    // index of oldest turn
	count int
}

// NewBuffer creates a Buffer holding at most capacity turns.
// Non-positive capacities are a configuration error.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	return &Buffer{turns: make([]Turn, capacity)}, nil
}

// Add appends a turn, evicting the oldest if the buffer is full.
// Content must be non-empty; use AddToolResult for tool output, which
// may legitimately be empty.
func (b *Buffer) Add(role, content string) error {
	if content == "" {
		return fmt.Errorf("empty content for role %q", role)
	}
	b.push(Turn{Role: role, Content: content})
	return nil
}

// AddSystem appends a system turn.
func (b *Buffer) AddSystem(content string) error { return b.Add(RoleSystem, content) }

// AddUser appends a user turn.
func (b *Buffer) AddUser(content string) error { return b.Add(RoleUser, content) }

// AddAssistant appends an assistant turn.
func (b *Buffer) AddAssistant(content string) error { return b.Add(RoleAssistant, content) }

// AddToolResult appends a tool-result turn. Unlike Add, empty content
// is allowed — a tool may truthfully return nothing.
func (b *Buffer) AddToolResult(content string) {
	b.push(Turn{Role: RoleTool, Content: content})
}

func (b *Buffer) push(t Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.turns) {
		// Full: overwrite the oldest slot and advance the ring start.
		b.turns[b.start] = t
		b.start = (b.start + 1) % len(b.turns)
		return
	}
	b.turns[(b.start+b.count)%len(b.turns)] = t
	b.count++
}

// Turns returns a copy of all turns, oldest first.
func (b *Buffer) Turns() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Turn, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.turns[(b.start+i)%len(b.turns)]
	}
	return out
}

// Len returns the number of turns currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return len(b.turns)
}

// Clear removes all turns.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
	for i := range b.turns {
		b.turns[i] = Turn{}
	}
}

// Export returns the buffer contents as plain records, oldest first.
// The result is independent of the buffer and safe to serialize.
func (b *Buffer) Export() []Record {
	turns := b.Turns()
	out := make([]Record, len(turns))
	for i, t := range turns {
		out[i] = Record{Role: t.Role, Content: t.Content}
	}
	return out
}

// Import replaces the buffer contents with the given records in order.
// If there are more records than capacity, only the most recent fit —
// the same eviction rule as live appends.
func (b *Buffer) Import(records []Record) {
	b.Clear()
	for _, r := range records {
		b.push(Turn{Role: r.Role, Content: r.Content})
	}
}
