package history

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewBufferRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		if _, err := NewBuffer(capacity); err == nil {
			t.Errorf("NewBuffer(%d): expected error", capacity)
		}
	}
}

func TestAddRejectsEmptyContent(t *testing.T) {
	b, err := NewBuffer(4)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	if err := b.AddUser(""); err == nil {
		t.Error("expected error for empty user content")
	}
	// Tool results may be empty.
	b.AddToolResult("")
	if b.Len() != 1 {
		t.Errorf("len = %d, want 1", b.Len())
	}
}

func TestEvictionKeepsLastN(t *testing.T) {
	tests := []struct {
		capacity int
		appends  int
	}{
		{1, 5},
		{3, 3},
		{3, 7},
		{10, 25},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("cap%d_n%d", tt.capacity, tt.appends), func(t *testing.T) {
			b, err := NewBuffer(tt.capacity)
			if err != nil {
				t.Fatalf("new buffer: %v", err)
			}
			for i := 0; i < tt.appends; i++ {
				if err := b.AddUser(fmt.Sprintf("turn-%d", i)); err != nil {
					t.Fatalf("add: %v", err)
				}
			}

			turns := b.Turns()
			if len(turns) != tt.capacity {
				t.Fatalf("len = %d, want %d", len(turns), tt.capacity)
			}
			// Exactly the last N turns, in original relative order.
			first := tt.appends - tt.capacity
			for i, turn := range turns {
				want := fmt.Sprintf("turn-%d", first+i)
				if turn.Content != want {
					t.Errorf("turns[%d] = %q, want %q", i, turn.Content, want)
				}
			}
		})
	}
}

func TestTurnsReturnsCopy(t *testing.T) {
	b, _ := NewBuffer(4)
	b.AddUser("original")

	turns := b.Turns()
	turns[0].Content = "mutated"

	if got := b.Turns()[0].Content; got != "original" {
		t.Errorf("buffer mutated through returned slice: %q", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	b, _ := NewBuffer(10)
	b.AddSystem("be helpful")
	b.AddUser("what time is it?")
	b.AddAssistant("let me check")
	b.AddToolResult("14:32 UTC")
	b.AddAssistant("it is 14:32 UTC")

	exported := b.Export()

	b2, _ := NewBuffer(10)
	b2.Import(exported)

	got := b2.Turns()
	want := b.Turns()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestImportOverCapacityKeepsTail(t *testing.T) {
	b, _ := NewBuffer(2)
	b.Import([]Record{
		{Role: RoleUser, Content: "one"},
		{Role: RoleUser, Content: "two"},
		{Role: RoleUser, Content: "three"},
	})

	turns := b.Turns()
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Content != "two" || turns[1].Content != "three" {
		t.Errorf("got %v, want [two three]", turns)
	}
}

func TestClear(t *testing.T) {
	b, _ := NewBuffer(4)
	b.AddUser("hello")
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", b.Len())
	}
	// Buffer remains usable after Clear.
	b.AddUser("again")
	if b.Len() != 1 {
		t.Errorf("len = %d, want 1", b.Len())
	}
}

func TestConcurrentAppends(t *testing.T) {
	b, _ := NewBuffer(16)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.AddUser(fmt.Sprintf("g%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	if got := b.Len(); got != 16 {
		t.Errorf("len = %d, want capacity 16", got)
	}
}
