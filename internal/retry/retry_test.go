package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fastPolicy keeps test runtime negligible.
func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:   attempts,
		InitialDelay:  time.Microsecond,
		BackoffFactor: 1.0,
	}
}

func TestSucceedsAfterFailures(t *testing.T) {
	errFlaky := errors.New("flaky")

	for _, k := range []int{0, 1, 2} {
		t.Run(fmt.Sprintf("fails_%d_times", k), func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), nil, fastPolicy(k+2), func(ctx context.Context) (string, error) {
				calls++
				if calls <= k {
					return "", errFlaky
				}
				return "ok", nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "ok" {
				t.Errorf("result = %q, want ok", got)
			}
			if calls != k+1 {
				t.Errorf("invocations = %d, want %d", calls, k+1)
			}
		})
	}
}

func TestExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	sentinel := errors.New("still down")
	wrapped := fmt.Errorf("call provider: %w", sentinel)

	calls := 0
	_, err := Do(context.Background(), nil, fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, wrapped
	})

	if calls != 3 {
		t.Errorf("invocations = %d, want 3", calls)
	}
	if err != wrapped {
		t.Errorf("error identity lost: got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Error("cause chain broken")
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")

	calls := 0
	p := fastPolicy(5)
	p.RetryIf = func(err error) bool { return errors.Is(err, transient) }

	_, err := Do(context.Background(), nil, p, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	if calls != 1 {
		t.Errorf("invocations = %d, want 1", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("error = %v, want fatal", err)
	}
}

func TestOnRetryCallback(t *testing.T) {
	var attempts []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}

	boom := errors.New("boom")
	_, _ = Do(context.Background(), nil, p, func(ctx context.Context) (int, error) {
		return 0, boom
	})

	// Called before each sleep: after attempts 1 and 2, not after the last.
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("callback attempts = %v, want [1 2]", attempts)
	}
}

func TestOnRetryPanicIsContained(t *testing.T) {
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error) {
		panic("observer bug")
	}

	calls := 0
	_, err := Do(context.Background(), nil, p, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("once")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("panicking callback aborted retries: %v", err)
	}
	if calls != 2 {
		t.Errorf("invocations = %d, want 2", calls)
	}
}

func TestInvalidPolicy(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
	}{
		{"zero attempts", Policy{MaxAttempts: 0, BackoffFactor: 2}},
		{"negative delay", Policy{MaxAttempts: 3, InitialDelay: -time.Second, BackoffFactor: 2}},
		{"factor below one", Policy{MaxAttempts: 3, BackoffFactor: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := Do(context.Background(), nil, tt.p, func(ctx context.Context) (int, error) {
				calls++
				return 0, nil
			})
			if err == nil {
				t.Error("expected policy validation error")
			}
			if calls != 0 {
				t.Errorf("fn invoked %d times before validation", calls)
			}
		})
	}
}

func TestContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{
		MaxAttempts:   5,
		InitialDelay:  time.Hour, // would hang without cancellation
		BackoffFactor: 2,
	}

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, nil, p, func(ctx context.Context) (int, error) {
			return 0, errors.New("down")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := jittered(base, true)
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±10%% of %v", d, base)
		}
	}
	if d := jittered(base, false); d != base {
		t.Errorf("jitter disabled but delay changed: %v", d)
	}
}
