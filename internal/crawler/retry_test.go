package crawler

import (
	"context"
	"testing"
	"time"
)

func TestRetrierLifecycle(t *testing.T) {
	t.Parallel()
	r := newRetrier(3, time.Millisecond)
	if r.State() != RetryIdle {
		t.Fatalf("initial state = %v, want RetryIdle", r.State())
	}

	ctx := context.Background()
	if n := r.Begin(); n != 1 {
		t.Fatalf("first attempt = %d, want 1", n)
	}
	if r.State() != RetryAttempting {
		t.Fatalf("state after Begin = %v, want RetryAttempting", r.State())
	}
	if !r.Backoff(ctx) {
		t.Fatalf("expected a second attempt to be allowed")
	}
	if n := r.Begin(); n != 2 {
		t.Fatalf("second attempt = %d, want 2", n)
	}
	if !r.Backoff(ctx) {
		t.Fatalf("expected a third attempt to be allowed")
	}
	r.Begin()
	if r.Backoff(ctx) {
		t.Fatalf("attempts should be exhausted after 3")
	}
	if r.State() != RetryExhausted {
		t.Fatalf("state = %v, want RetryExhausted", r.State())
	}
}

func TestRetrierSucceed(t *testing.T) {
	t.Parallel()
	r := newRetrier(3, time.Millisecond)
	r.Begin()
	r.Succeed()
	if r.State() != RetrySucceeded {
		t.Fatalf("state = %v, want RetrySucceeded", r.State())
	}
}

func TestRetrierCancellation(t *testing.T) {
	t.Parallel()
	r := newRetrier(5, time.Minute)
	r.Begin()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- r.Backoff(ctx) }()
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("Backoff should report false on cancellation")
		}
	case <-time.After(time.Second):
		t.Fatalf("Backoff did not observe cancellation")
	}
	if r.State() != RetryExhausted {
		t.Fatalf("state = %v, want RetryExhausted", r.State())
	}
}

func TestRetrierLinearDelay(t *testing.T) {
	t.Parallel()
	base := 20 * time.Millisecond
	r := newRetrier(3, base)
	r.Begin()
	r.Backoff(context.Background()) // waits base x 1
	r.Begin()

	start := time.Now()
	r.Backoff(context.Background()) // waits base x 2
	if elapsed := time.Since(start); elapsed < 2*base {
		t.Fatalf("second backoff waited %v, want at least %v", elapsed, 2*base)
	}
}
