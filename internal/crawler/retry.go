package crawler

import (
	"context"
	"time"
)

// RetryState is the phase of one bounded fetch-retry cycle.
type RetryState int

const (
	RetryIdle RetryState = iota
	RetryAttempting
	RetrySucceeded
	RetryExhausted
)

// retrier drives the bounded fetch-retry cycle:
// Idle -> Attempting(n) -> Succeeded | Exhausted. The delay between attempts
// grows linearly (baseDelay x attempt number) and waits on a timer so the
// cycle can be cancelled through the context.
type retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	attempt     int
	state       RetryState
}

func newRetrier(maxAttempts int, baseDelay time.Duration) *retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &retrier{maxAttempts: maxAttempts, baseDelay: baseDelay, state: RetryIdle}
}

// Begin records the start of the next attempt and returns its 1-based number.
func (r *retrier) Begin() int {
	r.attempt++
	r.state = RetryAttempting
	return r.attempt
}

// Succeed marks the cycle finished successfully.
func (r *retrier) Succeed() { r.state = RetrySucceeded }

// Backoff waits the linear delay for the attempt that just failed and reports
// whether another attempt is allowed. It returns false once attempts are
// exhausted or the context is cancelled, transitioning to Exhausted.
func (r *retrier) Backoff(ctx context.Context) bool {
	if r.attempt >= r.maxAttempts {
		r.state = RetryExhausted
		return false
	}
	timer := time.NewTimer(r.baseDelay * time.Duration(r.attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.state = RetryExhausted
		return false
	case <-timer.C:
	}
	r.state = RetryAttempting
	return true
}

// State exposes the current phase, mostly for tests and logging.
func (r *retrier) State() RetryState { return r.state }
