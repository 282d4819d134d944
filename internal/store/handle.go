package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// OpenFunc opens the underlying store. It is called at most once per
// Acquire attempt cycle; implementations must verify the store is usable
// (schema present) before returning.
type OpenFunc func(ctx context.Context) (Repository, error)

// Handle owns the single connection to the local durable store.
//
// Concurrent Acquire calls converge on one in-flight open: the first
// caller runs the retry loop under the mutex, later callers block on the
// same mutex and observe the result. After openFailures crosses the
// breaker threshold every Acquire fails fast with ErrCircuitOpen until
// Reset is called (restart semantics; no half-open probing).
type Handle struct {
	mu   sync.Mutex
	open OpenFunc
	repo Repository

	maxAttempts  int
	baseBackoff  time.Duration
	breakerLimit int
	openFailures int
	breakerOpen  bool
}

func NewHandle(open OpenFunc) *Handle {
	return &Handle{
		open:         open,
		maxAttempts:  3,
		baseBackoff:  200 * time.Millisecond,
		breakerLimit: 3,
	}
}

// WithRetryPolicy overrides the attempt bound, backoff base and breaker
// threshold. Zero values keep the defaults.
func (h *Handle) WithRetryPolicy(maxAttempts int, baseBackoff time.Duration, breakerLimit int) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if maxAttempts > 0 {
		h.maxAttempts = maxAttempts
	}
	if baseBackoff > 0 {
		h.baseBackoff = baseBackoff
	}
	if breakerLimit > 0 {
		h.breakerLimit = breakerLimit
	}
	return h
}

// Acquire returns the ready repository, opening it on first use.
func (h *Handle) Acquire(ctx context.Context) (Repository, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.repo != nil {
		return h.repo, nil
	}
	if h.breakerOpen {
		return nil, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := h.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
			}
		}

		repo, err := h.open(ctx)
		if err == nil {
			h.repo = repo
			h.openFailures = 0
			return repo, nil
		}
		lastErr = err
		log.Printf("[store] open attempt %d/%d failed: %v", attempt+1, h.maxAttempts, err)
	}

	h.openFailures++
	if h.openFailures >= h.breakerLimit {
		h.breakerOpen = true
		log.Printf("[store] breaker open after %d failed acquire cycles", h.openFailures)
	}
	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// Reset closes the breaker and forgets past failures. It exists for the
// process-restart path and for tests; nothing calls it automatically.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakerOpen = false
	h.openFailures = 0
}

// Open reports whether the breaker is currently open.
func (h *Handle) Open() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.breakerOpen
}

// Close releases the underlying store if one was opened.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.repo == nil {
		return nil
	}
	err := h.repo.Close()
	h.repo = nil
	return err
}
