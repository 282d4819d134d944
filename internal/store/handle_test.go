package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRepo struct {
	Repository
}

func (fakeRepo) Close() error { return nil }

func TestAcquireOpensOnce(t *testing.T) {
	var opens atomic.Int32
	h := NewHandle(func(ctx context.Context) (Repository, error) {
		opens.Add(1)
		return fakeRepo{}, nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Acquire(ctx); err != nil {
				t.Errorf("acquire failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := opens.Load(); got != 1 {
		t.Fatalf("expected exactly one open, got %d", got)
	}
}

func TestAcquireRetriesWithBackoff(t *testing.T) {
	var opens atomic.Int32
	h := NewHandle(func(ctx context.Context) (Repository, error) {
		if opens.Add(1) < 3 {
			return nil, errors.New("disk busy")
		}
		return fakeRepo{}, nil
	}).WithRetryPolicy(3, time.Millisecond, 3)

	if _, err := h.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire to succeed on third attempt: %v", err)
	}
	if got := opens.Load(); got != 3 {
		t.Fatalf("expected 3 open attempts, got %d", got)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	var opens atomic.Int32
	h := NewHandle(func(ctx context.Context) (Repository, error) {
		opens.Add(1)
		return nil, errors.New("corrupt store")
	}).WithRetryPolicy(2, time.Millisecond, 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.Acquire(ctx); !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("cycle %d: expected ErrStoreUnavailable, got %v", i, err)
		}
	}

	attemptsBefore := opens.Load()
	_, err := h.Acquire(ctx)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after threshold, got %v", err)
	}
	if opens.Load() != attemptsBefore {
		t.Fatalf("open breaker must not attempt the store again")
	}
	if !h.Open() {
		t.Fatalf("breaker should report open")
	}
}

func TestResetClosesBreaker(t *testing.T) {
	fail := true
	h := NewHandle(func(ctx context.Context) (Repository, error) {
		if fail {
			return nil, errors.New("locked")
		}
		return fakeRepo{}, nil
	}).WithRetryPolicy(1, time.Millisecond, 1)

	ctx := context.Background()
	if _, err := h.Acquire(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := h.Acquire(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	fail = false
	h.Reset()
	if _, err := h.Acquire(ctx); err != nil {
		t.Fatalf("expected acquire to succeed after reset: %v", err)
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	fail := true
	h := NewHandle(func(ctx context.Context) (Repository, error) {
		if fail {
			return nil, errors.New("locked")
		}
		return fakeRepo{}, nil
	}).WithRetryPolicy(1, time.Millisecond, 2)

	ctx := context.Background()
	if _, err := h.Acquire(ctx); err == nil {
		t.Fatal("expected first acquire cycle to fail")
	}

	fail = false
	if _, err := h.Acquire(ctx); err != nil {
		t.Fatalf("expected acquire to succeed: %v", err)
	}
	if h.Open() {
		t.Fatal("breaker must stay closed after a successful open")
	}
}
