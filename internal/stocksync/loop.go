// Package stocksync runs the periodic background refresh of tracked
// stock levels from the POS server.
package stocksync

import (
	"context"
	"log"
	"sync"
	"time"

	"posbridge/internal/domain"
)

const (
	DefaultInterval = 60 * time.Second
	// MinInterval is the floor for a configured interval; anything lower
	// would hammer the server from every terminal.
	MinInterval = 10 * time.Second
)

// Fetcher pulls current quantities from the server.
type Fetcher interface {
	StockQuantities(ctx context.Context, warehouse string, itemCodes []string) ([]domain.StockQuantity, error)
}

// Applier lands fetched quantities in the local replica.
type Applier interface {
	ApplyStockUpdates(ctx context.Context, quantities []domain.StockQuantity) (int, error)
}

// Callbacks receive tick outcomes; both are optional.
type Callbacks struct {
	OnComplete func(applied int, dur time.Duration)
	OnError    func(err error)
}

type Loop struct {
	fetcher   Fetcher
	applier   Applier
	isOffline func() bool
	callbacks Callbacks

	mu      sync.Mutex
	cfg     domain.SyncConfig
	running bool
	cancel  context.CancelFunc
	lastRun *time.Time
	lastErr string
	runs    int64
	skips   int64

	// tickMu is the single-flight guard: a tick that cannot take it is
	// skipped instead of queued, so a slow round trip never stacks
	// concurrent fetches.
	tickMu sync.Mutex
}

func NewLoop(fetcher Fetcher, applier Applier, isOffline func() bool, callbacks Callbacks) *Loop {
	return &Loop{
		fetcher:   fetcher,
		applier:   applier,
		isOffline: isOffline,
		callbacks: callbacks,
		cfg:       domain.SyncConfig{Interval: DefaultInterval},
	}
}

// Configure replaces the reconciliation target. If the loop is running it
// restarts immediately with the new parameters instead of waiting for the
// next tick of the old timer.
func (l *Loop) Configure(ctx context.Context, cfg domain.SyncConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}

	l.mu.Lock()
	l.cfg = cfg
	wasRunning := l.running
	l.mu.Unlock()

	if wasRunning {
		l.Stop()
		l.Start(ctx)
	}
}

// Start launches the timer goroutine. Starting a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	interval := l.cfg.Interval
	l.mu.Unlock()

	log.Printf("[stocksync] started (interval %s)", interval)
	go l.run(loopCtx, interval)
}

func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.running = false
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	log.Printf("[stocksync] stopped")
}

func (l *Loop) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Trigger(ctx)
		}
	}
}

// Trigger runs one reconciliation pass now. Shares the single-flight
// guard with the timer, so a manual trigger during a slow tick is
// skipped the same way overlapping ticks are.
func (l *Loop) Trigger(ctx context.Context) {
	if !l.tickMu.TryLock() {
		l.mu.Lock()
		l.skips++
		l.mu.Unlock()
		log.Printf("[stocksync] previous run still in progress, skipping tick")
		return
	}
	defer l.tickMu.Unlock()

	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	if cfg.Empty() {
		return
	}
	if l.isOffline != nil && l.isOffline() {
		return
	}

	started := time.Now()
	quantities, err := l.fetcher.StockQuantities(ctx, cfg.Warehouse, cfg.ItemCodes)
	if err != nil {
		l.finish(0, err)
		return
	}

	applied, err := l.applier.ApplyStockUpdates(ctx, quantities)
	if err != nil {
		l.finish(0, err)
		return
	}
	l.finish(applied, nil)
	log.Printf("[stocksync] applied %d stock updates in %s", applied, time.Since(started).Round(time.Millisecond))

	if l.callbacks.OnComplete != nil {
		l.callbacks.OnComplete(applied, time.Since(started))
	}
}

func (l *Loop) finish(applied int, err error) {
	now := time.Now()
	l.mu.Lock()
	l.runs++
	l.lastRun = &now
	if err != nil {
		l.lastErr = err.Error()
	} else {
		l.lastErr = ""
	}
	l.mu.Unlock()

	if err != nil {
		log.Printf("[stocksync] run failed: %v", err)
		if l.callbacks.OnError != nil {
			l.callbacks.OnError(err)
		}
	}
}

func (l *Loop) Status() domain.SyncStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.SyncStatus{
		Running:    l.running,
		Config:     l.cfg,
		LastRun:    l.lastRun,
		LastError:  l.lastErr,
		TotalRuns:  l.runs,
		TotalSkips: l.skips,
	}
}
