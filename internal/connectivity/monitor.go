// Package connectivity tracks whether the POS server is effectively
// reachable. Offline is the OR of three signals: the user's manual
// override, the host-reported link state pushed by the collaborator, and
// the outcome of the last liveness probe.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"

	"posbridge/internal/domain"
)

// DefaultProbeInterval is how often the liveness probe fires. The probe
// keeps running under manual override so clearing the override takes
// effect without waiting for a fresh probe.
const DefaultProbeInterval = 30 * time.Second

type Prober interface {
	Ping(ctx context.Context) bool
}

type Monitor struct {
	mu             sync.Mutex
	prober         Prober
	interval       time.Duration
	onChange       func(domain.OfflineState)
	manualOverride bool
	reportedOnline bool
	lastProbeOK    bool
	lastProbeAt    time.Time
}

// NewMonitor builds a monitor that starts pessimistic: no probe has
// succeeded yet, so the engine begins offline until the first probe.
func NewMonitor(prober Prober, interval time.Duration, onChange func(domain.OfflineState)) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		prober:         prober,
		interval:       interval,
		onChange:       onChange,
		reportedOnline: true,
	}
}

// Run probes immediately, then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one liveness check and returns whether the server answered.
func (m *Monitor) Probe(ctx context.Context) bool {
	ok := m.prober.Ping(ctx)
	m.update(func() {
		m.lastProbeOK = ok
		m.lastProbeAt = time.Now()
	})
	return ok
}

func (m *Monitor) SetManualOverride(offline bool) {
	m.update(func() { m.manualOverride = offline })
}

func (m *Monitor) SetReportedOnline(online bool) {
	m.update(func() { m.reportedOnline = online })
}

func (m *Monitor) State() domain.OfflineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Offline reports the current effective offline state.
func (m *Monitor) Offline() bool {
	return m.State().Offline
}

func (m *Monitor) stateLocked() domain.OfflineState {
	return domain.OfflineState{
		Offline:        m.manualOverride || !m.reportedOnline || !m.lastProbeOK,
		ManualOverride: m.manualOverride,
		ReportedOnline: m.reportedOnline,
		LastProbeOK:    m.lastProbeOK,
		LastProbeAt:    m.lastProbeAt,
	}
}

// update applies a mutation and emits a change notification if the
// effective offline state flipped.
func (m *Monitor) update(mutate func()) {
	m.mu.Lock()
	before := m.stateLocked().Offline
	mutate()
	after := m.stateLocked()
	m.mu.Unlock()

	if before != after.Offline && m.onChange != nil {
		if after.Offline {
			log.Printf("[connectivity] server unreachable, switching to offline mode")
		} else {
			log.Printf("[connectivity] server reachable, back online")
		}
		m.onChange(after)
	}
}
