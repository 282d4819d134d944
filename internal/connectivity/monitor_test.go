package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"posbridge/internal/domain"
)

type fakeProber struct {
	mu sync.Mutex
	up bool
}

func (p *fakeProber) Ping(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.up
}

func (p *fakeProber) set(up bool) {
	p.mu.Lock()
	p.up = up
	p.mu.Unlock()
}

func TestStartsOfflineUntilFirstProbe(t *testing.T) {
	m := NewMonitor(&fakeProber{up: true}, time.Minute, nil)
	if !m.Offline() {
		t.Fatal("monitor must start offline before any probe succeeded")
	}

	m.Probe(context.Background())
	if m.Offline() {
		t.Fatal("expected online after successful probe")
	}
}

func TestManualOverrideForcesOffline(t *testing.T) {
	m := NewMonitor(&fakeProber{up: true}, time.Minute, nil)
	m.Probe(context.Background())

	m.SetManualOverride(true)
	if !m.Offline() {
		t.Fatal("manual override must force offline")
	}

	state := m.State()
	if !state.ManualOverride || !state.LastProbeOK {
		t.Fatalf("unexpected state: %+v", state)
	}

	m.SetManualOverride(false)
	if m.Offline() {
		t.Fatal("clearing the override must restore online without a new probe")
	}
}

func TestReportedLinkDownForcesOffline(t *testing.T) {
	m := NewMonitor(&fakeProber{up: true}, time.Minute, nil)
	m.Probe(context.Background())

	m.SetReportedOnline(false)
	if !m.Offline() {
		t.Fatal("reported link down must force offline")
	}
	m.SetReportedOnline(true)
	if m.Offline() {
		t.Fatal("expected online once link is reported up again")
	}
}

func TestTransitionsEmitNotifications(t *testing.T) {
	prober := &fakeProber{up: true}

	var mu sync.Mutex
	var changes []bool
	m := NewMonitor(prober, time.Minute, func(state domain.OfflineState) {
		mu.Lock()
		changes = append(changes, state.Offline)
		mu.Unlock()
	})

	ctx := context.Background()
	m.Probe(ctx) // offline -> online
	m.Probe(ctx) // no transition, no event
	prober.set(false)
	m.Probe(ctx) // online -> offline

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("expected 2 transition events, got %d", len(changes))
	}
	if changes[0] != false || changes[1] != true {
		t.Fatalf("unexpected transition order: %v", changes)
	}
}
