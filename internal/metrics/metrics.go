// Package metrics keeps per-operation counters and timings for the
// read-metrics operation. Nothing here is authoritative state; it resets
// with the process.
package metrics

import (
	"sync"
	"time"
)

type opStats struct {
	count     int64
	errors    int64
	totalDur  time.Duration
	lastDur   time.Duration
	lastError string
}

// OpSnapshot is the externally visible shape of one operation's stats.
type OpSnapshot struct {
	Count     int64   `json:"count"`
	Errors    int64   `json:"errors"`
	AvgMillis float64 `json:"avg_ms"`
	LastMs    float64 `json:"last_ms"`
	LastError string  `json:"last_error,omitempty"`
}

type Recorder struct {
	mu  sync.Mutex
	ops map[string]*opStats
}

func NewRecorder() *Recorder {
	return &Recorder{ops: make(map[string]*opStats)}
}

// Observe records one completed operation with its duration and outcome.
func (r *Recorder) Observe(op string, dur time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.ops[op]
	if !ok {
		stats = &opStats{}
		r.ops[op] = stats
	}
	stats.count++
	stats.totalDur += dur
	stats.lastDur = dur
	if err != nil {
		stats.errors++
		stats.lastError = err.Error()
	}
}

func (r *Recorder) Snapshot() map[string]OpSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]OpSnapshot, len(r.ops))
	for op, stats := range r.ops {
		snap := OpSnapshot{
			Count:     stats.count,
			Errors:    stats.errors,
			LastMs:    float64(stats.lastDur.Microseconds()) / 1000,
			LastError: stats.lastError,
		}
		if stats.count > 0 {
			snap.AvgMillis = float64(stats.totalDur.Microseconds()) / float64(stats.count) / 1000
		}
		out[op] = snap
	}
	return out
}
