package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestRecorderAggregates(t *testing.T) {
	r := NewRecorder()

	r.Observe("ingest_items", 10*time.Millisecond, nil)
	r.Observe("ingest_items", 30*time.Millisecond, nil)
	r.Observe("enqueue_transaction", 5*time.Millisecond, errors.New("boom"))

	snap := r.Snapshot()

	ingest := snap["ingest_items"]
	if ingest.Count != 2 {
		t.Fatalf("expected count 2, got %d", ingest.Count)
	}
	if ingest.Errors != 0 {
		t.Fatalf("expected no errors, got %d", ingest.Errors)
	}
	if ingest.AvgMillis < 19 || ingest.AvgMillis > 21 {
		t.Fatalf("expected avg around 20ms, got %f", ingest.AvgMillis)
	}

	enqueue := snap["enqueue_transaction"]
	if enqueue.Errors != 1 || enqueue.LastError != "boom" {
		t.Fatalf("unexpected error stats: %+v", enqueue)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRecorder()
	r.Observe("search_items", time.Millisecond, nil)

	first := r.Snapshot()
	r.Observe("search_items", time.Millisecond, nil)

	if first["search_items"].Count != 1 {
		t.Fatal("snapshot must not track later observations")
	}
	if r.Snapshot()["search_items"].Count != 2 {
		t.Fatal("recorder must keep counting after a snapshot")
	}
}
