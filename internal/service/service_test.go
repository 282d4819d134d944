package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"posbridge/internal/cache"
	"posbridge/internal/domain"
	"posbridge/internal/metrics"
	"posbridge/internal/store"
	"posbridge/internal/store/sqlite"
)

type staticSource struct {
	repo store.Repository
}

func (s staticSource) Acquire(_ context.Context) (store.Repository, error) {
	return s.repo, nil
}

func newTestService(t *testing.T) (*Service, *cache.MemoryQueryCache) {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	c := cache.NewMemoryQueryCache(64, time.Minute)
	return New(staticSource{repo: repo}, c, metrics.NewRecorder(), "Standard Selling"), c
}

func itemRecords(records ...string) []domain.ItemRecord {
	out := make([]domain.ItemRecord, 0, len(records))
	for _, code := range records {
		out = append(out, domain.ItemRecord{ItemCode: code, ItemName: "Item " + code})
	}
	return out
}

func TestIngestItemsReportsProcessedCount(t *testing.T) {
	svc, _ := newTestService(t)

	processed, err := svc.IngestItems(context.Background(), itemRecords("A1", "A2", "A3"))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if processed != 3 {
		t.Fatalf("expected 3 processed, got %d", processed)
	}
}

func TestIngestItemsEmptyBatchIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)

	processed, err := svc.IngestItems(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty ingest must succeed: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected 0 processed, got %d", processed)
	}
}

func TestIngestItemsDefaultsPriceList(t *testing.T) {
	svc, _ := newTestService(t)

	records := []domain.ItemRecord{
		{ItemCode: "A1", ItemName: "With price", Rate: 12.5},
	}
	if _, err := svc.IngestItems(context.Background(), records); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	// The derived price must land under the configured default list, not
	// be dropped.
	items := svc.SearchItems(context.Background(), "A1", 5)
	if len(items) != 1 {
		t.Fatalf("expected ingested item to be searchable, got %d results", len(items))
	}
}

func TestIngestInvalidatesSearchCache(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	if _, err := svc.IngestItems(ctx, itemRecords("MILK-01")); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	first := svc.SearchItems(ctx, "milk", 10)
	if len(first) != 1 {
		t.Fatalf("expected 1 result, got %d", len(first))
	}
	if _, ok, _ := c.Get(ctx, "search:milk:10"); !ok {
		t.Fatal("expected search result to be cached")
	}

	if _, err := svc.IngestItems(ctx, itemRecords("MILK-02")); err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "search:milk:10"); ok {
		t.Fatal("ingestion must invalidate the search prefix")
	}

	second := svc.SearchItems(ctx, "milk", 10)
	if len(second) != 2 {
		t.Fatalf("expected refreshed search to see 2 items, got %d", len(second))
	}
}

func TestGetItemCachesUnderItemPrefix(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	if _, err := svc.IngestItems(ctx, itemRecords("MILK-01")); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	item, err := svc.GetItem(ctx, "MILK-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.ItemName != "Item MILK-01" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if _, ok, _ := c.Get(ctx, "items:MILK-01"); !ok {
		t.Fatal("expected looked-up item to be cached under the item prefix")
	}

	// A catalog write must drop the cached copy so the next lookup sees
	// the new name.
	refreshed := []domain.ItemRecord{{ItemCode: "MILK-01", ItemName: "Fresh Milk"}}
	if _, err := svc.IngestItems(ctx, refreshed); err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "items:MILK-01"); ok {
		t.Fatal("ingestion must invalidate the item prefix")
	}
	item, err = svc.GetItem(ctx, "MILK-01")
	if err != nil {
		t.Fatalf("get item after refresh failed: %v", err)
	}
	if item.ItemName != "Fresh Milk" {
		t.Fatalf("expected refreshed name, got %q", item.ItemName)
	}

	if _, err := svc.GetItem(ctx, "NOPE"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}
}

func TestEnqueueRejectsEmptyPayload(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	before, err := svc.CountTransactions(ctx, true)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}

	_, err = svc.EnqueueTransaction(ctx, json.RawMessage(`{"customer":"C-1","items":[]}`))
	if !errors.Is(err, store.ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}

	after, err := svc.CountTransactions(ctx, true)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if after != before {
		t.Fatalf("queue count changed on rejected enqueue: %d -> %d", before, after)
	}
}

func TestEnqueueDefaultsBookkeeping(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tx, err := svc.EnqueueTransaction(ctx, json.RawMessage(`{"items":[{"item_code":"A1","qty":1}]}`))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if tx.ID == "" {
		t.Fatal("expected generated transaction id")
	}
	if tx.Synced {
		t.Fatal("new transaction must not be synced")
	}
	if tx.RetryCount != 0 {
		t.Fatalf("expected retry_count 0, got %d", tx.RetryCount)
	}

	count, err := svc.CountTransactions(ctx, true)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected unsynced count 1, got %d", count)
	}
}

// Connectivity returning does not touch the queue: only an explicit
// external caller marks or deletes a queued sale.
func TestQueueUntouchedUntilExplicitDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tx, err := svc.EnqueueTransaction(ctx, json.RawMessage(`{"items":[{"item_code":"A1","qty":1}]}`))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := svc.MarkTransactionRetry(ctx, tx.ID); err != nil {
		t.Fatalf("mark retry failed: %v", err)
	}

	got, err := svc.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Synced {
		t.Fatal("retry must not flip synced")
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", got.RetryCount)
	}

	if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.GetTransaction(ctx, tx.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestApplyStockUpdatesSkipsInvalidRows(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.IngestItems(ctx, itemRecords("A1")); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	qty := 4.0
	applied, err := svc.ApplyStockUpdates(ctx, []domain.StockQuantity{
		{ItemCode: "A1", Warehouse: "Main - WH", ActualQty: &qty},
		{ItemCode: "", Warehouse: "Main - WH", ActualQty: &qty},
		{ItemCode: "A1", Warehouse: "", ActualQty: &qty},
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied, got %d", applied)
	}
}

func TestCacheReadyAndStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if svc.CacheReady(ctx) {
		t.Fatal("empty replica must not report ready")
	}

	if _, err := svc.IngestItems(ctx, itemRecords("A1", "A2")); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := svc.IngestCustomers(ctx, []domain.Customer{{Name: "C-1", CustomerName: "Jo"}}); err != nil {
		t.Fatalf("ingest customers failed: %v", err)
	}
	if !svc.CacheReady(ctx) {
		t.Fatal("replica with items must report ready")
	}

	stats := svc.Stats(ctx)
	if stats.Items != 2 || stats.Customers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LastItemSync == nil {
		t.Fatal("expected last item sync timestamp")
	}
}

func TestSearchCustomersUsesCache(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	if _, err := svc.IngestCustomers(ctx, []domain.Customer{
		{Name: "C-1", CustomerName: "Jo Lestari", MobileNo: "0812"},
	}); err != nil {
		t.Fatalf("ingest customers failed: %v", err)
	}

	found := svc.SearchCustomers(ctx, "lestari", 10)
	if len(found) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(found))
	}
	if _, ok, _ := c.Get(ctx, "customers:lestari:10"); !ok {
		t.Fatal("expected customer search result to be cached")
	}

	if err := svc.ClearCustomerCache(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "customers:lestari:10"); ok {
		t.Fatal("clearing customers must invalidate the customer prefix")
	}
	if got := svc.SearchCustomers(ctx, "lestari", 10); len(got) != 0 {
		t.Fatalf("expected no customers after clear, got %d", len(got))
	}
}

func TestMetricsRecordOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.IngestItems(ctx, itemRecords("A1")); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	svc.SearchItems(ctx, "a1", 5)

	snapshot := svc.Metrics()
	if snapshot["ingest_items"].Count != 1 {
		t.Fatalf("expected ingest_items count 1, got %d", snapshot["ingest_items"].Count)
	}
	if snapshot["search_items"].Count != 1 {
		t.Fatalf("expected search_items count 1, got %d", snapshot["search_items"].Count)
	}
}
