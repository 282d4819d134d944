// Package service is the engine facade the worker protocol dispatches
// into. Error policy: read paths log and degrade to empty results so a
// lookup never crashes the caller; write paths propagate after logging,
// because silently dropping a write is worse than surfacing it.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"posbridge/internal/cache"
	"posbridge/internal/domain"
	"posbridge/internal/metrics"
	"posbridge/internal/search"
	"posbridge/internal/store"
)

// RepoSource hands out the ready store; the durable handle implements it.
type RepoSource interface {
	Acquire(ctx context.Context) (store.Repository, error)
}

type Service struct {
	repos            RepoSource
	cache            cache.QueryCache
	recorder         *metrics.Recorder
	searcher         *search.Engine
	validate         *validator.Validate
	defaultPriceList string
}

func New(repos RepoSource, cacheStore cache.QueryCache, recorder *metrics.Recorder, defaultPriceList string) *Service {
	if cacheStore == nil {
		cacheStore = cache.NoopQueryCache{}
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	if defaultPriceList == "" {
		defaultPriceList = "Standard Selling"
	}
	return &Service{
		repos:            repos,
		cache:            cacheStore,
		recorder:         recorder,
		searcher:         search.NewEngine(repos, cacheStore),
		validate:         validator.New(),
		defaultPriceList: defaultPriceList,
	}
}

// --- ingestion -------------------------------------------------------------

// IngestItems writes a server snapshot of catalog items. Price sub-records
// are derived from the boundary records: a missing price list falls back to
// the configured default, a missing item code rejects only that price row.
func (s *Service) IngestItems(ctx context.Context, records []domain.ItemRecord) (int, error) {
	started := time.Now()
	if len(records) == 0 {
		return 0, nil
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return 0, s.failWrite("ingest_items", started, len(records), err)
	}

	now := time.Now().UTC()
	items := make([]domain.Item, 0, len(records))
	prices := make([]domain.Price, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.Item(now))

		if rec.Rate == 0 && rec.PriceList == "" {
			continue
		}
		price := domain.Price{
			PriceList: strings.TrimSpace(rec.PriceList),
			ItemCode:  strings.TrimSpace(rec.ItemCode),
			Rate:      rec.Rate,
			UpdatedAt: now,
		}
		if price.PriceList == "" {
			price.PriceList = s.defaultPriceList
		}
		if err := s.validate.Struct(price); err != nil {
			log.Printf("[service] rejecting price record (list=%q item=%q): %v", price.PriceList, price.ItemCode, err)
			continue
		}
		prices = append(prices, price)
	}

	processed, err := repo.BulkUpsertItems(ctx, items, prices)
	if err != nil {
		return 0, s.failWrite("ingest_items", started, len(records), err)
	}

	s.invalidate(ctx, cache.PrefixSearch, cache.PrefixItems)
	s.recorder.Observe("ingest_items", time.Since(started), nil)
	log.Printf("[service] ingested %d items (%d prices) in %s", processed, len(prices), time.Since(started).Round(time.Millisecond))
	return processed, nil
}

func (s *Service) IngestCustomers(ctx context.Context, customers []domain.Customer) (int, error) {
	started := time.Now()
	if len(customers) == 0 {
		return 0, nil
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return 0, s.failWrite("ingest_customers", started, len(customers), err)
	}

	processed, err := repo.BulkUpsertCustomers(ctx, customers)
	if err != nil {
		return 0, s.failWrite("ingest_customers", started, len(customers), err)
	}

	s.invalidate(ctx, cache.PrefixCustomers)
	s.recorder.Observe("ingest_customers", time.Since(started), nil)
	return processed, nil
}

func (s *Service) IngestPaymentMethods(ctx context.Context, methods []domain.PaymentMethods) (int, error) {
	started := time.Now()
	if len(methods) == 0 {
		return 0, nil
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return 0, s.failWrite("ingest_payment_methods", started, len(methods), err)
	}

	processed, err := repo.BulkUpsertPaymentMethods(ctx, methods)
	if err != nil {
		return 0, s.failWrite("ingest_payment_methods", started, len(methods), err)
	}

	s.recorder.Observe("ingest_payment_methods", time.Since(started), nil)
	return processed, nil
}

// --- search ----------------------------------------------------------------

// SearchItems never fails; internal errors degrade to an empty result.
func (s *Service) SearchItems(ctx context.Context, term string, limit int) []domain.Item {
	started := time.Now()
	items := s.searcher.SearchItems(ctx, term, limit)
	s.recorder.Observe("search_items", time.Since(started), nil)
	return items
}

// GetItem is the exact-code lookup behind a barcode scan. Found items
// are cached under the item prefix so ingestion invalidates them.
func (s *Service) GetItem(ctx context.Context, itemCode string) (*domain.Item, error) {
	started := time.Now()
	itemCode = strings.TrimSpace(itemCode)
	if itemCode == "" {
		return nil, store.ErrNotFound
	}

	cacheKey := cache.PrefixItems + itemCode
	if cached, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var item domain.Item
		if err := json.Unmarshal(cached, &item); err == nil {
			s.recorder.Observe("get_item", time.Since(started), nil)
			return &item, nil
		}
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		s.recorder.Observe("get_item", time.Since(started), err)
		return nil, err
	}
	item, err := repo.GetItem(ctx, itemCode)
	if err != nil {
		s.recorder.Observe("get_item", time.Since(started), err)
		return nil, err
	}

	if encoded, err := json.Marshal(item); err == nil {
		_ = s.cache.Put(ctx, cacheKey, encoded)
	}
	s.recorder.Observe("get_item", time.Since(started), nil)
	return item, nil
}

// SearchCustomers follows the same soft-fail contract as item search.
func (s *Service) SearchCustomers(ctx context.Context, term string, limit int) []domain.Customer {
	started := time.Now()
	if limit <= 0 {
		limit = 20
	}
	term = strings.TrimSpace(term)

	cacheKey := fmt.Sprintf("%s%s:%d", cache.PrefixCustomers, strings.ToLower(term), limit)
	if cached, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var customers []domain.Customer
		if err := json.Unmarshal(cached, &customers); err == nil {
			s.recorder.Observe("search_customers", time.Since(started), nil)
			return customers
		}
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		log.Printf("[service] customer search unavailable: %v", err)
		s.recorder.Observe("search_customers", time.Since(started), err)
		return []domain.Customer{}
	}

	customers, err := repo.SearchCustomers(ctx, term, limit)
	if err != nil {
		log.Printf("[service] customer search %q failed: %v", term, err)
		s.recorder.Observe("search_customers", time.Since(started), err)
		return []domain.Customer{}
	}
	if customers == nil {
		customers = []domain.Customer{}
	}

	if encoded, err := json.Marshal(customers); err == nil {
		_ = s.cache.Put(ctx, cacheKey, encoded)
	}
	s.recorder.Observe("search_customers", time.Since(started), nil)
	return customers
}

// --- offline transaction queue ---------------------------------------------

// EnqueueTransaction records a sale made while disconnected. Local stock
// is deliberately not decremented here: the server decrements on
// acceptance, and doing both would double count.
func (s *Service) EnqueueTransaction(ctx context.Context, payload json.RawMessage) (domain.QueuedTransaction, error) {
	started := time.Now()

	tx := domain.QueuedTransaction{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if tx.LineItemCount() == 0 {
		s.recorder.Observe("enqueue_transaction", time.Since(started), store.ErrEmptyPayload)
		return domain.QueuedTransaction{}, store.ErrEmptyPayload
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return domain.QueuedTransaction{}, s.failWrite("enqueue_transaction", started, 1, err)
	}
	if err := repo.EnqueueTransaction(ctx, tx); err != nil {
		return domain.QueuedTransaction{}, s.failWrite("enqueue_transaction", started, 1, err)
	}

	s.recorder.Observe("enqueue_transaction", time.Since(started), nil)
	return tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, unsyncedOnly bool) ([]domain.QueuedTransaction, error) {
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := repo.ListTransactions(ctx, unsyncedOnly)
	if err != nil {
		return nil, fmt.Errorf("list queued transactions: %w", err)
	}
	if txs == nil {
		txs = []domain.QueuedTransaction{}
	}
	return txs, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.QueuedTransaction, error) {
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetTransaction(ctx, id)
}

// DeleteTransaction removes a queued sale after the external sync caller
// confirmed server acceptance.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	started := time.Now()
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return s.failWrite("delete_transaction", started, 1, err)
	}
	if err := repo.DeleteTransaction(ctx, id); err != nil {
		return s.failWrite("delete_transaction", started, 1, err)
	}
	s.recorder.Observe("delete_transaction", time.Since(started), nil)
	return nil
}

func (s *Service) CountTransactions(ctx context.Context, unsyncedOnly bool) (int, error) {
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	return repo.CountTransactions(ctx, unsyncedOnly)
}

// MarkTransactionRetry bumps the retry counter after a failed sync
// attempt; it never flips synced.
func (s *Service) MarkTransactionRetry(ctx context.Context, id string) error {
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return err
	}
	return repo.MarkTransactionRetry(ctx, id)
}

// --- stock -----------------------------------------------------------------

// ApplyStockUpdates patches cached quantities with rows from the server.
// Rows missing either key are skipped record-by-record, not batch-failed.
func (s *Service) ApplyStockUpdates(ctx context.Context, quantities []domain.StockQuantity) (int, error) {
	started := time.Now()
	if len(quantities) == 0 {
		return 0, nil
	}

	valid := make([]domain.StockQuantity, 0, len(quantities))
	for _, q := range quantities {
		if err := s.validate.Struct(q); err != nil {
			log.Printf("[service] rejecting stock row (item=%q warehouse=%q): %v", q.ItemCode, q.Warehouse, err)
			continue
		}
		valid = append(valid, q)
	}

	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return 0, s.failWrite("apply_stock", started, len(quantities), err)
	}
	applied, err := repo.ApplyStockQuantities(ctx, valid)
	if err != nil {
		return 0, s.failWrite("apply_stock", started, len(quantities), err)
	}

	s.invalidate(ctx, cache.PrefixSearch, cache.PrefixItems)
	s.recorder.Observe("apply_stock", time.Since(started), nil)
	return applied, nil
}

// --- cache maintenance -----------------------------------------------------

func (s *Service) RemoveItemsByGroup(ctx context.Context, itemGroup string) (int, error) {
	started := time.Now()
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return 0, s.failWrite("remove_items_by_group", started, 1, err)
	}
	removed, err := repo.RemoveItemsByGroup(ctx, itemGroup)
	if err != nil {
		return 0, s.failWrite("remove_items_by_group", started, 1, err)
	}
	s.invalidate(ctx, cache.PrefixSearch, cache.PrefixItems)
	s.recorder.Observe("remove_items_by_group", time.Since(started), nil)
	return removed, nil
}

func (s *Service) ClearItemCache(ctx context.Context) error {
	started := time.Now()
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return s.failWrite("clear_items", started, 0, err)
	}
	if err := repo.ClearItems(ctx); err != nil {
		return s.failWrite("clear_items", started, 0, err)
	}
	s.invalidate(ctx, cache.PrefixSearch, cache.PrefixItems)
	s.recorder.Observe("clear_items", time.Since(started), nil)
	return nil
}

func (s *Service) ClearCustomerCache(ctx context.Context) error {
	started := time.Now()
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return s.failWrite("clear_customers", started, 0, err)
	}
	if err := repo.ClearCustomers(ctx); err != nil {
		return s.failWrite("clear_customers", started, 0, err)
	}
	s.invalidate(ctx, cache.PrefixCustomers)
	s.recorder.Observe("clear_customers", time.Since(started), nil)
	return nil
}

// --- payment methods -------------------------------------------------------

func (s *Service) GetPaymentMethods(ctx context.Context, profile string) (*domain.PaymentMethods, error) {
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetPaymentMethods(ctx, profile)
}

func (s *Service) SavePaymentMethods(ctx context.Context, methods domain.PaymentMethods) error {
	if methods.Profile == "" {
		return fmt.Errorf("%w: payment methods need a profile", store.ErrInvalidRecord)
	}
	_, err := s.IngestPaymentMethods(ctx, []domain.PaymentMethods{methods})
	return err
}

// --- readiness and stats ---------------------------------------------------

// CacheReady reports whether the replica holds a usable catalog. Soft
// fail: any internal error reads as "not ready".
func (s *Service) CacheReady(ctx context.Context) bool {
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		return false
	}
	n, err := repo.CountItems(ctx)
	if err != nil {
		log.Printf("[service] readiness check failed: %v", err)
		return false
	}
	return n > 0
}

// Stats is a read path: errors degrade to zeroed stats.
func (s *Service) Stats(ctx context.Context) domain.CacheStats {
	var stats domain.CacheStats
	repo, err := s.repos.Acquire(ctx)
	if err != nil {
		log.Printf("[service] stats unavailable: %v", err)
		return stats
	}

	if n, err := repo.CountItems(ctx); err == nil {
		stats.Items = n
	}
	if n, err := repo.CountCustomers(ctx); err == nil {
		stats.Customers = n
	}
	if n, err := repo.CountTransactions(ctx, true); err == nil {
		stats.QueuedInvoices = n
	}
	if ts, err := repo.LastSync(ctx, "items"); err == nil {
		stats.LastItemSync = ts
	}
	if ts, err := repo.LastSync(ctx, "stock"); err == nil {
		stats.LastStockSync = ts
	}
	return stats
}

func (s *Service) Metrics() map[string]metrics.OpSnapshot {
	return s.recorder.Snapshot()
}

// --- helpers ---------------------------------------------------------------

func (s *Service) invalidate(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		if err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
			log.Printf("[service] cache invalidation for %q failed: %v", prefix, err)
		}
	}
}

func (s *Service) failWrite(op string, started time.Time, batchSize int, err error) error {
	s.recorder.Observe(op, time.Since(started), err)
	log.Printf("[service] %s failed (batch=%d): %v", op, batchSize, err)
	return fmt.Errorf("%s: %w", op, err)
}
