package store

import (
	"context"
	"errors"
	"time"

	"posbridge/internal/domain"
)

var (
	// ErrStoreUnavailable means the local store could not be opened; the
	// attempt may be retried.
	ErrStoreUnavailable = errors.New("offline store unavailable")
	// ErrCircuitOpen means repeated open failures exhausted the breaker;
	// callers fail fast until an explicit reset.
	ErrCircuitOpen = errors.New("offline store circuit open")
	// ErrEmptyPayload rejects a queued transaction with no line items.
	ErrEmptyPayload = errors.New("transaction has no line items")
	// ErrInvalidRecord marks a record rejected at the ingestion boundary.
	ErrInvalidRecord = errors.New("invalid record")
	ErrNotFound      = errors.New("not found")
)

// Repository is the full surface of the local durable replica. One
// implementation backs it (SQLite); tests drive the same interface.
type Repository interface {
	// Bulk ingestion. Each call runs in a single transaction spanning the
	// entity tables, derived indexes and the sync-metadata row.
	BulkUpsertItems(ctx context.Context, items []domain.Item, prices []domain.Price) (int, error)
	BulkUpsertCustomers(ctx context.Context, customers []domain.Customer) (int, error)
	BulkUpsertPaymentMethods(ctx context.Context, methods []domain.PaymentMethods) (int, error)

	// Catalog reads.
	GetItem(ctx context.Context, itemCode string) (*domain.Item, error)
	ListItems(ctx context.Context, limit int) ([]domain.Item, error)
	ItemsByBarcode(ctx context.Context, barcode string, limit int) ([]domain.Item, error)
	ItemsByCodePrefix(ctx context.Context, prefix string, limit int) ([]domain.Item, error)
	ItemsByNamePrefix(ctx context.Context, prefix string, limit int) ([]domain.Item, error)
	SampleItems(ctx context.Context, limit int) ([]domain.Item, error)
	CountItems(ctx context.Context) (int, error)
	RemoveItemsByGroup(ctx context.Context, itemGroup string) (int, error)
	ClearItems(ctx context.Context) error

	SearchCustomers(ctx context.Context, term string, limit int) ([]domain.Customer, error)
	CountCustomers(ctx context.Context) (int, error)
	ClearCustomers(ctx context.Context) error

	GetPaymentMethods(ctx context.Context, profile string) (*domain.PaymentMethods, error)

	// Stock patches from reconciliation.
	ApplyStockQuantities(ctx context.Context, quantities []domain.StockQuantity) (int, error)

	// Offline transaction queue. All queue operations tolerate the table
	// not existing yet and report empty results instead of failing.
	EnqueueTransaction(ctx context.Context, tx domain.QueuedTransaction) error
	ListTransactions(ctx context.Context, unsyncedOnly bool) ([]domain.QueuedTransaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.QueuedTransaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	CountTransactions(ctx context.Context, unsyncedOnly bool) (int, error)
	MarkTransactionRetry(ctx context.Context, id string) error

	// Sync metadata (settings key/value table).
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	LastSync(ctx context.Context, kind string) (*time.Time, error)

	Close() error
}
