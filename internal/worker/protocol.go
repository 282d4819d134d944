package worker

import (
	"encoding/json"
)

// Op names every request the presentation layer may send. One request
// yields exactly one reply, correlated by ID.
type Op string

const (
	OpSetCredentialToken Op = "set-credential-token"
	OpProbeConnectivity  Op = "probe-connectivity"
	OpCheckOfflineState  Op = "check-offline-state"
	OpSetManualOffline   Op = "set-manual-offline"
	OpSetReportedOnline  Op = "set-reported-online"

	OpEnqueueTransaction Op = "enqueue-transaction"
	OpGetTransaction     Op = "get-queued-transaction"
	OpListTransactions   Op = "list-queued-transactions"
	OpDeleteTransaction  Op = "delete-queued-transaction"
	OpCountTransactions  Op = "count-queued-transactions"
	OpMarkRetry          Op = "mark-transaction-retry"

	OpGetItem         Op = "get-item"
	OpSearchItems     Op = "search-items"
	OpSearchCustomers Op = "search-customers"

	OpIngestItems          Op = "ingest-items"
	OpIngestCustomers      Op = "ingest-customers"
	OpIngestPaymentMethods Op = "ingest-payment-methods"

	OpClearItemCache     Op = "clear-item-cache"
	OpClearCustomerCache Op = "clear-customer-cache"
	OpRemoveItemsByGroup Op = "remove-items-by-group"

	OpReadMetrics        Op = "read-metrics"
	OpGetPaymentMethods  Op = "get-payment-methods"
	OpSavePaymentMethods Op = "save-payment-methods"
	OpCacheReady         Op = "cache-ready"
	OpCacheStats         Op = "cache-stats"

	OpApplyStockUpdates  Op = "apply-stock-updates"
	OpStockSyncStart     Op = "stock-sync-start"
	OpStockSyncStop      Op = "stock-sync-stop"
	OpStockSyncConfigure Op = "stock-sync-configure"
	OpStockSyncStatus    Op = "stock-sync-status"
	OpStockSyncTrigger   Op = "stock-sync-trigger"
)

// Request is one correlated message from the presentation layer.
type Request struct {
	ID      string          `json:"id"`
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the single answer to a request: OK with a payload, or an
// error message.
type Reply struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EventType names the unsolicited notifications the engine pushes.
type EventType string

const (
	EventWorkerReady        EventType = "WORKER_READY"
	EventServerStatusChange EventType = "SERVER_STATUS_CHANGE"
	EventStockSyncComplete  EventType = "STOCK_SYNC_COMPLETE"
	EventStockSyncError     EventType = "STOCK_SYNC_ERROR"
)

// Event is a pushed notification without a correlated request.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}
