package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Item is a locally cached catalog record. Stock holds the last known
// quantity per warehouse; it is advisory only and never decremented by
// this process (the server owns stock movements).
type Item struct {
	ItemCode    string             `json:"item_code"`
	ItemName    string             `json:"item_name"`
	Description string             `json:"description,omitempty"`
	ItemGroup   string             `json:"item_group,omitempty"`
	Barcodes    BarcodeList        `json:"barcodes"`
	Disabled    bool               `json:"disabled"`
	Stock       map[string]float64 `json:"stock,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// BarcodeList always marshals as a JSON array of strings, but accepts the
// shapes upstream snapshots actually arrive in: a bare scalar, a list of
// scalars, or a list of objects carrying a "barcode" field.
type BarcodeList []string

func (b *BarcodeList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*b = nil
		return nil
	}

	if trimmed[0] != '[' {
		var single json.Number
		if err := json.Unmarshal(data, &single); err == nil {
			*b = BarcodeList{single.String()}
			return nil
		}
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("barcode: unsupported scalar shape: %w", err)
		}
		if s = strings.TrimSpace(s); s != "" {
			*b = BarcodeList{s}
		} else {
			*b = nil
		}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("barcode: unsupported list shape: %w", err)
	}

	out := make(BarcodeList, 0, len(raw))
	for _, el := range raw {
		el = json.RawMessage(strings.TrimSpace(string(el)))
		if len(el) == 0 {
			continue
		}
		if el[0] == '{' {
			var obj struct {
				Barcode string `json:"barcode"`
			}
			if err := json.Unmarshal(el, &obj); err != nil {
				return fmt.Errorf("barcode: unsupported object shape: %w", err)
			}
			if v := strings.TrimSpace(obj.Barcode); v != "" {
				out = append(out, v)
			}
			continue
		}
		var num json.Number
		if err := json.Unmarshal(el, &num); err == nil {
			out = append(out, num.String())
			continue
		}
		var s string
		if err := json.Unmarshal(el, &s); err != nil {
			return fmt.Errorf("barcode: unsupported element shape: %w", err)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*b = out
	return nil
}

func (b BarcodeList) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(b))
}

// ItemRecord is the ingestion-boundary shape of an item: barcodes may still
// be in any upstream form and price fields ride along on the same record.
type ItemRecord struct {
	ItemCode    string             `json:"item_code"`
	ItemName    string             `json:"item_name"`
	Description string             `json:"description,omitempty"`
	ItemGroup   string             `json:"item_group,omitempty"`
	Barcodes    BarcodeList        `json:"barcodes"`
	Disabled    bool               `json:"disabled"`
	Stock       map[string]float64 `json:"stock,omitempty"`
	PriceList   string             `json:"price_list,omitempty"`
	Rate        float64            `json:"rate,omitempty"`
}

// Item converts the boundary record into the canonical internal shape.
// Barcode normalization has already happened during unmarshalling.
func (r ItemRecord) Item(now time.Time) Item {
	return Item{
		ItemCode:    strings.TrimSpace(r.ItemCode),
		ItemName:    strings.TrimSpace(r.ItemName),
		Description: r.Description,
		ItemGroup:   r.ItemGroup,
		Barcodes:    r.Barcodes,
		Disabled:    r.Disabled,
		Stock:       r.Stock,
		UpdatedAt:   now,
	}
}

// Price is keyed by (PriceList, ItemCode); both components are mandatory
// before the record may reach the store.
type Price struct {
	PriceList string    `json:"price_list" validate:"required"`
	ItemCode  string    `json:"item_code" validate:"required"`
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Customer struct {
	Name         string `json:"name"`
	CustomerName string `json:"customer_name"`
	MobileNo     string `json:"mobile_no,omitempty"`
	SearchText   string `json:"search_text,omitempty"`
}

// PaymentMethods is the cached set of payment options for one POS profile.
type PaymentMethods struct {
	Profile string            `json:"profile"`
	Methods []json.RawMessage `json:"methods"`
}

// QueuedTransaction is a sale recorded while disconnected. Payload is the
// opaque invoice body; Synced stays false until an external sync caller
// confirms server acceptance and deletes the row.
type QueuedTransaction struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	Synced     bool            `json:"synced"`
	RetryCount int             `json:"retry_count"`
}

// LineItemCount inspects the payload for its items list without decoding
// the full invoice body. A payload that is not an object counts as zero.
func (t QueuedTransaction) LineItemCount() int {
	var probe struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(t.Payload, &probe); err != nil {
		return 0
	}
	return len(probe.Items)
}

// StockQuantity is one row of the server's stock-quantities response.
// ActualQty is authoritative; StockQty is the legacy alias some endpoints
// still emit.
type StockQuantity struct {
	ItemCode  string   `json:"item_code" validate:"required"`
	Warehouse string   `json:"warehouse" validate:"required"`
	ActualQty *float64 `json:"actual_qty,omitempty"`
	StockQty  *float64 `json:"stock_qty,omitempty"`
}

// Qty resolves the actual/alias pair, preferring actual_qty.
func (s StockQuantity) Qty() float64 {
	if s.ActualQty != nil {
		return *s.ActualQty
	}
	if s.StockQty != nil {
		return *s.StockQty
	}
	return 0
}

// SyncConfig is the stock-reconciliation target: which warehouse and which
// item codes the background loop refreshes.
type SyncConfig struct {
	Warehouse string        `json:"warehouse"`
	ItemCodes []string      `json:"item_codes"`
	Interval  time.Duration `json:"interval"`
}

func (c SyncConfig) Empty() bool {
	return c.Warehouse == "" || len(c.ItemCodes) == 0
}

// SyncStatus is the queryable state of the reconciliation loop.
type SyncStatus struct {
	Running    bool       `json:"running"`
	Config     SyncConfig `json:"config"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	TotalRuns  int64      `json:"total_runs"`
	TotalSkips int64      `json:"total_skips"`
}

// OfflineState is the answer to a check-offline-state request.
type OfflineState struct {
	Offline        bool      `json:"offline"`
	ManualOverride bool      `json:"manual_override"`
	ReportedOnline bool      `json:"reported_online"`
	LastProbeOK    bool      `json:"last_probe_ok"`
	LastProbeAt    time.Time `json:"last_probe_at"`
}

// CacheStats summarizes local replica readiness for the UI.
type CacheStats struct {
	Items          int        `json:"items"`
	Customers      int        `json:"customers"`
	QueuedInvoices int        `json:"queued_invoices"`
	LastItemSync   *time.Time `json:"last_item_sync,omitempty"`
	LastStockSync  *time.Time `json:"last_stock_sync,omitempty"`
}
