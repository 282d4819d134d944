// Package sqlite implements the local durable replica on an embedded
// SQLite database. WAL mode keeps reads concurrent with the single
// writer; all bulk writes run inside one transaction per call.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"posbridge/internal/domain"
	"posbridge/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// chunkSize bounds per-transaction statement batches during ingestion.
const chunkSize = 500

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

// Open creates or opens the replica at path and bootstraps the schema.
// Safe to call repeatedly; the schema is idempotent.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open replica: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn under bursty ingestion.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping replica: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.verifySchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// verifySchema treats a store with zero tables as corrupt or uninitialized
// so the open retry path kicks in rather than failing later mid-write.
func (s *Store) verifySchema(ctx context.Context) error {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN
		('items', 'item_prices', 'customers', 'payment_methods', 'invoice_queue', 'settings')
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("verify schema: %w", store.ErrStoreUnavailable)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// isMissingTable detects reads against a table no migration has created
// yet, the expected state on a fresh profile before the first ingestion.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// --- ingestion -------------------------------------------------------------

func (s *Store) BulkUpsertItems(ctx context.Context, items []domain.Item, prices []domain.Price) (int, error) {
	if len(items) == 0 && len(prices) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin item ingest: %w", err)
	}
	defer tx.Rollback()

	processed := 0
	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		n, err := upsertItemChunk(ctx, tx, items[start:end])
		if err != nil {
			return 0, err
		}
		processed += n
	}

	if err := upsertPrices(ctx, tx, prices); err != nil {
		return 0, err
	}

	if err := putSettingTx(ctx, tx, "last_sync:items", time.Now().UTC().Format(timeLayout)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit item ingest: %w", err)
	}
	return processed, nil
}

func upsertItemChunk(ctx context.Context, tx *sql.Tx, items []domain.Item) (int, error) {
	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (item_code, item_name, description, item_group, barcodes, disabled, stock, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(item_code) DO UPDATE SET
			item_name = excluded.item_name,
			description = excluded.description,
			item_group = excluded.item_group,
			barcodes = excluded.barcodes,
			disabled = excluded.disabled,
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare item upsert: %w", err)
	}
	defer itemStmt.Close()

	delBarcodes, err := tx.PrepareContext(ctx, `DELETE FROM item_barcodes WHERE item_code = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare barcode delete: %w", err)
	}
	defer delBarcodes.Close()

	insBarcode, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO item_barcodes (barcode, item_code) VALUES (?,?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare barcode insert: %w", err)
	}
	defer insBarcode.Close()

	processed := 0
	for _, item := range items {
		if item.ItemCode == "" {
			log.Printf("[sqlite] skipping item with empty item_code (name=%q)", item.ItemName)
			continue
		}
		barcodes, err := json.Marshal(item.Barcodes)
		if err != nil {
			return 0, fmt.Errorf("encode barcodes for %s: %w", item.ItemCode, err)
		}
		stock, err := json.Marshal(orEmptyStock(item.Stock))
		if err != nil {
			return 0, fmt.Errorf("encode stock for %s: %w", item.ItemCode, err)
		}
		_, err = itemStmt.ExecContext(ctx, item.ItemCode, item.ItemName, item.Description,
			item.ItemGroup, string(barcodes), boolToInt(item.Disabled), string(stock),
			item.UpdatedAt.UTC().Format(timeLayout))
		if err != nil {
			return 0, fmt.Errorf("upsert item %s: %w", item.ItemCode, err)
		}

		if _, err := delBarcodes.ExecContext(ctx, item.ItemCode); err != nil {
			return 0, fmt.Errorf("refresh barcode index for %s: %w", item.ItemCode, err)
		}
		for _, bc := range item.Barcodes {
			if _, err := insBarcode.ExecContext(ctx, bc, item.ItemCode); err != nil {
				return 0, fmt.Errorf("index barcode %q for %s: %w", bc, item.ItemCode, err)
			}
		}
		processed++
	}
	return processed, nil
}

// upsertPrices writes each chunk with one multi-row statement. When a
// chunk fails as a whole it degrades to row-by-row inserts and skips only
// the individually bad records, so one malformed price never discards an
// otherwise valid batch.
func upsertPrices(ctx context.Context, tx *sql.Tx, prices []domain.Price) error {
	for start := 0; start < len(prices); start += chunkSize {
		end := min(start+chunkSize, len(prices))
		chunk := prices[start:end]

		if err := bulkInsertPrices(ctx, tx, chunk); err == nil {
			continue
		} else {
			log.Printf("[sqlite] bulk price insert failed for %d records, retrying row by row: %v", len(chunk), err)
		}

		for _, p := range chunk {
			if err := insertPrice(ctx, tx, p); err != nil {
				log.Printf("[sqlite] skipping price (%s, %s): %v", p.PriceList, p.ItemCode, err)
			}
		}
	}
	return nil
}

func bulkInsertPrices(ctx context.Context, tx *sql.Tx, chunk []domain.Price) error {
	if len(chunk) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO item_prices (price_list, item_code, rate, updated_at) VALUES `)
	args := make([]any, 0, len(chunk)*4)
	for i, p := range chunk {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?)")
		args = append(args, p.PriceList, p.ItemCode, p.Rate, p.UpdatedAt.UTC().Format(timeLayout))
	}
	sb.WriteString(` ON CONFLICT(price_list, item_code) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`)

	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

func insertPrice(ctx context.Context, tx *sql.Tx, p domain.Price) error {
	if p.PriceList == "" || p.ItemCode == "" {
		return store.ErrInvalidRecord
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO item_prices (price_list, item_code, rate, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(price_list, item_code) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at
	`, p.PriceList, p.ItemCode, p.Rate, p.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (s *Store) BulkUpsertCustomers(ctx context.Context, customers []domain.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin customer ingest: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO customers (name, customer_name, mobile_no, search_text) VALUES (?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			customer_name = excluded.customer_name,
			mobile_no = excluded.mobile_no,
			search_text = excluded.search_text
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare customer upsert: %w", err)
	}
	defer stmt.Close()

	processed := 0
	for start := 0; start < len(customers); start += chunkSize {
		end := min(start+chunkSize, len(customers))
		for _, c := range customers[start:end] {
			if c.Name == "" {
				log.Printf("[sqlite] skipping customer with empty id (name=%q)", c.CustomerName)
				continue
			}
			search := c.SearchText
			if search == "" {
				search = strings.ToLower(strings.TrimSpace(c.CustomerName + " " + c.MobileNo))
			}
			if _, err := stmt.ExecContext(ctx, c.Name, c.CustomerName, c.MobileNo, search); err != nil {
				return 0, fmt.Errorf("upsert customer %s: %w", c.Name, err)
			}
			processed++
		}
	}

	if err := putSettingTx(ctx, tx, "last_sync:customers", time.Now().UTC().Format(timeLayout)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit customer ingest: %w", err)
	}
	return processed, nil
}

func (s *Store) BulkUpsertPaymentMethods(ctx context.Context, methods []domain.PaymentMethods) (int, error) {
	if len(methods) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin payment method ingest: %w", err)
	}
	defer tx.Rollback()

	processed := 0
	for _, m := range methods {
		if m.Profile == "" {
			log.Printf("[sqlite] skipping payment methods with empty profile")
			continue
		}
		encoded, err := json.Marshal(m.Methods)
		if err != nil {
			return 0, fmt.Errorf("encode payment methods for %s: %w", m.Profile, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_methods (profile, methods) VALUES (?,?)
			ON CONFLICT(profile) DO UPDATE SET methods = excluded.methods
		`, m.Profile, string(encoded))
		if err != nil {
			return 0, fmt.Errorf("upsert payment methods %s: %w", m.Profile, err)
		}
		processed++
	}

	if err := putSettingTx(ctx, tx, "last_sync:payment_methods", time.Now().UTC().Format(timeLayout)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit payment method ingest: %w", err)
	}
	return processed, nil
}

// --- catalog reads ---------------------------------------------------------

const itemColumns = `item_code, item_name, description, item_group, barcodes, disabled, stock, updated_at`

func (s *Store) GetItem(ctx context.Context, itemCode string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE item_code = ?`, itemCode)
	item, err := scanItemRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, limit int) ([]domain.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE disabled = 0 ORDER BY rowid LIMIT ?`, limit)
}

func (s *Store) ItemsByBarcode(ctx context.Context, barcode string, limit int) ([]domain.Item, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE disabled = 0 AND item_code IN (SELECT item_code FROM item_barcodes WHERE barcode = ?)
		ORDER BY item_code LIMIT ?`, barcode, limit)
}

func (s *Store) ItemsByCodePrefix(ctx context.Context, prefix string, limit int) ([]domain.Item, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE disabled = 0 AND item_code LIKE ? ORDER BY item_code LIMIT ?`, prefix+"%", limit)
}

func (s *Store) ItemsByNamePrefix(ctx context.Context, prefix string, limit int) ([]domain.Item, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE disabled = 0 AND item_name LIKE ? ORDER BY item_name LIMIT ?`, prefix+"%", limit)
}

// SampleItems feeds the scored full-scan fallback; store order, bounded.
func (s *Store) SampleItems(ctx context.Context, limit int) ([]domain.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE disabled = 0 ORDER BY rowid LIMIT ?`, limit)
}

func (s *Store) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	if isMissingTable(err) {
		return 0, nil
	}
	return n, err
}

func (s *Store) RemoveItemsByGroup(ctx context.Context, itemGroup string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin group removal: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM item_barcodes WHERE item_code IN (SELECT item_code FROM items WHERE item_group = ?)
	`, itemGroup); err != nil {
		return 0, fmt.Errorf("remove group barcode index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM item_prices WHERE item_code IN (SELECT item_code FROM items WHERE item_group = ?)
	`, itemGroup); err != nil {
		return 0, fmt.Errorf("remove group prices: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE item_group = ?`, itemGroup)
	if err != nil {
		return 0, fmt.Errorf("remove group items: %w", err)
	}
	affected, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit group removal: %w", err)
	}
	return int(affected), nil
}

func (s *Store) ClearItems(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin item clear: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM item_barcodes`, `DELETE FROM item_prices`, `DELETE FROM items`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 32)
	for rows.Next() {
		item, err := scanItemRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanItemRow(scan func(dest ...any) error) (*domain.Item, error) {
	var (
		item     domain.Item
		barcodes string
		stock    string
		disabled int
		updated  string
	)
	if err := scan(&item.ItemCode, &item.ItemName, &item.Description, &item.ItemGroup,
		&barcodes, &disabled, &stock, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(barcodes), &item.Barcodes); err != nil {
		return nil, fmt.Errorf("decode barcodes for %s: %w", item.ItemCode, err)
	}
	if err := json.Unmarshal([]byte(stock), &item.Stock); err != nil {
		return nil, fmt.Errorf("decode stock for %s: %w", item.ItemCode, err)
	}
	item.Disabled = disabled != 0
	if ts, err := time.Parse(timeLayout, updated); err == nil {
		item.UpdatedAt = ts
	}
	return &item, nil
}

// --- customers -------------------------------------------------------------

func (s *Store) SearchCustomers(ctx context.Context, term string, limit int) ([]domain.Customer, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	var (
		rows *sql.Rows
		err  error
	)
	if term == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT name, customer_name, mobile_no, search_text FROM customers ORDER BY customer_name LIMIT ?
		`, limit)
	} else {
		pattern := "%" + term + "%"
		rows, err = s.db.QueryContext(ctx, `
			SELECT name, customer_name, mobile_no, search_text FROM customers
			WHERE search_text LIKE ? OR lower(customer_name) LIKE ? OR mobile_no LIKE ? OR lower(name) LIKE ?
			ORDER BY customer_name LIMIT ?
		`, pattern, pattern, pattern, pattern, limit)
	}
	if isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 16)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.Name, &c.CustomerName, &c.MobileNo, &c.SearchText); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CountCustomers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n)
	if isMissingTable(err) {
		return 0, nil
	}
	return n, err
}

func (s *Store) ClearCustomers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM customers`)
	if isMissingTable(err) {
		return nil
	}
	return err
}

// --- payment methods -------------------------------------------------------

func (s *Store) GetPaymentMethods(ctx context.Context, profile string) (*domain.PaymentMethods, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT methods FROM payment_methods WHERE profile = ?`, profile).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pm := &domain.PaymentMethods{Profile: profile}
	if err := json.Unmarshal([]byte(encoded), &pm.Methods); err != nil {
		return nil, fmt.Errorf("decode payment methods for %s: %w", profile, err)
	}
	return pm, nil
}

// --- stock patches ---------------------------------------------------------

// ApplyStockQuantities patches the per-warehouse stock map of each cached
// item. Unknown item codes are skipped; the sync-metadata timestamp moves
// inside the same transaction as the patched rows.
func (s *Store) ApplyStockQuantities(ctx context.Context, quantities []domain.StockQuantity) (int, error) {
	if len(quantities) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin stock patch: %w", err)
	}
	defer tx.Rollback()

	applied := 0
	for _, q := range quantities {
		if q.ItemCode == "" || q.Warehouse == "" {
			log.Printf("[sqlite] skipping stock row missing key (item=%q warehouse=%q)", q.ItemCode, q.Warehouse)
			continue
		}
		var encoded string
		err := tx.QueryRowContext(ctx, `SELECT stock FROM items WHERE item_code = ?`, q.ItemCode).Scan(&encoded)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read stock for %s: %w", q.ItemCode, err)
		}

		stock := map[string]float64{}
		if err := json.Unmarshal([]byte(encoded), &stock); err != nil {
			stock = map[string]float64{}
		}
		stock[q.Warehouse] = q.Qty()

		updated, err := json.Marshal(stock)
		if err != nil {
			return 0, fmt.Errorf("encode stock for %s: %w", q.ItemCode, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET stock = ?, updated_at = ? WHERE item_code = ?
		`, string(updated), time.Now().UTC().Format(timeLayout), q.ItemCode); err != nil {
			return 0, fmt.Errorf("patch stock for %s: %w", q.ItemCode, err)
		}
		applied++
	}

	// Reconciliation advances the item timestamp too: the catalog rows
	// changed, and readers watching last_sync:items must see that.
	now := time.Now().UTC().Format(timeLayout)
	if err := putSettingTx(ctx, tx, "last_sync:stock", now); err != nil {
		return 0, err
	}
	if err := putSettingTx(ctx, tx, "last_sync:items", now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stock patch: %w", err)
	}
	return applied, nil
}

// --- offline transaction queue ---------------------------------------------

func (s *Store) EnqueueTransaction(ctx context.Context, tx domain.QueuedTransaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_queue (id, payload, created_at, synced, retry_count) VALUES (?,?,?,0,0)
	`, tx.ID, string(tx.Payload), tx.CreatedAt.UTC().Format(timeLayout))
	if isMissingTable(err) {
		// First write on a fresh profile; create the table, then retry.
		if _, serr := s.db.ExecContext(ctx, schemaSQL); serr != nil {
			return fmt.Errorf("bootstrap queue table: %w", serr)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO invoice_queue (id, payload, created_at, synced, retry_count) VALUES (?,?,?,0,0)
		`, tx.ID, string(tx.Payload), tx.CreatedAt.UTC().Format(timeLayout))
	}
	if err != nil {
		return fmt.Errorf("enqueue transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, unsyncedOnly bool) ([]domain.QueuedTransaction, error) {
	query := `SELECT id, payload, created_at, synced, retry_count FROM invoice_queue ORDER BY created_at`
	if unsyncedOnly {
		query = `SELECT id, payload, created_at, synced, retry_count FROM invoice_queue WHERE synced = 0 ORDER BY created_at`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.QueuedTransaction, 0, 8)
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.QueuedTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, payload, created_at, synced, retry_count FROM invoice_queue WHERE id = ?`, id)
	tx, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoice_queue WHERE id = ?`, id)
	if isMissingTable(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountTransactions(ctx context.Context, unsyncedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM invoice_queue`
	if unsyncedOnly {
		query = `SELECT COUNT(*) FROM invoice_queue WHERE synced = 0`
	}
	var n int
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	if isMissingTable(err) {
		return 0, nil
	}
	return n, err
}

// MarkTransactionRetry bumps retry_count after a failed sync attempt. It
// never touches synced; only the external sync caller decides acceptance.
func (s *Store) MarkTransactionRetry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoice_queue SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if isMissingTable(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark retry %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanTransaction(scan func(dest ...any) error) (*domain.QueuedTransaction, error) {
	var (
		tx      domain.QueuedTransaction
		payload string
		created string
		synced  int
	)
	if err := scan(&tx.ID, &payload, &created, &synced, &tx.RetryCount); err != nil {
		return nil, err
	}
	tx.Payload = json.RawMessage(payload)
	tx.Synced = synced != 0
	if ts, err := time.Parse(timeLayout, created); err == nil {
		tx.CreatedAt = ts
	}
	return &tx, nil
}

// --- settings --------------------------------------------------------------

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return "", store.ErrNotFound
	}
	return value, err
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *Store) LastSync(ctx context.Context, kind string) (*time.Time, error) {
	value, err := s.GetSetting(ctx, "last_sync:"+kind)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(timeLayout, value)
	if err != nil {
		return nil, fmt.Errorf("parse last_sync:%s: %w", kind, err)
	}
	return &ts, nil
}

func putSettingTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmptyStock(stock map[string]float64) map[string]float64 {
	if stock == nil {
		return map[string]float64{}
	}
	return stock
}
