// Package sqlite is the durable on-device Repository. It runs on the pure-Go
// modernc driver so the binary needs no cgo toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
	"github.com/Nselenduna/inventory-sales-app/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL UNIQUE,
	remote_id TEXT UNIQUE,
	name TEXT NOT NULL,
	sku TEXT NOT NULL UNIQUE,
	barcode TEXT,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	price TEXT NOT NULL,
	cost_price TEXT,
	supplier TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	last_updated TEXT NOT NULL,
	sync_status TEXT NOT NULL CHECK (sync_status IN ('synced', 'pending', 'failed')),
	revision INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_barcode ON items (barcode) WHERE barcode IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_items_sync_status ON items (sync_status);
CREATE INDEX IF NOT EXISTS idx_items_name ON items (name);
CREATE INDEX IF NOT EXISTS idx_items_supplier ON items (supplier);
CREATE INDEX IF NOT EXISTS idx_items_category ON items (category);
CREATE INDEX IF NOT EXISTS idx_items_quantity ON items (quantity);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL UNIQUE,
	remote_id TEXT UNIQUE,
	timestamp TEXT NOT NULL,
	total_amount TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	customer_id TEXT NOT NULL DEFAULT '',
	sync_status TEXT NOT NULL CHECK (sync_status IN ('synced', 'pending', 'failed')),
	revision INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sales_sync_status ON sales (sync_status);
CREATE INDEX IF NOT EXISTS idx_sales_timestamp ON sales (timestamp);
CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales (customer_id);

CREATE TABLE IF NOT EXISTS sale_items (
	id TEXT PRIMARY KEY,
	sale_id TEXT NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
	item_id TEXT NOT NULL REFERENCES items (id),
	quantity INTEGER NOT NULL CHECK (quantity >= 1),
	sale_price TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id);
CREATE INDEX IF NOT EXISTS idx_sale_items_item ON sale_items (item_id);

CREATE TABLE IF NOT EXISTS stock_movements (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL UNIQUE,
	remote_id TEXT UNIQUE,
	item_id TEXT NOT NULL REFERENCES items (id),
	quantity INTEGER NOT NULL CHECK (quantity <> 0),
	type TEXT NOT NULL CHECK (type IN ('intake', 'sale', 'adjustment')),
	timestamp TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	sync_status TEXT NOT NULL CHECK (sync_status IN ('synced', 'pending', 'failed')),
	revision INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements (item_id);
CREATE INDEX IF NOT EXISTS idx_stock_movements_sync_status ON stock_movements (sync_status);
CREATE INDEX IF NOT EXISTS idx_stock_movements_timestamp ON stock_movements (timestamp);
CREATE INDEX IF NOT EXISTS idx_stock_movements_type ON stock_movements (type);

CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	name TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	contact_phone TEXT NOT NULL DEFAULT '',
	low_stock_threshold INTEGER NOT NULL DEFAULT 5,
	currency TEXT NOT NULL DEFAULT 'USD'
);
`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// conn implements store.Tx over either the database handle or an open
// transaction.
type conn struct {
	q queryer
}

type Store struct {
	*conn
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates the schema. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: open: %w", err)
	}

	// One connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store/sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store/sqlite: migrate: %w", err)
	}

	return &Store{conn: &conn{q: db}, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a database transaction. fn must only use the Tx it is
// given; the store holds a single connection.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(ctx, &conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const itemColumns = `id, client_id, remote_id, name, sku, barcode, quantity, price, cost_price, supplier, category, last_updated, sync_status, revision`

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item        domain.Item
		remoteID    sql.NullString
		barcode     sql.NullString
		lastUpdated string
		status      string
	)
	if err := row.Scan(
		&item.ID, &item.ClientID, &remoteID, &item.Name, &item.SKU, &barcode, &item.Quantity,
		&item.Price, &item.CostPrice, &item.Supplier, &item.Category, &lastUpdated, &status, &item.Revision,
	); err != nil {
		return nil, err
	}
	item.RemoteID = remoteID.String
	item.Barcode = barcode.String
	item.SyncStatus = domain.SyncStatus(status)
	at, err := parseTime(lastUpdated)
	if err != nil {
		return nil, err
	}
	item.LastUpdated = at
	return &item, nil
}

func (c *conn) queryItem(ctx context.Context, where string, arg any) (*domain.Item, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE `+where, arg)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (c *conn) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (c *conn) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return c.queryItem(ctx, `id = ?`, id)
}

func (c *conn) GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	return c.queryItem(ctx, `sku = ?`, sku)
}

func (c *conn) GetItemByBarcode(ctx context.Context, barcode string) (*domain.Item, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	return c.queryItem(ctx, `barcode = ?`, barcode)
}

func (c *conn) GetItemByRemoteID(ctx context.Context, remoteID string) (*domain.Item, error) {
	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	return c.queryItem(ctx, `remote_id = ?`, remoteID)
}

func (c *conn) GetItemByClientID(ctx context.Context, clientID string) (*domain.Item, error) {
	if clientID == "" {
		return nil, store.ErrNotFound
	}
	return c.queryItem(ctx, `client_id = ?`, clientID)
}

func (c *conn) InsertItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.SKU == "" || item.Name == "" || item.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	if item.ClientID == "" {
		item.ClientID = xid.ClientKey()
	}
	if item.SyncStatus == "" {
		item.SyncStatus = domain.SyncStatusPending
	}
	if item.LastUpdated.IsZero() {
		item.LastUpdated = time.Now().UTC()
	}
	if item.Revision == 0 {
		item.Revision = 1
	}

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.ClientID, nullString(item.RemoteID), item.Name, item.SKU, nullString(item.Barcode), item.Quantity,
		item.Price, item.CostPrice, item.Supplier, item.Category, formatTime(item.LastUpdated), string(item.SyncStatus), item.Revision)
	if err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

func (c *conn) SaveItem(ctx context.Context, item domain.Item, bumpRevision bool) error {
	if item.SKU == "" || item.Name == "" || item.Quantity < 0 || !item.SyncStatus.Valid() {
		return store.ErrInvalidTransaction
	}
	bump := 0
	if bumpRevision {
		bump = 1
	}

	res, err := c.q.ExecContext(ctx, `
		UPDATE items
		SET name = ?, sku = ?, barcode = ?, quantity = ?, price = ?, cost_price = ?, supplier = ?, category = ?,
			last_updated = ?, sync_status = ?, remote_id = COALESCE(remote_id, ?), revision = revision + ?
		WHERE id = ?
	`, item.Name, item.SKU, nullString(item.Barcode), item.Quantity, item.Price, item.CostPrice, item.Supplier, item.Category,
		formatTime(item.LastUpdated), string(item.SyncStatus), nullString(item.RemoteID), bump, item.ID)
	if err != nil {
		return mapError(err)
	}
	return requireOneRow(res)
}

func (c *conn) ListItems(ctx context.Context) ([]domain.Item, error) {
	return c.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name COLLATE NOCASE, rowid`)
}

func (c *conn) ListUnsyncedItems(ctx context.Context) ([]domain.Item, error) {
	return c.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE sync_status <> 'synced' ORDER BY rowid`)
}

const saleColumns = `id, client_id, remote_id, timestamp, total_amount, notes, customer_id, sync_status, revision`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var (
		sale      domain.Sale
		remoteID  sql.NullString
		timestamp string
		status    string
	)
	if err := row.Scan(&sale.ID, &sale.ClientID, &remoteID, &timestamp, &sale.TotalAmount, &sale.Notes, &sale.CustomerID, &status, &sale.Revision); err != nil {
		return nil, err
	}
	sale.RemoteID = remoteID.String
	sale.SyncStatus = domain.SyncStatus(status)
	at, err := parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	sale.Timestamp = at
	return &sale, nil
}

func (c *conn) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

func (c *conn) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sale, err
}

func (c *conn) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.ClientID == "" {
		sale.ClientID = xid.ClientKey()
	}
	if sale.SyncStatus == "" {
		sale.SyncStatus = domain.SyncStatusPending
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}
	if sale.Revision == 0 {
		sale.Revision = 1
	}

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sale.ID, sale.ClientID, nullString(sale.RemoteID), formatTime(sale.Timestamp), sale.TotalAmount,
		sale.Notes, sale.CustomerID, string(sale.SyncStatus), sale.Revision)
	if err != nil {
		return nil, mapError(err)
	}
	return &sale, nil
}

func (c *conn) DeleteSale(ctx context.Context, id string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, id); err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (c *conn) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return c.querySales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY rowid`)
}

func (c *conn) ListUnsyncedSales(ctx context.Context) ([]domain.Sale, error) {
	return c.querySales(ctx, `SELECT `+saleColumns+` FROM sales WHERE sync_status <> 'synced' ORDER BY rowid`)
}

func (c *conn) InsertSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	if line.Quantity < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if line.ID == "" {
		line.ID = xid.New("sli")
	}

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, item_id, quantity, sale_price)
		VALUES (?, ?, ?, ?, ?)
	`, line.ID, line.SaleID, line.ItemID, line.Quantity, line.SalePrice)
	if err != nil {
		return nil, mapError(err)
	}
	return &line, nil
}

func (c *conn) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, sale_id, item_id, quantity, sale_price
		FROM sale_items
		WHERE sale_id = ?
		ORDER BY rowid
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 4)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Quantity, &line.SalePrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

const movementColumns = `id, client_id, remote_id, item_id, quantity, type, timestamp, notes, sync_status, revision`

func scanMovement(row rowScanner) (*domain.StockMovement, error) {
	var (
		movement  domain.StockMovement
		remoteID  sql.NullString
		kind      string
		timestamp string
		status    string
	)
	if err := row.Scan(&movement.ID, &movement.ClientID, &remoteID, &movement.ItemID, &movement.Quantity, &kind,
		&timestamp, &movement.Notes, &status, &movement.Revision); err != nil {
		return nil, err
	}
	movement.RemoteID = remoteID.String
	movement.Kind = domain.MovementKind(kind)
	movement.SyncStatus = domain.SyncStatus(status)
	at, err := parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	movement.Timestamp = at
	return &movement, nil
}

func (c *conn) queryMovements(ctx context.Context, query string, args ...any) ([]domain.StockMovement, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *movement)
	}
	return movements, rows.Err()
}

func (c *conn) InsertStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	if !movement.Kind.Valid() || movement.Quantity == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.ClientID == "" {
		movement.ClientID = xid.ClientKey()
	}
	if movement.SyncStatus == "" {
		movement.SyncStatus = domain.SyncStatusPending
	}
	if movement.Timestamp.IsZero() {
		movement.Timestamp = time.Now().UTC()
	}
	if movement.Revision == 0 {
		movement.Revision = 1
	}

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO stock_movements (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, movement.ID, movement.ClientID, nullString(movement.RemoteID), movement.ItemID, movement.Quantity, string(movement.Kind),
		formatTime(movement.Timestamp), movement.Notes, string(movement.SyncStatus), movement.Revision)
	if err != nil {
		return nil, mapError(err)
	}
	return &movement, nil
}

func (c *conn) ListStockMovements(ctx context.Context, itemID string) ([]domain.StockMovement, error) {
	if itemID == "" {
		return c.queryMovements(ctx, `SELECT `+movementColumns+` FROM stock_movements ORDER BY rowid`)
	}
	return c.queryMovements(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE item_id = ? ORDER BY rowid`, itemID)
}

func (c *conn) ListUnsyncedStockMovements(ctx context.Context) ([]domain.StockMovement, error) {
	return c.queryMovements(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE sync_status <> 'synced' ORDER BY rowid`)
}

func syncTable(collection domain.Collection) (string, error) {
	switch collection {
	case domain.CollectionItems, domain.CollectionSales, domain.CollectionStockMovements:
		return string(collection), nil
	}
	return "", fmt.Errorf("collection %s has no sync state", collection)
}

func (c *conn) MarkSynced(ctx context.Context, collection domain.Collection, id string, remoteID string, revision int64) error {
	table, err := syncTable(collection)
	if err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE `+table+`
		SET remote_id = COALESCE(remote_id, ?),
			sync_status = CASE WHEN revision = ? THEN 'synced' ELSE sync_status END
		WHERE id = ?
	`, nullString(remoteID), revision, id)
	if err != nil {
		return mapError(err)
	}
	return requireOneRow(res)
}

func (c *conn) MarkFailed(ctx context.Context, collection domain.Collection, id string) error {
	table, err := syncTable(collection)
	if err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `UPDATE `+table+` SET sync_status = 'failed' WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (c *conn) CountByStatus(ctx context.Context, collection domain.Collection) (domain.StatusCounts, error) {
	table, err := syncTable(collection)
	if err != nil {
		return nil, err
	}
	rows, err := c.q.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM `+table+` GROUP BY sync_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := domain.StatusCounts{
		domain.SyncStatusSynced:  0,
		domain.SyncStatusPending: 0,
		domain.SyncStatusFailed:  0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

func (c *conn) GetSettings(ctx context.Context) (domain.ShopSettings, error) {
	var settings domain.ShopSettings
	err := c.q.QueryRowContext(ctx, `
		SELECT name, location, contact_email, contact_phone, low_stock_threshold, currency
		FROM settings
		WHERE id = 1
	`).Scan(&settings.Name, &settings.Location, &settings.ContactEmail, &settings.ContactPhone, &settings.LowStockThreshold, &settings.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultShopSettings(), nil
	}
	return settings, err
}

func (c *conn) SaveSettings(ctx context.Context, settings domain.ShopSettings) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO settings (id, name, location, contact_email, contact_phone, low_stock_threshold, currency)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			contact_email = excluded.contact_email,
			contact_phone = excluded.contact_phone,
			low_stock_threshold = excluded.low_stock_threshold,
			currency = excluded.currency
	`, settings.Name, settings.Location, settings.ContactEmail, settings.ContactPhone, settings.LowStockThreshold, settings.Currency)
	return err
}

func requireOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapError translates constraint violations into store errors.
func mapError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "items.sku"):
			return store.ErrDuplicateSKU
		case strings.Contains(msg, "items.barcode"):
			return store.ErrDuplicateBarcode
		}
		return store.ErrInvalidTransaction
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return store.ErrInvalidTransaction
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return store.ErrNotFound
	}
	return err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("store/sqlite: bad timestamp %q: %w", v, err)
	}
	return t, nil
}
