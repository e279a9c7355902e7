// Package pgremote uses a Postgres database directly as the remote store.
package pgremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
)

// columns lists the writable columns of every remote table. Row keys outside
// this list are rejected before any SQL is built.
var columns = map[domain.Collection][]string{
	domain.CollectionItems:          {"client_id", "name", "sku", "barcode", "quantity", "price", "cost_price", "supplier", "category", "last_updated"},
	domain.CollectionSales:          {"client_id", "timestamp", "total_amount", "notes", "customer_id"},
	domain.CollectionSaleLines:      {"sale_id", "item_id", "quantity", "sale_price"},
	domain.CollectionStockMovements: {"client_id", "item_id", "quantity", "type", "timestamp", "notes"},
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id BIGSERIAL PRIMARY KEY,
	client_id TEXT UNIQUE,
	name TEXT NOT NULL,
	sku TEXT NOT NULL UNIQUE,
	barcode TEXT UNIQUE,
	quantity INTEGER NOT NULL DEFAULT 0,
	price NUMERIC(12, 2) NOT NULL DEFAULT 0,
	cost_price NUMERIC(12, 2),
	supplier TEXT NOT NULL DEFAULT '',
	category TEXT,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sales (
	id BIGSERIAL PRIMARY KEY,
	client_id TEXT UNIQUE,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
	total_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
	notes TEXT,
	customer_id TEXT
);

CREATE TABLE IF NOT EXISTS sale_items (
	id BIGSERIAL PRIMARY KEY,
	sale_id BIGINT NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
	item_id BIGINT NOT NULL REFERENCES items (id),
	quantity INTEGER NOT NULL CHECK (quantity >= 1),
	sale_price NUMERIC(12, 2) NOT NULL,
	UNIQUE (sale_id, item_id)
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id BIGSERIAL PRIMARY KEY,
	client_id TEXT UNIQUE,
	item_id BIGINT NOT NULL REFERENCES items (id),
	quantity INTEGER NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('intake', 'sale', 'adjustment')),
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
	notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements (item_id);
`

type Client struct {
	pool *pgxpool.Pool
}

var _ remote.Client = (*Client)(nil)

func New(ctx context.Context, dsn string) (*Client, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("remote/pgremote: parse config: %w", err)
	}
	config.MaxConns = 8
	config.MaxConnLifetime = 30 * time.Minute
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("remote/pgremote: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("remote/pgremote: ping: %w", err)
	}
	return &Client{pool: pool}, nil
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// EnsureSchema creates the remote tables when they are missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("remote/pgremote: ensure schema: %w", err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// statement holds the pieces shared by every write: the quoted table, the
// quoted column list and the row as JSON.
type statement struct {
	table   string
	columns []string
	payload []byte
	fields  remote.Record
}

func prepare(collection domain.Collection, row any, required ...string) (statement, error) {
	allowed, ok := columns[collection]
	if !ok {
		return statement{}, fmt.Errorf("remote/pgremote: unknown collection %q", collection)
	}
	fields, err := remote.Fields(row)
	if err != nil {
		return statement{}, err
	}
	delete(fields, "id")

	quoted := make([]string, 0, len(fields))
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !contains(allowed, key) {
			return statement{}, &remote.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("column %q is not writable on %s", key, collection)}
		}
		quoted = append(quoted, pgx.Identifier{key}.Sanitize())
	}
	for _, key := range required {
		if !contains(keys, key) {
			return statement{}, &remote.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("row has no %q", key)}
		}
	}
	if len(quoted) == 0 {
		return statement{}, &remote.Error{Status: http.StatusBadRequest, Message: "row has no columns"}
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return statement{}, err
	}
	return statement{
		table:   pgx.Identifier{string(collection)}.Sanitize(),
		columns: quoted,
		payload: payload,
		fields:  fields,
	}, nil
}

func (s statement) insertSQL(conflictKeys []string) string {
	cols := strings.Join(s.columns, ", ")
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json)", s.table, cols, cols, s.table)
	if len(conflictKeys) > 0 {
		keys := make([]string, 0, len(conflictKeys))
		for _, key := range conflictKeys {
			keys = append(keys, pgx.Identifier{key}.Sanitize())
		}
		sets := make([]string, 0, len(s.columns))
		for _, col := range s.columns {
			sets = append(sets, col+" = EXCLUDED."+col)
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}
	b.WriteString(" RETURNING id::text")
	return b.String()
}

func (c *Client) Insert(ctx context.Context, collection domain.Collection, row any) (remote.Record, error) {
	stmt, err := prepare(collection, row)
	if err != nil {
		return nil, err
	}
	var conflict []string
	if _, ok := stmt.fields["client_id"]; ok {
		conflict = []string{"client_id"}
	}

	var id string
	if err := c.pool.QueryRow(ctx, stmt.insertSQL(conflict), stmt.payload).Scan(&id); err != nil {
		return nil, mapError(err)
	}
	stmt.fields["id"] = id
	return stmt.fields, nil
}

func (c *Client) Update(ctx context.Context, collection domain.Collection, id string, row any) error {
	stmt, err := prepare(collection, row)
	if err != nil {
		return err
	}
	cols := strings.Join(stmt.columns, ", ")
	query := fmt.Sprintf(
		"UPDATE %s SET (%s) = (SELECT %s FROM json_populate_record(NULL::%s, $1::json)) WHERE id::text = $2",
		stmt.table, cols, cols, stmt.table,
	)
	tag, err := c.pool.Exec(ctx, query, stmt.payload, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, collection domain.Collection, row any, conflictKeys ...string) error {
	if len(conflictKeys) == 0 {
		return errors.New("remote/pgremote: upsert needs conflict keys")
	}
	stmt, err := prepare(collection, row, conflictKeys...)
	if err != nil {
		return err
	}
	var id string
	if err := c.pool.QueryRow(ctx, stmt.insertSQL(conflictKeys), stmt.payload).Scan(&id); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) SelectAll(ctx context.Context, collection domain.Collection) ([]remote.Record, error) {
	if _, ok := columns[collection]; !ok {
		return nil, fmt.Errorf("remote/pgremote: unknown collection %q", collection)
	}
	table := pgx.Identifier{string(collection)}.Sanitize()
	rows, err := c.pool.Query(ctx, fmt.Sprintf("SELECT row_to_json(t)::text FROM %s t ORDER BY t.id", table))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]remote.Record, 0, 64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		rec := remote.Record{}
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("remote/pgremote: decode %s row: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// mapError turns server errors into the uniform remote payload. Constraint and
// data errors (classes 22 and 23) are reported as client errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	status := http.StatusInternalServerError
	if strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23") {
		status = http.StatusBadRequest
	}
	if pgErr.Code == "23505" {
		status = http.StatusConflict
	}
	return &remote.Error{
		Status:  status,
		Code:    pgErr.Code,
		Message: pgErr.Message,
		Details: pgErr.Detail,
		Hint:    pgErr.Hint,
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
