// Package memory is an in-process remote backend. It records every call and
// can be told to fail, which makes it the sync engine's test double.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
)

var ErrUnreachable = errors.New("remote unreachable")

const (
	MethodInsert    = "insert"
	MethodUpdate    = "update"
	MethodUpsert    = "upsert"
	MethodSelectAll = "select_all"
)

// Call is one request the backend received.
type Call struct {
	Method     string
	Collection domain.Collection
	ID         string
	Row        remote.Record
}

type Client struct {
	mu          sync.Mutex
	nextID      int
	collections map[domain.Collection][]remote.Record
	calls       []Call
	failWhen    func(Call) error
	unreachable bool
}

var _ remote.Client = (*Client)(nil)

func New() *Client {
	return &Client{collections: make(map[domain.Collection][]remote.Record)}
}

// FailWhen installs a hook consulted before every call. A non-nil result is
// returned to the caller and the call has no effect. The hook runs under the
// client lock and must not call back into the client.
func (c *Client) FailWhen(fn func(Call) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWhen = fn
}

func (c *Client) SetUnreachable(unreachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreachable = unreachable
}

// Seed stores a record as if another device had written it and returns its id.
func (c *Client) Seed(collection domain.Collection, row any) (string, error) {
	rec, err := remote.Fields(row)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec = clone(rec)
	if rec.ID() == "" {
		rec["id"] = c.newID()
	}
	c.collections[collection] = append(c.collections[collection], rec)
	return rec.ID(), nil
}

// Calls returns every call received so far, including failed ones.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsTo filters Calls by method.
func (c *Client) CallsTo(method string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (c *Client) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Records returns a copy of a collection's stored rows.
func (c *Client) Records(collection domain.Collection) []remote.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]remote.Record, 0, len(c.collections[collection]))
	for _, rec := range c.collections[collection] {
		out = append(out, clone(rec))
	}
	return out
}

func (c *Client) newID() string {
	c.nextID++
	return "r" + strconv.Itoa(c.nextID)
}

// begin records the call and reports whether it should fail. Callers hold mu.
func (c *Client) begin(call Call) error {
	c.calls = append(c.calls, call)
	if c.unreachable {
		return ErrUnreachable
	}
	if c.failWhen != nil {
		hook := c.failWhen
		if err := hook(call); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Insert(_ context.Context, collection domain.Collection, row any) (remote.Record, error) {
	fields, err := remote.Fields(row)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(Call{Method: MethodInsert, Collection: collection, Row: clone(fields)}); err != nil {
		return nil, err
	}

	records := c.collections[collection]
	if key, ok := fields["client_id"]; ok && key != nil {
		for i, rec := range records {
			if fmt.Sprint(rec["client_id"]) == fmt.Sprint(key) {
				merge(rec, fields)
				records[i] = rec
				return clone(rec), nil
			}
		}
	}

	rec := clone(fields)
	rec["id"] = c.newID()
	c.collections[collection] = append(records, rec)
	return clone(rec), nil
}

func (c *Client) Update(_ context.Context, collection domain.Collection, id string, row any) error {
	fields, err := remote.Fields(row)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(Call{Method: MethodUpdate, Collection: collection, ID: id, Row: clone(fields)}); err != nil {
		return err
	}

	for _, rec := range c.collections[collection] {
		if rec.ID() == id {
			merge(rec, fields)
			return nil
		}
	}
	return remote.ErrNotFound
}

func (c *Client) Upsert(_ context.Context, collection domain.Collection, row any, conflictKeys ...string) error {
	fields, err := remote.Fields(row)
	if err != nil {
		return err
	}
	if len(conflictKeys) == 0 {
		return &remote.Error{Status: http.StatusBadRequest, Message: "upsert needs conflict keys"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(Call{Method: MethodUpsert, Collection: collection, Row: clone(fields)}); err != nil {
		return err
	}

	for _, rec := range c.collections[collection] {
		if sameKeys(rec, fields, conflictKeys) {
			merge(rec, fields)
			return nil
		}
	}
	rec := clone(fields)
	rec["id"] = c.newID()
	c.collections[collection] = append(c.collections[collection], rec)
	return nil
}

func (c *Client) SelectAll(_ context.Context, collection domain.Collection) ([]remote.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(Call{Method: MethodSelectAll, Collection: collection}); err != nil {
		return nil, err
	}
	out := make([]remote.Record, 0, len(c.collections[collection]))
	for _, rec := range c.collections[collection] {
		out = append(out, clone(rec))
	}
	return out, nil
}

func (c *Client) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return ErrUnreachable
	}
	return nil
}

func sameKeys(a remote.Record, b remote.Record, keys []string) bool {
	for _, key := range keys {
		if fmt.Sprint(a[key]) != fmt.Sprint(b[key]) {
			return false
		}
	}
	return true
}

func merge(dst remote.Record, src remote.Record) {
	for k, v := range src {
		if k == "id" {
			continue
		}
		dst[k] = v
	}
}

func clone(rec remote.Record) remote.Record {
	out := make(remote.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
