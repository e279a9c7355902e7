// Package remote defines the capability the sync engine needs from the
// authoritative backend. Backends live in subpackages.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

// ErrNotFound is returned by Update when no remote record has the id.
var ErrNotFound = errors.New("remote record not found")

// Record is one remote row as a column map, keyed by snake_case names.
type Record map[string]any

// ID returns the remote identity of the record as text.
func (r Record) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	case int64:
		return fmt.Sprintf("%d", v)
	case int:
		return fmt.Sprintf("%d", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Decode converts the record into a typed wire row. The id is always decoded
// as text, whatever type the backend uses for it.
func (r Record) Decode(out any) error {
	normalized := make(Record, len(r))
	for k, v := range r {
		normalized[k] = v
	}
	if _, ok := r["id"]; ok {
		normalized["id"] = r.ID()
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

type Client interface {
	// Insert creates a record and returns it with its remote id. A row carrying
	// client_id is upserted on it, so repeating an insert is harmless.
	Insert(ctx context.Context, collection domain.Collection, row any) (Record, error)
	Update(ctx context.Context, collection domain.Collection, id string, row any) error
	// Upsert writes row, replacing any record that shares conflictKeys.
	Upsert(ctx context.Context, collection domain.Collection, row any, conflictKeys ...string) error
	SelectAll(ctx context.Context, collection domain.Collection) ([]Record, error)
	Ping(ctx context.Context) error
}

// Error is the uniform error payload every backend returns.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote %d: %s", e.Status, e.Message)
}

// Fields turns a wire row into its column map. Nil pointers become null.
func Fields(row any) (Record, error) {
	if rec, ok := row.(Record); ok {
		return rec, nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("remote: encode row: %w", err)
	}
	out := Record{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("remote: encode row: %w", err)
	}
	return out, nil
}
