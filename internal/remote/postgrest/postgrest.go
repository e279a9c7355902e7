// Package postgrest talks to a PostgREST (or Supabase) REST endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
	"github.com/Nselenduna/inventory-sales-app/internal/remote/wire"
)

const pageSize = 1000

type Config struct {
	BaseURL   string
	JWTSecret string
	Role      string
	// APIKey is sent as the apikey header when the gateway wants one.
	APIKey   string
	TokenTTL time.Duration
	Timeout  time.Duration
}

type Client struct {
	base   *url.URL
	http   *http.Client
	tokens *tokenSource
	apiKey string
}

var _ remote.Client = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote/postgrest: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	role := cfg.Role
	if role == "" {
		role = "service_role"
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		tokens: newTokenSource(cfg.JWTSecret, role, cfg.TokenTTL),
		apiKey: cfg.APIKey,
	}, nil
}

func (c *Client) Insert(ctx context.Context, collection domain.Collection, row any) (remote.Record, error) {
	fields, err := remote.Fields(row)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	prefer := "return=representation"
	if _, ok := fields["client_id"]; ok {
		query.Set("on_conflict", "client_id")
		prefer += ",resolution=merge-duplicates"
	}

	var out []remote.Record
	if err := c.do(ctx, http.MethodPost, string(collection), query, fields, prefer, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0].ID() == "" {
		return nil, &remote.Error{Status: http.StatusOK, Message: "insert returned no record"}
	}
	return out[0], nil
}

func (c *Client) Update(ctx context.Context, collection domain.Collection, id string, row any) error {
	fields, err := remote.Fields(row)
	if err != nil {
		return err
	}
	delete(fields, "id")
	query := url.Values{}
	query.Set("id", "eq."+id)

	var out []remote.Record
	if err := c.do(ctx, http.MethodPatch, string(collection), query, fields, "return=representation", &out); err != nil {
		return err
	}
	if len(out) == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, collection domain.Collection, row any, conflictKeys ...string) error {
	if len(conflictKeys) == 0 {
		return errors.New("remote/postgrest: upsert needs conflict keys")
	}
	fields, err := remote.Fields(row)
	if err != nil {
		return err
	}
	query := url.Values{}
	query.Set("on_conflict", strings.Join(conflictKeys, ","))
	return c.do(ctx, http.MethodPost, string(collection), query, fields, "return=minimal,resolution=merge-duplicates", nil)
}

// SelectAll pages through the collection ordered by id so a server-side row
// cap cannot truncate the result.
func (c *Client) SelectAll(ctx context.Context, collection domain.Collection) ([]remote.Record, error) {
	all := make([]remote.Record, 0, pageSize)
	for offset := 0; ; offset += pageSize {
		query := url.Values{}
		query.Set("select", "*")
		query.Set("order", "id")
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page []remote.Record
		if err := c.do(ctx, http.MethodGet, string(collection), query, nil, "", &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// Ping succeeds when the endpoint answers with anything below 500.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/", nil)
	if err != nil {
		return err
	}
	if err := c.authorize(req); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return &remote.Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	req.Header.Set("X-Client-Info", "inventory-syncd wire/"+strconv.Itoa(wire.Version))
	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any, prefer string, out any) error {
	endpoint := c.base.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote/postgrest: encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	if err := c.authorize(req); err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote/postgrest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("remote/postgrest: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	remoteErr := &remote.Error{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, remoteErr); err != nil || remoteErr.Message == "" {
		remoteErr.Message = strings.TrimSpace(string(raw))
	}
	if remoteErr.Message == "" {
		remoteErr.Message = http.StatusText(resp.StatusCode)
	}
	return remoteErr
}
