package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nselenduna/inventory-sales-app/internal/cache"
	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/metrics"
	"github.com/Nselenduna/inventory-sales-app/internal/network"
	memremote "github.com/Nselenduna/inventory-sales-app/internal/remote/memory"
	"github.com/Nselenduna/inventory-sales-app/internal/service"
	"github.com/Nselenduna/inventory-sales-app/internal/store/memory"
	"github.com/Nselenduna/inventory-sales-app/internal/syncer"
)

type testAPI struct {
	handler http.Handler
	net     *network.Monitor
	remote  *memremote.Client
}

// newTestAPI wires the real service and sync engine over the memory store and
// the memory remote so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()

	repo := memory.New()
	remote := memremote.New()
	monitor := network.NewMonitor(true)
	reports := cache.NewMemoryReportCache()
	engine := syncer.New(repo, remote, monitor, syncer.Options{Reports: reports, Logger: zerolog.Nop()})
	svc := service.New(repo, zerolog.Nop())

	opts.Reports = reports
	opts.Logger = zerolog.Nop()
	api := New(svc, engine, monitor, opts)
	return &testAPI{handler: api.Handler(), net: monitor, remote: remote}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, true, body["ok"])
	require.Equal(t, true, body["online"])
}

func TestItemLifecycle(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(t, http.MethodPost, "/api/v1/items", map[string]any{
		"name": "Tea", "sku": "TEA-1", "quantity": 10, "price": "1.50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decodeBody[domain.Item](t, rec)
	require.Equal(t, domain.SyncStatusPending, item.SyncStatus)

	rec = api.do(t, http.MethodPost, "/api/v1/items", map[string]any{
		"name": "Other", "sku": "TEA-1", "price": "1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/items", map[string]any{"sku": "NO-NAME", "price": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/items/"+item.ID+"/adjustments", map[string]any{
		"delta": -4, "type": "adjustment", "notes": "breakage",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/v1/items/"+item.ID+"/adjustments", map[string]any{
		"delta": -40, "type": "adjustment",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 6, decodeBody[domain.Item](t, rec).Quantity)

	rec = api.do(t, http.MethodGet, "/api/v1/items/"+item.ID+"/movements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decodeBody[map[string][]domain.StockMovement](t, rec)
	require.Len(t, movements["movements"], 2)

	rec = api.do(t, http.MethodGet, "/api/v1/items/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[map[string][]domain.Item](t, rec)["items"], 1)
}

func TestSaleAndCancel(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(t, http.MethodPost, "/api/v1/items", map[string]any{
		"name": "Cake", "sku": "CAKE", "quantity": 3, "price": "4.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	item := decodeBody[domain.Item](t, rec)

	rec = api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{
		"lines": []map[string]any{{"item_id": item.ID, "quantity": 5}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{
		"lines": []map[string]any{{"item_id": item.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[domain.SaleResponse](t, rec)
	require.Equal(t, "8", sale.Sale.TotalAmount.String())

	rec = api.do(t, http.MethodGet, "/api/v1/sales", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[map[string][]domain.Sale](t, rec)["sales"], 1)

	rec = api.do(t, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncTriggerAndStatus(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(t, http.MethodPost, "/api/v1/items", map[string]any{
		"name": "Tea", "sku": "TEA", "quantity": 1, "price": "1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, true, body["ran"])
	require.Len(t, api.remote.Records(domain.CollectionItems), 1)

	rec = api.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Online      bool                                      `json:"online"`
		Syncing     bool                                      `json:"syncing"`
		Collections map[domain.Collection]domain.StatusCounts `json:"collections"`
		LastReport  *domain.SyncReport                        `json:"last_report"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.True(t, status.Online)
	require.False(t, status.Syncing)
	require.Equal(t, 1, status.Collections[domain.CollectionItems][domain.SyncStatusSynced])
	require.NotNil(t, status.LastReport)
	require.Equal(t, 1, status.LastReport.Items.Synced)
}

func TestNetworkSignalGatesSync(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(t, http.MethodPut, "/api/v1/network", map[string]any{"online": false})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, api.net.IsOnline())

	rec = api.do(t, http.MethodPut, "/api/v1/network", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, false, body["ran"])
	require.Equal(t, "offline", body["reason"])
	require.Empty(t, api.remote.Calls())

	rec = api.do(t, http.MethodGet, "/api/v1/network", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody[map[string]any](t, rec)["online"])
}

type busySyncer struct{}

func (busySyncer) TriggerManual(context.Context) (domain.SyncReport, bool, error) {
	return domain.SyncReport{}, false, syncer.ErrSyncInProgress
}

func (busySyncer) IsSyncing() bool { return true }

func TestSyncTriggerWhileSyncing(t *testing.T) {
	repo := memory.New()
	api := New(service.New(repo, zerolog.Nop()), busySyncer{}, network.NewMonitor(true), Options{Logger: zerolog.Nop()})
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncTriggerIsRateLimited(t *testing.T) {
	api := newTestAPI(t, Options{SyncRateLimit: 1})

	rec := api.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	api := newTestAPI(t, Options{})

	rec := api.do(t, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.DefaultShopSettings(), decodeBody[domain.ShopSettings](t, rec))

	rec = api.do(t, http.MethodPut, "/api/v1/settings", map[string]any{
		"name": "Corner Shop", "currency": "eur", "low_stock_threshold": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "EUR", decodeBody[domain.ShopSettings](t, rec).Currency)

	rec = api.do(t, http.MethodPut, "/api/v1/settings", map[string]any{"name": "X", "currency": "EUR", "unknown": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointAndMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t, Options{Metrics: metrics.New()})

	rec := api.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `inventory_http_requests_total{code="200",route="/healthz"} 1`)

	rec = api.do(t, http.MethodDelete, "/api/v1/settings", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
