package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/metrics"
	"github.com/Nselenduna/inventory-sales-app/internal/service"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
	"github.com/Nselenduna/inventory-sales-app/internal/syncer"
)

// Syncer is the part of the sync engine the HTTP surface drives.
type Syncer interface {
	TriggerManual(ctx context.Context) (domain.SyncReport, bool, error)
	IsSyncing() bool
}

// Network is the connectivity flag. PUT /api/v1/network feeds it from an
// external platform hook.
type Network interface {
	IsOnline() bool
	SetOnline(online bool)
}

type Reports interface {
	LastReport(ctx context.Context) (*domain.SyncReport, bool, error)
}

type Options struct {
	AllowedOrigin string
	// SyncRateLimit caps manual sync triggers per client per minute.
	SyncRateLimit int
	Reports       Reports
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

type API struct {
	service       *service.Service
	syncer        Syncer
	network       Network
	reports       Reports
	metrics       *metrics.Metrics
	log           zerolog.Logger
	allowedOrigin string
	syncLimiter   func(http.Handler) http.Handler
}

func New(svc *service.Service, engine Syncer, net Network, opts Options) *API {
	limit := opts.SyncRateLimit
	if limit < 1 {
		limit = 6
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "http://127.0.0.1:3000"
	}
	return &API{
		service:       svc,
		syncer:        engine,
		network:       net,
		reports:       opts.Reports,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		allowedOrigin: opts.AllowedOrigin,
		syncLimiter: httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + clientKey(r), nil
		})),
	}
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/network", a.handleNetworkGet)
		r.Put("/network", a.handleNetworkPut)

		r.With(a.syncLimiter).Post("/sync", a.handleSyncTrigger)
		r.Get("/sync/status", a.handleSyncStatus)

		r.Get("/items", a.handleItemsList)
		r.Post("/items", a.handleItemCreate)
		r.Get("/items/{id}", a.handleItemGet)
		r.Get("/items/{id}/movements", a.handleItemMovements)
		r.Post("/items/{id}/adjustments", a.handleItemAdjust)

		r.Get("/sales", a.handleSalesList)
		r.Post("/sales", a.handleSaleCreate)
		r.Post("/sales/{id}/cancel", a.handleSaleCancel)

		r.Get("/settings", a.handleSettingsGet)
		r.Put("/settings", a.handleSettingsPut)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"online": a.network.IsOnline(),
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
}

type networkState struct {
	Online *bool `json:"online"`
}

func (a *API) handleNetworkGet(w http.ResponseWriter, r *http.Request) {
	online := a.network.IsOnline()
	writeJSON(w, http.StatusOK, networkState{Online: &online})
}

func (a *API) handleNetworkPut(w http.ResponseWriter, r *http.Request) {
	var req networkState
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Online == nil {
		writeError(w, http.StatusBadRequest, errors.New("online is required"))
		return
	}

	a.network.SetOnline(*req.Online)
	a.log.Info().Bool("online", *req.Online).Msg("network signal received")
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	report, ran, err := a.syncer.TriggerManual(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{"ran": ran}
	if ran {
		resp["report"] = report
	} else if !a.network.IsOnline() {
		resp["reason"] = "offline"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	overview, err := a.service.SyncOverview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{
		"online":      a.network.IsOnline(),
		"syncing":     a.syncer.IsSyncing(),
		"collections": overview.Collections,
	}
	if a.reports != nil {
		report, ok, err := a.reports.LastReport(r.Context())
		if err != nil {
			a.log.Warn().Err(err).Msg("load last sync report")
		} else if ok {
			resp["last_report"] = report
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleItemsList(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleItemCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.CreateItem(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleItemGet(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleItemMovements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.service.GetItem(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	movements, err := a.service.ListStockMovements(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleItemAdjust(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.ItemID = chi.URLParam(r, "id")

	movement, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleSalesList(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSaleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSaleCancel(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.CancelSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.Settings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	settings, err := a.service.UpdateSettings(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(startedAt)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, store.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicateSKU), errors.Is(err, store.ErrDuplicateBarcode), errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 5xx responses from the client.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
