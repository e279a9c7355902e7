package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

// Metrics owns a private registry with the sync and HTTP series. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	records         *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	online          prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_sync_records_total",
		Help: "Records processed by reconciliation, by collection and outcome.",
	}, []string{"collection", "outcome"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_sync_runs_total",
		Help: "Reconcile calls by result.",
	}, []string{"result"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_sync_duration_seconds",
		Help:    "Duration of completed reconciliation cycles.",
		Buckets: prometheus.DefBuckets,
	})
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_network_online",
		Help: "1 while the remote store is reachable.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(records, runs, runDuration, online, requests, duration)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		records:         records,
		runs:            runs,
		runDuration:     runDuration,
		online:          online,
		requestsTotal:   requests,
		requestDuration: duration,
	}
}

func (m *Metrics) ObserveRecord(collection domain.Collection, outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(collection), outcome).Inc()
}

// ObserveRun counts a reconcile call. Only cycles that ran have a duration.
func (m *Metrics) ObserveRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.runDuration.Observe(elapsed.Seconds())
	}
}

// SetOnline has the signature of a network listener.
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
