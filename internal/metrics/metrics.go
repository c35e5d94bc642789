package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	// Reconciliation
	WebhooksTotal      *prometheus.CounterVec
	WebhookDuration    prometheus.Histogram
	ReconcileConflicts prometheus.Counter
	CallOutcomes       *prometheus.CounterVec

	// Campaigns
	CampaignStarts    *prometheus.CounterVec
	TargetsDispatched prometheus.Counter
	ProviderErrors    prometheus.Counter

	// Enrichment
	EnrichmentsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every collector with reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		}),

		WebhooksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_webhooks_total",
				Help: "Provider webhooks by reconciliation result",
			},
			[]string{"result"},
		),
		WebhookDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_webhook_reconcile_seconds",
			Help:    "Time spent reconciling one webhook",
			Buckets: prometheus.DefBuckets,
		}),
		ReconcileConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_reconcile_conflicts_total",
			Help: "Reconciliation attempts retried after a concurrent update",
		}),
		CallOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_call_outcomes_total",
				Help: "Reconciled calls by outcome",
			},
			[]string{"outcome"},
		),

		CampaignStarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_starts_total",
				Help: "Provider batch submissions by result",
			},
			[]string{"result"},
		),
		TargetsDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "campaign_targets_dispatched_total",
			Help: "Targets handed to the voice provider",
		}),
		ProviderErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_provider_errors_total",
			Help: "Failed voice provider requests",
		}),

		EnrichmentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_enrichments_total",
				Help: "Summary enrichment attempts by result",
			},
			[]string{"result"},
		),

		gatherer: reg,
	}
}

// NewNop returns metrics backed by a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and latency, labelled by chi route
// pattern to keep cardinality low.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.HTTPRequestsTotal.With(labels).Inc()
		m.HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
