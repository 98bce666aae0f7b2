package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for governance decisions and the admin API
type Metrics struct {
	// Admission
	admissionDecisions *prometheus.CounterVec
	overageCost        prometheus.Counter
	windowRejections   *prometheus.CounterVec

	// Policies
	policyEvaluations *prometheus.CounterVec
	policyBlocks      *prometheus.CounterVec

	// Fallback routing
	fallbackDecisions *prometheus.CounterVec

	// Ledger
	tokensRecorded *prometheus.CounterVec
	costRecorded   prometheus.Counter
	ledgerErrors   *prometheus.CounterVec

	// Caches and catalog
	cacheEvents    *prometheus.CounterVec
	catalogReloads *prometheus.CounterVec
	catalogModels  prometheus.Gauge

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance on its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		admissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_admission_decisions_total",
				Help: "Quota admission decisions by verdict",
			},
			[]string{"verdict", "dimension"},
		),

		overageCost: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aigov_overage_cost_total",
				Help: "Overage cost accepted by admission",
			},
		),

		windowRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_window_limit_hits_total",
				Help: "Hourly/daily window limits reached, by window and enforcement mode",
			},
			[]string{"window", "mode"},
		),

		policyEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_policy_evaluations_total",
				Help: "Guardrail policy evaluations by type, action and outcome",
			},
			[]string{"type", "action", "triggered"},
		),

		policyBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_policy_blocks_total",
				Help: "Requests blocked by a guardrail policy",
			},
			[]string{"policy_key"},
		),

		fallbackDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_fallback_decisions_total",
				Help: "Fallback routing decisions by failure kind and outcome",
			},
			[]string{"failure_kind", "outcome"},
		),

		tokensRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_tokens_recorded_total",
				Help: "Tokens recorded in the usage ledger by direction",
			},
			[]string{"direction"},
		),

		costRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aigov_cost_recorded_total",
				Help: "Estimated cost recorded in the usage ledger",
			},
		),

		ledgerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_ledger_errors_total",
				Help: "Usage ledger failures by operation",
			},
			[]string{"operation"},
		),

		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_rule_cache_events_total",
				Help: "Rule cache lookups and invalidations",
			},
			[]string{"cache", "event"},
		),

		catalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_catalog_reloads_total",
				Help: "Model catalog reload attempts by status",
			},
			[]string{"status"},
		),

		catalogModels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aigov_catalog_models",
				Help: "Models currently held by the registry",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigov_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aigov_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.admissionDecisions,
		m.overageCost,
		m.windowRejections,
		m.policyEvaluations,
		m.policyBlocks,
		m.fallbackDecisions,
		m.tokensRecorded,
		m.costRecorded,
		m.ledgerErrors,
		m.cacheEvents,
		m.catalogReloads,
		m.catalogModels,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordAdmission records a quota admission verdict
func (m *Metrics) RecordAdmission(verdict, dimension string, overage float64) {
	m.admissionDecisions.WithLabelValues(verdict, dimension).Inc()
	if overage > 0 {
		m.overageCost.Add(overage)
	}
}

// RecordWindowLimit records an hourly or daily limit being reached
func (m *Metrics) RecordWindowLimit(window string, strict bool) {
	mode := "advisory"
	if strict {
		mode = "strict"
	}
	m.windowRejections.WithLabelValues(window, mode).Inc()
}

// RecordPolicyEvaluation records one policy result
func (m *Metrics) RecordPolicyEvaluation(policyType, action string, triggered bool) {
	m.policyEvaluations.WithLabelValues(policyType, action, strconv.FormatBool(triggered)).Inc()
}

// RecordPolicyBlock records a request halted by a policy
func (m *Metrics) RecordPolicyBlock(policyKey string) {
	m.policyBlocks.WithLabelValues(policyKey).Inc()
}

// RecordFallbackDecision records a fallback router step
func (m *Metrics) RecordFallbackDecision(failureKind, outcome string) {
	m.fallbackDecisions.WithLabelValues(failureKind, outcome).Inc()
}

// RecordUsage records tokens and cost written to the ledger
func (m *Metrics) RecordUsage(tokensIn, tokensOut int64, cost float64) {
	if tokensIn > 0 {
		m.tokensRecorded.WithLabelValues("in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		m.tokensRecorded.WithLabelValues("out").Add(float64(tokensOut))
	}
	if cost > 0 {
		m.costRecorded.Add(cost)
	}
}

// RecordLedgerError records a failed ledger operation
func (m *Metrics) RecordLedgerError(operation string) {
	m.ledgerErrors.WithLabelValues(operation).Inc()
}

// RecordCacheEvent records a rule cache hit, miss or invalidation
func (m *Metrics) RecordCacheEvent(cache, event string) {
	m.cacheEvents.WithLabelValues(cache, event).Inc()
}

// RecordCatalogReload records a model catalog reload and the resulting size
func (m *Metrics) RecordCatalogReload(status string, models int) {
	m.catalogReloads.WithLabelValues(status).Inc()
	if status == "success" {
		m.catalogModels.Set(float64(models))
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware records request count and latency labelled by chi route pattern
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// routePattern keeps label cardinality bounded by using the matched route, not the raw path
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
