// Package metrics exposes Prometheus instruments for the settlement engine
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	paymentsCreated  *prometheus.CounterVec
	paymentsSettled  *prometheus.CounterVec
	paymentsFailed   *prometheus.CounterVec
	ticksTotal       *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	queueDepth       prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	journalFailures  prometheus.Counter
	trafficGenerated *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		paymentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrsim_payments_created_total",
			Help: "Payment intents accepted, by settlement currency",
		}, []string{"settlement_currency"}),
		paymentsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrsim_payments_settled_total",
			Help: "Payments settled, by settlement currency",
		}, []string{"settlement_currency"}),
		paymentsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrsim_payments_failed_total",
			Help: "Payments failed during execution, by error kind",
		}, []string{"kind"}),
		ticksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrsim_engine_ticks_total",
			Help: "Engine ticks, by outcome",
		}, []string{"outcome"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "corrsim_engine_tick_duration_seconds",
			Help:    "Wall time spent in one engine tick",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "corrsim_payments_queued",
			Help: "Payments waiting in QUEUED after the last tick",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrsim_http_requests_total",
			Help: "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status_code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corrsim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		journalFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "corrsim_journal_failures_total",
			Help: "Journal writes that failed after the ledger committed",
		}),
		trafficGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrsim_traffic_generated_total",
			Help: "Synthetic payments submitted, by kind and result",
		}, []string{"kind", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) PaymentCreated(settlementCurrency string) {
	if m == nil {
		return
	}
	m.paymentsCreated.WithLabelValues(settlementCurrency).Inc()
}

func (m *Metrics) PaymentSettled(settlementCurrency string) {
	if m == nil {
		return
	}
	m.paymentsSettled.WithLabelValues(settlementCurrency).Inc()
}

func (m *Metrics) PaymentFailed(kind string) {
	if m == nil {
		return
	}
	m.paymentsFailed.WithLabelValues(kind).Inc()
}

// TickCompleted records a tick that ran, and the queue it left behind.
func (m *Metrics) TickCompleted(d time.Duration, queued int) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues("completed").Inc()
	m.tickDuration.Observe(d.Seconds())
	m.queueDepth.Set(float64(queued))
}

// TickSkipped records a tick that did not run because another was in flight.
func (m *Metrics) TickSkipped(reason string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues("skipped_" + reason).Inc()
}

func (m *Metrics) TickErrored() {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues("error").Inc()
}

func (m *Metrics) JournalFailed() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}

func (m *Metrics) TrafficGenerated(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.trafficGenerated.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
