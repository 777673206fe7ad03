package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Claim paths for payoutsClaimed.
const (
	ClaimExplicit = "explicit"
	ClaimImplicit = "implicit"
	ClaimFallback = "fallback"
)

// IndexerMetrics holds the collectors for one chain. A nil *IndexerMetrics is valid and records
// nothing, so handlers can run without a registry in tests and replays.
type IndexerMetrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	historyRows     *prometheus.CounterVec
	payoutsCreated  prometheus.Counter
	payoutsClaimed  *prometheus.CounterVec
	reconcileErrors *prometheus.CounterVec
	blockDuration   prometheus.Histogram
	lastIndexed     prometheus.Gauge
}

// New registers the indexer collectors plus the Go and process collectors on a fresh registry.
func New(chain string) *IndexerMetrics {
	labels := prometheus.Labels{"chain": chain}
	m := &IndexerMetrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payoutx_events_handled_total",
			Help:        "Events dispatched to a handler, by module/method key.",
			ConstLabels: labels,
		}, []string{"key"}),
		historyRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payoutx_history_rows_total",
			Help:        "History elements written, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		payoutsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "payoutx_payouts_created_total",
			Help:        "Validator payout records created at era payout.",
			ConstLabels: labels,
		}),
		payoutsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payoutx_payouts_claimed_total",
			Help:        "Validator payouts marked claimed, by attribution path.",
			ConstLabels: labels,
		}, []string{"path"}),
		reconcileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payoutx_reconciliation_errors_total",
			Help:        "Blocks that failed reconciliation, by entity.",
			ConstLabels: labels,
		}, []string{"entity"}),
		blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "payoutx_block_duration_seconds",
			Help:        "Wall time spent indexing one block.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		lastIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "payoutx_last_indexed_height",
			Help:        "Highest block recorded as indexed.",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.historyRows,
		m.payoutsCreated,
		m.payoutsClaimed,
		m.reconcileErrors,
		m.blockDuration,
		m.lastIndexed,
	)
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *IndexerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *IndexerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterGaugeFunc adds a gauge sampled at scrape time.
func (m *IndexerMetrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

func (m *IndexerMetrics) ObserveEvent(key string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(key).Inc()
}

func (m *IndexerMetrics) ObserveHistoryRow(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.historyRows.WithLabelValues(kind).Inc()
}

func (m *IndexerMetrics) ObservePayoutCreated() {
	if m == nil {
		return
	}
	m.payoutsCreated.Inc()
}

func (m *IndexerMetrics) ObservePayoutClaimed(path string) {
	if m == nil {
		return
	}
	m.payoutsClaimed.WithLabelValues(path).Inc()
}

func (m *IndexerMetrics) ObserveReconciliationError(entity string) {
	if m == nil {
		return
	}
	m.reconcileErrors.WithLabelValues(entity).Inc()
}

func (m *IndexerMetrics) ObserveBlock(seconds float64, height uint64) {
	if m == nil {
		return
	}
	m.blockDuration.Observe(seconds)
	m.lastIndexed.Set(float64(height))
}
