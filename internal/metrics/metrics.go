package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	subscriptions        *prometheus.GaugeVec
	subscriptionFailures *prometheus.CounterVec
	refreshCycles        prometheus.Counter
	streamReconnects     prometheus.Counter
	fillsIngested        prometheus.Counter
	deliveries           *prometheus.CounterVec
	journalRows          *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Tracked subscription slots by status.",
		}, []string{"status"}),
		subscriptionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_failures_total",
			Help:      "Failed subscribe/unsubscribe calls.",
		}, []string{"op"}),
		refreshCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Completed subscription refresh cycles.",
		}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Successful event stream reconnections.",
		}),
		fillsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_ingested_total",
			Help:      "Fill events extracted from the event stream.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by result.",
		}, []string{"result"}),
		journalRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_rows_total",
			Help:      "Fill journal rows by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.subscriptions,
		m.subscriptionFailures,
		m.refreshCycles,
		m.streamReconnects,
		m.fillsIngested,
		m.deliveries,
		m.journalRows,
	)

	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetSubscriptions records the number of slots in each status.
func (m *Metrics) SetSubscriptions(active, failed int) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues("active").Set(float64(active))
	m.subscriptions.WithLabelValues("failed_pending_retry").Set(float64(failed))
}

// SubscriptionFailed counts a failed "subscribe" or "unsubscribe".
func (m *Metrics) SubscriptionFailed(op string) {
	if m == nil {
		return
	}
	m.subscriptionFailures.WithLabelValues(op).Inc()
}

// RefreshCycle counts a completed refresh pass.
func (m *Metrics) RefreshCycle() {
	if m == nil {
		return
	}
	m.refreshCycles.Inc()
}

// StreamReconnected counts a successful reconnection.
func (m *Metrics) StreamReconnected() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

// FillsIngested counts fills handed to the dispatcher.
func (m *Metrics) FillsIngested(n int) {
	if m == nil {
		return
	}
	m.fillsIngested.Add(float64(n))
}

// Delivery counts a webhook delivery with result "ok", "failed" or "dropped".
func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// JournalRows counts journal rows with result "inserted", "conflict" or "error".
func (m *Metrics) JournalRows(result string, n int) {
	if m == nil {
		return
	}
	m.journalRows.WithLabelValues(result).Add(float64(n))
}
