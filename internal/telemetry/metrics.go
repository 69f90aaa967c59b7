// Package telemetry exposes Prometheus counters for the broker, the response
// cache and delta sync. Label values are drawn from small fixed sets; no
// credential ids or player ids are used as labels.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup states.
const (
	CacheFresh = "fresh"
	CacheStale = "stale"
	CacheMiss  = "miss"
)

// Sync run results.
const (
	SyncOK        = "ok"
	SyncTruncated = "truncated"
	SyncError     = "error"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, which keeps tests and optional wiring simple.
type Metrics struct {
	brokerAttempts  *prometheus.CounterVec
	brokerRequests  *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	cacheRefreshErr prometheus.Counter
	syncRuns        *prometheus.CounterVec
	syncRecords     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		brokerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tornpanel_broker_attempts_total",
			Help: "Candidate credential attempts by outcome (ok, rate_skip, decrypt_failed, api_<code>, http_<status>, transport_error).",
		}, []string{"outcome"}),
		brokerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tornpanel_broker_requests_total",
			Help: "Broker requests by final result.",
		}, []string{"result"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tornpanel_upstream_request_seconds",
			Help:    "Latency of individual upstream HTTP calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tornpanel_cache_lookups_total",
			Help: "Response cache lookups by state (fresh, stale, miss).",
		}, []string{"state"}),
		cacheRefreshErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tornpanel_cache_refresh_errors_total",
			Help: "Background cache refreshes that failed.",
		}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tornpanel_sync_runs_total",
			Help: "Delta sync runs by entity and result.",
		}, []string{"entity", "result"}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tornpanel_sync_records_total",
			Help: "Records upserted by delta sync, by entity.",
		}, []string{"entity"}),
	}

	reg.MustRegister(
		m.brokerAttempts, m.brokerRequests, m.upstreamLatency,
		m.cacheLookups, m.cacheRefreshErr, m.syncRuns, m.syncRecords,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// BrokerAttempt counts one candidate attempt.
func (m *Metrics) BrokerAttempt(outcome string) {
	if m == nil {
		return
	}
	m.brokerAttempts.WithLabelValues(outcome).Inc()
}

// BrokerRequest counts one finished broker request.
func (m *Metrics) BrokerRequest(result string) {
	if m == nil {
		return
	}
	m.brokerRequests.WithLabelValues(result).Inc()
}

// UpstreamLatency observes the duration of one upstream call.
func (m *Metrics) UpstreamLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.Observe(d.Seconds())
}

// CacheLookup counts a response cache lookup.
func (m *Metrics) CacheLookup(state string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(state).Inc()
}

// CacheRefreshError counts a failed background refresh.
func (m *Metrics) CacheRefreshError() {
	if m == nil {
		return
	}
	m.cacheRefreshErr.Inc()
}

// SyncRun counts a delta sync run and the records it imported.
func (m *Metrics) SyncRun(entity, result string, records int) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(entity, result).Inc()
	if records > 0 {
		m.syncRecords.WithLabelValues(entity).Add(float64(records))
	}
}
