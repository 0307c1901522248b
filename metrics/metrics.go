// Package metrics provides Prometheus metrics for token verification and
// reservation operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A nil *Metrics, or one built from a
// nil registerer, is a valid no-op instance.
type Metrics struct {
	enabled bool

	// Authentication metrics
	authRequestsTotal *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec

	// Key cache metrics
	keyCacheHitsTotal prometheus.Counter
	keyCacheMissTotal prometheus.Counter
	keyFetchesTotal   *prometheus.CounterVec
	keyFetchDuration  prometheus.Histogram
	keyCacheEntries   prometheus.Gauge

	// Reservation metrics
	operationsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// If reg is nil, returns a no-op Metrics instance.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: reg != nil}
	if !m.enabled {
		return m
	}
	factory := promauto.With(reg)

	m.authRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_auth_requests_total",
		Help: "Total successful token verifications",
	}, []string{"source"})

	m.authFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_auth_failures_total",
		Help: "Total failed token verifications",
	}, []string{"source", "reason"})

	m.keyCacheHitsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "reservations_key_cache_hits_total",
		Help: "Total key lookups served from the remote key cache",
	})

	m.keyCacheMissTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "reservations_key_cache_misses_total",
		Help: "Total key lookups that required a key set fetch",
	})

	m.keyFetchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_key_fetches_total",
		Help: "Total remote key set fetches",
	}, []string{"result"})

	m.keyFetchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservations_key_fetch_duration_seconds",
		Help:    "Remote key set fetch duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.keyCacheEntries = factory.NewGauge(prometheus.GaugeOpts{
		Name: "reservations_key_cache_entries",
		Help: "Current number of keys in the remote key cache",
	})

	m.operationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_operations_total",
		Help: "Total reservation operations by kind and result",
	}, []string{"operation", "result"})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// RecordAuthSuccess records a successful verification.
func (m *Metrics) RecordAuthSuccess(source string) {
	if !m.on() {
		return
	}
	m.authRequestsTotal.WithLabelValues(source).Inc()
}

// RecordAuthFailure records a failed verification.
func (m *Metrics) RecordAuthFailure(source, reason string) {
	if !m.on() {
		return
	}
	m.authFailuresTotal.WithLabelValues(source, reason).Inc()
}

// RecordKeyCacheHit records a key served from cache.
func (m *Metrics) RecordKeyCacheHit() {
	if !m.on() {
		return
	}
	m.keyCacheHitsTotal.Inc()
}

// RecordKeyCacheMiss records a key lookup that needed a fetch.
func (m *Metrics) RecordKeyCacheMiss() {
	if !m.on() {
		return
	}
	m.keyCacheMissTotal.Inc()
}

// RecordKeyFetch records a key set fetch and its outcome.
func (m *Metrics) RecordKeyFetch(result string, durationSeconds float64) {
	if !m.on() {
		return
	}
	m.keyFetchesTotal.WithLabelValues(result).Inc()
	m.keyFetchDuration.Observe(durationSeconds)
}

// SetKeyCacheSize sets the current number of cached keys.
func (m *Metrics) SetKeyCacheSize(size int) {
	if !m.on() {
		return
	}
	m.keyCacheEntries.Set(float64(size))
}

// RecordOperation records a reservation operation result.
func (m *Metrics) RecordOperation(operation, result string) {
	if !m.on() {
		return
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}
