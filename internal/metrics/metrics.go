// Package metrics holds the Prometheus collectors for the ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the ledger's collectors. A nil *Metrics records nothing.
type Metrics struct {
	cacheLookups  *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_cache_lookups_total",
			Help: "Balance cache lookups by result (hit, miss, error, bypassed).",
		}, []string{"result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mutations_total",
			Help: "Balance mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_store_duration_seconds",
			Help:    "Latency of durable ledger store calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.cacheLookups, m.mutations, m.storeDuration)
	return m
}

// CacheLookup counts one cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Mutation counts one spend or recharge outcome.
func (m *Metrics) Mutation(op, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome).Inc()
}

// ObserveStore records how long a store call took.
func (m *Metrics) ObserveStore(op string, since time.Time) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(op).Observe(time.Since(since).Seconds())
}
