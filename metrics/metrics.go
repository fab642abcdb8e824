// Package metrics holds the Prometheus collectors of the site. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	webhooks      *prometheus.CounterVec
	invalidations prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	queries       *prometheus.HistogramVec
	prerendered   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bybj",
			Name:      "webhook_requests_total",
			Help:      "Revalidation webhooks by outcome.",
		}, []string{"outcome"}),
		invalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bybj",
			Name:      "cache_entries_invalidated_total",
			Help:      "Cache entries dropped by revalidation.",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bybj",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		queries: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bybj",
			Name:      "content_query_duration_seconds",
			Help:      "Content API query latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		prerendered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bybj",
			Name:      "pages_prerendered_total",
			Help:      "Pages rendered ahead of requests by the warmer.",
		}),
	}
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Invalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidations.Add(float64(n))
}

// CacheLookup records a hit or miss; kind is "page" or "query".
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Query(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) Prerendered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prerendered.Add(float64(n))
}
