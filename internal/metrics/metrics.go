// Package metrics exposes prometheus instrumentation for the
// enrichment pipeline and the baseline refresher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the service's prometheus collectors
type Registry struct {
	EnrichmentsTotal   *prometheus.CounterVec
	EnrichmentDuration prometheus.Histogram
	DVFRefreshTotal    *prometheus.CounterVec
	CachedCities       prometheus.Gauge
}

// NewRegistry creates and registers all collectors on reg
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		EnrichmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxinvest",
			Name:      "enrichments_total",
			Help:      "Enrichment runs by outcome.",
		}, []string{"outcome"}),
		EnrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boxinvest",
			Name:      "enrichment_duration_seconds",
			Help:      "Duration of a single listing enrichment.",
			Buckets:   prometheus.DefBuckets,
		}),
		DVFRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxinvest",
			Name:      "dvf_refresh_total",
			Help:      "Baseline refresh runs by status.",
		}, []string{"status"}),
		CachedCities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "boxinvest",
			Name:      "dvf_cached_cities",
			Help:      "Number of cities with a transaction-derived baseline.",
		}),
	}
	reg.MustRegister(r.EnrichmentsTotal, r.EnrichmentDuration, r.DVFRefreshTotal, r.CachedCities)
	return r
}
