// Package metrics exposes Prometheus collectors for the map server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_http_requests_total",
		Help: "Total HTTP requests by method and status code",
	}, []string{"method", "code"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "energymap_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	LoadAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_load_attempts_total",
		Help: "Total data load attempts per city",
	}, []string{"city"})
	LoadFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_load_failures_total",
		Help: "Total terminal data load failures per city",
	}, []string{"city"})
	StaleLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_stale_loads_total",
		Help: "Total load results discarded because a newer load started",
	}, []string{"city"})
	RendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_renders_total",
		Help: "Total rendered map surfaces per city",
	}, []string{"city"})
	RenderDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "energymap_render_duration_ms",
		Help:    "Map surface render duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	TransformFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_transform_fallbacks_total",
		Help: "Total coordinates left untransformed after a projection failure",
	}, []string{"city"})
	SkippedFeaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_skipped_features_total",
		Help: "Total features dropped while building a data layer",
	}, []string{"city"})
	TileFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energymap_tile_fetches_total",
		Help: "Total base tile lookups by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(LoadAttemptsTotal)
	prometheus.MustRegister(LoadFailuresTotal)
	prometheus.MustRegister(StaleLoadsTotal)
	prometheus.MustRegister(RendersTotal)
	prometheus.MustRegister(RenderDurationMs)
	prometheus.MustRegister(TransformFallbacksTotal)
	prometheus.MustRegister(SkippedFeaturesTotal)
	prometheus.MustRegister(TileFetchesTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }
