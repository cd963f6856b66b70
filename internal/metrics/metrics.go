package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Client session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperview_active_sessions",
			Help: "Number of connected dashboard WebSocket clients",
		},
	)

	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperview_sessions_total",
			Help: "Total dashboard WebSocket connections accepted",
		},
	)

	ControlMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperview_control_messages_total",
			Help: "Total control messages received from clients",
		},
		[]string{"method"},
	)

	// Upstream relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperview_relay_connections",
			Help: "Number of live upstream relay connections",
		},
	)

	RelayOpens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperview_relay_opens_total",
			Help: "Total upstream relay connections opened",
		},
	)

	RelayCloses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperview_relay_closes_total",
			Help: "Total upstream relay connections closed",
		},
	)

	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperview_relay_messages_total",
			Help: "Total upstream messages forwarded downstream",
		},
		[]string{"channel"},
	)

	RelayErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperview_relay_errors_total",
			Help: "Total upstream relay failures surfaced to clients",
		},
	)

	// REST proxy metrics
	RESTRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperview_rest_requests_total",
			Help: "Total REST requests by route and status",
		},
		[]string{"route", "status"},
	)

	RESTLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyperview_rest_latency_ms",
			Help:    "REST request latency in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"route"},
	)

	RateLimitDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperview_rate_limit_denials_total",
			Help: "Total requests denied by the per-IP rate limiter",
		},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperview_upstream_errors_total",
			Help: "Total upstream call failures by target",
		},
		[]string{"target"}, // hyperliquid, dexscreener
	)

	SynthesizedSeries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperview_synthesized_series_total",
			Help: "Total candle series produced by the fallback synthesizer",
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperview_cache_hits_total",
			Help: "Total cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperview_cache_misses_total",
			Help: "Total cache misses by tier",
		},
		[]string{"tier"},
	)

	CacheHitRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hyperview_cache_hit_ratio",
			Help: "Cache hit ratio by tier (0-1)",
		},
		[]string{"tier"},
	)
)

// RecordCacheAccess records a cache hit or miss
func RecordCacheAccess(tier string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(tier).Inc()
	} else {
		CacheMisses.WithLabelValues(tier).Inc()
	}
	updateCacheHitRatio(tier)
}

// updateCacheHitRatio calculates and updates cache hit ratio
func updateCacheHitRatio(tier string) {
	hits, _ := CacheHits.GetMetricWithLabelValues(tier)
	misses, _ := CacheMisses.GetMetricWithLabelValues(tier)

	if hits != nil && misses != nil {
		hitsMetric := &dto.Metric{}
		missesMetric := &dto.Metric{}

		if hits.Write(hitsMetric) == nil && misses.Write(missesMetric) == nil {
			hitsVal := hitsMetric.Counter.GetValue()
			missesVal := missesMetric.Counter.GetValue()

			total := hitsVal + missesVal
			if total > 0 {
				CacheHitRatio.WithLabelValues(tier).Set(hitsVal / total)
			}
		}
	}
}
