// Package metrics exposes Prometheus instruments for the enhancement pipeline and HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_enhancer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_enhancer_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Enhancement Metrics
	EnhancementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_enhancer_enhancements_total",
			Help: "Enhancements produced, by method and billing class",
		},
		[]string{"method", "request_type"},
	)

	EnhancementCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_enhancer_enhancement_cost_usd_total",
			Help: "Accumulated upstream cost in USD",
		},
		[]string{"provider", "key_source"},
	)

	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_enhancer_quota_rejections_total",
			Help: "Requests rejected because a plan limit was reached",
		},
		[]string{"window"},
	)

	// Upstream Metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_enhancer_upstream_request_duration_seconds",
			Help:    "AI provider call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		},
		[]string{"provider", "outcome"},
	)

	UpstreamTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_enhancer_upstream_tokens_total",
			Help: "Tokens reported by AI providers",
		},
		[]string{"provider", "direction"},
	)

	// Cache Metrics
	AuthCacheAccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_enhancer_auth_cache_access_total",
			Help: "Verified-identity cache lookups",
		},
		[]string{"result"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordEnhancement records a produced enhancement and its cost
func RecordEnhancement(method, requestType, provider, keySource string, costUSD float64) {
	EnhancementsTotal.WithLabelValues(method, requestType).Inc()
	if costUSD > 0 {
		EnhancementCostUSD.WithLabelValues(provider, keySource).Add(costUSD)
	}
}

// RecordQuotaRejection records a quota rejection
func RecordQuotaRejection(window string) {
	QuotaRejectionsTotal.WithLabelValues(window).Inc()
}

// RecordUpstreamCall records an AI provider call; outcome is "ok" or an error kind
func RecordUpstreamCall(provider, outcome string, duration float64, inputTokens, outputTokens int) {
	UpstreamRequestDuration.WithLabelValues(provider, outcome).Observe(duration)
	if inputTokens > 0 {
		UpstreamTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		UpstreamTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// RecordCacheAccess records an auth cache lookup
func RecordCacheAccess(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	AuthCacheAccessTotal.WithLabelValues(result).Inc()
}
