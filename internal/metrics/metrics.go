// Package metrics exposes Prometheus collectors for the batch fetch engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal            *prometheus.CounterVec
	fetchBytesTotal         prometheus.Counter
	fetchDurationSeconds    prometheus.Histogram
	inflightFetches         prometheus.Gauge
	batchesTotal            *prometheus.CounterVec
	rateLimitDelaySeconds   prometheus.Histogram
	cacheHitsTotal          prometheus.Counter
	cacheMissesTotal        prometheus.Counter
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call this
// function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchfetch_fetches_total",
				Help: "Total number of fetch attempts, labeled by status code (0 when no response was obtained).",
			},
			[]string{"status"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "batchfetch_fetch_bytes_total",
				Help: "Total number of body bytes fetched.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batchfetch_fetch_duration_seconds",
				Help:    "Histogram of per-item latencies including rate limit wait.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "batchfetch_inflight_fetches",
				Help: "Number of fetches currently holding a concurrency slot.",
			},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchfetch_batches_total",
				Help: "Total number of batch invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batchfetch_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		cacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "batchfetch_cache_hits_total",
				Help: "Total number of fetch cache hits.",
			},
		)

		cacheMissesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "batchfetch_cache_misses_total",
				Help: "Total number of fetch cache misses.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchfetch_http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchfetch_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch attempt.
func ObserveFetch(statusCode int, bytesFetched int, duration time.Duration) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveBatch increments the batch counter for the given outcome.
func ObserveBatch(outcome string) {
	if batchesTotal == nil {
		return
	}
	batchesTotal.WithLabelValues(outcome).Inc()
}

// IncInflight increments the in-flight fetch gauge.
func IncInflight() {
	if inflightFetches != nil {
		inflightFetches.Inc()
	}
}

// DecInflight decrements the in-flight fetch gauge.
func DecInflight() {
	if inflightFetches != nil {
		inflightFetches.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.Observe(duration.Seconds())
	}
}

// IncCacheHit increments the cache hit counter.
func IncCacheHit() {
	if cacheHitsTotal != nil {
		cacheHitsTotal.Inc()
	}
}

// IncCacheMiss increments the cache miss counter.
func IncCacheMiss() {
	if cacheMissesTotal != nil {
		cacheMissesTotal.Inc()
	}
}

// ObserveHTTPRequest increments the API request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
