// Package observability provides the Prometheus metrics registry for blobvault.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and standard meters.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
	BytesProcessed  *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with standard blobvault metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reqDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blobvault_request_duration_seconds",
		Help:    "Duration of blob requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	reqTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blobvault_request_total",
		Help: "Total number of blob requests.",
	}, []string{"operation", "status"})

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blobvault_cache_requests_total",
		Help: "Plaintext cache lookups by result.",
	}, []string{"result"})

	bytesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blobvault_bytes_processed_total",
		Help: "Total blob bytes processed.",
	}, []string{"direction"})

	reg.MustRegister(reqDuration, reqTotal, cacheRequests, bytesProcessed)

	return &Metrics{
		Registry:        reg,
		RequestDuration: reqDuration,
		RequestTotal:    reqTotal,
		CacheRequests:   cacheRequests,
		BytesProcessed:  bytesProcessed,
	}
}
