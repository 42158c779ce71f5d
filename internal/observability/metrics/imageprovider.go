// Package metrics provides custom Prometheus metrics for the image backfill components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageProviderMetrics contains Prometheus metrics for provider searches and image downloads.
type ImageProviderMetrics struct {
	SearchRequests   *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ImageDownloads   prometheus.Counter
	DownloadErrors   prometheus.Counter
	DownloadDuration prometheus.Histogram
	DownloadBytes    prometheus.Histogram
}

// NewImageProviderMetrics creates and registers the image provider metrics.
func NewImageProviderMetrics(registry *prometheus.Registry) (*ImageProviderMetrics, error) {
	m := &ImageProviderMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageProvider metrics: %w", err)
	}
	return m, nil
}

func (m *ImageProviderMetrics) initMetrics() {
	m.SearchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "image_provider_search_requests_total",
		Help: "Total number of image search requests by provider and result.",
	}, []string{"provider", "result"})

	m.SearchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "image_provider_search_duration_seconds",
		Help:    "Duration of image search requests in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider"})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_cache_hits_total",
		Help: "Total number of query cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_cache_misses_total",
		Help: "Total number of query cache misses.",
	})

	m.ImageDownloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_downloads_total",
		Help: "Total number of image downloads.",
	})

	m.DownloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_download_errors_total",
		Help: "Total number of image download errors.",
	})

	m.DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_provider_download_duration_seconds",
		Help:    "Duration of image downloads in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	m.DownloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_provider_download_size_bytes",
		Help:    "Size of downloaded images in bytes.",
		Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
	})
}

// ObserveSearch records one provider search. result is "hit", "empty" or "error".
func (m *ImageProviderMetrics) ObserveSearch(provider, result string, durationSeconds float64) {
	m.SearchRequests.WithLabelValues(provider, result).Inc()
	m.SearchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ImageProviderMetrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ImageProviderMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// ObserveDownload records a successful download.
func (m *ImageProviderMetrics) ObserveDownload(durationSeconds float64, sizeBytes int) {
	m.ImageDownloads.Inc()
	m.DownloadDuration.Observe(durationSeconds)
	m.DownloadBytes.Observe(float64(sizeBytes))
}

// IncrementDownloadErrors increases the download error counter by one.
func (m *ImageProviderMetrics) IncrementDownloadErrors() {
	m.DownloadErrors.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SearchRequests.Collect(ch)
	m.SearchDuration.Collect(ch)
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.ImageDownloads
	ch <- m.DownloadErrors
	ch <- m.DownloadDuration
	ch <- m.DownloadBytes
}

// Describe implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SearchRequests.Describe(ch)
	m.SearchDuration.Describe(ch)
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.ImageDownloads.Desc()
	ch <- m.DownloadErrors.Desc()
	ch <- m.DownloadDuration.Desc()
	ch <- m.DownloadBytes.Desc()
}
