// Package metrics provides custom Prometheus metrics for the image resolution service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageProviderMetrics contains all Prometheus metrics related to image resolution.
// A nil *ImageProviderMetrics is valid and records nothing.
type ImageProviderMetrics struct {
	CacheSize        prometheus.Gauge
	CacheEntries     prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	Probes           *prometheus.CounterVec
	Resolutions      *prometheus.CounterVec
	DownloadDuration prometheus.Histogram
	PreloadWaves     prometheus.Counter
	registry         *prometheus.Registry
}

// NewImageProviderMetrics creates a new instance of ImageProviderMetrics.
// It returns an error if metric registration fails.
func NewImageProviderMetrics(registry *prometheus.Registry) (*ImageProviderMetrics, error) {
	m := &ImageProviderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageProvider metrics: %w", err)
	}
	return m, nil
}

func (m *ImageProviderMetrics) initMetrics() {
	m.CacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "image_provider_cache_size_bytes",
		Help: "Current size of the blob cache in bytes.",
	})

	m.CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "image_provider_cache_entries",
		Help: "Current number of resolved images held in the blob cache.",
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_cache_hits_total",
		Help: "Total number of cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_cache_misses_total",
		Help: "Total number of cache misses.",
	})

	m.Probes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "image_provider_probes_total",
		Help: "Total number of candidate probes against the object store.",
	}, []string{"result"}) // found, not_found, error

	m.Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "image_provider_resolutions_total",
		Help: "Total number of image resolutions by outcome.",
	}, []string{"folder", "outcome"}) // outcome: cached, fetched, fallback, failed

	m.DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_provider_download_duration_seconds",
		Help:    "Duration of candidate resolution in seconds, from first probe to result.",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	m.PreloadWaves = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_preload_waves_total",
		Help: "Total number of preload waves executed.",
	})
}

// SetCacheSize updates the blob cache gauges.
func (m *ImageProviderMetrics) SetCacheSize(entries int, sizeBytes int64) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(entries))
	m.CacheSize.Set(float64(sizeBytes))
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ImageProviderMetrics) IncrementCacheHits() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ImageProviderMetrics) IncrementCacheMisses() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// RecordProbe counts one candidate probe with its result label.
func (m *ImageProviderMetrics) RecordProbe(result string) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(result).Inc()
}

// RecordResolution counts one finished resolution.
func (m *ImageProviderMetrics) RecordResolution(folder, outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(folder, outcome).Inc()
}

// ObserveDownloadDuration records the duration of a candidate walk in seconds.
func (m *ImageProviderMetrics) ObserveDownloadDuration(durationSeconds float64) {
	if m == nil {
		return
	}
	m.DownloadDuration.Observe(durationSeconds)
}

// IncrementPreloadWaves increases the preload wave counter by one.
func (m *ImageProviderMetrics) IncrementPreloadWaves() {
	if m == nil {
		return
	}
	m.PreloadWaves.Inc()
}

func (m *ImageProviderMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CacheSize,
		m.CacheEntries,
		m.CacheHits,
		m.CacheMisses,
		m.Probes,
		m.Resolutions,
		m.DownloadDuration,
		m.PreloadWaves,
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}
