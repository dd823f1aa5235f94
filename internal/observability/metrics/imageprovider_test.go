package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageProviderMetrics_Record(t *testing.T) {
	t.Parallel()

	m, err := NewImageProviderMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncrementCacheHits()
	m.IncrementCacheMisses()
	m.IncrementCacheMisses()
	m.RecordProbe(ProbeNotFound)
	m.RecordProbe(ProbeNotFound)
	m.RecordProbe(ProbeFound)
	m.RecordResolution("make", OutcomeFetched)
	m.SetCacheSize(2, 2048)
	m.IncrementPreloadWaves()

	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheMisses), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Probes.WithLabelValues(ProbeNotFound)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Probes.WithLabelValues(ProbeFound)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Resolutions.WithLabelValues("make", OutcomeFetched)), 0)
	assert.InDelta(t, 2048, testutil.ToFloat64(m.CacheSize), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PreloadWaves), 0)
}

func TestImageProviderMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *ImageProviderMetrics
	assert.NotPanics(t, func() {
		m.IncrementCacheHits()
		m.IncrementCacheMisses()
		m.RecordProbe(ProbeError)
		m.RecordResolution("model", OutcomeFallback)
		m.ObserveDownloadDuration(0.2)
		m.SetCacheSize(1, 1)
		m.IncrementPreloadWaves()
	})
}

func TestImageProviderMetrics_DoubleRegister(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewImageProviderMetrics(registry)
	require.NoError(t, err)
	_, err = NewImageProviderMetrics(registry)
	assert.Error(t, err)
}
