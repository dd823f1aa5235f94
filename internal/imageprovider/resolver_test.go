package imageprovider

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/objectstore"
	"github.com/partscatalog/imagecache/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_FindsOnFourthProbeAndCaches(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"make/MARUTI SUZUKI.jpg": []byte("jpeg")})
	r := newTestResolver(reader)
	key := Key{Folder: FolderMake, Name: "maruti suzuki"}

	h, ok := r.Resolve(t.Context(), key)
	require.True(t, ok)
	assert.Equal(t, "make/MARUTI SUZUKI.jpg", h.Path)
	assert.Equal(t, []byte("jpeg"), h.Bytes())
	assert.Equal(t, key, h.Key)
	assert.Equal(t, []string{
		"make/MARUTI SUZUKI.png",
		"make/maruti suzuki.png",
		"make/maruti suzuki.png",
		"make/MARUTI SUZUKI.jpg",
	}, reader.Probes())

	cached, ok := r.Cache().Get(key)
	require.True(t, ok)
	assert.Same(t, h, cached)
}

func TestResolver_SecondResolveIsCacheOnly(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"brand/BOSCH.png": []byte("png")})
	r := newTestResolver(reader)
	key := Key{Folder: FolderBrand, Name: "bosch"}

	first, ok := r.Resolve(t.Context(), key)
	require.True(t, ok)
	probes := reader.ProbeCount()

	second, ok := r.Resolve(t.Context(), key)
	require.True(t, ok)
	assert.Same(t, first, second)
	assert.Equal(t, probes, reader.ProbeCount(), "cached key must not probe again")
}

func TestResolver_EmptyName(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(nil)
	models := ModelNameResolverFunc(func(context.Context, string, string) (string, error) {
		t.Error("model name resolver must not be called for an empty name")
		return "", nil
	})
	r := newTestResolver(reader, WithModelNames(models))

	for _, key := range []Key{
		{Folder: FolderMake},
		{Folder: FolderProducts, Name: "   "},
		{Folder: FolderModel, Name: "", AuxName: "AUDI"},
	} {
		h, ok := r.Resolve(t.Context(), key)
		assert.False(t, ok)
		assert.Nil(t, h)
	}
	assert.Zero(t, reader.ProbeCount())
}

func TestResolver_ExhaustionBoundedProbes(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(nil)
	r := newTestResolver(reader)

	h, ok := r.Resolve(t.Context(), Key{Folder: FolderProducts, Name: "SKU-404"})
	assert.False(t, ok)
	assert.Nil(t, h)
	assert.Equal(t, MaxCandidates, reader.ProbeCount())
	assert.Zero(t, r.Cache().Len())
}

func TestResolver_DeterministicOrder(t *testing.T) {
	t.Parallel()

	key := Key{Folder: FolderSubcategories, Name: "oil+filters"}

	a := newFakeReader(nil)
	newTestResolver(a).Resolve(t.Context(), key)
	b := newFakeReader(nil)
	newTestResolver(b).Resolve(t.Context(), key)

	assert.Equal(t, a.Probes(), b.Probes())
	assert.Equal(t, slices.Collect(Candidates("subcategories/", "oil filters")), a.Probes())
}

func TestResolver_ModelNameUnknown(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(nil)
	var gotPart, gotMake string
	models := ModelNameResolverFunc(func(_ context.Context, partNumber, makeName string) (string, error) {
		gotPart, gotMake = partNumber, makeName
		return "", nil
	})
	r := newTestResolver(reader, WithModelNames(models))

	_, ok := r.Resolve(t.Context(), Key{Folder: FolderModel, Name: "A3", AuxName: "AUDI"})
	assert.False(t, ok)
	assert.Zero(t, reader.ProbeCount())
	assert.Equal(t, "A3", gotPart)
	assert.Equal(t, "AUDI", gotMake)
}

func TestResolver_ModelNameError(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(nil)
	models := ModelNameResolverFunc(func(context.Context, string, string) (string, error) {
		return "", errors.NewStd("catalog unavailable")
	})
	r := newTestResolver(reader, WithModelNames(models))

	_, ok := r.Resolve(t.Context(), Key{Folder: FolderModel, Name: "A3", AuxName: "AUDI"})
	assert.False(t, ok)
	assert.Zero(t, reader.ProbeCount())
}

func TestResolver_ModelWithoutCollaborator(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"model/A3.png": []byte("png")})
	r := newTestResolver(reader)

	_, ok := r.Resolve(t.Context(), Key{Folder: FolderModel, Name: "A3", AuxName: "AUDI"})
	assert.False(t, ok)
	assert.Zero(t, reader.ProbeCount())
}

func TestResolver_ModelTranslated(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"model/a3 sportback.png": []byte("png")})
	models := ModelNameResolverFunc(func(context.Context, string, string) (string, error) {
		return "A3+Sportback", nil
	})
	r := newTestResolver(reader, WithModelNames(models))
	key := Key{Folder: FolderModel, Name: "8V1", AuxName: "AUDI"}

	h, ok := r.Resolve(t.Context(), key)
	require.True(t, ok)
	assert.Equal(t, "model/a3 sportback.png", h.Path)
	assert.Equal(t, []string{"model/A3 SPORTBACK.png", "model/a3 sportback.png"}, reader.Probes())

	// cached under the logical key, not the translated name
	_, ok = r.Cache().Get(key)
	assert.True(t, ok)
}

func TestResolver_UnmappedFolderProbesBareNames(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(nil)
	r := newTestResolver(reader)

	_, ok := r.Resolve(t.Context(), Key{Folder: FolderAggregate, Name: "engine"})
	assert.False(t, ok)
	probes := reader.Probes()
	require.Len(t, probes, MaxCandidates)
	assert.Equal(t, "ENGINE.png", probes[0])
}

func TestResolver_CustomPrefixes(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"assets/Make/AUDI.png": []byte("png")})
	r := newTestResolver(reader, WithFolderPrefixes(FolderPrefixes{FolderMake: "assets/Make/"}))

	h, ok := r.Resolve(t.Context(), Key{Folder: FolderMake, Name: "audi"})
	require.True(t, ok)
	assert.Equal(t, "assets/Make/AUDI.png", h.Path)
}

func TestResolver_TransportErrorsSwallowed(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"make/audi.png": []byte("png")})
	reader.errs["make/AUDI.png"] = errors.Newf("connection reset").
		Category(errors.CategoryNetwork).
		Unreported().
		Build()
	r := newTestResolver(reader)

	h, ok := r.Resolve(t.Context(), Key{Folder: FolderMake, Name: "audi"})
	require.True(t, ok)
	assert.Equal(t, "make/audi.png", h.Path)
	assert.Equal(t, 2, reader.ProbeCount())
}

// keyReporter records telemetry events raised for one key.
type keyReporter struct {
	key    string
	mu     sync.Mutex
	events []*errors.EnhancedError
}

func (k *keyReporter) IsEnabled() bool { return true }

func (k *keyReporter) ReportError(ee *errors.EnhancedError) {
	if ee.GetContext()["key"] != k.key {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, ee)
}

func (k *keyReporter) Events() []*errors.EnhancedError {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.events)
}

func TestResolver_OutageReportsOncePerResolution(t *testing.T) {
	key := Key{Folder: FolderMake, Name: "outage motors"}
	reporter := &keyReporter{key: key.String()}
	errors.SetTelemetryReporter(reporter)
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	reader := objectstore.ReaderFunc(func(_ context.Context, name string) (*objectstore.Object, error) {
		return nil, errors.Newf("dial tcp: connection refused").
			Component("objectstore").
			Category(errors.CategoryNetwork).
			Context("object", name).
			Unreported().
			Build()
	})
	r := newTestResolver(reader)

	h, ok := r.Resolve(t.Context(), key)
	require.False(t, ok)
	assert.Nil(t, h)

	events := reporter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, errors.CategoryImageFetch, events[0].Category)
	assert.Equal(t, MaxCandidates, events[0].GetContext()["failed_probes"])
}

func TestResolver_MissesAreNotReported(t *testing.T) {
	key := Key{Folder: FolderMake, Name: "unknown motors"}
	reporter := &keyReporter{key: key.String()}
	errors.SetTelemetryReporter(reporter)
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	r := newTestResolver(newFakeReader(nil))
	_, ok := r.Resolve(t.Context(), key)
	require.False(t, ok)
	assert.Empty(t, reporter.Events())
}

func TestResolver_ConcurrentWithoutCoalescing(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"make/AUDI.png": []byte("png")})
	reader.gate = make(chan struct{})
	r := newTestResolver(reader)
	key := Key{Folder: FolderMake, Name: "audi"}

	const callers = 3
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			handles[i], _ = r.Resolve(t.Context(), key)
		})
	}
	require.Eventually(t, func() bool { return reader.ProbeCount() == callers }, time.Second, 5*time.Millisecond)
	close(reader.gate)
	wg.Wait()

	// each caller probed independently, but all end up with the resident handle
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, 1, r.Cache().Len())
}

func TestResolver_Coalescing(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(map[string][]byte{"make/AUDI.png": []byte("png")})
	reader.gate = make(chan struct{})
	r := newTestResolver(reader, WithCoalescing(true))
	key := Key{Folder: FolderMake, Name: "audi"}

	const callers = 4
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			handles[i], _ = r.Resolve(t.Context(), key)
		})
	}
	require.Eventually(t, func() bool { return reader.ProbeCount() == 1 }, time.Second, 5*time.Millisecond)
	// give the other callers time to join the in-flight call
	time.Sleep(20 * time.Millisecond)
	close(reader.gate)
	wg.Wait()

	assert.Equal(t, 1, reader.ProbeCount())
	for _, h := range handles {
		require.NotNil(t, h)
		assert.Same(t, handles[0], h)
	}
}

func TestResolver_Metrics(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewImageProviderMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	reader := newFakeReader(map[string][]byte{"make/MARUTI SUZUKI.jpg": []byte("jpeg")})
	r := newTestResolver(reader, WithMetrics(m))
	key := Key{Folder: FolderMake, Name: "maruti suzuki"}

	_, ok := r.Resolve(t.Context(), key)
	require.True(t, ok)
	_, ok = r.Resolve(t.Context(), key)
	require.True(t, ok)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheMisses), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Probes.WithLabelValues(metrics.ProbeNotFound)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Probes.WithLabelValues(metrics.ProbeFound)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Resolutions.WithLabelValues("make", metrics.OutcomeFetched)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Resolutions.WithLabelValues("make", metrics.OutcomeCached)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheEntries), 0)
}
