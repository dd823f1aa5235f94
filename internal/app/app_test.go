package app

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/imageprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func testSettings() *conf.Settings {
	return &conf.Settings{
		OCI: conf.OCISettings{
			Backend:  conf.BackendHTTP,
			BaseURL:  "https://oci.test",
			ReadPath: conf.DefaultReadPath,
			Timeout:  5 * time.Second,
		},
		Images: conf.ImageSettings{
			FallbackRef: conf.DefaultFallbackRef,
			Folders:     map[string]string{"make": "make/", "model": "model/", "bogus": "x/"},
		},
		Preload: conf.PreloadSettings{BatchSize: 2, WaveDelay: time.Millisecond},
	}
}

func newMockStore(objects map[string][]byte) *httpmock.MockTransport {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, "https://oci.test/api/oci/read",
		func(req *http.Request) (*http.Response, error) {
			data, ok := objects[req.URL.Query().Get("name")]
			if !ok {
				return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
			}
			resp := httpmock.NewBytesResponse(http.StatusOK, data)
			resp.Header.Set("Content-Type", "image/jpeg")
			return resp, nil
		})
	return mock
}

func TestNew_HTTPBackend(t *testing.T) {
	t.Parallel()

	mock := newMockStore(map[string][]byte{"make/MARUTI SUZUKI.jpg": jpegBytes})
	a, err := New(testSettings(), WithTransport(mock))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Catalog)
	require.NotNil(t, a.ObjectURL)
	assert.Equal(t, "https://oci.test/api/oci/read?name=make%2FAUDI.png", a.ObjectURL("make/AUDI.png"))

	h, ok := a.Resolver.Resolve(t.Context(), imageprovider.Key{Folder: imageprovider.FolderMake, Name: "maruti suzuki"})
	require.True(t, ok)
	assert.Equal(t, "make/MARUTI SUZUKI.jpg", h.Path)
	assert.Equal(t, 4, mock.GetTotalCallCount())

	cached, ok := a.Cache.Get(imageprovider.Key{Folder: imageprovider.FolderMake, Name: "maruti suzuki"})
	require.True(t, ok)
	assert.Same(t, h, cached)
}

type fetchReporter struct {
	events atomic.Int32
}

func (f *fetchReporter) IsEnabled() bool { return true }

func (f *fetchReporter) ReportError(ee *errors.EnhancedError) {
	if ee.Component == "objectstore" || ee.Category == errors.CategoryImageFetch {
		f.events.Add(1)
	}
}

func TestNew_TransportOutageReportsOnce(t *testing.T) {
	reporter := &fetchReporter{}
	errors.SetTelemetryReporter(reporter)
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	mock := httpmock.NewMockTransport()
	mock.RegisterNoResponder(httpmock.NewErrorResponder(errors.NewStd("connection refused")))
	a, err := New(testSettings(), WithTransport(mock))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, ok := a.Resolver.Resolve(t.Context(), imageprovider.Key{Folder: imageprovider.FolderMake, Name: "audi"})
	assert.False(t, ok)
	assert.Equal(t, int32(1), reporter.events.Load())
}

func TestNew_UnmappedFolderFromConfigIsIgnored(t *testing.T) {
	t.Parallel()

	mock := newMockStore(map[string][]byte{"brand/BOSCH.png": jpegBytes})
	a, err := New(testSettings(), WithTransport(mock))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	// brand is not in the configured folder map, so it probes bare names only.
	_, ok := a.Resolver.Resolve(t.Context(), imageprovider.Key{Folder: imageprovider.FolderBrand, Name: "bosch"})
	assert.False(t, ok)
	assert.Equal(t, imageprovider.MaxCandidates, mock.GetTotalCallCount())
}

func TestNew_ModelsResolvedThroughCatalog(t *testing.T) {
	t.Parallel()

	mock := newMockStore(map[string][]byte{"model/A3 SPORTBACK.png": jpegBytes})
	mock.RegisterResponder(http.MethodGet, "https://catalog.test/api/models/resolve",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("partNumber") == "8V1" {
				return httpmock.NewStringResponse(http.StatusOK, `{"name":"A3 Sportback"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"name":null}`), nil
		})

	settings := testSettings()
	settings.Catalog = conf.CatalogSettings{BaseURL: "https://catalog.test", CacheTTL: time.Minute}
	a, err := New(settings, WithTransport(mock))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.Catalog)

	h, ok := a.Resolver.Resolve(t.Context(), imageprovider.Key{Folder: imageprovider.FolderModel, Name: "8V1", AuxName: "AUDI"})
	require.True(t, ok)
	assert.Equal(t, "model/A3 SPORTBACK.png", h.Path)

	before := mock.GetTotalCallCount()
	_, ok = a.Resolver.Resolve(t.Context(), imageprovider.Key{Folder: imageprovider.FolderModel, Name: "ZZZ", AuxName: "AUDI"})
	assert.False(t, ok)
	assert.Equal(t, before+1, mock.GetTotalCallCount(), "unknown model must not probe storage")
}

func TestNew_S3Backend(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.OCI.Backend = conf.BackendS3
	settings.OCI.S3 = conf.S3Settings{Endpoint: "minio.test:9000", Bucket: "images", AccessKey: "k", SecretKey: "s"}

	a, err := New(settings, WithTransport(httpmock.NewMockTransport()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Nil(t, a.ObjectURL)
	assert.NotNil(t, a.Reader)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown backend", func(t *testing.T) {
		settings := testSettings()
		settings.OCI.Backend = "ftp"
		_, err := New(settings)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		settings := testSettings()
		settings.OCI.Backend = conf.BackendS3
		settings.OCI.S3.Endpoint = "minio.test:9000"
		_, err := New(settings)
		require.Error(t, err)
	})
}

func TestBatchSize(t *testing.T) {
	t.Parallel()

	a := &App{Settings: testSettings()}
	assert.Equal(t, 5, a.BatchSize(5))
	assert.Equal(t, 2, a.BatchSize(0))

	a.Settings.Preload.BatchSize = 0
	assert.Equal(t, imageprovider.DefaultBatchSize, a.BatchSize(-1))
}
