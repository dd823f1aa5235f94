// Package app assembles the image cache components from Settings.
package app

import (
	"net/http"

	"github.com/partscatalog/imagecache/internal/catalog"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/httpclient"
	"github.com/partscatalog/imagecache/internal/imageprovider"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/partscatalog/imagecache/internal/objectstore"
	"github.com/partscatalog/imagecache/internal/observability"
)

// App holds the wired components shared by every command.
type App struct {
	Settings  *conf.Settings
	Metrics   *observability.Metrics
	HTTP      *httpclient.Client
	Reader    objectstore.Reader
	Catalog   *catalog.Client // nil when no catalog is configured
	Cache     *imageprovider.BlobCache
	Resolver  *imageprovider.Resolver
	Preloader *imageprovider.Preloader

	// ObjectURL maps an object path to its remote URL; nil for the s3 backend.
	ObjectURL func(path string) string

	logger logger.Logger
}

// Option adjusts how an App is built.
type Option func(*options)

type options struct {
	transport http.RoundTripper
}

// WithTransport routes every outgoing request through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// New builds an App from settings.
func New(settings *conf.Settings, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Settings: settings,
		Cache:    imageprovider.NewBlobCache(),
		logger:   logger.Global().Module("app"),
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "metrics_init").
			Build()
	}
	a.Metrics = m

	a.HTTP = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.OCI.Timeout,
		UserAgent:      "partsimg",
		Transport:      o.transport,
	})
	if settings.Debug {
		a.installDebugHooks()
	}

	if err := a.buildReader(o.transport); err != nil {
		a.HTTP.Close()
		return nil, err
	}

	if settings.Catalog.BaseURL != "" {
		a.Catalog, err = catalog.NewClient(a.HTTP, catalog.Config{
			BaseURL:   settings.Catalog.BaseURL,
			ModelPath: settings.Catalog.ModelPath,
			CacheTTL:  settings.Catalog.CacheTTL,
		})
		if err != nil {
			a.HTTP.Close()
			return nil, err
		}
	}

	prefixes, unknown := imageprovider.ParseFolderPrefixes(settings.Images.Folders)
	if len(unknown) > 0 {
		a.logger.Warn("ignoring unknown image folders", logger.Any("folders", unknown))
	}

	resolverOpts := []imageprovider.ResolverOption{
		imageprovider.WithFolderPrefixes(prefixes),
		imageprovider.WithMetrics(m.ImageProvider),
		imageprovider.WithCoalescing(settings.Images.CoalesceInflight),
	}
	if a.Catalog != nil {
		resolverOpts = append(resolverOpts, imageprovider.WithModelNames(a.Catalog))
	}
	a.Resolver = imageprovider.NewResolver(a.Reader, a.Cache, resolverOpts...)

	a.Preloader = imageprovider.NewPreloader(a.Resolver, imageprovider.PreloaderConfig{
		WaveDelay: settings.Preload.WaveDelay,
		Fallback:  settings.Images.FallbackRef,
		Metrics:   m.ImageProvider,
	})

	a.logger.Info("image cache ready",
		logger.String("backend", settings.OCI.Backend),
		logger.Int("folders", len(prefixes)),
		logger.Bool("catalog", a.Catalog != nil),
		logger.Bool("coalesce", settings.Images.CoalesceInflight))
	return a, nil
}

func (a *App) buildReader(transport http.RoundTripper) error {
	oci := a.Settings.OCI
	switch oci.Backend {
	case conf.BackendS3:
		r, err := objectstore.NewMinioReader(objectstore.MinioConfig{
			Endpoint:      oci.S3.Endpoint,
			Bucket:        oci.S3.Bucket,
			AccessKey:     oci.S3.AccessKey,
			SecretKey:     oci.S3.SecretKey,
			UseSSL:        oci.S3.UseSSL,
			Region:        oci.S3.Region,
			Prefix:        oci.S3.Prefix,
			MaxObjectSize: oci.MaxObjectSize,
			Transport:     transport,
		})
		if err != nil {
			return err
		}
		a.Reader = r
	case conf.BackendHTTP, "":
		r, err := objectstore.NewHTTPReader(a.HTTP, objectstore.HTTPConfig{
			BaseURL:       oci.BaseURL,
			ReadPath:      oci.ReadPath,
			MaxObjectSize: oci.MaxObjectSize,
			RateLimit:     oci.RateLimit,
		})
		if err != nil {
			return err
		}
		a.Reader = r
		a.ObjectURL = r.URL
	default:
		return errors.Newf("unknown object store backend %q", oci.Backend).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// installDebugHooks logs every outgoing request at debug level.
func (a *App) installDebugHooks() {
	log := a.logger.Module("http")
	a.HTTP.SetBeforeRequestHook(func(req *http.Request) {
		log.Debug("outgoing request", logger.String("method", req.Method), logger.String("url", req.URL.Redacted()))
	})
	a.HTTP.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
		if err != nil {
			log.Debug("request failed", logger.String("url", req.URL.Redacted()), logger.Error(err))
			return
		}
		log.Debug("response received", logger.String("url", req.URL.Redacted()), logger.Int("status", resp.StatusCode))
	})
}

// BatchSize returns the preload wave size, preferring a positive override.
func (a *App) BatchSize(override int) int {
	if override > 0 {
		return override
	}
	if a.Settings.Preload.BatchSize > 0 {
		return a.Settings.Preload.BatchSize
	}
	return imageprovider.DefaultBatchSize
}

// Close releases idle connections.
func (a *App) Close() {
	a.HTTP.Close()
	if a.Catalog != nil {
		a.Catalog.Flush()
	}
}
