package imageprovider

import (
	"context"
	"time"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/partscatalog/imagecache/internal/objectstore"
	"github.com/partscatalog/imagecache/internal/observability/metrics"
	"golang.org/x/sync/singleflight"
)

// ModelNameResolver maps a part number and make to the catalog display name used
// for model artwork. An empty result means the model is unknown.
type ModelNameResolver interface {
	ResolveModelName(ctx context.Context, partNumber, makeName string) (string, error)
}

// ModelNameResolverFunc adapts a function to ModelNameResolver.
type ModelNameResolverFunc func(ctx context.Context, partNumber, makeName string) (string, error)

// ResolveModelName calls f.
func (f ModelNameResolverFunc) ResolveModelName(ctx context.Context, partNumber, makeName string) (string, error) {
	return f(ctx, partNumber, makeName)
}

// KeyResolver resolves a key to a cached handle. ok is false when the fallback
// image should be used instead.
type KeyResolver interface {
	Resolve(ctx context.Context, key Key) (h *Handle, ok bool)
}

// Resolver finds the remote object for a key by probing candidate paths in order
// and stores the first hit in a BlobCache.
type Resolver struct {
	reader   objectstore.Reader
	cache    *BlobCache
	models   ModelNameResolver
	prefixes FolderPrefixes
	metrics  *metrics.ImageProviderMetrics
	logger   logger.Logger

	coalesce bool
	inflight singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithModelNames sets the collaborator used to translate model part numbers.
func WithModelNames(m ModelNameResolver) ResolverOption {
	return func(r *Resolver) { r.models = m }
}

// WithFolderPrefixes replaces the default folder prefixes.
func WithFolderPrefixes(p FolderPrefixes) ResolverOption {
	return func(r *Resolver) { r.prefixes = p }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.ImageProviderMetrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithCoalescing collapses concurrent resolutions of the same uncached key into one.
func WithCoalescing(enabled bool) ResolverOption {
	return func(r *Resolver) { r.coalesce = enabled }
}

// NewResolver creates a Resolver reading from reader and caching into cache.
// A nil cache gets a private one.
func NewResolver(reader objectstore.Reader, cache *BlobCache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		reader:   reader,
		cache:    cache,
		prefixes: DefaultFolderPrefixes(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewBlobCache()
	}
	if r.logger == nil {
		r.logger = logger.Global().Module("imageprovider.resolver")
	}
	return r
}

// Cache returns the cache the resolver fills.
func (r *Resolver) Cache() *BlobCache {
	return r.cache
}

// Resolve returns the handle for key, probing remote storage on a cache miss.
// It never returns an error: misses, transport failures and unknown models all
// yield ok == false.
func (r *Resolver) Resolve(ctx context.Context, key Key) (*Handle, bool) {
	if key.Empty() {
		return nil, false
	}

	if h, ok := r.cache.Get(key); ok {
		r.metrics.IncrementCacheHits()
		r.metrics.RecordResolution(string(key.Folder), metrics.OutcomeCached)
		return h, true
	}
	r.metrics.IncrementCacheMisses()

	if !r.coalesce {
		h := r.resolve(ctx, key)
		return h, h != nil
	}

	v, _, shared := r.inflight.Do(key.String(), func() (any, error) {
		return r.resolve(ctx, key), nil
	})
	h, _ := v.(*Handle)
	if shared {
		r.logger.Debug("joined in-flight resolution", logger.String("key", key.String()))
	}
	return h, h != nil
}

func (r *Resolver) resolve(ctx context.Context, key Key) *Handle {
	log := r.logger.With(
		logger.String("folder", string(key.Folder)),
		logger.String("name", key.Name))

	name := key.Name
	if key.Folder == FolderModel {
		translated, ok := r.translateModel(ctx, key, log)
		if !ok {
			r.metrics.RecordResolution(string(key.Folder), metrics.OutcomeFallback)
			return nil
		}
		name = translated
	}

	prefix := r.prefixes.Prefix(key.Folder)
	if prefix == "" && !key.Folder.Known() {
		log.Debug("unmapped folder, probing bare names")
	}

	start := time.Now()
	var failures int
	var lastErr error
	hit, found := firstSuccess(ctx, Candidates(prefix, name), r.probe, func(path string, err error) {
		if errors.IsNotFound(err) {
			log.Trace("candidate missing", logger.String("path", path))
			return
		}
		failures++
		lastErr = err
		log.Debug("candidate probe failed", logger.String("path", path), logger.Error(err))
	})
	r.metrics.ObserveDownloadDuration(time.Since(start).Seconds())

	if !found {
		log.Debug("no candidate resolved",
			logger.Int("probes", hit.tries),
			logger.Int("failed_probes", failures),
			logger.Duration("duration", time.Since(start)))
		if failures > 0 && ctx.Err() == nil {
			r.reportProbeFailures(key, hit.tries, failures, lastErr)
		}
		r.metrics.RecordResolution(string(key.Folder), metrics.OutcomeFallback)
		return nil
	}

	obj := hit.value
	resident := r.cache.Put(NewHandle(key, hit.path, obj.ContentType, obj.Data))
	r.metrics.SetCacheSize(r.cache.Len(), r.cache.MemoryUsage())
	r.metrics.RecordResolution(string(key.Folder), metrics.OutcomeFetched)

	log.Debug("image resolved",
		logger.String("path", hit.path),
		logger.Int("probe", hit.tries),
		logger.String("ref", resident.Ref),
		logger.Duration("duration", time.Since(start)))
	return resident
}

// reportProbeFailures emits one telemetry event for a key whose candidates failed
// with errors other than a plain miss. The key still falls back.
func (r *Resolver) reportProbeFailures(key Key, probes, failures int, lastErr error) {
	_ = errors.New(lastErr).
		Component("imageprovider").
		Category(errors.CategoryImageFetch).
		Context("key", key.String()).
		Context("probes", probes).
		Context("failed_probes", failures).
		Build()
}

func (r *Resolver) translateModel(ctx context.Context, key Key, log logger.Logger) (string, bool) {
	if r.models == nil {
		log.Debug("no model name resolver configured")
		return "", false
	}
	translated, err := r.models.ResolveModelName(ctx, key.Name, key.AuxName)
	if err != nil {
		log.Debug("model name resolution failed",
			logger.String("make", key.AuxName),
			logger.Error(err))
		return "", false
	}
	if Normalize(translated) == "" {
		log.Debug("model name unknown", logger.String("make", key.AuxName))
		return "", false
	}
	return translated, true
}

func (r *Resolver) probe(ctx context.Context, path string) (*objectstore.Object, error) {
	obj, err := r.reader.Read(ctx, path)
	switch {
	case err == nil:
		r.metrics.RecordProbe(metrics.ProbeFound)
	case errors.IsNotFound(err):
		r.metrics.RecordProbe(metrics.ProbeNotFound)
	default:
		r.metrics.RecordProbe(metrics.ProbeError)
	}
	if err == nil && obj == nil {
		return nil, errors.NotFound("imageprovider", "empty object for %s", path)
	}
	return obj, err
}

var _ KeyResolver = (*Resolver)(nil)
