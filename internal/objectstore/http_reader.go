package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/httpclient"
	"github.com/partscatalog/imagecache/internal/logger"
	"golang.org/x/time/rate"
)

const backendHTTP = "http"

// HTTPConfig configures the read endpoint exposed by the catalog backend.
type HTTPConfig struct {
	BaseURL       string
	ReadPath      string  // e.g. /api/oci/read
	MaxObjectSize int64   // 0 uses DefaultMaxObjectSize
	RateLimit     float64 // requests per second, 0 disables limiting
}

// HTTPReader reads objects through GET {BaseURL}{ReadPath}?name=<object>.
type HTTPReader struct {
	client   *httpclient.Client
	endpoint *url.URL
	maxSize  int64
	limiter  *rate.Limiter
	logger   logger.Logger
}

// NewHTTPReader validates cfg and builds a reader on top of client.
func NewHTTPReader(client *httpclient.Client, cfg HTTPConfig) (*HTTPReader, error) {
	if client == nil {
		return nil, errors.Newf("http client is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + cfg.ReadPath)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, errors.Newf("invalid object read endpoint %q", cfg.BaseURL+cfg.ReadPath).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("base_url", cfg.BaseURL).
			Context("read_path", cfg.ReadPath).
			Build()
	}

	r := &HTTPReader{
		client:   client,
		endpoint: endpoint,
		maxSize:  cfg.MaxObjectSize,
		logger:   getLogger().With(logger.String("backend", backendHTTP)),
	}
	if r.maxSize <= 0 {
		r.maxSize = DefaultMaxObjectSize
	}
	if cfg.RateLimit > 0 {
		burst := max(1, int(cfg.RateLimit))
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return r, nil
}

// URL returns the request URL used to read name.
func (r *HTTPReader) URL(name string) string {
	u := *r.endpoint
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String()
}

// Read fetches name. Any non-2xx status is reported as a miss.
func (r *HTTPReader) Read(ctx context.Context, name string) (*Object, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryCancellation).
				Context("operation", "rate_limiter_wait").
				Context("object", name).
				Unreported().
				Build()
		}
	}

	start := time.Now()
	resp, err := r.client.Get(ctx, r.URL(name))
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("object", name).
			Timing("object_read", time.Since(start)).
			Unreported().
			Build()
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("failed to close response body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, notFound(name, backendHTTP, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxSize+1))
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryImageFetch).
			Context("object", name).
			Unreported().
			Build()
	}
	if int64(len(data)) > r.maxSize {
		return nil, errors.New(fmt.Errorf("object exceeds %d bytes", r.maxSize)).
			Component(componentName).
			Category(errors.CategoryLimit).
			Context("object", name).
			Unreported().
			Build()
	}

	r.logger.Debug("object fetched",
		logger.String("object", name),
		logger.Int("bytes", len(data)),
		logger.Duration("duration", time.Since(start)))

	return &Object{
		Name:        name,
		Data:        data,
		ContentType: detectContentType(resp.Header.Get("Content-Type"), data),
		FetchedAt:   time.Now(),
	}, nil
}

var _ Reader = (*HTTPReader)(nil)

