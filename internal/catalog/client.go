// Package catalog talks to the parts catalog API. Only model name resolution is
// consumed by the image service.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/httpclient"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/patrickmn/go-cache"
)

const (
	componentName = "catalog"

	// DefaultModelPath is the model lookup endpoint relative to the base URL.
	DefaultModelPath = "/api/models/resolve"
	// DefaultCacheTTL is how long answers, including misses, are remembered.
	DefaultCacheTTL = 30 * time.Minute

	maxResponseSize = 1 << 20
)

// Config configures the catalog client.
type Config struct {
	BaseURL   string
	ModelPath string
	CacheTTL  time.Duration
}

// Client resolves model part numbers to catalog display names.
type Client struct {
	http     *httpclient.Client
	endpoint *url.URL
	cache    *cache.Cache
	logger   logger.Logger
}

// NewClient creates a catalog client using httpClient for transport.
func NewClient(httpClient *httpclient.Client, config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.Newf("catalog base URL is required").
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Build()
	}
	if config.ModelPath == "" {
		config.ModelPath = DefaultModelPath
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}

	endpoint, err := url.Parse(strings.TrimRight(config.BaseURL, "/") + config.ModelPath)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, errors.Newf("invalid catalog endpoint %q", config.BaseURL+config.ModelPath).
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Build()
	}
	if httpClient == nil {
		httpClient = httpclient.New(nil)
	}

	c := &Client{
		http:     httpClient,
		endpoint: endpoint,
		cache:    cache.New(config.CacheTTL, config.CacheTTL*2),
		logger:   logger.Global().Module(componentName),
	}

	c.logger.Info("catalog client initialized",
		logger.String("endpoint", endpoint.String()),
		logger.Duration("cache_ttl", config.CacheTTL))
	return c, nil
}

// ResolveModelName returns the display name of the model identified by partNumber
// under makeName. An unknown model yields "" and no error.
func (c *Client) ResolveModelName(ctx context.Context, partNumber, makeName string) (string, error) {
	cacheKey := fmt.Sprintf("model:%s:%s", makeName, partNumber)
	if cached, found := c.cache.Get(cacheKey); found {
		if name, ok := cached.(string); ok {
			c.logger.Debug("model name cache hit", logger.String("cache_key", cacheKey))
			return name, nil
		}
	}

	name, cacheable, err := c.fetchModelName(ctx, partNumber, makeName)
	if err != nil {
		return "", err
	}
	if cacheable {
		c.cache.Set(cacheKey, name, cache.DefaultExpiration)
	}
	return name, nil
}

func (c *Client) modelURL(partNumber, makeName string) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("partNumber", partNumber)
	if makeName != "" {
		q.Set("make", makeName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) fetchModelName(ctx context.Context, partNumber, makeName string) (name string, cacheable bool, err error) {
	start := time.Now()
	resp, err := c.http.Get(ctx, c.modelURL(partNumber, makeName))
	if err != nil {
		return "", false, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("part_number", partNumber).
			Context("make", makeName).
			Timing("model_lookup", time.Since(start)).
			Build()
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close response body", logger.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", true, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", false, errors.Newf("catalog returned status %d", resp.StatusCode).
			Component(componentName).
			Category(errors.CategoryCatalog).
			Context("status_code", resp.StatusCode).
			Context("part_number", partNumber).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", false, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("part_number", partNumber).
			Build()
	}

	name, err = parseModelName(body)
	if err != nil {
		return "", false, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("part_number", partNumber).
			Build()
	}

	c.logger.Debug("model name resolved",
		logger.String("part_number", partNumber),
		logger.String("make", makeName),
		logger.String("model_name", name),
		logger.Duration("duration", time.Since(start)))
	return name, true, nil
}

// parseModelName extracts the display name from a lookup response. Accepted shapes:
// {"name": ...}, {"modelName": ...} and either of those wrapped in {"data": ...}.
// A null body or null data means the model is unknown.
func parseModelName(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	obj, err := jason.NewObjectFromBytes(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid model lookup response: %w", err)
	}

	if data, err := obj.GetValue("data"); err == nil {
		if data.Null() == nil {
			return "", nil
		}
		if inner, err := data.Object(); err == nil {
			obj = inner
		}
	}

	for _, field := range []string{"name", "modelName"} {
		if name, err := obj.GetString(field); err == nil {
			return strings.TrimSpace(name), nil
		}
	}
	return "", nil
}

// Flush drops every memoized answer.
func (c *Client) Flush() {
	c.cache.Flush()
}

// CachedAnswers returns the number of memoized answers.
func (c *Client) CachedAnswers() int {
	return c.cache.ItemCount()
}
