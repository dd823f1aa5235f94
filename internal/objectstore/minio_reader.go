package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
)

const backendS3 = "s3"

// MinioConfig configures direct reads from an S3-compatible bucket.
type MinioConfig struct {
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Region        string
	Prefix        string // prepended to every object name
	MaxObjectSize int64

	// Transport overrides the HTTP transport of the minio client (tests).
	Transport http.RoundTripper
}

// MinioReader reads objects straight from the bucket with minio-go.
type MinioReader struct {
	client  *minio.Client
	bucket  string
	prefix  string
	maxSize int64
	logger  logger.Logger
}

// NewMinioReader creates a reader for cfg.Bucket.
func NewMinioReader(cfg MinioConfig) (*MinioReader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.Newf("s3 endpoint and bucket are required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("endpoint", cfg.Endpoint).
			Context("bucket", cfg.Bucket).
			Build()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create minio client: %w", err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("endpoint", cfg.Endpoint).
			Build()
	}

	maxSize := cfg.MaxObjectSize
	if maxSize <= 0 {
		maxSize = DefaultMaxObjectSize
	}

	return &MinioReader{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		maxSize: maxSize,
		logger:  getLogger().With(logger.String("backend", backendS3), logger.String("bucket", cfg.Bucket)),
	}, nil
}

func (m *MinioReader) key(name string) string {
	name = strings.TrimLeft(name, "/")
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

// Read fetches name from the bucket. NoSuchKey is reported as a miss.
func (m *MinioReader) Read(ctx context.Context, name string) (*Object, error) {
	key := m.key(name)
	start := time.Now()

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.translate(err, name)
	}
	defer func() {
		_ = obj.Close()
	}()

	info, err := obj.Stat()
	if err != nil {
		return nil, m.translate(err, name)
	}
	if info.Size > m.maxSize {
		return nil, errors.New(fmt.Errorf("object exceeds %d bytes", m.maxSize)).
			Component(componentName).
			Category(errors.CategoryLimit).
			Context("object", name).
			Context("size", info.Size).
			Unreported().
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(obj, m.maxSize))
	if err != nil {
		return nil, m.translate(err, name)
	}

	m.logger.Debug("object fetched",
		logger.String("object", key),
		logger.Int("bytes", len(data)),
		logger.Duration("duration", time.Since(start)))

	return &Object{
		Name:        name,
		Data:        data,
		ContentType: detectContentType(info.ContentType, data),
		FetchedAt:   time.Now(),
	}, nil
}

func (m *MinioReader) translate(err error, name string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return notFound(name, backendS3, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return notFound(name, backendS3, resp.StatusCode)
	}
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryImageFetch).
		Context("object", name).
		Context("bucket", m.bucket).
		Unreported().
		Build()
}

var _ Reader = (*MinioReader)(nil)
