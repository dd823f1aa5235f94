// Package objectstore reads image objects from remote storage by fully-qualified name.
package objectstore

import (
	"context"
	"net/http"
	"time"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
)

const componentName = "objectstore"

// DefaultMaxObjectSize bounds a single payload when no limit is configured.
const DefaultMaxObjectSize int64 = 10 * 1024 * 1024

// ErrObjectNotFound is matched by every miss returned from a Reader.
var ErrObjectNotFound = errors.NewStd("object not found")

// Object is one payload fetched from storage.
type Object struct {
	Name        string
	Data        []byte
	ContentType string
	FetchedAt   time.Time
}

// Reader fetches a single object. Implementations must be safe for concurrent use.
// A missing object yields an error matching ErrObjectNotFound. Read errors are
// built unreported; the caller decides what reaches telemetry.
type Reader interface {
	Read(ctx context.Context, name string) (*Object, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, name string) (*Object, error)

// Read calls f(ctx, name).
func (f ReaderFunc) Read(ctx context.Context, name string) (*Object, error) {
	return f(ctx, name)
}

func getLogger() logger.Logger {
	return logger.Global().Module(componentName)
}

func notFound(name, backend string, status int) error {
	b := errors.New(ErrObjectNotFound).
		Component(componentName).
		Category(errors.CategoryNotFound).
		Context("object", name).
		Context("backend", backend)
	if status != 0 {
		b = b.Context("status_code", status)
	}
	return b.Unreported().Build()
}

// detectContentType prefers the declared type and sniffs the payload otherwise.
func detectContentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
