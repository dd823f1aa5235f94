package imageprovider

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
)

// RefScheme prefixes every locally addressable handle reference.
const RefScheme = "blob:"

// Handle is a resolved image: where it was found and a local reference to its bytes.
// Handles are owned by the BlobCache; consumers must not modify the payload.
type Handle struct {
	Key         Key       `json:"key"`
	Path        string    `json:"path"`
	Ref         string    `json:"ref"`
	ContentType string    `json:"content_type"`
	CachedAt    time.Time `json:"cached_at"`

	data []byte
}

// NewHandle wraps a fetched payload under a freshly minted reference.
func NewHandle(key Key, path, contentType string, data []byte) *Handle {
	return &Handle{
		Key:         key,
		Path:        path,
		Ref:         RefScheme + uuid.NewString(),
		ContentType: contentType,
		CachedAt:    time.Now(),
		data:        data,
	}
}

// Bytes returns the payload. The slice is shared and must not be modified.
func (h *Handle) Bytes() []byte {
	return h.data
}

// ID returns the reference without its scheme.
func (h *Handle) ID() string {
	return strings.TrimPrefix(h.Ref, RefScheme)
}

// EstimateSize estimates the memory held by the handle in bytes.
func (h *Handle) EstimateSize() int64 {
	return int64(unsafe.Sizeof(*h)) +
		int64(len(h.Key.Name)+len(h.Key.AuxName)+len(h.Path)+len(h.Ref)+len(h.ContentType)) +
		int64(len(h.data))
}

// BlobCache maps keys to resolved handles for the life of the process.
// Entries are never replaced or evicted; the first handle stored for a key wins.
// Safe for concurrent use.
type BlobCache struct {
	entries sync.Map // Key -> *Handle
	refs    sync.Map // handle id -> *Handle
	count   atomic.Int64
	bytes   atomic.Int64
}

// NewBlobCache returns an empty cache.
func NewBlobCache() *BlobCache {
	return &BlobCache{}
}

// Get returns the handle stored for key.
func (c *BlobCache) Get(key Key) (*Handle, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	h, ok := v.(*Handle)
	return h, ok
}

// Put stores h under h.Key unless a handle is already present, and returns the
// handle that is resident afterwards.
func (c *BlobCache) Put(h *Handle) *Handle {
	if h == nil {
		return nil
	}
	actual, loaded := c.entries.LoadOrStore(h.Key, h)
	if loaded {
		resident, _ := actual.(*Handle)
		return resident
	}
	c.refs.Store(h.ID(), h)
	c.count.Add(1)
	c.bytes.Add(h.EstimateSize())
	return h
}

// Lookup finds a handle by reference, with or without the blob: scheme.
func (c *BlobCache) Lookup(ref string) (*Handle, bool) {
	v, ok := c.refs.Load(strings.TrimPrefix(ref, RefScheme))
	if !ok {
		return nil, false
	}
	h, ok := v.(*Handle)
	return h, ok
}

// Len returns the number of cached handles.
func (c *BlobCache) Len() int {
	return int(c.count.Load())
}

// MemoryUsage returns the approximate memory held by the cache in bytes.
func (c *BlobCache) MemoryUsage() int64 {
	return c.bytes.Load()
}

// Range calls fn for every handle until fn returns false.
func (c *BlobCache) Range(fn func(*Handle) bool) {
	c.entries.Range(func(_, value any) bool {
		h, ok := value.(*Handle)
		if !ok {
			return true
		}
		return fn(h)
	})
}
