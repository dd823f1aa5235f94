package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/imageprovider"
	"github.com/partscatalog/imagecache/internal/logger"
)

const blobCacheControl = "public, max-age=31536000, immutable"

// ImageResponse describes the outcome of one image lookup.
type ImageResponse struct {
	State       imageprovider.State `json:"state"`
	Key         imageprovider.Key   `json:"key"`
	Ref         string              `json:"ref"`
	Path        string              `json:"path,omitempty"`
	URL         string              `json:"url"`
	ObjectURL   string              `json:"object_url,omitempty"`
	ContentType string              `json:"content_type,omitempty"`
	Fallback    string              `json:"fallback"`
}

// PreloadRequest is the body of POST /api/v1/images/preload.
type PreloadRequest struct {
	BatchSize int                     `json:"batch_size"`
	Requests  []imageprovider.Request `json:"requests"`
}

// PreloadResponse summarizes a preload run.
type PreloadResponse struct {
	Total      int                    `json:"total"`
	Succeeded  int                    `json:"succeeded"`
	Failed     int                    `json:"failed"`
	Waves      []int                  `json:"waves"`
	DurationMs int64                  `json:"duration_ms"`
	Results    []imageprovider.Result `json:"results,omitempty"`
}

func keyFromRequest(c echo.Context) imageprovider.Key {
	folder, _ := imageprovider.ParseFolder(c.Param("folder"))
	return imageprovider.Key{
		Folder:  folder,
		Name:    c.QueryParam("name"),
		AuxName: c.QueryParam("make"),
	}
}

// load attaches a controller for the duration of the request. The controller is
// detached when the handler returns or the client goes away.
func (s *Server) load(c echo.Context) imageprovider.Snapshot {
	ctx := c.Request().Context()
	fallback := c.QueryParam("fallback")
	if fallback == "" {
		fallback = s.config.FallbackRef
	}

	ctrl := imageprovider.NewController(s.resolver, keyFromRequest(c),
		imageprovider.WithFallback(fallback),
		imageprovider.WithControllerLogger(s.logger.WithContext(ctx)))
	defer ctrl.Detach()

	ctrl.Load(ctx)
	return ctrl.Wait(ctx)
}

func (s *Server) getImage(c echo.Context) error {
	snap := s.load(c)

	resp := ImageResponse{
		State:    snap.State,
		Key:      snap.Key,
		Ref:      snap.Ref(),
		URL:      snap.Fallback,
		Fallback: snap.Fallback,
	}
	if snap.State == imageprovider.StateResolved && snap.Handle != nil {
		resp.Path = snap.Handle.Path
		resp.ContentType = snap.Handle.ContentType
		resp.URL = blobURL(snap.Handle)
		if s.urlFor != nil {
			resp.ObjectURL = s.urlFor(snap.Handle.Path)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getImageRaw(c echo.Context) error {
	snap := s.load(c)
	if snap.State != imageprovider.StateResolved || snap.Handle == nil {
		return c.Redirect(http.StatusFound, snap.Fallback)
	}
	return s.writeBlob(c, snap.Handle)
}

func (s *Server) getBlob(c echo.Context) error {
	h, ok := s.cache.Lookup(c.Param("id"))
	if !ok {
		return s.handleError(c, nil, "blob not found", http.StatusNotFound)
	}
	return s.writeBlob(c, h)
}

func (s *Server) writeBlob(c echo.Context, h *imageprovider.Handle) error {
	etag := `"` + h.ID() + `"`
	header := c.Response().Header()
	header.Set(echo.HeaderCacheControl, blobCacheControl)
	header.Set(echo.HeaderLastModified, h.CachedAt.UTC().Format(http.TimeFormat))
	header.Set("ETag", etag)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, h.ContentType, h.Bytes())
}

func (s *Server) preload(c echo.Context) error {
	var req PreloadRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid preload request", http.StatusBadRequest)
	}
	if len(req.Requests) > MaxPreloadRequests {
		err := errors.Newf("preload accepts at most %d requests, got %d", MaxPreloadRequests, len(req.Requests)).
			Component("httpserver").
			Category(errors.CategoryLimit).
			Build()
		return s.handleError(c, err, "too many preload requests", http.StatusRequestEntityTooLarge)
	}
	for i := range req.Requests {
		if req.Requests[i].Folder == "" {
			err := errors.Newf("preload request %d has no folder", i).
				Component("httpserver").
				Category(errors.CategoryValidation).
				Context("index", i).
				Build()
			return s.handleError(c, err, "invalid preload request", http.StatusBadRequest)
		}
		req.Requests[i].Folder, _ = imageprovider.ParseFolder(string(req.Requests[i].Folder))
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.config.BatchSize
	}

	summary := s.preloader.Preload(c.Request().Context(), req.Requests, batchSize)
	s.logger.WithContext(c.Request().Context()).Debug("preload request served",
		logger.Int("total", summary.Total),
		logger.Int("succeeded", summary.Succeeded))

	resp := PreloadResponse{
		Total:      summary.Total,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Waves:      summary.Waves,
		DurationMs: summary.Duration.Milliseconds(),
	}
	if c.QueryParam("verbose") == "true" {
		resp.Results = summary.Results
	}
	return c.JSON(http.StatusOK, resp)
}

func blobURL(h *imageprovider.Handle) string {
	return "/blobs/" + h.ID()
}
