package imageprovider

import (
	"context"
	"io"
	"time"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/partscatalog/imagecache/internal/observability/metrics"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBatchSize is the wave size used when none is given.
	DefaultBatchSize = 3
	// DefaultWaveDelay separates consecutive waves.
	DefaultWaveDelay = 100 * time.Millisecond
)

// Request asks for one image to be warmed.
type Request struct {
	Folder   Folder `json:"folder" yaml:"folder"`
	Name     string `json:"name" yaml:"name"`
	Make     string `json:"make,omitempty" yaml:"make,omitempty"`
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Key returns the cache key of the request.
func (r Request) Key() Key {
	return Key{Folder: r.Folder, Name: r.Name, AuxName: r.Make}
}

// Result is the outcome of one preload request.
type Result struct {
	Key      Key           `json:"key"`
	State    State         `json:"state"`
	Ref      string        `json:"ref"`
	Path     string        `json:"path,omitempty"`
	Wave     int           `json:"wave"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Succeeded reports whether the request resolved to a real image.
func (r Result) Succeeded() bool {
	return r.State == StateResolved
}

// Summary aggregates a preload run. Result order is not significant.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Waves     []int         `json:"waves"`
	Results   []Result      `json:"results"`
	Duration  time.Duration `json:"duration"`
}

// PreloaderConfig configures a Preloader.
type PreloaderConfig struct {
	WaveDelay time.Duration // zero uses DefaultWaveDelay, negative disables the delay
	Fallback  string
	Metrics   *metrics.ImageProviderMetrics
	Logger    logger.Logger
}

// Preloader warms the cache by loading many images in bounded waves.
type Preloader struct {
	resolver  KeyResolver
	waveDelay time.Duration
	fallback  string
	metrics   *metrics.ImageProviderMetrics
	logger    logger.Logger
}

// NewPreloader creates a Preloader resolving through resolver.
func NewPreloader(resolver KeyResolver, cfg PreloaderConfig) *Preloader {
	p := &Preloader{
		resolver:  resolver,
		waveDelay: cfg.WaveDelay,
		fallback:  cfg.Fallback,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if p.waveDelay == 0 {
		p.waveDelay = DefaultWaveDelay
	}
	if p.logger == nil {
		p.logger = logger.Global().Module("imageprovider.preloader")
	}
	return p
}

// Preload runs requests in sequential waves of batchSize, each wave concurrently.
// A failing request never stops the others. When ctx is done no further wave is
// started and the unscheduled requests count as failed.
func (p *Preloader) Preload(ctx context.Context, requests []Request, batchSize int) Summary {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	start := time.Now()
	summary := Summary{
		Total:   len(requests),
		Results: make([]Result, 0, len(requests)),
	}

	next := 0
	for wave := 0; next < len(requests); wave++ {
		if wave > 0 && !sleepContext(ctx, p.waveDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		end := min(next+batchSize, len(requests))
		batch := requests[next:end]
		next = end

		summary.Waves = append(summary.Waves, len(batch))
		summary.Results = append(summary.Results, p.runWave(ctx, wave, batch)...)
		p.metrics.IncrementPreloadWaves()
	}

	for _, req := range requests[next:] {
		summary.Results = append(summary.Results, Result{
			Key:   req.Key(),
			State: StateIdle,
			Ref:   p.fallbackFor(req),
			Wave:  -1,
			Err:   ctx.Err(),
		})
	}

	for i := range summary.Results {
		if summary.Results[i].Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Duration = time.Since(start)

	p.logger.Info("preload finished",
		logger.Int("total", summary.Total),
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed),
		logger.Int("waves", len(summary.Waves)),
		logger.Duration("duration", summary.Duration))
	return summary
}

func (p *Preloader) runWave(ctx context.Context, wave int, batch []Request) []Result {
	results := make([]Result, len(batch))

	var g errgroup.Group
	for i, req := range batch {
		g.Go(func() error {
			results[i] = p.load(ctx, wave, req)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("preload wave finished", logger.Int("wave", wave), logger.Int("size", len(batch)))
	return results
}

func (p *Preloader) load(ctx context.Context, wave int, req Request) Result {
	start := time.Now()
	c := NewController(p.resolver, req.Key(), WithFallback(p.fallbackFor(req)))
	c.Load(ctx)
	snap := c.Wait(ctx)
	c.Detach()

	res := Result{
		Key:      snap.Key,
		State:    snap.State,
		Ref:      snap.Ref(),
		Wave:     wave,
		Duration: time.Since(start),
	}
	if snap.Handle != nil {
		res.Path = snap.Handle.Path
	}
	if !snap.State.Terminal() {
		res.Err = ctx.Err()
	}
	return res
}

func (p *Preloader) fallbackFor(req Request) string {
	if req.Fallback != "" {
		return req.Fallback
	}
	if p.fallback != "" {
		return p.fallback
	}
	return DefaultFallbackRef
}

// sleepContext waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// requestFile is the on-disk layout of a preload request list.
type requestFile struct {
	BatchSize int       `yaml:"batch_size"`
	Requests  []Request `yaml:"requests"`
}

// LoadRequests parses a YAML preload file:
//
//	batch_size: 3
//	requests:
//	  - folder: make
//	    name: maruti suzuki
//	  - folder: model
//	    name: A3
//	    make: AUDI
//
// The returned batch size is zero when the file does not set one.
func LoadRequests(r io.Reader) ([]Request, int, error) {
	var file requestFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, errors.New(err).
			Component("imageprovider").
			Category(errors.CategoryFileParsing).
			Context("operation", "load_preload_requests").
			Build()
	}

	for i, req := range file.Requests {
		if req.Folder == "" {
			return nil, 0, errors.Newf("preload request %d has no folder", i).
				Component("imageprovider").
				Category(errors.CategoryValidation).
				Context("index", i).
				Build()
		}
		file.Requests[i].Folder, _ = ParseFolder(string(req.Folder))
	}
	return file.Requests, file.BatchSize, nil
}
