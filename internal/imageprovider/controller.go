package imageprovider

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
)

// DefaultFallbackRef is rendered when no image can be resolved and the consumer
// supplied no fallback of its own.
const DefaultFallbackRef = "/assets/no-image.png"

// State is the load state of one Controller.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateResolved
	StateFallback
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFallback:
		return "fallback"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the names
// produced by String.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateResolving, StateResolved, StateFallback, StateFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return errors.Newf("unknown load state %q", text).
		Component("imageprovider").
		Category(errors.CategoryValidation).
		Build()
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFallback || s == StateFailed
}

// Snapshot is the externally observable state of a Controller.
type Snapshot struct {
	State    State
	Key      Key
	Handle   *Handle // set only in StateResolved
	Fallback string
}

// Ref returns what the consumer should render: the handle reference when resolved,
// the fallback reference otherwise.
func (s Snapshot) Ref() string {
	if s.State == StateResolved && s.Handle != nil {
		return s.Handle.Ref
	}
	return s.Fallback
}

// Controller drives one image load for one consumer attachment.
//
// Load starts at most one resolution. Detach ends the attachment: the resolution
// keeps running so the cache is still warmed, but its result is discarded and no
// OnChange callback fires once Detach has returned. Callbacks must not call Load or Detach.
type Controller struct {
	resolver KeyResolver
	key      Key
	fallback string
	logger   logger.Logger

	// notifyMu serializes callback dispatch with Detach.
	notifyMu sync.Mutex

	mu         sync.Mutex
	state      State
	handle     *Handle
	started    bool
	generation uint64
	listeners  []func(Snapshot)
	settled    chan struct{}
	detached   chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithFallback sets the reference rendered when resolution fails. Empty keeps the default.
func WithFallback(ref string) ControllerOption {
	return func(c *Controller) {
		if ref != "" {
			c.fallback = ref
		}
	}
}

// WithControllerLogger overrides the module logger.
func WithControllerLogger(l logger.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates an idle controller for key.
func NewController(resolver KeyResolver, key Key, opts ...ControllerOption) *Controller {
	c := &Controller{
		resolver: resolver,
		key:      key,
		fallback: DefaultFallbackRef,
		settled:  make(chan struct{}),
		detached: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Global().Module("imageprovider")
	}
	return c
}

// OnChange registers fn to receive every state transition of this attachment.
func (c *Controller) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Load starts resolution. Only the first call has an effect; calls after Detach are ignored.
// ctx supplies request-scoped values only: cancelling it does not abort the probe.
func (c *Controller) Load(ctx context.Context) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.started || c.isDetached() {
		c.mu.Unlock()
		return
	}
	c.started = true
	token := c.generation

	if c.key.Empty() {
		c.settleLocked(StateFallback, nil)
		snap, listeners := c.snapshotLocked(), slices.Clone(c.listeners)
		c.mu.Unlock()
		notify(listeners, snap)
		return
	}

	c.state = StateResolving
	snap, listeners := c.snapshotLocked(), slices.Clone(c.listeners)
	c.mu.Unlock()
	notify(listeners, snap)

	go c.run(context.WithoutCancel(ctx), token)
}

func (c *Controller) run(ctx context.Context, token uint64) {
	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Newf("image resolution panicked: %v", rec).
				Component("imageprovider").
				Category(errors.CategoryImageProvider).
				Context("key", c.key.String()).
				Build()
			c.logger.Error("resolution panicked", logger.Error(err), logger.String("key", c.key.String()))
			c.commit(token, StateFailed, nil)
		}
	}()

	h, ok := c.resolver.Resolve(ctx, c.key)
	if ok && h != nil {
		c.commit(token, StateResolved, h)
		return
	}
	c.commit(token, StateFallback, nil)
}

// commit applies a terminal transition if token still belongs to the live attachment.
func (c *Controller) commit(token uint64, state State, h *Handle) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if token != c.generation || c.isDetached() || c.state.Terminal() {
		c.mu.Unlock()
		c.logger.Trace("dropping stale result", logger.String("key", c.key.String()), logger.String("state", state.String()))
		return false
	}
	c.settleLocked(state, h)
	snap, listeners := c.snapshotLocked(), slices.Clone(c.listeners)
	c.mu.Unlock()

	notify(listeners, snap)
	return true
}

func (c *Controller) settleLocked(state State, h *Handle) {
	c.state = state
	c.handle = h
	close(c.settled)
}

// Detach ends the attachment. It blocks while a callback is being delivered and
// guarantees no state change or callback happens after it returns.
func (c *Controller) Detach() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isDetached() {
		return
	}
	c.generation++
	close(c.detached)
}

// Detached reports whether Detach has been called.
func (c *Controller) Detached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDetached()
}

func (c *Controller) isDetached() bool {
	select {
	case <-c.detached:
		return true
	default:
		return false
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:    c.state,
		Key:      c.key,
		Handle:   c.handle,
		Fallback: c.fallback,
	}
}

// Wait blocks until the load settles, the controller is detached or ctx is done,
// and returns the snapshot at that moment.
func (c *Controller) Wait(ctx context.Context) Snapshot {
	select {
	case <-c.settled:
	case <-c.detached:
	case <-ctx.Done():
	}
	return c.Snapshot()
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}
