// Package engine is the Karta context engine. It owns the in-memory
// contexts and the active context id, and orchestrates switching between
// contexts, default neighbor placement and working-set replacement on top
// of a persistence gateway.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kittclouds/karta/internal/graph"
	"github.com/kittclouds/karta/internal/history"
	"github.com/kittclouds/karta/internal/registry"
	"github.com/kittclouds/karta/internal/settings"
	"github.com/kittclouds/karta/internal/store"
	"github.com/kittclouds/karta/internal/viewport"
	"github.com/kittclouds/karta/pkg/anim"
	kerr "github.com/kittclouds/karta/pkg/errors"
	"github.com/kittclouds/karta/pkg/layout"
)

// LevelCritical marks defect signals such as corrupt persisted coordinates.
const LevelCritical = slog.LevelError + 4

// Options tunes the engine.
type Options struct {
	// NeighborRadius is the circle radius for default neighbor placement.
	NeighborRadius float64
	// MinDimension is the width/height floor for resizes.
	MinDimension float64
	// Transition is the duration of ViewNode retargets on switch.
	Transition time.Duration
	// ViewportTransition is the duration of camera moves on switch.
	ViewportTransition time.Duration
	ScreenWidth        float64
	ScreenHeight       float64
	// PersistLastContext records each entered context in settings.
	PersistLastContext bool
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		NeighborRadius:     250,
		MinDimension:       layout.DefaultMinDimension,
		Transition:         400 * time.Millisecond,
		ViewportTransition: 500 * time.Millisecond,
		ScreenWidth:        1280,
		ScreenHeight:       800,
		PersistLastContext: true,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions replaces the tuning.
func WithOptions(o Options) Option {
	return func(e *Engine) { e.opts = o }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock injects the clock driving every animation.
func WithClock(c anim.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithSettings enables last-viewed context persistence.
func WithSettings(s *settings.Store) Option {
	return func(e *Engine) { e.settings = s }
}

// WithViewport supplies an existing camera controller.
func WithViewport(v *viewport.Controller) Option {
	return func(e *Engine) { e.viewport = v }
}

// Engine is the context engine. All methods are safe for concurrent use,
// but context switches are expected to be issued one at a time.
type Engine struct {
	mu sync.Mutex

	gw  store.Gateway
	reg registry.Registry

	graph    *graph.Graph
	contexts map[string]*Context
	activeID string

	history  *history.History
	viewport *viewport.Controller
	settings *settings.Store
	saver    *saver

	opts   Options
	clock  anim.Clock
	logger *slog.Logger
}

// New creates an engine over gw, using reg for type defaults.
func New(gw store.Gateway, reg registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		gw:       gw,
		reg:      reg,
		graph:    graph.NewGraph(),
		contexts: make(map[string]*Context),
		history:  history.New(),
		opts:     DefaultOptions(),
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.opts.MinDimension <= 0 {
		e.opts.MinDimension = layout.DefaultMinDimension
	}
	if e.viewport == nil {
		e.viewport = viewport.New(e.opts.ScreenWidth, e.opts.ScreenHeight,
			viewport.WithClock(e.clock), viewport.WithTransition(e.opts.ViewportTransition))
	}
	e.saver = newSaver(gw, e.logger)
	return e
}

// =============================================================================
// Lifecycle
// =============================================================================

// Initialize enters the last viewed context, or the root when there is
// none or it can no longer be entered.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settings != nil && e.opts.PersistLastContext {
		st, err := e.settings.Load()
		if err != nil {
			e.logger.Warn("failed to load settings", "error", err)
		} else if st.LastContextID != "" {
			err := e.switchLocked(ctx, st.LastContextID, navPush)
			if err == nil {
				return nil
			}
			e.logger.Warn("last viewed context unavailable, entering root",
				"context_id", st.LastContextID, "error", err)
		}
	}
	return e.switchLocked(ctx, store.RootNodeID, navPush)
}

// Wait blocks until every queued save has been attempted.
func (e *Engine) Wait() {
	e.saver.wait()
}

// Close snapshots and saves the active context, then drains the save queue.
// The gateway is left open; it belongs to the caller.
func (e *Engine) Close(ctx context.Context) error {
	err := e.ExitActiveContext(ctx)
	if kerr.HasCode(err, kerr.CodeEngineNoActiveContext) {
		err = nil
	}
	e.Wait()
	return err
}

// =============================================================================
// Accessors
// =============================================================================

// ActiveContextID returns the id of the active context, or "".
func (e *Engine) ActiveContextID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// ActiveContext returns a snapshot of the active context, or nil.
func (e *Engine) ActiveContext() *Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.contexts[e.activeID]; c != nil {
		return c.clone()
	}
	return nil
}

// Context returns a snapshot of an in-memory context, or nil.
func (e *Engine) Context(id string) *Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.contexts[id]; c != nil {
		return c.clone()
	}
	return nil
}

// Graph is the working set of the active context.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Viewport is the camera controller.
func (e *Engine) Viewport() *viewport.Controller {
	return e.viewport
}

// History is the context switch log.
func (e *Engine) History() *history.History {
	return e.history
}

// FocalCenter implements viewport.FocalSource for the active context.
func (e *Engine) FocalCenter() (float64, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.contexts[e.activeID]
	if c == nil || c.Focal() == nil {
		return 0, 0, false
	}
	s := c.Focal().State()
	return s.X, s.Y, true
}

// FrameAll fits every visible ViewNode of the active context on screen.
func (e *Engine) FrameAll() bool {
	e.mu.Lock()
	c := e.contexts[e.activeID]
	var rects []layout.Rect
	if c != nil {
		for _, id := range c.IDs() {
			rects = append(rects, c.ViewNodes[id].Target().Rect())
		}
	}
	e.mu.Unlock()
	return e.viewport.FrameAll(rects)
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) newHandle(s ViewState) *anim.Handle[ViewState] {
	return anim.New(s, anim.WithClock(e.clock))
}

// defect logs a corrupt value that was replaced by a default.
func (e *Engine) defect(msg string, args ...any) {
	args = append(args, "defect", true)
	e.logger.Log(context.Background(), LevelCritical, msg, args...)
}

func (e *Engine) activeLocked() *Context {
	return e.contexts[e.activeID]
}
