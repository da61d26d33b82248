package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kittclouds/karta/internal/store"
	"github.com/kittclouds/karta/pkg/coords"
	kerr "github.com/kittclouds/karta/pkg/errors"
)

// saveTimeout bounds a single background save.
const saveTimeout = 30 * time.Second

// saveJob is one queued write against the gateway.
type saveJob struct {
	sc      *store.StorableContext
	removed []string
	done    chan error
	// saved runs after a successful write, before done is signalled.
	saved func()
}

// saver runs gateway writes in FIFO order on a background goroutine that
// exists only while there is work. Enqueue never blocks.
type saver struct {
	gw     store.Gateway
	logger *slog.Logger

	mu      sync.Mutex
	pending []saveJob
	running bool
	wg      sync.WaitGroup
}

func newSaver(gw store.Gateway, logger *slog.Logger) *saver {
	return &saver{gw: gw, logger: logger}
}

func (s *saver) enqueue(job saveJob) {
	s.wg.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, job)
	if !s.running {
		s.running = true
		go s.drain()
	}
}

func (s *saver) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		job := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		err := s.run(job)
		if err == nil && job.saved != nil {
			job.saved()
		}
		if job.done != nil {
			job.done <- err
		} else if err != nil {
			s.logger.Error("failed to save context", "context_id", job.sc.ID, "error", err)
		}
		s.wg.Done()
	}
}

func (s *saver) run(job saveJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if len(job.removed) > 0 {
		if err := s.gw.RemoveViewNodes(ctx, job.sc.ID, job.removed); err != nil {
			return kerr.Wrap(err, kerr.CodeEngineSaveFailure, "removing view nodes", kerr.FieldContextID(job.sc.ID))
		}
	}
	if err := s.gw.SaveContext(ctx, job.sc); err != nil {
		return kerr.Wrap(err, kerr.CodeEngineSaveFailure, "saving context", kerr.FieldContextID(job.sc.ID))
	}
	return nil
}

func (s *saver) wait() {
	s.wg.Wait()
}

// =============================================================================
// Storable conversion
// =============================================================================

// savedEntry is a ViewNode written by a save and the edit count it had.
type savedEntry struct {
	vn  *ViewNode
	rev uint64
}

// storableLocked converts c to its persisted form. Only modified
// ViewNodes are included. They stay modified until markSaved runs for
// the returned entries.
func (e *Engine) storableLocked(c *Context) (*store.StorableContext, []savedEntry) {
	focal := c.focalPlacement()
	sc := &store.StorableContext{ID: c.ID, ViewNodes: make(map[string]store.StorableViewNode)}
	var entries []savedEntry

	for _, id := range c.IDs() {
		vn := c.ViewNodes[id]
		if !vn.Modified() {
			continue
		}
		target := vn.Target()
		rel, err := coords.ToRelative(target.Placement(), focal)
		if err != nil {
			e.defect("corrupt view node placement", "context_id", c.ID, "node_id", id, "error", err)
			rel = coords.DefaultRelative
		}
		sc.ViewNodes[id] = store.StorableViewNode{
			ID:         id,
			RelX:       rel.X,
			RelY:       rel.Y,
			RelScale:   rel.Scale,
			Width:      target.Width,
			Height:     target.Height,
			Rotation:   target.Rotation,
			Attributes: cloneAttrs(vn.Attributes),
		}
		entries = append(entries, savedEntry{vn: vn, rev: vn.rev})
	}

	if c.Viewport != nil {
		pan := coords.Pan{X: c.Viewport.PanX, Y: c.Viewport.PanY, Scale: c.Viewport.Scale}
		rel, err := coords.PanToRelative(pan, focal)
		if err != nil {
			e.defect("corrupt viewport", "context_id", c.ID, "error", err)
			rel = coords.DefaultRelativePan
		}
		sc.Viewport = &store.StorableViewport{RelPosX: rel.X, RelPosY: rel.Y, Scale: rel.Scale}
	}
	return sc, entries
}

// markSaved clears the dirty flag of every entry not edited since it was
// queued. A failed save leaves the entries dirty for the next one.
func (e *Engine) markSaved(entries []savedEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range entries {
		if s.vn.rev == s.rev {
			s.vn.Status = StatusClean
		}
	}
}

func (e *Engine) saveJobLocked(c *Context, removed []string, done chan error) saveJob {
	sc, entries := e.storableLocked(c)
	return saveJob{sc: sc, removed: removed, done: done, saved: func() { e.markSaved(entries) }}
}

// saveAsyncLocked queues a fire-and-forget save of c.
func (e *Engine) saveAsyncLocked(c *Context, removed ...string) {
	e.saver.enqueue(e.saveJobLocked(c, removed, nil))
}

// =============================================================================
// Explicit saves
// =============================================================================

// SaveActiveContext persists the active context and waits for the write.
func (e *Engine) SaveActiveContext(ctx context.Context) error {
	e.mu.Lock()
	c := e.activeLocked()
	if c == nil {
		e.mu.Unlock()
		return kerr.New(kerr.CodeEngineNoActiveContext, "no active context")
	}
	done := make(chan error, 1)
	e.saver.enqueue(e.saveJobLocked(c, nil, done))
	e.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitActiveContext snapshots the camera into the active context and
// persists it.
func (e *Engine) ExitActiveContext(ctx context.Context) error {
	e.mu.Lock()
	if c := e.activeLocked(); c != nil {
		cam := e.viewport.Camera()
		c.Viewport = &cam
	}
	e.mu.Unlock()
	return e.SaveActiveContext(ctx)
}

// ContextPaths lists every persisted context as id -> focal path. A
// non-empty pattern filters paths with doublestar glob syntax.
func (e *Engine) ContextPaths(ctx context.Context, pattern string) (map[string]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "invalid glob pattern", kerr.Field("pattern", pattern))
	}
	paths, err := e.gw.GetAllContextPaths(ctx)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineLoadFailure, "listing contexts")
	}
	if pattern == "" {
		return paths, nil
	}
	out := make(map[string]string)
	for id, p := range paths {
		if ok, _ := doublestar.Match(pattern, p); ok {
			out[id] = p
		}
	}
	return out, nil
}

// SortedPaths returns the values of an id -> path map in path order.
func SortedPaths(paths map[string]string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
