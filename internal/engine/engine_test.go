package engine

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/karta/internal/registry"
	"github.com/kittclouds/karta/internal/settings"
	"github.com/kittclouds/karta/internal/store"
	kerr "github.com/kittclouds/karta/pkg/errors"
)

// =============================================================================
// Fixtures
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// countingGateway counts the reads a switch issues.
type countingGateway struct {
	store.Gateway

	mu      sync.Mutex
	reads   int
	bundles int
	// failBundle makes LoadContextBundle fail for these ids.
	failBundle map[string]bool
	// failSaves makes the next failSaves SaveContext calls fail.
	failSaves int
}

func (g *countingGateway) GetNode(ctx context.Context, id string) (*store.DataNode, error) {
	g.mu.Lock()
	g.reads++
	g.mu.Unlock()
	return g.Gateway.GetNode(ctx, id)
}

func (g *countingGateway) GetNodeByPath(ctx context.Context, p string) (*store.DataNode, error) {
	g.mu.Lock()
	g.reads++
	g.mu.Unlock()
	return g.Gateway.GetNodeByPath(ctx, p)
}

func (g *countingGateway) LoadContextBundle(ctx context.Context, handle string) (*store.Bundle, error) {
	g.mu.Lock()
	g.bundles++
	fail := g.failBundle[handle]
	g.mu.Unlock()
	if fail {
		return nil, kerr.New(kerr.CodeStoreDatabaseFailure, "disk on fire")
	}
	return g.Gateway.LoadContextBundle(ctx, handle)
}

func (g *countingGateway) SaveContext(ctx context.Context, sc *store.StorableContext) error {
	g.mu.Lock()
	fail := g.failSaves > 0
	if fail {
		g.failSaves--
	}
	g.mu.Unlock()
	if fail {
		return kerr.New(kerr.CodeStoreDatabaseFailure, "disk full")
	}
	return g.Gateway.SaveContext(ctx, sc)
}

func (g *countingGateway) failNextSaves(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSaves = n
}

func (g *countingGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reads, g.bundles
}

func (g *countingGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads, g.bundles = 0, 0
}

type fixture struct {
	ctx   context.Context
	gw    *countingGateway
	mem   *store.MemStore
	clock *fakeClock
	e     *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mem := store.NewMemStore()
	f := &fixture{
		ctx:   context.Background(),
		mem:   mem,
		gw:    &countingGateway{Gateway: mem, failBundle: map[string]bool{}},
		clock: &fakeClock{now: time.Unix(1000, 0)},
	}
	f.e = f.engine(opts...)
	t.Cleanup(func() { f.e.Wait() })
	return f
}

func (f *fixture) engine(opts ...Option) *Engine {
	base := []Option{WithClock(f.clock.Now), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}
	return New(f.gw, registry.NewStatic(), append(base, opts...)...)
}

func (f *fixture) create(t *testing.T, parent, name string) *store.DataNode {
	t.Helper()
	n, err := f.mem.CreateNode(f.ctx, &store.DataNode{
		NType:      registry.TypeGeneric,
		Attributes: map[string]any{store.AttrName: name},
	}, parent)
	require.NoError(t, err)
	return n
}

func (f *fixture) stored(t *testing.T, id string) *store.StorableContext {
	t.Helper()
	f.e.Wait()
	b, err := f.mem.LoadContextBundle(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Context
}

// assertWorkingSetBound checks that every working-set edge joins two
// visible nodes of the active context.
func assertWorkingSetBound(t *testing.T, e *Engine) {
	t.Helper()
	c := e.ActiveContext()
	require.NotNil(t, c)
	for _, edge := range e.Graph().Edges() {
		assert.NotNil(t, c.ViewNodes[edge.Source], "edge %s source not visible", edge.ID)
		assert.NotNil(t, c.ViewNodes[edge.Target], "edge %s target not visible", edge.ID)
	}
}

// =============================================================================
// Switching
// =============================================================================

func TestInitializePopulatesNeighbors(t *testing.T) {
	f := newFixture(t)
	ids := []string{
		f.create(t, store.RootNodePath, "a").ID,
		f.create(t, store.RootNodePath, "b").ID,
		f.create(t, store.RootNodePath, "c").ID,
	}
	sort.Strings(ids)

	require.NoError(t, f.e.Initialize(f.ctx))
	assert.Equal(t, store.RootNodeID, f.e.ActiveContextID())

	c := f.e.ActiveContext()
	require.Len(t, c.ViewNodes, 4)
	focal := c.Focal().Target()
	assert.Equal(t, 0.0, focal.X)
	assert.Equal(t, 0.0, focal.Y)
	assert.Equal(t, 1.0, focal.Scale)

	radius := DefaultOptions().NeighborRadius
	for i, id := range ids {
		s := c.ViewNodes[id].Target()
		angle := 2 * math.Pi * float64(i) / 3
		assert.InDelta(t, radius*math.Cos(angle), s.X, 1e-9, "neighbor %d x", i)
		assert.InDelta(t, radius*math.Sin(angle), s.Y, 1e-9, "neighbor %d y", i)
		assert.Equal(t, 200.0, s.Width)
		assert.Equal(t, 100.0, s.Height)
	}

	sc := f.stored(t, store.RootNodeID)
	require.NotNil(t, sc, "populated context is saved immediately")
	assert.Len(t, sc.ViewNodes, 4)
	assert.InDelta(t, radius, sc.ViewNodes[ids[0]].RelX, 1e-9)
	assertWorkingSetBound(t, f.e)
	assert.Equal(t, 3, f.e.Graph().EdgeCount())
}

func TestSwitchToActiveContextIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	f.gw.reset()

	require.NoError(t, f.e.SwitchContext(f.ctx, store.RootNodeID))
	require.NoError(t, f.e.SwitchContext(f.ctx, store.RootNodePath))
	require.NoError(t, f.e.SwitchContext(f.ctx, store.RootNodePath+"/"))

	reads, bundles := f.gw.counts()
	assert.Zero(t, reads)
	assert.Zero(t, bundles)
	assert.Empty(t, f.e.History().Past())
}

func TestSwitchUnknownTarget(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.e.Initialize(f.ctx))

	err := f.e.SwitchContext(f.ctx, "/root/missing")
	require.Error(t, err)
	assert.True(t, kerr.IsNotFound(err))
	assert.Equal(t, store.RootNodeID, f.e.ActiveContextID())

	err = f.e.SwitchContext(f.ctx, "")
	assert.True(t, kerr.IsInvalidInput(err))
}

func TestHistoryUndoRedo(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	b := f.create(t, store.RootNodePath, "b")
	c := f.create(t, store.RootNodePath, "c")
	require.NoError(t, f.e.Initialize(f.ctx))

	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID))
	require.NoError(t, f.e.SwitchContext(f.ctx, b.Path))
	require.NoError(t, f.e.SwitchContext(f.ctx, c.ID))
	assert.Equal(t, []string{store.RootNodeID, a.ID, b.ID}, f.e.History().Past())

	require.NoError(t, f.e.Undo(f.ctx))
	assert.Equal(t, b.ID, f.e.ActiveContextID())
	assert.Equal(t, []string{c.ID}, f.e.History().Future())

	require.NoError(t, f.e.Undo(f.ctx))
	assert.Equal(t, a.ID, f.e.ActiveContextID())

	require.NoError(t, f.e.Redo(f.ctx))
	assert.Equal(t, b.ID, f.e.ActiveContextID())
	assert.Equal(t, []string{store.RootNodeID, a.ID}, f.e.History().Past())
	assert.Equal(t, []string{c.ID}, f.e.History().Future())

	// A fresh switch clears the redo stack.
	require.NoError(t, f.e.SwitchContext(f.ctx, store.RootNodeID))
	assert.Empty(t, f.e.History().Future())
	assert.False(t, f.e.History().CanRedo())
}

func TestUndoWithEmptyHistory(t *testing.T) {
	f := newFixture(t)

	err := f.e.Undo(f.ctx)
	assert.True(t, kerr.HasCode(err, kerr.CodeEngineNoActiveContext))

	require.NoError(t, f.e.Initialize(f.ctx))
	err = f.e.Undo(f.ctx)
	assert.True(t, kerr.HasCode(err, kerr.CodeEngineHistoryEmpty))
	err = f.e.Redo(f.ctx)
	assert.True(t, kerr.HasCode(err, kerr.CodeEngineHistoryEmpty))
}

func TestUndoFailureLeavesHistoryIntact(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	b := f.create(t, store.RootNodePath, "b")
	require.NoError(t, f.e.Initialize(f.ctx))
	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID))
	require.NoError(t, f.e.SwitchContext(f.ctx, b.ID))
	f.e.Wait()

	// The undo target disappears behind the engine's back.
	_, err := f.mem.DeleteNodes(f.ctx, []string{a.ID})
	require.NoError(t, err)

	past, future := f.e.History().Past(), f.e.History().Future()
	err = f.e.Undo(f.ctx)
	require.Error(t, err)
	assert.True(t, kerr.IsNotFound(err))
	assert.Equal(t, b.ID, f.e.ActiveContextID())
	assert.Equal(t, past, f.e.History().Past())
	assert.Equal(t, future, f.e.History().Future())
}

func TestLoadFailureLeavesActiveContext(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	before := f.e.Graph().NodeIDs()

	f.gw.failBundle[a.ID] = true
	err := f.e.SwitchContext(f.ctx, a.ID)
	require.Error(t, err)
	assert.True(t, kerr.HasCode(err, kerr.CodeStoreDatabaseFailure))

	assert.Equal(t, store.RootNodeID, f.e.ActiveContextID())
	assert.Empty(t, f.e.History().Past())
	assert.Equal(t, before, f.e.Graph().NodeIDs())
	assert.Nil(t, f.e.Context(a.ID))
}

func TestSwitchRetainsSharedNodes(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	require.NoError(t, f.e.MoveViewNodes([]ViewNodeMove{{ID: a.ID, X: 120, Y: -40}}))

	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID))

	c := f.e.ActiveContext()
	focal := c.Focal().Target()
	assert.Equal(t, 120.0, focal.X, "focal keeps its on-screen position")
	assert.Equal(t, -40.0, focal.Y)

	// The old focal is a neighbor of a, so it is placed on the circle and
	// keeps animating from where it was.
	root := c.ViewNodes[store.RootNodeID]
	require.NotNil(t, root)
	assert.InDelta(t, 120+DefaultOptions().NeighborRadius, root.Target().X, 1e-9)
	assert.Equal(t, 0.0, root.State().X, "transferred animation starts at the old position")
	assert.True(t, root.Animating())

	f.clock.Advance(time.Second)
	assert.InDelta(t, 120+DefaultOptions().NeighborRadius, f.e.ActiveContext().ViewNodes[store.RootNodeID].State().X, 1e-9)

	// The outgoing context is frozen, not shared.
	old := f.e.Context(store.RootNodeID)
	require.NotNil(t, old)
	assert.Equal(t, 0.0, old.Focal().State().X)
}

func TestSwitchCarriesOverPreviousFocal(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, store.RootNodePath, "b")
	c := f.create(t, b.Path, "c")
	require.NoError(t, f.e.Initialize(f.ctx))

	require.NoError(t, f.e.SwitchContext(f.ctx, c.ID))

	active := f.e.ActiveContext()
	require.Len(t, active.ViewNodes, 3)
	carried := active.ViewNodes[store.RootNodeID]
	require.NotNil(t, carried, "previous focal stays on screen")
	assert.Equal(t, StatusClean, carried.Status)
	assert.NotNil(t, active.ViewNodes[b.ID])
	assertWorkingSetBound(t, f.e)

	sc := f.stored(t, c.ID)
	require.NotNil(t, sc)
	assert.Contains(t, sc.ViewNodes, b.ID)
	assert.NotContains(t, sc.ViewNodes, store.RootNodeID, "carried-over node is not persisted")
}

func TestWorkingSetBound(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	b := f.create(t, store.RootNodePath, "b")
	c := f.create(t, b.Path, "c")
	_, err := f.mem.CreateEdges(f.ctx, []*store.KartaEdge{{Source: a.ID, Target: c.ID}})
	require.NoError(t, err)

	require.NoError(t, f.e.Initialize(f.ctx))
	assertWorkingSetBound(t, f.e)

	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID))
	assertWorkingSetBound(t, f.e)
	assert.NotNil(t, f.e.Graph().EdgeBetween(a.ID, c.ID))
	assert.Nil(t, f.e.Graph().EdgeBetween(store.RootNodeID, b.ID), "b is no longer visible")

	require.NoError(t, f.e.SwitchContext(f.ctx, b.ID))
	assertWorkingSetBound(t, f.e)
}

func TestSavedLayoutRestoresRelativeToFocal(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	require.NoError(t, f.e.MoveViewNodes([]ViewNodeMove{{ID: a.ID, X: 100, Y: 50}}))
	require.NoError(t, f.e.Close(f.ctx))

	again := f.engine()
	require.NoError(t, again.Initialize(f.ctx))
	defer again.Wait()

	s := again.ActiveContext().ViewNodes[a.ID].Target()
	assert.Equal(t, 100.0, s.X)
	assert.Equal(t, 50.0, s.Y)
	require.NotNil(t, again.ActiveContext().Viewport, "viewport snapshot restored")
}

func TestEnterPersistedContextAwayFromOrigin(t *testing.T) {
	f := newFixture(t)
	child := f.create(t, store.RootNodePath, "child")
	g := f.create(t, child.Path, "g")
	require.NoError(t, f.mem.SaveContext(f.ctx, &store.StorableContext{
		ID: child.ID,
		ViewNodes: map[string]store.StorableViewNode{
			child.ID: {ID: child.ID, RelScale: 1, Width: 200, Height: 100},
			g.ID:     {ID: g.ID, RelX: 50, RelY: 20, RelScale: 0.5, Width: 80, Height: 60},
		},
	}))

	require.NoError(t, f.e.Initialize(f.ctx))
	require.NoError(t, f.e.MoveViewNodes([]ViewNodeMove{{ID: child.ID, X: 100, Y: 0}}))
	require.NoError(t, f.e.SwitchContext(f.ctx, child.ID))

	c := f.e.ActiveContext()
	focal := c.Focal().Target()
	assert.Equal(t, 100.0, focal.X, "focal keeps its placement from the outgoing context")
	assert.Equal(t, 0.0, focal.Y)

	sg := c.ViewNodes[g.ID].Target()
	assert.Equal(t, 150.0, sg.X)
	assert.Equal(t, 20.0, sg.Y)
	assert.Equal(t, 0.5, sg.Scale)
	assert.Equal(t, 80.0, sg.Width)
	assertWorkingSetBound(t, f.e)
}

func TestCorruptEntriesFallBackToDefaults(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	b := f.create(t, store.RootNodePath, "b")
	neg := f.create(t, store.RootNodePath, "neg")
	zero := f.create(t, store.RootNodePath, "zero")
	require.NoError(t, f.mem.SaveContext(f.ctx, &store.StorableContext{
		ID: store.RootNodeID,
		ViewNodes: map[string]store.StorableViewNode{
			store.RootNodeID: {RelScale: 1, Width: 200, Height: 200},
			a.ID:             {RelX: math.NaN(), RelY: 3, RelScale: 1, Width: 10, Height: 10},
			b.ID:             {RelX: 40, RelY: 0, RelScale: 1, Width: -1, Height: 30},
			neg.ID:           {RelX: 10, RelY: 0, RelScale: -2, Width: 10, Height: 10},
			zero.ID:          {RelX: 10, RelY: 0, RelScale: 0, Width: 10, Height: 10},
		},
	}))

	var buf bytes.Buffer
	e := f.engine(WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	require.NoError(t, e.Initialize(f.ctx))
	e.Wait()

	c := e.ActiveContext()
	sa := c.ViewNodes[a.ID].Target()
	assert.Equal(t, 0.0, sa.X, "corrupt entry lands on the focal node")
	assert.Equal(t, 0.0, sa.Y)
	assert.Equal(t, 1.0, sa.Scale)

	sb := c.ViewNodes[b.ID].Target()
	assert.Equal(t, 40.0, sb.X)
	assert.Equal(t, 200.0, sb.Width, "registry default width")
	assert.Equal(t, 100.0, sb.Height)

	for _, id := range []string{neg.ID, zero.ID} {
		s := c.ViewNodes[id].Target()
		assert.Equal(t, 0.0, s.X, "non-positive scale resets the placement")
		assert.Equal(t, 1.0, s.Scale)
	}

	assert.Contains(t, buf.String(), "defect=true")
	assert.Contains(t, buf.String(), "corrupt relative coordinates")
}

func TestInitializeFromSettings(t *testing.T) {
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	st := settings.NewStore(fsys, settings.DefaultFile, nil)

	f := newFixture(t, WithSettings(st))
	a := f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID))
	require.NoError(t, f.e.Close(f.ctx))

	saved, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, a.ID, saved.LastContextID)
	assert.Equal(t, "/root/a", saved.LastContextPath)

	again := f.engine(WithSettings(st))
	require.NoError(t, again.Initialize(f.ctx))
	assert.Equal(t, a.ID, again.ActiveContextID())
	require.NoError(t, again.Close(f.ctx))

	// A stale id falls back to the root.
	require.NoError(t, st.SetLastContext("gone", "/root/gone"))
	stale := f.engine(WithSettings(st))
	require.NoError(t, stale.Initialize(f.ctx))
	assert.Equal(t, store.RootNodeID, stale.ActiveContextID())
	stale.Wait()
}

// =============================================================================
// Saving
// =============================================================================

func TestSaveActiveContextIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))

	require.NoError(t, f.e.SaveActiveContext(f.ctx))
	first := f.stored(t, store.RootNodeID)
	require.NoError(t, f.e.SaveActiveContext(f.ctx))
	second := f.stored(t, store.RootNodeID)
	assert.Equal(t, first, second)

	for _, vn := range f.e.ActiveContext().ViewNodes {
		assert.False(t, vn.Modified())
	}
}

func TestFailedSaveKeepsEditsDirty(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	f.e.Wait()

	f.gw.failNextSaves(1)
	require.NoError(t, f.e.MoveViewNodes([]ViewNodeMove{{ID: a.ID, X: 777, Y: 0}}))
	f.e.Wait()

	assert.True(t, f.e.ActiveContext().ViewNodes[a.ID].Modified(), "edit stays dirty after a failed write")
	assert.Equal(t, 250.0, f.stored(t, store.RootNodeID).ViewNodes[a.ID].RelX)

	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID), "a failed save never blocks a switch")
	assert.Equal(t, 777.0, f.stored(t, store.RootNodeID).ViewNodes[a.ID].RelX, "next save resends the edit")
}

func TestSaveActiveContextReportsFailure(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))
	f.e.Wait()

	f.gw.failNextSaves(2)
	require.NoError(t, f.e.MoveViewNodes([]ViewNodeMove{{ID: a.ID, X: 20, Y: 10}}))
	f.e.Wait()
	err := f.e.SaveActiveContext(f.ctx)
	assert.True(t, kerr.HasCode(err, kerr.CodeStoreDatabaseFailure), "got %v", err)
	assert.True(t, f.e.ActiveContext().ViewNodes[a.ID].Modified())

	require.NoError(t, f.e.SaveActiveContext(f.ctx))
	assert.False(t, f.e.ActiveContext().ViewNodes[a.ID].Modified())
	assert.Equal(t, 20.0, f.stored(t, store.RootNodeID).ViewNodes[a.ID].RelX)
}

func TestSaveWithoutActiveContext(t *testing.T) {
	f := newFixture(t)
	err := f.e.SaveActiveContext(f.ctx)
	assert.True(t, kerr.HasCode(err, kerr.CodeEngineNoActiveContext))
	assert.NoError(t, f.e.Close(f.ctx))
}

func TestContextPaths(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, store.RootNodePath, "a")
	f.create(t, a.Path, "deep")
	require.NoError(t, f.e.Initialize(f.ctx))
	require.NoError(t, f.e.SwitchContext(f.ctx, a.ID))
	f.e.Wait()

	all, err := f.e.ContextPaths(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/root", "/root/a"}, SortedPaths(all))

	matched, err := f.e.ContextPaths(f.ctx, "/root/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"/root/a"}, SortedPaths(matched))

	_, err = f.e.ContextPaths(f.ctx, "/root/[")
	assert.True(t, kerr.IsInvalidInput(err))
}

func TestFocalCenterAndFrameAll(t *testing.T) {
	f := newFixture(t)

	_, _, ok := f.e.FocalCenter()
	assert.False(t, ok)
	assert.False(t, f.e.FrameAll())

	f.create(t, store.RootNodePath, "a")
	require.NoError(t, f.e.Initialize(f.ctx))

	x, y, ok := f.e.FocalCenter()
	require.True(t, ok)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)

	require.True(t, f.e.FrameAll())
	assert.Greater(t, f.e.Viewport().Target().Scale, 0.0)
}
