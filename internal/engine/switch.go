package engine

import (
	"context"
	"math"
	"sort"

	"github.com/kittclouds/karta/internal/store"
	"github.com/kittclouds/karta/internal/viewport"
	"github.com/kittclouds/karta/pkg/anim"
	"github.com/kittclouds/karta/pkg/coords"
	kerr "github.com/kittclouds/karta/pkg/errors"
)

type navigation int

const (
	navPush navigation = iota
	navUndo
	navRedo
)

// transfer is one ViewNode of the incoming context as planned before
// commit. A non-nil from is an outgoing ViewNode whose animation moves
// over at commit.
type transfer struct {
	id     string
	from   *ViewNode
	target ViewState
	// keep leaves a transferred animation on its current course.
	keep   bool
	attrs  map[string]any
	status Status
}

// switchPlan is everything computed before a switch commits.
type switchPlan struct {
	target   *store.DataNode
	bundle   *store.Bundle
	nodes    []transfer
	viewport *viewport.Camera
	saveNow  bool
}

// SwitchContext makes the context focused on handle (a node id or path)
// active. Switching to the active context is a no-op.
func (e *Engine) SwitchContext(ctx context.Context, handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.switchLocked(ctx, handle, navPush)
}

// Undo returns to the previous context. A failed switch leaves the
// history as it was.
func (e *Engine) Undo(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeID == "" {
		return kerr.New(kerr.CodeEngineNoActiveContext, "no active context")
	}
	past, future := e.history.Past(), e.history.Future()
	prev, ok := e.history.Undo(e.activeID)
	if !ok {
		return kerr.New(kerr.CodeEngineHistoryEmpty, "nothing to undo")
	}
	if err := e.switchLocked(ctx, prev, navUndo); err != nil {
		e.history.Restore(past, future)
		return err
	}
	return nil
}

// Redo re-enters the context left by Undo.
func (e *Engine) Redo(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeID == "" {
		return kerr.New(kerr.CodeEngineNoActiveContext, "no active context")
	}
	past, future := e.history.Past(), e.history.Future()
	next, ok := e.history.Redo(e.activeID)
	if !ok {
		return kerr.New(kerr.CodeEngineHistoryEmpty, "nothing to redo")
	}
	if err := e.switchLocked(ctx, next, navRedo); err != nil {
		e.history.Restore(past, future)
		return err
	}
	return nil
}

func (e *Engine) switchLocked(ctx context.Context, handle string, nav navigation) error {
	if handle == "" {
		return kerr.New(kerr.CodeEngineValidateInvalid, "empty context handle")
	}
	if e.isActiveHandleLocked(handle) {
		return nil
	}

	target, err := e.resolve(ctx, handle)
	if err != nil {
		return err
	}
	if target.ID == e.activeID {
		return nil
	}

	outgoing := e.activeLocked()
	if outgoing != nil {
		cam := e.viewport.Camera()
		outgoing.Viewport = &cam
		e.saveAsyncLocked(outgoing)
	}

	plan, err := e.planLocked(ctx, target, outgoing)
	if err != nil {
		e.logger.Error("context switch aborted", "target", handle, "error", err)
		return err
	}
	c := e.commitLocked(plan, outgoing, nav)

	if plan.viewport != nil {
		e.viewport.Apply(*plan.viewport, e.opts.ViewportTransition)
	}
	if plan.saveNow {
		e.saveAsyncLocked(c)
	}
	if e.settings != nil && e.opts.PersistLastContext {
		if err := e.settings.SetLastContext(c.ID, target.Path); err != nil {
			e.logger.Warn("failed to record last context", "context_id", c.ID, "error", err)
		}
	}
	e.logger.Debug("entered context", "context_id", c.ID, "path", target.Path, "view_nodes", len(c.ViewNodes))
	return nil
}

// isActiveHandleLocked answers the no-op check without a gateway round trip.
func (e *Engine) isActiveHandleLocked(handle string) bool {
	if e.activeID == "" {
		return false
	}
	if handle == e.activeID {
		return true
	}
	if !store.IsPathHandle(handle) {
		return false
	}
	focal := e.graph.Node(e.activeID)
	return focal != nil && focal.Path == store.NormalizePath(handle)
}

func (e *Engine) resolve(ctx context.Context, handle string) (*store.DataNode, error) {
	var (
		n   *store.DataNode
		err error
	)
	if store.IsPathHandle(handle) {
		n, err = e.gw.GetNodeByPath(ctx, handle)
	} else {
		n, err = e.gw.GetNode(ctx, handle)
	}
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineResolveNotFound, "resolving context target", kerr.Field("handle", handle))
	}
	if n == nil {
		return nil, kerr.New(kerr.CodeEngineResolveNotFound, "context target not found", kerr.Field("handle", handle))
	}
	return n, nil
}

// =============================================================================
// Plan
// =============================================================================

func (e *Engine) planLocked(ctx context.Context, target *store.DataNode, outgoing *Context) (*switchPlan, error) {
	focalState := e.initialPlacementLocked(target, outgoing)

	bundle, err := e.gw.LoadContextBundle(ctx, target.ID)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineLoadFailure, "loading context bundle", kerr.FieldContextID(target.ID))
	}
	if bundle == nil {
		return nil, kerr.New(kerr.CodeEngineResolveNotFound, "context target disappeared", kerr.FieldContextID(target.ID))
	}

	nodes := make(map[string]*store.DataNode, len(bundle.Nodes))
	for _, n := range bundle.Nodes {
		nodes[n.ID] = n
	}

	plan := &switchPlan{target: target, bundle: bundle}
	planned := make(map[string]bool)
	add := func(t transfer) {
		plan.nodes = append(plan.nodes, t)
		planned[t.id] = true
	}
	fromOutgoing := func(id string) *ViewNode {
		if outgoing == nil {
			return nil
		}
		return outgoing.ViewNodes[id]
	}

	focal := focalState.Placement()
	sc := bundle.Context

	focalEntry := transfer{id: target.ID, from: fromOutgoing(target.ID), target: focalState}
	if sc == nil {
		focalEntry.status = StatusModified
		plan.saveNow = true
	} else if stored, ok := sc.ViewNodes[target.ID]; ok {
		st := e.absoluteLocked(target.ID, stored, focal, target.NType)
		focalEntry.target = st.WithPlacement(focal)
		focalEntry.attrs = stored.Attributes
	}
	add(focalEntry)

	if sc != nil {
		ids := make([]string, 0, len(sc.ViewNodes))
		for id := range sc.ViewNodes {
			if id != target.ID {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			stored := sc.ViewNodes[id]
			ntype := ""
			if n := nodes[id]; n != nil {
				ntype = n.NType
			}
			add(transfer{
				id:     id,
				from:   fromOutgoing(id),
				target: e.absoluteLocked(target.ID, stored, focal, ntype),
				attrs:  stored.Attributes,
			})
		}
		if sc.Viewport != nil {
			plan.viewport = e.absoluteViewportLocked(target.ID, sc.Viewport, focal)
		}
	}

	// The previous focal node stays on screen when the new bundle lacks it.
	if outgoing != nil && !planned[outgoing.ID] && nodes[outgoing.ID] == nil {
		if vn := outgoing.Focal(); vn != nil {
			add(transfer{id: outgoing.ID, from: vn, target: vn.Target(), keep: true, attrs: vn.Attributes})
		}
	}

	var missing []string
	for _, id := range neighborIDs(bundle, target.ID) {
		if nodes[id] != nil && !planned[id] {
			missing = append(missing, id)
		}
	}
	for i, id := range missing {
		add(transfer{
			id:     id,
			from:   fromOutgoing(id),
			target: e.neighborStateLocked(nodes[id].NType, focal, i, len(missing)),
			status: StatusModified,
		})
	}
	if len(missing) > 0 {
		plan.saveNow = true
	}
	return plan, nil
}

// initialPlacementLocked reuses the target's geometry from the outgoing
// context when it is visible there, otherwise synthesizes registry
// defaults at the center of the screen.
func (e *Engine) initialPlacementLocked(target *store.DataNode, outgoing *Context) ViewState {
	if outgoing != nil {
		if vn := outgoing.ViewNodes[target.ID]; vn != nil {
			if t := vn.Target(); t.finite() && t.Scale > 0 {
				return t
			}
		}
	}
	d := e.reg.DefaultViewState(target.NType)
	s := ViewState{Width: d.Width, Height: d.Height, Scale: d.Scale, Rotation: d.Rotation}
	if !(s.Scale > 0) {
		s.Scale = 1
	}
	if outgoing != nil {
		w, h := e.viewport.ScreenSize()
		s.X, s.Y = e.viewport.ScreenToCanvas(w/2, h/2)
	}
	return s
}

// absoluteLocked resolves a stored entry against the focal placement,
// substituting defaults for corrupt values.
func (e *Engine) absoluteLocked(ctxID string, stored store.StorableViewNode, focal coords.Placement, ntype string) ViewState {
	rel := coords.Relative{X: stored.RelX, Y: stored.RelY, Scale: stored.RelScale}
	abs, err := coords.ToAbsolute(rel, focal)
	if err != nil {
		e.defect("corrupt relative coordinates", "context_id", ctxID, "node_id", stored.ID, "error", err)
		abs, _ = coords.ToAbsolute(coords.DefaultRelative, focal)
	}

	s := ViewState{Width: stored.Width, Height: stored.Height, Rotation: stored.Rotation}.WithPlacement(abs)
	if !validDimension(s.Width) || !validDimension(s.Height) {
		d := e.reg.DefaultViewState(ntype)
		e.defect("corrupt view node size", "context_id", ctxID, "node_id", stored.ID,
			"width", stored.Width, "height", stored.Height)
		s.Width, s.Height = d.Width, d.Height
	}
	if math.IsNaN(s.Rotation) || math.IsInf(s.Rotation, 0) {
		e.defect("corrupt view node rotation", "context_id", ctxID, "node_id", stored.ID)
		s.Rotation = 0
	}
	return s
}

func (e *Engine) absoluteViewportLocked(ctxID string, vp *store.StorableViewport, focal coords.Placement) *viewport.Camera {
	pan, err := coords.PanToAbsolute(coords.RelativePan{X: vp.RelPosX, Y: vp.RelPosY, Scale: vp.Scale}, focal)
	if err != nil {
		e.defect("corrupt viewport", "context_id", ctxID, "error", err)
		pan, _ = coords.PanToAbsolute(coords.DefaultRelativePan, focal)
	}
	return &viewport.Camera{Scale: pan.Scale, PanX: pan.X, PanY: pan.Y}
}

// neighborStateLocked places the i-th of n default neighbors on a circle
// around the focal node, starting at angle zero.
func (e *Engine) neighborStateLocked(ntype string, focal coords.Placement, i, n int) ViewState {
	d := e.reg.DefaultViewState(ntype)
	scale := d.Scale
	if !(scale > 0) {
		scale = 1
	}
	angle := 2 * math.Pi * float64(i) / float64(n)
	r := e.opts.NeighborRadius * focal.Scale
	return ViewState{
		X:        focal.X + r*math.Cos(angle),
		Y:        focal.Y + r*math.Sin(angle),
		Width:    d.Width,
		Height:   d.Height,
		Scale:    scale * focal.Scale,
		Rotation: d.Rotation,
	}
}

// neighborIDs lists the ids adjacent to focal in the bundle, sorted.
func neighborIDs(b *store.Bundle, focal string) []string {
	seen := make(map[string]bool)
	for _, edge := range b.Edges {
		switch focal {
		case edge.Source:
			seen[edge.Target] = true
		case edge.Target:
			seen[edge.Source] = true
		}
	}
	delete(seen, focal)
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validDimension(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// =============================================================================
// Commit
// =============================================================================

// commitLocked applies a plan. Nothing before this point mutates engine
// state, so an aborted switch leaves the previous context active.
func (e *Engine) commitLocked(plan *switchPlan, outgoing *Context, nav navigation) *Context {
	c := newContext(plan.target.ID)
	for _, t := range plan.nodes {
		var h *anim.Handle[ViewState]
		switch {
		case t.from == nil:
			h = e.newHandle(t.target)
		case t.keep:
			h = t.from.state.Detach()
		default:
			h = t.from.state.Detach()
			if h.Target() != t.target || !h.Done() {
				h.Retarget(t.target, e.opts.Transition)
			}
		}
		c.ViewNodes[t.id] = &ViewNode{ID: t.id, Attributes: cloneAttrs(t.attrs), Status: t.status, state: h}
	}
	if plan.viewport != nil {
		vp := *plan.viewport
		c.Viewport = &vp
	}

	nodes := append([]*store.DataNode(nil), plan.bundle.Nodes...)
	for _, t := range plan.nodes {
		if t.keep {
			if n := e.graph.Node(t.id); n != nil {
				nodes = append(nodes, n)
			}
		}
	}
	e.graph.ReplaceWorkingSet(nodes, plan.bundle.Edges, c.Visible())

	if nav == navPush && outgoing != nil {
		e.history.Push(outgoing.ID)
	}
	e.contexts[c.ID] = c
	e.activeID = c.ID
	return c
}
