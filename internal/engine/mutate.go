package engine

import (
	"context"
	"math"
	"path"
	"strings"

	"github.com/kittclouds/karta/internal/store"
	kerr "github.com/kittclouds/karta/pkg/errors"
	"github.com/kittclouds/karta/pkg/layout"
)

// ViewNodeMove places one ViewNode's center at an absolute position.
type ViewNodeMove struct {
	ID string
	X  float64
	Y  float64
}

// =============================================================================
// ViewNode mutations
// =============================================================================

// MoveViewNodes applies a drag to the active context. Moving the focal
// node re-anchors every entry, so all of them are saved.
func (e *Engine) MoveViewNodes(moves []ViewNodeMove) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return err
	}
	for _, m := range moves {
		if _, err := viewNodeOf(c, m.ID); err != nil {
			return err
		}
		if !finite(m.X, m.Y) {
			return kerr.New(kerr.CodeEngineValidateInvalid, "position must be finite", kerr.FieldNodeID(m.ID))
		}
	}

	focalMoved := false
	for _, m := range moves {
		vn := c.ViewNodes[m.ID]
		t := vn.Target()
		t.X, t.Y = m.X, m.Y
		vn.state.Set(t)
		vn.touch()
		focalMoved = focalMoved || m.ID == c.ID
	}
	if focalMoved {
		for _, vn := range c.ViewNodes {
			vn.touch()
		}
	}
	e.saveAsyncLocked(c)
	return nil
}

// ResizeViewNode sets a ViewNode's unscaled size, keeping its top-left
// corner in place. Dimensions are floored at the minimum; with
// lockAspect the pre-resize ratio is kept.
func (e *Engine) ResizeViewNode(id string, width, height float64, lockAspect bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return err
	}
	vn, err := viewNodeOf(c, id)
	if err != nil {
		return err
	}
	if !finite(width, height) {
		return kerr.New(kerr.CodeEngineValidateInvalid, "size must be finite", kerr.FieldNodeID(id))
	}

	t := vn.Target()
	opts := layout.Options{MinDimension: e.opts.MinDimension, LockAspect: lockAspect}
	if t.Height > 0 {
		opts.Aspect = t.Width / t.Height
	}
	sized := layout.Resize(layout.Rect{Width: t.Width, Height: t.Height}, width, height, opts)

	scale := t.Scale
	if scale <= 0 {
		scale = 1
	}
	r := t.Rect()
	vn.state.Set(t.fromRect(layout.Rect{X: r.X, Y: r.Y, Width: sized.Width * scale, Height: sized.Height * scale}))
	vn.touch()
	e.saveAsyncLocked(c)
	return nil
}

// ResizeViewNodes scales a selection so its footprint becomes
// width×height while the anchor corner of the selection stays put.
func (e *Engine) ResizeViewNodes(ids []string, anchor layout.Corner, width, height float64, lockAspect bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if !finite(width, height) {
		return kerr.New(kerr.CodeEngineValidateInvalid, "size must be finite")
	}

	nodes := make([]*ViewNode, len(ids))
	rects := make([]layout.Rect, len(ids))
	for i, id := range ids {
		vn, err := viewNodeOf(c, id)
		if err != nil {
			return err
		}
		nodes[i] = vn
		rects[i] = vn.Target().Rect()
	}

	resized := layout.GroupResize(rects, anchor, width, height,
		layout.Options{MinDimension: e.opts.MinDimension, LockAspect: lockAspect})
	for i, vn := range nodes {
		s := vn.Target().fromRect(resized[i])
		s.Width = math.Max(s.Width, e.opts.MinDimension)
		s.Height = math.Max(s.Height, e.opts.MinDimension)
		vn.state.Set(s)
		vn.touch()
	}
	e.saveAsyncLocked(c)
	return nil
}

// SetViewNodeAttribute sets a context-local attribute on a ViewNode.
func (e *Engine) SetViewNodeAttribute(id, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return err
	}
	vn, err := viewNodeOf(c, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return kerr.New(kerr.CodeEngineValidateInvalid, "attribute key must not be empty", kerr.FieldNodeID(id))
	}
	if vn.Attributes == nil {
		vn.Attributes = make(map[string]any)
	}
	vn.Attributes[key] = value
	vn.touch()
	e.saveAsyncLocked(c)
	return nil
}

// RemoveViewNode takes a node out of the active context without deleting
// its DataNode. The focal node cannot be removed.
func (e *Engine) RemoveViewNode(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return err
	}
	if _, err := viewNodeOf(c, id); err != nil {
		return err
	}
	if id == c.ID {
		return kerr.New(kerr.CodeEngineValidateDenied, "cannot remove the focal node from its context", kerr.FieldNodeID(id))
	}
	delete(c.ViewNodes, id)
	e.unlinkLocked(id)
	e.saveAsyncLocked(c, id)
	return nil
}

// AddViewNode brings an existing DataNode into the active context with
// its type's default geometry centered on (x, y).
func (e *Engine) AddViewNode(ctx context.Context, nodeID string, x, y float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return err
	}
	if c.ViewNodes[nodeID] != nil {
		return kerr.New(kerr.CodeEngineValidateConflict, "node is already in the context", kerr.FieldNodeID(nodeID))
	}
	if !finite(x, y) {
		return kerr.New(kerr.CodeEngineValidateInvalid, "position must be finite", kerr.FieldNodeID(nodeID))
	}
	n, err := e.gw.GetNode(ctx, nodeID)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeEngineLoadFailure, "loading node", kerr.FieldNodeID(nodeID))
	}
	if n == nil {
		return kerr.New(kerr.CodeEngineResolveNotFound, "node not found", kerr.FieldNodeID(nodeID))
	}
	e.placeLocked(c, n, x, y)
	if err := e.linkLocked(ctx, c, n.ID); err != nil {
		return err
	}
	e.saveAsyncLocked(c)
	return nil
}

// =============================================================================
// Graph mutations
// =============================================================================

// CreateNode creates a DataNode named name under parentPath (the active
// focal node when empty) and places it in the active context at (x, y).
func (e *Engine) CreateNode(ctx context.Context, ntype, name, parentPath string, x, y float64) (*store.DataNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.requireActiveLocked()
	if err != nil {
		return nil, err
	}
	if err := store.ValidateName(name); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineValidateInvalid, "invalid node name")
	}
	if !finite(x, y) {
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "position must be finite")
	}
	if parentPath == "" {
		focal := e.graph.Node(c.ID)
		if focal == nil {
			return nil, kerr.New(kerr.CodeEngineResolveNotFound, "active focal node is not loaded", kerr.FieldContextID(c.ID))
		}
		parentPath = focal.Path
	}

	attrs := e.reg.DefaultAttributes(ntype)
	attrs[store.AttrName] = strings.TrimSpace(name)
	created, err := e.gw.CreateNode(ctx, &store.DataNode{NType: ntype, Attributes: attrs}, parentPath)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineValidateInvalid, "creating node", kerr.FieldPath(parentPath))
	}

	e.placeLocked(c, created, x, y)
	if err := e.linkLocked(ctx, c, created.ID); err != nil {
		return created, err
	}
	e.saveAsyncLocked(c)
	e.logger.Debug("created node", "node_id", created.ID, "path", created.Path)
	return created, nil
}

// RenameNode changes a node's name and therefore its path and the paths
// of all its descendants.
func (e *Engine) RenameNode(ctx context.Context, id, name string) (*store.DataNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.nodeLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsProtected() {
		return nil, kerr.New(kerr.CodeEngineValidateDenied, "cannot rename a protected node", kerr.FieldNodeID(id))
	}
	if err := store.ValidateName(name); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineValidateInvalid, "invalid node name", kerr.FieldNodeID(id))
	}

	oldPath := n.Path
	newPath := store.JoinPath(path.Dir(oldPath), strings.TrimSpace(name))
	if newPath == oldPath {
		return n, nil
	}
	sibling, err := e.gw.GetNodeByPath(ctx, newPath)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineLoadFailure, "checking sibling names", kerr.FieldPath(newPath))
	}
	if sibling != nil {
		return nil, kerr.New(kerr.CodeEngineValidateConflict, "a sibling already has that name", kerr.FieldPath(newPath))
	}

	n.Path = newPath
	n.Attributes[store.AttrName] = strings.TrimSpace(name)
	saved, err := e.gw.SaveNode(ctx, n)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineSaveFailure, "renaming node", kerr.FieldNodeID(id))
	}
	e.rebaseLocked(oldPath, newPath)
	if e.graph.HasNode(saved.ID) {
		e.graph.PutNode(saved)
	}
	return saved, nil
}

// SetNodeAttribute sets a global attribute on a DataNode. Names change
// through RenameNode only.
func (e *Engine) SetNodeAttribute(ctx context.Context, id, key string, value any) (*store.DataNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch strings.TrimSpace(key) {
	case "":
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "attribute key must not be empty", kerr.FieldNodeID(id))
	case store.AttrName:
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "use rename to change a node's name", kerr.FieldNodeID(id))
	case store.AttrSystemNode:
		return nil, kerr.New(kerr.CodeEngineValidateDenied, "system flag is read-only", kerr.FieldNodeID(id))
	}
	n, err := e.nodeLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsProtected() {
		return nil, kerr.New(kerr.CodeEngineValidateDenied, "cannot modify a protected node", kerr.FieldNodeID(id))
	}
	n.Attributes[key] = value
	saved, err := e.gw.SaveNode(ctx, n)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineSaveFailure, "saving node", kerr.FieldNodeID(id))
	}
	if e.graph.HasNode(saved.ID) {
		e.graph.PutNode(saved)
	}
	return saved, nil
}

// DeleteNodes deletes nodes and their descendants. The active focal node
// and its ancestors are refused. Deleted nodes leave every in-memory
// context and the working set.
func (e *Engine) DeleteNodes(ctx context.Context, handles []string) (*store.DeleteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var focalPath string
	if focal := e.graph.Node(e.activeID); focal != nil {
		focalPath = focal.Path
	}

	result := &store.DeleteResult{}
	var allowed []string
	for _, h := range handles {
		n, err := e.lookupLocked(ctx, h)
		if err != nil {
			return nil, err
		}
		if n != nil && (n.ID == e.activeID || store.IsDescendantPath(focalPath, n.Path)) {
			result.Failed = append(result.Failed, store.DeleteFailure{Handle: h, Error: "node is the active context or one of its ancestors"})
			continue
		}
		allowed = append(allowed, h)
	}

	if len(allowed) > 0 {
		res, err := e.gw.DeleteNodes(ctx, allowed)
		if err != nil {
			return nil, kerr.Wrap(err, kerr.CodeEngineSaveFailure, "deleting nodes")
		}
		result.Deleted = append(result.Deleted, res.Deleted...)
		result.Failed = append(result.Failed, res.Failed...)
	}

	for _, id := range result.AllIDs() {
		for _, c := range e.contexts {
			delete(c.ViewNodes, id)
		}
		delete(e.contexts, id)
		e.graph.RemoveNode(id)
	}
	if len(result.Deleted) > 0 {
		e.logger.Info("deleted nodes", "count", len(result.AllIDs()), "failed", len(result.Failed))
	}
	return result, nil
}

// CreateEdge links two nodes with a free association edge.
func (e *Engine) CreateEdge(ctx context.Context, source, target string) (*store.KartaEdge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if source == "" || target == "" {
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "edge needs a source and a target")
	}
	if source == target {
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "edge cannot connect a node to itself", kerr.FieldNodeID(source))
	}
	if e.graph.EdgeBetween(source, target) != nil {
		return nil, kerr.New(kerr.CodeEngineValidateConflict, "edge already exists",
			kerr.Field("source", source), kerr.Field("target", target))
	}

	created, err := e.gw.CreateEdges(ctx, []*store.KartaEdge{{Source: source, Target: target, Attributes: map[string]any{}}})
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineSaveFailure, "creating edge")
	}
	edge := created[0]
	e.putEdgeLocked(edge)
	return edge, nil
}

// DeleteEdges deletes association edges. Contains edges are refused.
func (e *Engine) DeleteEdges(ctx context.Context, ids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range ids {
		if edge := e.graph.Edge(id); edge != nil && edge.Contains {
			return kerr.New(kerr.CodeEngineValidateDenied, "contains edges cannot be deleted", kerr.Field("edge_id", id))
		}
	}
	if err := e.gw.DeleteEdges(ctx, ids); err != nil {
		return kerr.Wrap(err, kerr.CodeEngineSaveFailure, "deleting edges")
	}
	for _, id := range ids {
		e.graph.RemoveEdge(id)
	}
	return nil
}

// ReconnectEdge re-points an association edge.
func (e *Engine) ReconnectEdge(ctx context.Context, id, source, target string) (*store.KartaEdge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if source == target {
		return nil, kerr.New(kerr.CodeEngineValidateInvalid, "edge cannot connect a node to itself", kerr.FieldNodeID(source))
	}
	edge, err := e.gw.ReconnectEdge(ctx, id, source, target)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineSaveFailure, "reconnecting edge", kerr.Field("edge_id", id))
	}
	e.graph.RemoveEdge(id)
	e.putEdgeLocked(edge)
	return edge, nil
}

// MoveNodes re-parents nodes. Paths of loaded nodes and contains edges in
// the working set follow the move.
func (e *Engine) MoveNodes(ctx context.Context, moves []store.MoveRequest) (*store.MoveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.gw.MoveNodes(ctx, moves)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineSaveFailure, "moving nodes")
	}
	c := e.activeLocked()
	for _, m := range res.Moved {
		n := e.graph.Node(m.ID)
		if n == nil {
			continue
		}
		n.Path = m.NewPath
		e.graph.PutNode(n)
		if c == nil || c.ViewNodes[m.ID] == nil {
			continue
		}
		for _, edge := range e.graph.Edges() {
			if edge.Contains && edge.Target == m.ID {
				e.graph.RemoveEdge(edge.ID)
			}
		}
		if err := e.linkLocked(ctx, c, m.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) requireActiveLocked() (*Context, error) {
	c := e.activeLocked()
	if c == nil {
		return nil, kerr.New(kerr.CodeEngineNoActiveContext, "no active context")
	}
	return c, nil
}

func viewNodeOf(c *Context, id string) (*ViewNode, error) {
	vn := c.ViewNodes[id]
	if vn == nil {
		return nil, kerr.New(kerr.CodeEngineViewNodeNotFound, "node is not in the active context",
			kerr.FieldNodeID(id), kerr.FieldContextID(c.ID))
	}
	return vn, nil
}

// lookupLocked resolves a handle, preferring the working set.
func (e *Engine) lookupLocked(ctx context.Context, handle string) (*store.DataNode, error) {
	if store.IsPathHandle(handle) {
		if n := e.graph.NodeByPath(store.NormalizePath(handle)); n != nil {
			return n, nil
		}
		n, err := e.gw.GetNodeByPath(ctx, handle)
		if err != nil {
			return nil, kerr.Wrap(err, kerr.CodeEngineLoadFailure, "loading node", kerr.Field("handle", handle))
		}
		return n, nil
	}
	if n := e.graph.Node(handle); n != nil {
		return n, nil
	}
	n, err := e.gw.GetNode(ctx, handle)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEngineLoadFailure, "loading node", kerr.Field("handle", handle))
	}
	return n, nil
}

func (e *Engine) nodeLocked(ctx context.Context, handle string) (*store.DataNode, error) {
	n, err := e.lookupLocked(ctx, handle)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, kerr.New(kerr.CodeEngineResolveNotFound, "node not found", kerr.Field("handle", handle))
	}
	return n, nil
}

// placeLocked adds n to c with registry defaults centered on (x, y).
func (e *Engine) placeLocked(c *Context, n *store.DataNode, x, y float64) {
	d := e.reg.DefaultViewState(n.NType)
	scale := d.Scale
	if !(scale > 0) {
		scale = 1
	}
	focalScale := c.focalPlacement().Scale
	s := ViewState{X: x, Y: y, Width: d.Width, Height: d.Height, Scale: scale * focalScale, Rotation: d.Rotation}
	c.ViewNodes[n.ID] = &ViewNode{ID: n.ID, Attributes: map[string]any{}, Status: StatusModified, state: e.newHandle(s)}
	e.graph.PutNode(n)
}

// linkLocked pulls the edges between id and the nodes visible in c into
// the working set.
func (e *Engine) linkLocked(ctx context.Context, c *Context, id string) error {
	b, err := e.gw.LoadContextBundle(ctx, id)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeEngineLoadFailure, "loading edges", kerr.FieldNodeID(id))
	}
	if b == nil {
		return nil
	}
	for _, edge := range b.Edges {
		if edge.Touches(id) && c.ViewNodes[edge.Source] != nil && c.ViewNodes[edge.Target] != nil {
			e.graph.PutEdge(edge)
		}
	}
	return nil
}

// unlinkLocked drops every working-set edge touching id.
func (e *Engine) unlinkLocked(id string) {
	for _, edge := range e.graph.Edges() {
		if edge.Touches(id) {
			e.graph.RemoveEdge(edge.ID)
		}
	}
}

// putEdgeLocked adds edge to the working set when both ends are visible.
func (e *Engine) putEdgeLocked(edge *store.KartaEdge) {
	c := e.activeLocked()
	if c != nil && c.ViewNodes[edge.Source] != nil && c.ViewNodes[edge.Target] != nil {
		e.graph.PutEdge(edge)
	}
}

// rebaseLocked rewrites loaded paths under oldPath.
func (e *Engine) rebaseLocked(oldPath, newPath string) {
	for _, n := range e.graph.Nodes() {
		if store.IsDescendantPath(n.Path, oldPath) {
			n.Path = newPath + strings.TrimPrefix(n.Path, oldPath)
			e.graph.PutNode(n)
		}
	}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
