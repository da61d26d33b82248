package store

import (
	"context"
	"sort"
	"sync"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

// MemStore is an in-memory implementation of Gateway, used by tests and
// the "memory" storage backend.
type MemStore struct {
	mu       sync.RWMutex
	nodes    map[string]*DataNode
	edges    map[string]*KartaEdge
	contexts map[string]*StorableContext
}

// NewMemStore creates a new in-memory store seeded with the root node.
func NewMemStore() *MemStore {
	root := rootNode()
	return &MemStore{
		nodes:    map[string]*DataNode{root.ID: root},
		edges:    make(map[string]*KartaEdge),
		contexts: make(map[string]*StorableContext),
	}
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

// =============================================================================
// Nodes
// =============================================================================

func (s *MemStore) GetNode(_ context.Context, id string) (*DataNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id].Clone(), nil
}

func (s *MemStore) GetNodeByPath(_ context.Context, p string) (*DataNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byPath(NormalizePath(p)).Clone(), nil
}

func (s *MemStore) SaveNode(_ context.Context, node *DataNode) (*DataNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node == nil || node.ID == "" {
		return nil, kerr.New(kerr.CodeStoreInvalidInput, "node id is required")
	}
	n := node.Clone()
	n.Path = NormalizePath(n.Path)
	n.ModifiedAt = nowMillis()

	existing := s.nodes[n.ID]
	if existing == nil {
		if n.Path == "" {
			return nil, kerr.New(kerr.CodeStoreInvalidInput, "new node needs a path", kerr.FieldNodeID(n.ID))
		}
		if s.byPath(n.Path) != nil {
			return nil, kerr.New(kerr.CodeStoreConflict, "path already in use", kerr.FieldPath(n.Path))
		}
		if n.CreatedAt == 0 {
			n.CreatedAt = n.ModifiedAt
		}
		s.nodes[n.ID] = n
		return n.Clone(), nil
	}

	n.CreatedAt = existing.CreatedAt
	if n.Path == "" {
		n.Path = existing.Path
	}
	if n.Path != existing.Path {
		if existing.IsProtected() {
			return nil, protected(existing)
		}
		if other := s.byPath(n.Path); other != nil {
			return nil, kerr.New(kerr.CodeStoreConflict, "path already in use", kerr.FieldPath(n.Path))
		}
		for _, d := range s.nodes {
			if IsDescendantPath(d.Path, existing.Path) {
				d.Path = rebasePath(d.Path, existing.Path, n.Path)
			}
		}
	}
	n.Attributes[AttrName] = n.Name()
	s.nodes[n.ID] = n
	return n.Clone(), nil
}

func (s *MemStore) CreateNode(_ context.Context, node *DataNode, parentPath string) (*DataNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.byPath(NormalizePath(parentPath))
	if parent == nil {
		return nil, notFound(parentPath)
	}
	n, err := prepareNewNode(node, parent)
	if err != nil {
		return nil, err
	}
	if s.nodes[n.ID] != nil {
		return nil, kerr.New(kerr.CodeStoreConflict, "node id already exists", kerr.FieldNodeID(n.ID))
	}
	if s.byPath(n.Path) != nil {
		return nil, kerr.New(kerr.CodeStoreConflict, "path already in use", kerr.FieldPath(n.Path))
	}

	s.nodes[n.ID] = n
	edge := &KartaEdge{ID: NewID(), Source: parent.ID, Target: n.ID, Contains: true, Attributes: map[string]any{}}
	s.edges[edge.ID] = edge
	return n.Clone(), nil
}

func (s *MemStore) DeleteNodes(_ context.Context, handles []string) (*DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &DeleteResult{}
	for _, handle := range handles {
		n := s.resolve(handle)
		if n == nil {
			result.Failed = append(result.Failed, DeleteFailure{Handle: handle, Error: "node not found"})
			continue
		}
		if n.IsProtected() {
			result.Failed = append(result.Failed, DeleteFailure{Handle: handle, Error: "node is protected"})
			continue
		}

		var descendants []string
		for id, d := range s.nodes {
			if IsDescendantPath(d.Path, n.Path) {
				descendants = append(descendants, id)
			}
		}
		sort.Strings(descendants)

		for _, id := range append([]string{n.ID}, descendants...) {
			s.purge(id)
		}
		result.Deleted = append(result.Deleted, DeletedNode{NodeID: n.ID, DescendantsDeleted: descendants})
	}
	return result, nil
}

func (s *MemStore) MoveNodes(_ context.Context, moves []MoveRequest) (*MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &MoveResult{}
	for _, m := range moves {
		src := s.byPath(NormalizePath(m.SourcePath))
		target := s.byPath(NormalizePath(m.TargetParentPath))
		newPath, errMsg := checkMove(src, target, m)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		if s.byPath(newPath) != nil {
			result.Errors = append(result.Errors, "target path already in use: "+newPath)
			continue
		}

		oldPath := src.Path
		now := nowMillis()
		for _, d := range s.nodes {
			if d.ID == src.ID || IsDescendantPath(d.Path, oldPath) {
				d.Path = rebasePath(d.Path, oldPath, newPath)
				d.ModifiedAt = now
				result.Moved = append(result.Moved, MovedNode{ID: d.ID, NewPath: d.Path})
			}
		}
		s.reparent(src.ID, target.ID)
	}
	sort.Slice(result.Moved, func(i, j int) bool { return result.Moved[i].NewPath < result.Moved[j].NewPath })
	return result, nil
}

// =============================================================================
// Contexts
// =============================================================================

func (s *MemStore) LoadContextBundle(_ context.Context, handle string) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	focal := s.resolve(handle)
	if focal == nil {
		return nil, nil
	}

	bundle := &Bundle{FocalID: focal.ID, Context: s.contexts[focal.ID].Clone()}
	ids := map[string]bool{focal.ID: true}
	if bundle.Context != nil {
		for id := range bundle.Context.ViewNodes {
			if s.nodes[id] != nil {
				ids[id] = true
			}
		}
	}
	for _, e := range s.edges {
		if e.Source == focal.ID {
			ids[e.Target] = true
		} else if e.Target == focal.ID {
			ids[e.Source] = true
		}
	}

	for id := range ids {
		if n := s.nodes[id]; n != nil {
			bundle.Nodes = append(bundle.Nodes, n.Clone())
		} else {
			delete(ids, id)
		}
	}
	for _, e := range s.edges {
		if ids[e.Source] && ids[e.Target] {
			bundle.Edges = append(bundle.Edges, e.Clone())
		}
	}
	sortBundle(bundle)
	return bundle, nil
}

func (s *MemStore) SaveContext(_ context.Context, sc *StorableContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc == nil || sc.ID == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "context id is required")
	}
	if s.nodes[sc.ID] == nil {
		return notFound(sc.ID)
	}

	existing := s.contexts[sc.ID]
	if existing == nil {
		existing = &StorableContext{ID: sc.ID, ViewNodes: make(map[string]StorableViewNode)}
		s.contexts[sc.ID] = existing
	}
	for id, vn := range sc.Clone().ViewNodes {
		if s.nodes[id] == nil {
			continue
		}
		vn.ID = id
		existing.ViewNodes[id] = vn
	}
	if sc.Viewport != nil {
		vp := *sc.Viewport
		existing.Viewport = &vp
	}
	return nil
}

func (s *MemStore) RemoveViewNodes(_ context.Context, contextID string, nodeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.contexts[contextID]
	if c == nil {
		return nil
	}
	for _, id := range nodeIDs {
		delete(c.ViewNodes, id)
	}
	return nil
}

func (s *MemStore) GetAllContextPaths(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.contexts))
	for id := range s.contexts {
		if n := s.nodes[id]; n != nil {
			out[id] = n.Path
		}
	}
	return out, nil
}

// =============================================================================
// Edges
// =============================================================================

func (s *MemStore) CreateEdges(_ context.Context, edges []*KartaEdge) ([]*KartaEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]*KartaEdge, 0, len(edges))
	pending := make(map[[2]string]bool)
	for _, in := range edges {
		if err := s.checkNewEdge(in, pending); err != nil {
			return nil, err
		}
		e := in.Clone()
		if e.ID == "" {
			e.ID = NewID()
		}
		pending[pairKey(e.Source, e.Target)] = true
		created = append(created, e)
	}
	for _, e := range created {
		s.edges[e.ID] = e.Clone()
	}
	return created, nil
}

func (s *MemStore) ReconnectEdge(_ context.Context, edgeID, newSource, newTarget string) (*KartaEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.edges[edgeID]
	if e == nil {
		return nil, kerr.New(kerr.CodeStoreEdgeNotFound, "edge not found", kerr.Field("edge_id", edgeID))
	}
	if err := checkReconnect(e, newSource, newTarget); err != nil {
		return nil, err
	}
	if s.nodes[newSource] == nil {
		return nil, notFound(newSource)
	}
	if s.nodes[newTarget] == nil {
		return nil, notFound(newTarget)
	}
	for _, other := range s.edges {
		if other.ID != e.ID && pairKey(other.Source, other.Target) == pairKey(newSource, newTarget) {
			return nil, kerr.New(kerr.CodeStoreConflict, "edge already exists")
		}
	}
	e.Source = newSource
	e.Target = newTarget
	return e.Clone(), nil
}

func (s *MemStore) DeleteEdges(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e := s.edges[id]; e != nil && e.Contains {
			return kerr.New(kerr.CodeStoreProtected, "contains edges cannot be deleted", kerr.Field("edge_id", id))
		}
	}
	for _, id := range ids {
		delete(s.edges, id)
	}
	return nil
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *MemStore) Snapshot(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n.Clone())
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, e.Clone())
	}
	for _, c := range s.contexts {
		snap.Contexts = append(snap.Contexts, c.Clone())
	}
	sortSnapshot(snap)
	return snap, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *MemStore) byPath(p string) *DataNode {
	if p == "" {
		return nil
	}
	for _, n := range s.nodes {
		if n.Path == p {
			return n
		}
	}
	return nil
}

func (s *MemStore) resolve(handle string) *DataNode {
	if IsPathHandle(handle) {
		return s.byPath(NormalizePath(handle))
	}
	return s.nodes[handle]
}

// purge removes a node with its edges, its own context and its entries
// in every other context.
func (s *MemStore) purge(id string) {
	delete(s.nodes, id)
	delete(s.contexts, id)
	for eid, e := range s.edges {
		if e.Touches(id) {
			delete(s.edges, eid)
		}
	}
	for _, c := range s.contexts {
		delete(c.ViewNodes, id)
	}
}

func (s *MemStore) reparent(childID, parentID string) {
	for _, e := range s.edges {
		if e.Contains && e.Target == childID {
			e.Source = parentID
			return
		}
	}
	e := &KartaEdge{ID: NewID(), Source: parentID, Target: childID, Contains: true, Attributes: map[string]any{}}
	s.edges[e.ID] = e
}

func (s *MemStore) checkNewEdge(e *KartaEdge, pending map[[2]string]bool) error {
	if err := checkEdgeShape(e); err != nil {
		return err
	}
	if s.nodes[e.Source] == nil {
		return notFound(e.Source)
	}
	if s.nodes[e.Target] == nil {
		return notFound(e.Target)
	}
	key := pairKey(e.Source, e.Target)
	if pending[key] {
		return duplicateEdge(e)
	}
	for _, other := range s.edges {
		if pairKey(other.Source, other.Target) == key {
			return duplicateEdge(e)
		}
	}
	return nil
}

// Compile-time interface check
var _ Gateway = (*MemStore)(nil)
