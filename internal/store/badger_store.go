package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

// Key prefixes. Each record kind lives under its own leading byte.
const (
	prefixNode    = byte(0x01) // node id -> DataNode
	prefixPath    = byte(0x02) // path -> node id
	prefixEdge    = byte(0x03) // edge id -> KartaEdge
	prefixAdj     = byte(0x04) // node id + 0x00 + edge id -> empty
	prefixContext = byte(0x05) // context id -> StorableContext
)

// BadgerStore is the embedded key-value Gateway. Records are msgpack
// encoded; paths and adjacency are kept as separate index keys.
type BadgerStore struct {
	// mu serializes writers so read-modify-write transactions never
	// conflict.
	mu sync.Mutex
	db *badger.DB
}

// NewBadgerStore opens (creating if needed) a store in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

// NewInMemoryBadgerStore opens a store that never touches disk.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "opening badger database")
	}
	s := &BadgerStore{db: db}
	err = s.update(func(txn *badger.Txn) error {
		existing, err := getNode(txn, RootNodeID)
		if err != nil || existing != nil {
			return err
		}
		return putNode(txn, rootNode())
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// =============================================================================
// Nodes
// =============================================================================

func (s *BadgerStore) GetNode(_ context.Context, id string) (*DataNode, error) {
	var out *DataNode
	err := s.view(func(txn *badger.Txn) error {
		n, err := getNode(txn, id)
		out = n
		return err
	})
	return out, err
}

func (s *BadgerStore) GetNodeByPath(_ context.Context, p string) (*DataNode, error) {
	var out *DataNode
	err := s.view(func(txn *badger.Txn) error {
		n, err := nodeByPath(txn, NormalizePath(p))
		out = n
		return err
	})
	return out, err
}

func (s *BadgerStore) SaveNode(_ context.Context, node *DataNode) (*DataNode, error) {
	if node == nil || node.ID == "" {
		return nil, kerr.New(kerr.CodeStoreInvalidInput, "node id is required")
	}

	n := node.Clone()
	n.Path = NormalizePath(n.Path)
	n.ModifiedAt = nowMillis()

	err := s.update(func(txn *badger.Txn) error {
		existing, err := getNode(txn, n.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			if n.Path == "" {
				return kerr.New(kerr.CodeStoreInvalidInput, "new node needs a path", kerr.FieldNodeID(n.ID))
			}
			if err := ensureFreePath(txn, n.Path); err != nil {
				return err
			}
			if n.CreatedAt == 0 {
				n.CreatedAt = n.ModifiedAt
			}
			return putNode(txn, n)
		}

		n.CreatedAt = existing.CreatedAt
		if n.Path == "" {
			n.Path = existing.Path
		}
		if n.Path != existing.Path {
			if existing.IsProtected() {
				return protected(existing)
			}
			if err := ensureFreePath(txn, n.Path); err != nil {
				return err
			}
			if _, err := rebaseTree(txn, existing.Path, n.Path, n.ModifiedAt); err != nil {
				return err
			}
			if err := txn.Delete(pathKey(existing.Path)); err != nil {
				return err
			}
		}
		n.Attributes[AttrName] = n.Name()
		return putNode(txn, n)
	})
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (s *BadgerStore) CreateNode(_ context.Context, node *DataNode, parentPath string) (*DataNode, error) {
	var out *DataNode
	err := s.update(func(txn *badger.Txn) error {
		parent, err := nodeByPath(txn, NormalizePath(parentPath))
		if err != nil {
			return err
		}
		if parent == nil {
			return notFound(parentPath)
		}
		n, err := prepareNewNode(node, parent)
		if err != nil {
			return err
		}
		if existing, err := getNode(txn, n.ID); err != nil {
			return err
		} else if existing != nil {
			return kerr.New(kerr.CodeStoreConflict, "node id already exists", kerr.FieldNodeID(n.ID))
		}
		if err := ensureFreePath(txn, n.Path); err != nil {
			return err
		}
		if err := putNode(txn, n); err != nil {
			return err
		}
		out = n
		return putEdge(txn, &KartaEdge{ID: NewID(), Source: parent.ID, Target: n.ID, Contains: true, Attributes: map[string]any{}})
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *BadgerStore) DeleteNodes(_ context.Context, handles []string) (*DeleteResult, error) {
	result := &DeleteResult{}
	err := s.update(func(txn *badger.Txn) error {
		for _, handle := range handles {
			n, err := resolveHandle(txn, handle)
			if err != nil {
				return err
			}
			if n == nil {
				result.Failed = append(result.Failed, DeleteFailure{Handle: handle, Error: "node not found"})
				continue
			}
			if n.IsProtected() {
				result.Failed = append(result.Failed, DeleteFailure{Handle: handle, Error: "node is protected"})
				continue
			}

			tree, err := descendantsOf(txn, n.Path)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(tree))
			for _, d := range tree {
				ids = append(ids, d.ID)
			}
			sort.Strings(ids)

			for _, id := range append([]string{n.ID}, ids...) {
				if err := purgeTxn(txn, id); err != nil {
					return err
				}
			}
			result.Deleted = append(result.Deleted, DeletedNode{NodeID: n.ID, DescendantsDeleted: ids})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerStore) MoveNodes(_ context.Context, moves []MoveRequest) (*MoveResult, error) {
	result := &MoveResult{}
	err := s.update(func(txn *badger.Txn) error {
		for _, m := range moves {
			src, err := nodeByPath(txn, NormalizePath(m.SourcePath))
			if err != nil {
				return err
			}
			target, err := nodeByPath(txn, NormalizePath(m.TargetParentPath))
			if err != nil {
				return err
			}
			newPath, errMsg := checkMove(src, target, m)
			if errMsg != "" {
				result.Errors = append(result.Errors, errMsg)
				continue
			}
			if err := ensureFreePath(txn, newPath); err != nil {
				result.Errors = append(result.Errors, "target path already in use: "+newPath)
				continue
			}

			now := nowMillis()
			moved, err := rebaseTree(txn, src.Path, newPath, now)
			if err != nil {
				return err
			}
			if err := txn.Delete(pathKey(src.Path)); err != nil {
				return err
			}
			src.Path = newPath
			src.ModifiedAt = now
			if err := putNode(txn, src); err != nil {
				return err
			}
			result.Moved = append(result.Moved, MovedNode{ID: src.ID, NewPath: newPath})
			result.Moved = append(result.Moved, moved...)

			if err := reparentEdge(txn, src.ID, target.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result.Moved, func(i, j int) bool { return result.Moved[i].NewPath < result.Moved[j].NewPath })
	return result, nil
}

// =============================================================================
// Contexts
// =============================================================================

func (s *BadgerStore) LoadContextBundle(_ context.Context, handle string) (*Bundle, error) {
	var bundle *Bundle
	err := s.view(func(txn *badger.Txn) error {
		focal, err := resolveHandle(txn, handle)
		if err != nil || focal == nil {
			return err
		}
		sc, err := getContext(txn, focal.ID)
		if err != nil {
			return err
		}
		b := &Bundle{FocalID: focal.ID, Context: sc}

		ids := map[string]bool{focal.ID: true}
		if sc != nil {
			for id := range sc.ViewNodes {
				ids[id] = true
			}
		}
		focalEdges, err := edgesOf(txn, focal.ID)
		if err != nil {
			return err
		}
		for _, e := range focalEdges {
			ids[e.Source] = true
			ids[e.Target] = true
		}

		for id := range ids {
			n, err := getNode(txn, id)
			if err != nil {
				return err
			}
			if n == nil {
				delete(ids, id)
				continue
			}
			b.Nodes = append(b.Nodes, n)
		}

		seen := make(map[string]bool)
		for id := range ids {
			edges, err := edgesOf(txn, id)
			if err != nil {
				return err
			}
			for _, e := range edges {
				if !seen[e.ID] && ids[e.Source] && ids[e.Target] {
					seen[e.ID] = true
					b.Edges = append(b.Edges, e)
				}
			}
		}
		sortBundle(b)
		bundle = b
		return nil
	})
	return bundle, err
}

func (s *BadgerStore) SaveContext(_ context.Context, sc *StorableContext) error {
	if sc == nil || sc.ID == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "context id is required")
	}
	return s.update(func(txn *badger.Txn) error {
		focal, err := getNode(txn, sc.ID)
		if err != nil {
			return err
		}
		if focal == nil {
			return notFound(sc.ID)
		}

		existing, err := getContext(txn, sc.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			existing = &StorableContext{ID: sc.ID, ViewNodes: make(map[string]StorableViewNode)}
		}
		for id, vn := range sc.Clone().ViewNodes {
			n, err := getNode(txn, id)
			if err != nil {
				return err
			}
			if n == nil {
				continue
			}
			vn.ID = id
			existing.ViewNodes[id] = vn
		}
		if sc.Viewport != nil {
			vp := *sc.Viewport
			existing.Viewport = &vp
		}
		return putValue(txn, contextKey(sc.ID), existing)
	})
}

func (s *BadgerStore) RemoveViewNodes(_ context.Context, contextID string, nodeIDs []string) error {
	return s.update(func(txn *badger.Txn) error {
		c, err := getContext(txn, contextID)
		if err != nil || c == nil {
			return err
		}
		for _, id := range nodeIDs {
			delete(c.ViewNodes, id)
		}
		return putValue(txn, contextKey(contextID), c)
	})
}

func (s *BadgerStore) GetAllContextPaths(_ context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := s.view(func(txn *badger.Txn) error {
		var ids []string
		err := scanPrefix(txn, []byte{prefixContext}, false, func(key []byte, _ *badger.Item) error {
			ids = append(ids, string(key[1:]))
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := getNode(txn, id)
			if err != nil {
				return err
			}
			if n != nil {
				out[id] = n.Path
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Edges
// =============================================================================

func (s *BadgerStore) CreateEdges(_ context.Context, edges []*KartaEdge) ([]*KartaEdge, error) {
	created := make([]*KartaEdge, 0, len(edges))
	err := s.update(func(txn *badger.Txn) error {
		pending := make(map[[2]string]bool)
		for _, in := range edges {
			if err := checkEdgeShape(in); err != nil {
				return err
			}
			for _, id := range []string{in.Source, in.Target} {
				n, err := getNode(txn, id)
				if err != nil {
					return err
				}
				if n == nil {
					return notFound(id)
				}
			}
			key := pairKey(in.Source, in.Target)
			if pending[key] {
				return duplicateEdge(in)
			}
			dup, err := pairTaken(txn, in.Source, in.Target, "")
			if err != nil {
				return err
			}
			if dup {
				return duplicateEdge(in)
			}
			pending[key] = true

			e := in.Clone()
			if e.ID == "" {
				e.ID = NewID()
			}
			created = append(created, e)
		}
		for _, e := range created {
			if err := putEdge(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *BadgerStore) ReconnectEdge(_ context.Context, edgeID, newSource, newTarget string) (*KartaEdge, error) {
	var out *KartaEdge
	err := s.update(func(txn *badger.Txn) error {
		e, err := getValue[KartaEdge](txn, edgeKey(edgeID))
		if err != nil {
			return err
		}
		if e == nil {
			return kerr.New(kerr.CodeStoreEdgeNotFound, "edge not found", kerr.Field("edge_id", edgeID))
		}
		if err := checkReconnect(e, newSource, newTarget); err != nil {
			return err
		}
		for _, id := range []string{newSource, newTarget} {
			n, err := getNode(txn, id)
			if err != nil {
				return err
			}
			if n == nil {
				return notFound(id)
			}
		}
		dup, err := pairTaken(txn, newSource, newTarget, e.ID)
		if err != nil {
			return err
		}
		if dup {
			return kerr.New(kerr.CodeStoreConflict, "edge already exists")
		}

		if err := deleteEdge(txn, e); err != nil {
			return err
		}
		e.Source = newSource
		e.Target = newTarget
		out = e
		return putEdge(txn, e)
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *BadgerStore) DeleteEdges(_ context.Context, ids []string) error {
	return s.update(func(txn *badger.Txn) error {
		var doomed []*KartaEdge
		for _, id := range ids {
			e, err := getValue[KartaEdge](txn, edgeKey(id))
			if err != nil {
				return err
			}
			if e == nil {
				continue
			}
			if e.Contains {
				return kerr.New(kerr.CodeStoreProtected, "contains edges cannot be deleted", kerr.Field("edge_id", id))
			}
			doomed = append(doomed, e)
		}
		for _, e := range doomed {
			if err := deleteEdge(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *BadgerStore) Snapshot(_ context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.view(func(txn *badger.Txn) error {
		err := scanPrefix(txn, []byte{prefixNode}, true, func(_ []byte, item *badger.Item) error {
			n, err := decodeItem[DataNode](item)
			if err != nil {
				return err
			}
			snap.Nodes = append(snap.Nodes, fillNode(n))
			return nil
		})
		if err != nil {
			return err
		}
		err = scanPrefix(txn, []byte{prefixEdge}, true, func(_ []byte, item *badger.Item) error {
			e, err := decodeItem[KartaEdge](item)
			if err != nil {
				return err
			}
			snap.Edges = append(snap.Edges, e)
			return nil
		})
		if err != nil {
			return err
		}
		return scanPrefix(txn, []byte{prefixContext}, true, func(_ []byte, item *badger.Item) error {
			c, err := decodeItem[StorableContext](item)
			if err != nil {
				return err
			}
			snap.Contexts = append(snap.Contexts, fillContext(c))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortSnapshot(snap)
	return snap, nil
}

// =============================================================================
// Transactions
// =============================================================================

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return badgerError(s.db.Update(fn))
}

func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	return badgerError(s.db.View(fn))
}

func badgerError(err error) error {
	if err == nil || kerr.CodeOf(err) != "" {
		return err
	}
	return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "badger store")
}

// =============================================================================
// Keys
// =============================================================================

func nodeKey(id string) []byte {
	return append([]byte{prefixNode}, id...)
}

func pathKey(p string) []byte {
	return append([]byte{prefixPath}, p...)
}

func edgeKey(id string) []byte {
	return append([]byte{prefixEdge}, id...)
}

func contextKey(id string) []byte {
	return append([]byte{prefixContext}, id...)
}

// adjKey indexes edgeID under one of its endpoints.
func adjKey(nodeID, edgeID string) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1+len(edgeID))
	key = append(key, prefixAdj)
	key = append(key, nodeID...)
	key = append(key, 0x00)
	key = append(key, edgeID...)
	return key
}

func adjPrefix(nodeID string) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefixAdj)
	key = append(key, nodeID...)
	key = append(key, 0x00)
	return key
}

// =============================================================================
// Encoding
// =============================================================================

func putValue(txn *badger.Txn, key []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getValue[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if kerr.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeItem[T](item)
}

func decodeItem[T any](item *badger.Item) (*T, error) {
	var out T
	err := item.Value(func(val []byte) error {
		dec := msgpack.NewDecoder(bytes.NewReader(val))
		// Attribute numbers come back as int64/float64 regardless of width.
		dec.UseLooseInterfaceDecoding(true)
		return dec.Decode(&out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func fillNode(n *DataNode) *DataNode {
	if n != nil && n.Attributes == nil {
		n.Attributes = map[string]any{}
	}
	return n
}

func fillContext(c *StorableContext) *StorableContext {
	if c != nil && c.ViewNodes == nil {
		c.ViewNodes = make(map[string]StorableViewNode)
	}
	return c
}

// =============================================================================
// Record helpers
// =============================================================================

func getNode(txn *badger.Txn, id string) (*DataNode, error) {
	if id == "" {
		return nil, nil
	}
	n, err := getValue[DataNode](txn, nodeKey(id))
	return fillNode(n), err
}

func nodeByPath(txn *badger.Txn, p string) (*DataNode, error) {
	if p == "" {
		return nil, nil
	}
	item, err := txn.Get(pathKey(p))
	if kerr.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return getNode(txn, string(id))
}

func resolveHandle(txn *badger.Txn, handle string) (*DataNode, error) {
	if IsPathHandle(handle) {
		return nodeByPath(txn, NormalizePath(handle))
	}
	return getNode(txn, handle)
}

func ensureFreePath(txn *badger.Txn, p string) error {
	n, err := nodeByPath(txn, p)
	if err != nil {
		return err
	}
	if n != nil {
		return kerr.New(kerr.CodeStoreConflict, "path already in use", kerr.FieldPath(p))
	}
	return nil
}

// putNode writes the record and its path index entry.
func putNode(txn *badger.Txn, n *DataNode) error {
	if err := putValue(txn, nodeKey(n.ID), n); err != nil {
		return err
	}
	return txn.Set(pathKey(n.Path), []byte(n.ID))
}

// descendantsOf lists every node strictly under p via the path index.
func descendantsOf(txn *badger.Txn, p string) ([]*DataNode, error) {
	var ids []string
	err := scanPrefix(txn, pathKey(p+"/"), true, func(_ []byte, item *badger.Item) error {
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		ids = append(ids, string(id))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*DataNode, 0, len(ids))
	for _, id := range ids {
		n, err := getNode(txn, id)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// rebaseTree moves every descendant of oldPath under newPath.
func rebaseTree(txn *badger.Txn, oldPath, newPath string, now int64) ([]MovedNode, error) {
	tree, err := descendantsOf(txn, oldPath)
	if err != nil {
		return nil, err
	}
	moved := make([]MovedNode, 0, len(tree))
	for _, d := range tree {
		if err := txn.Delete(pathKey(d.Path)); err != nil {
			return nil, err
		}
		d.Path = rebasePath(d.Path, oldPath, newPath)
		d.ModifiedAt = now
		if err := putNode(txn, d); err != nil {
			return nil, err
		}
		moved = append(moved, MovedNode{ID: d.ID, NewPath: d.Path})
	}
	return moved, nil
}

func edgesOf(txn *badger.Txn, nodeID string) ([]*KartaEdge, error) {
	prefix := adjPrefix(nodeID)
	var ids []string
	err := scanPrefix(txn, prefix, false, func(key []byte, _ *badger.Item) error {
		ids = append(ids, string(key[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*KartaEdge, 0, len(ids))
	for _, id := range ids {
		e, err := getValue[KartaEdge](txn, edgeKey(id))
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// pairTaken reports whether a and b are already joined by an edge other
// than except.
func pairTaken(txn *badger.Txn, a, b, except string) (bool, error) {
	edges, err := edgesOf(txn, a)
	if err != nil {
		return false, err
	}
	key := pairKey(a, b)
	for _, e := range edges {
		if e.ID != except && pairKey(e.Source, e.Target) == key {
			return true, nil
		}
	}
	return false, nil
}

func putEdge(txn *badger.Txn, e *KartaEdge) error {
	if err := putValue(txn, edgeKey(e.ID), e); err != nil {
		return err
	}
	if err := txn.Set(adjKey(e.Source, e.ID), []byte{}); err != nil {
		return err
	}
	return txn.Set(adjKey(e.Target, e.ID), []byte{})
}

func deleteEdge(txn *badger.Txn, e *KartaEdge) error {
	for _, key := range [][]byte{edgeKey(e.ID), adjKey(e.Source, e.ID), adjKey(e.Target, e.ID)} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// reparentEdge points the contains edge of childID at parentID.
func reparentEdge(txn *badger.Txn, childID, parentID string) error {
	edges, err := edgesOf(txn, childID)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.Contains && e.Target == childID {
			if err := deleteEdge(txn, e); err != nil {
				return err
			}
			e.Source = parentID
			return putEdge(txn, e)
		}
	}
	return putEdge(txn, &KartaEdge{ID: NewID(), Source: parentID, Target: childID, Contains: true, Attributes: map[string]any{}})
}

func getContext(txn *badger.Txn, id string) (*StorableContext, error) {
	c, err := getValue[StorableContext](txn, contextKey(id))
	return fillContext(c), err
}

// purgeTxn removes a node with its edges, its own context and its entries
// in every other context.
func purgeTxn(txn *badger.Txn, id string) error {
	n, err := getNode(txn, id)
	if err != nil || n == nil {
		return err
	}
	edges, err := edgesOf(txn, id)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if err := deleteEdge(txn, e); err != nil {
			return err
		}
	}
	for _, key := range [][]byte{nodeKey(id), pathKey(n.Path), contextKey(id)} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}

	var holders []*StorableContext
	err = scanPrefix(txn, []byte{prefixContext}, true, func(_ []byte, item *badger.Item) error {
		c, err := decodeItem[StorableContext](item)
		if err != nil {
			return err
		}
		if _, ok := c.ViewNodes[id]; ok {
			holders = append(holders, c)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range holders {
		delete(c.ViewNodes, id)
		if err := putValue(txn, contextKey(c.ID), c); err != nil {
			return err
		}
	}
	return nil
}

// scanPrefix visits every key under prefix in order.
func scanPrefix(txn *badger.Txn, prefix []byte, values bool, fn func(key []byte, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if err := fn(item.KeyCopy(nil), item); err != nil {
			return err
		}
	}
	return nil
}

var _ Gateway = (*BadgerStore)(nil)
