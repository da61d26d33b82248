package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

// Gateway is the persistence boundary of the canvas.
// Lookups return nil, nil when the node simply does not exist.
// MemStore, SQLiteStore and BadgerStore implement it.
type Gateway interface {
	// Nodes
	GetNode(ctx context.Context, id string) (*DataNode, error)
	GetNodeByPath(ctx context.Context, path string) (*DataNode, error)
	SaveNode(ctx context.Context, node *DataNode) (*DataNode, error)
	CreateNode(ctx context.Context, node *DataNode, parentPath string) (*DataNode, error)
	DeleteNodes(ctx context.Context, handles []string) (*DeleteResult, error)
	MoveNodes(ctx context.Context, moves []MoveRequest) (*MoveResult, error)

	// Contexts
	LoadContextBundle(ctx context.Context, handle string) (*Bundle, error)
	SaveContext(ctx context.Context, sc *StorableContext) error
	RemoveViewNodes(ctx context.Context, contextID string, nodeIDs []string) error
	GetAllContextPaths(ctx context.Context) (map[string]string, error)

	// Edges
	CreateEdges(ctx context.Context, edges []*KartaEdge) ([]*KartaEdge, error)
	ReconnectEdge(ctx context.Context, edgeID, newSource, newTarget string) (*KartaEdge, error)
	DeleteEdges(ctx context.Context, ids []string) error

	// Lifecycle
	Snapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}

// NewID returns a fresh node or edge id.
func NewID() string {
	return uuid.NewString()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// rootNode builds the protected root every store starts with.
func rootNode() *DataNode {
	now := nowMillis()
	return &DataNode{
		ID:         RootNodeID,
		NType:      RootNodeType,
		CreatedAt:  now,
		ModifiedAt: now,
		Path:       RootNodePath,
		Attributes: map[string]any{AttrName: "root", AttrSystemNode: true},
	}
}

// prepareNewNode validates and fills a node about to be created under parent.
func prepareNewNode(node *DataNode, parent *DataNode) (*DataNode, error) {
	if node == nil {
		return nil, kerr.New(kerr.CodeStoreInvalidInput, "node is nil")
	}
	n := node.Clone()
	name := nodeName(n)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	if n.NType == "" {
		n.NType = "core/generic"
	}
	now := nowMillis()
	if n.CreatedAt == 0 {
		n.CreatedAt = now
	}
	n.ModifiedAt = now
	n.Path = JoinPath(parent.Path, name)
	n.Attributes[AttrName] = name
	return n, nil
}

// nodeName prefers the name attribute and falls back to the path.
func nodeName(n *DataNode) string {
	if name, ok := n.Attributes[AttrName].(string); ok && name != "" {
		return strings.TrimSpace(name)
	}
	return n.Name()
}

// ValidateName rejects names that cannot be a path segment.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "name must not be empty")
	}
	if strings.Contains(name, "/") || name == "." || name == ".." {
		return kerr.New(kerr.CodeStoreInvalidInput, "name must be a single path segment", kerr.Field("name", name))
	}
	return nil
}

// rebasePath moves p from oldPrefix to newPrefix.
func rebasePath(p, oldPrefix, newPrefix string) string {
	if p == oldPrefix {
		return newPrefix
	}
	return newPrefix + strings.TrimPrefix(p, oldPrefix)
}

func notFound(handle string) error {
	return kerr.New(kerr.CodeStoreNodeNotFound, "node not found", kerr.Field("handle", handle))
}

func protected(n *DataNode) error {
	return kerr.New(kerr.CodeStoreProtected, "node is a protected system node", kerr.FieldNodeID(n.ID))
}

// checkMove validates a structural move and returns the node's new path.
func checkMove(src, target *DataNode, m MoveRequest) (string, string) {
	switch {
	case src == nil:
		return "", "source not found: " + m.SourcePath
	case target == nil:
		return "", "target parent not found: " + m.TargetParentPath
	case src.IsProtected():
		return "", "cannot move protected node: " + src.Path
	case target.ID == src.ID || IsDescendantPath(target.Path, src.Path):
		return "", "cannot move a node under itself: " + src.Path
	}
	newPath := JoinPath(target.Path, src.Name())
	if newPath == src.Path {
		return "", "node is already under target: " + src.Path
	}
	return newPath, ""
}

// checkReconnect refuses to re-point a structural edge. Paths are derived
// from contains edges, so only MoveNodes may change them.
func checkReconnect(e *KartaEdge, newSource, newTarget string) error {
	if e.Contains && (newTarget != e.Target || newSource != e.Source) {
		return kerr.New(kerr.CodeStoreProtected, "contains edges can only be changed by moving nodes",
			kerr.Field("edge_id", e.ID))
	}
	if newSource == newTarget {
		return kerr.New(kerr.CodeStoreInvalidInput, "edge cannot connect a node to itself", kerr.FieldNodeID(newSource))
	}
	return nil
}

func checkEdgeShape(e *KartaEdge) error {
	if e == nil || e.Source == "" || e.Target == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "edge needs a source and a target")
	}
	if e.Source == e.Target {
		return kerr.New(kerr.CodeStoreInvalidInput, "edge cannot connect a node to itself", kerr.FieldNodeID(e.Source))
	}
	return nil
}

func duplicateEdge(e *KartaEdge) error {
	return kerr.New(kerr.CodeStoreConflict, "edge already exists",
		kerr.Field("source", e.Source), kerr.Field("target", e.Target))
}

// pairKey identifies an unordered node pair.
func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func sortBundle(b *Bundle) {
	sort.Slice(b.Nodes, func(i, j int) bool { return b.Nodes[i].ID < b.Nodes[j].ID })
	sort.Slice(b.Edges, func(i, j int) bool { return b.Edges[i].ID < b.Edges[j].ID })
}

func sortSnapshot(s *Snapshot) {
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].Path < s.Nodes[j].Path })
	sort.Slice(s.Edges, func(i, j int) bool { return s.Edges[i].ID < s.Edges[j].ID })
	sort.Slice(s.Contexts, func(i, j int) bool { return s.Contexts[i].ID < s.Contexts[j].ID })
}
