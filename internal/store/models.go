// Package store provides the persistence gateway for the Karta canvas.
// Nodes and edges are global; contexts are persisted in focal-relative form.
package store

import (
	"path"
	"strings"
)

// Well-known identity of the root node every store seeds.
const (
	RootNodeID   = "00000000-0000-0000-0000-000000000000"
	RootNodePath = "/root"
	RootNodeType = "core/root"

	// AttrSystemNode marks a node that cannot be renamed, moved or deleted.
	AttrSystemNode = "isSystemNode"
	// AttrName is the display name attribute kept in sync with the path.
	AttrName = "name"
)

// DataNode is a context-independent graph node.
type DataNode struct {
	ID         string         `json:"id" yaml:"id"`
	NType      string         `json:"ntype" yaml:"ntype"`
	CreatedAt  int64          `json:"createdAt" yaml:"createdAt"`
	ModifiedAt int64          `json:"modifiedAt" yaml:"modifiedAt"`
	Path       string         `json:"path" yaml:"path"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// Name is the last segment of the node's path.
func (n *DataNode) Name() string {
	if n.Path == "" {
		return ""
	}
	return path.Base(n.Path)
}

// IsProtected reports whether the node is a protected system node.
func (n *DataNode) IsProtected() bool {
	v, _ := n.Attributes[AttrSystemNode].(bool)
	return v
}

// Clone returns a deep-enough copy (attribute map is copied).
func (n *DataNode) Clone() *DataNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = cloneAttrs(n.Attributes)
	return &c
}

// KartaEdge is a global edge. Contains marks a structural parent→child
// edge, distinct from a free association.
type KartaEdge struct {
	ID         string         `json:"id" yaml:"id"`
	Source     string         `json:"source" yaml:"source"`
	Target     string         `json:"target" yaml:"target"`
	Contains   bool           `json:"contains" yaml:"contains"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// Clone returns a copy of the edge.
func (e *KartaEdge) Clone() *KartaEdge {
	if e == nil {
		return nil
	}
	c := *e
	c.Attributes = cloneAttrs(e.Attributes)
	return &c
}

// Touches reports whether id is either endpoint.
func (e *KartaEdge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

// StorableViewNode is a view placement relative to its context's focal node.
type StorableViewNode struct {
	ID         string         `json:"id" yaml:"id"`
	RelX       float64        `json:"relX" yaml:"relX"`
	RelY       float64        `json:"relY" yaml:"relY"`
	RelScale   float64        `json:"relScale" yaml:"relScale"`
	Width      float64        `json:"width" yaml:"width"`
	Height     float64        `json:"height" yaml:"height"`
	Rotation   float64        `json:"rotation" yaml:"rotation"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// StorableViewport is a camera anchored on the focal node's position.
type StorableViewport struct {
	RelPosX float64 `json:"relPosX" yaml:"relPosX"`
	RelPosY float64 `json:"relPosY" yaml:"relPosY"`
	Scale   float64 `json:"scale" yaml:"scale"`
}

// StorableContext is the persisted form of a context.
type StorableContext struct {
	ID        string                      `json:"id" yaml:"id"`
	ViewNodes map[string]StorableViewNode `json:"viewNodes" yaml:"viewNodes"`
	Viewport  *StorableViewport           `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

// Clone copies the context including its entries.
func (c *StorableContext) Clone() *StorableContext {
	if c == nil {
		return nil
	}
	out := &StorableContext{ID: c.ID, ViewNodes: make(map[string]StorableViewNode, len(c.ViewNodes))}
	for id, vn := range c.ViewNodes {
		vn.Attributes = cloneAttrs(vn.Attributes)
		out.ViewNodes[id] = vn
	}
	if c.Viewport != nil {
		vp := *c.Viewport
		out.Viewport = &vp
	}
	return out
}

// Bundle is everything needed to enter a context. Nodes holds the focal
// node, its immediate neighbors and every node the stored context
// references; Edges holds every edge among them. Context is nil when the
// focal node has never been framed.
type Bundle struct {
	FocalID string           `json:"focalId" yaml:"focalId"`
	Context *StorableContext `json:"storableContext,omitempty" yaml:"storableContext,omitempty"`
	Nodes   []*DataNode      `json:"nodes" yaml:"nodes"`
	Edges   []*KartaEdge     `json:"edges" yaml:"edges"`
}

// DeletedNode reports one successful deletion.
type DeletedNode struct {
	NodeID             string   `json:"nodeId"`
	DescendantsDeleted []string `json:"descendantsDeleted"`
}

// DeleteFailure reports one handle that could not be deleted.
type DeleteFailure struct {
	Handle string `json:"handle"`
	Error  string `json:"error"`
}

// DeleteResult is the outcome of DeleteNodes.
type DeleteResult struct {
	Deleted []DeletedNode   `json:"deleted"`
	Failed  []DeleteFailure `json:"failed"`
}

// AllIDs returns every deleted node id including descendants.
func (r *DeleteResult) AllIDs() []string {
	var ids []string
	for _, d := range r.Deleted {
		ids = append(ids, d.NodeID)
		ids = append(ids, d.DescendantsDeleted...)
	}
	return ids
}

// MoveRequest moves the node at SourcePath under TargetParentPath.
type MoveRequest struct {
	SourcePath       string `json:"sourcePath"`
	TargetParentPath string `json:"targetParentPath"`
}

// MovedNode reports a node's path after a move.
type MovedNode struct {
	ID      string `json:"id"`
	NewPath string `json:"newPath"`
}

// MoveResult is the outcome of MoveNodes.
type MoveResult struct {
	Moved  []MovedNode `json:"movedNodes"`
	Errors []string    `json:"errors"`
}

// Snapshot is a full dump of a store.
type Snapshot struct {
	Nodes    []*DataNode        `json:"nodes" yaml:"nodes"`
	Edges    []*KartaEdge       `json:"edges" yaml:"edges"`
	Contexts []*StorableContext `json:"contexts" yaml:"contexts"`
}

// =============================================================================
// Path helpers
// =============================================================================

// NormalizePath cleans p into the canonical "/a/b" form.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	if p == "/" {
		return ""
	}
	return p
}

// JoinPath appends name to parent.
func JoinPath(parent, name string) string {
	return NormalizePath(parent + "/" + name)
}

// IsDescendantPath reports whether p lies strictly under ancestor.
func IsDescendantPath(p, ancestor string) bool {
	return ancestor != "" && strings.HasPrefix(p, ancestor+"/")
}

// IsPathHandle reports whether a node handle is a path rather than an id.
func IsPathHandle(handle string) bool {
	return strings.HasPrefix(handle, "/")
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
