package engine

import (
	"math"
	"sort"

	"github.com/kittclouds/karta/internal/viewport"
	"github.com/kittclouds/karta/pkg/anim"
	"github.com/kittclouds/karta/pkg/coords"
	"github.com/kittclouds/karta/pkg/layout"
)

// ViewState is the animated geometry of a ViewNode. X and Y locate the
// node's center in absolute canvas space.
type ViewState struct {
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
	Width    float64 `json:"width" yaml:"width"`
	Height   float64 `json:"height" yaml:"height"`
	Scale    float64 `json:"scale" yaml:"scale"`
	Rotation float64 `json:"rotation" yaml:"rotation"`
}

// Lerp implements anim.Lerper.
func (s ViewState) Lerp(to ViewState, t float64) ViewState {
	return ViewState{
		X:        anim.Lerp(s.X, to.X, t),
		Y:        anim.Lerp(s.Y, to.Y, t),
		Width:    anim.Lerp(s.Width, to.Width, t),
		Height:   anim.Lerp(s.Height, to.Height, t),
		Scale:    anim.Lerp(s.Scale, to.Scale, t),
		Rotation: anim.Lerp(s.Rotation, to.Rotation, t),
	}
}

// Placement is the position and scale part of the state.
func (s ViewState) Placement() coords.Placement {
	return coords.Placement{X: s.X, Y: s.Y, Scale: s.Scale}
}

// WithPlacement replaces position and scale, keeping the rest.
func (s ViewState) WithPlacement(p coords.Placement) ViewState {
	s.X, s.Y, s.Scale = p.X, p.Y, p.Scale
	return s
}

// Rect is the on-canvas footprint with a top-left origin.
func (s ViewState) Rect() layout.Rect {
	w, h := s.Width*s.Scale, s.Height*s.Scale
	return layout.Rect{X: s.X - w/2, Y: s.Y - h/2, Width: w, Height: h}
}

// fromRect applies a resized footprint back onto s.
func (s ViewState) fromRect(r layout.Rect) ViewState {
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	s.Width = r.Width / scale
	s.Height = r.Height / scale
	s.X = r.X + r.Width/2
	s.Y = r.Y + r.Height/2
	return s
}

func (s ViewState) finite() bool {
	for _, v := range []float64{s.X, s.Y, s.Width, s.Height, s.Scale, s.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Status tracks whether a ViewNode has unsaved changes.
type Status int

const (
	StatusClean Status = iota
	StatusModified
)

func (s Status) String() string {
	if s == StatusModified {
		return "modified"
	}
	return "clean"
}

// ViewNode is one DataNode's presence in one Context.
type ViewNode struct {
	ID         string
	Attributes map[string]any
	Status     Status

	state *anim.Handle[ViewState]
	// rev counts edits so a finished save only clears what it wrote.
	rev uint64
}

// State is the live interpolated geometry.
func (v *ViewNode) State() ViewState {
	return v.state.Value()
}

// Target is the geometry the node is animating towards.
func (v *ViewNode) Target() ViewState {
	return v.state.Target()
}

// Animating reports whether a transition is still running.
func (v *ViewNode) Animating() bool {
	return !v.state.Done()
}

// Modified reports whether the node needs saving.
func (v *ViewNode) Modified() bool {
	return v.Status == StatusModified
}

func (v *ViewNode) touch() {
	v.Status = StatusModified
	v.rev++
}

func (v *ViewNode) clone() *ViewNode {
	return &ViewNode{
		ID:         v.ID,
		Attributes: cloneAttrs(v.Attributes),
		Status:     v.Status,
		state:      v.state.Clone(),
		rev:        v.rev,
	}
}

// Context is a view over the graph centered on the focal node whose id it
// shares.
type Context struct {
	ID        string
	ViewNodes map[string]*ViewNode
	// Viewport is nil until the context has been framed once.
	Viewport *viewport.Camera
}

func newContext(id string) *Context {
	return &Context{ID: id, ViewNodes: make(map[string]*ViewNode)}
}

// Focal returns the focal node's ViewNode.
func (c *Context) Focal() *ViewNode {
	return c.ViewNodes[c.ID]
}

// IDs returns the visible node ids, sorted.
func (c *Context) IDs() []string {
	ids := make([]string, 0, len(c.ViewNodes))
	for id := range c.ViewNodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Visible is the set of node ids with a ViewNode.
func (c *Context) Visible() map[string]bool {
	out := make(map[string]bool, len(c.ViewNodes))
	for id := range c.ViewNodes {
		out[id] = true
	}
	return out
}

func (c *Context) focalPlacement() coords.Placement {
	if f := c.Focal(); f != nil {
		return f.Target().Placement()
	}
	return coords.Identity
}

func (c *Context) clone() *Context {
	out := newContext(c.ID)
	for id, vn := range c.ViewNodes {
		out.ViewNodes[id] = vn.clone()
	}
	if c.Viewport != nil {
		vp := *c.Viewport
		out.Viewport = &vp
	}
	return out
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
