// Package viewport implements the animatable canvas camera.
//
// The camera maps canvas coordinates to screen coordinates as
// screen = canvas*Scale + Pan.
package viewport

import (
	"math"
	"sync"
	"time"

	"github.com/kittclouds/karta/pkg/anim"
	"github.com/kittclouds/karta/pkg/layout"
)

const (
	// FramePadding is the share of the bounding box added around it by FrameAll.
	FramePadding = 0.1
	// MaxFrameScale caps the zoom FrameAll may choose.
	MaxFrameScale = 2.0
)

// Camera is the pan/zoom state.
type Camera struct {
	Scale float64 `json:"scale" yaml:"scale"`
	PanX  float64 `json:"panX" yaml:"panX"`
	PanY  float64 `json:"panY" yaml:"panY"`
}

// Lerp implements anim.Lerper.
func (c Camera) Lerp(to Camera, t float64) Camera {
	return Camera{
		Scale: anim.Lerp(c.Scale, to.Scale, t),
		PanX:  anim.Lerp(c.PanX, to.PanX, t),
		PanY:  anim.Lerp(c.PanY, to.PanY, t),
	}
}

// Identity is the unscaled, unpanned camera.
var Identity = Camera{Scale: 1}

// FocalSource exposes the live center of the active focal node.
type FocalSource interface {
	FocalCenter() (x, y float64, ok bool)
}

// Controller owns the camera and the screen size it is framed against.
type Controller struct {
	mu         sync.Mutex
	cam        *anim.Handle[Camera]
	width      float64
	height     float64
	transition time.Duration
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	clock      anim.Clock
	transition time.Duration
}

// WithClock injects the animation clock.
func WithClock(c anim.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTransition sets the default duration of framing animations.
func WithTransition(d time.Duration) Option {
	return func(o *options) { o.transition = d }
}

// New creates a controller for a screen of width x height pixels.
func New(width, height float64, opts ...Option) *Controller {
	o := options{transition: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		cam:        anim.New(Identity, anim.WithClock(o.clock)),
		width:      width,
		height:     height,
		transition: o.transition,
	}
}

// Camera returns the live camera.
func (c *Controller) Camera() Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam.Value()
}

// Target returns the camera the controller is moving towards.
func (c *Controller) Target() Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam.Target()
}

// Transition is the default framing duration.
func (c *Controller) Transition() time.Duration {
	return c.transition
}

// Apply retargets the camera over d. Zero d jumps.
func (c *Controller) Apply(cam Camera, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cam.Retarget(cam, d)
}

// SetScreenSize updates the frame used by centering operations.
func (c *Controller) SetScreenSize(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
}

// ScreenSize returns the current frame.
func (c *Controller) ScreenSize() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// CenterOnPoint puts canvas point (x, y) at the middle of the screen at
// scale 1, with no transition.
func (c *Controller) CenterOnPoint(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cam.Set(c.centeredLocked(x, y, 1))
}

// CenterOnFocal centers on the focal node's live position. It reports
// false when src has no focal node to offer.
func (c *Controller) CenterOnFocal(src FocalSource) bool {
	if src == nil {
		return false
	}
	x, y, ok := src.FocalCenter()
	if !ok {
		return false
	}
	c.CenterOnPoint(x, y)
	return true
}

// FrameAll fits every rect on screen with padding, zooming no further
// than MaxFrameScale. A zero-area bounding box falls back to centering on
// its middle. It reports false when rects is empty.
func (c *Controller) FrameAll(rects []layout.Rect) bool {
	box, ok := layout.Bounds(rects)
	if !ok {
		return false
	}
	cx := box.X + box.Width/2
	cy := box.Y + box.Height/2
	if box.Width <= 0 || box.Height <= 0 || !finite(box.Width, box.Height, cx, cy) {
		c.CenterOnPoint(cx, cy)
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pw := box.Width * (1 + FramePadding)
	ph := box.Height * (1 + FramePadding)
	scale := math.Min(math.Min(c.width/pw, c.height/ph), MaxFrameScale)
	if scale <= 0 || !finite(scale) {
		scale = 1
	}
	c.cam.Retarget(c.centeredLocked(cx, cy, scale), c.transition)
	return true
}

// ScreenToCanvas inverts the live camera transform.
func (c *Controller) ScreenToCanvas(sx, sy float64) (float64, float64) {
	cam := c.Camera()
	return (sx - cam.PanX) / cam.Scale, (sy - cam.PanY) / cam.Scale
}

// CanvasToScreen applies the live camera transform.
func (c *Controller) CanvasToScreen(x, y float64) (float64, float64) {
	cam := c.Camera()
	return x*cam.Scale + cam.PanX, y*cam.Scale + cam.PanY
}

func (c *Controller) centeredLocked(x, y, scale float64) Camera {
	return Camera{
		Scale: scale,
		PanX:  c.width/2 - x*scale,
		PanY:  c.height/2 - y*scale,
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
