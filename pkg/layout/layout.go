// Package layout implements the geometry of direct node manipulation:
// single-node resize with a dimension floor and optional aspect lock, and
// group resize anchored on a corner of the selection's bounding box.
package layout

import "math"

// DefaultMinDimension is the smallest width or height a resize may produce.
const DefaultMinDimension = 20.0

// Rect is an axis-aligned box. X and Y are the top-left corner.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Options controls a resize.
type Options struct {
	MinDimension float64
	LockAspect   bool
	// Aspect is the pre-drag width/height ratio. Zero means use the
	// rect's current ratio.
	Aspect float64
}

// Resize returns r with the requested dimensions, clamped to the floor.
// Position is untouched. With LockAspect the ratio is re-applied after
// clamping, growing the other side if the floor broke it.
func Resize(r Rect, width, height float64, opts Options) Rect {
	floor := opts.MinDimension
	if floor <= 0 {
		floor = DefaultMinDimension
	}

	aspect := opts.Aspect
	if aspect <= 0 && r.Height > 0 {
		aspect = r.Width / r.Height
	}

	if opts.LockAspect && aspect > 0 {
		// Follow whichever axis moved further, in relative terms.
		if r.Width > 0 && r.Height > 0 && math.Abs(width/r.Width-1) < math.Abs(height/r.Height-1) {
			width = height * aspect
		} else {
			height = width / aspect
		}
	}

	width = math.Max(width, floor)
	height = math.Max(height, floor)

	if opts.LockAspect && aspect > 0 {
		if width/height > aspect {
			height = width / aspect
		} else {
			width = height * aspect
		}
	}

	r.Width = width
	r.Height = height
	return r
}

// Corner names a corner of a box.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

// Point returns the coordinates of corner c of r.
func (c Corner) Point(r Rect) (float64, float64) {
	switch c {
	case TopRight:
		return r.Right(), r.Y
	case BottomLeft:
		return r.X, r.Bottom()
	case BottomRight:
		return r.Right(), r.Bottom()
	default:
		return r.X, r.Y
	}
}

// Bounds returns the bounding box of rects. ok is false when rects is empty.
func Bounds(rects []Rect) (Rect, bool) {
	if len(rects) == 0 {
		return Rect{}, false
	}
	minX, minY := rects[0].X, rects[0].Y
	maxX, maxY := rects[0].Right(), rects[0].Bottom()
	for _, r := range rects[1:] {
		minX = math.Min(minX, r.X)
		minY = math.Min(minY, r.Y)
		maxX = math.Max(maxX, r.Right())
		maxY = math.Max(maxY, r.Bottom())
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// GroupResize scales a selection so its bounding box becomes width×height
// while the anchor corner stays put. Each rect's offset from the anchor is
// scaled by the same per-axis factor as its own dimensions, so the
// arrangement survives non-uniform resizes. Dimensions are floored.
func GroupResize(rects []Rect, anchor Corner, width, height float64, opts Options) []Rect {
	bounds, ok := Bounds(rects)
	if !ok {
		return nil
	}
	floor := opts.MinDimension
	if floor <= 0 {
		floor = DefaultMinDimension
	}

	sx, sy := 1.0, 1.0
	if bounds.Width > 0 {
		sx = math.Max(width, floor) / bounds.Width
	}
	if bounds.Height > 0 {
		sy = math.Max(height, floor) / bounds.Height
	}
	if opts.LockAspect {
		s := math.Max(sx, sy)
		sx, sy = s, s
	}

	ax, ay := anchor.Point(bounds)
	out := make([]Rect, len(rects))
	for i, r := range rects {
		out[i] = Rect{
			X:      ax + (r.X-ax)*sx,
			Y:      ay + (r.Y-ay)*sy,
			Width:  math.Max(r.Width*sx, floor),
			Height: math.Max(r.Height*sy, floor),
		}
	}
	return out
}
