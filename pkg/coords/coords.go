// Package coords converts canvas placements between absolute space and the
// focal-relative space contexts are persisted in.
//
// A context stores every view node as an offset from its focal node,
// divided by the focal scale, plus a scale ratio. Re-entering the context
// from anywhere on the canvas then reproduces the same layout around
// wherever the focal node currently sits.
package coords

import (
	"math"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

// Placement is an absolute canvas position and scale.
type Placement struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Scale float64 `json:"scale" yaml:"scale"`
}

// Relative is a placement expressed against a focal placement.
type Relative struct {
	X     float64 `json:"relX" yaml:"relX"`
	Y     float64 `json:"relY" yaml:"relY"`
	Scale float64 `json:"relScale" yaml:"relScale"`
}

// Pan is a camera transform: screen = canvas*Scale + (X, Y).
type Pan struct {
	X     float64 `json:"panX" yaml:"panX"`
	Y     float64 `json:"panY" yaml:"panY"`
	Scale float64 `json:"scale" yaml:"scale"`
}

// RelativePan is a camera transform anchored on the focal node's
// intended absolute position.
type RelativePan struct {
	X     float64 `json:"relPosX" yaml:"relPosX"`
	Y     float64 `json:"relPosY" yaml:"relPosY"`
	Scale float64 `json:"scale" yaml:"scale"`
}

var (
	// DefaultRelative places a corrupt entry on top of the focal node.
	DefaultRelative = Relative{X: 0, Y: 0, Scale: 1}
	// DefaultRelativePan is an unzoomed camera with the focal node at the
	// screen origin.
	DefaultRelativePan = RelativePan{X: 0, Y: 0, Scale: 1}
	// Identity is the focal placement at the origin.
	Identity = Placement{X: 0, Y: 0, Scale: 1}
)

// ToAbsolute resolves rel against focal.
func ToAbsolute(rel Relative, focal Placement) (Placement, error) {
	if err := checkFocal(focal); err != nil {
		return Placement{}, err
	}
	if !finite(rel.X, rel.Y, rel.Scale) {
		return Placement{}, invalid("relative placement is not finite", rel.X, rel.Y, rel.Scale)
	}
	if rel.Scale <= 0 {
		return Placement{}, invalid("relative scale must be positive", rel.X, rel.Y, rel.Scale)
	}
	return Placement{
		X:     focal.X + rel.X*focal.Scale,
		Y:     focal.Y + rel.Y*focal.Scale,
		Scale: rel.Scale * focal.Scale,
	}, nil
}

// ToRelative is the inverse of ToAbsolute.
func ToRelative(abs Placement, focal Placement) (Relative, error) {
	if err := checkFocal(focal); err != nil {
		return Relative{}, err
	}
	if !finite(abs.X, abs.Y, abs.Scale) {
		return Relative{}, invalid("absolute placement is not finite", abs.X, abs.Y, abs.Scale)
	}
	if abs.Scale <= 0 {
		return Relative{}, invalid("absolute scale must be positive", abs.X, abs.Y, abs.Scale)
	}
	return Relative{
		X:     (abs.X - focal.X) / focal.Scale,
		Y:     (abs.Y - focal.Y) / focal.Scale,
		Scale: abs.Scale / focal.Scale,
	}, nil
}

// PanToAbsolute resolves a stored camera against the focal placement.
// The stored pan is the pan the camera would have if the focal node sat at
// the origin, so the focal node lands on the same screen spot on re-entry.
func PanToAbsolute(rel RelativePan, focal Placement) (Pan, error) {
	if err := checkFocal(focal); err != nil {
		return Pan{}, err
	}
	if !finite(rel.X, rel.Y, rel.Scale) || rel.Scale <= 0 {
		return Pan{}, invalid("relative pan is not finite", rel.X, rel.Y, rel.Scale)
	}
	return Pan{
		X:     rel.X - focal.X*rel.Scale,
		Y:     rel.Y - focal.Y*rel.Scale,
		Scale: rel.Scale,
	}, nil
}

// PanToRelative is the inverse of PanToAbsolute.
func PanToRelative(pan Pan, focal Placement) (RelativePan, error) {
	if err := checkFocal(focal); err != nil {
		return RelativePan{}, err
	}
	if !finite(pan.X, pan.Y, pan.Scale) || pan.Scale <= 0 {
		return RelativePan{}, invalid("pan is not finite", pan.X, pan.Y, pan.Scale)
	}
	return RelativePan{
		X:     pan.X + focal.X*pan.Scale,
		Y:     pan.Y + focal.Y*pan.Scale,
		Scale: pan.Scale,
	}, nil
}

// IsInvalidInput reports whether err came from a rejected conversion.
func IsInvalidInput(err error) bool {
	return kerr.HasCode(err, kerr.CodeCoordsInvalidInput)
}

// ApproxEqual compares two placements within tol.
func ApproxEqual(a, b Placement, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Scale-b.Scale) <= tol
}

func checkFocal(focal Placement) error {
	if !finite(focal.X, focal.Y, focal.Scale) {
		return invalid("focal placement is not finite", focal.X, focal.Y, focal.Scale)
	}
	if focal.Scale <= 0 {
		return invalid("focal scale must be positive", focal.X, focal.Y, focal.Scale)
	}
	return nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func invalid(msg string, x, y, scale float64) error {
	return kerr.New(kerr.CodeCoordsInvalidInput, msg,
		kerr.Field("x", x), kerr.Field("y", y), kerr.Field("scale", scale))
}
