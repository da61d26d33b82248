package coords

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func TestToAbsoluteFormula(t *testing.T) {
	focal := Placement{X: 100, Y: -50, Scale: 2}

	abs, err := ToAbsolute(Relative{X: 10, Y: 5, Scale: 0.5}, focal)
	require.NoError(t, err)

	assert.InDelta(t, 120, abs.X, tol)
	assert.InDelta(t, -40, abs.Y, tol)
	assert.InDelta(t, 1, abs.Scale, tol)
}

func TestFocalIsFixedPoint(t *testing.T) {
	focals := []Placement{
		{X: 0, Y: 0, Scale: 1},
		{X: 100, Y: 0, Scale: 1},
		{X: -333.25, Y: 17.5, Scale: 0.125},
	}
	for _, f := range focals {
		abs, err := ToAbsolute(Relative{X: 0, Y: 0, Scale: 1}, f)
		require.NoError(t, err)
		assert.Equal(t, f, abs)

		rel, err := ToRelative(f, f)
		require.NoError(t, err)
		assert.Equal(t, DefaultRelative, rel)
	}
}

func TestRoundTrip(t *testing.T) {
	rels := []Relative{
		{X: 0, Y: 0, Scale: 1},
		{X: 100, Y: 0, Scale: 1},
		{X: -250.5, Y: 1e4, Scale: 3.75},
		{X: 1e-6, Y: -1e-6, Scale: 1e-3},
	}
	focals := []Placement{
		{X: 0, Y: 0, Scale: 1},
		{X: 42, Y: -17, Scale: 0.3},
		{X: -1e5, Y: 1e5, Scale: 12},
	}

	for _, f := range focals {
		for _, r := range rels {
			abs, err := ToAbsolute(r, f)
			require.NoError(t, err)
			back, err := ToRelative(abs, f)
			require.NoError(t, err)

			scaleTol := 1e-9 * math.Max(1, math.Abs(r.X)+math.Abs(r.Y))
			assert.InDelta(t, r.X, back.X, scaleTol*1e3)
			assert.InDelta(t, r.Y, back.Y, scaleTol*1e3)
			assert.InDelta(t, r.Scale, back.Scale, 1e-9)
		}
	}
}

func TestRejectsCorruptInput(t *testing.T) {
	nan := math.NaN()

	_, err := ToAbsolute(Relative{X: nan, Y: 0, Scale: 1}, Identity)
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))

	_, err = ToAbsolute(DefaultRelative, Placement{X: 0, Y: 0, Scale: 0})
	assert.True(t, IsInvalidInput(err))

	_, err = ToRelative(Placement{X: 0, Y: math.Inf(1), Scale: 1}, Identity)
	assert.True(t, IsInvalidInput(err))

	_, err = PanToAbsolute(RelativePan{X: 0, Y: 0, Scale: nan}, Identity)
	assert.True(t, IsInvalidInput(err))

	for _, scale := range []float64{0, -2} {
		_, err = ToAbsolute(Relative{X: 10, Y: 0, Scale: scale}, Identity)
		assert.True(t, IsInvalidInput(err), "relative scale %v", scale)

		_, err = ToRelative(Placement{X: 10, Y: 0, Scale: scale}, Identity)
		assert.True(t, IsInvalidInput(err), "absolute scale %v", scale)
	}
}

func TestPanRoundTrip(t *testing.T) {
	focal := Placement{X: 300, Y: 120, Scale: 1.5}
	pan := Pan{X: 640, Y: 400, Scale: 0.8}

	rel, err := PanToRelative(pan, focal)
	require.NoError(t, err)
	back, err := PanToAbsolute(rel, focal)
	require.NoError(t, err)

	assert.InDelta(t, pan.X, back.X, tol)
	assert.InDelta(t, pan.Y, back.Y, tol)
	assert.InDelta(t, pan.Scale, back.Scale, tol)
}

func TestPanKeepsFocalOnScreen(t *testing.T) {
	// The focal node's screen position must not depend on where it sits
	// on the canvas.
	rel := RelativePan{X: 640, Y: 400, Scale: 2}

	for _, focal := range []Placement{{X: 0, Y: 0, Scale: 1}, {X: 500, Y: -80, Scale: 1}} {
		pan, err := PanToAbsolute(rel, focal)
		require.NoError(t, err)
		screenX := focal.X*pan.Scale + pan.X
		screenY := focal.Y*pan.Scale + pan.Y
		assert.InDelta(t, 640, screenX, tol)
		assert.InDelta(t, 400, screenY, tol)
	}
}
