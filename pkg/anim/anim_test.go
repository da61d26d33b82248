package anim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scalar float64

func (s scalar) Lerp(to scalar, t float64) scalar {
	return scalar(Lerp(float64(s), float64(to), t))
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func TestRetargetInterpolates(t *testing.T) {
	clk := newClock()
	h := New[scalar](0, WithClock(clk.Now))

	h.Retarget(100, time.Second)
	assert.Equal(t, scalar(0), h.Value())
	assert.Equal(t, scalar(100), h.Target())

	clk.Advance(250 * time.Millisecond)
	assert.InDelta(t, 25, float64(h.Value()), 1e-9)
	assert.Equal(t, 750*time.Millisecond, h.Remaining())

	clk.Advance(time.Second)
	assert.Equal(t, scalar(100), h.Value())
	assert.True(t, h.Done())
}

func TestRetargetMidFlightStartsFromLiveValue(t *testing.T) {
	clk := newClock()
	h := New[scalar](0, WithClock(clk.Now))

	h.Retarget(100, time.Second)
	clk.Advance(500 * time.Millisecond)
	h.Retarget(0, time.Second)

	assert.InDelta(t, 50, float64(h.Value()), 1e-9)
	clk.Advance(500 * time.Millisecond)
	assert.InDelta(t, 25, float64(h.Value()), 1e-9)
}

func TestZeroDurationJumps(t *testing.T) {
	h := New[scalar](3)
	h.Retarget(9, 0)
	assert.Equal(t, scalar(9), h.Value())
	assert.True(t, h.Done())
}

func TestDetachDoesNotAlias(t *testing.T) {
	clk := newClock()
	src := New[scalar](0, WithClock(clk.Now))
	src.Retarget(100, time.Second)
	clk.Advance(500 * time.Millisecond)

	moved := src.Detach()

	// The moved handle keeps animating; the source is frozen.
	assert.InDelta(t, 50, float64(src.Value()), 1e-9)
	assert.InDelta(t, 50, float64(moved.Value()), 1e-9)
	clk.Advance(250 * time.Millisecond)
	assert.InDelta(t, 50, float64(src.Value()), 1e-9)
	assert.InDelta(t, 75, float64(moved.Value()), 1e-9)

	moved.Set(-1)
	assert.InDelta(t, 50, float64(src.Value()), 1e-9)
}

func TestEasingApplied(t *testing.T) {
	clk := newClock()
	square := func(p float64) float64 { return p * p }
	h := New[scalar](0, WithClock(clk.Now), WithEasing(square))

	h.Retarget(100, time.Second)
	clk.Advance(500 * time.Millisecond)
	assert.InDelta(t, 25, float64(h.Value()), 1e-9)
}
