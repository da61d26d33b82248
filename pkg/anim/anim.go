// Package anim provides retargetable animated values.
//
// A Handle holds a start value, a target value and a transition window. It
// is read at its live interpolated value and can be retargeted mid-flight,
// in which case the new transition starts from wherever the old one was.
// Handles are owned by exactly one holder; Detach hands the in-flight
// animation to a new owner instead of sharing the pointer.
package anim

import "time"

// Lerper is implemented by value types that can be interpolated.
type Lerper[T any] interface {
	Lerp(to T, t float64) T
}

// Clock returns the current time.
type Clock func() time.Time

// Easing maps linear progress in [0,1] to eased progress.
type Easing func(t float64) float64

// Linear is the default easing.
func Linear(t float64) float64 { return t }

// Handle is an animated value of type T.
type Handle[T Lerper[T]] struct {
	from     T
	to       T
	start    time.Time
	duration time.Duration
	clock    Clock
	easing   Easing
}

// Option configures a Handle.
type Option func(*config)

type config struct {
	clock  Clock
	easing Easing
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithEasing sets the interpolation curve.
func WithEasing(e Easing) Option {
	return func(cfg *config) {
		if e != nil {
			cfg.easing = e
		}
	}
}

// New returns a handle resting at v.
func New[T Lerper[T]](v T, opts ...Option) *Handle[T] {
	cfg := config{clock: time.Now, easing: Linear}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handle[T]{
		from:   v,
		to:     v,
		start:  cfg.clock(),
		clock:  cfg.clock,
		easing: cfg.easing,
	}
}

// Value returns the live interpolated value.
func (h *Handle[T]) Value() T {
	p := h.progress()
	if p >= 1 {
		return h.to
	}
	return h.from.Lerp(h.to, h.easing(p))
}

// Target returns the value the handle is heading to.
func (h *Handle[T]) Target() T {
	return h.to
}

// Retarget starts a transition from the live value to to over d.
// A non-positive d jumps immediately.
func (h *Handle[T]) Retarget(to T, d time.Duration) {
	if d <= 0 {
		h.Set(to)
		return
	}
	h.from = h.Value()
	h.to = to
	h.start = h.clock()
	h.duration = d
}

// Set jumps to v with no transition.
func (h *Handle[T]) Set(v T) {
	h.from = v
	h.to = v
	h.start = h.clock()
	h.duration = 0
}

// Remaining is the time left in the current transition.
func (h *Handle[T]) Remaining() time.Duration {
	if h.duration <= 0 {
		return 0
	}
	left := h.duration - h.clock().Sub(h.start)
	if left < 0 {
		return 0
	}
	return left
}

// Done reports whether the handle has reached its target.
func (h *Handle[T]) Done() bool {
	return h.Remaining() == 0
}

// Detach moves the in-flight animation to a new handle. The receiver is
// frozen at its current live value, so later changes to either handle do
// not affect the other.
func (h *Handle[T]) Detach() *Handle[T] {
	moved := &Handle[T]{
		from:     h.from,
		to:       h.to,
		start:    h.start,
		duration: h.duration,
		clock:    h.clock,
		easing:   h.easing,
	}
	h.Set(h.Value())
	return moved
}

// Clone returns an independent copy that follows the same transition.
// Unlike Detach it leaves the receiver untouched.
func (h *Handle[T]) Clone() *Handle[T] {
	c := *h
	return &c
}

func (h *Handle[T]) progress() float64 {
	if h.duration <= 0 {
		return 1
	}
	elapsed := h.clock().Sub(h.start)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= h.duration {
		return 1
	}
	return float64(elapsed) / float64(h.duration)
}

// Lerp is a float64 linear interpolation helper for Lerper implementations.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
