// Package history keeps the past/future log of context switches.
package history

import "sync"

// History is a two-stack navigation log of context ids.
type History struct {
	mu     sync.Mutex
	past   []string
	future []string
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// Push records id as the context being left and clears the redo stack.
func (h *History) Push(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = append(h.past, id)
	h.future = nil
}

// Undo pops the previous context, pushing current onto the redo stack.
func (h *History) Undo(current string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.past) == 0 {
		return "", false
	}
	id := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, current)
	return id, true
}

// Redo pops the next context, pushing current onto the undo stack.
func (h *History) Redo(current string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.future) == 0 {
		return "", false
	}
	id := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, current)
	return id, true
}

// Restore puts back the state observed before an Undo or Redo, used when
// the switch it triggered fails.
func (h *History) Restore(past, future []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = append([]string(nil), past...)
	h.future = append([]string(nil), future...)
}

// CanUndo reports whether Undo would succeed.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo reports whether Redo would succeed.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Past returns a copy of the undo stack, oldest first.
func (h *History) Past() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.past...)
}

// Future returns a copy of the redo stack, oldest first.
func (h *History) Future() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.future...)
}

// Clear empties both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
}
