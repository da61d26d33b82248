package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoRedo(t *testing.T) {
	h := New()
	assert.False(t, h.CanUndo())

	// A -> B -> C
	h.Push("A")
	h.Push("B")

	prev, ok := h.Undo("C")
	require.True(t, ok)
	assert.Equal(t, "B", prev)
	assert.Equal(t, []string{"A"}, h.Past())
	assert.Equal(t, []string{"C"}, h.Future())

	next, ok := h.Redo("B")
	require.True(t, ok)
	assert.Equal(t, "C", next)
	assert.Equal(t, []string{"A", "B"}, h.Past())
	assert.False(t, h.CanRedo())
}

func TestPushClearsFuture(t *testing.T) {
	h := New()
	h.Push("A")
	_, _ = h.Undo("B")
	require.True(t, h.CanRedo())

	h.Push("A")
	assert.False(t, h.CanRedo())
}

func TestEmptyStacks(t *testing.T) {
	h := New()
	_, ok := h.Undo("X")
	assert.False(t, ok)
	_, ok = h.Redo("X")
	assert.False(t, ok)
	assert.Empty(t, h.Past())
	assert.Empty(t, h.Future())
}

func TestRestore(t *testing.T) {
	h := New()
	h.Push("A")
	past, future := h.Past(), h.Future()

	_, _ = h.Undo("B")
	h.Restore(past, future)

	assert.Equal(t, []string{"A"}, h.Past())
	assert.Empty(t, h.Future())

	h.Clear()
	assert.False(t, h.CanUndo())
}
