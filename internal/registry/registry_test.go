package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticDefaults(t *testing.T) {
	r := NewStatic()

	assert.Equal(t, ViewDefaults{Width: 320, Height: 240, Scale: 1}, r.DefaultViewState(TypeImage))
	assert.Equal(t, r.DefaultViewState(TypeGeneric), r.DefaultViewState("plugin/unknown"))
	assert.Equal(t, true, r.DefaultAttributes(TypeImage)["lockAspect"])
}

func TestDefaultAttributesAreCopies(t *testing.T) {
	r := NewStatic()

	attrs := r.DefaultAttributes(TypeText)
	attrs["text"] = "changed"

	assert.Equal(t, "", r.DefaultAttributes(TypeText)["text"])
}

func TestRegister(t *testing.T) {
	r := NewStatic()
	r.Register("custom/card", ViewDefaults{Width: 50, Height: 70, Scale: 2}, map[string]any{"suit": "spades"})

	assert.Equal(t, 2.0, r.DefaultViewState("custom/card").Scale)
	assert.Equal(t, "spades", r.DefaultAttributes("custom/card")["suit"])
}
