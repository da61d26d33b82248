// Package registry supplies type-specific defaults for new nodes.
package registry

// ViewDefaults is the geometry a fresh ViewNode of a type starts with.
type ViewDefaults struct {
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
	Scale    float64 `yaml:"scale"`
	Rotation float64 `yaml:"rotation"`
}

// Registry resolves defaults by node type tag.
type Registry interface {
	DefaultViewState(ntype string) ViewDefaults
	DefaultAttributes(ntype string) map[string]any
}

// Built-in node types.
const (
	TypeRoot    = "core/root"
	TypeGeneric = "core/generic"
	TypeText    = "core/text"
	TypeImage   = "core/image"
)

type entry struct {
	view  ViewDefaults
	attrs map[string]any
}

// Static is a fixed table of node types. Unknown types fall back to
// core/generic.
type Static struct {
	types map[string]entry
}

// NewStatic returns a registry with the built-in types.
func NewStatic() *Static {
	return &Static{types: map[string]entry{
		TypeRoot: {
			view:  ViewDefaults{Width: 200, Height: 200, Scale: 1},
			attrs: map[string]any{},
		},
		TypeGeneric: {
			view:  ViewDefaults{Width: 200, Height: 100, Scale: 1},
			attrs: map[string]any{},
		},
		TypeText: {
			view:  ViewDefaults{Width: 240, Height: 160, Scale: 1},
			attrs: map[string]any{"text": "", "fontSize": 16},
		},
		TypeImage: {
			view:  ViewDefaults{Width: 320, Height: 240, Scale: 1},
			attrs: map[string]any{"src": "", "lockAspect": true},
		},
	}}
}

// Register adds or replaces a type.
func (s *Static) Register(ntype string, view ViewDefaults, attrs map[string]any) {
	s.types[ntype] = entry{view: view, attrs: attrs}
}

// DefaultViewState returns the geometry for ntype.
func (s *Static) DefaultViewState(ntype string) ViewDefaults {
	return s.lookup(ntype).view
}

// DefaultAttributes returns a fresh copy of the attributes for ntype.
func (s *Static) DefaultAttributes(ntype string) map[string]any {
	src := s.lookup(ntype).attrs
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (s *Static) lookup(ntype string) entry {
	if e, ok := s.types[ntype]; ok {
		return e
	}
	return s.types[TypeGeneric]
}

// Compile-time interface check
var _ Registry = (*Static)(nil)
