package core

import "strings"

// LayerFlag is the per-layer bit pair of a target: whether a
// layer is a transient (vs. a plain file) and whether it is dynamic (has
// another layer beneath it, as opposed to being the innermost leaf).
type LayerFlag uint8

const (
	// LayerTransient marks a layer as naming a transient rather than a file.
	LayerTransient LayerFlag = 1 << 0
	// LayerDynamic marks a layer as a dynamic wrapper with an inner layer.
	LayerDynamic LayerFlag = 1 << 1
)

// Target identifies a node in the file-system namespace or the transient
// namespace, optionally wrapped in any number of dynamic layers. It is
// encoded as a sequence of layer flags, innermost last,
// followed by a name. Two targets compare equal iff their layer sequence
// and name are byte-equal; since Layers is a slice, Target is not
// comparable with ==, and Equal performs that comparison.
type Target struct {
	// Layers holds the dynamic-wrapper flags from outermost to innermost,
	// NOT including the innermost leaf's own transient/dynamic bits, which
	// live in Leaf. An empty Layers means a plain (non-dynamic) target.
	Layers []LayerFlag
	// Leaf carries the innermost layer's transient bit. LayerDynamic is
	// never set on Leaf; a target with Layers is dynamic by construction.
	Leaf LayerFlag
	// Name is the innermost file or transient name.
	Name string
}

// IsTransient reports whether the innermost (leaf) layer names a transient.
func (t Target) IsTransient() bool { return t.Leaf&LayerTransient != 0 }

// IsDynamic reports whether this target has at least one dynamic wrapper.
func (t Target) IsDynamic() bool { return len(t.Layers) > 0 }

// Depth returns the dynamic nesting depth: 0 for a plain target, 1 for
// "[x]", 2 for "[[x]]", and so on.
func (t Target) Depth() int { return len(t.Layers) }

// StripOne returns the target with its outermost dynamic layer removed.
// Only valid when IsDynamic() is true.
func (t Target) StripOne() Target {
	return Target{Layers: t.Layers[1:], Leaf: t.Leaf, Name: t.Name}
}

// Equal reports byte-equality of the flag sequences and names.
func (t Target) Equal(other Target) bool {
	if t.Leaf != other.Leaf || t.Name != other.Name || len(t.Layers) != len(other.Layers) {
		return false
	}
	for i, l := range t.Layers {
		if other.Layers[i] != l {
			return false
		}
	}
	return true
}

// CacheKey returns a string uniquely identifying this target for the
// process-wide caches: flag bytes then name.
func (t Target) CacheKey() string {
	var b strings.Builder
	for _, l := range t.Layers {
		b.WriteByte(byte(l) | 0x80) // offset so it never collides with a name byte
	}
	b.WriteByte(byte(t.Leaf))
	b.WriteByte(0)
	b.WriteString(t.Name)
	return b.String()
}

func (t Target) String() string {
	var b strings.Builder
	for range t.Layers {
		b.WriteByte('[')
	}
	if t.IsTransient() {
		b.WriteByte('@')
	}
	b.WriteString(t.Name)
	for range t.Layers {
		b.WriteByte(']')
	}
	return b.String()
}

// PlainFile constructs a plain (non-dynamic) file target.
func PlainFile(name string) Target { return Target{Name: name} }

// PlainTransient constructs a plain (non-dynamic) transient target.
func PlainTransient(name string) Target { return Target{Leaf: LayerTransient, Name: name} }

// WrapDynamic adds one outer dynamic layer to t.
func WrapDynamic(t Target) Target {
	return Target{Layers: append([]LayerFlag{LayerDynamic}, t.Layers...), Leaf: t.Leaf, Name: t.Name}
}
