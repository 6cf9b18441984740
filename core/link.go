package core

// Link is an edge from a parent execution to a child, carrying the child
// dependency as the parent sees it (with flags) and a diagnostic place.
// A child may have several parents (caching); the parent set lives on the
// child execution (see DESIGN.md's note on the arena re-architecture).
type Link struct {
	Dep   *Dependency
	Place Place
}

// Flags is a convenience accessor for the common case of reading just the
// flag word off a link's dependency.
func (l Link) Flags() DepFlag {
	if l.Dep == nil {
		return 0
	}
	return l.Dep.Flags
}

// WithFlags returns a copy of the link with f OR'd into the dependency's
// flags. Used by execute_children to recompute inbound
// flags before each visit without mutating the stored link.
func (l Link) WithFlags(f DepFlag) Link {
	if l.Dep == nil {
		return l
	}
	d := *l.Dep
	d.Flags |= f
	return Link{Dep: &d, Place: l.Place}
}

// ClearFlags returns a copy of the link with every bit in mask cleared.
func (l Link) ClearFlags(mask DepFlag) Link {
	if l.Dep == nil {
		return l
	}
	d := *l.Dep
	d.Flags &^= mask
	return Link{Dep: &d, Place: l.Place}
}
