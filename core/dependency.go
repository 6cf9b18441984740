package core

// DepFlag is the per-dependency flag bitset. The final four
// are internal propagation markers the parser never produces.
type DepFlag uint16

const (
	Persistent DepFlag = 1 << iota
	Optional
	Trivial
	Variable
	Input
	NewlineSeparated
	NulSeparated
	TargetTransient
	OverrideTrivial
	DynamicLeft
	DynamicRight
	ResultOnly
)

// Has reports whether every bit in mask is set in f.
func (f DepFlag) Has(mask DepFlag) bool { return f&mask == mask }

// Any reports whether any bit in mask is set in f.
func (f DepFlag) Any(mask DepFlag) bool { return f&mask != 0 }

// DepKind discriminates the dependency variants.
type DepKind int

const (
	KindPlain DepKind = iota
	KindDynamic
	KindCompound
	KindConcat
)

// Dependency is the tagged value with variants Plain/Dynamic/Compound/Concat.
// Only the fields relevant to Kind are populated; callers must switch on
// Kind before reading Target/Inner/Children.
type Dependency struct {
	Kind DepKind

	// Plain
	Target   Target
	VarName  string // non-empty iff this Plain is captured as $[VarName]

	// Dynamic
	Inner *Dependency

	// Compound / Concat
	Children []*Dependency

	Flags DepFlag
	Place Place
	// FlagPlaces records, for diagnostics, where each flag token came from.
	// Keyed by the single-bit DepFlag it documents.
	FlagPlaces map[DepFlag]Place
}

// Plain constructs a Plain dependency.
func Plain(target Target, flags DepFlag) *Dependency {
	return &Dependency{Kind: KindPlain, Target: target, Flags: flags}
}

// PlainVar constructs a Plain dependency captured as a variable.
func PlainVar(target Target, flags DepFlag, varName string) *Dependency {
	return &Dependency{Kind: KindPlain, Target: target, Flags: flags | Variable, VarName: varName}
}

// DynamicDep wraps inner in one dynamic layer.
func DynamicDep(flags DepFlag, inner *Dependency) *Dependency {
	return &Dependency{Kind: KindDynamic, Flags: flags, Inner: inner}
}

// Compound groups children (a parenthesised list).
func Compound(flags DepFlag, children ...*Dependency) *Dependency {
	return &Dependency{Kind: KindCompound, Flags: flags, Children: children}
}

// Concat builds a concatenation of children.
func Concat(children ...*Dependency) *Dependency {
	return &Dependency{Kind: KindConcat, Children: children}
}

// Normalize returns dep in the form required at every graph edge:
// Compound flattened away except directly under a Concat,
// Concat appearing at most at one designated layer, flags pushed to the
// innermost sensible holder. It is written to be idempotent.
func Normalize(dep *Dependency) []*Dependency {
	return normalize(dep, 0)
}

func normalize(dep *Dependency, inherited DepFlag) []*Dependency {
	switch dep.Kind {
	case KindPlain:
		d := *dep
		d.Flags |= inherited
		return []*Dependency{&d}
	case KindDynamic:
		d := *dep
		d.Flags |= inherited
		inner := normalize(dep.Inner, 0)
		if len(inner) == 1 {
			d.Inner = inner[0]
		} else {
			d.Inner = &Dependency{Kind: KindCompound, Children: inner}
		}
		return []*Dependency{&d}
	case KindCompound:
		out := make([]*Dependency, 0, len(dep.Children))
		for _, c := range dep.Children {
			out = append(out, normalize(c, dep.Flags|inherited)...)
		}
		return out
	case KindConcat:
		d := &Dependency{Kind: KindConcat, Flags: dep.Flags | inherited, Place: dep.Place}
		for _, c := range dep.Children {
			// A Compound directly under a Concat stays grouped: flattening
			// it would change the product's arity. Its own children are
			// still normalized, with the group's flags pushed down.
			if c.Kind == KindCompound {
				group := &Dependency{Kind: KindCompound, Place: c.Place}
				for _, cc := range c.Children {
					group.Children = append(group.Children, normalize(cc, c.Flags)...)
				}
				d.Children = append(d.Children, group)
				continue
			}
			for _, n := range normalize(c, 0) {
				// Concat appears at most at one designated layer: a nested
				// concatenation's parts join the parent's directly.
				if n.Kind == KindConcat {
					d.Children = append(d.Children, n.Children...)
				} else {
					d.Children = append(d.Children, n)
				}
			}
		}
		return []*Dependency{d}
	default:
		return []*Dependency{dep}
	}
}

// Validate checks flag combinations that are a LOGICAL error regardless of
// which engine phase notices them: -p with -o, a variable capture combined
// with -p/-o/-t, or -n together with -0. Called by connect on each
// normalized dependency before it reaches the graph; duplicate redirections
// are rejected by the parser itself.
func (d *Dependency) Validate() *BuildError {
	if d.Kind != KindPlain {
		for _, c := range d.Children {
			if err := c.Validate(); err != nil {
				return err
			}
		}
		if d.Inner != nil {
			return d.Inner.Validate()
		}
		return nil
	}
	if d.Flags.Has(Persistent) && d.Flags.Has(Optional) {
		return Raise(Logical, d.Target.String(), "dependency flags -p and -o are mutually exclusive")
	}
	if d.VarName != "" && d.Flags.Any(Persistent|Optional|Trivial) {
		return Raise(Logical, d.Target.String(), "variable-captured dependency cannot also carry -p, -o or -t")
	}
	if d.Flags.Has(NewlineSeparated | NulSeparated) {
		return Raise(Logical, d.Target.String(), "duplicate separator flags -n and -0")
	}
	return nil
}
