package exec

import (
	"github.com/aaronmcdaid/buildcore/core"
)

// DynamicExec represents one dynamic layer. Its inner
// (stripped) dependency is pushed to the default buffer as the "left
// branch": build the content file that will enumerate further
// dependencies. Once that child disconnects, the file is read and each
// obtained dependency is re-enqueued as a "right branch" to be built for
// real. The two-branch scheme decouples "the list of deps" from "the deps
// themselves" and lets cache lookups proceed naturally.
type DynamicExec struct {
	base   Base
	flags  core.DepFlag
	inner  *core.Dependency
	cached bool

	// rule and depth identify this execution for cycle detection
	//: the parametrized rule of the innermost name plus
	// the dynamic nesting depth.
	rule  *core.Rule
	depth int
}

func newDynamicExec(eng *Engine, flags core.DepFlag, inner *core.Dependency) *DynamicExec {
	d := &DynamicExec{base: NewBase(inner.Place), flags: flags, inner: inner}
	if inner.Kind == core.KindPlain {
		d.rule, _, _ = eng.Rules.Lookup(inner.Target.Name)
		d.depth = inner.Target.Depth() + 1
	}
	left := *inner
	left.Flags |= core.DynamicLeft | core.ResultOnly
	d.base.bufferDefault = append(d.base.bufferDefault, &left)
	return d
}

func (d *DynamicExec) Base() *Base { return &d.base }
func (d *DynamicExec) Kind() Kind  { return KindDynamic }

func (d *DynamicExec) Execute(eng *Engine, parent Execution, link core.Link) Proceed {
	p, out := runBase(eng, d, link)
	if out == outcomeReturn {
		return p
	}
	d.base.MarkFullyFinished()
	return p
}

// propagateFromChild implements propagate_to_dynamic:
// called when a left-branch child disconnects, it reads the built content
// (or takes a transient child's result list directly), validates every
// obtained sub-dependency, and pushes each as a result.
func (d *DynamicExec) propagateFromChild(eng *Engine, child Execution) {
	var deps []*core.Dependency
	switch c := child.(type) {
	case *TransientExec:
		// Transients have no file to read; their result list is the content.
		deps = append(deps, c.base.result...)
	case *DynamicExec:
		// Nested dynamic: the child's results name the files whose content
		// this layer consumes.
		for _, r := range c.base.result {
			ds, err := readDynamic(eng, r.Target.Name, d.flags)
			if err != nil {
				d.raise(eng, err)
				return
			}
			deps = append(deps, ds...)
		}
	case *FileExec:
		for _, t := range c.targets {
			if t.transient {
				continue
			}
			ds, err := readDynamic(eng, t.name, d.flags)
			if err != nil {
				d.raise(eng, err)
				return
			}
			deps = append(deps, ds...)
		}
	default:
		for _, r := range child.Base().result {
			ds, err := readDynamic(eng, r.Target.Name, d.flags)
			if err != nil {
				d.raise(eng, err)
				return
			}
			deps = append(deps, ds...)
		}
	}

	for _, dep := range deps {
		if err := validateDynamicContent(dep, d.inner); err != nil {
			if eng.KeepGoing {
				d.base.RaiseInto(err.Mask)
				reportError(eng, err)
				continue // null out the offending entry and compact
			}
			d.raise(eng, err)
			return
		}
		d.pushResult(dep)
	}
}

// pushResult records dep as part of what this node resolves to, and
// re-enqueues it as a right-branch child so it actually gets built before
// any parent consumes it.
func (d *DynamicExec) pushResult(dep *core.Dependency) {
	for _, flat := range core.Normalize(dep) {
		if flat.Kind == core.KindPlain {
			d.base.result = append(d.base.result, flat)
		}
	}
	right := *dep
	right.Flags |= core.DynamicRight | d.flags&(core.Persistent|core.Optional|core.Trivial)
	d.base.bufferDefault = append(d.base.bufferDefault, &right)
}

// validateDynamicContent enforces the restrictions on what a
// dynamic dependency file may contain.
func validateDynamicContent(dep *core.Dependency, inner *core.Dependency) *core.BuildError {
	switch dep.Kind {
	case core.KindPlain:
		if paramNames(dep.Target.Name) {
			return core.Raise(core.Logical, dep.Target.Name,
				"dynamic dependency content must not contain parameters")
		}
		if dep.VarName != "" && inner.Kind == core.KindPlain && inner.Target.IsTransient() {
			return core.Raise(core.Logical, dep.Target.Name,
				"variable dependency inside a transient dynamic has no defined semantics")
		}
		return nil
	case core.KindDynamic:
		return validateDynamicContent(dep.Inner, inner)
	default:
		for _, c := range dep.Children {
			if err := validateDynamicContent(c, inner); err != nil {
				return err
			}
		}
		return nil
	}
}

func paramNames(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '$' {
			return true
		}
	}
	return false
}

func (d *DynamicExec) raise(eng *Engine, err *core.BuildError) {
	d.base.RaiseInto(err.Mask)
	d.base.MarkFullyFinished()
	reportError(eng, err)
}

func (d *DynamicExec) OptionalFinished(core.Link) bool { return false }
func (d *DynamicExec) WantDelete() bool                { return !d.cached }

func (d *DynamicExec) RuleIdentity() (*core.Rule, int) { return d.rule, d.depth }

func (d *DynamicExec) Place() core.Place { return d.base.Place() }

func (d *DynamicExec) String() string {
	if d.inner.Kind == core.KindPlain {
		return "[" + d.inner.Target.String() + "]"
	}
	return "[...]"
}
