package exec

import (
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/aaronmcdaid/buildcore/core"
)

// connect dispatches a normalized dependency to the
// right execution kind, create or look it up in the process-wide cache,
// run cycle detection on every connect (cache hits included), link it as a
// child of parent, visit it once, and disconnect immediately if it finished
// for this link.
func connect(eng *Engine, parent Execution, dep *core.Dependency) Proceed {
	var acc Proceed
	for _, norm := range core.Normalize(dep) {
		acc |= connectOne(eng, parent, norm)
	}
	return acc
}

func connectOne(eng *Engine, parent Execution, dep *core.Dependency) Proceed {
	if err := dep.Validate(); err != nil {
		parent.Base().RaiseInto(err.Mask)
		reportError(eng, err)
		return Continue
	}

	var child Execution

	switch dep.Kind {
	case core.KindConcat:
		child = newConcatExec(eng, dep)
	case core.KindDynamic:
		child, _ = connectDynamic(eng, dep.Flags, dep.Inner)
	case core.KindCompound:
		var acc Proceed
		for _, c := range dep.Children {
			acc |= connect(eng, parent, c)
		}
		return acc
	case core.KindPlain:
		if dep.Target.IsDynamic() {
			inner := core.Plain(dep.Target.StripOne(), 0)
			child, _ = connectDynamic(eng, dep.Flags, inner)
		} else if dep.Target.IsTransient() {
			child, _ = connectTransientOrFile(eng, dep.Target.Name)
		} else {
			child, _ = eng.lookupOrCreateFile(dep.Target.Name)
		}
	}

	link := core.Link{Dep: dep, Place: dep.Place}
	// The closing edge of a cycle is always a cache hit (the child already
	// exists), so the check runs on every connect, not just on creation.
	if cyc := findCycle(parent, child); cyc != nil {
		parent.Base().RaiseInto(core.Logical)
		reportError(eng, cyc)
		return Continue
	}

	child.Base().AddParent(parent, link)
	// A re-demand of an already-open child merges into the existing edge
	// (AddParent OR'd the flags); a second edge would never be cleaned up.
	alreadyOpen := false
	for _, e := range parent.Base().children {
		if e.child == child {
			alreadyOpen = true
			break
		}
	}
	if !alreadyOpen {
		parent.Base().children = append(parent.Base().children, &childEdge{child: child, link: link})
	}

	visit := rewriteLinkFlags(eng, link, child.Kind() == KindTransient)
	p := child.Execute(eng, parent, visit)
	if child.Base().Finished(visit.Flags()) {
		disconnect(eng, parent, child)
	}
	return p
}

// connectDynamic looks up or creates the Dynamic execution for one dynamic
// layer wrapping inner. The plain case (inner is a single Plain dependency)
// is cached by target+flags; anything else (Concat, multiple children) is
// never cached and is destroyed on disconnect.
func connectDynamic(eng *Engine, flags core.DepFlag, inner *core.Dependency) (*DynamicExec, bool) {
	if inner.Kind == core.KindPlain {
		key := inner.Target.CacheKey() + "#" + strconv.Itoa(int(flags))
		return eng.lookupOrCreateDynamic(key, true, func() *DynamicExec {
			d := newDynamicExec(eng, flags, inner)
			d.cached = true
			return d
		})
	}
	return eng.lookupOrCreateDynamic("", false, func() *DynamicExec {
		return newDynamicExec(eng, flags, inner)
	})
}

// connectTransientOrFile resolves a plain transient dependency: a
// transient without dynamic layers resolves to a File execution if
// the matched rule has a command or any file target, else a Transient
// execution. A transient with no rule at all is also a Transient.
func connectTransientOrFile(eng *Engine, name string) (Execution, bool) {
	rule, _, ok := eng.Rules.Lookup(name)
	if ok && ruleNeedsFile(eng, rule) {
		f, created := eng.lookupOrCreateFile(name)
		return f, created
	}
	t, created := eng.lookupOrCreateTransient(name, rule)
	return t, created
}

func ruleNeedsFile(eng *Engine, rule *core.Rule) bool {
	if rule.HasCommand() {
		return true
	}
	for _, t := range rule.Targets {
		if !eng.Rules.IsDeclaredTransient(t) {
			return true
		}
	}
	return false
}

// reportError records a raised error and either bubbles it
// out of the current call (keep-going off, or any FATAL regardless of mode)
// via panic, caught at the scheduler's top level in Run, or else lets the
// caller continue with the mask already OR'd into both the engine and the
// triggering execution's own error field.
func reportError(eng *Engine, err *core.BuildError) {
	eng.ErrorMask |= err.Mask
	eng.accumulated = multierror.Append(eng.accumulated, err)
	log.Error(err.FormatTrace())
	if err.Mask == core.Fatal || !eng.KeepGoing {
		panic(err)
	}
}
