package exec

import (
	"math/rand"

	"github.com/aaronmcdaid/buildcore/core"
)

// outcome tells a kind's Execute method what to do after runBase returns.
type outcome int

const (
	// outcomeReturn means the kind should immediately return the Proceed
	// value runBase produced; a decision (finished, still waiting, error
	// stop) has already been made.
	outcomeReturn outcome = iota
	// outcomeReady means every open child has disconnected and
	// bufferDefault/bufferTrivial(second pass only) are drained without
	// error-stop; the kind may now run its own finish-time logic.
	outcomeReady
)

// rewriteLinkFlags applies the inbound flag rewrites of a visit, plus the
// -g/-G overrides (treat optional as non-optional, trivial as
// non-trivial), which are most cheaply applied at the same point.
func rewriteLinkFlags(eng *Engine, link core.Link, childIsTransient bool) core.Link {
	if eng.ForceNonOptional {
		link = link.ClearFlags(core.Optional)
	}
	if eng.ForceNonTrivial {
		link = link.ClearFlags(core.Trivial)
	}
	f := link.Flags()
	if f.Has(core.OverrideTrivial) {
		link = link.ClearFlags(core.Trivial)
	}
	f = link.Flags()
	if f.Has(core.DynamicRight) {
		link = link.ClearFlags(core.DynamicLeft)
	} else if !childIsTransient {
		// Transients carry DynamicLeft inward so variable propagation can
		// pass through them; everything else drops it here.
		link = link.ClearFlags(core.DynamicLeft)
	}
	return link
}

// runBase is the shared algorithm behind every kind's Execute. Flag
// rewriting is applied by the caller before
// invoking runBase, since they depend on whether the child about to be
// visited is a transient, which only the caller (via connect/executeChildren)
// knows about for *this* link; runBase itself only rewrites links for its
// own children inside executeChildren.
func runBase(eng *Engine, self Execution, link core.Link) (Proceed, outcome) {
	b := self.Base()
	ctx := link.Flags()

	if b.Finished(ctx) {
		return Continue, outcomeReturn
	}
	if self.OptionalFinished(link) {
		b.MarkFinished(ctx)
		return Continue, outcomeReturn
	}
	if ctx.Has(core.Trivial) {
		b.MarkFinished(ctx)
		return Continue, outcomeReturn
	}

	var acc Proceed

	if !eng.Random {
		acc |= executeChildren(eng, self)
		if acc.Has(Wait) {
			return acc, outcomeReturn
		}
		if b.Finished(ctx) {
			return acc, outcomeReturn
		}
	}

	acc |= drainDefault(eng, self)

	if eng.Random {
		acc |= executeChildren(eng, self)
		if acc.Has(Wait) {
			return acc, outcomeReturn
		}
		if b.Finished(ctx) {
			return acc, outcomeReturn
		}
	}

	if len(b.children) > 0 {
		return acc, outcomeReturn
	}
	if b.errorMask != core.NoError && eng.KeepGoing {
		b.MarkFinished(ctx)
		return acc, outcomeReturn
	}
	return acc, outcomeReady
}

// runSecondPass implements execute_second_pass: drains
// bufferTrivial via connect. File executions call this once they've
// determined the target must be rebuilt.
func runSecondPass(eng *Engine, self Execution) Proceed {
	b := self.Base()
	var acc Proceed
	for len(b.bufferTrivial) > 0 && eng.JobsRemaining() > 0 {
		dep := b.bufferTrivial[0]
		b.bufferTrivial = b.bufferTrivial[1:]
		acc |= connect(eng, self, dep)
	}
	acc |= executeChildren(eng, self)
	return acc
}

// drainDefault is the first pass: drain bufferDefault, for
// each item cloning it with OverrideTrivial set into bufferTrivial, then
// connecting it as a live child. Drains stop once the job budget is
// exhausted.
func drainDefault(eng *Engine, self Execution) Proceed {
	b := self.Base()
	var acc Proceed
	for len(b.bufferDefault) > 0 {
		if eng.JobsRemaining() <= 0 {
			acc |= Pending
			break
		}
		dep := b.bufferDefault[0]
		b.bufferDefault = b.bufferDefault[1:]
		clone := *dep
		clone.Flags |= core.OverrideTrivial
		b.bufferTrivial = append(b.bufferTrivial, &clone)
		acc |= connect(eng, self, dep)
	}
	return acc
}

// executeChildren advances the open children: snapshot the child set, visit
// each, disconnecting any that finished for the flags under which it was
// visited.
func executeChildren(eng *Engine, self Execution) Proceed {
	b := self.Base()
	snapshot := make([]*childEdge, len(b.children))
	copy(snapshot, b.children)
	if eng.Random {
		rand.Shuffle(len(snapshot), func(i, j int) { snapshot[i], snapshot[j] = snapshot[j], snapshot[i] })
	}

	var acc Proceed
	for _, edge := range snapshot {
		childBase := edge.child.Base()
		link := childBase.LinkFrom(self)
		if link.Dep == nil {
			continue // already disconnected by an earlier edge in this snapshot
		}
		if link.Flags().Has(core.TargetTransient) {
			link = link.WithFlags(edge.link.Flags())
		}
		childIsTransient := edge.child.Kind() == KindTransient
		link = rewriteLinkFlags(eng, link, childIsTransient)

		p := edge.child.Execute(eng, self, link)
		acc |= p
		if childBase.Finished(link.Flags()) {
			disconnect(eng, self, edge.child)
		}
	}
	return acc
}

// disconnect removes the parent/child edge in both directions and applies
// the bottom-up result flow: the child's error mask is OR'd
// into the parent, its timestamp propagates unless the
// edge is persistent, variable captures are resolved, and
// Dynamic/Concatenated parents consume the child's result.
func disconnect(eng *Engine, parent Execution, child Execution) {
	pb := parent.Base()
	cb := child.Base()
	link := cb.LinkFrom(parent)

	for i, e := range pb.children {
		if e.child == child {
			pb.children = append(pb.children[:i], pb.children[i+1:]...)
			break
		}
	}
	cb.RemoveParent(parent)
	pb.errorMask |= cb.errorMask

	flags := link.Flags()
	if !flags.Has(core.Persistent) {
		if cb.timestamp.After(pb.timestamp) {
			pb.timestamp = cb.timestamp
		}
	}

	if link.Dep != nil && link.Dep.VarName != "" {
		if fp, ok := parent.(*FileExec); ok {
			fp.captureVariable(eng, link.Dep.VarName, child)
		}
	}

	if d, ok := parent.(*DynamicExec); ok {
		if flags.Has(core.DynamicLeft) && !flags.Has(core.DynamicRight) {
			d.propagateFromChild(eng, child)
		}
	}

	if child.WantDelete() && cb.NumParents() == 0 {
		teardown(child)
	}
}

// teardown destroys an ephemeral execution (Concatenated, non-cached
// Dynamic) once its sole parent has dropped it: its
// remaining edges are severed so cached children no longer hold it in
// their parent maps, and its buffers are released. Cached kinds keep a
// reference from the engine's maps and are never torn down.
func teardown(e Execution) {
	b := e.Base()
	for len(b.children) > 0 {
		edge := b.children[0]
		b.children = b.children[1:]
		edge.child.Base().RemoveParent(e)
	}
	b.bufferDefault = nil
	b.bufferTrivial = nil
	b.result = nil
}
