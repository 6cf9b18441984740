package exec

import (
	"time"

	"github.com/aaronmcdaid/buildcore/core"
)

// Kind enumerates the five execution kinds.
type Kind int

const (
	KindRoot Kind = iota
	KindFile
	KindTransient
	KindDynamic
	KindConcatenated
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindFile:
		return "file"
	case KindTransient:
		return "transient"
	case KindDynamic:
		return "dynamic"
	case KindConcatenated:
		return "concatenated"
	default:
		return "unknown"
	}
}

// Bits are the per-execution status bits.
type Bits uint8

const (
	NeedBuild Bits = 1 << iota
	Checked
)

// Execution is the method table every execution kind implements. The
// shared algorithm in base.go lives once, parametrized by this interface.
type Execution interface {
	// Base returns the embedded common state.
	Base() *Base
	// Kind identifies which of the five execution kinds this is.
	Kind() Kind
	// Execute advances this execution given a visit from parent along link.
	// parent is nil for the Root execution.
	Execute(eng *Engine, parent Execution, link core.Link) Proceed
	// OptionalFinished short-circuits optional file dependencies:
	// true if this is a File execution whose file is missing and whose
	// inbound link is Optional. Always false for non-file kinds.
	OptionalFinished(link core.Link) bool
	// WantDelete reports whether this execution should be torn down once
	// it has no more parents (true for Concatenated and non-cached
	// Dynamic executions).
	WantDelete() bool
	// RuleIdentity returns the parametrized-rule pointer and dynamic depth
	// used by cycle detection: two executions with the
	// same rule pointer and the same dynamic depth on a path back to one
	// another constitute a cycle.
	RuleIdentity() (rule *core.Rule, depth int)
	// Place returns a diagnostic source location for this execution.
	Place() core.Place
	// String names this execution for trace and cycle messages.
	String() string
}

// childEdge is one of this execution's currently open out-edges.
type childEdge struct {
	child Execution
	link  core.Link
}

// Base is the common execution state, embedded
// by every concrete execution kind.
type Base struct {
	parents map[Execution]core.Link
	children []*childEdge

	bufferDefault []*core.Dependency
	bufferTrivial []*core.Dependency

	result []*core.Dependency

	timestamp time.Time

	errorMask core.ErrorMask
	bits      Bits

	// flagsFinished records which aspects of this execution are done.
	// A visit carrying one of the aspect flags (Persistent/Optional/
	// Trivial) is allowed to skip the corresponding work, so completing
	// such a visit only finishes the aspects it did not skip. All aspect
	// bits set means unconditionally done.
	flagsFinished    core.DepFlag
	flagsFinishedSet bool

	place core.Place
}

// aspectMask is the set of link-flag bits that scope "finished": a visit
// under -p, -o or -t demands less of the execution than a plain visit, so
// finishing it must not satisfy a later, more demanding visit.
const aspectMask = core.Persistent | core.Optional | core.Trivial

// NewBase returns a zero Base with its maps initialized.
func NewBase(place core.Place) Base {
	return Base{parents: map[Execution]core.Link{}, place: place}
}

// Finished reports whether this execution has already completed for the
// given flag context: every aspect the context does
// not exempt must already be done.
func (b *Base) Finished(ctx core.DepFlag) bool {
	if !b.flagsFinishedSet {
		return false
	}
	return (b.flagsFinished|ctx)&aspectMask == aspectMask
}

// MarkFinished records that this execution is done for the given flag
// context: all aspects the context did not exempt are now finished.
func (b *Base) MarkFinished(ctx core.DepFlag) {
	b.flagsFinished |= aspectMask &^ ctx
	b.flagsFinishedSet = true
}

// MarkFullyFinished marks this execution finished under every context,
// used by File's reap step ("flags_finished = ~0").
func (b *Base) MarkFullyFinished() {
	b.flagsFinished = aspectMask
	b.flagsFinishedSet = true
}

// Error returns this execution's accumulated error bits.
func (b *Base) Error() core.ErrorMask { return b.errorMask }

// RaiseInto ORs mask into the execution's error field, the keep-going-mode
// equivalent of raising.
func (b *Base) RaiseInto(mask core.ErrorMask) { b.errorMask |= mask }

// Place returns the diagnostic place recorded at construction.
func (b *Base) Place() core.Place { return b.place }

// AddParent records (or updates, OR-ing in added flags) a parent link.
func (b *Base) AddParent(parent Execution, link core.Link) {
	if existing, ok := b.parents[parent]; ok {
		b.parents[parent] = existing.WithFlags(link.Flags())
		return
	}
	b.parents[parent] = link
}

// RemoveParent deletes parent from this execution's parent set.
func (b *Base) RemoveParent(parent Execution) { delete(b.parents, parent) }

// NumParents reports how many parents currently reference this execution.
func (b *Base) NumParents() int { return len(b.parents) }

// LinkFrom returns the link this execution's parent stored for it.
func (b *Base) LinkFrom(parent Execution) core.Link { return b.parents[parent] }
