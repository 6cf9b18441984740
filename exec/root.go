package exec

import "github.com/aaronmcdaid/buildcore/core"

// RootExec is the synthetic driver for top-level requests: created once in main, destroyed at end, never cached and
// never itself a dependency of anything.
type RootExec struct {
	base Base
}

// NewRoot constructs the Root execution holding the given top-level
// dependencies in its default buffer.
func NewRoot(deps []*core.Dependency) *RootExec {
	r := &RootExec{base: NewBase(core.Place{})}
	r.base.bufferDefault = deps
	return r
}

func (r *RootExec) Base() *Base { return &r.base }
func (r *RootExec) Kind() Kind  { return KindRoot }

func (r *RootExec) Execute(eng *Engine, parent Execution, link core.Link) Proceed {
	p, out := runBase(eng, r, link)
	if out == outcomeReturn {
		return p
	}
	r.base.MarkFullyFinished()
	return p
}

func (r *RootExec) OptionalFinished(core.Link) bool          { return false }
func (r *RootExec) WantDelete() bool                         { return false }
func (r *RootExec) RuleIdentity() (*core.Rule, int)          { return nil, 0 }
func (r *RootExec) Place() core.Place                        { return r.base.Place() }
func (r *RootExec) String() string                           { return "<root>" }
