package exec

import "github.com/aaronmcdaid/buildcore/core"

// TransientExec represents a rule whose targets are all transients and
// that has no command: it stores only a rule, a
// pre-execution timestamp, and a finished flag, and its Execute is a thin
// wrapper over the shared base algorithm.
type TransientExec struct {
	base Base
	name string
	rule *core.Rule // nil if no rule declares this transient at all
}

func newTransientExec(eng *Engine, name string, rule *core.Rule) *TransientExec {
	t := &TransientExec{base: NewBase(placeOf(rule)), name: name, rule: rule}
	if rule != nil {
		for _, dep := range rule.Deps {
			t.base.bufferDefault = append(t.base.bufferDefault, dep)
		}
	}
	return t
}

func placeOf(rule *core.Rule) core.Place {
	if rule == nil {
		return core.Place{}
	}
	return rule.Place
}

func (t *TransientExec) Base() *Base { return &t.base }
func (t *TransientExec) Kind() Kind  { return KindTransient }

func (t *TransientExec) Execute(eng *Engine, parent Execution, link core.Link) Proceed {
	p, out := runBase(eng, t, link)
	if out == outcomeReturn {
		return p
	}
	// Finish upon the first call that finds no pending work.
	// The execution's timestamp stays at the max of its dependencies'
	// timestamps (accumulated on disconnect), so a transient passes its
	// deps' staleness through to its parents rather than forcing a rebuild
	// every run; the stamp map only records that it was reached at all.
	eng.StampTransient(t.name)
	t.base.MarkFullyFinished()
	t.base.result = append(t.base.result, core.Plain(core.PlainTransient(t.name), 0))
	return p
}

func (t *TransientExec) OptionalFinished(core.Link) bool { return false }
func (t *TransientExec) WantDelete() bool                { return false }
func (t *TransientExec) RuleIdentity() (*core.Rule, int) { return t.rule, 0 }
func (t *TransientExec) Place() core.Place               { return t.base.Place() }
func (t *TransientExec) String() string                  { return "@" + t.name }
