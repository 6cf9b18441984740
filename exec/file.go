package exec

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aaronmcdaid/buildcore/core"
)

// fileTarget is one concrete target of a FileExec: the parameter-expanded
// name plus whether the rule declared it transient.
type fileTarget struct {
	name      string
	transient bool
}

// FileExec represents a rule whose targets include at least one file or
// that has a command, or a file with no rule at all. It is
// the only execution kind that starts jobs; every other kind delegates to
// child executions.
type FileExec struct {
	base Base
	name string

	// rule is the matched rule, nil when no rule covers this file (a plain
	// source file given as a dependency).
	rule    *core.Rule
	targets []fileTarget

	// params holds values captured from parametrized target matching,
	// vars holds values captured from $[var] dependencies. Both become
	// environment variables of the command; vars win on collision.
	params map[string]string
	vars   map[string]string

	// exists tracks file existence: -1 known missing, 0 unchecked, +1 all
	// file targets known to exist.
	exists int8

	// timestampsOld records each file target's mtime before the command
	// was launched, for remove-on-failure. Zero means the file was absent.
	timestampsOld []time.Time

	// inputFile is the "<" dependency fed to the command's stdin, if any.
	inputFile string

	launched bool
}

func newFileExec(e *Engine, name string) *FileExec {
	f := &FileExec{
		name:   name,
		params: map[string]string{},
		vars:   map[string]string{},
	}
	rule, params, ok := e.Rules.Lookup(name)
	if ok {
		f.rule = rule
		f.params = params
		f.base = NewBase(rule.Place)
		for i, tmpl := range rule.Targets {
			f.targets = append(f.targets, fileTarget{
				name:      core.ExpandParams(tmpl, params),
				transient: i < len(rule.TransientTargets) && rule.TransientTargets[i],
			})
		}
		for _, dep := range rule.Deps {
			f.base.bufferDefault = append(f.base.bufferDefault, bindParams(dep, params))
			if dep.Kind == core.KindPlain && dep.Flags.Has(core.Input) && f.inputFile == "" {
				f.inputFile = core.ExpandParams(dep.Target.Name, params)
			}
		}
		if rule.Kind == core.CopyRule && rule.CopySrc != nil {
			f.base.bufferDefault = append(f.base.bufferDefault, bindParams(rule.CopySrc, params))
		}
	} else {
		f.base = NewBase(core.Place{})
		f.targets = []fileTarget{{name: name}}
	}
	f.timestampsOld = make([]time.Time, len(f.targets))
	return f
}

// bindParams expands captured rule parameters inside a dependency's target
// names, so that "lib$v.a : src$v.c" demands the concrete source file.
func bindParams(dep *core.Dependency, params map[string]string) *core.Dependency {
	if len(params) == 0 {
		return dep
	}
	d := *dep
	switch d.Kind {
	case core.KindPlain:
		d.Target.Name = core.ExpandParams(d.Target.Name, params)
	case core.KindDynamic:
		d.Inner = bindParams(d.Inner, params)
	case core.KindCompound, core.KindConcat:
		children := make([]*core.Dependency, len(d.Children))
		for i, c := range d.Children {
			children[i] = bindParams(c, params)
		}
		d.Children = children
	}
	return &d
}

func (f *FileExec) Base() *Base { return &f.base }
func (f *FileExec) Kind() Kind  { return KindFile }

func (f *FileExec) Execute(eng *Engine, parent Execution, link core.Link) Proceed {
	p, out := runBase(eng, f, link)
	if out == outcomeReturn {
		return p
	}
	ctx := link.Flags()

	if done := f.checkedPhase(eng, ctx); done {
		return p
	}

	// Rebuild decision: nothing out of date means done for
	// this context without touching the trivial buffer.
	if f.base.bits&NeedBuild == 0 {
		f.base.MarkFinished(ctx)
		return p
	}

	sp := runSecondPass(eng, f)
	p |= sp
	if sp.Has(Wait) {
		return p
	}
	if len(f.base.children) > 0 {
		return p
	}
	if f.launched {
		return p | Wait
	}

	if f.rule == nil || f.rule.Kind == core.BareRule {
		// The target's non-existence was already resolved during the
		// checked phase; the rule is a pure dependency anchor.
		f.finishTargets()
		f.base.MarkFinished(ctx)
		return p
	}

	if eng.Question {
		fmt.Printf("Target %s is not up to date\n", f.String())
		eng.ErrorMask |= core.Build
		f.base.RaiseInto(core.Build)
		f.base.MarkFullyFinished()
		return p
	}

	for _, t := range f.targets {
		if t.transient {
			eng.StampTransient(t.name)
		}
	}

	switch f.rule.Kind {
	case core.HardcodedRule:
		f.writeContent(eng)
		return p
	case core.CopyRule:
		return p | f.startCopy(eng)
	default:
		return p | f.startCommand(eng)
	}
}

// checkedPhase stats every target to decide whether a rebuild is needed.
// It runs once, guarded
// by the Checked bit, except that an optional visit which found the file
// missing does not count as a full check: a later non-optional visit must
// still decide to build. Returns true when Execute should stop here.
func (f *FileExec) checkedPhase(eng *Engine, ctx core.DepFlag) bool {
	if f.base.bits&Checked != 0 {
		if f.exists < 0 && ctx.Has(core.Optional) {
			f.base.MarkFinished(ctx)
			return true
		}
		return false
	}

	depTs := f.base.timestamp
	var newest time.Time
	anyFile := false
	allPresent := true

	for i, t := range f.targets {
		if t.transient {
			if _, stamped := eng.TransientStamp(t.name); !stamped && f.allTransient() {
				// All-transient rules with a command are stale until the
				// command has run once in this process.
				f.base.bits |= NeedBuild
			}
			continue
		}
		anyFile = true
		st, err := os.Lstat(t.name)
		if err != nil {
			if !os.IsNotExist(err) {
				f.raise(eng, core.Raise(core.Build, t.name, "cannot stat: %s", err))
				return true
			}
			f.exists = -1
			allPresent = false
			if ctx.Has(core.Optional) {
				f.base.MarkFinished(ctx)
				return true
			}
			if f.rule == nil {
				f.raise(eng, core.Raise(core.Build, t.name, "no rule to build it, and the file does not exist"))
				return true
			}
			if f.rule.Kind == core.BareRule {
				msg := "expected the file to exist"
				if len(f.rule.Deps) > 0 {
					msg = "expected the file to exist because all its dependencies are up to date"
				}
				f.raise(eng, core.Raise(core.Build, t.name, "%s", msg))
				return true
			}
			f.base.bits |= NeedBuild
			f.timestampsOld[i] = time.Time{}
			continue
		}
		ts := st.ModTime()
		f.timestampsOld[i] = ts
		if ts.After(eng.StartTime) {
			log.Warning("timestamp of file %q is in the future", t.name)
		}
		if ts.After(newest) {
			newest = ts
		}
		if !depTs.IsZero() && depTs.After(ts) {
			if f.rule == nil || !f.rule.HasCommand() && f.rule.Kind != core.HardcodedRule {
				log.Warning("file %q is older than its dependencies", t.name)
			} else {
				f.base.bits |= NeedBuild
			}
		}
	}

	f.base.bits |= Checked
	if allPresent && anyFile {
		f.exists = 1
	}
	if f.base.bits&NeedBuild == 0 && anyFile {
		// Up to date: the file's own mtime is what parents compare against.
		f.base.timestamp = newest
		f.finishTargets()
	}
	return false
}

func (f *FileExec) allTransient() bool {
	for _, t := range f.targets {
		if !t.transient {
			return false
		}
	}
	return len(f.targets) > 0
}

// finishTargets records this execution's resolved value: one plain
// dependency per target, consumed by dynamic and concatenated parents.
func (f *FileExec) finishTargets() {
	if len(f.base.result) > 0 {
		return
	}
	for _, t := range f.targets {
		tgt := core.PlainFile(t.name)
		if t.transient {
			tgt = core.PlainTransient(t.name)
		}
		f.base.result = append(f.base.result, core.Plain(tgt, 0))
	}
}

// writeContent implements the hardcoded rule: no command
// launch, just write the literal content to the single file target.
func (f *FileExec) writeContent(eng *Engine) {
	name := f.targets[0].name
	if err := os.WriteFile(name, f.rule.Content, 0666); err != nil {
		f.raise(eng, core.Raise(core.Build, name, "cannot write: %s", err))
		return
	}
	f.exists = 1
	if st, err := os.Lstat(name); err == nil {
		f.base.timestamp = st.ModTime()
	}
	eng.CommandRan = true
	eng.BuiltCount++
	f.finishTargets()
	f.base.MarkFullyFinished()
}

// waited applies a terminated child process's result.
func (f *FileExec) waited(eng *Engine, res jobResult) {
	eng.unregisterPID(res.pid)
	eng.ReleaseJob()
	f.base.MarkFullyFinished()

	if res.err == nil {
		var newest time.Time
		for _, t := range f.targets {
			if t.transient {
				continue
			}
			st, err := os.Lstat(t.name)
			if err != nil {
				f.raise(eng, core.Raise(core.Build, t.name, "file was not built by command"))
				return
			}
			ts := st.ModTime()
			// File mtimes come from a coarser clock than StartTime, so a
			// file written just after startup can carry an mtime slightly
			// before it; compare at whole-second granularity.
			if ts.Before(eng.StartTime.Truncate(time.Second)) && st.Mode()&os.ModeSymlink == 0 {
				f.raise(eng, core.Raise(core.Build, t.name,
					"timestamp is older than the start of the build after rebuilding (clock skew?)"))
				return
			}
			if ts.After(newest) {
				newest = ts
			}
			writeCommandAttr(t.name, f.rule)
		}
		f.exists = 1
		if !newest.IsZero() {
			f.base.timestamp = newest
		}
		eng.BuiltCount++
		if eng.AnnounceParallel && !eng.Silent {
			fmt.Printf("Successfully built %s\n", f.String())
		}
		f.finishTargets()
		return
	}

	reason := describeTermination(res.err)
	err := core.Raise(core.Build, f.String(), "command failed: %s", reason).WithPlace(f.Place())
	f.removeIfExisting(eng, true)
	f.raiseErr(eng, err)
}

// removeIfExisting unlinks every file target whose on-disk timestamp is
// newer than it was before the launch, so a failed command does not leave
// half-written outputs behind. Skipped under -n.
func (f *FileExec) removeIfExisting(eng *Engine, output bool) {
	if eng.NoDelete {
		return
	}
	for i, t := range f.targets {
		if t.transient {
			continue
		}
		st, err := os.Lstat(t.name)
		if err != nil {
			continue
		}
		if !st.ModTime().After(f.timestampsOld[i]) {
			continue
		}
		if output {
			log.Warning("removing partially built file %q", t.name)
		}
		if err := os.Remove(t.name); err != nil && output {
			log.Error("cannot remove %q: %s", t.name, err)
		}
	}
}

// captureVariable reads the built child file's content as the value of a
// $[var] dependency, to be passed in the command's environment.
func (f *FileExec) captureVariable(eng *Engine, name string, child Execution) {
	cf, ok := child.(*FileExec)
	if !ok || len(cf.targets) == 0 {
		f.raise(eng, core.Raise(core.Logical, name, "variable dependency does not name a file"))
		return
	}
	data, err := os.ReadFile(cf.targets[0].name)
	if err != nil {
		f.raise(eng, core.Raise(core.Build, cf.targets[0].name, "cannot read variable dependency: %s", err))
		return
	}
	value := strings.TrimRight(string(data), "\n")
	value = strings.ReplaceAll(value, "\n", " ")
	f.vars[name] = value
}

func (f *FileExec) raise(eng *Engine, err *core.BuildError) {
	f.raiseErr(eng, err.WithPlace(f.Place()))
}

func (f *FileExec) raiseErr(eng *Engine, err *core.BuildError) {
	f.base.RaiseInto(err.Mask)
	f.base.MarkFullyFinished()
	reportError(eng, err)
}

func (f *FileExec) OptionalFinished(link core.Link) bool {
	return link.Flags().Has(core.Optional) && f.exists < 0
}

func (f *FileExec) WantDelete() bool { return false }

func (f *FileExec) RuleIdentity() (*core.Rule, int) { return f.rule, 0 }

func (f *FileExec) Place() core.Place { return f.base.Place() }

func (f *FileExec) String() string {
	if len(f.targets) > 0 && f.targets[0].transient && f.targets[0].name == f.name {
		return "@" + f.name
	}
	return f.name
}
