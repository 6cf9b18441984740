package exec

import (
	"strings"

	"github.com/aaronmcdaid/buildcore/core"
)

// concatStage is the concatenation state machine position.
type concatStage int

const (
	concatScan    concatStage = iota // allocate parts, launch dynamic sub-parts
	concatCollect                    // wait for dynamic sub-parts' content
	concatProduct                    // build the assembled product dependencies
	concatFinished
)

// partEntry is one resolved name of a concatenation sub-part.
type partEntry struct {
	name  string
	flags core.DepFlag
}

// partFile is a dynamic sub-part whose content file must be read into the
// indexed part slot once every child has finished building.
type partFile struct {
	idx   int
	name  string
	flags core.DepFlag
}

// ConcatExec represents a concatenation expression. It is
// never cached and is destroyed on disconnect from its sole parent.
type ConcatExec struct {
	base  Base
	dep   *core.Dependency
	stage concatStage

	parts     [][]partEntry
	partFiles []partFile
}

func newConcatExec(eng *Engine, dep *core.Dependency) *ConcatExec {
	return &ConcatExec{
		base:  NewBase(dep.Place),
		dep:   dep,
		parts: make([][]partEntry, len(dep.Children)),
	}
}

func (c *ConcatExec) Base() *Base { return &c.base }
func (c *ConcatExec) Kind() Kind  { return KindConcatenated }

func (c *ConcatExec) Execute(eng *Engine, parent Execution, link core.Link) Proceed {
	if c.stage == concatScan {
		if !c.scanParts(eng) {
			return Continue
		}
		c.stage = concatCollect
	}

	p, out := runBase(eng, c, link)
	if out == outcomeReturn {
		return p
	}

	if c.stage == concatCollect {
		// Every sub-part's content file is built; read them and assemble
		// the product.
		if !c.assembleParts(eng) {
			return p
		}
		c.stage = concatProduct
		p2, out2 := runBase(eng, c, link)
		p |= p2
		if out2 == outcomeReturn {
			return p
		}
	}

	c.stage = concatFinished
	c.base.MarkFullyFinished()
	return p
}

// scanParts implements stage 0: plain sub-parts resolve to their own names
// immediately, dynamic sub-parts enqueue their strip-one-layer dependencies
// so their content can be read once built. Returns false if the expression
// was rejected outright.
func (c *ConcatExec) scanParts(eng *Engine) bool {
	for i, sub := range c.dep.Children {
		if !c.scanOne(eng, i, sub) {
			return false
		}
	}
	return true
}

func (c *ConcatExec) scanOne(eng *Engine, idx int, sub *core.Dependency) bool {
	switch sub.Kind {
	case core.KindPlain:
		if sub.Target.IsTransient() {
			// Concatenation involving transients has no defined semantics.
			c.raise(eng, core.Raise(core.Logical, sub.Target.String(),
				"transient targets cannot take part in concatenation"))
			return false
		}
		if sub.Target.IsDynamic() {
			inner := core.Plain(sub.Target.StripOne(), 0)
			inner.Place = sub.Place
			return c.launchPart(eng, idx, inner, sub.Flags)
		}
		c.parts[idx] = append(c.parts[idx], partEntry{name: sub.Target.Name, flags: sub.Flags})
		return true
	case core.KindDynamic:
		return c.launchPart(eng, idx, sub.Inner, sub.Flags)
	case core.KindCompound:
		for _, child := range sub.Children {
			if !c.scanOne(eng, idx, child) {
				return false
			}
		}
		return true
	default:
		c.raise(eng, core.Raise(core.Logical, "", "nested concatenation is not supported"))
		return false
	}
}

// launchPart records a dynamic sub-part's content file against its slot
// and enqueues the file itself for building.
func (c *ConcatExec) launchPart(eng *Engine, idx int, inner *core.Dependency, flags core.DepFlag) bool {
	if inner.Kind != core.KindPlain || inner.Target.IsDynamic() {
		c.raise(eng, core.Raise(core.Logical, "",
			"only plain dependencies can appear inside a concatenated dynamic"))
		return false
	}
	if inner.Target.IsTransient() {
		c.raise(eng, core.Raise(core.Logical, inner.Target.String(),
			"transient targets cannot take part in concatenation"))
		return false
	}
	c.partFiles = append(c.partFiles, partFile{idx: idx, name: inner.Target.Name, flags: flags})
	build := *inner
	build.Flags |= core.ResultOnly
	c.base.bufferDefault = append(c.base.bufferDefault, &build)
	return true
}

// assembleParts implements stage 1 -> 2: read each dynamic sub-part's
// content, then emit the Cartesian product of part lists, one Plain
// dependency per combination, names concatenated and flags taken from the
// leftmost part only. Returns false when the
// expression errored out.
func (c *ConcatExec) assembleParts(eng *Engine) bool {
	for _, pf := range c.partFiles {
		deps, err := readDynamic(eng, pf.name, pf.flags)
		if err != nil {
			c.raise(eng, err)
			return false
		}
		for _, d := range deps {
			c.parts[pf.idx] = append(c.parts[pf.idx], partEntry{name: d.Target.Name, flags: pf.flags})
		}
	}
	c.partFiles = nil

	combos := []partEntry{{}}
	for i, part := range c.parts {
		next := make([]partEntry, 0, len(combos)*len(part))
		for _, prefix := range combos {
			for _, entry := range part {
				if i > 0 && entry.flags&^core.ResultOnly != 0 {
					c.raise(eng, core.Raise(core.Logical, entry.name,
						"flags are not allowed on the right side of a concatenation"))
					return false
				}
				flags := prefix.flags
				if i == 0 {
					flags = entry.flags
				}
				next = append(next, partEntry{name: prefix.name + entry.name, flags: flags})
			}
		}
		combos = next
	}
	for _, combo := range combos {
		d := core.Plain(core.PlainFile(combo.name), combo.flags&^core.ResultOnly)
		d.Place = c.dep.Place
		c.base.bufferDefault = append(c.base.bufferDefault, d)
		c.base.result = append(c.base.result, d)
	}
	return true
}

func (c *ConcatExec) raise(eng *Engine, err *core.BuildError) {
	c.base.RaiseInto(err.Mask)
	c.base.MarkFullyFinished()
	reportError(eng, err)
}

func (c *ConcatExec) OptionalFinished(core.Link) bool { return false }
func (c *ConcatExec) WantDelete() bool                { return true }
func (c *ConcatExec) RuleIdentity() (*core.Rule, int) { return nil, 0 }
func (c *ConcatExec) Place() core.Place               { return c.base.Place() }

func (c *ConcatExec) String() string {
	var b strings.Builder
	for i, sub := range c.dep.Children {
		if i > 0 {
			b.WriteByte('.')
		}
		if sub.Kind == core.KindPlain {
			b.WriteString(sub.Target.String())
		} else {
			b.WriteString("(...)")
		}
	}
	return b.String()
}
