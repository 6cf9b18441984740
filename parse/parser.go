package parse

import (
	"fmt"
	"os"

	"github.com/aaronmcdaid/buildcore/core"
)

// Load parses the given rule files into a single RuleSet.
func Load(paths ...string) (*core.RuleSet, error) {
	rs := core.NewRuleSet()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseString(string(data), path)
		if err != nil {
			return nil, err
		}
		log.Debug("loaded %d rules from %s", len(rules), path)
		for _, r := range rules {
			if err := rs.Add(r); err != nil {
				return nil, fmt.Errorf("%s: %s", r.Place, err)
			}
		}
	}
	return rs, nil
}

// ParseString parses rule-file source text into rules.
func ParseString(src, filename string) ([]*core.Rule, error) {
	toks, err := newLexer(src, filename).lex()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var rules []*core.Rule
	for !p.at(tokEOF) {
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ParseDependencyFile parses a file as a list of dependency expressions,
// the full-grammar case of dynamic dependency content.
func ParseDependencyFile(path string) ([]*core.Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDependencyList(string(data), path)
}

// ParseDependencyList parses source text containing only dependency
// expressions, as found in dynamic dependency files and on the command
// line.
func ParseDependencyList(src, filename string) ([]*core.Dependency, error) {
	toks, err := newLexer(src, filename).lex()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	deps, err := p.parseDeps(tokEOF)
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, p.errorf("unexpected %s in dependency list", p.cur())
	}
	return deps, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token      { return p.toks[p.pos] }
func (p *parser) at(k tokenKind) bool { return p.cur().kind == k }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if !p.at(k) {
		return token{}, p.errorf("expected %s, got %s", what, p.cur())
	}
	return p.next(), nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s", p.cur().place, fmt.Sprintf(format, args...))
}

// parseRule parses one rule of any of the four kinds.
func (p *parser) parseRule() (*core.Rule, error) {
	place := p.cur().place
	rule := &core.Rule{Place: place}

	for {
		for p.at(tokGt) {
			if rule.OutputRedirect {
				return nil, p.errorf("there must not be a second output redirection")
			}
			p.next()
			rule.OutputRedirect = true
		}
		transient := false
		if p.at(tokAt) {
			p.next()
			transient = true
		}
		name, err := p.expect(tokName, "a target name")
		if err != nil {
			return nil, err
		}
		rule.Targets = append(rule.Targets, name.text)
		rule.TransientTargets = append(rule.TransientTargets, transient)
		rule.Params = mergeParams(rule.Params, name.text)
		if p.at(tokName) || p.at(tokAt) || p.at(tokGt) {
			continue
		}
		break
	}

	switch p.cur().kind {
	case tokColon:
		p.next()
		deps, err := p.parseDeps(tokSemi, tokCommand)
		if err != nil {
			return nil, err
		}
		rule.Deps = deps
		switch p.cur().kind {
		case tokSemi:
			p.next()
			rule.Kind = core.BareRule
		case tokCommand:
			cmd := p.next()
			rule.Kind = core.CommandRule
			rule.Command = cmd.text
		default:
			return nil, p.errorf("expected ';' or a command after the dependencies, got %s", p.cur())
		}
	case tokEq:
		p.next()
		if len(rule.Targets) != 1 {
			return nil, fmt.Errorf("%s: a content rule must have exactly one target", place)
		}
		if rule.TransientTargets[0] {
			return nil, fmt.Errorf("%s: a content rule target cannot be transient", place)
		}
		if p.at(tokCommand) {
			content := p.next()
			rule.Kind = core.HardcodedRule
			rule.Content = []byte(content.text)
			break
		}
		src, err := p.parseDep()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi, "';' after the copy source"); err != nil {
			return nil, err
		}
		rule.Kind = core.CopyRule
		rule.CopySrc = src
		rule.Deps = []*core.Dependency{}
	case tokSemi:
		p.next()
		rule.Kind = core.BareRule
	default:
		return nil, p.errorf("expected ':', '=' or ';' after the targets, got %s", p.cur())
	}

	if rule.OutputRedirect {
		if rule.Kind != core.CommandRule {
			return nil, fmt.Errorf("%s: output redirection requires a command", place)
		}
		if len(rule.Targets) != 1 || rule.TransientTargets[0] {
			return nil, fmt.Errorf("%s: output redirection requires a single file target", place)
		}
	}
	if n := countInputs(rule.Deps); n > 1 {
		return nil, fmt.Errorf("%s: there must not be a second input redirection", place)
	}
	return rule, nil
}

// countInputs counts '<' input redirections across a rule's dependency
// list; at most one may feed the command's stdin.
func countInputs(deps []*core.Dependency) int {
	n := 0
	for _, d := range deps {
		if d.Flags.Has(core.Input) {
			n++
		}
		if d.Inner != nil {
			n += countInputs([]*core.Dependency{d.Inner})
		}
		n += countInputs(d.Children)
	}
	return n
}

// parseDeps parses dependency expressions until one of the stop tokens.
func (p *parser) parseDeps(stops ...tokenKind) ([]*core.Dependency, error) {
	var deps []*core.Dependency
	for {
		k := p.cur().kind
		for _, s := range stops {
			if k == s {
				return deps, nil
			}
		}
		if k == tokEOF {
			return nil, p.errorf("unexpected end of input in dependency list")
		}
		dep, err := p.parseDep()
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
}

// parseDep parses one dependency: leading flag tokens, an atom, and any
// glued continuation forming a concatenation.
func (p *parser) parseDep() (*core.Dependency, error) {
	flags, places, err := p.parseFlags()
	if err != nil {
		return nil, err
	}
	dep, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	dep.Flags |= flags
	if len(places) > 0 {
		if dep.FlagPlaces == nil {
			dep.FlagPlaces = map[core.DepFlag]core.Place{}
		}
		for f, pl := range places {
			dep.FlagPlaces[f] = pl
		}
	}

	// Adjacency with no whitespace is concatenation; the
	// leftmost part keeps the flags.
	if !p.gluedContinuation() {
		return dep, nil
	}
	children := []*core.Dependency{dep}
	for p.gluedContinuation() {
		part, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		children = append(children, part)
	}
	concat := core.Concat(children...)
	concat.Place = dep.Place
	return concat, nil
}

func (p *parser) gluedContinuation() bool {
	t := p.cur()
	if !t.glued {
		return false
	}
	return t.kind == tokName || t.kind == tokLParen || t.kind == tokLBracket
}

func (p *parser) parseFlags() (core.DepFlag, map[core.DepFlag]core.Place, error) {
	var flags core.DepFlag
	var places map[core.DepFlag]core.Place
	for p.at(tokFlag) {
		t := p.next()
		var f core.DepFlag
		switch t.text {
		case "p":
			f = core.Persistent
		case "o":
			f = core.Optional
		case "t":
			f = core.Trivial
		case "n":
			f = core.NewlineSeparated
		case "0":
			f = core.NulSeparated
		}
		if flags.Has(f) {
			return 0, nil, fmt.Errorf("%s: duplicate flag -%s", t.place, t.text)
		}
		flags |= f
		if places == nil {
			places = map[core.DepFlag]core.Place{}
		}
		places[f] = t.place
	}
	return flags, places, nil
}

func (p *parser) parseAtom() (*core.Dependency, error) {
	t := p.cur()
	switch t.kind {
	case tokLt:
		p.next()
		name, err := p.expect(tokName, "a file name after '<'")
		if err != nil {
			return nil, err
		}
		dep := core.Plain(core.PlainFile(name.text), core.Input)
		dep.Place = name.place
		return dep, nil
	case tokAt:
		p.next()
		name, err := p.expect(tokName, "a transient name after '@'")
		if err != nil {
			return nil, err
		}
		dep := core.Plain(core.PlainTransient(name.text), 0)
		dep.Place = name.place
		return dep, nil
	case tokName:
		p.next()
		dep := core.Plain(core.PlainFile(t.text), 0)
		dep.Place = t.place
		return dep, nil
	case tokLParen:
		p.next()
		children, err := p.parseDeps(tokRParen)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		dep := core.Compound(0, children...)
		dep.Place = t.place
		return dep, nil
	case tokLBracket:
		p.next()
		flags, _, err := p.parseFlags()
		if err != nil {
			return nil, err
		}
		children, err := p.parseDeps(tokRBracket)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("%s: empty dynamic dependency", t.place)
		}
		inner := children[0]
		if len(children) > 1 {
			inner = core.Compound(0, children...)
			inner.Place = t.place
		}
		dep := core.DynamicDep(flags, inner)
		dep.Place = t.place
		return dep, nil
	case tokVarOpen:
		p.next()
		name, err := p.expect(tokName, "a variable name after '$['")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		dep := core.PlainVar(core.PlainFile(name.text), 0, name.text)
		dep.Place = name.place
		return dep, nil
	default:
		return nil, p.errorf("expected a dependency, got %s", t)
	}
}

// mergeParams collects the distinct $name placeholders of a target
// template into the rule's parameter list, in order of first appearance.
func mergeParams(params []string, template string) []string {
	for i := 0; i < len(template); i++ {
		if template[i] != '$' {
			continue
		}
		j := i + 1
		for j < len(template) && isParamByte(template[j]) {
			j++
		}
		name := template[i+1 : j]
		if name != "" && !contains(params, name) {
			params = append(params, name)
		}
		i = j - 1
	}
	return params
}

func isParamByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
