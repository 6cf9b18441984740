package core

import (
	"fmt"
	"strings"
)

// RuleKind discriminates the four rule forms.
type RuleKind int

const (
	// CommandRule executes a shell string.
	CommandRule RuleKind = iota
	// HardcodedRule writes a literal byte string to its single target.
	HardcodedRule
	// CopyRule copies one source dependency to one destination file.
	CopyRule
	// BareRule has no command; it only declares dependencies / a timestamp anchor.
	BareRule
)

// Rule pairs one or more parametrized targets with an ordered dependency
// list and a command, hardcoded content, a copy source, or nothing.
type Rule struct {
	Kind RuleKind

	// Targets are the parametrized target name templates this rule
	// declares, eg. "lib$version.a". A template with no "$" params is
	// just a concrete name.
	Targets []string
	// Params is the ordered list of distinct "$name" placeholders found
	// across Targets, used to bind parameters when a concrete name matches.
	Params []string

	// TransientTargets runs parallel to Targets and records which of them
	// were declared with the "@" transient prefix.
	TransientTargets []bool

	Deps []*Dependency

	Command string      // CommandRule
	Content []byte      // HardcodedRule
	CopySrc *Dependency // CopyRule: the source dependency (may be Optional)

	// OutputRedirect means the command's stdout is written to the rule's
	// single file target (the ">" target prefix).
	OutputRedirect bool

	Place Place
}

// HasCommand reports whether building this rule launches a child process.
func (r *Rule) HasCommand() bool { return r.Kind == CommandRule || r.Kind == CopyRule }

// Match attempts to bind this rule's parametrized target template against
// a concrete name, returning the captured parameter values keyed by name.
// Templates are matched literally except for "$param" placeholders; each
// placeholder captures the text up to the first occurrence of the literal
// that follows it in the template (or the rest of the name when nothing
// follows), with no backtracking. A rule with no placeholders matches only
// the exact name.
func (r *Rule) Match(target string, templateIdx int) (map[string]string, bool) {
	return matchTemplate(r.Targets[templateIdx], target)
}

func matchTemplate(template, target string) (map[string]string, bool) {
	params := map[string]string{}
	ti, gi := 0, 0
	for ti < len(template) {
		if template[ti] == '$' {
			j := ti + 1
			for j < len(template) && isParamChar(template[j]) {
				j++
			}
			name := template[ti+1 : j]
			// Determine the literal text following this placeholder (up to
			// the next placeholder, if any) so we know where the capture
			// must stop.
			k := j
			for k < len(template) && template[k] != '$' {
				k++
			}
			rest := template[j:k]
			var stopAt int
			if rest == "" {
				stopAt = len(target)
			} else {
				idx := strings.Index(target[gi:], rest)
				if idx < 0 {
					return nil, false
				}
				stopAt = gi + idx
			}
			if stopAt < gi {
				return nil, false
			}
			params[name] = target[gi:stopAt]
			gi = stopAt
			ti = j
			continue
		}
		if gi >= len(target) || target[gi] != template[ti] {
			return nil, false
		}
		ti++
		gi++
	}
	if gi != len(target) {
		return nil, false
	}
	return params, true
}

func isParamChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// ExpandParams substitutes every "$name" placeholder in template with its
// captured value. Placeholders with no binding expand to the empty string,
// which cannot happen for a template that matched via matchTemplate.
func ExpandParams(template string, params map[string]string) string {
	if !strings.ContainsRune(template, '$') {
		return template
	}
	var b strings.Builder
	for i := 0; i < len(template); {
		if template[i] != '$' {
			b.WriteByte(template[i])
			i++
			continue
		}
		j := i + 1
		for j < len(template) && isParamChar(template[j]) {
			j++
		}
		b.WriteString(params[template[i+1:j]])
		i = j
	}
	return b.String()
}

// RuleSet holds every rule the parser produced, indexed for lookup by
// concrete target name. It is built once by the parser and is read-only
// from the engine's point of view.
type RuleSet struct {
	// direct holds rules with no "$" placeholders, keyed by exact name.
	direct map[string]*ruleRef
	// parametrized holds every rule with at least one placeholder, tried
	// in declaration order against a requested name that isn't in direct.
	parametrized []*ruleRef
	// transients records which names are declared transient by any rule,
	// so connect() can tell a bare transient-with-no-rule apart from a file.
	transients map[string]bool
	// defaultTarget is the first declared target, built when the engine is
	// invoked with no target arguments.
	defaultTarget string
}

type ruleRef struct {
	rule        *Rule
	templateIdx int
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{direct: map[string]*ruleRef{}, transients: map[string]bool{}}
}

// Add registers rule in the set, once per declared target template.
func (rs *RuleSet) Add(rule *Rule) error {
	for i, t := range rule.Targets {
		ref := &ruleRef{rule: rule, templateIdx: i}
		transient := i < len(rule.TransientTargets) && rule.TransientTargets[i]
		if strings.ContainsRune(t, '$') {
			rs.parametrized = append(rs.parametrized, ref)
		} else {
			if _, present := rs.direct[t]; present {
				return fmt.Errorf("duplicate rule for target %q", t)
			}
			rs.direct[t] = ref
			if rs.defaultTarget == "" {
				rs.defaultTarget = t
			}
		}
		if transient {
			rs.transients[t] = true
		}
	}
	return nil
}

// DefaultTarget returns the first concretely-named target declared in the
// set, or "" if every rule is parametrized (or the set is empty).
func (rs *RuleSet) DefaultTarget() string { return rs.defaultTarget }

// Lookup finds the rule (if any) matching a concrete target name, along
// with the parameter bindings captured from the match.
func (rs *RuleSet) Lookup(name string) (*Rule, map[string]string, bool) {
	if ref, ok := rs.direct[name]; ok {
		return ref.rule, map[string]string{}, true
	}
	for _, ref := range rs.parametrized {
		if params, ok := matchTemplate(ref.rule.Targets[ref.templateIdx], name); ok {
			return ref.rule, params, true
		}
	}
	return nil, nil, false
}

// IsDeclaredTransient reports whether name was declared as a transient
// target by any rule in the set.
func (rs *RuleSet) IsDeclaredTransient(name string) bool { return rs.transients[name] }
