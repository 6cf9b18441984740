// Package core holds the data model that the execution engine consumes:
// targets, dependencies, rules, error masks and configuration. Rules come
// only from the rule-file parser (package parse); the engine also builds
// plain Dependency values of its own, for dynamic content, concatenation
// products and execution results.
package core

import "fmt"

// A Place is a source location, preserved from the parser through the
// graph so that error traces can point back at the rule file that caused
// them.
type Place struct {
	File   string
	Line   int
	Column int
}

func (p Place) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// IsZero reports whether this place was never set.
func (p Place) IsZero() bool {
	return p.File == "" && p.Line == 0 && p.Column == 0
}
