package core

import (
	"fmt"
	"strings"
)

// ErrorMask is the {BUILD,LOGICAL,FATAL} failure bitmask. It is OR'd up
// the execution tree on disconnect and becomes the process exit code.
type ErrorMask int

const (
	// NoError indicates success.
	NoError ErrorMask = 0
	// Build indicates a command failed, a required file was not produced,
	// a stat/open/unlink call failed, or an optional copy source is missing.
	Build ErrorMask = 1
	// Logical indicates a cycle, malformed dynamic dependency content,
	// conflicting flags, an unknown rule, or a name violation.
	Logical ErrorMask = 2
	// Fatal indicates an internal invariant violation. Causes immediate exit.
	Fatal ErrorMask = 4
)

// ExitCode maps the aggregate error mask to the process exit code described
// of the process. Fatal always wins, then Logical, then Build.
func (m ErrorMask) ExitCode() int {
	switch {
	case m&Fatal != 0:
		return 4
	case m&Logical != 0:
		return 2
	case m&Build != 0:
		return 1
	default:
		return 0
	}
}

// BuildError is a raised error carrying its classification and the chain of
// places (root to error site) that led to it, for trace printing. Left
// branch dynamic edges are never appended to Trace.
type BuildError struct {
	Mask    ErrorMask
	Target  string
	Message string
	Trace   []Place
}

func (e *BuildError) Error() string {
	if e.Target == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Target, e.Message)
}

// WithPlace returns a copy of the error with an additional trace entry
// appended. Called as the error propagates back up through each link.
func (e *BuildError) WithPlace(p Place) *BuildError {
	trace := make([]Place, len(e.Trace)+1)
	copy(trace, e.Trace)
	trace[len(e.Trace)] = p
	return &BuildError{Mask: e.Mask, Target: e.Target, Message: e.Message, Trace: trace}
}

// FormatTrace renders the dependency chain from root to error site, one
// "X depends on Y" line per link.
func (e *BuildError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return e.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", e.Error())
	for i := 0; i < len(e.Trace)-1; i++ {
		fmt.Fprintf(&b, "  %s depends on %s\n", e.Trace[i], e.Trace[i+1])
	}
	return b.String()
}

// Raise constructs a BuildError for the given target and mask. It is the
// sole constructor used by the engine; callers that are in keep-going mode
// OR the mask into their own execution's error field instead of letting it
// propagate as a Go error.
func Raise(mask ErrorMask, target, format string, args ...interface{}) *BuildError {
	return &BuildError{Mask: mask, Target: target, Message: fmt.Sprintf(format, args...)}
}

// CycleError formats a dependency cycle in the dedicated multi-line format
// used for all cycle reports: one "X depends on Y" line per edge of the
// chain, the first on the "cyclic dependency:" line itself.
func CycleError(chain []string) *BuildError {
	if len(chain) < 2 {
		return &BuildError{Mask: Logical, Message: "cyclic dependency: " + strings.Join(chain, "")}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "cyclic dependency: %s depends on %s", chain[0], chain[1])
	for i := 1; i+1 < len(chain); i++ {
		fmt.Fprintf(&b, "\n  %s depends on %s", chain[i], chain[i+1])
	}
	return &BuildError{Mask: Logical, Message: b.String()}
}
