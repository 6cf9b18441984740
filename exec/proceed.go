// Package exec is the execution engine: it materializes a dependency graph
// from a core.RuleSet and a list of requested targets, drives it to
// completion with bounded parallelism, and implements the dynamic
// dependency and flag propagation semantics.
package exec

import "gopkg.in/op/go-logging.v1"

var log = logging.MustGetLogger("exec")

// Proceed is the bitmask returned by Execute, combined up the call
// stack by bitwise OR.
type Proceed int

const (
	// Continue means nothing more to do at this call.
	Continue Proceed = 0
	// Pending means call Execute again; more work can start without blocking.
	Pending Proceed = 1 << 0
	// Wait means the caller must block for a child process before
	// further progress can be made.
	Wait Proceed = 1 << 1
)

// Has reports whether p carries every bit in mask.
func (p Proceed) Has(mask Proceed) bool { return p&mask == mask }
