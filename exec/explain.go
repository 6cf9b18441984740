package exec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/xattr"

	"github.com/aaronmcdaid/buildcore/core"
)

// commandXattr is the extended attribute under which a successful command
// build records the command that produced the file. It is informational
// only: the rebuild decision never reads it back (timestamps are
// authoritative).
const commandXattr = "user.buildcore.command"

// writeCommandAttr best-effort records build provenance on a freshly built
// file. Filesystems without xattr support just skip it.
func writeCommandAttr(name string, rule *core.Rule) {
	if rule == nil || rule.Kind != core.CommandRule {
		return
	}
	if err := xattr.Set(name, commandXattr, []byte(rule.Command)); err != nil {
		log.Debug("cannot record build provenance on %q: %s", name, err)
	}
}

// Explain prints, for each target, the command recorded on it when it was
// last built by this tool.
func Explain(w io.Writer, targets []string) {
	for _, t := range targets {
		data, err := xattr.Get(t, commandXattr)
		if err != nil {
			fmt.Fprintf(w, "%s: no build provenance recorded\n", t)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", t, bytes.TrimSpace(data))
	}
}
