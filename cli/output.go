package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize/english"

	"github.com/aaronmcdaid/buildcore/core"
)

// PrintCompletion prints the end-of-build summary: one of
// two success forms depending on whether anything was actually rebuilt, or
// the keep-going failure summary.
func PrintCompletion(mask core.ErrorMask, commandRan bool, built int, elapsed time.Duration) {
	if mask != core.NoError {
		fmt.Println("Targets not rebuilt because of errors")
		return
	}
	if !commandRan {
		fmt.Println("Targets are up to date")
		return
	}
	fmt.Printf("Successfully built %s in %s\n",
		english.Plural(built, "target", ""), elapsed.Round(time.Millisecond))
}
