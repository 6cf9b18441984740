package exec

import (
	"bufio"
	"os"

	"github.com/aaronmcdaid/buildcore/core"
	"github.com/aaronmcdaid/buildcore/parse"
)

// readDynamic reads the content of a built dependency file under the flags
// the dynamic was demanded with: either full rule-file
// expression syntax, or one record per newline / NUL, selected by the -n /
// -0 flags on the dynamic dependency in the rule that created the file.
func readDynamic(eng *Engine, name string, flags core.DepFlag) ([]*core.Dependency, *core.BuildError) {
	if !flags.Any(core.NewlineSeparated | core.NulSeparated) {
		deps, err := parse.ParseDependencyFile(name)
		if err != nil {
			return nil, core.Raise(core.Logical, name, "cannot parse dynamic dependency content: %s", err)
		}
		return deps, nil
	}

	sep := byte('\n')
	if flags.Has(core.NulSeparated) {
		sep = 0
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, core.Raise(core.Build, name, "cannot open dynamic dependency file: %s", err)
	}
	defer file.Close()

	var deps []*core.Dependency
	r := bufio.NewReader(file)
	for {
		record, err := r.ReadString(sep)
		atEOF := err != nil
		if len(record) > 0 && record[len(record)-1] == sep {
			record = record[:len(record)-1]
		}
		if record == "" && !atEOF {
			e := core.Raise(core.Logical, name, "empty record in dynamic dependency file")
			if eng.KeepGoing {
				reportError(eng, e)
				continue
			}
			return nil, e
		}
		if record != "" {
			deps = append(deps, core.Plain(core.PlainFile(record), 0))
		}
		if atEOF {
			break
		}
	}
	return deps, nil
}
