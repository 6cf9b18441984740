package parse

import (
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/aaronmcdaid/buildcore/core"
)

// RuleFileName is the conventional rule file name; Discover loads every
// file whose name ends with it.
const RuleFileName = "build.mk"

// Discover walks dir and loads every rule file found underneath it into
// one RuleSet, in lexical order so rule precedence is stable.
func Discover(dir string) (*core.RuleSet, error) {
	var files []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if name := de.Name(); name == ".git" || name == ".hg" {
					return godirwalk.SkipThis
				}
				return nil
			}
			if strings.HasSuffix(path, RuleFileName) {
				files = append(files, path)
			}
			return nil
		},
		Unsorted: false,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("discovered %d rule files under %s", len(files), dir)
	return Load(files...)
}
