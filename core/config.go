package core

import (
	"os"

	"gopkg.in/op/go-logging.v1"

	"github.com/please-build/gcfg"
)

var log = logging.MustGetLogger("core")

// ConfigFileName is the repo-local config file: an ini-style file of
// engine-level defaults that CLI flags always override.
const ConfigFileName = ".buildcorerc"

// Configuration holds the defaults loadable from .buildcorerc. Jobs,
// ForceOptional and Random have corresponding command-line flags (the
// options struct in cmd/buildcore) that take precedence when set;
// MinVersion and DebounceMillis are set only here.
type Configuration struct {
	Build struct {
		// Jobs is the default job budget.
		Jobs int
		// ForceOptional, when true, behaves as if -g was always passed:
		// optional dependencies are treated as non-optional.
		ForceOptional bool
		// Random selects the random scheduling mode instead of DFS.
		Random bool
		// MinVersion is the minimum engine version this repo expects; a
		// mismatch is a warning, not an error.
		MinVersion string
	}
	Watch struct {
		// DebounceMillis is how long the watch loop (exec/watch.go) waits
		// after a filesystem event before re-driving the engine.
		DebounceMillis int
	}
}

// DefaultConfiguration returns the built-in defaults used when no config
// file is present.
func DefaultConfiguration() Configuration {
	c := Configuration{}
	c.Build.Jobs = 1
	c.Watch.DebounceMillis = 200
	return c
}

// ReadConfigFiles loads .buildcorerc from each of the given directories in
// order, later files overriding earlier ones. A missing file is not an
// error; non-fatal problems (such as unknown variables) are logged as a
// WARNING and otherwise ignored, while a fatal parse error is returned.
func ReadConfigFiles(dirs []string) (Configuration, error) {
	config := DefaultConfiguration()
	for _, dir := range dirs {
		if err := readConfigFile(&config, dir+string(os.PathSeparator)+ConfigFileName); err != nil {
			return config, err
		}
	}
	return config, nil
}

func readConfigFile(config *Configuration, filename string) error {
	log.Debug("Reading config from %s...", filename)
	if err := gcfg.ReadFileInto(config, filename); err != nil && os.IsNotExist(err) {
		return nil // Not an error to not have the file at all.
	} else if gcfg.FatalOnly(err) != nil {
		return err
	} else if err != nil {
		log.Warning("Error in config file %s: %s", filename, err)
	}
	return nil
}
