// buildcore is a build engine in the tradition of Make, with parametrized
// rules, transient targets, dynamic dependencies and dependency flags.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/aaronmcdaid/buildcore/cli"
	"github.com/aaronmcdaid/buildcore/core"
	"github.com/aaronmcdaid/buildcore/exec"
	"github.com/aaronmcdaid/buildcore/parse"
)

var log = logging.MustGetLogger("buildcore")

const version = "1.0.0"

var opts struct {
	Usage string `usage:"buildcore [options] [targets...]\n\nBuilds the given targets (or the first target of the rule file) according\nto the rules in the rule file."`

	Jobs             int    `short:"j" long:"jobs" description:"Number of commands to run concurrently" default:"0"`
	KeepGoing        bool   `short:"k" long:"keep-going" description:"Keep going after an error; report all errors at the end"`
	Question         bool   `short:"q" long:"question" description:"Don't build anything; exit 1 if anything would be rebuilt"`
	NoDelete         bool   `short:"n" long:"no-delete" description:"Don't remove partially built files after a failed command"`
	Silent           bool   `short:"s" long:"silent" description:"Don't echo commands"`
	ForceOptional    bool   `short:"g" long:"force-optional" description:"Treat optional dependencies as non-optional"`
	ForceTrivial     bool   `short:"G" long:"force-trivial" description:"Treat trivial dependencies as non-trivial"`
	Debug            bool   `short:"d" long:"debug" description:"Print debug traces"`
	Random           bool   `long:"random" description:"Use random scheduling instead of depth-first"`
	AnnounceParallel bool   `long:"announce_parallel" description:"Print a line for each target as it is built"`
	File             string `short:"f" long:"file" description:"Rule file to read" default:"build.mk"`
	Recurse          string `short:"C" long:"recurse" description:"Recursively load every rule file under this directory"`
	Watch            bool   `short:"w" long:"watch" description:"Rebuild whenever a watched file changes"`
	Explain          bool   `long:"explain" description:"Print the recorded command that built each given target"`
	Verbosity        []bool `short:"v" long:"verbose" description:"Increase logging verbosity (repeatable)"`
	Version          bool   `long:"version" description:"Print the version and exit"`
}

func main() {
	targets := cli.ParseFlagsOrDie("buildcore", version, &opts)
	verbosity := 1 + len(opts.Verbosity)
	if opts.Silent {
		verbosity = 0
	}
	if opts.Debug {
		verbosity = 4
	}
	cli.InitLogging(verbosity)

	if opts.Version {
		fmt.Printf("buildcore version %s\n", version)
		os.Exit(0)
	}
	if opts.Explain {
		exec.Explain(os.Stdout, targets)
		os.Exit(0)
	}

	config, err := core.ReadConfigFiles([]string{"."})
	if err != nil {
		log.Fatalf("Cannot read config: %s", err)
	}
	cli.CheckMinVersion(version, config.Build.MinVersion)

	rules := loadRules()
	deps := targetDeps(rules, targets)

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = config.Build.Jobs
	}
	configure := func(eng *exec.Engine) {
		eng.KeepGoing = opts.KeepGoing
		eng.Question = opts.Question
		eng.NoDelete = opts.NoDelete
		eng.Silent = opts.Silent
		eng.Debug = opts.Debug
		eng.ForceNonOptional = opts.ForceOptional || config.Build.ForceOptional
		eng.ForceNonTrivial = opts.ForceTrivial
		eng.Random = opts.Random || config.Build.Random
		eng.AnnounceParallel = opts.AnnounceParallel
	}

	exec.NotifySignals()

	if opts.Watch {
		debounce := time.Duration(config.Watch.DebounceMillis) * time.Millisecond
		onDone := func(eng *exec.Engine, mask core.ErrorMask) {
			cli.PrintCompletion(mask, eng.CommandRan, eng.BuiltCount, 0)
		}
		if err := exec.Watch(rules, deps, jobs, configure, debounce, onDone); err != nil {
			log.Fatalf("Watch failed: %s", err)
		}
		return
	}

	start := time.Now()
	eng := exec.NewEngine(rules, jobs)
	configure(eng)
	mask := exec.Run(eng, deps)
	if !opts.Question {
		cli.PrintCompletion(mask, eng.CommandRan, eng.BuiltCount, time.Since(start))
	}
	os.Exit(mask.ExitCode())
}

func loadRules() *core.RuleSet {
	if opts.Recurse != "" {
		rules, err := parse.Discover(opts.Recurse)
		if err != nil {
			log.Fatalf("Cannot load rule files: %s", err)
		}
		return rules
	}
	rules, err := parse.Load(opts.File)
	if err != nil {
		if os.IsNotExist(err) && len(os.Args) > 1 {
			// Allow running against an empty rule set when targets are
			// plain files; missing files are then reported by the engine.
			return core.NewRuleSet()
		}
		log.Fatalf("Cannot load rule file: %s", err)
	}
	return rules
}

// targetDeps turns the command-line target arguments into top-level
// dependencies, using the full dependency grammar so "@transient" and
// "[dynamic]" work from the shell too. With no arguments, the rule file's
// first target is built.
func targetDeps(rules *core.RuleSet, targets []string) []*core.Dependency {
	if len(targets) == 0 {
		def := rules.DefaultTarget()
		if def == "" {
			log.Fatalf("No targets given and no default target in the rule file")
		}
		targets = []string{def}
	}
	var deps []*core.Dependency
	for _, t := range targets {
		parsed, err := parse.ParseDependencyList(t, "<command line>")
		if err != nil {
			log.Fatalf("Invalid target %q: %s", t, err)
		}
		deps = append(deps, parsed...)
	}
	return deps
}
