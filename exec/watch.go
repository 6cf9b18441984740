package exec

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronmcdaid/buildcore/core"
)

// Watch runs a build, then watches every file target the engine touched
// and re-drives a fresh engine whenever one of them changes. Each
// iteration starts from a new Engine: transient timestamps live only in
// process memory and cached executions are not carried across builds, so
// a rebuild sees exactly what a fresh invocation would.
func Watch(rules *core.RuleSet, deps []*core.Dependency, jobs int, configure func(*Engine), debounce time.Duration, onDone func(*Engine, core.ErrorMask)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for {
		eng := NewEngine(rules, jobs)
		if configure != nil {
			configure(eng)
		}
		mask := Run(eng, deps)
		if onDone != nil {
			onDone(eng, mask)
		}

		watched := map[string]bool{}
		for _, name := range eng.WatchedFiles() {
			if _, err := os.Lstat(name); err != nil {
				continue
			}
			if err := watcher.Add(name); err != nil {
				log.Warning("cannot watch %q: %s", name, err)
				continue
			}
			watched[name] = true
		}
		if len(watched) == 0 {
			log.Warning("nothing to watch; exiting watch mode")
			return nil
		}
		log.Info("watching %d files for changes", len(watched))

		if err := awaitChange(watcher, debounce); err != nil {
			return err
		}
		for name := range watched {
			_ = watcher.Remove(name)
		}
	}
}

// awaitChange blocks until a filesystem event arrives, then keeps draining
// events until the stream has been quiet for the debounce interval, so a
// burst of writes triggers one rebuild.
func awaitChange(watcher *fsnotify.Watcher, debounce time.Duration) error {
	select {
	case ev := <-watcher.Events:
		log.Debug("filesystem event: %s", ev)
	case err := <-watcher.Errors:
		return err
	}
	for {
		select {
		case ev := <-watcher.Events:
			log.Debug("filesystem event: %s", ev)
		case err := <-watcher.Errors:
			return err
		case <-time.After(debounce):
			return nil
		}
	}
}
