package exec

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/aaronmcdaid/buildcore/core"
)

// Engine packages the global mutable state the reference implementation
// keeps as file-scope statics (executions_by_target, executions_by_pid,
// transients, jobs, rule_set, timestamp_last, output flags) into a single
// value threaded through every call. Signal handlers reach it through a
// package-level atomic pointer set by Run (see signals.go).
type Engine struct {
	Rules *core.RuleSet

	// KeepGoing is -k.
	KeepGoing bool
	// Question is -q.
	Question bool
	// NoDelete is -n.
	NoDelete bool
	// Silent is -s.
	Silent bool
	// Debug is -d.
	Debug bool
	// ForceNonOptional is -g.
	ForceNonOptional bool
	// ForceNonTrivial is -G.
	ForceNonTrivial bool
	// Random selects random scheduling mode instead of DFS.
	Random bool
	// AnnounceParallel prints a per-target "Successfully built" line as
	// each command finishes, rather than only at the very end.
	AnnounceParallel bool

	// StartTime is the engine's startup timestamp, the lower bound used
	// for the clock-skew checks.
	StartTime time.Time

	jobsTotal     int
	jobsRemaining int

	mu              sync.Mutex
	filesByTarget   map[string]*FileExec
	transByTarget   map[string]*TransientExec
	dynByKey        map[string]*DynamicExec
	transientStamps map[string]time.Time

	pidsMu sync.Mutex // guards pids against the signal goroutine (see DESIGN.md)
	pids   map[int]*FileExec

	// reaped delivers one jobResult per terminated child process; the
	// scheduler's reap step receives from it. It is
	// buffered to the job budget so waiter goroutines never block.
	reaped chan jobResult

	// CommandRan records whether anything was actually (re)built, which
	// selects between the two success messages.
	CommandRan bool
	// BuiltCount is the number of targets successfully (re)built.
	BuiltCount int
	ErrorMask  core.ErrorMask

	// accumulated collects every raised error in keep-going mode for the
	// final report.
	accumulated *multierror.Error
}

// NewEngine constructs an Engine ready to drive a build. jobs is the job
// budget.
func NewEngine(rules *core.RuleSet, jobs int) *Engine {
	if jobs < 1 {
		jobs = 1
	}
	return &Engine{
		Rules:           rules,
		StartTime:       time.Now(),
		jobsTotal:       jobs,
		jobsRemaining:   jobs,
		filesByTarget:   map[string]*FileExec{},
		transByTarget:   map[string]*TransientExec{},
		dynByKey:        map[string]*DynamicExec{},
		transientStamps: map[string]time.Time{},
		pids:            map[int]*FileExec{},
		reaped:          make(chan jobResult, jobs),
	}
}

// Errors returns every error accumulated during a keep-going run, or nil.
func (e *Engine) Errors() error { return e.accumulated.ErrorOrNil() }

// JobsRemaining reports the current job budget.
func (e *Engine) JobsRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobsRemaining
}

// AcquireJob decrements the job budget on process launch.
func (e *Engine) AcquireJob() {
	e.mu.Lock()
	e.jobsRemaining--
	e.mu.Unlock()
}

// ReleaseJob increments the job budget on reap.
func (e *Engine) ReleaseJob() {
	e.mu.Lock()
	e.jobsRemaining++
	e.mu.Unlock()
}

// StampTransient records the current time against a transient target name
// in the in-process transients map.
// There is no on-disk representation; a fresh process starts
// with an empty map, so every transient target is stale on first demand.
func (e *Engine) StampTransient(name string) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.transientStamps[name] = now
	return now
}

// TransientStamp returns the last recorded stamp for name and whether one
// has ever been recorded.
func (e *Engine) TransientStamp(name string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transientStamps[name]
	return t, ok
}

// lookupOrCreateFile implements the File-execution half of connect()'s
// caching rule.
func (e *Engine) lookupOrCreateFile(name string) (*FileExec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.filesByTarget[name]; ok {
		return f, false
	}
	f := newFileExec(e, name)
	e.filesByTarget[name] = f
	// A File execution may have several targets (all sharing one rule);
	// register the cache entry under every sibling target too so they
	// share the same execution.
	for _, t := range f.targets {
		if _, exists := e.filesByTarget[t.name]; !exists {
			e.filesByTarget[t.name] = f
		}
	}
	return f, true
}

// runningJobs reports how many child processes are currently live.
func (e *Engine) runningJobs() int {
	e.pidsMu.Lock()
	defer e.pidsMu.Unlock()
	return len(e.pids)
}

// WatchedFiles returns the name of every file target the engine touched,
// for watch mode to register with fsnotify.
func (e *Engine) WatchedFiles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.filesByTarget))
	for name := range e.filesByTarget {
		names = append(names, name)
	}
	return names
}

// lookupOrCreateTransient implements the Transient-execution half of
// connect()'s caching rule.
func (e *Engine) lookupOrCreateTransient(name string, rule *core.Rule) (*TransientExec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.transByTarget[name]; ok {
		return t, false
	}
	t := newTransientExec(e, name, rule)
	e.transByTarget[name] = t
	return t, true
}

// lookupOrCreateDynamic implements the Dynamic-execution caching rule:
// cached by (target, exact flag bits) in the plain case, never cached
// otherwise.
func (e *Engine) lookupOrCreateDynamic(key string, cacheable bool, build func() *DynamicExec) (*DynamicExec, bool) {
	if !cacheable {
		return build(), true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.dynByKey[key]; ok {
		return d, false
	}
	d := build()
	e.dynByKey[key] = d
	return d, true
}

func (e *Engine) registerPID(pid int, f *FileExec) {
	e.pidsMu.Lock()
	e.pids[pid] = f
	e.pidsMu.Unlock()
}

func (e *Engine) unregisterPID(pid int) {
	e.pidsMu.Lock()
	delete(e.pids, pid)
	e.pidsMu.Unlock()
}

// livePIDs returns a snapshot of currently running jobs, used by the
// SIGUSR1 handler and by job_terminate_all.
func (e *Engine) livePIDs() map[int]*FileExec {
	e.pidsMu.Lock()
	defer e.pidsMu.Unlock()
	out := make(map[int]*FileExec, len(e.pids))
	for k, v := range e.pids {
		out[k] = v
	}
	return out
}
