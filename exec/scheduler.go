package exec

import (
	"syscall"

	"github.com/aaronmcdaid/buildcore/core"
)

// Run drives the graph to completion: construct a Root
// execution holding the top-level dependencies, then repeatedly advance it
// while it reports PENDING, block in reap when it reports WAIT, and stop
// once it is finished. Returns the accumulated error mask, which maps onto
// the process exit code.
func Run(eng *Engine, deps []*core.Dependency) (mask core.ErrorMask) {
	root := NewRoot(deps)
	signalEngine.Store(eng)
	defer signalEngine.Store((*Engine)(nil))

	defer func() {
		if r := recover(); r != nil {
			be, ok := r.(*core.BuildError)
			if !ok {
				panic(r)
			}
			// A raised error with keep-going off: terminate every running
			// job, then report the mask.
			eng.ErrorMask |= be.Mask
			eng.terminateAll()
			mask = eng.ErrorMask
		}
	}()

	for !root.base.Finished(0) {
		p := root.Execute(eng, nil, core.Link{})
		if root.base.Finished(0) {
			break
		}
		switch {
		case p.Has(Wait):
			eng.reapOne()
		case p.Has(Pending):
			// More work can start without blocking, unless the job budget
			// is exhausted, in which case a reap must free a slot first.
			if eng.JobsRemaining() <= 0 && eng.runningJobs() > 0 {
				eng.reapOne()
			}
		default:
			if eng.runningJobs() > 0 {
				eng.reapOne()
				continue
			}
			// No pending work, nothing running, root not finished: the
			// graph cannot make progress (every remaining child errored
			// out under keep-going). Stop rather than spin.
			eng.ErrorMask |= root.base.errorMask
			return eng.ErrorMask
		}
	}

	eng.ErrorMask |= root.base.errorMask
	return eng.ErrorMask
}

// reapOne blocks until exactly one child process has terminated and applies
// its result.
func (e *Engine) reapOne() {
	res := <-e.reaped
	res.exec.waited(e, res)
}

// terminateAll signals every registered child process and waits for all of
// them to be reaped, removing partially built files.
func (e *Engine) terminateAll() {
	for pid := range e.livePIDs() {
		// The whole process group: commands are launched with setpgid.
		_ = syscall.Kill(-pid, syscall.SIGTERM)
	}
	for e.runningJobs() > 0 {
		res := <-e.reaped
		e.unregisterPID(res.pid)
		e.ReleaseJob()
		res.exec.removeIfExisting(e, false)
	}
}
