package exec

import (
	"fmt"
	"os"
	osexec "os/exec"
	"sort"
	"strings"
	"syscall"

	"github.com/alessio/shellescape"
	"github.com/google/shlex"

	"github.com/aaronmcdaid/buildcore/core"
)

// jobResult is what a terminated child process delivers to the scheduler's
// reap step.
type jobResult struct {
	pid  int
	exec *FileExec
	err  error
}

// startCommand launches the rule's shell command as a child process, with
// the environment assembled from captured parameters and variable
// dependencies.
func (f *FileExec) startCommand(eng *Engine) Proceed {
	cmd := osexec.Command("/bin/sh", "-c", f.rule.Command)
	cmd.Env = f.environment()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	var toClose []*os.File
	if f.inputFile != "" {
		in, err := os.Open(f.inputFile)
		if err != nil {
			f.raise(eng, core.Raise(core.Build, f.inputFile, "cannot open input redirection: %s", err))
			return Continue
		}
		cmd.Stdin = in
		toClose = append(toClose, in)
	}
	if f.rule.OutputRedirect {
		out, err := os.Create(f.targets[0].name)
		if err != nil {
			f.raise(eng, core.Raise(core.Build, f.targets[0].name, "cannot open output redirection: %s", err))
			return Continue
		}
		cmd.Stdout = out
		toClose = append(toClose, out)
	}
	f.printCommand(eng)
	return f.startProcess(eng, cmd, toClose)
}

// startCopy launches the copy-rule primitive. An optional source whose
// execution found the file missing is an error before anything is started
//.
func (f *FileExec) startCopy(eng *Engine) Proceed {
	src := f.rule.CopySrc.Target.Name
	if f.rule.CopySrc.Flags.Has(core.Optional) {
		if ce, ok := eng.filesByTarget[src]; ok && ce.exists < 0 {
			f.raise(eng, core.Raise(core.Build, src, "source file in optional copy rule must exist"))
			return Continue
		}
	}
	cmd := osexec.Command("cp", "--", src, f.targets[0].name)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return f.startProcess(eng, cmd, nil)
}

func (f *FileExec) startProcess(eng *Engine, cmd *osexec.Cmd, toClose []*os.File) Proceed {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		for _, fd := range toClose {
			fd.Close()
		}
		f.raise(eng, core.Raise(core.Build, f.String(), "cannot start command: %s", err))
		return Continue
	}
	pid := cmd.Process.Pid
	eng.registerPID(pid, f)
	eng.AcquireJob()
	eng.CommandRan = true
	f.launched = true
	go func() {
		err := cmd.Wait()
		for _, fd := range toClose {
			fd.Close()
		}
		eng.reaped <- jobResult{pid: pid, exec: f, err: err}
	}()
	p := Wait
	if eng.Random && eng.JobsRemaining() > 0 {
		p |= Pending
	}
	return p
}

// environment merges parameter bindings then variable bindings over the
// inherited environment; variables win on collision.
func (f *FileExec) environment() []string {
	env := os.Environ()
	for k, v := range f.params {
		env = append(env, k+"="+v)
	}
	for k, v := range f.vars {
		env = append(env, k+"="+v)
	}
	return env
}

// printCommand echoes the command before running it, plus its variable
// assignments at debug level, shell-quoted so the output is pasteable.
func (f *FileExec) printCommand(eng *Engine) {
	if eng.Silent {
		return
	}
	fmt.Println(strings.TrimSpace(f.rule.Command))
	if !eng.Debug {
		return
	}
	if argv, err := shlex.Split(f.rule.Command); err == nil {
		log.Debug("argv: %q", argv)
	}
	for _, m := range []map[string]string{f.params, f.vars} {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			log.Debug("  %s=%s", k, shellescape.Quote(m[k]))
		}
	}
}

// describeTermination formats the reason a child process failed, for the
// per-target error message printed when a job is reaped.
func describeTermination(err error) string {
	ee, ok := err.(*osexec.ExitError)
	if !ok {
		return err.Error()
	}
	ws, ok := ee.Sys().(syscall.WaitStatus)
	if !ok {
		return ee.String()
	}
	switch {
	case ws.Exited():
		return fmt.Sprintf("exit status %d", ws.ExitStatus())
	case ws.Signaled():
		return fmt.Sprintf("killed by signal %s", ws.Signal())
	default:
		return fmt.Sprintf("abnormal termination status %#x", uint32(ws))
	}
}
