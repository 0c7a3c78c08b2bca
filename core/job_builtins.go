package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/jswans33/james-shell-sub001/commands"
	"github.com/jswans33/james-shell-sub001/core/jobs"
	"golang.org/x/sys/unix"
)

// Jobs lists the job table.
func Jobs(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{
		Use:   "jobs [-l | -p]",
		Short: "Display status of jobs.",
	}
	long := cmd.Flags().Bool('l', "list process group ids in addition to the normal information")
	pids := cmd.Flags().Bool('p', "list process ids only")

	return cmd.Run(s.invocation(args), func() int {
		for _, sum := range s.ctl.List() {
			switch {
			case *pids:
				if sum.Pgid > 0 {
					fmt.Fprintln(s.Stdout(), sum.Pgid)
				} else if len(sum.Pids) > 0 {
					fmt.Fprintln(s.Stdout(), sum.PidList())
				}
			case *long:
				fmt.Fprintln(s.Stdout(), sum.Long())
			default:
				fmt.Fprintln(s.Stdout(), sum)
			}
		}
		return 0
	})
}

// resolveJob finds the job named by the builtin's optional argument.
func (s *Shell) resolveJob(args []string) (*jobs.Job, bool) {
	spec := ""
	if len(args) > 1 {
		spec = args[1]
	}
	j, err := s.table.Resolve(spec)
	switch {
	case errors.Is(err, jobs.ErrNoCurrentJob):
		fmt.Fprintf(s.Stderr(), "%s: current: no such job\n", args[0])
		return nil, false
	case err != nil:
		fmt.Fprintf(s.Stderr(), "%s: %v\n", args[0], err)
		return nil, false
	}
	return j, true
}

// Fg resumes a job in the foreground and waits for it.
func Fg(s *Shell, args []string) int {
	j, ok := s.resolveJob(args)
	if !ok {
		return 1
	}
	status, err := s.ctl.Resume(j)
	if err != nil {
		fmt.Fprintf(s.Stderr(), "%s: %v\n", args[0], err)
	}
	return status
}

// Bg resumes a stopped job without waiting for it.
func Bg(s *Shell, args []string) int {
	j, ok := s.resolveJob(args)
	if !ok {
		return 1
	}
	if err := s.ctl.Background(j); err != nil {
		fmt.Fprintf(s.Stderr(), "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// Wait blocks until the named jobs, or every running job, are done.
func Wait(s *Shell, args []string) int {
	if len(args) == 1 {
		s.ctl.WaitAll()
		return 0
	}

	status := 0
	for _, arg := range args[1:] {
		id, ok := s.waitTarget(arg)
		if !ok {
			fmt.Fprintf(s.Stderr(), "%s: %s: no such job\n", args[0], arg)
			status = StatusNotFound
			continue
		}
		status, _ = s.ctl.WaitFor(id)
	}
	return status
}

// waitTarget maps a job spec or a pid to a job id.
func (s *Shell) waitTarget(arg string) (int, bool) {
	if strings.HasPrefix(arg, "%") {
		j, err := s.table.Resolve(arg)
		if err != nil {
			return 0, false
		}
		return j.ID, true
	}
	pid, err := strconv.Atoi(arg)
	if err != nil {
		return 0, false
	}
	for _, sum := range s.ctl.List() {
		if sum.Pgid == pid {
			return sum.ID, true
		}
		for _, p := range sum.Pids {
			if p == pid {
				return sum.ID, true
			}
		}
	}
	return 0, false
}

// parseSignal accepts TERM, SIGTERM or 15.
func parseSignal(name string) (syscall.Signal, bool) {
	if n, err := strconv.Atoi(name); err == nil {
		return syscall.Signal(n), n >= 0 && n < 65
	}
	name = strings.ToUpper(name)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	return sig, sig != 0
}

// Kill sends a signal to jobs or processes.
func Kill(s *Shell, args []string) int {
	sig := syscall.SIGTERM
	targets := args[1:]

	if len(targets) > 0 {
		switch arg := targets[0]; {
		case arg == "-l":
			for n := syscall.Signal(1); n < 32; n++ {
				if name := unix.SignalName(n); name != "" {
					fmt.Fprintf(s.Stdout(), "%2d) %s\n", n, name)
				}
			}
			return 0
		case arg == "-s":
			if len(targets) < 2 {
				fmt.Fprintf(s.Stderr(), "%s: -s: option requires an argument\n", args[0])
				return 2
			}
			var ok bool
			if sig, ok = parseSignal(targets[1]); !ok {
				fmt.Fprintf(s.Stderr(), "%s: %s: invalid signal specification\n", args[0], targets[1])
				return 1
			}
			targets = targets[2:]
		case arg == "--":
			targets = targets[1:]
		case len(arg) > 1 && arg[0] == '-':
			var ok bool
			if sig, ok = parseSignal(arg[1:]); !ok {
				fmt.Fprintf(s.Stderr(), "%s: %s: invalid signal specification\n", args[0], arg[1:])
				return 1
			}
			targets = targets[1:]
		}
	}

	if len(targets) == 0 {
		fmt.Fprintf(s.Stderr(), "usage: %s [-s sig | -sig] job | pid...\n", args[0])
		return 2
	}

	status := 0
	for _, target := range targets {
		if err := s.kill(target, sig); err != nil {
			fmt.Fprintf(s.Stderr(), "%s: %s: %v\n", args[0], target, err)
			status = 1
		}
	}
	return status
}

func (s *Shell) kill(target string, sig syscall.Signal) error {
	if strings.HasPrefix(target, "%") {
		j, err := s.table.Resolve(target)
		if err != nil {
			return err
		}
		if err := s.ctl.Signal(j, sig); err != nil {
			if inner := errors.Unwrap(err); inner != nil {
				return cause(inner)
			}
			return err
		}
		// A stopped job can't act on a termination request until it runs.
		if (sig == syscall.SIGTERM || sig == syscall.SIGHUP) && s.table.Summary(j).State == jobs.Stopped {
			return s.ctl.Signal(j, syscall.SIGCONT)
		}
		return nil
	}

	pid, err := strconv.Atoi(target)
	if err != nil {
		return errors.New("arguments must be process or job IDs")
	}
	return s.ctl.Kill(pid, sig)
}

func init() {
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["fg"] = ShellBuiltinFunc(Fg)
	AllBuiltins["bg"] = ShellBuiltinFunc(Bg)
	AllBuiltins["wait"] = ShellBuiltinFunc(Wait)
	AllBuiltins["kill"] = ShellBuiltinFunc(Kill)
}
