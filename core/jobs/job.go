// Package jobs tracks pipelines running as process groups, hands the
// terminal between them and the shell, and reaps child state changes.
package jobs

import (
	"fmt"
	"strings"
	"syscall"
)

// State is the lifecycle state of a job.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Process is one stage of a job. Builtin stages run inside the shell and
// have a zero Pid.
type Process struct {
	Pid     int
	Status  int
	Done    bool
	Stopped bool
}

// Job is a pipeline running in its own process group.
type Job struct {
	ID         int
	Pgid       int
	Procs      []*Process
	State      State
	Text       string
	Foreground bool

	// stopSignal is the signal that last stopped the job.
	stopSignal syscall.Signal
}

// ExitStatus is the status of the last stage or, under pipefail, of the
// right-most stage that failed.
func (j *Job) ExitStatus(pipefail bool) int {
	if len(j.Procs) == 0 {
		return 0
	}
	if pipefail {
		for i := len(j.Procs) - 1; i >= 0; i-- {
			if j.Procs[i].Status != 0 {
				return j.Procs[i].Status
			}
		}
		return 0
	}
	return j.Procs[len(j.Procs)-1].Status
}

// Pids returns the pids of the external stages.
func (j *Job) Pids() []int {
	var out []int
	for _, p := range j.Procs {
		if p.Pid > 0 {
			out = append(out, p.Pid)
		}
	}
	return out
}

// recompute derives the job state from its processes. Done is terminal.
func (j *Job) recompute() {
	if j.State == Done {
		return
	}
	done, running := true, false
	for _, p := range j.Procs {
		if !p.Done {
			done = false
			if !p.Stopped {
				running = true
			}
		}
	}
	switch {
	case done:
		j.State = Done
	case !running:
		j.State = Stopped
	default:
		j.State = Running
	}
}

// Summary is a snapshot of a job for listings.
type Summary struct {
	ID    int
	Pgid  int
	Pids  []int
	State State
	Text  string

	// Mark is '+' for the current job, '-' for the previous one, else ' '.
	Mark   rune
	Status int
}

// String formats the summary the way the jobs builtin prints it.
func (s Summary) String() string {
	return fmt.Sprintf("[%d]%c  %-24s%s", s.ID, s.Mark, s.stateText(), s.Text)
}

// Long is the jobs -l form, which includes the process group.
func (s Summary) Long() string {
	return fmt.Sprintf("[%d]%c %d %-24s%s", s.ID, s.Mark, s.Pgid, s.stateText(), s.Text)
}

func (s Summary) stateText() string {
	if s.State == Done && s.Status != 0 {
		return fmt.Sprintf("Exit %d", s.Status)
	}
	return s.State.String()
}

// PidList renders the pids separated by spaces.
func (s Summary) PidList() string {
	var parts []string
	for _, pid := range s.Pids {
		parts = append(parts, fmt.Sprint(pid))
	}
	return strings.Join(parts, " ")
}
