package jobs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	// ErrNoSuchJob is returned when a job spec matches nothing.
	ErrNoSuchJob = errors.New("no such job")
	// ErrNoCurrentJob is returned for %+ or %- when the table is empty.
	ErrNoCurrentJob = errors.New("no current job")
)

// Table is the shell's job table. State changes arrive from the reaper
// goroutine and waiters block on the table's condition.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond

	jobs   []*Job
	nextID int

	// order has the most recently touched job first; it drives %+ and %-.
	order []int

	// OnChange, if set, observes every job state transition. It's called
	// with the table lock held and must not call back into the table.
	OnChange func(Summary)
}

// NewTable creates an empty table.
func NewTable() *Table {
	t := &Table{nextID: 1}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Add registers a job with no processes. Stages are attached with
// AddProcess as they're spawned.
func (t *Table) Add(text string, foreground bool) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := &Job{
		ID:         t.nextID,
		Text:       text,
		Foreground: foreground,
		State:      Running,
	}
	t.nextID++
	t.jobs = append(t.jobs, j)
	t.touch(j.ID)
	return j
}

// AddProcess attaches a stage to the job. Builtin stages use pid 0.
func (t *Table) AddProcess(j *Job, pid int) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &Process{Pid: pid}
	j.Procs = append(j.Procs, p)
	return p
}

// SetPid records the pid of a stage added before it was spawned.
func (t *Table) SetPid(p *Process, pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.Pid = pid
}

// SetGroup records the job's process group.
func (t *Table) SetGroup(j *Job, pgid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j.Pgid = pgid
}

// Finish marks a stage as exited with status.
func (t *Table) Finish(j *Job, p *Process, status int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p.Done = true
	p.Stopped = false
	p.Status = status
	t.changed(j)
}

// Apply records a wait status for a stage of j.
func (t *Table) Apply(j *Job, p *Process, ws unix.WaitStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case ws.Exited():
		p.Done, p.Stopped = true, false
		p.Status = ws.ExitStatus()
	case ws.Signaled():
		p.Done, p.Stopped = true, false
		p.Status = 128 + int(ws.Signal())
	case ws.Stopped():
		p.Stopped = true
		j.stopSignal = ws.StopSignal()
	case ws.Continued():
		p.Stopped = false
	default:
		return
	}
	t.changed(j)
}

// Continued marks every live stage as running again. It's used right after
// SIGCONT is sent so waiters don't observe the stale stopped state.
func (t *Table) Continued(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range j.Procs {
		if !p.Done {
			p.Stopped = false
		}
	}
	t.changed(j)
}

// Stop marks every live stage as stopped.
func (t *Table) Stop(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range j.Procs {
		if !p.Done {
			p.Stopped = true
		}
	}
	t.changed(j)
}

// SetForeground flags the job as owning (or not owning) the terminal.
func (t *Table) SetForeground(j *Job, fg bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j.Foreground = fg
	if !fg {
		t.touch(j.ID)
	}
}

func (t *Table) changed(j *Job) {
	prev := j.State
	j.recompute()
	if j.State == prev {
		return
	}
	if j.State == Stopped {
		t.touch(j.ID)
	}
	if t.OnChange != nil {
		t.OnChange(t.summary(j))
	}
	t.cond.Broadcast()
}

// WaitChange blocks until j is no longer running and returns its state.
func (t *Table) WaitChange(j *Job) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	for j.State == Running {
		t.cond.Wait()
	}
	return j.State
}

// WaitDone blocks until every stage of j has exited.
func (t *Table) WaitDone(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for j.State != Done {
		t.cond.Wait()
	}
}

// Status returns j's exit status. It's only meaningful once j is done.
func (t *Table) Status(j *Job, pipefail bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return j.ExitStatus(pipefail)
}

// StopSignal returns the signal that last stopped j.
func (t *Table) StopSignal(j *Job) syscall.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j.stopSignal == 0 {
		return syscall.SIGTSTP
	}
	return j.stopSignal
}

// Remove drops the job from the table.
func (t *Table) Remove(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(j.ID)
}

func (t *Table) remove(id int) {
	for i, j := range t.jobs {
		if j.ID == id {
			t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
			break
		}
	}
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Table) touch(id int) {
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.order = append([]int{id}, t.order...)
}

// Get looks a job up by its number.
func (t *Table) Get(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.get(id)
	return j, j != nil
}

func (t *Table) get(id int) *Job {
	for _, j := range t.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Resolve parses a job spec: %n, n, %+, %%, %- or %prefix. An empty spec
// means the current job.
func (t *Table) Resolve(spec string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := strings.TrimPrefix(spec, "%")
	switch s {
	case "", "+", "%":
		if len(t.order) == 0 {
			return nil, ErrNoCurrentJob
		}
		return t.get(t.order[0]), nil
	case "-":
		if len(t.order) < 2 {
			if len(t.order) == 0 {
				return nil, ErrNoCurrentJob
			}
			return t.get(t.order[0]), nil
		}
		return t.get(t.order[1]), nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		if j := t.get(n); j != nil {
			return j, nil
		}
		return nil, fmt.Errorf("%s: %w", spec, ErrNoSuchJob)
	}
	if strings.HasPrefix(spec, "%") {
		for _, j := range t.jobs {
			if strings.HasPrefix(j.Text, s) {
				return j, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", spec, ErrNoSuchJob)
}

// List returns a snapshot of every job, ordered by number.
func (t *Table) List() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, t.summary(j))
	}
	return out
}

// Summary returns a snapshot of a single job.
func (t *Table) Summary(j *Job) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary(j)
}

func (t *Table) summary(j *Job) Summary {
	mark := ' '
	if len(t.order) > 0 && t.order[0] == j.ID {
		mark = '+'
	} else if len(t.order) > 1 && t.order[1] == j.ID {
		mark = '-'
	}
	return Summary{
		ID:     j.ID,
		Pgid:   j.Pgid,
		Pids:   j.Pids(),
		State:  j.State,
		Text:   j.Text,
		Mark:   mark,
		Status: j.ExitStatus(false),
	}
}

// Reap removes finished background jobs and returns them so the caller can
// report each exactly once.
func (t *Table) Reap() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var done []Summary
	for _, j := range append([]*Job(nil), t.jobs...) {
		if j.State == Done && !j.Foreground {
			done = append(done, t.summary(j))
			t.remove(j.ID)
		}
	}
	return done
}

// Len returns the number of jobs in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}
