package jobs

import (
	"fmt"
	"io"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Controller moves jobs between the foreground and background and keeps the
// terminal owned by exactly one process group at a time.
type Controller struct {
	Table *Table
	Term  Terminal

	// Kill delivers a signal to a process or, for negative pids, a group.
	Kill func(pid int, sig syscall.Signal) error
	// Pipefail reports whether a job's status comes from its right-most
	// failing stage.
	Pipefail func() bool
	// Out receives job notices such as "[1]+  Stopped".
	Out func() io.Writer

	mu    sync.Mutex
	owner int
	fg    *Job
}

// NewController creates a controller for table using term.
func NewController(table *Table, term Terminal) *Controller {
	if term == nil {
		term = NoTerminal{}
	}
	return &Controller{
		Table: table,
		Term:  term,
		Kill: func(pid int, sig syscall.Signal) error {
			return unix.Kill(pid, sig)
		},
		owner: term.ShellGroup(),
	}
}

// JobControl reports whether jobs get the terminal when brought to the
// foreground.
func (c *Controller) JobControl() bool {
	return c.Term.Enabled()
}

// Owner returns the process group that was last given the terminal.
func (c *Controller) Owner() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// BeforeLaunch saves the terminal modes ahead of a foreground spawn so they
// can be restored when the shell takes the terminal back.
func (c *Controller) BeforeLaunch(foreground bool) {
	if foreground && c.Term.Enabled() {
		c.Term.Save()
	}
}

// Launched records that j was spawned. Foreground jobs that received the
// terminal at spawn time become its owner.
func (c *Controller) Launched(j *Job, handedOff bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j.Foreground {
		c.fg = j
	}
	if handedOff && j.Pgid > 0 {
		c.owner = j.Pgid
	}
}

// Foreground returns the running foreground job's group and pids, for
// signal forwarding.
func (c *Controller) Foreground() (int, []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fg == nil {
		return 0, nil
	}
	return c.fg.Pgid, c.fg.Pids()
}

func (c *Controller) give(j *Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fg = j
	if !c.Term.Enabled() || j.Pgid <= 0 {
		return nil
	}
	c.Term.Save()
	if err := c.Term.SetForeground(j.Pgid); err != nil {
		return err
	}
	c.owner = j.Pgid
	return nil
}

func (c *Controller) reclaim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fg = nil
	if !c.Term.Enabled() {
		return
	}
	shell := c.Term.ShellGroup()
	if err := c.Term.SetForeground(shell); err == nil {
		c.owner = shell
	}
	c.Term.Restore()
}

func (c *Controller) pipefail() bool {
	return c.Pipefail != nil && c.Pipefail()
}

func (c *Controller) notice(format string, args ...interface{}) {
	if c.Out == nil {
		return
	}
	if w := c.Out(); w != nil {
		fmt.Fprintf(w, format, args...)
	}
}

// Signal delivers sig to every process of j.
func (c *Controller) Signal(j *Job, sig syscall.Signal) error {
	if j.Pgid > 0 {
		if err := c.Kill(-j.Pgid, sig); err != nil {
			return &SignalDeliveryError{Pid: -j.Pgid, Signal: sig, Err: err}
		}
		return nil
	}
	for _, pid := range j.Pids() {
		if err := c.Kill(pid, sig); err != nil {
			return &SignalDeliveryError{Pid: pid, Signal: sig, Err: err}
		}
	}
	return nil
}

// cont sends SIGCONT to a stopped job. The job is marked running first so a
// stop reported right after the continue isn't overwritten.
func (c *Controller) cont(j *Job) error {
	if c.Table.Summary(j).State != Stopped {
		return nil
	}
	c.Table.Continued(j)
	if err := c.Signal(j, syscall.SIGCONT); err != nil {
		c.Table.Stop(j)
		return err
	}
	return nil
}

// WaitForeground blocks until j exits or stops, then takes the terminal
// back. A finished job is removed and its status returned; a stopped job is
// moved to the background and reported, with status 128+signal.
func (c *Controller) WaitForeground(j *Job) int {
	state := c.Table.WaitChange(j)
	c.reclaim()

	if state == Done {
		status := c.Table.Status(j, c.pipefail())
		c.Table.Remove(j)
		return status
	}

	c.Table.SetForeground(j, false)
	sum := c.Table.Summary(j)
	c.notice("\n%s\n", sum)
	return 128 + int(c.Table.StopSignal(j))
}

// BringToForeground continues job id if needed, gives it the terminal and
// waits for it.
func (c *Controller) BringToForeground(id int) (int, error) {
	j, ok := c.Table.Get(id)
	if !ok {
		return 0, fmt.Errorf("%d: %w", id, ErrNoSuchJob)
	}
	return c.Resume(j)
}

// Resume is BringToForeground for a resolved job.
func (c *Controller) Resume(j *Job) (int, error) {
	c.Table.SetForeground(j, true)
	c.notice("%s\n", j.Text)
	if err := c.give(j); err != nil {
		c.Table.SetForeground(j, false)
		c.reclaim()
		return 1, err
	}
	if err := c.cont(j); err != nil {
		c.Table.SetForeground(j, false)
		c.reclaim()
		return 1, err
	}
	return c.WaitForeground(j), nil
}

// SendToBackground continues a stopped job without giving it the terminal.
func (c *Controller) SendToBackground(id int) error {
	j, ok := c.Table.Get(id)
	if !ok {
		return fmt.Errorf("%d: %w", id, ErrNoSuchJob)
	}
	return c.Background(j)
}

// Background is SendToBackground for a resolved job.
func (c *Controller) Background(j *Job) error {
	c.Table.SetForeground(j, false)
	if err := c.cont(j); err != nil {
		return err
	}
	sum := c.Table.Summary(j)
	c.notice("[%d]%c %s &\n", sum.ID, sum.Mark, sum.Text)
	return nil
}

// List returns every job in the table.
func (c *Controller) List() []Summary {
	return c.Table.List()
}

// WaitFor blocks until job id finishes and returns its status. The job is
// removed from the table.
func (c *Controller) WaitFor(id int) (int, error) {
	j, ok := c.Table.Get(id)
	if !ok {
		return 127, fmt.Errorf("%d: %w", id, ErrNoSuchJob)
	}
	c.Table.WaitDone(j)
	status := c.Table.Status(j, c.pipefail())
	c.Table.Remove(j)
	return status, nil
}

// WaitAll waits for every job in the table.
func (c *Controller) WaitAll() {
	for _, s := range c.Table.List() {
		if s.State == Stopped {
			continue
		}
		_, _ = c.WaitFor(s.ID)
	}
}

// Notify prints and drops finished background jobs.
func (c *Controller) Notify() []Summary {
	done := c.Table.Reap()
	for _, s := range done {
		c.notice("%s\n", s)
	}
	return done
}
