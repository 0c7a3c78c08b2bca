package jobs

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is the controlling terminal the shell hands between jobs.
type Terminal interface {
	// Enabled reports whether job control can use the terminal.
	Enabled() bool
	// Fd is the terminal's descriptor, passed to children as their ctty.
	Fd() int
	// Foreground returns the process group owning the terminal.
	Foreground() (int, error)
	// SetForeground gives the terminal to pgid.
	SetForeground(pgid int) error
	// ShellGroup is the shell's own process group.
	ShellGroup() int
	// Save records the terminal modes; Restore puts them back.
	Save()
	Restore()
}

// OpenTerminal wraps f if it's a terminal the shell can control, otherwise
// it returns a disabled terminal.
func OpenTerminal(f *os.File) Terminal {
	if f == nil {
		return NoTerminal{}
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return NoTerminal{}
	}
	tty := &tty{fd: fd, pgid: unix.Getpgrp()}
	if fg, err := tty.Foreground(); err != nil || fg != tty.pgid {
		return NoTerminal{}
	}
	return tty
}

// ClaimTerminal moves an interactive shell into its own process group and
// gives that group the terminal. A shell started in the background gets a
// disabled terminal instead of taking it from its parent.
func ClaimTerminal(f *os.File) Terminal {
	if !OpenTerminal(f).Enabled() {
		return NoTerminal{}
	}
	fd := int(f.Fd())
	if pid := os.Getpid(); unix.Getpgrp() != pid {
		// Fails for a session leader, which already leads its group.
		_ = unix.Setpgid(0, 0)
	}
	tty := &tty{fd: fd, pgid: unix.Getpgrp()}
	if err := tty.SetForeground(tty.pgid); err != nil {
		return NoTerminal{}
	}
	return tty
}

type tty struct {
	fd   int
	pgid int

	mu    sync.Mutex
	state *term.State
}

var _ Terminal = (*tty)(nil)

func (t *tty) Enabled() bool   { return true }
func (t *tty) Fd() int         { return t.fd }
func (t *tty) ShellGroup() int { return t.pgid }

func (t *tty) Foreground() (int, error) {
	return unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
}

func (t *tty) SetForeground(pgid int) error {
	// The shell is in the background while a job owns the terminal, so the
	// call would otherwise stop it with SIGTTOU.
	signal.Ignore(syscall.SIGTTOU)
	defer signal.Reset(syscall.SIGTTOU)
	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
}

func (t *tty) Save() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, err := term.GetState(t.fd); err == nil {
		t.state = st
	}
}

func (t *tty) Restore() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != nil {
		_ = term.Restore(t.fd, t.state)
	}
}

// NoTerminal is used when the shell has no controlling terminal.
type NoTerminal struct{}

var _ Terminal = NoTerminal{}

func (NoTerminal) Enabled() bool                { return false }
func (NoTerminal) Fd() int                      { return -1 }
func (NoTerminal) Foreground() (int, error)     { return 0, unix.ENOTTY }
func (NoTerminal) SetForeground(pgid int) error { return unix.ENOTTY }
func (NoTerminal) ShellGroup() int              { return unix.Getpgrp() }
func (NoTerminal) Save()                        {}
func (NoTerminal) Restore()                     {}
