package core

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/jswans33/james-shell-sub001/core/vos"
)

// Exit statuses with fixed meanings.
const (
	StatusSyntax      = 2
	StatusNotRunnable = 126
	StatusNotFound    = 127
	StatusSignalBase  = 128
)

// ExecError is a command that couldn't be started.
type ExecError struct {
	Name string
	Err  error
}

func (e *ExecError) Error() string {
	switch {
	case errors.Is(e.Err, vos.ErrNotFound):
		return fmt.Sprintf("%s: command not found", e.Name)
	case errors.Is(e.Err, fs.ErrPermission):
		return fmt.Sprintf("%s: permission denied", e.Name)
	case errors.Is(e.Err, syscall.ENOEXEC):
		return fmt.Sprintf("%s: cannot execute binary file", e.Name)
	}
	return fmt.Sprintf("%s: %v", e.Name, cause(e.Err))
}

func (e *ExecError) Unwrap() error { return e.Err }

// Status is the exit status the command gets.
func (e *ExecError) Status() int {
	switch {
	case errors.Is(e.Err, vos.ErrNotFound), errors.Is(e.Err, fs.ErrNotExist):
		return StatusNotFound
	case errors.Is(e.Err, fs.ErrPermission), errors.Is(e.Err, syscall.ENOEXEC):
		return StatusNotRunnable
	}
	return StatusNotRunnable
}

// RedirectError is a redirection that couldn't be performed.
type RedirectError struct {
	Target string
	Err    error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, cause(e.Err))
}

func (e *RedirectError) Unwrap() error { return e.Err }

// cause strips the operation and path from filesystem errors, the shell
// prints its own context.
func cause(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
