package commands

import (
	"bytes"
	"io"
	"strings"
)

type testInvocation struct {
	args     []string
	env      map[string]string
	stdin    io.Reader
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	terminal bool
	invalid  []error
}

func newTestInvocation(args ...string) *testInvocation {
	return &testInvocation{
		args:  args,
		env:   map[string]string{},
		stdin: strings.NewReader(""),
	}
}

var _ Invocation = (*testInvocation)(nil)

func (t *testInvocation) Args() []string           { return t.args }
func (t *testInvocation) Stdin() io.Reader         { return t.stdin }
func (t *testInvocation) Stdout() io.Writer        { return &t.stdout }
func (t *testInvocation) Stderr() io.Writer        { return &t.stderr }
func (t *testInvocation) Getenv(key string) string { return t.env[key] }
func (t *testInvocation) IsTerminal() bool         { return t.terminal }

func (t *testInvocation) LogInvalidInvocation(err error) {
	t.invalid = append(t.invalid, err)
}
