package core

import (
	"errors"
	"strings"

	"github.com/jswans33/james-shell-sub001/core/shell"
)

// Accumulator gathers input lines until they form a complete command. A
// line ending in an unquoted backslash is joined to the next one without
// the newline; otherwise the newline is kept while a quote, here-document,
// subshell or operator is still open.
type Accumulator struct {
	sb strings.Builder
}

// Add appends a line, without its newline. It returns the command once it's
// complete.
func (a *Accumulator) Add(line string) (string, bool) {
	src := a.sb.String() + line
	if shell.NeedsMore(src) {
		a.sb.WriteString(line)
		a.sb.WriteByte('\n')
		return "", false
	}

	var lexErr *shell.LexError
	if _, err := shell.Tokenize(src); errors.As(err, &lexErr) && lexErr.Reason == shell.DanglingEscape {
		a.sb.WriteString(strings.TrimSuffix(line, `\`))
		return "", false
	}

	a.sb.Reset()
	return src, true
}

// Pending reports whether an incomplete command is buffered.
func (a *Accumulator) Pending() bool {
	return a.sb.Len() > 0
}

// Flush returns whatever is buffered, complete or not.
func (a *Accumulator) Flush() string {
	src := strings.TrimSuffix(a.sb.String(), "\n")
	a.sb.Reset()
	return src
}

// Reset drops the buffered lines.
func (a *Accumulator) Reset() {
	a.sb.Reset()
}
