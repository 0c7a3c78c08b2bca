package shell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func args(t *testing.T, n Node) []string {
	t.Helper()
	s, ok := n.(*Simple)
	require.True(t, ok, "expected simple command, got %T", n)
	var out []string
	for _, w := range s.Args {
		out = append(out, w.Literal())
	}
	return out
}

func TestParse_empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n", "# just a comment"} {
		list, err := ParseString(input)
		require.NoError(t, err)
		assert.Empty(t, list.Entries)
	}

	list, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, list.Entries)
}

func TestParse_list(t *testing.T) {
	list, err := ParseString("a; b && c || d\ne")
	require.NoError(t, err)
	require.Len(t, list.Entries, 5)

	var ops []JoinOp
	for _, e := range list.Entries {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []JoinOp{Sequence, Sequence, AndThen, OrElse, Sequence}, ops)
	assert.Equal(t, []string{"c"}, args(t, list.Entries[2].Node.Stages[0]))
}

func TestParse_pipeline(t *testing.T) {
	list, err := ParseString("ls -l | grep x | wc -l &")
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)

	pl := list.Entries[0].Node
	assert.True(t, pl.Background)
	assert.Equal(t, "ls -l | grep x | wc -l", pl.Text)
	require.Len(t, pl.Stages, 3)
	assert.Equal(t, []string{"grep", "x"}, args(t, pl.Stages[1]))
}

func TestParse_backgroundStartsNewEntry(t *testing.T) {
	list, err := ParseString("sleep 5 & echo done")
	require.NoError(t, err)
	require.Len(t, list.Entries, 2)

	assert.True(t, list.Entries[0].Node.Background)
	assert.Equal(t, "sleep 5", list.Entries[0].Node.Text)
	assert.False(t, list.Entries[1].Node.Background)
	assert.Equal(t, []string{"echo", "done"}, args(t, list.Entries[1].Node.Stages[0]))
}

func TestParse_redirects(t *testing.T) {
	list, err := ParseString("cmd <in >out arg 2>>log 2>&1")
	require.NoError(t, err)

	s := list.Entries[0].Node.Stages[0].(*Simple)
	assert.Equal(t, []string{"cmd", "arg"}, args(t, s))
	require.Len(t, s.Redirects, 4)

	expected := []struct {
		fd     int
		kind   RedirectKind
		target string
	}{
		{0, Input, "in"},
		{1, Output, "out"},
		{2, Append, "log"},
		{2, DuplicateOutput, "1"},
	}
	for i, e := range expected {
		assert.Equal(t, e.fd, s.Redirects[i].Fd)
		assert.Equal(t, e.kind, s.Redirects[i].Kind)
		assert.Equal(t, e.target, s.Redirects[i].Target.Literal())
	}
}

func TestParse_redirectsBindToNearestCommand(t *testing.T) {
	list, err := ParseString("a >x | b")
	require.NoError(t, err)

	stages := list.Entries[0].Node.Stages
	assert.Len(t, stages[0].(*Simple).Redirects, 1)
	assert.Empty(t, stages[1].(*Simple).Redirects)
}

func TestParse_assignments(t *testing.T) {
	list, err := ParseString(`A=1 B="two words" env C=3`)
	require.NoError(t, err)

	s := list.Entries[0].Node.Stages[0].(*Simple)
	require.Len(t, s.Assigns, 2)
	assert.Equal(t, "A", s.Assigns[0].Name)
	assert.Equal(t, "1", s.Assigns[0].Value.Literal())
	assert.Equal(t, "two words", s.Assigns[1].Value.Literal())
	assert.Equal(t, []string{"env", "C=3"}, args(t, s))

	list, err = ParseString(`EMPTY=`)
	require.NoError(t, err)
	s = list.Entries[0].Node.Stages[0].(*Simple)
	assert.Empty(t, s.Args)
	assert.Equal(t, "", s.Assigns[0].Value.Literal())
}

func TestParse_subshell(t *testing.T) {
	list, err := ParseString("(cd /tmp; pwd) | cat")
	require.NoError(t, err)

	stages := list.Entries[0].Node.Stages
	require.Len(t, stages, 2)
	sub, ok := stages[0].(*Subshell)
	require.True(t, ok)
	assert.Len(t, sub.Body.Entries, 2)
}

func TestParse_hereDoc(t *testing.T) {
	list, err := ParseString("cat <<END\nhello\nEND\n")
	require.NoError(t, err)

	s := list.Entries[0].Node.Stages[0].(*Simple)
	require.Len(t, s.Redirects, 1)
	assert.Equal(t, HereDocument, s.Redirects[0].Kind)
	assert.Equal(t, "hello\n", s.Redirects[0].Body)
	assert.Equal(t, "cat <<END", list.Entries[0].Node.Text)
}

func TestParse_errors(t *testing.T) {
	cases := []struct {
		input  string
		reason ParseReason
		offset int
	}{
		{"; ls", UnexpectedToken, 0},
		{"&& ls", UnexpectedToken, 0},
		{"ls ;; pwd", UnexpectedToken, 4},
		{"ls &&", MissingOperand, 5},
		{"ls ||", MissingOperand, 5},
		{"ls |", MissingOperand, 4},
		{"ls >", MissingOperand, 4},
		{"ls > | wc", UnexpectedToken, 5},
		{"ls & && pwd", UnexpectedToken, 5},
		{"(ls", UnexpectedToken, 3},
		{"ls )", UnexpectedToken, 3},
		{"()", UnexpectedToken, 1},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := ParseString(tc.input)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
			assert.Equal(t, tc.reason, parseErr.Reason)
			assert.Equal(t, tc.offset, parseErr.Offset)
		})
	}
}

func TestParse_lexErrorPassesThrough(t *testing.T) {
	_, err := ParseString(`echo "unterminated`)

	var lexErr *LexError
	assert.True(t, errors.As(err, &lexErr))
}

func TestPrint(t *testing.T) {
	cases := map[string]string{
		"a;b":                  "a; b",
		"a&&b||c":              "a && b || c",
		"a | b &  c":           "a | b & c",
		`echo "x y" 'z' \$`:    `echo "x y" 'z' \$`,
		"cmd 2>&1 >out <in":    "cmd 2>&1 >out <in",
		"( a ; b ) >log":       "(a; b) >log",
		"cat <<EOF\nbody\nEOF": "cat <<EOF",
	}

	for input, expected := range cases {
		t.Run(input, func(t *testing.T) {
			list, err := ParseString(input)
			require.NoError(t, err)
			assert.Equal(t, expected, Print(list))
		})
	}
}

func TestNeedsMore(t *testing.T) {
	cases := map[string]bool{
		"ls":                  false,
		"":                    false,
		"ls &&":               true,
		"ls ||":               true,
		"ls |":                true,
		"ls &&\n":             true,
		"(ls":                 true,
		"(ls\npwd":            true,
		"echo 'open":          true,
		`echo "open`:          true,
		"echo $(ls":           true,
		"cat <<EOF":           true,
		"cat <<EOF\nhi":       true,
		"cat <<EOF\nhi\nEOF":  false,
		"ls >":                false,
		"; ls":                false,
		"ls )":                false,
		"()":                  false,
		"ls && pwd":           false,
		"ls |\nwc -l":         false,
	}
	for src, expected := range cases {
		assert.Equal(t, expected, NeedsMore(src), "NeedsMore(%q)", src)
	}
}
