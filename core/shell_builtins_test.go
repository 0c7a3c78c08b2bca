package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllBuiltins(t *testing.T) {
	for name, b := range AllBuiltins {
		t.Run(name, func(t *testing.T) {
			if b == nil {
				t.Fatal("nil builtin", name)
			}
		})
	}

	names := BuiltinNames()
	assert.Contains(t, names, "cd")
	assert.Contains(t, names, "echo")
	assert.IsIncreasing(t, names)
}

func TestExport(t *testing.T) {
	ts := newTestShell(t)

	assert.Equal(t, 1, ts.script("export A='a b' 1bad\n"))
	assert.Equal(t, 0, ts.script("export -p\n"))

	assert.Contains(t, ts.stdout.String(), "export A='a b'\n")
	assert.Contains(t, ts.stdout.String(), "export HOME=/home/test\n")
	assert.Equal(t, "export: `1bad': not a valid identifier\n", ts.stderr.String())
	assert.True(t, ts.Env().IsExported("A"))
}

func TestUnset(t *testing.T) {
	ts := newTestShell(t)

	ts.script("x=1\nunset -v x\necho \"[$x]\"\n")

	assert.Equal(t, "[]\n", ts.stdout.String())
	_, ok := ts.Env().LookupEnv("x")
	assert.False(t, ok)
}

func TestSet(t *testing.T) {
	t.Run("short flags", func(t *testing.T) {
		ts := newTestShell(t)
		ts.script("set -eu\necho $-\nset +e\necho $-\n")
		assert.Equal(t, "eu\nu\n", ts.stdout.String())
	})

	t.Run("long names", func(t *testing.T) {
		ts := newTestShell(t)
		ts.script("set -o pipefail -o noglob\n")
		assert.True(t, ts.Options().Pipefail)
		assert.True(t, ts.Options().Noglob)

		ts.script("set +o pipefail\n")
		assert.False(t, ts.Options().Pipefail)
	})

	t.Run("option listing", func(t *testing.T) {
		ts := newTestShell(t)
		ts.script("set -e\nset +e +o\n")
		assert.Equal(t, "set +o errexit\nset +o noglob\nset +o nounset\nset +o pipefail\nset +o xtrace\n", ts.stdout.String())

		ts.stdout.Reset()
		ts.script("set -o\n")
		assert.Equal(t, "errexit         off\nnoglob          off\nnounset         off\npipefail        off\nxtrace          off\n", ts.stdout.String())
	})

	t.Run("positional", func(t *testing.T) {
		ts := newTestShell(t)
		ts.script("set -- a 'b c'\necho $2 $1\n")
		assert.Equal(t, "b c a\n", ts.stdout.String())
	})

	t.Run("invalid", func(t *testing.T) {
		ts := newTestShell(t)
		assert.Equal(t, 2, ts.script("set -q\n"))
		assert.Equal(t, "set: -q: invalid option\n", ts.stderr.String())
	})
}

func TestType(t *testing.T) {
	ts := newTestShell(t)

	status := ts.script("type cd sh no-such-command-jsh\n")

	assert.Equal(t, 1, status)
	assert.Contains(t, ts.stdout.String(), "cd is a shell builtin\n")
	assert.Regexp(t, `sh is /.*/sh\n`, ts.stdout.String())
	assert.Equal(t, "type: no-such-command-jsh: not found\n", ts.stderr.String())
}

func TestHistory(t *testing.T) {
	ts := newTestShell(t)
	cleared := false
	ts.SetHistory([]string{"one", "two"}, func() { cleared = true })
	ts.AddHistory("three")

	ts.script("history 2\n")
	assert.Equal(t, "    2  two\n    3  three\n", ts.stdout.String())

	ts.script("history -c\n")
	assert.True(t, cleared)
	assert.Empty(t, ts.History())
}

func TestHelp(t *testing.T) {
	ts := newTestShell(t)

	ts.script("help\n")
	assert.Contains(t, ts.stdout.String(), "Builtins:\n")
	assert.Contains(t, ts.stdout.String(), "\nkill\n")

	ts.stdout.Reset()
	assert.Equal(t, 1, ts.script("help no-such-topic\n"))
	assert.Equal(t, "help: no help topics match `no-such-topic'\n", ts.stderr.String())
}

func TestSource(t *testing.T) {
	ts := newTestShell(t)
	script := filepath.Join(ts.Dir(), "lib.sh")
	require.NoError(t, os.WriteFile(script, []byte("greeting=\"hello $1\"\n"), 0644))

	ts.script("set -- outer\n. ./lib.sh world\necho $greeting $1\nsource missing.sh\n")

	assert.Equal(t, "hello world outer\n", ts.stdout.String())
	assert.Equal(t, "source: missing.sh: no such file or directory\n", ts.stderr.String())
}

func TestRunFile(t *testing.T) {
	ts := newTestShell(t)
	script := filepath.Join(ts.Dir(), "script.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo ran\nexit 7\necho unreachable\n"), 0644))

	status, err := ts.RunFile(script)
	require.NoError(t, err)
	assert.Equal(t, 7, status)
	assert.Equal(t, "ran\n", ts.stdout.String())

	_, err = ts.RunFile(filepath.Join(ts.Dir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCd_errors(t *testing.T) {
	ts := newTestShell(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.Dir(), "file"), nil, 0644))

	assert.Equal(t, 1, ts.script("cd missing\n"))
	assert.Equal(t, 1, ts.script("cd file\n"))
	assert.Equal(t, 1, ts.script("cd -\n"))

	assert.Equal(t, "cd: missing: no such file or directory\ncd: file: not a directory\ncd: OLDPWD not set\n", ts.stderr.String())
}

func TestExit_badArgument(t *testing.T) {
	ts := newTestShell(t)

	status := ts.script("exit nope\n")

	assert.Equal(t, 2, status)
	assert.Equal(t, "exit: nope: numeric argument required\n", ts.stderr.String())
}

func TestQuote(t *testing.T) {
	cases := map[string]string{
		"plain":      "plain",
		"":           "''",
		"a b":        "'a b'",
		"it's":       `'it'\''s'`,
		"/usr/bin:.": "/usr/bin:.",
	}
	for in, want := range cases {
		assert.Equal(t, want, quote(in), in)
	}
}
