package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirect_errors(t *testing.T) {
	cases := map[string]struct {
		src    string
		stderr string
	}{
		"bad fd":   {"echo x >&9\n", "jsh: 9: bad file descriptor\n"},
		"dup word": {"echo x <&file\n", "jsh: file: ambiguous redirect\n"},
		"no dir":   {"echo x > missing/out\n", "jsh: missing/out: no such file or directory\n"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ts := newTestShell(t)
			assert.Equal(t, 1, ts.script(tc.src))
			assert.Equal(t, tc.stderr, ts.stderr.String())
			assert.Empty(t, ts.stdout.String())
		})
	}
}

func TestRedirect_ambiguous(t *testing.T) {
	ts := newTestShell(t)

	assert.Equal(t, 1, ts.script("x='a b'\necho x > $x\n"))
	assert.Contains(t, ts.stderr.String(), ": ambiguous redirect\n")
	assert.NoFileExists(t, filepath.Join(ts.Dir(), "a"))
}

func TestRedirect_closeDescriptor(t *testing.T) {
	ts := newTestShell(t)

	status := ts.script("echo gone >&-\necho $?\n")

	assert.Equal(t, "1\n", ts.stdout.String())
	assert.Equal(t, "echo: write error: file already closed\n", ts.stderr.String())
	assert.Zero(t, status)
}

func TestRedirect_bothToFile(t *testing.T) {
	ts := newTestShell(t)

	ts.script("sh -c 'echo out; echo err >&2' >&both\n")

	data, err := os.ReadFile(filepath.Join(ts.Dir(), "both"))
	require.NoError(t, err)
	assert.Equal(t, "out\nerr\n", string(data))
	assert.Empty(t, ts.stderr.String())
}

func TestRedirect_hereString(t *testing.T) {
	ts := newTestShell(t)

	ts.script("x=there\ncat <<< \"hi $x\"\ncat <<'EOF'\n$x\nEOF\n")

	assert.Equal(t, "hi there\n$x\n", ts.stdout.String())
}

func TestRedirect_memoryFs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	fs := afero.NewMemMapFs()

	s, err := New(Config{
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    []string{"PATH=/usr/bin:/bin"},
		Dir:    "/",
		Fs:     afero.NewCopyOnWriteFs(afero.NewOsFs(), fs),
	})
	require.NoError(t, err)

	s.RunScript(context.Background(), strings.NewReader("echo stored > out\necho more >> out\ntr a-z A-Z < out\n"))

	data, err := afero.ReadFile(fs, "/out")
	require.NoError(t, err)
	assert.Equal(t, "stored\nmore\n", string(data))
	assert.Equal(t, "STORED\nMORE\n", stdout.String())
	assert.Empty(t, stderr.String())
}
