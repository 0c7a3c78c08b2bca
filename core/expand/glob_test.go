package expand

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_glob(t *testing.T) {
	cases := []struct {
		src      string
		expected []string
	}{
		{`*.txt`, []string{"a.txt", "b.txt"}},
		{`?.txt`, []string{"a.txt", "b.txt"}},
		{`[a].txt`, []string{"a.txt"}},
		{`.*.txt`, []string{".hidden.txt"}},
		{`sub/*`, []string{"sub/c.txt", "sub/d.go"}},
		{`*/c.txt`, []string{"sub/c.txt"}},
		{`*/`, []string{"sub/"}},
		{`/work/*.md`, []string{"/work/notes.md"}},
		{`/work/sub/*.go`, []string{"/work/sub/d.go"}},
		{`"*".txt`, []string{"*.txt"}},
		{`\*.txt`, []string{"*.txt"}},
		{`'*.txt'`, []string{"*.txt"}},
		{`$GLOBBY`, []string{"a.txt", "b.txt"}},
		{`"$GLOBBY"`, []string{"*.txt"}},
		{`*.nonexistent-ext`, []string{"*.nonexistent-ext"}},
		{`nodir/*`, []string{"nodir/*"}},
		{`[`, []string{"["}},
		{`a.txt b*`, []string{"a.txt", "b.txt"}},
	}

	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assertFields(t, newTestConfig(t), tc.src, tc.expected)
		})
	}
}

func TestFields_globPolicy(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Glob = GlobEmpty
	assertFields(t, cfg, `*.nonexistent-ext`, nil)
	assertFields(t, cfg, `*.txt`, []string{"a.txt", "b.txt"})

	cfg.Glob = GlobError
	_, err := Fields(context.Background(), cfg, words(t, `*.nonexistent-ext`)...)
	expErr := assertKind(t, err, NoMatch)
	assert.Equal(t, "no match: *.nonexistent-ext", expErr.Error())

	cfg.NoGlob = true
	assertFields(t, cfg, `*.txt`, []string{"*.txt"})
	assertFields(t, cfg, `*.nonexistent-ext`, []string{"*.nonexistent-ext"})
}

func TestFields_globRelativeDir(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Dir = "/work/sub"
	assertFields(t, cfg, `*.txt`, []string{"c.txt"})
	assertFields(t, cfg, `../*.md`, []string{"../notes.md"})
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pat, name string
		expected  bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "main.go.bak", false},
		{"a?c", "abc", true},
		{"[!a]*", "bcd", true},
		{"[!a]*", "abc", false},
		{`\*`, "*", true},
		{`\*`, "x", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, match(tc.pat, tc.name), "match(%q, %q)", tc.pat, tc.name)
	}
}

func TestPatternOf(t *testing.T) {
	pat, meta := patternOf([]fragment{{text: "*."}, {text: "[x]", quoted: true}})
	require.True(t, meta)
	assert.Equal(t, `*.\[x\]`, pat)

	_, meta = patternOf([]fragment{{text: "*", quoted: true}})
	assert.False(t, meta)
}
