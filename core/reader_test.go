package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator(t *testing.T) {
	cases := map[string]struct {
		lines []string
		want  string
	}{
		"single line":       {[]string{"echo a"}, "echo a"},
		"escaped newline":   {[]string{`echo a \`, "b"}, "echo a b"},
		"open single quote": {[]string{"echo 'a", "b'"}, "echo 'a\nb'"},
		"trailing pipe":     {[]string{"echo a |", "cat"}, "echo a |\ncat"},
		"open subshell":     {[]string{"(echo a", "echo b)"}, "(echo a\necho b)"},
		"here-document":     {[]string{"cat <<EOF", "body", "EOF"}, "cat <<EOF\nbody\nEOF"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var acc Accumulator
			for i, line := range tc.lines {
				src, ok := acc.Add(line)
				if i < len(tc.lines)-1 {
					assert.False(t, ok, "line %d completed early: %q", i, src)
					assert.True(t, acc.Pending())
					continue
				}
				assert.True(t, ok)
				assert.Equal(t, tc.want, src)
			}
			assert.False(t, acc.Pending())
		})
	}
}

func TestAccumulator_Flush(t *testing.T) {
	var acc Accumulator
	_, ok := acc.Add("echo 'unterminated")
	assert.False(t, ok)

	assert.Equal(t, "echo 'unterminated", acc.Flush())
	assert.False(t, acc.Pending())

	acc.Add("echo |")
	acc.Reset()
	assert.False(t, acc.Pending())
}
