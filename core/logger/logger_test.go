package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonLinesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	session := NewJsonLinesLogRecorder(&buf).NewSession()

	require.NoError(t, session.RunCommand([]string{"ls", "-l"}, "/bin/ls", 4242))
	require.NoError(t, session.UnknownCommand([]string{"nope"}, 127, errors.New("command not found")))
	require.NoError(t, session.JobState(1, "Stopped", "sleep 10"))
	require.NoError(t, session.SyntaxError("ls |", 4, "syntax error: missing operand after `|'"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var entries []*LogEntry
	require.NoError(t, ReadJSONLinesLog(&buf, func(le *LogEntry) {
		entries = append(entries, le)
	}))
	require.Len(t, entries, 4)

	for _, le := range entries {
		assert.Equal(t, session.SessionID(), le.SessionID)
		assert.NotZero(t, le.TimestampMicros)
	}

	assert.Equal(t, RunCommandEvent, entries[0].Type)
	assert.Equal(t, []string{"ls", "-l"}, entries[0].Strings("command"))
	assert.Equal(t, "/bin/ls", entries[0].String("resolved_path"))
	assert.Equal(t, 4242, entries[0].Int("pgid"))

	assert.Equal(t, 127, entries[1].Int("status"))
	assert.Equal(t, "command not found", entries[1].String("error"))

	assert.Equal(t, "Stopped", entries[2].String("state"))
	assert.Equal(t, 4, entries[3].Int("offset"))
}

func TestNilSessionLogger(t *testing.T) {
	var l *SessionLogger
	assert.NoError(t, l.RunCommand([]string{"ls"}, "/bin/ls", 1))
	assert.Equal(t, "", l.SessionID())
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	session := NewJsonLinesLogRecorder(&buf).NewSession()
	session.RunCommand([]string{"ls"}, "/bin/ls", 10)
	session.RunCommand([]string{"ls", "-a"}, "/bin/ls", 11)
	session.UnknownCommand([]string{"nope"}, 127, errors.New("command not found"))
	session.JobState(1, "Done", "sleep 1")

	var report Report
	var sessions SessionReport
	require.NoError(t, ReadJSONLinesLog(&buf, func(le *LogEntry) {
		report.Update(le)
		sessions.Update(le)
	}))

	assert.Equal(t, 4, report.LogEntries)
	assert.Equal(t, 2, report.RunCommand.CommandNames.Get("ls"))
	assert.Equal(t, 2, report.RunCommand.ResolvedCommandPaths.Get("/bin/ls"))
	assert.Equal(t, 1, report.JobState.States.Get("Done"))

	out, err := json.Marshal(&sessions)
	require.NoError(t, err)
	var decoded map[string]Session
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Contains(t, decoded, session.SessionID())
	assert.Equal(t, []string{"ls", "ls -a", "nope"}, decoded[session.SessionID()].Commands)
}

func TestPathCounter(t *testing.T) {
	ctr := NewPathCounter("command", "error")
	ctr.Increment("a", "x")
	ctr.Increment("b", "y")
	ctr.Increment("b", "y")

	out, err := json.Marshal(ctr)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"count": 2, "event": {"command": "b", "error": "y"}},
		{"count": 1, "event": {"command": "a", "error": "x"}}
	]`, string(out))

	assert.Panics(t, func() { ctr.Increment("only-one") })
}

func TestReadJSONLinesLog_invalid(t *testing.T) {
	err := ReadJSONLinesLog(strings.NewReader(`{"no_type": true}`), func(*LogEntry) {})
	assert.Error(t, err)
}
