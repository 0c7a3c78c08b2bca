package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures shell events.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := json.Marshal(le)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

func (l *Logger) record(sessionID, typ string, fields map[string]interface{}) error {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	le := &LogEntry{
		TimestampMicros: time.Now().UnixNano() / int64(time.Microsecond),
		SessionID:       sessionID,
		Type:            typ,
		Fields:          s,
	}
	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger with no session ID.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: ""}
}

// SessionLogger logs messages with a shared session ID. A nil
// SessionLogger discards everything.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID returns the ID attached to each event.
func (l *SessionLogger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

func (l *SessionLogger) recordEvent(typ string, fields map[string]interface{}) error {
	if l == nil || l.Logger == nil || l.Logger.Record == nil {
		return nil
	}
	return l.record(l.sessionID, typ, fields)
}

// RunCommand records a command about to be executed.
func (l *SessionLogger) RunCommand(argv []string, resolvedPath string, pgid int) error {
	return l.recordEvent(RunCommandEvent, map[string]interface{}{
		"command":       stringList(argv),
		"resolved_path": resolvedPath,
		"pgid":          pgid,
	})
}

// UnknownCommand records a command that couldn't be started.
func (l *SessionLogger) UnknownCommand(argv []string, status int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.recordEvent(UnknownCommandEvent, map[string]interface{}{
		"command": stringList(argv),
		"status":  status,
		"error":   msg,
	})
}

// JobState records a job changing state.
func (l *SessionLogger) JobState(id int, state, text string) error {
	return l.recordEvent(JobStateEvent, map[string]interface{}{
		"id":    id,
		"state": state,
		"text":  text,
	})
}

// SyntaxError records input that failed to parse.
func (l *SessionLogger) SyntaxError(src string, offset int, msg string) error {
	return l.recordEvent(SyntaxErrorEvent, map[string]interface{}{
		"source": src,
		"offset": offset,
		"error":  msg,
	})
}
