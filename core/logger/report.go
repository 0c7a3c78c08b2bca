package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		logEntry, err := UnmarshalEntry(rawEntry)
		if err != nil {
			return err
		}

		handler(logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	RunCommand     RunCommandReport     `json:"run_command_report"`
	UnknownCommand UnknownCommandReport `json:"unknown_command_report"`
	JobState       JobStateReport       `json:"job_state_report"`
	SyntaxError    SyntaxErrorReport    `json:"syntax_error_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch le.Type {
	case RunCommandEvent:
		r.RunCommand.update(le)
	case UnknownCommandEvent:
		r.UnknownCommand.update(le)
	case JobStateEvent:
		r.JobState.update(le)
	case SyntaxErrorEvent:
		r.SyntaxError.update(le)
	default:
		r.InvalidEntries.Increment(le.Type)
	}
}

type RunCommandReport struct {
	// Resolved paths of the executed programs.
	ResolvedCommandPaths StrCounter `json:"resolved_command_paths"`
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
}

func (r *RunCommandReport) update(le *LogEntry) {
	if path := le.String("resolved_path"); path != "" {
		r.ResolvedCommandPaths.Increment(path)
	}
	if argv := le.Strings("command"); len(argv) > 0 {
		r.CommandNames.Increment(argv[0])
	}
}

type UnknownCommandReport struct {
	Commands *PathCounter `json:"commands"`
}

func (r *UnknownCommandReport) update(le *LogEntry) {
	if r.Commands == nil {
		r.Commands = NewPathCounter("command", "error")
	}
	name := ""
	if argv := le.Strings("command"); len(argv) > 0 {
		name = argv[0]
	}
	r.Commands.Increment(name, le.String("error"))
}

type JobStateReport struct {
	States StrCounter `json:"states"`
}

func (r *JobStateReport) update(le *LogEntry) {
	r.States.Increment(le.String("state"))
}

type SyntaxErrorReport struct {
	Count  int        `json:"count"`
	Errors StrCounter `json:"errors"`
}

func (r *SyntaxErrorReport) update(le *LogEntry) {
	r.Count++
	r.Errors.Increment(le.String("error"))
}

// SessionReport lists the commands run in each session.
type SessionReport struct {
	// Map of sessionID -> commands
	sessions map[string]*Session
}

type Session struct {
	LogEntries int      `json:"log_entries"`
	Commands   []string `json:"commands"`
	Jobs       []string `json:"jobs,omitempty"`
}

func (s *Session) Update(le *LogEntry) {
	s.LogEntries++

	switch le.Type {
	case RunCommandEvent, UnknownCommandEvent:
		s.Commands = append(s.Commands, strings.Join(le.Strings("command"), " "))
	case JobStateEvent:
		s.Jobs = append(s.Jobs, le.String("state")+": "+le.String("text"))
	}
}

func (r *SessionReport) init() {
	if r.sessions == nil {
		r.sessions = make(map[string]*Session)
	}
}

// MarshalJSON implemnts custom JSON marshaler.
func (r *SessionReport) MarshalJSON() ([]byte, error) {
	r.init()

	return json.Marshal(r.sessions)
}

func (r *SessionReport) Update(le *LogEntry) {
	r.init()

	sessionID := le.SessionID
	if sessionID == "" {
		return
	}
	report, ok := r.sessions[sessionID]
	if !ok {
		report = &Session{}
		r.sessions[sessionID] = report
	}

	report.Update(le)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of strings seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
