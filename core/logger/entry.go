package logger

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event types.
const (
	RunCommandEvent     = "run_command"
	UnknownCommandEvent = "unknown_command"
	JobStateEvent       = "job_state"
	SyntaxErrorEvent    = "syntax_error"
)

// LogEntry is a single recorded event.
type LogEntry struct {
	TimestampMicros int64
	SessionID       string
	Type            string
	Fields          *structpb.Struct
}

// MarshalJSON implements json.Marshaler using the protobuf JSON mapping.
func (le *LogEntry) MarshalJSON() ([]byte, error) {
	s, err := le.toStruct()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

func (le *LogEntry) toStruct() (*structpb.Struct, error) {
	fields := le.Fields
	if fields == nil {
		fields = &structpb.Struct{}
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"timestamp_micros": structpb.NewNumberValue(float64(le.TimestampMicros)),
			"session_id":       structpb.NewStringValue(le.SessionID),
			"type":             structpb.NewStringValue(le.Type),
			"fields":           structpb.NewStructValue(fields),
		},
	}, nil
}

// UnmarshalEntry decodes an entry written by MarshalJSON.
func UnmarshalEntry(data []byte) (*LogEntry, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	raw := s.GetFields()
	typ, ok := raw["type"]
	if !ok {
		return nil, fmt.Errorf("log entry has no type")
	}
	return &LogEntry{
		TimestampMicros: int64(raw["timestamp_micros"].GetNumberValue()),
		SessionID:       raw["session_id"].GetStringValue(),
		Type:            typ.GetStringValue(),
		Fields:          raw["fields"].GetStructValue(),
	}, nil
}

// String returns a string field, or "" if it's missing.
func (le *LogEntry) String(key string) string {
	return le.Fields.GetFields()[key].GetStringValue()
}

// Int returns a numeric field truncated to an int.
func (le *LogEntry) Int(key string) int {
	return int(le.Fields.GetFields()[key].GetNumberValue())
}

// Strings returns a list field of strings.
func (le *LogEntry) Strings(key string) []string {
	var out []string
	for _, v := range le.Fields.GetFields()[key].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func stringList(vals []string) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
