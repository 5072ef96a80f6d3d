// Package record holds the canonical in-memory form of one log event and
// its serialization rules into storage columns.
package record

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for the created_at column.
// Fixed fractional digits keep the textual form sortable.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// ExceptionInfo is the structured error payload attached to a record.
// It serializes to a fixed three-part JSON object.
type ExceptionInfo struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace"`
}

// Exception builds an ExceptionInfo from an error, capturing the current
// goroutine's stack as the formatted trace.
func Exception(err error) *ExceptionInfo {
	if err == nil {
		return nil
	}
	return &ExceptionInfo{
		Type:       fmt.Sprintf("%T", err),
		Message:    err.Error(),
		StackTrace: string(debug.Stack()),
	}
}

// Record is one log event. Once handed to the buffer it is never mutated;
// flushes only read it.
type Record struct {
	Level        int
	LevelName    string
	LoggerName   string
	Message      string
	CreatedAt    time.Time
	Filename     string
	FunctionName string
	Module       string
	LineNumber   int
	ProcessID    int
	ProcessName  string
	ThreadID     uint64
	ThreadName   string
	Exc          *ExceptionInfo

	// Extra carries arbitrary caller-supplied key/value data. It is stored
	// as one JSON text column.
	Extra map[string]any

	// Fields carries values for caller-declared additional columns, keyed
	// by field name.
	Fields map[string]any
}

// New returns a record stamped with the current time and the given level,
// logger name and message. Callers fill in the rest as available.
func New(level int, loggerName, message string) *Record {
	return &Record{
		Level:      level,
		LevelName:  LevelName(level),
		LoggerName: loggerName,
		Message:    message,
		CreatedAt:  time.Now(),
	}
}

// CreatedAtString returns the created_at column value.
func (r *Record) CreatedAtString() string {
	return r.CreatedAt.UTC().Format(TimeLayout)
}

// ExcJSON returns the exception_info column value, or nil when no error
// was attached.
func (r *Record) ExcJSON() any {
	if r.Exc == nil {
		return nil
	}
	data, err := json.Marshal(r.Exc)
	if err != nil {
		// Three strings cannot fail to marshal, but keep the record either way.
		return fmt.Sprintf("%s: %s", r.Exc.Type, r.Exc.Message)
	}
	return string(data)
}

// ExtraJSON returns the extra column value: canonical JSON text of the extra
// mapping, or nil when empty. Unserializable leaves are replaced by their
// string form; the record itself is never rejected.
func (r *Record) ExtraJSON() any {
	if len(r.Extra) == 0 {
		return nil
	}
	data, err := json.Marshal(Sanitize(r.Extra))
	if err != nil {
		return fmt.Sprintf("%v", r.Extra)
	}
	return string(data)
}

// FieldValue returns the column value for one declared additional field,
// nil when the record carries no value for it. Nested values serialize to
// JSON text the same way extra does.
func (r *Record) FieldValue(name string) any {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return nil
	}
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, []byte, time.Time:
		return v
	}
	data, err := json.Marshal(Sanitize(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Sanitize walks a value and replaces every leaf that json.Marshal cannot
// handle with its fmt string form. Containers are copied, never modified
// in place.
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Sanitize(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Sanitize(elem)
		}
		return out
	default:
		if _, err := json.Marshal(val); err != nil {
			return fmt.Sprintf("%v", val)
		}
		return val
	}
}
