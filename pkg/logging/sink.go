package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LogEntry represents a log entry handed to a sink.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Service   string
	Message   string
	Fields    map[string]string
}

// String renders the entry as a single line: message followed by sorted key=value pairs.
func (e LogEntry) String() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Fields[k])
	}
	return b.String()
}

// Sink is an interface for components that receive log entries.
// Write must not block.
type Sink interface {
	Write(entry LogEntry)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(entry LogEntry)

// Write calls f(entry).
func (f SinkFunc) Write(entry LogEntry) {
	f(entry)
}

// levelSink forwards entries at or above a minimum level.
type levelSink struct {
	min  Level
	next Sink
}

// NewLevelSink returns a sink that forwards only entries at or above min.
func NewLevelSink(min Level, next Sink) Sink {
	return &levelSink{min: min, next: next}
}

func (s *levelSink) Write(entry LogEntry) {
	if entry.Level.rank() < s.min.rank() {
		return
	}
	s.next.Write(entry)
}
