// Package loggingtest provides an in-memory logging.Adapter for tests.
package loggingtest

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// Level identifies the severity an Entry was logged at.
type Level string

const (
	// LevelDebug marks debug entries.
	LevelDebug Level = "debug"
	// LevelInfo marks info entries.
	LevelInfo Level = "info"
	// LevelWarn marks warn entries.
	LevelWarn Level = "warn"
	// LevelError marks error entries.
	LevelError Level = "error"
)

// Entry is one recorded log line.
type Entry struct {
	Level   Level
	Message string
	Err     error
	Attrs   []attribute.KeyValue
}

// Attr returns the string form of the named attribute and whether it was present.
func (e Entry) Attr(key string) (string, bool) {
	for _, attr := range e.Attrs {
		if string(attr.Key) == key {
			return attr.Value.Emit(), true
		}
	}

	return "", false
}

// Recorder captures every log line. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Debug implements logging.Adapter.
func (r *Recorder) Debug(_ context.Context, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: LevelDebug, Message: msg, Attrs: attrs})
}

// Info implements logging.Adapter.
func (r *Recorder) Info(_ context.Context, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: LevelInfo, Message: msg, Attrs: attrs})
}

// Warn implements logging.Adapter.
func (r *Recorder) Warn(_ context.Context, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: LevelWarn, Message: msg, Attrs: attrs})
}

// Error implements logging.Adapter.
func (r *Recorder) Error(_ context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: LevelError, Message: msg, Err: err, Attrs: attrs})
}

func (r *Recorder) add(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Entry(nil), r.entries...)
}

// AtLevel returns the recorded entries of the given level.
func (r *Recorder) AtLevel(level Level) []Entry {
	var out []Entry

	for _, entry := range r.Entries() {
		if entry.Level == level {
			out = append(out, entry)
		}
	}

	return out
}
