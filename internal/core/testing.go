package core

import (
	"strings"
	"sync"
)

// EventRecorder is a Reporter that keeps every event in memory. Safe for
// concurrent use by pipelines running in parallel.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *EventRecorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Has reports whether an event at level contains substr in its message.
func (r *EventRecorder) Has(level Level, substr string) bool {
	for _, e := range r.Events() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// ForAddress returns the messages recorded for one account.
func (r *EventRecorder) ForAddress(address string) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Address == address {
			out = append(out, e.Message)
		}
	}
	return out
}

// OutputBuffer is a thread-safe io.Writer capturing terminal output.
type OutputBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (w *OutputBuffer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *OutputBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// Lines splits the captured output on newlines, dropping carriage returns,
// clear-line escapes and empty lines.
func (w *OutputBuffer) Lines() []string {
	var out []string
	for _, line := range strings.Split(w.String(), "\n") {
		line = strings.ReplaceAll(line, "\r", "")
		line = strings.ReplaceAll(line, "\033[K", "")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
