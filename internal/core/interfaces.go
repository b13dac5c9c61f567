// Package core defines the fundamental types shared by the task runner:
// progress events, the Reporter sink they flow into, and the Clock used to
// timestamp them.
package core

import (
	"time"
)

// SystemAddress is the address used for run-level events that do not belong
// to a single account.
const SystemAddress = "SYSTEM"

// Level classifies a progress event for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Event is a single human-readable progress line emitted by a pipeline step.
type Event struct {
	Address   string    `json:"address"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"-"`
}

// TimestampMillis returns the event time as Unix milliseconds.
func (e Event) TimestampMillis() int64 {
	return e.Timestamp.UnixMilli()
}

// Reporter is the write-only sink pipelines publish progress events to.
// Implementations must be safe for concurrent use and must not block.
type Reporter interface {
	Report(Event)
}

// NullReporter discards all events.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}

// MultiReporter fans every event out to each wrapped reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }
