package core

import "fmt"

// Emitter stamps and publishes events for one address and step.
// The zero value is not usable; create one with NewEmitter.
type Emitter struct {
	reporter Reporter
	clock    Clock
	address  string
	step     string
}

func NewEmitter(reporter Reporter, clock Clock, address string) *Emitter {
	if reporter == nil {
		reporter = NullReporter
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Emitter{reporter: reporter, clock: clock, address: address}
}

// Step returns a copy of the emitter tagging events with the given step name.
func (e *Emitter) Step(step string) *Emitter {
	cp := *e
	cp.step = step
	return &cp
}

func (e *Emitter) Address() string { return e.address }

func (e *Emitter) emit(level Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	e.reporter.Report(Event{
		Address:   e.address,
		Step:      e.step,
		Message:   msg,
		Level:     level,
		Timestamp: e.clock.Now(),
	})
}

func (e *Emitter) Info(format string, args ...any)    { e.emit(LevelInfo, format, args...) }
func (e *Emitter) Success(format string, args ...any) { e.emit(LevelSuccess, format, args...) }
func (e *Emitter) Warn(format string, args ...any)    { e.emit(LevelWarn, format, args...) }
func (e *Emitter) Error(format string, args ...any)   { e.emit(LevelError, format, args...) }
