// Package collector gathers progress events and summarizes a run.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"pharosbot/internal/core"
)

const (
	// bufferSize is the channel capacity between reporters and the
	// collecting goroutine.
	bufferSize = 1000
	// DefaultRetention bounds how many events are kept in memory.
	DefaultRetention = 10000
)

// Collector is a core.Reporter that keeps events in arrival order. Each
// event gets a sequence number starting at 0, so readers can poll for
// events they have not seen yet.
type Collector struct {
	events    []core.Event
	base      int // sequence number of events[0]
	retention int
	ch        chan core.Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	dropped   atomic.Int64
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a Collector and starts its collection goroutine.
func NewCollector() *Collector {
	return NewCollectorWithRetention(DefaultRetention)
}

// NewCollectorWithRetention keeps at most retention events; older events are
// discarded first. retention <= 0 keeps everything.
func NewCollectorWithRetention(retention int) *Collector {
	c := &Collector{
		events:    make([]core.Event, 0),
		retention: retention,
		ch:        make(chan core.Event, bufferSize),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for event := range c.ch {
		c.mu.Lock()
		c.events = append(c.events, event)
		if c.retention > 0 && len(c.events) > c.retention {
			trim := len(c.events) - c.retention
			c.events = append(c.events[:0:0], c.events[trim:]...)
			c.base += trim
		}
		c.mu.Unlock()
	}
	close(c.done)
}

// Report queues an event. It never blocks; events are dropped and counted
// when the buffer is full.
func (c *Collector) Report(event core.Event) {
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting events and waits until queued ones are stored.
// Reporting after Close panics.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.endTime = time.Now()
		c.mu.Unlock()
		close(c.ch)
	})
	<-c.done
}

// Events returns a copy of the retained events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// EventsSince returns the retained events with sequence number >= since and
// the sequence number to pass on the next call.
func (c *Collector) EventsSince(since int) ([]core.Event, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.base + len(c.events)
	start := since - c.base
	if start < 0 {
		start = 0
	}
	if start >= len(c.events) {
		return []core.Event{}, next
	}
	result := make([]core.Event, len(c.events)-start)
	copy(result, c.events[start:])
	return result, next
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Duration returns the time from creation to Close, or to now while open.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}
