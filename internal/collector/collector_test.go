package collector

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pharosbot/internal/core"
)

func ev(addr, step, msg string, level core.Level) core.Event {
	return core.Event{Address: addr, Step: step, Message: msg, Level: level, Timestamp: time.UnixMilli(1_700_000_000_000)}
}

func TestCollector_CollectsEventsInOrder(t *testing.T) {
	c := NewCollector()
	c.Report(ev("0xa", "login", "Logging in...", core.LevelInfo))
	c.Report(ev("0xa", "login", "Login successful! JWT obtained.", core.LevelSuccess))
	c.Close()

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Message != "Logging in..." || events[1].Level != core.LevelSuccess {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestCollector_EventsSince(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 5; i++ {
		c.Report(ev("0xa", "swap", fmt.Sprintf("round %d", i), core.LevelInfo))
	}
	c.Close()

	events, next := c.EventsSince(0)
	if len(events) != 5 || next != 5 {
		t.Fatalf("EventsSince(0) = %d events, next %d", len(events), next)
	}

	events, next = c.EventsSince(3)
	if len(events) != 2 || events[0].Message != "round 3" || next != 5 {
		t.Errorf("EventsSince(3) = %+v, next %d", events, next)
	}

	events, next = c.EventsSince(99)
	if len(events) != 0 || next != 5 {
		t.Errorf("EventsSince(99) = %d events, next %d", len(events), next)
	}
	if events == nil {
		t.Error("EventsSince should return an empty slice, not nil")
	}
}

func TestCollector_Retention(t *testing.T) {
	c := NewCollectorWithRetention(3)
	for i := 0; i < 5; i++ {
		c.Report(ev("0xa", "wrap", fmt.Sprintf("e%d", i), core.LevelInfo))
	}
	c.Close()

	events := c.Events()
	if len(events) != 3 || events[0].Message != "e2" {
		t.Fatalf("retained %+v, want e2..e4", events)
	}

	// Sequence numbers survive trimming.
	since, next := c.EventsSince(0)
	if len(since) != 3 || next != 5 {
		t.Errorf("EventsSince(0) = %d events, next %d", len(since), next)
	}
	since, _ = c.EventsSince(4)
	if len(since) != 1 || since[0].Message != "e4" {
		t.Errorf("EventsSince(4) = %+v", since)
	}
}

func TestCollector_ThreadSafety(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	const goroutines, perGoroutine = 50, 40

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.Report(ev(fmt.Sprintf("0x%d", id), "swap", "tick", core.LevelInfo))
			}
		}(i)
	}
	wg.Wait()
	c.Close()

	got := int64(len(c.Events())) + c.Dropped()
	if got != goroutines*perGoroutine {
		t.Errorf("stored+dropped = %d, want %d", got, goroutines*perGoroutine)
	}
}

func TestCollector_CloseIdempotent(t *testing.T) {
	c := NewCollector()
	c.Close()
	c.Close()
}

func TestCollector_Duration(t *testing.T) {
	c := NewCollector()
	time.Sleep(5 * time.Millisecond)
	c.Close()
	d := c.Duration()
	if d < 5*time.Millisecond {
		t.Errorf("Duration = %v, want >= 5ms", d)
	}
	if c.Duration() != d {
		t.Error("Duration should be fixed after Close")
	}
}
