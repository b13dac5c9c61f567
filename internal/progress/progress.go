// Package progress prints pipeline events and a periodic status line to the
// terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pharosbot/internal/core"
)

var (
	infoStyle    = lipgloss.NewStyle()
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func styleFor(level core.Level) lipgloss.Style {
	switch level {
	case core.LevelSuccess:
		return successStyle
	case core.LevelWarn:
		return warnStyle
	case core.LevelError:
		return errorStyle
	default:
		return infoStyle
	}
}

// Progress is a core.Reporter that writes one line per event. While started
// it also refreshes a status line with elapsed time and warning/error counts.
type Progress struct {
	startTime time.Time
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex

	events   atomic.Int64
	warnings atomic.Int64
	errors   atomic.Int64
}

func NewProgress(quiet bool) *Progress {
	return &Progress{
		quiet:  quiet,
		output: os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// Report prints the event. Counters are updated even in quiet mode.
func (p *Progress) Report(e core.Event) {
	p.events.Add(1)
	switch e.Level {
	case core.LevelWarn:
		p.warnings.Add(1)
	case core.LevelError:
		p.errors.Add(1)
	}
	if p.quiet {
		return
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	prefix := dimStyle.Render(fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), e.Address))
	step := ""
	if e.Step != "" {
		step = dimStyle.Render(e.Step) + " "
	}

	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s %s%s\n", prefix, step, styleFor(e.Level).Render(e.Message))
	p.mu.Unlock()
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printStatus()
		}
	}
}

func (p *Progress) printStatus() {
	elapsed := time.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K[%02d:%02d] Events: %d | Warnings: %d | Errors: %d\r",
		mins, secs, p.events.Load(), p.warnings.Load(), p.errors.Load())
	p.mu.Unlock()
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

// Counts returns the number of events, warnings and errors seen so far.
func (p *Progress) Counts() (events, warnings, errors int64) {
	return p.events.Load(), p.warnings.Load(), p.errors.Load()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
