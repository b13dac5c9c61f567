package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"pharosbot/internal/runstate"
)

// FormatText writes a human-readable run report.
func FormatText(w io.Writer, snap runstate.Snapshot, s *Summary) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Pharos Daily Tasks - Results")
	fmt.Fprintln(w, "============================")
	fmt.Fprintln(w, "")
	if snap.RunID != "" {
		fmt.Fprintf(w, "Run:        %s\n", snap.RunID)
	}
	if d := runDuration(snap); d > 0 {
		fmt.Fprintf(w, "Duration:   %v\n", d.Round(time.Millisecond))
	}
	if snap.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", snap.Error)
	}

	if len(snap.Results) == 0 {
		fmt.Fprintln(w, "No accounts processed")
		return
	}

	succeeded := len(snap.Results) - snap.Failed()
	fmt.Fprintf(w, "Accounts:   %s succeeded, %s failed\n",
		formatNumber(succeeded), formatNumber(snap.Failed()))
	fmt.Fprintln(w, "")
	for _, addr := range sortedAddresses(snap.Results) {
		r := snap.Results[addr]
		symbol := "✓"
		if !r.Success {
			symbol = "✗"
		}
		fmt.Fprintf(w, "  %s %s  %s\n", symbol, addr, r.Message)
	}

	if s == nil || len(s.Steps) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Step:")
	for _, name := range s.StepNames() {
		c := s.Steps[name]
		fmt.Fprintf(w, "  %-10s ok=%-4d warn=%-4d error=%-4d info=%d\n",
			name, c.Success, c.Warn, c.Error, c.Info)
	}
}

// FormatJSON writes the run report as indented JSON.
func FormatJSON(w io.Writer, snap runstate.Snapshot, s *Summary) {
	output := struct {
		RunID     string                         `json:"runId,omitempty"`
		Duration  string                         `json:"duration,omitempty"`
		Error     string                         `json:"error,omitempty"`
		Succeeded int                            `json:"succeeded"`
		Failed    int                            `json:"failed"`
		Results   map[string]runstate.TaskResult `json:"results"`
		Summary   *Summary                       `json:"summary,omitempty"`
	}{
		RunID:     snap.RunID,
		Error:     snap.Error,
		Succeeded: len(snap.Results) - snap.Failed(),
		Failed:    snap.Failed(),
		Results:   snap.Results,
		Summary:   s,
	}
	if d := runDuration(snap); d > 0 {
		output.Duration = d.Round(time.Millisecond).String()
	}
	if output.Results == nil {
		output.Results = map[string]runstate.TaskResult{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

func runDuration(snap runstate.Snapshot) time.Duration {
	if snap.StartedAt.IsZero() || snap.FinishedAt.IsZero() {
		return 0
	}
	return snap.FinishedAt.Sub(snap.StartedAt)
}

func sortedAddresses(results map[string]runstate.TaskResult) []string {
	addrs := make([]string, 0, len(results))
	for a := range results {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
