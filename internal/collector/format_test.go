package collector

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pharosbot/internal/core"
	"pharosbot/internal/runstate"
)

var (
	started  = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	finished = started.Add(90 * time.Second)
)

func sampleSnapshot() runstate.Snapshot {
	return runstate.Snapshot{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: finished,
		Results: map[string]runstate.TaskResult{
			"0xb": {Success: false, Message: "Login failed: invalid signature"},
			"0xa": {Success: true, Message: "All tasks completed successfully", SessionToken: "jwt"},
		},
	}
}

func TestFormatText(t *testing.T) {
	s := ComputeSummary([]core.Event{
		ev("0xa", "login", "", core.LevelSuccess),
		ev("0xb", "login", "", core.LevelError),
		ev("0xa", "swap", "", core.LevelWarn),
	})

	var buf bytes.Buffer
	FormatText(&buf, sampleSnapshot(), s)
	out := buf.String()

	for _, want := range []string{
		"Pharos Daily Tasks - Results",
		"Run:        run-1",
		"Duration:   1m30s",
		"Accounts:   1 succeeded, 1 failed",
		"✓ 0xa  All tasks completed successfully",
		"✗ 0xb  Login failed: invalid signature",
		"By Step:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "0xa") > strings.Index(out, "0xb") {
		t.Error("accounts should be listed in address order")
	}
	if strings.Index(out, "  login") > strings.Index(out, "  swap") {
		t.Error("steps should be listed in pipeline order")
	}
	if strings.Contains(out, "jwt") {
		t.Error("session tokens must not appear in the text report")
	}
}

func TestFormatText_NoAccounts(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, runstate.Snapshot{Error: "loading accounts: permission denied"}, nil)
	out := buf.String()

	if !strings.Contains(out, "No accounts processed") {
		t.Errorf("expected empty message, got: %s", out)
	}
	if !strings.Contains(out, "Error:      loading accounts: permission denied") {
		t.Errorf("expected run error, got: %s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	FormatJSON(&buf, sampleSnapshot(), ComputeSummary([]core.Event{ev("0xa", "login", "", core.LevelSuccess)}))

	var got struct {
		RunID     string                         `json:"runId"`
		Duration  string                         `json:"duration"`
		Succeeded int                            `json:"succeeded"`
		Failed    int                            `json:"failed"`
		Results   map[string]runstate.TaskResult `json:"results"`
		Summary   struct {
			Total int `json:"total"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if got.RunID != "run-1" || got.Duration != "1m30s" {
		t.Errorf("header = %q %q", got.RunID, got.Duration)
	}
	if got.Succeeded != 1 || got.Failed != 1 {
		t.Errorf("succeeded/failed = %d/%d", got.Succeeded, got.Failed)
	}
	if got.Results["0xa"].SessionToken != "jwt" {
		t.Errorf("results = %+v", got.Results)
	}
	if got.Summary.Total != 1 {
		t.Errorf("summary total = %d", got.Summary.Total)
	}
}

func TestFormatJSON_EmptyResultsIsObject(t *testing.T) {
	var buf bytes.Buffer
	FormatJSON(&buf, runstate.Snapshot{}, nil)

	if !strings.Contains(buf.String(), `"results": {}`) {
		t.Errorf("expected empty results object, got: %s", buf.String())
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 12345: "12,345"}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}
