// Package runstate holds the single shared record of the task run: whether a
// run is active, whether a stop was requested, and the latest result per
// account.
//
// All access goes through a mutex with short critical sections; no caller may
// hold the lock across a network or ledger call, and there is no way to obtain
// a live reference to the results map.
package runstate

import (
	"maps"
	"sync"
	"time"
)

// RunningMessage is the placeholder message written when an account's turn
// begins.
const RunningMessage = "running"

// TaskResult is the outcome of one account's pipeline.
type TaskResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SessionToken string `json:"session_token,omitempty"`
}

// Placeholder returns the result written before an account's pipeline runs.
func Placeholder() TaskResult {
	return TaskResult{Success: false, Message: RunningMessage}
}

// Snapshot is a point-in-time copy of the run state.
type Snapshot struct {
	IsRunning  bool                  `json:"is_running"`
	RunID      string                `json:"run_id,omitempty"`
	StartedAt  time.Time             `json:"started_at,omitempty"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	Error      string                `json:"error,omitempty"`
	Results    map[string]TaskResult `json:"results"`
}

// State is the run registry. Create it once at process start and inject it
// into the runner.
type State struct {
	mu              sync.Mutex
	running         bool
	cancelRequested bool
	runID           string
	startedAt       time.Time
	finishedAt      time.Time
	runErr          string
	results         map[string]TaskResult
}

func New() *State {
	return &State{results: make(map[string]TaskResult)}
}

// TryBegin atomically moves the state from idle to running. It returns false,
// without touching anything, when a run is already active. On success the
// previous results, error and stop request are cleared.
func (s *State) TryBegin(runID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.cancelRequested = false
	s.runID = runID
	s.startedAt = now
	s.finishedAt = time.Time{}
	s.runErr = ""
	s.results = make(map[string]TaskResult)
	return true
}

// Finish moves the state back to idle and resets the stop request. A non-nil
// err is kept as the run-level error until the next run begins.
func (s *State) Finish(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.cancelRequested = false
	s.finishedAt = now
	if err != nil {
		s.runErr = err.Error()
	}
}

// RequestCancel marks the active run for cancellation. Idempotent; a request
// made while idle has no effect on the next run.
func (s *State) RequestCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.cancelRequested = true
	}
}

func (s *State) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

func (s *State) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetResult records the result for one account.
func (s *State) SetResult(address string, r TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[address] = r
}

// Result returns the recorded result for an account, if any.
func (s *State) Result(address string) (TaskResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[address]
	return r, ok
}

// Snapshot returns a copy of the state; the results map is never shared.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		IsRunning:  s.running,
		RunID:      s.runID,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
		Error:      s.runErr,
		Results:    maps.Clone(s.results),
	}
}

// Failed returns the number of accounts whose result is not successful.
func (snap Snapshot) Failed() int {
	n := 0
	for _, r := range snap.Results {
		if !r.Success {
			n++
		}
	}
	return n
}
