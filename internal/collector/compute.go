package collector

import (
	"sort"

	"pharosbot/internal/core"
)

// LevelCounts counts events per level.
type LevelCounts struct {
	Info    int `json:"info"`
	Success int `json:"success"`
	Warn    int `json:"warn"`
	Error   int `json:"error"`
}

func (l *LevelCounts) add(level core.Level) {
	switch level {
	case core.LevelSuccess:
		l.Success++
	case core.LevelWarn:
		l.Warn++
	case core.LevelError:
		l.Error++
	default:
		l.Info++
	}
}

// Total returns the number of counted events.
func (l LevelCounts) Total() int {
	return l.Info + l.Success + l.Warn + l.Error
}

// Summary aggregates the events of a run.
type Summary struct {
	Total    int                     `json:"total"`
	Levels   LevelCounts             `json:"levels"`
	Steps    map[string]*LevelCounts `json:"steps"`
	Accounts map[string]*LevelCounts `json:"accounts"`
}

// ComputeSummary counts events by level, step and account. Run-level events
// are counted under the level totals only. Pure function.
func ComputeSummary(events []core.Event) *Summary {
	s := &Summary{
		Steps:    make(map[string]*LevelCounts),
		Accounts: make(map[string]*LevelCounts),
	}

	for _, e := range events {
		s.Total++
		s.Levels.add(e.Level)

		if e.Address == core.SystemAddress {
			continue
		}
		if e.Step != "" {
			if s.Steps[e.Step] == nil {
				s.Steps[e.Step] = &LevelCounts{}
			}
			s.Steps[e.Step].add(e.Level)
		}
		if s.Accounts[e.Address] == nil {
			s.Accounts[e.Address] = &LevelCounts{}
		}
		s.Accounts[e.Address].add(e.Level)
	}
	return s
}

// StepNames returns the step names in pipeline order, unknown steps last in
// alphabetical order.
func (s *Summary) StepNames() []string {
	names := make([]string, 0, len(s.Steps))
	for name := range s.Steps {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := stepOrder(names[i]), stepOrder(names[j])
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	return names
}

var pipelineOrder = []string{
	"login", "check_in", "faucet", "profile",
	"balance", "transfer", "wrap", "swap", "liquidity", "approve", "verify",
}

func stepOrder(name string) int {
	for i, n := range pipelineOrder {
		if n == name {
			return i
		}
	}
	return len(pipelineOrder)
}
