// Package coordinator runs the account loop: it claims the run state, visits
// every account in a random order, and records each account's result.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"pharosbot/internal/account"
	"pharosbot/internal/core"
	"pharosbot/internal/runstate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start while a run is in flight.
var ErrAlreadyRunning = errors.New("tasks are already running")

// Pipeline processes one account and always returns its result.
type Pipeline interface {
	Run(ctx context.Context, acct account.Account, inviteCode string) runstate.TaskResult
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context, acct account.Account, inviteCode string) runstate.TaskResult

func (f PipelineFunc) Run(ctx context.Context, acct account.Account, inviteCode string) runstate.TaskResult {
	return f(ctx, acct, inviteCode)
}

// Options configures NewRunner. State, Store and Pipeline are required.
type Options struct {
	State    *runstate.State
	Store    account.Store
	Pipeline Pipeline
	Reporter core.Reporter
	Clock    core.Clock
	Logger   *zap.Logger
	// Shuffle permutes the accounts of a run in place. Defaults to a
	// uniform random shuffle.
	Shuffle func([]account.Account)
	// DefaultInviteCode is used when Start receives an empty code.
	DefaultInviteCode string
}

// Runner is the single workflow runner of the process. Accounts are processed
// strictly one after another.
type Runner struct {
	state         *runstate.State
	store         account.Store
	pipeline      Pipeline
	reporter      core.Reporter
	clock         core.Clock
	log           *zap.Logger
	shuffle       func([]account.Account)
	defaultInvite string

	wg sync.WaitGroup
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		state:         opts.State,
		store:         opts.Store,
		pipeline:      opts.Pipeline,
		reporter:      opts.Reporter,
		clock:         opts.Clock,
		log:           opts.Logger,
		shuffle:       opts.Shuffle,
		defaultInvite: opts.DefaultInviteCode,
	}
	if r.reporter == nil {
		r.reporter = core.NullReporter
	}
	if r.clock == nil {
		r.clock = core.RealClock{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.shuffle == nil {
		r.shuffle = func(accts []account.Account) {
			rand.Shuffle(len(accts), func(i, j int) { accts[i], accts[j] = accts[j], accts[i] })
		}
	}
	return r
}

// Start claims the run state and processes all accounts in the background.
// It returns ErrAlreadyRunning, without side effects, when a run is active.
// ctx bounds the whole run; cancelling it aborts in-flight calls.
func (r *Runner) Start(ctx context.Context, inviteCode string) error {
	if inviteCode == "" {
		inviteCode = r.defaultInvite
	}
	runID := uuid.NewString()
	if !r.state.TryBegin(runID, r.clock.Now()) {
		return ErrAlreadyRunning
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, runID, inviteCode)
	}()
	return nil
}

// Stop asks the active run to stop before the next account. The account in
// progress finishes first.
func (r *Runner) Stop() {
	r.state.RequestCancel()
}

// Status returns a copy of the run state.
func (r *Runner) Status() runstate.Snapshot {
	return r.state.Snapshot()
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, runID, inviteCode string) {
	sys := core.NewEmitter(r.reporter, r.clock, core.SystemAddress)
	log := r.log.With(zap.String("run_id", runID))

	var runErr error
	defer func() {
		r.state.Finish(r.clock.Now(), runErr)
		log.Info("run finished", zap.Error(runErr))
	}()
	defer func() {
		if v := recover(); v != nil {
			runErr = fmt.Errorf("panic: %v", v)
			sys.Error("Tasks aborted: %v", runErr)
			log.Error("run panicked", zap.Any("panic", v), zap.Stack("stack"))
		}
	}()

	sys.Info("Starting tasks...")
	log.Info("run started")

	accounts, err := r.store.List(ctx)
	if err != nil {
		runErr = fmt.Errorf("loading accounts: %w", err)
		sys.Error("Failed to load accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		sys.Warn("No wallets found")
		return
	}

	accounts = r.dedupe(sys, accounts)
	r.shuffle(accounts)

	for i, acct := range accounts {
		if r.state.CancelRequested() {
			sys.Warn("Tasks stopped by user")
			log.Info("run stopped", zap.Int("remaining", len(accounts)-i))
			return
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			sys.Warn("Tasks cancelled")
			return
		}

		r.state.SetResult(acct.Address, runstate.Placeholder())
		res := r.runAccount(ctx, acct, inviteCode)
		r.state.SetResult(acct.Address, res)

		log.Debug("account finished",
			zap.String("address", acct.Address),
			zap.Bool("success", res.Success),
			zap.String("message", res.Message))
	}

	sys.Success("All tasks completed")
}

// dedupe keeps the first account per address, compared case-insensitively.
func (r *Runner) dedupe(sys *core.Emitter, accounts []account.Account) []account.Account {
	seen := make(map[string]bool, len(accounts))
	out := accounts[:0:0]
	for _, acct := range accounts {
		key := strings.ToLower(acct.Address)
		if seen[key] {
			sys.Warn("Duplicate wallet %s skipped", acct.Address)
			continue
		}
		seen[key] = true
		out = append(out, acct)
	}
	return out
}

func (r *Runner) runAccount(ctx context.Context, acct account.Account, inviteCode string) (res runstate.TaskResult) {
	defer r.recoverPanic(acct.Address, &res)
	return r.pipeline.Run(ctx, acct, inviteCode)
}

// recoverPanic turns a panicking pipeline into a failed result for that
// account so the loop can continue.
func (r *Runner) recoverPanic(address string, res *runstate.TaskResult) {
	if v := recover(); v != nil {
		msg := fmt.Sprintf("panic: %v", v)
		*res = runstate.TaskResult{Message: msg}
		r.reporter.Report(core.Event{
			Address:   address,
			Step:      "panic",
			Message:   msg,
			Level:     core.LevelError,
			Timestamp: r.clock.Now(),
		})
		r.log.Error("pipeline panicked", zap.String("address", address), zap.Any("panic", v), zap.Stack("stack"))
	}
}
