// Package pipeline runs one account through the daily routine: the HTTP
// phase (login, check-in, faucet, profile) and then the chain phase
// (transfers, wraps, swaps, liquidity) with verification of each action.
//
// A pipeline never returns an error. Every failure is turned into a progress
// event or into the account's TaskResult.
package pipeline

import (
	"context"
	"math/rand/v2"

	"pharosbot/internal/account"
	"pharosbot/internal/api"
	"pharosbot/internal/chain"
	"pharosbot/internal/config"
	"pharosbot/internal/core"
	"pharosbot/internal/runstate"

	"go.uber.org/zap"
)

// CompletedMessage is the final message of an account that finished both
// phases.
const CompletedMessage = "All tasks completed successfully"

// Service is the remote task service used by the HTTP phase.
type Service interface {
	Login(ctx context.Context, address, signature, inviteCode string) (string, error)
	CheckIn(ctx context.Context, address, token string) error
	FaucetStatus(ctx context.Context, address, token string) (bool, error)
	ClaimFaucet(ctx context.Context, address, token string) error
	Profile(ctx context.Context, address, token string) (api.Profile, error)
}

// Options configures New. Service, Verifier and Ledger are required.
type Options struct {
	Service      Service
	Verifier     api.VerificationClient
	Ledger       chain.Ledger
	Chain        config.ChainConfig
	LoginMessage string
	Retry        RetryPolicies
	Reporter     core.Reporter
	Clock        core.Clock
	Logger       *zap.Logger
	// Rand drives round randomness. Accounts run sequentially, so it is
	// never used from two goroutines at once.
	Rand *rand.Rand
}

// Pipeline executes the per-account routine.
type Pipeline struct {
	service      Service
	verifier     api.VerificationClient
	ledger       chain.Ledger
	cfg          config.ChainConfig
	loginMessage string
	retry        RetryPolicies
	reporter     core.Reporter
	clock        core.Clock
	log          *zap.Logger
	rng          *rand.Rand
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		service:      opts.Service,
		verifier:     opts.Verifier,
		ledger:       opts.Ledger,
		cfg:          opts.Chain,
		loginMessage: opts.LoginMessage,
		retry:        opts.Retry,
		reporter:     opts.Reporter,
		clock:        opts.Clock,
		log:          opts.Logger,
		rng:          opts.Rand,
	}
	if p.reporter == nil {
		p.reporter = core.NullReporter
	}
	if p.clock == nil {
		p.clock = core.RealClock{}
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if p.loginMessage == "" {
		p.loginMessage = "pharos"
	}
	return p
}

// Run executes both phases for acct and returns its final result.
func (p *Pipeline) Run(ctx context.Context, acct account.Account, inviteCode string) runstate.TaskResult {
	em := core.NewEmitter(p.reporter, p.clock, acct.Address)
	log := p.log.With(zap.String("address", acct.Address))

	key, err := acct.PrivateKey()
	if err != nil {
		msg := "Invalid private key: " + err.Error()
		em.Step("login").Error(msg)
		log.Warn("account key unavailable", zap.Error(err))
		return runstate.TaskResult{Message: msg}
	}

	httpResult, ok := p.runHTTP(ctx, em, key, inviteCode)
	if !ok {
		log.Info("http phase failed", zap.String("message", httpResult.Message))
		return httpResult
	}

	token := httpResult.SessionToken
	if err := p.runChain(ctx, em, key, token); err != nil {
		msg := "Chain tasks failed: " + err.Error()
		em.Error(msg)
		log.Info("chain phase aborted", zap.Error(err))
		return runstate.TaskResult{Message: msg, SessionToken: token}
	}

	em.Success(CompletedMessage)
	return runstate.TaskResult{Success: true, Message: CompletedMessage, SessionToken: token}
}
