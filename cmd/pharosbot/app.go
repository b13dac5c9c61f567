package main

import (
	"context"

	"go.uber.org/zap"

	"pharosbot/internal/account"
	"pharosbot/internal/api"
	"pharosbot/internal/chain"
	"pharosbot/internal/config"
	"pharosbot/internal/coordinator"
	"pharosbot/internal/core"
	"pharosbot/internal/pipeline"
	"pharosbot/internal/ratelimit"
	"pharosbot/internal/runstate"
)

// dialLedger connects to the configured RPC endpoint.
func dialLedger(ctx context.Context, cfg *config.Config, log *zap.Logger) (*chain.EthLedger, error) {
	return chain.Dial(ctx, chain.EthOptions{
		RPCURL:       cfg.Chain.RPCURL,
		ChainID:      cfg.Chain.ChainID,
		PollInterval: cfg.Chain.PollInterval,
		Logger:       log.Named("chain"),
	})
}

// newRunner wires the remote client, the pipeline and the runner. Every
// event goes to reporter.
func newRunner(cfg *config.Config, store account.Store, ledger chain.Ledger, reporter core.Reporter, log *zap.Logger) *coordinator.Runner {
	limiter := ratelimit.NewRateLimiter(cfg.API.RPS)
	client := api.NewClient(cfg.API, limiter, api.NewDebugLogger(log))

	pipe := pipeline.New(pipeline.Options{
		Service:      client,
		Verifier:     api.NewVerifier(client, log.Named("verify")),
		Ledger:       ledger,
		Chain:        cfg.Chain,
		LoginMessage: cfg.API.LoginMessage,
		Retry:        pipeline.PoliciesFromConfig(cfg.Retry),
		Reporter:     reporter,
		Logger:       log.Named("pipeline"),
	})

	return coordinator.NewRunner(coordinator.Options{
		State:             runstate.New(),
		Store:             store,
		Pipeline:          pipe,
		Reporter:          reporter,
		Logger:            log.Named("runner"),
		DefaultInviteCode: cfg.API.InviteCode,
	})
}

// logReporter writes every progress event to the diagnostic log.
func logReporter(log *zap.Logger) core.Reporter {
	return core.ReporterFunc(func(e core.Event) {
		fields := []zap.Field{zap.String("address", e.Address), zap.String("level", string(e.Level))}
		if e.Step != "" {
			fields = append(fields, zap.String("step", e.Step))
		}
		switch e.Level {
		case core.LevelError:
			log.Error(e.Message, fields...)
		case core.LevelWarn:
			log.Warn(e.Message, fields...)
		default:
			log.Info(e.Message, fields...)
		}
	})
}

// exitCode maps a finished run to the process exit code.
func exitCode(snap runstate.Snapshot) int {
	if snap.Error != "" && len(snap.Results) == 0 {
		return ExitError
	}
	if snap.Error != "" || snap.Failed() > 0 {
		return ExitAccountFailed
	}
	return ExitSuccess
}
