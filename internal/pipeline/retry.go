package pipeline

import (
	"context"
	"errors"
	"time"

	"pharosbot/internal/api"
	"pharosbot/internal/chain"
	"pharosbot/internal/config"
	"pharosbot/internal/core"
)

// RetryPolicy bounds how often one step class is retried.
// The zero value runs the step exactly once.
type RetryPolicy struct {
	Name       string
	MaxRetries int
	Delay      time.Duration
}

// RetryPolicies holds the policy for each step class.
type RetryPolicies struct {
	Auth   RetryPolicy // login
	Soft   RetryPolicy // check-in, faucet, profile
	Verify RetryPolicy // task verification
	Tx     RetryPolicy // transaction submission; receipts are never retried
}

// PoliciesFromConfig converts the retry section of the config.
func PoliciesFromConfig(cfg config.RetryConfig) RetryPolicies {
	conv := func(name string, c config.RetryPolicyConfig) RetryPolicy {
		return RetryPolicy{Name: name, MaxRetries: c.MaxRetries, Delay: c.Delay}
	}
	return RetryPolicies{
		Auth:   conv("auth", cfg.Auth),
		Soft:   conv("soft", cfg.Soft),
		Verify: conv("verify", cfg.Verify),
		Tx:     conv("tx", cfg.Tx),
	}
}

// Retryable reports whether err may succeed on another attempt. Answers from
// the service and mined reverts are final; so is cancellation.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, api.ErrUnexpectedCode),
		errors.Is(err, api.ErrNoSessionToken),
		errors.Is(err, api.ErrNoData),
		errors.Is(err, chain.ErrReverted):
		return false
	}
	return true
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, clock core.Clock, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil || !Retryable(lastErr) || attempt == p.MaxRetries {
			return lastErr
		}

		if err := clock.Sleep(ctx, p.Delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// DoBool retries fn while it reports false.
func (p RetryPolicy) DoBool(ctx context.Context, clock core.Clock, fn func(context.Context) bool) bool {
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if fn(ctx) {
			return true
		}
		if attempt == p.MaxRetries || clock.Sleep(ctx, p.Delay) != nil {
			break
		}
	}
	return false
}
