package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pharosbot/internal/api"
	"pharosbot/internal/chain"
	"pharosbot/internal/config"
	"pharosbot/internal/core"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRetryPolicy_ZeroValueRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), core.NewFakeClock(t0), func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})

	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_RetriesTransient(t *testing.T) {
	clock := core.NewFakeClock(t0)
	calls := 0
	err := RetryPolicy{MaxRetries: 3, Delay: time.Second}.Do(context.Background(), clock, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2*time.Second, clock.Slept())
}

func TestRetryPolicy_StopsOnPermanent(t *testing.T) {
	permanent := []error{
		&api.ResponseError{Code: 1, Msg: "already signed"},
		api.ErrNoSessionToken,
		fmt.Errorf("wrap: %w", chain.ErrReverted),
		context.Canceled,
	}
	for _, perm := range permanent {
		calls := 0
		err := RetryPolicy{MaxRetries: 5}.Do(context.Background(), core.NewFakeClock(t0), func(context.Context) error {
			calls++
			return perm
		})
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, calls, "%v must not be retried", perm)
	}
}

func TestRetryPolicy_BudgetExhausted(t *testing.T) {
	calls := 0
	err := RetryPolicy{MaxRetries: 2}.Do(context.Background(), core.NewFakeClock(t0), func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d", calls)
	})

	assert.EqualError(t, err, "attempt 3")
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryPolicy{MaxRetries: 2}.Do(ctx, core.NewFakeClock(t0), func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryPolicy_DoBool(t *testing.T) {
	clock := core.NewFakeClock(t0)
	calls := 0
	ok := RetryPolicy{MaxRetries: 2, Delay: time.Second}.DoBool(context.Background(), clock, func(context.Context) bool {
		calls++
		return calls == 2
	})
	assert.True(t, ok)
	assert.Equal(t, 2, calls)

	calls = 0
	ok = RetryPolicy{}.DoBool(context.Background(), clock, func(context.Context) bool {
		calls++
		return false
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(errors.New("dial tcp: connection refused")))
	assert.True(t, Retryable(chain.ErrConfirmationTimeout))
	assert.False(t, Retryable(api.ErrNoData))
}

func TestPoliciesFromConfig(t *testing.T) {
	p := PoliciesFromConfig(config.RetryConfig{
		Soft:   config.RetryPolicyConfig{MaxRetries: 2, Delay: time.Second},
		Verify: config.RetryPolicyConfig{MaxRetries: 1},
	})

	assert.Equal(t, RetryPolicy{Name: "soft", MaxRetries: 2, Delay: time.Second}, p.Soft)
	assert.Equal(t, RetryPolicy{Name: "verify", MaxRetries: 1}, p.Verify)
	assert.Equal(t, 0, p.Auth.MaxRetries)
	assert.Equal(t, 0, p.Tx.MaxRetries)
}
