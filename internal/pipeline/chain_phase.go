package pipeline

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"pharosbot/internal/api"
	"pharosbot/internal/chain"
	"pharosbot/internal/config"
	"pharosbot/internal/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const nativeDecimals = 18

// chainRun is the state of one account's chain phase.
type chainRun struct {
	p        *Pipeline
	em       *core.Emitter
	key      *ecdsa.PrivateKey
	owner    common.Address
	token    string
	decimals map[common.Address]uint8
}

// runChain performs the on-chain rounds. Only the balance gate read, a
// failed wrap, or cancellation return an error; every other failure is
// logged and the next round proceeds.
func (p *Pipeline) runChain(ctx context.Context, em *core.Emitter, key *ecdsa.PrivateKey, token string) error {
	r := &chainRun{
		p:        p,
		em:       em,
		key:      key,
		owner:    crypto.PubkeyToAddress(key.PublicKey),
		token:    token,
		decimals: make(map[common.Address]uint8),
	}

	gate := em.Step("balance")
	native, err := p.ledger.NativeBalance(ctx, r.owner)
	if err != nil {
		return fmt.Errorf("balance check failed: %w", err)
	}
	minBalance, err := chain.ParseUnits(p.cfg.MinNativeBalance, nativeDecimals)
	if err != nil {
		return fmt.Errorf("balance check failed: %w", err)
	}
	gate.Info("Native balance: %s", chain.FormatUnits(native, nativeDecimals))

	if native.Cmp(minBalance) >= 0 {
		if err := r.transferRounds(ctx); err != nil {
			return err
		}
		if err := r.wrapRounds(ctx); err != nil {
			return err
		}
	} else {
		gate.Warn("Insufficient native balance (%s < %s), skipping transfer and wrap rounds",
			chain.FormatUnits(native, nativeDecimals), p.cfg.MinNativeBalance)
	}

	if err := r.swapRounds(ctx); err != nil {
		return err
	}
	return r.liquidityRounds(ctx)
}

func (r *chainRun) transferRounds(ctx context.Context) error {
	cfg := r.p.cfg
	st := r.em.Step("transfer")
	amount, err := chain.ParseUnits(cfg.Amounts.Transfer, nativeDecimals)
	if err != nil {
		st.Warn("Skipping transfers: %v", err)
		return nil
	}

	total := cfg.Rounds.Transfer
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		to := r.randomAddress()
		st.Info("Transfer %d/%d: sending %s to %s", i, total, cfg.Amounts.Transfer, to.Hex())
		hash, err := r.submit(ctx, st, chain.TxRequest{To: to, Value: amount, Gas: cfg.Gas.Transfer})
		if err != nil {
			st.Warn("Transfer %d/%d failed: %v", i, total, err)
		} else {
			st.Success("Transfer %d/%d confirmed: %s", i, total, hash.Hex())
			r.verify(ctx, hash, cfg.TaskIDs.Transfer)
		}

		if err := r.pause(ctx, i, total, cfg.Delays.Transfer); err != nil {
			return err
		}
	}
	return nil
}

// wrapRounds deposits native balance into the wrapped token. A failed balance
// read or a failed wrap transaction aborts the chain phase.
func (r *chainRun) wrapRounds(ctx context.Context) error {
	cfg := r.p.cfg
	st := r.em.Step("wrap")
	wrapped := common.HexToAddress(cfg.Contracts.WrappedNative)

	lo, err := chain.ParseUnits(cfg.Amounts.WrapMin, nativeDecimals)
	if err != nil {
		return fmt.Errorf("wrap failed: %w", err)
	}
	hi, err := chain.ParseUnits(cfg.Amounts.WrapMax, nativeDecimals)
	if err != nil {
		return fmt.Errorf("wrap failed: %w", err)
	}
	data, err := chain.EncodeDeposit()
	if err != nil {
		return fmt.Errorf("wrap failed: %w", err)
	}

	total := cfg.Rounds.Wrap
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		amount := r.randomAmount(lo, hi)
		native, err := r.p.ledger.NativeBalance(ctx, r.owner)
		if err != nil {
			return fmt.Errorf("wrap failed: balance check: %w", err)
		}
		if native.Cmp(amount) < 0 {
			st.Warn("Insufficient balance for wrap (%s < %s)",
				chain.FormatUnits(native, nativeDecimals), chain.FormatUnits(amount, nativeDecimals))
			break
		}

		st.Info("Wrap %d/%d: wrapping %s", i, total, chain.FormatUnits(amount, nativeDecimals))
		hash, err := r.submit(ctx, st, chain.TxRequest{To: wrapped, Value: amount, Data: data, Gas: cfg.Gas.Wrap})
		if err != nil {
			return fmt.Errorf("wrap failed: %w", err)
		}
		st.Success("Wrap %d/%d confirmed: %s", i, total, hash.Hex())
		r.verify(ctx, hash, cfg.TaskIDs.Wrap)

		if err := r.pause(ctx, i, total, cfg.Delays.Wrap); err != nil {
			return err
		}
	}
	return nil
}

func (r *chainRun) swapRounds(ctx context.Context) error {
	cfg := r.p.cfg
	st := r.em.Step("swap")
	router := common.HexToAddress(cfg.Contracts.Router)

	total := cfg.Rounds.Swap
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tokens := append([]config.TokenConfig(nil), cfg.Tokens...)
		r.p.rng.Shuffle(len(tokens), func(a, b int) { tokens[a], tokens[b] = tokens[b], tokens[a] })

		swapped := false
		for _, src := range tokens {
			dst, ok := r.pickDestination(tokens, src)
			if !ok {
				continue
			}
			pool, direction, ok := swapRoute(cfg, src.Symbol, dst.Symbol)
			if !ok {
				continue
			}
			amount, ok := r.prepareSpend(ctx, st, src, cfg.Amounts.Swap, router)
			if !ok {
				continue
			}

			data, err := chain.EncodeMixSwap(chain.MixSwap{
				FromToken: common.HexToAddress(src.Address),
				ToToken:   common.HexToAddress(dst.Address),
				Amount:    amount,
				MinReturn: big.NewInt(1),
				Pool:      pool,
				Recipient: r.owner,
				Direction: direction,
				Deadline:  r.deadline(),
			})
			if err != nil {
				st.Warn("Swap %s -> %s failed: %v", src.Symbol, dst.Symbol, err)
				continue
			}

			st.Info("Swap %d/%d: %s %s -> %s", i, total, cfg.Amounts.Swap, src.Symbol, dst.Symbol)
			hash, err := r.submit(ctx, st, chain.TxRequest{To: router, Data: data, Gas: cfg.Gas.Swap})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				st.Warn("Swap %s -> %s failed: %v", src.Symbol, dst.Symbol, err)
				continue
			}
			st.Success("Swap %d/%d confirmed: %s", i, total, hash.Hex())
			r.verify(ctx, hash, cfg.TaskIDs.Swap)
			swapped = true
			break
		}
		if !swapped {
			st.Warn("No valid token/balance for swap or swap failed.")
		}

		if err := r.pause(ctx, i, total, cfg.Delays.Swap); err != nil {
			return err
		}
	}
	return nil
}

func (r *chainRun) liquidityRounds(ctx context.Context) error {
	cfg := r.p.cfg
	st := r.em.Step("liquidity")
	manager := common.HexToAddress(cfg.Contracts.PositionManager)

	total := cfg.Rounds.Liquidity
	if total > 0 && len(cfg.Pools) == 0 {
		st.Warn("No pools configured, skipping liquidity rounds")
		return nil
	}

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pool := cfg.Pools[r.p.rng.IntN(len(cfg.Pools))]
		if err := r.addLiquidity(ctx, st, pool, manager, i, total); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.Warn("Liquidity %d/%d skipped: %v", i, total, err)
		}

		if err := r.pause(ctx, i, total, cfg.Delays.Liquidity); err != nil {
			return err
		}
	}
	return nil
}

var errNotReady = errors.New("balance or allowance not ready")

func (r *chainRun) addLiquidity(ctx context.Context, st *core.Emitter, pool config.PoolConfig, manager common.Address, i, total int) error {
	cfg := r.p.cfg
	base, ok := cfg.Token(pool.Base)
	if !ok {
		return fmt.Errorf("unknown token %q", pool.Base)
	}
	quote, ok := cfg.Token(pool.Quote)
	if !ok {
		return fmt.Errorf("unknown token %q", pool.Quote)
	}

	baseAmount, ok := r.prepareSpend(ctx, st, base, cfg.Amounts.Liquidity, manager)
	if !ok {
		return fmt.Errorf("%s: %w", base.Symbol, errNotReady)
	}
	quoteAmount, ok := r.prepareSpend(ctx, st, quote, cfg.Amounts.Liquidity, manager)
	if !ok {
		return fmt.Errorf("%s: %w", quote.Symbol, errNotReady)
	}

	data, err := chain.EncodeAddLiquidity(chain.AddLiquidity{
		Pool:     common.HexToAddress(pool.Address),
		BaseIn:   baseAmount,
		QuoteIn:  quoteAmount,
		BaseMin:  big.NewInt(1),
		QuoteMin: big.NewInt(1),
		Deadline: r.deadline(),
	})
	if err != nil {
		return err
	}

	st.Info("Liquidity %d/%d: adding %s %s/%s", i, total, cfg.Amounts.Liquidity, base.Symbol, quote.Symbol)
	hash, err := r.submit(ctx, st, chain.TxRequest{To: manager, Data: data, Gas: cfg.Gas.Liquidity})
	if err != nil {
		return err
	}
	st.Success("Liquidity %d/%d confirmed: %s", i, total, hash.Hex())
	r.verify(ctx, hash, cfg.TaskIDs.Liquidity)
	return nil
}

// prepareSpend checks that owner holds amount of tok and that spender may
// move it, approving first if needed. It reports false when the round
// should skip this token.
func (r *chainRun) prepareSpend(ctx context.Context, st *core.Emitter, tok config.TokenConfig, amountStr string, spender common.Address) (*big.Int, bool) {
	addr := common.HexToAddress(tok.Address)
	amount, err := chain.ParseUnits(amountStr, r.tokenDecimals(ctx, addr))
	if err != nil {
		st.Warn("Invalid amount %q for %s: %v", amountStr, tok.Symbol, err)
		return nil, false
	}

	balance, err := r.p.ledger.TokenBalance(ctx, addr, r.owner)
	if err != nil {
		st.Warn("Balance check for %s failed: %v", tok.Symbol, err)
		return nil, false
	}
	if balance.Cmp(amount) < 0 {
		st.Info("Insufficient %s balance (%s < %s)", tok.Symbol,
			chain.FormatUnits(balance, r.tokenDecimals(ctx, addr)), amountStr)
		return nil, false
	}

	if !r.ensureAllowance(ctx, tok, addr, spender, amount) {
		return nil, false
	}
	return amount, true
}

// ensureAllowance submits a max approval when the current allowance is below
// amount and waits for it to be mined.
func (r *chainRun) ensureAllowance(ctx context.Context, tok config.TokenConfig, token, spender common.Address, amount *big.Int) bool {
	st := r.em.Step("approve")
	allowance, err := r.p.ledger.Allowance(ctx, token, r.owner, spender)
	if err != nil {
		st.Warn("Allowance check for %s failed: %v", tok.Symbol, err)
		return false
	}
	if allowance.Cmp(amount) >= 0 {
		return true
	}

	data, err := chain.EncodeApprove(spender, chain.MaxUint256)
	if err != nil {
		st.Warn("Approval of %s failed: %v", tok.Symbol, err)
		return false
	}
	st.Info("Approving %s for %s", tok.Symbol, spender.Hex())
	hash, err := r.submit(ctx, st, chain.TxRequest{To: token, Data: data, Gas: r.p.cfg.Gas.Approve})
	if err != nil {
		st.Warn("Approval of %s failed: %v", tok.Symbol, err)
		return false
	}
	st.Success("Approved %s: %s", tok.Symbol, hash.Hex())
	return true
}

// submit sends req with the configured fee caps and waits for a successful
// receipt within the receipt timeout.
func (r *chainRun) submit(ctx context.Context, st *core.Emitter, req chain.TxRequest) (common.Hash, error) {
	req.TipCap = new(big.Int).SetUint64(r.p.cfg.MaxPriorityFee)
	req.FeeCap = new(big.Int).SetUint64(r.p.cfg.MaxFee)

	var hash common.Hash
	err := r.p.retry.Tx.Do(ctx, r.p.clock, func(ctx context.Context) error {
		var err error
		hash, err = r.p.ledger.Send(ctx, r.key, req)
		return err
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("send failed: %w", err)
	}
	r.p.log.Debug("transaction sent",
		zap.String("address", r.owner.Hex()),
		zap.String("method", chain.MethodName(req.Data)),
		zap.String("hash", hash.Hex()))

	if _, err := chain.Confirm(ctx, r.p.ledger, hash, r.p.cfg.ReceiptTimeout); err != nil {
		return hash, err
	}
	return hash, nil
}

// verify reports a confirmed action to the service. The outcome is advisory.
func (r *chainRun) verify(ctx context.Context, hash common.Hash, taskID int) {
	st := r.em.Step("verify")
	req := api.VerificationRequest{
		Address:      r.em.Address(),
		SessionToken: r.token,
		TxHash:       hash.Hex(),
		TaskID:       taskID,
	}
	ok := r.p.retry.Verify.DoBool(ctx, r.p.clock, func(ctx context.Context) bool {
		return r.p.verifier.Verify(ctx, req)
	})
	if ok {
		st.Success("Task %d verified", taskID)
	} else {
		st.Warn("Task %d not verified for %s", taskID, hash.Hex())
	}
}

// pause sleeps between rounds; no delay follows the last round.
func (r *chainRun) pause(ctx context.Context, i, total int, d time.Duration) error {
	if i >= total {
		return nil
	}
	return r.p.clock.Sleep(ctx, d)
}

func (r *chainRun) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	if d, ok := r.decimals[token]; ok {
		return d
	}
	d, err := r.p.ledger.Decimals(ctx, token)
	if err != nil {
		r.p.log.Debug("decimals lookup failed, assuming 18", zap.String("token", token.Hex()), zap.Error(err))
		d = nativeDecimals
	}
	r.decimals[token] = d
	return d
}

func (r *chainRun) deadline() *big.Int {
	return big.NewInt(r.p.clock.Now().Add(r.p.cfg.DeadlineWindow).Unix())
}

func (r *chainRun) randomAddress() common.Address {
	var a common.Address
	for i := range a {
		a[i] = byte(r.p.rng.UintN(256))
	}
	return a
}

// randomAmount returns a value in [lo, hi).
func (r *chainRun) randomAmount(lo, hi *big.Int) *big.Int {
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() <= 0 || !span.IsInt64() {
		return new(big.Int).Set(lo)
	}
	return new(big.Int).Add(lo, big.NewInt(r.p.rng.Int64N(span.Int64())))
}

func (r *chainRun) pickDestination(tokens []config.TokenConfig, src config.TokenConfig) (config.TokenConfig, bool) {
	others := make([]config.TokenConfig, 0, len(tokens))
	for _, t := range tokens {
		if t.Symbol != src.Symbol {
			others = append(others, t)
		}
	}
	if len(others) == 0 {
		return config.TokenConfig{}, false
	}
	return others[r.p.rng.IntN(len(others))], true
}

// swapRoute finds a pool holding both tokens. Direction is 0 when selling the
// pool's base token and 1 when selling its quote token.
func swapRoute(cfg config.ChainConfig, src, dst string) (common.Address, uint64, bool) {
	for _, p := range cfg.Pools {
		switch {
		case p.Base == src && p.Quote == dst:
			return common.HexToAddress(p.Address), 0, true
		case p.Quote == src && p.Base == dst:
			return common.HexToAddress(p.Address), 1, true
		}
	}
	return common.Address{}, 0, false
}
