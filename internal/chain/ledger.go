// Package chain wraps the ledger operations the task rounds need: balance and
// allowance reads, signed transaction submission, and bounded receipt waits.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrReverted means the transaction was mined but execution failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrConfirmationTimeout means no receipt arrived within the wait bound.
	// The transaction may still be mined later.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// TxRequest describes a transaction to sign and submit.
type TxRequest struct {
	To     common.Address
	Value  *big.Int
	Data   []byte
	Gas    uint64
	TipCap *big.Int
	FeeCap *big.Int
}

// Receipt is the subset of a transaction receipt the rounds use.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

func (r *Receipt) Succeeded() bool { return r != nil && r.Status == 1 }

// Ledger is the ledger client used by the chain phase.
type Ledger interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	// Send signs req with key and submits it, returning the transaction hash.
	Send(ctx context.Context, key *ecdsa.PrivateKey, req TxRequest) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined or ctx is done.
	WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Confirm waits up to timeout for the receipt of hash and classifies the
// outcome: ErrConfirmationTimeout when the bound elapses, ErrReverted when
// the receipt reports failure. A timeout <= 0 waits until ctx is done.
func Confirm(ctx context.Context, l Ledger, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r, err := l.WaitReceipt(waitCtx, hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s waiting for %s", ErrConfirmationTimeout, timeout, hash.Hex())
		}
		return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), err)
	}
	if !r.Succeeded() {
		return r, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	return r, nil
}
