package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SentTx records a transaction submitted to a FakeLedger.
type SentTx struct {
	From   common.Address
	Method string
	Req    TxRequest
	Hash   common.Hash
}

// FakeLedger is an in-memory Ledger for tests. Approvals update allowances
// and wraps move native balance into the wrapped token once confirmed.
type FakeLedger struct {
	mu sync.Mutex

	native     map[common.Address]*big.Int
	tokens     map[common.Address]map[common.Address]*big.Int // token -> owner -> balance
	allowances map[[3]common.Address]*big.Int                 // token, owner, spender
	decimals   map[common.Address]uint8
	receipts   map[common.Hash]*Receipt
	pending    map[common.Hash]SentTx
	sent       []SentTx
	nonce      int64

	// WrappedNative, when set, receives deposit() value as token balance.
	WrappedNative common.Address
	// NativeBalanceErr fails every NativeBalance call.
	NativeBalanceErr error
	// AllowanceErr fails every Allowance call.
	AllowanceErr error
	// SendErr, when non-nil, is consulted before each submission.
	SendErr func(method string) error
	// Revert, when non-nil, marks the receipt of matching methods as failed.
	Revert func(method string) bool
	// Stall, when non-nil, makes matching methods never produce a receipt.
	Stall func(method string) bool
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		native:     make(map[common.Address]*big.Int),
		tokens:     make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[[3]common.Address]*big.Int),
		decimals:   make(map[common.Address]uint8),
		receipts:   make(map[common.Hash]*Receipt),
		pending:    make(map[common.Hash]SentTx),
	}
}

func (f *FakeLedger) SetNative(owner common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[owner] = new(big.Int).Set(v)
}

func (f *FakeLedger) SetToken(token, owner common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokens[token] == nil {
		f.tokens[token] = make(map[common.Address]*big.Int)
	}
	f.tokens[token][owner] = new(big.Int).Set(v)
}

func (f *FakeLedger) SetAllowance(token, owner, spender common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[[3]common.Address{token, owner, spender}] = new(big.Int).Set(v)
}

func (f *FakeLedger) SetDecimals(token common.Address, d uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimals[token] = d
}

// Sent returns every submitted transaction in order.
func (f *FakeLedger) Sent() []SentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentTx, len(f.sent))
	copy(out, f.sent)
	return out
}

// Count returns how many transactions invoked method.
func (f *FakeLedger) Count(method string) int {
	n := 0
	for _, tx := range f.Sent() {
		if tx.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeLedger) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	if f.NativeBalanceErr != nil {
		return nil, f.NativeBalanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return valueOrZero(f.native[owner]), nil
}

func (f *FakeLedger) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return valueOrZero(f.tokens[token][owner]), nil
}

func (f *FakeLedger) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if f.AllowanceErr != nil {
		return nil, f.AllowanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return valueOrZero(f.allowances[[3]common.Address{token, owner, spender}]), nil
}

func (f *FakeLedger) Decimals(_ context.Context, token common.Address) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.decimals[token]; ok {
		return d, nil
	}
	return 18, nil
}

func (f *FakeLedger) Send(_ context.Context, key *ecdsa.PrivateKey, req TxRequest) (common.Hash, error) {
	method := MethodName(req.Data)
	if f.SendErr != nil {
		if err := f.SendErr(method); err != nil {
			return common.Hash{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce++
	tx := SentTx{
		From:   crypto.PubkeyToAddress(key.PublicKey),
		Method: method,
		Req:    req,
		Hash:   common.BigToHash(big.NewInt(f.nonce)),
	}
	f.sent = append(f.sent, tx)
	f.pending[tx.Hash] = tx
	return tx.Hash, nil
}

func (f *FakeLedger) WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	f.mu.Lock()
	if r, ok := f.receipts[hash]; ok {
		f.mu.Unlock()
		return r, nil
	}
	tx, ok := f.pending[hash]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown transaction")
	}

	if f.Stall != nil && f.Stall(tx.Method) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r := &Receipt{TxHash: hash, Status: 1, BlockNumber: uint64(f.nonce)}
	if f.Revert != nil && f.Revert(tx.Method) {
		r.Status = 0
	} else {
		f.apply(tx)
	}
	delete(f.pending, hash)
	f.receipts[hash] = r
	return r, nil
}

// apply mutates balances for a mined transaction. Caller holds f.mu.
func (f *FakeLedger) apply(tx SentTx) {
	if tx.Req.Value != nil && tx.Req.Value.Sign() > 0 {
		bal := valueOrZero(f.native[tx.From])
		f.native[tx.From] = bal.Sub(bal, tx.Req.Value)
		if tx.Method == "deposit" && tx.Req.To == f.WrappedNative {
			if f.tokens[tx.Req.To] == nil {
				f.tokens[tx.Req.To] = make(map[common.Address]*big.Int)
			}
			tb := valueOrZero(f.tokens[tx.Req.To][tx.From])
			f.tokens[tx.Req.To][tx.From] = tb.Add(tb, tx.Req.Value)
		}
	}
	if tx.Method == "approve" {
		vals, err := erc20ABI.Methods["approve"].Inputs.Unpack(tx.Req.Data[4:])
		if err == nil && len(vals) == 2 {
			spender, _ := vals[0].(common.Address)
			amount, _ := vals[1].(*big.Int)
			if amount != nil {
				f.allowances[[3]common.Address{tx.Req.To, tx.From, spender}] = new(big.Int).Set(amount)
			}
		}
	}
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
