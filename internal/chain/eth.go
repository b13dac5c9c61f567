package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const defaultPollInterval = time.Second

// EthLedger implements Ledger over a JSON-RPC endpoint.
type EthLedger struct {
	client       *ethclient.Client
	chainID      *big.Int
	pollInterval time.Duration
	log          *zap.Logger
}

// EthOptions configures Dial.
type EthOptions struct {
	RPCURL       string
	ChainID      int64 // 0 = ask the node
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Dial connects to the RPC endpoint and resolves the chain ID.
func Dial(ctx context.Context, opts EthOptions) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.RPCURL, err)
	}

	chainID := big.NewInt(opts.ChainID)
	if opts.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("fetching chain id: %w", err)
		}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	log.Debug("connected to ledger", zap.String("rpc", opts.RPCURL), zap.String("chain_id", chainID.String()))
	return &EthLedger{client: client, chainID: chainID, pollInterval: poll, log: log}, nil
}

func (l *EthLedger) Close() {
	l.client.Close()
}

func (l *EthLedger) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return l.client.BalanceAt(ctx, owner, nil)
}

func (l *EthLedger) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := l.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return unpackBig("balanceOf", out)
}

func (l *EthLedger) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := l.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return unpackBig("allowance", out)
}

func (l *EthLedger) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := l.call(ctx, token, data)
	if err != nil {
		return 0, err
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decoding decimals: %w", err)
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("decoding decimals: expected 1 value, got %d", len(vals))
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decoding decimals: unexpected type %T", vals[0])
	}
	return d, nil
}

func (l *EthLedger) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return l.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Send signs a dynamic-fee transaction with the pending nonce of the key's
// address and submits it.
func (l *EthLedger) Send(ctx context.Context, key *ecdsa.PrivateKey, req TxRequest) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := l.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: req.TipCap,
		GasFeeCap: req.FeeCap,
		Gas:       req.Gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	l.log.Debug("transaction submitted",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("method", MethodName(req.Data)),
		zap.Uint64("nonce", nonce),
		zap.String("hash", signed.Hash().Hex()))
	return signed.Hash(), nil
}

// WaitReceipt polls for the receipt until it exists or ctx is done.
func (l *EthLedger) WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		r, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &Receipt{
				TxHash:      r.TxHash,
				Status:      r.Status,
				BlockNumber: r.BlockNumber.Uint64(),
				GasUsed:     r.GasUsed,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			l.log.Debug("receipt poll failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
