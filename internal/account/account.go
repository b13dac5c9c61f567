// Package account adapts the external account store: an address plus a
// capability that produces its signing key on demand.
package account

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrAddressMismatch means a key does not belong to the declared address.
	ErrAddressMismatch = errors.New("private key does not match address")
	// ErrAccountNotFound means a filtered store has no matching account.
	ErrAccountNotFound = errors.New("account not found")
)

// KeyFunc produces the signing key for an account.
type KeyFunc func() (*ecdsa.PrivateKey, error)

// Account is immutable once loaded for a run.
type Account struct {
	Name    string
	Address string
	key     KeyFunc
}

// New builds an account whose key is produced by fn.
func New(name, address string, fn KeyFunc) Account {
	return Account{Name: name, Address: address, key: fn}
}

// FromPrivateKey builds an account from an in-memory key.
func FromPrivateKey(name string, key *ecdsa.PrivateKey) Account {
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return New(name, addr, func() (*ecdsa.PrivateKey, error) { return key, nil })
}

// PrivateKey produces the signing key and checks it against Address.
func (a Account) PrivateKey() (*ecdsa.PrivateKey, error) {
	if a.key == nil {
		return nil, errors.New("no signing key available")
	}
	key, err := a.key()
	if err != nil {
		return nil, err
	}
	derived := crypto.PubkeyToAddress(key.PublicKey)
	if a.Address != "" && !strings.EqualFold(derived.Hex(), a.Address) {
		return nil, fmt.Errorf("%w: %s", ErrAddressMismatch, a.Address)
	}
	return key, nil
}

// CommonAddress returns the address in ledger form.
func (a Account) CommonAddress() common.Address {
	return common.HexToAddress(a.Address)
}

// ParseHexKey decodes a hex private key with or without 0x prefix.
func ParseHexKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// SignMessage produces an EIP-191 personal signature of msg, hex encoded with
// a 0x prefix and a recovery id of 27 or 28.
func SignMessage(key *ecdsa.PrivateKey, msg []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Store supplies the accounts for a run.
type Store interface {
	List(ctx context.Context) ([]Account, error)
}

// StaticStore serves a fixed list of accounts.
type StaticStore []Account

func (s StaticStore) List(context.Context) ([]Account, error) {
	out := make([]Account, len(s))
	copy(out, s)
	return out, nil
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context) ([]Account, error)

func (f StoreFunc) List(ctx context.Context) ([]Account, error) { return f(ctx) }

// Filter returns a store that only yields the account with the given address.
func Filter(s Store, address string) Store {
	return StoreFunc(func(ctx context.Context) ([]Account, error) {
		all, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range all {
			if strings.EqualFold(a.Address, address) {
				return []Account{a}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	})
}
