package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func sendDeposit(t *testing.T, l *FakeLedger) common.Hash {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := EncodeDeposit()
	h, err := l.Send(context.Background(), key, TxRequest{Data: data, Value: big.NewInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestConfirm_Success(t *testing.T) {
	l := NewFakeLedger()
	h := sendDeposit(t, l)

	r, err := Confirm(context.Background(), l, h, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Succeeded() {
		t.Error("expected successful receipt")
	}
}

func TestConfirm_Reverted(t *testing.T) {
	l := NewFakeLedger()
	l.Revert = func(method string) bool { return method == "deposit" }
	h := sendDeposit(t, l)

	_, err := Confirm(context.Background(), l, h, time.Second)
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
	if errors.Is(err, ErrConfirmationTimeout) {
		t.Error("a revert must not be classified as a timeout")
	}
}

func TestConfirm_Timeout(t *testing.T) {
	l := NewFakeLedger()
	l.Stall = func(string) bool { return true }
	h := sendDeposit(t, l)

	_, err := Confirm(context.Background(), l, h, 20*time.Millisecond)
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}
}

func TestConfirm_ParentCancelIsNotATimeout(t *testing.T) {
	l := NewFakeLedger()
	l.Stall = func(string) bool { return true }
	h := sendDeposit(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Confirm(ctx, l, h, time.Second)
	if errors.Is(err, ErrConfirmationTimeout) {
		t.Fatal("cancellation must not be reported as a confirmation timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFakeLedger_ApproveUpdatesAllowance(t *testing.T) {
	l := NewFakeLedger()
	key, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(key.PublicKey)
	token := common.Address{1}
	spender := common.Address{2}

	data, _ := EncodeApprove(spender, MaxUint256)
	h, err := l.Send(context.Background(), key, TxRequest{To: token, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Confirm(context.Background(), l, h, time.Second); err != nil {
		t.Fatal(err)
	}

	got, _ := l.Allowance(context.Background(), token, owner, spender)
	if got.Cmp(MaxUint256) != 0 {
		t.Errorf("expected max allowance, got %s", got)
	}
	if l.Count("approve") != 1 {
		t.Errorf("expected 1 approve, got %d", l.Count("approve"))
	}
}
