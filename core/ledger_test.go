package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	addrA = common.HexToAddress("0xa1")
	addrB = common.HexToAddress("0xb2")
)

func TestLedgerCreditDebit(t *testing.T) {
	l := NewLedger()

	l.Credit(addrA, uint256.NewInt(100))
	if got := l.BalanceOf(addrA); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("balance: got %s, want 100", got)
	}
	if got := l.Total(); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("total: got %s, want 100", got)
	}

	if err := l.Debit(addrA, uint256.NewInt(40)); err != nil {
		t.Fatalf("Debit error: %v", err)
	}
	if got := l.BalanceOf(addrA); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("balance after debit: got %s, want 60", got)
	}
}

func TestLedgerOverdraft(t *testing.T) {
	l := NewLedger()
	l.Credit(addrA, uint256.NewInt(10))

	if err := l.Debit(addrA, uint256.NewInt(11)); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	// Funds never partially move on a failed debit.
	if got := l.BalanceOf(addrA); !got.Eq(uint256.NewInt(10)) {
		t.Errorf("balance after failed debit: got %s, want 10", got)
	}
}

func TestLedgerDebitAll(t *testing.T) {
	l := NewLedger()
	l.Credit(addrA, uint256.NewInt(25))

	got := l.DebitAll(addrA)
	if !got.Eq(uint256.NewInt(25)) {
		t.Errorf("DebitAll: got %s, want 25", got)
	}
	if !l.BalanceOf(addrA).IsZero() {
		t.Error("balance should be zero after DebitAll")
	}
	if !l.Total().IsZero() {
		t.Error("total should be zero after DebitAll")
	}
	if !l.DebitAll(addrA).IsZero() {
		t.Error("second DebitAll should return zero")
	}
}

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger()
	l.Credit(addrA, uint256.NewInt(50))

	if err := l.Transfer(addrA, addrB, uint256.NewInt(20)); err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	if got := l.BalanceOf(addrA); !got.Eq(uint256.NewInt(30)) {
		t.Errorf("from balance: got %s, want 30", got)
	}
	if got := l.BalanceOf(addrB); !got.Eq(uint256.NewInt(20)) {
		t.Errorf("to balance: got %s, want 20", got)
	}
	// Transfers do not change the custodied total.
	if got := l.Total(); !got.Eq(uint256.NewInt(50)) {
		t.Errorf("total: got %s, want 50", got)
	}

	if err := l.Transfer(addrA, addrB, uint256.NewInt(1000)); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestContextNormalize(t *testing.T) {
	ctx := Context{Caller: addrA}.Normalize()
	if ctx.Value == nil {
		t.Fatal("Normalize should set a non-nil value")
	}
	if !ctx.Value.IsZero() {
		t.Error("normalized value should be zero")
	}
}
