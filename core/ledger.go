package core

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger errors.
var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrZeroAmount          = errors.New("ledger: zero amount")
)

// Ledger is the single shared mutable value resource of the module. Each
// component owns one Ledger instance and records every stake, escrow refund
// and bond payout on it in the same mutation step as the authorizing status
// transition. Balances are withdrawable credits, not live transfers; the
// hosting chain settles them outside this core. Safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	total    *uint256.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*uint256.Int),
		total:    uint256.NewInt(0),
	}
}

// Credit adds amount to addr's balance.
func (l *Ledger) Credit(addr common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[addr]
	if !ok {
		bal = uint256.NewInt(0)
		l.balances[addr] = bal
	}
	bal.Add(bal, amount)
	l.total.Add(l.total, amount)
}

// Debit removes amount from addr's balance. The whole amount moves or none
// of it does.
func (l *Ledger) Debit(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[addr]
	if !ok || bal.Lt(amount) {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	l.total.Sub(l.total, amount)
	if bal.IsZero() {
		delete(l.balances, addr)
	}
	return nil
}

// DebitAll removes and returns addr's entire balance.
func (l *Ledger) DebitAll(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	delete(l.balances, addr)
	l.total.Sub(l.total, bal)
	return bal
}

// Transfer moves amount from one balance to another atomically.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, ok := l.balances[from]
	if !ok || fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	fromBal.Sub(fromBal, amount)
	if fromBal.IsZero() {
		delete(l.balances, from)
	}
	toBal, ok := l.balances[to]
	if !ok {
		toBal = uint256.NewInt(0)
		l.balances[to] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

// BalanceOf returns a copy of addr's balance.
func (l *Ledger) BalanceOf(addr common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bal)
}

// Total returns the sum of all balances held by the ledger.
func (l *Ledger) Total() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.total)
}
