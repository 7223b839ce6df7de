package keyper

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cloakchain/cloakchain/core"
)

var owner = common.HexToAddress("0x0e0e")

func keyperAddr(i byte) common.Address {
	return common.BytesToAddress([]byte{0xaa, i})
}

func testShare(i byte) []byte {
	share := make([]byte, KeyShareSize)
	share[0] = i + 1
	return share
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Owner = owner
	cfg.MinStake = uint256.NewInt(1000)
	cfg.Threshold = 2
	r, err := NewRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return r
}

func register(t *testing.T, r *Registry, i byte, stake uint64) common.Address {
	t.Helper()
	addr := keyperAddr(i)
	ctx := core.Context{Caller: addr, Value: uint256.NewInt(stake), Height: 10}
	if err := r.RegisterKeyper(ctx, testShare(i), "tcp://10.0.0.1:9000"); err != nil {
		t.Fatalf("RegisterKeyper(%d) error: %v", i, err)
	}
	return addr
}

func TestRegisterKeyper(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 1500)

	k, ok := r.KeyperInfo(addr)
	if !ok {
		t.Fatal("keyper not found")
	}
	if !k.Active {
		t.Error("keyper should be active")
	}
	if k.RegisteredAt != 10 {
		t.Errorf("RegisteredAt: got %d, want 10", k.RegisteredAt)
	}
	if got := r.StakeOf(addr); !got.Eq(uint256.NewInt(1500)) {
		t.Errorf("stake: got %s, want 1500", got)
	}
	if got := r.TotalStaked(); !got.Eq(uint256.NewInt(1500)) {
		t.Errorf("totalStaked: got %s, want 1500", got)
	}
}

func TestRegisterKeyperValidation(t *testing.T) {
	r := newTestRegistry(t)

	lowStake := core.Context{Caller: keyperAddr(1), Value: uint256.NewInt(999)}
	if err := r.RegisterKeyper(lowStake, testShare(1), ""); err != ErrInsufficientStake {
		t.Errorf("expected ErrInsufficientStake, got %v", err)
	}

	badKey := core.Context{Caller: keyperAddr(1), Value: uint256.NewInt(1000)}
	if err := r.RegisterKeyper(badKey, make([]byte, KeyShareSize-1), ""); err != ErrInvalidPublicKey {
		t.Errorf("expected ErrInvalidPublicKey, got %v", err)
	}

	register(t, r, 1, 1000)
	dup := core.Context{Caller: keyperAddr(1), Value: uint256.NewInt(1000)}
	if err := r.RegisterKeyper(dup, testShare(1), ""); err != ErrKeyperAlreadyRegistered {
		t.Errorf("expected ErrKeyperAlreadyRegistered, got %v", err)
	}
}

func TestRegisterKeyperLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Owner = owner
	cfg.MinStake = uint256.NewInt(1)
	cfg.MaxKeypers = 2
	cfg.Threshold = 1
	r, err := NewRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	register(t, r, 1, 1)
	register(t, r, 2, 1)
	ctx := core.Context{Caller: keyperAddr(3), Value: uint256.NewInt(1)}
	if err := r.RegisterKeyper(ctx, testShare(3), ""); err != ErrTooManyKeypers {
		t.Errorf("expected ErrTooManyKeypers, got %v", err)
	}
}

func TestDeactivateKeyper(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 1500)

	// A stranger cannot deactivate someone else.
	stranger := core.Context{Caller: keyperAddr(9)}
	if err := r.DeactivateKeyper(stranger, addr, "x"); err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	self := core.Context{Caller: addr}
	if err := r.DeactivateKeyper(self, addr, "rotating out"); err != nil {
		t.Fatalf("DeactivateKeyper error: %v", err)
	}
	if r.ActiveKeyper(addr) {
		t.Error("keyper should be inactive")
	}
	// Inactive stake leaves the active total but stays custodied.
	if got := r.TotalStaked(); !got.IsZero() {
		t.Errorf("totalStaked after deactivation: got %s, want 0", got)
	}
	if got := r.StakeOf(addr); !got.Eq(uint256.NewInt(1500)) {
		t.Errorf("stake after deactivation: got %s, want 1500", got)
	}

	if err := r.DeactivateKeyper(self, addr, "again"); err != ErrKeyperNotActive {
		t.Errorf("expected ErrKeyperNotActive, got %v", err)
	}
	if err := r.DeactivateKeyper(core.Context{Caller: owner}, keyperAddr(5), "missing"); err != ErrKeyperNotRegistered {
		t.Errorf("expected ErrKeyperNotRegistered, got %v", err)
	}
}

func TestSlashKeyperCapsAtStake(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 2000)

	ownerCtx := core.Context{Caller: owner}
	if err := r.SlashKeyper(ownerCtx, addr, uint256.NewInt(5000), "double signing"); err != nil {
		t.Fatalf("SlashKeyper error: %v", err)
	}
	if got := r.StakeOf(addr); !got.IsZero() {
		t.Errorf("stake after full slash: got %s, want 0", got)
	}
	k, _ := r.KeyperInfo(addr)
	if k.Active {
		t.Error("fully slashed keyper must be inactive")
	}
	if k.SlashCount != 1 {
		t.Errorf("SlashCount: got %d, want 1", k.SlashCount)
	}
	if got := r.TotalStaked(); !got.IsZero() {
		t.Errorf("totalStaked: got %s, want 0", got)
	}
}

func TestSlashKeyperAutoDeactivateBelowMinimum(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 1500)

	ownerCtx := core.Context{Caller: owner}
	if err := r.SlashKeyper(ownerCtx, addr, uint256.NewInt(600), "missed dealing"); err != nil {
		t.Fatalf("SlashKeyper error: %v", err)
	}
	// 900 remaining < 1000 minimum: auto-deactivated.
	if r.ActiveKeyper(addr) {
		t.Error("keyper should auto-deactivate below minimum stake")
	}
	if got := r.StakeOf(addr); !got.Eq(uint256.NewInt(900)) {
		t.Errorf("stake: got %s, want 900", got)
	}
	if got := r.TotalStaked(); !got.IsZero() {
		t.Errorf("totalStaked: got %s, want 0", got)
	}
}

func TestSlashKeyperAuth(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 1500)

	if err := r.SlashKeyper(core.Context{Caller: addr}, addr, uint256.NewInt(1), "self"); err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestWithdrawStake(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 1500)
	self := core.Context{Caller: addr}

	// Active keypers cannot withdraw.
	if _, err := r.WithdrawStake(self); err != ErrStillActive {
		t.Errorf("expected ErrStillActive, got %v", err)
	}

	if err := r.DeactivateKeyper(self, addr, "leaving"); err != nil {
		t.Fatalf("DeactivateKeyper error: %v", err)
	}
	amount, err := r.WithdrawStake(self)
	if err != nil {
		t.Fatalf("WithdrawStake error: %v", err)
	}
	if !amount.Eq(uint256.NewInt(1500)) {
		t.Errorf("withdrawn: got %s, want 1500", amount)
	}
	if got := r.PayoutBalance(addr); !got.Eq(uint256.NewInt(1500)) {
		t.Errorf("payout balance: got %s, want 1500", got)
	}

	// The record is removed: withdrawal again fails, re-registration works.
	if _, err := r.WithdrawStake(self); err != ErrKeyperNotRegistered {
		t.Errorf("expected ErrKeyperNotRegistered, got %v", err)
	}
	register(t, r, 1, 1200)
}

func TestStakeActiveInvariant(t *testing.T) {
	r := newTestRegistry(t)
	a := register(t, r, 1, 1500)
	b := register(t, r, 2, 2500)
	c := register(t, r, 3, 3000)

	ownerCtx := core.Context{Caller: owner}
	if err := r.SlashKeyper(ownerCtx, b, uint256.NewInt(2500), "offline"); err != nil {
		t.Fatalf("SlashKeyper error: %v", err)
	}
	if err := r.DeactivateKeyper(core.Context{Caller: c}, c, "rotating"); err != nil {
		t.Fatalf("DeactivateKeyper error: %v", err)
	}

	// stake == 0 implies inactive.
	for _, addr := range []common.Address{a, b, c} {
		k, ok := r.KeyperInfo(addr)
		if !ok {
			t.Fatalf("keyper %s missing", addr.Hex())
		}
		if r.StakeOf(addr).IsZero() && k.Active {
			t.Errorf("keyper %s: zero stake but active", addr.Hex())
		}
	}

	// Sum of active stakes equals TotalStaked.
	sum := uint256.NewInt(0)
	for _, addr := range []common.Address{a, b, c} {
		if r.ActiveKeyper(addr) {
			sum.Add(sum, r.StakeOf(addr))
		}
	}
	if got := r.TotalStaked(); !got.Eq(sum) {
		t.Errorf("totalStaked: got %s, want %s", got, sum)
	}
}

func TestKeyShareOf(t *testing.T) {
	r := newTestRegistry(t)
	addr := register(t, r, 1, 1500)

	share, ok := r.KeyShareOf(addr)
	if !ok {
		t.Fatal("key share not found")
	}
	if len(share) != KeyShareSize {
		t.Errorf("share length: got %d, want %d", len(share), KeyShareSize)
	}
	if share[0] != 2 {
		t.Errorf("share content mismatch: got %d", share[0])
	}
	if _, ok := r.KeyShareOf(keyperAddr(9)); ok {
		t.Error("unknown keyper should have no share")
	}
}
