package keyper

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cloakchain/cloakchain/core"
	"github.com/cloakchain/cloakchain/events"
	"github.com/cloakchain/cloakchain/log"
	"github.com/cloakchain/cloakchain/metrics"
)

// Registry errors.
var (
	ErrInsufficientStake       = errors.New("keyper: insufficient stake")
	ErrInvalidPublicKey        = errors.New("keyper: invalid public key share")
	ErrKeyperAlreadyRegistered = errors.New("keyper: already registered")
	ErrTooManyKeypers          = errors.New("keyper: active keyper limit reached")
	ErrKeyperNotRegistered     = errors.New("keyper: not registered")
	ErrKeyperNotActive         = errors.New("keyper: not active")
	ErrStillActive             = errors.New("keyper: deactivate before withdrawing")
	ErrNoStake                 = errors.New("keyper: no stake to withdraw")
	ErrNotOwner                = errors.New("keyper: caller is not the owner")
	ErrInvalidThreshold        = errors.New("keyper: threshold must be >= 1")
)

// Registry holds keyper identities and stakes and runs the DKG ceremony.
// All public operations are atomic: they take the registry mutex for their
// whole body and either commit every mutation or none.
type Registry struct {
	mu  sync.Mutex
	cfg Config

	keypers     map[common.Address]*Keyper
	activeCount int

	// stakes custodies registered stake per keyper; payouts accumulates
	// withdrawable credits released by WithdrawStake.
	stakes  *core.Ledger
	payouts *core.Ledger

	// totalStaked tracks the sum of active keypers' stakes.
	totalStaked *uint256.Int

	// epoch is the current epoch; it advances only on DKG finalization.
	epoch uint64
	keys  map[uint64]*ThresholdKey
	dkg   DKGState

	feed   *events.Feed
	logger *log.Logger
}

// NewRegistry creates a registry with the given config. The events feed may
// be nil, in which case no events are published.
func NewRegistry(cfg Config, feed *events.Feed) (*Registry, error) {
	if cfg.Threshold < 1 {
		return nil, ErrInvalidThreshold
	}
	if cfg.MinStake == nil {
		cfg.MinStake = DefaultConfig().MinStake
	}
	if cfg.MaxKeypers <= 0 {
		cfg.MaxKeypers = DefaultConfig().MaxKeypers
	}
	return &Registry{
		cfg:         cfg,
		keypers:     make(map[common.Address]*Keyper),
		stakes:      core.NewLedger(),
		payouts:     core.NewLedger(),
		totalStaked: uint256.NewInt(0),
		keys:        make(map[uint64]*ThresholdKey),
		feed:        feed,
		logger:      log.Default().Module("keyper"),
	}, nil
}

func (r *Registry) publish(t events.Type, data interface{}) {
	if r.feed != nil {
		r.feed.Publish(t, data)
	}
}

// RegisterKeyper registers the caller as a keyper, escrowing ctx.Value as
// stake. The key share must be exactly KeyShareSize bytes.
func (r *Registry) RegisterKeyper(ctx core.Context, pubKeyShare []byte, endpoint string) error {
	ctx = ctx.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Value.Lt(r.cfg.MinStake) {
		return ErrInsufficientStake
	}
	if len(pubKeyShare) != KeyShareSize {
		return ErrInvalidPublicKey
	}
	if _, ok := r.keypers[ctx.Caller]; ok {
		return ErrKeyperAlreadyRegistered
	}
	if r.activeCount >= r.cfg.MaxKeypers {
		return ErrTooManyKeypers
	}

	k := &Keyper{
		Addr:         ctx.Caller,
		Endpoint:     endpoint,
		RegisteredAt: ctx.Height,
		Active:       true,
	}
	copy(k.PubKeyShare[:], pubKeyShare)
	r.keypers[ctx.Caller] = k
	r.activeCount++

	r.stakes.Credit(ctx.Caller, ctx.Value)
	r.totalStaked.Add(r.totalStaked, ctx.Value)

	metrics.Inc("keyper_registered_total", nil)
	metrics.SetGauge("keyper_active", nil, int64(r.activeCount))
	r.logger.Info("keyper registered", "addr", ctx.Caller, "stake", ctx.Value.String(), "endpoint", endpoint)
	r.publish(events.KeyperRegistered, struct {
		Addr     common.Address
		Stake    *uint256.Int
		Endpoint string
		Height   uint64
	}{ctx.Caller, new(uint256.Int).Set(ctx.Value), endpoint, ctx.Height})
	return nil
}

// DeactivateKeyper deactivates a keyper. Callable by the keyper itself or
// the owner. The stake stays custodied until WithdrawStake.
func (r *Registry) DeactivateKeyper(ctx core.Context, keyper common.Address, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Caller != keyper && ctx.Caller != r.cfg.Owner {
		return ErrNotOwner
	}
	k, ok := r.keypers[keyper]
	if !ok {
		return ErrKeyperNotRegistered
	}
	if !k.Active {
		return ErrKeyperNotActive
	}

	r.deactivateLocked(k)
	r.logger.Info("keyper deactivated", "addr", keyper, "reason", reason)
	r.publish(events.KeyperDeactivated, struct {
		Addr   common.Address
		Reason string
	}{keyper, reason})
	return nil
}

// deactivateLocked flips a keyper inactive and removes its stake from the
// active total. Caller holds the mutex.
func (r *Registry) deactivateLocked(k *Keyper) {
	k.Active = false
	r.activeCount--
	r.totalStaked.Sub(r.totalStaked, r.stakes.BalanceOf(k.Addr))
	metrics.SetGauge("keyper_active", nil, int64(r.activeCount))
}

// SlashKeyper burns up to amount of a keyper's stake. Owner-only. The
// slashed amount is capped at the remaining stake; if the remainder falls
// below the minimum the keyper is deactivated in the same step.
func (r *Registry) SlashKeyper(ctx core.Context, keyper common.Address, amount *uint256.Int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Caller != r.cfg.Owner {
		return ErrNotOwner
	}
	k, ok := r.keypers[keyper]
	if !ok {
		return ErrKeyperNotRegistered
	}
	if amount == nil {
		amount = uint256.NewInt(0)
	}

	stake := r.stakes.BalanceOf(keyper)
	slashed := new(uint256.Int).Set(amount)
	if slashed.Gt(stake) {
		slashed.Set(stake)
	}
	if !slashed.IsZero() {
		if err := r.stakes.Debit(keyper, slashed); err != nil {
			return err
		}
		if k.Active {
			r.totalStaked.Sub(r.totalStaked, slashed)
		}
	}
	k.SlashCount++

	remaining := r.stakes.BalanceOf(keyper)
	if k.Active && remaining.Lt(r.cfg.MinStake) {
		r.deactivateLocked(k)
	}

	metrics.Inc("keyper_slashed_total", nil)
	r.logger.Warn("keyper slashed", "addr", keyper, "amount", slashed.String(), "reason", reason, "active", k.Active)
	r.publish(events.KeyperSlashed, struct {
		Addr      common.Address
		Amount    *uint256.Int
		Remaining *uint256.Int
		Reason    string
	}{keyper, slashed, remaining, reason})
	return nil
}

// WithdrawStake removes the caller's registry record and releases its full
// stake as a withdrawable credit. The caller must already be deactivated.
func (r *Registry) WithdrawStake(ctx core.Context) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keypers[ctx.Caller]
	if !ok {
		return nil, ErrKeyperNotRegistered
	}
	if k.Active {
		return nil, ErrStillActive
	}
	stake := r.stakes.DebitAll(ctx.Caller)
	if stake.IsZero() {
		return nil, ErrNoStake
	}
	delete(r.keypers, ctx.Caller)
	r.payouts.Credit(ctx.Caller, stake)

	r.logger.Info("stake withdrawn", "addr", ctx.Caller, "amount", stake.String())
	r.publish(events.StakeWithdrawn, struct {
		Addr   common.Address
		Amount *uint256.Int
	}{ctx.Caller, new(uint256.Int).Set(stake)})
	return new(uint256.Int).Set(stake), nil
}

// --- Accessors ---

// KeyperInfo returns a copy of the keyper record.
func (r *Registry) KeyperInfo(addr common.Address) (Keyper, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keypers[addr]
	if !ok {
		return Keyper{}, false
	}
	return *k, true
}

// StakeOf returns a keyper's custodied stake.
func (r *Registry) StakeOf(addr common.Address) *uint256.Int {
	return r.stakes.BalanceOf(addr)
}

// PayoutBalance returns the withdrawable credit released to addr.
func (r *Registry) PayoutBalance(addr common.Address) *uint256.Int {
	return r.payouts.BalanceOf(addr)
}

// TotalStaked returns the sum of active keypers' stakes.
func (r *Registry) TotalStaked() *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(uint256.Int).Set(r.totalStaked)
}

// ActiveCount returns the number of active keypers.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCount
}

// ActiveKeyper reports whether addr is a registered, active keyper.
func (r *Registry) ActiveKeyper(addr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keypers[addr]
	return ok && k.Active
}

// KeyShareOf returns a registered keyper's public key share. Used by the
// BLS attestation backend.
func (r *Registry) KeyShareOf(addr common.Address) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keypers[addr]
	if !ok {
		return nil, false
	}
	share := make([]byte, KeyShareSize)
	copy(share, k.PubKeyShare[:])
	return share, true
}
