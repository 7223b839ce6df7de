package keyper

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloakchain/cloakchain/core"
	"github.com/cloakchain/cloakchain/events"
	"github.com/cloakchain/cloakchain/metrics"
)

// DKG errors.
var (
	ErrDKGAlreadyActive  = errors.New("keyper: dkg ceremony already running")
	ErrDKGNotActive      = errors.New("keyper: no dkg ceremony running")
	ErrWrongPhase        = errors.New("keyper: operation not valid in current dkg phase")
	ErrNotEnoughKeypers  = errors.New("keyper: not enough keypers")
	ErrAlreadyEnrolled   = errors.New("keyper: already enrolled in ceremony")
	ErrNotParticipant    = errors.New("keyper: not a ceremony participant")
	ErrDealingSubmitted  = errors.New("keyper: dealing already submitted")
	ErrNoEpochKey        = errors.New("keyper: no key for epoch")
	ErrKeyRevoked        = errors.New("keyper: epoch key revoked")
)

// StartDKG opens a ceremony for epoch+1. Owner-only. Requires at least
// threshold active keypers and no ceremony in flight.
func (r *Registry) StartDKG(ctx core.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Caller != r.cfg.Owner {
		return ErrNotOwner
	}
	if r.dkg.Phase != PhaseInactive {
		return ErrDKGAlreadyActive
	}
	if r.activeCount < r.cfg.Threshold {
		return ErrNotEnoughKeypers
	}

	r.dkg = DKGState{
		Epoch:    r.epoch + 1,
		Phase:    PhaseRegistration,
		Deadline: ctx.Height + r.cfg.RegistrationWindow,
		Dealings: make(map[common.Address]common.Hash),
	}

	metrics.Inc("dkg_started_total", nil)
	r.logger.Info("dkg started", "epoch", r.dkg.Epoch, "deadline", r.dkg.Deadline)
	r.publish(events.DKGStarted, struct {
		Epoch    uint64
		Deadline uint64
	}{r.dkg.Epoch, r.dkg.Deadline})
	return nil
}

// RegisterForDKG enrolls the calling keyper in the running ceremony. When
// enrollment reaches the threshold the ceremony advances to Dealing.
func (r *Registry) RegisterForDKG(ctx core.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keypers[ctx.Caller]
	if !ok || !k.Active {
		return ErrKeyperNotRegistered
	}
	if r.dkg.Phase != PhaseRegistration {
		return ErrWrongPhase
	}
	for _, p := range r.dkg.Participants {
		if p == ctx.Caller {
			return ErrAlreadyEnrolled
		}
	}

	r.dkg.Participants = append(r.dkg.Participants, ctx.Caller)
	if len(r.dkg.Participants) >= r.cfg.Threshold {
		r.dkg.Phase = PhaseDealing
		r.dkg.Deadline = ctx.Height + r.cfg.DealingWindow
		r.logger.Info("dkg advanced to dealing", "epoch", r.dkg.Epoch, "participants", len(r.dkg.Participants))
		r.publish(events.DKGAdvanced, struct {
			Epoch        uint64
			Phase        DKGPhase
			Participants int
		}{r.dkg.Epoch, PhaseDealing, len(r.dkg.Participants)})
	}
	return nil
}

// SubmitDealing records a participant's dealing hash, once per keyper.
func (r *Registry) SubmitDealing(ctx core.Context, dealingHash common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dkg.Phase != PhaseDealing {
		return ErrWrongPhase
	}
	participant := false
	for _, p := range r.dkg.Participants {
		if p == ctx.Caller {
			participant = true
			break
		}
	}
	if !participant {
		return ErrNotParticipant
	}
	if _, ok := r.dkg.Dealings[ctx.Caller]; ok {
		return ErrDealingSubmitted
	}

	r.dkg.Dealings[ctx.Caller] = dealingHash
	r.logger.Debug("dealing submitted", "epoch", r.dkg.Epoch, "from", ctx.Caller, "dealings", len(r.dkg.Dealings))
	return nil
}

// FinalizeDKG closes the ceremony, installing the aggregated key for the
// next epoch and advancing the epoch counter. Owner-only; requires at least
// threshold dealings. This is the only operation that increments the epoch.
func (r *Registry) FinalizeDKG(ctx core.Context, aggregatedPubKey []byte, keyCommitment common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Caller != r.cfg.Owner {
		return ErrNotOwner
	}
	if r.dkg.Phase != PhaseDealing {
		return ErrWrongPhase
	}
	if len(r.dkg.Dealings) < r.cfg.Threshold {
		return ErrNotEnoughKeypers
	}
	if len(aggregatedPubKey) != KeyShareSize {
		return ErrInvalidPublicKey
	}

	key := &ThresholdKey{
		Epoch:         r.dkg.Epoch,
		KeyCommitment: keyCommitment,
		Threshold:     r.cfg.Threshold,
	}
	copy(key.AggregatedPublicKey[:], aggregatedPubKey)
	r.keys[key.Epoch] = key
	r.epoch = key.Epoch
	r.dkg = DKGState{}

	metrics.Inc("dkg_finalized_total", nil)
	metrics.SetGauge("dkg_epoch", nil, int64(r.epoch))
	r.logger.Info("dkg finalized", "epoch", key.Epoch, "threshold", key.Threshold)
	r.publish(events.DKGFinalized, struct {
		Epoch         uint64
		KeyCommitment common.Hash
		Threshold     int
	}{key.Epoch, keyCommitment, key.Threshold})
	return nil
}

// AbortDKG resets the ceremony without producing a key. Owner-only; the
// usual reason is a missed phase deadline.
func (r *Registry) AbortDKG(ctx core.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Caller != r.cfg.Owner {
		return ErrNotOwner
	}
	if r.dkg.Phase == PhaseInactive {
		return ErrDKGNotActive
	}

	epoch := r.dkg.Epoch
	r.dkg = DKGState{}

	metrics.Inc("dkg_aborted_total", nil)
	r.logger.Warn("dkg aborted", "epoch", epoch, "reason", reason)
	r.publish(events.DKGAborted, struct {
		Epoch  uint64
		Reason string
	}{epoch, reason})
	return nil
}

// RevokeEpochKey marks an epoch key revoked. Owner-only. Revocation is the
// only mutation a finalized key admits.
func (r *Registry) RevokeEpochKey(ctx core.Context, epoch uint64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Caller != r.cfg.Owner {
		return ErrNotOwner
	}
	key, ok := r.keys[epoch]
	if !ok {
		return ErrNoEpochKey
	}
	key.Revoked = true

	r.logger.Warn("epoch key revoked", "epoch", epoch, "reason", reason)
	r.publish(events.KeyRevoked, struct {
		Epoch  uint64
		Reason string
	}{epoch, reason})
	return nil
}

// CurrentPublicKey returns the key for the current epoch. It fails with
// ErrKeyRevoked if that key has been revoked.
func (r *Registry) CurrentPublicKey() (ThresholdKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[r.epoch]
	if !ok {
		return ThresholdKey{}, ErrNoEpochKey
	}
	if key.Revoked {
		return ThresholdKey{}, ErrKeyRevoked
	}
	return *key, nil
}

// EpochKey returns the key for a specific epoch, revoked or not.
func (r *Registry) EpochKey(epoch uint64) (ThresholdKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[epoch]
	if !ok {
		return ThresholdKey{}, false
	}
	return *key, true
}

// Epoch returns the current epoch.
func (r *Registry) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// DKG returns a snapshot of the live ceremony state.
func (r *Registry) DKG() DKGState {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.dkg
	snap.Participants = append([]common.Address(nil), r.dkg.Participants...)
	snap.Dealings = make(map[common.Address]common.Hash, len(r.dkg.Dealings))
	for a, h := range r.dkg.Dealings {
		snap.Dealings[a] = h
	}
	return snap
}

// --- Epoch-key-validity oracle (consumed by the encrypted mempool) ---

// EpochKeyActive reports whether a non-revoked key exists for epoch.
func (r *Registry) EpochKeyActive(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[epoch]
	return ok && !key.Revoked
}

// EpochThreshold returns the decryption threshold of the epoch's key.
func (r *Registry) EpochThreshold(epoch uint64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[epoch]
	if !ok {
		return 0, ErrNoEpochKey
	}
	return key.Threshold, nil
}
