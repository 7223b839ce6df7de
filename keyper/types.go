// Package keyper implements the keyper registry: staked keyper identities,
// slashing, and the distributed key generation ceremony that produces one
// threshold key per epoch. The encrypted mempool consumes this package as
// its epoch-key-validity oracle.
package keyper

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cloakchain/cloakchain/crypto"
)

// KeyShareSize is the fixed length of a keyper's public key share.
const KeyShareSize = crypto.KeyShareSize

// Keyper is a registered threshold-key-share holder.
type Keyper struct {
	// Addr is the keyper's address, the registry key.
	Addr common.Address

	// PubKeyShare is the keyper's public key share (compressed G1).
	PubKeyShare [KeyShareSize]byte

	// Endpoint is the keyper's advertised network endpoint.
	Endpoint string

	// RegisteredAt is the height the keyper registered.
	RegisteredAt uint64

	// Active reports whether the keyper participates in ceremonies.
	// A keyper with zero stake is never active.
	Active bool

	// SlashCount is the number of slashes applied to this keyper.
	SlashCount uint64
}

// DKGPhase is the phase of the live DKG ceremony.
type DKGPhase uint8

const (
	// PhaseInactive means no ceremony is running.
	PhaseInactive DKGPhase = iota

	// PhaseRegistration means keypers may join the ceremony.
	PhaseRegistration

	// PhaseDealing means participants are submitting dealings.
	PhaseDealing
)

// String returns the phase name.
func (p DKGPhase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseRegistration:
		return "registration"
	case PhaseDealing:
		return "dealing"
	default:
		return "unknown"
	}
}

// DKGState is a snapshot of the single live ceremony. It resets on
// finalize or abort.
type DKGState struct {
	// Epoch is the epoch the ceremony will produce a key for (current+1).
	Epoch uint64

	// Phase is the current ceremony phase.
	Phase DKGPhase

	// Deadline is the height by which the current phase should complete.
	// Past the deadline the operator may abort; the machine itself never
	// advances on time alone.
	Deadline uint64

	// Participants lists keypers registered for the ceremony, join order.
	Participants []common.Address

	// Dealings maps each participant that has dealt to its dealing hash.
	Dealings map[common.Address]common.Hash
}

// ThresholdKey is an epoch-scoped aggregated public key. Immutable after
// finalization except for Revoked.
type ThresholdKey struct {
	// Epoch the key is authoritative for.
	Epoch uint64

	// AggregatedPublicKey is the ceremony's combined public key.
	AggregatedPublicKey [KeyShareSize]byte

	// KeyCommitment commits to the ceremony transcript.
	KeyCommitment common.Hash

	// Threshold is the number of cooperating keypers required to decrypt.
	Threshold int

	// Revoked marks the key unusable for new submissions.
	Revoked bool
}

// Config controls the registry.
type Config struct {
	// Owner is the privileged operator address.
	Owner common.Address

	// MinStake is the minimum stake to register and stay active.
	MinStake *uint256.Int

	// MaxKeypers bounds the number of simultaneously active keypers.
	MaxKeypers int

	// Threshold is the t of the t-of-n scheme for new epoch keys.
	Threshold int

	// RegistrationWindow is the DKG registration phase length in heights.
	RegistrationWindow uint64

	// DealingWindow is the DKG dealing phase length in heights.
	DealingWindow uint64
}

// DefaultConfig returns a Config with working defaults for tests and local
// deployments. Owner must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		MinStake:           uint256.NewInt(1_000_000_000_000_000_000), // 1e18
		MaxKeypers:         200,
		Threshold:          3,
		RegistrationWindow: 100,
		DealingWindow:      200,
	}
}
