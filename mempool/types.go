// Package mempool implements the encrypted-transaction lifecycle: payloads
// are submitted encrypted against an epoch key, ordered by the sequencer,
// revealed by a threshold decryption attestation, and finally executed.
// Contents stay hidden until ordering is fixed; the pool never inspects
// ciphertexts, only commitments and attestations.
package mempool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TxStatus is the lifecycle state of an encrypted transaction. Transitions
// are strictly forward: Pending -> {Expired, Ordered} -> Decrypted ->
// {Executed, Failed}. Expired, Executed and Failed are terminal.
type TxStatus uint8

const (
	// StatusPending means submitted and awaiting ordering.
	StatusPending TxStatus = iota

	// StatusOrdered means the sequencer fixed the transaction's position.
	StatusOrdered

	// StatusDecrypted means a threshold attestation revealed the call.
	StatusDecrypted

	// StatusExecuted means the revealed call ran and succeeded.
	StatusExecuted

	// StatusFailed means the revealed call ran and reverted.
	StatusFailed

	// StatusExpired means the transaction was cancelled or timed out
	// before ordering; escrow was refunded.
	StatusExpired
)

// String returns the status name.
func (s TxStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOrdered:
		return "ordered"
	case StatusDecrypted:
		return "decrypted"
	case StatusExecuted:
		return "executed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transition.
func (s TxStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusExpired
}

// EncryptedTx is a submitted encrypted transaction. The payload itself is
// not retained; only its hash is needed to bind the later disclosure.
type EncryptedTx struct {
	// ID is keccak(sender || payloadHash || epoch || senderNonce); the
	// per-sender nonce guarantees uniqueness across identical
	// resubmissions within one block.
	ID common.Hash

	// Sender submitted the transaction and receives refunds.
	Sender common.Address

	// PayloadHash is keccak256 of the encrypted payload.
	PayloadHash common.Hash

	// Epoch is the threshold key epoch the payload was encrypted against.
	Epoch uint64

	// GasLimit bounds the eventual inner call.
	GasLimit uint64

	// MaxFeePerGas prices the escrowed execution fee.
	MaxFeePerGas uint64

	// Escrow is GasLimit*MaxFeePerGas, held until a terminal state.
	Escrow *uint256.Int

	// ValueDeposit is the submitted value in excess of the escrow,
	// available to the revealed call.
	ValueDeposit *uint256.Int

	// SubmitHeight is the height of submission; expiry counts from here.
	SubmitHeight uint64

	// Status is the lifecycle state.
	Status TxStatus

	// OrderPosition is the index assigned by the ordering commitment.
	// Meaningful once Status >= StatusOrdered.
	OrderPosition uint64
}

// DecryptedTx is the revealed call of an ordered transaction. Created when
// a decryption attestation verifies; mutated exactly once by execution.
type DecryptedTx struct {
	// To is the revealed call target.
	To common.Address

	// Data is the revealed calldata.
	Data []byte

	// Value is the revealed call value, bounded by the value deposit.
	Value *uint256.Int

	// Executed flips when execution has been claimed; it guards the
	// exactly-once execution of the inner call.
	Executed bool

	// Success records the inner call's outcome.
	Success bool

	// ReturnData is the inner call's return or revert data.
	ReturnData []byte
}

// Config controls the pool.
type Config struct {
	// MaxPayloadSize bounds encrypted payload bytes.
	MaxPayloadSize int

	// MinGasLimit and MaxGasLimit bound the inner call gas limit.
	MinGasLimit uint64
	MaxGasLimit uint64

	// ExpiryBlocks is how many blocks after submission a still-Pending
	// transaction becomes expirable.
	ExpiryBlocks uint64

	// FeeRecipient receives consumed execution fees.
	FeeRecipient common.Address
}

// DefaultConfig returns a Config with protocol defaults.
func DefaultConfig() Config {
	return Config{
		MaxPayloadSize: 65536,
		MinGasLimit:    21000,
		MaxGasLimit:    30_000_000,
		ExpiryBlocks:   256,
	}
}

// KeyperSource is the epoch-key-validity oracle the pool consumes,
// implemented by the keyper registry.
type KeyperSource interface {
	// EpochKeyActive reports whether a non-revoked key exists for epoch.
	EpochKeyActive(epoch uint64) bool

	// EpochThreshold returns the decryption threshold for epoch's key.
	EpochThreshold(epoch uint64) (int, error)

	// ActiveKeyper reports whether addr is a registered, active keyper.
	ActiveKeyper(addr common.Address) bool
}
