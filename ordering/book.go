// Package ordering records signed sequencer ordering commitments and
// verifies Merkle position proofs against them. A commitment fixes the
// transaction sequence of one batch; position proofs let anyone check that
// a transaction sits at a claimed index without replaying the batch.
package ordering

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloakchain/cloakchain/core"
	"github.com/cloakchain/cloakchain/crypto"
	"github.com/cloakchain/cloakchain/events"
	"github.com/cloakchain/cloakchain/log"
	"github.com/cloakchain/cloakchain/metrics"
)

// Ordering errors.
var (
	ErrNotAuthorizedSequencer = errors.New("ordering: caller is not an authorized sequencer")
	ErrBadSignature           = errors.New("ordering: signature does not recover to an authorized sequencer")
	ErrDuplicateBlockRef      = errors.New("ordering: commitment already exists for block")
	ErrEmptyRoot              = errors.New("ordering: empty ordering root")
	ErrZeroTxCount            = errors.New("ordering: tx count must be > 0")
)

// Commitment is a recorded ordering attestation. Append-only: one per
// block reference, never mutated except for the verification counter.
type Commitment struct {
	// BlockRef identifies the batch/block the ordering belongs to.
	BlockRef common.Hash

	// OrderingRoot is the Merkle root over position-bound tx leaves.
	OrderingRoot common.Hash

	// TxCount is the number of transactions under the root.
	TxCount uint64

	// Sequencer is the recovered signer of the commitment.
	Sequencer common.Address

	// Timestamp is the ledger time the commitment was recorded.
	Timestamp uint64

	// Verifications counts successful recorded position checks.
	Verifications uint64
}

// Book stores ordering commitments. All methods are safe for concurrent
// use; each mutating operation commits atomically under the book mutex.
type Book struct {
	mu          sync.Mutex
	commitments map[common.Hash]*Commitment

	sequencers core.SequencerSet
	feed       *events.Feed
	logger     *log.Logger
}

// NewBook creates an empty commitment book.
func NewBook(sequencers core.SequencerSet, feed *events.Feed) *Book {
	return &Book{
		commitments: make(map[common.Hash]*Commitment),
		sequencers:  sequencers,
		feed:        feed,
		logger:      log.Default().Module("ordering"),
	}
}

func (b *Book) publish(t events.Type, data interface{}) {
	if b.feed != nil {
		b.feed.Publish(t, data)
	}
}

// CommitOrdering records a signed ordering commitment for blockRef. The
// signature must recover, over the domain-separated ordering digest, to an
// authorized sequencer. Duplicate block references are rejected.
func (b *Book) CommitOrdering(ctx core.Context, blockRef, orderingRoot common.Hash, txCount uint64, sig []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.sequencers.Authorized(ctx.Caller) {
		return ErrNotAuthorizedSequencer
	}
	if orderingRoot == (common.Hash{}) {
		return ErrEmptyRoot
	}
	if txCount == 0 {
		return ErrZeroTxCount
	}

	digest := crypto.OrderingDigest(blockRef, orderingRoot, txCount)
	signer, err := crypto.RecoverSigner(digest, sig)
	if err != nil {
		return ErrBadSignature
	}
	if !b.sequencers.Authorized(signer) {
		return ErrBadSignature
	}
	if _, ok := b.commitments[blockRef]; ok {
		return ErrDuplicateBlockRef
	}

	b.commitments[blockRef] = &Commitment{
		BlockRef:     blockRef,
		OrderingRoot: orderingRoot,
		TxCount:      txCount,
		Sequencer:    signer,
		Timestamp:    ctx.Time,
	}

	metrics.Inc("ordering_committed_total", nil)
	b.logger.Info("ordering committed", "block", blockRef, "root", orderingRoot, "txCount", txCount, "sequencer", signer)
	b.publish(events.OrderingCommitted, struct {
		BlockRef     common.Hash
		OrderingRoot common.Hash
		TxCount      uint64
		Sequencer    common.Address
	}{blockRef, orderingRoot, txCount, signer})
	return nil
}

// VerifyTxPosition checks that txHash sits at position under blockRef's
// ordering root. It answers false for an unknown blockRef or a failing
// proof; it never errors, because a failed check is an answer.
func (b *Book) VerifyTxPosition(blockRef, txHash common.Hash, position uint64, proof []common.Hash) bool {
	b.mu.Lock()
	c, ok := b.commitments[blockRef]
	if !ok {
		b.mu.Unlock()
		return false
	}
	root := c.OrderingRoot
	count := c.TxCount
	b.mu.Unlock()

	if position >= count {
		return false
	}
	leaf := crypto.PositionLeaf(position, txHash)
	return crypto.VerifyMerkleProof(leaf, proof, root, position)
}

// VerifyTxPositionRecorded is the mutating variant: a successful check
// additionally bumps the commitment's verification counter and publishes
// an event.
func (b *Book) VerifyTxPositionRecorded(blockRef, txHash common.Hash, position uint64, proof []common.Hash) bool {
	if !b.VerifyTxPosition(blockRef, txHash, position, proof) {
		return false
	}

	b.mu.Lock()
	c, ok := b.commitments[blockRef]
	if !ok {
		b.mu.Unlock()
		return false
	}
	c.Verifications++
	b.mu.Unlock()

	metrics.Inc("ordering_verified_total", nil)
	b.publish(events.PositionVerified, struct {
		BlockRef common.Hash
		TxHash   common.Hash
		Position uint64
	}{blockRef, txHash, position})
	return true
}

// Commitment returns a copy of the stored commitment for blockRef.
func (b *Book) Commitment(blockRef common.Hash) (Commitment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.commitments[blockRef]
	if !ok {
		return Commitment{}, false
	}
	return *c, true
}

// Count returns the number of recorded commitments.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commitments)
}
