package mempool

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cloakchain/cloakchain/core"
	"github.com/cloakchain/cloakchain/crypto"
	"github.com/cloakchain/cloakchain/events"
	"github.com/cloakchain/cloakchain/log"
	"github.com/cloakchain/cloakchain/metrics"
)

// Pool errors.
var (
	ErrEmptyPayload          = errors.New("mempool: empty payload")
	ErrPayloadTooLarge       = errors.New("mempool: payload too large")
	ErrInvalidGasLimit       = errors.New("mempool: gas limit out of bounds")
	ErrInvalidEpoch          = errors.New("mempool: no active key for epoch")
	ErrInsufficientFee       = errors.New("mempool: value below required fee")
	ErrTxNotFound            = errors.New("mempool: transaction not found")
	ErrNotSender             = errors.New("mempool: caller is not the sender")
	ErrTxNotPending          = errors.New("mempool: transaction not pending")
	ErrNotSequencer          = errors.New("mempool: caller is not an authorized sequencer")
	ErrBatchAlreadyCommitted = errors.New("mempool: batch already committed")
	ErrTxNotOrdered          = errors.New("mempool: transaction not ordered")
	ErrDecryptionFailed      = errors.New("mempool: decryption attestation invalid")
	ErrValueExceedsDeposit   = errors.New("mempool: value exceeds deposit")
	ErrTxNotDecrypted        = errors.New("mempool: transaction not decrypted")
	ErrTxAlreadyExecuted     = errors.New("mempool: transaction already executed")
)

// Pool owns the encrypted-transaction lifecycle. Every public operation is
// atomic under the pool mutex; concurrent attempts to advance the same id
// serialize there and exactly one succeeds, the rest failing with a
// state-mismatch error. The single exception to full-body locking is
// ExecuteDecryptedTx, which releases the lock around the injected inner
// call after the execution claim is committed.
type Pool struct {
	mu  sync.Mutex
	cfg Config

	txs         map[common.Hash]*EncryptedTx
	decrypted   map[common.Hash]*DecryptedTx
	batches     map[common.Hash]struct{}
	senderNonce map[common.Address]uint64

	// payouts accumulates refunds and fee credits; escrowHeld tracks the
	// outstanding escrow+deposit of all non-terminal transactions, and
	// received the total value ever attached to submissions. The
	// invariant escrowHeld <= received always holds.
	payouts    *core.Ledger
	escrowHeld *uint256.Int
	received   *uint256.Int

	totalSubmitted uint64
	totalExpired   uint64

	keypers    KeyperSource
	sequencers core.SequencerSet
	verifier   crypto.AttestationVerifier
	call       core.CallFn

	feed   *events.Feed
	logger *log.Logger
}

// NewPool creates a pool. keypers, sequencers and verifier are required
// collaborators; call may be nil, in which case execution succeeds with
// empty return data (useful for bookkeeping-only deployments and tests).
func NewPool(cfg Config, keypers KeyperSource, sequencers core.SequencerSet, verifier crypto.AttestationVerifier, call core.CallFn, feed *events.Feed) *Pool {
	def := DefaultConfig()
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = def.MaxPayloadSize
	}
	if cfg.MinGasLimit == 0 {
		cfg.MinGasLimit = def.MinGasLimit
	}
	if cfg.MaxGasLimit == 0 {
		cfg.MaxGasLimit = def.MaxGasLimit
	}
	if cfg.ExpiryBlocks == 0 {
		cfg.ExpiryBlocks = def.ExpiryBlocks
	}
	return &Pool{
		cfg:         cfg,
		txs:         make(map[common.Hash]*EncryptedTx),
		decrypted:   make(map[common.Hash]*DecryptedTx),
		batches:     make(map[common.Hash]struct{}),
		senderNonce: make(map[common.Address]uint64),
		payouts:     core.NewLedger(),
		escrowHeld:  uint256.NewInt(0),
		received:    uint256.NewInt(0),
		keypers:     keypers,
		sequencers:  sequencers,
		verifier:    verifier,
		call:        call,
		feed:        feed,
		logger:      log.Default().Module("mempool"),
	}
}

func (p *Pool) publish(t events.Type, data interface{}) {
	if p.feed != nil {
		p.feed.Publish(t, data)
	}
}

// TxID derives the transaction id from the sender, payload hash, epoch and
// the sender's monotonic submission counter.
func TxID(sender common.Address, payloadHash common.Hash, epoch, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(sender[:], payloadHash[:], crypto.Uint64Bytes(epoch), crypto.Uint64Bytes(nonce))
}

// DecryptionCommitment binds a disclosed call to the ciphertext it claims
// to reveal: keccak(payloadHash || to || data || value). Off-chain provers
// must attest over exactly this hash.
func DecryptionCommitment(payloadHash common.Hash, to common.Address, data []byte, value *uint256.Int) common.Hash {
	v := value.Bytes32()
	return crypto.Keccak256Hash(payloadHash[:], to[:], data, v[:])
}

// SubmitEncryptedTx escrows ctx.Value and records a Pending transaction.
// The required fee is GasLimit*MaxFeePerGas; any excess value becomes the
// deposit available to the revealed call.
func (p *Pool) SubmitEncryptedTx(ctx core.Context, payload []byte, epoch, gasLimit, maxFeePerGas uint64) (common.Hash, error) {
	ctx = ctx.Normalize()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(payload) == 0 {
		return common.Hash{}, ErrEmptyPayload
	}
	if len(payload) > p.cfg.MaxPayloadSize {
		return common.Hash{}, ErrPayloadTooLarge
	}
	if gasLimit < p.cfg.MinGasLimit || gasLimit > p.cfg.MaxGasLimit {
		return common.Hash{}, ErrInvalidGasLimit
	}
	if !p.keypers.EpochKeyActive(epoch) {
		return common.Hash{}, ErrInvalidEpoch
	}

	escrow := new(uint256.Int).Mul(uint256.NewInt(gasLimit), uint256.NewInt(maxFeePerGas))
	if ctx.Value.Lt(escrow) {
		return common.Hash{}, ErrInsufficientFee
	}
	deposit := new(uint256.Int).Sub(ctx.Value, escrow)

	payloadHash := crypto.Keccak256Hash(payload)
	nonce := p.senderNonce[ctx.Caller]
	p.senderNonce[ctx.Caller] = nonce + 1
	id := TxID(ctx.Caller, payloadHash, epoch, nonce)

	p.txs[id] = &EncryptedTx{
		ID:           id,
		Sender:       ctx.Caller,
		PayloadHash:  payloadHash,
		Epoch:        epoch,
		GasLimit:     gasLimit,
		MaxFeePerGas: maxFeePerGas,
		Escrow:       escrow,
		ValueDeposit: deposit,
		SubmitHeight: ctx.Height,
		Status:       StatusPending,
	}
	p.received.Add(p.received, ctx.Value)
	p.escrowHeld.Add(p.escrowHeld, ctx.Value)
	p.totalSubmitted++

	metrics.Inc("mempool_submitted_total", nil)
	metrics.SetGauge("mempool_pending", nil, int64(len(p.txs)))
	p.logger.Info("encrypted tx submitted", "id", id, "sender", ctx.Caller, "epoch", epoch, "gasLimit", gasLimit)
	p.publish(events.TxSubmitted, struct {
		ID      common.Hash
		Sender  common.Address
		Epoch   uint64
		Escrow  *uint256.Int
		Deposit *uint256.Int
	}{id, ctx.Caller, epoch, new(uint256.Int).Set(escrow), new(uint256.Int).Set(deposit)})
	return id, nil
}

// CancelEncryptedTx refunds a still-Pending transaction to its sender and
// retires it as Expired. Sender-only.
func (p *Pool) CancelEncryptedTx(ctx core.Context, id common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.txs[id]
	if !ok {
		return ErrTxNotFound
	}
	if tx.Sender != ctx.Caller {
		return ErrNotSender
	}
	if tx.Status != StatusPending {
		return ErrTxNotPending
	}

	tx.Status = StatusExpired
	p.refundLocked(tx)

	p.logger.Info("encrypted tx cancelled", "id", id)
	p.publish(events.TxCancelled, struct {
		ID     common.Hash
		Sender common.Address
	}{id, tx.Sender})
	return nil
}

// refundLocked releases a transaction's full escrow and deposit back to the
// sender. Caller holds the mutex and has already moved the status to a
// terminal refund state.
func (p *Pool) refundLocked(tx *EncryptedTx) {
	refund := new(uint256.Int).Add(tx.Escrow, tx.ValueDeposit)
	p.escrowHeld.Sub(p.escrowHeld, refund)
	p.payouts.Credit(tx.Sender, refund)
}

// CommitOrdering fixes the position of each listed transaction. The caller
// must be an authorized sequencer and the attached signature must recover
// to an authorized sequencer over the domain-separated ordering digest.
// The batch id is append-only; recommitting it fails. The operation is
// atomic: every id must be Pending or nothing changes.
func (p *Pool) CommitOrdering(ctx core.Context, batchID common.Hash, ids []common.Hash, orderingRoot common.Hash, sig []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.sequencers.Authorized(ctx.Caller) {
		return ErrNotSequencer
	}
	digest := crypto.OrderingDigest(batchID, orderingRoot, uint64(len(ids)))
	signer, err := crypto.RecoverSigner(digest, sig)
	if err != nil || !p.sequencers.Authorized(signer) {
		return ErrNotSequencer
	}
	if _, ok := p.batches[batchID]; ok {
		return ErrBatchAlreadyCommitted
	}

	for _, id := range ids {
		tx, ok := p.txs[id]
		if !ok {
			return ErrTxNotFound
		}
		if tx.Status != StatusPending {
			return ErrTxNotPending
		}
	}
	for i, id := range ids {
		tx := p.txs[id]
		tx.Status = StatusOrdered
		tx.OrderPosition = uint64(i)
		p.publish(events.TxOrdered, struct {
			ID       common.Hash
			BatchID  common.Hash
			Position uint64
		}{id, batchID, uint64(i)})
	}
	p.batches[batchID] = struct{}{}

	metrics.Add("mempool_ordered_total", nil, int64(len(ids)))
	p.logger.Info("ordering committed", "batch", batchID, "txs", len(ids), "root", orderingRoot)
	return nil
}

// SubmitDecryption reveals an ordered transaction's call. The proof must be
// a threshold attestation over exactly the disclosed (to, data, value)
// tuple bound to the ciphertext's payload hash; the pool counts unique
// active-keyper signers against the epoch threshold and never inspects
// ciphertext mechanics.
func (p *Pool) SubmitDecryption(ctx core.Context, id common.Hash, to common.Address, data []byte, value *uint256.Int, proof []byte) error {
	if value == nil {
		value = uint256.NewInt(0)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.txs[id]
	if !ok {
		return ErrTxNotFound
	}
	if tx.Status != StatusOrdered {
		return ErrTxNotOrdered
	}
	if value.Gt(tx.ValueDeposit) {
		return ErrValueExceedsDeposit
	}

	commitment := DecryptionCommitment(tx.PayloadHash, to, data, value)
	signers, err := p.verifier.Verify(commitment, tx.Epoch, proof)
	if err != nil {
		return ErrDecryptionFailed
	}
	threshold, err := p.keypers.EpochThreshold(tx.Epoch)
	if err != nil {
		return ErrDecryptionFailed
	}

	seen := make(map[common.Address]struct{}, len(signers))
	valid := 0
	for _, s := range signers {
		if _, dup := seen[s]; dup {
			return ErrDecryptionFailed
		}
		seen[s] = struct{}{}
		if p.keypers.ActiveKeyper(s) {
			valid++
		}
	}
	if valid < threshold {
		return ErrDecryptionFailed
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.decrypted[id] = &DecryptedTx{
		To:    to,
		Data:  dataCopy,
		Value: new(uint256.Int).Set(value),
	}
	tx.Status = StatusDecrypted

	metrics.Inc("mempool_decrypted_total", nil)
	p.logger.Info("tx decrypted", "id", id, "to", to, "value", value.String(), "signers", valid)
	p.publish(events.TxDecrypted, struct {
		ID    common.Hash
		To    common.Address
		Value *uint256.Int
	}{id, to, new(uint256.Int).Set(value)})
	return nil
}

// ExecuteDecryptedTx runs the revealed call, bounded by the transaction's
// gas limit. The inner call's failure is recorded as data: the transaction
// terminates as Failed and bookkeeping completes regardless. The execution
// claim and escrow settlement commit before the inner call runs, so
// re-entrant attempts observe final state.
func (p *Pool) ExecuteDecryptedTx(ctx core.Context, id common.Hash) (core.CallResult, error) {
	p.mu.Lock()

	tx, ok := p.txs[id]
	if !ok {
		p.mu.Unlock()
		return core.CallResult{}, ErrTxNotFound
	}
	switch tx.Status {
	case StatusDecrypted:
	case StatusExecuted, StatusFailed:
		p.mu.Unlock()
		return core.CallResult{}, ErrTxAlreadyExecuted
	default:
		p.mu.Unlock()
		return core.CallResult{}, ErrTxNotDecrypted
	}
	dec := p.decrypted[id]
	if dec.Executed {
		p.mu.Unlock()
		return core.CallResult{}, ErrTxAlreadyExecuted
	}

	// Commit the execution claim and settle the fee before the call: the
	// fee is consumed either way, and the claim blocks re-entry.
	dec.Executed = true
	p.escrowHeld.Sub(p.escrowHeld, tx.Escrow)
	p.payouts.Credit(p.cfg.FeeRecipient, tx.Escrow)

	call := p.call
	to, data := dec.To, dec.Data
	value := new(uint256.Int).Set(dec.Value)
	gasLimit := tx.GasLimit
	p.mu.Unlock()

	var res core.CallResult
	if call != nil {
		res = call(to, data, value, gasLimit)
	} else {
		res = core.CallResult{Success: true}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dec.Success = res.Success
	dec.ReturnData = res.ReturnData
	if res.Success {
		tx.Status = StatusExecuted
	} else {
		tx.Status = StatusFailed
	}

	// Deposit settlement: the call value moves to the target only on
	// success; everything not consumed returns to the sender.
	p.escrowHeld.Sub(p.escrowHeld, tx.ValueDeposit)
	remainder := new(uint256.Int).Set(tx.ValueDeposit)
	if res.Success && !dec.Value.IsZero() {
		p.payouts.Credit(dec.To, dec.Value)
		remainder.Sub(remainder, dec.Value)
	}
	p.payouts.Credit(tx.Sender, remainder)

	metrics.Inc("mempool_executed_total", map[string]string{"success": boolTag(res.Success)})
	p.logger.Info("tx executed", "id", id, "success", res.Success, "gasUsed", res.GasUsed)
	p.publish(events.TxExecuted, struct {
		ID      common.Hash
		Success bool
	}{id, res.Success})
	return res, nil
}

// MarkExpired sweeps the given ids, refunding and expiring every Pending
// transaction past the expiry window. Ineligible ids are skipped, not
// errors: the sweep is idempotent by design. Returns how many expired.
func (p *Pool) MarkExpired(ctx core.Context, ids []common.Hash) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	expired := 0
	for _, id := range ids {
		tx, ok := p.txs[id]
		if !ok || tx.Status != StatusPending {
			continue
		}
		if ctx.Height <= tx.SubmitHeight+p.cfg.ExpiryBlocks {
			continue
		}
		tx.Status = StatusExpired
		p.refundLocked(tx)
		p.totalExpired++
		expired++

		metrics.Inc("mempool_expired_total", nil)
		p.logger.Info("tx expired", "id", id, "submitHeight", tx.SubmitHeight)
		p.publish(events.TxExpired, struct {
			ID     common.Hash
			Sender common.Address
		}{id, tx.Sender})
	}
	return expired
}

// --- Accessors ---

// Tx returns a copy of the transaction record.
func (p *Pool) Tx(id common.Hash) (EncryptedTx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.txs[id]
	if !ok {
		return EncryptedTx{}, false
	}
	out := *tx
	out.Escrow = new(uint256.Int).Set(tx.Escrow)
	out.ValueDeposit = new(uint256.Int).Set(tx.ValueDeposit)
	return out, true
}

// Decrypted returns a copy of the revealed call, if any.
func (p *Pool) Decrypted(id common.Hash) (DecryptedTx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dec, ok := p.decrypted[id]
	if !ok {
		return DecryptedTx{}, false
	}
	out := *dec
	out.Data = append([]byte(nil), dec.Data...)
	out.Value = new(uint256.Int).Set(dec.Value)
	out.ReturnData = append([]byte(nil), dec.ReturnData...)
	return out, true
}

// TotalSubmitted returns the number of submissions accepted.
func (p *Pool) TotalSubmitted() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalSubmitted
}

// TotalExpired returns the number of transactions expired by MarkExpired.
func (p *Pool) TotalExpired() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalExpired
}

// EscrowHeld returns the outstanding escrow+deposit across live
// transactions.
func (p *Pool) EscrowHeld() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.escrowHeld)
}

// PayoutBalance returns the withdrawable credit accumulated for addr.
func (p *Pool) PayoutBalance(addr common.Address) *uint256.Int {
	return p.payouts.BalanceOf(addr)
}

// SenderNonce returns the next submission counter for a sender.
func (p *Pool) SenderNonce(addr common.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.senderNonce[addr]
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
