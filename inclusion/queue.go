// Package inclusion implements the bonded forced-inclusion escape hatch on
// the settlement layer. A user who believes the sequencer is censoring them
// posts a bonded request; once a finalized output proves the transaction
// was included the bond comes back, and if the deadline passes unresolved
// anyone may claim the bond plus a penalty on the user's behalf.
package inclusion

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

// Inclusion errors.
var (
	ErrInsufficientBond    = errors.New("inclusion: bond below minimum")
	ErrInvalidGasLimit     = errors.New("inclusion: gas limit out of bounds")
	ErrRequestNotFound     = errors.New("inclusion: request not found")
	ErrRequestNotPending   = errors.New("inclusion: request not pending")
	ErrOutputNotFinalized  = errors.New("inclusion: no finalized output for block")
	ErrInvalidProof        = errors.New("inclusion: inclusion proof invalid")
	ErrDeadlineNotReached  = errors.New("inclusion: deadline not reached")
)

// RequestStatus is the lifecycle state of a force request. Included and
// Claimed are terminal and mutually exclusive refund paths.
type RequestStatus uint8

const (
	// RequestPending means awaiting inclusion or deadline.
	RequestPending RequestStatus = iota

	// RequestIncluded means inclusion was proven; bond refunded.
	RequestIncluded

	// RequestExpired is the observed state of a pending request past its
	// deadline; it is never stored, only reported.
	RequestExpired

	// RequestClaimed means the deadline passed and the bond was claimed.
	RequestClaimed
)

// String returns the status name.
func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestIncluded:
		return "included"
	case RequestExpired:
		return "expired"
	case RequestClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// ForceRequest is a bonded forced-inclusion request.
type ForceRequest struct {
	ID       common.Hash
	Sender   common.Address
	Target   common.Address
	Data     []byte
	GasLimit uint64
	Bond     *uint256.Int
	Deadline uint64
	Status   RequestStatus
}

// OutputOracle resolves finalized output roots on the settlement layer.
type OutputOracle interface {
	// FinalizedOutput returns the finalized output root for blockRef.
	FinalizedOutput(blockRef common.Hash) (common.Hash, bool)
}

// OutputProof proves a transaction's membership in a finalized output.
// Field order is fixed: proofs are built off-chain.
type OutputProof struct {
	// OutputRoot is the claimed finalized output root.
	OutputRoot common.Hash

	// TxRoot is the transaction root committed inside the output.
	TxRoot common.Hash

	// Siblings is the Merkle path from the request leaf to TxRoot.
	Siblings []common.Hash

	// TxIndex is the transaction's index under TxRoot.
	TxIndex uint64
}

// Config controls the queue.
type Config struct {
	// MinBond is the minimum bond for a force request.
	MinBond *uint256.Int

	// MaxGasLimit bounds a forced transaction's gas.
	MaxGasLimit uint64

	// DeadlineBlocks is the resolution window after submission.
	DeadlineBlocks uint64

	// Penalty is paid to the claimant on top of the bond when a request
	// expires unresolved, drawn from the funded penalty reserve and
	// capped at that reserve's balance.
	Penalty *uint256.Int
}

// DefaultConfig returns protocol defaults. MinBond and Penalty are
// denominated in the settlement layer's native unit.
func DefaultConfig() Config {
	return Config{
		MinBond:        uint256.NewInt(100_000_000_000_000_000), // 0.1e18
		MaxGasLimit:    5_000_000,
		DeadlineBlocks: 7200,
		Penalty:        uint256.NewInt(10_000_000_000_000_000), // 0.01e18
	}
}

// outputDomain separates output-root bindings from other hashes.
var outputDomain = []byte("cloakchain/output/v1")

// penaltyReserve is the ledger account holding funded penalties.
var penaltyReserve = common.HexToAddress("0x00000000000000000000000000000000c10a4c11")

// OutputRootOf binds a transaction root to its block reference:
// keccak(domain || txRoot || blockRef). Finalized outputs posted by the
// bridging process commit to exactly this shape.
func OutputRootOf(txRoot, blockRef common.Hash) common.Hash {
	return crypto.Keccak256Hash(outputDomain, txRoot[:], blockRef[:])
}

// RequestLeaf derives the Merkle leaf for a forced transaction:
// keccak(sender || target || keccak(data) || gasLimit). ConfirmInclusion
// recomputes this from stored fields only, never caller input.
func RequestLeaf(sender, target common.Address, data []byte, gasLimit uint64) common.Hash {
	dataHash := crypto.Keccak256Hash(data)
	return crypto.Keccak256Hash(sender[:], target[:], dataHash[:], crypto.Uint64Bytes(gasLimit))
}

// Queue holds force requests and their bonds. All operations are atomic
// under the queue mutex.
type Queue struct {
	mu  sync.Mutex
	cfg Config

	requests    map[common.Hash]*ForceRequest
	senderNonce map[common.Address]uint64

	// bonds custodies posted bonds and the penalty reserve; payouts
	// accumulates refunds and claims.
	bonds   *core.Ledger
	payouts *core.Ledger

	oracle OutputOracle
	feed   *events.Feed
	logger *log.Logger
}

// NewQueue creates a queue backed by the given finalized-output oracle.
func NewQueue(cfg Config, oracle OutputOracle, feed *events.Feed) *Queue {
	def := DefaultConfig()
	if cfg.MinBond == nil {
		cfg.MinBond = def.MinBond
	}
	if cfg.MaxGasLimit == 0 {
		cfg.MaxGasLimit = def.MaxGasLimit
	}
	if cfg.DeadlineBlocks == 0 {
		cfg.DeadlineBlocks = def.DeadlineBlocks
	}
	if cfg.Penalty == nil {
		cfg.Penalty = def.Penalty
	}
	return &Queue{
		cfg:         cfg,
		requests:    make(map[common.Hash]*ForceRequest),
		senderNonce: make(map[common.Address]uint64),
		bonds:       core.NewLedger(),
		payouts:     core.NewLedger(),
		oracle:      oracle,
		feed:        feed,
		logger:      log.Default().Module("inclusion"),
	}
}

func (q *Queue) publish(t events.Type, data interface{}) {
	if q.feed != nil {
		q.feed.Publish(t, data)
	}
}

// FundPenalties credits ctx.Value to the penalty reserve. The funding
// source (treasury, forfeited sequencer stake) is an external collaborator;
// the queue only accounts for whatever arrives here.
func (q *Queue) FundPenalties(ctx core.Context) {
	ctx = ctx.Normalize()
	q.bonds.Credit(penaltyReserve, ctx.Value)
}

// PenaltyReserve returns the currently funded penalty balance.
func (q *Queue) PenaltyReserve() *uint256.Int {
	return q.bonds.BalanceOf(penaltyReserve)
}

// ForceTransaction posts a bonded request. ctx.Value is the bond and must
// meet the minimum; the deadline is set from the submission height.
func (q *Queue) ForceTransaction(ctx core.Context, target common.Address, data []byte, gasLimit uint64) (common.Hash, error) {
	ctx = ctx.Normalize()

	q.mu.Lock()
	defer q.mu.Unlock()

	if ctx.Value.Lt(q.cfg.MinBond) {
		return common.Hash{}, ErrInsufficientBond
	}
	if gasLimit == 0 || gasLimit > q.cfg.MaxGasLimit {
		return common.Hash{}, ErrInvalidGasLimit
	}

	nonce := q.senderNonce[ctx.Caller]
	q.senderNonce[ctx.Caller] = nonce + 1
	leaf := RequestLeaf(ctx.Caller, target, data, gasLimit)
	id := crypto.Keccak256Hash(leaf[:], crypto.Uint64Bytes(nonce))

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	q.requests[id] = &ForceRequest{
		ID:       id,
		Sender:   ctx.Caller,
		Target:   target,
		Data:     dataCopy,
		GasLimit: gasLimit,
		Bond:     new(uint256.Int).Set(ctx.Value),
		Deadline: ctx.Height + q.cfg.DeadlineBlocks,
		Status:   RequestPending,
	}
	q.bonds.Credit(ctx.Caller, ctx.Value)

	metrics.Inc("inclusion_requested_total", nil)
	q.logger.Info("force request posted", "id", id, "sender", ctx.Caller, "target", target, "deadline", ctx.Height+q.cfg.DeadlineBlocks)
	q.publish(events.ForceRequested, struct {
		ID       common.Hash
		Sender   common.Address
		Target   common.Address
		Bond     *uint256.Int
		Deadline uint64
	}{id, ctx.Caller, target, new(uint256.Int).Set(ctx.Value), ctx.Height + q.cfg.DeadlineBlocks})
	return id, nil
}

// ConfirmInclusion proves a pending request was included in a finalized
// output and refunds the bond. The request leaf is re-derived from stored
// parameters; caller-supplied request data is never trusted. The proof's
// claimed output root must match both the oracle's finalized root for
// blockRef and the binding recomputed from the proof's transaction root.
func (q *Queue) ConfirmInclusion(ctx core.Context, id, blockRef common.Hash, proof OutputProof) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return ErrRequestNotPending
	}

	finalized, ok := q.oracle.FinalizedOutput(blockRef)
	if !ok {
		return ErrOutputNotFinalized
	}
	if proof.OutputRoot != finalized {
		return ErrInvalidProof
	}
	if OutputRootOf(proof.TxRoot, blockRef) != proof.OutputRoot {
		return ErrInvalidProof
	}
	leaf := RequestLeaf(req.Sender, req.Target, req.Data, req.GasLimit)
	if !crypto.VerifyMerkleProof(leaf, proof.Siblings, proof.TxRoot, proof.TxIndex) {
		return ErrInvalidProof
	}

	req.Status = RequestIncluded
	if err := q.bonds.Debit(req.Sender, req.Bond); err != nil {
		return err
	}
	q.payouts.Credit(req.Sender, req.Bond)

	metrics.Inc("inclusion_confirmed_total", nil)
	q.logger.Info("force request included", "id", id, "block", blockRef)
	q.publish(events.ForceIncluded, struct {
		ID       common.Hash
		BlockRef common.Hash
		Bond     *uint256.Int
	}{id, blockRef, new(uint256.Int).Set(req.Bond)})
	return nil
}

// ClaimExpired pays the bond plus the configured penalty to the claimant
// once a still-pending request's deadline has passed. Callable by anyone.
// The penalty is capped at the funded reserve; the bond itself always
// moves, exactly once.
func (q *Queue) ClaimExpired(ctx core.Context, id common.Hash) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return ErrRequestNotPending
	}
	if ctx.Height <= req.Deadline {
		return ErrDeadlineNotReached
	}

	req.Status = RequestClaimed
	q.publish(events.ForceExpired, struct {
		ID       common.Hash
		Deadline uint64
	}{id, req.Deadline})
	if err := q.bonds.Debit(req.Sender, req.Bond); err != nil {
		return err
	}
	payout := new(uint256.Int).Set(req.Bond)

	penalty := new(uint256.Int).Set(q.cfg.Penalty)
	if reserve := q.bonds.BalanceOf(penaltyReserve); penalty.Gt(reserve) {
		penalty.Set(reserve)
	}
	if !penalty.IsZero() {
		if err := q.bonds.Debit(penaltyReserve, penalty); err == nil {
			payout.Add(payout, penalty)
		}
	}
	q.payouts.Credit(ctx.Caller, payout)

	metrics.Inc("inclusion_claimed_total", nil)
	q.logger.Warn("force request claimed", "id", id, "claimant", ctx.Caller, "payout", payout.String())
	q.publish(events.ForceClaimed, struct {
		ID       common.Hash
		Claimant common.Address
		Payout   *uint256.Int
	}{id, ctx.Caller, payout})
	return nil
}

// --- Accessors ---

// Request returns a copy of the stored request.
func (q *Queue) Request(id common.Hash) (ForceRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.requests[id]
	if !ok {
		return ForceRequest{}, false
	}
	out := *req
	out.Data = append([]byte(nil), req.Data...)
	out.Bond = new(uint256.Int).Set(req.Bond)
	return out, true
}

// StatusAt reports the request's state as observed at the given height:
// a pending request past its deadline reads as RequestExpired.
func (q *Queue) StatusAt(id common.Hash, height uint64) (RequestStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.requests[id]
	if !ok {
		return 0, false
	}
	if req.Status == RequestPending && height > req.Deadline {
		return RequestExpired, true
	}
	return req.Status, true
}

// PayoutBalance returns the withdrawable credit accumulated for addr.
func (q *Queue) PayoutBalance(addr common.Address) *uint256.Int {
	return q.payouts.BalanceOf(addr)
}

// BondsHeld returns the total custodied value (bonds plus reserve).
func (q *Queue) BondsHeld() *uint256.Int {
	return q.bonds.Total()
}
