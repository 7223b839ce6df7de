package node

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloakchain/cloakchain/core"
	"github.com/cloakchain/cloakchain/crypto"
	"github.com/cloakchain/cloakchain/events"
	"github.com/cloakchain/cloakchain/inclusion"
	"github.com/cloakchain/cloakchain/keyper"
	"github.com/cloakchain/cloakchain/log"
	"github.com/cloakchain/cloakchain/mempool"
	"github.com/cloakchain/cloakchain/ordering"
)

// Node errors.
var (
	ErrAlreadyRunning = errors.New("node: already running")
	ErrNotRunning     = errors.New("node: not running")
)

// Node assembles the four protocol state machines around a shared event
// feed and sequencer set. Start launches the event logging loop; Stop
// closes the feed and drains it.
type Node struct {
	cfg Config

	feed       *events.Feed
	sequencers *core.StaticSequencerSet
	outputs    *OutputStore

	registry *keyper.Registry
	pool     *mempool.Pool
	book     *ordering.Book
	queue    *inclusion.Queue

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	logger *log.Logger
}

// New creates a node from the given configuration. The injected call
// function runs revealed transactions; it may be nil for bookkeeping-only
// deployments.
func New(cfg Config, call core.CallFn) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.SetDefault(log.New(VerbosityToLogLevel(cfg.Verbosity)))

	seqAddrs, err := cfg.sequencerAddrs()
	if err != nil {
		return nil, err
	}
	sequencers := core.NewStaticSequencerSet(seqAddrs...)
	feed := events.NewFeed(cfg.EventBuffer)
	outputs := NewOutputStore()

	registry, err := keyper.NewRegistry(keyper.Config{
		Owner:      common.HexToAddress(cfg.Owner),
		MinStake:   cfg.minStake(),
		MaxKeypers: cfg.MaxKeypers,
		Threshold:  cfg.Threshold,
	}, feed)
	if err != nil {
		return nil, err
	}

	pool := mempool.NewPool(mempool.Config{
		ExpiryBlocks: cfg.ExpiryBlocks,
		FeeRecipient: common.HexToAddress(cfg.FeeRecipient),
	}, registry, sequencers, crypto.ECDSAVerifier{}, call, feed)

	book := ordering.NewBook(sequencers, feed)

	queue := inclusion.NewQueue(inclusion.Config{
		MinBond:        cfg.minBond(),
		DeadlineBlocks: cfg.DeadlineBlocks,
	}, outputs, feed)

	return &Node{
		cfg:        cfg,
		feed:       feed,
		sequencers: sequencers,
		outputs:    outputs,
		registry:   registry,
		pool:       pool,
		book:       book,
		queue:      queue,
		logger:     log.Default().Module("node"),
	}, nil
}

// Start launches the event logging loop.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return ErrAlreadyRunning
	}
	n.running = true
	n.done = make(chan struct{})

	sub := n.feed.Subscribe()
	n.wg.Add(1)
	go n.eventLoop(sub)

	n.logger.Info("node started", "name", n.cfg.Name, "threshold", n.cfg.Threshold, "sequencers", n.sequencers.Len())
	return nil
}

// eventLoop logs every published protocol event until the subscription
// closes.
func (n *Node) eventLoop(sub *events.Subscription) {
	defer n.wg.Done()
	for {
		select {
		case ev, ok := <-sub.Chan():
			if !ok {
				return
			}
			n.logger.Debug("event", "type", string(ev.Type))
		case <-n.done:
			sub.Unsubscribe()
			return
		}
	}
}

// Stop shuts the node down, closing the event feed.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return ErrNotRunning
	}
	n.running = false
	close(n.done)
	n.wg.Wait()
	n.feed.Close()

	n.logger.Info("node stopped", "name", n.cfg.Name)
	return nil
}

// Registry returns the keyper registry.
func (n *Node) Registry() *keyper.Registry { return n.registry }

// Pool returns the encrypted mempool.
func (n *Node) Pool() *mempool.Pool { return n.pool }

// Book returns the ordering attestation book.
func (n *Node) Book() *ordering.Book { return n.book }

// Queue returns the forced-inclusion queue.
func (n *Node) Queue() *inclusion.Queue { return n.queue }

// Outputs returns the finalized-output store backing the inclusion queue.
func (n *Node) Outputs() *OutputStore { return n.outputs }

// Feed returns the shared event feed.
func (n *Node) Feed() *events.Feed { return n.feed }

// Sequencers returns the mutable authorized sequencer set.
func (n *Node) Sequencers() *core.StaticSequencerSet { return n.sequencers }
