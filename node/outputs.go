package node

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloakchain/cloakchain/inclusion"
)

// OutputStore is an in-memory finalized-output index. The bridging process
// posts one output root per block reference; the inclusion queue reads them
// back when verifying inclusion proofs. Outputs are append-only.
type OutputStore struct {
	mu      sync.RWMutex
	outputs map[common.Hash]common.Hash
}

// NewOutputStore creates an empty store.
func NewOutputStore() *OutputStore {
	return &OutputStore{outputs: make(map[common.Hash]common.Hash)}
}

// PostOutput records the finalized output for blockRef, derived from the
// block's transaction root. Re-posting an already finalized block is a
// no-op: finality is irreversible.
func (s *OutputStore) PostOutput(blockRef, txRoot common.Hash) common.Hash {
	root := inclusion.OutputRootOf(txRoot, blockRef)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.outputs[blockRef]; ok {
		return existing
	}
	s.outputs[blockRef] = root
	return root
}

// FinalizedOutput returns the finalized output root for blockRef.
func (s *OutputStore) FinalizedOutput(blockRef common.Hash) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.outputs[blockRef]
	return root, ok
}

// Count returns the number of finalized outputs recorded.
func (s *OutputStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outputs)
}

var _ inclusion.OutputOracle = (*OutputStore)(nil)
