package core

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SequencerSet answers whether an address may commit batch orderings. The
// set itself is managed by an external access-control collaborator; both
// ordering-commit paths consume this interface.
type SequencerSet interface {
	Authorized(addr common.Address) bool
}

// StaticSequencerSet is a fixed, mutable sequencer allowlist, sufficient
// for deployments where the external controller pushes updates directly.
type StaticSequencerSet struct {
	mu    sync.RWMutex
	addrs map[common.Address]struct{}
}

// NewStaticSequencerSet creates an allowlist with the given members.
func NewStaticSequencerSet(addrs ...common.Address) *StaticSequencerSet {
	s := &StaticSequencerSet{addrs: make(map[common.Address]struct{}, len(addrs))}
	for _, a := range addrs {
		s.addrs[a] = struct{}{}
	}
	return s
}

// Authorized reports membership.
func (s *StaticSequencerSet) Authorized(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addrs[addr]
	return ok
}

// Add inserts an address into the allowlist.
func (s *StaticSequencerSet) Add(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[addr] = struct{}{}
}

// Len returns the number of allowlisted addresses.
func (s *StaticSequencerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addrs)
}

// Remove deletes an address from the allowlist.
func (s *StaticSequencerSet) Remove(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.addrs, addr)
}
