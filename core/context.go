// Package core provides the execution ambience shared by every state-machine
// package in the module: the per-operation request context, the value ledger
// used for stakes, escrow and bonds, and the non-reverting inner-call result
// type. Making these explicit (instead of reading globals from a ledger
// runtime) keeps every state machine testable in isolation.
package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Context carries the ambient caller/value/height information for a single
// operation. It is passed explicitly into every public operation rather than
// read from process globals.
type Context struct {
	// Caller is the address invoking the operation.
	Caller common.Address

	// Value is the native value attached to a payable operation.
	// Non-payable operations ignore it. Never nil after Normalize.
	Value *uint256.Int

	// Height is the current block height of the hosting chain.
	Height uint64

	// Time is the current block timestamp (unix seconds).
	Time uint64
}

// Normalize returns a copy with a non-nil Value, so operations can read
// ctx.Value without nil checks.
func (c Context) Normalize() Context {
	if c.Value == nil {
		c.Value = uint256.NewInt(0)
	}
	return c
}

// WithValue returns a copy of the context carrying the given attached value.
func (c Context) WithValue(v *uint256.Int) Context {
	c.Value = v
	return c
}

// At returns a copy of the context positioned at the given height.
func (c Context) At(height uint64) Context {
	c.Height = height
	return c
}
