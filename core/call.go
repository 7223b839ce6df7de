package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallResult captures the outcome of an inner call to a decrypted target.
// Failure of the target is an expected business outcome, recorded as data,
// never propagated as an error by the lifecycle that triggered it.
type CallResult struct {
	// Success reports whether the call completed without reverting.
	Success bool

	// ReturnData is the raw data returned (or revert data on failure).
	ReturnData []byte

	// GasUsed is the gas consumed by the call.
	GasUsed uint64
}

// CallFn executes a call against the hosting execution environment, bounded
// by the given gas limit. Implementations must never panic on target
// failure; they report it through CallResult.Success.
type CallFn func(to common.Address, data []byte, value *uint256.Int, gasLimit uint64) CallResult
