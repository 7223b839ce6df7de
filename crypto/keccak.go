// Package crypto implements the injected cryptographic capabilities the
// state machines depend on: keccak hashing, Merkle inclusion proofs, and
// threshold decryption attestations. The lifecycle packages never inspect
// signature internals; they consume the interfaces defined here.
package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a common.Hash.
func Keccak256Hash(data ...[]byte) common.Hash {
	return common.BytesToHash(Keccak256(data...))
}

// Uint64Bytes returns v as 8 big-endian bytes, the fixed integer encoding
// used in every digest and wire format of this module.
func Uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
