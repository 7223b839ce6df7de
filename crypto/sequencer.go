package crypto

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// orderingDomain separates sequencer ordering commitments from other signed
// messages in the protocol.
var orderingDomain = []byte("cloakchain/ordering/v1")

// ErrBadSignature is returned when a sequencer signature cannot be recovered.
var ErrBadSignature = errors.New("crypto: signature recovery failed")

// OrderingDigest is the domain-separated message a sequencer signs when
// committing a batch ordering: keccak(domain || blockRef || root || txCount).
func OrderingDigest(blockRef, orderingRoot common.Hash, txCount uint64) common.Hash {
	return Keccak256Hash(orderingDomain, blockRef[:], orderingRoot[:], Uint64Bytes(txCount))
}

// RecoverSigner returns the address that produced the 65-byte signature
// over digest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureRecordSize {
		return common.Address{}, ErrBadSignature
	}
	pub, err := gethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	return gethcrypto.PubkeyToAddress(*pub), nil
}

// SignOrdering signs an ordering digest. Used by sequencer-side tooling
// and tests.
func SignOrdering(blockRef, orderingRoot common.Hash, txCount uint64, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := OrderingDigest(blockRef, orderingRoot, txCount)
	return gethcrypto.Sign(digest[:], key)
}
