// Threshold decryption attestations.
//
// Keypers do not hand the ciphertext key to the chain. Instead a threshold
// of them sign the exact disclosed (to, data, value) tuple bound to the
// ciphertext's payload hash. The on-chain side therefore never inspects
// decryption mechanics: it recomputes the commitment and checks that enough
// registered keypers attested to exactly that commitment for the right
// epoch. Proofs are built off-chain, so the wire layout is fixed:
//
//	[n*65]  signature records (ECDSA, R||S||V)
//	[32]    commitment
//	[8]     epoch (big-endian)
//	[n*20]  signer addresses, same order as the signature records
package crypto

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Attestation proof sizes.
const (
	// SignatureRecordSize is the fixed length of one ECDSA record.
	SignatureRecordSize = 65

	// KeyShareSize is the fixed length of a keyper public key share
	// (compressed BLS12-381 G1 point).
	KeyShareSize = 48

	// MinDecryptionProofSize is the smallest well-formed proof: one
	// signature record, the commitment, the epoch and one signer.
	MinDecryptionProofSize = SignatureRecordSize + common.HashLength + 8 + common.AddressLength
)

// attestationDomain separates decryption attestations from every other
// signed message in the protocol.
var attestationDomain = []byte("cloakchain/decrypt/v1")

// Attestation errors.
var (
	ErrProofTooShort       = errors.New("attestation: proof shorter than minimum")
	ErrProofMalformed      = errors.New("attestation: proof length does not decode")
	ErrProofCommitment     = errors.New("attestation: embedded commitment mismatch")
	ErrProofEpoch          = errors.New("attestation: embedded epoch mismatch")
	ErrProofSignerMismatch = errors.New("attestation: recovered signer does not match record")
	ErrProofBadSignature   = errors.New("attestation: signature recovery failed")
)

// DecryptionProof is the decoded form of the fixed wire layout.
type DecryptionProof struct {
	Signatures [][]byte
	Commitment common.Hash
	Epoch      uint64
	Signers    []common.Address
}

// DecodeDecryptionProof parses the fixed wire layout. The record count is
// implied by the total length: len = n*65 + 40 + n*20.
func DecodeDecryptionProof(raw []byte) (*DecryptionProof, error) {
	return decodeProofRecords(raw, SignatureRecordSize)
}

// decodeProofRecords parses a proof whose signature records all have the
// given fixed size (65 for ECDSA, 96 for BLS G2).
func decodeProofRecords(raw []byte, recordSize int) (*DecryptionProof, error) {
	if len(raw) < recordSize+common.HashLength+8+common.AddressLength {
		return nil, ErrProofTooShort
	}
	body := len(raw) - common.HashLength - 8
	if body%(recordSize+common.AddressLength) != 0 {
		return nil, ErrProofMalformed
	}
	n := body / (recordSize + common.AddressLength)

	p := &DecryptionProof{
		Signatures: make([][]byte, n),
		Signers:    make([]common.Address, n),
	}
	off := 0
	for i := 0; i < n; i++ {
		sig := make([]byte, recordSize)
		copy(sig, raw[off:off+recordSize])
		p.Signatures[i] = sig
		off += recordSize
	}
	p.Commitment = common.BytesToHash(raw[off : off+common.HashLength])
	off += common.HashLength
	p.Epoch = bytesToUint64(raw[off : off+8])
	off += 8
	for i := 0; i < n; i++ {
		p.Signers[i] = common.BytesToAddress(raw[off : off+common.AddressLength])
		off += common.AddressLength
	}
	return p, nil
}

// Encode serializes the proof into the fixed wire layout.
func (p *DecryptionProof) Encode() []byte {
	out := make([]byte, 0, len(p.Signatures)*SignatureRecordSize+common.HashLength+8+len(p.Signers)*common.AddressLength)
	for _, sig := range p.Signatures {
		out = append(out, sig...)
	}
	out = append(out, p.Commitment[:]...)
	out = append(out, Uint64Bytes(p.Epoch)...)
	for _, s := range p.Signers {
		out = append(out, s[:]...)
	}
	return out
}

// AttestationDigest is the message each keyper signs: the domain tag, the
// commitment and the epoch, keccak-hashed.
func AttestationDigest(commitment common.Hash, epoch uint64) common.Hash {
	return Keccak256Hash(attestationDomain, commitment[:], Uint64Bytes(epoch))
}

// AttestationVerifier checks a decryption proof against a commitment and
// epoch, returning the attesting signer addresses. Counting unique
// registered keypers against the epoch threshold is the caller's policy,
// not the verifier's.
type AttestationVerifier interface {
	Verify(commitment common.Hash, epoch uint64, raw []byte) ([]common.Address, error)
}

// ECDSAVerifier verifies proofs whose records are 65-byte secp256k1
// signatures, recovered with go-ethereum's crypto package.
type ECDSAVerifier struct{}

// Verify decodes the proof, rejects commitment or epoch substitution, and
// recovers every record, requiring it to match the listed signer.
func (ECDSAVerifier) Verify(commitment common.Hash, epoch uint64, raw []byte) ([]common.Address, error) {
	p, err := DecodeDecryptionProof(raw)
	if err != nil {
		return nil, err
	}
	if p.Commitment != commitment {
		return nil, ErrProofCommitment
	}
	if p.Epoch != epoch {
		return nil, ErrProofEpoch
	}

	digest := AttestationDigest(commitment, epoch)
	for i, sig := range p.Signatures {
		pub, err := gethcrypto.SigToPub(digest[:], sig)
		if err != nil {
			return nil, ErrProofBadSignature
		}
		if gethcrypto.PubkeyToAddress(*pub) != p.Signers[i] {
			return nil, ErrProofSignerMismatch
		}
	}
	return p.Signers, nil
}

// SignAttestation produces one signature record over the attestation digest.
// Used by keyper-side tooling and tests.
func SignAttestation(commitment common.Hash, epoch uint64, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := AttestationDigest(commitment, epoch)
	return gethcrypto.Sign(digest[:], key)
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
