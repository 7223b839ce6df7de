//go:build blst

// BLS attestation backend over supranational/blst, MinPk scheme:
// 48-byte compressed G1 public key shares, 96-byte compressed G2 signature
// records. Same wire layout as the ECDSA proof, with 96-byte records.
//
// Build with: go build -tags blst
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	blst "github.com/supranational/blst/bindings/go"
)

// blstDST is the domain separation tag for BLS attestation signatures.
var blstDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// BLSSignatureSize is the compressed G2 signature size for the MinPk scheme.
// The matching public key share size is KeyShareSize (compressed G1).
const BLSSignatureSize = 96

// KeyShareLookup resolves a keyper address to its registered 48-byte
// compressed public key share.
type KeyShareLookup func(addr common.Address) ([]byte, bool)

// BLSVerifier verifies proofs whose records are 96-byte BLS signatures,
// each checked against the signer's registered key share.
type BLSVerifier struct {
	// KeyShare resolves registered key shares; signers without one fail
	// verification.
	KeyShare KeyShareLookup
}

// Verify decodes the proof, rejects commitment or epoch substitution, and
// verifies every BLS record against the listed signer's key share.
func (v BLSVerifier) Verify(commitment common.Hash, epoch uint64, raw []byte) ([]common.Address, error) {
	p, err := decodeProofRecords(raw, BLSSignatureSize)
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
	for i, sigBytes := range p.Signatures {
		shareBytes, ok := v.KeyShare(p.Signers[i])
		if !ok {
			return nil, ErrProofSignerMismatch
		}
		pk := new(blst.P1Affine).Uncompress(shareBytes)
		if pk == nil {
			return nil, ErrProofBadSignature
		}
		sig := new(blst.P2Affine).Uncompress(sigBytes)
		if sig == nil {
			return nil, ErrProofBadSignature
		}
		if !sig.Verify(true, pk, true, digest[:], blstDST) {
			return nil, ErrProofBadSignature
		}
	}
	return p.Signers, nil
}

// BLSSignAttestation signs the attestation digest with a serialized 32-byte
// secret key, returning the compressed 96-byte record.
func BLSSignAttestation(commitment common.Hash, epoch uint64, secretKey []byte) ([]byte, error) {
	sk := new(blst.SecretKey).Deserialize(secretKey)
	if sk == nil {
		return nil, ErrProofBadSignature
	}
	digest := AttestationDigest(commitment, epoch)
	sig := new(blst.P2Affine).Sign(sk, digest[:], blstDST)
	if sig == nil {
		return nil, ErrProofBadSignature
	}
	return sig.Compress(), nil
}
