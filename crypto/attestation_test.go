package crypto

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func genKeys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []common.Address) {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([]common.Address, n)
	for i := range keys {
		k, err := gethcrypto.GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey error: %v", err)
		}
		keys[i] = k
		addrs[i] = gethcrypto.PubkeyToAddress(k.PublicKey)
	}
	return keys, addrs
}

func buildProof(t *testing.T, commitment common.Hash, epoch uint64, keys []*ecdsa.PrivateKey, addrs []common.Address) []byte {
	t.Helper()
	p := &DecryptionProof{Commitment: commitment, Epoch: epoch, Signers: addrs}
	for _, k := range keys {
		sig, err := SignAttestation(commitment, epoch, k)
		if err != nil {
			t.Fatalf("SignAttestation error: %v", err)
		}
		p.Signatures = append(p.Signatures, sig)
	}
	return p.Encode()
}

func TestDecryptionProofRoundTrip(t *testing.T) {
	keys, addrs := genKeys(t, 3)
	commitment := Keccak256Hash([]byte("call"))
	raw := buildProof(t, commitment, 7, keys, addrs)

	p, err := DecodeDecryptionProof(raw)
	if err != nil {
		t.Fatalf("DecodeDecryptionProof error: %v", err)
	}
	if p.Commitment != commitment {
		t.Error("commitment mismatch after decode")
	}
	if p.Epoch != 7 {
		t.Errorf("epoch: got %d, want 7", p.Epoch)
	}
	if len(p.Signers) != 3 || len(p.Signatures) != 3 {
		t.Errorf("got %d signers / %d sigs, want 3/3", len(p.Signers), len(p.Signatures))
	}
	for i, a := range addrs {
		if p.Signers[i] != a {
			t.Errorf("signer %d mismatch", i)
		}
	}
}

func TestECDSAVerify(t *testing.T) {
	keys, addrs := genKeys(t, 3)
	commitment := Keccak256Hash([]byte("call"))
	raw := buildProof(t, commitment, 1, keys, addrs)

	signers, err := ECDSAVerifier{}.Verify(commitment, 1, raw)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if len(signers) != 3 {
		t.Fatalf("got %d signers, want 3", len(signers))
	}
	for i, a := range addrs {
		if signers[i] != a {
			t.Errorf("signer %d mismatch", i)
		}
	}
}

func TestECDSAVerifyRejectsSubstitution(t *testing.T) {
	keys, addrs := genKeys(t, 2)
	commitment := Keccak256Hash([]byte("call"))
	other := Keccak256Hash([]byte("other"))
	raw := buildProof(t, commitment, 1, keys, addrs)

	// Different recomputed commitment.
	if _, err := (ECDSAVerifier{}).Verify(other, 1, raw); err != ErrProofCommitment {
		t.Errorf("expected ErrProofCommitment, got %v", err)
	}
	// Different epoch.
	if _, err := (ECDSAVerifier{}).Verify(commitment, 2, raw); err != ErrProofEpoch {
		t.Errorf("expected ErrProofEpoch, got %v", err)
	}
}

func TestECDSAVerifyRejectsWrongSigner(t *testing.T) {
	keys, addrs := genKeys(t, 2)
	commitment := Keccak256Hash([]byte("call"))

	// Swap the listed signer addresses so recovery cannot match.
	swapped := []common.Address{addrs[1], addrs[0]}
	raw := buildProof(t, commitment, 1, keys, swapped)

	if _, err := (ECDSAVerifier{}).Verify(commitment, 1, raw); err != ErrProofSignerMismatch {
		t.Errorf("expected ErrProofSignerMismatch, got %v", err)
	}
}

func TestDecodeShortProof(t *testing.T) {
	if _, err := DecodeDecryptionProof(make([]byte, MinDecryptionProofSize-1)); err != ErrProofTooShort {
		t.Errorf("expected ErrProofTooShort, got %v", err)
	}
	// Length above the minimum but not decomposable into records.
	if _, err := DecodeDecryptionProof(make([]byte, MinDecryptionProofSize+1)); err != ErrProofMalformed {
		t.Errorf("expected ErrProofMalformed, got %v", err)
	}
}

func TestOrderingSignatureRecovery(t *testing.T) {
	keys, addrs := genKeys(t, 1)
	blockRef := Keccak256Hash([]byte("block"))
	root := Keccak256Hash([]byte("root"))

	sig, err := SignOrdering(blockRef, root, 5, keys[0])
	if err != nil {
		t.Fatalf("SignOrdering error: %v", err)
	}
	signer, err := RecoverSigner(OrderingDigest(blockRef, root, 5), sig)
	if err != nil {
		t.Fatalf("RecoverSigner error: %v", err)
	}
	if signer != addrs[0] {
		t.Errorf("recovered %s, want %s", signer.Hex(), addrs[0].Hex())
	}

	// A digest over different contents recovers a different address.
	wrong, err := RecoverSigner(OrderingDigest(blockRef, root, 6), sig)
	if err == nil && wrong == addrs[0] {
		t.Error("signature should not bind to a different txCount")
	}
}
