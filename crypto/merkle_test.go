package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = Keccak256Hash([]byte{byte(i)})
	}
	return leaves
}

func TestMerkleRoundTripFourLeaves(t *testing.T) {
	leaves := testLeaves(4)
	root, err := BuildMerkleRoot(leaves)
	if err != nil {
		t.Fatalf("BuildMerkleRoot error: %v", err)
	}

	for i := uint64(0); i < 4; i++ {
		proof, err := BuildMerkleProof(leaves, i)
		if err != nil {
			t.Fatalf("BuildMerkleProof(%d) error: %v", i, err)
		}
		if !VerifyMerkleProof(leaves[i], proof, root, i) {
			t.Errorf("leaf %d: proof should verify", i)
		}
	}
}

func TestMerkleFlippedBitFails(t *testing.T) {
	leaves := testLeaves(4)
	root, _ := BuildMerkleRoot(leaves)
	proof, _ := BuildMerkleProof(leaves, 2)

	// Flip a single bit in the first sibling.
	proof[0][0] ^= 0x01
	if VerifyMerkleProof(leaves[2], proof, root, 2) {
		t.Error("flipped proof bit should not verify")
	}
}

func TestMerkleWrongIndexFails(t *testing.T) {
	leaves := testLeaves(4)
	root, _ := BuildMerkleRoot(leaves)
	proof, _ := BuildMerkleProof(leaves, 1)

	if VerifyMerkleProof(leaves[1], proof, root, 2) {
		t.Error("wrong index should not verify")
	}
}

func TestMerkleOddLeafCount(t *testing.T) {
	leaves := testLeaves(5)
	root, err := BuildMerkleRoot(leaves)
	if err != nil {
		t.Fatalf("BuildMerkleRoot error: %v", err)
	}
	for i := uint64(0); i < 5; i++ {
		proof, err := BuildMerkleProof(leaves, i)
		if err != nil {
			t.Fatalf("BuildMerkleProof(%d) error: %v", i, err)
		}
		if !VerifyMerkleProof(leaves[i], proof, root, i) {
			t.Errorf("leaf %d: proof should verify with odd leaf count", i)
		}
	}
}

func TestMerkleSingleLeaf(t *testing.T) {
	leaves := testLeaves(1)
	root, err := BuildMerkleRoot(leaves)
	if err != nil {
		t.Fatalf("BuildMerkleRoot error: %v", err)
	}
	if root != leaves[0] {
		t.Error("single-leaf root should equal the leaf")
	}
	proof, err := BuildMerkleProof(leaves, 0)
	if err != nil {
		t.Fatalf("BuildMerkleProof error: %v", err)
	}
	if len(proof) != 0 {
		t.Errorf("single-leaf proof should be empty, got %d siblings", len(proof))
	}
	if !VerifyMerkleProof(leaves[0], proof, root, 0) {
		t.Error("single-leaf proof should verify")
	}
}

func TestMerkleEmptyAndRangeErrors(t *testing.T) {
	if _, err := BuildMerkleRoot(nil); err != ErrMerkleNoLeaves {
		t.Errorf("expected ErrMerkleNoLeaves, got %v", err)
	}
	if _, err := BuildMerkleProof(testLeaves(2), 2); err != ErrMerkleIndexRange {
		t.Errorf("expected ErrMerkleIndexRange, got %v", err)
	}
}

func TestOrderingRootAndProof(t *testing.T) {
	ids := testLeaves(4)
	root, err := OrderingRoot(ids)
	if err != nil {
		t.Fatalf("OrderingRoot error: %v", err)
	}

	for i := uint64(0); i < 4; i++ {
		proof, err := OrderingProof(ids, i)
		if err != nil {
			t.Fatalf("OrderingProof(%d) error: %v", i, err)
		}
		leaf := PositionLeaf(i, ids[i])
		if !VerifyMerkleProof(leaf, proof, root, i) {
			t.Errorf("position %d: ordering proof should verify", i)
		}
	}

	// A leaf verified at the wrong position must fail even with its own
	// valid sibling path.
	proof, _ := OrderingProof(ids, 0)
	leaf := PositionLeaf(1, ids[0])
	if VerifyMerkleProof(leaf, proof, root, 1) {
		t.Error("position-swapped leaf should not verify")
	}
}
