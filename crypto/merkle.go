// Merkle inclusion proofs over position-bound leaves.
//
// Ordering commitments root a batch of transaction ids in a binary tree.
// The leaf binds the transaction hash to its position, so a proof attests
// to both membership and order. Proofs are ordered sibling hashes combined
// pairwise bottom-up; at each level the current index's parity selects
// whether the sibling concatenates on the left or the right.
package crypto

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Merkle errors.
var (
	ErrMerkleNoLeaves    = errors.New("merkle: no leaves")
	ErrMerkleIndexRange  = errors.New("merkle: leaf index out of range")
)

// PositionLeaf computes the leaf hash binding a transaction hash to its
// position in the ordered batch: keccak256(position || txHash).
func PositionLeaf(position uint64, txHash common.Hash) common.Hash {
	return Keccak256Hash(Uint64Bytes(position), txHash[:])
}

// VerifyMerkleProof folds the proof pairwise from leaf up to the root.
// It returns false on mismatch rather than an error: a failed proof is an
// answer, not a fault.
func VerifyMerkleProof(leaf common.Hash, proof []common.Hash, root common.Hash, index uint64) bool {
	node := leaf
	for _, sibling := range proof {
		if index%2 == 0 {
			node = Keccak256Hash(node[:], sibling[:])
		} else {
			node = Keccak256Hash(sibling[:], node[:])
		}
		index /= 2
	}
	return node == root
}

// BuildMerkleRoot computes the root of a binary tree over the given leaves.
// Odd levels are padded by duplicating the last node, so the same rule must
// be used when generating proofs.
func BuildMerkleRoot(leaves []common.Hash) (common.Hash, error) {
	if len(leaves) == 0 {
		return common.Hash{}, ErrMerkleNoLeaves
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]common.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Keccak256Hash(level[i][:], level[i+1][:]))
		}
		level = next
	}
	return level[0], nil
}

// BuildMerkleProof returns the sibling path for the leaf at index, ordered
// bottom-up, compatible with VerifyMerkleProof.
func BuildMerkleProof(leaves []common.Hash, index uint64) ([]common.Hash, error) {
	if len(leaves) == 0 {
		return nil, ErrMerkleNoLeaves
	}
	if index >= uint64(len(leaves)) {
		return nil, ErrMerkleIndexRange
	}

	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	var proof []common.Hash
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		proof = append(proof, level[index^1])

		next := make([]common.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Keccak256Hash(level[i][:], level[i+1][:]))
		}
		level = next
		index /= 2
	}
	return proof, nil
}

// OrderingRoot builds the ordering root over transaction ids: leaf i is
// PositionLeaf(i, ids[i]). This is the root committed by the sequencer and
// checked by position verification.
func OrderingRoot(ids []common.Hash) (common.Hash, error) {
	if len(ids) == 0 {
		return common.Hash{}, ErrMerkleNoLeaves
	}
	leaves := make([]common.Hash, len(ids))
	for i, id := range ids {
		leaves[i] = PositionLeaf(uint64(i), id)
	}
	return BuildMerkleRoot(leaves)
}

// OrderingProof builds the position proof for ids[index] under OrderingRoot.
func OrderingProof(ids []common.Hash, index uint64) ([]common.Hash, error) {
	if index >= uint64(len(ids)) {
		return nil, ErrMerkleIndexRange
	}
	leaves := make([]common.Hash, len(ids))
	for i, id := range ids {
		leaves[i] = PositionLeaf(uint64(i), id)
	}
	return BuildMerkleProof(leaves, index)
}
