// Package anchor batches registered content hashes into a Merkle tree so a
// single root can attest to every artwork in the batch. Each item keeps its
// inclusion proof for later spot checks against the published root.
package anchor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"artregistry/contenthash"
	"artregistry/merkle"
	"artregistry/types"
)

// BuildBatch assembles an anchor batch from the given content hashes. The
// hashes keep their input order; each item records its leaf position and
// inclusion proof. An empty input is an error.
func BuildBatch(hashes []string) (*types.AnchorBatch, error) {
	if len(hashes) == 0 {
		return nil, merkle.ErrEmptyBatch
	}

	leaves := make([][]byte, len(hashes))
	for i, h := range hashes {
		leaf, err := contenthash.Bytes(h)
		if err != nil {
			return nil, fmt.Errorf("invalid content hash at position %d: %v", i, err)
		}
		leaves[i] = leaf
	}

	tree, err := merkle.NewTree(leaves)
	if err != nil {
		return nil, err
	}

	batch := &types.AnchorBatch{
		BatchID:    uuid.New().String(),
		Root:       tree.Root(),
		Items:      make([]types.AnchorItem, len(hashes)),
		AnchoredAt: time.Now().UTC(),
	}
	for i, h := range hashes {
		proof, err := tree.ProofHex(i)
		if err != nil {
			return nil, err
		}
		batch.Items[i] = types.AnchorItem{
			ContentHash: contenthash.Normalize(h),
			Position:    i,
			Proof:       proof,
		}
	}
	return batch, nil
}

// VerifyItem checks that a content hash is covered by the batch root using
// its stored inclusion proof. Sibling hashes are combined in byte order, so
// the leaf position is not needed to replay the proof.
func VerifyItem(hash string, proof []string, root string) bool {
	leaf, err := contenthash.Bytes(hash)
	if err != nil {
		return false
	}
	return merkle.VerifyProofHex(leaf, proof, root)
}
