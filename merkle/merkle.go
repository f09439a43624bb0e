package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// RootPrefix is the conventional prefix on hex-encoded roots.
const RootPrefix = "0x"

// ErrEmptyBatch is returned when a tree is requested over zero leaves.
var ErrEmptyBatch = errors.New("empty batch")

// Tree is a hash tree over an ordered batch of leaf values. Layer 0 holds
// the leaf hashes; the sole value of the top layer is the root. Leaves are
// hashed once before insertion so a raw leaf value can never be confused
// with an internal node hash.
//
// Pairs are combined in byte order, H(min || max), so a proof verifies
// without knowing left/right placement. When a layer has an odd count the
// final node is promoted unchanged to the next layer — it is not
// duplicated. Duplicating would let a batch that is a prefix of another
// produce the same root; the cost of promotion is that the promoted
// node's proof is one element shorter than its siblings'.
type Tree struct {
	layers [][][]byte
}

// NewTree builds a tree over the ordered leaf values. Construction is
// O(n) in the number of leaves.
func NewTree(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyBatch
	}

	layer := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		layer[i] = leafHash(leaf)
	}

	layers := [][][]byte{layer}
	for len(layer) > 1 {
		next := make([][]byte, 0, (len(layer)+1)/2)
		for i := 0; i+1 < len(layer); i += 2 {
			next = append(next, combine(layer[i], layer[i+1]))
		}
		if len(layer)%2 == 1 {
			next = append(next, layer[len(layer)-1])
		}
		layers = append(layers, next)
		layer = next
	}

	return &Tree{layers: layers}, nil
}

// LeafCount returns the number of leaves in the batch.
func (t *Tree) LeafCount() int {
	return len(t.layers[0])
}

// RootBytes returns the raw root hash.
func (t *Tree) RootBytes() []byte {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Root returns the hex-encoded root with the standard prefix.
func (t *Tree) Root() string {
	return RootPrefix + hex.EncodeToString(t.RootBytes())
}

// Proof returns the inclusion proof for the leaf at the given index: the
// ordered sibling hashes needed to recompute the root. A node promoted
// through an odd layer contributes no sibling at that depth, so proof
// lengths may differ by one within the same tree.
func (t *Tree) Proof(index int) ([][]byte, error) {
	if index < 0 || index >= t.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, t.LeafCount())
	}

	proof := make([][]byte, 0, len(t.layers)-1)
	for depth := 0; depth < len(t.layers)-1; depth++ {
		layer := t.layers[depth]
		sibling := index ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}

// ProofHex returns the inclusion proof as hex strings for the wire.
func (t *Tree) ProofHex(index int) ([]string, error) {
	proof, err := t.Proof(index)
	if err != nil {
		return nil, err
	}
	encoded := make([]string, len(proof))
	for i, h := range proof {
		encoded[i] = hex.EncodeToString(h)
	}
	return encoded, nil
}

// VerifyProof recomputes the root from a leaf value and its proof and
// compares it to the expected root. A mismatch is a normal false result,
// never an error.
func VerifyProof(leaf []byte, proof [][]byte, root string) bool {
	current := leafHash(leaf)
	for _, sibling := range proof {
		current = combine(current, sibling)
	}
	want := strings.ToLower(strings.TrimPrefix(root, RootPrefix))
	return hex.EncodeToString(current) == want
}

// VerifyProofHex is VerifyProof over a hex-encoded proof. Undecodable
// proof elements fail verification rather than erroring.
func VerifyProofHex(leaf []byte, proof []string, root string) bool {
	decoded := make([][]byte, len(proof))
	for i, s := range proof {
		h, err := hex.DecodeString(strings.TrimPrefix(s, RootPrefix))
		if err != nil {
			return false
		}
		decoded[i] = h
	}
	return VerifyProof(leaf, decoded, root)
}

// leafHash hashes a raw leaf value before insertion.
func leafHash(leaf []byte) []byte {
	sum := sha256.Sum256(leaf)
	return sum[:]
}

// combine hashes an ordered pair: the smaller value by byte comparison
// always goes first.
func combine(a, b []byte) []byte {
	h := sha256.New()
	if bytes.Compare(a, b) <= 0 {
		h.Write(a)
		h.Write(b)
	} else {
		h.Write(b)
		h.Write(a)
	}
	return h.Sum(nil)
}
