// Package witness implements per-note Merkle authentication paths and the
// right-frontier (edge) representation of a growing commitment tree.
package witness

import (
	"github.com/ccoin/core/internal/warp/hasher"
	"github.com/ccoin/core/pkg/types"
)

// MaxDepth bounds the ommer arrays; both pool depths in this module are
// equal to it.
const MaxDepth = 32

// Witness is a note's Merkle authentication path: its leaf position, its
// own commitment value, and one sibling ("ommer") per tree depth. A nil
// ommer means the sibling is a known empty subtree.
type Witness struct {
	Position uint64
	Value    types.Hash
	Ommers   [MaxDepth]*types.Hash
}

// AuthPath pairs an Edge with the hasher Witness.Root folds with.
// Witness.Root uses only H; the Edge is carried along but not read.
type AuthPath struct {
	Edge Edge
	H    hasher.Hasher
}

// Root recomputes the Merkle root that w.Witness authenticates to,
// climbing from the leaf using only the witness's own ommers; a nil
// ommer is combined as the empty subtree at that depth (the hasher's
// EmptyRoot). The path's Edge is not consulted.
func (w *Witness) Root(path AuthPath) types.Hash {
	h := path.H
	depth := h.Depth()
	cur := w.Value
	idx := w.Position
	for d := uint8(0); d < depth; d++ {
		sibling := w.Ommers[d]
		var combined types.Hash
		if idx%2 == 0 {
			combined = h.Combine(d, &cur, sibling)
		} else {
			combined = h.Combine(d, sibling, &cur)
		}
		cur = combined
		idx >>= 1
	}
	return cur
}

// Edge (frontier) represents the right-most path of the growing tree:
// slot d is set iff the subtree at depth d has an odd count of leaves to
// its left.
type Edge [MaxDepth]*types.Hash

// AuthPath pairs this edge with a hasher to build an AuthPath usable by
// Witness.Root.
func (e Edge) AuthPath(h hasher.Hasher) AuthPath {
	return AuthPath{Edge: e, H: h}
}

// Root computes the current tree root implied by this frontier: the
// right-most path folded against empty subtrees up to the hasher's
// depth. An empty tree's root is the hasher's empty root at full depth.
func (e Edge) Root(h hasher.Hasher) types.Hash {
	depth := h.Depth()
	var cur *types.Hash
	for d := uint8(0); d < depth; d++ {
		slot := e[d]
		if slot == nil && cur == nil {
			continue
		}
		var combined types.Hash
		if slot != nil {
			combined = h.Combine(d, slot, cur)
		} else {
			combined = h.Combine(d, cur, nil)
		}
		cur = &combined
	}
	if cur == nil {
		r := h.EmptyRoot(depth)
		return r
	}
	return *cur
}
