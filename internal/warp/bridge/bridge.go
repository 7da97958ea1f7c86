// Package bridge implements the server-provided "bridge" summary of a
// contiguous commitment range, letting the synchronizer extend witnesses
// across a skipped subtree without per-leaf hashes.
package bridge

import "github.com/ccoin/core/pkg/types"

// Side tags which half of a compressed pair a boundary sibling occupies.
type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

// BoundarySibling is a single sibling hash at a tree depth, tagged with
// which side of the pair it belongs on.
type BoundarySibling struct {
	Side Side
	Hash types.Hash
}

// Level holds the optional head (left-boundary) and tail (right-boundary)
// siblings a bridge supplies at one tree depth.
type Level struct {
	Head *BoundarySibling
	Tail *BoundarySibling
}

// Bridge summarizes a contiguous range of Len leaves the server chose not
// to send individually. Levels[d] supplies boundary siblings at depth d;
// depths at or beyond len(Levels) contribute no siblings — the subtree is
// opaque there and its contents never touch any held witness.
type Bridge struct {
	Len    uint32
	Levels []Level
}

// SideHash returns b's hash if the side matches the requested side,
// otherwise (nil, false).
func (b *BoundarySibling) SideHash(want Side) (types.Hash, bool) {
	if b == nil || b.Side != want {
		return types.Hash{}, false
	}
	return b.Hash, true
}
