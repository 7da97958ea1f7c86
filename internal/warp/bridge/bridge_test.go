package bridge

import (
	"testing"

	"github.com/ccoin/core/pkg/types"
)

func TestSideHashMatchesRequestedSide(t *testing.T) {
	var h types.Hash
	h[0] = 0xAB
	sib := &BoundarySibling{Side: SideLeft, Hash: h}

	got, ok := sib.SideHash(SideLeft)
	if !ok || got != h {
		t.Fatalf("SideHash(SideLeft) on a left sibling should return (hash, true); got (%v, %v)", got, ok)
	}

	_, ok = sib.SideHash(SideRight)
	if ok {
		t.Fatalf("SideHash(SideRight) on a left sibling should return ok=false")
	}
}

func TestSideHashOnNilSibling(t *testing.T) {
	var sib *BoundarySibling
	_, ok := sib.SideHash(SideLeft)
	if ok {
		t.Fatalf("SideHash on a nil sibling should always return ok=false")
	}
}

func TestBridgeHoldsOnlySuppliedLevels(t *testing.T) {
	b := &Bridge{
		Len: 4,
		Levels: []Level{
			{Head: &BoundarySibling{Side: SideLeft, Hash: types.Hash{1}}},
		},
	}
	if len(b.Levels) != 1 {
		t.Fatalf("expected exactly one populated level, got %d", len(b.Levels))
	}
	// Depths at or beyond len(Levels) supply no boundary data; callers must
	// treat that subtree as opaque rather than index out of range.
	const probeDepth = 5
	if probeDepth < len(b.Levels) {
		t.Fatalf("test setup error: probe depth must exceed populated levels")
	}
}
