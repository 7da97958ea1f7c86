package witness

import (
	"testing"

	"github.com/ccoin/core/internal/warp/hasher"
	"github.com/ccoin/core/pkg/types"
)

func TestEmptyEdgeRootMatchesHasherEmptyRoot(t *testing.T) {
	h := hasher.NewSaplingHasher()
	var e Edge
	got := e.Root(h)
	want := h.EmptyRoot(h.Depth())
	if got != want {
		t.Fatalf("an edge with no leaves should report the hasher's empty root: got %v want %v", got, want)
	}
}

func TestWitnessRootMatchesManualFold(t *testing.T) {
	h := hasher.NewOrchardHasher()
	var leaf types.Hash
	leaf[0] = 0x42

	w := &Witness{Position: 0, Value: leaf}
	path := AuthPath{Edge: Edge{}, H: h}

	got := w.Root(path)

	cur := leaf
	for d := uint8(0); d < h.Depth(); d++ {
		cur = h.Combine(d, &cur, nil)
	}
	if got != cur {
		t.Fatalf("Witness.Root must match a manual left-fold with nil siblings: got %v want %v", got, cur)
	}
}

func TestWitnessRootUsesOmmerWhenPresent(t *testing.T) {
	h := hasher.NewSaplingHasher()
	var leaf, ommer0 types.Hash
	leaf[0] = 1
	ommer0[0] = 2

	w := &Witness{Position: 1, Value: leaf} // odd position: leaf is the right child at depth 0
	w.Ommers[0] = &ommer0
	path := AuthPath{Edge: Edge{}, H: h}

	got := w.Root(path)

	cur := h.Combine(0, &ommer0, &leaf)
	for d := uint8(1); d < h.Depth(); d++ {
		cur = h.Combine(d, &cur, nil)
	}
	if got != cur {
		t.Fatalf("Witness.Root did not fold the depth-0 ommer correctly: got %v want %v", got, cur)
	}
}

func TestEdgeRootAdvancesWithFilledSlot(t *testing.T) {
	h := hasher.NewOrchardHasher()
	var e Edge
	var leaf types.Hash
	leaf[0] = 7
	e[0] = &leaf

	got := e.Root(h)
	want := h.EmptyRoot(h.Depth())
	if got == want {
		t.Fatalf("a frontier with a filled slot must diverge from the empty-tree root")
	}
}
