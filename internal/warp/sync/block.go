package sync

import (
	"github.com/ccoin/core/internal/warp/bridge"
	"github.com/ccoin/core/internal/warp/decrypt"
	"github.com/ccoin/core/pkg/types"
)

// CompactSpend is the nullifier half of a shielded spend description, the
// only field the sync core needs for spend detection.
type CompactSpend struct {
	Nullifier types.Hash
}

// CompactTx is one transaction's worth of compact-block data: the
// outputs to trial-decrypt, the spends to match against held nullifiers,
// and an optional bridge summarizing a skipped leaf range that was
// appended immediately after this transaction's concrete outputs.
type CompactTx struct {
	Hash    types.Hash
	Outputs []decrypt.CompactOutput
	Spends  []CompactSpend
	Bridge  *bridge.Bridge
}

// BridgeLen returns the number of leaves this transaction's bridge
// contributes, or 0 if it has none.
func (t *CompactTx) BridgeLen() uint32 {
	if t.Bridge == nil {
		return 0
	}
	return t.Bridge.Len
}

// CompactBlock is the per-pool view of a light-wallet server's compact
// block: just enough to trial-decrypt, extend witnesses, and detect
// spends.
type CompactBlock struct {
	Height uint32
	Time   uint64
	Vtx    []CompactTx
}
