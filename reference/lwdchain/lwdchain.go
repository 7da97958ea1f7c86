// Package lwdchain implements an in-memory core.ChainSource fixture:
// a fixed set of compact blocks and transparent txids served back
// exactly as a light-wallet server would, without any network
// round-trip. It exists so the sync and payment packages can be tested
// without a live server, and as a template for a real RPC-backed
// ChainSource.
package lwdchain

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ccoin/core/internal/core"
	syncpkg "github.com/ccoin/core/internal/warp/sync"
	"github.com/ccoin/core/pkg/types"
)

// Chain is an in-memory, append-only sequence of compact blocks plus a
// per-address index of transparent txids, guarded by a single mutex
// since it is meant for tests and local development, not throughput.
type Chain struct {
	mu sync.RWMutex

	blocks    map[uint32]*syncpkg.CompactBlock
	frontiers map[uint32]core.TreeFrontiers
	txids     map[string][]types.Hash
	raw       map[types.Hash]rawTx
}

type rawTx struct {
	height uint32
	bytes  []byte
}

// New returns an empty Chain.
func New() *Chain {
	return &Chain{
		blocks:    make(map[uint32]*syncpkg.CompactBlock),
		frontiers: make(map[uint32]core.TreeFrontiers),
		txids:     make(map[string][]types.Hash),
		raw:       make(map[types.Hash]rawTx),
	}
}

// PutBlock registers a compact block (and its frontier snapshot) as
// being served at its own height.
func (c *Chain) PutBlock(block *syncpkg.CompactBlock, frontier core.TreeFrontiers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[block.Height] = block
	c.frontiers[block.Height] = frontier
}

// PutTransparentTxid indexes a txid as touching address.
func (c *Chain) PutTransparentTxid(address string, txid types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txids[address] = append(c.txids[address], txid)
}

// PutRawTransaction registers the raw bytes a GetTransaction call should
// return for txid.
func (c *Chain) PutRawTransaction(txid types.Hash, height uint32, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw[txid] = rawTx{height: height, bytes: raw}
}

var _ core.ChainSource = (*Chain)(nil)

// LatestHeight returns the highest height registered via PutBlock.
func (c *Chain) LatestHeight(ctx context.Context) (uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var max uint32
	found := false
	for h := range c.blocks {
		if !found || h > max {
			max = h
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("lwdchain: no blocks registered")
	}
	return max, nil
}

// CompactBlock returns the block registered at height.
func (c *Chain) CompactBlock(ctx context.Context, height uint32) (*syncpkg.CompactBlock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.blocks[height]
	if !ok {
		return nil, fmt.Errorf("lwdchain: no block at height %d", height)
	}
	return b, nil
}

// CompactBlockRange streams every registered block in [start, end] in
// increasing height order.
func (c *Chain) CompactBlockRange(ctx context.Context, start, end uint32, recv func(*syncpkg.CompactBlock) error) error {
	c.mu.RLock()
	var heights []uint32
	for h := range c.blocks {
		if h >= start && h <= end {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	blocks := make([]*syncpkg.CompactBlock, len(heights))
	for i, h := range heights {
		blocks[i] = c.blocks[h]
	}
	c.mu.RUnlock()

	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := recv(b); err != nil {
			return err
		}
	}
	return nil
}

// TreeState returns the frontier snapshot registered alongside the
// block at height.
func (c *Chain) TreeState(ctx context.Context, height uint32) (core.TreeFrontiers, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.frontiers[height]
	if !ok {
		return core.TreeFrontiers{}, fmt.Errorf("lwdchain: no tree state at height %d", height)
	}
	return f, nil
}

// TransparentTxids streams the txids indexed against address whose
// confirming block falls in [start, end]. A txid with no transaction
// registered via PutRawTransaction has no known height and is streamed
// without filtering.
func (c *Chain) TransparentTxids(ctx context.Context, address string, start, end uint32, recv func(types.Hash) error) error {
	c.mu.RLock()
	ids := append([]types.Hash(nil), c.txids[address]...)
	c.mu.RUnlock()

	for _, id := range ids {
		rt, ok := c.raw[id]
		if ok && (rt.height < start || rt.height > end) {
			continue
		}
		if err := recv(id); err != nil {
			return err
		}
	}
	return nil
}

// GetTransaction returns the raw bytes registered via PutRawTransaction.
func (c *Chain) GetTransaction(ctx context.Context, txid types.Hash) (uint32, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rt, ok := c.raw[txid]
	if !ok {
		return 0, nil, fmt.Errorf("lwdchain: unknown transaction %s", txid.String())
	}
	return rt.height, rt.bytes, nil
}

// SendTransaction accepts any non-empty raw transaction and rejects an
// empty one with an error: this fixture never validates consensus rules
// and does not record what it was sent.
func (c *Chain) SendTransaction(ctx context.Context, raw []byte) (core.TxStatus, error) {
	if len(raw) == 0 {
		return core.TxStatusRejected, fmt.Errorf("lwdchain: empty transaction")
	}
	return core.TxStatusAccepted, nil
}
