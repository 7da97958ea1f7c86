// Package hasher implements the pool-specific two-to-one compression
// functions over commitment tree nodes, with empty-subtree hashes
// precomputed by depth.
package hasher

import (
	"context"
	"runtime"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/ccoin/core/pkg/types"
)

// Hasher is the per-pool commitment-tree compression capability. None of
// the core's sync or witness logic depends on a specific curve or
// compression function; only the methods below are used.
type Hasher interface {
	// Combine compresses left and right at the given depth. A nil operand
	// is treated as the empty-subtree hash at that depth.
	Combine(depth uint8, left, right *types.Hash) types.Hash

	// EmptyRoot returns the root of an empty subtree of the given depth.
	EmptyRoot(depth uint8) types.Hash

	// ParallelCombineOpt returns a vector of pairs elements where
	// out[i] = Combine(depth, nodes[2i], nodes[2i+1]); both-nil pairs
	// yield nil (sparsity propagates).
	ParallelCombineOpt(ctx context.Context, depth uint8, nodes []*types.Hash, pairs int) []*types.Hash

	// Depth returns the pool's fixed Merkle depth.
	Depth() uint8
}

// parallelThreshold is the minimum pair count below which fan-out to the
// work pool is not worth the goroutine overhead.
const parallelThreshold = 256

// domainHasher is the shared implementation behind SaplingHasher and
// OrchardHasher: a BLAKE2b compression function domain-separated by pool
// tag and depth, with a lazily memoized empty-hash table.
type domainHasher struct {
	tag        byte
	depth      uint8
	emptyCache []types.Hash
}

func newDomainHasher(tag byte, depth uint8) *domainHasher {
	h := &domainHasher{tag: tag, depth: depth}
	h.emptyCache = make([]types.Hash, depth+1)
	h.emptyCache[0] = blake2bSum(tag, 0, zeroLeaf(tag)[:], zeroLeaf(tag)[:])
	for d := uint8(1); d <= depth; d++ {
		prev := h.emptyCache[d-1]
		h.emptyCache[d] = blake2bSum(tag, d, prev[:], prev[:])
	}
	return h
}

// zeroLeaf is the pool's canonical "uncommitted" leaf value, used as the
// base case for the empty-hash recursion (depth 0's empty subtree is the
// hash of two zero leaves, not a magic constant).
func zeroLeaf(tag byte) types.Hash {
	var z types.Hash
	z[0] = tag
	return z
}

func blake2bSum(tag byte, depth uint8, left, right []byte) types.Hash {
	personal := make([]byte, 16)
	personal[0] = 'C'
	personal[1] = 'W'
	personal[2] = tag
	personal[3] = depth
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 with a nil key never errors; this is unreachable.
		panic(err)
	}
	h.Write(personal)
	h.Write(left)
	h.Write(right)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (d *domainHasher) Depth() uint8 { return d.depth }

func (d *domainHasher) EmptyRoot(depth uint8) types.Hash {
	if int(depth) >= len(d.emptyCache) {
		depth = uint8(len(d.emptyCache) - 1)
	}
	return d.emptyCache[depth]
}

func (d *domainHasher) Combine(depth uint8, left, right *types.Hash) types.Hash {
	empty := d.EmptyRoot(depth)
	l, r := empty, empty
	if left != nil {
		l = *left
	}
	if right != nil {
		r = *right
	}
	return blake2bSum(d.tag, depth, l[:], r[:])
}

func (d *domainHasher) ParallelCombineOpt(ctx context.Context, depth uint8, nodes []*types.Hash, pairs int) []*types.Hash {
	out := make([]*types.Hash, pairs)

	compute := func(i int) {
		var l, r *types.Hash
		if 2*i < len(nodes) {
			l = nodes[2*i]
		}
		if 2*i+1 < len(nodes) {
			r = nodes[2*i+1]
		}
		if l == nil && r == nil {
			out[i] = nil
			return
		}
		h := d.Combine(depth, l, r)
		out[i] = &h
	}

	if pairs < parallelThreshold {
		for i := 0; i < pairs; i++ {
			compute(i)
		}
		return out
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (pairs + workers - 1) / workers
	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= pairs {
			break
		}
		if end > pairs {
			end = pairs
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				compute(i)
			}
			return nil
		})
	}
	_ = g.Wait() // compute never returns an error
	return out
}
