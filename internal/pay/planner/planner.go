// Package planner implements payment planning: expanding recipients into
// pool-aware extended payments, greedily selecting input notes under the
// fee model, routing change, and emitting an UnsignedTransaction.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ccoin/core/internal/pay/fee"
	"github.com/ccoin/core/internal/pay/tx"
	"github.com/ccoin/core/internal/walleterr"
	"github.com/ccoin/core/internal/warp/witness"
	"github.com/ccoin/core/pkg/common"
	"github.com/ccoin/core/pkg/types"
)

// DustThreshold is the minimum change value worth creating a dedicated
// output for; anything smaller is folded into the fee.
const DustThreshold = 5_000

// PaymentItem is one recipient: an address, an amount, and a memo (only
// meaningful for a shielded destination).
type PaymentItem struct {
	Address string
	Amount  uint64
	Memo    []byte
}

// Payment is a full payment request: the recipients and the mask of
// pools the caller is willing to draw funds from.
type Payment struct {
	SrcPools   types.PoolMask
	Recipients []PaymentItem
}

// ExtendedPayment is a recipient expanded with its destination pool.
type ExtendedPayment struct {
	Item      PaymentItem
	Amount    uint64
	Remaining uint64
	Pool      types.Pool
}

// decodeAddressPool classifies an address string into the pool that
// receives it. A transparent address (a hex-encoded 20-byte hash prefixed
// with "t:") resolves to PoolTransparent; "s:"/"o:" resolve to the
// corresponding shielded pool; anything else is undecodable.
//
// This is a deliberately simple stand-in for full Bech32/unified-address
// parsing: the planner's algorithm does not depend on the encoding, only
// on which pool(s) an address resolves to.
func decodeAddressPool(address string) (types.Pool, error) {
	switch {
	case strings.HasPrefix(address, "t:"):
		return types.PoolTransparent, nil
	case strings.HasPrefix(address, "s:"):
		return types.PoolSapling, nil
	case strings.HasPrefix(address, "o:"):
		return types.PoolOrchard, nil
	default:
		return 0, fmt.Errorf("%w: %q", walleterr.ErrAddressUndecodable, address)
	}
}

// CandidateNote is one spendable input the store offered the planner:
// enough data to spend it plus its witness if shielded.
type CandidateNote struct {
	Pool      types.Pool
	Value     uint64
	Txid      types.Hash
	Vout      uint32
	Diversifier [11]byte
	Rseed     types.Hash
	Rho       *types.Hash
	Witness   witness.Witness
}

// ChangeAddress is the wallet's own address in one pool, used for the
// single change output a plan may emit.
type ChangeAddress struct {
	Pool      types.Pool
	Address   string
	PKH       []byte
	Diversifier [11]byte
}

// Input bundles everything the planner needs that would otherwise come
// from Store: candidate notes, the account's change addresses, and the
// checkpoint's authentication data for the shielded pools.
type Input struct {
	Network     string
	Account     uint32
	AccountName string
	AccountID   types.Hash
	Height      uint32

	Candidates []CandidateNote
	Changes    []ChangeAddress

	SaplingEdge witness.Edge
	OrchardEdge witness.Edge
	SaplingHasher Hasher
	OrchardHasher Hasher
}

// Hasher is the subset of hasher.Hasher the planner needs to resolve a
// frontier's root; declared locally to avoid importing the concrete
// hasher package just for these methods.
type Hasher interface {
	Depth() uint8
	Combine(depth uint8, left, right *types.Hash) types.Hash
	EmptyRoot(depth uint8) types.Hash
}

// crossingOrder is the fixed turnstile-crossing order the planner falls
// back to when a pool runs out of same-pool candidates: value leaves the
// Orchard-like pool first, then Sapling-like, then transparent.
var crossingOrder = []types.Pool{types.PoolOrchard, types.PoolSapling, types.PoolTransparent}

// DefaultChangePool returns the highest-privacy pool set in srcPools,
// the change pool Plan falls back to when the caller does not name one
// explicitly.
func DefaultChangePool(srcPools types.PoolMask) types.Pool {
	switch {
	case srcPools.Has(types.PoolOrchard):
		return types.PoolOrchard
	case srcPools.Has(types.PoolSapling):
		return types.PoolSapling
	default:
		return types.PoolTransparent
	}
}

// Plan runs the full payment-planning algorithm and returns a ready-to-
// sign UnsignedTransaction. changePool names the pool the change output
// (if any) lands in; pass nil to use DefaultChangePool(payment.SrcPools).
func Plan(in Input, payment Payment, useChange bool, changePool *types.Pool) (*tx.UnsignedTransaction, error) {
	extended, err := expand(payment)
	if err != nil {
		return nil, err
	}

	cp := DefaultChangePool(payment.SrcPools)
	if changePool != nil {
		cp = *changePool
	}

	byPool := groupCandidates(in.Candidates)
	for _, notes := range byPool {
		sort.Slice(notes, func(i, j int) bool { return notes[i].Value > notes[j].Value })
	}

	fm := fee.New()
	var selected []tx.TxInput
	var totalIn uint64
	var totalOut uint64

	for i := range extended {
		ep := &extended[i]
		totalOut += ep.Amount
		fm.AddOutput(uint8(ep.Pool))
	}

	need := func() uint64 { return totalOut + fm.Fee() }

	// Prefer same-pool inputs first, visiting pools in the order
	// recipients touched them, then fall back to the fixed turnstile
	// crossing order for any shortfall.
	order := pooledOrder(extended)
	for _, p := range order {
		for totalIn < need() && len(byPool[p]) > 0 {
			n := byPool[p][0]
			byPool[p] = byPool[p][1:]
			selected = append(selected, toTxInput(n, fm))
			totalIn += n.Value
		}
	}
	for _, p := range crossingOrder {
		for totalIn < need() && len(byPool[p]) > 0 {
			n := byPool[p][0]
			byPool[p] = byPool[p][1:]
			selected = append(selected, toTxInput(n, fm))
			totalIn += n.Value
		}
	}

	if totalIn < need() {
		return nil, fmt.Errorf("%w: have %d need %d", walleterr.ErrInsufficientFunds, totalIn, need())
	}

	outputs, err := buildOutputs(extended)
	if err != nil {
		return nil, err
	}

	leftover := totalIn - need()
	if useChange && leftover > 0 {
		// Adding the change output is itself an action the fee manager must
		// charge for, so tentatively account for it on a scratch copy
		// first: whether the resulting leftover still clears the dust
		// threshold depends on the fee it would add.
		tentative := *fm
		tentative.AddOutput(uint8(cp))
		var actual uint64
		if spare := totalIn - totalOut; spare > tentative.Fee() {
			actual = spare - tentative.Fee()
		}

		if actual < DustThreshold {
			// dust folds into the fee: the plan simply does not emit a
			// change output, and the leftover value is absorbed as extra
			// fee paid.
		} else {
			ca, err := findChangeAddress(in.Changes, cp)
			if err != nil {
				return nil, err
			}
			fm.AddOutput(uint8(cp))
			outputs = append(outputs, changeOutput(ca, totalIn-totalOut-fm.Fee()))
		}
	}

	sEdge, oEdge, sRoot, oRoot := in.SaplingEdge, in.OrchardEdge, types.Hash{}, types.Hash{}
	if in.SaplingHasher != nil {
		sRoot = sEdge.Root(hasherAdapter{in.SaplingHasher})
	}
	if in.OrchardHasher != nil {
		oRoot = oEdge.Root(hasherAdapter{in.OrchardHasher})
	}

	utx := &tx.UnsignedTransaction{
		Account:     in.Account,
		AccountName: in.AccountName,
		AccountID:   in.AccountID,
		Height:      in.Height,
		Roots:       [2]types.Hash{sRoot, oRoot},
		TxNotes:     selected,
		TxOutputs:   outputs,
		Fee:         fm.Fee(),
	}
	if in.SaplingHasher != nil {
		utx.Edges[0] = sEdge.AuthPath(hasherAdapter{in.SaplingHasher})
	}
	if in.OrchardHasher != nil {
		utx.Edges[1] = oEdge.AuthPath(hasherAdapter{in.OrchardHasher})
	}

	return utx, nil
}

// hasherAdapter lets the narrow planner.Hasher satisfy hasher.Hasher's
// richer interface wherever witness.Edge needs it, without importing
// the concrete hasher package.
type hasherAdapter struct{ Hasher }

func (a hasherAdapter) Depth() uint8 { return a.Hasher.Depth() }
func (a hasherAdapter) Combine(depth uint8, left, right *types.Hash) types.Hash {
	return a.Hasher.Combine(depth, left, right)
}
func (a hasherAdapter) EmptyRoot(depth uint8) types.Hash { return a.Hasher.EmptyRoot(depth) }
func (a hasherAdapter) ParallelCombineOpt(_ context.Context, depth uint8, nodes []*types.Hash, pairs int) []*types.Hash {
	out := make([]*types.Hash, pairs)
	for i := 0; i < pairs; i++ {
		var l, r *types.Hash
		if 2*i < len(nodes) {
			l = nodes[2*i]
		}
		if 2*i+1 < len(nodes) {
			r = nodes[2*i+1]
		}
		if l == nil && r == nil {
			continue
		}
		h := a.Hasher.Combine(depth, l, r)
		out[i] = &h
	}
	return out
}

func expand(payment Payment) ([]ExtendedPayment, error) {
	extended := make([]ExtendedPayment, 0, len(payment.Recipients))
	for _, item := range payment.Recipients {
		pool, err := decodeAddressPool(item.Address)
		if err != nil {
			return nil, err
		}
		extended = append(extended, ExtendedPayment{
			Item:      item,
			Amount:    item.Amount,
			Remaining: item.Amount,
			Pool:      pool,
		})
	}
	return extended, nil
}

func groupCandidates(candidates []CandidateNote) map[types.Pool][]CandidateNote {
	byPool := make(map[types.Pool][]CandidateNote)
	for _, c := range candidates {
		byPool[c.Pool] = append(byPool[c.Pool], c)
	}
	return byPool
}

// pooledOrder returns the distinct pools touched by the recipients, in
// first-seen order, so the greedy selector prefers same-pool inputs
// before falling back to turnstile crossing.
func pooledOrder(extended []ExtendedPayment) []types.Pool {
	seen := make(map[types.Pool]bool)
	var order []types.Pool
	for _, ep := range extended {
		if !seen[ep.Pool] {
			seen[ep.Pool] = true
			order = append(order, ep.Pool)
		}
	}
	return order
}

func toTxInput(n CandidateNote, fm *fee.Manager) tx.TxInput {
	fm.AddInput(uint8(n.Pool))
	return tx.TxInput{
		Pool:      n.Pool,
		Amount:    n.Value,
		Remaining: n.Value,
		Note: tx.InputNote{
			Txid:        n.Txid,
			Vout:        n.Vout,
			Diversifier: n.Diversifier,
			Rseed:       n.Rseed,
			Rho:         n.Rho,
			Witness:     n.Witness,
		},
	}
}

func buildOutputs(extended []ExtendedPayment) ([]tx.TxOutput, error) {
	outputs := make([]tx.TxOutput, 0, len(extended))
	for _, ep := range extended {
		note := tx.OutputNote{}
		switch ep.Pool {
		case types.PoolTransparent:
			pkh, err := common.HexToBytes(strings.TrimPrefix(ep.Item.Address, "t:"))
			if err != nil {
				return nil, fmt.Errorf("%w: %q", walleterr.ErrAddressUndecodable, ep.Item.Address)
			}
			note.PKH = pkh
		default:
			note.Memo = tx.NormalizeMemo(ep.Item.Memo)
		}
		outputs = append(outputs, tx.TxOutput{
			AddressString: ep.Item.Address,
			Value:         ep.Amount,
			Pool:          ep.Pool,
			Note:          note,
		})
	}
	return outputs, nil
}

func findChangeAddress(changes []ChangeAddress, pool types.Pool) (ChangeAddress, error) {
	for _, c := range changes {
		if c.Pool == pool {
			return c, nil
		}
	}
	return ChangeAddress{}, fmt.Errorf("%w: pool %s", walleterr.ErrChangeAddressUnavailable, pool.String())
}

func changeOutput(ca ChangeAddress, value uint64) tx.TxOutput {
	note := tx.OutputNote{}
	if ca.Pool == types.PoolTransparent {
		note.PKH = ca.PKH
	} else {
		note.Memo = tx.NormalizeMemo(nil)
	}
	return tx.TxOutput{
		AddressString: ca.Address,
		Value:         value,
		Pool:          ca.Pool,
		Note:          note,
	}
}
