package sync

import (
	"github.com/ccoin/core/internal/warp/witness"
	"github.com/ccoin/core/pkg/types"
)

// Note is a shielded note held by the wallet: its value, its place in
// the commitment tree, and (once the owning transaction is confirmed
// spent) the height at which it was spent.
//
// Position is a stable ordinal assigned the first time the note is seen
// and never changes afterward. Spent is monotone: once set it is never
// cleared except by a rollback that deletes the note outright.
type Note struct {
	Account     uint32
	Pool        types.Pool
	Value       uint64
	Position    uint64
	Witness     witness.Witness
	Spent       *uint32
	Nullifier   types.Hash
	Txid        types.Hash
	OutputIndex uint32
	AddressBE   []byte
	Rseed       types.Hash
	Rho         *types.Hash
}

// pendingNote is a just-decrypted note awaiting position assignment and
// nullifier derivation, before it is promoted to a Note and appended to
// the synchronizer's held set.
type pendingNote struct {
	account     uint32
	value       uint64
	addressBE   []byte
	rseed       types.Hash
	rho         *types.Hash
	height      uint32
	txIndex     uint32
	outputIndex uint32
	position    uint64
	nullifier   types.Hash
	txid        types.Hash
}
