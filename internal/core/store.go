// Package core declares the narrow capability interfaces the rest of
// this module depends on at its boundary: persistence (Store) and
// light-wallet server access (ChainSource). The proof/signature
// construction capability (ShieldedProver) is declared in
// internal/pay/tx, not here.
//
// Nothing in this package implements these interfaces; concrete
// implementations live under reference/ and are wired in by the
// caller, not by this package.
package core

import (
	"context"

	"github.com/ccoin/core/internal/warp/sync"
	"github.com/ccoin/core/internal/warp/witness"
	"github.com/ccoin/core/pkg/types"
)

// SpentFilter selects which received notes list_received_notes returns.
type SpentFilter int

const (
	// SpentFilterAll returns every received note regardless of spend
	// status.
	SpentFilterAll SpentFilter = iota
	// SpentFilterUnspentOnly returns only notes not yet marked spent.
	SpentFilterUnspentOnly
)

// BlockHeader is the minimal per-block data Store persists alongside
// note/spend deltas: enough to answer snap_to_checkpoint without
// re-deriving a root from the full tree.
type BlockHeader struct {
	Height    uint32
	Hash      types.Hash
	Time      uint64
	SaplingRoot types.Hash
	OrchardRoot types.Hash
}

// Store is the persistence capability the sync and payment packages
// depend on. Implementations MUST provide scoped transactions with
// all-or-nothing commit: a batch either fully lands or is fully rolled
// back.
type Store interface {
	// ListAccounts returns every account the wallet tracks.
	ListAccounts(ctx context.Context) ([]types.AccountInfo, error)

	// GetAccountInfo returns one account's viewing data.
	GetAccountInfo(ctx context.Context, account uint32) (types.AccountInfo, error)

	// GetSyncHeight returns the height the wallet has fully ingested.
	GetSyncHeight(ctx context.Context) (uint32, error)

	// SnapToCheckpoint returns the greatest stored checkpoint at or
	// below h.
	SnapToCheckpoint(ctx context.Context, h uint32) (types.CheckpointHeight, error)

	// ListReceivedNotes returns notes received at or after sinceHeight,
	// filtered by spend status.
	ListReceivedNotes(ctx context.Context, sinceHeight uint32, filter SpentFilter) ([]*sync.Note, error)

	// ListUTXOs returns the transparent UTXO set as of height.
	ListUTXOs(ctx context.Context, height uint32) ([]types.UTXO, error)

	// StoreBlock persists one block header.
	StoreBlock(ctx context.Context, header BlockHeader) error

	// StoreNote persists a newly received shielded note.
	StoreNote(ctx context.Context, pool types.Pool, note *sync.Note) error

	// StoreTxValue persists a balance delta produced by a receipt or a
	// spend.
	StoreTxValue(ctx context.Context, delta types.TxValueUpdate) error

	// TruncateScan removes all state strictly above height, used to
	// unwind a reorg before re-ingesting from the new chain tip.
	TruncateScan(ctx context.Context, height uint32) error

	// WithTransaction runs fn inside a single scoped transaction,
	// committing on success and rolling back if fn returns an error.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TreeFrontiers is the pair of shielded-pool frontiers a ChainSource
// reports for a given height.
type TreeFrontiers struct {
	Sapling witness.Edge
	Orchard witness.Edge
}

// TxStatus reports the outcome of submitting a transaction.
type TxStatus int

const (
	TxStatusUnknown TxStatus = iota
	TxStatusAccepted
	TxStatusRejected
)

// ChainSource is the light-wallet server access capability. All methods
// may fail with a transient, retryable error; implementations are
// responsible for their own timeouts.
type ChainSource interface {
	// LatestHeight returns the server's current chain tip.
	LatestHeight(ctx context.Context) (uint32, error)

	// CompactBlock fetches a single compact block.
	CompactBlock(ctx context.Context, height uint32) (*sync.CompactBlock, error)

	// CompactBlockRange streams compact blocks in [start, end], calling
	// recv for each in increasing height order.
	CompactBlockRange(ctx context.Context, start, end uint32, recv func(*sync.CompactBlock) error) error

	// TreeState returns the shielded-pool frontiers at height.
	TreeState(ctx context.Context, height uint32) (TreeFrontiers, error)

	// TransparentTxids streams the txids touching address in
	// [start, end].
	TransparentTxids(ctx context.Context, address string, start, end uint32, recv func(types.Hash) error) error

	// GetTransaction fetches one transaction's confirming height and raw
	// bytes.
	GetTransaction(ctx context.Context, txid types.Hash) (height uint32, raw []byte, err error)

	// SendTransaction submits raw transaction bytes and reports the
	// server's acceptance status.
	SendTransaction(ctx context.Context, raw []byte) (TxStatus, error)
}
