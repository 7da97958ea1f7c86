package types

// AccountInfo holds the viewing data the sync core needs for one account.
// Spending keys never appear here; they are consumed only by a
// ShieldedProver implementation outside this module.
type AccountInfo struct {
	Account uint32

	// BirthHeight is the height before which the account cannot hold notes.
	BirthHeight uint32

	// SaplingIVK is the incoming viewing key for the Sapling-like pool, if
	// the account has one.
	SaplingIVK []byte

	// OrchardIVK is the incoming viewing key for the Orchard-like pool, if
	// the account has one.
	OrchardIVK []byte

	// TransparentAddress is the account's transparent receiving address,
	// if it has one.
	TransparentAddress string
}

// HasPool reports whether the account holds a viewing key (or address) for
// the given pool.
func (a *AccountInfo) HasPool(p Pool) bool {
	switch p {
	case PoolTransparent:
		return a.TransparentAddress != ""
	case PoolSapling:
		return len(a.SaplingIVK) > 0
	case PoolOrchard:
		return len(a.OrchardIVK) > 0
	default:
		return false
	}
}

// TxValueUpdate is a signed balance delta applied to a per-account
// running balance, produced either by a newly received note/UTXO or by a
// detected spend.
type TxValueUpdate struct {
	Account uint32
	Txid    Hash
	Height  uint32

	// Value is positive for a receipt, negative for a spend.
	Value int64

	// IDSpent identifies the spent note (by nullifier) or UTXO (by the
	// txid of its outpoint), when Value < 0. Nil for receipts.
	IDSpent *Hash
}

// UTXO is a transparent-pool unspent output tracked for a wallet address.
type UTXO struct {
	Account uint32
	Height  uint32
	Txid    Hash
	Vout    uint32
	Address string
	Value   uint64

	// IsNew marks a UTXO produced by the batch currently being ingested,
	// as opposed to one loaded from the store.
	IsNew bool
}

// Outpoint returns the outpoint identifying this UTXO.
func (u *UTXO) Outpoint() OutPoint {
	return OutPoint{Txid: u.Txid, Vout: u.Vout}
}

// ReceivedTx records that an account received value in a transaction,
// independent of the per-note/per-utxo detail.
type ReceivedTx struct {
	Account   uint32
	Height    uint32
	Txid      Hash
	Timestamp uint64
	TxIndex   uint32
	Value     int64
}
