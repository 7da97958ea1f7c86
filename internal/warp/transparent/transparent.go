// Package transparent implements UTXO-based synchronization for the
// transparent pool: matching spends against held outpoints and
// appending newly observed outputs addressed to a known account.
//
// Unlike the shielded pools there is no trial decryption or Merkle
// witness to maintain here — membership is just address equality, so
// this package is far smaller than warp/sync.
package transparent

import (
	"github.com/ccoin/core/pkg/types"
)

// TxIn is a transparent input: the outpoint it consumes.
type TxIn struct {
	Txid types.Hash
	Vout uint32
}

// TxOut is a transparent output: the index it will be known by and the
// address/value it pays.
type TxOut struct {
	Vout    uint32
	Address string
	Value   uint64
}

// Tx is one transparent transaction's inputs and outputs, already
// attributed to the account that owns it.
type Tx struct {
	Account   uint32
	Height    uint32
	Txid      types.Hash
	Timestamp uint64
	Vins      []TxIn
	Vouts     []TxOut
}

// Sync drives transparent-pool synchronization: it holds the set of
// known account addresses and live UTXOs, and accumulates the set of
// received transactions and value updates a batch of transactions
// produces.
type Sync struct {
	Addresses map[uint32]string
	UTXOs     []types.UTXO

	Received []types.ReceivedTx
	Updates  []types.TxValueUpdate
}

// New builds a Sync from the account->address map and UTXO set loaded
// from Store at construction time.
func New(addresses map[uint32]string, utxos []types.UTXO) *Sync {
	return &Sync{
		Addresses: addresses,
		UTXOs:     utxos,
	}
}

// ProcessTxs consumes spends against held UTXOs and appends newly
// observed outputs addressed to a known account. Inputs that do not
// match a held UTXO are ignored (they belong to someone else); outputs
// are only recorded for accounts present in Addresses.
func (s *Sync) ProcessTxs(txs []Tx) {
	for _, tx := range txs {
		for _, vin := range tx.Vins {
			idx := s.findUTXO(vin.Txid, vin.Vout)
			if idx < 0 {
				continue
			}
			utxo := s.UTXOs[idx]
			outpoint := utxo.Outpoint()
			s.Updates = append(s.Updates, types.TxValueUpdate{
				Account: tx.Account,
				Txid:    tx.Txid,
				Height:  tx.Height,
				Value:   -int64(utxo.Value),
				IDSpent: &outpoint.Txid,
			})
			s.UTXOs = append(s.UTXOs[:idx], s.UTXOs[idx+1:]...)
		}

		address, known := s.Addresses[tx.Account]
		if !known {
			continue
		}

		var total uint64
		for _, vout := range tx.Vouts {
			if vout.Address != address {
				continue
			}
			total += vout.Value
			s.UTXOs = append(s.UTXOs, types.UTXO{
				Account: tx.Account,
				Height:  tx.Height,
				Txid:    tx.Txid,
				Vout:    vout.Vout,
				Address: address,
				Value:   vout.Value,
				IsNew:   true,
			})
		}
		if total > 0 {
			s.Received = append(s.Received, types.ReceivedTx{
				Account:   tx.Account,
				Height:    tx.Height,
				Txid:      tx.Txid,
				Timestamp: tx.Timestamp,
				Value:     int64(total),
			})
		}
	}
}

func (s *Sync) findUTXO(txid types.Hash, vout uint32) int {
	for i, u := range s.UTXOs {
		if u.Txid == txid && u.Vout == vout {
			return i
		}
	}
	return -1
}
