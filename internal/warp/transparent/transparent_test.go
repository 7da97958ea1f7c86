package transparent

import (
	"testing"

	"github.com/ccoin/core/pkg/types"
)

func TestProcessTxsReceivesKnownAddress(t *testing.T) {
	addresses := map[uint32]string{1: "t:aaaa"}
	s := New(addresses, nil)

	txid := types.Hash{1, 2, 3}
	s.ProcessTxs([]Tx{
		{
			Account: 1,
			Height:  10,
			Txid:    txid,
			Vouts: []TxOut{
				{Vout: 0, Address: "t:aaaa", Value: 1000},
				{Vout: 1, Address: "t:bbbb", Value: 2000}, // not ours
			},
		},
	})

	if len(s.UTXOs) != 1 {
		t.Fatalf("expected one new UTXO for the known address, got %d", len(s.UTXOs))
	}
	if s.UTXOs[0].Value != 1000 || !s.UTXOs[0].IsNew {
		t.Fatalf("unexpected UTXO: %+v", s.UTXOs[0])
	}
	if len(s.Received) != 1 || s.Received[0].Value != 1000 {
		t.Fatalf("expected one received-tx record for 1000, got %+v", s.Received)
	}
}

func TestProcessTxsIgnoresUnknownAccount(t *testing.T) {
	s := New(map[uint32]string{}, nil)
	s.ProcessTxs([]Tx{
		{Account: 99, Txid: types.Hash{1}, Vouts: []TxOut{{Address: "t:xyz", Value: 5}}},
	})
	if len(s.UTXOs) != 0 || len(s.Received) != 0 {
		t.Fatalf("an account with no known address must not produce UTXOs or received-tx records")
	}
}

func TestProcessTxsSpendsHeldUTXO(t *testing.T) {
	txid := types.Hash{7}
	existing := types.UTXO{Account: 1, Txid: txid, Vout: 0, Address: "t:aaaa", Value: 3000}
	s := New(map[uint32]string{1: "t:aaaa"}, []types.UTXO{existing})

	spendTxid := types.Hash{8}
	s.ProcessTxs([]Tx{
		{
			Account: 1,
			Height:  20,
			Txid:    spendTxid,
			Vins:    []TxIn{{Txid: txid, Vout: 0}},
		},
	})

	if len(s.UTXOs) != 0 {
		t.Fatalf("the spent UTXO must be removed from the held set, got %d remaining", len(s.UTXOs))
	}
	if len(s.Updates) != 1 {
		t.Fatalf("expected one negative value update, got %d", len(s.Updates))
	}
	u := s.Updates[0]
	if u.Value != -3000 || u.Account != 1 || u.Txid != spendTxid {
		t.Fatalf("unexpected value update: %+v", u)
	}
	if u.IDSpent == nil || *u.IDSpent != txid {
		t.Fatalf("IDSpent should reference the consumed outpoint's txid")
	}
}

func TestProcessTxsIgnoresUnmatchedSpend(t *testing.T) {
	s := New(map[uint32]string{1: "t:aaaa"}, nil)
	s.ProcessTxs([]Tx{
		{Account: 1, Vins: []TxIn{{Txid: types.Hash{1}, Vout: 0}}},
	})
	if len(s.Updates) != 0 {
		t.Fatalf("a vin not matching any held UTXO must produce no update, got %d", len(s.Updates))
	}
}
