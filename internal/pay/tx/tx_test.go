package tx

import (
	"reflect"
	"testing"

	"github.com/ccoin/core/internal/warp/witness"
	"github.com/ccoin/core/pkg/types"
)

func sampleTransaction() *UnsignedTransaction {
	rho := types.Hash{9, 9, 9}
	u := &UnsignedTransaction{
		Account:     3,
		AccountName: "primary",
		AccountID:   types.Hash{1, 2, 3},
		Height:      12345,
		Fee:         15000,
	}
	u.Roots[0] = types.Hash{4, 5, 6}
	u.Roots[1] = types.Hash{7, 8, 9}

	var sib types.Hash
	sib[0] = 0xAB
	u.Edges[0].Edge[0] = &sib

	u.TxNotes = []TxInput{
		{
			Pool:      types.PoolSapling,
			Amount:    1000,
			Remaining: 500,
			Note: InputNote{
				Txid:        types.Hash{1},
				Rseed:       types.Hash{2},
				Rho:         &rho,
				Diversifier: [11]byte{1, 2, 3},
				Witness: witness.Witness{
					Position: 7,
					Value:    types.Hash{3},
				},
			},
		},
		{
			Pool:   types.PoolTransparent,
			Amount: 2000,
			Note: InputNote{
				Txid: types.Hash{4},
				Vout: 1,
			},
		},
	}

	u.TxOutputs = []TxOutput{
		{
			AddressString: "t:deadbeef",
			Value:         750,
			Pool:          types.PoolTransparent,
			Note:          OutputNote{PKH: []byte{0xde, 0xad, 0xbe, 0xef}},
		},
		{
			AddressString: "s:someaddress",
			Value:         250,
			Pool:          types.PoolSapling,
			Note:          OutputNote{Memo: NormalizeMemo([]byte("hi"))},
		},
	}
	return u
}

func TestUnsignedTransactionRoundTrip(t *testing.T) {
	original := sampleTransaction()

	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary returned error: %v", err)
	}

	var decoded UnsignedTransaction
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary returned error: %v", err)
	}

	if decoded.Account != original.Account || decoded.AccountName != original.AccountName {
		t.Fatalf("account fields did not round-trip: got %+v", decoded)
	}
	if decoded.AccountID != original.AccountID || decoded.Height != original.Height || decoded.Fee != original.Fee {
		t.Fatalf("scalar fields did not round-trip: got %+v", decoded)
	}
	if decoded.Roots != original.Roots {
		t.Fatalf("roots did not round-trip: got %v want %v", decoded.Roots, original.Roots)
	}
	if !reflect.DeepEqual(decoded.Edges[0].Edge[0], original.Edges[0].Edge[0]) {
		t.Fatalf("edge 0 slot 0 did not round-trip")
	}
	if len(decoded.TxNotes) != len(original.TxNotes) {
		t.Fatalf("note count mismatch: got %d want %d", len(decoded.TxNotes), len(original.TxNotes))
	}
	for i := range original.TxNotes {
		want := original.TxNotes[i]
		got := decoded.TxNotes[i]
		if got.Pool != want.Pool || got.Amount != want.Amount || got.Remaining != want.Remaining {
			t.Fatalf("note %d scalar fields mismatch: got %+v want %+v", i, got, want)
		}
		if got.Note.Txid != want.Note.Txid || got.Note.Vout != want.Note.Vout {
			t.Fatalf("note %d txid/vout mismatch: got %+v want %+v", i, got.Note, want.Note)
		}
		if (got.Note.Rho == nil) != (want.Note.Rho == nil) {
			t.Fatalf("note %d rho presence mismatch", i)
		}
		if want.Note.Rho != nil && *got.Note.Rho != *want.Note.Rho {
			t.Fatalf("note %d rho value mismatch", i)
		}
		if got.Note.Witness.Position != want.Note.Witness.Position {
			t.Fatalf("note %d witness position mismatch: got %d want %d", i, got.Note.Witness.Position, want.Note.Witness.Position)
		}
	}
	if len(decoded.TxOutputs) != len(original.TxOutputs) {
		t.Fatalf("output count mismatch: got %d want %d", len(decoded.TxOutputs), len(original.TxOutputs))
	}
	for i := range original.TxOutputs {
		want := original.TxOutputs[i]
		got := decoded.TxOutputs[i]
		if got.AddressString != want.AddressString || got.Value != want.Value || got.Pool != want.Pool {
			t.Fatalf("output %d scalar fields mismatch: got %+v want %+v", i, got, want)
		}
		if !reflect.DeepEqual(got.Note.PKH, want.Note.PKH) {
			t.Fatalf("output %d PKH mismatch: got %v want %v", i, got.Note.PKH, want.Note.PKH)
		}
		if got.Note.Memo != want.Note.Memo {
			t.Fatalf("output %d memo mismatch", i)
		}
	}
}

func TestUnmarshalBinaryRejectsUnknownVersion(t *testing.T) {
	var u UnsignedTransaction
	err := u.UnmarshalBinary([]byte{0xFF})
	if err == nil {
		t.Fatalf("an unrecognized version byte must be rejected")
	}
}

func TestNormalizeMemoPadsAndTruncates(t *testing.T) {
	short := NormalizeMemo([]byte("abc"))
	if short[0] != 'a' || short[1] != 'b' || short[2] != 'c' {
		t.Fatalf("short memo should be copied at the front")
	}
	for i := 3; i < types.MemoSize; i++ {
		if short[i] != 0 {
			t.Fatalf("short memo should be zero-padded past its content, byte %d is %d", i, short[i])
		}
	}

	long := make([]byte, types.MemoSize+10)
	for i := range long {
		long[i] = byte(i)
	}
	truncated := NormalizeMemo(long)
	if len(truncated) != types.MemoSize {
		t.Fatalf("normalized memo must always be exactly MemoSize bytes")
	}
	for i := 0; i < types.MemoSize; i++ {
		if truncated[i] != byte(i) {
			t.Fatalf("truncated memo byte %d mismatch: got %d want %d", i, truncated[i], byte(i))
		}
	}
}
