// Package tx defines the declarative unsigned-transaction plan the
// payment planner emits and the ShieldedProver contract that turns it
// into a signed, provable transaction.
//
// UnsignedTransaction never carries a spending key or a proof: it names
// which notes to spend, which witnesses authorize them, and which
// outputs to create, and leaves proof construction and signature
// aggregation to an external ShieldedProver implementation.
package tx

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ccoin/core/internal/warp/witness"
	"github.com/ccoin/core/pkg/types"
)

// InputNote is the pool-specific data needed to spend one note. Which
// group of fields applies is selected by the enclosing TxInput's Pool;
// the planner copies every field from its candidate regardless of pool.
type InputNote struct {
	// Transparent
	Txid types.Hash
	Vout uint32

	// Sapling-like / Orchard-like
	Diversifier [11]byte
	Rseed       types.Hash
	Rho         *types.Hash // Orchard-like only
	Witness     witness.Witness
}

// TxInput is one selected input: the value it contributes (Amount), the
// part of that value not yet allocated (Remaining, which the planner
// sets equal to Amount), and the note data needed to spend it.
type TxInput struct {
	Pool      types.Pool
	Amount    uint64
	Remaining uint64
	Note      InputNote
}

// OutputNote is the pool-specific destination data for one output.
type OutputNote struct {
	// Transparent: 20-byte pubkey/script hash.
	PKH []byte

	// Sapling-like / Orchard-like: 43-byte diversified payment address
	// and the canonical fixed-length memo.
	Address [43]byte
	Memo    [types.MemoSize]byte
}

// TxOutput is one transaction output: its human-readable destination
// address, its value, and the pool-specific note data derived from
// decoding that address.
type TxOutput struct {
	AddressString string
	Value         uint64
	Pool          types.Pool
	Note          OutputNote
}

// UnsignedTransaction is a fully-specified, declarative spend plan. It
// is produced by the payment planner and consumed by a ShieldedProver;
// nothing in this module ever constructs a proof or a signature.
type UnsignedTransaction struct {
	Account     uint32
	AccountName string
	AccountID   types.Hash
	Height      uint32

	// Edges holds the Sapling-like and Orchard-like authentication paths
	// ([0]=Sapling, [1]=Orchard) the inputs in those pools are witnessed
	// against.
	Edges [2]witness.AuthPath
	// Roots holds the commitment-tree roots those edges authenticate to.
	Roots [2]types.Hash

	TxNotes   []TxInput
	TxOutputs []TxOutput

	Fee uint64
}

// ShieldedProver performs zero-knowledge proof construction and
// signature aggregation over an UnsignedTransaction. Implementations
// live outside this module — it depends only on this narrow contract.
type ShieldedProver interface {
	// Build turns utx into a fully signed, provable transaction,
	// expiring at expirationHeight. randomness seeds any blinding
	// factors the proving system needs; callers MUST supply
	// cryptographically random bytes.
	Build(ctx context.Context, utx *UnsignedTransaction, expirationHeight uint32, randomness []byte) ([]byte, error)
}

const wireVersion uint8 = 1

// MarshalBinary encodes the transaction in a simple versioned binary
// format: a one-byte version tag followed by the account fields, height
// and fee, then each pool's root and edge, then the inputs and outputs;
// strings, byte slices and lists are length-prefixed. UnmarshalBinary
// recovers every encoded field; the hasher carried in each Edges entry
// (AuthPath.H) is not encoded and decodes as nil.
func (u *UnsignedTransaction) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(wireVersion)

	writeUint32(&buf, u.Account)
	writeString(&buf, u.AccountName)
	buf.Write(u.AccountID[:])
	writeUint32(&buf, u.Height)
	writeUint64(&buf, u.Fee)

	for i := 0; i < 2; i++ {
		buf.Write(u.Roots[i][:])
		writeAuthPath(&buf, u.Edges[i])
	}

	writeUint32(&buf, uint32(len(u.TxNotes)))
	for _, n := range u.TxNotes {
		writeTxInput(&buf, n)
	}

	writeUint32(&buf, uint32(len(u.TxOutputs)))
	for _, o := range u.TxOutputs {
		writeTxOutput(&buf, o)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a transaction previously produced by
// MarshalBinary. It rejects any version it does not recognize.
func (u *UnsignedTransaction) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("unsigned transaction: %w", err)
	}
	if version != wireVersion {
		return fmt.Errorf("unsigned transaction: unsupported wire version %d", version)
	}

	u.Account, err = readUint32(r)
	if err != nil {
		return err
	}
	if u.AccountName, err = readString(r); err != nil {
		return err
	}
	if _, err = readFull(r, u.AccountID[:]); err != nil {
		return err
	}
	if u.Height, err = readUint32(r); err != nil {
		return err
	}
	if u.Fee, err = readUint64(r); err != nil {
		return err
	}

	for i := 0; i < 2; i++ {
		if _, err = readFull(r, u.Roots[i][:]); err != nil {
			return err
		}
		if u.Edges[i], err = readAuthPath(r); err != nil {
			return err
		}
	}

	n, err := readUint32(r)
	if err != nil {
		return err
	}
	u.TxNotes = make([]TxInput, n)
	for i := range u.TxNotes {
		if u.TxNotes[i], err = readTxInput(r); err != nil {
			return err
		}
	}

	m, err := readUint32(r)
	if err != nil {
		return err
	}
	u.TxOutputs = make([]TxOutput, m)
	for i := range u.TxOutputs {
		if u.TxOutputs[i], err = readTxOutput(r); err != nil {
			return err
		}
	}

	return nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, fmt.Errorf("unsigned transaction: unexpected end of data: %w", err)
	}
	if n != len(b) {
		return n, fmt.Errorf("unsigned transaction: unexpected end of data")
	}
	return n, nil
}

func writeAuthPath(buf *bytes.Buffer, p witness.AuthPath) {
	for _, h := range p.Edge {
		if h == nil {
			buf.WriteByte(0)
			continue
		}
		buf.WriteByte(1)
		buf.Write(h[:])
	}
}

func readAuthPath(r *bytes.Reader) (witness.AuthPath, error) {
	var p witness.AuthPath
	for i := range p.Edge {
		tag, err := r.ReadByte()
		if err != nil {
			return p, fmt.Errorf("unsigned transaction: %w", err)
		}
		if tag == 0 {
			continue
		}
		var h types.Hash
		if _, err := readFull(r, h[:]); err != nil {
			return p, err
		}
		p.Edge[i] = &h
	}
	return p, nil
}

func writeWitness(buf *bytes.Buffer, w witness.Witness) {
	writeUint64(buf, w.Position)
	buf.Write(w.Value[:])
	for _, h := range w.Ommers {
		if h == nil {
			buf.WriteByte(0)
			continue
		}
		buf.WriteByte(1)
		buf.Write(h[:])
	}
}

func readWitness(r *bytes.Reader) (witness.Witness, error) {
	var w witness.Witness
	var err error
	if w.Position, err = readUint64(r); err != nil {
		return w, err
	}
	if _, err = readFull(r, w.Value[:]); err != nil {
		return w, err
	}
	for i := range w.Ommers {
		tag, err := r.ReadByte()
		if err != nil {
			return w, fmt.Errorf("unsigned transaction: %w", err)
		}
		if tag == 0 {
			continue
		}
		var h types.Hash
		if _, err := readFull(r, h[:]); err != nil {
			return w, err
		}
		w.Ommers[i] = &h
	}
	return w, nil
}

func writeTxInput(buf *bytes.Buffer, n TxInput) {
	buf.WriteByte(byte(n.Pool))
	writeUint64(buf, n.Amount)
	writeUint64(buf, n.Remaining)
	buf.Write(n.Note.Txid[:])
	writeUint32(buf, n.Note.Vout)
	buf.Write(n.Note.Diversifier[:])
	buf.Write(n.Note.Rseed[:])
	if n.Note.Rho == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		buf.Write(n.Note.Rho[:])
	}
	writeWitness(buf, n.Note.Witness)
}

func readTxInput(r *bytes.Reader) (TxInput, error) {
	var n TxInput
	pool, err := r.ReadByte()
	if err != nil {
		return n, fmt.Errorf("unsigned transaction: %w", err)
	}
	n.Pool = types.Pool(pool)
	if n.Amount, err = readUint64(r); err != nil {
		return n, err
	}
	if n.Remaining, err = readUint64(r); err != nil {
		return n, err
	}
	if _, err = readFull(r, n.Note.Txid[:]); err != nil {
		return n, err
	}
	if n.Note.Vout, err = readUint32(r); err != nil {
		return n, err
	}
	if _, err = readFull(r, n.Note.Diversifier[:]); err != nil {
		return n, err
	}
	if _, err = readFull(r, n.Note.Rseed[:]); err != nil {
		return n, err
	}
	tag, err := r.ReadByte()
	if err != nil {
		return n, fmt.Errorf("unsigned transaction: %w", err)
	}
	if tag == 1 {
		var h types.Hash
		if _, err = readFull(r, h[:]); err != nil {
			return n, err
		}
		n.Note.Rho = &h
	}
	if n.Note.Witness, err = readWitness(r); err != nil {
		return n, err
	}
	return n, nil
}

func writeTxOutput(buf *bytes.Buffer, o TxOutput) {
	writeString(buf, o.AddressString)
	writeUint64(buf, o.Value)
	buf.WriteByte(byte(o.Pool))
	writeBytes(buf, o.Note.PKH)
	buf.Write(o.Note.Address[:])
	buf.Write(o.Note.Memo[:])
}

func readTxOutput(r *bytes.Reader) (TxOutput, error) {
	var o TxOutput
	var err error
	if o.AddressString, err = readString(r); err != nil {
		return o, err
	}
	if o.Value, err = readUint64(r); err != nil {
		return o, err
	}
	pool, err := r.ReadByte()
	if err != nil {
		return o, fmt.Errorf("unsigned transaction: %w", err)
	}
	o.Pool = types.Pool(pool)
	if o.Note.PKH, err = readBytes(r); err != nil {
		return o, err
	}
	if _, err = readFull(r, o.Note.Address[:]); err != nil {
		return o, err
	}
	if _, err = readFull(r, o.Note.Memo[:]); err != nil {
		return o, err
	}
	return o, nil
}

// NormalizeMemo pads or truncates memo to the canonical fixed-length
// form the prover expects.
func NormalizeMemo(memo []byte) [types.MemoSize]byte {
	var out [types.MemoSize]byte
	copy(out[:], memo)
	return out
}
