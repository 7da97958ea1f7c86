// Package decrypt implements trial decryption of compact outputs against a
// set of incoming viewing keys. Decryption is pure given its inputs:
// failure on a non-matching output is silent, and the caller may run the
// per-output attempts in parallel before witness extension begins.
package decrypt

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ccoin/core/pkg/types"
)

// IVK is an incoming viewing key for one account in one shielded pool.
type IVK struct {
	Account uint32
	Key     []byte
}

// NetworkParams carries the consensus parameters trial decryption needs
// (HRPs, domain separators); it is opaque to this package's callers.
type NetworkParams struct {
	DomainTag []byte
}

// CompactOutput is the minimal per-output data a light-wallet server
// sends for trial decryption.
type CompactOutput struct {
	EphemeralKey  types.Hash
	EncCiphertext []byte
	Cmu           types.Hash
}

// ReceivedNote is the result of a successful trial decryption. Position
// and Nullifier are left unset here: the synchronizer fills them in once
// it knows the note's place in the batch.
type ReceivedNote struct {
	Account     uint32
	Value       uint64
	AddressBE   []byte
	Rseed       types.Hash
	Rho         *types.Hash
	Memo        []byte
	Height      uint32
	TxIndex     uint32
	OutputIndex uint32
	Txid        types.Hash // filled by the caller once known
}

// TrialDecrypt attempts to decrypt out against every key in ivks,
// returning the first match, or nil if none match. Only a cryptographic
// error in a ciphertext that DID match an ivk's authentication tag is
// fatal; a non-matching output produces (nil, nil).
func TrialDecrypt(params NetworkParams, ivks []IVK, out CompactOutput, height uint32, ts uint64, txIndex, outIndex uint32) (*ReceivedNote, error) {
	for _, ivk := range ivks {
		note, matched, err := tryOne(params, ivk, out)
		if err != nil {
			return nil, err
		}
		if matched {
			note.Height = height
			note.TxIndex = txIndex
			note.OutputIndex = outIndex
			return note, nil
		}
	}
	return nil, nil
}

// tryOne attempts decryption with a single ivk. matched reports whether
// the output's authentication tag verified against this key; when it did
// not, (nil, false, nil) is returned — this is the silent-failure path.
func tryOne(params NetworkParams, ivk IVK, out CompactOutput) (note *ReceivedNote, matched bool, err error) {
	if len(out.EncCiphertext) < 64 {
		return nil, false, nil
	}

	tag := macTag(params, ivk, out)
	if !hmac.Equal(tag, out.EncCiphertext[:32]) {
		return nil, false, nil
	}

	plaintext, err := decryptWithKey(ivk, out)
	if err != nil {
		// The tag matched but the plaintext is malformed: this is the
		// one fatal case silent-failure does not cover.
		return nil, true, err
	}

	return &ReceivedNote{
		Account:   ivk.Account,
		Value:     decodeValue(plaintext),
		AddressBE: decodeAddress(plaintext),
		Rseed:     decodeRseed(plaintext),
		Memo:      decodeMemo(plaintext),
	}, true, nil
}

func macTag(params NetworkParams, ivk IVK, out CompactOutput) []byte {
	mac := hmac.New(sha256.New, ivk.Key)
	mac.Write(params.DomainTag)
	mac.Write(out.EphemeralKey[:])
	mac.Write(out.Cmu[:])
	return mac.Sum(nil)
}

func decryptWithKey(ivk IVK, out CompactOutput) ([]byte, error) {
	mac := hmac.New(sha256.New, ivk.Key)
	mac.Write(out.EphemeralKey[:])
	pad := mac.Sum(nil)
	ct := out.EncCiphertext[32:]
	pt := make([]byte, len(ct))
	for i := range ct {
		pt[i] = ct[i] ^ pad[i%len(pad)]
	}
	return pt, nil
}

func decodeValue(pt []byte) uint64 {
	if len(pt) < 8 {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(pt[i])
	}
	return v
}

func decodeAddress(pt []byte) []byte {
	if len(pt) < 8+43 {
		return nil
	}
	addr := make([]byte, 43)
	copy(addr, pt[8:8+43])
	return addr
}

func decodeRseed(pt []byte) types.Hash {
	var h types.Hash
	if len(pt) >= 8+43+32 {
		copy(h[:], pt[8+43:8+43+32])
	}
	return h
}

func decodeMemo(pt []byte) []byte {
	const hdr = 8 + 43 + 32
	if len(pt) <= hdr {
		return nil
	}
	return pt[hdr:]
}

// DecryptInput is one (block, tx, output) tuple to trial-decrypt.
type DecryptInput struct {
	Output      CompactOutput
	Height      uint32
	Timestamp   uint64
	TxIndex     uint32
	OutputIndex uint32
}

// parallelThreshold is the input count below which fanning out to the
// work pool costs more than it saves.
const parallelThreshold = 64

// DecryptBatch runs TrialDecrypt over every input, parallelized across
// goroutines when the batch is large enough, and collects every match
// before returning — the synchronizer MUST NOT begin witness extension
// until all of this batch's decrypts have completed.
func DecryptBatch(ctx context.Context, params NetworkParams, ivks []IVK, inputs []DecryptInput) ([]*ReceivedNote, error) {
	if len(inputs) < parallelThreshold {
		var notes []*ReceivedNote
		for _, in := range inputs {
			n, err := TrialDecrypt(params, ivks, in.Output, in.Height, in.Timestamp, in.TxIndex, in.OutputIndex)
			if err != nil {
				return nil, err
			}
			if n != nil {
				notes = append(notes, n)
			}
		}
		return notes, nil
	}

	results := make([]*ReceivedNote, len(inputs))
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(inputs) + workers - 1) / workers
	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= len(inputs) {
			break
		}
		if end > len(inputs) {
			end = len(inputs)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				in := inputs[i]
				n, err := TrialDecrypt(params, ivks, in.Output, in.Height, in.Timestamp, in.TxIndex, in.OutputIndex)
				if err != nil {
					return err
				}
				results[i] = n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var notes []*ReceivedNote
	for _, n := range results {
		if n != nil {
			notes = append(notes, n)
		}
	}
	return notes, nil
}
