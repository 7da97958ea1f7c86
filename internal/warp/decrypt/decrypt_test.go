package decrypt

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/ccoin/core/pkg/types"
)

// buildOutput constructs a CompactOutput that ivk can trial-decrypt,
// mirroring macTag/decryptWithKey's construction in reverse (the XOR
// keystream is its own inverse, so "encrypting" is the same operation).
func buildOutput(params NetworkParams, ivk IVK, value uint64, addr [43]byte, rseed types.Hash, memo []byte) CompactOutput {
	plaintext := make([]byte, 8+43+32+len(memo))
	for i := 0; i < 8; i++ {
		plaintext[i] = byte(value >> (8 * (7 - i)))
	}
	copy(plaintext[8:8+43], addr[:])
	copy(plaintext[8+43:8+43+32], rseed[:])
	copy(plaintext[8+43+32:], memo)

	var ephemeralKey, cmu types.Hash
	ephemeralKey[0] = 0x01

	mac := hmac.New(sha256.New, ivk.Key)
	mac.Write(ephemeralKey[:])
	pad := mac.Sum(nil)

	ct := make([]byte, len(plaintext))
	for i := range plaintext {
		ct[i] = plaintext[i] ^ pad[i%len(pad)]
	}

	out := CompactOutput{EphemeralKey: ephemeralKey, Cmu: cmu}
	tag := macTag(params, ivk, out)
	out.EncCiphertext = append(append([]byte{}, tag...), ct...)
	return out
}

func TestTrialDecryptRoundTrip(t *testing.T) {
	params := NetworkParams{DomainTag: []byte("test-domain")}
	ivk := IVK{Account: 7, Key: []byte("a-shared-secret-key")}

	var addr [43]byte
	addr[0] = 0xAA
	var rseed types.Hash
	rseed[0] = 0x55
	memo := []byte("hello")

	out := buildOutput(params, ivk, 12345, addr, rseed, memo)

	note, err := TrialDecrypt(params, []IVK{ivk}, out, 100, 1690000000, 2, 3)
	if err != nil {
		t.Fatalf("TrialDecrypt returned error: %v", err)
	}
	if note == nil {
		t.Fatalf("TrialDecrypt should match its own ivk")
	}
	if note.Value != 12345 {
		t.Errorf("value: got %d want 12345", note.Value)
	}
	if note.Account != 7 {
		t.Errorf("account: got %d want 7", note.Account)
	}
	if note.Height != 100 || note.TxIndex != 2 || note.OutputIndex != 3 {
		t.Errorf("positional fields not threaded through: %+v", note)
	}
}

func TestTrialDecryptNonMatchingIVKIsSilent(t *testing.T) {
	params := NetworkParams{DomainTag: []byte("test-domain")}
	ivk := IVK{Account: 1, Key: []byte("key-one")}
	other := IVK{Account: 2, Key: []byte("key-two")}

	var addr [43]byte
	var rseed types.Hash
	out := buildOutput(params, ivk, 1, addr, rseed, nil)

	note, err := TrialDecrypt(params, []IVK{other}, out, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("a non-matching ivk must not produce an error: %v", err)
	}
	if note != nil {
		t.Fatalf("a non-matching ivk must not produce a note")
	}
}

func TestTrialDecryptShortCiphertextIsSilent(t *testing.T) {
	params := NetworkParams{DomainTag: []byte("test-domain")}
	ivk := IVK{Account: 1, Key: []byte("key")}
	out := CompactOutput{EncCiphertext: make([]byte, 10)}

	note, err := TrialDecrypt(params, []IVK{ivk}, out, 0, 0, 0, 0)
	if err != nil || note != nil {
		t.Fatalf("a too-short ciphertext must be silently skipped, got note=%v err=%v", note, err)
	}
}

func TestDecryptBatchParallelMatchesSequential(t *testing.T) {
	params := NetworkParams{DomainTag: []byte("batch-domain")}
	ivk := IVK{Account: 3, Key: []byte("batch-key")}

	const n = 200 // exceeds parallelThreshold to exercise the fan-out path
	inputs := make([]DecryptInput, n)
	for i := 0; i < n; i++ {
		var addr [43]byte
		addr[0] = byte(i)
		var rseed types.Hash
		rseed[0] = byte(i)
		out := buildOutput(params, ivk, uint64(i), addr, rseed, nil)
		inputs[i] = DecryptInput{Output: out, Height: uint32(i), TxIndex: uint32(i), OutputIndex: 0}
	}

	notes, err := DecryptBatch(context.Background(), params, []IVK{ivk}, inputs)
	if err != nil {
		t.Fatalf("DecryptBatch returned error: %v", err)
	}
	if len(notes) != n {
		t.Fatalf("expected %d matches, got %d", n, len(notes))
	}

	seen := make(map[uint64]bool, n)
	for _, note := range notes {
		seen[note.Value] = true
	}
	for i := 0; i < n; i++ {
		if !seen[uint64(i)] {
			t.Fatalf("missing note for value %d", i)
		}
	}
}
