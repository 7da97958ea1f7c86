// Package prover implements a tx.ShieldedProver backed by Groth16 over
// BN254: it proves value conservation (inputs = outputs + fee) with a
// balance circuit, the same curve and proof system the wallet engine's
// teacher repo used for its own transaction circuit. Pedersen
// commitments to note values are available separately via CommitValue;
// Build does not compute or publish them.
//
// Nullifier derivation, note encryption, and full spend-authorization
// proofs are out of scope here — a real prover additionally needs the
// spending key material this module never sees.
package prover

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/ccoin/core/internal/pay/tx"
	"github.com/ccoin/core/pkg/common"
)

var (
	generatorG bn254.G1Affine
	generatorH bn254.G1Affine
	initOnce   sync.Once
	initErr    error
)

// InitializeGenerators sets up the Pedersen commitment generators used
// to seal note values. Safe to call repeatedly; real work happens once.
func InitializeGenerators() error {
	initOnce.Do(func() {
		_, _, g1Gen, _ := bn254.Generators()
		generatorG = g1Gen

		hBytes := domainSeparatedBytes("wallet-engine-pedersen-h")
		generatorH.ScalarMultiplication(&generatorG, new(big.Int).SetBytes(hBytes))
	})
	return initErr
}

func domainSeparatedBytes(tag string) []byte {
	out := make([]byte, 32)
	data := []byte(tag)
	for i := range out {
		if i < len(data) {
			out[i] = data[i] ^ byte(i*17)
		} else {
			out[i] = byte(i * 31)
		}
	}
	return out
}

// valueCommitment computes C = value*G + blinder*H.
func valueCommitment(value, blinder *big.Int) bn254.G1Affine {
	var vg, bh, c bn254.G1Affine
	vg.ScalarMultiplication(&generatorG, value)
	bh.ScalarMultiplication(&generatorH, blinder)
	c.Add(&vg, &bh)
	return c
}

// BalanceCircuit proves sum(inputs) == sum(outputs) + fee without
// revealing the individual input or output values; the fee is its only
// public input.
type BalanceCircuit struct {
	// Public inputs.
	Fee frontend.Variable `gnark:",public"`

	// Private witness: the actual note values. A real spend-proof
	// circuit also constrains nullifier derivation and Merkle path
	// membership; this module does not have access to spending keys, so
	// it only proves the balance relation.
	InputValues  []frontend.Variable
	OutputValues []frontend.Variable
}

// Define implements the balance constraint.
func (c *BalanceCircuit) Define(api frontend.API) error {
	var inSum, outSum frontend.Variable = 0, 0
	for _, v := range c.InputValues {
		inSum = api.Add(inSum, v)
	}
	for _, v := range c.OutputValues {
		outSum = api.Add(outSum, v)
	}
	api.AssertIsEqual(inSum, api.Add(outSum, c.Fee))
	return nil
}

// Prover implements tx.ShieldedProver using a Groth16 balance proof.
// Keys are compiled and set up lazily on first Build call for the
// observed (numInputs, numOutputs) shape and cached for reuse.
type Prover struct {
	mu    sync.Mutex
	r1cs  map[circuitShape]constraintSystem
	pks   map[circuitShape]groth16.ProvingKey
	vks   map[circuitShape]groth16.VerifyingKey
}

type constraintSystem = frontend.CompiledConstraintSystem

type circuitShape struct {
	numInputs  int
	numOutputs int
}

// New returns a ready-to-use Prover with an empty key cache.
func New() *Prover {
	return &Prover{
		r1cs: make(map[circuitShape]constraintSystem),
		pks:  make(map[circuitShape]groth16.ProvingKey),
		vks:  make(map[circuitShape]groth16.VerifyingKey),
	}
}

var _ tx.ShieldedProver = (*Prover)(nil)

// Build proves value conservation for utx and returns a self-describing
// envelope: the Groth16 proof bytes followed by the serialized public
// witness. It does not append a spend-authorization signature — that
// requires spending keys this module never holds.
func (p *Prover) Build(ctx context.Context, utx *tx.UnsignedTransaction, expirationHeight uint32, randomness []byte) ([]byte, error) {
	if err := InitializeGenerators(); err != nil {
		return nil, fmt.Errorf("prover: %w", err)
	}
	if len(randomness) == 0 {
		return nil, fmt.Errorf("prover: randomness must not be empty")
	}

	shape := circuitShape{numInputs: len(utx.TxNotes), numOutputs: len(utx.TxOutputs)}

	r1csSystem, pk, vk, err := p.keysFor(shape)
	if err != nil {
		return nil, fmt.Errorf("prover: %w", err)
	}

	circuit := &BalanceCircuit{
		Fee:          utx.Fee,
		InputValues:  make([]frontend.Variable, shape.numInputs),
		OutputValues: make([]frontend.Variable, shape.numOutputs),
	}
	for i, n := range utx.TxNotes {
		circuit.InputValues[i] = n.Amount
	}
	for i, o := range utx.TxOutputs {
		circuit.OutputValues[i] = o.Value
	}

	fullWitness, err := frontend.NewWitness(circuit, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("prover: build witness: %w", err)
	}

	proof, err := groth16.Prove(r1csSystem, pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("prover: prove: %w", err)
	}

	publicWitness, err := fullWitness.Public()
	if err != nil {
		return nil, fmt.Errorf("prover: public witness: %w", err)
	}
	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return nil, fmt.Errorf("prover: self-check failed: %w", err)
	}

	return encodeEnvelope(proof, publicWitness)
}

func (p *Prover) keysFor(shape circuitShape) (constraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r1csSystem, ok := p.r1cs[shape]; ok {
		return r1csSystem, p.pks[shape], p.vks[shape], nil
	}

	circuit := &BalanceCircuit{
		InputValues:  make([]frontend.Variable, shape.numInputs),
		OutputValues: make([]frontend.Variable, shape.numOutputs),
	}
	r1csSystem, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(r1csSystem)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setup: %w", err)
	}

	p.r1cs[shape] = r1csSystem
	p.pks[shape] = pk
	p.vks[shape] = vk
	return r1csSystem, pk, vk, nil
}

func encodeEnvelope(proof groth16.Proof, publicWitness interface {
	MarshalBinary() ([]byte, error)
}) ([]byte, error) {
	proofBytes, err := proof.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal proof: %w", err)
	}
	publicBytes, err := publicWitness.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public witness: %w", err)
	}

	out := make([]byte, 4+len(proofBytes)+len(publicBytes))
	out[0] = byte(len(proofBytes) >> 24)
	out[1] = byte(len(proofBytes) >> 16)
	out[2] = byte(len(proofBytes) >> 8)
	out[3] = byte(len(proofBytes))
	copy(out[4:], proofBytes)
	copy(out[4+len(proofBytes):], publicBytes)
	return out, nil
}

// randomScalar draws a uniformly random field element, used to blind a
// value commitment.
func randomScalar() (*big.Int, error) {
	var scalar fr.Element
	if _, err := scalar.SetRandom(); err != nil {
		return nil, err
	}
	return scalar.BigInt(new(big.Int)), nil
}

// CommitValue seals value behind a fresh Pedersen commitment, returning
// the commitment point and the blinder the caller must keep to later
// open it. This is exposed for a ShieldedProver caller that wants to
// publish commitments independent of a full Build call, e.g. for a
// client-side balance check before submitting.
func CommitValue(value uint64) (bn254.G1Affine, *big.Int, error) {
	if err := InitializeGenerators(); err != nil {
		return bn254.G1Affine{}, nil, err
	}
	blinder, err := randomScalar()
	if err != nil {
		return bn254.G1Affine{}, nil, err
	}
	return valueCommitment(new(big.Int).SetUint64(value), blinder), blinder, nil
}

// NewRandomness draws n bytes of proof randomness for a caller that
// needs to produce the randomness argument to Build itself, e.g. to log
// or persist it alongside the resulting envelope.
func NewRandomness(n int) ([]byte, error) {
	return common.RandomBytes(n)
}
