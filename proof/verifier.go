// Package proof defines the withdrawal-proof contract a shielded pool
// consumes, together with two interchangeable backends: a keyed
// attestation scheme for hosts without a proving system, and a plonk
// circuit proving knowledge of a commitment opening under the pool root.
package proof

import "github.com/kysee/shieldpool/merkle"

// PublicInputs are the values a withdrawal proof commits to. A proof is
// meaningful only against the exact triple it was produced for.
type PublicInputs struct {
	Root      [32]byte
	Nullifier [32]byte
	Recipient [32]byte
}

// Verifier checks withdrawal proofs. Implementations must be pure
// functions of (proof, inputs), must fail closed on malformed or truncated
// bytes, and must never panic outward.
type Verifier interface {
	Verify(proof []byte, inputs PublicInputs) bool
}

// WithdrawWitness is everything the spender knows when building a proof:
// the secret opening of the commitment, its position in the tree, and the
// public inputs the proof will be checked against.
type WithdrawWitness struct {
	Secret [32]byte
	Amount uint64
	Index  uint64
	Path   merkle.Path
	Inputs PublicInputs
}

// Prover produces proof bytes for a witness.
type Prover interface {
	Prove(w WithdrawWitness) ([]byte, error)
}
