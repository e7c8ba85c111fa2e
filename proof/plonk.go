package proof

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/constraint/solver"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"

	"github.com/kysee/shieldpool/crypto"
)

// PlonkProver holds the compiled circuit and proving key for one tree
// depth.
type PlonkProver struct {
	ccs   constraint.ConstraintSystem
	pk    plonk.ProvingKey
	depth int
	log   zerolog.Logger
}

// PlonkVerifier checks plonk withdrawal proofs against the verifying key
// produced at setup.
type PlonkVerifier struct {
	vk plonk.VerifyingKey
}

// PlonkOption adjusts the prover.
type PlonkOption func(*PlonkProver)

// WithSolverLogger forwards a logger to the constraint solver. Useful when
// a witness unexpectedly fails to solve.
func WithSolverLogger(log zerolog.Logger) PlonkOption {
	return func(p *PlonkProver) { p.log = log }
}

// NewPlonkPair compiles the withdrawal circuit at the given depth and
// returns a prover/verifier pair sharing its keys.
func NewPlonkPair(depth int, opts ...PlonkOption) (*PlonkProver, *PlonkVerifier, error) {
	ccs, pk, vk, err := CompileWithdrawCircuit(depth)
	if err != nil {
		return nil, nil, err
	}
	p := &PlonkProver{ccs: ccs, pk: pk, depth: depth, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, &PlonkVerifier{vk: vk}, nil
}

// VerifyingKey exposes the verifying key, e.g. for exporting an on-chain
// verifier.
func (v *PlonkVerifier) VerifyingKey() plonk.VerifyingKey {
	return v.vk
}

// Prove builds a proof for the witness. It fails when the witness does not
// satisfy the circuit, such as a path that does not lead to the claimed
// root or a nullifier derived from a different secret.
func (p *PlonkProver) Prove(w WithdrawWitness) ([]byte, error) {
	if len(w.Path) != p.depth {
		return nil, fmt.Errorf("path length %d does not match circuit depth %d", len(w.Path), p.depth)
	}

	var assignment WithdrawCircuit
	assignment.Secret = w.Secret[:]
	// the native digest reads the 8 little-endian amount bytes as one
	// left-padded block; the witness must carry that same field element
	assignment.Amount = new(big.Int).SetBytes(crypto.AmountBytes(w.Amount))
	assignment.LeafIndex = w.Index
	assignment.Siblings = make([]frontend.Variable, p.depth)
	for i := range w.Path {
		assignment.Siblings[i] = w.Path[i].Sibling[:]
	}
	assignment.Root = w.Inputs.Root[:]
	assignment.Nullifier = w.Inputs.Nullifier[:]
	assignment.Recipient = w.Inputs.Recipient[:]

	wtn, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	proof, err := plonk.Prove(
		p.ccs,
		p.pk,
		wtn,
		backend.WithSolverOptions(
			solver.WithLogger(p.log),
		),
	)
	if err != nil {
		return nil, err
	}

	bufProof := bytes.NewBuffer(nil)
	if _, err := proof.WriteTo(bufProof); err != nil {
		return nil, err
	}
	return bufProof.Bytes(), nil
}

// Verify deserializes untrusted proof bytes and checks them against the
// public inputs. Any failure, including a panic inside deserialization,
// verifies as false.
func (v *PlonkVerifier) Verify(proofBytes []byte, inputs PublicInputs) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if len(proofBytes) == 0 {
		return false
	}
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewBuffer(proofBytes)); err != nil {
		return false
	}

	tmpAssignment := WithdrawCircuit{
		Root:      inputs.Root[:],
		Nullifier: inputs.Nullifier[:],
		Recipient: inputs.Recipient[:],
	}
	pubWtn, err := frontend.NewWitness(&tmpAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false
	}
	return plonk.Verify(proof, v.vk, pubWtn) == nil
}
