package proof

import (
	crand "crypto/rand"
	"crypto/subtle"

	"github.com/kysee/shieldpool/crypto"
)

// attestTag separates attestation digests from the pool's other digests.
var attestTag = []byte("ATTEST")

// NewAttestationKey draws a fresh attestation key to be shared between the
// attesting prover and its verifier.
func NewAttestationKey() [32]byte {
	var key [32]byte
	_, _ = crand.Read(key[:])
	return key
}

// BuildAttestation computes the keyed digest binding the public inputs.
func BuildAttestation(key [32]byte, inputs PublicInputs) []byte {
	return crypto.Sum(key[:], inputs.Root[:], inputs.Nullifier[:], inputs.Recipient[:], attestTag)
}

// AttestationProver issues attestations under a shared key.
type AttestationProver struct {
	key [32]byte
}

func NewAttestationProver(key [32]byte) *AttestationProver {
	return &AttestationProver{key: key}
}

// Prove ignores the private half of the witness; an attestation binds the
// public inputs only.
func (p *AttestationProver) Prove(w WithdrawWitness) ([]byte, error) {
	return BuildAttestation(p.key, w.Inputs), nil
}

// AttestationVerifier is the reference backend for hosts that run without
// a proving system: the proof is a keyed digest over the public inputs, so
// bytes bound to a different root, nullifier or recipient fail, as do
// bytes of the wrong shape. It provides integrity, not zero knowledge.
type AttestationVerifier struct {
	key [32]byte
}

func NewAttestationVerifier(key [32]byte) *AttestationVerifier {
	return &AttestationVerifier{key: key}
}

func (v *AttestationVerifier) Verify(proof []byte, inputs PublicInputs) bool {
	if len(proof) != 32 {
		return false
	}
	want := BuildAttestation(v.key, inputs)
	return subtle.ConstantTimeCompare(proof, want) == 1
}
