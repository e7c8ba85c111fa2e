package crypto

import "encoding/binary"

// NullifierTag domain-separates nullifier digests from every other digest
// in the pool.
var NullifierTag = []byte("NULLIFIER")

// AmountBytes returns the 8-byte little-endian encoding of amount, the form
// in which amounts enter commitment preimages.
func AmountBytes(amount uint64) []byte {
	bz := make([]byte, 8)
	binary.LittleEndian.PutUint64(bz, amount)
	return bz
}

// CommitNote derives the deposit commitment binding the recipient key bytes,
// the amount and the note randomness. The randomness is what makes the
// commitment hiding; whoever holds it can re-derive the commitment, nobody
// else can.
func CommitNote(recipient [32]byte, amount uint64, randomness [32]byte) [32]byte {
	return Sum32(recipient[:], AmountBytes(amount), randomness[:])
}

// DeriveNullifier derives the spend marker for a commitment. Binding the
// secret to a specific commitment means the same secret yields unrelated
// nullifiers for different deposits.
func DeriveNullifier(secret [32]byte, commitment [32]byte) [32]byte {
	return Sum32(secret[:], commitment[:], NullifierTag)
}

// NodeHash is the accumulator's internal node function. Every component that
// recomputes roots, in or out of circuit, must use this exact function.
func NodeHash(left, right [32]byte) [32]byte {
	return Sum32(left[:], right[:])
}
