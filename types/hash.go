package types

import "encoding/hex"

// Commitment is the 32-byte digest standing in for one shielded deposit.
type Commitment [32]byte

func (c Commitment) Bytes() []byte {
	bz := make([]byte, len(c))
	copy(bz, c[:])
	return bz
}

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// Nullifier is the 32-byte spend marker revealed when a deposit is
// withdrawn. It is recorded at most once for the lifetime of the guard.
type Nullifier [32]byte

func (n Nullifier) Bytes() []byte {
	bz := make([]byte, len(n))
	copy(bz, n[:])
	return bz
}

func (n Nullifier) String() string {
	return hex.EncodeToString(n[:])
}
