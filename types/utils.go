package types

import crand "crypto/rand"

func RandBytes(n int) []byte {
	rbz := make([]byte, n)
	_, _ = crand.Read(rbz)
	return rbz
}

// RandSecret draws the 32 bytes of note randomness used as a spending
// secret.
func RandSecret() [32]byte {
	var s [32]byte
	_, _ = crand.Read(s[:])
	return s
}
