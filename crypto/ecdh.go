package crypto

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	jubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"golang.org/x/crypto/blake2s"
)

// kdfPersonal keys the expand step so the pool's derived key streams never
// collide with another protocol's blake2s output.
var kdfPersonal = []byte("shieldpool_expand")

func NewKey() (*jubjub.PrivateKey, error) {
	return jubjub.GenerateKey(crand.Reader)
}

func NewPub() *jubjub.PublicKey {
	return new(jubjub.PublicKey)
}

// SharedSecret computes the ECDHE shared secret
// sharedSecret = privateKey * otherPublicKey
// on the bn254 twisted Edwards curve and returns the blake2s-256 hash of
// the resulting point's X coordinate.
func SharedSecret(privateKey *jubjub.PrivateKey, otherPublicKey *jubjub.PublicKey) ([]byte, error) {
	// Verify the other public key is on the curve
	if !otherPublicKey.A.IsOnCurve() {
		return nil, errors.New("other public key is not on curve")
	}

	var shared tedwards.PointAffine

	scalarBytes := privateKey.Bytes()
	scalarBigInt := new(big.Int).SetBytes(scalarBytes[32:64])
	shared.ScalarMultiplication(&otherPublicKey.A, scalarBigInt)

	if !shared.IsOnCurve() {
		return nil, errors.New("computed shared secret is not on curve")
	}

	hasher, err := blake2s.New256(nil)
	if err != nil {
		return nil, err
	}
	ax := shared.X.Bytes()
	hasher.Write(ax[:])
	return hasher.Sum(nil), nil
}

// ExpandKDF derives a key stream of the requested length from a 32-byte
// shared secret using counter-mode BLAKE2s, following the PRF^expand logic
// of HKDF-Expand (RFC 5869).
func ExpandKDF(sharedSecret []byte, outputLen int) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, fmt.Errorf("sharedSecret must be 32 bytes")
	}

	var keyStream []byte
	var counter byte = 1 // The counter must start at 1.
	for len(keyStream) < outputLen {
		// A fresh hash instance per iteration avoids state pollution.
		h, err := blake2s.New256(kdfPersonal)
		if err != nil {
			return nil, fmt.Errorf("failed to create blake2s hash: %w", err)
		}
		h.Write(sharedSecret)
		h.Write([]byte{counter})

		keyStream = append(keyStream, h.Sum(nil)...)

		counter++
		if counter == 0 {
			return nil, errors.New("KDF counter overflow")
		}
	}

	return keyStream[:outputLen], nil
}
