package crypto

import (
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	gnark_hash "github.com/consensys/gnark-crypto/hash"
)

func MiMCHasher() hash.Hash {
	return gnark_hash.MIMC_BN254.New()
}

// Sum hashes the inputs with MiMC over the BN254 scalar field. Each input is
// consumed in 32-byte blocks; a full block may exceed the field modulus, so
// it is reduced to its canonical encoding before it reaches the hasher.
// Shorter trailing blocks are left-padded by the hasher itself.
func Sum(ins ...[]byte) []byte {
	hasher := MiMCHasher()

	blockSize := hasher.Size()

	for _, in := range ins {
		for i := 0; i < len(in); i += blockSize {
			end := i + blockSize
			if end > len(in) {
				end = len(in)
			}
			chunk := in[i:end]

			if len(chunk) == blockSize {
				var elem fr.Element
				elem.SetBytes(chunk)
				chunk = elem.Marshal()
			}
			if _, err := hasher.Write(chunk); err != nil {
				panic(err)
			}
		}
	}
	return hasher.Sum(nil)
}

// Sum32 is Sum with the digest returned as a fixed 32-byte array.
func Sum32(ins ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], Sum(ins...))
	return out
}
