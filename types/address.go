package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	jubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/kysee/shieldpool/crypto"
)

const (
	addrPrefix = "sp"
	addrVer    = 0x01
)

func EncodeAddress(payload []byte) string {
	return addrPrefix + base58.CheckEncode(payload, addrVer)
}

func DecodeAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, addrPrefix) {
		return nil, fmt.Errorf("wrong prefix: got(%s)", addr)
	}
	bz, ver, err := base58.CheckDecode(addr[len(addrPrefix):])
	if err != nil {
		return nil, err
	}
	if ver != addrVer {
		return nil, fmt.Errorf("wrong version: expected(%d), got(%d)", addrVer, ver)
	}
	return bz, nil
}

func Pub2Addr(pubKey *jubjub.PublicKey) string {
	return EncodeAddress(pubKey.Bytes())
}

func Addr2Pub(addr string) (*jubjub.PublicKey, error) {
	pubKeyBytes, err := DecodeAddress(addr)
	if err != nil {
		return nil, err
	}
	pubKey := crypto.NewPub()
	if _, err := pubKey.SetBytes(pubKeyBytes); err != nil {
		return nil, err
	}
	return pubKey, nil
}

// RecipientBytes returns the fixed 32-byte key payload of addr, the form in
// which recipients are bound into commitments and proof public inputs.
func RecipientBytes(addr string) ([32]byte, error) {
	var out [32]byte
	bz, err := DecodeAddress(addr)
	if err != nil {
		return out, err
	}
	if len(bz) != len(out) {
		return out, fmt.Errorf("wrong payload size: expected(%d), got(%d)", len(out), len(bz))
	}
	copy(out[:], bz)
	return out, nil
}
