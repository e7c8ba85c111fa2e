package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the symmetric key length for payload encryption.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the nonce length for payload encryption.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the length of the detached authentication tag.
	TagSize = chacha20poly1305.Overhead
)

var (
	// ErrEncryptionFailed reports malformed key or nonce material.
	ErrEncryptionFailed = errors.New("shieldpool: encryption failed")
	// ErrAuthenticationFailed reports a payload whose tag does not verify.
	ErrAuthenticationFailed = errors.New("shieldpool: payload authentication failed")
)

// EncryptPayload encrypts plaintext using the ChaCha20-Poly1305 AEAD
// (Authenticated Encryption with Associated Data) scheme.
//
// Parameters:
//   - key: A 32-byte symmetric encryption key.
//   - nonce: A 12-byte nonce, which must be unique for each encryption with
//     the same key.
//   - plaintext: The data to be encrypted (e.g., the serialized note).
//   - additionalData: Data to be authenticated but not encrypted, typically
//     the ephemeral public key of the sender.
//
// Returns the ciphertext and the detached 16-byte authentication tag.
func EncryptPayload(key, nonce, plaintext, additionalData []byte) (ciphertext, tag []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncryptionFailed, KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrEncryptionFailed, NonceSize, len(nonce))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, additionalData)
	split := len(sealed) - TagSize
	return sealed[:split], sealed[split:], nil
}

// DecryptPayload verifies the detached tag and returns the plaintext.
//
// The tag comparison happens inside the AEAD in constant time; on any
// mismatch no plaintext is released and ErrAuthenticationFailed is
// returned. A wrong key, wrong nonce, tampered ciphertext, tampered tag
// and tampered additionalData are indistinguishable by design.
func DecryptPayload(key, nonce, ciphertext, tag, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncryptionFailed, KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrEncryptionFailed, NonceSize, len(nonce))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrAuthenticationFailed, TagSize, len(tag))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
