package types

import (
	"fmt"
	"io"

	jubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/shieldpool/crypto"
)

// NotePlaintext is the confidential metadata a depositor seals next to a
// commitment: who the note pays and how much. It lets the key holder
// recover the deposit parameters later without consulting anything else.
type NotePlaintext struct {
	// Version indicates the format version of the note.
	Version byte

	// Recipient is the 32-byte public key the note pays to.
	Recipient []byte

	// Amount is the note value, the same value bound into the commitment.
	Amount uint64

	// Memo is an arbitrary message field.
	Memo []byte
}

// Bytes returns the RLP-encoded representation of the plaintext.
// It panics if the encoding fails.
func (np *NotePlaintext) Bytes() []byte {
	b, err := rlp.EncodeToBytes(np)
	if err != nil {
		// A Bytes() method does not return an error; treat this as a
		// critical internal error.
		panic(fmt.Sprintf("failed to RLP encode NotePlaintext: %v", err))
	}
	return b
}

// EncodeRLP implements the rlp.Encoder interface.
func (np *NotePlaintext) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []interface{}{
		np.Version,
		np.Recipient,
		np.Amount,
		np.Memo,
	})
}

// DecodeRLP implements the rlp.Decoder interface.
func (np *NotePlaintext) DecodeRLP(s *rlp.Stream) error {
	var temp struct {
		Version   byte
		Recipient []byte
		Amount    uint64
		Memo      []byte
	}
	if err := s.Decode(&temp); err != nil {
		return err
	}
	if len(temp.Recipient) != 32 {
		return fmt.Errorf("recipient must be 32 bytes, got %d", len(temp.Recipient))
	}

	np.Version = temp.Version
	np.Recipient = temp.Recipient
	np.Amount = temp.Amount
	np.Memo = temp.Memo
	return nil
}

func DecodeNotePlaintext(bz []byte) (*NotePlaintext, error) {
	np := new(NotePlaintext)
	if err := rlp.DecodeBytes(bz, np); err != nil {
		return nil, err
	}
	return np, nil
}

// EncryptedNote is the sealed envelope stored beside a leaf. It carries no
// ownership over the commitment it is paired with; it only lets the holder
// of the recipient key recover the note metadata out of band.
type EncryptedNote struct {
	EphemeralPub []byte // sender's one-time public key, 32 bytes
	Nonce        []byte // 12 bytes
	Ciphertext   []byte
	Tag          []byte // detached authentication tag, 16 bytes
}

// Bytes returns the RLP-encoded representation of the envelope.
// It panics if the encoding fails.
func (en *EncryptedNote) Bytes() []byte {
	b, err := rlp.EncodeToBytes(en)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode EncryptedNote: %v", err))
	}
	return b
}

// EncodeRLP implements the rlp.Encoder interface.
func (en *EncryptedNote) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []interface{}{
		en.EphemeralPub,
		en.Nonce,
		en.Ciphertext,
		en.Tag,
	})
}

// DecodeRLP implements the rlp.Decoder interface. The fixed-size fields are
// length-checked here so a decoded envelope is always structurally sound.
func (en *EncryptedNote) DecodeRLP(s *rlp.Stream) error {
	var temp struct {
		EphemeralPub []byte
		Nonce        []byte
		Ciphertext   []byte
		Tag          []byte
	}
	if err := s.Decode(&temp); err != nil {
		return err
	}
	if len(temp.EphemeralPub) != 32 {
		return fmt.Errorf("ephemeral key must be 32 bytes, got %d", len(temp.EphemeralPub))
	}
	if len(temp.Nonce) != crypto.NonceSize {
		return fmt.Errorf("nonce must be %d bytes, got %d", crypto.NonceSize, len(temp.Nonce))
	}
	if len(temp.Tag) != crypto.TagSize {
		return fmt.Errorf("tag must be %d bytes, got %d", crypto.TagSize, len(temp.Tag))
	}

	en.EphemeralPub = temp.EphemeralPub
	en.Nonce = temp.Nonce
	en.Ciphertext = temp.Ciphertext
	en.Tag = temp.Tag
	return nil
}

func DecodeEncryptedNote(bz []byte) (*EncryptedNote, error) {
	en := new(EncryptedNote)
	if err := rlp.DecodeBytes(bz, en); err != nil {
		return nil, err
	}
	return en, nil
}

// SealNote encrypts plain to the recipient key under a fresh ephemeral
// keypair. Key and nonce are both derived from the ECDHE shared secret, and
// the ephemeral public key is bound as associated data, so no part of the
// envelope can be swapped without failing authentication.
func SealNote(plain *NotePlaintext, recipientPub *jubjub.PublicKey) (*EncryptedNote, error) {
	eph, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	shared, err := crypto.SharedSecret(eph, recipientPub)
	if err != nil {
		return nil, err
	}
	stream, err := crypto.ExpandKDF(shared, crypto.KeySize+crypto.NonceSize)
	if err != nil {
		return nil, err
	}
	key, nonce := stream[:crypto.KeySize], stream[crypto.KeySize:]

	ephPub := eph.PublicKey.Bytes()
	ct, tag, err := crypto.EncryptPayload(key, nonce, plain.Bytes(), ephPub)
	if err != nil {
		return nil, err
	}

	return &EncryptedNote{
		EphemeralPub: ephPub,
		Nonce:        nonce,
		Ciphertext:   ct,
		Tag:          tag,
	}, nil
}

// OpenNote recovers the plaintext with the recipient's private key. It
// fails with crypto.ErrAuthenticationFailed when the envelope was sealed to
// a different key or has been altered in any way.
func OpenNote(note *EncryptedNote, recipientPriv *jubjub.PrivateKey) (*NotePlaintext, error) {
	ephPub := crypto.NewPub()
	if _, err := ephPub.SetBytes(note.EphemeralPub); err != nil {
		return nil, err
	}
	shared, err := crypto.SharedSecret(recipientPriv, ephPub)
	if err != nil {
		return nil, err
	}
	stream, err := crypto.ExpandKDF(shared, crypto.KeySize+crypto.NonceSize)
	if err != nil {
		return nil, err
	}
	key := stream[:crypto.KeySize]

	pt, err := crypto.DecryptPayload(key, note.Nonce, note.Ciphertext, note.Tag, note.EphemeralPub)
	if err != nil {
		return nil, err
	}
	return DecodeNotePlaintext(pt)
}
