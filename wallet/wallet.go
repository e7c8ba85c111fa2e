// Package wallet holds the depositor/recipient side of the pool: key
// custody for note payloads, deposit building, scanning pools by trial
// decryption and assembling withdrawals for a proof backend.
package wallet

import (
	"bytes"
	"errors"

	jubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/holiman/uint256"

	"github.com/kysee/shieldpool/crypto"
	"github.com/kysee/shieldpool/merkle"
	"github.com/kysee/shieldpool/proof"
	"github.com/kysee/shieldpool/types"
)

var ErrUnknownNote = errors.New("shieldpool: note not owned by this wallet")

// Ledger is the slice of the pool service a wallet drives.
type Ledger interface {
	Deposit(poolID uint64, c types.Commitment, payload *types.EncryptedNote) (uint64, [32]byte, error)
	Withdraw(poolID uint64, n types.Nullifier, recipient [32]byte, proofBytes []byte, path merkle.Path, claimedIndex uint64) error
	Pool(poolID uint64) (types.Pool, error)
	Root(poolID uint64) ([32]byte, error)
	Path(poolID, index uint64) (merkle.Path, error)
	Leaf(poolID, index uint64) (types.Leaf, error)
	IsSpent(n types.Nullifier) (bool, error)
}

// OwnedNote is a deposit this wallet can spend: the secret is the opening
// of the commitment and never leaves the wallet.
type OwnedNote struct {
	PoolID     uint64
	Index      uint64
	Secret     [32]byte
	Amount     uint64
	Commitment types.Commitment
}

// Wallet owns one payload key pair and the notes deposited under it. The
// sealed payload on each leaf lets the owner recover recipient and amount
// out of band; spending additionally needs the locally held secret.
type Wallet struct {
	Address string
	prv     *jubjub.PrivateKey
	notes   map[types.Commitment]*OwnedNote
}

func New() (*Wallet, error) {
	prv, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{
		Address: types.Pub2Addr(&prv.PublicKey),
		prv:     prv,
		notes:   make(map[types.Commitment]*OwnedNote),
	}, nil
}

func (w *Wallet) Public() *jubjub.PublicKey {
	return &w.prv.PublicKey
}

// RecipientBytes is the wallet key in the 32-byte form commitments and
// withdrawal proofs bind.
func (w *Wallet) RecipientBytes() [32]byte {
	var out [32]byte
	copy(out[:], w.prv.PublicKey.Bytes())
	return out
}

// Deposit is a note ready for submission: the public half goes to the
// pool, the secret stays here until Submit records it.
type Deposit struct {
	Commitment types.Commitment
	Payload    *types.EncryptedNote

	secret [32]byte
	amount uint64
}

// BuildDeposit mints a note to the wallet's own key: fresh secret,
// commitment over (recipient, amount, secret), payload sealed so only
// this wallet can recover the note metadata later.
func (w *Wallet) BuildDeposit(amount uint64, memo []byte) (*Deposit, error) {
	secret := types.RandSecret()
	recipient := w.RecipientBytes()

	payload, err := types.SealNote(&types.NotePlaintext{
		Version:   1,
		Recipient: recipient[:],
		Amount:    amount,
		Memo:      memo,
	}, w.Public())
	if err != nil {
		return nil, err
	}

	return &Deposit{
		Commitment: types.Commitment(crypto.CommitNote(recipient, amount, secret)),
		Payload:    payload,
		secret:     secret,
		amount:     amount,
	}, nil
}

// Submit places the deposit into the pool and records the resulting note.
func (w *Wallet) Submit(ledger Ledger, poolID uint64, dep *Deposit) (uint64, [32]byte, error) {
	index, root, err := ledger.Deposit(poolID, dep.Commitment, dep.Payload)
	if err != nil {
		return 0, [32]byte{}, err
	}
	w.notes[dep.Commitment] = &OwnedNote{
		PoolID:     poolID,
		Index:      index,
		Secret:     dep.secret,
		Amount:     dep.amount,
		Commitment: dep.Commitment,
	}
	return index, root, nil
}

// Scan walks every leaf of the pool and trial-decrypts the payloads,
// returning how many are addressed to this wallet. Known notes are
// re-linked to their leaf indices along the way.
func (w *Wallet) Scan(ledger Ledger, poolID uint64) (int, error) {
	p, err := ledger.Pool(poolID)
	if err != nil {
		return 0, err
	}

	mine := w.RecipientBytes()
	found := 0
	for i := uint64(0); i < p.LeafCount; i++ {
		leaf, err := ledger.Leaf(poolID, i)
		if err != nil {
			return found, err
		}
		if leaf.Payload == nil {
			continue
		}
		plain, err := types.OpenNote(leaf.Payload, w.prv)
		if err != nil {
			// not sealed to this wallet
			continue
		}
		if !bytes.Equal(plain.Recipient, mine[:]) {
			continue
		}
		if note, ok := w.notes[leaf.Commitment]; ok {
			note.Index = leaf.Index
		}
		found++
	}
	return found, nil
}

// Balance sums the wallet's unspent notes in the pool.
func (w *Wallet) Balance(ledger Ledger, poolID uint64) (*uint256.Int, error) {
	total := uint256.NewInt(0)
	for _, note := range w.notes {
		if note.PoolID != poolID {
			continue
		}
		nf := types.Nullifier(crypto.DeriveNullifier(note.Secret, [32]byte(note.Commitment)))
		spent, err := ledger.IsSpent(nf)
		if err != nil {
			return nil, err
		}
		if spent {
			continue
		}
		total = total.Add(total, uint256.NewInt(note.Amount))
	}
	return total, nil
}

// Notes lists the wallet's records for a pool, spent or not.
func (w *Wallet) Notes(poolID uint64) []*OwnedNote {
	out := make([]*OwnedNote, 0, len(w.notes))
	for _, note := range w.notes {
		if note.PoolID == poolID {
			out = append(out, note)
		}
	}
	return out
}

// Withdraw spends one owned note: it gathers the membership path and the
// current root, derives the nullifier, proves the withdrawal with the
// given backend and submits it.
func (w *Wallet) Withdraw(ledger Ledger, prover proof.Prover, poolID uint64, c types.Commitment) error {
	note, ok := w.notes[c]
	if !ok || note.PoolID != poolID {
		return ErrUnknownNote
	}

	root, err := ledger.Root(poolID)
	if err != nil {
		return err
	}
	path, err := ledger.Path(poolID, note.Index)
	if err != nil {
		return err
	}

	nf := types.Nullifier(crypto.DeriveNullifier(note.Secret, [32]byte(c)))
	recipient := w.RecipientBytes()

	pf, err := prover.Prove(proof.WithdrawWitness{
		Secret: note.Secret,
		Amount: note.Amount,
		Index:  note.Index,
		Path:   path,
		Inputs: proof.PublicInputs{Root: root, Nullifier: [32]byte(nf), Recipient: recipient},
	})
	if err != nil {
		return err
	}
	return ledger.Withdraw(poolID, nf, recipient, pf, path, note.Index)
}
