package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kysee/shieldpool/crypto"
	"github.com/kysee/shieldpool/merkle"
	"github.com/kysee/shieldpool/proof"
	"github.com/kysee/shieldpool/types"
)

// spendable bundles what a depositor knows about one note.
type spendable struct {
	secret    [32]byte
	recipient [32]byte
	amount    uint64
	cmt       types.Commitment
	nf        types.Nullifier
}

func mintNote(amount uint64) spendable {
	var sp spendable
	sp.secret = types.RandSecret()
	copy(sp.recipient[:], types.RandBytes(32))
	sp.amount = amount
	sp.cmt = types.Commitment(crypto.CommitNote(sp.recipient, amount, sp.secret))
	sp.nf = types.Nullifier(crypto.DeriveNullifier(sp.secret, [32]byte(sp.cmt)))
	return sp
}

type harness struct {
	key    [32]byte
	store  *MemStore
	svc    *Service
	prover *proof.AttestationProver
}

func newHarness() *harness {
	key := proof.NewAttestationKey()
	store := NewMemStore()
	return &harness{
		key:    key,
		store:  store,
		svc:    NewService(store, proof.NewAttestationVerifier(key), WithClock(func() int64 { return 1_700_000_000 })),
		prover: proof.NewAttestationProver(key),
	}
}

func (h *harness) prove(t *testing.T, root [32]byte, sp spendable) []byte {
	pf, err := h.prover.Prove(proof.WithdrawWitness{
		Inputs: proof.PublicInputs{Root: root, Nullifier: [32]byte(sp.nf), Recipient: sp.recipient},
	})
	require.NoError(t, err)
	return pf
}

func TestInitializePool(t *testing.T) {
	h := newHarness()

	var authority [32]byte
	copy(authority[:], types.RandBytes(32))

	p, err := h.svc.InitializePool(1, 10, 4, authority)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.ID)
	require.EqualValues(t, 0, p.LeafCount)
	require.EqualValues(t, 10, p.MinPoolSize)
	require.Equal(t, 4, p.Depth)
	require.Equal(t, authority, p.Authority)
	require.EqualValues(t, 1_700_000_000, p.CreatedAt)
	require.Equal(t, merkle.EmptyRoot(4), p.Root)

	_, err = h.svc.InitializePool(1, 5, 8, authority)
	require.ErrorIs(t, err, ErrPoolExists)

	_, err = h.svc.InitializePool(2, 5, 0, authority)
	require.ErrorIs(t, err, merkle.ErrBadDepth)
	_, err = h.svc.InitializePool(2, 5, merkle.MaxDepth+1, authority)
	require.ErrorIs(t, err, merkle.ErrBadDepth)
}

func TestDepositAdvancesRoot(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 0, 4, [32]byte{})
	require.NoError(t, err)

	shadow, err := merkle.New(4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sp := mintNote(uint64(100 + i))
		index, root, err := h.svc.Deposit(1, sp.cmt, nil)
		require.NoError(t, err)
		require.EqualValues(t, i, index)

		_, want, err := shadow.Append([32]byte(sp.cmt))
		require.NoError(t, err)
		require.Equal(t, want, root)

		got, err := h.svc.Root(1)
		require.NoError(t, err)
		require.Equal(t, root, got)
	}

	p, err := h.svc.Pool(1)
	require.NoError(t, err)
	require.EqualValues(t, 3, p.LeafCount)
}

func TestDepositStoresPayload(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 0, 4, [32]byte{})
	require.NoError(t, err)

	prv, err := crypto.NewKey()
	require.NoError(t, err)
	plain := &types.NotePlaintext{
		Version:   1,
		Recipient: prv.PublicKey.Bytes(),
		Amount:    777,
		Memo:      []byte("rent"),
	}
	note, err := types.SealNote(plain, &prv.PublicKey)
	require.NoError(t, err)

	sp := mintNote(777)
	index, _, err := h.svc.Deposit(1, sp.cmt, note)
	require.NoError(t, err)

	leaf, err := h.svc.Leaf(1, index)
	require.NoError(t, err)
	require.Equal(t, sp.cmt, leaf.Commitment)
	require.EqualValues(t, 1_700_000_000, leaf.CreatedAt)

	opened, err := types.OpenNote(leaf.Payload, prv)
	require.NoError(t, err)
	require.Equal(t, plain.Amount, opened.Amount)
	require.Equal(t, plain.Memo, opened.Memo)
}

func TestDepositRejectsDuplicateCommitment(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 0, 4, [32]byte{})
	require.NoError(t, err)

	sp := mintNote(5)
	_, root, err := h.svc.Deposit(1, sp.cmt, nil)
	require.NoError(t, err)

	_, _, err = h.svc.Deposit(1, sp.cmt, nil)
	require.ErrorIs(t, err, ErrCommitmentExists)

	p, err := h.svc.Pool(1)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.LeafCount)
	require.Equal(t, root, p.Root)
}

func TestDepositPoolFull(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 0, 1, [32]byte{})
	require.NoError(t, err)

	_, _, err = h.svc.Deposit(1, mintNote(1).cmt, nil)
	require.NoError(t, err)
	_, root, err := h.svc.Deposit(1, mintNote(2).cmt, nil)
	require.NoError(t, err)

	_, _, err = h.svc.Deposit(1, mintNote(3).cmt, nil)
	require.ErrorIs(t, err, ErrPoolFull)

	p, err := h.svc.Pool(1)
	require.NoError(t, err)
	require.EqualValues(t, 2, p.LeafCount)
	require.Equal(t, root, p.Root)
}

func TestUnknownPool(t *testing.T) {
	h := newHarness()

	_, _, err := h.svc.Deposit(9, mintNote(1).cmt, nil)
	require.ErrorIs(t, err, ErrPoolNotFound)

	_, err = h.svc.Root(9)
	require.ErrorIs(t, err, ErrPoolNotFound)
	_, err = h.svc.Path(9, 0)
	require.ErrorIs(t, err, ErrPoolNotFound)

	sp := mintNote(1)
	err = h.svc.Withdraw(9, sp.nf, sp.recipient, nil, nil, 0)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

// TestWithdrawEndToEnd walks the whole deposit/withdraw story: nine
// deposits stay below the anonymity floor, the tenth opens the pool, the
// withdrawal spends once and only once.
func TestWithdrawEndToEnd(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 10, 4, [32]byte{})
	require.NoError(t, err)

	notes := make([]spendable, 10)
	for i := 0; i < 9; i++ {
		notes[i] = mintNote(uint64(i + 1))
		_, _, err := h.svc.Deposit(1, notes[i].cmt, nil)
		require.NoError(t, err)
	}
	rootAt9, err := h.svc.Root(1)
	require.NoError(t, err)

	// a fully valid withdrawal is still refused below the floor
	path8, err := h.svc.Path(1, 8)
	require.NoError(t, err)
	err = h.svc.Withdraw(1, notes[8].nf, notes[8].recipient, h.prove(t, rootAt9, notes[8]), path8, 8)
	require.ErrorIs(t, err, ErrInsufficientAnonymitySet)

	spent, err := h.svc.IsSpent(notes[8].nf)
	require.NoError(t, err)
	require.False(t, spent)

	// the tenth deposit opens the pool
	notes[9] = mintNote(10)
	index, rootAt10, err := h.svc.Deposit(1, notes[9].cmt, nil)
	require.NoError(t, err)
	require.EqualValues(t, 9, index)
	require.NotEqual(t, rootAt9, rootAt10)

	path9, err := h.svc.Path(1, 9)
	require.NoError(t, err)
	require.True(t, merkle.VerifyPath([32]byte(notes[9].cmt), path9, rootAt10, 9))

	pf := h.prove(t, rootAt10, notes[9])
	require.NoError(t, h.svc.Withdraw(1, notes[9].nf, notes[9].recipient, pf, path9, 9))

	spent, err = h.svc.IsSpent(notes[9].nf)
	require.NoError(t, err)
	require.True(t, spent)

	// the identical call again is a double spend
	err = h.svc.Withdraw(1, notes[9].nf, notes[9].recipient, pf, path9, 9)
	require.ErrorIs(t, err, ErrAlreadySpent)
}

func TestWithdrawRejectsBadMerklePath(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 1, 4, [32]byte{})
	require.NoError(t, err)

	notes := []spendable{mintNote(1), mintNote(2), mintNote(3)}
	for _, sp := range notes {
		_, _, err := h.svc.Deposit(1, sp.cmt, nil)
		require.NoError(t, err)
	}
	root, err := h.svc.Root(1)
	require.NoError(t, err)

	path, err := h.svc.Path(1, 1)
	require.NoError(t, err)
	path[0].Sibling[5] ^= 0x20
	err = h.svc.Withdraw(1, notes[1].nf, notes[1].recipient, h.prove(t, root, notes[1]), path, 1)
	require.ErrorIs(t, err, ErrInvalidMerkleProof)

	// a path for one index cannot be claimed at another
	path, err = h.svc.Path(1, 1)
	require.NoError(t, err)
	err = h.svc.Withdraw(1, notes[1].nf, notes[1].recipient, h.prove(t, root, notes[1]), path, 2)
	require.ErrorIs(t, err, ErrInvalidMerkleProof)

	spent, err := h.svc.IsSpent(notes[1].nf)
	require.NoError(t, err)
	require.False(t, spent)
}

// TestWithdrawFailedProofKeepsNullifier checks the ordering guarantee: a
// rejected proof must not burn the nullifier, so a later honest attempt
// still succeeds.
func TestWithdrawFailedProofKeepsNullifier(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 1, 4, [32]byte{})
	require.NoError(t, err)

	sp := mintNote(50)
	index, root, err := h.svc.Deposit(1, sp.cmt, nil)
	require.NoError(t, err)
	path, err := h.svc.Path(1, index)
	require.NoError(t, err)

	err = h.svc.Withdraw(1, sp.nf, sp.recipient, types.RandBytes(32), path, index)
	require.ErrorIs(t, err, ErrInvalidProof)

	spent, err := h.svc.IsSpent(sp.nf)
	require.NoError(t, err)
	require.False(t, spent)

	require.NoError(t, h.svc.Withdraw(1, sp.nf, sp.recipient, h.prove(t, root, sp), path, index))
}

func TestWithdrawStaleRootProof(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 1, 4, [32]byte{})
	require.NoError(t, err)

	sp := mintNote(7)
	index, oldRoot, err := h.svc.Deposit(1, sp.cmt, nil)
	require.NoError(t, err)
	stale := h.prove(t, oldRoot, sp)

	// another deposit advances the root, invalidating the earlier proof
	_, newRoot, err := h.svc.Deposit(1, mintNote(8).cmt, nil)
	require.NoError(t, err)

	path, err := h.svc.Path(1, index)
	require.NoError(t, err)
	err = h.svc.Withdraw(1, sp.nf, sp.recipient, stale, path, index)
	require.ErrorIs(t, err, ErrInvalidProof)

	// re-proving against the advanced root recovers
	require.NoError(t, h.svc.Withdraw(1, sp.nf, sp.recipient, h.prove(t, newRoot, sp), path, index))
}

func TestConcurrentDepositDeterminism(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 0, 6, [32]byte{})
	require.NoError(t, err)

	const k = 32
	notes := make([]spendable, k)
	for i := range notes {
		notes[i] = mintNote(uint64(i + 1))
	}

	g := new(errgroup.Group)
	for i := 0; i < k; i++ {
		sp := notes[i]
		g.Go(func() error {
			_, _, err := h.svc.Deposit(1, sp.cmt, nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	p, err := h.svc.Pool(1)
	require.NoError(t, err)
	require.EqualValues(t, k, p.LeafCount)

	// the final root must be the sequential root of the leaf order the
	// lock actually granted, whatever that order was
	shadow, err := merkle.New(6)
	require.NoError(t, err)
	seen := make(map[types.Commitment]bool)
	var root [32]byte
	for i := uint64(0); i < k; i++ {
		leaf, err := h.svc.Leaf(1, i)
		require.NoError(t, err)
		require.False(t, seen[leaf.Commitment])
		seen[leaf.Commitment] = true
		_, root, err = shadow.Append([32]byte(leaf.Commitment))
		require.NoError(t, err)
	}
	require.Equal(t, p.Root, root)
	for _, sp := range notes {
		require.True(t, seen[sp.cmt])
	}
}

// gatedStore parks the first LoadPool call until released, so a test can
// hold one operation inside its storage read while another one runs.
type gatedStore struct {
	Storage
	mtx     sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(inner Storage) *gatedStore {
	return &gatedStore{
		Storage: inner,
		armed:   true,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) LoadPool(poolID uint64) (types.Pool, error) {
	g.mtx.Lock()
	tripped := g.armed
	g.armed = false
	g.mtx.Unlock()

	if tripped {
		close(g.entered)
		<-g.release
	}
	return g.Storage.LoadPool(poolID)
}

// TestDepositRacingPoolCreation holds a deposit inside its first storage
// read while InitializePool completes on the same id. The deposit that
// began first must share the pool's accumulator with every later call:
// indices advance and no accepted leaf is overwritten.
func TestDepositRacingPoolCreation(t *testing.T) {
	gate := newGatedStore(NewMemStore())
	key := proof.NewAttestationKey()
	svc := NewService(gate, proof.NewAttestationVerifier(key))

	c1 := mintNote(1).cmt
	c2 := mintNote(2).cmt

	var idx1 uint64
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		idx1, _, err = svc.Deposit(1, c1, nil)
		return err
	})

	<-gate.entered
	_, err := svc.InitializePool(1, 0, 4, [32]byte{})
	require.NoError(t, err)
	close(gate.release)

	require.NoError(t, g.Wait())
	require.EqualValues(t, 0, idx1)

	idx2, root, err := svc.Deposit(1, c2, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, idx2, "deposits must land on distinct leaves")

	p, err := svc.Pool(1)
	require.NoError(t, err)
	require.EqualValues(t, 2, p.LeafCount)

	leaf0, err := svc.Leaf(1, 0)
	require.NoError(t, err)
	require.Equal(t, c1, leaf0.Commitment)
	leaf1, err := svc.Leaf(1, 1)
	require.NoError(t, err)
	require.Equal(t, c2, leaf1.Commitment)

	shadow, err := merkle.New(4)
	require.NoError(t, err)
	_, _, err = shadow.Append([32]byte(c1))
	require.NoError(t, err)
	_, want, err := shadow.Append([32]byte(c2))
	require.NoError(t, err)
	require.Equal(t, want, root)
}

func TestUnknownPoolLeavesNoState(t *testing.T) {
	h := newHarness()

	for id := uint64(2); id < 34; id++ {
		_, _, err := h.svc.Deposit(id, mintNote(1).cmt, nil)
		require.ErrorIs(t, err, ErrPoolNotFound)
		_, err = h.svc.Path(id, 0)
		require.ErrorIs(t, err, ErrPoolNotFound)
		err = h.svc.Withdraw(id, randNullifier(), [32]byte{}, nil, nil, 0)
		require.ErrorIs(t, err, ErrPoolNotFound)
	}
	require.Empty(t, h.svc.states)

	// a pool that exists gets exactly one slot once used
	_, err := h.svc.InitializePool(1, 0, 4, [32]byte{})
	require.NoError(t, err)
	_, _, err = h.svc.Deposit(1, mintNote(1).cmt, nil)
	require.NoError(t, err)
	require.Len(t, h.svc.states, 1)
}

func TestServiceRestartRebuild(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 1, 4, [32]byte{})
	require.NoError(t, err)

	notes := make([]spendable, 5)
	for i := range notes {
		notes[i] = mintNote(uint64(i + 1))
		_, _, err := h.svc.Deposit(1, notes[i].cmt, nil)
		require.NoError(t, err)
	}
	root, err := h.svc.Root(1)
	require.NoError(t, err)

	path2, err := h.svc.Path(1, 2)
	require.NoError(t, err)
	require.NoError(t, h.svc.Withdraw(1, notes[2].nf, notes[2].recipient, h.prove(t, root, notes[2]), path2, 2))

	// a fresh service over the same store resumes where the old one stopped
	svc2 := NewService(h.store, proof.NewAttestationVerifier(h.key))

	root2, err := svc2.Root(1)
	require.NoError(t, err)
	require.Equal(t, root, root2)

	path4, err := svc2.Path(1, 4)
	require.NoError(t, err)
	require.True(t, merkle.VerifyPath([32]byte(notes[4].cmt), path4, root2, 4))

	// the spent set survives the restart
	err = svc2.Withdraw(1, notes[2].nf, notes[2].recipient, h.prove(t, root2, notes[2]), path2, 2)
	require.ErrorIs(t, err, ErrAlreadySpent)

	// unspent notes remain withdrawable
	require.NoError(t, svc2.Withdraw(1, notes[4].nf, notes[4].recipient, h.prove(t, root2, notes[4]), path4, 4))
}

func TestRebuildDetectsCorruptRoot(t *testing.T) {
	h := newHarness()
	_, err := h.svc.InitializePool(1, 0, 4, [32]byte{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err := h.svc.Deposit(1, mintNote(uint64(i+1)).cmt, nil)
		require.NoError(t, err)
	}

	p, err := h.store.LoadPool(1)
	require.NoError(t, err)
	p.Root[0] ^= 0x01
	require.NoError(t, h.store.SavePool(p))

	svc2 := NewService(h.store, proof.NewAttestationVerifier(h.key))
	_, err = svc2.Path(1, 0)
	require.ErrorContains(t, err, "disagrees")
}

// TestWithdrawWithPlonkBackend runs a deposit and withdrawal through the
// real proving system instead of the attestation backend.
func TestWithdrawWithPlonkBackend(t *testing.T) {
	prover, verifier, err := proof.NewPlonkPair(4)
	require.NoError(t, err)

	svc := NewService(NewMemStore(), verifier)
	_, err = svc.InitializePool(1, 1, 4, [32]byte{})
	require.NoError(t, err)

	sp := mintNote(9000)
	index, root, err := svc.Deposit(1, sp.cmt, nil)
	require.NoError(t, err)
	path, err := svc.Path(1, index)
	require.NoError(t, err)

	pf, err := prover.Prove(proof.WithdrawWitness{
		Secret: sp.secret,
		Amount: sp.amount,
		Index:  index,
		Path:   path,
		Inputs: proof.PublicInputs{Root: root, Nullifier: [32]byte(sp.nf), Recipient: sp.recipient},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Withdraw(1, sp.nf, sp.recipient, pf, path, index))
	require.ErrorIs(t, svc.Withdraw(1, sp.nf, sp.recipient, pf, path, index), ErrAlreadySpent)
}
