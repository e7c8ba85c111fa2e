// Package pool implements the shielded value pool service: deposit of
// hidden commitments into per-pool Merkle accumulators, withdrawal gated
// by an anonymity floor, membership verification, a pluggable proof
// backend and an atomic nullifier guard. The service owns no persistence
// itself; it drives a Storage port supplied by the host.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kysee/shieldpool/merkle"
	"github.com/kysee/shieldpool/proof"
	"github.com/kysee/shieldpool/types"
)

// Service orchestrates pool lifecycle and holds the in-memory accumulator
// of each pool it has touched. Accumulators are rebuilt lazily from the
// storage port, so a fresh Service over an existing store resumes where
// the previous one stopped.
//
// Locking: each pool has its own mutex serializing accumulator updates;
// the nullifier guard carries an independent lock spanning all pools.
type Service struct {
	store Storage
	guard *NullifierGuard
	vrf   proof.Verifier
	now   func() int64
	log   zerolog.Logger

	mtx    sync.Mutex
	states map[uint64]*poolState
}

type poolState struct {
	mtx  sync.Mutex
	tree *merkle.Tree
}

// Option adjusts a Service.
type Option func(*Service)

// WithLogger routes service events to log. The default discards them.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the timestamp source, unix seconds. Tests pin it.
func WithClock(now func() int64) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a pool service over the given storage port and proof
// verifier.
func NewService(store Storage, vrf proof.Verifier, opts ...Option) *Service {
	s := &Service{
		store:  store,
		guard:  NewNullifierGuard(store),
		vrf:    vrf,
		now:    func() int64 { return time.Now().Unix() },
		log:    zerolog.Nop(),
		states: make(map[uint64]*poolState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitializePool creates a pool with the given anonymity floor and tree
// depth. The root starts at the empty-tree digest for that depth. Fails
// with ErrPoolExists when the id is taken.
func (s *Service) InitializePool(poolID, minPoolSize uint64, depth int, authority [32]byte) (types.Pool, error) {
	tree, err := merkle.New(depth)
	if err != nil {
		return types.Pool{}, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, err := s.store.LoadPool(poolID); err == nil {
		return types.Pool{}, ErrPoolExists
	} else if !errors.Is(err, ErrPoolNotFound) {
		return types.Pool{}, err
	}

	p := types.Pool{
		ID:          poolID,
		Root:        tree.Root(),
		LeafCount:   0,
		MinPoolSize: minPoolSize,
		Depth:       depth,
		Authority:   authority,
		CreatedAt:   s.now(),
	}
	if err := s.store.SavePool(p); err != nil {
		return types.Pool{}, err
	}

	s.log.Info().
		Uint64("pool", poolID).
		Int("depth", depth).
		Uint64("min_pool_size", minPoolSize).
		Msg("pool initialized")
	return p, nil
}

// Deposit appends a commitment to the pool and stores the encrypted
// payload beside the new leaf. Returns the leaf index and the advanced
// root. Fails with ErrCommitmentExists when the exact commitment is
// already a leaf, ErrPoolFull at capacity.
func (s *Service) Deposit(poolID uint64, c types.Commitment, payload *types.EncryptedNote) (uint64, [32]byte, error) {
	st, err := s.state(poolID)
	if err != nil {
		return 0, [32]byte{}, err
	}
	st.mtx.Lock()
	defer st.mtx.Unlock()

	if err := s.ensure(st, poolID); err != nil {
		return 0, [32]byte{}, err
	}
	p, err := s.store.LoadPool(poolID)
	if err != nil {
		return 0, [32]byte{}, err
	}

	exists, err := s.store.HasCommitment(poolID, c)
	if err != nil {
		return 0, [32]byte{}, err
	}
	if exists {
		return 0, [32]byte{}, ErrCommitmentExists
	}

	index, root, err := st.tree.Append([32]byte(c))
	if err != nil {
		if errors.Is(err, merkle.ErrTreeFull) {
			return 0, [32]byte{}, ErrPoolFull
		}
		return 0, [32]byte{}, err
	}

	leaf := types.Leaf{
		Index:      index,
		Commitment: c,
		Payload:    payload,
		CreatedAt:  s.now(),
	}
	if err := s.store.SaveLeaf(poolID, leaf); err != nil {
		// storage failed mid-update; drop the cached accumulator so the
		// next call rebuilds from the store's view
		st.tree = nil
		return 0, [32]byte{}, err
	}
	p.Root = root
	p.LeafCount = index + 1
	if err := s.store.SavePool(p); err != nil {
		st.tree = nil
		return 0, [32]byte{}, err
	}

	s.log.Debug().
		Uint64("pool", poolID).
		Uint64("index", index).
		Hex("commitment", c.Bytes()).
		Hex("root", root[:]).
		Msg("deposit accepted")
	return index, root, nil
}

// Withdraw authorizes a spend. Checks run in fixed order: the anonymity
// floor, then membership of the claimed leaf under the current root, then
// the withdrawal proof against (root, nullifier, recipient), and only
// then the nullifier commit. A failed proof therefore never consumes a
// nullifier.
func (s *Service) Withdraw(poolID uint64, n types.Nullifier, recipient [32]byte, proofBytes []byte, path merkle.Path, claimedIndex uint64) error {
	st, err := s.state(poolID)
	if err != nil {
		return err
	}
	st.mtx.Lock()
	if err := s.ensure(st, poolID); err != nil {
		st.mtx.Unlock()
		return err
	}
	p, err := s.store.LoadPool(poolID)
	st.mtx.Unlock()
	if err != nil {
		return err
	}

	if p.LeafCount < p.MinPoolSize {
		s.reject(poolID, n, ErrInsufficientAnonymitySet)
		return ErrInsufficientAnonymitySet
	}

	// the claimed leaf is whatever the pool holds at that index, the
	// empty leaf when the index is past the frontier
	var leaf [32]byte
	if claimedIndex < p.LeafCount {
		rec, err := s.store.LoadLeaf(poolID, claimedIndex)
		if err != nil {
			return err
		}
		leaf = [32]byte(rec.Commitment)
	}
	if !merkle.VerifyPath(leaf, path, p.Root, claimedIndex) {
		s.reject(poolID, n, ErrInvalidMerkleProof)
		return ErrInvalidMerkleProof
	}

	inputs := proof.PublicInputs{Root: p.Root, Nullifier: [32]byte(n), Recipient: recipient}
	if !s.vrf.Verify(proofBytes, inputs) {
		s.reject(poolID, n, ErrInvalidProof)
		return ErrInvalidProof
	}

	if err := s.guard.CheckAndInsert(n, s.now()); err != nil {
		s.reject(poolID, n, err)
		return err
	}

	s.log.Info().
		Uint64("pool", poolID).
		Hex("nullifier", n.Bytes()).
		Msg("withdrawal recorded")
	return nil
}

// Pool returns the stored pool record.
func (s *Service) Pool(poolID uint64) (types.Pool, error) {
	return s.store.LoadPool(poolID)
}

// Root returns the pool's current accumulator root.
func (s *Service) Root(poolID uint64) ([32]byte, error) {
	p, err := s.store.LoadPool(poolID)
	if err != nil {
		return [32]byte{}, err
	}
	return p.Root, nil
}

// Path returns the membership path for a leaf index, well-defined past
// the frontier up to the pool's capacity.
func (s *Service) Path(poolID, index uint64) (merkle.Path, error) {
	st, err := s.state(poolID)
	if err != nil {
		return nil, err
	}
	st.mtx.Lock()
	defer st.mtx.Unlock()

	if err := s.ensure(st, poolID); err != nil {
		return nil, err
	}
	return st.tree.Path(index)
}

// Leaf returns the stored leaf record, including the encrypted payload.
func (s *Service) Leaf(poolID, index uint64) (types.Leaf, error) {
	return s.store.LoadLeaf(poolID, index)
}

// IsSpent reports whether the nullifier has been recorded.
func (s *Service) IsSpent(n types.Nullifier) (bool, error) {
	return s.guard.IsSpent(n)
}

// state returns the accumulator slot for poolID, creating it on first use.
// A slot is created only for a pool present in storage and is never
// replaced afterward; its mutex is the pool's insert lock.
func (s *Service) state(poolID uint64) (*poolState, error) {
	s.mtx.Lock()
	st, ok := s.states[poolID]
	s.mtx.Unlock()
	if ok {
		return st, nil
	}

	if _, err := s.store.LoadPool(poolID); err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if st, ok := s.states[poolID]; ok {
		return st, nil
	}
	st = &poolState{}
	s.states[poolID] = st
	return st, nil
}

// ensure rebuilds the accumulator from storage on first touch. The caller
// holds the pool lock.
func (s *Service) ensure(st *poolState, poolID uint64) error {
	if st.tree != nil {
		return nil
	}

	p, err := s.store.LoadPool(poolID)
	if err != nil {
		return err
	}
	tree, err := merkle.New(p.Depth)
	if err != nil {
		return err
	}
	for i := uint64(0); i < p.LeafCount; i++ {
		rec, err := s.store.LoadLeaf(poolID, i)
		if err != nil {
			return fmt.Errorf("rebuild pool %d: %w", poolID, err)
		}
		if _, _, err := tree.Append([32]byte(rec.Commitment)); err != nil {
			return fmt.Errorf("rebuild pool %d: %w", poolID, err)
		}
	}
	if tree.Root() != p.Root {
		return fmt.Errorf("rebuild pool %d: recomputed root %x disagrees with stored root %x",
			poolID, tree.Root(), p.Root)
	}

	st.tree = tree
	s.log.Debug().
		Uint64("pool", poolID).
		Uint64("leaves", p.LeafCount).
		Msg("accumulator rebuilt from storage")
	return nil
}

func (s *Service) reject(poolID uint64, n types.Nullifier, err error) {
	s.log.Debug().
		Uint64("pool", poolID).
		Hex("nullifier", n.Bytes()).
		Err(err).
		Msg("withdrawal rejected")
}
