package pool

import (
	"sync"

	"github.com/kysee/shieldpool/types"
)

// Storage is the persistence port the service drives. Hosts plug in their
// own engine and own the atomic commit of a batch of mutations; the
// service never assumes a particular backend. Implementations must be safe
// for concurrent use.
type Storage interface {
	LoadPool(poolID uint64) (types.Pool, error)
	SavePool(pool types.Pool) error

	SaveLeaf(poolID uint64, leaf types.Leaf) error
	LoadLeaf(poolID, index uint64) (types.Leaf, error)
	HasCommitment(poolID uint64, c types.Commitment) (bool, error)

	IsSpent(n types.Nullifier) (bool, error)
	MarkSpent(n types.Nullifier, at int64) error
}

// MemStore is the reference in-memory Storage. Pools, leaves and the
// spent set live in maps under one RWMutex.
type MemStore struct {
	mtx         sync.RWMutex
	pools       map[uint64]types.Pool
	leaves      map[uint64]map[uint64]types.Leaf
	commitments map[uint64]map[types.Commitment]struct{}
	spent       map[types.Nullifier]int64
}

var _ Storage = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		pools:       make(map[uint64]types.Pool),
		leaves:      make(map[uint64]map[uint64]types.Leaf),
		commitments: make(map[uint64]map[types.Commitment]struct{}),
		spent:       make(map[types.Nullifier]int64),
	}
}

func (m *MemStore) LoadPool(poolID uint64) (types.Pool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	p, ok := m.pools[poolID]
	if !ok {
		return types.Pool{}, ErrPoolNotFound
	}
	return p, nil
}

func (m *MemStore) SavePool(p types.Pool) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.pools[p.ID] = p
	return nil
}

func (m *MemStore) SaveLeaf(poolID uint64, leaf types.Leaf) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	byIdx, ok := m.leaves[poolID]
	if !ok {
		byIdx = make(map[uint64]types.Leaf)
		m.leaves[poolID] = byIdx
	}
	byIdx[leaf.Index] = leaf

	byCmt, ok := m.commitments[poolID]
	if !ok {
		byCmt = make(map[types.Commitment]struct{})
		m.commitments[poolID] = byCmt
	}
	byCmt[leaf.Commitment] = struct{}{}
	return nil
}

func (m *MemStore) LoadLeaf(poolID, index uint64) (types.Leaf, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	leaf, ok := m.leaves[poolID][index]
	if !ok {
		return types.Leaf{}, ErrLeafNotFound
	}
	return leaf, nil
}

func (m *MemStore) HasCommitment(poolID uint64, c types.Commitment) (bool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	_, ok := m.commitments[poolID][c]
	return ok, nil
}

func (m *MemStore) IsSpent(n types.Nullifier) (bool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	_, ok := m.spent[n]
	return ok, nil
}

func (m *MemStore) MarkSpent(n types.Nullifier, at int64) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.spent[n] = at
	return nil
}
