package pool

import (
	"sync"

	"github.com/kysee/shieldpool/types"
)

// NullifierGuard is the double-spend gate. Check and insert run under one
// mutex so two withdrawals racing on the same nullifier can never both
// pass the check; the lock spans every pool because nullifiers are global
// by construction. State lives behind the storage port, so a rebuilt
// service keeps rejecting nullifiers spent before a restart.
type NullifierGuard struct {
	mtx   sync.Mutex
	store Storage
}

func NewNullifierGuard(store Storage) *NullifierGuard {
	return &NullifierGuard{store: store}
}

// CheckAndInsert records n as spent at the given time, or fails with
// ErrAlreadySpent leaving the spent set unchanged.
func (g *NullifierGuard) CheckAndInsert(n types.Nullifier, at int64) error {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	spent, err := g.store.IsSpent(n)
	if err != nil {
		return err
	}
	if spent {
		return ErrAlreadySpent
	}
	return g.store.MarkSpent(n, at)
}

// IsSpent reports whether n has been recorded, with no side effect.
func (g *NullifierGuard) IsSpent(n types.Nullifier) (bool, error) {
	return g.store.IsSpent(n)
}
