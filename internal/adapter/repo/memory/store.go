package memory

import (
	"context"
	"sync"

	"mearth/internal/domain/game"
)

// Store is the in-process agent registry. Every write happens under mu, and
// TxManager holds mu for the whole transaction, so a transaction touching two
// agents is seen by other readers either entirely or not at all.
type Store struct {
	mu       sync.RWMutex
	state    map[string]game.Agent
	events   map[string][]game.DomainEvent
	outcomes []game.BattleOutcome
}

func NewStore() *Store {
	return &Store{
		state:  make(map[string]game.Agent),
		events: make(map[string][]game.DomainEvent),
	}
}

func (s *Store) SeedState(state game.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[state.ID] = state.Clone()
}

type txKeyType struct{}

var txKey = txKeyType{}

type txState struct {
	store *Store
	undo  []func()
}

func (tx *txState) push(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *txState) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (s *Store) txFrom(ctx context.Context) (*txState, bool) {
	tx, ok := ctx.Value(txKey).(*txState)
	if !ok || tx == nil || tx.store != s {
		return nil, false
	}
	return tx, true
}

func (s *Store) view(ctx context.Context, fn func()) {
	if _, ok := s.txFrom(ctx); ok {
		fn()
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// update runs fn with an undo recorder. Outside a transaction writes are
// applied immediately and cannot be undone.
func (s *Store) update(ctx context.Context, fn func(onRollback func(func())) error) error {
	if tx, ok := s.txFrom(ctx); ok {
		return fn(tx.push)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(func(func()) {})
}
