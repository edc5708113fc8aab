package memory

import "context"

type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) TxManager {
	return TxManager{store: store}
}

// RunInTx holds the store lock for the duration of fn and undoes every write
// made through the repositories if fn fails. Nested calls join the outer
// transaction.
func (t TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := t.store.txFrom(ctx); ok {
		return fn(ctx)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	tx := &txState{store: t.store}
	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		tx.rollback()
		return err
	}
	return nil
}
