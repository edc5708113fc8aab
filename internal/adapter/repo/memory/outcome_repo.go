package memory

import (
	"context"
	"time"

	"mearth/internal/domain/game"
)

// OutcomeRepo keeps battle outcomes for the retention window only.
type OutcomeRepo struct {
	store     *Store
	retention time.Duration
}

func NewOutcomeRepo(store *Store, retention time.Duration) OutcomeRepo {
	return OutcomeRepo{store: store, retention: retention}
}

func (r OutcomeRepo) Append(ctx context.Context, outcome game.BattleOutcome) error {
	return r.store.update(ctx, func(onRollback func(func())) error {
		before := r.store.outcomes
		cutoff := outcome.EndedAt.Add(-r.retention)
		kept := make([]game.BattleOutcome, 0, len(before)+1)
		for _, o := range before {
			if o.EndedAt.After(cutoff) {
				kept = append(kept, o)
			}
		}
		r.store.outcomes = append(kept, outcome)
		onRollback(func() { r.store.outcomes = before })
		return nil
	})
}

func (r OutcomeRepo) ListSince(ctx context.Context, since time.Time) ([]game.BattleOutcome, error) {
	out := make([]game.BattleOutcome, 0)
	r.store.view(ctx, func() {
		for _, o := range r.store.outcomes {
			if !o.EndedAt.Before(since) {
				out = append(out, o)
			}
		}
	})
	return out, nil
}
