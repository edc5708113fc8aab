package memory

import (
	"context"

	"mearth/internal/domain/game"
)

const maxEventsPerAgent = 500

type EventRepo struct {
	store *Store
}

func NewEventRepo(store *Store) EventRepo {
	return EventRepo{store: store}
}

func (r EventRepo) Append(ctx context.Context, agentID string, events []game.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.store.update(ctx, func(onRollback func(func())) error {
		before := r.store.events[agentID]
		next := make([]game.DomainEvent, 0, len(before)+len(events))
		next = append(next, before...)
		next = append(next, events...)
		if len(next) > maxEventsPerAgent {
			next = next[len(next)-maxEventsPerAgent:]
		}
		r.store.events[agentID] = next
		onRollback(func() { r.store.events[agentID] = before })
		return nil
	})
}

// ListByAgentID returns the newest events first.
func (r EventRepo) ListByAgentID(ctx context.Context, agentID string, limit int) ([]game.DomainEvent, error) {
	out := make([]game.DomainEvent, 0)
	r.store.view(ctx, func() {
		events := r.store.events[agentID]
		for i := len(events) - 1; i >= 0; i-- {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, events[i])
		}
	})
	return out, nil
}
