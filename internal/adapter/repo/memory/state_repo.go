package memory

import (
	"context"
	"sort"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

type AgentStateRepo struct {
	store *Store
}

func NewAgentStateRepo(store *Store) AgentStateRepo {
	return AgentStateRepo{store: store}
}

func (r AgentStateRepo) GetByAgentID(ctx context.Context, agentID string) (game.Agent, error) {
	var (
		state game.Agent
		ok    bool
	)
	r.store.view(ctx, func() {
		state, ok = r.store.state[agentID]
		if ok {
			state = state.Clone()
		}
	})
	if !ok {
		return game.Agent{}, ports.ErrNotFound
	}
	return state, nil
}

func (r AgentStateRepo) SaveWithVersion(ctx context.Context, state game.Agent, expectedVersion int64) error {
	return r.store.update(ctx, func(onRollback func(func())) error {
		current, ok := r.store.state[state.ID]
		if !ok && expectedVersion != 0 {
			return ports.ErrConflict
		}
		if ok && current.Version != expectedVersion {
			return ports.ErrConflict
		}
		r.store.state[state.ID] = state.Clone()
		onRollback(func() {
			if ok {
				r.store.state[state.ID] = current
			} else {
				delete(r.store.state, state.ID)
			}
		})
		return nil
	})
}

func (r AgentStateRepo) ListAll(ctx context.Context) ([]game.Agent, error) {
	out := make([]game.Agent, 0)
	r.store.view(ctx, func() {
		for _, a := range r.store.state {
			out = append(out, a.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Nearby returns every agent, alive or dead, within radius of center,
// closest first.
func (r AgentStateRepo) Nearby(ctx context.Context, center world.Position, radius float64) ([]game.Agent, error) {
	type hit struct {
		agent game.Agent
		dist  float64
	}
	hits := make([]hit, 0)
	r.store.view(ctx, func() {
		for _, a := range r.store.state {
			if d := world.Distance(center, a.Position); d <= radius {
				hits = append(hits, hit{agent: a.Clone(), dist: d})
			}
		}
	})
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].agent.ID < hits[j].agent.ID
	})
	out := make([]game.Agent, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.agent)
	}
	return out, nil
}
