package action

import (
	"context"
	"strconv"
	"strings"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubTxManager struct{}

func (stubTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubStateRepo struct {
	byAgent   map[string]game.Agent
	conflicts int
}

func newStubStateRepo(agents ...game.Agent) *stubStateRepo {
	r := &stubStateRepo{byAgent: map[string]game.Agent{}}
	for _, a := range agents {
		r.byAgent[a.ID] = a
	}
	return r
}

func (r *stubStateRepo) GetByAgentID(_ context.Context, agentID string) (game.Agent, error) {
	state, ok := r.byAgent[agentID]
	if !ok {
		return game.Agent{}, ports.ErrNotFound
	}
	return state.Clone(), nil
}

func (r *stubStateRepo) SaveWithVersion(_ context.Context, state game.Agent, expectedVersion int64) error {
	if r.conflicts > 0 {
		r.conflicts--
		return ports.ErrConflict
	}
	current, ok := r.byAgent[state.ID]
	if !ok {
		if expectedVersion != 0 {
			return ports.ErrConflict
		}
		r.byAgent[state.ID] = state
		return nil
	}
	if current.Version != expectedVersion {
		return ports.ErrConflict
	}
	r.byAgent[state.ID] = state
	return nil
}

func (r *stubStateRepo) ListAll(context.Context) ([]game.Agent, error) {
	out := make([]game.Agent, 0, len(r.byAgent))
	for _, a := range r.byAgent {
		out = append(out, a)
	}
	return out, nil
}

func (r *stubStateRepo) Nearby(_ context.Context, center world.Position, radius float64) ([]game.Agent, error) {
	out := make([]game.Agent, 0)
	for _, a := range r.byAgent {
		if world.Distance(center, a.Position) <= radius {
			out = append(out, a)
		}
	}
	return out, nil
}

type stubEventRepo struct {
	byAgent map[string][]game.DomainEvent
}

func (r *stubEventRepo) Append(_ context.Context, agentID string, events []game.DomainEvent) error {
	if r.byAgent == nil {
		r.byAgent = map[string][]game.DomainEvent{}
	}
	r.byAgent[agentID] = append(r.byAgent[agentID], events...)
	return nil
}

func (r *stubEventRepo) ListByAgentID(_ context.Context, agentID string, limit int) ([]game.DomainEvent, error) {
	events := r.byAgent[agentID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

type stubOutcomeRepo struct {
	items []game.BattleOutcome
}

func (r *stubOutcomeRepo) Append(_ context.Context, outcome game.BattleOutcome) error {
	r.items = append(r.items, outcome)
	return nil
}

func (r *stubOutcomeRepo) ListSince(_ context.Context, since time.Time) ([]game.BattleOutcome, error) {
	out := make([]game.BattleOutcome, 0)
	for _, o := range r.items {
		if !o.EndedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

type stubMetrics struct {
	success   map[game.ActionKind]int
	rejected  map[string]int
	conflicts int
	failures  int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{success: map[game.ActionKind]int{}, rejected: map[string]int{}}
}

func (m *stubMetrics) RecordSuccess(kind game.ActionKind) { m.success[kind]++ }
func (m *stubMetrics) RecordRejected(reason string)       { m.rejected[reason]++ }
func (m *stubMetrics) RecordConflict()                    { m.conflicts++ }
func (m *stubMetrics) RecordFailure()                     { m.failures++ }

func testAgent(id string, x, y int, tokens uint64) game.Agent {
	a := game.NewAgent(id, id, "", world.Position{X: x, Y: y}, tokens)
	a.Version = 1
	return a
}

type testEnv struct {
	uc      UseCase
	states  *stubStateRepo
	events  *stubEventRepo
	results *stubOutcomeRepo
	metrics *stubMetrics
}

func newTestEnv(dice game.Roller, agents ...game.Agent) testEnv {
	terrain, err := world.NewTerrainMap(
		[]world.Position{{X: 5, Y: 6}},
		[]world.Position{{X: 7, Y: 5}},
		world.WithBounds(20, 20),
	)
	if err != nil {
		panic(err)
	}
	env := testEnv{
		states:  newStubStateRepo(agents...),
		events:  &stubEventRepo{},
		results: &stubOutcomeRepo{},
		metrics: newStubMetrics(),
	}
	ids := 0
	env.uc = UseCase{
		TxManager: stubTxManager{},
		StateRepo: env.states,
		EventRepo: env.events,
		Outcomes:  env.results,
		Terrain:   terrain,
		Rules:     game.DefaultRules(),
		Dice:      dice,
		Metrics:   env.metrics,
		Now:       func() time.Time { return testNow },
		NewID: func() string {
			ids++
			return "id-" + strconv.Itoa(ids)
		},
	}
	return env
}

// lockingStateRepo records lock requests and the reads that follow them.
type lockingStateRepo struct {
	*stubStateRepo
	trail []string
}

func (r *lockingStateRepo) LockAgents(_ context.Context, agentIDs ...string) error {
	r.trail = append(r.trail, "lock:"+strings.Join(agentIDs, ","))
	return nil
}

func (r *lockingStateRepo) GetByAgentID(ctx context.Context, agentID string) (game.Agent, error) {
	r.trail = append(r.trail, "get:"+agentID)
	return r.stubStateRepo.GetByAgentID(ctx, agentID)
}
