package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	memcache "mearth/internal/adapter/cache/memory"
	"mearth/internal/adapter/repo/memory"
	"mearth/internal/app/action"
	"mearth/internal/app/observe"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type scriptedDecider struct {
	mu       sync.Mutex
	decide   func(obs game.Observation) (game.Decision, error)
	respond  func(p game.AllianceProposal, obs game.Observation) (bool, error)
	calls    int
	answered []string
}

func (d *scriptedDecider) Decide(_ context.Context, obs game.Observation) (game.Decision, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.decide(obs)
}

func (d *scriptedDecider) RespondToAlliance(_ context.Context, p game.AllianceProposal, obs game.Observation) (bool, error) {
	d.mu.Lock()
	d.answered = append(d.answered, obs.Self.ID)
	d.mu.Unlock()
	if d.respond == nil {
		return false, nil
	}
	return d.respond(p, obs)
}

func (d *scriptedDecider) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func always(a game.Action) func(game.Observation) (game.Decision, error) {
	return func(game.Observation) (game.Decision, error) {
		return game.Decision{Action: a}, nil
	}
}

type recordingPoster struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (p *recordingPoster) Post(_ context.Context, text string) (ports.PostReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return ports.PostReceipt{}, p.err
	}
	p.texts = append(p.texts, text)
	return ports.PostReceipt{ID: "post-" + strconv.Itoa(len(p.texts)), PostedAt: testNow}, nil
}

type recordingSettlement struct {
	moves     []ports.MoveSettlement
	battles   []game.BattleOutcome
	alliances []ports.AllianceSettlement
	err       error
}

func (s *recordingSettlement) SubmitMove(_ context.Context, m ports.MoveSettlement) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.moves = append(s.moves, m)
	return "tx-move", nil
}

func (s *recordingSettlement) SubmitBattle(_ context.Context, o game.BattleOutcome) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.battles = append(s.battles, o)
	return "tx-battle", nil
}

func (s *recordingSettlement) SubmitAlliance(_ context.Context, a ports.AllianceSettlement) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.alliances = append(s.alliances, a)
	return "tx-alliance", nil
}

type recordingSink struct {
	mu     sync.Mutex
	events map[string][]game.DomainEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, agentID string, events []game.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.events == nil {
		s.events = map[string][]game.DomainEvent{}
	}
	s.events[agentID] = append(s.events[agentID], events...)
	return nil
}

func (s *recordingSink) types(agentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, e := range s.events[agentID] {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	mu          sync.Mutex
	ticks       int
	retries     int
	postFails   int
	settleFails int
	sinkFails   int
}

func (m *countingMetrics) RecordTick()              { m.mu.Lock(); m.ticks++; m.mu.Unlock() }
func (m *countingMetrics) RecordDecisionRetry()     { m.mu.Lock(); m.retries++; m.mu.Unlock() }
func (m *countingMetrics) RecordPostFailure()       { m.mu.Lock(); m.postFails++; m.mu.Unlock() }
func (m *countingMetrics) RecordSettlementFailure() { m.mu.Lock(); m.settleFails++; m.mu.Unlock() }
func (m *countingMetrics) RecordSinkFailure()       { m.mu.Lock(); m.sinkFails++; m.mu.Unlock() }

var errUpstream = errors.New("upstream unavailable")

// fixedRoller returns the same draw forever.
type fixedRoller float64

func (r fixedRoller) Float64() float64 { return float64(r) }

type testEnv struct {
	store      *memory.Store
	states     memory.AgentStateRepo
	events     memory.EventRepo
	cache      *memcache.Cache
	decider    *scriptedDecider
	poster     *recordingPoster
	settlement *recordingSettlement
	sink       *recordingSink
	metrics    *countingMetrics
	deps       Deps
}

func newTestEnv(t *testing.T, agents ...game.Agent) *testEnv {
	t.Helper()
	terrain, err := world.NewTerrainMap(
		[]world.Position{{X: 5, Y: 6}},
		[]world.Position{{X: 7, Y: 5}},
		world.WithBounds(20, 20),
	)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	store := memory.NewStore()
	for _, a := range agents {
		store.SeedState(a)
	}
	env := &testEnv{
		store:      store,
		states:     memory.NewAgentStateRepo(store),
		events:     memory.NewEventRepo(store),
		cache:      memcache.New(),
		decider:    &scriptedDecider{decide: always(game.DeceiveAction{Claim: "all is well"})},
		poster:     &recordingPoster{},
		settlement: &recordingSettlement{},
		sink:       &recordingSink{},
		metrics:    &countingMetrics{},
	}
	rules := game.DefaultRules()
	now := func() time.Time { return testNow }
	var ids atomic.Int64
	env.deps = Deps{
		Observe: observe.UseCase{
			StateRepo: env.states,
			EventRepo: env.events,
			Outcomes:  memory.NewOutcomeRepo(store, rules.OutcomeRetention),
			Terrain:   terrain,
			Rules:     rules,
			Now:       now,
		},
		Actions: action.UseCase{
			TxManager: memory.NewTxManager(store),
			StateRepo: env.states,
			EventRepo: env.events,
			Outcomes:  memory.NewOutcomeRepo(store, rules.OutcomeRetention),
			Terrain:   terrain,
			Rules:     rules,
			Dice:      game.NewRandomRoller(7),
			Now:       now,
			NewID: func() string {
				return "id-" + strconv.FormatInt(ids.Add(1), 10)
			},
		},
		Decider:         env.decider,
		Poster:          env.poster,
		Settlement:      env.settlement,
		Cache:           env.cache,
		Sinks:           []ports.EventSink{env.sink},
		Metrics:         env.metrics,
		Retry:           RetryPolicy{Initial: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3},
		IntervalMin:     time.Hour,
		IntervalMax:     time.Hour,
		DecisionTimeout: time.Second,
		Now:             now,
		Dice:            game.NewRandomRoller(1),
	}
	return env
}

func (e *testEnv) agent(t *testing.T, id string) game.Agent {
	t.Helper()
	a, err := e.states.GetByAgentID(context.Background(), id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return a
}

func (e *testEnv) loggedTypes(t *testing.T, id string) []string {
	t.Helper()
	events, err := e.events.ListByAgentID(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("events %s: %v", id, err)
	}
	out := []string{}
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func testAgent(id string, x, y int, tokens uint64) game.Agent {
	a := game.NewAgent(id, id, "", world.Position{X: x, Y: y}, tokens)
	a.Version = 1
	return a
}
