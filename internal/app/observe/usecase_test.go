package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUseCase_RejectsEmptyAgentID(t *testing.T) {
	uc := UseCase{}
	if _, err := uc.Execute(context.Background(), Request{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUseCase_PropagatesNotFound(t *testing.T) {
	uc := UseCase{StateRepo: observeStateRepo{}}
	if _, err := uc.Execute(context.Background(), Request{AgentID: "nobody"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUseCase_BuildsObservation(t *testing.T) {
	self := game.NewAgent("a", "A", "scootles", world.Position{X: 5, Y: 5}, 100)
	near := game.NewAgent("b", "B", "", world.Position{X: 6, Y: 5}, 50)
	far := game.NewAgent("c", "C", "", world.Position{X: 5, Y: 9}, 50)
	dead := game.NewAgent("d", "D", "", world.Position{X: 5, Y: 4}, 0)
	dead.Alive = false
	out := game.NewAgent("e", "E", "", world.Position{X: 30, Y: 30}, 50)

	repo := observeStateRepo{agents: []game.Agent{self, near, far, dead, out}}
	events := observeEventRepo{events: []game.DomainEvent{{Type: game.EventAgentMoved, OccurredAt: testNow}}}
	outcomes := observeOutcomeRepo{items: []game.BattleOutcome{
		{BattleID: "mine", Attacker: "a", Defender: "b", EndedAt: testNow.Add(-time.Hour)},
		{BattleID: "other", Attacker: "b", Defender: "c", EndedAt: testNow.Add(-time.Hour)},
	}}
	terrain, err := world.NewTerrainMap([]world.Position{{X: 5, Y: 5}}, nil)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}

	uc := UseCase{
		StateRepo: repo,
		EventRepo: events,
		Outcomes:  outcomes,
		Terrain:   terrain,
		Rules:     game.DefaultRules(),
		Now:       func() time.Time { return testNow },
	}
	resp, err := uc.Execute(context.Background(), Request{AgentID: "a"})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	obs := resp.Observation
	if obs.Terrain != world.TerrainRiver {
		t.Fatalf("expected river under self, got %s", obs.Terrain)
	}
	if len(obs.Nearby) != 2 || obs.Nearby[0].ID != "b" || obs.Nearby[1].ID != "c" {
		t.Fatalf("expected b and c nearby, got %+v", obs.Nearby)
	}
	if !obs.Nearby[0].CanBattle || obs.Nearby[1].CanBattle {
		t.Fatalf("only b is within battle range: %+v", obs.Nearby)
	}
	if len(obs.RecentEvents) != 1 {
		t.Fatalf("expected recent events, got %+v", obs.RecentEvents)
	}
	if len(obs.RecentBattles) != 1 || obs.RecentBattles[0].BattleID != "mine" {
		t.Fatalf("expected only own battles, got %+v", obs.RecentBattles)
	}
	if !obs.CanMove {
		t.Fatalf("fresh agent should be able to move")
	}
}

type observeStateRepo struct {
	agents []game.Agent
}

func (r observeStateRepo) GetByAgentID(_ context.Context, id string) (game.Agent, error) {
	for _, a := range r.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return game.Agent{}, ports.ErrNotFound
}

func (r observeStateRepo) SaveWithVersion(context.Context, game.Agent, int64) error { return nil }

func (r observeStateRepo) ListAll(context.Context) ([]game.Agent, error) { return r.agents, nil }

func (r observeStateRepo) Nearby(_ context.Context, center world.Position, radius float64) ([]game.Agent, error) {
	out := make([]game.Agent, 0)
	for _, a := range r.agents {
		if world.Distance(center, a.Position) <= radius {
			out = append(out, a)
		}
	}
	return out, nil
}

type observeEventRepo struct {
	events []game.DomainEvent
}

func (r observeEventRepo) Append(context.Context, string, []game.DomainEvent) error { return nil }

func (r observeEventRepo) ListByAgentID(context.Context, string, int) ([]game.DomainEvent, error) {
	return r.events, nil
}

type observeOutcomeRepo struct {
	items []game.BattleOutcome
}

func (r observeOutcomeRepo) Append(context.Context, game.BattleOutcome) error { return nil }

func (r observeOutcomeRepo) ListSince(_ context.Context, since time.Time) ([]game.BattleOutcome, error) {
	out := make([]game.BattleOutcome, 0)
	for _, o := range r.items {
		if !o.EndedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}
