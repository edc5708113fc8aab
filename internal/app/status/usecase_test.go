package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

func TestUseCase_ReportsCooldownsAndTerrain(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agent := game.NewAgent("agent-1", "A", "", world.Position{X: 3, Y: 4}, 100)
	agent.LastMoveAt = now.Add(-30 * time.Minute)
	agent.Alliances["agent-2"] = time.Time{}

	terrain, err := world.NewTerrainMap(nil, []world.Position{{X: 3, Y: 4}})
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	uc := UseCase{
		StateRepo: statusStateRepo{state: agent},
		Terrain:   terrain,
		Rules:     game.DefaultRules(),
		Now:       func() time.Time { return now },
	}
	out, err := uc.Execute(context.Background(), Request{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if out.Terrain != world.TerrainMountain {
		t.Fatalf("expected mountain, got %s", out.Terrain)
	}
	if out.CanMove || out.Cooldowns.MoveRemainingSeconds != 1800 {
		t.Fatalf("expected 1800s move cooldown, got %+v", out.Cooldowns)
	}
	if len(out.Allies) != 1 || out.Allies[0] != "agent-2" {
		t.Fatalf("unexpected allies %v", out.Allies)
	}
}

func TestUseCase_RejectsBlankID(t *testing.T) {
	if _, err := (UseCase{}).Execute(context.Background(), Request{AgentID: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

type statusStateRepo struct {
	state game.Agent
}

func (r statusStateRepo) GetByAgentID(_ context.Context, id string) (game.Agent, error) {
	if id != r.state.ID {
		return game.Agent{}, ports.ErrNotFound
	}
	return r.state, nil
}

func (r statusStateRepo) SaveWithVersion(context.Context, game.Agent, int64) error { return nil }

func (r statusStateRepo) ListAll(context.Context) ([]game.Agent, error) {
	return []game.Agent{r.state}, nil
}

func (r statusStateRepo) Nearby(context.Context, world.Position, float64) ([]game.Agent, error) {
	return []game.Agent{r.state}, nil
}
