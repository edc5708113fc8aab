package status

import (
	"context"
	"errors"
	"strings"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var ErrInvalidRequest = errors.New("invalid status request")

type UseCase struct {
	StateRepo ports.AgentStateRepository
	Terrain   *world.TerrainMap
	Rules     game.Rules
	Now       func() time.Time
}

func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return Response{}, ErrInvalidRequest
	}
	state, err := u.StateRepo.GetByAgentID(ctx, strings.TrimSpace(req.AgentID))
	if err != nil {
		return Response{}, err
	}
	now := time.Now()
	if u.Now != nil {
		now = u.Now()
	}
	terrain := u.Terrain
	if terrain == nil {
		terrain = world.DefaultMap()
	}
	return Response{
		State:     state,
		Terrain:   terrain.TerrainAt(state.Position),
		Cooldowns: game.Cooldowns(state, now, u.Rules),
		CanMove:   state.Alive && game.CanMove(state, now, u.Rules),
		Allies:    state.AllyIDs(),
	}, nil
}

// List returns every agent, dead ones included.
func (u UseCase) List(ctx context.Context) ([]game.Agent, error) {
	return u.StateRepo.ListAll(ctx)
}
