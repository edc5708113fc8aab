package observe

import (
	"context"
	"errors"
	"strings"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var ErrInvalidRequest = errors.New("invalid observe request")

const (
	DefaultVisibilityRadius = 5.0
	DefaultRecentEvents     = 20
)

// UseCase builds the context a decision source sees. It only reads; nothing
// here holds a lock once it returns.
type UseCase struct {
	StateRepo        ports.AgentStateRepository
	EventRepo        ports.EventRepository
	Outcomes         ports.BattleOutcomeRepository
	Terrain          *world.TerrainMap
	Rules            game.Rules
	VisibilityRadius float64
	RecentEvents     int
	Now              func() time.Time
}

func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return Response{}, ErrInvalidRequest
	}
	self, err := u.StateRepo.GetByAgentID(ctx, agentID)
	if err != nil {
		return Response{}, err
	}
	now := time.Now()
	if u.Now != nil {
		now = u.Now()
	}
	radius := u.VisibilityRadius
	if radius <= 0 {
		radius = DefaultVisibilityRadius
	}
	terrain := u.Terrain
	if terrain == nil {
		terrain = world.DefaultMap()
	}

	obs := game.Observation{
		Self:          self,
		Terrain:       terrain.TerrainAt(self.Position),
		Nearby:        []game.NearbyAgent{},
		RecentEvents:  []game.DomainEvent{},
		RecentBattles: []game.BattleOutcome{},
		Cooldowns:     game.Cooldowns(self, now, u.Rules),
		CanMove:       self.Alive && game.CanMove(self, now, u.Rules),
		ObservedAt:    now,
	}

	others, err := u.StateRepo.Nearby(ctx, self.Position, radius)
	if err != nil {
		return Response{}, err
	}
	for _, other := range others {
		if other.ID == self.ID || !other.Alive {
			continue
		}
		obs.Nearby = append(obs.Nearby, game.Describe(self, other, now, terrain, u.Rules))
	}

	if u.EventRepo != nil {
		limit := u.RecentEvents
		if limit <= 0 {
			limit = DefaultRecentEvents
		}
		events, err := u.EventRepo.ListByAgentID(ctx, self.ID, limit)
		if err != nil {
			return Response{}, err
		}
		obs.RecentEvents = append(obs.RecentEvents, events...)
	}

	if u.Outcomes != nil {
		window := u.Rules.OutcomeRetention
		if window <= 0 {
			window = game.DefaultOutcomeRetention
		}
		outcomes, err := u.Outcomes.ListSince(ctx, now.Add(-window))
		if err != nil {
			return Response{}, err
		}
		for _, o := range outcomes {
			if o.Attacker == self.ID || o.Defender == self.ID {
				obs.RecentBattles = append(obs.RecentBattles, o)
			}
		}
	}
	return Response{Observation: obs, Radius: radius}, nil
}
