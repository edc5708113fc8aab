package ports

import (
	"context"
	"time"

	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

type AgentStateRepository interface {
	GetByAgentID(ctx context.Context, agentID string) (game.Agent, error)
	SaveWithVersion(ctx context.Context, state game.Agent, expectedVersion int64) error
	ListAll(ctx context.Context) ([]game.Agent, error)
	Nearby(ctx context.Context, center world.Position, radius float64) ([]game.Agent, error)
}

// AgentLocker is implemented by stores whose transactions take row locks.
// LockAgents locks the listed agents in ascending ID order, so two
// transactions over the same pair never wait on each other.
type AgentLocker interface {
	LockAgents(ctx context.Context, agentIDs ...string) error
}

type EventRepository interface {
	Append(ctx context.Context, agentID string, events []game.DomainEvent) error
	ListByAgentID(ctx context.Context, agentID string, limit int) ([]game.DomainEvent, error)
}

// BattleOutcomeRepository keeps resolved battles for a rolling window.
type BattleOutcomeRepository interface {
	Append(ctx context.Context, outcome game.BattleOutcome) error
	ListSince(ctx context.Context, since time.Time) ([]game.BattleOutcome, error)
}
