package ports

import (
	"context"
	"time"

	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

// DecisionSource picks an agent's next action. Nothing it returns is trusted;
// every action is validated by the resolvers.
type DecisionSource interface {
	Decide(ctx context.Context, obs game.Observation) (game.Decision, error)
	RespondToAlliance(ctx context.Context, proposal game.AllianceProposal, obs game.Observation) (bool, error)
}

type PostReceipt struct {
	ID       string    `json:"id"`
	PostedAt time.Time `json:"posted_at"`
}

type Poster interface {
	Post(ctx context.Context, text string) (PostReceipt, error)
}

type MoveSettlement struct {
	AgentID string         `json:"agent_id"`
	From    world.Position `json:"from"`
	To      world.Position `json:"to"`
	Terrain world.Terrain  `json:"terrain"`
	Died    bool           `json:"died"`
	At      time.Time      `json:"at"`
}

type AllianceSettlement struct {
	Kind   string    `json:"kind"`
	First  string    `json:"first"`
	Second string    `json:"second"`
	At     time.Time `json:"at"`
}

const (
	AllianceSettlementFormed = "formed"
	AllianceSettlementBroken = "broken"
)

// Settlement makes locally resolved transitions durable on a ledger.
type Settlement interface {
	SubmitMove(ctx context.Context, move MoveSettlement) (string, error)
	SubmitBattle(ctx context.Context, outcome game.BattleOutcome) (string, error)
	SubmitAlliance(ctx context.Context, alliance AllianceSettlement) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EventSink receives emitted events after a tick has been applied.
type EventSink interface {
	Publish(ctx context.Context, agentID string, events []game.DomainEvent) error
}

type PersonaProvider interface {
	Persona(ctx context.Context, character string) ([]byte, error)
}
