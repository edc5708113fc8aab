package replay

import (
	"time"

	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

type Request struct {
	AgentID string
	Limit   int
	From    time.Time
	To      time.Time
}

// Trail is what the event log alone says about an agent.
type Trail struct {
	LastPosition *world.Position `json:"last_position,omitempty"`
	Moves        int             `json:"moves"`
	Battles      int             `json:"battles"`
	Wins         int             `json:"wins"`
	Died         bool            `json:"died"`
	DeathCause   string          `json:"death_cause,omitempty"`
}

type Response struct {
	Events []game.DomainEvent `json:"events"`
	Trail  Trail              `json:"trail"`
}
