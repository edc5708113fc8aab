package action

import (
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

type ResultCode string

const (
	ResultOK       ResultCode = "ok"
	ResultDied     ResultCode = "died"
	ResultProposed ResultCode = "proposed"
	ResultRejected ResultCode = "rejected"
)

type Request struct {
	AgentID string
	Action  game.Action
}

type Response struct {
	AgentID      string                 `json:"agent_id"`
	Kind         game.ActionKind        `json:"kind"`
	ResultCode   ResultCode             `json:"result_code"`
	UpdatedState game.Agent             `json:"updated_state"`
	Target       *game.Agent            `json:"target,omitempty"`
	Events       []game.DomainEvent     `json:"events"`
	Move         *MoveSummary           `json:"move,omitempty"`
	Battle       *game.BattleOutcome    `json:"battle,omitempty"`
	Proposal     *game.AllianceProposal `json:"proposal,omitempty"`
	Penalty      uint64                 `json:"penalty,omitempty"`
}

type MoveSummary struct {
	From          world.Position `json:"from"`
	To            world.Position `json:"to"`
	Terrain       world.Terrain  `json:"terrain"`
	SpeedModifier float64        `json:"speed_modifier"`
	Died          bool           `json:"died"`
}
