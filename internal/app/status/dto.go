package status

import (
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

type Request struct {
	AgentID string
}

type Response struct {
	State     game.Agent        `json:"state"`
	Terrain   world.Terrain     `json:"terrain"`
	Cooldowns game.CooldownView `json:"cooldowns"`
	CanMove   bool              `json:"can_move"`
	Allies    []string          `json:"allies"`
}
