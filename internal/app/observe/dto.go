package observe

import "mearth/internal/domain/game"

type Request struct {
	AgentID string
}

type Response struct {
	Observation game.Observation `json:"observation"`
	Radius      float64          `json:"radius"`
}
