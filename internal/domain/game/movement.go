package game

import (
	"time"

	"mearth/internal/domain/world"
)

type MoveResult struct {
	Agent         Agent          `json:"agent"`
	From          world.Position `json:"from"`
	To            world.Position `json:"to"`
	Terrain       world.Terrain  `json:"terrain"`
	SpeedModifier float64        `json:"speed_modifier"`
	Died          bool           `json:"died"`
	Events        []DomainEvent  `json:"events"`
}

// ResolveMove validates a one-cell step and applies it to a copy of agent.
// On a non-plain cell the agent may die instead of moving; its position is
// then left unchanged.
func ResolveMove(agent Agent, action MoveAction, now time.Time, terrain *world.TerrainMap, rules Rules, dice Roller) (MoveResult, error) {
	if !agent.Alive {
		return MoveResult{}, ErrAgentDead
	}
	if action.Steps != 0 && action.Steps != 1 {
		return MoveResult{}, ErrInvalidDistance
	}
	dx, dy, ok := action.Direction.Delta()
	if !ok {
		return MoveResult{}, ErrInvalidDirection
	}
	if remaining := MoveRemaining(agent, now, rules); remaining > 0 {
		return MoveResult{}, &CooldownActiveError{
			Action:    ActionMove,
			Until:     agent.LastMoveAt.Add(rules.MoveCooldown),
			Remaining: remaining,
		}
	}
	from := agent.Position
	to := from.Add(dx, dy)
	if !terrain.InBounds(to) {
		return MoveResult{}, ErrOutOfBounds
	}

	kind := terrain.TerrainAt(to)
	out := MoveResult{
		Agent:         agent.Clone(),
		From:          from,
		To:            to,
		Terrain:       kind,
		SpeedModifier: rules.SpeedModifier(kind),
	}

	if kind != world.TerrainPlain && dice.Float64() < rules.TerrainDeathChance {
		out.Agent.kill(DeathCauseTerrain)
		out.Agent.UpdatedAt = now
		out.Died = true
		out.Events = []DomainEvent{deathEvent(out.Agent, DeathCauseTerrain, now, map[string]any{
			"terrain":   string(kind),
			"attempt_x": to.X,
			"attempt_y": to.Y,
		})}
		return out, nil
	}

	out.Agent.Position = to
	out.Agent.LastMoveAt = now
	out.Agent.UpdatedAt = now
	out.Events = []DomainEvent{{
		Type:       EventAgentMoved,
		OccurredAt: now,
		Payload: map[string]any{
			"agent_id":       agent.ID,
			"direction":      string(action.Direction),
			"from_x":         from.X,
			"from_y":         from.Y,
			"x":              to.X,
			"y":              to.Y,
			"terrain":        string(kind),
			"speed_modifier": out.SpeedModifier,
		},
	}}
	return out, nil
}
