package replay

import (
	"context"
	"errors"
	"strings"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var ErrInvalidRequest = errors.New("invalid replay request")

type UseCase struct {
	Events ports.EventRepository
}

func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return Response{}, ErrInvalidRequest
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return Response{}, ErrInvalidRequest
	}
	events, err := u.Events.ListByAgentID(ctx, agentID, req.Limit)
	if err != nil {
		return Response{}, err
	}
	events = filterByTimeWindow(events, req)
	return Response{Events: events, Trail: reconstruct(agentID, events)}, nil
}

func filterByTimeWindow(events []game.DomainEvent, req Request) []game.DomainEvent {
	out := make([]game.DomainEvent, 0, len(events))
	for _, evt := range events {
		if !req.From.IsZero() && evt.OccurredAt.Before(req.From) {
			continue
		}
		if !req.To.IsZero() && evt.OccurredAt.After(req.To) {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// reconstruct walks events oldest first; the repository returns newest first.
func reconstruct(agentID string, events []game.DomainEvent) Trail {
	var trail Trail
	for i := len(events) - 1; i >= 0; i-- {
		evt := events[i]
		switch evt.Type {
		case game.EventAgentMoved:
			if str(evt.Payload["agent_id"]) != agentID {
				continue
			}
			trail.Moves++
			pos := world.Position{X: int(num(evt.Payload["x"])), Y: int(num(evt.Payload["y"]))}
			trail.LastPosition = &pos
		case game.EventBattleResolved:
			trail.Battles++
			if str(evt.Payload["winner"]) == agentID {
				trail.Wins++
			}
		case game.EventAgentDied:
			if str(evt.Payload["agent_id"]) != agentID {
				continue
			}
			trail.Died = true
			trail.DeathCause = str(evt.Payload["cause"])
		}
	}
	return trail
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// num accepts both in-process ints and JSON-decoded float64s.
func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
