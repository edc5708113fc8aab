package game

import "time"

const (
	EventAgentRegistered  = "agent_registered"
	EventAgentMoved       = "agent_moved"
	EventAgentDied        = "agent_died"
	EventBattleResolved   = "battle_resolved"
	EventAllianceProposed = "alliance_proposed"
	EventAllianceFormed   = "alliance_formed"
	EventAllianceRejected = "alliance_rejected"
	EventAllianceBroken   = "alliance_broken"
	EventAllianceExpired  = "alliance_expired"
	EventAgentIgnored     = "agent_ignored"
	EventAgentDeceived    = "agent_deceived"
	EventActionRejected   = "action_rejected"
	EventSettlementFailed = "settlement_failed"
	EventPostFailed       = "post_failed"
)

type DomainEvent struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

func deathEvent(a Agent, cause DeathCause, now time.Time, extra map[string]any) DomainEvent {
	payload := map[string]any{
		"agent_id": a.ID,
		"cause":    string(cause),
		"x":        a.Position.X,
		"y":        a.Position.Y,
		"tokens":   a.Tokens,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return DomainEvent{Type: EventAgentDied, OccurredAt: now, Payload: payload}
}
