package scheduler

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingDecision State = "awaiting_decision"
	StateValidating       State = "validating"
	StateApplying         State = "applying"
	StateReporting        State = "reporting"
	StateStopped          State = "stopped"
)

// Outcome says how a tick ended.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeRejected       Outcome = "rejected"
	OutcomeDecisionFailed Outcome = "decision_failed"
	OutcomeConflict       Outcome = "conflict"
	OutcomeAgentDead      Outcome = "agent_dead"
)
