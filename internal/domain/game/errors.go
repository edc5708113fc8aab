package game

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCooldownActive   = errors.New("cooldown active")
	ErrOutOfRange       = errors.New("target out of range")
	ErrAlreadyAllied    = errors.New("already allied")
	ErrNotAllied        = errors.New("not allied")
	ErrInvalidDistance  = errors.New("invalid move distance")
	ErrInvalidDirection = errors.New("invalid move direction")
	ErrOutOfBounds      = errors.New("move leaves the map")
	ErrTargetNotFound   = errors.New("target not found")
	ErrTargetDead       = errors.New("target is dead")
	ErrAgentDead        = errors.New("agent is dead")
	ErrSelfTarget       = errors.New("agent cannot target itself")
	ErrNoTokens         = errors.New("both agents need tokens to battle")
	ErrAllianceLimit    = errors.New("alliance limit reached")
	ErrProposalExpired  = errors.New("alliance proposal expired")
	ErrInvalidProposal  = errors.New("alliance proposal does not match agents")
	ErrInvalidRules     = errors.New("invalid rules")
	ErrUnknownAction    = errors.New("unknown action")
)

var validationErrors = []error{
	ErrCooldownActive,
	ErrOutOfRange,
	ErrAlreadyAllied,
	ErrNotAllied,
	ErrInvalidDistance,
	ErrInvalidDirection,
	ErrOutOfBounds,
	ErrTargetNotFound,
	ErrTargetDead,
	ErrAgentDead,
	ErrSelfTarget,
	ErrNoTokens,
	ErrAllianceLimit,
	ErrProposalExpired,
	ErrInvalidProposal,
	ErrUnknownAction,
}

// IsValidation reports whether err is a rejected game action rather than a
// failure of the engine itself.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Reason returns a stable snake_case code for a validation error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrAlreadyAllied):
		return "already_allied"
	case errors.Is(err, ErrNotAllied):
		return "not_allied"
	case errors.Is(err, ErrInvalidDistance):
		return "invalid_distance"
	case errors.Is(err, ErrInvalidDirection):
		return "invalid_direction"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrTargetNotFound):
		return "target_not_found"
	case errors.Is(err, ErrTargetDead):
		return "target_dead"
	case errors.Is(err, ErrAgentDead):
		return "agent_dead"
	case errors.Is(err, ErrSelfTarget):
		return "self_target"
	case errors.Is(err, ErrNoTokens):
		return "no_tokens"
	case errors.Is(err, ErrAllianceLimit):
		return "alliance_limit"
	case errors.Is(err, ErrProposalExpired):
		return "proposal_expired"
	case errors.Is(err, ErrInvalidProposal):
		return "invalid_proposal"
	case errors.Is(err, ErrUnknownAction):
		return "unknown_action"
	default:
		return "error"
	}
}

type CooldownActiveError struct {
	Action    ActionKind
	Target    string
	Until     time.Time
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s cooldown active with %s for %s", e.Action, e.Target, e.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("%s cooldown active for %s", e.Action, e.Remaining.Round(time.Second))
}

func (e *CooldownActiveError) Unwrap() error {
	return ErrCooldownActive
}

type OutOfRangeError struct {
	Target   string
	Distance float64
	Range    float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("target %s out of range: distance %.2f > %.2f", e.Target, e.Distance, e.Range)
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}
