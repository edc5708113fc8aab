package game

import (
	"time"

	"mearth/internal/domain/world"
)

// PairResult carries both agents after a two-agent mutation.
type PairResult struct {
	First   Agent         `json:"first"`
	Second  Agent         `json:"second"`
	Penalty uint64        `json:"penalty,omitempty"`
	Events  []DomainEvent `json:"events"`
}

func validatePair(actor, target Agent, maxDistance float64) error {
	if !actor.Alive {
		return ErrAgentDead
	}
	if !target.Alive {
		return ErrTargetDead
	}
	if actor.ID == target.ID {
		return ErrSelfTarget
	}
	if maxDistance > 0 {
		if d := world.Distance(actor.Position, target.Position); d > maxDistance {
			return &OutOfRangeError{Target: target.ID, Distance: d, Range: maxDistance}
		}
	}
	return nil
}

func validateAlliance(a, b Agent, now time.Time, rules Rules) error {
	if err := validatePair(a, b, rules.AllianceRange); err != nil {
		return err
	}
	if a.AlliedWith(b.ID) || b.AlliedWith(a.ID) {
		return ErrAlreadyAllied
	}
	if !CanAlliance(a, b, now) {
		until := AllianceCooldownUntil(a, b)
		return &CooldownActiveError{Action: ActionAlliance, Target: b.ID, Until: until, Remaining: until.Sub(now)}
	}
	if rules.MaxAllies > 0 && (len(a.Alliances) >= rules.MaxAllies || len(b.Alliances) >= rules.MaxAllies) {
		return ErrAllianceLimit
	}
	return nil
}

// ProposeAlliance does not change either agent. The proposal stays valid
// until ExpiresAt; acceptance re-checks every rule.
func ProposeAlliance(proposalID string, proposer, target Agent, now time.Time, rules Rules) (AllianceProposal, error) {
	if err := validateAlliance(proposer, target, now, rules); err != nil {
		return AllianceProposal{}, err
	}
	return AllianceProposal{
		ID:        proposalID,
		Proposer:  proposer.ID,
		Proposed:  target.ID,
		Timestamp: now,
		ExpiresAt: now.Add(rules.AllianceCooldown),
	}, nil
}

func AcceptAlliance(proposer, proposed Agent, proposal AllianceProposal, now time.Time, rules Rules) (PairResult, error) {
	if proposal.Proposer != proposer.ID || proposal.Proposed != proposed.ID {
		return PairResult{}, ErrInvalidProposal
	}
	if proposal.Expired(now) {
		return PairResult{}, ErrProposalExpired
	}
	if err := validateAlliance(proposer, proposed, now, rules); err != nil {
		return PairResult{}, err
	}
	a := proposer.Clone()
	b := proposed.Clone()
	var expires time.Time
	if rules.AllianceDuration > 0 {
		expires = now.Add(rules.AllianceDuration)
	}
	a.Alliances[b.ID] = expires
	b.Alliances[a.ID] = expires
	a.LastAllianceAt = now
	b.LastAllianceAt = now
	a.UpdatedAt = now
	b.UpdatedAt = now

	payload := map[string]any{
		"proposal_id": proposal.ID,
		"proposer":    a.ID,
		"proposed":    b.ID,
	}
	if !expires.IsZero() {
		payload["expires_at"] = expires
	}
	return PairResult{
		First:  a,
		Second: b,
		Events: []DomainEvent{{Type: EventAllianceFormed, OccurredAt: now, Payload: payload}},
	}, nil
}

// BreakAlliance removes the pair in both directions, charges the breaker the
// configured penalty and starts a fresh alliance cooldown.
func BreakAlliance(breaker, other Agent, now time.Time, rules Rules) (PairResult, error) {
	if !breaker.Alive {
		return PairResult{}, ErrAgentDead
	}
	if breaker.ID == other.ID {
		return PairResult{}, ErrSelfTarget
	}
	if !breaker.AlliedWith(other.ID) && !other.AlliedWith(breaker.ID) {
		return PairResult{}, ErrNotAllied
	}
	a := breaker.Clone()
	b := other.Clone()
	delete(a.Alliances, b.ID)
	delete(b.Alliances, a.ID)
	penalty := a.burn(rules.AllianceBreakPenalty)
	stampAlliance(&a, &b, now, rules)
	a.UpdatedAt = now
	b.UpdatedAt = now
	return PairResult{
		First:   a,
		Second:  b,
		Penalty: penalty,
		Events: []DomainEvent{{
			Type:       EventAllianceBroken,
			OccurredAt: now,
			Payload: map[string]any{
				"breaker":        a.ID,
				"other":          b.ID,
				"penalty_tokens": penalty,
				"cooldown_until": AllianceCooldownUntil(a, b),
			},
		}},
	}, nil
}

// ExpiredAllies lists allies of a whose alliance has run out at now.
func ExpiredAllies(a Agent, now time.Time) []string {
	out := make([]string, 0)
	for _, id := range a.AllyIDs() {
		expires := a.Alliances[id]
		if !expires.IsZero() && !now.Before(expires) {
			out = append(out, id)
		}
	}
	return out
}

// ExpireAlliance drops the pair from both sides. ok is false if the alliance
// is missing or still running.
func ExpireAlliance(a, b Agent, now time.Time) (PairResult, bool) {
	expires, allied := a.Alliances[b.ID]
	if !allied {
		expires, allied = b.Alliances[a.ID]
	}
	if !allied || expires.IsZero() || now.Before(expires) {
		return PairResult{}, false
	}
	x := a.Clone()
	y := b.Clone()
	delete(x.Alliances, y.ID)
	delete(y.Alliances, x.ID)
	x.UpdatedAt = now
	y.UpdatedAt = now
	return PairResult{
		First:  x,
		Second: y,
		Events: []DomainEvent{{
			Type:       EventAllianceExpired,
			OccurredAt: now,
			Payload:    map[string]any{"agents": []string{x.ID, y.ID}, "expired_at": expires},
		}},
	}, true
}

// ResolveIgnore puts the pair on battle cooldown so neither can attack the
// other for a while.
func ResolveIgnore(actor, target Agent, now time.Time, rules Rules) (PairResult, error) {
	if err := validatePair(actor, target, 0); err != nil {
		return PairResult{}, err
	}
	a := actor.Clone()
	b := target.Clone()
	stampBattle(&a, &b, now, rules)
	a.UpdatedAt = now
	b.UpdatedAt = now
	return PairResult{
		First:  a,
		Second: b,
		Events: []DomainEvent{{
			Type:       EventAgentIgnored,
			OccurredAt: now,
			Payload: map[string]any{
				"agent_id":       a.ID,
				"target":         b.ID,
				"cooldown_until": BattleCooldownUntil(a, b),
			},
		}},
	}, nil
}
