package action

import (
	"context"
	"errors"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
)

// AcceptAlliance forms the proposed alliance. Both agents are re-read and
// every rule is checked again, since either may have moved or died since the
// proposal was made.
func (u UseCase) AcceptAlliance(ctx context.Context, proposal game.AllianceProposal) (Response, error) {
	if proposal.Proposer == "" || proposal.Proposed == "" {
		return Response{}, ErrInvalidRequest
	}
	var out Response
	err := u.inTxWithRetry(ctx, func(txCtx context.Context) error {
		now := u.now()
		if err := u.lockAgents(txCtx, proposal.Proposer, proposal.Proposed); err != nil {
			return err
		}
		proposer, proposed, err := u.loadPair(txCtx, proposal.Proposer, proposal.Proposed)
		if err != nil {
			return err
		}
		res, err := game.AcceptAlliance(proposer, proposed, proposal, now, u.Rules)
		if err != nil {
			return err
		}
		plan := ActionWritePlan{
			StatesToSave: []game.Agent{res.First, res.Second},
			Events:       res.Events,
			EventOwners:  []string{res.First.ID, res.Second.ID},
			ResultCode:   ResultOK,
		}
		if err := persistPlan(txCtx, u, proposal.Proposer, plan); err != nil {
			return err
		}
		first, second := res.First, res.Second
		first.Version++
		second.Version++
		out = Response{
			AgentID:      first.ID,
			Kind:         game.ActionAlliance,
			ResultCode:   ResultOK,
			UpdatedState: first,
			Target:       &second,
			Events:       res.Events,
			Proposal:     &proposal,
		}
		return nil
	})
	if err != nil {
		u.recordError(err)
		return Response{}, err
	}
	if err := u.forgetProposal(ctx, proposal.ID); err != nil {
		return Response{}, err
	}
	if u.Metrics != nil {
		u.Metrics.RecordSuccess(game.ActionAlliance)
	}
	return out, nil
}

// RejectAlliance records the refusal on both agents' logs.
func (u UseCase) RejectAlliance(ctx context.Context, proposal game.AllianceProposal, reason string) (Response, error) {
	if proposal.Proposer == "" || proposal.Proposed == "" {
		return Response{}, ErrInvalidRequest
	}
	now := u.now()
	events := []game.DomainEvent{{
		Type:       game.EventAllianceRejected,
		OccurredAt: now,
		Payload: map[string]any{
			"proposal_id": proposal.ID,
			"proposer":    proposal.Proposer,
			"proposed":    proposal.Proposed,
			"reason":      reason,
		},
	}}
	var proposer game.Agent
	err := u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		proposer, err = u.StateRepo.GetByAgentID(txCtx, proposal.Proposer)
		if err != nil {
			return err
		}
		return persistPlan(txCtx, u, proposal.Proposer, ActionWritePlan{
			Events:      events,
			EventOwners: []string{proposal.Proposer, proposal.Proposed},
		})
	})
	if err != nil {
		u.recordError(err)
		return Response{}, err
	}
	if err := u.forgetProposal(ctx, proposal.ID); err != nil {
		return Response{}, err
	}
	return Response{
		AgentID:      proposal.Proposer,
		Kind:         game.ActionAlliance,
		ResultCode:   ResultRejected,
		UpdatedState: proposer,
		Events:       events,
		Proposal:     &proposal,
	}, nil
}

// ExpireAlliances drops every alliance of agentID whose term has run out.
// A partner that no longer exists only loses the local half.
func (u UseCase) ExpireAlliances(ctx context.Context, agentID string) ([]game.DomainEvent, error) {
	agentID = normalizeAgentID(agentID)
	if agentID == "" {
		return nil, ErrInvalidRequest
	}
	// An unlocked read finds the partners, so every row is then locked in ID
	// order before the locked re-read.
	peek, err := u.StateRepo.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	partners := game.ExpiredAllies(peek, u.now())
	if len(partners) == 0 {
		return nil, nil
	}
	var out []game.DomainEvent
	err = u.inTxWithRetry(ctx, func(txCtx context.Context) error {
		out = nil
		now := u.now()
		if err := u.lockAgents(txCtx, append([]string{agentID}, partners...)...); err != nil {
			return err
		}
		self, err := u.StateRepo.GetByAgentID(txCtx, agentID)
		if err != nil {
			return err
		}
		for _, allyID := range game.ExpiredAllies(self, now) {
			ally, err := u.StateRepo.GetByAgentID(txCtx, allyID)
			if errors.Is(err, ports.ErrNotFound) {
				ally = game.Agent{ID: allyID}
			} else if err != nil {
				return err
			}
			res, ok := game.ExpireAlliance(self, ally, now)
			if !ok {
				continue
			}
			states := []game.Agent{res.First}
			if ally.Version > 0 {
				states = append(states, res.Second)
			}
			plan := ActionWritePlan{StatesToSave: states, Events: res.Events, EventOwners: []string{self.ID, allyID}}
			if err := persistPlan(txCtx, u, self.ID, plan); err != nil {
				return err
			}
			self = res.First
			self.Version++
			out = append(out, res.Events...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u UseCase) loadPair(ctx context.Context, firstID, secondID string) (game.Agent, game.Agent, error) {
	first, err := u.StateRepo.GetByAgentID(ctx, firstID)
	if err != nil {
		return game.Agent{}, game.Agent{}, err
	}
	second, err := u.StateRepo.GetByAgentID(ctx, secondID)
	if errors.Is(err, ports.ErrNotFound) {
		return game.Agent{}, game.Agent{}, game.ErrTargetNotFound
	}
	if err != nil {
		return game.Agent{}, game.Agent{}, err
	}
	return first, second, nil
}
