package action

import (
	"context"

	"mearth/internal/domain/game"
)

type allianceActionHandler struct{}

// A proposal changes no state. The caller asks the target and settles it
// through AcceptAlliance or RejectAlliance.
func (allianceActionHandler) ExecuteActionAndPlan(_ context.Context, uc UseCase, ac *ActionContext) error {
	if _, ok := ac.In.Req.Action.(game.AllianceAction); !ok {
		return ErrInvalidRequest
	}
	proposal, err := game.ProposeAlliance(uc.newID(), ac.View.Actor, *ac.View.Target, ac.In.NowAt, uc.Rules)
	if err != nil {
		return err
	}
	ac.Tmp.Proposal = &proposal
	ac.Plan.Events = []game.DomainEvent{{
		Type:       game.EventAllianceProposed,
		OccurredAt: ac.In.NowAt,
		Payload: map[string]any{
			"proposal_id": proposal.ID,
			"proposer":    proposal.Proposer,
			"proposed":    proposal.Proposed,
			"expires_at":  proposal.ExpiresAt,
		},
	}}
	ac.Plan.EventOwners = []string{proposal.Proposer, proposal.Proposed}
	ac.Plan.ResultCode = ResultProposed
	return nil
}

type breakAllianceActionHandler struct{}

func (breakAllianceActionHandler) ExecuteActionAndPlan(_ context.Context, uc UseCase, ac *ActionContext) error {
	if _, ok := ac.In.Req.Action.(game.BreakAllianceAction); !ok {
		return ErrInvalidRequest
	}
	res, err := game.BreakAlliance(ac.View.Actor, *ac.View.Target, ac.In.NowAt, uc.Rules)
	if err != nil {
		return err
	}
	ac.Tmp.Penalty = res.Penalty
	ac.Plan.StatesToSave = []game.Agent{res.First, res.Second}
	ac.Plan.Events = res.Events
	ac.Plan.EventOwners = []string{res.First.ID, res.Second.ID}
	ac.Plan.ResultCode = ResultOK
	return nil
}
