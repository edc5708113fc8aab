package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
)

func (u UseCase) ValidateRequest(req Request) (ActionContext, error) {
	req.AgentID = normalizeAgentID(req.AgentID)
	if req.AgentID == "" || req.Action == nil {
		return ActionContext{}, ErrInvalidRequest
	}
	return ActionContext{In: ActionInput{Req: req, AgentID: req.AgentID}}, nil
}

func (u UseCase) LoadActor(ctx context.Context, ac *ActionContext) error {
	actor, err := u.StateRepo.GetByAgentID(ctx, ac.In.AgentID)
	if err != nil {
		return err
	}
	if !actor.Alive {
		return game.ErrAgentDead
	}
	ac.View.Actor = actor
	return nil
}

func (u UseCase) ResolveSpec(ac *ActionContext) error {
	spec, ok := actionRegistry()[ac.In.Req.Action.Kind()]
	if !ok || spec.Handler == nil {
		return fmt.Errorf("%w: %s", game.ErrUnknownAction, ac.In.Req.Action.Kind())
	}
	ac.View.Spec = spec
	return nil
}

// LoadTarget resolves the second agent of a pairwise action. A missing
// target is a rejected action, not a storage failure.
func (u UseCase) LoadTarget(ctx context.Context, ac *ActionContext) error {
	if !ac.View.Spec.NeedsTarget {
		return nil
	}
	targetID, _ := game.TargetOf(ac.In.Req.Action)
	targetID = normalizeAgentID(targetID)
	if targetID == "" {
		return game.ErrTargetNotFound
	}
	if targetID == ac.View.Actor.ID {
		return game.ErrSelfTarget
	}
	target, err := u.StateRepo.GetByAgentID(ctx, targetID)
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("%w: %s", game.ErrTargetNotFound, targetID)
	}
	if err != nil {
		return err
	}
	ac.View.Target = &target
	return nil
}

func (u UseCase) Persist(ctx context.Context, ac *ActionContext) error {
	return persistPlan(ctx, u, ac.In.AgentID, ac.Plan)
}

// persistPlan bumps each agent's version by one against the version it was
// read at, then appends events to every owner's log.
func persistPlan(ctx context.Context, u UseCase, actorID string, plan ActionWritePlan) error {
	for _, state := range plan.StatesToSave {
		expected := state.Version
		state.Version = expected + 1
		if err := u.StateRepo.SaveWithVersion(ctx, state, expected); err != nil {
			return err
		}
	}
	if len(plan.Events) > 0 && u.EventRepo != nil {
		owners := plan.EventOwners
		if len(owners) == 0 {
			owners = []string{actorID}
		}
		seen := make(map[string]struct{}, len(owners))
		for _, owner := range owners {
			if _, dup := seen[owner]; dup || owner == "" {
				continue
			}
			seen[owner] = struct{}{}
			if err := u.EventRepo.Append(ctx, owner, plan.Events); err != nil {
				return err
			}
		}
	}
	if plan.Outcome != nil && u.Outcomes != nil {
		if err := u.Outcomes.Append(ctx, *plan.Outcome); err != nil {
			return err
		}
	}
	return nil
}

func (u UseCase) BuildResponse(ac *ActionContext) Response {
	out := Response{
		AgentID:      ac.In.AgentID,
		Kind:         ac.View.Spec.Kind,
		ResultCode:   ac.Plan.ResultCode,
		UpdatedState: ac.View.Actor,
		Events:       ac.Plan.Events,
		Proposal:     ac.Tmp.Proposal,
		Penalty:      ac.Tmp.Penalty,
		Battle:       ac.Plan.Outcome,
	}
	if out.ResultCode == "" {
		out.ResultCode = ResultOK
	}
	for _, state := range ac.Plan.StatesToSave {
		state.Version++
		switch {
		case state.ID == ac.In.AgentID:
			out.UpdatedState = state
		case ac.View.Target != nil && state.ID == ac.View.Target.ID:
			target := state
			out.Target = &target
		}
	}
	if out.Target == nil && ac.View.Target != nil {
		target := *ac.View.Target
		out.Target = &target
	}
	if m := ac.Tmp.Move; m != nil {
		out.Move = &MoveSummary{
			From:          m.From,
			To:            m.To,
			Terrain:       m.Terrain,
			SpeedModifier: m.SpeedModifier,
			Died:          m.Died,
		}
	}
	if out.Events == nil {
		out.Events = []game.DomainEvent{}
	}
	return out
}

func normalizeAgentID(in string) string {
	return strings.TrimSpace(in)
}
