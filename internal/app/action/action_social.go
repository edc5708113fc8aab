package action

import (
	"context"
	"strings"

	"mearth/internal/domain/game"
)

type ignoreActionHandler struct{}

func (ignoreActionHandler) ExecuteActionAndPlan(_ context.Context, uc UseCase, ac *ActionContext) error {
	if _, ok := ac.In.Req.Action.(game.IgnoreAction); !ok {
		return ErrInvalidRequest
	}
	res, err := game.ResolveIgnore(ac.View.Actor, *ac.View.Target, ac.In.NowAt, uc.Rules)
	if err != nil {
		return err
	}
	ac.Plan.StatesToSave = []game.Agent{res.First, res.Second}
	ac.Plan.Events = res.Events
	ac.Plan.EventOwners = []string{res.First.ID, res.Second.ID}
	ac.Plan.ResultCode = ResultOK
	return nil
}

type deceiveActionHandler struct{}

// Deception is only words; it is logged and changes nothing.
func (deceiveActionHandler) ExecuteActionAndPlan(_ context.Context, _ UseCase, ac *ActionContext) error {
	deceive, ok := ac.In.Req.Action.(game.DeceiveAction)
	if !ok {
		return ErrInvalidRequest
	}
	ac.Plan.Events = []game.DomainEvent{{
		Type:       game.EventAgentDeceived,
		OccurredAt: ac.In.NowAt,
		Payload: map[string]any{
			"agent_id": ac.View.Actor.ID,
			"claim":    strings.TrimSpace(deceive.Claim),
		},
	}}
	ac.Plan.ResultCode = ResultOK
	return nil
}
