package action

import (
	"context"

	"mearth/internal/domain/game"
)

type battleActionHandler struct{}

func (battleActionHandler) ExecuteActionAndPlan(_ context.Context, uc UseCase, ac *ActionContext) error {
	if _, ok := ac.In.Req.Action.(game.BattleAction); !ok {
		return ErrInvalidRequest
	}
	res, err := game.ResolveBattle(uc.newID(), ac.View.Actor, *ac.View.Target, ac.In.NowAt, uc.Rules, uc.dice())
	if err != nil {
		return err
	}
	outcome := res.Outcome
	ac.Tmp.Battle = &res
	ac.Plan.StatesToSave = []game.Agent{res.Attacker, res.Defender}
	ac.Plan.Events = res.Events
	ac.Plan.EventOwners = []string{res.Attacker.ID, res.Defender.ID}
	ac.Plan.Outcome = &outcome
	ac.Plan.ResultCode = ResultOK
	if !res.Attacker.Alive {
		ac.Plan.ResultCode = ResultDied
	}
	return nil
}
