package action

import (
	"context"

	"mearth/internal/domain/game"
)

type moveActionHandler struct{}

func (moveActionHandler) ExecuteActionAndPlan(_ context.Context, uc UseCase, ac *ActionContext) error {
	move, ok := ac.In.Req.Action.(game.MoveAction)
	if !ok {
		return ErrInvalidRequest
	}
	res, err := game.ResolveMove(ac.View.Actor, move, ac.In.NowAt, uc.Terrain, uc.Rules, uc.dice())
	if err != nil {
		return err
	}
	ac.Tmp.Move = &res
	ac.Plan.StatesToSave = []game.Agent{res.Agent}
	ac.Plan.Events = res.Events
	ac.Plan.ResultCode = ResultOK
	if res.Died {
		ac.Plan.ResultCode = ResultDied
	}
	return nil
}
