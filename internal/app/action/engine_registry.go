package action

import (
	"context"
	"time"

	"mearth/internal/domain/game"
)

type ActionSpec struct {
	Kind        game.ActionKind
	NeedsTarget bool
	Handler     ActionHandler
}

type ActionHandler interface {
	ExecuteActionAndPlan(ctx context.Context, uc UseCase, ac *ActionContext) error
}

type ActionInput struct {
	Req     Request
	NowAt   time.Time
	AgentID string
}

type ActionView struct {
	Spec   ActionSpec
	Actor  game.Agent
	Target *game.Agent
}

// ActionWritePlan is everything a handler wants persisted. Agents are saved
// against the version they were loaded with.
type ActionWritePlan struct {
	StatesToSave []game.Agent
	Events       []game.DomainEvent
	EventOwners  []string
	Outcome      *game.BattleOutcome
	ResultCode   ResultCode
}

type ActionTmp struct {
	Move     *game.MoveResult
	Battle   *game.BattleResult
	Proposal *game.AllianceProposal
	Penalty  uint64
}

type ActionContext struct {
	In   ActionInput
	View ActionView
	Plan ActionWritePlan
	Tmp  ActionTmp
}

func actionRegistry() map[game.ActionKind]ActionSpec {
	return map[game.ActionKind]ActionSpec{
		game.ActionMove:          {Kind: game.ActionMove, Handler: moveActionHandler{}},
		game.ActionBattle:        {Kind: game.ActionBattle, NeedsTarget: true, Handler: battleActionHandler{}},
		game.ActionAlliance:      {Kind: game.ActionAlliance, NeedsTarget: true, Handler: allianceActionHandler{}},
		game.ActionBreakAlliance: {Kind: game.ActionBreakAlliance, NeedsTarget: true, Handler: breakAllianceActionHandler{}},
		game.ActionIgnore:        {Kind: game.ActionIgnore, NeedsTarget: true, Handler: ignoreActionHandler{}},
		game.ActionDeceive:       {Kind: game.ActionDeceive, Handler: deceiveActionHandler{}},
	}
}

func SupportedActionKinds() []game.ActionKind {
	return []game.ActionKind{
		game.ActionMove,
		game.ActionBattle,
		game.ActionAlliance,
		game.ActionBreakAlliance,
		game.ActionIgnore,
		game.ActionDeceive,
	}
}
