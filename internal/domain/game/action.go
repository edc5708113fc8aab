package game

import "mearth/internal/domain/world"

type ActionKind string

const (
	ActionMove          ActionKind = "move"
	ActionBattle        ActionKind = "battle"
	ActionAlliance      ActionKind = "alliance"
	ActionBreakAlliance ActionKind = "break_alliance"
	ActionIgnore        ActionKind = "ignore"
	ActionDeceive       ActionKind = "deceive"
)

// Action is one of MoveAction, BattleAction, AllianceAction,
// BreakAllianceAction, IgnoreAction or DeceiveAction.
type Action interface {
	Kind() ActionKind
	isAction()
}

type MoveAction struct {
	Direction world.Direction `json:"direction"`
	Steps     int             `json:"steps,omitempty"`
}

type BattleAction struct {
	Target string `json:"target"`
}

type AllianceAction struct {
	Target string `json:"target"`
}

type BreakAllianceAction struct {
	Target string `json:"target"`
}

type IgnoreAction struct {
	Target string `json:"target"`
}

// DeceiveAction is an announcement only; it never changes game state.
type DeceiveAction struct {
	Claim string `json:"claim"`
}

func (MoveAction) Kind() ActionKind          { return ActionMove }
func (BattleAction) Kind() ActionKind        { return ActionBattle }
func (AllianceAction) Kind() ActionKind      { return ActionAlliance }
func (BreakAllianceAction) Kind() ActionKind { return ActionBreakAlliance }
func (IgnoreAction) Kind() ActionKind        { return ActionIgnore }
func (DeceiveAction) Kind() ActionKind       { return ActionDeceive }

func (MoveAction) isAction()          {}
func (BattleAction) isAction()        {}
func (AllianceAction) isAction()      {}
func (BreakAllianceAction) isAction() {}
func (IgnoreAction) isAction()        {}
func (DeceiveAction) isAction()       {}

// TargetOf returns the other agent an action refers to, if any.
func TargetOf(a Action) (string, bool) {
	switch v := a.(type) {
	case BattleAction:
		return v.Target, true
	case AllianceAction:
		return v.Target, true
	case BreakAllianceAction:
		return v.Target, true
	case IgnoreAction:
		return v.Target, true
	default:
		return "", false
	}
}

// Decision is what a decision source returns for one tick.
type Decision struct {
	Action     Action `json:"-"`
	PublicText string `json:"public_text"`
	Reasoning  string `json:"reasoning,omitempty"`
}
