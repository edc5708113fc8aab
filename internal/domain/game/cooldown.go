package game

import (
	"time"
)

func CanMove(a Agent, now time.Time, rules Rules) bool {
	return MoveRemaining(a, now, rules) <= 0
}

func MoveRemaining(a Agent, now time.Time, rules Rules) time.Duration {
	if a.LastMoveAt.IsZero() {
		return 0
	}
	remaining := a.LastMoveAt.Add(rules.MoveCooldown).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func CanBattle(a, b Agent, now time.Time) bool {
	if !a.Alive || !b.Alive {
		return false
	}
	return !now.Before(BattleCooldownUntil(a, b))
}

// BattleCooldownUntil is the later of the two agents' battle stamps for each other.
func BattleCooldownUntil(a, b Agent) time.Time {
	return later(a.BattleCooldownUntil[b.ID], b.BattleCooldownUntil[a.ID])
}

func CanAlliance(a, b Agent, now time.Time) bool {
	if a.AlliedWith(b.ID) || b.AlliedWith(a.ID) {
		return false
	}
	return !now.Before(AllianceCooldownUntil(a, b))
}

func AllianceCooldownUntil(a, b Agent) time.Time {
	return later(a.AllianceCooldownUntil[b.ID], b.AllianceCooldownUntil[a.ID])
}

// stampBattle puts both agents on battle cooldown with each other.
func stampBattle(a, b *Agent, now time.Time, rules Rules) {
	until := now.Add(rules.BattleCooldown)
	extendUntil(a.BattleCooldownUntil, b.ID, until)
	extendUntil(b.BattleCooldownUntil, a.ID, until)
}

func stampAlliance(a, b *Agent, now time.Time, rules Rules) {
	until := now.Add(rules.AllianceCooldown)
	extendUntil(a.AllianceCooldownUntil, b.ID, until)
	extendUntil(b.AllianceCooldownUntil, a.ID, until)
}

// extendUntil never moves a stamp backwards.
func extendUntil(m map[string]time.Time, id string, until time.Time) {
	if cur, ok := m[id]; ok && !until.After(cur) {
		return
	}
	m[id] = until
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

type CooldownView struct {
	MoveRemainingSeconds int            `json:"move_remaining_seconds"`
	Battle               map[string]int `json:"battle"`
	Alliance             map[string]int `json:"alliance"`
}

// Cooldowns lists the cooldowns still running for a, in whole seconds rounded up.
func Cooldowns(a Agent, now time.Time, rules Rules) CooldownView {
	view := CooldownView{
		MoveRemainingSeconds: ceilSeconds(MoveRemaining(a, now, rules)),
		Battle:               map[string]int{},
		Alliance:             map[string]int{},
	}
	for id, until := range a.BattleCooldownUntil {
		if d := until.Sub(now); d > 0 {
			view.Battle[id] = ceilSeconds(d)
		}
	}
	for id, until := range a.AllianceCooldownUntil {
		if d := until.Sub(now); d > 0 {
			view.Alliance[id] = ceilSeconds(d)
		}
	}
	return view
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
