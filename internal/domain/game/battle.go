package game

import (
	"math"
	"time"

	"mearth/internal/domain/world"
)

type BattleResult struct {
	Battle   Battle        `json:"battle"`
	Outcome  BattleOutcome `json:"outcome"`
	Attacker Agent         `json:"attacker"`
	Defender Agent         `json:"defender"`
	Events   []DomainEvent `json:"events"`
}

// WinProbability is the attacker's chance to win, clamped to [0,1].
func WinProbability(attacker, defender Agent, rules Rules) float64 {
	total := attacker.Tokens + defender.Tokens
	p := 0.5
	if total > 0 {
		p = float64(attacker.Tokens) / float64(total)
	}
	if rules.TraitModifier {
		if m, ok := TraitModifier(attacker.Character, defender.Character); ok {
			p *= m
		}
	}
	return math.Min(1, math.Max(0, p))
}

// BurnPercent maps a uniform draw onto an integer percent in [min,max].
func BurnPercent(draw float64, rules Rules) int {
	span := rules.BurnMaxPercent - rules.BurnMinPercent + 1
	pct := rules.BurnMinPercent + int(draw*float64(span))
	if pct > rules.BurnMaxPercent {
		pct = rules.BurnMaxPercent
	}
	return pct
}

func ValidateBattle(attacker, defender Agent, now time.Time, rules Rules) error {
	if !attacker.Alive {
		return ErrAgentDead
	}
	if !defender.Alive {
		return ErrTargetDead
	}
	if attacker.ID == defender.ID {
		return ErrSelfTarget
	}
	if d := world.Distance(attacker.Position, defender.Position); d > rules.BattleRange {
		return &OutOfRangeError{Target: defender.ID, Distance: d, Range: rules.BattleRange}
	}
	if !CanBattle(attacker, defender, now) {
		until := BattleCooldownUntil(attacker, defender)
		return &CooldownActiveError{Action: ActionBattle, Target: defender.ID, Until: until, Remaining: until.Sub(now)}
	}
	if attacker.Tokens == 0 || defender.Tokens == 0 {
		return ErrNoTokens
	}
	return nil
}

// ResolveBattle draws, in order, the winner, the burn percent and the death
// roll. A dead loser hands every remaining token to the winner.
func ResolveBattle(battleID string, attacker, defender Agent, now time.Time, rules Rules, dice Roller) (BattleResult, error) {
	if err := ValidateBattle(attacker, defender, now, rules); err != nil {
		return BattleResult{}, err
	}
	atk := attacker.Clone()
	def := defender.Clone()
	p := WinProbability(atk, def, rules)
	battle := Battle{
		ID:              battleID,
		Attacker:        atk.ID,
		Defender:        def.ID,
		StartedAt:       now,
		DurationSeconds: atk.Tokens + def.Tokens,
		TokensAtStake:   percentOf(def.Tokens, rules.BurnMaxPercent),
		WinProbability:  p,
	}

	winner, loser := &atk, &def
	if dice.Float64() >= p {
		winner, loser = &def, &atk
	}
	pct := BurnPercent(dice.Float64(), rules)
	burned := loser.burn(percentOf(loser.Tokens, pct))
	died := dice.Float64() < rules.BattleDeathChance

	var transferred uint64
	if died {
		transferred = loser.Tokens
		loser.Tokens = 0
		winner.Tokens += transferred
		loser.kill(DeathCauseBattle)
	}
	stampBattle(&atk, &def, now, rules)
	atk.LastBattleAt = now
	def.LastBattleAt = now
	atk.UpdatedAt = now
	def.UpdatedAt = now

	outcome := BattleOutcome{
		BattleID:          battleID,
		Attacker:          atk.ID,
		Defender:          def.ID,
		Winner:            winner.ID,
		Loser:             loser.ID,
		TokensBurned:      burned,
		TokensTransferred: transferred,
		BurnPercent:       pct,
		DeathOccurred:     died,
		EndedAt:           now,
	}
	events := []DomainEvent{{
		Type:       EventBattleResolved,
		OccurredAt: now,
		Payload: map[string]any{
			"battle_id":          battleID,
			"attacker":           atk.ID,
			"defender":           def.ID,
			"winner":             winner.ID,
			"loser":              loser.ID,
			"win_probability":    p,
			"burn_percent":       pct,
			"tokens_burned":      burned,
			"tokens_transferred": transferred,
			"death_occurred":     died,
			"duration_seconds":   battle.DurationSeconds,
		},
	}}
	if died {
		events = append(events, deathEvent(*loser, DeathCauseBattle, now, map[string]any{
			"battle_id": battleID,
			"killed_by": winner.ID,
		}))
	}
	return BattleResult{Battle: battle, Outcome: outcome, Attacker: atk, Defender: def, Events: events}, nil
}

// percentOf is floor(tokens*pct/100) without overflowing for large balances.
func percentOf(tokens uint64, pct int) uint64 {
	p := uint64(pct)
	return tokens/100*p + tokens%100*p/100
}
