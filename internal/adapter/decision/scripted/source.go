// Package scripted decides from character traits and a seeded roller. It
// needs no network and drives `mearth simulate`.
package scripted

import (
	"context"
	"fmt"
	"sort"

	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var defaultTraits = game.Traits{Aggressiveness: 0.5, Sociability: 0.5, Intelligence: 0.5, Bravery: 0.5}

var directions = []world.Direction{world.North, world.East, world.South, world.West}

type Source struct {
	terrain *world.TerrainMap
	dice    game.Roller
}

func New(terrain *world.TerrainMap, dice game.Roller) *Source {
	if terrain == nil {
		terrain = world.DefaultMap()
	}
	return &Source{terrain: terrain, dice: dice}
}

func traitsOf(a game.Agent) game.Traits {
	if c, ok := game.LookupCharacter(a.Character); ok {
		return c.Traits
	}
	return defaultTraits
}

// Decide tries, in order: a battle against the poorest reachable agent, an
// alliance with the richest, a step, and finally a bluff.
func (s *Source) Decide(_ context.Context, obs game.Observation) (game.Decision, error) {
	t := traitsOf(obs.Self)

	var fightable, friendly []game.NearbyAgent
	for _, n := range obs.Nearby {
		if n.CanBattle {
			fightable = append(fightable, n)
		}
		if n.CanAlliance {
			friendly = append(friendly, n)
		}
	}

	if len(fightable) > 0 && s.dice.Float64() < t.Aggressiveness {
		sort.SliceStable(fightable, func(i, j int) bool { return fightable[i].Tokens < fightable[j].Tokens })
		target := fightable[0]
		if target.Tokens <= obs.Self.Tokens || s.dice.Float64() < t.Bravery {
			return game.Decision{
				Action:     game.BattleAction{Target: target.ID},
				PublicText: fmt.Sprintf("%s, prepare yourself!", target.Name),
				Reasoning:  fmt.Sprintf("%s holds %d tokens against my %d", target.ID, target.Tokens, obs.Self.Tokens),
			}, nil
		}
	}

	if len(friendly) > 0 && s.dice.Float64() < t.Sociability {
		sort.SliceStable(friendly, func(i, j int) bool { return friendly[i].Tokens > friendly[j].Tokens })
		target := friendly[0]
		return game.Decision{
			Action:     game.AllianceAction{Target: target.ID},
			PublicText: fmt.Sprintf("%s, shall we travel together?", target.Name),
			Reasoning:  "strength in numbers",
		}, nil
	}

	if obs.CanMove {
		if d, ok := s.pickDirection(obs.Self.Position, t); ok {
			return game.Decision{
				Action:    game.MoveAction{Direction: d, Steps: 1},
				Reasoning: "exploring",
			}, nil
		}
	}

	claim := fmt.Sprintf("I hold %d tokens and fear no one.", obs.Self.Tokens*2)
	return game.Decision{
		Action:     game.DeceiveAction{Claim: claim},
		PublicText: claim,
		Reasoning:  "nothing better to do",
	}, nil
}

// pickDirection starts at a random direction and takes the first in-bounds
// step. Risky terrain is only accepted on a bravery roll.
func (s *Source) pickDirection(from world.Position, t game.Traits) (world.Direction, bool) {
	start := int(s.dice.Float64() * float64(len(directions)))
	var risky []world.Direction
	for i := range directions {
		d := directions[(start+i)%len(directions)]
		dx, dy, _ := d.Delta()
		to := from.Add(dx, dy)
		if !s.terrain.InBounds(to) {
			continue
		}
		if s.terrain.TerrainAt(to) == world.TerrainPlain {
			return d, true
		}
		risky = append(risky, d)
	}
	if len(risky) > 0 && s.dice.Float64() < t.Bravery {
		return risky[0], true
	}
	return "", false
}

// RespondToAlliance accepts on a sociability roll, and always when the
// proposer is richer.
func (s *Source) RespondToAlliance(_ context.Context, p game.AllianceProposal, obs game.Observation) (bool, error) {
	for _, n := range obs.Nearby {
		if n.ID == p.Proposer && n.Tokens > obs.Self.Tokens {
			return true, nil
		}
	}
	return s.dice.Float64() < traitsOf(obs.Self).Sociability, nil
}
