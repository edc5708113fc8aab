package scheduler

import (
	"fmt"
	"strings"

	"mearth/internal/app/action"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

// StatusText is the one-line public post for an agent. Characters with low
// intelligence open with a hesitation.
func StatusText(agent game.Agent, terrain world.Terrain, summary string) string {
	summary = strings.TrimSpace(summary)
	c, known := game.LookupCharacter(agent.Character)
	if summary == "" && known {
		summary = flavor(c.Traits)
	}
	text := fmt.Sprintf("I'm at (%d, %d) on %s ground.", agent.Position.X, agent.Position.Y, terrain)
	if summary != "" {
		text += " " + summary
	}
	text += fmt.Sprintf("\nTokens: %d", agent.Tokens)
	if known && c.Traits.Intelligence < 0.5 {
		text = "Uhhh... " + text
	}
	return text
}

// flavor fills an otherwise empty post from the character's temperament.
func flavor(t game.Traits) string {
	switch {
	case t.Aggressiveness > 0.7:
		return "Looking for a fight!"
	case t.Sociability > 0.7:
		return "Anyone want to be friends?"
	}
	return ""
}

// describe is the fallback summary when the decision carried no public text.
func describe(resp action.Response) string {
	switch resp.Kind {
	case game.ActionMove:
		if resp.Move == nil {
			return "I moved."
		}
		if resp.Move.Died {
			return fmt.Sprintf("The %s at %s was too much for me.", resp.Move.Terrain, resp.Move.To)
		}
		return fmt.Sprintf("Moved to %s.", resp.Move.To)
	case game.ActionBattle:
		if resp.Battle == nil {
			return "I fought."
		}
		if resp.Battle.Winner == resp.AgentID {
			return fmt.Sprintf("Won a battle against %s.", other(resp.Battle.Attacker, resp.Battle.Defender, resp.AgentID))
		}
		return fmt.Sprintf("Lost a battle against %s and %d tokens.", resp.Battle.Winner, resp.Battle.TokensBurned)
	case game.ActionAlliance:
		if resp.Proposal == nil {
			return "Looking for allies."
		}
		if resp.ResultCode == action.ResultRejected {
			return fmt.Sprintf("%s turned down my alliance.", resp.Proposal.Proposed)
		}
		return fmt.Sprintf("Allied with %s.", resp.Proposal.Proposed)
	case game.ActionBreakAlliance:
		if resp.Target != nil {
			return fmt.Sprintf("Broke my alliance with %s.", resp.Target.ID)
		}
		return "Broke an alliance."
	case game.ActionIgnore:
		if resp.Target != nil {
			return fmt.Sprintf("Ignoring %s.", resp.Target.ID)
		}
	case game.ActionDeceive:
		return ""
	}
	return ""
}

func other(a, b, self string) string {
	if a == self {
		return b
	}
	return a
}
