package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mearth/internal/domain/game"
)

const decisionInstructions = `You are an agent in Middle Earth, a strategy game played in public.
Your goal is to end up with the most tokens through battles, alliances and deception.

Choose exactly one action:
- move: one step north, south, east or west ("direction"), or name the adjacent cell ("x", "y")
- battle: fight a nearby agent ("target")
- alliance: propose an alliance to a nearby agent ("target")
- break_alliance: end an alliance ("target")
- ignore: refuse to deal with an agent ("target")
- deceive: announce something false ("claim")

Rivers and mountains slow you down and can kill you.
Reply with one JSON object in a json code block:
{"action": "move", "direction": "north", "public_text": "...", "reasoning": "..."}
Include "target" or "claim" only for the actions that need them.`

const allianceInstructions = `Another agent proposes an alliance with you.
Reply with one JSON object in a json code block: {"accept": true|false, "reason": "..."}`

func decisionPrompt(obs game.Observation) string {
	var b strings.Builder
	b.WriteString(decisionInstructions)
	b.WriteString("\n\n# Current game state\n")
	writeState(&b, obs)
	return b.String()
}

func alliancePrompt(p game.AllianceProposal, obs game.Observation) string {
	var b strings.Builder
	b.WriteString(allianceInstructions)
	fmt.Fprintf(&b, "\n\nProposed by: %s\n", p.Proposer)
	for _, n := range obs.Nearby {
		if n.ID == p.Proposer {
			fmt.Fprintf(&b, "Their tokens: %d, distance: %.1f\n", n.Tokens, n.Distance)
		}
	}
	b.WriteString("\n# Your state\n")
	writeState(&b, obs)
	return b.String()
}

func writeState(b *strings.Builder, obs game.Observation) {
	self := obs.Self
	fmt.Fprintf(b, "Position: %s on %s\n", self.Position, obs.Terrain)
	fmt.Fprintf(b, "Tokens: %d\n", self.Tokens)
	fmt.Fprintf(b, "Can move now: %t\n", obs.CanMove)

	allies := self.AllyIDs()
	if len(allies) == 0 {
		b.WriteString("Alliances: none\n")
	} else {
		fmt.Fprintf(b, "Alliances: %s\n", strings.Join(allies, ", "))
	}

	if len(obs.Nearby) == 0 {
		b.WriteString("Nearby agents: none\n")
	} else {
		b.WriteString("Nearby agents:\n")
		for _, n := range obs.Nearby {
			fmt.Fprintf(b, "- %s (%s) at %s on %s, %d tokens, distance %.1f, allied=%t, can_battle=%t, can_alliance=%t\n",
				n.ID, n.Name, n.Position, n.Terrain, n.Tokens, n.Distance, n.Allied, n.CanBattle, n.CanAlliance)
		}
	}

	if len(obs.RecentBattles) > 0 {
		b.WriteString("Recent battles:\n")
		for _, o := range obs.RecentBattles {
			fmt.Fprintf(b, "- %s beat %s, %d tokens burned\n", o.Winner, o.Loser, o.TokensBurned)
		}
	}
	if len(obs.RecentEvents) > 0 {
		b.WriteString("Recent events:\n")
		for _, e := range obs.RecentEvents {
			fmt.Fprintf(b, "- %s %s%s\n", e.OccurredAt.UTC().Format(time.RFC3339), e.Type, payloadSummary(e.Payload))
		}
	}
}

func payloadSummary(p map[string]any) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return " " + strings.Join(parts, " ")
}
