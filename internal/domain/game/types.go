package game

import (
	"sort"
	"time"

	"mearth/internal/domain/world"
)

type DeathCause string

const (
	DeathCauseNone    DeathCause = ""
	DeathCauseTerrain DeathCause = "terrain"
	DeathCauseBattle  DeathCause = "battle"
)

type Agent struct {
	ID                    string               `json:"id"`
	Name                  string               `json:"name"`
	Character             string               `json:"character,omitempty"`
	Position              world.Position       `json:"position"`
	Tokens                uint64               `json:"tokens"`
	Alive                 bool                 `json:"alive"`
	DeathCause            DeathCause           `json:"death_cause,omitempty"`
	Alliances             map[string]time.Time `json:"alliances"`
	AllianceCooldownUntil map[string]time.Time `json:"alliance_cooldown_until"`
	BattleCooldownUntil   map[string]time.Time `json:"battle_cooldown_until"`
	LastMoveAt            time.Time            `json:"last_move_at"`
	LastBattleAt          time.Time            `json:"last_battle_at"`
	LastAllianceAt        time.Time            `json:"last_alliance_at"`
	Version               int64                `json:"version"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

func NewAgent(id, name, character string, pos world.Position, tokens uint64) Agent {
	return Agent{
		ID:                    id,
		Name:                  name,
		Character:             character,
		Position:              pos,
		Tokens:                tokens,
		Alive:                 true,
		Alliances:             map[string]time.Time{},
		AllianceCooldownUntil: map[string]time.Time{},
		BattleCooldownUntil:   map[string]time.Time{},
	}
}

// Clone returns a copy that shares no maps with a.
func (a Agent) Clone() Agent {
	out := a
	out.Alliances = cloneTimes(a.Alliances)
	out.AllianceCooldownUntil = cloneTimes(a.AllianceCooldownUntil)
	out.BattleCooldownUntil = cloneTimes(a.BattleCooldownUntil)
	return out
}

func (a Agent) AlliedWith(id string) bool {
	_, ok := a.Alliances[id]
	return ok
}

func (a Agent) AllyIDs() []string {
	out := make([]string, 0, len(a.Alliances))
	for id := range a.Alliances {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// burn removes up to n tokens and returns how many were actually removed.
func (a *Agent) burn(n uint64) uint64 {
	if n > a.Tokens {
		n = a.Tokens
	}
	a.Tokens -= n
	return n
}

func (a *Agent) kill(cause DeathCause) {
	a.Alive = false
	a.DeathCause = cause
}

func cloneTimes(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Battle exists only for the duration of a single resolution.
type Battle struct {
	ID              string    `json:"id"`
	Attacker        string    `json:"attacker"`
	Defender        string    `json:"defender"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds uint64    `json:"duration_seconds"`
	TokensAtStake   uint64    `json:"tokens_at_stake"`
	WinProbability  float64   `json:"win_probability"`
}

type BattleOutcome struct {
	BattleID          string    `json:"battle_id"`
	Attacker          string    `json:"attacker"`
	Defender          string    `json:"defender"`
	Winner            string    `json:"winner"`
	Loser             string    `json:"loser"`
	TokensBurned      uint64    `json:"tokens_burned"`
	TokensTransferred uint64    `json:"tokens_transferred"`
	BurnPercent       int       `json:"burn_percent"`
	DeathOccurred     bool      `json:"death_occurred"`
	EndedAt           time.Time `json:"ended_at"`
}

type AllianceProposal struct {
	ID        string    `json:"id"`
	Proposer  string    `json:"proposer"`
	Proposed  string    `json:"proposed"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p AllianceProposal) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
