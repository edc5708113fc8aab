package game

import (
	"time"

	"mearth/internal/domain/world"
)

type NearbyAgent struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Character   string         `json:"character,omitempty"`
	Position    world.Position `json:"position"`
	Terrain     world.Terrain  `json:"terrain"`
	Tokens      uint64         `json:"tokens"`
	Distance    float64        `json:"distance"`
	Allied      bool           `json:"allied"`
	CanBattle   bool           `json:"can_battle"`
	CanAlliance bool           `json:"can_alliance"`
}

// Observation is everything a decision source sees for one tick.
type Observation struct {
	Self          Agent           `json:"self"`
	Terrain       world.Terrain   `json:"terrain"`
	Nearby        []NearbyAgent   `json:"nearby"`
	RecentEvents  []DomainEvent   `json:"recent_events"`
	RecentBattles []BattleOutcome `json:"recent_battles"`
	Cooldowns     CooldownView    `json:"cooldowns"`
	CanMove       bool            `json:"can_move"`
	ObservedAt    time.Time       `json:"observed_at"`
}

// Describe builds the nearby-agent view of other as seen from self.
func Describe(self, other Agent, now time.Time, terrain *world.TerrainMap, rules Rules) NearbyAgent {
	d := world.Distance(self.Position, other.Position)
	return NearbyAgent{
		ID:          other.ID,
		Name:        other.Name,
		Character:   other.Character,
		Position:    other.Position,
		Terrain:     terrain.TerrainAt(other.Position),
		Tokens:      other.Tokens,
		Distance:    d,
		Allied:      self.AlliedWith(other.ID),
		CanBattle:   ValidateBattle(self, other, now, rules) == nil,
		CanAlliance: validateAlliance(self, other, now, rules) == nil,
	}
}
