package game

import (
	"fmt"
	"time"

	"mearth/internal/domain/world"
)

const (
	DefaultMoveCooldown     = time.Hour
	DefaultBattleCooldown   = 4 * time.Hour
	DefaultAllianceCooldown = 24 * time.Hour
	DefaultAllianceDuration = 168 * time.Hour
	DefaultOutcomeRetention = 24 * time.Hour

	DefaultBattleRange   = 2.0
	DefaultAllianceRange = 2.0

	DefaultTerrainDeathChance = 0.01
	DefaultBattleDeathChance  = 0.05

	DefaultBurnMinPercent = 31
	DefaultBurnMaxPercent = 50

	DefaultMaxAllies            = 2
	DefaultAllianceBreakPenalty = 500
)

// Rules holds every tunable number the resolvers use.
type Rules struct {
	MoveCooldown         time.Duration
	BattleCooldown       time.Duration
	AllianceCooldown     time.Duration
	AllianceDuration     time.Duration
	OutcomeRetention     time.Duration
	BattleRange          float64
	AllianceRange        float64
	TerrainDeathChance   float64
	BattleDeathChance    float64
	BurnMinPercent       int
	BurnMaxPercent       int
	TerrainSpeed         map[world.Terrain]float64
	MaxAllies            int
	AllianceBreakPenalty uint64
	TraitModifier        bool
}

// DefaultRules uses the river 0.3 / mountain 0.5 speed table.
func DefaultRules() Rules {
	return Rules{
		MoveCooldown:       DefaultMoveCooldown,
		BattleCooldown:     DefaultBattleCooldown,
		AllianceCooldown:   DefaultAllianceCooldown,
		AllianceDuration:   DefaultAllianceDuration,
		OutcomeRetention:   DefaultOutcomeRetention,
		BattleRange:        DefaultBattleRange,
		AllianceRange:      DefaultAllianceRange,
		TerrainDeathChance: DefaultTerrainDeathChance,
		BattleDeathChance:  DefaultBattleDeathChance,
		BurnMinPercent:     DefaultBurnMinPercent,
		BurnMaxPercent:     DefaultBurnMaxPercent,
		TerrainSpeed: map[world.Terrain]float64{
			world.TerrainPlain:    1.0,
			world.TerrainRiver:    0.3,
			world.TerrainMountain: 0.5,
		},
		MaxAllies:            DefaultMaxAllies,
		AllianceBreakPenalty: DefaultAllianceBreakPenalty,
		TraitModifier:        true,
	}
}

func (r Rules) SpeedModifier(t world.Terrain) float64 {
	if v, ok := r.TerrainSpeed[t]; ok {
		return v
	}
	return 1.0
}

func (r Rules) Validate() error {
	switch {
	case r.MoveCooldown < 0 || r.BattleCooldown < 0 || r.AllianceCooldown < 0:
		return fmt.Errorf("%w: cooldowns must not be negative", ErrInvalidRules)
	case r.AllianceDuration < 0:
		return fmt.Errorf("%w: alliance duration must not be negative", ErrInvalidRules)
	case r.OutcomeRetention <= 0:
		return fmt.Errorf("%w: outcome retention must be positive", ErrInvalidRules)
	case r.BattleRange <= 0 || r.AllianceRange <= 0:
		return fmt.Errorf("%w: ranges must be positive", ErrInvalidRules)
	case !isChance(r.TerrainDeathChance) || !isChance(r.BattleDeathChance):
		return fmt.Errorf("%w: death chances must be within [0,1]", ErrInvalidRules)
	case r.BurnMinPercent < 0 || r.BurnMaxPercent > 100 || r.BurnMinPercent > r.BurnMaxPercent:
		return fmt.Errorf("%w: burn percent range %d..%d", ErrInvalidRules, r.BurnMinPercent, r.BurnMaxPercent)
	case r.MaxAllies < 0:
		return fmt.Errorf("%w: max allies must not be negative", ErrInvalidRules)
	}
	for _, t := range []world.Terrain{world.TerrainPlain, world.TerrainRiver, world.TerrainMountain} {
		v, ok := r.TerrainSpeed[t]
		if !ok {
			return fmt.Errorf("%w: missing speed modifier for %s", ErrInvalidRules, t)
		}
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: speed modifier for %s must be within (0,1]", ErrInvalidRules, t)
		}
	}
	if r.TerrainSpeed[world.TerrainRiver] > r.TerrainSpeed[world.TerrainMountain] {
		return fmt.Errorf("%w: river must not be faster than mountain", ErrInvalidRules)
	}
	return nil
}

func isChance(v float64) bool {
	return v >= 0 && v <= 1
}
