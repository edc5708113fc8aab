package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

// RulesOverlay lists the tunables a config or rules file may override.
// Unset fields keep the base value.
type RulesOverlay struct {
	MoveCooldownSeconds     *int64             `yaml:"move_cooldown_seconds" mapstructure:"move_cooldown_seconds"`
	BattleCooldownSeconds   *int64             `yaml:"battle_cooldown_seconds" mapstructure:"battle_cooldown_seconds"`
	AllianceCooldownSeconds *int64             `yaml:"alliance_cooldown_seconds" mapstructure:"alliance_cooldown_seconds"`
	AllianceDurationSeconds *int64             `yaml:"alliance_duration_seconds" mapstructure:"alliance_duration_seconds"`
	OutcomeRetentionSeconds *int64             `yaml:"outcome_retention_seconds" mapstructure:"outcome_retention_seconds"`
	BattleRange             *float64           `yaml:"battle_range" mapstructure:"battle_range"`
	AllianceRange           *float64           `yaml:"alliance_range" mapstructure:"alliance_range"`
	TerrainDeathChance      *float64           `yaml:"terrain_death_chance" mapstructure:"terrain_death_chance"`
	BattleDeathChance       *float64           `yaml:"battle_death_chance" mapstructure:"battle_death_chance"`
	TokenBurnMin            *int               `yaml:"token_burn_min" mapstructure:"token_burn_min"`
	TokenBurnMax            *int               `yaml:"token_burn_max" mapstructure:"token_burn_max"`
	TerrainSpeed            map[string]float64 `yaml:"terrain_speed" mapstructure:"terrain_speed"`
	MaxAllies               *int               `yaml:"max_allies" mapstructure:"max_allies"`
	AllianceBreakPenalty    *uint64            `yaml:"alliance_break_penalty" mapstructure:"alliance_break_penalty"`
	TraitModifier           *bool              `yaml:"trait_modifier" mapstructure:"trait_modifier"`
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

func (o RulesOverlay) Apply(base game.Rules) (game.Rules, error) {
	r := base
	if o.MoveCooldownSeconds != nil {
		r.MoveCooldown = seconds(*o.MoveCooldownSeconds)
	}
	if o.BattleCooldownSeconds != nil {
		r.BattleCooldown = seconds(*o.BattleCooldownSeconds)
	}
	if o.AllianceCooldownSeconds != nil {
		r.AllianceCooldown = seconds(*o.AllianceCooldownSeconds)
	}
	if o.AllianceDurationSeconds != nil {
		r.AllianceDuration = seconds(*o.AllianceDurationSeconds)
	}
	if o.OutcomeRetentionSeconds != nil {
		r.OutcomeRetention = seconds(*o.OutcomeRetentionSeconds)
	}
	if o.BattleRange != nil {
		r.BattleRange = *o.BattleRange
	}
	if o.AllianceRange != nil {
		r.AllianceRange = *o.AllianceRange
	}
	if o.TerrainDeathChance != nil {
		r.TerrainDeathChance = *o.TerrainDeathChance
	}
	if o.BattleDeathChance != nil {
		r.BattleDeathChance = *o.BattleDeathChance
	}
	if o.TokenBurnMin != nil {
		r.BurnMinPercent = *o.TokenBurnMin
	}
	if o.TokenBurnMax != nil {
		r.BurnMaxPercent = *o.TokenBurnMax
	}
	if len(o.TerrainSpeed) > 0 {
		speeds := make(map[world.Terrain]float64, len(base.TerrainSpeed)+len(o.TerrainSpeed))
		for k, v := range base.TerrainSpeed {
			speeds[k] = v
		}
		for name, v := range o.TerrainSpeed {
			t, err := world.ParseTerrain(name)
			if err != nil {
				return game.Rules{}, err
			}
			speeds[t] = v
		}
		r.TerrainSpeed = speeds
	}
	if o.MaxAllies != nil {
		r.MaxAllies = *o.MaxAllies
	}
	if o.AllianceBreakPenalty != nil {
		r.AllianceBreakPenalty = *o.AllianceBreakPenalty
	}
	if o.TraitModifier != nil {
		r.TraitModifier = *o.TraitModifier
	}
	if err := r.Validate(); err != nil {
		return game.Rules{}, err
	}
	return r, nil
}

// LoadRules overlays a YAML rules file on base. Unknown keys are rejected.
func LoadRules(path string, base game.Rules) (game.Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return game.Rules{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	var overlay RulesOverlay
	if err := decodeStrict(raw, &overlay); err != nil {
		return game.Rules{}, fmt.Errorf("decode rules %s: %w", path, err)
	}
	return overlay.Apply(base)
}

func decodeStrict(raw []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
