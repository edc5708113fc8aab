package game

import "sort"

type Traits struct {
	Aggressiveness float64 `json:"aggressiveness" yaml:"aggressiveness"`
	Sociability    float64 `json:"sociability" yaml:"sociability"`
	Intelligence   float64 `json:"intelligence" yaml:"intelligence"`
	Bravery        float64 `json:"bravery" yaml:"bravery"`
}

type Character struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Traits Traits `json:"traits"`
}

var characters = map[string]Character{
	"scootles": {
		Key:    "scootles",
		Name:   "Scootles",
		Traits: Traits{Aggressiveness: 0.8, Sociability: 0.6, Intelligence: 0.7, Bravery: 0.9},
	},
	"purrlock_paws": {
		Key:    "purrlock_paws",
		Name:   "Purrlock Paws",
		Traits: Traits{Aggressiveness: 0.9, Sociability: 0.2, Intelligence: 0.8, Bravery: 0.7},
	},
	"sir_gullihop": {
		Key:    "sir_gullihop",
		Name:   "Sir Gullihop",
		Traits: Traits{Aggressiveness: 0.3, Sociability: 0.9, Intelligence: 0.4, Bravery: 0.8},
	},
	"wanderleaf": {
		Key:    "wanderleaf",
		Name:   "Wanderleaf",
		Traits: Traits{Aggressiveness: 0.4, Sociability: 0.5, Intelligence: 0.6, Bravery: 0.4},
	},
}

func LookupCharacter(key string) (Character, bool) {
	c, ok := characters[key]
	return c, ok
}

func Characters() []Character {
	out := make([]Character, 0, len(characters))
	for _, c := range characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// TraitModifier scales the attacker's win chance by how much more aggressive
// and brave it is than the defender. ok is false unless both archetypes are known.
func TraitModifier(attacker, defender string) (float64, bool) {
	atk, ok := characters[attacker]
	if !ok {
		return 1, false
	}
	def, ok := characters[defender]
	if !ok {
		return 1, false
	}
	denom := def.Traits.Aggressiveness + def.Traits.Bravery
	if denom <= 0 {
		return 1, false
	}
	return (atk.Traits.Aggressiveness + atk.Traits.Bravery) / denom, true
}
