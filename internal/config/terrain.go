package config

import (
	"fmt"
	"os"

	"mearth/internal/domain/world"
)

type mapFile struct {
	Width     int      `yaml:"width"`
	Height    int      `yaml:"height"`
	Rivers    []string `yaml:"rivers"`
	Mountains []string `yaml:"mountains"`
}

// LoadTerrain builds a terrain map from a YAML file of "x,y" cell keys.
func LoadTerrain(path string) (*world.TerrainMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map %s: %w", path, err)
	}
	var f mapFile
	if err := decodeStrict(raw, &f); err != nil {
		return nil, fmt.Errorf("decode map %s: %w", path, err)
	}
	rivers, err := parseKeys(f.Rivers)
	if err != nil {
		return nil, err
	}
	mountains, err := parseKeys(f.Mountains)
	if err != nil {
		return nil, err
	}
	var opts []world.MapOption
	if f.Width > 0 || f.Height > 0 {
		opts = append(opts, world.WithBounds(f.Width, f.Height))
	}
	return world.NewTerrainMap(rivers, mountains, opts...)
}

func parseKeys(keys []string) ([]world.Position, error) {
	out := make([]world.Position, 0, len(keys))
	for _, k := range keys {
		p, err := world.ParseKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
