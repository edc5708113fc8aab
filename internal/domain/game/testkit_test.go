package game

import (
	"time"

	"mearth/internal/domain/world"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testAgent(id string, x, y int, tokens uint64) Agent {
	return NewAgent(id, id, "", world.Position{X: x, Y: y}, tokens)
}

func plainMap() *world.TerrainMap {
	m, err := world.NewTerrainMap(nil, nil)
	if err != nil {
		panic(err)
	}
	return m
}
