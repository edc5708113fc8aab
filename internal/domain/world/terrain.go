package world

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Terrain string

const (
	TerrainPlain    Terrain = "plain"
	TerrainRiver    Terrain = "river"
	TerrainMountain Terrain = "mountain"
)

var (
	ErrUnknownTerrain     = errors.New("unknown terrain")
	ErrConflictingTerrain = errors.New("cell listed with more than one terrain")
	ErrInvalidMapBounds   = errors.New("invalid map bounds")
)

func ParseTerrain(s string) (Terrain, error) {
	switch Terrain(strings.ToLower(strings.TrimSpace(s))) {
	case TerrainPlain:
		return TerrainPlain, nil
	case TerrainRiver, "water":
		return TerrainRiver, nil
	case TerrainMountain:
		return TerrainMountain, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTerrain, s)
	}
}

// TerrainMap is an immutable classification of grid cells. Cells that are not
// enumerated as river or mountain are plain.
type TerrainMap struct {
	cells  map[string]Terrain
	width  int
	height int
}

type MapOption func(*TerrainMap)

// WithBounds limits the map to 0 <= x < width and 0 <= y < height.
func WithBounds(width, height int) MapOption {
	return func(m *TerrainMap) {
		m.width = width
		m.height = height
	}
}

func NewTerrainMap(rivers, mountains []Position, opts ...MapOption) (*TerrainMap, error) {
	m := &TerrainMap{cells: make(map[string]Terrain, len(rivers)+len(mountains))}
	for _, opt := range opts {
		opt(m)
	}
	if m.width < 0 || m.height < 0 || (m.width == 0) != (m.height == 0) {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidMapBounds, m.width, m.height)
	}
	for _, p := range rivers {
		m.cells[p.Key()] = TerrainRiver
	}
	for _, p := range mountains {
		if m.cells[p.Key()] == TerrainRiver {
			return nil, fmt.Errorf("%w: %s", ErrConflictingTerrain, p.Key())
		}
		m.cells[p.Key()] = TerrainMountain
	}
	return m, nil
}

func (m *TerrainMap) TerrainAt(p Position) Terrain {
	if t, ok := m.cells[p.Key()]; ok {
		return t
	}
	return TerrainPlain
}

func (m *TerrainMap) Bounded() bool {
	return m.width > 0 && m.height > 0
}

func (m *TerrainMap) Bounds() (width, height int) {
	return m.width, m.height
}

func (m *TerrainMap) InBounds(p Position) bool {
	if !m.Bounded() {
		return true
	}
	return p.X >= 0 && p.Y >= 0 && p.X < m.width && p.Y < m.height
}

// Cells lists the enumerated cells of one terrain type in row-major order.
func (m *TerrainMap) Cells(t Terrain) []Position {
	out := make([]Position, 0)
	for key, terrain := range m.cells {
		if terrain != t {
			continue
		}
		p, err := ParseKey(key)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}
