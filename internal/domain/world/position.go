package world

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidPositionKey = errors.New("invalid position key")

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key is the canonical "x,y" encoding used for map lookups.
func (p Position) Key() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

func ParseKey(key string) (Position, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(key), ",")
	if !ok {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidPositionKey, key)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidPositionKey, key)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidPositionKey, key)
	}
	return Position{X: x, Y: y}, nil
}

// Distance is the Euclidean distance between two cells.
func Distance(a, b Position) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

var ErrInvalidDirection = errors.New("invalid direction")

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n", "up":
		return North, nil
	case "south", "s", "down":
		return South, nil
	case "east", "e", "right":
		return East, nil
	case "west", "w", "left":
		return West, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// Delta returns the unit step for d. North increases y.
func (d Direction) Delta() (dx, dy int, ok bool) {
	switch d {
	case North:
		return 0, 1, true
	case South:
		return 0, -1, true
	case East:
		return 1, 0, true
	case West:
		return -1, 0, true
	default:
		return 0, 0, false
	}
}

// DirectionTo reports the single-step direction from one cell to an adjacent one.
// It returns false when to is not exactly one orthogonal step away.
func DirectionTo(from, to Position) (Direction, bool) {
	dx, dy := to.X-from.X, to.Y-from.Y
	switch {
	case dx == 0 && dy == 1:
		return North, true
	case dx == 0 && dy == -1:
		return South, true
	case dx == 1 && dy == 0:
		return East, true
	case dx == -1 && dy == 0:
		return West, true
	default:
		return "", false
	}
}
