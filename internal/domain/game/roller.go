package game

import (
	"math/rand/v2"
	"sync"
)

// Roller supplies uniform draws in [0,1).
type Roller interface {
	Float64() float64
}

type RandomRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomRoller(seed uint64) *RandomRoller {
	return &RandomRoller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomRoller) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// SequenceRoller replays a fixed list of draws. It panics when exhausted.
type SequenceRoller struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewSequenceRoller(values ...float64) *SequenceRoller {
	return &SequenceRoller{values: values}
}

func (r *SequenceRoller) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.values) {
		panic("game: sequence roller exhausted")
	}
	v := r.values[r.next]
	r.next++
	return v
}

func (r *SequenceRoller) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values) - r.next
}
