package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrNotStarted = errors.New("scheduler not started")

// Manager runs one Loop per agent. A loop that fails fatally stops alone;
// the first such error is returned by Wait.
type Manager struct {
	deps Deps

	mu    sync.Mutex
	ctx   context.Context
	loops map[string]*Loop
	group errgroup.Group
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, loops: map[string]*Loop{}}
}

// Start launches a loop for every living agent in the store.
func (m *Manager) Start(ctx context.Context) error {
	agents, err := m.deps.Actions.StateRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	for _, a := range agents {
		if !a.Alive {
			continue
		}
		if err := m.Add(a.ID); err != nil {
			return err
		}
	}
	return nil
}

// Add starts a loop for agentID unless one is already running.
func (m *Manager) Add(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return ErrNotStarted
	}
	if existing, ok := m.loops[agentID]; ok && existing.State() != StateStopped {
		return nil
	}
	loop := NewLoop(agentID, m.deps)
	m.loops[agentID] = loop
	ctx := m.ctx
	m.group.Go(func() error { return loop.Run(ctx) })
	return nil
}

func (m *Manager) Stop(agentID string) error {
	m.mu.Lock()
	loop, ok := m.loops[agentID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownAgent
	}
	loop.Stop()
	return nil
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, loop := range m.loops {
		loop.Stop()
	}
}

func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.loops))
	for id, loop := range m.loops {
		out[id] = loop.State()
	}
	return out
}

func (m *Manager) AgentIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TickNow runs a tick for agentID outside its timer. It waits for any tick
// already in progress.
func (m *Manager) TickNow(ctx context.Context, agentID string) (TickResult, error) {
	m.mu.Lock()
	loop, ok := m.loops[agentID]
	m.mu.Unlock()
	if !ok {
		return TickResult{}, ErrUnknownAgent
	}
	return loop.Tick(ctx)
}

// Wait blocks until every loop has returned.
func (m *Manager) Wait() error {
	return m.group.Wait()
}
