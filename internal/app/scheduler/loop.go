package scheduler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"mearth/internal/app/action"
	"mearth/internal/app/observe"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
)

var (
	ErrLoopStopped  = errors.New("loop stopped")
	ErrUnknownAgent = errors.New("unknown agent")

	errNoDecisionSource = errors.New("no decision source configured")
)

const (
	DefaultIntervalMin     = 30 * time.Minute
	DefaultIntervalMax     = 60 * time.Minute
	DefaultDecisionTimeout = 2 * time.Minute

	lastTickTTL = 7 * 24 * time.Hour
)

func LastTickKey(agentID string) string { return "agent/" + agentID + "/last_tick" }
func LastPostKey(agentID string) string { return "agent/" + agentID + "/last_post" }

// Deps are the collaborators shared by every agent loop.
type Deps struct {
	Observe    observe.UseCase
	Actions    action.UseCase
	Decider    ports.DecisionSource
	Poster     ports.Poster
	Settlement ports.Settlement
	Cache      ports.Cache
	Sinks      []ports.EventSink
	Metrics    ports.LoopMetrics

	Retry           RetryPolicy
	IntervalMin     time.Duration
	IntervalMax     time.Duration
	DecisionTimeout time.Duration
	Seed            uint64

	Logger *slog.Logger
	Now    func() time.Time
	// Dice overrides the per-loop interval roller.
	Dice game.Roller
}

// TickResult describes one completed tick.
type TickResult struct {
	Outcome  Outcome            `json:"outcome"`
	Reason   string             `json:"reason,omitempty"`
	Response *action.Response   `json:"response,omitempty"`
	Events   []game.DomainEvent `json:"events"`
	PostID   string             `json:"post_id,omitempty"`
}

// Loop drives a single agent. Ticks never overlap.
type Loop struct {
	agentID string
	deps    Deps
	dice    game.Roller
	logger  *slog.Logger

	tickMu sync.Mutex

	mu    sync.Mutex
	state State

	// halt ends with Stop. Every tick context is bound to it.
	halt   context.Context
	cancel context.CancelFunc
	// applyMu orders Stop after any store write already underway.
	applyMu sync.RWMutex
}

func NewLoop(agentID string, deps Deps) *Loop {
	dice := deps.Dice
	if dice == nil {
		h := fnv.New64a()
		_, _ = h.Write([]byte(agentID))
		seed := deps.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		dice = game.NewRandomRoller(seed ^ h.Sum64())
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	halt, cancel := context.WithCancel(context.Background())
	return &Loop{
		agentID: agentID,
		deps:    deps,
		dice:    dice,
		logger:  logger.With("agent_id", agentID),
		state:   StateIdle,
		halt:    halt,
		cancel:  cancel,
	}
}

func (l *Loop) AgentID() string { return l.agentID }

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return
	}
	l.state = s
}

// Stop cancels any decision or alliance call in flight and waits for a
// store write already underway. Nothing is applied once Stop returns.
func (l *Loop) Stop() {
	l.cancel()
	l.applyMu.Lock()
	l.setState(StateStopped)
	l.applyMu.Unlock()
}

// bind derives a context that also ends when the loop is stopped.
func (l *Loop) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	unhook := context.AfterFunc(l.halt, cancel)
	return ctx, func() {
		unhook()
		cancel()
	}
}

// applying runs a store write unless the loop is stopped.
func (l *Loop) applying(fn func() error) error {
	l.applyMu.RLock()
	defer l.applyMu.RUnlock()
	if l.State() == StateStopped {
		return ErrLoopStopped
	}
	return fn()
}

// Run ticks until ctx ends, Stop is called, the agent dies or a tick fails
// fatally. Only the fatal case returns an error.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.firstDelay(ctx))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return nil
		case <-l.halt.Done():
			return nil
		case <-timer.C:
		}

		res, err := l.Tick(ctx)
		switch {
		case errors.Is(err, ErrLoopStopped):
			return nil
		case err != nil && ctx.Err() != nil:
			l.Stop()
			return nil
		case err != nil:
			l.Stop()
			l.logger.Error("agent loop stopped", "err", err)
			return fmt.Errorf("agent %s: %w", l.agentID, err)
		}
		if res.Outcome == OutcomeAgentDead || l.State() == StateStopped {
			l.Stop()
			return nil
		}
		timer.Reset(l.nextInterval())
	}
}

func (l *Loop) nextInterval() time.Duration {
	lo, hi := l.deps.IntervalMin, l.deps.IntervalMax
	if lo <= 0 {
		lo = DefaultIntervalMin
	}
	if hi <= 0 {
		hi = DefaultIntervalMax
	}
	if hi < lo {
		hi = lo
	}
	return lo + time.Duration(l.dice.Float64()*float64(hi-lo))
}

// spread staggers the first tick of agents with no recorded tick across
// [0, IntervalMax).
func (l *Loop) spread() time.Duration {
	hi := l.deps.IntervalMax
	if hi <= 0 {
		hi = DefaultIntervalMax
	}
	return time.Duration(l.dice.Float64() * float64(hi))
}

// firstDelay waits out whatever remains of an interval started before a
// restart.
func (l *Loop) firstDelay(ctx context.Context) time.Duration {
	if l.deps.Cache == nil {
		return l.spread()
	}
	raw, ok, err := l.deps.Cache.Get(ctx, LastTickKey(l.agentID))
	if err != nil {
		l.logger.Warn("read last tick", "err", err)
		return l.spread()
	}
	if !ok {
		return l.spread()
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return l.spread()
	}
	elapsed := l.now().Sub(last)
	interval := l.nextInterval()
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// Tick runs one observe, decide, apply and report cycle.
func (l *Loop) Tick(ctx context.Context) (TickResult, error) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	if l.State() == StateStopped {
		return TickResult{}, ErrLoopStopped
	}
	if l.deps.Decider == nil {
		return TickResult{}, errNoDecisionSource
	}
	defer l.setState(StateIdle)
	ctx, cancel := l.bind(ctx)
	defer cancel()

	var expired []game.DomainEvent
	err := l.applying(func() error {
		var err error
		expired, err = l.deps.Actions.ExpireAlliances(ctx, l.agentID)
		return err
	})
	if errors.Is(err, ErrLoopStopped) {
		return TickResult{}, err
	}
	if err != nil {
		return TickResult{}, l.storeError("expire alliances", err)
	}
	obsResp, err := l.deps.Observe.Execute(ctx, observe.Request{AgentID: l.agentID})
	if err != nil {
		return TickResult{}, l.storeError("observe", err)
	}
	obs := obsResp.Observation
	if !obs.Self.Alive {
		l.Stop()
		return TickResult{Outcome: OutcomeAgentDead, Events: expired}, nil
	}

	l.setState(StateAwaitingDecision)
	decision, err := l.decide(ctx, obs)
	if err != nil {
		if l.State() == StateStopped {
			return TickResult{}, ErrLoopStopped
		}
		if ctx.Err() != nil {
			return TickResult{}, ctx.Err()
		}
		l.logger.Warn("no decision this tick", "err", err)
		l.finish(ctx, expired)
		return TickResult{Outcome: OutcomeDecisionFailed, Reason: err.Error(), Events: expired}, nil
	}

	l.setState(StateValidating)
	var resp action.Response
	err = l.applying(func() error {
		var err error
		resp, err = l.deps.Actions.Execute(ctx, action.Request{AgentID: l.agentID, Action: decision.Action})
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrLoopStopped):
		return TickResult{}, err
	case game.IsValidation(err):
		return l.rejected(ctx, decision, expired, err), nil
	case errors.Is(err, action.ErrConflictExhausted):
		l.logger.Warn("action lost to concurrent writers", "kind", decision.Action.Kind(), "err", err)
		l.finish(ctx, expired)
		return TickResult{Outcome: OutcomeConflict, Events: expired}, nil
	default:
		return TickResult{}, fmt.Errorf("apply %s: %w", decision.Action.Kind(), err)
	}

	l.setState(StateApplying)
	if resp.ResultCode == action.ResultProposed && resp.Proposal != nil {
		resp, err = l.answerProposal(ctx, resp)
		if err != nil {
			return TickResult{}, err
		}
	}
	events := append(append([]game.DomainEvent{}, expired...), resp.Events...)
	events = append(events, l.settle(ctx, resp)...)

	l.setState(StateReporting)
	summary := decision.PublicText
	if summary == "" {
		summary = describe(resp)
	}
	postID, degraded := l.post(ctx, resp.UpdatedState, summary)
	events = append(events, degraded...)

	l.finish(ctx, events)
	l.logger.Info("tick applied", "kind", resp.Kind, "result", resp.ResultCode, "events", len(events))

	out := TickResult{Outcome: OutcomeApplied, Response: &resp, Events: events, PostID: postID}
	if !resp.UpdatedState.Alive {
		l.Stop()
	}
	return out, nil
}

func (l *Loop) storeError(op string, err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrUnknownAgent)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (l *Loop) decide(ctx context.Context, obs game.Observation) (game.Decision, error) {
	var out game.Decision
	op := func() error {
		callCtx, cancel := l.withTimeout(ctx)
		defer cancel()
		d, err := l.deps.Decider.Decide(callCtx, obs)
		if err != nil {
			if game.IsValidation(err) {
				return Permanent(err)
			}
			return err
		}
		if d.Action == nil {
			return Permanent(fmt.Errorf("%w: decision without action", action.ErrInvalidRequest))
		}
		out = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if l.deps.Metrics != nil {
			l.deps.Metrics.RecordDecisionRetry()
		}
		l.logger.Warn("decision source failed, retrying", "err", err, "wait", wait)
	}
	if err := l.deps.Retry.Do(ctx, op, notify); err != nil {
		return game.Decision{}, err
	}
	return out, nil
}

func (l *Loop) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := l.deps.DecisionTimeout
	if timeout <= 0 {
		timeout = DefaultDecisionTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (l *Loop) rejected(ctx context.Context, decision game.Decision, expired []game.DomainEvent, cause error) TickResult {
	reason := game.Reason(cause)
	l.logger.Info("action rejected", "kind", decision.Action.Kind(), "reason", reason, "err", cause)
	ev := game.DomainEvent{
		Type:       game.EventActionRejected,
		OccurredAt: l.now(),
		Payload: map[string]any{
			"agent_id": l.agentID,
			"kind":     string(decision.Action.Kind()),
			"reason":   reason,
			"error":    cause.Error(),
		},
	}
	l.record(ctx, ev)
	events := append(append([]game.DomainEvent{}, expired...), ev)
	l.finish(ctx, events)
	return TickResult{Outcome: OutcomeRejected, Reason: reason, Events: events}
}

// answerProposal asks the proposed agent's decision source and forms or
// refuses the alliance. No store lock is held while waiting for the answer.
func (l *Loop) answerProposal(ctx context.Context, proposed action.Response) (action.Response, error) {
	proposal := *proposed.Proposal
	reason := "declined"
	accept := false

	targetObs, err := l.deps.Observe.Execute(ctx, observe.Request{AgentID: proposal.Proposed})
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return action.Response{}, fmt.Errorf("observe alliance target: %w", err)
	}
	if err == nil {
		callCtx, cancel := l.withTimeout(ctx)
		accept, err = l.deps.Decider.RespondToAlliance(callCtx, proposal, targetObs.Observation)
		cancel()
		if err != nil {
			l.logger.Warn("alliance response failed", "target", proposal.Proposed, "err", err)
			accept, reason = false, "no_response"
		}
	} else {
		reason = "target_not_found"
	}

	var resp action.Response
	if accept {
		err = l.applying(func() error {
			var err error
			resp, err = l.deps.Actions.AcceptAlliance(ctx, proposal)
			return err
		})
		if err == nil {
			resp.Events = append(append([]game.DomainEvent{}, proposed.Events...), resp.Events...)
			return resp, nil
		}
		if !game.IsValidation(err) {
			return action.Response{}, fmt.Errorf("accept alliance: %w", err)
		}
		reason = game.Reason(err)
	}
	err = l.applying(func() error {
		var err error
		resp, err = l.deps.Actions.RejectAlliance(ctx, proposal, reason)
		return err
	})
	if err != nil {
		return action.Response{}, fmt.Errorf("reject alliance: %w", err)
	}
	resp.Events = append(append([]game.DomainEvent{}, proposed.Events...), resp.Events...)
	return resp, nil
}

// settle submits the applied transition to the ledger. Failures do not undo
// the local state; they come back as settlement_failed events.
func (l *Loop) settle(ctx context.Context, resp action.Response) []game.DomainEvent {
	if l.deps.Settlement == nil {
		return nil
	}
	now := l.now()
	var (
		kind string
		err  error
	)
	switch resp.Kind {
	case game.ActionMove:
		if resp.Move == nil {
			return nil
		}
		kind = "move"
		_, err = l.deps.Settlement.SubmitMove(ctx, ports.MoveSettlement{
			AgentID: resp.AgentID,
			From:    resp.Move.From,
			To:      resp.Move.To,
			Terrain: resp.Move.Terrain,
			Died:    resp.Move.Died,
			At:      now,
		})
	case game.ActionBattle:
		if resp.Battle == nil {
			return nil
		}
		kind = "battle"
		_, err = l.deps.Settlement.SubmitBattle(ctx, *resp.Battle)
	case game.ActionAlliance:
		if resp.ResultCode != action.ResultOK || resp.Proposal == nil {
			return nil
		}
		kind = "alliance"
		_, err = l.deps.Settlement.SubmitAlliance(ctx, ports.AllianceSettlement{
			Kind:   ports.AllianceSettlementFormed,
			First:  resp.Proposal.Proposer,
			Second: resp.Proposal.Proposed,
			At:     now,
		})
	case game.ActionBreakAlliance:
		if resp.Target == nil {
			return nil
		}
		kind = "alliance"
		_, err = l.deps.Settlement.SubmitAlliance(ctx, ports.AllianceSettlement{
			Kind:   ports.AllianceSettlementBroken,
			First:  resp.AgentID,
			Second: resp.Target.ID,
			At:     now,
		})
	default:
		return nil
	}
	if err == nil {
		return nil
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.RecordSettlementFailure()
	}
	l.logger.Warn("settlement failed", "kind", kind, "err", err)
	ev := game.DomainEvent{
		Type:       game.EventSettlementFailed,
		OccurredAt: now,
		Payload:    map[string]any{"agent_id": l.agentID, "kind": kind, "error": err.Error()},
	}
	l.record(ctx, ev)
	return []game.DomainEvent{ev}
}

func (l *Loop) post(ctx context.Context, agent game.Agent, summary string) (string, []game.DomainEvent) {
	if l.deps.Poster == nil {
		return "", nil
	}
	text := StatusText(agent, l.deps.Actions.Terrain.TerrainAt(agent.Position), summary)
	receipt, err := l.deps.Poster.Post(ctx, text)
	if err != nil {
		if l.deps.Metrics != nil {
			l.deps.Metrics.RecordPostFailure()
		}
		l.logger.Warn("post failed", "err", err)
		ev := game.DomainEvent{
			Type:       game.EventPostFailed,
			OccurredAt: l.now(),
			Payload:    map[string]any{"agent_id": l.agentID, "text": text, "error": err.Error()},
		}
		l.record(ctx, ev)
		return "", []game.DomainEvent{ev}
	}
	if l.deps.Cache != nil && receipt.ID != "" {
		if err := l.deps.Cache.Set(ctx, LastPostKey(l.agentID), receipt.ID, lastTickTTL); err != nil {
			l.logger.Warn("cache last post", "err", err)
		}
	}
	return receipt.ID, nil
}

// record appends an event produced outside the action engine.
func (l *Loop) record(ctx context.Context, ev game.DomainEvent) {
	if l.deps.Actions.EventRepo == nil {
		return
	}
	if err := l.deps.Actions.EventRepo.Append(ctx, l.agentID, []game.DomainEvent{ev}); err != nil {
		l.logger.Warn("record event", "type", ev.Type, "err", err)
	}
}

// finish publishes the tick's events and stamps the tick time.
func (l *Loop) finish(ctx context.Context, events []game.DomainEvent) {
	if len(events) > 0 {
		for _, sink := range l.deps.Sinks {
			if err := sink.Publish(ctx, l.agentID, events); err != nil {
				if l.deps.Metrics != nil {
					l.deps.Metrics.RecordSinkFailure()
				}
				l.logger.Warn("publish events", "sink", fmt.Sprintf("%T", sink), "err", err)
			}
		}
	}
	if l.deps.Cache != nil {
		stamp := l.now().UTC().Format(time.RFC3339Nano)
		if err := l.deps.Cache.Set(ctx, LastTickKey(l.agentID), stamp, lastTickTTL); err != nil {
			l.logger.Warn("cache last tick", "err", err)
		}
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.RecordTick()
	}
}

func (l *Loop) now() time.Time {
	if l.deps.Now != nil {
		return l.deps.Now()
	}
	return time.Now()
}
