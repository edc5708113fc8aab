package inmemory

import (
	"sync"

	"mearth/internal/domain/game"
)

type Snapshot struct {
	ActionTotal        uint64            `json:"action_total"`
	ActionSuccess      uint64            `json:"action_success"`
	ActionRejected     uint64            `json:"action_rejected"`
	ActionConflict     uint64            `json:"action_conflict"`
	ActionFailure      uint64            `json:"action_failure"`
	ByKind             map[string]uint64 `json:"by_kind"`
	ByRejectReason     map[string]uint64 `json:"by_reject_reason"`
	Ticks              uint64            `json:"ticks"`
	DecisionRetries    uint64            `json:"decision_retries"`
	PostFailures       uint64            `json:"post_failures"`
	SettlementFailures uint64            `json:"settlement_failures"`
	SinkFailures       uint64            `json:"sink_failures"`
}

// Recorder counts action and loop outcomes. It satisfies both
// ports.ActionMetrics and ports.LoopMetrics.
type Recorder struct {
	mu          sync.Mutex
	success     uint64
	rejected    uint64
	conflict    uint64
	failure     uint64
	byKind      map[string]uint64
	byReason    map[string]uint64
	ticks       uint64
	retries     uint64
	postFails   uint64
	settleFails uint64
	sinkFails   uint64
}

func NewRecorder() *Recorder {
	return &Recorder{
		byKind:   map[string]uint64{},
		byReason: map[string]uint64{},
	}
}

func (r *Recorder) RecordSuccess(kind game.ActionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success++
	r.byKind[string(kind)]++
}

func (r *Recorder) RecordRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
	r.byReason[reason]++
}

func (r *Recorder) RecordConflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflict++
}

func (r *Recorder) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure++
}

func (r *Recorder) RecordTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
}

func (r *Recorder) RecordDecisionRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *Recorder) RecordPostFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postFails++
}

func (r *Recorder) RecordSettlementFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settleFails++
}

func (r *Recorder) RecordSinkFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinkFails++
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		ActionSuccess:      r.success,
		ActionRejected:     r.rejected,
		ActionConflict:     r.conflict,
		ActionFailure:      r.failure,
		ActionTotal:        r.success + r.rejected + r.conflict + r.failure,
		ByKind:             make(map[string]uint64, len(r.byKind)),
		ByRejectReason:     make(map[string]uint64, len(r.byReason)),
		Ticks:              r.ticks,
		DecisionRetries:    r.retries,
		PostFailures:       r.postFails,
		SettlementFailures: r.settleFails,
		SinkFailures:       r.sinkFails,
	}
	for k, v := range r.byKind {
		out.ByKind[k] = v
	}
	for k, v := range r.byReason {
		out.ByRejectReason[k] = v
	}
	return out
}

func (r *Recorder) SnapshotAny() any {
	return r.Snapshot()
}
