package inmemory

import (
	"testing"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
)

var (
	_ ports.ActionMetrics = (*Recorder)(nil)
	_ ports.LoopMetrics   = (*Recorder)(nil)
)

func TestRecorderSnapshot(t *testing.T) {
	r := NewRecorder()
	r.RecordSuccess(game.ActionMove)
	r.RecordSuccess(game.ActionBattle)
	r.RecordRejected("cooldown_active")
	r.RecordConflict()
	r.RecordFailure()

	s := r.Snapshot()
	if s.ActionTotal != 5 {
		t.Fatalf("expected total 5, got %d", s.ActionTotal)
	}
	if s.ActionSuccess != 2 {
		t.Fatalf("expected success 2, got %d", s.ActionSuccess)
	}
	if s.ActionConflict != 1 || s.ActionFailure != 1 || s.ActionRejected != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.ByKind[string(game.ActionMove)] != 1 || s.ByKind[string(game.ActionBattle)] != 1 {
		t.Fatalf("unexpected by-kind counts: %+v", s.ByKind)
	}
	if s.ByRejectReason["cooldown_active"] != 1 {
		t.Fatalf("expected cooldown_active count 1")
	}
}

func TestRecorderLoopCounters(t *testing.T) {
	r := NewRecorder()
	r.RecordTick()
	r.RecordTick()
	r.RecordDecisionRetry()
	r.RecordPostFailure()
	r.RecordSettlementFailure()
	r.RecordSinkFailure()

	s := r.Snapshot()
	if s.Ticks != 2 || s.DecisionRetries != 1 || s.PostFailures != 1 || s.SettlementFailures != 1 || s.SinkFailures != 1 {
		t.Fatalf("unexpected loop counters: %+v", s)
	}
	if s.ActionTotal != 0 {
		t.Fatalf("loop counters must not count as actions")
	}
}
