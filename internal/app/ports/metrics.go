package ports

import "mearth/internal/domain/game"

type ActionMetrics interface {
	RecordSuccess(kind game.ActionKind)
	RecordRejected(reason string)
	RecordConflict()
	RecordFailure()
}

type LoopMetrics interface {
	RecordTick()
	RecordDecisionRetry()
	RecordPostFailure()
	RecordSettlementFailure()
	RecordSinkFailure()
}
