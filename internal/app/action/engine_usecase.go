package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var (
	ErrInvalidRequest    = errors.New("invalid action request")
	ErrConflictExhausted = errors.New("action conflicted too many times")
	errNilTerrain        = errors.New("terrain map is required")
)

const maxConflictRetries = 3

type UseCase struct {
	TxManager ports.TxManager
	StateRepo ports.AgentStateRepository
	EventRepo ports.EventRepository
	Outcomes  ports.BattleOutcomeRepository
	Terrain   *world.TerrainMap
	Rules     game.Rules
	Dice      game.Roller
	Metrics   ports.ActionMetrics
	Now       func() time.Time
	NewID     func() string
	// Proposals keeps issued alliance proposals until they are answered.
	Proposals ports.Cache
}

// Execute validates and applies one action inside a transaction. Both sides
// of a two-agent action are written in the same transaction with optimistic
// versions; a lost race is retried from a fresh read.
func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	ac, err := u.ValidateRequest(req)
	if err != nil {
		return Response{}, err
	}
	if u.Terrain == nil {
		return Response{}, errNilTerrain
	}

	var out Response
	err = u.inTxWithRetry(ctx, func(txCtx context.Context) error {
		run := ac
		run.In.NowAt = u.now()
		if err := u.lockAgents(txCtx, ac.In.AgentID, targetIDOf(ac.In.Req.Action)); err != nil {
			return err
		}
		if err := u.LoadActor(txCtx, &run); err != nil {
			return err
		}
		if err := u.ResolveSpec(&run); err != nil {
			return err
		}
		if err := u.LoadTarget(txCtx, &run); err != nil {
			return err
		}
		if err := run.View.Spec.Handler.ExecuteActionAndPlan(txCtx, u, &run); err != nil {
			return err
		}
		if err := u.Persist(txCtx, &run); err != nil {
			return err
		}
		out = u.BuildResponse(&run)
		return nil
	})
	if err != nil {
		u.recordError(err)
		if errors.Is(err, ports.ErrConflict) {
			return Response{}, errors.Join(ErrConflictExhausted, err)
		}
		return Response{}, err
	}
	if out.ResultCode == ResultProposed && out.Proposal != nil {
		if err := u.rememberProposal(ctx, *out.Proposal); err != nil {
			return Response{}, fmt.Errorf("store proposal: %w", err)
		}
	}
	if u.Metrics != nil {
		u.Metrics.RecordSuccess(out.Kind)
	}
	return out, nil
}

// inTxWithRetry reruns fn in a fresh transaction when a versioned save loses
// a race.
func (u UseCase) inTxWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = u.TxManager.RunInTx(ctx, fn)
		if !errors.Is(err, ports.ErrConflict) {
			return err
		}
		if u.Metrics != nil {
			u.Metrics.RecordConflict()
		}
	}
	return err
}

// lockAgents takes the store's row locks for every agent a transaction will
// write, before the first read. Stores without row locks skip it.
func (u UseCase) lockAgents(ctx context.Context, agentIDs ...string) error {
	locker, ok := u.StateRepo.(ports.AgentLocker)
	if !ok {
		return nil
	}
	ids := agentIDs[:0:0]
	for _, id := range agentIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return locker.LockAgents(ctx, ids...)
}

func targetIDOf(a game.Action) string {
	id, _ := game.TargetOf(a)
	return normalizeAgentID(id)
}

func (u UseCase) recordError(err error) {
	if u.Metrics == nil {
		return
	}
	switch {
	case game.IsValidation(err):
		u.Metrics.RecordRejected(game.Reason(err))
	case errors.Is(err, ports.ErrConflict):
	default:
		u.Metrics.RecordFailure()
	}
}

func (u UseCase) now() time.Time {
	if u.Now == nil {
		return time.Now()
	}
	return u.Now()
}

func (u UseCase) newID() string {
	if u.NewID == nil {
		return uuid.NewString()
	}
	return u.NewID()
}

func (u UseCase) dice() game.Roller {
	if u.Dice == nil {
		return game.NewRandomRoller(uint64(time.Now().UnixNano()))
	}
	return u.Dice
}
