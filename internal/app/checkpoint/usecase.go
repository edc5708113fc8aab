package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
)

var ErrInvalidRequest = errors.New("invalid checkpoint request")

const indexKey = "checkpoint/index"

func AgentKey(agentID string) string {
	return "agent/" + agentID + "/checkpoint"
}

// UseCase copies agent state to and from the key-value cache so a process
// restart with an in-memory store can resume where it stopped.
type UseCase struct {
	TxManager ports.TxManager
	StateRepo ports.AgentStateRepository
	Cache     ports.Cache
	TTL       time.Duration
}

type Result struct {
	Saved    []string `json:"saved,omitempty"`
	Restored []string `json:"restored,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
}

func (u UseCase) SaveAll(ctx context.Context) (Result, error) {
	if u.Cache == nil || u.StateRepo == nil {
		return Result{}, ErrInvalidRequest
	}
	agents, err := u.StateRepo.ListAll(ctx)
	if err != nil {
		return Result{}, err
	}
	var out Result
	for _, a := range agents {
		if err := u.save(ctx, a); err != nil {
			return out, err
		}
		out.Saved = append(out.Saved, a.ID)
	}
	if err := u.writeIndex(ctx, out.Saved); err != nil {
		return out, err
	}
	return out, nil
}

func (u UseCase) Save(ctx context.Context, agentID string) error {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" || u.Cache == nil || u.StateRepo == nil {
		return ErrInvalidRequest
	}
	a, err := u.StateRepo.GetByAgentID(ctx, agentID)
	if err != nil {
		return err
	}
	if err := u.save(ctx, a); err != nil {
		return err
	}
	ids, err := u.readIndex(ctx)
	if err != nil {
		return err
	}
	return u.writeIndex(ctx, append(ids, agentID))
}

// RestoreAll writes back every indexed checkpoint that is newer than the
// stored agent. Agents missing from the store are created.
func (u UseCase) RestoreAll(ctx context.Context) (Result, error) {
	if u.Cache == nil || u.StateRepo == nil || u.TxManager == nil {
		return Result{}, ErrInvalidRequest
	}
	ids, err := u.readIndex(ctx)
	if err != nil {
		return Result{}, err
	}
	var out Result
	for _, id := range ids {
		restored, err := u.restore(ctx, id)
		if err != nil {
			return out, err
		}
		if restored {
			out.Restored = append(out.Restored, id)
		} else {
			out.Skipped = append(out.Skipped, id)
		}
	}
	return out, nil
}

func (u UseCase) save(ctx context.Context, a game.Agent) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", a.ID, err)
	}
	return u.Cache.Set(ctx, AgentKey(a.ID), string(raw), u.TTL)
}

func (u UseCase) restore(ctx context.Context, agentID string) (bool, error) {
	raw, ok, err := u.Cache.Get(ctx, AgentKey(agentID))
	if err != nil || !ok {
		return false, err
	}
	var snap game.Agent
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return false, fmt.Errorf("decode checkpoint %s: %w", agentID, err)
	}
	snap = snap.Clone()

	restored := false
	err = u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := u.StateRepo.GetByAgentID(txCtx, agentID)
		if errors.Is(err, ports.ErrNotFound) {
			restored = true
			return u.StateRepo.SaveWithVersion(txCtx, snap, 0)
		}
		if err != nil {
			return err
		}
		if current.Version >= snap.Version {
			return nil
		}
		restored = true
		return u.StateRepo.SaveWithVersion(txCtx, snap, current.Version)
	})
	return restored, err
}

func (u UseCase) readIndex(ctx context.Context) ([]string, error) {
	raw, ok, err := u.Cache.Get(ctx, indexKey)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode checkpoint index: %w", err)
	}
	return ids, nil
}

func (u UseCase) writeIndex(ctx context.Context, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	raw, err := json.Marshal(uniq)
	if err != nil {
		return err
	}
	return u.Cache.Set(ctx, indexKey, string(raw), u.TTL)
}
