package gormrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"mearth/internal/adapter/repo/gorm/model"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AgentStateRepo struct {
	db *gorm.DB
}

func NewAgentStateRepo(db *gorm.DB) AgentStateRepo {
	return AgentStateRepo{db: db}
}

func (r AgentStateRepo) GetByAgentID(ctx context.Context, agentID string) (game.Agent, error) {
	var m model.AgentState
	db := forUpdate(ctx, getDBFromCtx(ctx, r.db))
	if err := db.Where("agent_id = ?", agentID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return game.Agent{}, ports.ErrNotFound
		}
		return game.Agent{}, err
	}
	return toAgent(m)
}

// LockAgents row-locks agentIDs in ascending order within the current
// transaction. Outside a transaction it does nothing.
func (r AgentStateRepo) LockAgents(ctx context.Context, agentIDs ...string) error {
	tx, ok := txFromCtx(ctx)
	if !ok {
		return nil
	}
	ids := lockOrder(agentIDs)
	if len(ids) == 0 {
		return nil
	}
	var locked []string
	return tx.Model(&model.AgentState{}).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("agent_id IN ?", ids).
		Order("agent_id").
		Pluck("agent_id", &locked).Error
}

func lockOrder(agentIDs []string) []string {
	seen := make(map[string]bool, len(agentIDs))
	out := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r AgentStateRepo) SaveWithVersion(ctx context.Context, state game.Agent, expectedVersion int64) error {
	m, err := fromAgent(state)
	if err != nil {
		return err
	}
	db := getDBFromCtx(ctx, r.db)
	if expectedVersion == 0 {
		if err := db.Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ports.ErrConflict
			}
			return err
		}
		return nil
	}

	updates := map[string]any{
		"name":               m.Name,
		"character_key":      m.Character,
		"x":                  m.X,
		"y":                  m.Y,
		"tokens":             m.Tokens,
		"alive":              m.Alive,
		"death_cause":        m.DeathCause,
		"alliances":          m.Alliances,
		"alliance_cooldowns": m.AllianceCooldowns,
		"battle_cooldowns":   m.BattleCooldowns,
		"last_move_at":       m.LastMoveAt,
		"last_battle_at":     m.LastBattleAt,
		"last_alliance_at":   m.LastAllianceAt,
		"version":            m.Version,
		"updated_at":         m.UpdatedAt,
	}
	res := db.Model(&model.AgentState{}).
		Where("agent_id = ? AND version = ?", state.ID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ports.ErrConflict
	}
	return nil
}

func (r AgentStateRepo) ListAll(ctx context.Context) ([]game.Agent, error) {
	var rows []model.AgentState
	if err := getDBFromCtx(ctx, r.db).Order("agent_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAgents(rows)
}

// Nearby narrows by bounding box in SQL and by Euclidean distance here.
func (r AgentStateRepo) Nearby(ctx context.Context, center world.Position, radius float64) ([]game.Agent, error) {
	span := int(math.Ceil(radius))
	var rows []model.AgentState
	err := getDBFromCtx(ctx, r.db).
		Where("x BETWEEN ? AND ? AND y BETWEEN ? AND ?", center.X-span, center.X+span, center.Y-span, center.Y+span).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	agents, err := toAgents(rows)
	if err != nil {
		return nil, err
	}
	out := agents[:0]
	for _, a := range agents {
		if world.Distance(center, a.Position) <= radius {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return world.Distance(center, out[i].Position) < world.Distance(center, out[j].Position)
	})
	return out, nil
}

func toAgents(rows []model.AgentState) ([]game.Agent, error) {
	out := make([]game.Agent, 0, len(rows))
	for _, m := range rows {
		a, err := toAgent(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func toAgent(m model.AgentState) (game.Agent, error) {
	a := game.NewAgent(m.AgentID, m.Name, m.Character, world.Position{X: int(m.X), Y: int(m.Y)}, uint64(m.Tokens))
	a.Alive = m.Alive
	a.DeathCause = game.DeathCause(m.DeathCause)
	a.Version = m.Version
	a.UpdatedAt = m.UpdatedAt
	a.LastMoveAt = derefTime(m.LastMoveAt)
	a.LastBattleAt = derefTime(m.LastBattleAt)
	a.LastAllianceAt = derefTime(m.LastAllianceAt)
	for _, f := range []struct {
		raw []byte
		dst *map[string]time.Time
	}{
		{m.Alliances, &a.Alliances},
		{m.AllianceCooldowns, &a.AllianceCooldownUntil},
		{m.BattleCooldowns, &a.BattleCooldownUntil},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return game.Agent{}, fmt.Errorf("decode agent %s: %w", m.AgentID, err)
		}
	}
	return a, nil
}

func fromAgent(a game.Agent) (model.AgentState, error) {
	if a.Tokens > math.MaxInt64 {
		return model.AgentState{}, fmt.Errorf("agent %s: token balance overflows storage", a.ID)
	}
	alliances, err := encodeTimes(a.Alliances)
	if err != nil {
		return model.AgentState{}, err
	}
	allianceCD, err := encodeTimes(a.AllianceCooldownUntil)
	if err != nil {
		return model.AgentState{}, err
	}
	battleCD, err := encodeTimes(a.BattleCooldownUntil)
	if err != nil {
		return model.AgentState{}, err
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return model.AgentState{
		AgentID:           a.ID,
		Name:              a.Name,
		Character:         a.Character,
		X:                 int32(a.Position.X),
		Y:                 int32(a.Position.Y),
		Tokens:            int64(a.Tokens),
		Alive:             a.Alive,
		DeathCause:        string(a.DeathCause),
		Alliances:         alliances,
		AllianceCooldowns: allianceCD,
		BattleCooldowns:   battleCD,
		LastMoveAt:        timePtr(a.LastMoveAt),
		LastBattleAt:      timePtr(a.LastBattleAt),
		LastAllianceAt:    timePtr(a.LastAllianceAt),
		Version:           a.Version,
		UpdatedAt:         updated,
	}, nil
}

func encodeTimes(m map[string]time.Time) ([]byte, error) {
	if m == nil {
		m = map[string]time.Time{}
	}
	return json.Marshal(m)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
