package gormrepo

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"mearth/internal/app/action"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"

	"gorm.io/gorm"
)

func requireDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("MEARTH_DB_DSN")
	if dsn == "" {
		t.Skip("MEARTH_DB_DSN is required for integration test")
	}
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if _, err := ApplyMigrations(context.Background(), db, MigrationSource("")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestAgentStateRepo_RoundTripMapsAndDeath(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	agentID := "it-state-roundtrip"
	_ = db.Exec("DELETE FROM agent_states WHERE agent_id = ?", agentID).Error

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := game.NewAgent(agentID, "Round Trip", "wanderleaf", world.Position{X: 2, Y: 3}, 420)
	seed.Alliances["ally"] = now.Add(time.Hour)
	seed.BattleCooldownUntil["foe"] = now.Add(time.Minute)
	seed.Alive = false
	seed.DeathCause = game.DeathCauseBattle
	seed.LastMoveAt = now
	seed.Version = 1

	repo := NewAgentStateRepo(db)
	if err := repo.SaveWithVersion(ctx, seed, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.GetByAgentID(ctx, agentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Alliances["ally"].Equal(now.Add(time.Hour)) || !got.BattleCooldownUntil["foe"].Equal(now.Add(time.Minute)) {
		t.Fatalf("maps did not round trip: %+v", got)
	}
	if got.Alive || got.DeathCause != game.DeathCauseBattle || got.Tokens != 420 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if !got.LastMoveAt.Equal(now) || !got.LastBattleAt.IsZero() {
		t.Fatalf("unexpected timestamps: move=%v battle=%v", got.LastMoveAt, got.LastBattleAt)
	}
}

func TestAgentStateRepo_VersionConflict(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	agentID := "it-state-conflict"
	_ = db.Exec("DELETE FROM agent_states WHERE agent_id = ?", agentID).Error

	repo := NewAgentStateRepo(db)
	a := game.NewAgent(agentID, agentID, "", world.Position{}, 10)
	a.Version = 1
	if err := repo.SaveWithVersion(ctx, a, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SaveWithVersion(ctx, a, 0); !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}
	a.Version = 2
	if err := repo.SaveWithVersion(ctx, a, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	a.Version = 3
	if err := repo.SaveWithVersion(ctx, a, 1); !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestAgentStateRepo_Nearby(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	_ = db.Exec("DELETE FROM agent_states WHERE agent_id LIKE 'it-near-%'").Error

	repo := NewAgentStateRepo(db)
	for _, a := range []game.Agent{
		game.NewAgent("it-near-a", "a", "", world.Position{X: 100, Y: 100}, 1),
		game.NewAgent("it-near-b", "b", "", world.Position{X: 103, Y: 104}, 1),
		game.NewAgent("it-near-c", "c", "", world.Position{X: 104, Y: 104}, 1),
	} {
		a.Version = 1
		if err := repo.SaveWithVersion(ctx, a, 0); err != nil {
			t.Fatalf("seed %s: %v", a.ID, err)
		}
	}
	got, err := repo.Nearby(ctx, world.Position{X: 100, Y: 100}, 5)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].ID != "it-near-a" || got[1].ID != "it-near-b" {
		t.Fatalf("unexpected nearby result: %+v", got)
	}
}

func TestEventRepo_AppendAndListByAgentID(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	agentID := "it-event-list"
	_ = db.Exec("DELETE FROM domain_events WHERE agent_id = ?", agentID).Error

	repo := NewEventRepo(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := repo.Append(ctx, agentID, []game.DomainEvent{
		{Type: game.EventAgentMoved, OccurredAt: base, Payload: map[string]any{"x": 1}},
		{Type: game.EventBattleResolved, OccurredAt: base.Add(time.Minute), Payload: map[string]any{"winner": agentID}},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := repo.ListByAgentID(ctx, agentID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Type != game.EventBattleResolved || got[0].Payload["winner"] != agentID {
		t.Fatalf("unexpected events: %+v", got)
	}
	empty, err := repo.ListByAgentID(ctx, "it-event-none", 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}
}

func TestOutcomeRepo_PrunesOutsideRetention(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	_ = db.Exec("DELETE FROM battle_outcomes WHERE battle_id LIKE 'it-outcome-%'").Error

	repo := NewOutcomeRepo(db, 24*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base.Add(-25 * time.Hour), base} {
		o := game.BattleOutcome{BattleID: "it-outcome-" + string(rune('a'+i)), Attacker: "x", Defender: "y", Winner: "x", Loser: "y", EndedAt: at}
		if err := repo.Append(ctx, o); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := repo.ListSince(ctx, base.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, o := range got {
		if o.BattleID == "it-outcome-a" {
			t.Fatalf("expected old outcome pruned, got %+v", got)
		}
	}
}

func TestKVCache_SetGetExpire(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	cache := NewKVCache(db)
	_ = cache.Delete(ctx, "it-kv")

	if err := cache.Set(ctx, "it-kv", "one", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Set(ctx, "it-kv", "two", time.Hour); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := cache.Get(ctx, "it-kv")
	if err != nil || !ok || v != "two" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, _ := cache.Get(ctx, "it-kv"); ok {
		t.Fatalf("expected expired entry")
	}
}

func TestTxManager_RunInTxCommitAndRollback(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	agentID := "it-tx-manager"
	_ = db.Exec("DELETE FROM agent_states WHERE agent_id IN (?, ?)", agentID, agentID+"-rb").Error

	txManager := NewTxManager(db)
	stateRepo := NewAgentStateRepo(db)
	fresh := func(id string) game.Agent {
		a := game.NewAgent(id, id, "", world.Position{}, 100)
		a.Version = 1
		return a
	}

	commitErr := txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return stateRepo.SaveWithVersion(txCtx, fresh(agentID), 0)
	})
	if commitErr != nil {
		t.Fatalf("commit tx failed: %v", commitErr)
	}
	if _, err := stateRepo.GetByAgentID(ctx, agentID); err != nil {
		t.Fatalf("expected committed state exists, got err=%v", err)
	}

	rollbackErr := txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := stateRepo.SaveWithVersion(txCtx, fresh(agentID+"-rb"), 0); err != nil {
			return err
		}
		return errors.New("force rollback")
	})
	if rollbackErr == nil {
		t.Fatalf("expected rollback error")
	}
	if _, err := stateRepo.GetByAgentID(ctx, agentID+"-rb"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected rollback to remove state, got err=%v", err)
	}
}

func TestAgentStateRepo_CrossedBattlesDoNotDeadlock(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	a, b := "it-crossed-a", "it-crossed-b"
	rules := game.DefaultRules()
	uc := action.UseCase{
		TxManager: NewTxManager(db),
		StateRepo: NewAgentStateRepo(db),
		EventRepo: NewEventRepo(db),
		Outcomes:  NewOutcomeRepo(db, rules.OutcomeRetention),
		Terrain:   world.DefaultMap(),
		Rules:     rules,
		Dice:      game.NewRandomRoller(3),
	}

	for round := 0; round < 5; round++ {
		_ = db.Exec("DELETE FROM agent_states WHERE agent_id IN (?, ?)", a, b).Error
		for i, id := range []string{a, b} {
			s := game.NewAgent(id, id, "", world.Position{X: 1 + i, Y: 1}, 500)
			s.Version = 1
			if err := uc.StateRepo.SaveWithVersion(ctx, s, 0); err != nil {
				t.Fatalf("seed %s: %v", id, err)
			}
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, pair := range [][2]string{{a, b}, {b, a}} {
			wg.Add(1)
			go func(i int, actor, target string) {
				defer wg.Done()
				_, errs[i] = uc.Execute(ctx, action.Request{AgentID: actor, Action: game.BattleAction{Target: target}})
			}(i, pair[0], pair[1])
		}
		wg.Wait()

		applied := 0
		for i, err := range errs {
			switch {
			case err == nil:
				applied++
			case game.IsValidation(err):
			default:
				t.Fatalf("round %d: battle %d failed with a non-validation error: %v", round, i, err)
			}
		}
		if applied != 1 {
			t.Fatalf("round %d: expected exactly one battle to apply, got %d (%v)", round, applied, errs)
		}
	}
}
