package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	sqlitearchive "mearth/internal/adapter/archive/sqlite"
	natsbus "mearth/internal/adapter/bus/nats"
	memcache "mearth/internal/adapter/cache/memory"
	rediscache "mearth/internal/adapter/cache/redis"
	"mearth/internal/adapter/decision/llm"
	"mearth/internal/adapter/decision/scripted"
	wsfeed "mearth/internal/adapter/feed/ws"
	httpadapter "mearth/internal/adapter/http"
	"mearth/internal/adapter/httpclient"
	"mearth/internal/adapter/journal"
	metricsinmem "mearth/internal/adapter/metrics/inmemory"
	staticpersona "mearth/internal/adapter/persona/static"
	"mearth/internal/adapter/poster"
	gormrepo "mearth/internal/adapter/repo/gorm"
	memrepo "mearth/internal/adapter/repo/memory"
	"mearth/internal/adapter/settlement"
	"mearth/internal/app/action"
	"mearth/internal/app/checkpoint"
	"mearth/internal/app/observe"
	"mearth/internal/app/ports"
	"mearth/internal/app/register"
	"mearth/internal/app/replay"
	"mearth/internal/app/scheduler"
	"mearth/internal/app/status"
	"mearth/internal/config"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

const checkpointTTL = 30 * 24 * time.Hour

// runtime is everything a command needs, built once from config.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	terrain *world.TerrainMap
	rules   game.Rules
	now     func() time.Time

	tx       ports.TxManager
	states   ports.AgentStateRepository
	events   ports.EventRepository
	outcomes ports.BattleOutcomeRepository
	cache    ports.Cache
	metrics  *metricsinmem.Recorder

	actions    action.UseCase
	observe    observe.UseCase
	status     status.UseCase
	replay     replay.UseCase
	register   register.UseCase
	checkpoint checkpoint.UseCase

	decider    ports.DecisionSource
	poster     ports.Poster
	settlement ports.Settlement
	sinks      []ports.EventSink
	archive    *sqlitearchive.Archive
	hub        *wsfeed.Hub

	closers []func() error
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (*runtime, error) {
	if now == nil {
		now = time.Now
	}
	rt := &runtime{cfg: cfg, logger: logger, now: now}
	ok := false
	defer func() {
		if !ok {
			rt.close()
		}
	}()

	if err := rt.loadWorld(); err != nil {
		return nil, err
	}
	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}
	if err := rt.openCache(ctx); err != nil {
		return nil, err
	}
	rt.metrics = metricsinmem.NewRecorder()
	dice := game.NewRandomRoller(cfg.Loop.Seed)

	rt.actions = action.UseCase{
		TxManager: rt.tx,
		StateRepo: rt.states,
		EventRepo: rt.events,
		Outcomes:  rt.outcomes,
		Terrain:   rt.terrain,
		Rules:     rt.rules,
		Dice:      dice,
		Metrics:   rt.metrics,
		Now:       rt.now,
		NewID:     uuid.NewString,
		Proposals: rt.cache,
	}
	rt.observe = observe.UseCase{
		StateRepo:        rt.states,
		EventRepo:        rt.events,
		Outcomes:         rt.outcomes,
		Terrain:          rt.terrain,
		Rules:            rt.rules,
		VisibilityRadius: cfg.Loop.VisibilityRadius,
		Now:              rt.now,
	}
	rt.status = status.UseCase{StateRepo: rt.states, Terrain: rt.terrain, Rules: rt.rules, Now: rt.now}
	rt.replay = replay.UseCase{Events: rt.events}
	rt.register = register.UseCase{
		TxManager:     rt.tx,
		StateRepo:     rt.states,
		EventRepo:     rt.events,
		Terrain:       rt.terrain,
		InitialTokens: cfg.Register.InitialTokens,
		SpawnArea:     cfg.Register.SpawnArea,
		Dice:          dice,
		Now:           rt.now,
	}
	rt.checkpoint = checkpoint.UseCase{TxManager: rt.tx, StateRepo: rt.states, Cache: rt.cache, TTL: checkpointTTL}

	if err := rt.buildDecider(dice); err != nil {
		return nil, err
	}
	if err := rt.buildSinks(); err != nil {
		return nil, err
	}
	if err := rt.buildOutbound(); err != nil {
		return nil, err
	}
	ok = true
	return rt, nil
}

func (rt *runtime) loadWorld() error {
	rt.terrain = world.DefaultMap()
	if rt.cfg.MapFile != "" {
		m, err := config.LoadTerrain(rt.cfg.MapFile)
		if err != nil {
			return err
		}
		rt.terrain = m
	}
	rules := game.DefaultRules()
	if rt.cfg.RulesFile != "" {
		loaded, err := config.LoadRules(rt.cfg.RulesFile, rules)
		if err != nil {
			return err
		}
		rules = loaded
	}
	rules, err := rt.cfg.Rules.Apply(rules)
	if err != nil {
		return err
	}
	rt.rules = rules
	return nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	switch rt.cfg.Store.Driver {
	case "postgres":
		db, err := gormrepo.OpenPostgres(rt.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			rt.closers = append(rt.closers, sqlDB.Close)
		}
		applied, err := gormrepo.ApplyMigrations(ctx, db, gormrepo.MigrationSource(rt.cfg.Store.MigrationsDir))
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			rt.logger.Info("applied migrations", "files", applied)
		}
		rt.tx = gormrepo.NewTxManager(db)
		rt.states = gormrepo.NewAgentStateRepo(db)
		rt.events = gormrepo.NewEventRepo(db)
		rt.outcomes = gormrepo.NewOutcomeRepo(db, rt.rules.OutcomeRetention)
		if rt.cfg.Cache.Driver == "store" {
			rt.cache = gormrepo.NewKVCache(db)
		}
	default:
		store := memrepo.NewStore()
		rt.tx = memrepo.NewTxManager(store)
		rt.states = memrepo.NewAgentStateRepo(store)
		rt.events = memrepo.NewEventRepo(store)
		rt.outcomes = memrepo.NewOutcomeRepo(store, rt.rules.OutcomeRetention)
	}
	return nil
}

func (rt *runtime) openCache(ctx context.Context) error {
	if rt.cache != nil {
		return nil
	}
	switch rt.cfg.Cache.Driver {
	case "redis":
		c, err := rediscache.Open(ctx, rt.cfg.Cache.RedisURL, rt.cfg.Cache.Prefix)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		rt.closers = append(rt.closers, c.Close)
		rt.cache = c
	default:
		if rt.cfg.Cache.Driver == "store" {
			rt.logger.Warn("cache driver store needs the postgres store; using memory")
		}
		rt.cache = memcache.New()
	}
	return nil
}

func (rt *runtime) buildDecider(dice game.Roller) error {
	switch rt.cfg.Decision.Source {
	case "llm":
		llmCfg := rt.cfg.Decision.LLM
		client, err := httpclient.New(llmCfg.Timeout)
		if err != nil {
			return err
		}
		rt.decider = llm.New(llm.Config{
			Endpoint:    llmCfg.Endpoint,
			APIKey:      llmCfg.APIKey,
			Model:       llmCfg.Model,
			Temperature: llmCfg.Temperature,
		}, client, staticpersona.Provider{Root: llmCfg.PersonaDir}, rt.logger)
	default:
		rt.decider = scripted.New(rt.terrain, dice)
	}
	return nil
}

func (rt *runtime) buildSinks() error {
	s := rt.cfg.Sinks
	if s.ArchivePath != "" {
		a, err := sqlitearchive.Open(s.ArchivePath)
		if err != nil {
			return err
		}
		rt.archive = a
		rt.sinks = append(rt.sinks, a)
		rt.closers = append(rt.closers, a.Close)
	}
	if s.JournalPath != "" {
		w := journal.NewWriter(s.JournalPath, "events", rt.now)
		rt.sinks = append(rt.sinks, w)
		rt.closers = append(rt.closers, w.Close)
	}
	if s.NatsURL != "" {
		b, err := natsbus.Connect(s.NatsURL, s.NatsSubject)
		if err != nil {
			return err
		}
		rt.sinks = append(rt.sinks, b)
		rt.closers = append(rt.closers, func() error { b.Close(); return nil })
	}
	if rt.cfg.HTTP.FeedAddr != "" || rt.cfg.Poster.Kind == "feed" {
		rt.hub = wsfeed.NewHub(rt.logger)
		rt.sinks = append(rt.sinks, rt.hub)
	}
	return nil
}

func (rt *runtime) buildOutbound() error {
	logPoster := poster.Log{Logger: rt.logger, Now: rt.now}
	switch rt.cfg.Poster.Kind {
	case "webhook":
		client, err := httpclient.New(10 * time.Second)
		if err != nil {
			return err
		}
		rt.poster = poster.Webhook{URL: rt.cfg.Poster.WebhookURL, Client: client, Now: rt.now}
	case "feed":
		rt.poster = poster.Fanout{logPoster, rt.hub}
	default:
		rt.poster = logPoster
	}

	switch rt.cfg.Settlement.Kind {
	case "rpc":
		client, err := httpclient.New(15 * time.Second)
		if err != nil {
			return err
		}
		rt.settlement = settlement.RPC{Endpoint: rt.cfg.Settlement.Endpoint, Client: client}
	default:
		rt.settlement = settlement.Noop{Logger: rt.logger}
	}
	return nil
}

func (rt *runtime) schedulerDeps() scheduler.Deps {
	loop := rt.cfg.Loop
	return scheduler.Deps{
		Observe:    rt.observe,
		Actions:    rt.actions,
		Decider:    rt.decider,
		Poster:     rt.poster,
		Settlement: rt.settlement,
		Cache:      rt.cache,
		Sinks:      rt.sinks,
		Metrics:    rt.metrics,
		Retry: scheduler.RetryPolicy{
			Initial:     loop.Retry.Initial,
			MaxDelay:    loop.Retry.MaxDelay,
			MaxAttempts: loop.Retry.MaxAttempts,
			MaxElapsed:  loop.Retry.MaxElapsed,
		},
		IntervalMin:     loop.IntervalMin,
		IntervalMax:     loop.IntervalMax,
		DecisionTimeout: loop.DecisionTimeout,
		Seed:            loop.Seed,
		Logger:          rt.logger,
		Now:             rt.now,
	}
}

func (rt *runtime) handler(loops *scheduler.Manager) httpadapter.Handler {
	h := httpadapter.Handler{
		RegisterUC: rt.register,
		ObserveUC:  rt.observe,
		ActionUC:   rt.actions,
		StatusUC:   rt.status,
		ReplayUC:   rt.replay,
		Terrain:    rt.terrain,
		KPI:        rt.metrics,
		Now:        rt.now,
	}
	if loops != nil {
		h.Loops = loops
	}
	if rt.archive != nil {
		h.History = rt.archive
	}
	return h
}

// seedAgents registers configured agents that do not exist yet.
func (rt *runtime) seedAgents(ctx context.Context) error {
	for _, a := range rt.cfg.Agents {
		req := register.Request{AgentID: a.ID, Name: a.Name, Character: a.Character, Tokens: a.Tokens}
		if a.X != nil && a.Y != nil {
			req.Position = &world.Position{X: *a.X, Y: *a.Y}
		}
		resp, err := rt.register.Execute(ctx, req)
		if errors.Is(err, register.ErrAgentExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed agent %q: %w", a.ID, err)
		}
		rt.logger.Info("agent registered", "agent_id", resp.Agent.ID, "position", resp.Agent.Position.String(), "tokens", resp.Agent.Tokens)
	}
	return nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close", "err", err)
		}
	}
	rt.closers = nil
}

func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	var n uint64
	for _, x := range b {
		n = n<<8 | uint64(x)
	}
	return n
}
