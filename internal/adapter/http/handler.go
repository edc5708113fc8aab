package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"mearth/internal/app/action"
	"mearth/internal/app/observe"
	"mearth/internal/app/ports"
	"mearth/internal/app/register"
	"mearth/internal/app/replay"
	"mearth/internal/app/scheduler"
	"mearth/internal/app/status"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
	"mearth/internal/protocol/decision"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const recentBattlesWindow = 24 * time.Hour

type Handler struct {
	RegisterUC register.UseCase
	ObserveUC  observe.UseCase
	ActionUC   action.UseCase
	StatusUC   status.UseCase
	ReplayUC   replay.UseCase
	Loops      loopController
	History    battleHistory
	Terrain    *world.TerrainMap
	KPI        kpiSnapshotProvider
	Now        func() time.Time
}

type loopController interface {
	Add(agentID string) error
	Stop(agentID string) error
	TickNow(ctx context.Context, agentID string) (scheduler.TickResult, error)
	States() map[string]scheduler.State
}

// battleHistory serves battles older than the outcome store keeps.
type battleHistory interface {
	BattlesSince(ctx context.Context, since time.Time) ([]game.BattleOutcome, error)
}

type kpiSnapshotProvider interface {
	SnapshotAny() any
}

func (h Handler) RegisterRoutes(s *server.Hertz) {
	s.Use(corsMiddleware())

	agents := s.Group("/api/agents")
	agents.GET("", h.listAgents)
	agents.POST("", h.register)
	agents.GET("/:id", h.status)
	agents.POST("/:id/observe", h.observe)
	agents.POST("/:id/action", h.action)
	agents.GET("/:id/events", h.events)
	agents.POST("/:id/tick", h.tick)
	agents.POST("/:id/stop", h.stop)

	alliances := s.Group("/api/alliances")
	alliances.POST("/accept", h.acceptAlliance)
	alliances.POST("/reject", h.rejectAlliance)

	s.GET("/api/battles/recent", h.recentBattles)
	s.GET("/api/terrain", h.terrain)
	s.GET("/ops/kpi", h.kpi)
	s.GET("/ops/loops", h.loops)
}

// answerRequest names an issued proposal by ID; the proposal itself is
// never taken from the caller.
type answerRequest struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason"`
}

type terrainResponse struct {
	Bounded   bool             `json:"bounded"`
	Width     int              `json:"width,omitempty"`
	Height    int              `json:"height,omitempty"`
	Rivers    []world.Position `json:"rivers"`
	Mountains []world.Position `json:"mountains"`
}

func (h Handler) listAgents(c context.Context, ctx *app.RequestContext) {
	agents, err := h.StatusUC.List(c)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if agents == nil {
		agents = []game.Agent{}
	}
	ctx.JSON(consts.StatusOK, map[string]any{"agents": agents})
}

func (h Handler) register(c context.Context, ctx *app.RequestContext) {
	var body register.Request
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	resp, err := h.RegisterUC.Execute(c, body)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if h.Loops != nil {
		if err := h.Loops.Add(resp.Agent.ID); err != nil && !errors.Is(err, scheduler.ErrNotStarted) {
			writeError(ctx, err)
			return
		}
	}
	ctx.JSON(consts.StatusCreated, resp)
}

func (h Handler) status(c context.Context, ctx *app.RequestContext) {
	resp, err := h.StatusUC.Execute(c, status.Request{AgentID: agentParam(ctx)})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) observe(c context.Context, ctx *app.RequestContext) {
	resp, err := h.ObserveUC.Execute(c, observe.Request{AgentID: agentParam(ctx)})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

// action takes the same payload a decision source produces, so a move may
// name a direction or the adjacent cell.
func (h Handler) action(c context.Context, ctx *app.RequestContext) {
	agentID := agentParam(ctx)
	current, err := h.StatusUC.Execute(c, status.Request{AgentID: agentID})
	if err != nil {
		writeError(ctx, err)
		return
	}
	d, err := decision.Decode(ctx.Request.Body(), current.State.Position)
	if err != nil {
		if game.IsValidation(err) {
			writeActionRejected(ctx, err)
			return
		}
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_action", err.Error())
		return
	}
	resp, err := h.ActionUC.Execute(c, action.Request{AgentID: agentID, Action: d.Action})
	if err != nil {
		if game.IsValidation(err) {
			writeActionRejected(ctx, err)
			return
		}
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) acceptAlliance(c context.Context, ctx *app.RequestContext) {
	var body answerRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	resp, err := h.ActionUC.AcceptProposal(c, body.ProposalID)
	if err != nil {
		if game.IsValidation(err) {
			writeActionRejected(ctx, err)
			return
		}
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) rejectAlliance(c context.Context, ctx *app.RequestContext) {
	var body answerRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "declined"
	}
	resp, err := h.ActionUC.RejectProposal(c, body.ProposalID, reason)
	if err != nil {
		if game.IsValidation(err) {
			writeActionRejected(ctx, err)
			return
		}
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) events(c context.Context, ctx *app.RequestContext) {
	limit, _ := strconv.Atoi(string(ctx.Query("limit")))
	from, _ := strconv.ParseInt(string(ctx.Query("occurred_from")), 10, 64)
	to, _ := strconv.ParseInt(string(ctx.Query("occurred_to")), 10, 64)
	req := replay.Request{AgentID: agentParam(ctx), Limit: limit}
	if from > 0 {
		req.From = time.Unix(from, 0).UTC()
	}
	if to > 0 {
		req.To = time.Unix(to, 0).UTC()
	}
	resp, err := h.ReplayUC.Execute(c, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) tick(c context.Context, ctx *app.RequestContext) {
	if h.Loops == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "decision loops not running")
		return
	}
	res, err := h.Loops.TickNow(c, agentParam(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

func (h Handler) stop(_ context.Context, ctx *app.RequestContext) {
	if h.Loops == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "decision loops not running")
		return
	}
	id := agentParam(ctx)
	if err := h.Loops.Stop(id); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"agent_id": id, "state": scheduler.StateStopped})
}

// recentBattles reads the outcome store, falling back to the archive when
// one is configured and asked for with ?source=archive.
func (h Handler) recentBattles(c context.Context, ctx *app.RequestContext) {
	window := recentBattlesWindow
	if hours, err := strconv.Atoi(string(ctx.Query("hours"))); err == nil && hours > 0 {
		window = time.Duration(hours) * time.Hour
	}
	since := h.now().Add(-window)

	var (
		battles []game.BattleOutcome
		err     error
	)
	if string(ctx.Query("source")) == "archive" {
		if h.History == nil {
			writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "battle archive not configured")
			return
		}
		battles, err = h.History.BattlesSince(c, since)
	} else {
		battles, err = h.ActionUC.Outcomes.ListSince(c, since)
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	if battles == nil {
		battles = []game.BattleOutcome{}
	}
	ctx.JSON(consts.StatusOK, map[string]any{"since": since, "battles": battles})
}

func (h Handler) terrain(_ context.Context, ctx *app.RequestContext) {
	m := h.Terrain
	if m == nil {
		m = world.DefaultMap()
	}
	out := terrainResponse{
		Bounded:   m.Bounded(),
		Rivers:    m.Cells(world.TerrainRiver),
		Mountains: m.Cells(world.TerrainMountain),
	}
	if out.Bounded {
		out.Width, out.Height = m.Bounds()
	}
	ctx.JSON(consts.StatusOK, out)
}

func (h Handler) kpi(_ context.Context, ctx *app.RequestContext) {
	if h.KPI == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "kpi provider not configured")
		return
	}
	ctx.JSON(consts.StatusOK, h.KPI.SnapshotAny())
}

func (h Handler) loops(_ context.Context, ctx *app.RequestContext) {
	if h.Loops == nil {
		ctx.JSON(consts.StatusOK, map[string]any{"loops": map[string]scheduler.State{}})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"loops": h.Loops.States()})
}

func (h Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func agentParam(ctx *app.RequestContext) string {
	return strings.TrimSpace(ctx.Param("id"))
}

func decodeJSON(ctx *app.RequestContext, out any) error {
	body := ctx.Request.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func writeError(ctx *app.RequestContext, err error) {
	switch {
	case game.IsValidation(err):
		writeErrorBody(ctx, consts.StatusConflict, game.Reason(err), err.Error())
	case errors.Is(err, register.ErrUnknownCharacter):
		writeErrorBody(ctx, consts.StatusBadRequest, "unknown_character", err.Error())
	case errors.Is(err, register.ErrInvalidSpawn):
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_spawn", err.Error())
	case errors.Is(err, register.ErrAgentExists):
		writeErrorBody(ctx, consts.StatusConflict, "agent_exists", err.Error())
	case errors.Is(err, action.ErrConflictExhausted):
		writeErrorBody(ctx, consts.StatusConflict, "conflict_retry_exhausted", err.Error())
	case errors.Is(err, scheduler.ErrUnknownAgent):
		writeErrorBody(ctx, consts.StatusNotFound, "loop_not_found", err.Error())
	case errors.Is(err, scheduler.ErrLoopStopped):
		writeErrorBody(ctx, consts.StatusConflict, "loop_stopped", err.Error())
	case errors.Is(err, scheduler.ErrNotStarted):
		writeErrorBody(ctx, consts.StatusServiceUnavailable, "loops_not_started", err.Error())
	case errors.Is(err, action.ErrInvalidRequest),
		errors.Is(err, register.ErrInvalidRequest),
		errors.Is(err, observe.ErrInvalidRequest),
		errors.Is(err, replay.ErrInvalidRequest),
		errors.Is(err, status.ErrInvalidRequest):
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ports.ErrConflict):
		writeErrorBody(ctx, consts.StatusConflict, "conflict", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeActionRejected reports a rule violation with whatever detail the
// error carries.
func writeActionRejected(ctx *app.RequestContext, err error) {
	details := map[string]any{}
	var cd *game.CooldownActiveError
	if errors.As(err, &cd) && cd != nil {
		details["action"] = string(cd.Action)
		if cd.Target != "" {
			details["target"] = cd.Target
		}
		details["remaining_seconds"] = int64(cd.Remaining / time.Second)
		details["until"] = cd.Until
	}
	var oor *game.OutOfRangeError
	if errors.As(err, &oor) && oor != nil {
		details["target"] = oor.Target
		details["distance"] = oor.Distance
		details["range"] = oor.Range
	}
	if len(details) == 0 {
		details = nil
	}
	ctx.JSON(consts.StatusConflict, map[string]any{
		"result_code": string(action.ResultRejected),
		"error": map[string]any{
			"code":    game.Reason(err),
			"message": err.Error(),
			"details": details,
		},
	})
}
