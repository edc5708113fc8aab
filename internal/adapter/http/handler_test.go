package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	memcache "mearth/internal/adapter/cache/memory"
	"mearth/internal/adapter/repo/memory"
	"mearth/internal/app/action"
	"mearth/internal/app/observe"
	"mearth/internal/app/ports"
	"mearth/internal/app/register"
	"mearth/internal/app/replay"
	"mearth/internal/app/scheduler"
	"mearth/internal/app/status"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route/param"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, agents ...game.Agent) Handler {
	t.Helper()
	terrain, err := world.NewTerrainMap(
		[]world.Position{{X: 5, Y: 6}},
		[]world.Position{{X: 7, Y: 5}},
		world.WithBounds(20, 20),
	)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	store := memory.NewStore()
	for _, a := range agents {
		store.SeedState(a)
	}
	tx := memory.NewTxManager(store)
	states := memory.NewAgentStateRepo(store)
	events := memory.NewEventRepo(store)
	outcomes := memory.NewOutcomeRepo(store, 0)
	rules := game.DefaultRules()
	now := func() time.Time { return testNow }
	ids := 0

	return Handler{
		RegisterUC: register.UseCase{TxManager: tx, StateRepo: states, EventRepo: events, Terrain: terrain, Dice: game.NewRandomRoller(1), Now: now},
		ObserveUC:  observe.UseCase{StateRepo: states, EventRepo: events, Outcomes: outcomes, Terrain: terrain, Rules: rules, Now: now},
		ActionUC: action.UseCase{
			TxManager: tx,
			StateRepo: states,
			EventRepo: events,
			Outcomes:  outcomes,
			Terrain:   terrain,
			Rules:     rules,
			Dice:      game.NewSequenceRoller(),
			Now:       now,
			NewID: func() string {
				ids++
				return fmt.Sprintf("id-%d", ids)
			},
			Proposals: memcache.New(),
		},
		StatusUC: status.UseCase{StateRepo: states, Terrain: terrain, Rules: rules, Now: now},
		ReplayUC: replay.UseCase{Events: events},
		Terrain:  terrain,
		Now:      now,
	}
}

func testAgent(id string, x, y int, tokens uint64) game.Agent {
	a := game.NewAgent(id, id, "scootles", world.Position{X: x, Y: y}, tokens)
	a.Version = 1
	return a
}

func withID(id string) *app.RequestContext {
	ctx := &app.RequestContext{}
	ctx.Params = param.Params{{Key: "id", Value: id}}
	return ctx
}

func decodeBody(t *testing.T, ctx *app.RequestContext) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, ctx.Response.Body())
	}
	return body
}

func errorCode(body map[string]any) any {
	errObj, _ := body["error"].(map[string]any)
	return errObj["code"]
}

func TestListAgents(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 1, 1, 100), testAgent("b", 2, 2, 100))
	ctx := &app.RequestContext{}

	h.listAgents(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusOK; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	agents, _ := decodeBody(t, ctx)["agents"].([]any)
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
}

func TestStatus_UnknownAgentIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	ctx := withID("ghost")

	h.status(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusNotFound; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(decodeBody(t, ctx)); got != "not_found" {
		t.Fatalf("unexpected code %v", got)
	}
}

func TestAction_MoveByDirection(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 3, 3, 100))
	ctx := withID("a")
	ctx.Request.SetBody([]byte(`{"action":"move","direction":"east"}`))

	h.action(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusOK; got != want {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", got, want, ctx.Response.Body())
	}
	var resp action.Response
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.UpdatedState.Position != (world.Position{X: 4, Y: 3}) {
		t.Fatalf("unexpected position %v", resp.UpdatedState.Position)
	}
}

func TestAction_SecondMoveReportsCooldown(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 3, 3, 100))
	first := withID("a")
	first.Request.SetBody([]byte(`{"action":"move","newX":3,"newY":4}`))
	h.action(context.Background(), first)
	if got := first.Response.StatusCode(); got != consts.StatusOK {
		t.Fatalf("first move failed: %d %s", got, first.Response.Body())
	}

	second := withID("a")
	second.Request.SetBody([]byte(`{"action":"move","direction":"north"}`))
	h.action(context.Background(), second)

	if got, want := second.Response.StatusCode(), consts.StatusConflict; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	body := decodeBody(t, second)
	if got := body["result_code"]; got != "rejected" {
		t.Fatalf("unexpected result_code %v", got)
	}
	if got := errorCode(body); got != "cooldown_active" {
		t.Fatalf("unexpected code %v", got)
	}
	details := body["error"].(map[string]any)["details"].(map[string]any)
	if got := details["remaining_seconds"]; got != float64(3600) {
		t.Fatalf("unexpected remaining_seconds %v", got)
	}
}

func TestAction_MalformedPayload(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 3, 3, 100))
	ctx := withID("a")
	ctx.Request.SetBody([]byte(`{"action":"dance"}`))

	h.action(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusBadRequest; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(decodeBody(t, ctx)); got != "invalid_action" {
		t.Fatalf("unexpected code %v", got)
	}
}

func TestRegister_CreatesAgent(t *testing.T) {
	h := newTestHandler(t)
	ctx := &app.RequestContext{}
	ctx.Request.SetBody([]byte(`{"agent_id":"frodo","name":"Frodo","character":"wanderleaf","position":{"x":2,"y":2}}`))

	h.register(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusCreated; got != want {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", got, want, ctx.Response.Body())
	}

	dup := &app.RequestContext{}
	dup.Request.SetBody([]byte(`{"agent_id":"frodo","name":"Frodo","position":{"x":2,"y":2}}`))
	h.register(context.Background(), dup)
	if got, want := dup.Response.StatusCode(), consts.StatusConflict; got != want {
		t.Fatalf("duplicate status mismatch: got=%d want=%d", got, want)
	}
}

func TestRegister_UnknownCharacter(t *testing.T) {
	h := newTestHandler(t)
	ctx := &app.RequestContext{}
	ctx.Request.SetBody([]byte(`{"name":"x","character":"balrog"}`))

	h.register(context.Background(), ctx)

	if got := errorCode(decodeBody(t, ctx)); got != "unknown_character" {
		t.Fatalf("unexpected code %v", got)
	}
}

func TestEvents_ReturnsTrail(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 3, 3, 100))
	move := withID("a")
	move.Request.SetBody([]byte(`{"action":"move","direction":"south"}`))
	h.action(context.Background(), move)

	ctx := withID("a")
	h.events(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusOK; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	var resp replay.Response
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Trail.Moves != 1 {
		t.Fatalf("expected one move in trail, got %+v", resp.Trail)
	}
}

func TestRecentBattles_ArchiveNotConfigured(t *testing.T) {
	h := newTestHandler(t)
	ctx := &app.RequestContext{}
	ctx.Request.SetRequestURI("/api/battles/recent?source=archive")

	h.recentBattles(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusNotFound; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
}

func TestRecentBattles_FromOutcomeStore(t *testing.T) {
	h := newTestHandler(t)
	if err := h.ActionUC.Outcomes.Append(context.Background(), game.BattleOutcome{BattleID: "b1", EndedAt: testNow.Add(-time.Hour)}); err != nil {
		t.Fatalf("seed outcome: %v", err)
	}
	ctx := &app.RequestContext{}
	ctx.Request.SetRequestURI("/api/battles/recent")

	h.recentBattles(context.Background(), ctx)

	battles, _ := decodeBody(t, ctx)["battles"].([]any)
	if len(battles) != 1 {
		t.Fatalf("expected one battle, got %d", len(battles))
	}
}

func TestTerrain_ListsCells(t *testing.T) {
	h := newTestHandler(t)
	ctx := &app.RequestContext{}

	h.terrain(context.Background(), ctx)

	var resp terrainResponse
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Bounded || resp.Width != 20 || len(resp.Rivers) != 1 || len(resp.Mountains) != 1 {
		t.Fatalf("unexpected terrain %+v", resp)
	}
}

func TestTick_WithoutLoops(t *testing.T) {
	h := newTestHandler(t)
	ctx := withID("a")

	h.tick(context.Background(), ctx)

	if got, want := ctx.Response.StatusCode(), consts.StatusNotFound; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
}

func TestTickAndStop_DelegateToLoops(t *testing.T) {
	h := newTestHandler(t)
	loops := &fakeLoops{result: scheduler.TickResult{Outcome: scheduler.OutcomeApplied}}
	h.Loops = loops

	ctx := withID("a")
	h.tick(context.Background(), ctx)
	if got := decodeBody(t, ctx)["outcome"]; got != string(scheduler.OutcomeApplied) {
		t.Fatalf("unexpected outcome %v", got)
	}

	ctx = withID("ghost")
	h.stop(context.Background(), ctx)
	if got := errorCode(decodeBody(t, ctx)); got != "loop_not_found" {
		t.Fatalf("unexpected code %v", got)
	}

	ctx = &app.RequestContext{}
	h.loops(context.Background(), ctx)
	states, _ := decodeBody(t, ctx)["loops"].(map[string]any)
	if states["a"] != string(scheduler.StateIdle) {
		t.Fatalf("unexpected loop states %v", states)
	}
}

func TestWriteError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&game.CooldownActiveError{Action: game.ActionMove, Remaining: time.Minute}, consts.StatusConflict, "cooldown_active"},
		{game.ErrTargetNotFound, consts.StatusConflict, "target_not_found"},
		{action.ErrConflictExhausted, consts.StatusConflict, "conflict_retry_exhausted"},
		{register.ErrInvalidSpawn, consts.StatusBadRequest, "invalid_spawn"},
		{scheduler.ErrNotStarted, consts.StatusServiceUnavailable, "loops_not_started"},
		{status.ErrInvalidRequest, consts.StatusBadRequest, "bad_request"},
		{ports.ErrNotFound, consts.StatusNotFound, "not_found"},
		{ports.ErrConflict, consts.StatusConflict, "conflict"},
		{errors.New("boom"), consts.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		ctx := &app.RequestContext{}
		writeError(ctx, tc.err)
		if got := ctx.Response.StatusCode(); got != tc.status {
			t.Fatalf("%v: status got=%d want=%d", tc.err, got, tc.status)
		}
		if got := errorCode(decodeBody(t, ctx)); got != tc.code {
			t.Fatalf("%v: code got=%v want=%s", tc.err, got, tc.code)
		}
	}
}

type fakeLoops struct {
	result scheduler.TickResult
}

func (f *fakeLoops) Add(string) error { return nil }

func (f *fakeLoops) Stop(id string) error {
	if id != "a" {
		return scheduler.ErrUnknownAgent
	}
	return nil
}

func (f *fakeLoops) TickNow(_ context.Context, id string) (scheduler.TickResult, error) {
	if id != "a" {
		return scheduler.TickResult{}, scheduler.ErrUnknownAgent
	}
	return f.result, nil
}

func (f *fakeLoops) States() map[string]scheduler.State {
	return map[string]scheduler.State{"a": scheduler.StateIdle}
}

func TestAlliances_AcceptIssuedProposal(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 3, 3, 100), testAgent("b", 4, 3, 100))
	propose := withID("a")
	propose.Request.SetBody([]byte(`{"action":"alliance","target":"b"}`))
	h.action(context.Background(), propose)
	if got := propose.Response.StatusCode(); got != consts.StatusOK {
		t.Fatalf("propose failed: %d %s", got, propose.Response.Body())
	}
	var proposed action.Response
	if err := json.Unmarshal(propose.Response.Body(), &proposed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if proposed.Proposal == nil {
		t.Fatalf("expected a proposal in %s", propose.Response.Body())
	}

	body := []byte(fmt.Sprintf(`{"proposal_id":%q}`, proposed.Proposal.ID))
	accept := &app.RequestContext{}
	accept.Request.SetBody(body)
	h.acceptAlliance(context.Background(), accept)
	if got, want := accept.Response.StatusCode(), consts.StatusOK; got != want {
		t.Fatalf("accept status mismatch: got=%d want=%d body=%s", got, want, accept.Response.Body())
	}

	again := &app.RequestContext{}
	again.Request.SetBody(body)
	h.acceptAlliance(context.Background(), again)
	if got, want := again.Response.StatusCode(), consts.StatusConflict; got != want {
		t.Fatalf("replayed accept: got=%d want=%d", got, want)
	}
	if got := errorCode(decodeBody(t, again)); got != "proposal_expired" {
		t.Fatalf("unexpected code %v", got)
	}
}

func TestAlliances_ForgedProposalIsRejected(t *testing.T) {
	h := newTestHandler(t, testAgent("a", 3, 3, 100), testAgent("b", 4, 3, 100))
	forged := fmt.Sprintf(`{"proposal_id":"forged","proposal":{"id":"forged","proposer":"a","proposed":"b","expires_at":%q}}`,
		testNow.Add(24*time.Hour).Format(time.RFC3339))

	for name, call := range map[string]func(context.Context, *app.RequestContext){
		"accept": h.acceptAlliance,
		"reject": h.rejectAlliance,
	} {
		ctx := &app.RequestContext{}
		ctx.Request.SetBody([]byte(forged))
		call(context.Background(), ctx)
		if got, want := ctx.Response.StatusCode(), consts.StatusConflict; got != want {
			t.Fatalf("%s: status mismatch: got=%d want=%d body=%s", name, got, want, ctx.Response.Body())
		}
		if got := errorCode(decodeBody(t, ctx)); got != "proposal_expired" {
			t.Fatalf("%s: unexpected code %v", name, got)
		}
	}

	states, err := h.StatusUC.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range states {
		if len(a.Alliances) != 0 {
			t.Fatalf("forged proposal formed an alliance for %s", a.ID)
		}
	}

	missing := &app.RequestContext{}
	missing.Request.SetBody([]byte(`{}`))
	h.acceptAlliance(context.Background(), missing)
	if got, want := missing.Response.StatusCode(), consts.StatusBadRequest; got != want {
		t.Fatalf("missing id: got=%d want=%d", got, want)
	}
}
