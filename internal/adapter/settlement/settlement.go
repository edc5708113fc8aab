// Package settlement submits resolved transitions to an external ledger.
package settlement

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"mearth/internal/adapter/httpclient"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
)

// Noop accepts everything locally and hands out random transaction ids.
type Noop struct {
	Logger *slog.Logger
}

func (n Noop) SubmitMove(ctx context.Context, m ports.MoveSettlement) (string, error) {
	return n.ack(ctx, "move", "agent_id", m.AgentID)
}

func (n Noop) SubmitBattle(ctx context.Context, o game.BattleOutcome) (string, error) {
	return n.ack(ctx, "battle", "battle_id", o.BattleID)
}

func (n Noop) SubmitAlliance(ctx context.Context, a ports.AllianceSettlement) (string, error) {
	return n.ack(ctx, "alliance_"+a.Kind, "first", a.First, "second", a.Second)
}

func (n Noop) ack(ctx context.Context, kind string, attrs ...any) (string, error) {
	tx := "noop-" + uuid.NewString()
	if n.Logger != nil {
		n.Logger.DebugContext(ctx, "settled locally", append([]any{"kind", kind, "tx", tx}, attrs...)...)
	}
	return tx, nil
}

// RPC posts each transition as JSON to <Endpoint>/<kind> and reads back
// {"tx": ...}.
type RPC struct {
	Endpoint string
	Client   *httpclient.Client
}

type rpcReply struct {
	Tx string `json:"tx"`
}

func (r RPC) SubmitMove(ctx context.Context, m ports.MoveSettlement) (string, error) {
	return r.submit(ctx, "moves", m)
}

func (r RPC) SubmitBattle(ctx context.Context, o game.BattleOutcome) (string, error) {
	return r.submit(ctx, "battles", o)
}

func (r RPC) SubmitAlliance(ctx context.Context, a ports.AllianceSettlement) (string, error) {
	return r.submit(ctx, "alliances", a)
}

func (r RPC) submit(ctx context.Context, path string, body any) (string, error) {
	var reply rpcReply
	url := strings.TrimRight(r.Endpoint, "/") + "/" + path
	if err := r.Client.PostJSON(ctx, url, nil, body, &reply); err != nil {
		return "", err
	}
	return reply.Tx, nil
}
