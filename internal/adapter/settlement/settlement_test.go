package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mearth/internal/adapter/httpclient"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

func TestRPC_RoutesByKind(t *testing.T) {
	seen := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen[r.URL.Path] = body
		_, _ = w.Write([]byte(`{"tx":"tx` + r.URL.Path + `"}`))
	}))
	defer srv.Close()
	c, err := httpclient.New(time.Second)
	require.NoError(t, err)
	rpc := RPC{Endpoint: srv.URL + "/", Client: c}
	ctx := context.Background()

	tx, err := rpc.SubmitMove(ctx, ports.MoveSettlement{AgentID: "a", To: world.Position{X: 1, Y: 2}, Terrain: world.TerrainRiver})
	require.NoError(t, err)
	assert.Equal(t, "tx/moves", tx)
	assert.Equal(t, "river", seen["/moves"]["terrain"])

	tx, err = rpc.SubmitBattle(ctx, game.BattleOutcome{BattleID: "b1", Winner: "a", TokensBurned: 40})
	require.NoError(t, err)
	assert.Equal(t, "tx/battles", tx)
	assert.Equal(t, float64(40), seen["/battles"]["tokens_burned"])

	tx, err = rpc.SubmitAlliance(ctx, ports.AllianceSettlement{Kind: ports.AllianceSettlementBroken, First: "a", Second: "b"})
	require.NoError(t, err)
	assert.Equal(t, "tx/alliances", tx)
	assert.Equal(t, "broken", seen["/alliances"]["kind"])
}

func TestRPC_PropagatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c, err := httpclient.New(time.Second)
	require.NoError(t, err)

	_, err = RPC{Endpoint: srv.URL, Client: c}.SubmitBattle(context.Background(), game.BattleOutcome{})
	assert.True(t, httpclient.IsTemporary(err))
}

func TestNoop_AlwaysSettles(t *testing.T) {
	tx, err := Noop{}.SubmitMove(context.Background(), ports.MoveSettlement{AgentID: "a"})
	require.NoError(t, err)
	assert.Contains(t, tx, "noop-")
}
