package sqlitearchive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mearth/internal/domain/game"
)

func TestArchive_PublishAndQuery(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	battle := game.DomainEvent{
		Type:       game.EventBattleResolved,
		OccurredAt: at,
		Payload: map[string]any{
			"battle_id": "b1", "attacker": "a", "defender": "d", "winner": "a", "loser": "d",
			"tokens_burned": uint64(40), "tokens_transferred": uint64(0), "burn_percent": 40, "death_occurred": false,
		},
	}
	moved := game.DomainEvent{Type: game.EventAgentMoved, OccurredAt: at.Add(-time.Minute), Payload: map[string]any{"x": 1}}

	require.NoError(t, a.Publish(ctx, "a", []game.DomainEvent{moved, battle}))
	require.NoError(t, a.Publish(ctx, "d", []game.DomainEvent{battle}))

	events, err := a.EventsByAgent(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, game.EventBattleResolved, events[0].Type)
	assert.Equal(t, "b1", events[0].Payload["battle_id"])

	battles, err := a.BattlesSince(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, battles, 1, "a battle published by both sides is stored once")
	assert.Equal(t, uint64(40), battles[0].TokensBurned)
	assert.True(t, battles[0].EndedAt.Equal(at))

	counts, err := a.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[game.EventBattleResolved])
	assert.Equal(t, 1, counts[game.EventAgentMoved])
}
