package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mearth/internal/adapter/httpclient"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

type personas map[string]string

func (p personas) Persona(_ context.Context, character string) ([]byte, error) {
	s, ok := p[character]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return []byte(s), nil
}

type fakeCompletions struct {
	mu       sync.Mutex
	reply    string
	requests []chatRequest
}

func (f *fakeCompletions) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		reply := f.reply
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
}

func newSource(t *testing.T, f *fakeCompletions) *Source {
	srv := f.server(t)
	t.Cleanup(srv.Close)
	c, err := httpclient.New(time.Second)
	require.NoError(t, err)
	return New(Config{Endpoint: srv.URL, APIKey: "secret", Model: "test-model"}, c, personas{"scootles": "You are Scootles the brave."}, nil)
}

func observation() game.Observation {
	self := game.NewAgent("scoot", "Scootles", "scootles", world.Position{X: 3, Y: 3}, 900)
	return game.Observation{
		Self:    self,
		Terrain: world.TerrainPlain,
		CanMove: true,
		Nearby: []game.NearbyAgent{
			{ID: "paws", Name: "Purrlock Paws", Position: world.Position{X: 4, Y: 3}, Tokens: 400, Distance: 1, CanBattle: true},
		},
	}
}

func TestSource_DecideParsesFencedJSON(t *testing.T) {
	f := &fakeCompletions{reply: "Thinking...\n```json\n{\"action\": \"battle\", \"target\": \"paws\", \"public_text\": \"Have at thee!\"}\n```"}
	src := newSource(t, f)

	d, err := src.Decide(context.Background(), observation())
	require.NoError(t, err)
	assert.Equal(t, game.BattleAction{Target: "paws"}, d.Action)
	assert.Equal(t, "Have at thee!", d.PublicText)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, "You are Scootles the brave.", req.Messages[0].Content)
	assert.True(t, strings.Contains(req.Messages[1].Content, "paws (Purrlock Paws) at (4, 3)"))
}

func TestSource_DecideConvertsCoordinates(t *testing.T) {
	f := &fakeCompletions{reply: `{"action": "move", "x": 3, "y": 4, "public_text": "North!"}`}
	d, err := newSource(t, f).Decide(context.Background(), observation())
	require.NoError(t, err)
	assert.Equal(t, game.MoveAction{Direction: world.North, Steps: 1}, d.Action)
}

func TestSource_DecideRejectsGarbage(t *testing.T) {
	f := &fakeCompletions{reply: "I would rather not say."}
	_, err := newSource(t, f).Decide(context.Background(), observation())
	assert.Error(t, err)
}

func TestSource_FallsBackToTraitsWithoutPersona(t *testing.T) {
	f := &fakeCompletions{reply: `{"action": "deceive", "claim": "I have 9000 tokens"}`}
	obs := observation()
	obs.Self.Character = "wanderleaf"
	obs.Self.Name = "Wanderleaf"

	_, err := newSource(t, f).Decide(context.Background(), obs)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.requests[0].Messages[0].Content, "You are Wanderleaf. Aggressiveness 0.4"))
}

func TestSource_RespondToAlliance(t *testing.T) {
	f := &fakeCompletions{reply: "```json\n{\"accept\": true, \"reason\": \"strength in numbers\"}\n```"}
	ok, err := newSource(t, f).RespondToAlliance(context.Background(), game.AllianceProposal{Proposer: "paws", Proposed: "scoot"}, observation())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, f.requests[0].Messages[1].Content, "Proposed by: paws")
}

func TestSource_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()
	c, err := httpclient.New(time.Second)
	require.NoError(t, err)

	_, err = New(Config{Endpoint: srv.URL}, c, nil, nil).Decide(context.Background(), observation())
	assert.True(t, errors.Is(err, ErrEmptyCompletion))
}
