package register

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

const (
	DefaultInitialTokens = 1000
	DefaultSpawnArea     = 30

	spawnAttempts = 100
)

var (
	ErrInvalidRequest   = errors.New("invalid register request")
	ErrUnknownCharacter = errors.New("unknown character")
	ErrAgentExists      = errors.New("agent already registered")
	ErrInvalidSpawn     = errors.New("spawn position is not on plain ground")
)

type Request struct {
	AgentID   string          `json:"agent_id,omitempty"`
	Name      string          `json:"name"`
	Character string          `json:"character,omitempty"`
	Position  *world.Position `json:"position,omitempty"`
	Tokens    *uint64         `json:"tokens,omitempty"`
}

type Response struct {
	Agent game.Agent `json:"agent"`
}

type UseCase struct {
	TxManager     ports.TxManager
	StateRepo     ports.AgentStateRepository
	EventRepo     ports.EventRepository
	Terrain       *world.TerrainMap
	InitialTokens uint64
	SpawnArea     int
	Dice          game.Roller
	Now           func() time.Time
}

// Execute creates an agent at version 1. A caller-supplied ID that already
// exists is rejected; a generated one is retried.
func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	if u.StateRepo == nil || u.TxManager == nil {
		return Response{}, ErrInvalidRequest
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.Name = strings.TrimSpace(req.Name)
	req.Character = strings.ToLower(strings.TrimSpace(req.Character))
	if req.Character != "" {
		if _, ok := game.LookupCharacter(req.Character); !ok {
			return Response{}, fmt.Errorf("%w: %s", ErrUnknownCharacter, req.Character)
		}
	}
	if req.Name == "" {
		req.Name = req.Character
	}
	if req.Name == "" && req.AgentID == "" {
		return Response{}, ErrInvalidRequest
	}

	terrain := u.Terrain
	if terrain == nil {
		terrain = world.DefaultMap()
	}
	pos, err := u.spawn(terrain, req.Position)
	if err != nil {
		return Response{}, err
	}
	tokens := u.InitialTokens
	if tokens == 0 {
		tokens = DefaultInitialTokens
	}
	if req.Tokens != nil {
		tokens = *req.Tokens
	}
	nowFn := u.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().UTC()

	for i := 0; i < 3; i++ {
		agentID := req.AgentID
		if agentID == "" {
			agentID, err = newAgentID(now)
			if err != nil {
				return Response{}, err
			}
		}
		name := req.Name
		if name == "" {
			name = agentID
		}
		seed := game.NewAgent(agentID, name, req.Character, pos, tokens)
		seed.Version = 1
		seed.UpdatedAt = now

		err = u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
			if err := u.StateRepo.SaveWithVersion(txCtx, seed, 0); err != nil {
				return err
			}
			if u.EventRepo == nil {
				return nil
			}
			return u.EventRepo.Append(txCtx, agentID, []game.DomainEvent{{
				Type:       game.EventAgentRegistered,
				OccurredAt: now,
				Payload: map[string]any{
					"agent_id":  agentID,
					"name":      name,
					"character": req.Character,
					"x":         pos.X,
					"y":         pos.Y,
					"tokens":    tokens,
				},
			}})
		})
		if errors.Is(err, ports.ErrConflict) {
			if req.AgentID != "" {
				return Response{}, fmt.Errorf("%w: %s", ErrAgentExists, req.AgentID)
			}
			continue
		}
		if err != nil {
			return Response{}, err
		}
		return Response{Agent: seed}, nil
	}

	return Response{}, ports.ErrConflict
}

func (u UseCase) spawn(terrain *world.TerrainMap, requested *world.Position) (world.Position, error) {
	if requested != nil {
		if !terrain.InBounds(*requested) || terrain.TerrainAt(*requested) != world.TerrainPlain {
			return world.Position{}, fmt.Errorf("%w: %s", ErrInvalidSpawn, requested)
		}
		return *requested, nil
	}
	width, height := terrain.Bounds()
	if width <= 0 || height <= 0 {
		area := u.SpawnArea
		if area <= 0 {
			area = DefaultSpawnArea
		}
		width, height = area, area
	}
	dice := u.Dice
	if dice == nil {
		dice = game.NewRandomRoller(uint64(time.Now().UnixNano()))
	}
	for i := 0; i < spawnAttempts; i++ {
		p := world.Position{X: int(dice.Float64() * float64(width)), Y: int(dice.Float64() * float64(height))}
		if terrain.InBounds(p) && terrain.TerrainAt(p) == world.TerrainPlain {
			return p, nil
		}
	}
	return world.Position{}, ErrInvalidSpawn
}

func newAgentID(now time.Time) (string, error) {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "agt_" + now.Format("20060102") + "_" + base64.RawURLEncoding.EncodeToString(b), nil
}
