// Package llm asks an OpenAI-compatible chat completions endpoint for
// decisions. The character's persona file is the system prompt.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mearth/internal/adapter/httpclient"
	"mearth/internal/app/ports"
	"mearth/internal/domain/game"
	"mearth/internal/protocol/decision"
)

var ErrEmptyCompletion = errors.New("completion has no choices")

type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
}

type Source struct {
	cfg      Config
	client   *httpclient.Client
	personas ports.PersonaProvider
	logger   *slog.Logger
}

func New(cfg Config, client *httpclient.Client, personas ports.PersonaProvider, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, client: client, personas: personas, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *Source) Decide(ctx context.Context, obs game.Observation) (game.Decision, error) {
	text, err := s.complete(ctx, obs.Self, decisionPrompt(obs))
	if err != nil {
		return game.Decision{}, err
	}
	d, err := decision.DecodeText(text, obs.Self.Position)
	if err != nil {
		s.logger.Debug("undecodable completion", "agent_id", obs.Self.ID, "text", text)
		return game.Decision{}, err
	}
	return d, nil
}

func (s *Source) RespondToAlliance(ctx context.Context, p game.AllianceProposal, obs game.Observation) (bool, error) {
	text, err := s.complete(ctx, obs.Self, alliancePrompt(p, obs))
	if err != nil {
		return false, err
	}
	resp, err := decision.DecodeAllianceResponse(text)
	if err != nil {
		return false, err
	}
	s.logger.Info("alliance answer", "agent_id", obs.Self.ID, "proposer", p.Proposer, "accept", resp.Accept, "reason", resp.Reason)
	return resp.Accept, nil
}

func (s *Source) complete(ctx context.Context, self game.Agent, prompt string) (string, error) {
	req := chatRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: s.systemPrompt(ctx, self)},
			{Role: "user", Content: prompt},
		},
	}
	headers := map[string]string{}
	if s.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.cfg.APIKey
	}
	var resp chatResponse
	if err := s.client.PostJSON(ctx, s.cfg.Endpoint, headers, req, &resp); err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *Source) systemPrompt(ctx context.Context, self game.Agent) string {
	if s.personas != nil && self.Character != "" {
		b, err := s.personas.Persona(ctx, self.Character)
		if err == nil && len(b) > 0 {
			return string(b)
		}
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn("load persona", "character", self.Character, "err", err)
		}
	}
	name := self.Name
	if name == "" {
		name = self.ID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", name)
	if c, ok := game.LookupCharacter(self.Character); ok {
		t := c.Traits
		fmt.Fprintf(&b, " Aggressiveness %.1f, sociability %.1f, intelligence %.1f, bravery %.1f.",
			t.Aggressiveness, t.Sociability, t.Intelligence, t.Bravery)
	}
	return b.String()
}
