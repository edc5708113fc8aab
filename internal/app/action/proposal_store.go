package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mearth/internal/domain/game"
)

var errNoProposalStore = errors.New("proposal store is not configured")

// ProposalKey is the cache key an issued proposal is kept under until it is
// answered or lapses.
func ProposalKey(id string) string {
	return "alliance/proposal/" + id
}

func (u UseCase) rememberProposal(ctx context.Context, p game.AllianceProposal) error {
	if u.Proposals == nil || p.ID == "" {
		return nil
	}
	ttl := p.ExpiresAt.Sub(u.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return u.Proposals.Set(ctx, ProposalKey(p.ID), string(raw), ttl)
}

// issuedProposal returns the proposal this engine handed out under id. An
// ID it never issued reads the same as one that has lapsed.
func (u UseCase) issuedProposal(ctx context.Context, id string) (game.AllianceProposal, error) {
	if u.Proposals == nil {
		return game.AllianceProposal{}, errNoProposalStore
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return game.AllianceProposal{}, ErrInvalidRequest
	}
	raw, ok, err := u.Proposals.Get(ctx, ProposalKey(id))
	if err != nil {
		return game.AllianceProposal{}, err
	}
	if !ok {
		return game.AllianceProposal{}, fmt.Errorf("%w: %s", game.ErrProposalExpired, id)
	}
	var p game.AllianceProposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return game.AllianceProposal{}, fmt.Errorf("decode proposal %s: %w", id, err)
	}
	return p, nil
}

func (u UseCase) forgetProposal(ctx context.Context, id string) error {
	if u.Proposals == nil || id == "" {
		return nil
	}
	return u.Proposals.Delete(ctx, ProposalKey(id))
}

// AcceptProposal accepts a proposal by the ID it was issued under. The stored
// copy is the one applied, and it is consumed once answered.
func (u UseCase) AcceptProposal(ctx context.Context, id string) (Response, error) {
	p, err := u.issuedProposal(ctx, id)
	if err != nil {
		u.recordError(err)
		return Response{}, err
	}
	out, err := u.AcceptAlliance(ctx, p)
	if err != nil && game.IsValidation(err) {
		if ferr := u.forgetProposal(ctx, p.ID); ferr != nil {
			return Response{}, errors.Join(err, ferr)
		}
	}
	return out, err
}

// RejectProposal declines a proposal by the ID it was issued under.
func (u UseCase) RejectProposal(ctx context.Context, id, reason string) (Response, error) {
	p, err := u.issuedProposal(ctx, id)
	if err != nil {
		u.recordError(err)
		return Response{}, err
	}
	return u.RejectAlliance(ctx, p, reason)
}
