package service

import (
	"context"
	"fmt"

	"github.com/kindredlabs/kindred/internal/coaching/domain/match"
	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/storage"
)

// MatchView is the response payload for match mutations.
type MatchView struct {
	ID                string   `json:"id"`
	FromUserID        string   `json:"from_user_id"`
	ToUserID          string   `json:"to_user_id"`
	Status            string   `json:"status"`
	RecipientResponse string   `json:"recipient_response,omitempty"`
	Events            []string `json:"events"`
}

type createMatchParams struct {
	ToUserID string `json:"to_user_id"`
}

type matchActionParams struct {
	MatchID  string `json:"match_id"`
	Response string `json:"response,omitempty"`
}

// CreateMatch sends a new match proposal from the actor to the recipient.
func (s *Service) CreateMatch(ctx context.Context, key, actorID, toUserID string) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := createMatchParams{ToUserID: toUserID}
	return s.execute(ctx, key, routeMatchCreate, actorID, params, func(ctx context.Context) (any, error) {
		result, err := match.Decide(nil, match.Action{Kind: match.KindCreate}, transition.Context{
			ActorID: actorID,
			Role:    transition.RoleInitiator,
		})
		if err != nil {
			return nil, err
		}

		matchID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate match id: %w", err)
		}
		now := s.now().UTC()
		record := storage.Match{
			ID:         matchID,
			FromUserID: actorID,
			ToUserID:   toUserID,
			Status:     string(result.Status),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.PutMatch(ctx, record); err != nil {
			return nil, fmt.Errorf("put match: %w", err)
		}
		return matchView(record, result.Events), nil
	})
}

// RespondMatch records the recipient's answer to a sent or viewed match.
func (s *Service) RespondMatch(ctx context.Context, key, actorID, matchID, response string) (idempotency.Result, error) {
	return s.matchAction(ctx, key, actorID, matchID, routeMatchRespond, match.Action{
		Kind:     match.KindRespond,
		Response: response,
	})
}

// AcceptMatch moves a responded match to mutual-ready on the initiator's
// behalf.
func (s *Service) AcceptMatch(ctx context.Context, key, actorID, matchID string) (idempotency.Result, error) {
	return s.matchAction(ctx, key, actorID, matchID, routeMatchAccept, match.Action{Kind: match.KindAccept})
}

// ConfirmMatch finalizes a mutual-ready match into paired.
func (s *Service) ConfirmMatch(ctx context.Context, key, actorID, matchID string) (idempotency.Result, error) {
	return s.matchAction(ctx, key, actorID, matchID, routeMatchConfirm, match.Action{Kind: match.KindConfirm})
}

// RejectMatch rejects a sent or viewed match. Re-rejecting is a safe retry.
func (s *Service) RejectMatch(ctx context.Context, key, actorID, matchID string) (idempotency.Result, error) {
	return s.matchAction(ctx, key, actorID, matchID, routeMatchReject, match.Action{Kind: match.KindReject})
}

func (s *Service) matchAction(ctx context.Context, key, actorID, matchID, route string, action match.Action) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := matchActionParams{MatchID: matchID, Response: action.Response}
	return s.execute(ctx, key, route, actorID, params, func(ctx context.Context) (any, error) {
		snap, record, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}

		result, err := match.Decide(snap, action, transition.Context{
			ActorID: actorID,
			Role:    matchRole(snap, actorID, action.Kind),
		})
		if err != nil {
			return nil, err
		}

		record.Status = string(result.Status)
		record.RecipientResponse = result.RecipientResponse
		record.UpdatedAt = s.now().UTC()
		if err := s.store.PutMatch(ctx, record); err != nil {
			return nil, fmt.Errorf("put match: %w", err)
		}
		return matchView(record, result.Events), nil
	})
}

// GetMatch returns one match proposal.
func (s *Service) GetMatch(ctx context.Context, matchID string) (MatchView, error) {
	record, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return MatchView{}, err
	}
	return matchView(record, nil), nil
}

func (s *Service) loadMatch(ctx context.Context, matchID string) (*match.Snapshot, storage.Match, error) {
	record, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.Match{}, nil
		}
		return nil, storage.Match{}, fmt.Errorf("load match: %w", err)
	}
	return &match.Snapshot{
		ID:                record.ID,
		FromUserID:        record.FromUserID,
		ToUserID:          record.ToUserID,
		Status:            match.Status(record.Status),
		RecipientResponse: record.RecipientResponse,
	}, record, nil
}

// matchRole resolves the actor's role from the match sides. When the match
// does not exist yet the action kind decides which side the caller claims,
// so role denial still fires before not-found.
func matchRole(snap *match.Snapshot, actorID string, kind match.Kind) transition.Role {
	if snap != nil {
		switch actorID {
		case snap.FromUserID:
			return transition.RoleInitiator
		case snap.ToUserID:
			return transition.RoleRecipient
		default:
			return ""
		}
	}
	switch kind {
	case match.KindRespond, match.KindReject:
		return transition.RoleRecipient
	default:
		return transition.RoleInitiator
	}
}

func matchView(record storage.Match, events []transition.Event) MatchView {
	return MatchView{
		ID:                record.ID,
		FromUserID:        record.FromUserID,
		ToUserID:          record.ToUserID,
		Status:            record.Status,
		RecipientResponse: record.RecipientResponse,
		Events:            eventTypes(events),
	}
}
