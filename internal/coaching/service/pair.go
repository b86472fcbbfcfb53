package service

import (
	"context"
	"fmt"

	"github.com/kindredlabs/kindred/internal/coaching/domain/pair"
	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/storage"
)

// PairView is the response payload for pair mutations.
type PairView struct {
	ID      string   `json:"id"`
	MemberA string   `json:"member_a"`
	MemberB string   `json:"member_b"`
	Status  string   `json:"status"`
	Events  []string `json:"events"`
}

type createPairParams struct {
	MemberA string `json:"member_a"`
	MemberB string `json:"member_b"`
}

type pairActionParams struct {
	PairID string `json:"pair_id"`
}

// CreatePair creates an active pair joining the two members. Creating an
// already-joined pair is a conflict, not a retry.
func (s *Service) CreatePair(ctx context.Context, key, actorID, memberA, memberB string) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := createPairParams{MemberA: memberA, MemberB: memberB}
	return s.execute(ctx, key, routePairCreate, actorID, params, func(ctx context.Context) (any, error) {
		var snap *pair.Snapshot
		existing, err := s.store.GetPairByMembers(ctx, memberA, memberB)
		switch {
		case err == nil:
			snap = &pair.Snapshot{
				ID:      existing.ID,
				MemberA: existing.MemberA,
				MemberB: existing.MemberB,
				Status:  pair.Status(existing.Status),
			}
		case !isNotFound(err):
			return nil, fmt.Errorf("load pair by members: %w", err)
		}

		result, err := pair.Decide(snap, pair.ActionCreate, transition.Context{
			ActorID: actorID,
			Role:    transition.RoleMemberA,
		})
		if err != nil {
			return nil, err
		}

		pairID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate pair id: %w", err)
		}
		now := s.now().UTC()
		record := storage.Pair{
			ID:        pairID,
			MemberA:   memberA,
			MemberB:   memberB,
			Status:    string(result.Status),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.PutPair(ctx, record); err != nil {
			return nil, fmt.Errorf("put pair: %w", err)
		}
		return pairView(record, result.Events), nil
	})
}

// PausePair pauses an active pair. Pausing a paused pair is a safe retry.
func (s *Service) PausePair(ctx context.Context, key, actorID, pairID string) (idempotency.Result, error) {
	return s.pairAction(ctx, key, actorID, pairID, routePairPause, pair.ActionPause)
}

// ResumePair resumes a paused pair. Resuming an active pair is a safe retry.
func (s *Service) ResumePair(ctx context.Context, key, actorID, pairID string) (idempotency.Result, error) {
	return s.pairAction(ctx, key, actorID, pairID, routePairResume, pair.ActionResume)
}

func (s *Service) pairAction(ctx context.Context, key, actorID, pairID, route string, action pair.Action) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := pairActionParams{PairID: pairID}
	return s.execute(ctx, key, route, actorID, params, func(ctx context.Context) (any, error) {
		snap, record, err := s.loadPair(ctx, pairID)
		if err != nil {
			return nil, err
		}

		result, err := pair.Decide(snap, action, transition.Context{
			ActorID: actorID,
			Role:    pairRole(snap, actorID),
		})
		if err != nil {
			return nil, err
		}

		record.Status = string(result.Status)
		record.UpdatedAt = s.now().UTC()
		if err := s.store.PutPair(ctx, record); err != nil {
			return nil, fmt.Errorf("put pair: %w", err)
		}
		return pairView(record, result.Events), nil
	})
}

// GetPair returns one pair.
func (s *Service) GetPair(ctx context.Context, pairID string) (PairView, error) {
	record, err := s.store.GetPair(ctx, pairID)
	if err != nil {
		return PairView{}, err
	}
	return pairView(record, nil), nil
}

func (s *Service) loadPair(ctx context.Context, pairID string) (*pair.Snapshot, storage.Pair, error) {
	record, err := s.store.GetPair(ctx, pairID)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.Pair{}, nil
		}
		return nil, storage.Pair{}, fmt.Errorf("load pair: %w", err)
	}
	return &pair.Snapshot{
		ID:      record.ID,
		MemberA: record.MemberA,
		MemberB: record.MemberB,
		Status:  pair.Status(record.Status),
	}, record, nil
}

// pairRole resolves the actor's role from pair membership. A non-member
// keeps an empty role and fails the engine's role check.
func pairRole(snap *pair.Snapshot, actorID string) transition.Role {
	if snap == nil {
		return transition.RoleMemberA
	}
	switch actorID {
	case snap.MemberA:
		return transition.RoleMemberA
	case snap.MemberB:
		return transition.RoleMemberB
	default:
		return ""
	}
}

func pairView(record storage.Pair, events []transition.Event) PairView {
	return PairView{
		ID:      record.ID,
		MemberA: record.MemberA,
		MemberB: record.MemberB,
		Status:  record.Status,
		Events:  eventTypes(events),
	}
}
