package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kindredlabs/kindred/internal/coaching/domain/session"
	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/storage"
	"github.com/kindredlabs/kindred/internal/coaching/traits"
)

// SessionView is the response payload for questionnaire session mutations.
type SessionView struct {
	UserID          string   `json:"user_id"`
	QuestionnaireID string   `json:"questionnaire_id"`
	Status          string   `json:"status"`
	AnsweredCount   int      `json:"answered_count"`
	LastQuestionID  string   `json:"last_question_id,omitempty"`
	Events          []string `json:"events"`
	// Levels reports trait levels touched by an answer, keyed by axis.
	Levels map[string]float64 `json:"levels,omitempty"`
}

type sessionStartParams struct {
	QuestionnaireID string `json:"questionnaire_id"`
}

type sessionAnswerParams struct {
	QuestionnaireID string `json:"questionnaire_id"`
	QuestionID      string `json:"question_id"`
	Value           int    `json:"value"`
}

// StartSession starts a questionnaire session for the actor. Re-starting an
// in-progress session is a safe retry.
func (s *Service) StartSession(ctx context.Context, key, actorID, questionnaireID string) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := sessionStartParams{QuestionnaireID: questionnaireID}
	return s.execute(ctx, key, routeSessionStart, actorID, params, func(ctx context.Context) (any, error) {
		snap, record, err := s.loadSession(ctx, actorID, questionnaireID)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		result, err := session.Decide(snap, session.Action{Kind: session.KindStart, Now: now}, transition.Context{
			ActorID: actorID,
			Role:    transition.RoleOwner,
		})
		if err != nil {
			return nil, err
		}

		if snap == nil {
			record = storage.QuestionnaireSession{
				UserID:          actorID,
				QuestionnaireID: questionnaireID,
				CreatedAt:       now,
				LastAnsweredAt:  time.UnixMilli(0).UTC(),
			}
		}
		record = applySessionResult(record, result, now)
		if err := s.store.PutSession(ctx, record); err != nil {
			return nil, fmt.Errorf("put session: %w", err)
		}
		return sessionView(record, result.Events, nil), nil
	})
}

// AnswerSession records one questionnaire answer and folds it into the
// actor's trait profile in the same operation.
func (s *Service) AnswerSession(ctx context.Context, key, actorID, questionnaireID, questionID string, value int) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := sessionAnswerParams{QuestionnaireID: questionnaireID, QuestionID: questionID, Value: value}
	return s.execute(ctx, key, routeSessionAnswer, actorID, params, func(ctx context.Context) (any, error) {
		snap, record, err := s.loadSession(ctx, actorID, questionnaireID)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		result, err := session.Decide(snap, session.Action{
			Kind:       session.KindAnswer,
			QuestionID: questionID,
			Now:        now,
		}, transition.Context{ActorID: actorID, Role: transition.RoleOwner})
		if err != nil {
			return nil, err
		}

		record = applySessionResult(record, result, now)
		if err := s.store.PutSession(ctx, record); err != nil {
			return nil, fmt.Errorf("put session: %w", err)
		}

		levels, err := s.absorbAnswers(ctx, actorID, []traits.Answer{{QuestionID: questionID, UIValue: value}}, now)
		if err != nil {
			return nil, err
		}
		return sessionView(record, result.Events, levels), nil
	})
}

// CompleteSession closes an in-progress questionnaire session.
func (s *Service) CompleteSession(ctx context.Context, key, actorID, questionnaireID string) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	params := sessionStartParams{QuestionnaireID: questionnaireID}
	return s.execute(ctx, key, routeSessionComplete, actorID, params, func(ctx context.Context) (any, error) {
		snap, record, err := s.loadSession(ctx, actorID, questionnaireID)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		result, err := session.Decide(snap, session.Action{Kind: session.KindComplete, Now: now}, transition.Context{
			ActorID: actorID,
			Role:    transition.RoleOwner,
		})
		if err != nil {
			return nil, err
		}

		record = applySessionResult(record, result, now)
		if err := s.store.PutSession(ctx, record); err != nil {
			return nil, fmt.Errorf("put session: %w", err)
		}
		return sessionView(record, result.Events, nil), nil
	})
}

// absorbAnswers scores an answer batch against the catalog and applies the
// resulting delta to the actor's persisted trait profile. It returns the new
// level per touched axis.
func (s *Service) absorbAnswers(ctx context.Context, userID string, answers []traits.Answer, now time.Time) (map[string]float64, error) {
	delta := traits.ScoreAnswers(answers, s.catalog, s.traitCfg)
	if len(delta.Levels) == 0 && len(delta.Positives) == 0 && len(delta.Negatives) == 0 {
		return nil, nil
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	applied := traits.ApplyDelta(profile, delta, s.traitCfg)

	axes := make([]storage.TraitAxis, 0, len(applied.Levels))
	for axis := range applied.Levels {
		state := applied.Profile[axis]
		axes = append(axes, storage.TraitAxis{
			UserID:    userID,
			Axis:      string(axis),
			Level:     state.Level,
			Positives: state.Positives,
			Negatives: state.Negatives,
			UpdatedAt: now,
		})
	}
	if err := s.store.PutTraitAxes(ctx, userID, axes); err != nil {
		return nil, fmt.Errorf("put trait axes: %w", err)
	}

	levels := make(map[string]float64, len(applied.Levels))
	for axis, level := range applied.Levels {
		levels[string(axis)] = level
	}
	return levels, nil
}

func (s *Service) loadSession(ctx context.Context, userID, questionnaireID string) (*session.Snapshot, storage.QuestionnaireSession, error) {
	record, err := s.store.GetSession(ctx, userID, questionnaireID)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.QuestionnaireSession{}, nil
		}
		return nil, storage.QuestionnaireSession{}, fmt.Errorf("load session: %w", err)
	}
	return &session.Snapshot{
		UserID:          record.UserID,
		QuestionnaireID: record.QuestionnaireID,
		Status:          session.Status(record.Status),
		AnsweredCount:   record.AnsweredCount,
		LastQuestionID:  record.LastQuestionID,
		LastAnsweredAt:  record.LastAnsweredAt,
	}, record, nil
}

func applySessionResult(record storage.QuestionnaireSession, result session.Result, now time.Time) storage.QuestionnaireSession {
	record.Status = string(result.Status)
	record.AnsweredCount = result.AnsweredCount
	record.LastQuestionID = result.LastQuestionID
	if !result.LastAnsweredAt.IsZero() {
		record.LastAnsweredAt = result.LastAnsweredAt
	}
	record.UpdatedAt = now
	return record
}

func sessionView(record storage.QuestionnaireSession, events []transition.Event, levels map[string]float64) SessionView {
	return SessionView{
		UserID:          record.UserID,
		QuestionnaireID: record.QuestionnaireID,
		Status:          record.Status,
		AnsweredCount:   record.AnsweredCount,
		LastQuestionID:  record.LastQuestionID,
		Events:          eventTypes(events),
		Levels:          levels,
	}
}
