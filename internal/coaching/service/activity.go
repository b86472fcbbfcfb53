package service

import (
	"context"
	"fmt"

	"github.com/kindredlabs/kindred/internal/coaching/domain/activity"
	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/storage"
)

// ActivityView is the response payload for activity mutations.
type ActivityView struct {
	ID           string   `json:"id"`
	PairID       string   `json:"pair_id"`
	Status       string   `json:"status"`
	OutcomeScore float64  `json:"outcome_score,omitempty"`
	AnswerCount  int      `json:"answer_count"`
	Events       []string `json:"events"`
}

// CheckinAnswerInput is one check-in answer submitted by a member.
type CheckinAnswerInput struct {
	QuestionID string `json:"question_id"`
	Value      int    `json:"value"`
}

type activityActionParams struct {
	ActivityID string               `json:"activity_id"`
	Answers    []CheckinAnswerInput `json:"answers,omitempty"`
	Outcome    string               `json:"outcome,omitempty"`
	Score      float64              `json:"score,omitempty"`
}

// OfferActivity creates a new activity offered to a pair.
func (s *Service) OfferActivity(ctx context.Context, pairID string) (ActivityView, error) {
	activityID, err := s.newID()
	if err != nil {
		return ActivityView{}, fmt.Errorf("generate activity id: %w", err)
	}
	now := s.now().UTC()
	record := storage.Activity{
		ID:        activityID,
		PairID:    pairID,
		Status:    string(activity.StatusOffered),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.PutActivity(ctx, record); err != nil {
		return ActivityView{}, fmt.Errorf("put activity: %w", err)
	}
	return activityView(record, 0, nil), nil
}

// AcceptActivity accepts an offered activity. Re-accepting is a safe retry.
func (s *Service) AcceptActivity(ctx context.Context, key, actorID, activityID string) (idempotency.Result, error) {
	return s.activityAction(ctx, key, actorID, routeActivityAccept,
		activityActionParams{ActivityID: activityID},
		activity.Action{Kind: activity.KindAccept})
}

// CancelActivity cancels an open activity. Re-cancelling is a safe retry.
func (s *Service) CancelActivity(ctx context.Context, key, actorID, activityID string) (idempotency.Result, error) {
	return s.activityAction(ctx, key, actorID, routeActivityCancel,
		activityActionParams{ActivityID: activityID},
		activity.Action{Kind: activity.KindCancel})
}

// CheckinActivity appends check-in answers to an open activity and parks it
// awaiting further check-ins.
func (s *Service) CheckinActivity(ctx context.Context, key, actorID, activityID string, answers []CheckinAnswerInput) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	now := s.now().UTC()
	converted := make([]activity.CheckinAnswer, 0, len(answers))
	for _, answer := range answers {
		converted = append(converted, activity.CheckinAnswer{
			QuestionID:  answer.QuestionID,
			Value:       answer.Value,
			ActorUserID: actorID,
			AnsweredAt:  now,
		})
	}
	return s.activityAction(ctx, key, actorID, routeActivityCheckin,
		activityActionParams{ActivityID: activityID, Answers: answers},
		activity.Action{Kind: activity.KindCheckin, Answers: converted})
}

// CompleteActivity closes an open activity with a terminal outcome.
func (s *Service) CompleteActivity(ctx context.Context, key, actorID, activityID, outcome string, score float64) (idempotency.Result, error) {
	return s.activityAction(ctx, key, actorID, routeActivityComplete,
		activityActionParams{ActivityID: activityID, Outcome: outcome, Score: score},
		activity.Action{Kind: activity.KindComplete, Outcome: activity.Status(outcome), Score: score})
}

func (s *Service) activityAction(ctx context.Context, key, actorID, route string, params activityActionParams, action activity.Action) (idempotency.Result, error) {
	actorID = s.actor(ctx, actorID)
	return s.execute(ctx, key, route, actorID, params, func(ctx context.Context) (any, error) {
		snap, record, err := s.loadActivity(ctx, params.ActivityID)
		if err != nil {
			return nil, err
		}

		result, err := activity.Decide(snap, action, transition.Context{ActorID: actorID})
		if err != nil {
			return nil, err
		}

		if action.Kind == activity.KindCheckin {
			if err := s.store.AppendCheckins(ctx, record.ID, checkinRecords(record.ID, action.Answers)); err != nil {
				return nil, fmt.Errorf("append checkins: %w", err)
			}
		}

		record.Status = string(result.Status)
		record.OutcomeScore = result.OutcomeScore
		record.UpdatedAt = s.now().UTC()
		if err := s.store.PutActivity(ctx, record); err != nil {
			return nil, fmt.Errorf("put activity: %w", err)
		}
		return activityView(record, len(result.Answers), result.Events), nil
	})
}

// GetActivity returns one activity with its check-in count.
func (s *Service) GetActivity(ctx context.Context, activityID string) (ActivityView, error) {
	record, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return ActivityView{}, err
	}
	checkins, err := s.store.ListCheckins(ctx, activityID)
	if err != nil {
		return ActivityView{}, err
	}
	return activityView(record, len(checkins), nil), nil
}

func (s *Service) loadActivity(ctx context.Context, activityID string) (*activity.Snapshot, storage.Activity, error) {
	record, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.Activity{}, nil
		}
		return nil, storage.Activity{}, fmt.Errorf("load activity: %w", err)
	}
	checkins, err := s.store.ListCheckins(ctx, activityID)
	if err != nil {
		return nil, storage.Activity{}, fmt.Errorf("load checkins: %w", err)
	}
	answers := make([]activity.CheckinAnswer, 0, len(checkins))
	for _, checkin := range checkins {
		answers = append(answers, activity.CheckinAnswer{
			QuestionID:  checkin.QuestionID,
			Value:       checkin.Value,
			ActorUserID: checkin.ActorUserID,
			AnsweredAt:  checkin.AnsweredAt,
		})
	}
	return &activity.Snapshot{
		ID:      record.ID,
		PairID:  record.PairID,
		Status:  activity.Status(record.Status),
		Answers: answers,
	}, record, nil
}

func checkinRecords(activityID string, answers []activity.CheckinAnswer) []storage.ActivityCheckin {
	records := make([]storage.ActivityCheckin, 0, len(answers))
	for _, answer := range answers {
		records = append(records, storage.ActivityCheckin{
			ActivityID:  activityID,
			QuestionID:  answer.QuestionID,
			Value:       answer.Value,
			ActorUserID: answer.ActorUserID,
			AnsweredAt:  answer.AnsweredAt,
		})
	}
	return records
}

func activityView(record storage.Activity, answerCount int, events []transition.Event) ActivityView {
	return ActivityView{
		ID:           record.ID,
		PairID:       record.PairID,
		Status:       record.Status,
		OutcomeScore: record.OutcomeScore,
		AnswerCount:  answerCount,
		Events:       eventTypes(events),
	}
}
