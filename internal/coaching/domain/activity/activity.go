// Package activity implements the guided-activity completion transition engine.
package activity

import (
	"fmt"
	"time"

	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// Status describes the activity lifecycle label.
type Status string

const (
	StatusUnspecified      Status = ""
	StatusOffered          Status = "offered"
	StatusAccepted         Status = "accepted"
	StatusInProgress       Status = "in_progress"
	StatusAwaitingCheckin  Status = "awaiting_checkin"
	StatusCancelled        Status = "cancelled"
	StatusCompletedSuccess Status = "completed_success"
	StatusCompletedPartial Status = "completed_partial"
	StatusFailed           Status = "failed"
)

// Kind is an activity lifecycle action kind.
type Kind string

const (
	KindAccept   Kind = "accept"
	KindCancel   Kind = "cancel"
	KindCheckin  Kind = "checkin"
	KindComplete Kind = "complete"
)

// CheckinAnswer records one check-in answer. Answers are append-only; a
// later check-in never rewrites an earlier one.
type CheckinAnswer struct {
	QuestionID  string
	Value       int
	ActorUserID string
	AnsweredAt  time.Time
}

// Action carries an activity action and its payload.
type Action struct {
	Kind Kind
	// Answers are the check-in answers to append; used by CHECKIN.
	Answers []CheckinAnswer
	// Outcome and Score are the caller-computed completion result; used by
	// COMPLETE. Outcome must be one of the three terminal completion
	// statuses.
	Outcome Status
	Score   float64
}

// Snapshot is the persisted activity state read fresh before each transition.
type Snapshot struct {
	ID      string
	PairID  string
	Status  Status
	Answers []CheckinAnswer
}

// Result is the proposed next state plus informational events.
type Result struct {
	Status       Status
	Answers      []CheckinAnswer
	OutcomeScore float64
	Events       []transition.Event
}

const (
	eventAccepted   = "activity.accepted"
	eventAcceptNoop = "activity.accept_noop"
	eventCancelled  = "activity.cancelled"
	eventCancelNoop = "activity.cancel_noop"
	eventCheckin    = "activity.checkin"
	eventCompleted  = "activity.completed"
)

// Decide computes the activity transition for the given action.
func Decide(snap *Snapshot, act Action, ctx transition.Context) (Result, error) {
	if snap == nil {
		return Result{}, transition.NotFound("activity", string(act.Kind), ctx)
	}

	switch act.Kind {
	case KindAccept:
		switch snap.Status {
		case StatusAccepted:
			return Result{
				Status:  StatusAccepted,
				Answers: snap.Answers,
				Events:  []transition.Event{transition.NewEvent(eventAcceptNoop, nil)},
			}, nil
		case StatusOffered:
			return Result{
				Status:  StatusAccepted,
				Answers: snap.Answers,
				Events:  []transition.Event{transition.NewEvent(eventAccepted, map[string]string{"actor_id": ctx.ActorID})},
			}, nil
		default:
			return Result{}, conflict(snap, act, ctx)
		}

	case KindCancel:
		switch snap.Status {
		case StatusCancelled:
			return Result{
				Status:  StatusCancelled,
				Answers: snap.Answers,
				Events:  []transition.Event{transition.NewEvent(eventCancelNoop, nil)},
			}, nil
		case StatusOffered, StatusAccepted, StatusInProgress, StatusAwaitingCheckin:
			return Result{
				Status:  StatusCancelled,
				Answers: snap.Answers,
				Events:  []transition.Event{transition.NewEvent(eventCancelled, map[string]string{"actor_id": ctx.ActorID})},
			}, nil
		default:
			return Result{}, conflict(snap, act, ctx)
		}

	case KindCheckin:
		switch snap.Status {
		case StatusAccepted, StatusInProgress, StatusAwaitingCheckin:
		default:
			return Result{}, conflict(snap, act, ctx)
		}
		// Existing answers are preserved; new ones are appended after them.
		answers := make([]CheckinAnswer, 0, len(snap.Answers)+len(act.Answers))
		answers = append(answers, snap.Answers...)
		answers = append(answers, act.Answers...)
		return Result{
			Status:  StatusAwaitingCheckin,
			Answers: answers,
			Events: []transition.Event{transition.NewEvent(eventCheckin, map[string]string{
				"actor_id":     ctx.ActorID,
				"answer_count": fmt.Sprintf("%d", len(act.Answers)),
			})},
		}, nil

	case KindComplete:
		switch snap.Status {
		case StatusAccepted, StatusInProgress, StatusAwaitingCheckin:
		default:
			return Result{}, conflict(snap, act, ctx)
		}
		switch act.Outcome {
		case StatusCompletedSuccess, StatusCompletedPartial, StatusFailed:
		default:
			return Result{}, apperrors.WithMetadata(apperrors.CodeActivityInvalidOutcome, "completion outcome must be a terminal status", map[string]string{
				"outcome": string(act.Outcome),
			})
		}
		return Result{
			Status:       act.Outcome,
			Answers:      snap.Answers,
			OutcomeScore: act.Score,
			Events: []transition.Event{transition.NewEvent(eventCompleted, map[string]string{
				"outcome": string(act.Outcome),
			})},
		}, nil

	default:
		return Result{}, fmt.Errorf("unhandled activity action %q", act.Kind)
	}
}

func conflict(snap *Snapshot, act Action, ctx transition.Context) *apperrors.Error {
	return transition.Conflict(apperrors.CodeActivityInvalidStatusTransition, string(snap.Status), string(act.Kind), ctx)
}
