// Package session implements the questionnaire session transition engine.
package session

import (
	"fmt"
	"time"

	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// Status describes the questionnaire session label.
type Status string

const (
	StatusUnspecified Status = ""
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
)

// Kind is a questionnaire session action kind.
type Kind string

const (
	KindStart    Kind = "start"
	KindAnswer   Kind = "answer"
	KindComplete Kind = "complete"
)

// Action carries a session action and its payload. Now is supplied by the
// caller so the engine stays clock-free.
type Action struct {
	Kind       Kind
	QuestionID string
	Now        time.Time
}

// Snapshot is the persisted session state read fresh before each transition.
type Snapshot struct {
	UserID          string
	QuestionnaireID string
	Status          Status
	AnsweredCount   int
	LastQuestionID  string
	LastAnsweredAt  time.Time
}

// Result is the proposed next state plus informational events.
type Result struct {
	Status         Status
	AnsweredCount  int
	LastQuestionID string
	LastAnsweredAt time.Time
	Events         []transition.Event
}

const (
	eventStarted   = "session.started"
	eventStartNoop = "session.start_noop"
	eventAnswered  = "session.answered"
	eventCompleted = "session.completed"
)

// Decide computes the session transition for the given action. A nil
// snapshot means no session exists: START creates one, while ANSWER and
// COMPLETE fail with not-found — there is nothing to transition.
func Decide(snap *Snapshot, act Action, ctx transition.Context) (Result, error) {
	if snap != nil && snap.UserID != ctx.ActorID {
		return Result{}, transition.Denied(transition.RoleOwner, ctx.Role, ctx.ActorID)
	}

	switch act.Kind {
	case KindStart:
		if snap == nil {
			return Result{
				Status: StatusInProgress,
				Events: []transition.Event{transition.NewEvent(eventStarted, nil)},
			}, nil
		}
		switch snap.Status {
		case StatusInProgress:
			return Result{
				Status:         StatusInProgress,
				AnsweredCount:  snap.AnsweredCount,
				LastQuestionID: snap.LastQuestionID,
				LastAnsweredAt: snap.LastAnsweredAt,
				Events:         []transition.Event{transition.NewEvent(eventStartNoop, nil)},
			}, nil
		default:
			return Result{}, conflict(snap, act, ctx)
		}

	case KindAnswer:
		if snap == nil {
			return Result{}, transition.NotFound("questionnaire session", string(act.Kind), ctx)
		}
		if snap.Status != StatusInProgress {
			return Result{}, conflict(snap, act, ctx)
		}
		return Result{
			Status:         StatusInProgress,
			AnsweredCount:  snap.AnsweredCount + 1,
			LastQuestionID: act.QuestionID,
			LastAnsweredAt: act.Now,
			Events: []transition.Event{transition.NewEvent(eventAnswered, map[string]string{
				"question_id": act.QuestionID,
			})},
		}, nil

	case KindComplete:
		if snap == nil {
			return Result{}, transition.NotFound("questionnaire session", string(act.Kind), ctx)
		}
		if snap.Status != StatusInProgress {
			return Result{}, conflict(snap, act, ctx)
		}
		return Result{
			Status:         StatusCompleted,
			AnsweredCount:  snap.AnsweredCount,
			LastQuestionID: snap.LastQuestionID,
			LastAnsweredAt: snap.LastAnsweredAt,
			Events:         []transition.Event{transition.NewEvent(eventCompleted, nil)},
		}, nil

	default:
		return Result{}, fmt.Errorf("unhandled session action %q", act.Kind)
	}
}

func conflict(snap *Snapshot, act Action, ctx transition.Context) *apperrors.Error {
	return transition.Conflict(apperrors.CodeSessionInvalidStatusTransition, string(snap.Status), string(act.Kind), ctx)
}
