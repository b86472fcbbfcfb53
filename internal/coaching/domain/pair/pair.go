// Package pair implements the pair lifecycle transition engine.
package pair

import (
	"fmt"

	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// Status describes the pair lifecycle label.
type Status string

const (
	StatusUnspecified Status = ""
	StatusActive      Status = "active"
	StatusPaused      Status = "paused"
)

// Action is a pair lifecycle action.
type Action string

const (
	ActionCreate Action = "create"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
)

// Snapshot is the persisted pair state read fresh before each transition.
type Snapshot struct {
	ID      string
	MemberA string
	MemberB string
	Status  Status
}

// Result is the proposed next state plus informational events.
type Result struct {
	Status Status
	Events []transition.Event
}

const (
	eventCreated    = "pair.created"
	eventPaused     = "pair.paused"
	eventPauseNoop  = "pair.pause_noop"
	eventResumed    = "pair.resumed"
	eventResumeNoop = "pair.resume_noop"
)

// Decide computes the pair transition for the given action. A nil snapshot
// means the pair does not exist yet; only CREATE accepts it.
func Decide(snap *Snapshot, action Action, ctx transition.Context) (Result, error) {
	switch action {
	case ActionCreate:
		if snap != nil {
			return Result{}, transition.Conflict(apperrors.CodePairAlreadyExists, string(snap.Status), string(action), ctx)
		}
		return Result{
			Status: StatusActive,
			Events: []transition.Event{transition.NewEvent(eventCreated, nil)},
		}, nil

	case ActionPause:
		if snap == nil {
			return Result{}, transition.NotFound("pair", string(action), ctx)
		}
		if err := requireMember(snap, ctx); err != nil {
			return Result{}, err
		}
		switch snap.Status {
		case StatusPaused:
			// Re-pausing a paused pair is a safe retry, not a conflict.
			return Result{
				Status: StatusPaused,
				Events: []transition.Event{transition.NewEvent(eventPauseNoop, nil)},
			}, nil
		case StatusActive:
			return Result{
				Status: StatusPaused,
				Events: []transition.Event{transition.NewEvent(eventPaused, map[string]string{"actor_id": ctx.ActorID})},
			}, nil
		default:
			return Result{}, transition.Conflict(apperrors.CodePairInvalidStatusTransition, string(snap.Status), string(action), ctx)
		}

	case ActionResume:
		if snap == nil {
			return Result{}, transition.NotFound("pair", string(action), ctx)
		}
		if err := requireMember(snap, ctx); err != nil {
			return Result{}, err
		}
		switch snap.Status {
		case StatusActive:
			return Result{
				Status: StatusActive,
				Events: []transition.Event{transition.NewEvent(eventResumeNoop, nil)},
			}, nil
		case StatusPaused:
			return Result{
				Status: StatusActive,
				Events: []transition.Event{transition.NewEvent(eventResumed, map[string]string{"actor_id": ctx.ActorID})},
			}, nil
		default:
			return Result{}, transition.Conflict(apperrors.CodePairInvalidStatusTransition, string(snap.Status), string(action), ctx)
		}

	default:
		return Result{}, fmt.Errorf("unhandled pair action %q", action)
	}
}

// requireMember rejects actors that are not part of the pair.
func requireMember(snap *Snapshot, ctx transition.Context) error {
	switch ctx.Role {
	case transition.RoleMemberA:
		if snap.MemberA != ctx.ActorID {
			return transition.Denied(transition.RoleMemberA, ctx.Role, ctx.ActorID)
		}
	case transition.RoleMemberB:
		if snap.MemberB != ctx.ActorID {
			return transition.Denied(transition.RoleMemberB, ctx.Role, ctx.ActorID)
		}
	default:
		return transition.Denied(transition.RoleMemberA, ctx.Role, ctx.ActorID)
	}
	return nil
}
