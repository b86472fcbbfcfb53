// Package match implements the match handshake transition engine.
//
// A match starts as a draft held by the initiator, is sent to the recipient,
// and converges to paired through an explicit two-sided handshake: the
// recipient responds, the initiator accepts, then confirms. The recipient can
// independently reject a sent or viewed match.
package match

import (
	"fmt"
	"strings"

	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// Status describes the match handshake label.
type Status string

const (
	StatusUnspecified       Status = ""
	StatusDraft             Status = "draft"
	StatusSent              Status = "sent"
	StatusViewed            Status = "viewed"
	StatusAwaitingInitiator Status = "awaiting_initiator"
	StatusMutualReady       Status = "mutual_ready"
	StatusPaired            Status = "paired"
	StatusRejected          Status = "rejected"
)

// Kind is a match handshake action kind.
type Kind string

const (
	KindCreate  Kind = "create"
	KindRespond Kind = "respond"
	KindAccept  Kind = "accept"
	KindConfirm Kind = "confirm"
	KindReject  Kind = "reject"
)

// Action carries a handshake action and its payload.
type Action struct {
	Kind Kind
	// Response is the recipient's answer payload; required for RESPOND.
	Response string
}

// Snapshot is the persisted match state read fresh before each transition.
type Snapshot struct {
	ID                string
	FromUserID        string
	ToUserID          string
	Status            Status
	RecipientResponse string
}

// Result is the proposed next state plus informational events.
type Result struct {
	Status            Status
	RecipientResponse string
	Events            []transition.Event
}

const (
	eventSent       = "match.sent"
	eventResponded  = "match.responded"
	eventAccepted   = "match.accepted"
	eventPaired     = "match.paired"
	eventRejected   = "match.rejected"
	eventRejectNoop = "match.reject_noop"
)

// Decide computes the match transition for the given action. A nil snapshot
// means the match does not exist yet; only CREATE accepts it.
func Decide(snap *Snapshot, act Action, ctx transition.Context) (Result, error) {
	switch act.Kind {
	case KindCreate:
		if ctx.Role != transition.RoleInitiator {
			return Result{}, transition.Denied(transition.RoleInitiator, ctx.Role, ctx.ActorID)
		}
		if snap == nil {
			return Result{
				Status: StatusSent,
				Events: []transition.Event{transition.NewEvent(eventSent, nil)},
			}, nil
		}
		if snap.FromUserID != ctx.ActorID {
			return Result{}, transition.Denied(transition.RoleInitiator, ctx.Role, ctx.ActorID)
		}
		if snap.Status != StatusDraft {
			return Result{}, conflict(snap, act, ctx)
		}
		return Result{
			Status: StatusSent,
			Events: []transition.Event{transition.NewEvent(eventSent, nil)},
		}, nil

	case KindRespond:
		if err := requireRecipient(snap, act, ctx); err != nil {
			return Result{}, err
		}
		if snap.Status != StatusSent && snap.Status != StatusViewed {
			return Result{}, conflict(snap, act, ctx)
		}
		response := strings.TrimSpace(act.Response)
		if response == "" {
			return Result{}, transition.Conflict(apperrors.CodeMatchResponseRequired, string(snap.Status), string(act.Kind), ctx)
		}
		return Result{
			Status:            StatusAwaitingInitiator,
			RecipientResponse: response,
			Events:            []transition.Event{transition.NewEvent(eventResponded, nil)},
		}, nil

	case KindAccept:
		if err := requireInitiator(snap, act, ctx); err != nil {
			return Result{}, err
		}
		if snap.Status != StatusAwaitingInitiator {
			return Result{}, conflict(snap, act, ctx)
		}
		if strings.TrimSpace(snap.RecipientResponse) == "" {
			return Result{}, transition.Conflict(apperrors.CodeMatchResponseRequired, string(snap.Status), string(act.Kind), ctx)
		}
		return Result{
			Status:            StatusMutualReady,
			RecipientResponse: snap.RecipientResponse,
			Events:            []transition.Event{transition.NewEvent(eventAccepted, nil)},
		}, nil

	case KindConfirm:
		if err := requireInitiator(snap, act, ctx); err != nil {
			return Result{}, err
		}
		if snap.Status != StatusMutualReady {
			return Result{}, conflict(snap, act, ctx)
		}
		return Result{
			Status:            StatusPaired,
			RecipientResponse: snap.RecipientResponse,
			Events:            []transition.Event{transition.NewEvent(eventPaired, nil)},
		}, nil

	case KindReject:
		if err := requireRecipient(snap, act, ctx); err != nil {
			return Result{}, err
		}
		switch snap.Status {
		case StatusRejected:
			// Re-rejecting is a safe retry.
			return Result{
				Status:            StatusRejected,
				RecipientResponse: snap.RecipientResponse,
				Events:            []transition.Event{transition.NewEvent(eventRejectNoop, nil)},
			}, nil
		case StatusSent, StatusViewed:
			return Result{
				Status:            StatusRejected,
				RecipientResponse: snap.RecipientResponse,
				Events:            []transition.Event{transition.NewEvent(eventRejected, map[string]string{"actor_id": ctx.ActorID})},
			}, nil
		default:
			return Result{}, conflict(snap, act, ctx)
		}

	default:
		return Result{}, fmt.Errorf("unhandled match action %q", act.Kind)
	}
}

func requireInitiator(snap *Snapshot, act Action, ctx transition.Context) error {
	if ctx.Role != transition.RoleInitiator {
		return transition.Denied(transition.RoleInitiator, ctx.Role, ctx.ActorID)
	}
	if snap == nil {
		return transition.NotFound("match", string(act.Kind), ctx)
	}
	if snap.FromUserID != ctx.ActorID {
		return transition.Denied(transition.RoleInitiator, ctx.Role, ctx.ActorID)
	}
	return nil
}

func requireRecipient(snap *Snapshot, act Action, ctx transition.Context) error {
	if ctx.Role != transition.RoleRecipient {
		return transition.Denied(transition.RoleRecipient, ctx.Role, ctx.ActorID)
	}
	if snap == nil {
		return transition.NotFound("match", string(act.Kind), ctx)
	}
	if snap.ToUserID != ctx.ActorID {
		return transition.Denied(transition.RoleRecipient, ctx.Role, ctx.ActorID)
	}
	return nil
}

func conflict(snap *Snapshot, act Action, ctx transition.Context) *apperrors.Error {
	return transition.Conflict(apperrors.CodeMatchInvalidStatusTransition, string(snap.Status), string(act.Kind), ctx)
}
