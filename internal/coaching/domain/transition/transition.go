// Package transition holds shapes shared by the per-domain transition engines.
//
// Each domain package exposes a pure Decide function: given a snapshot, an
// action, and the acting context, it returns the proposed next state plus
// informational events, or a typed domain error. Engines never read storage
// or the clock; callers pass time in with the action when it matters.
package transition

import (
	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// Role is the domain-specific role the actor holds for a transition.
type Role string

const (
	// RoleMemberA and RoleMemberB identify the two members of a pair.
	RoleMemberA Role = "a"
	RoleMemberB Role = "b"
	// RoleInitiator and RoleRecipient identify the two sides of a match.
	RoleInitiator Role = "from"
	RoleRecipient Role = "to"
	// RoleOwner identifies the single owner of a per-user resource such as
	// a questionnaire session.
	RoleOwner Role = "owner"
)

// Context identifies the authenticated actor for a transition attempt.
// Identity and role resolution happen upstream; engines only check them.
type Context struct {
	ActorID string
	Role    Role
}

// Event is an informational signal for the surrounding system. Engines
// return events; they never dispatch them.
type Event struct {
	Type    string
	Payload map[string]string
}

// NewEvent builds an event with an optional flat payload.
func NewEvent(eventType string, payload map[string]string) Event {
	return Event{Type: eventType, Payload: payload}
}

// Denied builds the AccessDenied error raised when an action requires a role
// the actor does not hold. Role checks run before any status check.
func Denied(expected, actual Role, actorID string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeAccessDenied, "actor role is not permitted for this action", map[string]string{
		"expected_role": string(expected),
		"actual_role":   string(actual),
		"actor_id":      actorID,
	})
}

// Conflict builds the StateConflict error raised when an action is applied
// to a snapshot status outside its legal predecessor set.
func Conflict(code apperrors.Code, status, action string, ctx Context) *apperrors.Error {
	return apperrors.WithMetadata(code, "action is not allowed from the current status", map[string]string{
		"status":   status,
		"action":   action,
		"role":     string(ctx.Role),
		"actor_id": ctx.ActorID,
	})
}

// NotFound builds the error raised when an action references an entity that
// does not exist; there is nothing to transition.
func NotFound(entity, action string, ctx Context) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, entity+" does not exist", map[string]string{
		"entity":   entity,
		"action":   action,
		"actor_id": ctx.ActorID,
	})
}
