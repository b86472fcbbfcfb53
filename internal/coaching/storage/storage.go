// Package storage defines persistence contracts for coaching state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Pair stores one coaching pair and its lifecycle status.
type Pair struct {
	ID        string
	MemberA   string
	MemberB   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Match stores one directed match proposal between two users.
type Match struct {
	ID                string
	FromUserID        string
	ToUserID          string
	Status            string
	RecipientResponse string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Activity stores one coaching activity offered to a pair.
type Activity struct {
	ID           string
	PairID       string
	Status       string
	OutcomeScore float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActivityCheckin stores one recorded check-in answer for an activity.
type ActivityCheckin struct {
	ActivityID  string
	QuestionID  string
	Value       int
	ActorUserID string
	AnsweredAt  time.Time
}

// QuestionnaireSession stores one user's questionnaire progress.
type QuestionnaireSession struct {
	UserID          string
	QuestionnaireID string
	Status          string
	AnsweredCount   int
	LastQuestionID  string
	LastAnsweredAt  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Question stores one catalog question definition.
type Question struct {
	ID       string
	Axis     string
	Facet    string
	Weight   float64
	ValueMap []float64
}

// TraitAxis stores one axis of a user's trait profile.
type TraitAxis struct {
	UserID    string
	Axis      string
	Level     float64
	Positives []string
	Negatives []string
	UpdatedAt time.Time
}

// PairStore persists coaching pairs.
type PairStore interface {
	PutPair(ctx context.Context, pair Pair) error
	GetPair(ctx context.Context, id string) (Pair, error)
	GetPairByMembers(ctx context.Context, memberA string, memberB string) (Pair, error)
}

// MatchStore persists match proposals.
type MatchStore interface {
	PutMatch(ctx context.Context, match Match) error
	GetMatch(ctx context.Context, id string) (Match, error)
}

// ActivityStore persists activities and their check-ins.
type ActivityStore interface {
	PutActivity(ctx context.Context, activity Activity) error
	GetActivity(ctx context.Context, id string) (Activity, error)
	AppendCheckins(ctx context.Context, activityID string, checkins []ActivityCheckin) error
	ListCheckins(ctx context.Context, activityID string) ([]ActivityCheckin, error)
}

// SessionStore persists questionnaire sessions.
type SessionStore interface {
	PutSession(ctx context.Context, session QuestionnaireSession) error
	GetSession(ctx context.Context, userID string, questionnaireID string) (QuestionnaireSession, error)
}

// QuestionStore persists catalog question definitions.
type QuestionStore interface {
	PutQuestions(ctx context.Context, questions []Question) error
	ListQuestions(ctx context.Context) ([]Question, error)
}

// TraitStore persists per-axis trait profiles.
type TraitStore interface {
	PutTraitAxes(ctx context.Context, userID string, axes []TraitAxis) error
	GetTraitAxes(ctx context.Context, userID string) ([]TraitAxis, error)
}

// Store aggregates all coaching persistence contracts.
type Store interface {
	PairStore
	MatchStore
	ActivityStore
	SessionStore
	QuestionStore
	TraitStore
	Close() error
}
