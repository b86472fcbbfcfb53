// Package idempotency guarantees at-most-once execution of state-changing
// operations per client-supplied idempotency key.
//
// The coordinator leans on a single concurrency primitive: an atomic
// "insert if absent, else return existing" on the persistent ledger. Exactly
// one caller observes a fresh insert and runs the business function; every
// concurrent or retried duplicate observes reuse-conflict, in-progress, or a
// verbatim replay of the stored response.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// State tracks a ledger record's lifecycle. Records move from in-progress to
// completed exactly once and are never updated afterwards.
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Record is one idempotency ledger row, uniquely keyed by
// (key, route, actor).
type Record struct {
	Key              string
	Route            string
	ActorID          string
	RequestHash      string
	State            State
	HTTPStatus       int
	ResponseEnvelope json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ErrRecordNotFound indicates a finalize targeted a ledger row that does not
// exist.
var ErrRecordNotFound = errors.New("idempotency record not found")

// ErrAlreadyFinalized indicates a finalize targeted a ledger row that is no
// longer in progress. Completed rows are write-once.
var ErrAlreadyFinalized = errors.New("idempotency record already finalized")

// Ledger is the persistent idempotency ledger contract. Any storage with
// unique-constraint or compare-and-swap semantics can implement it.
type Ledger interface {
	// BeginAttempt atomically inserts rec when no row exists for its
	// (key, route, actor) and reports inserted=true. When a row already
	// exists — including one inserted by a concurrent racer — it returns
	// that row with inserted=false.
	BeginAttempt(ctx context.Context, rec Record) (existing Record, inserted bool, err error)

	// CompleteAttempt finalizes the in-progress row identified by
	// (key, route, actor, requestHash) with its terminal status and
	// envelope. It fails with ErrRecordNotFound or ErrAlreadyFinalized
	// rather than touching a completed row.
	CompleteAttempt(ctx context.Context, key, route, actorID, requestHash string, httpStatus int, envelope json.RawMessage) error
}
