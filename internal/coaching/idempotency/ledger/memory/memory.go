// Package memory provides an in-process idempotency ledger backed by a map.
// It is intended for tests and single-process setups.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
)

type ledgerKey struct {
	key     string
	route   string
	actorID string
}

// Ledger is a mutex-guarded in-memory idempotency ledger.
type Ledger struct {
	mu      sync.Mutex
	records map[ledgerKey]idempotency.Record
}

// New creates an empty in-memory ledger.
func New() *Ledger {
	return &Ledger{records: make(map[ledgerKey]idempotency.Record)}
}

// BeginAttempt inserts rec if no record exists for its (key, route, actor).
// When the insert wins it returns the inserted record with inserted=true;
// otherwise it returns the existing record untouched.
func (l *Ledger) BeginAttempt(_ context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{key: rec.Key, route: rec.Route, actorID: rec.ActorID}
	if existing, ok := l.records[k]; ok {
		return clone(existing), false, nil
	}
	l.records[k] = clone(rec)
	return clone(rec), true, nil
}

// CompleteAttempt finalizes an in-progress record with its response envelope.
func (l *Ledger) CompleteAttempt(_ context.Context, key, route, actorID, requestHash string, httpStatus int, envelope json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{key: key, route: route, actorID: actorID}
	rec, ok := l.records[k]
	if !ok || rec.RequestHash != requestHash {
		return idempotency.ErrRecordNotFound
	}
	if rec.State != idempotency.StateInProgress {
		return idempotency.ErrAlreadyFinalized
	}

	rec.State = idempotency.StateCompleted
	rec.HTTPStatus = httpStatus
	rec.ResponseEnvelope = append(json.RawMessage(nil), envelope...)
	rec.UpdatedAt = time.Now().UTC()
	l.records[k] = rec
	return nil
}

func clone(rec idempotency.Record) idempotency.Record {
	out := rec
	out.ResponseEnvelope = append(json.RawMessage(nil), rec.ResponseEnvelope...)
	return out
}
