// Package service coordinates coaching mutations end to end: each operation
// runs through the idempotency coordinator, reads a fresh snapshot, asks the
// domain engine to decide the transition, and persists the proposed state.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kindredlabs/kindred/internal/coaching/domain/transition"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/storage"
	"github.com/kindredlabs/kindred/internal/coaching/traits"
	"github.com/kindredlabs/kindred/internal/platform/id"
	"github.com/kindredlabs/kindred/internal/platform/requestctx"
)

// Mutation routes. Routes scope idempotency keys, so two different
// operations never collide on the same key.
const (
	routePairCreate       = "/pairs"
	routePairPause        = "/pairs/pause"
	routePairResume       = "/pairs/resume"
	routeMatchCreate      = "/matches"
	routeMatchRespond     = "/matches/respond"
	routeMatchAccept      = "/matches/accept"
	routeMatchConfirm     = "/matches/confirm"
	routeMatchReject      = "/matches/reject"
	routeActivityAccept   = "/activities/accept"
	routeActivityCancel   = "/activities/cancel"
	routeActivityCheckin  = "/activities/checkin"
	routeActivityComplete = "/activities/complete"
	routeSessionStart     = "/sessions/start"
	routeSessionAnswer    = "/sessions/answer"
	routeSessionComplete  = "/sessions/complete"
)

// Service exposes the coaching operations.
type Service struct {
	store    storage.Store
	coord    *idempotency.Coordinator
	catalog  traits.Catalog
	traitCfg traits.Config
	newID    func() (string, error)
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides entity id generation, for tests.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New creates a coaching service over the given store and idempotency ledger.
func New(store storage.Store, ledger idempotency.Ledger, catalog traits.Catalog, opts ...Option) *Service {
	s := &Service{
		store:    store,
		coord:    idempotency.NewCoordinator(ledger),
		catalog:  catalog,
		traitCfg: traits.DefaultConfig(),
		newID:    id.NewID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// actor resolves the acting user: an explicit id wins, otherwise the
// identity carried in context is used.
func (s *Service) actor(ctx context.Context, actorID string) string {
	if actorID != "" {
		return actorID
	}
	return requestctx.ActorIDFromContext(ctx)
}

// execute funnels one mutation through the idempotency coordinator. params
// becomes the hashed request body, so retries with different parameters are
// detected as key reuse.
func (s *Service) execute(ctx context.Context, key, route, actorID string, params any, fn idempotency.BusinessFunc) (idempotency.Result, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return idempotency.Result{}, fmt.Errorf("encode request params: %w", err)
	}
	return s.coord.Execute(ctx, idempotency.Request{
		Key:     key,
		Method:  "POST",
		Route:   route,
		ActorID: actorID,
		Body:    body,
	}, fn)
}

func eventTypes(events []transition.Event) []string {
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

// isNotFound folds the storage sentinel into the nil-snapshot convention the
// engines expect.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
