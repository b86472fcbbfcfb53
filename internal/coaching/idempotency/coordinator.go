package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// Request identifies one mutation attempt.
type Request struct {
	// Key is the client-supplied idempotency key; it must be a UUID.
	Key string
	// Method and Route scope the key to one logical operation.
	Method string
	Route  string
	// ActorID scopes the key to the authenticated caller.
	ActorID string
	// Body is the raw JSON request body.
	Body json.RawMessage
}

// Result is the stored outcome of a mutation, fresh or replayed.
type Result struct {
	HTTPStatus int
	Envelope   json.RawMessage
	// Replayed reports whether the envelope came from the ledger instead
	// of a fresh business-function execution.
	Replayed bool
}

// BusinessFunc runs the actual mutation. It is invoked at most once per
// (key, route, actor); its return value or domain error is captured into the
// stored response envelope.
type BusinessFunc func(ctx context.Context) (any, error)

// Coordinator orchestrates idempotent mutation execution against a ledger.
type Coordinator struct {
	ledger Ledger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the coordinator clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a coordinator over the given ledger.
func NewCoordinator(ledger Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger: ledger,
		tracer: otel.Tracer("kindred/coaching/idempotency"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs businessFn at most once for the request's (key, route, actor).
//
// Duplicate submissions resolve without executing businessFn: a completed
// row with the same request hash replays its stored envelope verbatim, an
// in-progress row fails fast with IDEMPOTENCY_IN_PROGRESS, and a row created
// by a different body fails with IDEMPOTENCY_KEY_REUSE_CONFLICT. Ledger
// failures abort the request and propagate unchanged.
func (c *Coordinator) Execute(ctx context.Context, req Request, businessFn BusinessFunc) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "idempotency.execute", trace.WithAttributes(
		attribute.String("mutation.route", req.Route),
	))
	defer span.End()

	key := strings.TrimSpace(req.Key)
	if key == "" {
		span.SetAttributes(attribute.String("mutation.outcome", "key_required"))
		return Result{}, apperrors.New(apperrors.CodeIdempotencyKeyRequired, "idempotency key is required")
	}
	if _, err := uuid.Parse(key); err != nil {
		span.SetAttributes(attribute.String("mutation.outcome", "key_invalid"))
		return Result{}, apperrors.WithMetadata(apperrors.CodeIdempotencyKeyInvalid, "idempotency key must be a UUID", map[string]string{
			"key": key,
		})
	}

	requestHash, err := RequestHash(req.Method, req.Route, req.Body)
	if err != nil {
		return Result{}, fmt.Errorf("hash request: %w", err)
	}

	now := c.now().UTC()
	existing, inserted, err := c.ledger.BeginAttempt(ctx, Record{
		Key:         key,
		Route:       req.Route,
		ActorID:     req.ActorID,
		RequestHash: requestHash,
		State:       StateInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("begin idempotency attempt: %w", err)
	}

	if !inserted {
		switch {
		case existing.RequestHash != requestHash:
			span.SetAttributes(attribute.String("mutation.outcome", "reuse_conflict"))
			return Result{}, apperrors.WithMetadata(apperrors.CodeIdempotencyKeyReuseConflict, "idempotency key was reused for a different request", map[string]string{
				"key":   key,
				"route": req.Route,
			})
		case existing.State == StateInProgress:
			span.SetAttributes(attribute.String("mutation.outcome", "in_progress"))
			return Result{}, apperrors.WithMetadata(apperrors.CodeIdempotencyInProgress, "an identical request is still executing", map[string]string{
				"key":   key,
				"route": req.Route,
			})
		default:
			span.SetAttributes(attribute.String("mutation.outcome", "replay"))
			return Result{
				HTTPStatus: existing.HTTPStatus,
				Envelope:   existing.ResponseEnvelope,
				Replayed:   true,
			}, nil
		}
	}

	// Winning path: this caller inserted the row and owns the single
	// execution. The business outcome — success or domain failure — is
	// always captured so the row never stays in progress forever.
	httpStatus, envelope := capture(ctx, businessFn)

	if err := c.ledger.CompleteAttempt(ctx, key, req.Route, req.ActorID, requestHash, httpStatus, envelope); err != nil {
		return Result{}, fmt.Errorf("complete idempotency attempt: %w", err)
	}

	span.SetAttributes(
		attribute.String("mutation.outcome", "fresh"),
		attribute.Int("mutation.status", httpStatus),
	)
	return Result{HTTPStatus: httpStatus, Envelope: envelope}, nil
}

// errorEnvelope is the stored shape of a captured business failure.
type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func capture(ctx context.Context, businessFn BusinessFunc) (int, json.RawMessage) {
	value, err := businessFn(ctx)
	if err != nil {
		if domainErr, ok := apperrors.AsDomain(err); ok {
			return domainErr.Code.HTTPStatus(), mustMarshalEnvelope(map[string]any{
				"error": errorEnvelope{
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Metadata,
				},
			})
		}
		return apperrors.CodeUnknown.HTTPStatus(), mustMarshalEnvelope(map[string]any{
			"error": errorEnvelope{
				Code:    string(apperrors.CodeUnknown),
				Message: "internal error",
			},
		})
	}

	envelope, marshalErr := json.Marshal(map[string]any{"data": value})
	if marshalErr != nil {
		return apperrors.CodeUnknown.HTTPStatus(), mustMarshalEnvelope(map[string]any{
			"error": errorEnvelope{
				Code:    string(apperrors.CodeUnknown),
				Message: "internal error",
			},
		})
	}
	return 200, envelope
}

func mustMarshalEnvelope(v any) json.RawMessage {
	envelope, err := json.Marshal(v)
	if err != nil {
		// The envelope shapes above only hold strings and maps.
		return json.RawMessage(`{"error":{"code":"UNKNOWN","message":"internal error"}}`)
	}
	return envelope
}
