// Package postgres provides a Postgres-backed idempotency ledger. The table
// DDL is applied on startup so deployments do not need an external migration
// step.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
)

var _ idempotency.Ledger = (*Ledger)(nil)

const ledgerDDL = `CREATE TABLE IF NOT EXISTS idempotency_records (
	idempotency_key TEXT NOT NULL,
	route TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	request_hash TEXT NOT NULL,
	state TEXT NOT NULL,
	http_status INTEGER NOT NULL DEFAULT 0,
	response_envelope JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (idempotency_key, route, actor_id)
)`

// Ledger persists idempotency records in Postgres.
type Ledger struct {
	db *sql.DB
}

// Open opens a Postgres idempotency ledger and ensures its table exists.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, ledgerDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure idempotency table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// BeginAttempt atomically claims the (key, route, actor) slot for rec. When
// a record already occupies the slot the existing row is returned unchanged
// with inserted=false.
func (l *Ledger) BeginAttempt(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return idempotency.Record{}, false, err
	}
	if l == nil || l.db == nil {
		return idempotency.Record{}, false, fmt.Errorf("storage is not configured")
	}

	res, err := l.db.ExecContext(
		ctx,
		`INSERT INTO idempotency_records (idempotency_key, route, actor_id, request_hash, state, http_status, response_envelope, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, NULL, $6, $7)
		 ON CONFLICT (idempotency_key, route, actor_id) DO NOTHING`,
		rec.Key,
		rec.Route,
		rec.ActorID,
		rec.RequestHash,
		string(rec.State),
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("begin attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("begin attempt rows affected: %w", err)
	}
	if affected > 0 {
		return rec, true, nil
	}

	existing, err := l.getRecord(ctx, rec.Key, rec.Route, rec.ActorID)
	if err != nil {
		return idempotency.Record{}, false, err
	}
	return existing, false, nil
}

// CompleteAttempt finalizes an in-progress record with its response envelope.
func (l *Ledger) CompleteAttempt(ctx context.Context, key, route, actorID, requestHash string, httpStatus int, envelope json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l == nil || l.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	res, err := l.db.ExecContext(
		ctx,
		`UPDATE idempotency_records
		 SET state = $1, http_status = $2, response_envelope = $3, updated_at = $4
		 WHERE idempotency_key = $5 AND route = $6 AND actor_id = $7 AND request_hash = $8 AND state = $9`,
		string(idempotency.StateCompleted),
		httpStatus,
		[]byte(envelope),
		time.Now().UTC(),
		key,
		route,
		actorID,
		requestHash,
		string(idempotency.StateInProgress),
	)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete attempt rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	existing, err := l.getRecord(ctx, key, route, actorID)
	if err != nil {
		return err
	}
	if existing.RequestHash != requestHash {
		return idempotency.ErrRecordNotFound
	}
	return idempotency.ErrAlreadyFinalized
}

func (l *Ledger) getRecord(ctx context.Context, key, route, actorID string) (idempotency.Record, error) {
	row := l.db.QueryRowContext(
		ctx,
		`SELECT idempotency_key, route, actor_id, request_hash, state, http_status, response_envelope, created_at, updated_at
		 FROM idempotency_records
		 WHERE idempotency_key = $1 AND route = $2 AND actor_id = $3`,
		key,
		route,
		actorID,
	)

	var (
		rec      idempotency.Record
		state    string
		envelope []byte
	)
	err := row.Scan(
		&rec.Key,
		&rec.Route,
		&rec.ActorID,
		&rec.RequestHash,
		&state,
		&rec.HTTPStatus,
		&envelope,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.Record{}, idempotency.ErrRecordNotFound
		}
		return idempotency.Record{}, fmt.Errorf("get idempotency record: %w", err)
	}
	rec.State = idempotency.State(state)
	if envelope != nil {
		rec.ResponseEnvelope = json.RawMessage(envelope)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
