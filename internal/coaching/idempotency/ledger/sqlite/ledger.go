// Package sqlite provides a SQLite-backed idempotency ledger.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency/ledger/sqlite/migrations"
	"github.com/kindredlabs/kindred/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Ledger persists idempotency records in SQLite.
type Ledger struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite idempotency ledger and applies embedded migrations.
func Open(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Ledger{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (l *Ledger) Close() error {
	if l == nil || l.sqlDB == nil {
		return nil
	}
	return l.sqlDB.Close()
}

// BeginAttempt atomically claims the (key, route, actor) slot for rec. When
// a record already occupies the slot the existing row is returned unchanged
// with inserted=false.
func (l *Ledger) BeginAttempt(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return idempotency.Record{}, false, err
	}
	if l == nil || l.sqlDB == nil {
		return idempotency.Record{}, false, fmt.Errorf("storage is not configured")
	}

	res, err := l.sqlDB.ExecContext(
		ctx,
		`INSERT INTO idempotency_records (idempotency_key, route, actor_id, request_hash, state, http_status, response_envelope, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?)
		 ON CONFLICT(idempotency_key, route, actor_id) DO NOTHING`,
		rec.Key,
		rec.Route,
		rec.ActorID,
		rec.RequestHash,
		string(rec.State),
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
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
// Finalization is guarded on state so a record transitions to completed at
// most once.
func (l *Ledger) CompleteAttempt(ctx context.Context, key, route, actorID, requestHash string, httpStatus int, envelope json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l == nil || l.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	res, err := l.sqlDB.ExecContext(
		ctx,
		`UPDATE idempotency_records
		 SET state = ?, http_status = ?, response_envelope = ?, updated_at = ?
		 WHERE idempotency_key = ? AND route = ? AND actor_id = ? AND request_hash = ? AND state = ?`,
		string(idempotency.StateCompleted),
		httpStatus,
		[]byte(envelope),
		toMillis(time.Now()),
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
	row := l.sqlDB.QueryRowContext(
		ctx,
		`SELECT idempotency_key, route, actor_id, request_hash, state, http_status, response_envelope, created_at, updated_at
		 FROM idempotency_records
		 WHERE idempotency_key = ? AND route = ? AND actor_id = ?`,
		key,
		route,
		actorID,
	)

	var (
		rec       idempotency.Record
		state     string
		envelope  []byte
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&rec.Key,
		&rec.Route,
		&rec.ActorID,
		&rec.RequestHash,
		&state,
		&rec.HTTPStatus,
		&envelope,
		&createdAt,
		&updatedAt,
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
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

var _ idempotency.Ledger = (*Ledger)(nil)
