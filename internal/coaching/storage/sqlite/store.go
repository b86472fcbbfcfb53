// Package sqlite provides a SQLite-backed coaching storage implementation.
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

	"github.com/kindredlabs/kindred/internal/coaching/storage"
	"github.com/kindredlabs/kindred/internal/coaching/storage/sqlite/migrations"
	"github.com/kindredlabs/kindred/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists coaching state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite coaching store and applies embedded migrations.
func Open(path string) (*Store, error) {
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
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutPair upserts one coaching pair.
func (s *Store) PutPair(ctx context.Context, pair storage.Pair) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(pair.ID) == "" {
		return fmt.Errorf("pair id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pairs (id, member_a, member_b, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		pair.ID,
		pair.MemberA,
		pair.MemberB,
		pair.Status,
		toMillis(pair.CreatedAt),
		toMillis(pair.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put pair: %w", err)
	}
	return nil
}

// GetPair returns one coaching pair by id.
func (s *Store) GetPair(ctx context.Context, id string) (storage.Pair, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Pair{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, member_a, member_b, status, created_at, updated_at
		 FROM pairs WHERE id = ?`,
		id,
	)
	return scanPair(row)
}

// GetPairByMembers returns the pair joining the given members, if any.
func (s *Store) GetPairByMembers(ctx context.Context, memberA string, memberB string) (storage.Pair, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Pair{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, member_a, member_b, status, created_at, updated_at
		 FROM pairs WHERE member_a = ? AND member_b = ?`,
		memberA,
		memberB,
	)
	return scanPair(row)
}

func scanPair(row *sql.Row) (storage.Pair, error) {
	var (
		pair      storage.Pair
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&pair.ID, &pair.MemberA, &pair.MemberB, &pair.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Pair{}, storage.ErrNotFound
		}
		return storage.Pair{}, fmt.Errorf("get pair: %w", err)
	}
	pair.CreatedAt = fromMillis(createdAt)
	pair.UpdatedAt = fromMillis(updatedAt)
	return pair, nil
}

// PutMatch upserts one match proposal.
func (s *Store) PutMatch(ctx context.Context, match storage.Match) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(match.ID) == "" {
		return fmt.Errorf("match id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO matches (id, from_user_id, to_user_id, status, recipient_response, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   recipient_response = excluded.recipient_response,
		   updated_at = excluded.updated_at`,
		match.ID,
		match.FromUserID,
		match.ToUserID,
		match.Status,
		match.RecipientResponse,
		toMillis(match.CreatedAt),
		toMillis(match.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put match: %w", err)
	}
	return nil
}

// GetMatch returns one match proposal by id.
func (s *Store) GetMatch(ctx context.Context, id string) (storage.Match, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Match{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, from_user_id, to_user_id, status, recipient_response, created_at, updated_at
		 FROM matches WHERE id = ?`,
		id,
	)
	var (
		match     storage.Match
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&match.ID, &match.FromUserID, &match.ToUserID, &match.Status, &match.RecipientResponse, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Match{}, storage.ErrNotFound
		}
		return storage.Match{}, fmt.Errorf("get match: %w", err)
	}
	match.CreatedAt = fromMillis(createdAt)
	match.UpdatedAt = fromMillis(updatedAt)
	return match, nil
}

// PutActivity upserts one activity.
func (s *Store) PutActivity(ctx context.Context, activity storage.Activity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(activity.ID) == "" {
		return fmt.Errorf("activity id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO activities (id, pair_id, status, outcome_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   outcome_score = excluded.outcome_score,
		   updated_at = excluded.updated_at`,
		activity.ID,
		activity.PairID,
		activity.Status,
		activity.OutcomeScore,
		toMillis(activity.CreatedAt),
		toMillis(activity.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put activity: %w", err)
	}
	return nil
}

// GetActivity returns one activity by id.
func (s *Store) GetActivity(ctx context.Context, id string) (storage.Activity, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Activity{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, pair_id, status, outcome_score, created_at, updated_at
		 FROM activities WHERE id = ?`,
		id,
	)
	var (
		activity  storage.Activity
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&activity.ID, &activity.PairID, &activity.Status, &activity.OutcomeScore, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Activity{}, storage.ErrNotFound
		}
		return storage.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	activity.CreatedAt = fromMillis(createdAt)
	activity.UpdatedAt = fromMillis(updatedAt)
	return activity, nil
}

// AppendCheckins appends check-in rows for an activity in one transaction.
func (s *Store) AppendCheckins(ctx context.Context, activityID string, checkins []storage.ActivityCheckin) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(activityID) == "" {
		return fmt.Errorf("activity id is required")
	}
	if len(checkins) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, checkin := range checkins {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO activity_checkins (activity_id, question_id, value, actor_user_id, answered_at)
			 VALUES (?, ?, ?, ?, ?)`,
			activityID,
			checkin.QuestionID,
			checkin.Value,
			checkin.ActorUserID,
			toMillis(checkin.AnsweredAt),
		); err != nil {
			return fmt.Errorf("append checkin: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkin tx: %w", err)
	}
	committed = true
	return nil
}

// ListCheckins returns all check-in rows for an activity in answer order.
func (s *Store) ListCheckins(ctx context.Context, activityID string) ([]storage.ActivityCheckin, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT activity_id, question_id, value, actor_user_id, answered_at
		 FROM activity_checkins
		 WHERE activity_id = ?
		 ORDER BY answered_at ASC, question_id ASC`,
		activityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var checkins []storage.ActivityCheckin
	for rows.Next() {
		var (
			checkin    storage.ActivityCheckin
			answeredAt int64
		)
		if err := rows.Scan(&checkin.ActivityID, &checkin.QuestionID, &checkin.Value, &checkin.ActorUserID, &answeredAt); err != nil {
			return nil, fmt.Errorf("list checkins: %w", err)
		}
		checkin.AnsweredAt = fromMillis(answeredAt)
		checkins = append(checkins, checkin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	return checkins, nil
}

// PutSession upserts one questionnaire session.
func (s *Store) PutSession(ctx context.Context, session storage.QuestionnaireSession) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(session.UserID) == "" {
		return fmt.Errorf("session user id is required")
	}
	if strings.TrimSpace(session.QuestionnaireID) == "" {
		return fmt.Errorf("questionnaire id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO questionnaire_sessions (user_id, questionnaire_id, status, answered_count, last_question_id, last_answered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, questionnaire_id) DO UPDATE SET
		   status = excluded.status,
		   answered_count = excluded.answered_count,
		   last_question_id = excluded.last_question_id,
		   last_answered_at = excluded.last_answered_at,
		   updated_at = excluded.updated_at`,
		session.UserID,
		session.QuestionnaireID,
		session.Status,
		session.AnsweredCount,
		session.LastQuestionID,
		toMillis(session.LastAnsweredAt),
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession returns one questionnaire session.
func (s *Store) GetSession(ctx context.Context, userID string, questionnaireID string) (storage.QuestionnaireSession, error) {
	if err := s.ready(ctx); err != nil {
		return storage.QuestionnaireSession{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, questionnaire_id, status, answered_count, last_question_id, last_answered_at, created_at, updated_at
		 FROM questionnaire_sessions
		 WHERE user_id = ? AND questionnaire_id = ?`,
		userID,
		questionnaireID,
	)
	var (
		session        storage.QuestionnaireSession
		lastAnsweredAt int64
		createdAt      int64
		updatedAt      int64
	)
	err := row.Scan(
		&session.UserID,
		&session.QuestionnaireID,
		&session.Status,
		&session.AnsweredCount,
		&session.LastQuestionID,
		&lastAnsweredAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.QuestionnaireSession{}, storage.ErrNotFound
		}
		return storage.QuestionnaireSession{}, fmt.Errorf("get session: %w", err)
	}
	session.LastAnsweredAt = fromMillis(lastAnsweredAt)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

// PutQuestions upserts a batch of catalog questions in one transaction.
func (s *Store) PutQuestions(ctx context.Context, questions []storage.Question) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(questions) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, question := range questions {
		valueMap, err := json.Marshal(valueList(question.ValueMap))
		if err != nil {
			return fmt.Errorf("encode value map: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO questions (id, axis, facet, weight, value_map)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   axis = excluded.axis,
			   facet = excluded.facet,
			   weight = excluded.weight,
			   value_map = excluded.value_map`,
			question.ID,
			question.Axis,
			question.Facet,
			question.Weight,
			string(valueMap),
		); err != nil {
			return fmt.Errorf("put question %s: %w", question.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit question tx: %w", err)
	}
	committed = true
	return nil
}

// ListQuestions returns every stored catalog question.
func (s *Store) ListQuestions(ctx context.Context) ([]storage.Question, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, axis, facet, weight, value_map
		 FROM questions
		 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []storage.Question
	for rows.Next() {
		var (
			question storage.Question
			valueMap string
		)
		if err := rows.Scan(&question.ID, &question.Axis, &question.Facet, &question.Weight, &valueMap); err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		if err := json.Unmarshal([]byte(valueMap), &question.ValueMap); err != nil {
			return nil, fmt.Errorf("decode value map: %w", err)
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// PutTraitAxes upserts a batch of trait axes for a user in one transaction.
func (s *Store) PutTraitAxes(ctx context.Context, userID string, axes []storage.TraitAxis) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(axes) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trait tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, axis := range axes {
		positives, err := json.Marshal(facetList(axis.Positives))
		if err != nil {
			return fmt.Errorf("encode positives: %w", err)
		}
		negatives, err := json.Marshal(facetList(axis.Negatives))
		if err != nil {
			return fmt.Errorf("encode negatives: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO trait_axes (user_id, axis, level, positives, negatives, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, axis) DO UPDATE SET
			   level = excluded.level,
			   positives = excluded.positives,
			   negatives = excluded.negatives,
			   updated_at = excluded.updated_at`,
			userID,
			axis.Axis,
			axis.Level,
			string(positives),
			string(negatives),
			toMillis(axis.UpdatedAt),
		); err != nil {
			return fmt.Errorf("put trait axis %s: %w", axis.Axis, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trait tx: %w", err)
	}
	committed = true
	return nil
}

// GetTraitAxes returns all stored trait axes for a user.
func (s *Store) GetTraitAxes(ctx context.Context, userID string) ([]storage.TraitAxis, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT user_id, axis, level, positives, negatives, updated_at
		 FROM trait_axes
		 WHERE user_id = ?
		 ORDER BY axis ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get trait axes: %w", err)
	}
	defer rows.Close()

	var axes []storage.TraitAxis
	for rows.Next() {
		var (
			axis      storage.TraitAxis
			positives string
			negatives string
			updatedAt int64
		)
		if err := rows.Scan(&axis.UserID, &axis.Axis, &axis.Level, &positives, &negatives, &updatedAt); err != nil {
			return nil, fmt.Errorf("get trait axes: %w", err)
		}
		if err := json.Unmarshal([]byte(positives), &axis.Positives); err != nil {
			return nil, fmt.Errorf("decode positives: %w", err)
		}
		if err := json.Unmarshal([]byte(negatives), &axis.Negatives); err != nil {
			return nil, fmt.Errorf("decode negatives: %w", err)
		}
		axis.UpdatedAt = fromMillis(updatedAt)
		axes = append(axes, axis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get trait axes: %w", err)
	}
	return axes, nil
}

func facetList(facets []string) []string {
	if facets == nil {
		return []string{}
	}
	return facets
}

func valueList(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}

var _ storage.Store = (*Store)(nil)
