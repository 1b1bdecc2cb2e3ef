package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/scan/models"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	txcontext "rollcall/pkg/platform/tx"
)

// PostgresStore persists scan sessions and records in PostgreSQL. All methods
// honour a transaction carried in the context so RecordScan's load-validate-
// insert sequence runs atomically.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed scan store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO scan_sessions (id, org_id, purpose, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(session.ID), uuid.UUID(session.OrgID), session.Purpose,
		string(session.Status), session.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create scan session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	query := `
		SELECT id, org_id, purpose, status, created_at, claimed_at
		FROM scan_sessions
		WHERE id = $1
	`
	var session models.Session
	var rawID, rawOrg uuid.UUID
	var status string
	var claimedAt sql.NullTime
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(sessionID)).
		Scan(&rawID, &rawOrg, &session.Purpose, &status, &session.CreatedAt, &claimedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find scan session: %w", err)
	}
	session.ID = id.SessionID(rawID)
	session.OrgID = id.OrgID(rawOrg)
	session.Status = models.SessionStatus(status)
	if claimedAt.Valid {
		session.ClaimedAt = &claimedAt.Time
	}
	return &session, nil
}

func (s *PostgresStore) CloseSession(ctx context.Context, sessionID id.SessionID) error {
	query := `
		UPDATE scan_sessions
		SET status = $2
		WHERE id = $1 AND status = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(sessionID), string(models.SessionStatusClosed), string(models.SessionStatusActive))
	if err != nil {
		return fmt.Errorf("close scan session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close scan session: %w", err)
	}
	if affected == 0 {
		// Either the session does not exist or it is already closed.
		if _, findErr := s.FindSession(ctx, sessionID); findErr != nil {
			return findErr
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) InsertRecord(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO scan_records (session_id, subject_id, scanned_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(record.SessionID), uuid.UUID(record.SubjectID), record.ScannedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRecord(ctx context.Context, sessionID id.SessionID, subjectID id.SubjectID) (*models.Record, error) {
	query := `
		SELECT session_id, subject_id, scanned_at
		FROM scan_records
		WHERE session_id = $1 AND subject_id = $2
	`
	var record models.Record
	var rawSession, rawSubject uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(sessionID), uuid.UUID(subjectID)).
		Scan(&rawSession, &rawSubject, &record.ScannedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find scan record: %w", err)
	}
	record.SessionID = id.SessionID(rawSession)
	record.SubjectID = id.SubjectID(rawSubject)
	return &record, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, sessionID id.SessionID) ([]*models.Record, error) {
	query := `
		SELECT session_id, subject_id, scanned_at
		FROM scan_records
		WHERE session_id = $1
		ORDER BY scanned_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list scan records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var record models.Record
		var rawSession, rawSubject uuid.UUID
		if err := rows.Scan(&rawSession, &rawSubject, &record.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		record.SessionID = id.SessionID(rawSession)
		record.SubjectID = id.SubjectID(rawSubject)
		out = append(out, &record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountDistinctSubjects(ctx context.Context, sessionID id.SessionID) (int, error) {
	query := `
		SELECT COUNT(DISTINCT subject_id)
		FROM scan_records
		WHERE session_id = $1
	`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(sessionID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count distinct subjects: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkClaimed(ctx context.Context, sessionID id.SessionID, now time.Time) (time.Time, bool, error) {
	// Stamp the marker only when absent. Concurrent claims converge on the
	// first writer's timestamp; everyone else reads it back.
	stamp := `
		UPDATE scan_sessions
		SET claimed_at = $2
		WHERE id = $1 AND claimed_at IS NULL
	`
	res, err := s.execer(ctx).ExecContext(ctx, stamp, uuid.UUID(sessionID), now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("mark session claimed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("mark session claimed: %w", err)
	}
	if affected == 1 {
		return now, false, nil
	}

	session, err := s.FindSession(ctx, sessionID)
	if err != nil {
		return time.Time{}, false, err
	}
	if session.ClaimedAt == nil {
		return time.Time{}, false, sentinel.ErrInvalidState
	}
	return *session.ClaimedAt, true, nil
}
