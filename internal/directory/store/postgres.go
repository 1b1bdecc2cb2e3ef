package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rollcall/internal/directory/models"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	txcontext "rollcall/pkg/platform/tx"
)

// PostgresStore persists subjects and memberships in PostgreSQL. All methods
// honour a transaction carried in the context so membership creation can run
// inside the invitation redeem transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed directory store.
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

func (s *PostgresStore) CreateSubject(ctx context.Context, subject *models.Subject) error {
	query := `
		INSERT INTO subjects (id, display_name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(subject.ID), subject.DisplayName, subject.Email, subject.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSubject(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	query := `
		SELECT id, display_name, email, created_at
		FROM subjects
		WHERE id = $1
	`
	var subject models.Subject
	var rawID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(subjectID)).
		Scan(&rawID, &subject.DisplayName, &subject.Email, &subject.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	subject.ID = id.SubjectID(rawID)
	return &subject, nil
}

func (s *PostgresStore) FindSubjectByEmail(ctx context.Context, email string) (*models.Subject, error) {
	query := `
		SELECT id, display_name, email, created_at
		FROM subjects
		WHERE email = $1
	`
	var subject models.Subject
	var rawID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query, email).
		Scan(&rawID, &subject.DisplayName, &subject.Email, &subject.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject by email: %w", err)
	}
	subject.ID = id.SubjectID(rawID)
	return &subject, nil
}

func (s *PostgresStore) CreateMembership(ctx context.Context, membership *models.Membership) error {
	query := `
		INSERT INTO memberships (id, subject_id, org_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(membership.ID), uuid.UUID(membership.SubjectID),
		uuid.UUID(membership.OrgID), string(membership.Role), membership.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindMembership(ctx context.Context, subjectID id.SubjectID, orgID id.OrgID) (*models.Membership, error) {
	query := `
		SELECT id, subject_id, org_id, role, created_at
		FROM memberships
		WHERE subject_id = $1 AND org_id = $2
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(subjectID), uuid.UUID(orgID))
	return scanMembership(row)
}

func (s *PostgresStore) HasMembership(ctx context.Context, subjectID id.SubjectID, orgID id.OrgID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM memberships WHERE subject_id = $1 AND org_id = $2
		)
	`
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(subjectID), uuid.UUID(orgID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListMemberships(ctx context.Context, orgID id.OrgID) ([]*models.Membership, error) {
	query := `
		SELECT id, subject_id, org_id, role, created_at
		FROM memberships
		WHERE org_id = $1
		ORDER BY created_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, membership)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*models.Membership, error) {
	var membership models.Membership
	var rawID, rawSubject, rawOrg uuid.UUID
	var role string
	err := row.Scan(&rawID, &rawSubject, &rawOrg, &role, &membership.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	membership.ID = id.MembershipID(rawID)
	membership.SubjectID = id.SubjectID(rawSubject)
	membership.OrgID = id.OrgID(rawOrg)
	membership.Role = models.Role(role)
	return &membership, nil
}
