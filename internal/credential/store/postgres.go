package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rollcall/internal/credential/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	txcontext "rollcall/pkg/platform/tx"
)

// PostgresStore persists credentials in PostgreSQL, one row per subject.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Find(ctx context.Context, subjectID id.SubjectID) (*models.Credential, error) {
	query := `
		SELECT subject_id, issued_at, expires_at, token, image_key
		FROM credentials
		WHERE subject_id = $1
	`
	var credential models.Credential
	var rawSubject uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(subjectID)).
		Scan(&rawSubject, &credential.IssuedAt, &credential.ExpiresAt, &credential.Token, &credential.ImageKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	credential.SubjectID = id.SubjectID(rawSubject)
	return &credential, nil
}

// SaveIfExpired is the compare-and-swap behind credential issuance. The upsert
// replaces the existing row only when it has already expired relative to the
// new credential's IssuedAt; when two calls race, the database picks exactly
// one winner and the loser sees sentinel.ErrConflict.
func (s *PostgresStore) SaveIfExpired(ctx context.Context, credential *models.Credential) error {
	query := `
		INSERT INTO credentials (subject_id, issued_at, expires_at, token, image_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id) DO UPDATE SET
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			token = EXCLUDED.token,
			image_key = EXCLUDED.image_key
		WHERE credentials.expires_at <= EXCLUDED.issued_at
		RETURNING subject_id
	`
	var won uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(credential.SubjectID), credential.IssuedAt, credential.ExpiresAt,
		credential.Token, credential.ImageKey).Scan(&won)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conditional update matched nothing: a live row is already
			// in place, written by a concurrent issuance.
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
