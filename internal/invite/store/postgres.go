package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	directorymodels "rollcall/internal/directory/models"
	"rollcall/internal/invite/models"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	txcontext "rollcall/pkg/platform/tx"
)

// PostgresStore persists invitation tickets in PostgreSQL. All methods honour
// a transaction carried in the context so redemption's load-check-grant
// sequence runs atomically. The live (org, email) invariant rides on a
// partial unique index over rows with a non-null email.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ticket store.
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

func (s *PostgresStore) Create(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO invitation_tickets (id, org_id, inviter_id, role, email, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(ticket.ID), uuid.UUID(ticket.OrgID), uuid.UUID(ticket.InviterID),
		string(ticket.Role), nullString(ticket.Email), nullString(ticket.TokenHash),
		ticket.CreatedAt, ticket.ExpiresAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create invitation ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, ticketID id.TicketID, orgID id.OrgID) (*models.Ticket, error) {
	query := `
		SELECT id, org_id, inviter_id, role, email, token_hash, created_at, expires_at
		FROM invitation_tickets
		WHERE id = $1 AND org_id = $2
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(ticketID), uuid.UUID(orgID))
	return scanTicket(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, orgID id.OrgID, email string) (*models.Ticket, error) {
	query := `
		SELECT id, org_id, inviter_id, role, email, token_hash, created_at, expires_at
		FROM invitation_tickets
		WHERE org_id = $1 AND email = $2
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(orgID), email)
	return scanTicket(row)
}

func (s *PostgresStore) Delete(ctx context.Context, ticketID id.TicketID) error {
	query := `DELETE FROM invitation_tickets WHERE id = $1`
	if _, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(ticketID)); err != nil {
		return fmt.Errorf("delete invitation ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM invitation_tickets WHERE expires_at < $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tickets: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tickets: %w", err)
	}
	return removed, nil
}

func scanTicket(row *sql.Row) (*models.Ticket, error) {
	var ticket models.Ticket
	var rawID, rawOrg, rawInviter uuid.UUID
	var role string
	var email, tokenHash sql.NullString
	err := row.Scan(&rawID, &rawOrg, &rawInviter, &role, &email, &tokenHash,
		&ticket.CreatedAt, &ticket.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan invitation ticket: %w", err)
	}
	ticket.ID = id.TicketID(rawID)
	ticket.OrgID = id.OrgID(rawOrg)
	ticket.InviterID = id.SubjectID(rawInviter)
	ticket.Role = directorymodels.Role(role)
	ticket.Email = email.String
	ticket.TokenHash = tokenHash.String
	return &ticket, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
