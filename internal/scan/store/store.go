// Package store persists scan sessions and scan records.
package store

import (
	"context"
	"time"

	"rollcall/internal/scan/models"
	id "rollcall/pkg/domain"
)

// Store is implemented by the PostgreSQL store and the in-memory store.
// Implementations return sentinel errors: ErrNotFound for missing rows,
// ErrConflict when the (session, subject) uniqueness constraint rejects an
// insert, ErrInvalidState for closing an already-closed session.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	FindSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	CloseSession(ctx context.Context, sessionID id.SessionID) error

	// InsertRecord inserts a scan record. sentinel.ErrConflict means an
	// identical record already exists; the reconciler folds that into the
	// AlreadyRecorded outcome.
	InsertRecord(ctx context.Context, record *models.Record) error
	FindRecord(ctx context.Context, sessionID id.SessionID, subjectID id.SubjectID) (*models.Record, error)
	ListRecords(ctx context.Context, sessionID id.SessionID) ([]*models.Record, error)
	CountDistinctSubjects(ctx context.Context, sessionID id.SessionID) (int, error)

	// MarkClaimed stamps the session's claim marker if it has none yet and
	// returns the effective claim time. already is true when an earlier claim
	// had set the marker.
	MarkClaimed(ctx context.Context, sessionID id.SessionID, now time.Time) (claimedAt time.Time, already bool, err error)
}
