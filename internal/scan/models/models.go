package models

import (
	"strings"
	"time"

	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// Quorum is the number of distinct subjects that must scan into a session
// before its reward becomes claimable.
const Quorum = 2

// SessionStatus is the lifecycle status of a scan session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// Session is a bounded group activity during which scans accumulate.
//
// State machine: active -> active (scans accumulate) -> closed (explicit,
// terminal). Claiming the reward is a side-transition available while active
// once quorum is met; it does not change Status.
type Session struct {
	ID        id.SessionID  `json:"id"`
	OrgID     id.OrgID      `json:"org_id"`
	Purpose   string        `json:"purpose"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	ClaimedAt *time.Time    `json:"claimed_at,omitempty"`
}

// NewSession validates and constructs an active session.
func NewSession(sessionID id.SessionID, orgID id.OrgID, purpose string, now time.Time) (*Session, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session purpose cannot be empty")
	}
	if len(purpose) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session purpose must be 128 characters or less")
	}
	return &Session{
		ID:        sessionID,
		OrgID:     orgID,
		Purpose:   purpose,
		Status:    SessionStatusActive,
		CreatedAt: now,
	}, nil
}

// IsActive reports whether the session still accepts scans.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// Record is one deduplicated scan: proof that a subject scanned into a
// session. The (SessionID, SubjectID) pair is unique at the store level;
// records are never updated.
type Record struct {
	SessionID id.SessionID `json:"session_id"`
	SubjectID id.SubjectID `json:"subject_id"`
	ScannedAt time.Time    `json:"scanned_at"`
}

// OutcomeStatus tags the result of recording a scan. AlreadyRecorded is a
// successful idempotent outcome, not an error: callers distinguish it from
// Recorded only to choose messaging.
type OutcomeStatus string

const (
	OutcomeRecorded        OutcomeStatus = "recorded"
	OutcomeAlreadyRecorded OutcomeStatus = "already_recorded"
)

// ScanOutcome is the tagged result of RecordScan.
type ScanOutcome struct {
	Status OutcomeStatus `json:"status"`
	Record *Record       `json:"record"`
}

// ClaimResult reports a successful reward claim. Repeated claims after quorum
// succeed idempotently with AlreadyClaimed set.
type ClaimResult struct {
	SessionID        id.SessionID `json:"session_id"`
	DistinctSubjects int          `json:"distinct_subjects"`
	ClaimedAt        time.Time    `json:"claimed_at"`
	AlreadyClaimed   bool         `json:"already_claimed"`
}
