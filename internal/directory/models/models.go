package models

import (
	"strings"
	"time"

	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// Role names what a membership grants inside an organization. The core does
// not interpret roles; it records the one the invitation carried.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether the role is one the ledger will issue tickets for.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Subject is a member profile. Credentials and scan records refer to subjects;
// memberships bind them to organizations.
type Subject struct {
	ID          id.SubjectID `json:"id"`
	DisplayName string       `json:"display_name"`
	Email       string       `json:"email"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewSubject validates and constructs a subject profile.
func NewSubject(subjectID id.SubjectID, displayName, email string, now time.Time) (*Subject, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name cannot be empty")
	}
	if len(displayName) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name must be 128 characters or less")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a valid email is required")
	}
	return &Subject{
		ID:          subjectID,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   now,
	}, nil
}

// Membership is the durable record that a subject belongs to an organization
// with a given role.
//
// Invariants:
//   - unique per (SubjectID, OrgID), enforced by the store
//   - created exactly once per subject by ticket redemption
//   - deletion is out of scope for this core
type Membership struct {
	ID        id.MembershipID `json:"id"`
	SubjectID id.SubjectID    `json:"subject_id"`
	OrgID     id.OrgID        `json:"org_id"`
	Role      Role            `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
}
