// Package domain defines typed identifiers shared across modules.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-entity assignment (a SubjectID can never be passed where an OrgID is
// expected). Parse functions enforce the trust-boundary invariant: IDs must be
// valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "rollcall/pkg/domain-errors"
)

type (
	// SubjectID identifies a member profile (the entity a credential or scan
	// record refers to).
	SubjectID uuid.UUID
	// OrgID identifies an organization.
	OrgID uuid.UUID
	// SessionID identifies a scan session.
	SessionID uuid.UUID
	// TicketID identifies an invitation ticket.
	TicketID uuid.UUID
	// MembershipID identifies a membership row.
	MembershipID uuid.UUID
)

func (id SubjectID) String() string    { return uuid.UUID(id).String() }
func (id OrgID) String() string        { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id TicketID) String() string     { return uuid.UUID(id).String() }
func (id MembershipID) String() string { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TicketID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id MembershipID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// IDs serialize as their canonical UUID string.

func (id SubjectID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id OrgID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id TicketID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id MembershipID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *SubjectID) UnmarshalText(text []byte) error    { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *OrgID) UnmarshalText(text []byte) error        { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *SessionID) UnmarshalText(text []byte) error    { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *TicketID) UnmarshalText(text []byte) error     { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *MembershipID) UnmarshalText(text []byte) error { return (*uuid.UUID)(id).UnmarshalText(text) }

// NewSubjectID returns a fresh random SubjectID.
func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }

// NewOrgID returns a fresh random OrgID.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewTicketID returns a fresh random TicketID.
func NewTicketID() TicketID { return TicketID(uuid.New()) }

// NewMembershipID returns a fresh random MembershipID.
func NewMembershipID() MembershipID { return MembershipID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	if len(raw) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseSubjectID parses and validates a subject ID.
func ParseSubjectID(raw string) (SubjectID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(parsed), nil
}

// ParseOrgID parses and validates an organization ID.
func ParseOrgID(raw string) (OrgID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return OrgID{}, err
	}
	return OrgID(parsed), nil
}

// ParseSessionID parses and validates a scan session ID.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(parsed), nil
}

// ParseTicketID parses and validates an invitation ticket ID.
func ParseTicketID(raw string) (TicketID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return TicketID{}, err
	}
	return TicketID(parsed), nil
}
