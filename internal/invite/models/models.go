package models

import (
	"time"

	directorymodels "rollcall/internal/directory/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// TTL is the fixed lifetime of every invitation ticket.
const TTL = 7 * 24 * time.Hour

// Ticket is a time-bounded grant of organization membership. Email-bound
// tickets admit one identity and are deleted on redemption; link tickets
// carry a shared secret, admit many distinct subjects, and die only by
// expiry.
type Ticket struct {
	ID        id.TicketID          `json:"id"`
	OrgID     id.OrgID             `json:"org_id"`
	InviterID id.SubjectID         `json:"inviter_id"`
	Role      directorymodels.Role `json:"role"`
	Email     string               `json:"email,omitempty"`
	TokenHash string               `json:"-"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// NewTicket validates and constructs a ticket. Email may be empty; the
// token hash is set by the issuer for link tickets only.
func NewTicket(ticketID id.TicketID, orgID id.OrgID, inviterID id.SubjectID, role directorymodels.Role, email string, now time.Time) (*Ticket, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ticket org id cannot be nil")
	}
	if inviterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ticket inviter cannot be nil")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ticket role is not recognized")
	}
	return &Ticket{
		ID:        ticketID,
		OrgID:     orgID,
		InviterID: inviterID,
		Role:      role,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}, nil
}

// IsLink reports whether the ticket is link-style (multi-use, token-gated).
func (t *Ticket) IsLink() bool {
	return t.Email == ""
}

// Expired reports whether the ticket has passed its lifetime. The boundary is
// strict: a ticket presented at exactly ExpiresAt is still redeemable.
func (t *Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IssueResult carries a freshly issued ticket. Token holds the link secret in
// plaintext and is populated exactly once, at issue time; only its hash is
// stored.
type IssueResult struct {
	Ticket *Ticket `json:"ticket"`
	Token  string  `json:"token,omitempty"`
}

// RedeemStatus tags the result of redeeming a ticket. AlreadyMember is a
// successful idempotent outcome, not an error.
type RedeemStatus string

const (
	RedeemStatusRedeemed      RedeemStatus = "redeemed"
	RedeemStatusAlreadyMember RedeemStatus = "already_member"
)

// RedeemResult is the tagged outcome of Redeem, carrying the membership that
// now exists for the subject regardless of which call created it.
type RedeemResult struct {
	Status     RedeemStatus                `json:"status"`
	Membership *directorymodels.Membership `json:"membership"`
}
