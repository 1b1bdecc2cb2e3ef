package models

import (
	"time"

	id "rollcall/pkg/domain"
)

// TTL is how long an issued credential stays valid. Fixed by product design;
// not a tunable.
const TTL = 5 * time.Minute

// Payload is the decoded wire payload a scanning station presents: the claims
// carried inside the signed token, nothing more.
type Payload struct {
	SubjectID id.SubjectID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the payload is past its expiry at the given
// instant. The boundary is strict: a payload is valid through ExpiresAt and
// invalid after it.
func (p Payload) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Credential is the stored row backing an issued credential.
//
// Invariants:
//   - at most one row exists per SubjectID (store primary key)
//   - a row is only replaced once it has expired
//   - Token is the signed wire payload; ImageKey points at the rendered QR
//     in the blob store
type Credential struct {
	SubjectID id.SubjectID `json:"subject_id"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Token     string       `json:"token"`
	ImageKey  string       `json:"image_key"`
}

// Expired reports whether the credential is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
