// Package history records membership activity as an append-only event feed.
// Recording is fire-and-forget: callers log failures and move on, and no
// domain operation ever fails because history could not be written.
package history

import (
	"time"

	"github.com/mssola/useragent"

	id "rollcall/pkg/domain"
)

// Kind classifies a history event.
type Kind string

const (
	KindCredentialIssued Kind = "credential.issued"
	KindScanRecorded     Kind = "scan.recorded"
	KindRewardClaimed    Kind = "reward.claimed"
	KindTicketIssued     Kind = "ticket.issued"
	KindTicketRedeemed   Kind = "ticket.redeemed"
)

// Station describes the device that originated an event, parsed from the
// request's user agent and peer address.
type Station struct {
	UserAgent string `json:"user_agent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Mobile    bool   `json:"mobile,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
}

// StationFrom parses the raw user agent string into a Station.
func StationFrom(rawUA, clientIP string) Station {
	station := Station{UserAgent: rawUA, ClientIP: clientIP}
	if rawUA == "" {
		return station
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name != "" {
		station.Browser = name
		if version != "" {
			station.Browser = name + "/" + version
		}
	}
	station.OS = ua.OS()
	station.Mobile = ua.Mobile()
	return station
}

// Event is one entry in the activity feed. Keep it transport-agnostic so
// recorders can fan out to a broker or an in-memory sink.
type Event struct {
	Kind       Kind         `json:"kind"`
	SubjectID  id.SubjectID `json:"subject_id"`
	OrgID      id.OrgID     `json:"org_id,omitempty"`
	SessionID  id.SessionID `json:"session_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
	Station    Station      `json:"station,omitempty"`
}
