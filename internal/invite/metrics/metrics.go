package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the invitation module.
type Metrics struct {
	TicketsIssued    *prometheus.CounterVec
	TicketsRedeemed  *prometheus.CounterVec
	TicketsSwept     prometheus.Counter
	IssueConflicts   prometheus.Counter
	RedeemRejections *prometheus.CounterVec
}

// New creates a Metrics instance with all invitation metrics registered.
func New() *Metrics {
	return &Metrics{
		TicketsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_invitation_tickets_issued_total",
			Help: "Total invitation tickets issued",
		}, []string{"kind"}),
		TicketsRedeemed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_invitation_tickets_redeemed_total",
			Help: "Total successful redemptions by outcome",
		}, []string{"status"}),
		TicketsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_invitation_tickets_swept_total",
			Help: "Total expired tickets removed by sweeps",
		}),
		IssueConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_invitation_issue_conflicts_total",
			Help: "Total issue attempts rejected as duplicate invitations",
		}),
		RedeemRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_invitation_redeem_rejections_total",
			Help: "Total redemptions rejected, by reason",
		}, []string{"reason"}),
	}
}

// IncrementIssued records an issued ticket by kind ("email" or "link").
func (m *Metrics) IncrementIssued(kind string) {
	if m == nil {
		return
	}
	m.TicketsIssued.WithLabelValues(kind).Inc()
}

// IncrementRedeemed records a successful redemption by outcome status.
func (m *Metrics) IncrementRedeemed(status string) {
	if m == nil {
		return
	}
	m.TicketsRedeemed.WithLabelValues(status).Inc()
}

// AddSwept records expired tickets removed by a sweep.
func (m *Metrics) AddSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TicketsSwept.Add(float64(n))
}

// IncrementIssueConflict records a DuplicateInvitation rejection.
func (m *Metrics) IncrementIssueConflict() {
	if m == nil {
		return
	}
	m.IssueConflicts.Inc()
}

// IncrementRedeemRejection records a failed redemption by reason.
func (m *Metrics) IncrementRedeemRejection(reason string) {
	if m == nil {
		return
	}
	m.RedeemRejections.WithLabelValues(reason).Inc()
}
