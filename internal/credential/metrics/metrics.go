package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential module.
type Metrics struct {
	Issued             prometheus.Counter
	Reused             prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	IssueDuration      prometheus.Histogram
}

// New creates a Metrics instance with all credential module metrics registered.
func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_credentials_issued_total",
			Help: "Total number of fresh credentials issued (renders included)",
		}),
		Reused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_credentials_reused_total",
			Help: "Total number of getOrCreate calls answered by an unexpired credential",
		}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_credential_validation_failures_total",
			Help: "Credential validation failures by reason",
		}, []string{"reason"}),
		IssueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_credential_issue_duration_seconds",
			Help:    "Duration of credential issuance including render and blob write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveIssue records the duration of an issuance that produced a fresh
// credential. Call with the operation start time.
func (m *Metrics) ObserveIssue(start time.Time) {
	if m == nil {
		return
	}
	m.IssueDuration.Observe(time.Since(start).Seconds())
	m.Issued.Inc()
}

// IncrementReused records a getOrCreate call served from the existing row.
func (m *Metrics) IncrementReused() {
	if m == nil {
		return
	}
	m.Reused.Inc()
}

// IncrementValidationFailure records a failed validation by reason.
func (m *Metrics) IncrementValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(reason).Inc()
}
