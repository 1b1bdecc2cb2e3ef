package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scan module.
type Metrics struct {
	ScansRecorded      prometheus.Counter
	ScansDeduplicated  prometheus.Counter
	RewardsClaimed     prometheus.Counter
	RecordScanDuration prometheus.Histogram
}

// New creates a Metrics instance with all scan module metrics registered.
func New() *Metrics {
	return &Metrics{
		ScansRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_scans_recorded_total",
			Help: "Total number of fresh scan records inserted",
		}),
		ScansDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_scans_deduplicated_total",
			Help: "Total number of scans answered with the AlreadyRecorded outcome",
		}),
		RewardsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_rewards_claimed_total",
			Help: "Total number of successful reward claims, repeats included",
		}),
		RecordScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_record_scan_duration_seconds",
			Help:    "Duration of the RecordScan transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRecorded records a fresh scan insertion.
func (m *Metrics) IncrementRecorded() {
	if m == nil {
		return
	}
	m.ScansRecorded.Inc()
}

// IncrementDeduplicated records an AlreadyRecorded outcome.
func (m *Metrics) IncrementDeduplicated() {
	if m == nil {
		return
	}
	m.ScansDeduplicated.Inc()
}

// IncrementRewardClaimed records a successful claim.
func (m *Metrics) IncrementRewardClaimed() {
	if m == nil {
		return
	}
	m.RewardsClaimed.Inc()
}

// ObserveRecordScan records the duration of a RecordScan call.
func (m *Metrics) ObserveRecordScan(start time.Time) {
	if m == nil {
		return
	}
	m.RecordScanDuration.Observe(time.Since(start).Seconds())
}
