package observability

import (
	"sync/atomic"
	"time"
)

// ReconcileMetrics keeps in-process counters for the reconciliation worker so its
// health endpoint can report progress without scraping Prometheus.
type ReconcileMetrics struct {
	runs         atomic.Uint64
	failedRuns   atomic.Uint64
	audited      atomic.Uint64
	drifted      atomic.Uint64
	fixed        atomic.Uint64
	lastRunNanos atomic.Int64

	// duration stats (nanoseconds)
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewReconcileMetrics() *ReconcileMetrics {
	return &ReconcileMetrics{}
}

func (m *ReconcileMetrics) IncFailedRun() {
	if m == nil {
		return
	}
	m.failedRuns.Add(1)
}

// ObserveRun records one completed pass over all users.
func (m *ReconcileMetrics) ObserveRun(audited, drifted, fixed int, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.runs.Add(1)
	m.audited.Add(uint64(audited))
	m.drifted.Add(uint64(drifted))
	m.fixed.Add(uint64(fixed))
	m.lastRunNanos.Store(at.UnixNano())

	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()

		if ns <= curr {
			return
		}

		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type ReconcileSnapshot struct {
	Runs            uint64        `json:"runs"`
	FailedRuns      uint64        `json:"failedRuns"`
	Audited         uint64        `json:"audited"`
	Drifted         uint64        `json:"drifted"`
	Fixed           uint64        `json:"fixed"`
	LastRunAt       *time.Time    `json:"lastRunAt,omitempty"`
	AverageDuration time.Duration `json:"averageDurationNs"`
	MaxDuration     time.Duration `json:"maxDurationNs"`
}

func (m *ReconcileMetrics) Snapshot() ReconcileSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	snap := ReconcileSnapshot{
		Runs:            m.runs.Load(),
		FailedRuns:      m.failedRuns.Load(),
		Audited:         m.audited.Load(),
		Drifted:         m.drifted.Load(),
		Fixed:           m.fixed.Load(),
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.durationMax.Load()),
	}

	if ns := m.lastRunNanos.Load(); ns > 0 {
		t := time.Unix(0, ns).UTC()
		snap.LastRunAt = &t
	}

	return snap
}
