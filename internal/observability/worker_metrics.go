package observability

import (
	"sync/atomic"
	"time"
)

// WorkerMetrics is an in-process tally of consumed events, logged by the
// worker on shutdown and served from its health endpoint.
type WorkerMetrics struct {
	received atomic.Uint64
	handled  atomic.Uint64
	failed   atomic.Uint64
	polls    atomic.Uint64
	pollErrs atomic.Uint64

	// duration stats (nanoseconds)
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{}
}

func (m *WorkerMetrics) IncReceived() {
	m.received.Add(1)
}

func (m *WorkerMetrics) IncHandled() {
	m.handled.Add(1)
}

func (m *WorkerMetrics) IncFailed() {
	m.failed.Add(1)
}

func (m *WorkerMetrics) IncPoll(err error) {
	m.polls.Add(1)
	if err != nil {
		m.pollErrs.Add(1)
	}
}

func (m *WorkerMetrics) ObserveDuration(d time.Duration) {
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

type WorkerMetricsSnapshot struct {
	Received        uint64        `json:"received"`
	Handled         uint64        `json:"handled"`
	Failed          uint64        `json:"failed"`
	Polls           uint64        `json:"polls"`
	PollErrors      uint64        `json:"pollErrors"`
	AverageDuration time.Duration `json:"averageDurationNs"`
	MaxDuration     time.Duration `json:"maxDurationNs"`
}

func (m *WorkerMetrics) Snapshot() WorkerMetricsSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return WorkerMetricsSnapshot{
		Received:        m.received.Load(),
		Handled:         m.handled.Load(),
		Failed:          m.failed.Load(),
		Polls:           m.polls.Load(),
		PollErrors:      m.pollErrs.Load(),
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.durationMax.Load()),
	}
}
