package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	depositsTotal         atomic.Uint64
	claimsTotal           atomic.Uint64
	withdrawalsInitiated  atomic.Uint64
	withdrawalsCompleted  atomic.Uint64
	rolloversTotal        atomic.Uint64
	errorsTotal           atomic.Uint64

	// Latency tracking for vault operations
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	currentRound      atomic.Uint64
	streamSubscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordDeposit records a committed deposit with its latency.
func (m *Metrics) RecordDeposit(latencyNs int64) {
	m.depositsTotal.Add(1)
	m.recordLatency(latencyNs)
}

// RecordClaim records a committed share claim.
func (m *Metrics) RecordClaim(latencyNs int64) {
	m.claimsTotal.Add(1)
	m.recordLatency(latencyNs)
}

// RecordWithdrawalInitiated records a queued withdrawal request.
func (m *Metrics) RecordWithdrawalInitiated(latencyNs int64) {
	m.withdrawalsInitiated.Add(1)
	m.recordLatency(latencyNs)
}

// RecordWithdrawalCompleted records a paid-out withdrawal.
func (m *Metrics) RecordWithdrawalCompleted(latencyNs int64) {
	m.withdrawalsCompleted.Add(1)
	m.recordLatency(latencyNs)
}

// RecordRollover records a round close and updates the round gauge.
func (m *Metrics) RecordRollover(newRound uint64, latencyNs int64) {
	m.rolloversTotal.Add(1)
	m.currentRound.Store(newRound)
	m.recordLatency(latencyNs)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// SetCurrentRound sets the round gauge (used on state restore).
func (m *Metrics) SetCurrentRound(round uint64) {
	m.currentRound.Store(round)
}

// IncrementSubscribers increments stream subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.streamSubscribers.Add(1)
}

// DecrementSubscribers decrements stream subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.streamSubscribers.Add(-1)
}

func (m *Metrics) recordLatency(latencyNs int64) {
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	DepositsTotal        uint64
	ClaimsTotal          uint64
	WithdrawalsInitiated uint64
	WithdrawalsCompleted uint64
	RolloversTotal       uint64
	ErrorsTotal          uint64
	AvgLatencyNs         int64
	CurrentRound         uint64
	StreamSubscribers    int32
	Timestamp            time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		DepositsTotal:        m.depositsTotal.Load(),
		ClaimsTotal:          m.claimsTotal.Load(),
		WithdrawalsInitiated: m.withdrawalsInitiated.Load(),
		WithdrawalsCompleted: m.withdrawalsCompleted.Load(),
		RolloversTotal:       m.rolloversTotal.Load(),
		ErrorsTotal:          m.errorsTotal.Load(),
		AvgLatencyNs:         avgLatency,
		CurrentRound:         m.currentRound.Load(),
		StreamSubscribers:    m.streamSubscribers.Load(),
		Timestamp:            time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.depositsTotal.Store(0)
	m.claimsTotal.Store(0)
	m.withdrawalsInitiated.Store(0)
	m.withdrawalsCompleted.Store(0)
	m.rolloversTotal.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.currentRound.Store(0)
	m.streamSubscribers.Store(0)
}
