package infra

import (
	"testing"
)

func TestMetrics_RecordOperations(t *testing.T) {
	m := &Metrics{}

	m.RecordDeposit(1000)
	m.RecordDeposit(2000)
	m.RecordClaim(3000)

	snap := m.Snapshot()

	if snap.DepositsTotal != 2 {
		t.Errorf("Expected 2 deposits, got %d", snap.DepositsTotal)
	}
	if snap.ClaimsTotal != 1 {
		t.Errorf("Expected 1 claim, got %d", snap.ClaimsTotal)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_RolloverUpdatesRoundGauge(t *testing.T) {
	m := &Metrics{}

	m.RecordRollover(2, 500)
	m.RecordRollover(3, 500)

	snap := m.Snapshot()
	if snap.RolloversTotal != 2 {
		t.Errorf("Expected 2 rollovers, got %d", snap.RolloversTotal)
	}
	if snap.CurrentRound != 3 {
		t.Errorf("Expected current round 3, got %d", snap.CurrentRound)
	}
}

func TestMetrics_Subscribers(t *testing.T) {
	m := &Metrics{}

	m.IncrementSubscribers()
	m.IncrementSubscribers()
	m.DecrementSubscribers()

	snap := m.Snapshot()
	if snap.StreamSubscribers != 1 {
		t.Errorf("Expected 1 subscriber, got %d", snap.StreamSubscribers)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordDeposit(1000)
	m.RecordError()
	m.Reset()

	snap := m.Snapshot()
	if snap.DepositsTotal != 0 || snap.ErrorsTotal != 0 || snap.AvgLatencyNs != 0 {
		t.Errorf("Expected zeroed metrics, got %+v", snap)
	}
}
