package infra

import (
	"testing"
)

func TestMetrics_RecordEvent(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordEvent(2000)
	m.RecordEvent(3000)

	snap := m.Snapshot()

	if snap.EventsProcessed != 3 {
		t.Errorf("Expected 3 events, got %d", snap.EventsProcessed)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordSnapshot()
	m.RecordTrade()
	m.RecordTrade()
	m.RecordOrderFilled()
	m.RecordModifyRejected()
	m.SetVirtualTime(86400)

	snap := m.Snapshot()
	if snap.SnapshotsTaken != 1 {
		t.Errorf("Expected 1 snapshot, got %d", snap.SnapshotsTaken)
	}
	if snap.TradesRecorded != 2 {
		t.Errorf("Expected 2 trades, got %d", snap.TradesRecorded)
	}
	if snap.OrdersFilled != 1 || snap.ModifyRejected != 1 {
		t.Errorf("Unexpected order counters: %+v", snap)
	}
	if snap.VirtualTime != 86400 {
		t.Errorf("Expected virtual time 86400, got %d", snap.VirtualTime)
	}
}

func TestMetrics_FeedClients(t *testing.T) {
	m := &Metrics{}

	m.IncrementFeedClients()
	m.IncrementFeedClients()
	m.IncrementFeedClients()

	snap := m.Snapshot()
	if snap.FeedClients != 3 {
		t.Errorf("Expected 3 clients, got %d", snap.FeedClients)
	}

	m.DecrementFeedClients()
	snap = m.Snapshot()
	if snap.FeedClients != 2 {
		t.Errorf("Expected 2 clients, got %d", snap.FeedClients)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordError()
	m.IncrementFeedClients()
	m.SetVirtualTime(10)

	m.Reset()
	snap := m.Snapshot()

	if snap.EventsProcessed != 0 {
		t.Error("Expected 0 events after reset")
	}
	if snap.ErrorsTotal != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.FeedClients != 0 {
		t.Error("Expected 0 clients after reset")
	}
	if snap.VirtualTime != 0 {
		t.Error("Expected virtual time 0 after reset")
	}
}
