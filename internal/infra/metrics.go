package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations so the feed goroutines can read while the scheduler writes.
type Metrics struct {
	// Counters
	eventsProcessed atomic.Uint64
	snapshotsTaken  atomic.Uint64
	tradesRecorded  atomic.Uint64
	ordersFilled    atomic.Uint64
	modifyRejected  atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking (wall clock per processed event)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	feedClients atomic.Int32
	virtualTime atomic.Int64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordSnapshot records a periodic book snapshot.
func (m *Metrics) RecordSnapshot() {
	m.snapshotsTaken.Add(1)
}

// RecordTrade records a matched trade.
func (m *Metrics) RecordTrade() {
	m.tradesRecorded.Add(1)
}

// RecordOrderFilled records a fully filled strategy order.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordModifyRejected records a change/cancel refused by the throttle.
func (m *Metrics) RecordModifyRejected() {
	m.modifyRejected.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementFeedClients increments connected feed clients by 1.
func (m *Metrics) IncrementFeedClients() {
	m.feedClients.Add(1)
}

// DecrementFeedClients decrements connected feed clients by 1.
func (m *Metrics) DecrementFeedClients() {
	m.feedClients.Add(-1)
}

// SetVirtualTime publishes the simulation clock in seconds.
func (m *Metrics) SetVirtualTime(seconds int64) {
	m.virtualTime.Store(seconds)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed uint64
	SnapshotsTaken  uint64
	TradesRecorded  uint64
	OrdersFilled    uint64
	ModifyRejected  uint64
	ErrorsTotal     uint64
	AvgLatencyNs    int64
	FeedClients     int32
	VirtualTime     int64
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed: m.eventsProcessed.Load(),
		SnapshotsTaken:  m.snapshotsTaken.Load(),
		TradesRecorded:  m.tradesRecorded.Load(),
		OrdersFilled:    m.ordersFilled.Load(),
		ModifyRejected:  m.modifyRejected.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		AvgLatencyNs:    avgLatency,
		FeedClients:     m.feedClients.Load(),
		VirtualTime:     m.virtualTime.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.snapshotsTaken.Store(0)
	m.tradesRecorded.Store(0)
	m.ordersFilled.Store(0)
	m.modifyRejected.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.feedClients.Store(0)
	m.virtualTime.Store(0)
}
