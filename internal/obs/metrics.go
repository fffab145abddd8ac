package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const maxRiskReason = int(schema.MaxRiskReason)

// Metrics collects lightweight counters and latency stats. All methods are
// nil-receiver safe so the engine can run unobserved.
type Metrics struct {
	decisionCounts [maxRiskReason + 1]uint64
	queueDrops     uint64

	evalLatency LatencyStats
	twinLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	DecisionCounts map[schema.RiskReason]uint64
	QueueDrops     uint64
	EvalLatency    LatencySnapshot
	TwinLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveDecision counts one decision by reason and tracks evaluation latency.
func (m *Metrics) ObserveDecision(reason schema.RiskReason, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.decisionCounts) {
		atomic.AddUint64(&m.decisionCounts[idx], 1)
	}
	m.evalLatency.Observe(d)
}

// ObserveTwinRoundTrip measures one hardware-twin request round trip.
func (m *Metrics) ObserveTwinRoundTrip(d time.Duration) {
	if m == nil {
		return
	}
	m.twinLatency.Observe(d)
}

// IncQueueDrop records a dropped observer event.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[schema.RiskReason]uint64)
	for i := range m.decisionCounts {
		if v := atomic.LoadUint64(&m.decisionCounts[i]); v > 0 {
			counts[schema.RiskReason(i)] = v
		}
	}
	return Snapshot{
		DecisionCounts: counts,
		QueueDrops:     atomic.LoadUint64(&m.queueDrops),
		EvalLatency:    m.evalLatency.Snapshot(),
		TwinLatency:    m.twinLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
