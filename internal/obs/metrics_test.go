package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDecision(schema.ReasonOK, time.Microsecond)
	m.ObserveTwinRoundTrip(time.Microsecond)
	m.IncQueueDrop()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestObserveDecisionCounts(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision(schema.ReasonOK, time.Microsecond)
	m.ObserveDecision(schema.ReasonOK, 3*time.Microsecond)
	m.ObserveDecision(schema.ReasonPriceOutsideCollar, 2*time.Microsecond)
	m.ObserveDecision(schema.RiskReason(9999), time.Microsecond) // out of range, latency only
	m.IncQueueDrop()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.DecisionCounts[schema.ReasonOK])
	assert.Equal(t, uint64(1), snap.DecisionCounts[schema.ReasonPriceOutsideCollar])
	assert.Equal(t, uint64(1), snap.QueueDrops)

	assert.Equal(t, uint64(4), snap.EvalLatency.Count)
	assert.Equal(t, time.Microsecond, snap.EvalLatency.Min)
	assert.Equal(t, 3*time.Microsecond, snap.EvalLatency.Max)
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var stats LatencyStats
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				stats.Observe(time.Duration(i+1) * time.Microsecond)
			}
		}(i)
	}
	wg.Wait()

	snap := stats.Snapshot()
	assert.Equal(t, uint64(8000), snap.Count)
	assert.Equal(t, time.Microsecond, snap.Min)
	assert.Equal(t, 8*time.Microsecond, snap.Max)
}

func TestLatencyStatsIgnoresNegative(t *testing.T) {
	var stats LatencyStats
	stats.Observe(-time.Second)
	assert.Zero(t, stats.Snapshot().Count)
}
