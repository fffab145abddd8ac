package refprice

import (
	"sync"
	"time"

	"main/internal/schema"
)

// Tracker holds the latest NBBO snapshot per instrument. It is updated by an
// external market-data feed and read-only to the risk engine: evaluation
// always decides from the snapshot it was handed, so the same (order,
// snapshot) pair reproduces the same decision.
type Tracker struct {
	mu     sync.RWMutex
	latest map[schema.InstrumentID]schema.NBBOSnapshot
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[schema.InstrumentID]schema.NBBOSnapshot)}
}

// Update stores a snapshot when it is newer than the current one.
func (t *Tracker) Update(snap schema.NBBOSnapshot) {
	if snap.InstrumentID == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.latest[snap.InstrumentID]; ok && cur.TsSnapshot > snap.TsSnapshot {
		return
	}
	t.latest[snap.InstrumentID] = snap
}

// Latest returns the most recent snapshot for an instrument.
func (t *Tracker) Latest(instrument schema.InstrumentID) (schema.NBBOSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.latest[instrument]
	return snap, ok
}

// Age returns how old a snapshot is at the given time. A snapshot from the
// future reports zero age.
func Age(snap schema.NBBOSnapshot, now int64) time.Duration {
	if snap.TsSnapshot >= now {
		return 0
	}
	return time.Duration(now - snap.TsSnapshot)
}

// IsStale reports whether a snapshot is older than maxAge. A zero maxAge
// disables staleness checking.
func IsStale(snap schema.NBBOSnapshot, now int64, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return Age(snap, now) > maxAge
}
