package limits

import (
	"sync"

	"main/internal/schema"
	"main/pkg/exception"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Store holds limit configs and account state per key. Reads and reservations
// for distinct keys never contend; reservations on the same key serialize on
// the entry mutex.
type Store struct {
	mu       sync.RWMutex
	entries  map[Key]*entry
	defaults *Config
}

type entry struct {
	mu     sync.Mutex
	cfg    Config
	state  AccountState
	window []int64
}

// NewStore creates an empty store. defaults, when non-nil, is the limit
// config applied to keys with no explicit entry.
func NewStore(defaults *Config) *Store {
	return &Store{
		entries:  make(map[Key]*entry),
		defaults: defaults,
	}
}

// SetLimits installs the limit config for a key, creating the entry.
func (s *Store) SetLimits(key Key, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// Limits returns the effective config for a key. ok is false when the key has
// neither an explicit entry nor a default.
func (s *Store) Limits(key Key) (Config, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		e.mu.Lock()
		cfg := e.cfg
		e.mu.Unlock()
		return cfg, true
	}
	if s.defaults != nil {
		return *s.defaults, true
	}
	return Config{}, false
}

// State returns the current account state for a key.
func (s *Store) State(key Key) AccountState {
	e := s.lookup(key)
	if e == nil {
		return AccountState{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reserve applies a position and credit delta atomically. It fails without
// mutating when the configured position or credit cap would be violated.
// Credit checks run before position checks, matching the decision word the
// hardware twin emits when both caps are breached.
func (s *Store) Reserve(key Key, deltaPos schema.Quantity, deltaCredit schema.Credit) (AccountState, error) {
	e := s.ensure(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	nextCredit, overflow := addCredit(e.state.UsedCredit, deltaCredit)
	if overflow {
		return e.state, exception.ErrRiskCreditExceeded
	}
	if e.cfg.MaxCredit > 0 && nextCredit > e.cfg.MaxCredit {
		return e.state, exception.ErrRiskCreditExceeded
	}

	nextPos, overflow := addQuantity(e.state.NetPosition, deltaPos)
	if overflow {
		return e.state, exception.ErrRiskPositionExceeded
	}
	if e.cfg.MaxPosition > 0 && absQuantity(nextPos) > e.cfg.MaxPosition {
		return e.state, exception.ErrRiskPositionExceeded
	}

	e.state.UsedCredit = nextCredit
	e.state.NetPosition = nextPos
	return e.state, nil
}

// Release returns previously reserved position and credit, for orders that
// leave the market without (or after) filling. Caps are not re-checked;
// committed credit never goes below zero.
func (s *Store) Release(key Key, deltaPos schema.Quantity, deltaCredit schema.Credit) AccountState {
	e := s.ensure(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, _ := addCredit(e.state.UsedCredit, -deltaCredit)
	if next < 0 {
		next = 0
	}
	e.state.UsedCredit = next
	pos, _ := addQuantity(e.state.NetPosition, -deltaPos)
	e.state.NetPosition = pos
	return e.state
}

// ThrottleCount returns how many allowed orders fall inside the rolling
// window ending at now. The read never mutates, so a denied evaluation leaves
// the window bit-identical.
func (s *Store) ThrottleCount(key Key, now int64) int {
	e := s.lookup(key)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	window := int64(e.cfg.ThrottleWindow)
	if window <= 0 {
		return 0
	}
	count := 0
	for _, ts := range e.window {
		if now-ts < window {
			count++
		}
	}
	return count
}

// ThrottleRecord appends an allowed-order timestamp to the rolling window.
func (s *Store) ThrottleRecord(key Key, ts int64) {
	e := s.ensure(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneWindow(ts)
	e.window = append(e.window, ts)
}

// Reset clears all account state and throttle windows, keeping configs. Used
// between deterministic verification runs.
func (s *Store) Reset() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		e.mu.Lock()
		e.state = AccountState{}
		e.window = e.window[:0]
		e.mu.Unlock()
	}
}

func (e *entry) pruneWindow(now int64) {
	window := int64(e.cfg.ThrottleWindow)
	if window <= 0 {
		e.window = e.window[:0]
		return
	}
	kept := e.window[:0]
	for _, ts := range e.window {
		if now-ts < window {
			kept = append(kept, ts)
		}
	}
	e.window = kept
}

func (s *Store) lookup(key Key) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

func (s *Store) ensure(key Key) *entry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &entry{}
	if s.defaults != nil {
		e.cfg = *s.defaults
	}
	s.entries[key] = e
	return e
}

func addQuantity(a, b schema.Quantity) (schema.Quantity, bool) {
	sum := int64(a) + int64(b)
	if (b > 0 && sum < int64(a)) || (b < 0 && sum > int64(a)) {
		return a, true
	}
	return schema.Quantity(sum), false
}

func addCredit(a, b schema.Credit) (schema.Credit, bool) {
	sum := int64(a) + int64(b)
	if (b > 0 && sum < int64(a)) || (b < 0 && sum > int64(a)) {
		return a, true
	}
	return schema.Credit(sum), false
}

func absQuantity(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}
