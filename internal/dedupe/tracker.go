package dedupe

import (
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// persistQueueSize bounds the backlog of IDs awaiting a durable write.
const persistQueueSize = 1 << 16

// Options tunes the tracker.
type Options struct {
	// SeenRetention bounds how many order IDs are remembered per account.
	// Zero keeps every ID for the session. Evicting early reintroduces the
	// risk of accepting a replayed ID, so the bound should exceed the ID
	// reuse horizon of the session. IDs preloaded from Persist are exempt
	// from the bound.
	SeenRetention int

	// Persist, when non-nil, mirrors recorded IDs to durable storage so a
	// restarted gateway still rejects replays. The store is read once at
	// construction and written by a background goroutine, so duplicate
	// lookups never touch the disk.
	Persist *SeenStore
}

type seenKey struct {
	Account schema.AccountID
	OrderID uint64
}

type restKey struct {
	Group      schema.GroupID
	Instrument schema.InstrumentID
}

// RestingOrder is the context kept per live order: enough for self-trade
// prevention plus the reservation to return when the order leaves the market.
type RestingOrder struct {
	Account schema.AccountID
	Side    schema.OrderSide
	Price   schema.Price
	Qty     schema.Quantity
	Credit  schema.Credit
}

// Tracker remembers seen order identifiers and live resting orders. Record
// and Register are called only on final allow; reads never mutate.
type Tracker struct {
	mu      sync.RWMutex
	opt     Options
	seen    map[seenKey]struct{}
	fifo    map[schema.AccountID][]uint64
	resting map[restKey]map[uint64]RestingOrder

	pending chan seenKey
	done    chan struct{}
	closed  bool
}

// NewTracker creates a tracker. With Options.Persist set, the persisted table
// is loaded into memory up front and a writer goroutine is started, so
// evaluation never waits on the disk.
func NewTracker(opt Options) *Tracker {
	t := &Tracker{
		opt:     opt,
		seen:    make(map[seenKey]struct{}),
		fifo:    make(map[schema.AccountID][]uint64),
		resting: make(map[restKey]map[uint64]RestingOrder),
	}
	if opt.Persist != nil {
		if err := opt.Persist.Each(func(account schema.AccountID, orderID uint64) {
			t.seen[seenKey{Account: account, OrderID: orderID}] = struct{}{}
		}); err != nil {
			logs.Errorf("preload seen ids, err: %+v", err)
		}
		t.pending = make(chan seenKey, persistQueueSize)
		t.done = make(chan struct{})
		go t.persistLoop()
	}
	return t
}

// IsDuplicate reports whether the (account, orderID) pair has been seen.
func (t *Tracker) IsDuplicate(account schema.AccountID, orderID uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.seen[seenKey{Account: account, OrderID: orderID}]
	return ok
}

// Record marks an order identifier as seen, evicting the oldest entry for
// the account when the retention bound is hit.
func (t *Tracker) Record(account schema.AccountID, orderID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := seenKey{Account: account, OrderID: orderID}
	if _, ok := t.seen[key]; ok {
		return
	}
	t.seen[key] = struct{}{}
	if t.opt.SeenRetention > 0 {
		queue := append(t.fifo[account], orderID)
		if len(queue) > t.opt.SeenRetention {
			delete(t.seen, seenKey{Account: account, OrderID: queue[0]})
			queue = queue[1:]
		}
		t.fifo[account] = queue
	}
	if t.pending != nil && !t.closed {
		// Persistence is best-effort and never a decision input; the
		// in-memory table already holds the ID for this session.
		select {
		case t.pending <- key:
		default:
		}
	}
}

// Close flushes pending durable writes and stops the writer goroutine. It
// must be called before closing the underlying store.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed || t.pending == nil {
		t.closed = true
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.pending)
	t.mu.Unlock()
	<-t.done
}

func (t *Tracker) persistLoop() {
	for key := range t.pending {
		if err := t.opt.Persist.Put(key.Account, key.OrderID); err != nil {
			logs.Errorf("persist seen id, err: %+v", err)
		}
	}
	close(t.done)
}

// WouldSelfTrade reports whether an incoming order would cross a resting
// opposite-side order from the same account group. Market orders cross
// whenever any opposite resting order exists.
func (t *Tracker) WouldSelfTrade(group schema.GroupID, instrument schema.InstrumentID, side schema.OrderSide, price schema.Price, isMarket bool) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	book := t.resting[restKey{Group: group, Instrument: instrument}]
	for _, rest := range book {
		if rest.Side == side {
			continue
		}
		if isMarket {
			return true
		}
		if side == schema.OrderSideBuy && rest.Price <= price {
			return true
		}
		if side == schema.OrderSideSell && rest.Price >= price {
			return true
		}
	}
	return false
}

// Register adds an allowed limit order to the resting context.
func (t *Tracker) Register(group schema.GroupID, instrument schema.InstrumentID, orderID uint64, rest RestingOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := restKey{Group: group, Instrument: instrument}
	book, ok := t.resting[key]
	if !ok {
		book = make(map[uint64]RestingOrder)
		t.resting[key] = book
	}
	book[orderID] = rest
}

// Remove drops a resting order once it is filled or canceled.
func (t *Tracker) Remove(group schema.GroupID, instrument schema.InstrumentID, orderID uint64) (RestingOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	book, ok := t.resting[restKey{Group: group, Instrument: instrument}]
	if !ok {
		return RestingOrder{}, false
	}
	rest, ok := book[orderID]
	if ok {
		delete(book, orderID)
	}
	return rest, ok
}

// RestingCount returns the number of live resting orders for a group and
// instrument.
func (t *Tracker) RestingCount(group schema.GroupID, instrument schema.InstrumentID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.resting[restKey{Group: group, Instrument: instrument}])
}

// SeenCount returns the number of remembered order identifiers.
func (t *Tracker) SeenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.seen)
}
