package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/dedupe"
	"main/internal/limits"
	"main/internal/schema"
	"main/pkg/exception"
)

const (
	testAccount    = schema.AccountID(1)
	testInstrument = schema.InstrumentID(1)
)

var testKey = limits.Key{Account: testAccount, Instrument: testInstrument}

func newTestEngine(t *testing.T, cfg limits.Config) *Engine {
	t.Helper()
	store := limits.NewStore(nil)
	store.SetLimits(testKey, cfg)
	return NewEngine(Config{}, Stores{
		Limits: store,
		Dedupe: dedupe.NewTracker(dedupe.Options{}),
	}, nil)
}

func testOrder(id uint64, qty schema.Quantity, price schema.Price) schema.Order {
	order := schema.Order{
		OrderID:      id,
		AccountID:    testAccount,
		InstrumentID: testInstrument,
		Side:         schema.OrderSideBuy,
		Type:         schema.OrderTypeLimit,
		Price:        price,
		Qty:          qty,
		TsSubmit:     time.Unix(1700000000, 0).UnixNano(),
	}
	if price == 0 {
		order.Type = schema.OrderTypeMarket
	}
	return order
}

func testSnap(bid, ask schema.Price) schema.NBBOSnapshot {
	return schema.NBBOSnapshot{
		InstrumentID: testInstrument,
		Bid:          bid,
		Ask:          ask,
		TsSnapshot:   time.Unix(1700000000, 0).UnixNano(),
	}
}

func TestEvaluateEndToEndScenario(t *testing.T) {
	engine := newTestEngine(t, limits.Config{
		MaxOrderQty:      100,
		MaxOrderNotional: 10000,
		CollarBandAbs:    5,
	})
	snap := testSnap(99, 101) // midpoint 100

	decision, err := engine.Evaluate(testOrder(1, 50, 103), snap)
	require.NoError(t, err)
	assert.True(t, decision.Allow())
	assert.Equal(t, schema.ReasonOK, decision.Reason)

	decision, err = engine.Evaluate(testOrder(1, 50, 103), snap)
	require.NoError(t, err)
	assert.False(t, decision.Allow())
	assert.Equal(t, schema.ReasonDuplicateOrderID, decision.Reason)

	decision, err = engine.Evaluate(testOrder(2, 150, 103), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonQuantityExceedsLimit, decision.Reason)

	decision, err = engine.Evaluate(testOrder(3, 10, 106), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonPriceOutsideCollar, decision.Reason)
}

func TestEvaluateExactlyOneOutcome(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxOrderQty: 100})
	snap := testSnap(99, 101)

	allow, err := engine.Evaluate(testOrder(1, 50, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.RiskActionAllow, allow.Action)
	assert.Equal(t, schema.ReasonOK, allow.Reason)

	deny, err := engine.Evaluate(testOrder(2, 500, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.RiskActionDeny, deny.Action)
	assert.NotEqual(t, schema.ReasonOK, deny.Reason)
}

func TestEvaluateDenialIdempotent(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxOrderQty: 10})
	snap := testSnap(99, 101)
	order := testOrder(1, 20, 100)

	first, err := engine.Evaluate(order, snap)
	require.NoError(t, err)
	second, err := engine.Evaluate(order, snap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateNoMutationOnDeny(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxOrderQty: 10, ThrottleWindow: time.Second, ThrottleMaxCount: 5})
	snap := testSnap(99, 101)

	before := engine.stores.Limits.State(testKey)
	seenBefore := engine.stores.Dedupe.SeenCount()

	decision, err := engine.Evaluate(testOrder(1, 20, 100), snap)
	require.NoError(t, err)
	require.False(t, decision.Allow())

	assert.Equal(t, before, engine.stores.Limits.State(testKey))
	assert.Equal(t, seenBefore, engine.stores.Dedupe.SeenCount())
	assert.Zero(t, engine.stores.Dedupe.RestingCount(schema.ImplicitGroup(testAccount), testInstrument))
	assert.Zero(t, engine.stores.Limits.ThrottleCount(testKey, decision.TsDecision))
}

func TestEvaluateDuplicateAcrossFieldChanges(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(7, 10, 100), snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())

	// Same id resubmitted with different qty, price and side.
	replay := testOrder(7, 99, 101)
	replay.Side = schema.OrderSideSell
	decision, err = engine.Evaluate(replay, snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonDuplicateOrderID, decision.Reason)
}

func TestEvaluateCollarBoundaries(t *testing.T) {
	for _, tc := range []struct {
		name   string
		price  schema.Price
		reason schema.RiskReason
	}{
		{"upper boundary", 105, schema.ReasonOK},
		{"one above", 106, schema.ReasonPriceOutsideCollar},
		{"lower boundary", 95, schema.ReasonOK},
		{"one below", 94, schema.ReasonPriceOutsideCollar},
	} {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(t, limits.Config{CollarBandAbs: 5})
			decision, err := engine.Evaluate(testOrder(1, 10, tc.price), testSnap(99, 101))
			require.NoError(t, err)
			assert.Equal(t, tc.reason, decision.Reason)
		})
	}
}

func TestEvaluateCollarBps(t *testing.T) {
	// mid=10000, 50bps -> band 50.
	engine := newTestEngine(t, limits.Config{CollarBandBps: 50})
	snap := testSnap(9999, 10001)

	decision, err := engine.Evaluate(testOrder(1, 1, 10050), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonOK, decision.Reason)

	decision, err = engine.Evaluate(testOrder(2, 1, 10051), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonPriceOutsideCollar, decision.Reason)
}

func TestEvaluateStalePrice(t *testing.T) {
	engine := newTestEngine(t, limits.Config{CollarBandAbs: 5, MaxPriceAge: time.Second})
	snap := testSnap(99, 101)
	order := testOrder(1, 10, 100)

	order.TsSubmit = snap.TsSnapshot + int64(time.Second)
	decision, err := engine.Evaluate(order, snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonOK, decision.Reason)

	order = testOrder(2, 10, 100)
	order.TsSubmit = snap.TsSnapshot + int64(time.Second) + 1
	decision, err = engine.Evaluate(order, snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonStalePrice, decision.Reason)
}

func TestEvaluateMarketOrderWithoutUsableNBBO(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxOrderNotional: 10000})
	snap := testSnap(0, 0)
	snap.InstrumentID = testInstrument

	decision, err := engine.Evaluate(testOrder(1, 10, 0), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonStalePrice, decision.Reason)
}

func TestEvaluateNotionalUsesMidpointForMarketOrders(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxOrderNotional: 1000})
	snap := testSnap(99, 101) // midpoint 100

	decision, err := engine.Evaluate(testOrder(1, 10, 0), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonOK, decision.Reason)

	decision, err = engine.Evaluate(testOrder(2, 11, 0), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonNotionalExceedsLimit, decision.Reason)
}

func TestEvaluateSelfTradePrevention(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	snap := testSnap(99, 101)

	// Rest a sell at 102.
	sell := testOrder(1, 10, 102)
	sell.Side = schema.OrderSideSell
	decision, err := engine.Evaluate(sell, snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())

	// Buy at 101 does not cross the resting sell.
	decision, err = engine.Evaluate(testOrder(2, 10, 101), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonOK, decision.Reason)

	// Buy at 102 crosses.
	decision, err = engine.Evaluate(testOrder(3, 10, 102), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonSelfTradePrevented, decision.Reason)

	// Market buy crosses any resting opposite order.
	decision, err = engine.Evaluate(testOrder(4, 10, 0), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonSelfTradePrevented, decision.Reason)
}

func TestEvaluateSelfTradeScopedToGroup(t *testing.T) {
	registry := schema.NewRegistry()
	deskA, err := registry.AddAccount("desk-a", 100)
	require.NoError(t, err)
	deskB, err := registry.AddAccount("desk-b", 100)
	require.NoError(t, err)
	lone, err := registry.AddAccount("lone", 0)
	require.NoError(t, err)
	_, err = registry.AddInstrument("X", schema.ScaleSpec{})
	require.NoError(t, err)

	store := limits.NewStore(&limits.Config{})
	engine := NewEngine(Config{}, Stores{
		Registry: registry,
		Limits:   store,
		Dedupe:   dedupe.NewTracker(dedupe.Options{}),
	}, nil)
	snap := testSnap(99, 101)

	sell := testOrder(1, 10, 100)
	sell.AccountID = deskA
	sell.Side = schema.OrderSideSell
	decision, err := engine.Evaluate(sell, snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())

	// Same desk, different account: prevented.
	buy := testOrder(2, 10, 100)
	buy.AccountID = deskB
	decision, err = engine.Evaluate(buy, snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonSelfTradePrevented, decision.Reason)

	// Unrelated account: allowed.
	buy = testOrder(3, 10, 100)
	buy.AccountID = lone
	decision, err = engine.Evaluate(buy, snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonOK, decision.Reason)
}

func TestEvaluateThrottleBoundary(t *testing.T) {
	engine := newTestEngine(t, limits.Config{
		ThrottleWindow:   10 * time.Second,
		ThrottleMaxCount: 2,
	})
	snap := testSnap(99, 101)
	base := snap.TsSnapshot

	submit := func(id uint64, at int64) schema.RiskDecision {
		order := testOrder(id, 1, 100)
		order.TsSubmit = at
		decision, err := engine.Evaluate(order, snap)
		require.NoError(t, err)
		return decision
	}

	assert.True(t, submit(1, base).Allow())
	assert.True(t, submit(2, base+int64(time.Second)).Allow())
	assert.Equal(t, schema.ReasonThrottleExceeded, submit(3, base+2*int64(time.Second)).Reason)

	// Once the first timestamp rolls out of the window, capacity frees up.
	assert.True(t, submit(4, base+int64(10*time.Second)).Allow())
}

func TestEvaluateCreditAndPositionCaps(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxPosition: 100})
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 80, 100), snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())
	assert.Equal(t, schema.Quantity(80), decision.NetPosition)

	decision, err = engine.Evaluate(testOrder(2, 30, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonPositionExceeded, decision.Reason)

	// Sells reduce net position and are admitted.
	sell := testOrder(3, 50, 100)
	sell.Side = schema.OrderSideSell
	decision, err = engine.Evaluate(sell, snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())
	assert.Equal(t, schema.Quantity(30), decision.NetPosition)
}

func TestEvaluateCreditBeforePosition(t *testing.T) {
	// Both caps would be violated; the credit reason wins.
	engine := newTestEngine(t, limits.Config{MaxPosition: 10, MaxCredit: 100})
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 50, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonCreditExceeded, decision.Reason)
}

func TestEvaluateInvalidOrders(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	snap := testSnap(99, 101)

	for name, mutate := range map[string]func(*schema.Order){
		"zero id":             func(o *schema.Order) { o.OrderID = 0 },
		"zero qty":            func(o *schema.Order) { o.Qty = 0 },
		"negative qty":        func(o *schema.Order) { o.Qty = -5 },
		"unknown side":        func(o *schema.Order) { o.Side = schema.OrderSideUnknown },
		"unknown type":        func(o *schema.Order) { o.Type = schema.OrderTypeUnknown },
		"limit without price": func(o *schema.Order) { o.Price = 0; o.Type = schema.OrderTypeLimit },
		"market with price":   func(o *schema.Order) { o.Type = schema.OrderTypeMarket },
		"mismatched snapshot": func(o *schema.Order) { o.InstrumentID = 2 },
	} {
		t.Run(name, func(t *testing.T) {
			order := testOrder(1, 10, 100)
			mutate(&order)
			decision, err := engine.Evaluate(order, snap)
			require.NoError(t, err)
			assert.Equal(t, schema.ReasonInvalidOrder, decision.Reason)
		})
	}
}

func TestEvaluateKillSwitch(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	engine.SetKillSwitch(true)
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 10, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonKillSwitch, decision.Reason)

	engine.SetKillSwitch(false)
	decision, err = engine.Evaluate(testOrder(1, 10, 100), snap)
	require.NoError(t, err)
	assert.True(t, decision.Allow())
}

func TestEvaluateConcurrentPositionRace(t *testing.T) {
	// Combined position would exceed the cap; neither order alone does.
	// Exactly one must commit.
	engine := newTestEngine(t, limits.Config{MaxPosition: 100})
	snap := testSnap(99, 101)

	var wg sync.WaitGroup
	results := make([]schema.RiskDecision, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Evaluate(testOrder(uint64(i+1), 60, 100), snap)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	allows := 0
	for _, decision := range results {
		if decision.Allow() {
			allows++
		} else {
			assert.Equal(t, schema.ReasonPositionExceeded, decision.Reason)
		}
	}
	assert.Equal(t, 1, allows)
	assert.Equal(t, schema.Quantity(60), engine.stores.Limits.State(testKey).NetPosition)
}

func TestEvaluateDistinctKeysDoNotInterfere(t *testing.T) {
	store := limits.NewStore(nil)
	store.SetLimits(testKey, limits.Config{MaxPosition: 50})
	otherKey := limits.Key{Account: 2, Instrument: testInstrument}
	store.SetLimits(otherKey, limits.Config{MaxPosition: 500})
	engine := NewEngine(Config{}, Stores{
		Limits: store,
		Dedupe: dedupe.NewTracker(dedupe.Options{}),
	}, nil)
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 100, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonPositionExceeded, decision.Reason)

	other := testOrder(1, 100, 100)
	other.AccountID = 2
	decision, err = engine.Evaluate(other, snap)
	require.NoError(t, err)
	assert.True(t, decision.Allow())
}

func TestOnCancelReleasesReservation(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxPosition: 100, MaxCredit: 100000})
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 80, 100), snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())
	require.Equal(t, schema.Credit(8000), decision.UsedCredit)

	require.True(t, engine.OnCancel(testAccount, testInstrument, 1))
	state := engine.stores.Limits.State(testKey)
	assert.Zero(t, state.NetPosition)
	assert.Zero(t, state.UsedCredit)

	// A second cancel is a no-op.
	assert.False(t, engine.OnCancel(testAccount, testInstrument, 1))

	// The id stays seen: cancel never reopens it for replay.
	replay, err := engine.Evaluate(testOrder(1, 80, 100), snap)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonDuplicateOrderID, replay.Reason)
}

func TestOnFillKeepsStateButDropsRestingOrder(t *testing.T) {
	engine := newTestEngine(t, limits.Config{MaxPosition: 100})
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 80, 100), snap)
	require.NoError(t, err)
	require.True(t, decision.Allow())

	require.True(t, engine.OnFill(testAccount, testInstrument, 1))
	state := engine.stores.Limits.State(testKey)
	assert.Equal(t, schema.Quantity(80), state.NetPosition)
	assert.Zero(t, engine.stores.Dedupe.RestingCount(schema.ImplicitGroup(testAccount), testInstrument))

	// With the resting order gone, an opposite-side order is admitted.
	sell := testOrder(2, 10, 100)
	sell.Side = schema.OrderSideSell
	decision, err = engine.Evaluate(sell, snap)
	require.NoError(t, err)
	assert.True(t, decision.Allow())
}

func TestEvaluateUnlimitedDimensionsPass(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	snap := testSnap(99, 101)

	decision, err := engine.Evaluate(testOrder(1, 1_000_000, 1_000_000), snap)
	require.NoError(t, err)
	assert.True(t, decision.Allow())
}

func TestAuditState(t *testing.T) {
	cfg := limits.Config{MaxPosition: 100, MaxCredit: 1000}

	assert.NoError(t, auditState(cfg, limits.AccountState{NetPosition: 100, UsedCredit: 1000}))
	assert.NoError(t, auditState(limits.Config{}, limits.AccountState{NetPosition: 1 << 40, UsedCredit: 1 << 40}))

	for name, state := range map[string]limits.AccountState{
		"negative credit":         {UsedCredit: -1},
		"credit over cap":         {UsedCredit: 1001},
		"long position over cap":  {NetPosition: 101},
		"short position over cap": {NetPosition: -101},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, auditState(cfg, state), exception.ErrRiskStateCorrupt)
		})
	}
}

func TestHaltedKeyDeniesSubsequentOrders(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	snap := testSnap(99, 101)
	engine.halt(testKey, exception.ErrRiskStateCorrupt)

	require.ErrorIs(t, engine.Halted(testAccount, testInstrument), exception.ErrRiskStateCorrupt)

	for i := uint64(1); i <= 2; i++ {
		decision, err := engine.Evaluate(testOrder(i, 10, 100), snap)
		require.ErrorIs(t, err, exception.ErrRiskKeyHalted)
		require.ErrorIs(t, err, exception.ErrRiskStateCorrupt)
		assert.False(t, decision.Allow())
		assert.Equal(t, schema.ReasonInvalidOrder, decision.Reason)
	}

	// Nothing committed for the poisoned key.
	assert.Zero(t, engine.stores.Dedupe.SeenCount())
	assert.Zero(t, engine.stores.Limits.State(testKey).UsedCredit)

	// The halt is scoped to its key; other accounts keep trading.
	other := testOrder(3, 10, 100)
	other.AccountID = testAccount + 1
	decision, err := engine.Evaluate(other, snap)
	require.NoError(t, err)
	assert.True(t, decision.Allow())
	assert.NoError(t, engine.Halted(other.AccountID, testInstrument))
}

func TestHaltKeepsFirstCause(t *testing.T) {
	engine := newTestEngine(t, limits.Config{})
	engine.halt(testKey, exception.ErrRiskStateCorrupt)
	engine.halt(testKey, exception.ErrRiskCreditExceeded)

	assert.ErrorIs(t, engine.Halted(testAccount, testInstrument), exception.ErrRiskStateCorrupt)
}
