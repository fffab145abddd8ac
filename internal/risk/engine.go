package risk

import (
	"fmt"
	"sync"
	"time"

	"main/internal/dedupe"
	"main/internal/limits"
	"main/internal/obs"
	"main/internal/schema"
	"main/pkg/exception"
)

const shardCount = 64

// Config defines engine-level settings outside any single limit dimension.
type Config struct {
	// KillSwitch denies every order until cleared.
	KillSwitch bool `json:"killSwitch"`
}

// Stores are the mutable state the pipeline reads and the engine commits to.
// All of them are explicit inputs so multiple universes (per test, per
// verification run) can coexist and be reset deterministically.
type Stores struct {
	Registry *schema.Registry
	Limits   *limits.Store
	Dedupe   *dedupe.Tracker
}

// Engine is the risk gateway facade: the single entry point the surrounding
// system invokes, and the unit verified bit-for-bit against the hardware
// twin.
type Engine struct {
	cfg    Config
	stores Stores

	shards [shardCount]sync.Mutex

	haltedMu sync.RWMutex
	halted   map[limits.Key]error

	metrics *obs.Metrics
}

// NewEngine wires an engine over its stores. metrics may be nil.
func NewEngine(cfg Config, stores Stores, metrics *obs.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		stores:  stores,
		halted:  make(map[limits.Key]error),
		metrics: metrics,
	}
}

// SetKillSwitch flips the deny-all gate.
func (e *Engine) SetKillSwitch(on bool) {
	e.haltedMu.Lock()
	e.cfg.KillSwitch = on
	e.haltedMu.Unlock()
}

// Evaluate runs the check pipeline for one order against the NBBO snapshot
// supplied with it. On allow, the position/credit reservation, throttle
// timestamp, seen-order record, and resting-order registration commit as one
// atomic unit under the key's critical section; on deny nothing mutates.
//
// The error is non-nil only for an internal-consistency failure, which halts
// further evaluation for the key. Every business condition, including
// malformed input, is expressed as a denial reason.
func (e *Engine) Evaluate(order schema.Order, snap schema.NBBOSnapshot) (schema.RiskDecision, error) {
	start := time.Now()
	key := limits.Key{Account: order.AccountID, Instrument: order.InstrumentID}

	shard := &e.shards[shardIndex(key)]
	shard.Lock()
	defer shard.Unlock()

	decision := schema.RiskDecision{
		OrderID:      order.OrderID,
		AccountID:    order.AccountID,
		InstrumentID: order.InstrumentID,
		Action:       schema.RiskActionAllow,
		Reason:       schema.ReasonOK,
		Qty:          order.Qty,
		Price:        order.Price,
		TsDecision:   order.TsSubmit,
	}
	state := e.stores.Limits.State(key)
	decision.NetPosition = state.NetPosition
	decision.UsedCredit = state.UsedCredit

	if cause := e.haltedErr(key); cause != nil {
		e.deny(&decision, schema.ReasonInvalidOrder, start)
		return decision, fmt.Errorf("%w: %w", exception.ErrRiskKeyHalted, cause)
	}
	if e.killSwitchOn() {
		e.deny(&decision, schema.ReasonKillSwitch, start)
		return decision, nil
	}

	ctx := e.newEvalContext(order, snap, key)
	for _, check := range pipeline {
		if reason := check(e, ctx); reason != schema.ReasonOK {
			e.deny(&decision, reason, start)
			return decision, nil
		}
	}

	deltaPos := applySide(order.Side, order.Qty)
	deltaCredit := schema.Credit(ctx.notional)
	committed, err := e.stores.Limits.Reserve(key, deltaPos, deltaCredit)
	switch err {
	case nil:
	case exception.ErrRiskCreditExceeded:
		e.deny(&decision, schema.ReasonCreditExceeded, start)
		return decision, nil
	case exception.ErrRiskPositionExceeded:
		e.deny(&decision, schema.ReasonPositionExceeded, start)
		return decision, nil
	default:
		e.halt(key, err)
		e.deny(&decision, schema.ReasonInvalidOrder, start)
		return decision, err
	}

	if err := auditState(ctx.cfg, committed); err != nil {
		e.halt(key, err)
		e.deny(&decision, schema.ReasonInvalidOrder, start)
		return decision, err
	}

	e.stores.Limits.ThrottleRecord(key, order.TsSubmit)
	e.stores.Dedupe.Record(order.AccountID, order.OrderID)
	if order.Type == schema.OrderTypeLimit {
		e.stores.Dedupe.Register(ctx.group, order.InstrumentID, order.OrderID, dedupe.RestingOrder{
			Account: order.AccountID,
			Side:    order.Side,
			Price:   order.Price,
			Qty:     order.Qty,
			Credit:  deltaCredit,
		})
	}

	decision.NetPosition = committed.NetPosition
	decision.UsedCredit = committed.UsedCredit
	e.metrics.ObserveDecision(schema.ReasonOK, time.Since(start))
	return decision, nil
}

// OnCancel releases the reservation of a live resting order. It is a no-op
// for unknown or market orders.
func (e *Engine) OnCancel(account schema.AccountID, instrument schema.InstrumentID, orderID uint64) bool {
	key := limits.Key{Account: account, Instrument: instrument}
	shard := &e.shards[shardIndex(key)]
	shard.Lock()
	defer shard.Unlock()

	rest, ok := e.stores.Dedupe.Remove(e.group(account), instrument, orderID)
	if !ok {
		return false
	}
	e.stores.Limits.Release(key, applySide(rest.Side, rest.Qty), rest.Credit)
	return true
}

// OnFill retires a fully filled resting order. The position stays committed
// and the credit stays consumed; only the self-trade context is dropped.
func (e *Engine) OnFill(account schema.AccountID, instrument schema.InstrumentID, orderID uint64) bool {
	key := limits.Key{Account: account, Instrument: instrument}
	shard := &e.shards[shardIndex(key)]
	shard.Lock()
	defer shard.Unlock()

	_, ok := e.stores.Dedupe.Remove(e.group(account), instrument, orderID)
	return ok
}

// Halted returns the internal-consistency error poisoning a key, if any.
func (e *Engine) Halted(account schema.AccountID, instrument schema.InstrumentID) error {
	return e.haltedErr(limits.Key{Account: account, Instrument: instrument})
}

func (e *Engine) newEvalContext(order schema.Order, snap schema.NBBOSnapshot, key limits.Key) *evalContext {
	cfg, _ := e.stores.Limits.Limits(key)
	ctx := &evalContext{
		order: order,
		snap:  snap,
		cfg:   cfg,
		key:   key,
		group: e.group(order.AccountID),
	}
	ctx.mid, ctx.midOK = snap.Midpoint()
	if order.Price > 0 {
		ctx.refPrice = order.Price
	} else if ctx.midOK {
		ctx.refPrice = ctx.mid
	}
	ctx.notional, ctx.overflow = mulNotional(ctx.refPrice, order.Qty)
	return ctx
}

func (e *Engine) group(account schema.AccountID) schema.GroupID {
	if e.stores.Registry != nil {
		if g := e.stores.Registry.Group(account); g != 0 {
			return g
		}
	}
	return schema.ImplicitGroup(account)
}

func (e *Engine) deny(d *schema.RiskDecision, reason schema.RiskReason, start time.Time) {
	d.Action = schema.RiskActionDeny
	d.Reason = reason
	e.metrics.ObserveDecision(reason, time.Since(start))
}

func (e *Engine) killSwitchOn() bool {
	e.haltedMu.RLock()
	defer e.haltedMu.RUnlock()
	return e.cfg.KillSwitch
}

func (e *Engine) haltedErr(key limits.Key) error {
	e.haltedMu.RLock()
	defer e.haltedMu.RUnlock()
	return e.halted[key]
}

func (e *Engine) halt(key limits.Key, err error) {
	e.haltedMu.Lock()
	defer e.haltedMu.Unlock()
	if _, ok := e.halted[key]; !ok {
		e.halted[key] = err
	}
}

// auditState verifies the committed state against its caps. A violation here
// is a pipeline bug, not a business condition.
func auditState(cfg limits.Config, state limits.AccountState) error {
	if state.UsedCredit < 0 {
		return exception.ErrRiskStateCorrupt
	}
	if cfg.MaxCredit > 0 && state.UsedCredit > cfg.MaxCredit {
		return exception.ErrRiskStateCorrupt
	}
	if cfg.MaxPosition > 0 {
		pos := state.NetPosition
		if pos < 0 {
			pos = -pos
		}
		if pos > cfg.MaxPosition {
			return exception.ErrRiskStateCorrupt
		}
	}
	return nil
}

func shardIndex(key limits.Key) int {
	h := uint64(key.Account)*0x9e3779b97f4a7c15 ^ uint64(key.Instrument)*0xc2b2ae3d27d4eb4f
	h ^= h >> 33
	return int(h % shardCount)
}
