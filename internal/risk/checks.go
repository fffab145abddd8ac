package risk

import (
	"main/internal/limits"
	"main/internal/refprice"
	"main/internal/schema"
)

const maxInt64 = int64(^uint64(0) >> 1)

// evalContext carries one order through the pipeline. It is built once per
// evaluation; checks read it and return a reason, never mutating state.
type evalContext struct {
	order schema.Order
	snap  schema.NBBOSnapshot
	cfg   limits.Config
	key   limits.Key
	group schema.GroupID

	mid   schema.Price
	midOK bool

	// refPrice is the order price for priced orders, else the NBBO midpoint.
	// Zero when neither is usable.
	refPrice schema.Price
	notional schema.Notional
	overflow bool
}

// checkFunc inspects the order and returns ReasonOK or the denial reason.
type checkFunc func(e *Engine, ctx *evalContext) schema.RiskReason

// pipeline is the fixed evaluation order. Cheap structural checks run before
// economic checks; the state-mutating reservation runs last, inside
// Engine.Evaluate. First denial wins.
var pipeline = [...]checkFunc{
	checkValidity,
	checkDuplicate,
	checkSizeNotional,
	checkPriceCollar,
	checkSelfTrade,
	checkThrottle,
}

func checkValidity(e *Engine, ctx *evalContext) schema.RiskReason {
	order := ctx.order
	if order.OrderID == 0 || order.Qty <= 0 {
		return schema.ReasonInvalidOrder
	}
	switch order.Side {
	case schema.OrderSideBuy, schema.OrderSideSell:
	default:
		return schema.ReasonInvalidOrder
	}
	switch order.Type {
	case schema.OrderTypeLimit:
		if order.Price <= 0 {
			return schema.ReasonInvalidOrder
		}
	case schema.OrderTypeMarket:
		if order.Price != 0 {
			return schema.ReasonInvalidOrder
		}
	default:
		return schema.ReasonInvalidOrder
	}
	if ctx.snap.InstrumentID != 0 && ctx.snap.InstrumentID != order.InstrumentID {
		return schema.ReasonInvalidOrder
	}
	if reg := e.stores.Registry; reg != nil {
		if _, ok := reg.Account(order.AccountID); !ok {
			return schema.ReasonInvalidOrder
		}
		if _, ok := reg.Instrument(order.InstrumentID); !ok {
			return schema.ReasonInvalidOrder
		}
	}
	return schema.ReasonOK
}

func checkDuplicate(e *Engine, ctx *evalContext) schema.RiskReason {
	if e.stores.Dedupe.IsDuplicate(ctx.order.AccountID, ctx.order.OrderID) {
		return schema.ReasonDuplicateOrderID
	}
	return schema.ReasonOK
}

func checkSizeNotional(e *Engine, ctx *evalContext) schema.RiskReason {
	if ctx.cfg.MaxOrderQty > 0 && ctx.order.Qty > ctx.cfg.MaxOrderQty {
		return schema.ReasonQuantityExceedsLimit
	}
	needPrice := ctx.cfg.MaxOrderNotional > 0 || ctx.cfg.MaxCredit > 0
	if needPrice && ctx.refPrice <= 0 {
		// Market order whose only price reference is an unusable snapshot.
		return schema.ReasonStalePrice
	}
	if ctx.overflow {
		return schema.ReasonNotionalExceedsLimit
	}
	if ctx.cfg.MaxOrderNotional > 0 && ctx.notional > ctx.cfg.MaxOrderNotional {
		return schema.ReasonNotionalExceedsLimit
	}
	return schema.ReasonOK
}

func checkPriceCollar(e *Engine, ctx *evalContext) schema.RiskReason {
	if refprice.IsStale(ctx.snap, ctx.order.TsSubmit, ctx.cfg.MaxPriceAge) {
		return schema.ReasonStalePrice
	}
	if ctx.order.Type != schema.OrderTypeLimit {
		return schema.ReasonOK
	}
	if ctx.cfg.CollarBandAbs <= 0 && ctx.cfg.CollarBandBps <= 0 {
		return schema.ReasonOK
	}
	if !ctx.midOK {
		return schema.ReasonStalePrice
	}
	band := collarBand(ctx.mid, ctx.cfg)
	low := int64(ctx.mid) - int64(band)
	high := int64(ctx.mid) + int64(band)
	if high < int64(ctx.mid) {
		high = maxInt64
	}
	if int64(ctx.order.Price) < low || int64(ctx.order.Price) > high {
		return schema.ReasonPriceOutsideCollar
	}
	return schema.ReasonOK
}

func checkSelfTrade(e *Engine, ctx *evalContext) schema.RiskReason {
	isMarket := ctx.order.Type == schema.OrderTypeMarket
	if e.stores.Dedupe.WouldSelfTrade(ctx.group, ctx.order.InstrumentID, ctx.order.Side, ctx.order.Price, isMarket) {
		return schema.ReasonSelfTradePrevented
	}
	return schema.ReasonOK
}

func checkThrottle(e *Engine, ctx *evalContext) schema.RiskReason {
	if ctx.cfg.ThrottleMaxCount <= 0 || ctx.cfg.ThrottleWindow <= 0 {
		return schema.ReasonOK
	}
	count := e.stores.Limits.ThrottleCount(ctx.key, ctx.order.TsSubmit)
	if count >= ctx.cfg.ThrottleMaxCount {
		return schema.ReasonThrottleExceeded
	}
	return schema.ReasonOK
}

// collarBand resolves the configured band to price units around mid. When
// both an absolute offset and a bps band are set, the tighter one wins.
func collarBand(mid schema.Price, cfg limits.Config) schema.Price {
	abs := cfg.CollarBandAbs
	bps := bpsBand(mid, cfg.CollarBandBps)
	switch {
	case abs > 0 && bps > 0:
		if bps < abs {
			return bps
		}
		return abs
	case bps > 0:
		return bps
	default:
		return abs
	}
}

func bpsBand(mid schema.Price, bps int64) schema.Price {
	m := int64(mid)
	if bps <= 0 || m <= 0 {
		return 0
	}
	if m <= maxInt64/bps {
		return schema.Price(m * bps / 10000)
	}
	return schema.Price(m / 10000 * bps)
}

func mulNotional(price schema.Price, qty schema.Quantity) (schema.Notional, bool) {
	p := int64(price)
	q := int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	if p < 0 {
		p = -p
	}
	if q < 0 {
		q = -q
	}
	if p > maxInt64/q {
		return 0, true
	}
	return schema.Notional(p * q), false
}

func applySide(side schema.OrderSide, qty schema.Quantity) schema.Quantity {
	if side == schema.OrderSideSell {
		return -qty
	}
	return qty
}
