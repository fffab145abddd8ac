package stream

import (
	"fmt"
	"math/rand"
	"time"

	"main/internal/schema"
	"main/pkg/exception"
)

// Config controls the synthetic order stream used for verification and soak
// runs. A fixed seed reproduces the exact same stream.
type Config struct {
	Seed        int64
	Accounts    []schema.AccountID
	Instruments []schema.InstrumentID

	// MidPrice anchors generated NBBO snapshots; Spread is the full
	// bid-to-ask distance.
	MidPrice schema.Price
	Spread   schema.Price

	// PriceJitter bounds how far a generated limit price wanders from mid.
	PriceJitter schema.Price
	MaxQty      schema.Quantity

	// DuplicateRate resubmits a previously used order ID.
	DuplicateRate float64
	// MarketRate emits a market order instead of a limit order.
	MarketRate float64
	// StaleRate emits a snapshot aged beyond typical freshness windows.
	StaleRate float64
	StaleAge  time.Duration

	// Interval advances the synthetic clock between orders.
	Interval time.Duration
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("%w: accounts must not be empty", exception.ErrInvalidArgument)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("%w: instruments must not be empty", exception.ErrInvalidArgument)
	}
	if c.MidPrice <= 0 {
		return fmt.Errorf("%w: midPrice must be > 0", exception.ErrInvalidArgument)
	}
	if c.MaxQty <= 0 {
		return fmt.Errorf("%w: maxQty must be > 0", exception.ErrInvalidArgument)
	}
	for name, rate := range map[string]float64{
		"duplicateRate": c.DuplicateRate,
		"marketRate":    c.MarketRate,
		"staleRate":     c.StaleRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1", exception.ErrInvalidArgument, name)
		}
	}
	return nil
}

// Generator produces a deterministic pseudo-random order stream.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	nextID uint64
	used   []uint64
	now    int64
}

// NewGenerator creates a generator with validation.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 2
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = time.Minute
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		nextID: 1,
		now:    cfg.Seed,
	}, nil
}

// Next produces the next order and the NBBO snapshot it should be evaluated
// against.
func (g *Generator) Next() (schema.Order, schema.NBBOSnapshot) {
	g.now += int64(g.cfg.Interval)

	order := schema.Order{
		OrderID:      g.orderID(),
		AccountID:    g.cfg.Accounts[g.rng.Intn(len(g.cfg.Accounts))],
		InstrumentID: g.cfg.Instruments[g.rng.Intn(len(g.cfg.Instruments))],
		Side:         schema.OrderSideBuy,
		Type:         schema.OrderTypeLimit,
		Qty:          schema.Quantity(g.rng.Int63n(int64(g.cfg.MaxQty)) + 1),
		TsSubmit:     g.now,
	}
	if g.rng.Intn(2) == 1 {
		order.Side = schema.OrderSideSell
	}
	if g.cfg.MarketRate > 0 && g.rng.Float64() < g.cfg.MarketRate {
		order.Type = schema.OrderTypeMarket
	} else {
		order.Price = g.limitPrice()
	}

	snap := schema.NBBOSnapshot{
		InstrumentID: order.InstrumentID,
		Bid:          g.cfg.MidPrice - g.cfg.Spread/2,
		Ask:          g.cfg.MidPrice + (g.cfg.Spread+1)/2,
		TsSnapshot:   g.now,
	}
	if g.cfg.StaleRate > 0 && g.rng.Float64() < g.cfg.StaleRate {
		snap.TsSnapshot = g.now - int64(g.cfg.StaleAge)
	}
	return order, snap
}

func (g *Generator) orderID() uint64 {
	if len(g.used) > 0 && g.cfg.DuplicateRate > 0 && g.rng.Float64() < g.cfg.DuplicateRate {
		return g.used[g.rng.Intn(len(g.used))]
	}
	id := g.nextID
	g.nextID++
	g.used = append(g.used, id)
	return id
}

func (g *Generator) limitPrice() schema.Price {
	if g.cfg.PriceJitter <= 0 {
		return g.cfg.MidPrice
	}
	span := int64(g.cfg.PriceJitter)
	offset := g.rng.Int63n(2*span+1) - span
	price := int64(g.cfg.MidPrice) + offset
	if price <= 0 {
		price = 1
	}
	return schema.Price(price)
}
