package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"

	"main/internal/dedupe"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/stream"
	"main/internal/twin"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	twinSocket := flag.String("twin", "", "Hardware twin UDS socket (overrides config; empty = model only)")
	count := flag.Int("count", 10000, "Number of orders to stream")
	seed := flag.Int64("seed", 0, "Generator seed (0 = time-based)")
	dupRate := flag.Float64("dup-rate", 0.02, "Duplicate order-id rate")
	marketRate := flag.Float64("market-rate", 0.1, "Market order rate")
	staleRate := flag.Float64("stale-rate", 0.01, "Stale snapshot rate")
	mid := flag.Int64("mid", 100_0000, "NBBO midpoint in price ticks")
	jitter := flag.Int64("jitter", 10_0000, "Limit price jitter in price ticks")
	maxQty := flag.Int64("max-qty", 500, "Max generated order quantity")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(*configPath, *twinSocket, *count, *seed, *dupRate, *marketRate, *staleRate, *mid, *jitter, *maxQty); err != nil {
		log.Fatalf("verify: %v", err)
	}
}

func run(configPath, twinSocket string, count int, seed int64, dupRate, marketRate, staleRate float64, mid, jitter, maxQty int64) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if twinSocket == "" {
		twinSocket = loaded.Twin.Socket
	}

	metrics := obs.NewMetrics()
	engine := risk.NewEngine(loaded.Engine, risk.Stores{
		Registry: loaded.Registry,
		Limits:   loaded.Limits,
		Dedupe:   dedupe.NewTracker(dedupe.Options{SeenRetention: loaded.Seen.Retention}),
	}, metrics)

	var link *twin.Link
	if twinSocket != "" {
		link, err = twin.Dial(twinSocket)
		if err != nil {
			return err
		}
		defer func() { _ = link.Close() }()
	}
	verifier := twin.NewVerifier(engine, link, metrics)

	accounts := make([]schema.AccountID, 0, len(loaded.Registry.Accounts()))
	for _, account := range loaded.Registry.Accounts() {
		accounts = append(accounts, account.ID)
	}
	instruments := make([]schema.InstrumentID, 0, len(loaded.Registry.Instruments()))
	for _, instrument := range loaded.Registry.Instruments() {
		instruments = append(instruments, instrument.ID)
	}
	generator, err := stream.NewGenerator(stream.Config{
		Seed:          seed,
		Accounts:      accounts,
		Instruments:   instruments,
		MidPrice:      schema.Price(mid),
		PriceJitter:   schema.Price(jitter),
		MaxQty:        schema.Quantity(maxQty),
		DuplicateRate: dupRate,
		MarketRate:    marketRate,
		StaleRate:     staleRate,
	})
	if err != nil {
		return err
	}

	report := verifier.Report()
	logs.Infof("verification run %s: %d orders, twin=%v", report.RunID, count, link != nil)
	start := time.Now()

	for i := 0; i < count; i++ {
		order, snap := generator.Next()
		_, mismatch, err := verifier.Check(order, snap)
		if err != nil {
			logs.Errorf("order=%d, err: %+v", order.OrderID, err)
			continue
		}
		if mismatch != nil {
			logs.Errorf("mismatch order=%d model=%s twin=%s",
				order.OrderID, mismatch.Model.Reason, mismatch.Twin.Reason)
		}
	}

	elapsed := time.Since(start)
	snapshot := metrics.Snapshot()
	for reason, n := range snapshot.DecisionCounts {
		logs.Infof("reason %-22s %d", reason, n)
	}
	logs.Infof("run %s: evaluated=%d mismatches=%d elapsed=%s eval(avg=%s max=%s)",
		report.RunID, report.Evaluated, len(report.Mismatches), elapsed,
		snapshot.EvalLatency.Avg, snapshot.EvalLatency.Max)

	if !report.Passed() {
		os.Exit(1)
	}
	return nil
}
