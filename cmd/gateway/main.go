package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/dedupe"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/refprice"
	"main/internal/risk"
	"main/pkg/conn"
	"main/pkg/uds"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	socketPath := flag.String("socket", "", "UDS socket path (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(*configPath, *socketPath, *metricsAddr); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}

func run(configPath, socketPath, metricsAddr string) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if socketPath == "" {
		socketPath = loaded.Service.Socket
	}
	if socketPath == "" {
		socketPath = "/tmp/risk-gateway.sock"
	}
	if metricsAddr == "" {
		metricsAddr = loaded.Service.MetricsAddr
	}

	if addr := os.Getenv("PYROSCOPE_SERVER_ADDRESS"); addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "risk-gateway",
			ServerAddress:   addr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		client, err := conn.New(conn.Option{ConnString: dsn})
		if err != nil {
			return err
		}
		if err := client.Ping(); err != nil {
			_ = client.Close()
			return err
		}
		n, err := ops.LoadLimitsFromPostgres(client, loaded.Registry, loaded.Limits)
		_ = client.Close()
		if err != nil {
			return err
		}
		logs.Infof("loaded %d limit rows from postgres", n)
	}

	opt := dedupe.Options{SeenRetention: loaded.Seen.Retention}
	if loaded.Seen.DBPath != "" {
		store, err := dedupe.OpenSeenStore(loaded.Seen.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opt.Persist = store
	}

	tracker := dedupe.NewTracker(opt)
	defer tracker.Close()

	metrics := obs.NewMetrics()
	engine := risk.NewEngine(loaded.Engine, risk.Stores{
		Registry: loaded.Registry,
		Limits:   loaded.Limits,
		Dedupe:   tracker,
	}, metrics)
	prices := refprice.NewTracker()

	queue := bus.NewQueue(loaded.Service.QueueCapacity)
	defer queue.Close()
	exporter := obs.NewExporter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx, func(e bus.Event) {
		exporter.RecordDecision(e.Decision.Reason, e.Latency)
		if !e.Decision.Allow() {
			logs.Infof("deny order=%d account=%d instrument=%d reason=%s",
				e.Decision.OrderID, e.Decision.AccountID, e.Decision.InstrumentID, e.Decision.Reason)
		}
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logs.Errorf("metrics server stopped, err: %+v", err)
			}
		}()
	}

	server, err := uds.NewServer(socketPath)
	if err != nil {
		return err
	}
	if err := server.Listen(); err != nil {
		return err
	}
	logs.Infof("risk gateway listening on %s", socketPath)

	go func() {
		<-sys.Shutdown()
		logs.Info("shutting down")
		cancel()
		_ = server.Close()
	}()

	for {
		conn, err := server.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go serveConn(ctx, conn, engine, prices, metrics, queue)
	}
}

// serveConn handles one evaluation stream: request words in, decision words
// out, in order.
func serveConn(ctx context.Context, conn net.Conn, engine *risk.Engine, prices *refprice.Tracker, metrics *obs.Metrics, queue *bus.Queue) {
	defer func() { _ = conn.Close() }()

	var (
		buf  []byte
		resp []byte
	)
	for {
		word, err := uds.ReadWord(conn, buf)
		if err != nil {
			if err != io.EOF {
				logs.Errorf("read request word, err: %+v", err)
			}
			return
		}
		buf = word

		order, snap, ok := codec.DecodeRequest(word)
		if !ok {
			logs.Errorf("malformed request word: %d bytes", len(word))
			return
		}
		if snap.InstrumentID == 0 {
			// Caller sent no snapshot; fall back to the latest tracked NBBO.
			snap, _ = prices.Latest(order.InstrumentID)
		} else {
			prices.Update(snap)
		}

		start := time.Now()
		decision, evalErr := engine.Evaluate(order, snap)
		latency := time.Since(start)
		if evalErr != nil {
			logs.Errorf("evaluation halted for account=%d instrument=%d, err: %+v",
				order.AccountID, order.InstrumentID, evalErr)
		}
		if err := queue.TryPublish(bus.Event{Decision: decision, Latency: latency}); err != nil {
			metrics.IncQueueDrop()
		}

		resp = codec.EncodeDecision(resp, decision)
		if err := uds.WriteWord(conn, resp); err != nil {
			logs.Errorf("write decision word, err: %+v", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
