package twin

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/codec"
	"main/internal/dedupe"
	"main/internal/limits"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/stream"
	"main/pkg/uds"
)

func newEngine(t *testing.T) *risk.Engine {
	t.Helper()
	store := limits.NewStore(&limits.Config{
		MaxOrderQty:      100,
		MaxOrderNotional: 2_000_000,
		MaxPosition:      1000,
		CollarBandAbs:    40,
		MaxPriceAge:      time.Second,
	})
	return risk.NewEngine(risk.Config{}, risk.Stores{
		Limits: store,
		Dedupe: dedupe.NewTracker(dedupe.Options{}),
	}, nil)
}

// serveTwin answers request words with decisions from its own engine
// instance, optionally corrupting the reason code to simulate divergence.
func serveTwin(t *testing.T, path string, corruptEvery int) {
	t.Helper()
	server, err := uds.NewServer(path)
	require.NoError(t, err)
	require.NoError(t, server.Listen())
	t.Cleanup(func() { server.Close() })

	engine := newEngine(t)
	go func() {
		conn, err := server.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var buf, out []byte
		served := 0
		for {
			word, err := uds.ReadWord(conn, buf)
			if err != nil {
				return
			}
			buf = word
			order, snap, ok := codec.DecodeRequest(word)
			if !ok {
				return
			}
			decision, err := engine.Evaluate(order, snap)
			if err != nil {
				return
			}
			served++
			if corruptEvery > 0 && served%corruptEvery == 0 {
				decision.Reason = schema.ReasonKillSwitch
				decision.Action = schema.RiskActionDeny
			}
			out = codec.EncodeDecision(out, decision)
			if err := uds.WriteWord(conn, out); err != nil {
				return
			}
		}
	}()
}

func newStream(t *testing.T) *stream.Generator {
	t.Helper()
	g, err := stream.NewGenerator(stream.Config{
		Seed:          7,
		Accounts:      []schema.AccountID{1, 2, 3},
		Instruments:   []schema.InstrumentID{1, 2},
		MidPrice:      10000,
		Spread:        2,
		PriceJitter:   60,
		MaxQty:        120,
		DuplicateRate: 0.05,
		MarketRate:    0.1,
		StaleRate:     0.05,
		StaleAge:      2 * time.Second,
	})
	require.NoError(t, err)
	return g
}

func TestVerifierAgainstIdenticalTwin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twin.sock")
	serveTwin(t, path, 0)

	link, err := Dial(path)
	require.NoError(t, err)
	defer link.Close()

	verifier := NewVerifier(newEngine(t), link, nil)
	gen := newStream(t)
	for i := 0; i < 500; i++ {
		order, snap := gen.Next()
		_, mismatch, err := verifier.Check(order, snap)
		require.NoError(t, err)
		require.Nil(t, mismatch, "order %d diverged", i)
	}

	report := verifier.Report()
	assert.True(t, report.Passed())
	assert.Equal(t, 500, report.Evaluated)
	assert.NotEmpty(t, report.RunID)
}

func TestVerifierDetectsDivergence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twin.sock")
	serveTwin(t, path, 100)

	link, err := Dial(path)
	require.NoError(t, err)
	defer link.Close()

	verifier := NewVerifier(newEngine(t), link, nil)
	gen := newStream(t)
	seen := 0
	for i := 0; i < 300; i++ {
		order, snap := gen.Next()
		_, mismatch, err := verifier.Check(order, snap)
		require.NoError(t, err)
		if mismatch != nil {
			seen++
			assert.Equal(t, schema.ReasonKillSwitch, mismatch.Twin.Reason)
			assert.NotEqual(t, mismatch.ModelWord, mismatch.TwinWord)
		}
	}

	assert.Equal(t, 3, seen)
	assert.False(t, verifier.Report().Passed())
	assert.Len(t, verifier.Report().Mismatches, 3)
}

func TestVerifierWithoutLink(t *testing.T) {
	verifier := NewVerifier(newEngine(t), nil, nil)
	gen := newStream(t)
	for i := 0; i < 100; i++ {
		order, snap := gen.Next()
		_, mismatch, err := verifier.Check(order, snap)
		require.NoError(t, err)
		require.Nil(t, mismatch)
	}
	assert.True(t, verifier.Report().Passed())
	assert.Equal(t, 100, verifier.Report().Evaluated)
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "absent.sock"))
	assert.Error(t, err)
}
