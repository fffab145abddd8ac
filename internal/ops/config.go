package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"main/internal/limits"
	"main/internal/risk"
	"main/internal/schema"
	"main/pkg/exception"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig `json:"registry"`
	Engine   EngineConfig   `json:"engine"`
	Defaults *LimitSpec     `json:"defaults"`
	Limits   []LimitEntry   `json:"limits"`
	Seen     SeenConfig     `json:"seen"`
	Service  ServiceConfig  `json:"service"`
	Twin     TwinConfig     `json:"twin"`
}

// RegistryConfig defines account and instrument mappings.
type RegistryConfig struct {
	Accounts    []AccountConfig    `json:"accounts"`
	Instruments []InstrumentConfig `json:"instruments"`
}

// AccountConfig describes an account entry. Accounts naming the same group
// share self-trade prevention scope.
type AccountConfig struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// InstrumentConfig describes an instrument entry.
type InstrumentConfig struct {
	Name  string    `json:"name"`
	Scale ScaleSpec `json:"scale"`
}

// ScaleSpec mirrors schema.ScaleSpec in JSON.
type ScaleSpec struct {
	PriceScale    schema.Scale `json:"priceScale"`
	QuantityScale schema.Scale `json:"quantityScale"`
	NotionalScale schema.Scale `json:"notionalScale"`
}

// EngineConfig carries engine-level settings.
type EngineConfig struct {
	KillSwitch bool `json:"killSwitch"`

	// RequireLimits makes a missing limit entry (with no defaults) a load
	// failure instead of an unlimited key.
	RequireLimits bool `json:"requireLimits"`
}

// LimitSpec is one limit config in display units. Absent fields mean no
// limit for that dimension. Decimal fields are parsed exactly against the
// instrument's scale: the resolved integers feed the hardware twin, so
// rounding is never silent.
type LimitSpec struct {
	MaxQty           *decimal.Decimal `json:"maxQty"`
	MaxNotional      *decimal.Decimal `json:"maxNotional"`
	MaxPosition      *decimal.Decimal `json:"maxPosition"`
	MaxCredit        *decimal.Decimal `json:"maxCredit"`
	CollarBand       *decimal.Decimal `json:"collarBand"`
	CollarBandBps    int64            `json:"collarBandBps"`
	ThrottleWindowMs int64            `json:"throttleWindowMs"`
	ThrottleMaxCount int              `json:"throttleMaxCount"`
	MaxPriceAgeMs    int64            `json:"maxPriceAgeMs"`
}

// LimitEntry binds a LimitSpec to an account-instrument pair.
type LimitEntry struct {
	Account    string `json:"account"`
	Instrument string `json:"instrument"`
	LimitSpec
}

// SeenConfig tunes the seen-order table.
type SeenConfig struct {
	Retention int    `json:"retention"`
	DBPath    string `json:"dbPath"`
}

// ServiceConfig describes the gateway service surface.
type ServiceConfig struct {
	Socket        string `json:"socket"`
	MetricsAddr   string `json:"metricsAddr"`
	QueueCapacity int    `json:"queueCapacity"`
}

// TwinConfig points at the hardware twin.
type TwinConfig struct {
	Socket string `json:"socket"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry *schema.Registry
	Limits   *limits.Store
	Engine   risk.Config
	Seen     SeenConfig
	Service  ServiceConfig
	Twin     TwinConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	if path == "" {
		return Loaded{}, exception.ErrConfigEmptyPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a file config and builds the registry and limit store.
// All configuration errors surface here, before any evaluation.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	var defaults *limits.Config
	if cfg.Defaults != nil {
		resolved, err := resolveLimitSpec(*cfg.Defaults, defaultScale(cfg.Registry))
		if err != nil {
			return Loaded{}, fmt.Errorf("defaults: %w", err)
		}
		defaults = &resolved
	}

	store := limits.NewStore(defaults)
	bound := make(map[limits.Key]bool)
	for _, entry := range cfg.Limits {
		accountID, ok := registry.AccountIDByName(entry.Account)
		if !ok {
			return Loaded{}, fmt.Errorf("%w: %s", exception.ErrConfigUnknownAccount, entry.Account)
		}
		instrumentID, ok := registry.InstrumentIDByName(entry.Instrument)
		if !ok {
			return Loaded{}, fmt.Errorf("%w: %s", exception.ErrConfigUnknownInstrument, entry.Instrument)
		}
		instrument, _ := registry.Instrument(instrumentID)
		resolved, err := resolveLimitSpec(entry.LimitSpec, instrument.Scale)
		if err != nil {
			return Loaded{}, fmt.Errorf("limit %s/%s: %w", entry.Account, entry.Instrument, err)
		}
		key := limits.Key{Account: accountID, Instrument: instrumentID}
		store.SetLimits(key, resolved)
		bound[key] = true
	}

	if cfg.Engine.RequireLimits && cfg.Defaults == nil {
		for _, account := range registry.Accounts() {
			for _, instrument := range registry.Instruments() {
				key := limits.Key{Account: account.ID, Instrument: instrument.ID}
				if !bound[key] {
					return Loaded{}, fmt.Errorf("missing limit for %s/%s with no default", account.Name, instrument.Name)
				}
			}
		}
	}

	if cfg.Seen.Retention < 0 {
		return Loaded{}, fmt.Errorf("seen retention must be >= 0")
	}

	return Loaded{
		Registry: registry,
		Limits:   store,
		Engine:   risk.Config{KillSwitch: cfg.Engine.KillSwitch},
		Seen:     cfg.Seen,
		Service:  cfg.Service,
		Twin:     cfg.Twin,
	}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if len(cfg.Accounts) == 0 {
		return nil, exception.ErrConfigNoAccounts
	}
	if len(cfg.Instruments) == 0 {
		return nil, exception.ErrConfigNoInstruments
	}
	reg := schema.NewRegistry()
	// Named groups take sequential low IDs; group-less accounts land in the
	// registry's reserved implicit range, so declaration order cannot cause
	// a collision.
	groups := make(map[string]schema.GroupID)
	for _, account := range cfg.Accounts {
		var group schema.GroupID
		if account.Group != "" {
			id, ok := groups[account.Group]
			if !ok {
				id = schema.GroupID(len(groups) + 1)
				groups[account.Group] = id
			}
			group = id
		}
		if _, err := reg.AddAccount(account.Name, group); err != nil {
			return nil, err
		}
	}
	for _, instrument := range cfg.Instruments {
		if err := validateScale(instrument.Scale); err != nil {
			return nil, fmt.Errorf("invalid scale for %s: %w", instrument.Name, err)
		}
		spec := schema.ScaleSpec{
			PriceScale:    instrument.Scale.PriceScale,
			QuantityScale: instrument.Scale.QuantityScale,
			NotionalScale: instrument.Scale.NotionalScale,
		}
		if _, err := reg.AddInstrument(instrument.Name, spec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateScale(scale ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 {
		return exception.ErrConfigBadScale
	}
	return nil
}

func defaultScale(cfg RegistryConfig) schema.ScaleSpec {
	if len(cfg.Instruments) == 0 {
		return schema.ScaleSpec{}
	}
	s := cfg.Instruments[0].Scale
	return schema.ScaleSpec{
		PriceScale:    s.PriceScale,
		QuantityScale: s.QuantityScale,
		NotionalScale: s.NotionalScale,
	}
}

func resolveLimitSpec(spec LimitSpec, scale schema.ScaleSpec) (limits.Config, error) {
	var (
		cfg limits.Config
		err error
	)
	if cfg.MaxOrderQty, err = scaledQuantity(spec.MaxQty, scale.QuantityScale); err != nil {
		return limits.Config{}, fmt.Errorf("maxQty: %w", err)
	}
	if cfg.MaxOrderNotional, err = scaledNotional(spec.MaxNotional, scale.NotionalScale); err != nil {
		return limits.Config{}, fmt.Errorf("maxNotional: %w", err)
	}
	if cfg.MaxPosition, err = scaledQuantity(spec.MaxPosition, scale.QuantityScale); err != nil {
		return limits.Config{}, fmt.Errorf("maxPosition: %w", err)
	}
	maxCredit, err := scaledNotional(spec.MaxCredit, scale.NotionalScale)
	if err != nil {
		return limits.Config{}, fmt.Errorf("maxCredit: %w", err)
	}
	cfg.MaxCredit = schema.Credit(maxCredit)
	collar, err := scaledValue(spec.CollarBand, scale.PriceScale)
	if err != nil {
		return limits.Config{}, fmt.Errorf("collarBand: %w", err)
	}
	cfg.CollarBandAbs = schema.Price(collar)

	if spec.CollarBandBps < 0 || spec.ThrottleWindowMs < 0 || spec.MaxPriceAgeMs < 0 || spec.ThrottleMaxCount < 0 {
		return limits.Config{}, exception.ErrConfigNegativeLimit
	}
	cfg.CollarBandBps = spec.CollarBandBps
	cfg.ThrottleWindow = time.Duration(spec.ThrottleWindowMs) * time.Millisecond
	cfg.ThrottleMaxCount = spec.ThrottleMaxCount
	cfg.MaxPriceAge = time.Duration(spec.MaxPriceAgeMs) * time.Millisecond
	return cfg, nil
}

func scaledQuantity(d *decimal.Decimal, scale schema.Scale) (schema.Quantity, error) {
	v, err := scaledValue(d, scale)
	return schema.Quantity(v), err
}

func scaledNotional(d *decimal.Decimal, scale schema.Scale) (schema.Notional, error) {
	v, err := scaledValue(d, scale)
	return schema.Notional(v), err
}

func scaledValue(d *decimal.Decimal, scale schema.Scale) (int64, error) {
	if d == nil {
		return 0, nil
	}
	v, err := ParseScaled(d.String(), scale)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, exception.ErrConfigNegativeLimit
	}
	return v, nil
}
