package ops

import (
	"fmt"
	"time"

	"main/internal/limits"
	"main/internal/schema"
	"main/pkg/conn"
	"main/pkg/exception"
)

// LimitRow is one limit config row as stored in Postgres. Numeric columns
// hold display-unit decimal strings; resolution against the instrument scale
// happens here, exactly as for file configs.
type LimitRow struct {
	ID               uint   `gorm:"primaryKey"`
	Account          string `gorm:"column:account"`
	Instrument       string `gorm:"column:instrument"`
	MaxQty           string `gorm:"column:max_qty"`
	MaxNotional      string `gorm:"column:max_notional"`
	MaxPosition      string `gorm:"column:max_position"`
	MaxCredit        string `gorm:"column:max_credit"`
	CollarBand       string `gorm:"column:collar_band"`
	CollarBandBps    int64  `gorm:"column:collar_band_bps"`
	ThrottleWindowMs int64  `gorm:"column:throttle_window_ms"`
	ThrottleMaxCount int    `gorm:"column:throttle_max_count"`
	MaxPriceAgeMs    int64  `gorm:"column:max_price_age_ms"`
}

// TableName maps the row to its table.
func (LimitRow) TableName() string {
	return "risk_limits"
}

// LoadLimitsFromPostgres reads every limit row and installs it into the
// store. Rows referencing unknown accounts or instruments fail the load.
func LoadLimitsFromPostgres(client *conn.Client, registry *schema.Registry, store *limits.Store) (int, error) {
	if client == nil || client.DB() == nil {
		return 0, exception.ErrNilInstance
	}
	var rows []LimitRow
	if err := client.DB().Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("query risk_limits: %w", err)
	}
	for _, row := range rows {
		accountID, ok := registry.AccountIDByName(row.Account)
		if !ok {
			return 0, fmt.Errorf("%w: %s", exception.ErrConfigUnknownAccount, row.Account)
		}
		instrumentID, ok := registry.InstrumentIDByName(row.Instrument)
		if !ok {
			return 0, fmt.Errorf("%w: %s", exception.ErrConfigUnknownInstrument, row.Instrument)
		}
		instrument, _ := registry.Instrument(instrumentID)
		cfg, err := resolveLimitRow(row, instrument.Scale)
		if err != nil {
			return 0, fmt.Errorf("limit %s/%s: %w", row.Account, row.Instrument, err)
		}
		store.SetLimits(limits.Key{Account: accountID, Instrument: instrumentID}, cfg)
	}
	return len(rows), nil
}

func resolveLimitRow(row LimitRow, scale schema.ScaleSpec) (limits.Config, error) {
	var (
		cfg limits.Config
		err error
	)
	if cfg.MaxOrderQty, err = scaledQuantityString(row.MaxQty, scale.QuantityScale); err != nil {
		return limits.Config{}, fmt.Errorf("max_qty: %w", err)
	}
	if cfg.MaxOrderNotional, err = scaledNotionalString(row.MaxNotional, scale.NotionalScale); err != nil {
		return limits.Config{}, fmt.Errorf("max_notional: %w", err)
	}
	if cfg.MaxPosition, err = scaledQuantityString(row.MaxPosition, scale.QuantityScale); err != nil {
		return limits.Config{}, fmt.Errorf("max_position: %w", err)
	}
	maxCredit, err := scaledNotionalString(row.MaxCredit, scale.NotionalScale)
	if err != nil {
		return limits.Config{}, fmt.Errorf("max_credit: %w", err)
	}
	cfg.MaxCredit = schema.Credit(maxCredit)
	collar, err := scaledString(row.CollarBand, scale.PriceScale)
	if err != nil {
		return limits.Config{}, fmt.Errorf("collar_band: %w", err)
	}
	cfg.CollarBandAbs = schema.Price(collar)

	if row.CollarBandBps < 0 || row.ThrottleWindowMs < 0 || row.MaxPriceAgeMs < 0 || row.ThrottleMaxCount < 0 {
		return limits.Config{}, exception.ErrConfigNegativeLimit
	}
	cfg.CollarBandBps = row.CollarBandBps
	cfg.ThrottleWindow = msToDuration(row.ThrottleWindowMs)
	cfg.ThrottleMaxCount = row.ThrottleMaxCount
	cfg.MaxPriceAge = msToDuration(row.MaxPriceAgeMs)
	return cfg, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func scaledQuantityString(s string, scale schema.Scale) (schema.Quantity, error) {
	v, err := scaledString(s, scale)
	return schema.Quantity(v), err
}

func scaledNotionalString(s string, scale schema.Scale) (schema.Notional, error) {
	v, err := scaledString(s, scale)
	return schema.Notional(v), err
}

func scaledString(s string, scale schema.Scale) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := ParseScaled(s, scale)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, exception.ErrConfigNegativeLimit
	}
	return v, nil
}
