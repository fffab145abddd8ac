package limits

import (
	"time"

	"main/internal/schema"
)

// Key identifies one account-instrument universe of limits and state.
type Key struct {
	Account    schema.AccountID
	Instrument schema.InstrumentID
}

// Config holds the configured limits for one key. The zero value of any
// field means that dimension is unlimited.
type Config struct {
	MaxOrderQty      schema.Quantity `json:"maxOrderQty"`
	MaxOrderNotional schema.Notional `json:"maxOrderNotional"`
	MaxPosition      schema.Quantity `json:"maxPosition"`
	MaxCredit        schema.Credit   `json:"maxCredit"`
	ThrottleWindow   time.Duration   `json:"throttleWindow"`
	ThrottleMaxCount int             `json:"throttleMaxCount"`
	CollarBandAbs    schema.Price    `json:"collarBandAbs"`
	CollarBandBps    int64           `json:"collarBandBps"`
	MaxPriceAge      time.Duration   `json:"maxPriceAge"`
}

// AccountState is the consumable state for one key. It moves only on allowed
// orders and on explicit releases.
type AccountState struct {
	NetPosition schema.Quantity
	UsedCredit  schema.Credit
}
