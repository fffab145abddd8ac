package schema

// Price is a scaled integer. The scale is defined by configuration.
type Price int64

// Quantity is a scaled integer. The scale is defined by configuration.
type Quantity int64

// Notional is a scaled integer. The scale is defined by configuration.
type Notional int64

// Credit is a scaled integer. The scale is defined by configuration.
type Credit int64

// AccountID is the numeric identifier for a trading account.
type AccountID uint32

// GroupID is the numeric identifier for an account group (STP scope).
type GroupID uint32

// InstrumentID is the numeric identifier for an instrument.
type InstrumentID uint32

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderType describes order type. Market orders carry no price.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// Order is a single admission request. Immutable once submitted.
type Order struct {
	OrderID      uint64
	AccountID    AccountID
	InstrumentID InstrumentID
	Side         OrderSide
	Type         OrderType
	Flags        uint16
	Reserved     uint16
	Price        Price
	Qty          Quantity
	TsSubmit     int64
}

// NBBOSnapshot is the best-bid/best-offer reference supplied with each order.
type NBBOSnapshot struct {
	InstrumentID InstrumentID
	Reserved     uint32
	Bid          Price
	Ask          Price
	TsSnapshot   int64
}

// Midpoint returns the NBBO midpoint. ok is false when the snapshot does not
// hold a usable two-sided market.
func (s NBBOSnapshot) Midpoint() (Price, bool) {
	if s.Bid <= 0 || s.Ask < s.Bid {
		return 0, false
	}
	return Price((int64(s.Bid) + int64(s.Ask)) / 2), true
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason identifies which check produced a decision. Wire values are
// frozen: the hardware twin emits the same codes and equality is compared
// bit-for-bit.
type RiskReason uint16

const (
	ReasonOK RiskReason = iota
	ReasonDuplicateOrderID
	ReasonQuantityExceedsLimit
	ReasonNotionalExceedsLimit
	ReasonStalePrice
	ReasonPriceOutsideCollar
	ReasonSelfTradePrevented
	ReasonThrottleExceeded
	ReasonCreditExceeded
	ReasonPositionExceeded
	ReasonInvalidOrder
	ReasonKillSwitch
)

var reasonNames = [...]string{
	ReasonOK:                   "OK",
	ReasonDuplicateOrderID:     "DuplicateOrderId",
	ReasonQuantityExceedsLimit: "QuantityExceedsLimit",
	ReasonNotionalExceedsLimit: "NotionalExceedsLimit",
	ReasonStalePrice:           "StalePrice",
	ReasonPriceOutsideCollar:   "PriceOutsideCollar",
	ReasonSelfTradePrevented:   "SelfTradePrevented",
	ReasonThrottleExceeded:     "ThrottleExceeded",
	ReasonCreditExceeded:       "CreditExceeded",
	ReasonPositionExceeded:     "PositionExceeded",
	ReasonInvalidOrder:         "InvalidOrder",
	ReasonKillSwitch:           "KillSwitch",
}

// String returns the stable identifier for a reason code.
func (r RiskReason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "Unknown"
}

// MaxRiskReason is the highest assigned reason value.
const MaxRiskReason = ReasonKillSwitch

// RiskDecision is the engine verdict for one order.
type RiskDecision struct {
	OrderID      uint64
	AccountID    AccountID
	InstrumentID InstrumentID
	Action       RiskAction
	Reason       RiskReason
	Flags        uint16
	Reserved     uint16
	Qty          Quantity
	Price        Price
	NetPosition  Quantity
	UsedCredit   Credit
	TsDecision   int64
}

// Allow reports whether the decision admits the order.
func (d RiskDecision) Allow() bool {
	return d.Action == RiskActionAllow
}
