package btevent

import "github.com/shopspring/decimal"

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType enumerates the order semantics the matching engine supports.
// See the matching engine's order-type table for the fill rule each implies.
type OrderType string

const (
	Market   OrderType = "MARKET"
	IOC      OrderType = "IOC"
	Limit    OrderType = "LIMIT"
	PostOnly OrderType = "POST_ONLY"
)

// OrderState is the resting-order lifecycle: PENDING orders have not yet
// reached EffectiveT, RESTING orders are live on the synthetic book, DONE
// orders have been filled or canceled and are dropped from the index.
type OrderState string

const (
	Pending OrderState = "PENDING"
	Resting OrderState = "RESTING"
	Done    OrderState = "DONE"
)

// Order is a strategy-supplied instruction to the matching engine. OrderID
// is caller-assigned and must be unique across the run. EffectiveT is the
// timestamp at which the order reaches the exchange (submission time plus
// whatever latency the strategy has already applied) — the matching engine
// never attempts to fill an order before now_t >= EffectiveT.
type Order struct {
	OrderID    string
	Instrument Instrument
	EffectiveT int64
	Side       Side
	Type       OrderType
	Qty        decimal.Decimal
	LimitPx    decimal.Decimal // ignored for Market; required otherwise
	HasLimitPx bool
}

// Kind identifies Order as an ORDER event for scheduler dispatch.
func (Order) Kind() EventKind { return KindOrder }
