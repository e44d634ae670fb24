package btevent

import "github.com/shopspring/decimal"

// Orderbook is a best bid/ask snapshot for one instrument at one timestamp.
// The cursor enforces at most one Orderbook per (Instrument, T): duplicate
// timestamps within a source file are reduced to the last sample.
type Orderbook struct {
	Instrument Instrument
	T          int64
	Bid        decimal.Decimal
	BidQty     decimal.Decimal
	Ask        decimal.Decimal
	AskQty     decimal.Decimal
}

// Valid reports whether the tick respects the well-formedness invariants:
// bid <= ask and non-negative sizes.
func (o Orderbook) Valid() bool {
	return o.Bid.LessThanOrEqual(o.Ask) &&
		!o.BidQty.IsNegative() && !o.AskQty.IsNegative()
}

// Mid returns (bid+ask)/2.
func (o Orderbook) Mid() decimal.Decimal {
	return o.Bid.Add(o.Ask).Div(decimal.NewFromInt(2))
}

// Trade is a single print for one instrument at one timestamp. Unlike
// Orderbook, multiple Trade ticks may share an (Instrument, T) pair and must
// be preserved in file order.
type Trade struct {
	Instrument   Instrument
	T            int64
	Price        decimal.Decimal
	Qty          decimal.Decimal
	IsBuyerMaker bool
}
