package btevent

import "github.com/shopspring/decimal"

// FillFlag distinguishes a genuine execution from a cancel-by-fill cleanup
// signal (see glossary: Cancel-by-fill).
type FillFlag string

const (
	FillAll      FillFlag = "ALL"
	FillCanceled FillFlag = "CANCELED"
)

// Fill reports the outcome of a match attempt for one order. For a
// FillCanceled record, Price/CashCost are the zero decimal.Decimal and must
// not be read as a traded price — callers branch on Flag (or Filled) first.
// The matching engine's resting-order cleanup does not read Flag: it drops
// the order by OrderID either way.
type Fill struct {
	T          int64
	Instrument Instrument
	Venue      string
	OrderID    string
	Side       Side
	Qty        decimal.Decimal
	Price      decimal.Decimal
	IsMaker    bool
	Flag       FillFlag
	FeeRate    decimal.Decimal
	CashCost   decimal.Decimal
}

// Kind identifies Fill as a FILL event for scheduler dispatch.
func (Fill) Kind() EventKind { return KindFill }

// Filled reports whether this record represents an actual execution as
// opposed to a cancel-by-fill cleanup signal.
func (f Fill) Filled() bool { return f.Flag == FillAll }

// CashCostForFill computes the signed cash_cost for a genuine fill per the
// sign convention: +qty*price*(1+fee) for BUY, -qty*price*(1-fee) for SELL.
func CashCostForFill(side Side, qty, price, feeRate decimal.Decimal) decimal.Decimal {
	notional := qty.Mul(price)
	if side == Buy {
		return notional.Mul(decimal.NewFromInt(1).Add(feeRate))
	}
	return notional.Mul(decimal.NewFromInt(1).Sub(feeRate)).Neg()
}
