// Package fees holds the per-venue maker/taker fee table the matching
// engine consults when constructing a Fill. Rates are exact venue
// constants — do not round or normalise them.
package fees

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

// Rates is the maker/taker pair for one venue. Maker is typically negative
// (a rebate, added to cash balance); Taker is typically positive.
type Rates struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// Schedule is a venue -> Rates lookup table. The zero value has no entries;
// use Default() to get the standard table.
type Schedule map[string]Rates

// Default returns the standard binance/okex fee table.
func Default() Schedule {
	return Schedule{
		"binance": {
			Maker: decimal.NewFromFloat(-0.00006),
			Taker: decimal.NewFromFloat(0.000173),
		},
		"okex": {
			Maker: decimal.NewFromFloat(-0.00005),
			Taker: decimal.NewFromFloat(0.00015),
		},
	}
}

// Lookup returns the maker or taker rate for venue, logging a warning and
// defaulting to 0/0 for venues the schedule doesn't recognise — a soft
// warning, never a fatal error.
func (s Schedule) Lookup(venue string, isMaker bool, logger *slog.Logger) decimal.Decimal {
	rates, ok := s[venue]
	if !ok {
		if logger != nil {
			logger.Warn("unknown venue in fee table, defaulting to 0 fee",
				"venue", venue)
		}
		return decimal.Zero
	}
	if isMaker {
		return rates.Maker
	}
	return rates.Taker
}
