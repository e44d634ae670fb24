// Package source implements the input-file row sources: CSV, gzipped CSV,
// and Parquet readers over the per-instrument trade/orderbook files.
// Quantity columns accept both header variants found in historical dataset
// exports (bid_qty1/bidqty1, ask_qty1/askqty1).
package source

import (
	"errors"
	"fmt"

	"uhfbacktest/pkg/btevent"
)

// ConstructionError is a fatal, construction-time error: a missing file, an
// unreadable header, or an incomplete column set.
type ConstructionError struct {
	Path string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("source: %s: %v", e.Path, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

var errMissingColumn = errors.New("required column not found (including known aliases)")

// RowSource loads orderbook/trade rows and timestamp indexes for one
// instrument's pair of files. Timestamps is used for global timeline
// discovery; LoadOrderbooks/LoadTrades are called once per hourly chunk
// with that chunk's inclusive [startT, endT] window.
type RowSource interface {
	Timestamps(inst btevent.Instrument) (obT, tradeT []int64, err error)
	LoadOrderbooks(inst btevent.Instrument, startT, endT int64) ([]btevent.Orderbook, error)
	LoadTrades(inst btevent.Instrument, startT, endT int64) ([]btevent.Trade, error)
}

// orderbookColumns/tradeColumns name the canonical header and its accepted
// aliases, in resolution order, for each required field.
var orderbookColumns = map[string][]string{
	"time":    {"time"},
	"bid1":    {"bid1"},
	"bidqty1": {"bid_qty1", "bidqty1"},
	"ask1":    {"ask1"},
	"askqty1": {"ask_qty1", "askqty1"},
}

var tradeColumns = map[string][]string{
	"time":           {"time"},
	"price":          {"price"},
	"qty":            {"qty"},
	"is_buyer_maker": {"is_buyer_maker"},
}

// resolveHeader maps each canonical field name to its column index in
// header, accepting any of its aliases. It returns errMissingColumn (via a
// *ConstructionError, attached by the caller) if a field has no match.
func resolveHeader(header []string, fields map[string][]string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[h] = i
	}
	resolved := make(map[string]int, len(fields))
	for canonical, aliases := range fields {
		found := false
		for _, alias := range aliases {
			if idx, ok := byName[alias]; ok {
				resolved[canonical] = idx
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s (aliases: %v)", errMissingColumn, canonical, aliases)
		}
	}
	return resolved, nil
}
