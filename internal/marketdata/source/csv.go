package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"uhfbacktest/pkg/btevent"
)

// CSV reads plain {instrument}_trade.csv and {instrument}_LOB.csv files
// from a flat directory.
type CSV struct {
	dir string
}

// NewCSV returns a RowSource reading plain (uncompressed) CSV files from dir.
func NewCSV(dir string) *CSV {
	return &CSV{dir: dir}
}

func (c *CSV) orderbookPath(inst btevent.Instrument) string {
	return filepath.Join(c.dir, string(inst)+"_LOB.csv")
}

func (c *CSV) tradePath(inst btevent.Instrument) string {
	return filepath.Join(c.dir, string(inst)+"_trade.csv")
}

func (c *CSV) openReader(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (c *CSV) Timestamps(inst btevent.Instrument) (obT, tradeT []int64, err error) {
	obT, err = c.orderbookTimestamps(inst)
	if err != nil {
		return nil, nil, err
	}
	tradeT, err = c.tradeTimestamps(inst)
	if err != nil {
		return nil, nil, err
	}
	return obT, tradeT, nil
}

func (c *CSV) orderbookTimestamps(inst btevent.Instrument) ([]int64, error) {
	path := c.orderbookPath(inst)
	f, err := c.openReader(path)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer f.Close()
	return readTimestampColumn(path, f, orderbookColumns)
}

func (c *CSV) tradeTimestamps(inst btevent.Instrument) ([]int64, error) {
	path := c.tradePath(inst)
	f, err := c.openReader(path)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer f.Close()
	return readTimestampColumn(path, f, tradeColumns)
}

// readTimestampColumn is shared by CSV and GzipCSV: once a file has been
// opened (and decompressed, where applicable) the timestamp-scan logic is
// identical plain-CSV parsing.
func readTimestampColumn(path string, r io.Reader, fields map[string][]string) ([]int64, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	cols, err := resolveHeader(header, fields)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}

	var out []int64
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		t, err := strconv.ParseInt(row[cols["time"]], 10, 64)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *CSV) LoadOrderbooks(inst btevent.Instrument, startT, endT int64) ([]btevent.Orderbook, error) {
	path := c.orderbookPath(inst)
	f, err := c.openReader(path)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer f.Close()
	return parseOrderbookRows(inst, path, f, startT, endT)
}

func (c *CSV) LoadTrades(inst btevent.Instrument, startT, endT int64) ([]btevent.Trade, error) {
	path := c.tradePath(inst)
	f, err := c.openReader(path)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer f.Close()
	return parseTradeRows(inst, path, f, startT, endT)
}

// parseOrderbookRows and parseTradeRows are shared by CSV and GzipCSV: both
// decode a plain csv.Reader once the file has been opened/decompressed.

func parseOrderbookRows(inst btevent.Instrument, path string, r io.Reader, startT, endT int64) ([]btevent.Orderbook, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	cols, err := resolveHeader(header, orderbookColumns)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}

	// last-write-wins per (instrument,t): keep the most recent row seen for
	// a duplicated timestamp.
	byT := make(map[int64]btevent.Orderbook)
	var order []int64
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		t, err := strconv.ParseInt(row[cols["time"]], 10, 64)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if t < startT || t > endT {
			continue
		}
		ob := btevent.Orderbook{Instrument: inst, T: t}
		if ob.Bid, err = decimal.NewFromString(row[cols["bid1"]]); err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if ob.BidQty, err = decimal.NewFromString(row[cols["bidqty1"]]); err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if ob.Ask, err = decimal.NewFromString(row[cols["ask1"]]); err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if ob.AskQty, err = decimal.NewFromString(row[cols["askqty1"]]); err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if _, seen := byT[t]; !seen {
			order = append(order, t)
		}
		byT[t] = ob
	}

	out := make([]btevent.Orderbook, 0, len(order))
	for _, t := range order {
		out = append(out, byT[t])
	}
	return out, nil
}

func parseTradeRows(inst btevent.Instrument, path string, r io.Reader, startT, endT int64) ([]btevent.Trade, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	cols, err := resolveHeader(header, tradeColumns)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}

	var out []btevent.Trade
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		t, err := strconv.ParseInt(row[cols["time"]], 10, 64)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if t < startT || t > endT {
			continue
		}
		trd := btevent.Trade{Instrument: inst, T: t}
		if trd.Price, err = decimal.NewFromString(row[cols["price"]]); err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		if trd.Qty, err = decimal.NewFromString(row[cols["qty"]]); err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		isBuyerMaker, err := strconv.ParseBool(row[cols["is_buyer_maker"]])
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: fmt.Errorf("is_buyer_maker: %w", err)}
		}
		trd.IsBuyerMaker = isBuyerMaker
		out = append(out, trd)
	}
	return out, nil
}
