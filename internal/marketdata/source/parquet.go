package source

import (
	"fmt"
	"path/filepath"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/shopspring/decimal"

	"uhfbacktest/pkg/btevent"
)

// Parquet reads {instrument}_trade.parquet and {instrument}_LOB.parquet via
// the low-level parquet/file column-reader API, one column chunk at a time
// per row group, rather than going through the higher-level Arrow table
// API — the files carry a handful of flat primitive columns and never need
// Arrow's record-batch machinery.
type Parquet struct {
	dir string
}

// NewParquet returns a RowSource reading Parquet files from dir.
func NewParquet(dir string) *Parquet {
	return &Parquet{dir: dir}
}

func (p *Parquet) orderbookPath(inst btevent.Instrument) string {
	return filepath.Join(p.dir, string(inst)+"_LOB.parquet")
}

func (p *Parquet) tradePath(inst btevent.Instrument) string {
	return filepath.Join(p.dir, string(inst)+"_trade.parquet")
}

// columnIndex resolves each canonical field to its column index in rdr's
// schema, accepting the same aliases as the CSV/GzipCSV readers.
func columnIndex(rdr *file.Reader, path string, fields map[string][]string) (map[string]int, error) {
	schema := rdr.MetaData().Schema
	byName := make(map[string]int, schema.NumColumns())
	for i := 0; i < schema.NumColumns(); i++ {
		byName[schema.Column(i).Name()] = i
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
			return nil, &ConstructionError{Path: path, Err: fmt.Errorf("%w: %s (aliases: %v)", errMissingColumn, canonical, aliases)}
		}
	}
	return resolved, nil
}

func readInt64Column(rdr *file.Reader, rgIdx, colIdx int, numRows int64) ([]int64, error) {
	rgr := rdr.RowGroup(rgIdx)
	cr, err := rgr.Column(colIdx)
	if err != nil {
		return nil, err
	}
	typed, ok := cr.(*file.Int64ColumnChunkReader)
	if !ok {
		return nil, fmt.Errorf("column %d is not int64", colIdx)
	}
	values := make([]int64, numRows)
	defLevels := make([]int16, numRows)
	_, _, err = typed.ReadBatch(numRows, values, defLevels, nil)
	return values, err
}

func readFloat64Column(rdr *file.Reader, rgIdx, colIdx int, numRows int64) ([]float64, error) {
	rgr := rdr.RowGroup(rgIdx)
	cr, err := rgr.Column(colIdx)
	if err != nil {
		return nil, err
	}
	typed, ok := cr.(*file.Float64ColumnChunkReader)
	if !ok {
		return nil, fmt.Errorf("column %d is not float64", colIdx)
	}
	values := make([]float64, numRows)
	defLevels := make([]int16, numRows)
	_, _, err = typed.ReadBatch(numRows, values, defLevels, nil)
	return values, err
}

func readBoolColumn(rdr *file.Reader, rgIdx, colIdx int, numRows int64) ([]bool, error) {
	rgr := rdr.RowGroup(rgIdx)
	cr, err := rgr.Column(colIdx)
	if err != nil {
		return nil, err
	}
	typed, ok := cr.(*file.BooleanColumnChunkReader)
	if !ok {
		return nil, fmt.Errorf("column %d is not bool", colIdx)
	}
	values := make([]bool, numRows)
	defLevels := make([]int16, numRows)
	_, _, err = typed.ReadBatch(numRows, values, defLevels, nil)
	return values, err
}

func (p *Parquet) Timestamps(inst btevent.Instrument) (obT, tradeT []int64, err error) {
	obT, err = p.timestampsOf(p.orderbookPath(inst), orderbookColumns)
	if err != nil {
		return nil, nil, err
	}
	tradeT, err = p.timestampsOf(p.tradePath(inst), tradeColumns)
	if err != nil {
		return nil, nil, err
	}
	return obT, tradeT, nil
}

func (p *Parquet) timestampsOf(path string, fields map[string][]string) ([]int64, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer rdr.Close()

	cols, err := columnIndex(rdr, path, fields)
	if err != nil {
		return nil, err
	}

	var out []int64
	for rg := 0; rg < rdr.NumRowGroups(); rg++ {
		numRows := rdr.RowGroup(rg).NumRows()
		ts, err := readInt64Column(rdr, rg, cols["time"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		out = append(out, ts...)
	}
	return out, nil
}

func (p *Parquet) LoadOrderbooks(inst btevent.Instrument, startT, endT int64) ([]btevent.Orderbook, error) {
	path := p.orderbookPath(inst)
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer rdr.Close()

	cols, err := columnIndex(rdr, path, orderbookColumns)
	if err != nil {
		return nil, err
	}

	byT := make(map[int64]btevent.Orderbook)
	var order []int64
	for rg := 0; rg < rdr.NumRowGroups(); rg++ {
		numRows := rdr.RowGroup(rg).NumRows()
		times, err := readInt64Column(rdr, rg, cols["time"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		bid1, err := readFloat64Column(rdr, rg, cols["bid1"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		bidQty1, err := readFloat64Column(rdr, rg, cols["bidqty1"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		ask1, err := readFloat64Column(rdr, rg, cols["ask1"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		askQty1, err := readFloat64Column(rdr, rg, cols["askqty1"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}

		for i, t := range times {
			if t < startT || t > endT {
				continue
			}
			ob := btevent.Orderbook{
				Instrument: inst, T: t,
				Bid:    decimal.NewFromFloat(bid1[i]),
				BidQty: decimal.NewFromFloat(bidQty1[i]),
				Ask:    decimal.NewFromFloat(ask1[i]),
				AskQty: decimal.NewFromFloat(askQty1[i]),
			}
			if _, seen := byT[t]; !seen {
				order = append(order, t)
			}
			byT[t] = ob
		}
	}

	out := make([]btevent.Orderbook, 0, len(order))
	for _, t := range order {
		out = append(out, byT[t])
	}
	return out, nil
}

func (p *Parquet) LoadTrades(inst btevent.Instrument, startT, endT int64) ([]btevent.Trade, error) {
	path := p.tradePath(inst)
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer rdr.Close()

	cols, err := columnIndex(rdr, path, tradeColumns)
	if err != nil {
		return nil, err
	}

	var out []btevent.Trade
	for rg := 0; rg < rdr.NumRowGroups(); rg++ {
		numRows := rdr.RowGroup(rg).NumRows()
		times, err := readInt64Column(rdr, rg, cols["time"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		prices, err := readFloat64Column(rdr, rg, cols["price"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		qtys, err := readFloat64Column(rdr, rg, cols["qty"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}
		isBuyerMaker, err := readBoolColumn(rdr, rg, cols["is_buyer_maker"], numRows)
		if err != nil {
			return nil, &ConstructionError{Path: path, Err: err}
		}

		for i, t := range times {
			if t < startT || t > endT {
				continue
			}
			out = append(out, btevent.Trade{
				Instrument:   inst,
				T:            t,
				Price:        decimal.NewFromFloat(prices[i]),
				Qty:          decimal.NewFromFloat(qtys[i]),
				IsBuyerMaker: isBuyerMaker[i],
			})
		}
	}
	return out, nil
}
