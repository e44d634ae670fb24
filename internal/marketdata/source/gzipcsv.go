package source

import (
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"uhfbacktest/pkg/btevent"
)

// GzipCSV reads the same column layout as CSV but from .csv.gz files.
type GzipCSV struct {
	dir string
}

// NewGzipCSV returns a RowSource reading gzip-compressed CSV files from dir.
func NewGzipCSV(dir string) *GzipCSV {
	return &GzipCSV{dir: dir}
}

func (g *GzipCSV) orderbookPath(inst btevent.Instrument) string {
	return filepath.Join(g.dir, string(inst)+"_LOB.csv.gz")
}

func (g *GzipCSV) tradePath(inst btevent.Instrument) string {
	return filepath.Join(g.dir, string(inst)+"_trade.csv.gz")
}

func (g *GzipCSV) open(path string) (*gzip.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return gr, f, nil
}

func (g *GzipCSV) Timestamps(inst btevent.Instrument) (obT, tradeT []int64, err error) {
	obPath := g.orderbookPath(inst)
	obR, obF, err := g.open(obPath)
	if err != nil {
		return nil, nil, &ConstructionError{Path: obPath, Err: err}
	}
	defer obF.Close()
	defer obR.Close()
	obT, err = readTimestampColumn(obPath, obR, orderbookColumns)
	if err != nil {
		return nil, nil, err
	}

	tradePath := g.tradePath(inst)
	tradeR, tradeF, err := g.open(tradePath)
	if err != nil {
		return nil, nil, &ConstructionError{Path: tradePath, Err: err}
	}
	defer tradeF.Close()
	defer tradeR.Close()
	tradeT, err = readTimestampColumn(tradePath, tradeR, tradeColumns)
	if err != nil {
		return nil, nil, err
	}

	return obT, tradeT, nil
}

func (g *GzipCSV) LoadOrderbooks(inst btevent.Instrument, startT, endT int64) ([]btevent.Orderbook, error) {
	path := g.orderbookPath(inst)
	r, f, err := g.open(path)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer f.Close()
	defer r.Close()
	return parseOrderbookRows(inst, path, r, startT, endT)
}

func (g *GzipCSV) LoadTrades(inst btevent.Instrument, startT, endT int64) ([]btevent.Trade, error) {
	path := g.tradePath(inst)
	r, f, err := g.open(path)
	if err != nil {
		return nil, &ConstructionError{Path: path, Err: err}
	}
	defer f.Close()
	defer r.Close()
	return parseTradeRows(inst, path, r, startT, endT)
}
