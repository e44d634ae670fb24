package source

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeGzipFile(t *testing.T, dir, name, content string) {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestGzipCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeGzipFile(t, dir, "BTCUSDT_binance_LOB.csv.gz", ""+
		"time,bid1,bid_qty1,ask1,ask_qty1\n"+
		"1000,99,10,100,10\n")
	writeGzipFile(t, dir, "BTCUSDT_binance_trade.csv.gz", ""+
		"time,price,qty,is_buyer_maker\n"+
		"1000,100,1,true\n")

	g := NewGzipCSV(dir)

	obs, err := g.LoadOrderbooks(testInst, 0, 5000)
	if err != nil {
		t.Fatalf("LoadOrderbooks: %v", err)
	}
	if len(obs) != 1 || !obs[0].Bid.Equal(d("99")) {
		t.Fatalf("unexpected orderbooks: %+v", obs)
	}

	trades, err := g.LoadTrades(testInst, 0, 5000)
	if err != nil {
		t.Fatalf("LoadTrades: %v", err)
	}
	if len(trades) != 1 || !trades[0].Price.Equal(d("100")) {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	obT, tradeT, err := g.Timestamps(testInst)
	if err != nil {
		t.Fatalf("Timestamps: %v", err)
	}
	if len(obT) != 1 || len(tradeT) != 1 {
		t.Fatalf("obT=%v tradeT=%v", obT, tradeT)
	}
}

func TestGzipCSVMissingFileIsConstructionError(t *testing.T) {
	g := NewGzipCSV(t.TempDir())
	_, err := g.LoadOrderbooks(testInst, 0, 1000)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ce *ConstructionError
	if !asConstructionError(err, &ce) {
		t.Errorf("expected *ConstructionError, got %T: %v", err, err)
	}
}
