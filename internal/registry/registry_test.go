package registry

import (
	"testing"

	"github.com/shopspring/decimal"

	"uhfbacktest/pkg/btevent"
)

const testInst = btevent.Instrument("BTCUSDT_binance")

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestRegistry() *Registry {
	return New([]btevent.Instrument{testInst})
}

func TestRecordOrderbookLastWriteWins(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	r.RecordOrderbook(testInst, btevent.Orderbook{Instrument: testInst, T: 1000, Bid: d("99"), Ask: d("100")})
	r.RecordOrderbook(testInst, btevent.Orderbook{Instrument: testInst, T: 1000, Bid: d("98"), Ask: d("101")})

	ob, ok := r.LatestOrderbook(testInst)
	if !ok {
		t.Fatal("expected a latest orderbook")
	}
	if !ob.Bid.Equal(d("98")) || !ob.Ask.Equal(d("101")) {
		t.Errorf("got bid=%s ask=%s, want last-write-wins sample", ob.Bid, ob.Ask)
	}
}

func TestRecordTradesPreservesOrder(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	r.RecordTrades(testInst, 1000, []btevent.Trade{
		{Instrument: testInst, T: 1000, Price: d("100"), Qty: d("1")},
		{Instrument: testInst, T: 1000, Price: d("101"), Qty: d("2")},
	})

	trades, ok := r.LatestTrades(testInst)
	if !ok || len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %v ok=%v", trades, ok)
	}
	if !trades[0].Price.Equal(d("100")) || !trades[1].Price.Equal(d("101")) {
		t.Errorf("trade order not preserved: %+v", trades)
	}
}

func TestLatestPriceFallsBackToMid(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	r.RecordOrderbook(testInst, btevent.Orderbook{Instrument: testInst, T: 1000, Bid: d("99"), Ask: d("101")})

	price, ok := r.LatestPrice(testInst, 1000)
	if !ok {
		t.Fatal("expected a price")
	}
	if !price.Equal(d("100")) {
		t.Errorf("price = %s, want mid 100", price)
	}
}

func TestLatestPricePrefersTradeAtNow(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	r.RecordOrderbook(testInst, btevent.Orderbook{Instrument: testInst, T: 1000, Bid: d("99"), Ask: d("101")})
	r.RecordTrades(testInst, 1000, []btevent.Trade{{Instrument: testInst, T: 1000, Price: d("100.5"), Qty: d("1")}})

	price, ok := r.LatestPrice(testInst, 1000)
	if !ok {
		t.Fatal("expected a price")
	}
	if !price.Equal(d("100.5")) {
		t.Errorf("price = %s, want trade print 100.5", price)
	}
}

func TestUpdatedTradeSymbols(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	if got := r.UpdatedTradeSymbols(1000); len(got) != 0 {
		t.Fatalf("expected no updates yet, got %v", got)
	}

	r.RecordTrades(testInst, 1000, []btevent.Trade{{Instrument: testInst, T: 1000, Price: d("1"), Qty: d("1")}})
	got := r.UpdatedTradeSymbols(1000)
	if _, ok := got[testInst]; !ok {
		t.Errorf("expected %s to be marked updated at t=1000", testInst)
	}
	if got2 := r.UpdatedTradeSymbols(1001); len(got2) != 0 {
		t.Errorf("expected no updates at t=1001, got %v", got2)
	}
}

func TestUnknownInstrumentPanics(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unregistered instrument")
		}
	}()
	r.RecordOrderbook("nope_binance", btevent.Orderbook{})
}
