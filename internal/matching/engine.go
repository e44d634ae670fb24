// Package matching implements the simulated exchange: a miniature matching
// engine that tracks resting orders per instrument, applies
// MARKET/IOC/LIMIT/POST_ONLY order semantics against the latest recorded
// orderbook, and emits maker/taker-aware Fills.
//
// Matching always prices against the book, never the trade stream: a
// MARKET order, or an IOC/LIMIT order that crosses on arrival, fills as
// taker at the touch; a POST_ONLY order that crosses on arrival is repriced
// to its own side's touch instead; and a resting LIMIT/POST_ONLY fills as
// maker at its own limit price once the book moves through it.
package matching

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"uhfbacktest/internal/matching/fees"
	"uhfbacktest/internal/registry"
	"uhfbacktest/pkg/btevent"
)

// EventSink is the subset of the scheduler's queue the engine needs to
// enqueue Fill events. Defined here (rather than imported from the
// scheduler package) so matching has no dependency on scheduler — the
// scheduler satisfies this interface structurally.
type EventSink interface {
	Enqueue(e btevent.Event)
}

// ErrUnknownOrderType is an order-validation error: a programmer bug, not a
// runtime condition a strategy should ever trigger.
var ErrUnknownOrderType = errors.New("matching: unknown order type")

// ErrMissingLimitPrice is an order-validation error for a non-MARKET order
// submitted without a limit price.
var ErrMissingLimitPrice = errors.New("matching: non-MARKET order missing limit price")

// Engine is the simulated matching engine. It is constructed once per
// backtest run and registered with the scheduler as the ORDER handler (sole)
// and as one of the MARKET/FILL handlers.
type Engine struct {
	reg    *registry.Registry
	sink   EventSink
	fees   fees.Schedule
	logger *slog.Logger
	books  map[btevent.Instrument]*instrumentBook
	nowT   int64
}

// New creates a matching engine bound to reg for reading the latest book
// and sink for emitting Fills. logger may be nil (warnings are dropped).
func New(instruments []btevent.Instrument, reg *registry.Registry, sink EventSink, schedule fees.Schedule, logger *slog.Logger) *Engine {
	books := make(map[btevent.Instrument]*instrumentBook, len(instruments))
	for _, inst := range instruments {
		books[inst] = newInstrumentBook()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		reg:    reg,
		sink:   sink,
		fees:   schedule,
		logger: logger,
		books:  books,
	}
}

// SetNow is called by the scheduler before dispatching any event for the
// current tick, so the engine's matching decisions use the same frozen
// now_t the rest of the drain sees.
func (e *Engine) SetNow(t int64) {
	e.nowT = t
}

// OnOrder accepts a newly-submitted order, adds it to the resting index for
// its instrument, and immediately attempts to match it against the current
// book — an order is never required to wait for the next Market tick to
// realise an arrival-time fill. Panics on a validation error: these are
// programmer bugs, not backtest-data conditions.
func (e *Engine) OnOrder(o btevent.Order) {
	if o.Type != btevent.Market && !o.HasLimitPx {
		panic(fmt.Errorf("%w: order %s", ErrMissingLimitPrice, o.OrderID))
	}
	switch o.Type {
	case btevent.Market, btevent.IOC, btevent.Limit, btevent.PostOnly:
	default:
		panic(fmt.Errorf("%w: %s", ErrUnknownOrderType, o.Type))
	}

	book := e.bookFor(o.Instrument)
	ro := &restingOrder{Order: o, state: btevent.Pending}
	book.insert(ro)

	e.OnMarket()
}

// OnMarket rescans every instrument whose resting index has a due order
// (min EffectiveT <= now_t) and attempts to match each order that is
// individually due.
func (e *Engine) OnMarket() {
	for inst, book := range e.books {
		if !book.hasMinEffect || book.minEffective > e.nowT {
			continue
		}
		e.tryExecuteInstrument(inst, book)
	}
}

func (e *Engine) tryExecuteInstrument(inst btevent.Instrument, book *instrumentBook) {
	if len(book.orders) == 0 {
		return
	}
	// Iterate over a snapshot: a fill enqueued here is only removed from the
	// book later, via OnFill, so mutating book.orders mid-loop is not a
	// concern here — it is the scheduler's inner drain, not this loop, that
	// eventually calls OnFill. Done orders awaiting that cleanup are skipped
	// so a second OnMarket within the same drain cannot fill them twice.
	for _, o := range book.orders {
		if o.state == btevent.Done || o.EffectiveT > e.nowT {
			continue
		}
		e.tryExecuteOrder(inst, o)
	}
}

func (e *Engine) tryExecuteOrder(inst btevent.Instrument, o *restingOrder) {
	lob, ok := e.reg.LatestOrderbook(inst)
	if !ok {
		return
	}

	switch o.Type {
	case btevent.Market:
		e.executeMarket(o, lob)
	case btevent.IOC:
		e.executeIOC(o, lob)
	case btevent.Limit:
		e.executeLimit(o, lob)
	case btevent.PostOnly:
		e.executePostOnly(o, lob)
	}
}

// warnIfSizeExceedsBook surfaces the size-overrun soft warning: size is not
// modelled for fill feasibility, so an oversized order still fills in full,
// but the overrun is logged at the moment the fill happens.
func (e *Engine) warnIfSizeExceedsBook(o *restingOrder, lob btevent.Orderbook) {
	bookQty := lob.AskQty
	if o.Side == btevent.Sell {
		bookQty = lob.BidQty
	}
	if o.Qty.GreaterThan(bookQty) {
		e.logger.Warn("order quantity exceeds advertised book size at best level",
			"order_id", o.OrderID, "instrument", string(o.Instrument),
			"qty", o.Qty.String(), "book_qty", bookQty.String())
	}
}

func (e *Engine) executeMarket(o *restingOrder, lob btevent.Orderbook) {
	price := lob.Ask
	if o.Side == btevent.Sell {
		price = lob.Bid
	}
	e.warnIfSizeExceedsBook(o, lob)
	e.emitFill(o, price, false, btevent.FillAll)
}

func (e *Engine) executeIOC(o *restingOrder, lob btevent.Orderbook) {
	crosses, price := e.crosses(o, lob)
	if crosses {
		e.warnIfSizeExceedsBook(o, lob)
		e.emitFill(o, price, false, btevent.FillAll)
		return
	}
	e.emitFill(o, decimal.Zero, false, btevent.FillCanceled)
}

func (e *Engine) executeLimit(o *restingOrder, lob btevent.Orderbook) {
	crosses, touchPrice := e.crosses(o, lob)
	if o.helpState == 0 {
		o.helpState = 1
		if crosses {
			e.warnIfSizeExceedsBook(o, lob)
			e.emitFill(o, touchPrice, false, btevent.FillAll)
			return
		}
		o.state = btevent.Resting
		return
	}
	// Resting attempt: fills as maker at its own limit price once the book
	// has moved enough to cross it.
	if crosses {
		e.warnIfSizeExceedsBook(o, lob)
		e.emitFill(o, o.LimitPx, true, btevent.FillAll)
	}
}

func (e *Engine) executePostOnly(o *restingOrder, lob btevent.Orderbook) {
	crosses, _ := e.crosses(o, lob)
	if o.helpState == 0 {
		o.helpState = 1
		if crosses {
			// Reprice to the touch on our own side instead of crossing as
			// taker: a POST_ONLY order is never allowed to take.
			if o.Side == btevent.Buy {
				o.LimitPx = lob.Bid
			} else {
				o.LimitPx = lob.Ask
			}
		}
		o.state = btevent.Resting
		return
	}
	if crosses {
		e.warnIfSizeExceedsBook(o, lob)
		e.emitFill(o, o.LimitPx, true, btevent.FillAll)
	}
}

// crosses reports whether o's limit price currently crosses the book, and
// the price it would trade at if forced to take liquidity right now (the
// touch on the far side). BUY crosses when LimitPx >= ask; SELL crosses
// when LimitPx <= bid.
func (e *Engine) crosses(o *restingOrder, lob btevent.Orderbook) (bool, decimal.Decimal) {
	if o.Side == btevent.Buy {
		if o.LimitPx.GreaterThanOrEqual(lob.Ask) {
			return true, lob.Ask
		}
		return false, decimal.Zero
	}
	if o.LimitPx.LessThanOrEqual(lob.Bid) {
		return true, lob.Bid
	}
	return false, decimal.Zero
}

func (e *Engine) emitFill(o *restingOrder, price decimal.Decimal, isMaker bool, flag btevent.FillFlag) {
	o.state = btevent.Done
	fill := btevent.Fill{
		T:          e.nowT,
		Instrument: o.Instrument,
		Venue:      o.Instrument.Venue(),
		OrderID:    o.OrderID,
		Side:       o.Side,
		Qty:        o.Qty,
		Flag:       flag,
		IsMaker:    isMaker,
	}
	if flag == btevent.FillAll {
		fill.Price = price
		fill.FeeRate = e.fees.Lookup(fill.Venue, isMaker, e.logger)
		fill.CashCost = btevent.CashCostForFill(fill.Side, fill.Qty, fill.Price, fill.FeeRate)
	}
	e.sink.Enqueue(fill)
}

// OnFill removes the filled/canceled order from its instrument's resting
// index and recomputes the cached minimum EffectiveT. A FillCanceled record
// is a cleanup signal only — no additional bookkeeping happens here.
func (e *Engine) OnFill(f btevent.Fill) {
	book := e.bookFor(f.Instrument)
	book.removeByOrderID(f.OrderID)
}

// CancelAll drops every resting order across every instrument without
// emitting any fills.
func (e *Engine) CancelAll() {
	for _, book := range e.books {
		book.clear()
	}
}

func (e *Engine) bookFor(inst btevent.Instrument) *instrumentBook {
	b, ok := e.books[inst]
	if !ok {
		panic("matching: unknown instrument " + string(inst))
	}
	return b
}
