// Package registry is the write-append / read-latest structure the cursor
// populates as it advances the simulated clock: per instrument, the most
// recent orderbook tick and the ordered trade lists observed so far.
//
// There is deliberately no mutex here. The registry is written only from
// within the cursor's single-threaded Advance(), and read only by handlers
// running on that same goroutine during a drain.
package registry

import (
	"github.com/shopspring/decimal"

	"uhfbacktest/pkg/btevent"
)

// instrumentView holds one instrument's observed history up to now_t.
type instrumentView struct {
	lastObT        int64
	hasOb          bool
	registeredOb   map[int64]btevent.Orderbook
	lastTradeT     int64
	hasTrade       bool
	registeredTrds map[int64][]btevent.Trade
}

func newInstrumentView() *instrumentView {
	return &instrumentView{
		registeredOb:   make(map[int64]btevent.Orderbook),
		registeredTrds: make(map[int64][]btevent.Trade),
	}
}

// Registry is the latest-view registry: for each instrument, the most
// recent orderbook tick and the ordered list of trade ticks observed so far.
type Registry struct {
	views map[btevent.Instrument]*instrumentView
}

// New creates an empty registry for the given fixed instrument set.
func New(instruments []btevent.Instrument) *Registry {
	views := make(map[btevent.Instrument]*instrumentView, len(instruments))
	for _, inst := range instruments {
		views[inst] = newInstrumentView()
	}
	return &Registry{views: views}
}

func (r *Registry) view(inst btevent.Instrument) *instrumentView {
	v, ok := r.views[inst]
	if !ok {
		// Instruments are fixed at construction; a lookup miss means a
		// caller is using an instrument key the registry was never told
		// about.
		panic("registry: unknown instrument " + string(inst))
	}
	return v
}

// RecordOrderbook writes a new orderbook tick for inst, replacing whatever
// was previously registered at that exact timestamp (last-write-wins is
// enforced by the cursor before this call; the registry itself just
// overwrites the map entry and advances lastObT).
func (r *Registry) RecordOrderbook(inst btevent.Instrument, ob btevent.Orderbook) {
	v := r.view(inst)
	v.registeredOb[ob.T] = ob
	v.lastObT = ob.T
	v.hasOb = true
}

// RecordTrades appends trade ticks for inst at a single timestamp, in the
// order given. Existing trades at other timestamps are untouched.
func (r *Registry) RecordTrades(inst btevent.Instrument, t int64, trades []btevent.Trade) {
	if len(trades) == 0 {
		return
	}
	v := r.view(inst)
	v.registeredTrds[t] = append(v.registeredTrds[t], trades...)
	v.lastTradeT = t
	v.hasTrade = true
}

// LatestOrderbook returns the most recent orderbook tick for inst, if any
// has been observed yet.
func (r *Registry) LatestOrderbook(inst btevent.Instrument) (btevent.Orderbook, bool) {
	v := r.view(inst)
	if !v.hasOb {
		return btevent.Orderbook{}, false
	}
	return v.registeredOb[v.lastObT], true
}

// LatestTrades returns all trade ticks recorded at the most recent trade
// timestamp for inst.
func (r *Registry) LatestTrades(inst btevent.Instrument) ([]btevent.Trade, bool) {
	v := r.view(inst)
	if !v.hasTrade {
		return nil, false
	}
	return v.registeredTrds[v.lastTradeT], true
}

// LatestPrice returns the trade print at now_t if one exists for inst, else
// the mid of the latest orderbook. Returns false if neither is available.
func (r *Registry) LatestPrice(inst btevent.Instrument, nowT int64) (decimal.Decimal, bool) {
	v := r.view(inst)
	if v.hasTrade && v.lastTradeT == nowT {
		trds := v.registeredTrds[nowT]
		if len(trds) > 0 {
			return trds[len(trds)-1].Price, true
		}
	}
	if v.hasOb {
		return v.registeredOb[v.lastObT].Mid(), true
	}
	return decimal.Decimal{}, false
}

// UpdatedTradeSymbols returns the set of instruments whose trade list
// received at least one new record at nowT.
func (r *Registry) UpdatedTradeSymbols(nowT int64) map[btevent.Instrument]struct{} {
	out := make(map[btevent.Instrument]struct{})
	for inst, v := range r.views {
		if v.hasTrade && v.lastTradeT == nowT {
			out[inst] = struct{}{}
		}
	}
	return out
}
