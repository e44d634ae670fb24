// Package marketdata implements the market-data cursor: the replay
// timeline, lazily materialized in hourly chunks, and the bridge that
// merges ticks into the latest-view registry as now_t advances.
//
// The timeline is discovered once, up front, as the sorted union of every
// instrument's trade and orderbook timestamps; row data is only resident
// for the active chunk, so memory stays O(chunk) regardless of run length.
// Per-instrument loads within one chunk reload run concurrently, but the
// reload joins before Advance returns — replay itself stays single-threaded.
package marketdata

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"uhfbacktest/internal/marketdata/source"
	"uhfbacktest/internal/registry"
	"uhfbacktest/pkg/btevent"
)

const hourMs = int64(60 * 60 * 1000)

// ConstructionError is a fatal, construction-time (or lazy-reload-time)
// error: duplicate instruments or an underlying source.ConstructionError.
type ConstructionError struct {
	Err error
}

func (e *ConstructionError) Error() string { return fmt.Sprintf("marketdata: %v", e.Err) }
func (e *ConstructionError) Unwrap() error { return e.Err }

type chunkBounds struct {
	startT, endT int64
}

// Cursor replays the merged timeline: constructed once per run over a
// fixed instrument set, a RowSource, and the registry it writes into.
type Cursor struct {
	instruments []btevent.Instrument
	src         source.RowSource
	reg         *registry.Registry
	logger      *slog.Logger

	timeline []int64
	pos      int

	chunks   []chunkBounds
	chunkIdx int // -1 until the first chunk is loaded

	obByInstT     map[btevent.Instrument]map[int64]btevent.Orderbook
	tradesByInstT map[btevent.Instrument]map[int64][]btevent.Trade

	nowT int64
	err  error
}

// New scans every instrument's trade and orderbook files once for timeline
// discovery, builds the hourly load plan, and returns a Cursor ready for
// Advance(). logger may be nil.
func New(instruments []btevent.Instrument, src source.RowSource, reg *registry.Registry, logger *slog.Logger) (*Cursor, error) {
	seen := make(map[btevent.Instrument]struct{}, len(instruments))
	for _, inst := range instruments {
		if _, dup := seen[inst]; dup {
			return nil, &ConstructionError{Err: fmt.Errorf("duplicate instrument %s", inst)}
		}
		seen[inst] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var all []int64
	for _, inst := range instruments {
		obT, tradeT, err := src.Timestamps(inst)
		if err != nil {
			return nil, &ConstructionError{Err: err}
		}
		all = append(all, obT...)
		all = append(all, tradeT...)
	}
	timeline := dedupeSorted(all)
	if len(timeline) == 0 {
		return nil, &ConstructionError{Err: fmt.Errorf("no ticks found across %d instrument(s)", len(instruments))}
	}

	return &Cursor{
		instruments: instruments,
		src:         src,
		reg:         reg,
		logger:      logger.With("component", "marketdata"),
		timeline:    timeline,
		chunks:      partitionHourly(timeline),
		chunkIdx:    -1,
	}, nil
}

func dedupeSorted(ts []int64) []int64 {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	out := ts[:0]
	var last int64
	hasLast := false
	for _, t := range ts {
		if hasLast && t == last {
			continue
		}
		out = append(out, t)
		last = t
		hasLast = true
	}
	return out
}

// partitionHourly groups a sorted timeline into contiguous chunks that each
// span at most one hour from their own start.
func partitionHourly(timeline []int64) []chunkBounds {
	if len(timeline) == 0 {
		return nil
	}
	var chunks []chunkBounds
	start := timeline[0]
	last := timeline[0]
	for _, t := range timeline {
		if t-start > hourMs {
			chunks = append(chunks, chunkBounds{startT: start, endT: last})
			start = t
		}
		last = t
	}
	chunks = append(chunks, chunkBounds{startT: start, endT: last})
	return chunks
}

// Advance moves now_t to the next timeline timestamp, reloading the active
// chunk if the new now_t has crossed its boundary, merging the resulting
// ticks into the registry. ok is false once the timeline is exhausted — or
// once a chunk reload fails, in which case Err() reports the cause and the
// run stops at the last good tick.
func (c *Cursor) Advance() (nowT int64, ok bool) {
	if c.err != nil || c.pos >= len(c.timeline) {
		return 0, false
	}
	nowT = c.timeline[c.pos]
	c.pos++

	if c.chunkIdx < 0 || nowT > c.chunks[c.chunkIdx].endT {
		if err := c.loadChunkFor(nowT); err != nil {
			c.err = err
			c.logger.Error("hourly chunk reload failed", "now_t", nowT, "error", err)
			return 0, false
		}
	}

	c.nowT = nowT
	c.mergeTicks(nowT)
	return nowT, true
}

// Err reports the chunk-reload error that terminated Advance early, if any.
// A nil Err after Advance returns false means the timeline simply ran out.
func (c *Cursor) Err() error { return c.err }

func (c *Cursor) loadChunkFor(nowT int64) error {
	// Chunks partition the timeline 1:1 (partitionHourly), so the chunk
	// whose boundary nowT just crossed is always the very next one.
	idx := c.chunkIdx + 1
	if idx >= len(c.chunks) {
		return fmt.Errorf("marketdata: now_t=%d has no matching chunk", nowT)
	}
	bounds := c.chunks[idx]
	c.logger.Debug("reloading hourly chunk", "start_t", bounds.startT, "end_t", bounds.endT)

	obByInstT := make(map[btevent.Instrument]map[int64]btevent.Orderbook, len(c.instruments))
	tradesByInstT := make(map[btevent.Instrument]map[int64][]btevent.Trade, len(c.instruments))
	var mu sync.Mutex
	g := new(errgroup.Group)
	for _, inst := range c.instruments {
		inst := inst
		g.Go(func() error {
			obs, err := c.src.LoadOrderbooks(inst, bounds.startT, bounds.endT)
			if err != nil {
				return err
			}
			trades, err := c.src.LoadTrades(inst, bounds.startT, bounds.endT)
			if err != nil {
				return err
			}
			obByT := make(map[int64]btevent.Orderbook, len(obs))
			for _, ob := range obs {
				obByT[ob.T] = ob
			}
			tradesByT := make(map[int64][]btevent.Trade, len(trades))
			for _, trd := range trades {
				tradesByT[trd.T] = append(tradesByT[trd.T], trd)
			}
			mu.Lock()
			obByInstT[inst] = obByT
			tradesByInstT[inst] = tradesByT
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &ConstructionError{Err: err}
	}

	c.obByInstT = obByInstT
	c.tradesByInstT = tradesByInstT
	c.chunkIdx = idx
	return nil
}

func (c *Cursor) mergeTicks(nowT int64) {
	for _, inst := range c.instruments {
		if ob, ok := c.obByInstT[inst][nowT]; ok {
			c.reg.RecordOrderbook(inst, ob)
		}
		if trades, ok := c.tradesByInstT[inst][nowT]; ok {
			c.reg.RecordTrades(inst, nowT, trades)
		}
	}
}

// GetLatestLobs returns the most recent orderbook observed so far, per
// instrument that has one.
func (c *Cursor) GetLatestLobs() map[btevent.Instrument]btevent.Orderbook {
	out := make(map[btevent.Instrument]btevent.Orderbook)
	for _, inst := range c.instruments {
		if ob, ok := c.reg.LatestOrderbook(inst); ok {
			out[inst] = ob
		}
	}
	return out
}

// GetLatestTrades returns the last trade print per instrument: the most
// recent element of the list recorded at that instrument's latest trade
// timestamp. The full list is available through the registry.
func (c *Cursor) GetLatestTrades() map[btevent.Instrument]btevent.Trade {
	out := make(map[btevent.Instrument]btevent.Trade)
	for _, inst := range c.instruments {
		if trades, ok := c.reg.LatestTrades(inst); ok && len(trades) > 0 {
			out[inst] = trades[len(trades)-1]
		}
	}
	return out
}

// GetLatestPrices returns, per instrument, the trade print at now_t if one
// exists, else the latest orderbook's mid.
func (c *Cursor) GetLatestPrices() map[btevent.Instrument]decimal.Decimal {
	out := make(map[btevent.Instrument]decimal.Decimal)
	for _, inst := range c.instruments {
		if price, ok := c.reg.LatestPrice(inst, c.nowT); ok {
			out[inst] = price
		}
	}
	return out
}

// GetUpdatedTradeSymbols returns the set of instruments whose trade list
// was updated at the current now_t.
func (c *Cursor) GetUpdatedTradeSymbols() map[btevent.Instrument]struct{} {
	return c.reg.UpdatedTradeSymbols(c.nowT)
}

// NowT returns the cursor's current simulated time.
func (c *Cursor) NowT() int64 { return c.nowT }

// StartT returns the first timestamp of the discovered timeline.
func (c *Cursor) StartT() int64 { return c.timeline[0] }

// Timeline returns the sorted, deduplicated union of every instrument's
// trade and orderbook timestamps. Callers must not mutate it.
func (c *Cursor) Timeline() []int64 { return c.timeline }
