// Package scheduler implements the single-threaded event scheduler: an
// outer loop that pulls the next market-data tick and an inner drain loop
// that dispatches every event produced by that tick to its handlers in a
// fixed priority order. now_t is frozen for the whole of a drain, so every
// event processed within it shares a timestamp; ordering within that
// timestamp is queue insertion order plus the per-kind dispatch table.
package scheduler

import (
	"container/list"
	"io"
	"log/slog"

	"uhfbacktest/internal/backtest"
	"uhfbacktest/pkg/btevent"
)

// Cursor is the market-data side of the outer loop. Advance loads and
// merges the next tick into the registry and reports the new now_t; ok is
// false once the timeline is exhausted.
type Cursor interface {
	Advance() (nowT int64, ok bool)
}

// Matching is the subset of the matching engine's method set the scheduler
// dispatches to. Defined locally so scheduler has no import-time dependency
// on the concrete *matching.Engine type; *matching.Engine satisfies this
// structurally.
type Matching interface {
	SetNow(t int64)
	OnMarket()
	OnOrder(o btevent.Order)
	OnFill(f btevent.Fill)
}

// Scheduler owns the event queue and the fixed handler wiring:
//
//	Market -> Strategy -> Portfolio -> Matching
//	Order  -> Matching
//	Fill   -> Matching -> Portfolio -> Strategy
//
// Handlers never hold references to each other;
// Strategy reaches the queue only through the EventSink it was constructed
// with (ordinarily the Scheduler itself, via Enqueue).
type Scheduler struct {
	cursor    Cursor
	strategy  backtest.Strategy
	portfolio backtest.Portfolio
	matching  Matching
	logger    *slog.Logger

	queue *list.List
	nowT  int64
}

// New wires a scheduler around the given collaborators. logger may be nil.
func New(cursor Cursor, strategy backtest.Strategy, portfolio backtest.Portfolio, matching Matching, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		cursor:    cursor,
		strategy:  strategy,
		portfolio: portfolio,
		matching:  matching,
		logger:    logger.With("component", "scheduler"),
		queue:     list.New(),
	}
}

// Enqueue appends an event to the back of the FIFO queue. It is the
// EventSink the matching engine (and any Strategy) enqueues Fills/Orders
// through.
func (s *Scheduler) Enqueue(e btevent.Event) {
	s.queue.PushBack(e)
}

// NowT returns the frozen timestamp of the drain currently in progress, or
// the last completed tick's timestamp between drains.
func (s *Scheduler) NowT() int64 {
	return s.nowT
}

// Run drives the outer/inner loop to completion: each tick advances the
// cursor, freezes now_t, enqueues a Market wake-up, and drains the queue
// until empty before pulling the next tick. It returns the number of ticks
// processed and the total number of events dispatched across the run.
func (s *Scheduler) Run() (ticks int, totalEvents int) {
	for {
		nowT, ok := s.cursor.Advance()
		if !ok {
			break
		}
		s.setNow(nowT)
		s.Enqueue(btevent.MarketEvt{})

		n := s.drain()
		totalEvents += n
		ticks++
		s.logger.Debug("tick drained", "now_t", nowT, "events", n)
	}
	s.logger.Info("run complete", "ticks", ticks, "events", totalEvents)
	return ticks, totalEvents
}

// Tick advances the cursor exactly once and drains the resulting queue. It
// is the single-step building block Run is built from, exposed for tests
// and for drivers that want to interleave their own logic between ticks.
func (s *Scheduler) Tick() (drained int, ok bool) {
	nowT, ok := s.cursor.Advance()
	if !ok {
		return 0, false
	}
	s.setNow(nowT)
	s.Enqueue(btevent.MarketEvt{})
	return s.drain(), true
}

func (s *Scheduler) setNow(t int64) {
	s.nowT = t
	s.matching.SetNow(t)
}

// drain polls the queue non-blockingly (it is never actually empty-blocking
// since this is a plain slice/list, not a channel) and dispatches every
// event present at call time, including ones enqueued by earlier dispatches
// within the same drain, until none remain.
func (s *Scheduler) drain() int {
	n := 0
	for s.queue.Len() > 0 {
		front := s.queue.Front()
		s.queue.Remove(front)
		e := front.Value.(btevent.Event)
		s.dispatch(e)
		n++
	}
	return n
}

func (s *Scheduler) dispatch(e btevent.Event) {
	switch e.Kind() {
	case btevent.KindMarket:
		s.strategy.OnMarket()
		s.portfolio.OnMarket()
		s.matching.OnMarket()
	case btevent.KindOrder:
		s.matching.OnOrder(e.(btevent.Order))
	case btevent.KindFill:
		f := e.(btevent.Fill)
		s.matching.OnFill(f)
		s.portfolio.OnFill(f)
		s.strategy.OnFill(f)
	default:
		s.logger.Warn("dropping event of unknown kind", "kind", e.Kind())
	}
}
