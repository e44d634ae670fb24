package main

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"uhfbacktest/internal/registry"
	"uhfbacktest/pkg/btevent"
)

// touchStrategy is a minimal reference Strategy: the first time it sees a
// book for an instrument, it submits one MARKET BUY of size 1 to exercise
// the full cursor-to-fill pipeline end to end. It is not a real trading
// strategy; it exists only so cmd/backtest demonstrates the Strategy
// contract with a non-trivial collaborator instead of NopStrategy.
type touchStrategy struct {
	reg         *registry.Registry
	sink        EventSink
	instruments []btevent.Instrument
	latencyMs   map[btevent.Instrument]int64
	nowT        func() int64
	logger      *slog.Logger

	probed map[btevent.Instrument]bool
}

// EventSink is the subset of the scheduler the strategy enqueues Orders
// through. Defined locally, mirroring the matching engine's own EventSink,
// so this package never imports the scheduler's concrete type.
type EventSink interface {
	Enqueue(e btevent.Event)
}

func newTouchStrategy(reg *registry.Registry, sink EventSink, instruments []btevent.Instrument, latencyMs map[btevent.Instrument]int64, nowT func() int64, logger *slog.Logger) *touchStrategy {
	return &touchStrategy{
		reg:         reg,
		sink:        sink,
		instruments: instruments,
		latencyMs:   latencyMs,
		nowT:        nowT,
		logger:      logger,
		probed:      make(map[btevent.Instrument]bool, len(instruments)),
	}
}

func (s *touchStrategy) OnMarket() {
	for _, inst := range s.instruments {
		if s.probed[inst] {
			continue
		}
		if _, ok := s.reg.LatestOrderbook(inst); !ok {
			continue
		}
		s.probed[inst] = true

		orderID := uuid.NewString()
		order := btevent.Order{
			OrderID:    orderID,
			Instrument: inst,
			EffectiveT: s.nowT() + s.latencyMs[inst],
			Side:       btevent.Buy,
			Type:       btevent.Market,
			Qty:        decimal.NewFromInt(1),
		}
		s.logger.Info("submitting probe order", "order_id", orderID, "instrument", string(inst))
		s.sink.Enqueue(order)
	}
}

func (s *touchStrategy) OnFill(f btevent.Fill) {
	if !f.Filled() {
		return
	}
	s.logger.Info("probe order filled", "order_id", f.OrderID, "instrument", string(f.Instrument),
		"price", f.Price.String(), "cash_cost", f.CashCost.String())
}
