package backtest

import "uhfbacktest/pkg/btevent"

// NopStrategy satisfies Strategy without ever enqueuing an Order. Useful
// for exercising the scheduler/matching wiring in isolation. cmd/backtest
// does not use it; that driver wires its own probe strategy.
type NopStrategy struct{}

func (NopStrategy) OnMarket()           {}
func (NopStrategy) OnFill(btevent.Fill) {}

// NopPortfolio satisfies Portfolio while tracking nothing.
type NopPortfolio struct{}

func (NopPortfolio) OnMarket()           {}
func (NopPortfolio) OnFill(btevent.Fill) {}
