// Package backtest defines the external handler contracts the scheduler
// dispatches to: Strategy and Portfolio. Neither interface holds a
// reference to the other or to the matching engine — all cross-component
// communication flows through the scheduler's event queue, never through
// direct callbacks.
package backtest

import "uhfbacktest/pkg/btevent"

// Strategy reacts to Market and Fill events and may submit new Orders
// through whatever EventSink it was constructed with. OnMarket takes no
// payload: the current tick's state is read from the registry, exactly as
// the matching engine reads it.
type Strategy interface {
	OnMarket()
	OnFill(f btevent.Fill)
}

// Portfolio is a pure observer: it reacts to Market and Fill events to
// maintain position/PnL bookkeeping but never enqueues anything itself.
type Portfolio interface {
	OnMarket()
	OnFill(f btevent.Fill)
}
