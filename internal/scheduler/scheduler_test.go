package scheduler

import (
	"testing"

	"uhfbacktest/pkg/btevent"
)

// recorder logs every handler call it receives, in call order, so tests can
// assert on cross-handler dispatch priority.
type recorder struct {
	calls []string
}

func (r *recorder) log(s string) { r.calls = append(r.calls, s) }

type recordingStrategy struct {
	*recorder
}

func (s *recordingStrategy) OnMarket()           { s.log("strategy.market") }
func (s *recordingStrategy) OnFill(btevent.Fill) { s.log("strategy.fill") }

type recordingPortfolio struct{ *recorder }

func (p *recordingPortfolio) OnMarket()           { p.log("portfolio.market") }
func (p *recordingPortfolio) OnFill(btevent.Fill) { p.log("portfolio.fill") }

type recordingMatching struct {
	*recorder
	nowT int64
}

func (m *recordingMatching) SetNow(t int64)        { m.nowT = t }
func (m *recordingMatching) OnMarket()             { m.log("matching.market") }
func (m *recordingMatching) OnOrder(btevent.Order) { m.log("matching.order") }
func (m *recordingMatching) OnFill(btevent.Fill)   { m.log("matching.fill") }

// EventSink mirrors the scheduler's own Enqueue signature, used only so
// orderingStrategy and marketBuyStrategy can hold a reference to whatever
// sink the test wires them to (ordinarily the Scheduler itself).
type EventSink interface {
	Enqueue(e btevent.Event)
}

// fakeCursor replays a fixed sequence of timestamps, then reports exhausted.
type fakeCursor struct {
	ticks []int64
	i     int
}

func (c *fakeCursor) Advance() (int64, bool) {
	if c.i >= len(c.ticks) {
		return 0, false
	}
	t := c.ticks[c.i]
	c.i++
	return t, true
}

func TestMarketDispatchOrder(t *testing.T) {
	rec := &recorder{}
	strat := &recordingStrategy{recorder: rec}
	port := &recordingPortfolio{recorder: rec}
	match := &recordingMatching{recorder: rec}
	cur := &fakeCursor{ticks: []int64{1000}}

	s := New(cur, strat, port, match, nil)
	ticks, events := s.Run()

	if ticks != 1 || events != 1 {
		t.Fatalf("ticks=%d events=%d, want 1,1", ticks, events)
	}
	want := []string{"strategy.market", "portfolio.market", "matching.market"}
	if !equalSlices(rec.calls, want) {
		t.Errorf("dispatch order = %v, want %v", rec.calls, want)
	}
	if match.nowT != 1000 {
		t.Errorf("matching.nowT = %d, want 1000", match.nowT)
	}
}

func TestFillDispatchOrder(t *testing.T) {
	rec := &recorder{}
	strat := &recordingStrategy{recorder: rec}
	port := &recordingPortfolio{recorder: rec}
	match := &recordingMatching{recorder: rec}
	cur := &fakeCursor{ticks: []int64{1000}}

	s := New(cur, strat, port, match, nil)
	s.Enqueue(btevent.Fill{T: 1000, OrderID: "o1"})
	s.Run()

	want := []string{
		"matching.fill", "portfolio.fill", "strategy.fill",
		"strategy.market", "portfolio.market", "matching.market",
	}
	if !equalSlices(rec.calls, want) {
		t.Errorf("dispatch order = %v, want %v", rec.calls, want)
	}
}

func TestOrderDispatchesOnlyToMatching(t *testing.T) {
	rec := &recorder{}
	strat := &recordingStrategy{recorder: rec}
	port := &recordingPortfolio{recorder: rec}
	match := &recordingMatching{recorder: rec}
	cur := &fakeCursor{ticks: []int64{1000}}

	s := New(cur, strat, port, match, nil)
	s.Enqueue(btevent.Order{OrderID: "o1"})
	s.Run()

	want := []string{"matching.order", "strategy.market", "portfolio.market", "matching.market"}
	if !equalSlices(rec.calls, want) {
		t.Errorf("dispatch order = %v, want %v", rec.calls, want)
	}
}

// orderingStrategy enqueues an Order the first time it sees a Market event,
// exercising the requirement that an event enqueued mid-drain is processed
// within that same drain rather than deferred to the next tick.
type orderingStrategy struct {
	*recorder
	sink EventSink
	sent bool
}

func (s *orderingStrategy) OnMarket() {
	s.log("strategy.market")
	if !s.sent {
		s.sent = true
		s.sink.Enqueue(btevent.Order{OrderID: "o1"})
	}
}
func (s *orderingStrategy) OnFill(btevent.Fill) { s.log("strategy.fill") }

func TestRunProcessesEventsEnqueuedDuringDrain(t *testing.T) {
	rec := &recorder{}
	strat := &orderingStrategy{recorder: rec}
	port := &recordingPortfolio{recorder: rec}
	match := &recordingMatching{recorder: rec}
	cur := &fakeCursor{ticks: []int64{1000}}

	s := New(cur, strat, port, match, nil)
	strat.sink = s

	ticks, events := s.Run()
	if ticks != 1 {
		t.Fatalf("ticks = %d, want 1", ticks)
	}
	// Market dispatch (3 handler calls) + the Order dispatched within the
	// same drain (1 handler call) = 2 events processed.
	if events != 2 {
		t.Fatalf("events = %d, want 2", events)
	}
	want := []string{"strategy.market", "portfolio.market", "matching.market", "matching.order"}
	if !equalSlices(rec.calls, want) {
		t.Errorf("dispatch order = %v, want %v", rec.calls, want)
	}
}

func TestMultiTickMonotoneNow(t *testing.T) {
	rec := &recorder{}
	strat := &recordingStrategy{recorder: rec}
	port := &recordingPortfolio{recorder: rec}
	match := &recordingMatching{recorder: rec}
	cur := &fakeCursor{ticks: []int64{1000, 1000, 1500}}

	s := New(cur, strat, port, match, nil)
	ticks, _ := s.Run()
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
	if match.nowT != 1500 {
		t.Errorf("final nowT = %d, want 1500", match.nowT)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
