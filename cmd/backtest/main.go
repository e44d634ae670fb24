// Command backtest is a thin example driver for the event-driven UHF
// backtester.
//
// Architecture:
//
//	main.go             — entry point: loads config, wires the run, drains it, logs a summary
//	strategy.go         — touchStrategy: a minimal reference Strategy, not a real trading strategy
//	internal/config     — YAML+env run configuration
//	internal/marketdata — the market-data cursor, backed by a source.RowSource
//	internal/registry   — the latest-view registry
//	internal/matching   — the simulated matching engine and its fee schedule
//	internal/scheduler  — the single-threaded event scheduler
//	internal/backtest   — the Strategy/Portfolio contracts the scheduler dispatches to
//	internal/store      — optional SQLite archive of the finished run
//
// Portfolio bookkeeping and P&L analytics live outside this module; this
// driver wires backtest.NopPortfolio and archives an empty equity series,
// leaving real accounting to a caller's own Portfolio collaborator.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"uhfbacktest/internal/backtest"
	"uhfbacktest/internal/config"
	"uhfbacktest/internal/marketdata"
	"uhfbacktest/internal/marketdata/source"
	"uhfbacktest/internal/matching"
	"uhfbacktest/internal/registry"
	"uhfbacktest/internal/scheduler"
	"uhfbacktest/internal/store"
	"uhfbacktest/pkg/btevent"
)

// sinkProxy breaks the Scheduler/Engine construction cycle: the matching
// engine needs an EventSink at construction time, but the Scheduler needs
// the fully-constructed matching engine at its own construction time. The
// proxy is handed to the engine first and pointed at the scheduler once it
// exists; every call after that point forwards normally.
type sinkProxy struct {
	target interface{ Enqueue(e btevent.Event) }
}

func (p *sinkProxy) Enqueue(e btevent.Event) { p.target.Enqueue(e) }

func main() {
	cfgPath := "configs/backtest.yaml"
	if p := os.Getenv("BT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)

	instruments := make([]btevent.Instrument, 0, len(cfg.Instruments))
	latencyMs := make(map[btevent.Instrument]int64, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		inst := btevent.NewInstrument(ic.Symbol, ic.Venue)
		instruments = append(instruments, inst)
		latencyMs[inst] = ic.LatencyMs
	}

	src, err := buildRowSource(cfg.Data)
	if err != nil {
		logger.Error("unsupported data format", "error", err)
		os.Exit(1)
	}

	reg := registry.New(instruments)
	cursor, err := marketdata.New(instruments, src, reg, logger)
	if err != nil {
		logger.Error("failed to construct cursor", "error", err)
		os.Exit(1)
	}

	proxy := &sinkProxy{}
	engine := matching.New(instruments, reg, proxy, cfg.FeeSchedule(), logger)

	portfolio := backtest.NopPortfolio{}
	strat := newTouchStrategy(reg, proxy, instruments, latencyMs, cursor.NowT, logger)

	sched := scheduler.New(cursor, strat, portfolio, engine, logger)
	proxy.target = sched

	ticks, events := sched.Run()
	if err := cursor.Err(); err != nil {
		logger.Error("run terminated early by data error", "error", err)
		os.Exit(1)
	}
	logger.Info("backtest complete",
		"ticks", humanize.Comma(int64(ticks)),
		"events", humanize.Comma(int64(events)))

	if cfg.Store.Path != "" {
		archiveRun(cfg.Store.Path, logger)
	}
}

func archiveRun(path string, logger *slog.Logger) {
	st, err := store.Open(path)
	if err != nil {
		logger.Error("failed to open run store", "error", err)
		return
	}
	defer st.Close()

	// Fills/equity are produced by a real Portfolio collaborator, which is
	// out of scope here (backtest.NopPortfolio); this archives an empty run
	// record purely to exercise the D4 persistence path end to end.
	runID, err := st.SaveRun("cmd/backtest run", nil, nil)
	if err != nil {
		logger.Error("failed to archive run", "error", err)
		return
	}
	logger.Info("run archived", "run_id", runID, "path", path)
}

func buildRowSource(d config.DataConfig) (source.RowSource, error) {
	switch d.Format {
	case "csv":
		return source.NewCSV(d.Dir), nil
	case "csv.gz":
		return source.NewGzipCSV(d.Dir), nil
	case "parquet":
		return source.NewParquet(d.Dir), nil
	default:
		return nil, fmt.Errorf("unknown data format %q", d.Format)
	}
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
