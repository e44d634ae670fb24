// Package store provides an optional SQLite archive of a finished backtest
// run's fill log and equity time series. The backtest itself persists
// nothing: this package is a sink a driver may wire in after a Portfolio
// collaborator has produced a fill log and equity series.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"uhfbacktest/pkg/btevent"
)

// EquityPoint is one sample of the run's equity time series: the portfolio
// collaborator's mark-to-market value at a given simulated timestamp.
type EquityPoint struct {
	T      int64
	Equity string // decimal.Decimal.String(), stored as text for exactness
}

// Store persists one backtest run's fills and equity series to a SQLite
// database. SaveRun and LoadRun are mutex-protected so concurrent drivers
// serialize their writes; Close takes no lock.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate %s: %w", path, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			label      TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS fill (
			run_id     INTEGER NOT NULL REFERENCES run(id),
			t          INTEGER NOT NULL,
			instrument TEXT NOT NULL,
			venue      TEXT NOT NULL,
			order_id   TEXT NOT NULL,
			side       TEXT NOT NULL,
			qty        TEXT NOT NULL,
			price      TEXT NOT NULL,
			is_maker   INTEGER NOT NULL,
			flag       TEXT NOT NULL,
			fee_rate   TEXT NOT NULL,
			cash_cost  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS fill_run_t ON fill(run_id, t);

		CREATE TABLE IF NOT EXISTS equity_point (
			run_id INTEGER NOT NULL REFERENCES run(id),
			t      INTEGER NOT NULL,
			equity TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS equity_point_run_t ON equity_point(run_id, t);
	`)
	return err
}

// SaveRun archives one run's fill log and equity series under label,
// returning the new run's ID. The whole save happens in a single
// transaction: a crash mid-write leaves no partial run row visible to
// LoadRun.
func (s *Store) SaveRun(label string, fills []btevent.Fill, equity []EquityPoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO run (label) VALUES (?)`, label)
	if err != nil {
		return 0, fmt.Errorf("store: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: run id: %w", err)
	}

	fillStmt, err := tx.Prepare(`
		INSERT INTO fill (run_id, t, instrument, venue, order_id, side, qty, price, is_maker, flag, fee_rate, cash_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare fill insert: %w", err)
	}
	defer fillStmt.Close()
	for _, f := range fills {
		if _, err := fillStmt.Exec(runID, f.T, string(f.Instrument), f.Venue, f.OrderID, string(f.Side),
			f.Qty.String(), f.Price.String(), boolToInt(f.IsMaker), string(f.Flag), f.FeeRate.String(), f.CashCost.String()); err != nil {
			return 0, fmt.Errorf("store: insert fill: %w", err)
		}
	}

	eqStmt, err := tx.Prepare(`INSERT INTO equity_point (run_id, t, equity) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare equity insert: %w", err)
	}
	defer eqStmt.Close()
	for _, pt := range equity {
		if _, err := eqStmt.Exec(runID, pt.T, pt.Equity); err != nil {
			return 0, fmt.Errorf("store: insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return runID, nil
}

// LoadRun returns the fill log and equity series archived for runID, in
// chronological (t-ascending) order.
func (s *Store) LoadRun(runID int64) ([]btevent.Fill, []EquityPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fills, err := s.loadFills(runID)
	if err != nil {
		return nil, nil, err
	}
	equity, err := s.loadEquity(runID)
	if err != nil {
		return nil, nil, err
	}
	return fills, equity, nil
}

func (s *Store) loadFills(runID int64) ([]btevent.Fill, error) {
	rows, err := s.db.Query(`
		SELECT t, instrument, venue, order_id, side, qty, price, is_maker, flag, fee_rate, cash_cost
		FROM fill WHERE run_id = ? ORDER BY t ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query fills: %w", err)
	}
	defer rows.Close()

	var out []btevent.Fill
	for rows.Next() {
		var f btevent.Fill
		var inst, side, flag, qty, price, feeRate, cashCost string
		var isMaker int
		if err := rows.Scan(&f.T, &inst, &f.Venue, &f.OrderID, &side, &qty, &price, &isMaker, &flag, &feeRate, &cashCost); err != nil {
			return nil, fmt.Errorf("store: scan fill: %w", err)
		}
		f.Instrument = btevent.Instrument(inst)
		f.Side = btevent.Side(side)
		f.Flag = btevent.FillFlag(flag)
		f.IsMaker = isMaker != 0
		if err := decodeDecimals(&f, qty, price, feeRate, cashCost); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) loadEquity(runID int64) ([]EquityPoint, error) {
	rows, err := s.db.Query(`SELECT t, equity FROM equity_point WHERE run_id = ? ORDER BY t ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query equity: %w", err)
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var pt EquityPoint
		if err := rows.Scan(&pt.T, &pt.Equity); err != nil {
			return nil, fmt.Errorf("store: scan equity point: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// decodeDecimals parses the four text-stored decimal columns back onto f.
// Stored as decimal.Decimal.String() rather than REAL to round-trip fee and
// cash-cost values without float rounding.
func decodeDecimals(f *btevent.Fill, qty, price, feeRate, cashCost string) error {
	var err error
	if f.Qty, err = decimal.NewFromString(qty); err != nil {
		return fmt.Errorf("store: decode qty: %w", err)
	}
	if f.Price, err = decimal.NewFromString(price); err != nil {
		return fmt.Errorf("store: decode price: %w", err)
	}
	if f.FeeRate, err = decimal.NewFromString(feeRate); err != nil {
		return fmt.Errorf("store: decode fee_rate: %w", err)
	}
	if f.CashCost, err = decimal.NewFromString(cashCost); err != nil {
		return fmt.Errorf("store: decode cash_cost: %w", err)
	}
	return nil
}
