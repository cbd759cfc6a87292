// Package sqlite persists replay output to a local SQLite file. Large
// numbers are stored as decimal text.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"flowSwap/internal/model"
)

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_address TEXT PRIMARY KEY,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee TEXT NOT NULL,
	host TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_address TEXT NOT NULL,
	ts INTEGER NOT NULL,
	flow_in0 TEXT NOT NULL,
	flow_in1 TEXT NOT NULL,
	price0_cumulative TEXT NOT NULL,
	price1_cumulative TEXT NOT NULL,
	fees0_cumulative TEXT NOT NULL,
	fees1_cumulative TEXT NOT NULL,
	fees_flow0 TEXT NOT NULL,
	fees_flow1 TEXT NOT NULL,
	liquidity_flow0 TEXT NOT NULL,
	liquidity_flow1 TEXT NOT NULL,
	participants INTEGER NOT NULL,
	PRIMARY KEY (pool_address, ts)
);
CREATE TABLE IF NOT EXISTS positions (
	pool_address TEXT NOT NULL,
	account TEXT NOT NULL,
	ts INTEGER NOT NULL,
	flow_in0 TEXT NOT NULL,
	flow_in1 TEXT NOT NULL,
	flow_out0 TEXT NOT NULL,
	flow_out1 TEXT NOT NULL,
	liquidity_flow0 TEXT NOT NULL,
	liquidity_flow1 TEXT NOT NULL,
	reward0 TEXT NOT NULL,
	reward1 TEXT NOT NULL,
	PRIMARY KEY (pool_address, account, ts)
);
CREATE TABLE IF NOT EXISTS rejected_events (
	line INTEGER PRIMARY KEY,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	token TEXT NOT NULL,
	sender TEXT NOT NULL,
	error TEXT NOT NULL
);
`

// Store writes replay output through database/sql.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutPoolMeta(ctx context.Context, meta model.PoolMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pools (pool_address, token0, token1, fee, host)
		VALUES (?, ?, ?, ?, ?)
	`, meta.Address, meta.Token0, meta.Token1, meta.Fee, meta.Host)
	if err != nil {
		return fmt.Errorf("put pool meta: %w", err)
	}
	return nil
}

func (s *Store) PutSnapshots(ctx context.Context, snaps []model.PoolSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT OR REPLACE INTO pool_snapshots (
			pool_address, ts, flow_in0, flow_in1, price0_cumulative, price1_cumulative,
			fees0_cumulative, fees1_cumulative, fees_flow0, fees_flow1,
			liquidity_flow0, liquidity_flow1, participants
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(snaps), func(stmt *sql.Stmt, i int) error {
		snap := snaps[i]
		_, err := stmt.ExecContext(ctx,
			snap.Pool, snap.Timestamp, snap.FlowIn0, snap.FlowIn1,
			snap.Price0Cumulative, snap.Price1Cumulative,
			snap.Fees0Cumulative, snap.Fees1Cumulative,
			snap.FeesFlow0, snap.FeesFlow1,
			snap.LiquidityFlow0, snap.LiquidityFlow1, snap.Participants,
		)
		return err
	})
}

func (s *Store) PutPositions(ctx context.Context, positions []model.PositionSnapshot) error {
	if len(positions) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT OR REPLACE INTO positions (
			pool_address, account, ts, flow_in0, flow_in1, flow_out0, flow_out1,
			liquidity_flow0, liquidity_flow1, reward0, reward1
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(positions), func(stmt *sql.Stmt, i int) error {
		p := positions[i]
		_, err := stmt.ExecContext(ctx,
			p.Pool, p.Account, p.Timestamp, p.FlowIn0, p.FlowIn1, p.FlowOut0, p.FlowOut1,
			p.LiquidityFlow0, p.LiquidityFlow1, p.Reward0, p.Reward1,
		)
		return err
	})
}

func (s *Store) PutEventErrors(ctx context.Context, rejected []model.EventError) error {
	if len(rejected) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT OR REPLACE INTO rejected_events (line, ts, kind, token, sender, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(rejected), func(stmt *sql.Stmt, i int) error {
		e := rejected[i]
		_, err := stmt.ExecContext(ctx, e.Line, e.Timestamp, string(e.Kind), e.Token, e.Sender, e.Error)
		return err
	})
}

// CountSnapshots returns how many snapshots are stored for pool.
func (s *Store) CountSnapshots(ctx context.Context, pool string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pool_snapshots WHERE pool_address = ?`, pool).Scan(&n)
	return n, err
}

// LatestSnapshot returns the most recent snapshot for pool.
func (s *Store) LatestSnapshot(ctx context.Context, pool string) (model.PoolSnapshot, error) {
	var snap model.PoolSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT pool_address, ts, flow_in0, flow_in1, price0_cumulative, price1_cumulative,
			fees0_cumulative, fees1_cumulative, fees_flow0, fees_flow1,
			liquidity_flow0, liquidity_flow1, participants
		FROM pool_snapshots WHERE pool_address = ? ORDER BY ts DESC LIMIT 1
	`, pool).Scan(
		&snap.Pool, &snap.Timestamp, &snap.FlowIn0, &snap.FlowIn1,
		&snap.Price0Cumulative, &snap.Price1Cumulative,
		&snap.Fees0Cumulative, &snap.Fees1Cumulative,
		&snap.FeesFlow0, &snap.FeesFlow1,
		&snap.LiquidityFlow0, &snap.LiquidityFlow1, &snap.Participants,
	)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) inTx(ctx context.Context, query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
