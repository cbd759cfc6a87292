package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowSwap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_address TEXT PRIMARY KEY,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee NUMERIC NOT NULL,
	host TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_address TEXT NOT NULL,
	ts BIGINT NOT NULL,
	flow_in0 NUMERIC NOT NULL,
	flow_in1 NUMERIC NOT NULL,
	price0_cumulative NUMERIC NOT NULL,
	price1_cumulative NUMERIC NOT NULL,
	fees0_cumulative NUMERIC NOT NULL,
	fees1_cumulative NUMERIC NOT NULL,
	fees_flow0 NUMERIC NOT NULL,
	fees_flow1 NUMERIC NOT NULL,
	liquidity_flow0 NUMERIC NOT NULL,
	liquidity_flow1 NUMERIC NOT NULL,
	participants INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_address, ts)
);
CREATE TABLE IF NOT EXISTS positions (
	pool_address TEXT NOT NULL,
	account TEXT NOT NULL,
	ts BIGINT NOT NULL,
	flow_in0 NUMERIC NOT NULL,
	flow_in1 NUMERIC NOT NULL,
	flow_out0 NUMERIC NOT NULL,
	flow_out1 NUMERIC NOT NULL,
	liquidity_flow0 NUMERIC NOT NULL,
	liquidity_flow1 NUMERIC NOT NULL,
	reward0 NUMERIC NOT NULL,
	reward1 NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_address, account, ts)
);
CREATE TABLE IF NOT EXISTS rejected_events (
	line INTEGER PRIMARY KEY,
	ts BIGINT NOT NULL,
	kind TEXT NOT NULL,
	token TEXT NOT NULL,
	sender TEXT NOT NULL,
	error TEXT NOT NULL
);
`

// Store provides Postgres persistence for replay output.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// PutPoolMeta inserts or updates pool metadata.
func (s *Store) PutPoolMeta(ctx context.Context, meta model.PoolMeta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (pool_address, token0, token1, fee, host, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (pool_address)
		DO UPDATE SET
			token0 = EXCLUDED.token0,
			token1 = EXCLUDED.token1,
			fee = EXCLUDED.fee,
			host = EXCLUDED.host,
			updated_at = now()
	`, meta.Address, meta.Token0, meta.Token1, meta.Fee, meta.Host)
	return err
}

// PutSnapshots inserts or updates pool snapshots.
func (s *Store) PutSnapshots(ctx context.Context, snaps []model.PoolSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				pool_address, ts, flow_in0, flow_in1, price0_cumulative, price1_cumulative,
				fees0_cumulative, fees1_cumulative, fees_flow0, fees_flow1,
				liquidity_flow0, liquidity_flow1, participants, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
			ON CONFLICT (pool_address, ts)
			DO UPDATE SET
				flow_in0 = EXCLUDED.flow_in0,
				flow_in1 = EXCLUDED.flow_in1,
				price0_cumulative = EXCLUDED.price0_cumulative,
				price1_cumulative = EXCLUDED.price1_cumulative,
				fees0_cumulative = EXCLUDED.fees0_cumulative,
				fees1_cumulative = EXCLUDED.fees1_cumulative,
				fees_flow0 = EXCLUDED.fees_flow0,
				fees_flow1 = EXCLUDED.fees_flow1,
				liquidity_flow0 = EXCLUDED.liquidity_flow0,
				liquidity_flow1 = EXCLUDED.liquidity_flow1,
				participants = EXCLUDED.participants,
				updated_at = now()
		`,
			snap.Pool,
			int64(snap.Timestamp),
			snap.FlowIn0,
			snap.FlowIn1,
			snap.Price0Cumulative,
			snap.Price1Cumulative,
			snap.Fees0Cumulative,
			snap.Fees1Cumulative,
			snap.FeesFlow0,
			snap.FeesFlow1,
			snap.LiquidityFlow0,
			snap.LiquidityFlow1,
			snap.Participants,
		)
	}
	return s.sendBatch(ctx, batch, len(snaps))
}

// PutPositions inserts or updates participant positions.
func (s *Store) PutPositions(ctx context.Context, positions []model.PositionSnapshot) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO positions (
				pool_address, account, ts, flow_in0, flow_in1, flow_out0, flow_out1,
				liquidity_flow0, liquidity_flow1, reward0, reward1, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (pool_address, account, ts)
			DO UPDATE SET
				flow_in0 = EXCLUDED.flow_in0,
				flow_in1 = EXCLUDED.flow_in1,
				flow_out0 = EXCLUDED.flow_out0,
				flow_out1 = EXCLUDED.flow_out1,
				liquidity_flow0 = EXCLUDED.liquidity_flow0,
				liquidity_flow1 = EXCLUDED.liquidity_flow1,
				reward0 = EXCLUDED.reward0,
				reward1 = EXCLUDED.reward1,
				updated_at = now()
		`,
			p.Pool,
			p.Account,
			int64(p.Timestamp),
			p.FlowIn0,
			p.FlowIn1,
			p.FlowOut0,
			p.FlowOut1,
			p.LiquidityFlow0,
			p.LiquidityFlow1,
			p.Reward0,
			p.Reward1,
		)
	}
	return s.sendBatch(ctx, batch, len(positions))
}

// PutEventErrors records rejected replay events.
func (s *Store) PutEventErrors(ctx context.Context, rejected []model.EventError) error {
	if len(rejected) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range rejected {
		batch.Queue(`
			INSERT INTO rejected_events (line, ts, kind, token, sender, error)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (line) DO UPDATE SET
				ts = EXCLUDED.ts,
				kind = EXCLUDED.kind,
				token = EXCLUDED.token,
				sender = EXCLUDED.sender,
				error = EXCLUDED.error
		`, e.Line, int64(e.Timestamp), string(e.Kind), e.Token, e.Sender, e.Error)
	}
	return s.sendBatch(ctx, batch, len(rejected))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
