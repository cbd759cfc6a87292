package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowSwap/internal/config"
	"flowSwap/internal/replay"
	"flowSwap/internal/storage"
	"flowSwap/internal/storage/postgres"
	"flowSwap/internal/storage/sqlite"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = replayFile(ctx, cfg, logger)
	return err
}

// replayFile runs the configured replay and returns the runner holding the
// final pool state.
func replayFile(ctx context.Context, cfg config.ReplayConfig, logger *zap.Logger) (*replay.Runner, error) {
	sink, err := openSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	input, err := os.Open(cfg.In)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	runner, err := replay.NewRunner(replay.Config{
		Pool:          cfg.Pool.Pool,
		Host:          cfg.Pool.Host,
		Initializer:   cfg.Pool.Initializer,
		Token0:        cfg.Pool.Token0,
		Token1:        cfg.Pool.Token1,
		Fee:           cfg.Pool.Fee,
		SnapshotEvery: cfg.SnapshotEvery,
		Positions:     cfg.Positions,
		BatchSize:     cfg.BatchSize,
	}, sink, replay.NewReportStore(cfg.Report), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize pool: %w", err)
	}

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("pool", cfg.Pool.Pool.Hex()),
		zap.String("token0", cfg.Pool.Token0.Hex()),
		zap.String("token1", cfg.Pool.Token1.Hex()),
		zap.String("fee", cfg.Pool.Fee.ToBig().String()),
		zap.String("sink", cfg.Sink),
		zap.Uint32("snapshot_every", cfg.SnapshotEvery),
	)

	if _, err := runner.Run(ctx, input); err != nil {
		return nil, err
	}
	return runner, nil
}

func openSink(ctx context.Context, cfg config.ReplayConfig) (storage.Sink, error) {
	switch cfg.Sink {
	case config.SinkPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.SinkSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	default:
		return storage.NewJsonlSink(cfg.Out), nil
	}
}
