package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "flowswap",
		Short:        "Streaming-liquidity pool replay and query tool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded stream events through a pool",
		RunE:  runReplay,
	}
	addPoolFlags(replayCmd)
	root.AddCommand(replayCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Replay events, then serve pool queries over HTTP",
		RunE:  runServe,
	}
	addPoolFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute counter-flows for a change in one account's streams",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("pool-in0", "0", "pool inbound rate of token0")
	quoteCmd.Flags().String("pool-in1", "0", "pool inbound rate of token1")
	quoteCmd.Flags().String("prev-in0", "0", "account's previous token0 rate")
	quoteCmd.Flags().String("prev-in1", "0", "account's previous token1 rate")
	quoteCmd.Flags().String("new-in0", "0", "account's new token0 rate")
	quoteCmd.Flags().String("new-in1", "0", "account's new token1 rate")
	quoteCmd.Flags().String("fee", "0", "pool fee fraction in [0, 1]")
	root.AddCommand(quoteCmd)

	ratesCmd := &cobra.Command{
		Use:   "rates",
		Short: "Read live pool flow rates from a constant-flow forwarder",
		RunE:  runRates,
	}
	ratesCmd.Flags().String("rpc", "", "RPC URL")
	ratesCmd.Flags().String("forwarder", "", "constant-flow forwarder address")
	ratesCmd.Flags().String("pool", "", "pool address")
	ratesCmd.Flags().StringSlice("token", nil, "super token addresses (comma-separated)")
	ratesCmd.Flags().StringSlice("account", nil, "accounts to read pool flows for (comma-separated)")
	ratesCmd.Flags().StringSlice("token-decimals", nil, "decimals overrides as token=decimals (comma-separated)")
	ratesCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	ratesCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	ratesCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	ratesCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(ratesCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("in", "", "input flow events JSONL")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("host", "", "streaming host address")
	cmd.Flags().String("initializer", "", "address allowed to initialize the pool, defaults to host")
	cmd.Flags().String("token0", "", "token0 address")
	cmd.Flags().String("token1", "", "token1 address")
	cmd.Flags().String("fee", "0", "pool fee fraction in [0, 1]")
	cmd.Flags().String("sink", "jsonl", "output sink (jsonl, postgres, sqlite)")
	cmd.Flags().String("out", "./data", "output directory for the jsonl sink")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("sqlite-path", "./data/flowswap.db", "SQLite database path")
	cmd.Flags().String("report", "./data/replay_report.json", "replay summary path")
	cmd.Flags().Uint32("snapshot-every", 0, "minimum seconds between snapshots, 0 snapshots every timestamp")
	cmd.Flags().Bool("positions", false, "write positions with every snapshot")
	cmd.Flags().Int("batch-size", 500, "batch size for sink writes")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
