package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sink kinds accepted by the replay and serve commands.
const (
	SinkJsonl    = "jsonl"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	Pool          PoolConfig
	In            string
	Sink          string
	Out           string
	PGDSN         string
	SQLitePath    string
	Report        string
	SnapshotEvery uint32
	Positions     bool
	BatchSize     int
	LogLevel      string
}

// ServeConfig is a replay followed by the HTTP query surface.
type ServeConfig struct {
	Replay ReplayConfig
	Listen string
}

func replayDefaults() map[string]interface{} {
	return map[string]interface{}{
		"fee":            "0",
		"sink":           SinkJsonl,
		"out":            "./data",
		"sqlite-path":    "./data/flowswap.db",
		"report":         "./data/replay_report.json",
		"snapshot-every": 0,
		"positions":      false,
		"batch-size":     500,
		"log-level":      "info",
	}
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, replayDefaults())
	if err != nil {
		return ReplayConfig{}, err
	}
	return loadReplay(v)
}

func loadReplay(v *viper.Viper) (ReplayConfig, error) {
	pool, err := loadPool(v)
	if err != nil {
		return ReplayConfig{}, err
	}

	every := v.GetInt64("snapshot-every")
	if every < 0 || every > math.MaxUint32 {
		return ReplayConfig{}, fmt.Errorf("snapshot-every %d out of range: %w", every, ErrInvalid)
	}

	cfg := ReplayConfig{
		Pool:          pool,
		In:            v.GetString("in"),
		Sink:          strings.ToLower(strings.TrimSpace(v.GetString("sink"))),
		Out:           v.GetString("out"),
		PGDSN:         v.GetString("pg-dsn"),
		SQLitePath:    v.GetString("sqlite-path"),
		Report:        v.GetString("report"),
		SnapshotEvery: uint32(every),
		Positions:     v.GetBool("positions"),
		BatchSize:     v.GetInt("batch-size"),
		LogLevel:      v.GetString("log-level"),
	}
	if err := cfg.validate(); err != nil {
		return ReplayConfig{}, err
	}
	return cfg, nil
}

func (c ReplayConfig) validate() error {
	if strings.TrimSpace(c.In) == "" {
		return fmt.Errorf("in is required: %w", ErrInvalid)
	}
	switch c.Sink {
	case SinkJsonl:
		if c.Out == "" {
			return fmt.Errorf("out is required for the jsonl sink: %w", ErrInvalid)
		}
	case SinkPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres sink: %w", ErrInvalid)
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the sqlite sink: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown sink %q: %w", c.Sink, ErrInvalid)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be positive: %w", ErrInvalid)
	}
	return nil
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	defaults := replayDefaults()
	defaults["listen"] = ":8080"
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ServeConfig{}, err
	}
	replay, err := loadReplay(v)
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{Replay: replay, Listen: v.GetString("listen")}, nil
}
