package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// DefaultForwarder is the constant-flow forwarder deployed at the same
// address on every supported network.
const DefaultForwarder = "0xcfA132E353cB4E398080B9700609bb008eceB125"

// RatesConfig holds configuration for the rates command.
type RatesConfig struct {
	RPCURL       string
	Forwarder    common.Address
	Pool         common.Address
	Tokens       []common.Address
	Accounts     []common.Address
	Block        uint64
	Decimals     map[common.Address]uint8
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadRates merges config file, environment variables, and flags into RatesConfig.
func LoadRates(cfgFile string, flags *pflag.FlagSet) (RatesConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"forwarder":     DefaultForwarder,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return RatesConfig{}, err
	}

	cfg := RatesConfig{
		RPCURL:       v.GetString("rpc"),
		Block:        v.GetUint64("block"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		Decimals:     make(map[common.Address]uint8),
	}
	if cfg.RPCURL == "" {
		return RatesConfig{}, fmt.Errorf("rpc url is required: %w", ErrInvalid)
	}
	if cfg.Forwarder, err = parseAddressKey(v, "forwarder"); err != nil {
		return RatesConfig{}, err
	}
	if cfg.Pool, err = parseAddressKey(v, "pool"); err != nil {
		return RatesConfig{}, err
	}
	if cfg.Tokens, err = ParseAddresses(getStringSlice(v, "token")); err != nil {
		return RatesConfig{}, err
	}
	if len(cfg.Tokens) == 0 {
		return RatesConfig{}, fmt.Errorf("at least one token is required: %w", ErrInvalid)
	}
	if cfg.Accounts, err = ParseAddresses(getStringSlice(v, "account")); err != nil {
		return RatesConfig{}, err
	}

	for raw, value := range getStringMap(v, "token-decimals") {
		token, err := ParseAddress("token-decimals", raw)
		if err != nil {
			return RatesConfig{}, err
		}
		d, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return RatesConfig{}, fmt.Errorf("token-decimals %s=%s: %w", raw, value, ErrInvalid)
		}
		cfg.Decimals[token] = uint8(d)
	}
	return cfg, nil
}
