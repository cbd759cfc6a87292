package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"flowSwap/internal/fixedpoint"
	"flowSwap/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. FLOWSWAP_POOL_FEE.
const EnvPrefix = "FLOWSWAP"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// PoolConfig identifies one pool and its host.
type PoolConfig struct {
	Pool        common.Address
	Host        common.Address
	Initializer common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         *uint256.Int
}

// newViper layers defaults, environment, flags and an optional config file.
// Without cfgFile a ./config.* file is read if present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadPool(v *viper.Viper) (PoolConfig, error) {
	var (
		cfg PoolConfig
		err error
	)
	if cfg.Pool, err = parseAddressKey(v, "pool"); err != nil {
		return cfg, err
	}
	if cfg.Host, err = parseAddressKey(v, "host"); err != nil {
		return cfg, err
	}
	if cfg.Token0, err = parseAddressKey(v, "token0"); err != nil {
		return cfg, err
	}
	if cfg.Token1, err = parseAddressKey(v, "token1"); err != nil {
		return cfg, err
	}
	if cfg.Token0 == cfg.Token1 {
		return cfg, fmt.Errorf("token0 and token1 are both %s: %w", cfg.Token0.Hex(), ErrInvalid)
	}
	if raw := strings.TrimSpace(v.GetString("initializer")); raw != "" {
		if cfg.Initializer, err = parseAddressKey(v, "initializer"); err != nil {
			return cfg, err
		}
	} else {
		cfg.Initializer = cfg.Host
	}
	if cfg.Fee, err = ParseFee(v.GetString("fee")); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseAddressKey reads an address setting. YAML and TOML decode an unquoted
// 0x literal as a number, which would otherwise be reformatted as decimal.
func parseAddressKey(v *viper.Viper, key string) (common.Address, error) {
	switch raw := v.Get(key).(type) {
	case nil, string:
	default:
		return common.Address{}, fmt.Errorf("%s must be a quoted hex string, got %T: %w", key, raw, ErrInvalid)
	}
	return ParseAddress(key, v.GetString(key))
}

// ParseAddress parses a required hex address.
func ParseAddress(name, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("%s is required: %w", name, ErrInvalid)
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address %q: %w", name, input, ErrInvalid)
	}
	return common.HexToAddress(input), nil
}

// ParseAddresses converts string addresses into common.Address, skipping blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address %s: %w", input, ErrInvalid)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseFee converts a decimal fraction in [0, 1] into a Q128.128 fee.
func ParseFee(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	raw, err := model.ParseFixed(input)
	if err != nil {
		return nil, fmt.Errorf("parse fee %q: %v: %w", input, err, ErrInvalid)
	}
	if raw.Sign() < 0 {
		return nil, fmt.Errorf("fee %s is negative: %w", input, ErrInvalid)
	}
	fee, overflow := uint256.FromBig(raw)
	if overflow || fee.Gt(fixedpoint.One()) {
		return nil, fmt.Errorf("fee %s above 1: %w", input, ErrInvalid)
	}
	return fee, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	for _, pair := range strings.Split(input, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
