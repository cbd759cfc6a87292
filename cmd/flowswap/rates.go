package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"flowSwap/internal/chain"
	"flowSwap/internal/config"
	"flowSwap/internal/model"
)

type tokenRates struct {
	Token       string        `json:"token"`
	Symbol      string        `json:"symbol,omitempty"`
	Block       uint64        `json:"block"`
	BlockTime   uint64        `json:"block_time"`
	PoolBalance string        `json:"pool_balance"`
	PoolNetRate string        `json:"pool_net_rate"`
	LastUpdated uint64        `json:"last_updated"`
	Accounts    []accountRate `json:"accounts,omitempty"`
}

type accountRate struct {
	Account  string `json:"account"`
	Inbound  string `json:"inbound"`
	Outbound string `json:"outbound"`
}

func runRates(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRates(cfgFile, cmd.Flags())
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

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	retry := chain.Retry{Retries: cfg.MaxRetries, Base: cfg.RetryBackoff, Logger: logger}

	block := cfg.Block
	if block == 0 {
		if err := retry.Do(ctx, "latest block", func(ctx context.Context) error {
			var err error
			block, err = client.LatestBlockNumber(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}
	blockNum := new(big.Int).SetUint64(block)

	var blockTime uint64
	if err := retry.Do(ctx, "block timestamp", func(ctx context.Context) error {
		var err error
		blockTime, err = client.BlockTimestamp(ctx, block)
		return err
	}); err != nil {
		return fmt.Errorf("block %d timestamp: %w", block, err)
	}

	logger.Info("rates start",
		zap.String("forwarder", cfg.Forwarder.Hex()),
		zap.String("pool", cfg.Pool.Hex()),
		zap.Int("tokens", len(cfg.Tokens)),
		zap.Int("accounts", len(cfg.Accounts)),
		zap.Uint64("block", block),
	)

	cache := chain.NewTokenCache()
	for token, decimals := range cfg.Decimals {
		cache.Set(token, chain.TokenMeta{Address: token.Hex(), Decimals: decimals})
	}

	out := cmd.OutOrStdout()
	for _, token := range cfg.Tokens {
		meta := client.TokenMeta(ctx, cache, token, logger)
		decimals := int32(meta.Decimals)

		var info chain.AccountFlowInfo
		if err := retry.Do(ctx, "pool flow info", func(ctx context.Context) error {
			var err error
			info, err = client.AccountFlowInfo(ctx, cfg.Forwarder, token, cfg.Pool, blockNum)
			return err
		}); err != nil {
			return fmt.Errorf("pool flow info for %s: %w", token.Hex(), err)
		}

		var balance *big.Int
		if err := retry.Do(ctx, "pool balance", func(ctx context.Context) error {
			var err error
			balance, err = client.BalanceOf(ctx, token, cfg.Pool, blockNum)
			return err
		}); err != nil {
			return fmt.Errorf("pool balance for %s: %w", token.Hex(), err)
		}

		row := tokenRates{
			Token:       token.Hex(),
			Symbol:      meta.Symbol,
			Block:       block,
			BlockTime:   blockTime,
			PoolBalance: model.FormatAmount(balance, decimals),
			PoolNetRate: model.FormatAmount(info.NetRate, decimals),
			LastUpdated: info.LastUpdated,
		}
		for _, account := range cfg.Accounts {
			inbound, err := readRate(ctx, client, retry, cfg.Forwarder, token, account, cfg.Pool, blockNum)
			if err != nil {
				return err
			}
			outbound, err := readRate(ctx, client, retry, cfg.Forwarder, token, cfg.Pool, account, blockNum)
			if err != nil {
				return err
			}
			row.Accounts = append(row.Accounts, accountRate{
				Account:  account.Hex(),
				Inbound:  model.FormatAmount(inbound, decimals),
				Outbound: model.FormatAmount(outbound, decimals),
			})
		}

		data, err := sonnet.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, string(data)); err != nil {
			return err
		}
	}
	return nil
}

func readRate(ctx context.Context, client *chain.Client, retry chain.Retry, forwarder, token, sender, receiver common.Address, block *big.Int) (*big.Int, error) {
	var rate *big.Int
	err := retry.Do(ctx, "flow rate", func(ctx context.Context) error {
		var err error
		rate, err = client.FlowRate(ctx, forwarder, token, sender, receiver, block)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("flow rate %s -> %s on %s: %w", sender.Hex(), receiver.Hex(), token.Hex(), err)
	}
	return rate, nil
}
