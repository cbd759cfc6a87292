package main

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"flowSwap/internal/config"
	"flowSwap/internal/engine"
	"flowSwap/internal/model"
)

type quoteOutput struct {
	FeePercentage0 string `json:"fee_percentage0"`
	FeePercentage1 string `json:"fee_percentage1"`
	FlowOut0       string `json:"flow_out0"`
	FlowOut1       string `json:"flow_out1"`
	LiquidityFlow0 string `json:"liquidity_flow0"`
	LiquidityFlow1 string `json:"liquidity_flow1"`
	FeesFlow0      string `json:"fees_flow0"`
	FeesFlow1      string `json:"fees_flow1"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	rate := func(name string) (*big.Int, error) {
		raw, _ := flags.GetString(name)
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid %s: %q", name, raw)
		}
		return v, nil
	}

	var in engine.Inputs
	for s, suffix := range []string{"0", "1"} {
		poolIn, err := rate("pool-in" + suffix)
		if err != nil {
			return err
		}
		if poolIn.Sign() < 0 {
			return fmt.Errorf("pool-in%s must not be negative", suffix)
		}
		var overflow bool
		if in.PoolFlowIn[s], overflow = uint256.FromBig(poolIn); overflow {
			return fmt.Errorf("pool-in%s overflows 256 bits", suffix)
		}
		if in.PrevFlowIn[s], err = rate("prev-in" + suffix); err != nil {
			return err
		}
		if in.NewFlowIn[s], err = rate("new-in" + suffix); err != nil {
			return err
		}
	}

	rawFee, _ := flags.GetString("fee")
	fee, err := config.ParseFee(rawFee)
	if err != nil {
		return err
	}

	out, err := engine.ComputeOutflows(in, fee)
	if err != nil {
		return err
	}

	data, err := sonnet.Marshal(quoteOutput{
		FeePercentage0: model.FormatFixed(out.FeePercentage[0].ToBig()),
		FeePercentage1: model.FormatFixed(out.FeePercentage[1].ToBig()),
		FlowOut0:       out.FlowOut[0].String(),
		FlowOut1:       out.FlowOut[1].String(),
		LiquidityFlow0: out.LiquidityFlow[0].String(),
		LiquidityFlow1: out.LiquidityFlow[1].String(),
		FeesFlow0:      out.FeesFlow[0].String(),
		FeesFlow1:      out.FeesFlow[1].String(),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
