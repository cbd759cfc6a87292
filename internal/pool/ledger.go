package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flowSwap/internal/fixedpoint"
)

// UpdateFeesAndRewards snapshots the fee accumulators at ts for the user and
// the pool-self row, then replaces the user's fee and liquidity contributions
// in the aggregate. It reads pre-update inbound magnitudes, so it must run
// before Rebalance for the same event, and Rebalance must follow it.
func (p *Pool) UpdateFeesAndRewards(ts uint32, who common.Address, feesFlow, liquidityFlow [2]*big.Int) error {
	user, err := p.userView(who)
	if err != nil {
		return err
	}
	self := p.selfView()

	cum := p.advanceFees(ts)
	user.snapshotFees(cum)
	self.snapshotFees(cum)

	for s := 0; s < 2; s++ {
		relFees := new(big.Int).Sub(feesFlow[s], user.entry.FeesFlow[s])
		p.state.FeesFlow[s].Add(p.state.FeesFlow[s], relFees)
		user.entry.FeesFlow[s].Set(feesFlow[s])

		relLiquidity := new(big.Int).Sub(liquidityFlow[s], user.entry.LiquidityFlow[s])
		p.state.LiquidityFlow[s].Add(p.state.LiquidityFlow[s], relLiquidity)
		user.entry.LiquidityFlow[s].Set(liquidityFlow[s])

		// the pool owes out what users are owed
		self.entry.FeesFlow[s].Neg(p.state.FeesFlow[s])
		self.entry.LiquidityFlow[s].Neg(p.state.LiquidityFlow[s])
	}
	return nil
}

// Rebalance advances the price accumulators over the pre-change inbound
// magnitudes, applies the user's flow deltas (outbound mirrored onto the
// pool-self row) and stamps ts. An inbound delta that would drive an
// aggregate magnitude below zero fails with fixedpoint.ErrUnderflow before
// anything is written.
func (p *Pool) Rebalance(ts uint32, who common.Address, deltaIn, deltaOut [2]*big.Int) error {
	var nextIn [2]*uint256.Int
	for s := 0; s < 2; s++ {
		v, err := fixedpoint.SaturatingSignedAdd(p.state.FlowIn[s], deltaIn[s])
		if err != nil {
			return fmt.Errorf("rebalance %s inflow: %w", Side(s), err)
		}
		nextIn[s] = v
	}
	user, err := p.userView(who)
	if err != nil {
		return err
	}
	self := p.selfView()

	cum := p.advancePrice(ts)
	for s := Token0; s <= Token1; s++ {
		if deltaOut[s].Sign() == 0 {
			continue
		}
		user.snapshotPrice(s, cum[s])
		self.snapshotPrice(s, cum[s])
	}

	user.applyFlows(deltaIn, deltaOut)
	self.applyFlows(
		[2]*big.Int{new(big.Int), new(big.Int)},
		[2]*big.Int{new(big.Int).Neg(deltaOut[0]), new(big.Int).Neg(deltaOut[1])},
	)

	p.state.FlowIn = nextIn
	p.state.BlockTimestampLast = ts
	return nil
}

// ResetPriceBaselines moves the user's price baselines to the stored
// accumulators, after the custodian settled the user's balance.
func (p *Pool) ResetPriceBaselines(who common.Address) error {
	user, err := p.userView(who)
	if err != nil {
		return err
	}
	for s := Token0; s <= Token1; s++ {
		user.snapshotPrice(s, p.state.PriceCumulativeLast[s])
	}
	return nil
}

// reward is liquidityFlow * (feesNow - baseline) / 2^128, sign-extended.
// Accumulators wrap, so the delta is taken modulo 2^256.
func (p *Pool) reward(s Side, v view, ts uint32) *big.Int {
	now := p.feesCumulativeAt(s, ts)
	delta := new(uint256.Int).Sub(now, v.entry.FeesCumulative[s])
	r := new(big.Int).Mul(v.entry.LiquidityFlow[s], delta.ToBig())
	return r.Rsh(r, fixedpoint.Resolution)
}
