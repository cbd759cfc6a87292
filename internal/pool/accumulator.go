package pool

import (
	"github.com/holiman/uint256"

	"flowSwap/internal/fixedpoint"
)

// elapsedSince uses wrapping 32-bit subtraction, so a timestamp that rolled
// over still yields the forward distance.
func (p *Pool) elapsedSince(ts uint32) uint32 {
	return ts - p.state.BlockTimestampLast
}

// priceCumulativesAt projects both price accumulators to ts without mutating
// state. Nothing accrues unless both sides have inflow.
func (p *Pool) priceCumulativesAt(ts uint32) [2]*uint256.Int {
	out := [2]*uint256.Int{
		new(uint256.Int).Set(p.state.PriceCumulativeLast[Token0]),
		new(uint256.Int).Set(p.state.PriceCumulativeLast[Token1]),
	}
	elapsed := p.elapsedSince(ts)
	in0, in1 := p.state.FlowIn[Token0], p.state.FlowIn[Token1]
	if elapsed == 0 || in0.IsZero() || in1.IsZero() {
		return out
	}

	dt := uint256.NewInt(uint64(elapsed))
	// divisors are nonzero here
	ratio0, _ := fixedpoint.Div(fixedpoint.Encode(in1), in0)
	ratio1, _ := fixedpoint.Div(fixedpoint.Encode(in0), in1)
	out[Token0].Add(out[Token0], new(uint256.Int).Mul(ratio0, dt))
	out[Token1].Add(out[Token1], new(uint256.Int).Mul(ratio1, dt))
	return out
}

// feesCumulativeAt projects one fee accumulator to ts. It grows by the
// pool's fee-to-liquidity ratio on side s, converted at the pool price.
func (p *Pool) feesCumulativeAt(s Side, ts uint32) *uint256.Int {
	out := new(uint256.Int).Set(p.state.FeesCumulativeLast[s])
	elapsed := p.elapsedSince(ts)
	liquidity := p.state.LiquidityFlow[s]
	fees := p.state.FeesFlow[s]
	inS, inO := p.state.FlowIn[s], p.state.FlowIn[s.Other()]
	if elapsed == 0 || liquidity.Sign() <= 0 || fees.Sign() <= 0 || inS.IsZero() || inO.IsZero() {
		return out
	}

	// aggregates sum many int96 rates, so they are not range-checked as rates
	feesMag, overflow := uint256.FromBig(fees)
	if overflow {
		return out
	}
	liqMag, overflow := uint256.FromBig(liquidity)
	if overflow {
		return out
	}
	perLiquidity, err := fixedpoint.MulDiv(feesMag, fixedpoint.One(), liqMag)
	if err != nil {
		return out
	}
	price, err := fixedpoint.MulDiv(inO, fixedpoint.One(), inS)
	if err != nil {
		return out
	}

	inc := fixedpoint.Mul(perLiquidity, price)
	inc.Mul(inc, uint256.NewInt(uint64(elapsed)))
	return out.Add(out, inc)
}

func (p *Pool) feesCumulativesAt(ts uint32) [2]*uint256.Int {
	return [2]*uint256.Int{p.feesCumulativeAt(Token0, ts), p.feesCumulativeAt(Token1, ts)}
}

// advancePrice stores the projected price accumulators. It does not stamp the
// timestamp; Rebalance does that once both accumulators are settled.
func (p *Pool) advancePrice(ts uint32) [2]*uint256.Int {
	cum := p.priceCumulativesAt(ts)
	for s := 0; s < 2; s++ {
		p.state.PriceCumulativeLast[s].Set(cum[s])
	}
	return cum
}

func (p *Pool) advanceFees(ts uint32) [2]*uint256.Int {
	cum := p.feesCumulativesAt(ts)
	for s := 0; s < 2; s++ {
		p.state.FeesCumulativeLast[s].Set(cum[s])
	}
	return cum
}
