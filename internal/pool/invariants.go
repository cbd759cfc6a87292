package pool

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvariant reports a broken conservation property.
var ErrInvariant = errors.New("pool: invariant violated")

// CheckInvariants verifies that the aggregates equal the signed sums of the
// user rows and that the pool-self row mirrors them.
func (p *Pool) CheckInvariants() error {
	for s := Token0; s <= Token1; s++ {
		flowIn := new(big.Int)
		flowOut := new(big.Int)
		liquidity := new(big.Int)
		fees := new(big.Int)
		for _, e := range p.users {
			flowIn.Add(flowIn, e.FlowIn[s])
			flowOut.Add(flowOut, e.FlowOut[s])
			liquidity.Add(liquidity, e.LiquidityFlow[s])
			fees.Add(fees, e.FeesFlow[s])
		}

		if flowIn.Cmp(p.state.FlowIn[s].ToBig()) != 0 {
			return fmt.Errorf("%w: %s inflow %s != sum %s", ErrInvariant, s, p.state.FlowIn[s].ToBig(), flowIn)
		}
		if liquidity.Cmp(p.state.LiquidityFlow[s]) != 0 {
			return fmt.Errorf("%w: %s liquidity %s != sum %s", ErrInvariant, s, p.state.LiquidityFlow[s], liquidity)
		}
		if fees.Cmp(p.state.FeesFlow[s]) != 0 {
			return fmt.Errorf("%w: %s fees %s != sum %s", ErrInvariant, s, p.state.FeesFlow[s], fees)
		}
		if new(big.Int).Add(p.self.FlowOut[s], flowOut).Sign() != 0 {
			return fmt.Errorf("%w: %s self outflow %s does not mirror %s", ErrInvariant, s, p.self.FlowOut[s], flowOut)
		}
		if new(big.Int).Add(p.self.LiquidityFlow[s], liquidity).Sign() != 0 {
			return fmt.Errorf("%w: %s self liquidity %s does not mirror %s", ErrInvariant, s, p.self.LiquidityFlow[s], liquidity)
		}
		if !p.self.FeesCumulative[s].Eq(p.state.FeesCumulativeLast[s]) {
			return fmt.Errorf("%w: %s self fees cumulative is stale", ErrInvariant, s)
		}
	}
	return nil
}
