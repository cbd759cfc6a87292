// Package engine computes the paired fee split and counter-flow rates for a
// change in one participant's inbound streams.
package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"flowSwap/internal/fixedpoint"
)

// ErrNegativeInflow is returned when a user inbound rate is negative.
var ErrNegativeInflow = errors.New("engine: negative inbound rate")

// ErrFeeAboveOne is returned for a pool fee above 1.0.
var ErrFeeAboveOne = errors.New("engine: pool fee above 1.0")

// Inputs carries the pool's current inbound magnitudes and one user's
// inbound rates before and after the change, for both tokens.
type Inputs struct {
	PoolFlowIn [2]*uint256.Int
	PrevFlowIn [2]*big.Int
	NewFlowIn  [2]*big.Int
}

// Outflows is the result of ComputeOutflows. Index 0 is token0.
type Outflows struct {
	ProjectedFlowIn [2]*uint256.Int
	FeePercentage   [2]*uint256.Int
	FlowOut         [2]*big.Int
	LiquidityFlow   [2]*big.Int
	FeesFlow        [2]*big.Int
}

// ValidateFee checks a Q128 pool fee lies in [0, 1].
func ValidateFee(poolFee *uint256.Int) error {
	if poolFee == nil {
		return fmt.Errorf("nil pool fee: %w", ErrFeeAboveOne)
	}
	if poolFee.Gt(fixedpoint.One()) {
		return ErrFeeAboveOne
	}
	return nil
}

// ComputeOutflows computes both tokens' fee percentages, outbound rates and
// liquidity flows in one pass; the fee on one side scales the payout on the
// other, so the two sides are never computed independently.
func ComputeOutflows(in Inputs, poolFee *uint256.Int) (Outflows, error) {
	if err := ValidateFee(poolFee); err != nil {
		return Outflows{}, err
	}

	var out Outflows
	var newIn [2]*uint256.Int
	for s := 0; s < 2; s++ {
		if in.NewFlowIn[s].Sign() < 0 || in.PrevFlowIn[s].Sign() < 0 {
			return Outflows{}, fmt.Errorf("token%d: %w", s, ErrNegativeInflow)
		}
		mag, err := fixedpoint.Magnitude(in.NewFlowIn[s])
		if err != nil {
			return Outflows{}, fmt.Errorf("token%d inflow: %w", s, err)
		}
		newIn[s] = mag

		delta := new(big.Int).Sub(in.NewFlowIn[s], in.PrevFlowIn[s])
		projected, err := fixedpoint.SaturatingSignedAdd(in.PoolFlowIn[s], delta)
		if err != nil {
			return Outflows{}, fmt.Errorf("project token%d inflow: %w", s, err)
		}
		out.ProjectedFlowIn[s] = projected
	}

	for s := 0; s < 2; s++ {
		o := 1 - s
		pct, err := FeePercentage(newIn[o], newIn[s], out.ProjectedFlowIn[o], out.ProjectedFlowIn[s])
		if err != nil {
			return Outflows{}, fmt.Errorf("token%d fee: %w", s, err)
		}
		out.FeePercentage[s] = pct
	}

	for s := 0; s < 2; s++ {
		o := 1 - s
		skim, err := fixedpoint.MulDiv(out.FeePercentage[s], poolFee, fixedpoint.One())
		if err != nil {
			return Outflows{}, err
		}
		multiplier := new(uint256.Int).Sub(fixedpoint.One(), skim)

		// token s paid in is converted to token o at the pool price.
		px, err := price(in.PoolFlowIn[s], in.PoolFlowIn[o], out.ProjectedFlowIn[s], out.ProjectedFlowIn[o])
		if err != nil {
			return Outflows{}, err
		}
		netPrice, err := fixedpoint.MulDiv(px, multiplier, fixedpoint.One())
		if err != nil {
			return Outflows{}, fmt.Errorf("token%d price: %w", o, err)
		}
		if out.FlowOut[o], err = scaleRate(netPrice, newIn[s]); err != nil {
			return Outflows{}, fmt.Errorf("token%d outflow: %w", o, err)
		}

		keep := new(uint256.Int).Sub(fixedpoint.One(), out.FeePercentage[s])
		if out.LiquidityFlow[s], err = scaleRate(keep, newIn[s]); err != nil {
			return Outflows{}, fmt.Errorf("token%d liquidity: %w", s, err)
		}
		if out.FeesFlow[s], err = scaleRate(skim, newIn[s]); err != nil {
			return Outflows{}, fmt.Errorf("token%d fees: %w", s, err)
		}
	}

	return out, nil
}

// FeePercentage measures how far the user's flow ratio A/B sits from the
// pool's. It saturates to 1.0 when either B side is zero.
func FeePercentage(flowA, flowB, poolFlowA, poolFlowB *uint256.Int) (*uint256.Int, error) {
	if flowB.IsZero() || poolFlowB.IsZero() {
		return fixedpoint.One(), nil
	}
	userRatio, err := fixedpoint.Div(fixedpoint.Encode(flowA), flowB)
	if err != nil {
		return nil, err
	}
	poolRatio, err := fixedpoint.Div(fixedpoint.Encode(poolFlowA), poolFlowB)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(userRatio, poolRatio)
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	if sum.IsZero() {
		return fixedpoint.One(), nil
	}
	return fixedpoint.MulDiv(fixedpoint.UnsignedDifference(userRatio, poolRatio), fixedpoint.One(), sum)
}

// price returns units of token o per unit of token s. The current pool
// magnitudes are used; the projected ones only while the pool has no
// two-sided ratio yet.
func price(currentS, currentO, projectedS, projectedO *uint256.Int) (*uint256.Int, error) {
	if !currentS.IsZero() && !currentO.IsZero() {
		return fixedpoint.Div(fixedpoint.Encode(currentO), currentS)
	}
	if projectedS.IsZero() {
		return new(uint256.Int), nil
	}
	return fixedpoint.Div(fixedpoint.Encode(projectedO), projectedS)
}

func scaleRate(factor, rate *uint256.Int) (*big.Int, error) {
	v, err := fixedpoint.MulDiv(factor, rate, fixedpoint.One())
	if err != nil {
		return nil, err
	}
	return fixedpoint.ToRate(v)
}
