package engine

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"flowSwap/internal/fixedpoint"
)

func inputs(pool0, pool1 uint64, prev0, prev1, new0, new1 int64) Inputs {
	return Inputs{
		PoolFlowIn: [2]*uint256.Int{uint256.NewInt(pool0), uint256.NewInt(pool1)},
		PrevFlowIn: [2]*big.Int{big.NewInt(prev0), big.NewInt(prev1)},
		NewFlowIn:  [2]*big.Int{big.NewInt(new0), big.NewInt(new1)},
	}
}

func quarter() *uint256.Int {
	return new(uint256.Int).Rsh(fixedpoint.One(), 2)
}

func TestSwapAgainstPoolWithoutFee(t *testing.T) {
	out, err := ComputeOutflows(inputs(100, 200, 0, 0, 100, 0), new(uint256.Int))
	require.NoError(t, err)

	require.Equal(t, uint64(200), out.ProjectedFlowIn[0].Uint64())
	require.Equal(t, uint64(200), out.ProjectedFlowIn[1].Uint64())

	// a one-sided stream is a pure swap: full fee share, no liquidity.
	require.True(t, out.FeePercentage[0].Eq(fixedpoint.One()))
	require.True(t, out.FeePercentage[1].Eq(fixedpoint.One()))
	require.Equal(t, int64(200), out.FlowOut[1].Int64())
	require.Equal(t, int64(0), out.FlowOut[0].Int64())
	require.Equal(t, int64(0), out.LiquidityFlow[0].Int64())
	require.Equal(t, int64(0), out.FeesFlow[0].Int64())
}

func TestSwapAgainstPoolWithFee(t *testing.T) {
	out, err := ComputeOutflows(inputs(100, 200, 0, 0, 100, 0), quarter())
	require.NoError(t, err)

	require.Equal(t, int64(150), out.FlowOut[1].Int64())
	require.Equal(t, int64(25), out.FeesFlow[0].Int64())
	require.Equal(t, int64(0), out.LiquidityFlow[0].Int64())
}

func TestBalancedProviderPaysNoFee(t *testing.T) {
	out, err := ComputeOutflows(inputs(100, 200, 0, 0, 50, 100), quarter())
	require.NoError(t, err)

	require.True(t, out.FeePercentage[0].IsZero())
	require.True(t, out.FeePercentage[1].IsZero())
	require.Equal(t, int64(100), out.FlowOut[1].Int64())
	require.Equal(t, int64(50), out.FlowOut[0].Int64())
	require.Equal(t, int64(50), out.LiquidityFlow[0].Int64())
	require.Equal(t, int64(100), out.LiquidityFlow[1].Int64())
	require.Equal(t, int64(0), out.FeesFlow[0].Int64())
	require.Equal(t, int64(0), out.FeesFlow[1].Int64())
}

func TestFirstProviderUsesProjectedPrice(t *testing.T) {
	out, err := ComputeOutflows(inputs(0, 0, 0, 0, 10, 40), new(uint256.Int))
	require.NoError(t, err)

	require.Equal(t, int64(40), out.FlowOut[1].Int64())
	require.Equal(t, int64(10), out.FlowOut[0].Int64())
}

func TestOneSidedPoolUsesProjectedPrice(t *testing.T) {
	// pool has only token0 so far; the user's token1 completes the ratio.
	out, err := ComputeOutflows(inputs(10, 0, 10, 0, 10, 40), new(uint256.Int))
	require.NoError(t, err)

	require.True(t, out.FeePercentage[0].IsZero())
	require.True(t, out.FeePercentage[1].IsZero())
	require.Equal(t, int64(40), out.FlowOut[1].Int64())
	require.Equal(t, int64(10), out.FlowOut[0].Int64())
}

func TestTerminationProjectsRemoval(t *testing.T) {
	out, err := ComputeOutflows(inputs(150, 300, 50, 100, 0, 100), new(uint256.Int))
	require.NoError(t, err)

	require.Equal(t, uint64(100), out.ProjectedFlowIn[0].Uint64())
	require.Equal(t, uint64(300), out.ProjectedFlowIn[1].Uint64())
	require.Equal(t, int64(0), out.FlowOut[1].Int64())
}

func TestFeePercentageSaturates(t *testing.T) {
	zero := new(uint256.Int)
	ten := uint256.NewInt(10)

	for _, tc := range []struct {
		name                   string
		flowA, flowB, pA, pB *uint256.Int
	}{
		{"user denominator", ten, zero, ten, ten},
		{"pool denominator", ten, ten, ten, zero},
		{"zero ratios", zero, ten, zero, ten},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pct, err := FeePercentage(tc.flowA, tc.flowB, tc.pA, tc.pB)
			require.NoError(t, err)
			require.True(t, pct.Eq(fixedpoint.One()))
		})
	}
}

func TestFeePercentageSkew(t *testing.T) {
	// user ratio 1, pool ratio 3: |1-3|/(1+3) = 0.5
	pct, err := FeePercentage(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(30), uint256.NewInt(10))
	require.NoError(t, err)
	half := new(uint256.Int).Rsh(fixedpoint.One(), 1)
	require.True(t, pct.Eq(half), "got %s", pct.ToBig())
}

func TestComputeOutflowsSymmetric(t *testing.T) {
	cases := []Inputs{
		inputs(100, 200, 0, 0, 100, 0),
		inputs(1_000, 3_000, 10, 20, 70, 5),
		inputs(5, 7, 0, 0, 11, 13),
	}
	fee := new(uint256.Int).Rsh(fixedpoint.One(), 5)

	for _, in := range cases {
		swapped := Inputs{
			PoolFlowIn: [2]*uint256.Int{in.PoolFlowIn[1], in.PoolFlowIn[0]},
			PrevFlowIn: [2]*big.Int{in.PrevFlowIn[1], in.PrevFlowIn[0]},
			NewFlowIn:  [2]*big.Int{in.NewFlowIn[1], in.NewFlowIn[0]},
		}
		a, err := ComputeOutflows(in, fee)
		require.NoError(t, err)
		b, err := ComputeOutflows(swapped, fee)
		require.NoError(t, err)

		for s := 0; s < 2; s++ {
			o := 1 - s
			require.True(t, a.FeePercentage[s].Eq(b.FeePercentage[o]))
			require.Zero(t, a.FlowOut[s].Cmp(b.FlowOut[o]))
			require.Zero(t, a.LiquidityFlow[s].Cmp(b.LiquidityFlow[o]))
			require.Zero(t, a.FeesFlow[s].Cmp(b.FeesFlow[o]))
		}
	}
}

func TestComputeOutflowsErrors(t *testing.T) {
	_, err := ComputeOutflows(inputs(10, 10, 20, 0, 0, 0), new(uint256.Int))
	require.ErrorIs(t, err, fixedpoint.ErrUnderflow)

	_, err = ComputeOutflows(inputs(10, 10, 0, 0, -1, 0), new(uint256.Int))
	require.ErrorIs(t, err, ErrNegativeInflow)

	tooHigh := new(uint256.Int).AddUint64(fixedpoint.One(), 1)
	_, err = ComputeOutflows(inputs(10, 10, 0, 0, 1, 0), tooHigh)
	require.ErrorIs(t, err, ErrFeeAboveOne)
}
