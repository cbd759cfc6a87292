package controller_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"flowSwap/internal/controller"
	"flowSwap/internal/fixedpoint"
	"flowSwap/internal/host"
	"flowSwap/internal/model"
	"flowSwap/internal/pool"
)

var (
	hostAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	poolAddr    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	initializer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	token0      = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	token1      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type harness struct {
	t    *testing.T
	host *host.Memory
	ctrl *controller.Controller
}

func quarter() *uint256.Int {
	return new(uint256.Int).Rsh(fixedpoint.One(), 2)
}

func newHarness(t *testing.T, fee *uint256.Int) *harness {
	t.Helper()
	m := host.NewMemory(hostAddr, nil)
	ctrl := controller.New(controller.Config{Pool: poolAddr, Host: hostAddr, Initializer: initializer}, m, m, nil)
	require.NoError(t, ctrl.Initialize(initializer, token0, token1, fee))
	m.Register(poolAddr, ctrl)
	return &harness{t: t, host: m, ctrl: ctrl}
}

func (h *harness) at(ts uint32) *harness {
	h.t.Helper()
	require.NoError(h.t, h.host.SetTime(ts))
	return h
}

func (h *harness) submit(kind model.EventKind, token, who common.Address, rate int64) error {
	return h.host.Submit(context.Background(), host.Op{
		Kind:     kind,
		Token:    token,
		Sender:   who,
		Receiver: poolAddr,
		Rate:     big.NewInt(rate),
	})
}

func (h *harness) outflow(token, who common.Address) int64 {
	h.t.Helper()
	r, err := h.host.FlowRate(context.Background(), token, poolAddr, who)
	require.NoError(h.t, err)
	return r.Int64()
}

func (h *harness) read(fn func(p *pool.Pool)) {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Read(func(p *pool.Pool) error {
		fn(p)
		return p.CheckInvariants()
	}))
}

func TestInitialize(t *testing.T) {
	m := host.NewMemory(hostAddr, nil)
	ctrl := controller.New(controller.Config{Pool: poolAddr, Host: hostAddr, Initializer: initializer}, m, m, nil)

	err := ctrl.Read(func(*pool.Pool) error { return nil })
	require.ErrorIs(t, err, controller.ErrNotInitialized)

	require.ErrorIs(t, ctrl.Initialize(alice, token0, token1, quarter()), controller.ErrUnauthorized)
	require.ErrorIs(t, ctrl.Initialize(initializer, token0, token0, quarter()), pool.ErrInvalidConfig)
	require.NoError(t, ctrl.Initialize(initializer, token0, token1, quarter()))
	require.ErrorIs(t, ctrl.Initialize(initializer, token0, token1, quarter()), controller.ErrAlreadyInitialized)
}

func TestProviderThenSwapper(t *testing.T) {
	h := newHarness(t, quarter())

	// a one-sided first stream has no counterparty yet
	require.NoError(t, h.at(100).submit(model.EventCreate, token0, alice, 10))
	require.Equal(t, int64(0), h.outflow(token1, alice))

	// the second side completes a balanced position: alice gets her own
	// streams back and provides all the liquidity
	require.NoError(t, h.submit(model.EventCreate, token1, alice, 40))
	require.Equal(t, int64(10), h.outflow(token0, alice))
	require.Equal(t, int64(40), h.outflow(token1, alice))
	h.read(func(p *pool.Pool) {
		require.Equal(t, uint64(10), p.InboundMagnitude(token0).Uint64())
		require.Equal(t, uint64(40), p.InboundMagnitude(token1).Uint64())
		e := p.Entry(alice)
		require.Equal(t, int64(10), e.LiquidityFlow[0].Int64())
		require.Equal(t, int64(40), e.LiquidityFlow[1].Int64())
		require.Equal(t, int64(0), e.FeesFlow[0].Int64())
	})

	// bob swaps token0 for token1 at price 4, paying the full quarter fee
	require.NoError(t, h.at(110).submit(model.EventCreate, token0, bob, 10))
	require.Equal(t, int64(30), h.outflow(token1, bob))
	require.Equal(t, int64(0), h.outflow(token0, bob))
	h.read(func(p *pool.Pool) {
		require.Equal(t, uint64(20), p.InboundMagnitude(token0).Uint64())
		require.Equal(t, int64(2), p.Entry(bob).FeesFlow[0].Int64())
		require.Equal(t, int64(2), p.State().FeesFlow[0].Int64())

		net, err := p.UserNetOutboundRate(token1, bob)
		require.NoError(t, err)
		require.Equal(t, int64(30), net.Int64())
	})

	// alice, the only liquidity, earns bob's fees: 2/10 per second at
	// price 2 over 10 seconds, 40 before fixed-point rounding
	h.read(func(p *pool.Pool) {
		reward, err := p.UserRewardNow(token0, alice, 120)
		require.NoError(t, err)
		require.GreaterOrEqual(t, reward.Int64(), int64(39))
		require.LessOrEqual(t, reward.Int64(), int64(40))

		owed, err := p.UserRewardNow(token0, poolAddr, 120)
		require.NoError(t, err)
		require.Negative(t, owed.Sign())

		none, err := p.UserRewardNow(token0, bob, 120)
		require.NoError(t, err)
		require.Zero(t, none.Sign())
	})

	// bob stops: his counter-flow is deleted and his inflow leaves the pool
	require.NoError(t, h.at(120).submit(model.EventDelete, token0, bob, 0))
	require.Equal(t, int64(0), h.outflow(token1, bob))
	h.read(func(p *pool.Pool) {
		require.Equal(t, uint64(10), p.InboundMagnitude(token0).Uint64())
		require.True(t, p.Entry(bob).IsZero())
		require.Equal(t, int64(0), p.State().FeesFlow[0].Int64())

		fees, err := p.FeesCumulativeNow(token0, 130)
		require.NoError(t, err)
		stored := p.State().FeesCumulativeLast[0]
		require.True(t, fees.Eq(stored), "no fee flow, no accrual")
		require.False(t, stored.IsZero())
	})
	require.Empty(t, h.host.Settlements())
}

func TestUpdateChangesCounterFlow(t *testing.T) {
	h := newHarness(t, new(uint256.Int))
	require.NoError(t, h.at(100).submit(model.EventCreate, token0, alice, 10))
	require.NoError(t, h.submit(model.EventCreate, token1, alice, 40))
	require.NoError(t, h.submit(model.EventCreate, token0, bob, 10))
	require.Equal(t, int64(40), h.outflow(token1, bob))

	require.NoError(t, h.at(105).submit(model.EventUpdate, token0, bob, 5))
	// price is still taken from the pre-change pool: 40/20
	require.Equal(t, int64(10), h.outflow(token1, bob))
	h.read(func(p *pool.Pool) {
		require.Equal(t, uint64(15), p.InboundMagnitude(token0).Uint64())
		require.Equal(t, int64(5), p.Entry(bob).FlowIn[0].Int64())
		require.Equal(t, int64(10), p.Entry(bob).FlowOut[1].Int64())
	})
}

func TestEqualOutflowsTriggerSettlement(t *testing.T) {
	h := newHarness(t, quarter())
	require.NoError(t, h.at(100).submit(model.EventCreate, token0, alice, 10))

	// no outflows on either token: both balances are settled first
	require.NoError(t, h.at(150).submit(model.EventUpdate, token0, alice, 20))

	settlements := h.host.Settlements()
	require.Len(t, settlements, 2)
	require.Equal(t, token0, settlements[0].Token)
	require.Equal(t, uint32(100), settlements[0].Since)
	require.Equal(t, uint32(150), settlements[0].At)
	require.Equal(t, int64(-500), settlements[0].Amount.Int64())
	require.Equal(t, token1, settlements[1].Token)
	require.Zero(t, settlements[1].Amount.Sign())
	require.Equal(t, int64(-500), h.host.Balance(token0, alice).Int64())

	h.read(func(p *pool.Pool) {
		st := p.State()
		e := p.Entry(alice)
		require.True(t, e.PriceCumulative[0].Eq(st.PriceCumulativeLast[0]))
		require.True(t, e.PriceCumulative[1].Eq(st.PriceCumulativeLast[1]))
		require.Equal(t, uint64(20), p.InboundMagnitude(token0).Uint64())
	})
}

func TestRejectedEventLeavesNoTrace(t *testing.T) {
	h := newHarness(t, quarter())
	other := common.HexToAddress("0x00000000000000000000000000000000000000e0")

	err := h.at(100).submit(model.EventCreate, other, alice, 10)
	require.ErrorIs(t, err, controller.ErrUnsupportedToken)
	r, err := h.host.FlowRate(context.Background(), other, alice, poolAddr)
	require.NoError(t, err)
	require.Zero(t, r.Sign())
	h.read(func(p *pool.Pool) {
		require.Empty(t, p.Accounts())
	})
}

func TestCallbacksRequireHost(t *testing.T) {
	h := newHarness(t, quarter())
	ctx := context.Background()

	_, err := h.ctrl.OnCreated(ctx, alice, token0, alice, nil)
	require.ErrorIs(t, err, controller.ErrUnauthorized)
	_, err = h.ctrl.BeforeChange(ctx, alice, token0, alice)
	require.ErrorIs(t, err, controller.ErrUnauthorized)
	_, err = h.ctrl.OnTerminated(ctx, alice, token0, alice, nil, nil)
	require.ErrorIs(t, err, controller.ErrUnauthorized)
}

// failingHost refuses to open counter-flows on one token.
type failingHost struct {
	*host.Memory
	token common.Address
}

var errRefused = errors.New("refused")

func (f failingHost) CreateFlow(ctx context.Context, cc controller.CallContext, token, sender, receiver common.Address, rate *big.Int) (controller.CallContext, error) {
	if token == f.token {
		return nil, errRefused
	}
	return f.Memory.CreateFlow(ctx, cc, token, sender, receiver, rate)
}

func TestHostFailureIsAtomic(t *testing.T) {
	m := host.NewMemory(hostAddr, nil)
	fh := failingHost{Memory: m, token: token1}
	ctrl := controller.New(controller.Config{Pool: poolAddr, Host: hostAddr, Initializer: initializer}, fh, m, nil)
	require.NoError(t, ctrl.Initialize(initializer, token0, token1, quarter()))
	m.Register(poolAddr, ctrl)
	h := &harness{t: t, host: m, ctrl: ctrl}

	require.NoError(t, h.at(100).submit(model.EventCreate, token0, alice, 10))
	before := h.snapshot()

	// the token0 counter-flow is staged, then the token1 one fails
	err := h.submit(model.EventCreate, token1, alice, 40)
	require.ErrorIs(t, err, errRefused)

	require.Equal(t, int64(0), h.outflow(token0, alice))
	require.Equal(t, before, h.snapshot())
}

func (h *harness) snapshot() model.PoolSnapshot {
	var snap model.PoolSnapshot
	h.read(func(p *pool.Pool) { snap = p.Snapshot(100) })
	return snap
}
