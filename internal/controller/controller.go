// Package controller reacts to the streaming host's flow lifecycle callbacks.
// Each event recomputes the participant's counter-flows, instructs the host
// to adjust them and applies the result to the pool ledger, all or nothing.
package controller

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowSwap/internal/engine"
	"flowSwap/internal/fixedpoint"
	"flowSwap/internal/pool"
)

// Config identifies the pool and the parties allowed to drive it.
type Config struct {
	Pool        common.Address
	Host        common.Address
	Initializer common.Address
}

type eventKind int

const (
	eventCreated eventKind = iota
	eventUpdated
	eventTerminated
)

func (k eventKind) String() string {
	switch k {
	case eventCreated:
		return "created"
	case eventUpdated:
		return "updated"
	default:
		return "terminated"
	}
}

// Controller owns the pool. Events are serialized; readers share a lock.
type Controller struct {
	cfg       Config
	host      StreamingHost
	custodian Custodian
	logger    *zap.Logger

	mu   sync.RWMutex
	pool *pool.Pool
}

// New builds an uninitialized Controller.
func New(cfg Config, host StreamingHost, custodian Custodian, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:       cfg,
		host:      host,
		custodian: custodian,
		logger:    logger.With(zap.String("pool", cfg.Pool.Hex())),
	}
}

// Config returns the identities the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// Initialize configures the token pair and fee. It succeeds once.
func (c *Controller) Initialize(caller, token0, token1 common.Address, fee *uint256.Int) error {
	if caller != c.cfg.Initializer {
		return ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		return ErrAlreadyInitialized
	}
	p, err := pool.New(pool.Config{Address: c.cfg.Pool, Token0: token0, Token1: token1, Fee: fee})
	if err != nil {
		return fmt.Errorf("initialize pool: %w", err)
	}
	c.pool = p
	c.logger.Info("pool initialized",
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.String("fee", fee.Hex()),
	)
	return nil
}

// Read runs fn against the committed pool under the read lock. fn must not
// retain or mutate p.
func (c *Controller) Read(fn func(p *pool.Pool) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pool == nil {
		return ErrNotInitialized
	}
	return fn(c.pool)
}

// BeforeChange captures what the update or terminate callback needs to know
// about the participant's state before the host applies the change.
func (c *Controller) BeforeChange(ctx context.Context, caller, token, who common.Address) ([]byte, error) {
	if caller != c.cfg.Host {
		return nil, ErrUnauthorized
	}
	c.mu.RLock()
	p := c.pool
	c.mu.RUnlock()
	if p == nil {
		return nil, ErrNotInitialized
	}
	if _, err := p.SideOf(token); err != nil {
		return nil, err
	}

	prev, err := c.host.FlowRate(ctx, token, who, c.cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("read inbound rate: %w", err)
	}
	var payload Payload
	payload.PreviousRate = prev
	for s := pool.Token0; s <= pool.Token1; s++ {
		ts, err := c.host.AccountFlowTimestamp(ctx, p.Token(s), who)
		if err != nil {
			return nil, fmt.Errorf("read flow timestamp %s: %w", s, err)
		}
		payload.SettledAt[s] = ts
	}
	return EncodePayload(payload)
}

// OnCreated handles a new inbound stream from who.
func (c *Controller) OnCreated(ctx context.Context, caller, token, who common.Address, cc CallContext) (CallContext, error) {
	return c.handle(ctx, eventCreated, caller, token, who, cc, nil)
}

// OnUpdated handles a changed inbound stream. payload comes from BeforeChange.
func (c *Controller) OnUpdated(ctx context.Context, caller, token, who common.Address, cc CallContext, payload []byte) (CallContext, error) {
	return c.handle(ctx, eventUpdated, caller, token, who, cc, payload)
}

// OnTerminated handles a closed inbound stream. payload comes from BeforeChange.
func (c *Controller) OnTerminated(ctx context.Context, caller, token, who common.Address, cc CallContext, payload []byte) (CallContext, error) {
	return c.handle(ctx, eventTerminated, caller, token, who, cc, payload)
}

func (c *Controller) handle(ctx context.Context, kind eventKind, caller, token, who common.Address, cc CallContext, payload []byte) (CallContext, error) {
	if caller != c.cfg.Host {
		return nil, ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return nil, ErrNotInitialized
	}

	next, err := c.apply(ctx, kind, token, who, cc, payload)
	if err != nil {
		c.logger.Warn("flow event rejected",
			zap.Stringer("kind", kind),
			zap.String("token", token.Hex()),
			zap.String("account", who.Hex()),
			zap.Error(err),
		)
		return nil, err
	}
	return next, nil
}

// apply runs under the write lock. The committed pool is replaced only when
// every step succeeded.
func (c *Controller) apply(ctx context.Context, kind eventKind, token, who common.Address, cc CallContext, payload []byte) (CallContext, error) {
	side, err := c.pool.SideOf(token)
	if err != nil {
		return nil, err
	}
	if who == c.cfg.Pool {
		return nil, pool.ErrSelfAccount
	}
	now, err := c.host.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host time: %w", err)
	}

	var in, out [2]*big.Int
	for s := pool.Token0; s <= pool.Token1; s++ {
		t := c.pool.Token(s)
		if in[s], err = c.host.FlowRate(ctx, t, who, c.cfg.Pool); err != nil {
			return nil, fmt.Errorf("read inbound rate %s: %w", s, err)
		}
		if out[s], err = c.host.FlowRate(ctx, t, c.cfg.Pool, who); err != nil {
			return nil, fmt.Errorf("read outbound rate %s: %w", s, err)
		}
		if err := fixedpoint.CheckRate(in[s]); err != nil {
			return nil, err
		}
	}

	prev := [2]*big.Int{new(big.Int).Set(in[0]), new(big.Int).Set(in[1])}
	var before Payload
	if kind == eventCreated {
		prev[side].SetInt64(0)
	} else {
		if before, err = DecodePayload(payload); err != nil {
			return nil, err
		}
		prev[side].Set(before.PreviousRate)
	}

	// Equal outbound rates on both tokens (including none at all) is taken
	// as the sign that the participant's streamed balance must be settled
	// before the counter-flows move.
	settled := false
	if kind != eventCreated && out[0].Cmp(out[1]) == 0 {
		if c.custodian == nil {
			return nil, fmt.Errorf("settle balance: no custodian configured")
		}
		for s := pool.Token0; s <= pool.Token1; s++ {
			if err := c.custodian.SettleAccruedBalance(ctx, c.pool.Token(s), who, before.SettledAt[s]); err != nil {
				return nil, fmt.Errorf("settle balance %s: %w", s, err)
			}
		}
		settled = true
		c.logger.Info("balance settled",
			zap.String("account", who.Hex()),
			zap.Uint32("since0", before.SettledAt[0]),
			zap.Uint32("since1", before.SettledAt[1]),
		)
	}

	st := c.pool.State()
	result, err := engine.ComputeOutflows(engine.Inputs{
		PoolFlowIn: st.FlowIn,
		PrevFlowIn: prev,
		NewFlowIn:  in,
	}, c.pool.Fee())
	if err != nil {
		return nil, fmt.Errorf("compute outflows: %w", err)
	}

	other := side.Other()
	if cc, err = c.syncOutflow(ctx, cc, c.pool.Token(other), who, out[other], result.FlowOut[other]); err != nil {
		return nil, fmt.Errorf("sync %s outflow: %w", other, err)
	}
	if cc, err = c.syncOutflow(ctx, cc, c.pool.Token(side), who, out[side], result.FlowOut[side]); err != nil {
		return nil, fmt.Errorf("sync %s outflow: %w", side, err)
	}

	working := c.pool.Clone()
	entry := working.Entry(who)
	var deltaIn, deltaOut [2]*big.Int
	for s := 0; s < 2; s++ {
		deltaIn[s] = new(big.Int).Sub(in[s], entry.FlowIn[s])
		deltaOut[s] = new(big.Int).Sub(result.FlowOut[s], entry.FlowOut[s])
	}
	if err := working.UpdateFeesAndRewards(now, who, result.FeesFlow, result.LiquidityFlow); err != nil {
		return nil, fmt.Errorf("update fees: %w", err)
	}
	if err := working.Rebalance(now, who, deltaIn, deltaOut); err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}
	if settled {
		if err := working.ResetPriceBaselines(who); err != nil {
			return nil, fmt.Errorf("reset baselines: %w", err)
		}
	}
	c.pool = working

	c.logger.Debug("flow event applied",
		zap.Stringer("kind", kind),
		zap.Uint32("ts", now),
		zap.String("account", who.Hex()),
		zap.String("in0", in[0].String()),
		zap.String("in1", in[1].String()),
		zap.String("out0", result.FlowOut[0].String()),
		zap.String("out1", result.FlowOut[1].String()),
		zap.Stringer("cc", cc),
	)
	return cc, nil
}

// syncOutflow moves the pool->who stream on token from current to next.
func (c *Controller) syncOutflow(ctx context.Context, cc CallContext, token, who common.Address, current, next *big.Int) (CallContext, error) {
	switch {
	case current.Cmp(next) == 0:
		return cc, nil
	case current.Sign() == 0:
		return c.host.CreateFlow(ctx, cc, token, c.cfg.Pool, who, next)
	case next.Sign() == 0:
		return c.host.DeleteFlow(ctx, cc, token, c.cfg.Pool, who)
	default:
		return c.host.UpdateFlow(ctx, cc, token, c.cfg.Pool, who, next)
	}
}
