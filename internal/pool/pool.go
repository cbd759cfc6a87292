// Package pool holds the continuous-flow pool state: the aggregate inbound
// magnitudes, the time-weighted price and fee accumulators, and the
// per-participant ledger that makes reward attribution work when streams
// change at arbitrary times.
package pool

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flowSwap/internal/engine"
)

var (
	ErrUnsupportedToken = errors.New("pool: unsupported token")
	ErrSelfAccount      = errors.New("pool: pool cannot hold a user position with itself")
	ErrInvalidConfig    = errors.New("pool: invalid config")
)

// Side indexes one of the two pool tokens.
type Side int

const (
	Token0 Side = 0
	Token1 Side = 1
)

// Other returns the opposite side.
func (s Side) Other() Side { return 1 - s }

func (s Side) String() string { return fmt.Sprintf("token%d", int(s)) }

// Config is fixed at initialization.
type Config struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	// Fee is a Q128 fraction in [0, 1].
	Fee *uint256.Int
}

// State is the pool-wide aggregate.
type State struct {
	FlowIn              [2]*uint256.Int
	PriceCumulativeLast [2]*uint256.Int
	FeesCumulativeLast  [2]*uint256.Int
	FeesFlow            [2]*big.Int
	LiquidityFlow       [2]*big.Int
	BlockTimestampLast  uint32
}

// Entry is one participant's ledger row. Cumulative fields are the pool
// accumulator values at the participant's last state-changing interaction.
type Entry struct {
	FlowIn          [2]*big.Int
	FlowOut         [2]*big.Int
	LiquidityFlow   [2]*big.Int
	FeesFlow        [2]*big.Int
	PriceCumulative [2]*uint256.Int
	FeesCumulative  [2]*uint256.Int
}

// IsZero reports whether the entry carries no position.
func (e Entry) IsZero() bool {
	for s := 0; s < 2; s++ {
		if e.FlowIn[s].Sign() != 0 || e.FlowOut[s].Sign() != 0 || e.LiquidityFlow[s].Sign() != 0 || e.FeesFlow[s].Sign() != 0 {
			return false
		}
	}
	return true
}

// Pool is not safe for concurrent mutation; the flow-event controller
// serializes access.
type Pool struct {
	cfg   Config
	state State
	self  *Entry
	users map[common.Address]*Entry
}

// New creates an empty pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Token0 == (common.Address{}) || cfg.Token1 == (common.Address{}) {
		return nil, fmt.Errorf("%w: token address required", ErrInvalidConfig)
	}
	if cfg.Token0 == cfg.Token1 {
		return nil, fmt.Errorf("%w: identical tokens", ErrInvalidConfig)
	}
	if cfg.Address == cfg.Token0 || cfg.Address == cfg.Token1 {
		return nil, fmt.Errorf("%w: pool address equals a token", ErrInvalidConfig)
	}
	if err := engine.ValidateFee(cfg.Fee); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Fee = new(uint256.Int).Set(cfg.Fee)

	return &Pool{
		cfg: cfg,
		state: State{
			FlowIn:              [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
			PriceCumulativeLast: [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
			FeesCumulativeLast:  [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
			FeesFlow:            [2]*big.Int{new(big.Int), new(big.Int)},
			LiquidityFlow:       [2]*big.Int{new(big.Int), new(big.Int)},
		},
		self:  newEntry(),
		users: make(map[common.Address]*Entry),
	}, nil
}

func newEntry() *Entry {
	return &Entry{
		FlowIn:          [2]*big.Int{new(big.Int), new(big.Int)},
		FlowOut:         [2]*big.Int{new(big.Int), new(big.Int)},
		LiquidityFlow:   [2]*big.Int{new(big.Int), new(big.Int)},
		FeesFlow:        [2]*big.Int{new(big.Int), new(big.Int)},
		PriceCumulative: [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
		FeesCumulative:  [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
	}
}

func (e *Entry) clone() *Entry {
	c := newEntry()
	for s := 0; s < 2; s++ {
		c.FlowIn[s].Set(e.FlowIn[s])
		c.FlowOut[s].Set(e.FlowOut[s])
		c.LiquidityFlow[s].Set(e.LiquidityFlow[s])
		c.FeesFlow[s].Set(e.FeesFlow[s])
		c.PriceCumulative[s].Set(e.PriceCumulative[s])
		c.FeesCumulative[s].Set(e.FeesCumulative[s])
	}
	return c
}

func (st State) clone() State {
	c := State{BlockTimestampLast: st.BlockTimestampLast}
	for s := 0; s < 2; s++ {
		c.FlowIn[s] = new(uint256.Int).Set(st.FlowIn[s])
		c.PriceCumulativeLast[s] = new(uint256.Int).Set(st.PriceCumulativeLast[s])
		c.FeesCumulativeLast[s] = new(uint256.Int).Set(st.FeesCumulativeLast[s])
		c.FeesFlow[s] = new(big.Int).Set(st.FeesFlow[s])
		c.LiquidityFlow[s] = new(big.Int).Set(st.LiquidityFlow[s])
	}
	return c
}

// Clone returns a deep copy. The controller mutates a clone and swaps it in
// only when the whole event succeeded.
func (p *Pool) Clone() *Pool {
	users := make(map[common.Address]*Entry, len(p.users))
	for addr, e := range p.users {
		users[addr] = e.clone()
	}
	cfg := p.cfg
	cfg.Fee = new(uint256.Int).Set(p.cfg.Fee)
	return &Pool{
		cfg:   cfg,
		state: p.state.clone(),
		self:  p.self.clone(),
		users: users,
	}
}

// Address is the pool's own identity.
func (p *Pool) Address() common.Address { return p.cfg.Address }

// Token returns the token address for a side.
func (p *Pool) Token(s Side) common.Address {
	if s == Token0 {
		return p.cfg.Token0
	}
	return p.cfg.Token1
}

// Fee returns a copy of the Q128 pool fee.
func (p *Pool) Fee() *uint256.Int { return new(uint256.Int).Set(p.cfg.Fee) }

// SideOf maps a token address to its side.
func (p *Pool) SideOf(token common.Address) (Side, error) {
	switch token {
	case p.cfg.Token0:
		return Token0, nil
	case p.cfg.Token1:
		return Token1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
}

// State returns a copy of the aggregate state.
func (p *Pool) State() State { return p.state.clone() }

// Entry returns a copy of a participant's ledger row; the pool's own
// address returns the pool-self row.
func (p *Pool) Entry(who common.Address) Entry {
	if who == p.cfg.Address {
		return *p.self.clone()
	}
	if e, ok := p.users[who]; ok {
		return *e.clone()
	}
	return *newEntry()
}

// Accounts lists participants with a ledger row, in address order.
func (p *Pool) Accounts() []common.Address {
	out := make([]common.Address, 0, len(p.users))
	for addr := range p.users {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// view is one of the two named perspectives on the ledger: a user row, or the
// pool-self row that mirrors aggregate outflows with the opposite sign.
type view struct {
	entry *Entry
	self  bool
}

func (p *Pool) userView(who common.Address) (view, error) {
	if who == p.cfg.Address {
		return view{}, ErrSelfAccount
	}
	e, ok := p.users[who]
	if !ok {
		e = newEntry()
		p.users[who] = e
	}
	return view{entry: e}, nil
}

func (p *Pool) selfView() view {
	return view{entry: p.self, self: true}
}

func (v view) snapshotPrice(s Side, cumulative *uint256.Int) {
	v.entry.PriceCumulative[s].Set(cumulative)
}

func (v view) snapshotFees(cumulatives [2]*uint256.Int) {
	for s := 0; s < 2; s++ {
		v.entry.FeesCumulative[s].Set(cumulatives[s])
	}
}

// applyFlows adds signed deltas to the row's inbound and outbound rates.
func (v view) applyFlows(deltaIn, deltaOut [2]*big.Int) {
	for s := 0; s < 2; s++ {
		v.entry.FlowIn[s].Add(v.entry.FlowIn[s], deltaIn[s])
		v.entry.FlowOut[s].Add(v.entry.FlowOut[s], deltaOut[s])
	}
}
