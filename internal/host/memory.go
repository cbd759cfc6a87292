// Package host is an in-memory streaming protocol. It keeps per-second flows
// between accounts, calls the receiving application's lifecycle callbacks and
// applies a user operation together with everything the application did in
// response, or nothing at all.
package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"flowSwap/internal/controller"
	"flowSwap/internal/fixedpoint"
	"flowSwap/internal/model"
)

var (
	ErrStaleContext = errors.New("host: stale call context")
	ErrFlowExists   = errors.New("host: flow already exists")
	ErrFlowNotFound = errors.New("host: flow not found")
	ErrInvalidRate  = errors.New("host: flow rate must be positive")
	ErrSelfFlow     = errors.New("host: sender and receiver are the same account")
	ErrNoTx         = errors.New("host: no operation in progress")
)

// App is an application that reacts to streams it receives.
type App interface {
	BeforeChange(ctx context.Context, caller, token, who common.Address) ([]byte, error)
	OnCreated(ctx context.Context, caller, token, who common.Address, cc controller.CallContext) (controller.CallContext, error)
	OnUpdated(ctx context.Context, caller, token, who common.Address, cc controller.CallContext, payload []byte) (controller.CallContext, error)
	OnTerminated(ctx context.Context, caller, token, who common.Address, cc controller.CallContext, payload []byte) (controller.CallContext, error)
}

// Op is a user-initiated stream change.
type Op struct {
	Kind     model.EventKind
	Token    common.Address
	Sender   common.Address
	Receiver common.Address
	Rate     *big.Int
}

// Settlement records a streamed balance converted into a static one.
type Settlement struct {
	Token   common.Address
	Account common.Address
	Since   uint32
	At      uint32
	Amount  *big.Int
}

type flowKey struct {
	token    common.Address
	sender   common.Address
	receiver common.Address
}

type accountKey struct {
	token   common.Address
	account common.Address
}

type txn struct {
	head        controller.CallContext
	flows       map[flowKey]*big.Int
	touched     map[accountKey]uint32
	balances    map[accountKey]*big.Int
	settlements []Settlement
}

var (
	_ controller.StreamingHost = (*Memory)(nil)
	_ controller.Custodian     = (*Memory)(nil)
)

// Memory implements controller.StreamingHost and controller.Custodian.
type Memory struct {
	id     common.Address
	logger *zap.Logger

	// opMu serializes user operations; mu guards the data and is never held
	// across application callbacks.
	opMu sync.Mutex
	mu   sync.RWMutex

	now         uint32
	seq         uint64
	flows       map[flowKey]*big.Int
	touched     map[accountKey]uint32
	balances    map[accountKey]*big.Int
	settlements []Settlement
	apps        map[common.Address]App
	tx          *txn
}

// NewMemory creates an empty host identified by id.
func NewMemory(id common.Address, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		id:       id,
		logger:   logger,
		flows:    make(map[flowKey]*big.Int),
		touched:  make(map[accountKey]uint32),
		balances: make(map[accountKey]*big.Int),
		apps:     make(map[common.Address]App),
	}
}

// ID is the identity the host presents to applications.
func (m *Memory) ID() common.Address { return m.id }

// Register routes callbacks for streams received by addr to app.
func (m *Memory) Register(addr common.Address, app App) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[addr] = app
}

// SetTime moves the clock. Time may only move forward.
func (m *Memory) SetTime(ts uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts < m.now {
		return fmt.Errorf("set time %d: clock is at %d", ts, m.now)
	}
	m.now = ts
	return nil
}

// Now implements controller.StreamingHost.
func (m *Memory) Now(context.Context) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now, nil
}

// FlowRate returns the sender->receiver rate on token, zero when absent.
// During an operation it reflects staged changes.
func (m *Memory) FlowRate(_ context.Context, token, sender, receiver common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.rate(flowKey{token, sender, receiver})), nil
}

// AccountFlowTimestamp returns when the account's flows on token last changed.
func (m *Memory) AccountFlowTimestamp(_ context.Context, token, account common.Address) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := accountKey{token, account}
	if m.tx != nil {
		if ts, ok := m.tx.touched[k]; ok {
			return ts, nil
		}
	}
	return m.touched[k], nil
}

// CreateFlow stages a new flow on behalf of an application.
func (m *Memory) CreateFlow(_ context.Context, cc controller.CallContext, token, sender, receiver common.Address, rate *big.Int) (controller.CallContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkContext(cc); err != nil {
		return nil, err
	}
	key := flowKey{token, sender, receiver}
	if m.rate(key).Sign() != 0 {
		return nil, fmt.Errorf("create %s: %w", describe(key), ErrFlowExists)
	}
	if err := m.stage(key, rate); err != nil {
		return nil, err
	}
	return m.advance(1, key), nil
}

// UpdateFlow stages a rate change on behalf of an application.
func (m *Memory) UpdateFlow(_ context.Context, cc controller.CallContext, token, sender, receiver common.Address, rate *big.Int) (controller.CallContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkContext(cc); err != nil {
		return nil, err
	}
	key := flowKey{token, sender, receiver}
	if m.rate(key).Sign() == 0 {
		return nil, fmt.Errorf("update %s: %w", describe(key), ErrFlowNotFound)
	}
	if err := m.stage(key, rate); err != nil {
		return nil, err
	}
	return m.advance(2, key), nil
}

// DeleteFlow stages a flow removal on behalf of an application.
func (m *Memory) DeleteFlow(_ context.Context, cc controller.CallContext, token, sender, receiver common.Address) (controller.CallContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkContext(cc); err != nil {
		return nil, err
	}
	key := flowKey{token, sender, receiver}
	if m.rate(key).Sign() == 0 {
		return nil, fmt.Errorf("delete %s: %w", describe(key), ErrFlowNotFound)
	}
	m.remove(key)
	return m.advance(3, key), nil
}

// SettleAccruedBalance implements controller.Custodian. The net amount
// streamed to the account since the given time, at the rates in force before
// the current operation, is credited to its static balance.
func (m *Memory) SettleAccruedBalance(_ context.Context, token, account common.Address, since uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx == nil {
		return ErrNoTx
	}
	net := new(big.Int)
	for key, rate := range m.flows {
		if key.token != token {
			continue
		}
		switch account {
		case key.receiver:
			net.Add(net, rate)
		case key.sender:
			net.Sub(net, rate)
		}
	}
	elapsed := int64(0)
	if m.now > since {
		elapsed = int64(m.now - since)
	}
	amount := net.Mul(net, big.NewInt(elapsed))

	k := accountKey{token, account}
	bal := new(big.Int).Set(m.balance(k))
	m.tx.balances[k] = bal.Add(bal, amount)
	m.tx.settlements = append(m.tx.settlements, Settlement{
		Token:   token,
		Account: account,
		Since:   since,
		At:      m.now,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// Balance is the account's settled static balance on token.
func (m *Memory) Balance(token, account common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.balance(accountKey{token, account}))
}

// Settlements returns the committed settlement history.
func (m *Memory) Settlements() []Settlement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Settlement, len(m.settlements))
	copy(out, m.settlements)
	return out
}

// Flow is one committed stream.
type Flow struct {
	Token    common.Address
	Sender   common.Address
	Receiver common.Address
	Rate     *big.Int
}

// Flows lists committed streams touching account, ordered by token, sender
// and receiver.
func (m *Memory) Flows(account common.Address) []Flow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Flow
	for key, rate := range m.flows {
		if key.sender != account && key.receiver != account {
			continue
		}
		out = append(out, Flow{Token: key.token, Sender: key.sender, Receiver: key.receiver, Rate: new(big.Int).Set(rate)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Token != out[j].Token {
			return out[i].Token.Hex() < out[j].Token.Hex()
		}
		if out[i].Sender != out[j].Sender {
			return out[i].Sender.Hex() < out[j].Sender.Hex()
		}
		return out[i].Receiver.Hex() < out[j].Receiver.Hex()
	})
	return out
}

// Submit applies a user operation. If the receiving application rejects it,
// nothing the operation or the application staged is kept.
func (m *Memory) Submit(ctx context.Context, op Op) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.begin()
	if err := m.submit(ctx, op); err != nil {
		m.rollback()
		return err
	}
	m.commit()
	return nil
}

func (m *Memory) submit(ctx context.Context, op Op) error {
	if op.Sender == op.Receiver {
		return ErrSelfFlow
	}
	key := flowKey{op.Token, op.Sender, op.Receiver}

	m.mu.RLock()
	current := new(big.Int).Set(m.rate(key))
	app := m.apps[op.Receiver]
	m.mu.RUnlock()

	switch op.Kind {
	case model.EventCreate:
		if current.Sign() != 0 {
			return fmt.Errorf("create %s: %w", describe(key), ErrFlowExists)
		}
		if err := m.stageLocked(key, op.Rate); err != nil {
			return err
		}
		if app == nil {
			return nil
		}
		cc, err := app.OnCreated(ctx, m.id, op.Token, op.Sender, m.head())
		if err != nil {
			return err
		}
		return m.finish(cc)

	case model.EventUpdate:
		if current.Sign() == 0 {
			return fmt.Errorf("update %s: %w", describe(key), ErrFlowNotFound)
		}
		var payload []byte
		if app != nil {
			var err error
			if payload, err = app.BeforeChange(ctx, m.id, op.Token, op.Sender); err != nil {
				return err
			}
		}
		if err := m.stageLocked(key, op.Rate); err != nil {
			return err
		}
		if app == nil {
			return nil
		}
		cc, err := app.OnUpdated(ctx, m.id, op.Token, op.Sender, m.head(), payload)
		if err != nil {
			return err
		}
		return m.finish(cc)

	case model.EventDelete:
		if current.Sign() == 0 {
			return fmt.Errorf("delete %s: %w", describe(key), ErrFlowNotFound)
		}
		var payload []byte
		if app != nil {
			var err error
			if payload, err = app.BeforeChange(ctx, m.id, op.Token, op.Sender); err != nil {
				return err
			}
		}
		m.mu.Lock()
		m.remove(key)
		m.mu.Unlock()
		if app == nil {
			return nil
		}
		cc, err := app.OnTerminated(ctx, m.id, op.Token, op.Sender, m.head(), payload)
		if err != nil {
			return err
		}
		return m.finish(cc)

	default:
		return fmt.Errorf("unsupported operation: %q", op.Kind)
	}
}

func (m *Memory) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], m.seq)
	m.tx = &txn{
		head:     crypto.Keccak256(m.id.Bytes(), seed[:]),
		flows:    make(map[flowKey]*big.Int),
		touched:  make(map[accountKey]uint32),
		balances: make(map[accountKey]*big.Int),
	}
}

func (m *Memory) commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rate := range m.tx.flows {
		if rate.Sign() == 0 {
			delete(m.flows, key)
			continue
		}
		m.flows[key] = rate
	}
	for k, ts := range m.tx.touched {
		m.touched[k] = ts
	}
	for k, bal := range m.tx.balances {
		m.balances[k] = bal
	}
	m.settlements = append(m.settlements, m.tx.settlements...)
	m.logger.Debug("host operation committed",
		zap.Int("flows", len(m.tx.flows)),
		zap.Int("settlements", len(m.tx.settlements)),
		zap.Stringer("cc", m.tx.head),
	)
	m.tx = nil
}

func (m *Memory) rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Debug("host operation rolled back", zap.Int("flows", len(m.tx.flows)))
	m.tx = nil
}

func (m *Memory) head() controller.CallContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(controller.CallContext(nil), m.tx.head...)
}

// finish checks the application handed back the latest context.
func (m *Memory) finish(cc controller.CallContext) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkContext(cc)
}

func (m *Memory) checkContext(cc controller.CallContext) error {
	if m.tx == nil {
		return ErrNoTx
	}
	if string(cc) != string(m.tx.head) {
		return ErrStaleContext
	}
	return nil
}

func (m *Memory) advance(op byte, key flowKey) controller.CallContext {
	m.tx.head = crypto.Keccak256(m.tx.head, []byte{op}, key.token.Bytes(), key.sender.Bytes(), key.receiver.Bytes())
	return append(controller.CallContext(nil), m.tx.head...)
}

func (m *Memory) stageLocked(key flowKey, rate *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage(key, rate)
}

func (m *Memory) stage(key flowKey, rate *big.Int) error {
	if rate == nil || rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	if err := fixedpoint.CheckRate(rate); err != nil {
		return err
	}
	m.tx.flows[key] = new(big.Int).Set(rate)
	m.touch(key)
	return nil
}

func (m *Memory) remove(key flowKey) {
	m.tx.flows[key] = new(big.Int)
	m.touch(key)
}

func (m *Memory) touch(key flowKey) {
	m.tx.touched[accountKey{key.token, key.sender}] = m.now
	m.tx.touched[accountKey{key.token, key.receiver}] = m.now
}

func (m *Memory) rate(key flowKey) *big.Int {
	if m.tx != nil {
		if r, ok := m.tx.flows[key]; ok {
			return r
		}
	}
	if r, ok := m.flows[key]; ok {
		return r
	}
	return new(big.Int)
}

func (m *Memory) balance(k accountKey) *big.Int {
	if m.tx != nil {
		if b, ok := m.tx.balances[k]; ok {
			return b
		}
	}
	if b, ok := m.balances[k]; ok {
		return b
	}
	return new(big.Int)
}

func describe(key flowKey) string {
	return fmt.Sprintf("flow %s %s->%s", key.token.Hex(), key.sender.Hex(), key.receiver.Hex())
}
