package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Read-only projections. None of them mutate state; each is a point-in-time
// view relative to the last state-changing event.

// InboundMagnitude returns the aggregate inbound rate for token. Tokens
// outside the pair read as zero rather than failing.
func (p *Pool) InboundMagnitude(token common.Address) *uint256.Int {
	s, err := p.SideOf(token)
	if err != nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(p.state.FlowIn[s])
}

// CumulativesNow projects both price accumulators to ts.
func (p *Pool) CumulativesNow(ts uint32) (price0, price1 *uint256.Int) {
	cum := p.priceCumulativesAt(ts)
	return cum[Token0], cum[Token1]
}

// FeesCumulativeNow projects token's fee accumulator to ts.
func (p *Pool) FeesCumulativeNow(token common.Address, ts uint32) (*uint256.Int, error) {
	s, err := p.SideOf(token)
	if err != nil {
		return nil, err
	}
	return p.feesCumulativeAt(s, ts), nil
}

// UserCumulativeDeltaNow is the growth of token's price accumulator since the
// participant's last baseline.
func (p *Pool) UserCumulativeDeltaNow(token, who common.Address, ts uint32) (*uint256.Int, error) {
	s, err := p.SideOf(token)
	if err != nil {
		return nil, err
	}
	cum := p.priceCumulativesAt(ts)
	e := p.Entry(who)
	return new(uint256.Int).Sub(cum[s], e.PriceCumulative[s]), nil
}

// UserRewardNow is the fee reward accrued on token since the participant's
// last interaction. For the pool's own address it is the negated total.
func (p *Pool) UserRewardNow(token, who common.Address, ts uint32) (*big.Int, error) {
	s, err := p.SideOf(token)
	if err != nil {
		return nil, err
	}
	if who == p.cfg.Address {
		return p.reward(s, p.selfView(), ts), nil
	}
	e, ok := p.users[who]
	if !ok {
		return new(big.Int), nil
	}
	return p.reward(s, view{entry: e}, ts), nil
}

// UserNetOutboundRate is what the pool streams to the participant minus what
// the participant streams in, for token.
func (p *Pool) UserNetOutboundRate(token, who common.Address) (*big.Int, error) {
	s, err := p.SideOf(token)
	if err != nil {
		return nil, err
	}
	e := p.Entry(who)
	return new(big.Int).Sub(e.FlowOut[s], e.FlowIn[s]), nil
}
