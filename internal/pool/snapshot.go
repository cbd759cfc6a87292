package pool

import (
	"flowSwap/internal/model"
)

// Snapshot renders the aggregate state projected to ts.
func (p *Pool) Snapshot(ts uint32) model.PoolSnapshot {
	price := p.priceCumulativesAt(ts)
	fees := p.feesCumulativesAt(ts)
	return model.PoolSnapshot{
		Pool:             p.cfg.Address.Hex(),
		Timestamp:        ts,
		FlowIn0:          p.state.FlowIn[Token0].ToBig().String(),
		FlowIn1:          p.state.FlowIn[Token1].ToBig().String(),
		Price0Cumulative: price[Token0].ToBig().String(),
		Price1Cumulative: price[Token1].ToBig().String(),
		Fees0Cumulative:  fees[Token0].ToBig().String(),
		Fees1Cumulative:  fees[Token1].ToBig().String(),
		FeesFlow0:        p.state.FeesFlow[Token0].String(),
		FeesFlow1:        p.state.FeesFlow[Token1].String(),
		LiquidityFlow0:   p.state.LiquidityFlow[Token0].String(),
		LiquidityFlow1:   p.state.LiquidityFlow[Token1].String(),
		Participants:     len(p.users),
	}
}

// Positions renders every non-empty ledger row with rewards projected to ts.
func (p *Pool) Positions(ts uint32) []model.PositionSnapshot {
	out := make([]model.PositionSnapshot, 0, len(p.users))
	for _, addr := range p.Accounts() {
		e := p.users[addr]
		if e.IsZero() {
			continue
		}
		v := view{entry: e}
		out = append(out, model.PositionSnapshot{
			Pool:           p.cfg.Address.Hex(),
			Account:        addr.Hex(),
			Timestamp:      ts,
			FlowIn0:        e.FlowIn[Token0].String(),
			FlowIn1:        e.FlowIn[Token1].String(),
			FlowOut0:       e.FlowOut[Token0].String(),
			FlowOut1:       e.FlowOut[Token1].String(),
			LiquidityFlow0: e.LiquidityFlow[Token0].String(),
			LiquidityFlow1: e.LiquidityFlow[Token1].String(),
			Reward0:        p.reward(Token0, v, ts).String(),
			Reward1:        p.reward(Token1, v, ts).String(),
		})
	}
	return out
}

// Meta describes the pool configuration.
func (p *Pool) Meta(host string) model.PoolMeta {
	return model.PoolMeta{
		Address: p.cfg.Address.Hex(),
		Token0:  p.cfg.Token0.Hex(),
		Token1:  p.cfg.Token1.Hex(),
		Fee:     p.cfg.Fee.ToBig().String(),
		Host:    host,
	}
}
