// Package api exposes the pool's read-only queries over HTTP.
package api

import (
	"context"
	"errors"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"flowSwap/internal/controller"
	"flowSwap/internal/host"
	"flowSwap/internal/model"
	"flowSwap/internal/pool"
)

// PoolReader runs read-only functions against the pool.
type PoolReader interface {
	Read(fn func(p *pool.Pool) error) error
}

// FlowSource is the host view used for clocks and stream listings.
type FlowSource interface {
	Now(ctx context.Context) (uint32, error)
	Flows(account common.Address) []host.Flow
}

// Handler serves pool queries.
type Handler struct {
	pool   PoolReader
	flows  FlowSource
	host   string
	logger *zap.Logger
}

// NewHandler builds a Handler. hostID is reported in the pool metadata.
func NewHandler(reader PoolReader, flows FlowSource, hostID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pool: reader, flows: flows, host: hostID, logger: logger}
}

// NewApp returns a fiber app using sonnet for JSON with the routes mounted.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "flowswap",
		JSONEncoder: sonnet.Marshal,
		JSONDecoder: sonnet.Unmarshal,
	})
	h.Register(app)
	return app
}

// Register mounts the routes on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/pool", h.getPool)
	r.Get("/pool/inbound", h.getInbound)
	r.Get("/pool/cumulatives", h.getCumulatives)
	r.Get("/pool/fees", h.getFeesCumulative)
	r.Get("/positions", h.getPositions)
	r.Get("/accounts/:account/reward", h.getReward)
	r.Get("/accounts/:account/cumulative-delta", h.getCumulativeDelta)
	r.Get("/accounts/:account/net-outbound", h.getNetOutbound)
	r.Get("/accounts/:account/flows", h.getFlows)
}

type tokenQuery struct {
	Token string `query:"token"`
	TS    string `query:"ts"`
}

// PoolResponse is the pool metadata plus its state at the requested time.
type PoolResponse struct {
	Meta     model.PoolMeta     `json:"meta"`
	Snapshot model.PoolSnapshot `json:"snapshot"`
}

// ValueResponse carries one queried quantity. Fixed is set for Q128.128
// values and renders them as a decimal fraction.
type ValueResponse struct {
	Token     string `json:"token,omitempty"`
	Account   string `json:"account,omitempty"`
	Timestamp uint32 `json:"timestamp"`
	Value     string `json:"value"`
	Fixed     string `json:"fixed,omitempty"`
}

// CumulativesResponse carries both price accumulators.
type CumulativesResponse struct {
	Timestamp        uint32 `json:"timestamp"`
	Price0Cumulative string `json:"price0_cumulative"`
	Price1Cumulative string `json:"price1_cumulative"`
}

// FlowResponse is one committed stream.
type FlowResponse struct {
	Token    string `json:"token"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Rate     string `json:"rate"`
}

func (h *Handler) getPool(c fiber.Ctx) error {
	_, ts, err := h.parseQuery(c, false)
	if err != nil {
		return err
	}

	var resp PoolResponse
	err = h.pool.Read(func(p *pool.Pool) error {
		resp.Meta = p.Meta(h.host)
		resp.Snapshot = p.Snapshot(ts)
		return nil
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(resp)
}

func (h *Handler) getInbound(c fiber.Ctx) error {
	q, ts, err := h.parseQuery(c, true)
	if err != nil {
		return err
	}
	token := common.HexToAddress(q.Token)

	var value *uint256.Int
	err = h.pool.Read(func(p *pool.Pool) error {
		value = p.InboundMagnitude(token)
		return nil
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(ValueResponse{Token: token.Hex(), Timestamp: ts, Value: value.ToBig().String()})
}

func (h *Handler) getCumulatives(c fiber.Ctx) error {
	_, ts, err := h.parseQuery(c, false)
	if err != nil {
		return err
	}

	var resp CumulativesResponse
	err = h.pool.Read(func(p *pool.Pool) error {
		price0, price1 := p.CumulativesNow(ts)
		resp = CumulativesResponse{
			Timestamp:        ts,
			Price0Cumulative: price0.ToBig().String(),
			Price1Cumulative: price1.ToBig().String(),
		}
		return nil
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(resp)
}

func (h *Handler) getFeesCumulative(c fiber.Ctx) error {
	q, ts, err := h.parseQuery(c, true)
	if err != nil {
		return err
	}
	token := common.HexToAddress(q.Token)

	var value *uint256.Int
	err = h.pool.Read(func(p *pool.Pool) error {
		var err error
		value, err = p.FeesCumulativeNow(token, ts)
		return err
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(ValueResponse{
		Token:     token.Hex(),
		Timestamp: ts,
		Value:     value.ToBig().String(),
		Fixed:     model.FormatFixed(value.ToBig()),
	})
}

func (h *Handler) getPositions(c fiber.Ctx) error {
	_, ts, err := h.parseQuery(c, false)
	if err != nil {
		return err
	}

	var positions []model.PositionSnapshot
	err = h.pool.Read(func(p *pool.Pool) error {
		positions = p.Positions(ts)
		return nil
	})
	if err != nil {
		return h.handleReadError(err)
	}
	if positions == nil {
		positions = []model.PositionSnapshot{}
	}
	return c.JSON(positions)
}

func (h *Handler) getReward(c fiber.Ctx) error {
	account, q, ts, err := h.parseAccountQuery(c)
	if err != nil {
		return err
	}
	token := common.HexToAddress(q.Token)

	var value *big.Int
	err = h.pool.Read(func(p *pool.Pool) error {
		var err error
		value, err = p.UserRewardNow(token, account, ts)
		return err
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(ValueResponse{Token: token.Hex(), Account: account.Hex(), Timestamp: ts, Value: value.String()})
}

func (h *Handler) getCumulativeDelta(c fiber.Ctx) error {
	account, q, ts, err := h.parseAccountQuery(c)
	if err != nil {
		return err
	}
	token := common.HexToAddress(q.Token)

	var value *uint256.Int
	err = h.pool.Read(func(p *pool.Pool) error {
		var err error
		value, err = p.UserCumulativeDeltaNow(token, account, ts)
		return err
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(ValueResponse{
		Token:     token.Hex(),
		Account:   account.Hex(),
		Timestamp: ts,
		Value:     value.ToBig().String(),
		Fixed:     model.FormatFixed(value.ToBig()),
	})
}

func (h *Handler) getNetOutbound(c fiber.Ctx) error {
	account, q, ts, err := h.parseAccountQuery(c)
	if err != nil {
		return err
	}
	token := common.HexToAddress(q.Token)

	var value *big.Int
	err = h.pool.Read(func(p *pool.Pool) error {
		var err error
		value, err = p.UserNetOutboundRate(token, account)
		return err
	})
	if err != nil {
		return h.handleReadError(err)
	}
	return c.JSON(ValueResponse{Token: token.Hex(), Account: account.Hex(), Timestamp: ts, Value: value.String()})
}

func (h *Handler) getFlows(c fiber.Ctx) error {
	account, err := parseAccount(c)
	if err != nil {
		return err
	}

	flows := h.flows.Flows(account)
	resp := make([]FlowResponse, 0, len(flows))
	for _, f := range flows {
		resp = append(resp, FlowResponse{
			Token:    f.Token.Hex(),
			Sender:   f.Sender.Hex(),
			Receiver: f.Receiver.Hex(),
			Rate:     f.Rate.String(),
		})
	}
	return c.JSON(resp)
}

func (h *Handler) parseQuery(c fiber.Ctx, needToken bool) (tokenQuery, uint32, error) {
	var q tokenQuery
	if err := c.Bind().Query(&q); err != nil {
		h.logger.Debug("failed to bind query parameters", zap.Error(err))
		return q, 0, ErrInvalidQueryParameters
	}

	if needToken {
		if q.Token == "" {
			return q, 0, ErrTokenRequired
		}
		if !common.IsHexAddress(q.Token) {
			return q, 0, NewInvalidAddress("token")
		}
	}

	if q.TS != "" {
		ts, err := strconv.ParseUint(q.TS, 10, 32)
		if err != nil {
			return q, 0, NewInvalidTimestamp(err)
		}
		return q, uint32(ts), nil
	}

	ts, err := h.flows.Now(c.Context())
	if err != nil {
		h.logger.Error("read host clock", zap.Error(err))
		return q, 0, ErrQueryFailedInternal
	}
	return q, ts, nil
}

func (h *Handler) parseAccountQuery(c fiber.Ctx) (common.Address, tokenQuery, uint32, error) {
	account, err := parseAccount(c)
	if err != nil {
		return common.Address{}, tokenQuery{}, 0, err
	}
	q, ts, err := h.parseQuery(c, true)
	return account, q, ts, err
}

func parseAccount(c fiber.Ctx) (common.Address, error) {
	raw := c.Params("account")
	if !common.IsHexAddress(raw) {
		return common.Address{}, NewInvalidAddress("account")
	}
	return common.HexToAddress(raw), nil
}

func (h *Handler) handleReadError(err error) error {
	switch {
	case errors.Is(err, pool.ErrUnsupportedToken):
		return ErrUnsupportedToken
	case errors.Is(err, controller.ErrNotInitialized):
		return ErrPoolUnavailable
	default:
		h.logger.Error("pool query failed", zap.Error(err))
		return ErrQueryFailedInternal
	}
}
