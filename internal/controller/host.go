package controller

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallContext is the streaming host's opaque continuation value. Every
// mutating host call takes the latest one and returns its successor; the
// final value is handed back to the host when the event completes.
type CallContext []byte

func (cc CallContext) String() string { return hexutil.Encode(cc) }

// StreamingHost is the streaming protocol as seen by the pool. Rates are
// signed int96-bounded per-second amounts.
type StreamingHost interface {
	// Now is the timestamp of the event being processed.
	Now(ctx context.Context) (uint32, error)
	FlowRate(ctx context.Context, token, sender, receiver common.Address) (*big.Int, error)
	// AccountFlowTimestamp is when the account's flows on token last changed.
	AccountFlowTimestamp(ctx context.Context, token, account common.Address) (uint32, error)

	CreateFlow(ctx context.Context, cc CallContext, token, sender, receiver common.Address, rate *big.Int) (CallContext, error)
	UpdateFlow(ctx context.Context, cc CallContext, token, sender, receiver common.Address, rate *big.Int) (CallContext, error)
	DeleteFlow(ctx context.Context, cc CallContext, token, sender, receiver common.Address) (CallContext, error)
}

// Custodian settles a participant's streamed balance into a static one.
type Custodian interface {
	SettleAccruedBalance(ctx context.Context, token, account common.Address, since uint32) error
}
