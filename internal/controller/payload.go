package controller

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"flowSwap/internal/fixedpoint"
)

// Payload is carried from the before-change callback to the matching
// update or terminate callback.
type Payload struct {
	PreviousRate *big.Int
	SettledAt    [2]uint32
}

var (
	payloadArgs     abi.Arguments
	payloadArgsOnce sync.Once
	payloadArgsErr  error
)

func getPayloadArgs() (abi.Arguments, error) {
	payloadArgsOnce.Do(func() {
		int96Type, err := abi.NewType("int96", "", nil)
		if err != nil {
			payloadArgsErr = err
			return
		}
		uint32Type, err := abi.NewType("uint32", "", nil)
		if err != nil {
			payloadArgsErr = err
			return
		}
		payloadArgs = abi.Arguments{
			{Name: "previousRate", Type: int96Type},
			{Name: "settledAt0", Type: uint32Type},
			{Name: "settledAt1", Type: uint32Type},
		}
	})
	return payloadArgs, payloadArgsErr
}

// EncodePayload ABI-encodes p as (int96, uint32, uint32).
func EncodePayload(p Payload) ([]byte, error) {
	args, err := getPayloadArgs()
	if err != nil {
		return nil, err
	}
	if err := fixedpoint.CheckRate(p.PreviousRate); err != nil {
		return nil, err
	}
	data, err := args.Pack(p.PreviousRate, p.SettledAt[0], p.SettledAt[1])
	if err != nil {
		return nil, fmt.Errorf("pack payload: %w", err)
	}
	return data, nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(data []byte) (Payload, error) {
	args, err := getPayloadArgs()
	if err != nil {
		return Payload{}, err
	}
	values, err := args.Unpack(data)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(values) != 3 {
		return Payload{}, fmt.Errorf("%w: %d values", ErrInvalidPayload, len(values))
	}
	rate, ok := values[0].(*big.Int)
	if !ok {
		return Payload{}, fmt.Errorf("%w: rate type %T", ErrInvalidPayload, values[0])
	}
	ts0, ok0 := values[1].(uint32)
	ts1, ok1 := values[2].(uint32)
	if !ok0 || !ok1 {
		return Payload{}, fmt.Errorf("%w: timestamp types %T %T", ErrInvalidPayload, values[1], values[2])
	}
	return Payload{PreviousRate: rate, SettledAt: [2]uint32{ts0, ts1}}, nil
}
