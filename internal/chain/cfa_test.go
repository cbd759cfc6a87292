package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestForwarderABIRoundTrip(t *testing.T) {
	parsed, err := CFAForwarderABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	token := common.HexToAddress("0x00000000000000000000000000000000000000a0")
	data, err := parsed.Pack("getFlowrate", token, token, token)
	if err != nil {
		t.Fatalf("pack getFlowrate: %v", err)
	}
	if len(data) != 4+3*32 {
		t.Fatalf("calldata size = %d", len(data))
	}

	method := parsed.Methods["getFlowrate"]
	resp, err := method.Outputs.Pack(big.NewInt(-385))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}
	values, err := parsed.Unpack("getFlowrate", resp)
	if err != nil {
		t.Fatalf("unpack getFlowrate: %v", err)
	}
	rate, err := decodeFlowrate(values)
	if err != nil {
		t.Fatalf("decode flowrate: %v", err)
	}
	if rate.Int64() != -385 {
		t.Fatalf("rate = %s, want -385", rate)
	}

	info := parsed.Methods["getAccountFlowInfo"]
	resp, err = info.Outputs.Pack(big.NewInt(1700000000), big.NewInt(42), big.NewInt(7), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}
	values, err = parsed.Unpack("getAccountFlowInfo", resp)
	if err != nil {
		t.Fatalf("unpack getAccountFlowInfo: %v", err)
	}
	flow, err := decodeAccountFlowInfo(values)
	if err != nil {
		t.Fatalf("decode flow info: %v", err)
	}
	if flow.LastUpdated != 1700000000 {
		t.Fatalf("lastUpdated = %d", flow.LastUpdated)
	}
	if flow.NetRate.Int64() != 42 || flow.Deposit.Int64() != 7 {
		t.Fatalf("flow info = %+v", flow)
	}
}

func TestDecodeRejectsShapes(t *testing.T) {
	if _, err := decodeFlowrate(nil); err == nil {
		t.Fatalf("expected error for empty flowrate")
	}
	if _, err := decodeFlowrate([]interface{}{"x"}); err == nil {
		t.Fatalf("expected error for string flowrate")
	}
	if _, err := decodeAccountFlowInfo([]interface{}{big.NewInt(1)}); err == nil {
		t.Fatalf("expected error for short flow info")
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	r := Retry{Retries: 3, Base: time.Millisecond}
	err := r.Do(context.Background(), "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("flaky read: err=%v calls=%d", err, calls)
	}

	calls = 0
	boom := errors.New("boom")
	err = Retry{Retries: 1, Base: time.Millisecond}.Do(context.Background(), "broken", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("broken read: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry{}.Do(context.Background(), "once", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("zero retry: err=%v calls=%d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry{Retries: 5, Base: time.Hour}.Do(ctx, "cancelled", func(context.Context) error { return boom })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled read: err=%v", err)
	}
}
