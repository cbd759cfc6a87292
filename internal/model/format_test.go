package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "1.5", FormatAmount(big.NewInt(1_500_000), 6))
	require.Equal(t, "-0.25", FormatAmount(big.NewInt(-25), 2))
	require.Equal(t, "42", FormatAmount(big.NewInt(42), 0))
	require.Equal(t, "0", FormatAmount(nil, 18))
}

func TestFixedRoundTrip(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), 128)
	require.Equal(t, "1", FormatFixed(one))
	require.Equal(t, "0.5", FormatFixed(new(big.Int).Rsh(one, 1)))

	quarter, err := ParseFixed("0.25")
	require.NoError(t, err)
	require.Zero(t, quarter.Cmp(new(big.Int).Rsh(one, 2)))

	_, err = ParseFixed("not-a-number")
	require.Error(t, err)
}

func TestFlowEventJSONFieldNames(t *testing.T) {
	ev := FlowEvent{
		Timestamp: 1700000000,
		Kind:      EventCreate,
		Token:     "0x1111111111111111111111111111111111111111",
		Sender:    "0x2222222222222222222222222222222222222222",
		Receiver:  "0x3333333333333333333333333333333333333333",
		Rate:      "1000",
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "create", decoded["kind"])
	require.Equal(t, "1000", decoded["rate"])
	require.EqualValues(t, 1700000000, decoded["timestamp"])
}

func TestParseEventKind(t *testing.T) {
	kind, err := ParseEventKind(" Terminated ")
	require.NoError(t, err)
	require.Equal(t, EventDelete, kind)

	_, err = ParseEventKind("swap")
	require.Error(t, err)
}
