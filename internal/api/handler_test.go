package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"flowSwap/internal/fixedpoint"
	"flowSwap/internal/model"
	"flowSwap/internal/replay"
)

const (
	poolHex   = "0x00000000000000000000000000000000000000c0"
	hostHex   = "0x00000000000000000000000000000000000000f0"
	token0Hex = "0x00000000000000000000000000000000000000a0"
	token1Hex = "0x00000000000000000000000000000000000000a1"
	aliceHex  = "0x0000000000000000000000000000000000000001"
	bobHex    = "0x0000000000000000000000000000000000000002"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	runner, err := replay.NewRunner(replay.Config{
		Pool:   common.HexToAddress(poolHex),
		Host:   common.HexToAddress(hostHex),
		Token0: common.HexToAddress(token0Hex),
		Token1: common.HexToAddress(token1Hex),
		Fee:    new(uint256.Int).Rsh(fixedpoint.One(), 2),
	}, nil, nil, nil)
	require.NoError(t, err)

	events := strings.Join([]string{
		`{"timestamp":100,"kind":"create","token":"` + token0Hex + `","sender":"` + aliceHex + `","rate":"10"}`,
		`{"timestamp":100,"kind":"create","token":"` + token1Hex + `","sender":"` + aliceHex + `","rate":"40"}`,
		`{"timestamp":110,"kind":"create","token":"` + token0Hex + `","sender":"` + bobHex + `","rate":"10"}`,
	}, "\n")
	sum, err := runner.Run(context.Background(), strings.NewReader(events))
	require.NoError(t, err)
	require.Equal(t, 3, sum.Applied)

	h := NewHandler(runner.Controller(), runner.Host(), runner.Host().ID().Hex(), nil)
	return NewApp(h)
}

func get(t *testing.T, app *fiber.App, target string, out interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, sonnet.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func TestPoolEndpoint(t *testing.T) {
	app := newTestApp(t)

	var resp PoolResponse
	require.Equal(t, http.StatusOK, get(t, app, "/pool", &resp))
	require.Equal(t, common.HexToAddress(token0Hex).Hex(), resp.Meta.Token0)
	require.Equal(t, common.HexToAddress(hostHex).Hex(), resp.Meta.Host)
	require.Equal(t, uint32(110), resp.Snapshot.Timestamp)
	require.Equal(t, "20", resp.Snapshot.FlowIn0)
	require.Equal(t, "40", resp.Snapshot.FlowIn1)

	var inbound ValueResponse
	require.Equal(t, http.StatusOK, get(t, app, "/pool/inbound?token="+token0Hex, &inbound))
	require.Equal(t, "20", inbound.Value)

	var cum CumulativesResponse
	require.Equal(t, http.StatusOK, get(t, app, "/pool/cumulatives?ts=120", &cum))
	require.Equal(t, uint32(120), cum.Timestamp)
	require.NotEqual(t, "0", cum.Price0Cumulative)
}

func TestAccountEndpoints(t *testing.T) {
	app := newTestApp(t)

	var net ValueResponse
	require.Equal(t, http.StatusOK, get(t, app, "/accounts/"+bobHex+"/net-outbound?token="+token1Hex, &net))
	require.Equal(t, "30", net.Value)

	var reward ValueResponse
	require.Equal(t, http.StatusOK, get(t, app, "/accounts/"+aliceHex+"/reward?token="+token0Hex+"&ts=120", &reward))
	require.Equal(t, uint32(120), reward.Timestamp)

	var flows []FlowResponse
	require.Equal(t, http.StatusOK, get(t, app, "/accounts/"+bobHex+"/flows", &flows))
	require.Len(t, flows, 2)

	var positions []model.PositionSnapshot
	require.Equal(t, http.StatusOK, get(t, app, "/positions", &positions))
	require.Len(t, positions, 2)
}

func TestQueryValidation(t *testing.T) {
	app := newTestApp(t)
	stranger := "0x00000000000000000000000000000000000000ee"

	require.Equal(t, http.StatusBadRequest, get(t, app, "/pool/inbound", nil))
	require.Equal(t, http.StatusBadRequest, get(t, app, "/pool/fees?token=nope", nil))
	require.Equal(t, http.StatusNotFound, get(t, app, "/pool/fees?token="+stranger, nil))
	require.Equal(t, http.StatusBadRequest, get(t, app, "/pool/cumulatives?ts=-1", nil))
	require.Equal(t, http.StatusBadRequest, get(t, app, "/accounts/xyz/reward?token="+token0Hex, nil))
	require.Equal(t, http.StatusNotFound, get(t, app, "/accounts/"+aliceHex+"/reward?token="+stranger, nil))
}
