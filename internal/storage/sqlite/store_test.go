package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"flowSwap/internal/model"
)

func TestStoreUpsertsSnapshots(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "flowswap.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutPoolMeta(ctx, model.PoolMeta{Address: "0xpool", Token0: "0xa", Token1: "0xb", Fee: "0", Host: "0xhost"}))
	require.NoError(t, store.PutSnapshots(ctx, []model.PoolSnapshot{
		{Pool: "0xpool", Timestamp: 10, FlowIn0: "1", Participants: 1},
		{Pool: "0xpool", Timestamp: 20, FlowIn0: "2", Participants: 2},
	}))
	// same key replaces
	require.NoError(t, store.PutSnapshots(ctx, []model.PoolSnapshot{
		{Pool: "0xpool", Timestamp: 20, FlowIn0: "3", Participants: 2},
	}))

	n, err := store.CountSnapshots(ctx, "0xpool")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	latest, err := store.LatestSnapshot(ctx, "0xpool")
	require.NoError(t, err)
	require.Equal(t, uint32(20), latest.Timestamp)
	require.Equal(t, "3", latest.FlowIn0)

	require.NoError(t, store.PutPositions(ctx, []model.PositionSnapshot{{Pool: "0xpool", Account: "0x1", Timestamp: 20, Reward0: "-5"}}))
	require.NoError(t, store.PutEventErrors(ctx, []model.EventError{{Line: 4, Kind: model.EventCreate, Error: "nope"}}))
}
