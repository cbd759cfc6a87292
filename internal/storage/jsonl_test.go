package storage

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"flowSwap/internal/model"
)

func readLines[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var v T
		require.NoError(t, sonnet.Unmarshal(scanner.Bytes(), &v))
		out = append(out, v)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestJsonlSinkAppends(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	sink := NewJsonlSink(dir)

	require.NoError(t, sink.PutPoolMeta(ctx, model.PoolMeta{Address: "0xpool", Token0: "0xa", Token1: "0xb", Fee: "1"}))
	require.NoError(t, sink.PutSnapshots(ctx, []model.PoolSnapshot{{Pool: "0xpool", Timestamp: 1, FlowIn0: "10"}}))
	require.NoError(t, sink.PutSnapshots(ctx, []model.PoolSnapshot{{Pool: "0xpool", Timestamp: 2, FlowIn0: "20"}}))
	require.NoError(t, sink.PutPositions(ctx, nil))
	require.NoError(t, sink.PutEventErrors(ctx, []model.EventError{{Line: 3, Kind: model.EventUpdate, Error: "boom"}}))
	require.NoError(t, sink.Close())

	snaps := readLines[model.PoolSnapshot](t, filepath.Join(dir, SnapshotsFile))
	require.Len(t, snaps, 2)
	require.Equal(t, uint32(2), snaps[1].Timestamp)
	require.Equal(t, "20", snaps[1].FlowIn0)

	metas := readLines[model.PoolMeta](t, filepath.Join(dir, PoolsFile))
	require.Equal(t, "0xpool", metas[0].Address)

	rejected := readLines[model.EventError](t, filepath.Join(dir, RejectedFile))
	require.Equal(t, 3, rejected[0].Line)
	require.Equal(t, model.EventUpdate, rejected[0].Kind)

	_, err := os.Stat(filepath.Join(dir, PositionsFile))
	require.True(t, os.IsNotExist(err), "empty batches create no file")
}
