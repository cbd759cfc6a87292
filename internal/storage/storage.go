package storage

import (
	"context"

	"flowSwap/internal/model"
)

// Sink receives pool state rendered during a replay.
type Sink interface {
	PutPoolMeta(ctx context.Context, meta model.PoolMeta) error
	PutSnapshots(ctx context.Context, snaps []model.PoolSnapshot) error
	PutPositions(ctx context.Context, positions []model.PositionSnapshot) error
	PutEventErrors(ctx context.Context, rejected []model.EventError) error
	Close() error
}
