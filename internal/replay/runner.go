// Package replay drives a pool through a recorded sequence of stream changes
// on the in-memory host and writes the resulting state to a sink.
package replay

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowSwap/internal/controller"
	"flowSwap/internal/host"
	"flowSwap/internal/model"
	"flowSwap/internal/pool"
	"flowSwap/internal/storage"
)

// Config holds the pool setup and output policy for a replay.
type Config struct {
	Pool        common.Address
	Host        common.Address
	Initializer common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         *uint256.Int

	// SnapshotEvery is the minimum spacing in seconds between snapshots; 0
	// snapshots every distinct event timestamp.
	SnapshotEvery uint32
	// Positions writes participant rows with every snapshot, not only the last.
	Positions bool
	BatchSize int
}

// Runner owns the host and controller for one pool.
type Runner struct {
	cfg    Config
	host   *host.Memory
	ctrl   *controller.Controller
	sink   storage.Sink
	report *ReportStore
	logger *zap.Logger

	snaps    []model.PoolSnapshot
	rejected []model.EventError
}

// NewRunner initializes the pool. sink and report may be nil.
func NewRunner(cfg Config, sink storage.Sink, report *ReportStore, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Initializer == (common.Address{}) {
		cfg.Initializer = cfg.Host
	}

	h := host.NewMemory(cfg.Host, logger.Named("host"))
	ctrl := controller.New(controller.Config{
		Pool:        cfg.Pool,
		Host:        cfg.Host,
		Initializer: cfg.Initializer,
	}, h, h, logger.Named("controller"))
	if err := ctrl.Initialize(cfg.Initializer, cfg.Token0, cfg.Token1, cfg.Fee); err != nil {
		return nil, err
	}
	h.Register(cfg.Pool, ctrl)

	return &Runner{
		cfg:    cfg,
		host:   h,
		ctrl:   ctrl,
		sink:   sink,
		report: report,
		logger: logger,
	}, nil
}

func (r *Runner) Controller() *controller.Controller { return r.ctrl }

func (r *Runner) Host() *host.Memory { return r.host }

// Run applies every event in input. Rejected events are recorded and
// skipped; only sink failures and cancellation stop the run.
func (r *Runner) Run(ctx context.Context, input io.Reader) (Summary, error) {
	var sum Summary
	if r.sink != nil {
		var meta model.PoolMeta
		if err := r.ctrl.Read(func(p *pool.Pool) error {
			meta = p.Meta(r.cfg.Host.Hex())
			return nil
		}); err != nil {
			return sum, err
		}
		if err := r.sink.PutPoolMeta(ctx, meta); err != nil {
			return sum, fmt.Errorf("store pool meta: %w", err)
		}
	}

	var (
		current  uint32
		started  bool
		dirty    bool
		lastSnap uint32
		snapped  bool
	)

	err := ReadEvents(input, func(line int, ev *model.FlowEvent, decodeErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sum.Total++

		if decodeErr != nil {
			sum.Failed++
			r.logger.Warn("decode flow event", zap.Int("line", line), zap.Error(decodeErr))
			return r.reject(ctx, model.EventError{Line: line, Error: decodeErr.Error()})
		}

		if started && ev.Timestamp < current {
			sum.Rejected++
			return r.reject(ctx, eventError(line, *ev, fmt.Errorf("timestamp %d before %d", ev.Timestamp, current)))
		}
		if started && ev.Timestamp > current && dirty {
			if !snapped || r.cfg.SnapshotEvery == 0 || current-lastSnap >= r.cfg.SnapshotEvery {
				if err := r.snapshot(ctx, current, r.cfg.Positions); err != nil {
					return err
				}
				sum.Snapshots++
				lastSnap, snapped = current, true
			}
			dirty = false
		}
		if err := r.host.SetTime(ev.Timestamp); err != nil {
			return err
		}
		current, started = ev.Timestamp, true

		op, err := ToOp(*ev, r.cfg.Pool)
		if err == nil {
			err = r.host.Submit(ctx, op)
		}
		if err != nil {
			sum.Rejected++
			r.logger.Warn("flow event rejected", zap.Int("line", line), zap.Uint32("ts", ev.Timestamp), zap.Error(err))
			return r.reject(ctx, eventError(line, *ev, err))
		}
		sum.Applied++
		dirty = true
		return nil
	})
	if err != nil {
		return sum, err
	}

	if started {
		if err := r.snapshot(ctx, current, true); err != nil {
			return sum, err
		}
		sum.Snapshots++
		sum.LastTimestamp = current
	}
	if err := r.flush(ctx); err != nil {
		return sum, err
	}
	if err := r.report.Save(sum); err != nil {
		return sum, err
	}

	r.logger.Info("replay complete",
		zap.Int("total", sum.Total),
		zap.Int("applied", sum.Applied),
		zap.Int("rejected", sum.Rejected),
		zap.Int("failed", sum.Failed),
		zap.Int("snapshots", sum.Snapshots),
	)
	return sum, nil
}

func (r *Runner) snapshot(ctx context.Context, ts uint32, withPositions bool) error {
	var positions []model.PositionSnapshot
	err := r.ctrl.Read(func(p *pool.Pool) error {
		if err := p.CheckInvariants(); err != nil {
			return err
		}
		r.snaps = append(r.snaps, p.Snapshot(ts))
		if withPositions {
			positions = p.Positions(ts)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot at %d: %w", ts, err)
	}
	if r.sink != nil && len(positions) > 0 {
		if err := r.sink.PutPositions(ctx, positions); err != nil {
			return fmt.Errorf("store positions: %w", err)
		}
	}
	if len(r.snaps) >= r.cfg.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

func (r *Runner) reject(ctx context.Context, e model.EventError) error {
	r.rejected = append(r.rejected, e)
	if len(r.rejected) >= r.cfg.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

func (r *Runner) flush(ctx context.Context) error {
	if r.sink != nil {
		if err := r.sink.PutSnapshots(ctx, r.snaps); err != nil {
			return fmt.Errorf("store snapshots: %w", err)
		}
		if err := r.sink.PutEventErrors(ctx, r.rejected); err != nil {
			return fmt.Errorf("store rejected events: %w", err)
		}
	}
	r.snaps = r.snaps[:0]
	r.rejected = r.rejected[:0]
	return nil
}

func eventError(line int, ev model.FlowEvent, err error) model.EventError {
	return model.EventError{
		Line:      line,
		Timestamp: ev.Timestamp,
		Kind:      ev.Kind,
		Token:     ev.Token,
		Sender:    ev.Sender,
		Error:     err.Error(),
	}
}
