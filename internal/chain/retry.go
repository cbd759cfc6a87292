package chain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retry re-runs RPC reads with exponential backoff. The zero value makes a
// single attempt.
type Retry struct {
	// Retries is the number of extra attempts after the first failure.
	Retries int
	Base    time.Duration
	// Max caps the delay between attempts; zero means 30s.
	Max    time.Duration
	Logger *zap.Logger
}

// Do calls fn until it succeeds, retries run out or ctx ends. op names the
// read in logs.
func (r Retry) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := r.Base
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	ceiling := r.Max
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.Retries {
			return err
		}
		logger.Warn("rpc read failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if delay *= 2; delay > ceiling {
			delay = ceiling
		}
	}
}
