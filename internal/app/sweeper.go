package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer releases overdue holds in batches.
type Expirer interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper eagerly expires overdue reservations and gifts. Lazy expiry on
// read and write paths does not depend on it running.
type Sweeper struct {
	expirers []Expirer
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

const defaultSweepBatch = 100

func NewSweeper(interval time.Duration, logger *zap.Logger, expirers ...Expirer) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		expirers: expirers,
		interval: interval,
		batch:    defaultSweepBatch,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains each expirer until a batch comes back short.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	total := 0
	for _, e := range s.expirers {
		for ctx.Err() == nil {
			n, err := e.SweepExpired(ctx, s.batch)
			if err != nil {
				s.logger.Warn("sweep expired holds", zap.Error(err))
				break
			}
			total += n
			if n < s.batch {
				break
			}
		}
	}
	if total > 0 {
		s.logger.Info("expired holds released", zap.Int("count", total))
	}
	return total
}
