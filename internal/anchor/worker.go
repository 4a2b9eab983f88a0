package anchor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/partmarket/internal/domain"
)

// Source is the part of the ledger store the worker needs.
type Source interface {
	UnanchoredTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	SetAnchorReceipt(ctx context.Context, number int64, receipt string) error
}

const (
	DefaultInterval  = 10 * time.Second
	DefaultBatchSize = 50
)

// Worker anchors unanchored ledger records in ascending order. It wakes on
// its interval and whenever Notify is called after a commit.
type Worker struct {
	source   Source
	anchorer Anchorer
	interval time.Duration
	batch    int
	logger   *zap.Logger
	wake     chan struct{}
}

func NewWorker(source Source, anchorer Anchorer, interval time.Duration, batch int, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:   source,
		anchorer: anchorer,
		interval: interval,
		batch:    batch,
		logger:   logger.With(zap.String("anchor", anchorer.Name())),
		wake:     make(chan struct{}, 1),
	}
}

// Notify asks for a pass soon. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.RunOnce(ctx)
	}
}

// RunOnce anchors up to one batch. It stops at the first failure so
// receipts keep arriving in transaction order; the rest wait for the next
// pass.
func (w *Worker) RunOnce(ctx context.Context) int {
	pending, err := w.source.UnanchoredTransactions(ctx, w.batch)
	if err != nil {
		w.logger.Warn("list unanchored transactions", zap.Error(err))
		return 0
	}
	done := 0
	for _, tx := range pending {
		receipt, err := w.anchorer.Anchor(ctx, Envelope{Hash: tx.Hash, TransactionNumber: tx.Number})
		if err != nil {
			w.logger.Warn("anchor failed, will retry",
				zap.Int64("transaction_number", tx.Number),
				zap.String("hash", tx.Hash),
				zap.Error(err),
			)
			return done
		}
		if err := w.source.SetAnchorReceipt(ctx, tx.Number, receipt); err != nil {
			w.logger.Warn("store anchor receipt",
				zap.Int64("transaction_number", tx.Number),
				zap.Error(err),
			)
			return done
		}
		w.logger.Debug("anchored",
			zap.Int64("transaction_number", tx.Number),
			zap.String("receipt", receipt),
		)
		done++
	}
	return done
}
