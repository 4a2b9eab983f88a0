package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cimillas/partmarket/internal/canonical"
	"github.com/cimillas/partmarket/internal/domain"
)

// HashChecker recomputes a record's hash through an independent code path.
type HashChecker interface {
	Recompute(record any) (string, error)
}

// Notifier is told when new ledger records have been committed.
type Notifier interface {
	Notify()
}

const maxLedgerRange = 500

// Ledger appends canonically hashed records. Append runs inside the
// caller's transaction so the record commits or rolls back together with
// the registry changes it describes.
type Ledger struct {
	repo     LedgerRepository
	checker  HashChecker
	notifier Notifier
	logger   *zap.Logger
	halted   atomic.Bool
}

type LedgerOption func(*Ledger)

// WithNotifier registers n to be poked after settling transactions commit.
func WithNotifier(n Notifier) LedgerOption {
	return func(l *Ledger) {
		l.notifier = n
	}
}

func NewLedger(repo LedgerRepository, checker HashChecker, logger *zap.Logger, opts ...LedgerOption) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		repo:    repo,
		checker: checker,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the next transaction number, hashes the record, checks the
// hash against the independent checker and stores it. A divergence halts
// the ledger: every later Append fails with ErrLedgerHalted.
func (l *Ledger) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if l.halted.Load() {
		return domain.Transaction{}, domain.ErrLedgerHalted
	}

	num, err := l.repo.NextTransactionNumber(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Number = num

	rec := canonical.Hashable(tx)
	hash, err := canonical.HashObject(rec)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("hash transaction: %w", err)
	}

	if l.checker != nil {
		check, err := l.checker.Recompute(tx)
		if err != nil || check != hash {
			l.halted.Store(true)
			l.logger.Error("canonical hash divergence, ledger halted",
				zap.Int64("transaction_number", num),
				zap.String("type", string(rec.Type)),
				zap.String("hash", hash),
				zap.String("check", check),
				zap.Error(err),
			)
			return domain.Transaction{}, domain.ErrHashDivergence
		}
	}

	rec.ID = uuid.NewString()
	rec.Hash = hash
	if err := l.repo.InsertTransaction(ctx, rec); err != nil {
		return domain.Transaction{}, err
	}
	return rec, nil
}

// Committed is called once the transaction holding an Append has committed.
func (l *Ledger) Committed() {
	if l.notifier != nil {
		l.notifier.Notify()
	}
}

func (l *Ledger) Halted() bool {
	return l.halted.Load()
}

func (l *Ledger) Get(ctx context.Context, number int64) (domain.Transaction, error) {
	if number <= 0 {
		return domain.Transaction{}, domain.ErrInvalidRange
	}
	return l.repo.GetTransaction(ctx, number)
}

// Range returns records with from <= number <= to, at most 500 of them.
func (l *Ledger) Range(ctx context.Context, from, to int64) ([]domain.Transaction, error) {
	if from <= 0 || to < from {
		return nil, domain.ErrInvalidRange
	}
	if to-from+1 > maxLedgerRange {
		to = from + maxLedgerRange - 1
	}
	return l.repo.ListTransactions(ctx, from, to)
}
