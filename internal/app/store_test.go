package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cimillas/partmarket/internal/domain"
)

type scriptedTx struct {
	calls int
	fail  int
}

func (s *scriptedTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	if s.calls <= s.fail {
		return domain.ErrVersionConflict
	}
	return fn(ctx)
}

func TestWithRetry(t *testing.T) {
	ok := func(context.Context) error { return nil }

	t.Run("lost races are retried", func(t *testing.T) {
		tx := &scriptedTx{fail: maxConflictRetries}
		assert.NoError(t, withRetry(context.Background(), tx, ok))
		assert.Equal(t, maxConflictRetries+1, tx.calls)
	})

	t.Run("an exhausted budget is contention, not a conflict", func(t *testing.T) {
		tx := &scriptedTx{fail: 1 << 10}
		err := withRetry(context.Background(), tx, ok)
		assert.ErrorIs(t, err, domain.ErrContention)
		assert.False(t, errors.Is(err, domain.ErrVersionConflict))
		assert.Equal(t, domain.ErrContention, domain.Sentinel(err))
		assert.Equal(t, maxConflictRetries+1, tx.calls)
	})

	t.Run("other errors return at once", func(t *testing.T) {
		boom := errors.New("boom")
		tx := &scriptedTx{}
		err := withRetry(context.Background(), tx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, tx.calls)
	})

	t.Run("a cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		tx := &scriptedTx{fail: 1 << 10}
		assert.ErrorIs(t, withRetry(ctx, tx, ok), context.Canceled)
		assert.Equal(t, 1, tx.calls)
	})
}
