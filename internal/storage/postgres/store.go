package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/partmarket/internal/domain"
)

// Store implements the service store on Postgres. Entity updates are
// compare-and-swap on a version column; the ledger counter row serializes
// appends so transaction numbers stay gapless.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) error {
	const stmt = `
INSERT INTO items (id, creator, name, part_count, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := s.exec(ctx, stmt, item.ID, item.Creator, item.Name, item.PartCount, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("item %s already exists", item.ID)
		}
		return mapErr(err, domain.ErrItemNotFound, "create item")
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id string) (domain.Item, error) {
	const query = `SELECT id, creator, name, part_count, created_at FROM items WHERE id = $1`

	var it domain.Item
	err := s.queryRow(ctx, query, id).Scan(&it.ID, &it.Creator, &it.Name, &it.PartCount, &it.CreatedAt)
	if err != nil {
		return domain.Item{}, mapErr(err, domain.ErrItemNotFound, "get item")
	}
	return it, nil
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) sendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	if tx := txFromContext(ctx); tx != nil {
		return tx.SendBatch(ctx, b)
	}
	return s.pool.SendBatch(ctx, b)
}

// casMiss resolves a zero-row compare-and-swap into not-found or conflict.
func (s *Store) casMiss(ctx context.Context, table, id string, notFound error) error {
	var exists bool
	err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return mapErr(err, notFound, "check "+table)
	}
	if !exists {
		return notFound
	}
	return domain.ErrVersionConflict
}
