package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/partmarket/internal/domain"
)

// NextTransactionNumber bumps the single counter row. The row stays locked
// until the surrounding transaction ends, so a rolled-back append leaves no
// gap.
func (s *Store) NextTransactionNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx, `UPDATE ledger_head SET last_number = last_number + 1 WHERE id RETURNING last_number`).Scan(&n)
	if err != nil {
		return 0, mapErr(err, fmt.Errorf("ledger_head row missing"), "next transaction number")
	}
	return n, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	payload, err := json.Marshal(tx.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	const stmt = `
INSERT INTO transactions (id, transaction_number, type, timestamp, signer, signature, payload, hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.exec(ctx, stmt, tx.ID, tx.Number, tx.Type, tx.Timestamp, tx.Signer, tx.Signature, payload, tx.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %d already recorded: %w", tx.Number, err)
		}
		return mapErr(err, domain.ErrTransactionNotFound, "insert transaction")
	}
	return nil
}

const transactionColumns = `id, transaction_number, type, timestamp, signer, signature, payload, hash, anchor_receipt`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		tx  domain.Transaction
		raw []byte
	)
	if err := row.Scan(&tx.ID, &tx.Number, &tx.Type, &tx.Timestamp, &tx.Signer, &tx.Signature, &raw, &tx.Hash, &tx.AnchorReceipt); err != nil {
		return domain.Transaction{}, err
	}
	payload, err := domain.DecodePayload(tx.Type, raw)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Payload = payload
	tx.Timestamp = tx.Timestamp.UTC()
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, number int64) (domain.Transaction, error) {
	tx, err := scanTransaction(s.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_number = $1`, number))
	if err != nil {
		return domain.Transaction{}, mapErr(err, domain.ErrTransactionNotFound, "get transaction")
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, from, to int64) ([]domain.Transaction, error) {
	const query = `SELECT ` + transactionColumns + `
FROM transactions
WHERE transaction_number BETWEEN $1 AND $2
ORDER BY transaction_number`
	return s.listTransactions(ctx, query, from, to)
}

func (s *Store) UnanchoredTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	const query = `SELECT ` + transactionColumns + `
FROM transactions
WHERE anchor_receipt IS NULL
ORDER BY transaction_number
LIMIT $1`
	return s.listTransactions(ctx, query, limit)
}

// SetAnchorReceipt records the receipt once; later calls keep the first.
func (s *Store) SetAnchorReceipt(ctx context.Context, number int64, receipt string) error {
	const stmt = `
UPDATE transactions
SET anchor_receipt = $2, anchored_at = NOW()
WHERE transaction_number = $1 AND anchor_receipt IS NULL`

	tag, err := s.exec(ctx, stmt, number, receipt)
	if err != nil {
		return mapErr(err, domain.ErrTransactionNotFound, "set anchor receipt")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTransaction(ctx, number); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, domain.ErrTransactionNotFound, "list transactions")
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, domain.ErrTransactionNotFound, "list transactions")
	}
	return out, nil
}
