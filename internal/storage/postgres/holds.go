package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/partmarket/internal/domain"
)

const reservationColumns = `id, listing_id, buyer, part_ids, status, tx_number, version, created_at, expires_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.ListingID, &r.Buyer, &r.PartIDs, &r.Status, &r.TxNumber, &r.Version, &r.CreatedAt, &r.ExpiresAt)
	return r, err
}

func (s *Store) CreateReservation(ctx context.Context, r domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, listing_id, buyer, part_ids, status, tx_number, version, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`

	_, err := s.exec(ctx, stmt, r.ID, r.ListingID, r.Buyer, r.PartIDs, r.Status, r.TxNumber, r.CreatedAt, r.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reservation %s already exists", r.ID)
		}
		return mapErr(err, domain.ErrListingNotFound, "create reservation")
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	r, err := scanReservation(s.queryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		return domain.Reservation{}, mapErr(err, domain.ErrReservationNotFound, "get reservation")
	}
	return r, nil
}

func (s *Store) UpdateReservation(ctx context.Context, r domain.Reservation, expectedVersion int64) error {
	const stmt = `
UPDATE reservations
SET status = $2, tx_number = $3, version = version + 1
WHERE id = $1 AND version = $4`

	tag, err := s.exec(ctx, stmt, r.ID, r.Status, r.TxNumber, expectedVersion)
	if err != nil {
		return mapErr(err, domain.ErrReservationNotFound, "update reservation")
	}
	if tag.RowsAffected() == 0 {
		return s.casMiss(ctx, "reservations", r.ID, domain.ErrReservationNotFound)
	}
	return nil
}

func (s *Store) PendingReservations(ctx context.Context, listingID string) ([]domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + `
FROM reservations
WHERE listing_id = $1 AND status = 'pending'
ORDER BY created_at`
	return s.listReservations(ctx, query, listingID)
}

func (s *Store) OverdueReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + `
FROM reservations
WHERE status = 'pending' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`
	return s.listReservations(ctx, query, now, limit)
}

func (s *Store) listReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, domain.ErrReservationNotFound, "list reservations")
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, domain.ErrReservationNotFound, "list reservations")
	}
	return out, nil
}

const giftColumns = `id, giver, receiver, item_id, quantity, part_ids, status, tx_number, version, created_at, expires_at`

func scanGift(row pgx.Row) (domain.Gift, error) {
	var g domain.Gift
	err := row.Scan(&g.ID, &g.Giver, &g.Receiver, &g.ItemID, &g.Quantity, &g.PartIDs, &g.Status, &g.TxNumber, &g.Version, &g.CreatedAt, &g.ExpiresAt)
	return g, err
}

func (s *Store) CreateGift(ctx context.Context, g domain.Gift) error {
	const stmt = `
INSERT INTO gifts (id, giver, receiver, item_id, quantity, part_ids, status, tx_number, version, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)`

	_, err := s.exec(ctx, stmt, g.ID, g.Giver, g.Receiver, g.ItemID, g.Quantity, g.PartIDs, g.Status, g.TxNumber, g.CreatedAt, g.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("gift %s already exists", g.ID)
		}
		return mapErr(err, domain.ErrItemNotFound, "create gift")
	}
	return nil
}

func (s *Store) GetGift(ctx context.Context, id string) (domain.Gift, error) {
	g, err := scanGift(s.queryRow(ctx, `SELECT `+giftColumns+` FROM gifts WHERE id = $1`, id))
	if err != nil {
		return domain.Gift{}, mapErr(err, domain.ErrGiftNotFound, "get gift")
	}
	return g, nil
}

func (s *Store) UpdateGift(ctx context.Context, g domain.Gift, expectedVersion int64) error {
	const stmt = `
UPDATE gifts
SET status = $2, tx_number = $3, version = version + 1
WHERE id = $1 AND version = $4`

	tag, err := s.exec(ctx, stmt, g.ID, g.Status, g.TxNumber, expectedVersion)
	if err != nil {
		return mapErr(err, domain.ErrGiftNotFound, "update gift")
	}
	if tag.RowsAffected() == 0 {
		return s.casMiss(ctx, "gifts", g.ID, domain.ErrGiftNotFound)
	}
	return nil
}

func (s *Store) OverdueGifts(ctx context.Context, now time.Time, limit int) ([]domain.Gift, error) {
	const query = `SELECT ` + giftColumns + `
FROM gifts
WHERE status = 'pending' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

	rows, err := s.query(ctx, query, now, limit)
	if err != nil {
		return nil, mapErr(err, domain.ErrGiftNotFound, "overdue gifts")
	}
	defer rows.Close()

	var out []domain.Gift
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, domain.ErrGiftNotFound, "overdue gifts")
	}
	return out, nil
}
