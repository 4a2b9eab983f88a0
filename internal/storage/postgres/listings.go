package postgres

import (
	"context"
	"fmt"

	"github.com/cimillas/partmarket/internal/domain"
)

func (s *Store) CreateListing(ctx context.Context, l domain.Listing) error {
	const stmt = `
INSERT INTO listings (id, seller, item_id, unit_price, bundle, status, terminal_tx, version, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`

	_, err := s.exec(ctx, stmt, l.ID, l.Seller, l.ItemID, l.UnitPrice, l.Bundle, l.Status, l.TerminalTx, l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("listing %s already exists", l.ID)
		}
		return mapErr(err, domain.ErrItemNotFound, "create listing")
	}
	return nil
}

// GetListing derives PartIDs from the parts that reference the listing,
// in mint order.
func (s *Store) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	const query = `
SELECT id, seller, item_id, unit_price, bundle, status, terminal_tx, version, created_at
FROM listings
WHERE id = $1`

	var l domain.Listing
	err := s.queryRow(ctx, query, id).Scan(
		&l.ID, &l.Seller, &l.ItemID, &l.UnitPrice, &l.Bundle, &l.Status, &l.TerminalTx, &l.Version, &l.CreatedAt,
	)
	if err != nil {
		return domain.Listing{}, mapErr(err, domain.ErrListingNotFound, "get listing")
	}

	rows, err := s.query(ctx, `SELECT id FROM parts WHERE listing_id = $1 ORDER BY seq`, id)
	if err != nil {
		return domain.Listing{}, mapErr(err, domain.ErrListingNotFound, "listing parts")
	}
	defer rows.Close()
	l.PartIDs = []string{}
	for rows.Next() {
		var partID string
		if err := rows.Scan(&partID); err != nil {
			return domain.Listing{}, fmt.Errorf("scan listing part: %w", err)
		}
		l.PartIDs = append(l.PartIDs, partID)
	}
	if err := rows.Err(); err != nil {
		return domain.Listing{}, mapErr(err, domain.ErrListingNotFound, "listing parts")
	}
	return l, nil
}

// LockListing takes the listing row lock. Reservers of one listing queue
// here instead of racing for the same free part.
func (s *Store) LockListing(ctx context.Context, id string) error {
	var locked string
	err := s.queryRow(ctx, `SELECT id FROM listings WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return mapErr(err, domain.ErrListingNotFound, "lock listing")
}

func (s *Store) UpdateListing(ctx context.Context, l domain.Listing, expectedVersion int64) error {
	const stmt = `
UPDATE listings
SET status = $2, terminal_tx = $3, version = version + 1
WHERE id = $1 AND version = $4`

	tag, err := s.exec(ctx, stmt, l.ID, l.Status, l.TerminalTx, expectedVersion)
	if err != nil {
		return mapErr(err, domain.ErrListingNotFound, "update listing")
	}
	if tag.RowsAffected() == 0 {
		return s.casMiss(ctx, "listings", l.ID, domain.ErrListingNotFound)
	}
	return nil
}
