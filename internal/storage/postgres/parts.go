package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/partmarket/internal/domain"
)

const partColumns = `id, item_id, seq, owner, listing_id, reservation_id, gift_id, version`

func scanPart(row pgx.Row) (domain.Part, error) {
	var p domain.Part
	err := row.Scan(&p.ID, &p.ItemID, &p.Seq, &p.Owner, &p.ListingID, &p.ReservationID, &p.GiftID, &p.Version)
	return p, err
}

func (s *Store) CreateParts(ctx context.Context, parts []domain.Part) error {
	const stmt = `
INSERT INTO parts (id, item_id, seq, owner, version)
VALUES ($1, $2, $3, $4, 0)`

	b := &pgx.Batch{}
	for _, p := range parts {
		b.Queue(stmt, p.ID, p.ItemID, p.Seq, p.Owner)
	}
	br := s.sendBatch(ctx, b)
	defer br.Close()
	for range parts {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create parts: duplicate part: %w", err)
			}
			return mapErr(err, domain.ErrItemNotFound, "create parts")
		}
	}
	return nil
}

func (s *Store) GetPart(ctx context.Context, id string) (domain.Part, error) {
	p, err := scanPart(s.queryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id = $1`, id))
	if err != nil {
		return domain.Part{}, mapErr(err, domain.ErrPartNotFound, "get part")
	}
	return p, nil
}

// GetParts returns the parts in the order of ids.
func (s *Store) GetParts(ctx context.Context, ids []string) ([]domain.Part, error) {
	found, err := s.listParts(ctx, `SELECT `+partColumns+` FROM parts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Part, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]domain.Part, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPartNotFound, id)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) ListParts(ctx context.Context, filter domain.PartFilter) ([]domain.Part, error) {
	skip, limit := filter.Page()
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Owner != "" {
		add("owner = ?", filter.Owner)
	}
	if filter.ItemID != "" {
		add("item_id = ?", filter.ItemID)
	}
	if filter.ListingID != "" {
		add("listing_id = ?", filter.ListingID)
	}

	q := `SELECT ` + partColumns + ` FROM parts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, skip)
	q += fmt.Sprintf(` ORDER BY item_id, seq LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return s.listParts(ctx, q, args...)
}

func (s *Store) UnlistedParts(ctx context.Context, itemID, owner string) ([]domain.Part, error) {
	const query = `SELECT ` + partColumns + `
FROM parts
WHERE item_id = $1 AND owner = $2 AND listing_id IS NULL
ORDER BY seq`
	return s.listParts(ctx, query, itemID, owner)
}

func (s *Store) UpdatePart(ctx context.Context, part domain.Part, expectedVersion int64) error {
	const stmt = `
UPDATE parts
SET owner = $2, listing_id = $3, reservation_id = $4, gift_id = $5, version = version + 1
WHERE id = $1 AND version = $6`

	tag, err := s.exec(ctx, stmt, part.ID, part.Owner, part.ListingID, part.ReservationID, part.GiftID, expectedVersion)
	if err != nil {
		return mapErr(err, domain.ErrPartNotFound, "update part")
	}
	if tag.RowsAffected() == 0 {
		return s.casMiss(ctx, "parts", part.ID, domain.ErrPartNotFound)
	}
	return nil
}

func (s *Store) listParts(ctx context.Context, query string, args ...any) ([]domain.Part, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, domain.ErrPartNotFound, "list parts")
	}
	defer rows.Close()

	out := []domain.Part{}
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, domain.ErrPartNotFound, "list parts")
	}
	return out, nil
}
