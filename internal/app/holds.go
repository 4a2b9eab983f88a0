package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/partmarket/internal/domain"
)

// holds releases parts pinned by reservations and gifts. Expiry is decided
// here from stored timestamps only.
type holds struct {
	store    Store
	registry *PartRegistry
}

// releaseReservation moves a pending reservation to status and unpins the
// parts it still holds.
func (h holds) releaseReservation(ctx context.Context, res domain.Reservation, status domain.ReservationStatus) (domain.Reservation, error) {
	parts, err := h.store.GetParts(ctx, res.PartIDs)
	if err != nil {
		return domain.Reservation{}, err
	}
	for _, p := range parts {
		if p.ReservationID == nil || *p.ReservationID != res.ID {
			continue
		}
		if _, err := h.registry.pinReservation(ctx, p, nil); err != nil {
			return domain.Reservation{}, err
		}
	}

	next := res
	next.Status = status
	if err := h.store.UpdateReservation(ctx, next, res.Version); err != nil {
		return domain.Reservation{}, err
	}
	next.Version = res.Version + 1
	return next, nil
}

// releaseGift moves a pending gift to status and hands its pinned parts
// back to the giver's free pool.
func (h holds) releaseGift(ctx context.Context, g domain.Gift, status domain.GiftStatus, txNumber *int64) (domain.Gift, error) {
	parts, err := h.store.GetParts(ctx, g.PartIDs)
	if err != nil {
		return domain.Gift{}, err
	}
	for _, p := range parts {
		if p.GiftID == nil || *p.GiftID != g.ID {
			continue
		}
		if _, err := h.registry.pinGift(ctx, p, nil); err != nil {
			return domain.Gift{}, err
		}
	}

	next := g
	next.Status = status
	next.TxNumber = txNumber
	if err := h.store.UpdateGift(ctx, next, g.Version); err != nil {
		return domain.Gift{}, err
	}
	next.Version = g.Version + 1
	return next, nil
}

// settle returns p with pins from overdue or finished reservations and gifts
// released.
func (h holds) settle(ctx context.Context, p domain.Part, now time.Time) (domain.Part, error) {
	if !p.Pinned() {
		return p, nil
	}
	reload := false

	if p.ReservationID != nil {
		res, err := h.store.GetReservation(ctx, *p.ReservationID)
		switch {
		case errors.Is(err, domain.ErrReservationNotFound):
			if p, err = h.registry.pinReservation(ctx, p, nil); err != nil {
				return domain.Part{}, err
			}
		case err != nil:
			return domain.Part{}, fmt.Errorf("load reservation %s: %w", *p.ReservationID, err)
		case res.Overdue(now):
			if _, err := h.releaseReservation(ctx, res, domain.ReservationStatusExpired); err != nil {
				return domain.Part{}, err
			}
			reload = true
		case res.Status != domain.ReservationStatusPending:
			if p, err = h.registry.pinReservation(ctx, p, nil); err != nil {
				return domain.Part{}, err
			}
		}
	}

	if reload {
		var err error
		if p, err = h.store.GetPart(ctx, p.ID); err != nil {
			return domain.Part{}, err
		}
		reload = false
	}

	if p.GiftID != nil {
		g, err := h.store.GetGift(ctx, *p.GiftID)
		switch {
		case errors.Is(err, domain.ErrGiftNotFound):
			if p, err = h.registry.pinGift(ctx, p, nil); err != nil {
				return domain.Part{}, err
			}
		case err != nil:
			return domain.Part{}, fmt.Errorf("load gift %s: %w", *p.GiftID, err)
		case g.Overdue(now):
			if _, err := h.releaseGift(ctx, g, domain.GiftStatusExpired, nil); err != nil {
				return domain.Part{}, err
			}
			reload = true
		case g.Status != domain.GiftStatusPending:
			if p, err = h.registry.pinGift(ctx, p, nil); err != nil {
				return domain.Part{}, err
			}
		}
	}

	if reload {
		return h.store.GetPart(ctx, p.ID)
	}
	return p, nil
}
