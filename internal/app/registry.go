package app

import (
	"context"

	"github.com/cimillas/partmarket/internal/domain"
)

// PartRegistry is the authoritative owner/listing table. Every mutation is
// a versioned compare-and-swap, so a stale caller fails instead of
// overwriting a concurrent change.
type PartRegistry struct {
	parts PartRepository
}

func NewPartRegistry(parts PartRepository) *PartRegistry {
	return &PartRegistry{parts: parts}
}

func (r *PartRegistry) GetOwner(ctx context.Context, partID string) (string, error) {
	p, err := r.parts.GetPart(ctx, partID)
	if err != nil {
		return "", err
	}
	return p.Owner, nil
}

// ListParts pages through parts matching filter in item/sequence order.
func (r *PartRegistry) ListParts(ctx context.Context, filter domain.PartFilter) ([]domain.Part, error) {
	if filter.Owner != "" {
		owner, err := domain.ParseAddress(filter.Owner)
		if err != nil {
			return nil, err
		}
		filter.Owner = owner
	}
	if filter.Skip < 0 || filter.Limit < 0 {
		return nil, domain.ErrInvalidRange
	}
	filter.Skip, filter.Limit = filter.Page()
	return r.parts.ListParts(ctx, filter)
}

// Transfer moves a part from fromOwner to toOwner. The part leaves any
// listing and loses any pin: it arrives free in the new owner's hands.
func (r *PartRegistry) Transfer(ctx context.Context, partID, fromOwner, toOwner string) (domain.Part, error) {
	p, err := r.parts.GetPart(ctx, partID)
	if err != nil {
		return domain.Part{}, err
	}
	if p.Owner != domain.NormalizeAddress(fromOwner) {
		return domain.Part{}, domain.ErrOwnershipMismatch
	}
	next := p
	next.Owner = domain.NormalizeAddress(toOwner)
	next.ListingID = nil
	next.ReservationID = nil
	next.GiftID = nil
	return r.swap(ctx, p, next)
}

// SetListing attaches listingID to a part, or detaches with nil. Attaching a
// second listing fails with ErrAlreadyListed.
func (r *PartRegistry) SetListing(ctx context.Context, partID string, listingID *string) (domain.Part, error) {
	p, err := r.parts.GetPart(ctx, partID)
	if err != nil {
		return domain.Part{}, err
	}
	if listingID != nil && p.ListingID != nil {
		if *p.ListingID == *listingID {
			return p, nil
		}
		return domain.Part{}, domain.ErrAlreadyListed
	}
	next := p
	next.ListingID = copyID(listingID)
	if listingID == nil {
		next.ReservationID = nil
	}
	return r.swap(ctx, p, next)
}

// pinReservation sets or clears the reservation pin on p.
func (r *PartRegistry) pinReservation(ctx context.Context, p domain.Part, reservationID *string) (domain.Part, error) {
	next := p
	next.ReservationID = copyID(reservationID)
	return r.swap(ctx, p, next)
}

// pinGift sets or clears the gift pin on p.
func (r *PartRegistry) pinGift(ctx context.Context, p domain.Part, giftID *string) (domain.Part, error) {
	next := p
	next.GiftID = copyID(giftID)
	return r.swap(ctx, p, next)
}

func (r *PartRegistry) swap(ctx context.Context, cur, next domain.Part) (domain.Part, error) {
	if err := r.parts.UpdatePart(ctx, next, cur.Version); err != nil {
		return domain.Part{}, err
	}
	next.Version = cur.Version + 1
	return next, nil
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
