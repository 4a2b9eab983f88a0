package app

import (
	"context"
	"strconv"
	"strings"

	"github.com/cimillas/partmarket/internal/clock"
	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/signer"
)

type ListingService struct {
	store    Store
	registry *PartRegistry
	holds    holds
	ledger   *Ledger
	verifier signer.Verifier
	clock    clock.Clock
}

func NewListingService(store Store, ledger *Ledger, verifier signer.Verifier, clk clock.Clock) *ListingService {
	registry := NewPartRegistry(store)
	return &ListingService{
		store:    store,
		registry: registry,
		holds:    holds{store: store, registry: registry},
		ledger:   ledger,
		verifier: verifier,
		clock:    clk,
	}
}

type CreateListingInput struct {
	Seller    string
	ItemID    string
	PartIDs   []string
	UnitPrice string
	Bundle    bool
	Signature string
}

func (in CreateListingInput) Message() []byte {
	return signer.Message(string(domain.TxListingCreate), map[string]string{
		"seller":     domain.NormalizeAddress(in.Seller),
		"item_id":    in.ItemID,
		"part_ids":   strings.Join(in.PartIDs, ","),
		"unit_price": strings.TrimSpace(in.UnitPrice),
		"bundle":     strconv.FormatBool(in.Bundle),
	})
}

type ListingResult struct {
	Listing     domain.Listing
	Transaction domain.Transaction
}

// CreateListing offers parts the seller owns. Every part must be owned by
// the seller, belong to the item, and be neither listed nor pinned; any
// violation leaves no trace.
func (s *ListingService) CreateListing(ctx context.Context, in CreateListingInput) (ListingResult, error) {
	seller, err := domain.ParseAddress(in.Seller)
	if err != nil {
		return ListingResult{}, err
	}
	itemID, err := parseID(in.ItemID)
	if err != nil {
		return ListingResult{}, err
	}
	if len(in.PartIDs) == 0 {
		return ListingResult{}, domain.ErrEmptyPartSet
	}
	seen := make(map[string]struct{}, len(in.PartIDs))
	for _, id := range in.PartIDs {
		if id == "" {
			return ListingResult{}, domain.ErrInvalidID
		}
		if _, dup := seen[id]; dup {
			return ListingResult{}, domain.ErrDuplicatePart
		}
		seen[id] = struct{}{}
	}
	price, err := parsePrice(in.UnitPrice)
	if err != nil {
		return ListingResult{}, err
	}
	if err := checkSignature(s.verifier, seller, in.Message(), in.Signature); err != nil {
		return ListingResult{}, err
	}

	now := s.clock.Now()
	var result ListingResult
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		if _, err := s.store.GetItem(txCtx, itemID); err != nil {
			return err
		}
		parts, err := s.store.GetParts(txCtx, in.PartIDs)
		if err != nil {
			return err
		}
		for i, p := range parts {
			if p.ItemID != itemID {
				return domain.ErrPartItemMismatch
			}
			if p.Owner != seller {
				return domain.ErrPartNotOwned
			}
			if p.Listed() {
				return domain.ErrPartAlreadyListed
			}
			if parts[i], err = s.holds.settle(txCtx, p, now); err != nil {
				return err
			}
			if parts[i].Pinned() {
				return domain.ErrPartPinned
			}
		}

		listing := domain.Listing{
			ID:        newID(),
			Seller:    seller,
			ItemID:    itemID,
			UnitPrice: price,
			Bundle:    in.Bundle,
			PartIDs:   partIDsOf(parts),
			Status:    domain.ListingStatusActive,
			CreatedAt: now,
		}
		if err := s.store.CreateListing(txCtx, listing); err != nil {
			return err
		}
		for _, p := range parts {
			if _, err := s.registry.SetListing(txCtx, p.ID, &listing.ID); err != nil {
				return err
			}
		}

		rec, err := s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxListingCreate,
			Timestamp: now,
			Signer:    seller,
			Signature: in.Signature,
			Payload: domain.ListingCreatePayload{
				ListingID: listing.ID,
				ItemID:    itemID,
				Seller:    seller,
				PartIDs:   listing.PartIDs,
				UnitPrice: price,
				Bundle:    in.Bundle,
			},
		})
		if err != nil {
			return err
		}
		result = ListingResult{Listing: listing, Transaction: rec}
		return nil
	})
	if err != nil {
		return ListingResult{}, err
	}
	s.ledger.Committed()
	return result, nil
}

type CancelListingInput struct {
	ListingID string
	Seller    string
	Signature string
}

func (in CancelListingInput) Message() []byte {
	return signer.Message(string(domain.TxListingCancel), map[string]string{
		"listing_id": in.ListingID,
		"seller":     domain.NormalizeAddress(in.Seller),
	})
}

// CancelListing withdraws an active listing. Pending reservations on it are
// cancelled and every remaining part is detached. A cancel racing a
// consume is decided by whichever commits first; the loser sees a terminal
// state error.
func (s *ListingService) CancelListing(ctx context.Context, in CancelListingInput) (ListingResult, error) {
	listingID, err := parseID(in.ListingID)
	if err != nil {
		return ListingResult{}, err
	}
	seller, err := domain.ParseAddress(in.Seller)
	if err != nil {
		return ListingResult{}, err
	}
	if err := checkSignature(s.verifier, seller, in.Message(), in.Signature); err != nil {
		return ListingResult{}, err
	}

	now := s.clock.Now()
	var result ListingResult
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		listing, err := s.store.GetListing(txCtx, listingID)
		if err != nil {
			return err
		}
		if listing.Seller != seller {
			return domain.ErrNotSeller
		}
		if !listing.Active() {
			return domain.ErrListingNotActive
		}

		pending, err := s.store.PendingReservations(txCtx, listing.ID)
		if err != nil {
			return err
		}
		for _, res := range pending {
			status := domain.ReservationStatusCancelled
			if res.Overdue(now) {
				status = domain.ReservationStatusExpired
			}
			if _, err := s.holds.releaseReservation(txCtx, res, status); err != nil {
				return err
			}
		}

		released := append([]string(nil), listing.PartIDs...)
		for _, id := range released {
			if _, err := s.registry.SetListing(txCtx, id, nil); err != nil {
				return err
			}
		}

		rec, err := s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxListingCancel,
			Timestamp: now,
			Signer:    seller,
			Signature: in.Signature,
			Payload: domain.ListingCancelPayload{
				ListingID: listing.ID,
				ItemID:    listing.ItemID,
				Seller:    seller,
				PartIDs:   released,
			},
		})
		if err != nil {
			return err
		}

		next := listing
		next.Status = domain.ListingStatusCancelled
		next.TerminalTx = &rec.Number
		next.PartIDs = nil
		if err := s.store.UpdateListing(txCtx, next, listing.Version); err != nil {
			return err
		}
		next.Version = listing.Version + 1
		result = ListingResult{Listing: next, Transaction: rec}
		return nil
	})
	if err != nil {
		return ListingResult{}, err
	}
	s.ledger.Committed()
	return result, nil
}

func (s *ListingService) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	listingID, err := parseID(id)
	if err != nil {
		return domain.Listing{}, err
	}
	return s.store.GetListing(ctx, listingID)
}
