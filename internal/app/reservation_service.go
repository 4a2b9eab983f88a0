package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/partmarket/internal/clock"
	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/signer"
)

const DefaultReservationTTL = 180 * time.Second

type ReservationService struct {
	store    Store
	registry *PartRegistry
	holds    holds
	ledger   *Ledger
	verifier signer.Verifier
	clock    clock.Clock
	ttl      time.Duration
	logger   *zap.Logger
}

type ReservationOption func(*ReservationService)

func WithReservationTTL(ttl time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithReservationLogger(logger *zap.Logger) ReservationOption {
	return func(s *ReservationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewReservationService(store Store, ledger *Ledger, verifier signer.Verifier, clk clock.Clock, opts ...ReservationOption) *ReservationService {
	registry := NewPartRegistry(store)
	s := &ReservationService{
		store:    store,
		registry: registry,
		holds:    holds{store: store, registry: registry},
		ledger:   ledger,
		verifier: verifier,
		clock:    clk,
		ttl:      DefaultReservationTTL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ReserveInput struct {
	ListingID string
	Buyer     string
	Quantity  int
	Signature string
}

func (in ReserveInput) Message() []byte {
	return signer.Message("RESERVE", map[string]string{
		"listing_id": in.ListingID,
		"buyer":      domain.NormalizeAddress(in.Buyer),
		"quantity":   itoa(in.Quantity),
	})
}

// Reserve pins the first Quantity free parts of a listing, in mint order,
// to a new pending reservation. Selection and pinning happen in one
// transaction; a concurrent reserve that picked the same parts loses the
// compare-and-swap and re-selects from the new state.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (domain.Reservation, error) {
	listingID, err := parseID(in.ListingID)
	if err != nil {
		return domain.Reservation{}, err
	}
	buyer, err := domain.ParseAddress(in.Buyer)
	if err != nil {
		return domain.Reservation{}, err
	}
	if in.Quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	if err := checkSignature(s.verifier, buyer, in.Message(), in.Signature); err != nil {
		return domain.Reservation{}, err
	}

	var res domain.Reservation
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		if err := s.store.LockListing(txCtx, listingID); err != nil {
			return err
		}
		now := s.clock.Now()
		listing, err := s.store.GetListing(txCtx, listingID)
		if err != nil {
			return err
		}
		if !listing.Active() {
			return domain.ErrListingNotActive
		}
		if listing.Seller == buyer {
			return domain.ErrSelfPurchase
		}
		if listing.Bundle && in.Quantity != len(listing.PartIDs) {
			return domain.ErrBundleRequiresFullQuantity
		}

		pending, err := s.store.PendingReservations(txCtx, listing.ID)
		if err != nil {
			return err
		}
		for _, r := range pending {
			if !r.Overdue(now) {
				continue
			}
			if _, err := s.holds.releaseReservation(txCtx, r, domain.ReservationStatusExpired); err != nil {
				return err
			}
		}

		parts, err := s.store.GetParts(txCtx, listing.PartIDs)
		if err != nil {
			return err
		}
		chosen := make([]domain.Part, 0, in.Quantity)
		for _, p := range parts {
			if len(chosen) == in.Quantity {
				break
			}
			if p, err = s.holds.settle(txCtx, p, now); err != nil {
				return err
			}
			if !p.Pinned() {
				chosen = append(chosen, p)
			}
		}
		if len(chosen) < in.Quantity {
			return domain.ErrInsufficientAvailability
		}

		res = domain.Reservation{
			ID:        newID(),
			ListingID: listing.ID,
			Buyer:     buyer,
			PartIDs:   partIDsOf(chosen),
			Status:    domain.ReservationStatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := s.store.CreateReservation(txCtx, res); err != nil {
			return err
		}
		for _, p := range chosen {
			if _, err := s.registry.pinReservation(txCtx, p, &res.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

type ConsumeInput struct {
	ReservationID string
	Buyer         string
	Currency      string
	ChainTx       string
	Signature     string
}

func (in ConsumeInput) Message() []byte {
	return signer.Message(string(domain.TxNFTBuy), map[string]string{
		"reservation_id": in.ReservationID,
		"buyer":          domain.NormalizeAddress(in.Buyer),
		"currency":       in.Currency,
		"chain_tx":       in.ChainTx,
	})
}

type PurchaseResult struct {
	Reservation domain.Reservation
	Listing     domain.Listing
	Transaction domain.Transaction
}

// Consume completes a purchase: the reserved parts move from seller to
// buyer, leave the listing and NFT_BUY is recorded, all in one transaction.
// A reservation found past its TTL is expired and its parts released before
// ErrReservationExpired is returned.
func (s *ReservationService) Consume(ctx context.Context, in ConsumeInput) (PurchaseResult, error) {
	reservationID, err := parseID(in.ReservationID)
	if err != nil {
		return PurchaseResult{}, err
	}
	buyer, err := domain.ParseAddress(in.Buyer)
	if err != nil {
		return PurchaseResult{}, err
	}
	if err := checkSignature(s.verifier, buyer, in.Message(), in.Signature); err != nil {
		return PurchaseResult{}, err
	}

	var (
		result  PurchaseResult
		expired bool
	)
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		expired = false
		now := s.clock.Now()
		res, err := s.store.GetReservation(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.Buyer != buyer {
			return domain.ErrBuyerMismatch
		}
		switch res.Status {
		case domain.ReservationStatusPending:
		case domain.ReservationStatusExpired:
			return domain.ErrReservationExpired
		default:
			return domain.ErrReservationNotPending
		}
		if res.Overdue(now) {
			if _, err := s.holds.releaseReservation(txCtx, res, domain.ReservationStatusExpired); err != nil {
				return err
			}
			expired = true
			return nil
		}

		listing, err := s.store.GetListing(txCtx, res.ListingID)
		if err != nil {
			return err
		}
		if !listing.Active() {
			return domain.ErrListingNotActive
		}
		if listing.Bundle && len(res.PartIDs) != len(listing.PartIDs) {
			return domain.ErrBundleRequiresFullQuantity
		}

		parts, err := s.store.GetParts(txCtx, res.PartIDs)
		if err != nil {
			return err
		}
		sold := make(map[string]bool, len(parts))
		for _, p := range parts {
			if p.ListingID == nil || *p.ListingID != listing.ID ||
				p.ReservationID == nil || *p.ReservationID != res.ID {
				return domain.ErrOwnershipMismatch
			}
			if _, err := s.registry.Transfer(txCtx, p.ID, listing.Seller, buyer); err != nil {
				return err
			}
			sold[p.ID] = true
		}

		amount, err := totalAmount(listing.UnitPrice, len(res.PartIDs))
		if err != nil {
			return err
		}
		rec, err := s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxNFTBuy,
			Timestamp: now,
			Signer:    buyer,
			Signature: in.Signature,
			Payload: domain.BuyPayload{
				ListingID:     listing.ID,
				ReservationID: res.ID,
				ItemID:        listing.ItemID,
				Buyer:         buyer,
				Seller:        listing.Seller,
				PartIDs:       res.PartIDs,
				UnitPrice:     listing.UnitPrice,
				Amount:        domain.StringPtr(amount),
				Currency:      domain.StringPtr(in.Currency),
				ChainTx:       domain.StringPtr(in.ChainTx),
			},
		})
		if err != nil {
			return err
		}

		nextRes := res
		nextRes.Status = domain.ReservationStatusConsumed
		nextRes.TxNumber = &rec.Number
		if err := s.store.UpdateReservation(txCtx, nextRes, res.Version); err != nil {
			return err
		}
		nextRes.Version = res.Version + 1

		nextListing := listing
		nextListing.PartIDs = nil
		for _, id := range listing.PartIDs {
			if !sold[id] {
				nextListing.PartIDs = append(nextListing.PartIDs, id)
			}
		}
		if len(nextListing.PartIDs) == 0 {
			nextListing.Status = domain.ListingStatusSold
			nextListing.TerminalTx = &rec.Number
		}
		if err := s.store.UpdateListing(txCtx, nextListing, listing.Version); err != nil {
			return err
		}
		nextListing.Version = listing.Version + 1

		result = PurchaseResult{Reservation: nextRes, Listing: nextListing, Transaction: rec}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	if expired {
		return PurchaseResult{}, domain.ErrReservationExpired
	}
	s.ledger.Committed()
	return result, nil
}

type CancelReservationInput struct {
	ReservationID string
	Buyer         string
	Signature     string
}

func (in CancelReservationInput) Message() []byte {
	return signer.Message("RESERVATION_CANCEL", map[string]string{
		"reservation_id": in.ReservationID,
		"buyer":          domain.NormalizeAddress(in.Buyer),
	})
}

// CancelReservation abandons a pending reservation and releases its parts
// back to the listing.
func (s *ReservationService) CancelReservation(ctx context.Context, in CancelReservationInput) (domain.Reservation, error) {
	reservationID, err := parseID(in.ReservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	buyer, err := domain.ParseAddress(in.Buyer)
	if err != nil {
		return domain.Reservation{}, err
	}
	if err := checkSignature(s.verifier, buyer, in.Message(), in.Signature); err != nil {
		return domain.Reservation{}, err
	}

	var (
		out     domain.Reservation
		expired bool
	)
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		expired = false
		res, err := s.store.GetReservation(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.Buyer != buyer {
			return domain.ErrBuyerMismatch
		}
		switch res.Status {
		case domain.ReservationStatusPending:
		case domain.ReservationStatusExpired:
			return domain.ErrReservationExpired
		default:
			return domain.ErrReservationNotPending
		}
		status := domain.ReservationStatusCancelled
		if res.Overdue(s.clock.Now()) {
			status = domain.ReservationStatusExpired
			expired = true
		}
		out, err = s.holds.releaseReservation(txCtx, res, status)
		return err
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	if expired {
		return domain.Reservation{}, domain.ErrReservationExpired
	}
	return out, nil
}

// GetReservation returns a reservation, expiring it first if it is pending
// past its TTL.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	reservationID, err := parseID(id)
	if err != nil {
		return domain.Reservation{}, err
	}
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil || !res.Overdue(s.clock.Now()) {
		return res, err
	}
	if err := s.expire(ctx, reservationID); err != nil {
		return domain.Reservation{}, err
	}
	return s.store.GetReservation(ctx, reservationID)
}

// SweepExpired expires up to limit overdue reservations and reports how
// many it released.
func (s *ReservationService) SweepExpired(ctx context.Context, limit int) (int, error) {
	overdue, err := s.store.OverdueReservations(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, res := range overdue {
		if err := s.expire(ctx, res.ID); err != nil {
			s.logger.Warn("expire reservation", zap.String("reservation_id", res.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func (s *ReservationService) expire(ctx context.Context, id string) error {
	return withRetry(ctx, s.store, func(txCtx context.Context) error {
		res, err := s.store.GetReservation(txCtx, id)
		if err != nil {
			return err
		}
		if !res.Overdue(s.clock.Now()) {
			return nil
		}
		_, err = s.holds.releaseReservation(txCtx, res, domain.ReservationStatusExpired)
		return err
	})
}
