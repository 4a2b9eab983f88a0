package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/partmarket/internal/clock"
	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/signer"
)

const DefaultGiftTTL = 24 * time.Hour

type GiftService struct {
	store    Store
	registry *PartRegistry
	holds    holds
	ledger   *Ledger
	verifier signer.Verifier
	clock    clock.Clock
	ttl      time.Duration
	logger   *zap.Logger
}

type GiftOption func(*GiftService)

func WithGiftTTL(ttl time.Duration) GiftOption {
	return func(s *GiftService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithGiftLogger(logger *zap.Logger) GiftOption {
	return func(s *GiftService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewGiftService(store Store, ledger *Ledger, verifier signer.Verifier, clk clock.Clock, opts ...GiftOption) *GiftService {
	registry := NewPartRegistry(store)
	s := &GiftService{
		store:    store,
		registry: registry,
		holds:    holds{store: store, registry: registry},
		ledger:   ledger,
		verifier: verifier,
		clock:    clk,
		ttl:      DefaultGiftTTL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateGiftInput struct {
	Giver     string
	Receiver  string
	ItemID    string
	Quantity  int
	Signature string
}

func (in CreateGiftInput) Message() []byte {
	return signer.Message("GIFT_CREATE", map[string]string{
		"giver":    domain.NormalizeAddress(in.Giver),
		"receiver": domain.NormalizeAddress(in.Receiver),
		"item_id":  in.ItemID,
		"quantity": itoa(in.Quantity),
	})
}

// CreateGift pins Quantity of the giver's free, unlisted parts of an item
// to a pending gift, lowest sequence first.
func (s *GiftService) CreateGift(ctx context.Context, in CreateGiftInput) (domain.Gift, error) {
	giver, err := domain.ParseAddress(in.Giver)
	if err != nil {
		return domain.Gift{}, err
	}
	receiver, err := domain.ParseAddress(in.Receiver)
	if err != nil {
		return domain.Gift{}, err
	}
	itemID, err := parseID(in.ItemID)
	if err != nil {
		return domain.Gift{}, err
	}
	if giver == receiver {
		return domain.Gift{}, domain.ErrSelfGift
	}
	if in.Quantity <= 0 {
		return domain.Gift{}, domain.ErrInvalidQuantity
	}
	if err := checkSignature(s.verifier, giver, in.Message(), in.Signature); err != nil {
		return domain.Gift{}, err
	}

	var gift domain.Gift
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		now := s.clock.Now()
		if _, err := s.store.GetItem(txCtx, itemID); err != nil {
			return err
		}
		parts, err := s.store.UnlistedParts(txCtx, itemID, giver)
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
			if !p.Pinned() && !p.Listed() {
				chosen = append(chosen, p)
			}
		}
		if len(chosen) < in.Quantity {
			return domain.ErrInsufficientUnlistedParts
		}

		gift = domain.Gift{
			ID:        newID(),
			Giver:     giver,
			Receiver:  receiver,
			ItemID:    itemID,
			Quantity:  in.Quantity,
			PartIDs:   partIDsOf(chosen),
			Status:    domain.GiftStatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := s.store.CreateGift(txCtx, gift); err != nil {
			return err
		}
		for _, p := range chosen {
			if _, err := s.registry.pinGift(txCtx, p, &gift.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Gift{}, err
	}
	return gift, nil
}

type ClaimGiftInput struct {
	GiftID    string
	Receiver  string
	Amount    string
	Currency  string
	ChainTx   string
	Signature string
}

func (in ClaimGiftInput) Message() []byte {
	return signer.Message(string(domain.TxGiftClaim), map[string]string{
		"gift_id":  in.GiftID,
		"receiver": domain.NormalizeAddress(in.Receiver),
		"amount":   in.Amount,
		"currency": in.Currency,
		"chain_tx": in.ChainTx,
	})
}

type GiftResult struct {
	Gift        domain.Gift
	Transaction domain.Transaction
}

// Claim transfers the pinned parts to the receiver and records GIFT_CLAIM.
func (s *GiftService) Claim(ctx context.Context, in ClaimGiftInput) (GiftResult, error) {
	giftID, err := parseID(in.GiftID)
	if err != nil {
		return GiftResult{}, err
	}
	receiver, err := domain.ParseAddress(in.Receiver)
	if err != nil {
		return GiftResult{}, err
	}
	var amount string
	if in.Amount != "" {
		if amount, err = parseAmount(in.Amount); err != nil {
			return GiftResult{}, err
		}
	}
	if err := checkSignature(s.verifier, receiver, in.Message(), in.Signature); err != nil {
		return GiftResult{}, err
	}

	var (
		result  GiftResult
		expired bool
	)
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		expired = false
		now := s.clock.Now()
		g, err := s.pendingFor(txCtx, giftID, receiver)
		if err != nil {
			return err
		}
		if g.Overdue(now) {
			if _, err := s.holds.releaseGift(txCtx, g, domain.GiftStatusExpired, nil); err != nil {
				return err
			}
			expired = true
			return nil
		}

		parts, err := s.store.GetParts(txCtx, g.PartIDs)
		if err != nil {
			return err
		}
		for _, p := range parts {
			if p.GiftID == nil || *p.GiftID != g.ID {
				return domain.ErrOwnershipMismatch
			}
			if _, err := s.registry.Transfer(txCtx, p.ID, g.Giver, receiver); err != nil {
				return err
			}
		}

		rec, err := s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxGiftClaim,
			Timestamp: now,
			Signer:    receiver,
			Signature: in.Signature,
			Payload: domain.GiftClaimPayload{
				GiftID:   g.ID,
				ItemID:   g.ItemID,
				Giver:    g.Giver,
				Receiver: receiver,
				PartIDs:  g.PartIDs,
				Quantity: g.Quantity,
				Amount:   domain.StringPtr(amount),
				Currency: domain.StringPtr(in.Currency),
				ChainTx:  domain.StringPtr(in.ChainTx),
			},
		})
		if err != nil {
			return err
		}

		next := g
		next.Status = domain.GiftStatusClaimed
		next.TxNumber = &rec.Number
		if err := s.store.UpdateGift(txCtx, next, g.Version); err != nil {
			return err
		}
		next.Version = g.Version + 1
		result = GiftResult{Gift: next, Transaction: rec}
		return nil
	})
	if err != nil {
		return GiftResult{}, err
	}
	if expired {
		return GiftResult{}, domain.ErrGiftExpired
	}
	s.ledger.Committed()
	return result, nil
}

type RefuseGiftInput struct {
	GiftID    string
	Receiver  string
	Signature string
}

func (in RefuseGiftInput) Message() []byte {
	return signer.Message(string(domain.TxGiftRefuse), map[string]string{
		"gift_id":  in.GiftID,
		"receiver": domain.NormalizeAddress(in.Receiver),
	})
}

// Refuse returns the pinned parts to the giver's free pool and records
// GIFT_REFUSE. Ownership does not change.
func (s *GiftService) Refuse(ctx context.Context, in RefuseGiftInput) (GiftResult, error) {
	giftID, err := parseID(in.GiftID)
	if err != nil {
		return GiftResult{}, err
	}
	receiver, err := domain.ParseAddress(in.Receiver)
	if err != nil {
		return GiftResult{}, err
	}
	if err := checkSignature(s.verifier, receiver, in.Message(), in.Signature); err != nil {
		return GiftResult{}, err
	}

	var (
		result  GiftResult
		expired bool
	)
	err = withRetry(ctx, s.store, func(txCtx context.Context) error {
		expired = false
		now := s.clock.Now()
		g, err := s.pendingFor(txCtx, giftID, receiver)
		if err != nil {
			return err
		}
		if g.Overdue(now) {
			if _, err := s.holds.releaseGift(txCtx, g, domain.GiftStatusExpired, nil); err != nil {
				return err
			}
			expired = true
			return nil
		}

		rec, err := s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxGiftRefuse,
			Timestamp: now,
			Signer:    receiver,
			Signature: in.Signature,
			Payload: domain.GiftRefusePayload{
				GiftID:   g.ID,
				ItemID:   g.ItemID,
				Giver:    g.Giver,
				Receiver: receiver,
				PartIDs:  g.PartIDs,
				Quantity: g.Quantity,
			},
		})
		if err != nil {
			return err
		}
		next, err := s.holds.releaseGift(txCtx, g, domain.GiftStatusRefused, &rec.Number)
		if err != nil {
			return err
		}
		result = GiftResult{Gift: next, Transaction: rec}
		return nil
	})
	if err != nil {
		return GiftResult{}, err
	}
	if expired {
		return GiftResult{}, domain.ErrGiftExpired
	}
	s.ledger.Committed()
	return result, nil
}

func (s *GiftService) pendingFor(ctx context.Context, giftID, receiver string) (domain.Gift, error) {
	g, err := s.store.GetGift(ctx, giftID)
	if err != nil {
		return domain.Gift{}, err
	}
	if g.Receiver != receiver {
		return domain.Gift{}, domain.ErrReceiverMismatch
	}
	switch g.Status {
	case domain.GiftStatusPending:
	case domain.GiftStatusExpired:
		return domain.Gift{}, domain.ErrGiftExpired
	default:
		return domain.Gift{}, domain.ErrGiftNotPending
	}
	return g, nil
}

// GetGift returns a gift, expiring it first if it is pending past its TTL.
func (s *GiftService) GetGift(ctx context.Context, id string) (domain.Gift, error) {
	giftID, err := parseID(id)
	if err != nil {
		return domain.Gift{}, err
	}
	g, err := s.store.GetGift(ctx, giftID)
	if err != nil || !g.Overdue(s.clock.Now()) {
		return g, err
	}
	if err := s.expire(ctx, giftID); err != nil {
		return domain.Gift{}, err
	}
	return s.store.GetGift(ctx, giftID)
}

// SweepExpired expires up to limit overdue gifts, returning their parts to
// the givers.
func (s *GiftService) SweepExpired(ctx context.Context, limit int) (int, error) {
	overdue, err := s.store.OverdueGifts(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range overdue {
		if err := s.expire(ctx, g.ID); err != nil {
			s.logger.Warn("expire gift", zap.String("gift_id", g.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func (s *GiftService) expire(ctx context.Context, id string) error {
	return withRetry(ctx, s.store, func(txCtx context.Context) error {
		g, err := s.store.GetGift(txCtx, id)
		if err != nil {
			return err
		}
		if !g.Overdue(s.clock.Now()) {
			return nil
		}
		_, err = s.holds.releaseGift(txCtx, g, domain.GiftStatusExpired, nil)
		return err
	})
}
