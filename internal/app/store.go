package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/partmarket/internal/domain"
)

// Transactor runs fn in a single store transaction. Repository calls made
// with the ctx passed to fn join that transaction; nested calls reuse it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ItemRepository interface {
	CreateItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, id string) (domain.Item, error)
}

// PartRepository is the storage side of the Part Registry. UpdatePart is a
// compare-and-swap: it writes part only if the stored version still equals
// expectedVersion, bumping it by one, and fails with
// domain.ErrVersionConflict otherwise.
type PartRepository interface {
	CreateParts(ctx context.Context, parts []domain.Part) error
	GetPart(ctx context.Context, id string) (domain.Part, error)
	GetParts(ctx context.Context, ids []string) ([]domain.Part, error)
	ListParts(ctx context.Context, filter domain.PartFilter) ([]domain.Part, error)
	UnlistedParts(ctx context.Context, itemID, owner string) ([]domain.Part, error)
	UpdatePart(ctx context.Context, part domain.Part, expectedVersion int64) error
}

type ListingRepository interface {
	CreateListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	UpdateListing(ctx context.Context, listing domain.Listing, expectedVersion int64) error
	// LockListing holds the listing against concurrent reservers until the
	// surrounding transaction ends.
	LockListing(ctx context.Context, id string) error
}

type ReservationRepository interface {
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error
	PendingReservations(ctx context.Context, listingID string) ([]domain.Reservation, error)
	OverdueReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

type GiftRepository interface {
	CreateGift(ctx context.Context, gift domain.Gift) error
	GetGift(ctx context.Context, id string) (domain.Gift, error)
	UpdateGift(ctx context.Context, gift domain.Gift, expectedVersion int64) error
	OverdueGifts(ctx context.Context, now time.Time, limit int) ([]domain.Gift, error)
}

type LedgerRepository interface {
	NextTransactionNumber(ctx context.Context) (int64, error)
	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	GetTransaction(ctx context.Context, number int64) (domain.Transaction, error)
	ListTransactions(ctx context.Context, from, to int64) ([]domain.Transaction, error)
	UnanchoredTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	SetAnchorReceipt(ctx context.Context, number int64, receipt string) error
}

// Store is everything the services need from persistence. Both the Postgres
// and the in-memory stores implement it.
type Store interface {
	Transactor
	ItemRepository
	PartRepository
	ListingRepository
	ReservationRepository
	GiftRepository
	LedgerRepository
}

const maxConflictRetries = 8

// withRetry runs fn in a transaction and re-runs it from a fresh snapshot
// when a compare-and-swap lost a race. A lost race never reaches the
// caller: once the budget is spent it becomes domain.ErrContention.
func withRetry(ctx context.Context, tx Transactor, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err := tx.WithTx(ctx, fn)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts", domain.ErrContention, maxConflictRetries+1)
}
