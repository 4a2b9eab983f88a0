package app_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/canonical"
	"github.com/cimillas/partmarket/internal/domain"
)

func TestMarketplace_ListReserveConsume(t *testing.T) {
	m := newMarket(t)
	seller, buyer := m.wallet(), m.wallet()

	minted := m.mint(seller, 10)
	ids := partIDs(minted.Parts)
	assert.Equal(t, repeat(seller.Address(), 10), m.owners(ids))

	listed, err := m.list(seller, minted.Item.ID, ids[:3], "1.0", false)
	require.NoError(t, err)
	assert.Equal(t, ids[:3], listed.Listing.PartIDs)
	assert.Equal(t, domain.ListingStatusActive, listed.Listing.Status)

	res, err := m.reserve(buyer, listed.Listing.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], res.PartIDs)
	assert.Equal(t, t0.Add(app.DefaultReservationTTL), res.ExpiresAt)

	bought, err := m.consume(buyer, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConsumed, bought.Reservation.Status)
	assert.Equal(t, []string{ids[2]}, bought.Listing.PartIDs)
	assert.Equal(t, domain.ListingStatusActive, bought.Listing.Status)

	assert.Equal(t, []string{buyer.Address(), buyer.Address(), seller.Address()}, m.owners(ids[:3]))
	for _, id := range ids[:2] {
		p := m.part(id)
		assert.Nil(t, p.ListingID)
		assert.Nil(t, p.ReservationID)
	}

	payload, ok := bought.Transaction.Payload.(domain.BuyPayload)
	require.True(t, ok)
	require.NotNil(t, payload.Amount)
	assert.Equal(t, "2", *payload.Amount)

	records := m.records()
	require.Len(t, records, 3)
	for i, want := range []domain.TxType{domain.TxMint, domain.TxListingCreate, domain.TxNFTBuy} {
		assert.Equal(t, int64(i+1), records[i].Number)
		assert.Equal(t, want, records[i].Type)
		hash, err := canonical.Hash(records[i])
		require.NoError(t, err)
		assert.Equal(t, records[i].Hash, hash)
	}
}

func TestMarketplace_LastPartsSellOutListing(t *testing.T) {
	m := newMarket(t)
	seller, buyer := m.wallet(), m.wallet()
	minted := m.mint(seller, 2)
	ids := partIDs(minted.Parts)

	listed, err := m.list(seller, minted.Item.ID, ids, "0.5", false)
	require.NoError(t, err)
	res, err := m.reserve(buyer, listed.Listing.ID, 2)
	require.NoError(t, err)
	bought, err := m.consume(buyer, res.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ListingStatusSold, bought.Listing.Status)
	require.NotNil(t, bought.Listing.TerminalTx)
	assert.Equal(t, bought.Transaction.Number, *bought.Listing.TerminalTx)

	_, err = m.reserve(buyer, listed.Listing.ID, 1)
	assert.ErrorIs(t, err, domain.ErrListingNotActive)
}

func TestMarketplace_ExpiredReservationReleasesParts(t *testing.T) {
	m := newMarket(t)
	seller, buyer, other := m.wallet(), m.wallet(), m.wallet()
	minted := m.mint(seller, 3)
	ids := partIDs(minted.Parts)

	listed, err := m.list(seller, minted.Item.ID, ids, "1", false)
	require.NoError(t, err)
	res, err := m.reserve(buyer, listed.Listing.ID, 3)
	require.NoError(t, err)

	_, err = m.reserve(other, listed.Listing.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientAvailability)

	m.clock.Advance(app.DefaultReservationTTL)

	_, err = m.consume(buyer, res.ID)
	assert.ErrorIs(t, err, domain.ErrReservationExpired)

	got, err := m.reservations.GetReservation(m.ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusExpired, got.Status)
	for _, id := range ids {
		assert.Nil(t, m.part(id).ReservationID)
	}

	again, err := m.reserve(other, listed.Listing.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, ids, again.PartIDs)
	assert.Len(t, m.records(), 2)
}

func TestMarketplace_SweptReservationStaysAnExpiryError(t *testing.T) {
	m := newMarket(t)
	seller, buyer := m.wallet(), m.wallet()
	minted := m.mint(seller, 3)
	listed, err := m.list(seller, minted.Item.ID, partIDs(minted.Parts), "1", false)
	require.NoError(t, err)
	res, err := m.reserve(buyer, listed.Listing.ID, 1)
	require.NoError(t, err)

	m.clock.Advance(app.DefaultReservationTTL + time.Second)
	n, err := m.reservations.SweepExpired(m.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = m.consume(buyer, res.ID)
	assert.ErrorIs(t, err, domain.ErrReservationExpired)
	assert.Equal(t, domain.KindExpiry, domain.KindOf(err))

	cancel := app.CancelReservationInput{ReservationID: res.ID, Buyer: buyer.Address()}
	cancel.Signature = m.sign(buyer, cancel.Message())
	_, err = m.reservations.CancelReservation(m.ctx, cancel)
	assert.ErrorIs(t, err, domain.ErrReservationExpired)

	got, err := m.reservations.GetReservation(m.ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusExpired, got.Status)
	assert.Len(t, m.records(), 2)
}

func TestMarketplace_ConcurrentReserveOfLastPart(t *testing.T) {
	m := newMarket(t)
	seller := m.wallet()
	minted := m.mint(seller, 1)
	listed, err := m.list(seller, minted.Item.ID, partIDs(minted.Parts), "3", false)
	require.NoError(t, err)

	const buyers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < buyers; i++ {
		buyer := m.wallet()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.reserve(buyer, listed.Listing.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrInsufficientAvailability)
	}
}

func TestMarketplace_ListingIsAllOrNothing(t *testing.T) {
	m := newMarket(t)
	seller, stranger := m.wallet(), m.wallet()
	minted := m.mint(seller, 4)
	ids := partIDs(minted.Parts)

	_, err := m.list(stranger, minted.Item.ID, ids[:2], "1", false)
	assert.ErrorIs(t, err, domain.ErrPartNotOwned)

	_, err = m.list(seller, minted.Item.ID, []string{ids[0], ids[0]}, "1", false)
	assert.ErrorIs(t, err, domain.ErrDuplicatePart)

	_, err = m.list(seller, minted.Item.ID, []string{ids[0], "missing"}, "1", false)
	assert.ErrorIs(t, err, domain.ErrPartNotFound)

	_, err = m.list(seller, minted.Item.ID, ids[:1], "0", false)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	for _, id := range ids {
		assert.Nil(t, m.part(id).ListingID)
	}

	first, err := m.list(seller, minted.Item.ID, ids[:2], "1", false)
	require.NoError(t, err)
	_, err = m.list(seller, minted.Item.ID, ids[1:3], "1", false)
	assert.ErrorIs(t, err, domain.ErrPartAlreadyListed)
	assert.Nil(t, m.part(ids[2]).ListingID)

	got, err := m.listings.GetListing(m.ctx, first.Listing.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], got.PartIDs)
	assert.Len(t, m.records(), 2)
}

func TestMarketplace_BundleRequiresEverything(t *testing.T) {
	m := newMarket(t)
	seller, buyer := m.wallet(), m.wallet()
	minted := m.mint(seller, 3)
	ids := partIDs(minted.Parts)

	listed, err := m.list(seller, minted.Item.ID, ids, "2", true)
	require.NoError(t, err)

	_, err = m.reserve(buyer, listed.Listing.ID, 2)
	assert.ErrorIs(t, err, domain.ErrBundleRequiresFullQuantity)

	res, err := m.reserve(buyer, listed.Listing.ID, 3)
	require.NoError(t, err)
	bought, err := m.consume(buyer, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusSold, bought.Listing.Status)
	assert.Equal(t, repeat(buyer.Address(), 3), m.owners(ids))
}

func TestMarketplace_CancelListingBeatsConsume(t *testing.T) {
	m := newMarket(t)
	seller, buyer := m.wallet(), m.wallet()
	minted := m.mint(seller, 2)
	ids := partIDs(minted.Parts)

	listed, err := m.list(seller, minted.Item.ID, ids, "1", false)
	require.NoError(t, err)
	res, err := m.reserve(buyer, listed.Listing.ID, 1)
	require.NoError(t, err)

	in := app.CancelListingInput{ListingID: listed.Listing.ID, Seller: seller.Address()}
	in.Signature = m.sign(seller, in.Message())
	cancelled, err := m.listings.CancelListing(m.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusCancelled, cancelled.Listing.Status)
	assert.Equal(t, domain.TxListingCancel, cancelled.Transaction.Type)

	_, err = m.consume(buyer, res.ID)
	assert.ErrorIs(t, err, domain.ErrReservationNotPending)
	assert.Equal(t, repeat(seller.Address(), 2), m.owners(ids))
	for _, id := range ids {
		p := m.part(id)
		assert.Nil(t, p.ListingID)
		assert.Nil(t, p.ReservationID)
	}

	_, err = m.listings.CancelListing(m.ctx, in)
	assert.ErrorIs(t, err, domain.ErrListingNotActive)
}

func TestMarketplace_CancelReservation(t *testing.T) {
	m := newMarket(t)
	seller, buyer, other := m.wallet(), m.wallet(), m.wallet()
	minted := m.mint(seller, 1)
	listed, err := m.list(seller, minted.Item.ID, partIDs(minted.Parts), "1", false)
	require.NoError(t, err)
	res, err := m.reserve(buyer, listed.Listing.ID, 1)
	require.NoError(t, err)

	wrong := app.CancelReservationInput{ReservationID: res.ID, Buyer: other.Address()}
	wrong.Signature = m.sign(other, wrong.Message())
	_, err = m.reservations.CancelReservation(m.ctx, wrong)
	assert.ErrorIs(t, err, domain.ErrBuyerMismatch)

	in := app.CancelReservationInput{ReservationID: res.ID, Buyer: buyer.Address()}
	in.Signature = m.sign(buyer, in.Message())
	got, err := m.reservations.CancelReservation(m.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)

	_, err = m.reserve(other, listed.Listing.ID, 1)
	assert.NoError(t, err)
}

func TestMarketplace_BadSignatureChangesNothing(t *testing.T) {
	m := newMarket(t)
	seller, buyer, mallory := m.wallet(), m.wallet(), m.wallet()
	minted := m.mint(seller, 2)
	listed, err := m.list(seller, minted.Item.ID, partIDs(minted.Parts), "1", false)
	require.NoError(t, err)

	in := app.ReserveInput{ListingID: listed.Listing.ID, Buyer: buyer.Address(), Quantity: 1}
	in.Signature = m.sign(mallory, in.Message())
	_, err = m.reservations.Reserve(m.ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	in.Signature = m.sign(buyer, in.Message())
	in.Quantity = 2
	_, err = m.reservations.Reserve(m.ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	pending, err := m.store.PendingReservations(m.ctx, listed.Listing.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, m.records(), 2)
}

func TestMarketplace_SelfPurchase(t *testing.T) {
	m := newMarket(t)
	seller := m.wallet()
	minted := m.mint(seller, 1)
	listed, err := m.list(seller, minted.Item.ID, partIDs(minted.Parts), "1", false)
	require.NoError(t, err)

	_, err = m.reserve(seller, listed.Listing.ID, 1)
	assert.ErrorIs(t, err, domain.ErrSelfPurchase)
	assert.True(t, errors.Is(err, domain.ErrSelfPurchase))
}

func TestSweeper_ReleasesOverdueHolds(t *testing.T) {
	m := newMarket(t)
	seller, buyer, friend := m.wallet(), m.wallet(), m.wallet()
	minted := m.mint(seller, 4)
	ids := partIDs(minted.Parts)

	listed, err := m.list(seller, minted.Item.ID, ids[:2], "1", false)
	require.NoError(t, err)
	_, err = m.reserve(buyer, listed.Listing.ID, 2)
	require.NoError(t, err)
	_, err = m.gift(seller, friend, minted.Item.ID, 2)
	require.NoError(t, err)

	sweeper := app.NewSweeper(time.Minute, nil, m.reservations, m.gifts)
	assert.Equal(t, 0, sweeper.SweepOnce(m.ctx))

	m.clock.Advance(app.DefaultGiftTTL)
	assert.Equal(t, 2, sweeper.SweepOnce(m.ctx))
	for _, id := range ids {
		p := m.part(id)
		assert.False(t, p.Pinned(), id)
	}
	assert.Equal(t, 0, sweeper.SweepOnce(m.ctx))
}

func partIDs(parts []domain.Part) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.ID
	}
	return out
}
