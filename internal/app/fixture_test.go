package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/audit"
	"github.com/cimillas/partmarket/internal/clock"
	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/signer"
	"github.com/cimillas/partmarket/internal/storage/memory"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type market struct {
	t            *testing.T
	ctx          context.Context
	store        *memory.Store
	clock        *clock.Manual
	ledger       *app.Ledger
	items        *app.ItemService
	listings     *app.ListingService
	reservations *app.ReservationService
	gifts        *app.GiftService
}

type marketOption func(*marketConfig)

type marketConfig struct {
	checker app.HashChecker
	logger  *zap.Logger
}

func withChecker(c app.HashChecker) marketOption {
	return func(cfg *marketConfig) { cfg.checker = c }
}

func withLogger(l *zap.Logger) marketOption {
	return func(cfg *marketConfig) { cfg.logger = l }
}

func newMarket(t *testing.T, opts ...marketOption) *market {
	t.Helper()
	cfg := marketConfig{checker: audit.Checker{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	store := memory.New()
	clk := clock.NewManual(t0)
	ledger := app.NewLedger(store, cfg.checker, cfg.logger)
	verifier := signer.EIP191{}
	return &market{
		t:            t,
		ctx:          context.Background(),
		store:        store,
		clock:        clk,
		ledger:       ledger,
		items:        app.NewItemService(store, ledger, verifier, clk),
		listings:     app.NewListingService(store, ledger, verifier, clk),
		reservations: app.NewReservationService(store, ledger, verifier, clk, app.WithReservationLogger(cfg.logger)),
		gifts:        app.NewGiftService(store, ledger, verifier, clk, app.WithGiftLogger(cfg.logger)),
	}
}

func (m *market) wallet() *signer.Wallet {
	m.t.Helper()
	w, err := signer.NewWallet()
	require.NoError(m.t, err)
	return w
}

func (m *market) sign(w *signer.Wallet, msg []byte) string {
	m.t.Helper()
	sig, err := w.Sign(msg)
	require.NoError(m.t, err)
	return sig
}

func (m *market) mint(creator *signer.Wallet, parts int) app.MintResult {
	m.t.Helper()
	in := app.MintInput{Creator: creator.Address(), Name: "Collectible", PartCount: parts, Amount: "0.1", Currency: "ETH"}
	in.Signature = m.sign(creator, in.Message())
	res, err := m.items.Mint(m.ctx, in)
	require.NoError(m.t, err)
	return res
}

func (m *market) list(seller *signer.Wallet, itemID string, partIDs []string, price string, bundle bool) (app.ListingResult, error) {
	in := app.CreateListingInput{Seller: seller.Address(), ItemID: itemID, PartIDs: partIDs, UnitPrice: price, Bundle: bundle}
	in.Signature = m.sign(seller, in.Message())
	return m.listings.CreateListing(m.ctx, in)
}

func (m *market) reserve(buyer *signer.Wallet, listingID string, qty int) (domain.Reservation, error) {
	in := app.ReserveInput{ListingID: listingID, Buyer: buyer.Address(), Quantity: qty}
	in.Signature = m.sign(buyer, in.Message())
	return m.reservations.Reserve(m.ctx, in)
}

func (m *market) consume(buyer *signer.Wallet, reservationID string) (app.PurchaseResult, error) {
	in := app.ConsumeInput{ReservationID: reservationID, Buyer: buyer.Address(), Currency: "ETH", ChainTx: "0xfeed"}
	in.Signature = m.sign(buyer, in.Message())
	return m.reservations.Consume(m.ctx, in)
}

func (m *market) gift(giver, receiver *signer.Wallet, itemID string, qty int) (domain.Gift, error) {
	in := app.CreateGiftInput{Giver: giver.Address(), Receiver: receiver.Address(), ItemID: itemID, Quantity: qty}
	in.Signature = m.sign(giver, in.Message())
	return m.gifts.CreateGift(m.ctx, in)
}

func (m *market) owners(ids []string) []string {
	m.t.Helper()
	parts, err := m.store.GetParts(m.ctx, ids)
	require.NoError(m.t, err)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Owner
	}
	return out
}

func (m *market) part(id string) domain.Part {
	m.t.Helper()
	p, err := m.store.GetPart(m.ctx, id)
	require.NoError(m.t, err)
	return p
}

func (m *market) records() []domain.Transaction {
	m.t.Helper()
	txs, err := m.ledger.Range(m.ctx, 1, 500)
	require.NoError(m.t, err)
	return txs
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
