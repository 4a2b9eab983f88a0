package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/testutil"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
)

func TestStore(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := NewStore(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("GetItem returns ErrItemNotFound and ErrInvalidID", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, err := store.GetItem(ctx, uuid.NewString())
		if !errors.Is(err, domain.ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound, got %v", err)
		}
		_, err = store.GetItem(ctx, "not-a-uuid")
		if !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})

	t.Run("UpdatePart is a compare-and-swap on version", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		itemID := uuid.NewString()
		ids := testutil.InsertItem(t, ctx, pool, itemID, alice, 2)

		p, err := store.GetPart(ctx, ids[0])
		if err != nil {
			t.Fatalf("get part: %v", err)
		}
		next := p
		next.Owner = bob
		if err := store.UpdatePart(ctx, next, p.Version); err != nil {
			t.Fatalf("first update: %v", err)
		}
		if err := store.UpdatePart(ctx, next, p.Version); !errors.Is(err, domain.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
		missing := next
		missing.ID = "missing"
		if err := store.UpdatePart(ctx, missing, 0); !errors.Is(err, domain.ErrPartNotFound) {
			t.Fatalf("expected ErrPartNotFound, got %v", err)
		}

		got, err := store.GetPart(ctx, ids[0])
		if err != nil {
			t.Fatalf("reload part: %v", err)
		}
		if got.Owner != bob || got.Version != p.Version+1 {
			t.Fatalf("unexpected part after update: %+v", got)
		}
	})

	t.Run("GetParts keeps the requested order", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		ids := testutil.InsertItem(t, ctx, pool, uuid.NewString(), alice, 3)

		parts, err := store.GetParts(ctx, []string{ids[2], ids[0]})
		if err != nil {
			t.Fatalf("get parts: %v", err)
		}
		if len(parts) != 2 || parts[0].ID != ids[2] || parts[1].ID != ids[0] {
			t.Fatalf("unexpected order: %+v", parts)
		}
		if _, err := store.GetParts(ctx, []string{ids[0], "nope"}); !errors.Is(err, domain.ErrPartNotFound) {
			t.Fatalf("expected ErrPartNotFound, got %v", err)
		}
	})

	t.Run("GetListing derives parts in mint order", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		itemID := uuid.NewString()
		ids := testutil.InsertItem(t, ctx, pool, itemID, alice, 4)

		listing := domain.Listing{
			ID:        uuid.NewString(),
			Seller:    alice,
			ItemID:    itemID,
			UnitPrice: "1.0",
			Status:    domain.ListingStatusActive,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.CreateListing(ctx, listing); err != nil {
			t.Fatalf("create listing: %v", err)
		}
		for _, id := range []string{ids[3], ids[1]} {
			p, err := store.GetPart(ctx, id)
			if err != nil {
				t.Fatalf("get part: %v", err)
			}
			p.ListingID = &listing.ID
			if err := store.UpdatePart(ctx, p, p.Version); err != nil {
				t.Fatalf("attach part: %v", err)
			}
		}

		got, err := store.GetListing(ctx, listing.ID)
		if err != nil {
			t.Fatalf("get listing: %v", err)
		}
		if len(got.PartIDs) != 2 || got.PartIDs[0] != ids[1] || got.PartIDs[1] != ids[3] {
			t.Fatalf("unexpected part ids: %v", got.PartIDs)
		}

		unlisted, err := store.UnlistedParts(ctx, itemID, alice)
		if err != nil {
			t.Fatalf("unlisted parts: %v", err)
		}
		if len(unlisted) != 2 || unlisted[0].ID != ids[0] || unlisted[1].ID != ids[2] {
			t.Fatalf("unexpected unlisted parts: %+v", unlisted)
		}
	})

	t.Run("ListParts filters and pages", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		itemID := uuid.NewString()
		ids := testutil.InsertItem(t, ctx, pool, itemID, alice, 5)

		page, err := store.ListParts(ctx, domain.PartFilter{Owner: alice, ItemID: itemID, Skip: 1, Limit: 2})
		if err != nil {
			t.Fatalf("list parts: %v", err)
		}
		if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
			t.Fatalf("unexpected page: %+v", page)
		}
		none, err := store.ListParts(ctx, domain.PartFilter{Owner: bob})
		if err != nil {
			t.Fatalf("list parts: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no parts for bob, got %d", len(none))
		}
	})

	t.Run("rolled back append leaves no gap", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		itemID := uuid.NewString()
		testutil.InsertItem(t, ctx, pool, itemID, alice, 1)

		boom := errors.New("boom")
		err := store.WithTx(ctx, func(txCtx context.Context) error {
			n, err := store.NextTransactionNumber(txCtx)
			if err != nil {
				return err
			}
			if n != 1 {
				t.Fatalf("expected number 1, got %d", n)
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		err = store.WithTx(ctx, func(txCtx context.Context) error {
			n, err := store.NextTransactionNumber(txCtx)
			if err != nil {
				return err
			}
			if n != 1 {
				t.Fatalf("expected number 1 after rollback, got %d", n)
			}
			return store.InsertTransaction(txCtx, mintRecord(n, itemID))
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}

		got, err := store.GetTransaction(ctx, 1)
		if err != nil {
			t.Fatalf("get transaction: %v", err)
		}
		payload, ok := got.Payload.(domain.MintPayload)
		if !ok || payload.ItemID != itemID || payload.PartCount != 1 {
			t.Fatalf("unexpected payload: %#v", got.Payload)
		}
	})

	t.Run("ledger rows are immutable except the anchor receipt", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		itemID := uuid.NewString()
		testutil.InsertItem(t, ctx, pool, itemID, alice, 1)

		if err := store.InsertTransaction(ctx, mintRecord(1, itemID)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := pool.Exec(ctx, `UPDATE transactions SET hash = 'x' WHERE transaction_number = 1`); err == nil {
			t.Fatalf("expected hash update to be rejected")
		}
		if _, err := pool.Exec(ctx, `DELETE FROM transactions WHERE transaction_number = 1`); err == nil {
			t.Fatalf("expected delete to be rejected")
		}

		unanchored, err := store.UnanchoredTransactions(ctx, 10)
		if err != nil || len(unanchored) != 1 {
			t.Fatalf("expected one unanchored record, got %d (%v)", len(unanchored), err)
		}
		if err := store.SetAnchorReceipt(ctx, 1, "receipt-1"); err != nil {
			t.Fatalf("set receipt: %v", err)
		}
		if err := store.SetAnchorReceipt(ctx, 1, "receipt-2"); err != nil {
			t.Fatalf("second set receipt: %v", err)
		}
		got, err := store.GetTransaction(ctx, 1)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.AnchorReceipt == nil || *got.AnchorReceipt != "receipt-1" {
			t.Fatalf("expected first receipt kept, got %v", got.AnchorReceipt)
		}
		if err := store.SetAnchorReceipt(ctx, 99, "r"); !errors.Is(err, domain.ErrTransactionNotFound) {
			t.Fatalf("expected ErrTransactionNotFound, got %v", err)
		}
	})
}

func mintRecord(n int64, itemID string) domain.Transaction {
	return domain.Transaction{
		ID:        uuid.NewString(),
		Number:    n,
		Type:      domain.TxMint,
		Timestamp: time.UnixMilli(1700000000000).UTC(),
		Signer:    alice,
		Signature: "0xsig",
		Payload:   domain.MintPayload{ItemID: itemID, Owner: alice, PartCount: 1},
		Hash:      "0xhash",
	}
}
