package canonical_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/partmarket/internal/audit"
	"github.com/cimillas/partmarket/internal/canonical"
	"github.com/cimillas/partmarket/internal/domain"
)

const (
	seller = "0xAbCd00000000000000000000000000000000Ef01"
	buyer  = "0x1111111111111111111111111111111111111111"
)

var ts = time.Date(2025, 2, 3, 4, 5, 6, 789_654_321, time.UTC)

func every() []domain.Transaction {
	base := func(n int64, typ domain.TxType, p domain.Payload) domain.Transaction {
		return domain.Transaction{Number: n, Type: typ, Timestamp: ts, Signer: seller, Signature: "0xABCDEF", Payload: p}
	}
	return []domain.Transaction{
		base(1, domain.TxMint, domain.MintPayload{ItemID: "item-1", Owner: seller, PartCount: 10, Amount: domain.StringPtr("0.5"), Currency: domain.StringPtr("ETH")}),
		base(2, domain.TxUpload, domain.UploadPayload{ItemID: "item-1", ContentHash: "0xFACE", ContentType: "image/png"}),
		base(3, domain.TxListingCreate, domain.ListingCreatePayload{ListingID: "l-1", ItemID: "item-1", Seller: seller, PartIDs: []string{"p-3", "p-1", "p-2"}, UnitPrice: "1.50", Bundle: true}),
		base(4, domain.TxListingCancel, domain.ListingCancelPayload{ListingID: "l-1", ItemID: "item-1", Seller: seller, PartIDs: []string{"p-2"}}),
		base(5, domain.TxNFTBuy, domain.BuyPayload{ListingID: "l-2", ReservationID: "r-1", ItemID: "item-1", Buyer: buyer, Seller: seller, PartIDs: []string{"p-5", "p-4"}, UnitPrice: "2", Amount: domain.StringPtr("4")}),
		base(6, domain.TxGiftClaim, domain.GiftClaimPayload{GiftID: "g-1", ItemID: "item-1", Giver: seller, Receiver: buyer, PartIDs: []string{"p-7"}, Quantity: 1, Amount: domain.StringPtr("0")}),
		base(7, domain.TxGiftRefuse, domain.GiftRefusePayload{GiftID: "g-2", ItemID: "item-1", Giver: seller, Receiver: buyer, PartIDs: []string{"p-8", "p-9"}, Quantity: 2}),
	}
}

func TestHash_MatchesIndependentChecker(t *testing.T) {
	for _, tx := range every() {
		t.Run(string(tx.Type), func(t *testing.T) {
			hash, err := canonical.Hash(tx)
			require.NoError(t, err)

			check, err := audit.Checker{}.Recompute(canonical.Hashable(tx))
			require.NoError(t, err)
			assert.Equal(t, hash, check)

			b, err := json.Marshal(tx)
			require.NoError(t, err)
			doc, err := audit.DecodeDocument(b)
			require.NoError(t, err)
			fromDoc, err := audit.HashDocument(doc)
			require.NoError(t, err)
			assert.Equal(t, hash, fromDoc)
		})
	}
}

func TestHashable_Idempotent(t *testing.T) {
	for _, tx := range every() {
		once := canonical.Hashable(tx)
		assert.Equal(t, once, canonical.Hashable(once), tx.Type)
	}
}

func TestEncode_KeyOrderAndValues(t *testing.T) {
	tx := every()[2]
	b, err := canonical.Encode(canonical.Hashable(tx))
	require.NoError(t, err)
	want := `{"bundle":true,"item_id":"item-1","listing_id":"l-1","part_ids":["p-1","p-2","p-3"],` +
		`"seller":"0xabcd00000000000000000000000000000000ef01","signature":"0xabcdef",` +
		`"signer":"0xabcd00000000000000000000000000000000ef01","timestamp":1738555506789,` +
		`"transaction_number":3,"type":"LISTING_CREATE","unit_price":"1.50"}`
	assert.Equal(t, want, string(b))
}

func TestHash_IgnoresRepresentation(t *testing.T) {
	tx := every()[4]
	hash, err := canonical.Hash(tx)
	require.NoError(t, err)

	t.Run("part order", func(t *testing.T) {
		alt := tx
		p := alt.Payload.(domain.BuyPayload)
		p.PartIDs = []string{"p-4", "p-5"}
		alt.Payload = p
		got, err := canonical.Hash(alt)
		require.NoError(t, err)
		assert.Equal(t, hash, got)
	})

	t.Run("address case", func(t *testing.T) {
		alt := tx
		alt.Signer = "0xABCD00000000000000000000000000000000EF01"
		got, err := canonical.Hash(alt)
		require.NoError(t, err)
		assert.Equal(t, hash, got)
	})

	t.Run("sub-millisecond time and zone", func(t *testing.T) {
		alt := tx
		alt.Timestamp = canonical.Millis(ts).In(time.FixedZone("X", 3600))
		got, err := canonical.Hash(alt)
		require.NoError(t, err)
		assert.Equal(t, hash, got)
	})

	t.Run("empty currency is absent", func(t *testing.T) {
		alt := tx
		p := alt.Payload.(domain.BuyPayload)
		empty := ""
		p.Currency = &empty
		alt.Payload = p
		got, err := canonical.Hash(alt)
		require.NoError(t, err)
		assert.Equal(t, hash, got)
	})

	t.Run("zero amount differs from absent", func(t *testing.T) {
		alt := tx
		p := alt.Payload.(domain.BuyPayload)
		p.Amount = nil
		alt.Payload = p
		absent, err := canonical.Hash(alt)
		require.NoError(t, err)
		p.Amount = domain.StringPtr("0")
		alt.Payload = p
		zero, err := canonical.Hash(alt)
		require.NoError(t, err)
		assert.NotEqual(t, absent, zero)
	})

	t.Run("price text is not reformatted", func(t *testing.T) {
		alt := tx
		p := alt.Payload.(domain.BuyPayload)
		p.UnitPrice = "2.0"
		alt.Payload = p
		got, err := canonical.Hash(alt)
		require.NoError(t, err)
		assert.NotEqual(t, hash, got)
	})
}

func TestEncode_RejectsMismatchedPayload(t *testing.T) {
	tx := every()[0]
	tx.Type = domain.TxUpload
	_, err := canonical.Hash(tx)
	assert.Error(t, err)

	tx.Payload = nil
	_, err = canonical.Hash(tx)
	assert.Error(t, err)
}
