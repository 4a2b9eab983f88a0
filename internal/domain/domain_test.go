package domain

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{ErrInvalidPrice, KindValidation},
		{fmt.Errorf("load: %w", ErrListingNotFound), KindNotFound},
		{ErrVersionConflict, KindConflict},
		{ErrContention, KindConflict},
		{ErrGiftExpired, KindExpiry},
		{ErrInvalidSignature, KindAuthorization},
		{ErrLedgerHalted, KindFatal},
		{fmt.Errorf("boom"), KindInternal},
		{nil, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
	}

	assert.Equal(t, ErrPartPinned, Sentinel(fmt.Errorf("part p-1: %w", ErrPartPinned)))
	assert.Nil(t, Sentinel(fmt.Errorf("boom")))
}

func TestParseAddress(t *testing.T) {
	got, err := ParseAddress("  0xAbCd00000000000000000000000000000000Ef01 ")
	require.NoError(t, err)
	assert.Equal(t, "0xabcd00000000000000000000000000000000ef01", got)

	for _, bad := range []string{"", "0x123", "abcd00000000000000000000000000000000ef01", "0xZZcd00000000000000000000000000000000ef01"} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestPartFilter_Page(t *testing.T) {
	cases := []struct {
		in          PartFilter
		skip, limit int
	}{
		{PartFilter{}, 0, DefaultPageLimit},
		{PartFilter{Skip: 5, Limit: 10}, 5, 10},
		{PartFilter{Skip: -1, Limit: 10_000}, 0, MaxPageLimit},
	}
	for _, tc := range cases {
		skip, limit := tc.in.Page()
		assert.Equal(t, tc.skip, skip)
		assert.Equal(t, tc.limit, limit)
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := Reservation{Status: ReservationStatusPending, ExpiresAt: now}
	assert.True(t, res.Overdue(now))
	assert.False(t, res.Overdue(now.Add(-time.Nanosecond)))
	res.Status = ReservationStatusConsumed
	assert.False(t, res.Overdue(now.Add(time.Hour)))

	g := Gift{Status: GiftStatusPending, ExpiresAt: now}
	assert.True(t, g.Overdue(now))
}

func TestTransaction_JSONKeepsPayloadType(t *testing.T) {
	tx := Transaction{
		Number:    3,
		Type:      TxNFTBuy,
		Timestamp: time.UnixMilli(1700000000000).UTC(),
		Signer:    "0xa",
		Payload: BuyPayload{
			ListingID: "l", ReservationID: "r", ItemID: "i",
			PartIDs: []string{"p"}, UnitPrice: "1", Amount: StringPtr("1"),
		},
	}
	b, err := json.Marshal(tx)
	require.NoError(t, err)

	var back Transaction
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, tx.Payload, back.Payload)
	assert.True(t, tx.Timestamp.Equal(back.Timestamp))

	assert.Error(t, json.Unmarshal([]byte(`{"type":"BURN","payload":{}}`), &back))
}
