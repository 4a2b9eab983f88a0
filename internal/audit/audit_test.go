package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refuseDoc(ts any) map[string]any {
	return map[string]any{
		"transaction_number": json.Number("7"),
		"type":               "GIFT_REFUSE",
		"timestamp":          ts,
		"signer":             "0xAA",
		"signature":          "0xBB",
		"payload": map[string]any{
			"gift_id":   "g-1",
			"item_id":   "i-1",
			"giver":     "0xCC",
			"receiver":  "0xAA",
			"part_ids":  []any{"p-2", "p-1"},
			"quantity":  2.0,
			"ignored":   "not hashed",
			"signature": "0xbb",
		},
	}
}

func TestHashDocument_TimestampRepresentations(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 789_000_000, time.UTC)
	want, err := HashDocument(refuseDoc(at))
	require.NoError(t, err)

	for name, ts := range map[string]any{
		"rfc3339 utc":    "2025-02-03T04:05:06.789Z",
		"rfc3339 offset": "2025-02-03T06:05:06.789+02:00",
		"epoch number":   json.Number("1738555506789"),
		"epoch float":    float64(1738555506789),
		"epoch string":   "1738555506789",
		"time pointer":   &at,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := HashDocument(refuseDoc(ts))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestCanonical_FlatAndNestedAgree(t *testing.T) {
	nested := refuseDoc("2025-02-03T04:05:06.789Z")
	flat := map[string]any{}
	for k, v := range nested {
		if k != "payload" {
			flat[k] = v
		}
	}
	for k, v := range nested["payload"].(map[string]any) {
		flat[k] = v
	}

	a, err := Canonical(nested)
	require.NoError(t, err)
	b, err := Canonical(flat)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t,
		`{"gift_id":"g-1","giver":"0xcc","item_id":"i-1","part_ids":["p-1","p-2"],"quantity":2,`+
			`"receiver":"0xaa","signature":"0xbb","signer":"0xaa","timestamp":1738555506789,`+
			`"transaction_number":7,"type":"GIFT_REFUSE"}`,
		string(a))
}

func TestNormalize_Optionals(t *testing.T) {
	doc := map[string]any{
		"transaction_number": 1, "type": "MINT", "timestamp": 0,
		"signer": "0xa", "signature": "0xb",
		"item_id": "i", "owner": "0xa", "part_count": 3,
		"amount": "0", "currency": "",
	}
	norm, err := Normalize(doc)
	require.NoError(t, err)
	assert.Equal(t, "0", norm["amount"])
	assert.Nil(t, norm["currency"])
	assert.Nil(t, norm["chain_tx"])
}

func TestNormalize_Rejects(t *testing.T) {
	cases := map[string]map[string]any{
		"unknown type":       {"type": "BURN"},
		"fractional integer": {"type": "MINT", "timestamp": 1, "transaction_number": 1.5},
		"bad timestamp":      {"type": "MINT", "timestamp": "yesterday", "transaction_number": 1},
		"non-string part":    {"type": "LISTING_CANCEL", "timestamp": 1, "transaction_number": 1, "part_ids": []any{1}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(doc)
			assert.Error(t, err)
		})
	}
}

func TestVerify(t *testing.T) {
	good := refuseDoc("2025-02-03T04:05:06.789Z")
	hash, err := HashDocument(good)
	require.NoError(t, err)
	good["hash"] = hash

	tampered := refuseDoc("2025-02-03T04:05:06.789Z")
	tampered["transaction_number"] = json.Number("8")
	tampered["hash"] = hash

	later := refuseDoc("2025-02-03T04:05:06.789Z")
	later["transaction_number"] = json.Number("11")
	laterHash, err := HashDocument(later)
	require.NoError(t, err)
	later["hash"] = laterHash

	report := Verify([]map[string]any{good, tampered, later})
	assert.False(t, report.OK())
	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, "8", report.Mismatches[0].Number)
	assert.Equal(t, []string{"9..10"}, report.Gaps)

	assert.True(t, Verify([]map[string]any{good}).OK())
}
