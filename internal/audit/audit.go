// Package audit recomputes ledger hashes from loosely-typed documents, the
// way an explorer sees records: decoded JSON, nested or flat payloads,
// timestamps as ISO strings, numbers or time values. It shares no code with
// the operational hasher on purpose; both follow the same written schema.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

var ErrUnknownType = errors.New("unknown transaction type")

var commonKeys = []string{"signature", "signer", "timestamp", "transaction_number", "type"}

var schemas = map[string][]string{
	"MINT":           {"amount", "chain_tx", "currency", "item_id", "owner", "part_count"},
	"UPLOAD":         {"content_hash", "content_type", "item_id"},
	"LISTING_CREATE": {"bundle", "item_id", "listing_id", "part_ids", "seller", "unit_price"},
	"LISTING_CANCEL": {"item_id", "listing_id", "part_ids", "seller"},
	"NFT_BUY":        {"amount", "buyer", "chain_tx", "currency", "item_id", "listing_id", "part_ids", "reservation_id", "seller", "unit_price"},
	"GIFT_CLAIM":     {"amount", "chain_tx", "currency", "gift_id", "giver", "item_id", "part_ids", "quantity", "receiver"},
	"GIFT_REFUSE":    {"gift_id", "giver", "item_id", "part_ids", "quantity", "receiver"},
}

var (
	lowercased = set("signer", "signature", "owner", "seller", "buyer", "giver", "receiver", "content_hash")
	optionals  = set("amount", "currency", "chain_tx")
	integers   = set("transaction_number", "part_count", "quantity")
)

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// Normalize flattens doc and keeps only the hashable keys of its type, each
// normalized. Keys missing from doc become null.
func Normalize(doc map[string]any) (map[string]any, error) {
	flat := make(map[string]any, len(doc))
	for k, v := range doc {
		flat[k] = v
	}
	if nested, ok := doc["payload"].(map[string]any); ok {
		for k, v := range nested {
			flat[k] = v
		}
	}

	typ, _ := flat["type"].(string)
	keys, ok := schemas[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	out := make(map[string]any, len(keys)+len(commonKeys))
	for _, k := range append(append([]string{}, keys...), commonKeys...) {
		v, err := normalizeValue(k, flat[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Canonical returns the canonical bytes of doc.
func Canonical(doc map[string]any) ([]byte, error) {
	norm, err := Normalize(doc)
	if err != nil {
		return nil, err
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(norm)
}

// HashDocument returns the 0x-prefixed Keccak-256 of doc's canonical bytes.
func HashDocument(doc map[string]any) (string, error) {
	b, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

func normalizeValue(key string, v any) (any, error) {
	switch {
	case key == "timestamp":
		return epochMillis(v)
	case integers[key]:
		if v == nil {
			return nil, nil
		}
		return toInt64(v)
	case key == "part_ids":
		return stringList(v)
	case key == "bundle":
		if v == nil {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case optionals[key]:
		if v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if s == "" {
			return nil, nil
		}
		return s, nil
	default:
		if v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if lowercased[key] {
			s = strings.ToLower(strings.TrimSpace(s))
		}
		return s, nil
	}
}

func epochMillis(v any) (int64, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), nil
	case *time.Time:
		if t == nil {
			return 0, errors.New("nil time")
		}
		return t.UnixMilli(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			if n, perr := strconv.ParseInt(t, 10, 64); perr == nil {
				return n, nil
			}
			return 0, fmt.Errorf("parse timestamp %q: %w", t, err)
		}
		return parsed.UnixMilli(), nil
	default:
		return toInt64(v)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("non-integer number %v", f)
	}
	return int64(f), nil
}

func stringList(v any) ([]string, error) {
	out := []string{}
	switch list := v.(type) {
	case nil:
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	sort.Strings(out)
	return out, nil
}
