// Package canonical turns ledger transactions into their canonical,
// implementation-independent form and hashes it.
//
// The canonical form of a transaction is a flat JSON object (no whitespace)
// whose keys appear in ascending byte order. The common keys are
//
//	signature, signer, timestamp, transaction_number, type
//
// and each type adds its payload keys, giving these complete key lists:
//
//	MINT           amount, chain_tx, currency, item_id, owner, part_count,
//	               signature, signer, timestamp, transaction_number, type
//	UPLOAD         content_hash, content_type, item_id, signature, signer,
//	               timestamp, transaction_number, type
//	LISTING_CREATE bundle, item_id, listing_id, part_ids, seller, signature,
//	               signer, timestamp, transaction_number, type, unit_price
//	LISTING_CANCEL item_id, listing_id, part_ids, seller, signature, signer,
//	               timestamp, transaction_number, type
//	NFT_BUY        amount, buyer, chain_tx, currency, item_id, listing_id,
//	               part_ids, reservation_id, seller, signature, signer,
//	               timestamp, transaction_number, type, unit_price
//	GIFT_CLAIM     amount, chain_tx, currency, gift_id, giver, item_id,
//	               part_ids, quantity, receiver, signature, signer,
//	               timestamp, transaction_number, type
//	GIFT_REFUSE    gift_id, giver, item_id, part_ids, quantity, receiver,
//	               signature, signer, timestamp, transaction_number, type
//
// Value rules:
//   - signer, signature, owner, seller, buyer, giver, receiver and
//     content_hash are lowercased.
//   - amount, currency and chain_tx are null when absent or "". Any other
//     string, including "0", is kept verbatim.
//   - timestamp is integer epoch milliseconds (UTC).
//   - transaction_number, part_count and quantity are integers; bundle is a
//     boolean; part_ids is an array of strings in ascending order.
//   - Prices and amounts are strings and are never reformatted.
//   - Strings are escaped as encoding/json escapes them by default.
//
// The digest is Keccak-256 over the UTF-8 bytes of the canonical object,
// rendered as 0x-prefixed lowercase hex. The storage id, the stored hash and
// the anchor receipt never take part.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cimillas/partmarket/internal/domain"
)

// Hashable returns the normalized, hashable form of tx. It is idempotent:
// Hashable(Hashable(tx)) equals Hashable(tx).
func Hashable(tx domain.Transaction) domain.Transaction {
	out := domain.Transaction{
		Number:    tx.Number,
		Type:      tx.Type,
		Timestamp: Millis(tx.Timestamp),
		Signer:    lower(tx.Signer),
		Signature: lower(tx.Signature),
	}

	switch p := tx.Payload.(type) {
	case domain.MintPayload:
		p.Owner = lower(p.Owner)
		p.Amount = optional(p.Amount)
		p.Currency = optional(p.Currency)
		p.ChainTx = optional(p.ChainTx)
		out.Payload = p
	case domain.UploadPayload:
		p.ContentHash = lower(p.ContentHash)
		out.Payload = p
	case domain.ListingCreatePayload:
		p.Seller = lower(p.Seller)
		p.PartIDs = sortedCopy(p.PartIDs)
		out.Payload = p
	case domain.ListingCancelPayload:
		p.Seller = lower(p.Seller)
		p.PartIDs = sortedCopy(p.PartIDs)
		out.Payload = p
	case domain.BuyPayload:
		p.Buyer = lower(p.Buyer)
		p.Seller = lower(p.Seller)
		p.PartIDs = sortedCopy(p.PartIDs)
		p.Amount = optional(p.Amount)
		p.Currency = optional(p.Currency)
		p.ChainTx = optional(p.ChainTx)
		out.Payload = p
	case domain.GiftClaimPayload:
		p.Giver = lower(p.Giver)
		p.Receiver = lower(p.Receiver)
		p.PartIDs = sortedCopy(p.PartIDs)
		p.Amount = optional(p.Amount)
		p.Currency = optional(p.Currency)
		p.ChainTx = optional(p.ChainTx)
		out.Payload = p
	case domain.GiftRefusePayload:
		p.Giver = lower(p.Giver)
		p.Receiver = lower(p.Receiver)
		p.PartIDs = sortedCopy(p.PartIDs)
		out.Payload = p
	default:
		out.Payload = tx.Payload
	}
	return out
}

// Encode renders the canonical JSON object for an already-normalized tx.
func Encode(tx domain.Transaction) ([]byte, error) {
	fields, err := orderedFields(tx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// HashObject digests the canonical encoding of an already-normalized tx.
func HashObject(tx domain.Transaction) (string, error) {
	b, err := Encode(tx)
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(b).Hex(), nil
}

// Hash normalizes tx and digests it.
func Hash(tx domain.Transaction) (string, error) {
	return HashObject(Hashable(tx))
}

// Millis truncates t to millisecond precision in UTC.
func Millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

type field struct {
	name  string
	value any
}

func orderedFields(tx domain.Transaction) ([]field, error) {
	if tx.Payload == nil {
		return nil, fmt.Errorf("transaction %d: missing payload", tx.Number)
	}
	if tx.Payload.TxType() != tx.Type {
		return nil, fmt.Errorf("transaction %d: payload %s does not match type %s", tx.Number, tx.Payload.TxType(), tx.Type)
	}

	sig := field{"signature", tx.Signature}
	signer := field{"signer", tx.Signer}
	ts := field{"timestamp", tx.Timestamp.UnixMilli()}
	num := field{"transaction_number", tx.Number}
	typ := field{"type", string(tx.Type)}

	switch p := tx.Payload.(type) {
	case domain.MintPayload:
		return []field{
			{"amount", p.Amount},
			{"chain_tx", p.ChainTx},
			{"currency", p.Currency},
			{"item_id", p.ItemID},
			{"owner", p.Owner},
			{"part_count", int64(p.PartCount)},
			sig, signer, ts, num, typ,
		}, nil
	case domain.UploadPayload:
		return []field{
			{"content_hash", p.ContentHash},
			{"content_type", p.ContentType},
			{"item_id", p.ItemID},
			sig, signer, ts, num, typ,
		}, nil
	case domain.ListingCreatePayload:
		return []field{
			{"bundle", p.Bundle},
			{"item_id", p.ItemID},
			{"listing_id", p.ListingID},
			{"part_ids", partIDs(p.PartIDs)},
			{"seller", p.Seller},
			sig, signer, ts, num, typ,
			{"unit_price", p.UnitPrice},
		}, nil
	case domain.ListingCancelPayload:
		return []field{
			{"item_id", p.ItemID},
			{"listing_id", p.ListingID},
			{"part_ids", partIDs(p.PartIDs)},
			{"seller", p.Seller},
			sig, signer, ts, num, typ,
		}, nil
	case domain.BuyPayload:
		return []field{
			{"amount", p.Amount},
			{"buyer", p.Buyer},
			{"chain_tx", p.ChainTx},
			{"currency", p.Currency},
			{"item_id", p.ItemID},
			{"listing_id", p.ListingID},
			{"part_ids", partIDs(p.PartIDs)},
			{"reservation_id", p.ReservationID},
			{"seller", p.Seller},
			sig, signer, ts, num, typ,
			{"unit_price", p.UnitPrice},
		}, nil
	case domain.GiftClaimPayload:
		return []field{
			{"amount", p.Amount},
			{"chain_tx", p.ChainTx},
			{"currency", p.Currency},
			{"gift_id", p.GiftID},
			{"giver", p.Giver},
			{"item_id", p.ItemID},
			{"part_ids", partIDs(p.PartIDs)},
			{"quantity", int64(p.Quantity)},
			{"receiver", p.Receiver},
			sig, signer, ts, num, typ,
		}, nil
	case domain.GiftRefusePayload:
		return []field{
			{"gift_id", p.GiftID},
			{"giver", p.Giver},
			{"item_id", p.ItemID},
			{"part_ids", partIDs(p.PartIDs)},
			{"quantity", int64(p.Quantity)},
			{"receiver", p.Receiver},
			sig, signer, ts, num, typ,
		}, nil
	default:
		return nil, fmt.Errorf("transaction %d: unsupported payload %T", tx.Number, tx.Payload)
	}
}

// partIDs keeps an empty set encoded as [] rather than null.
func partIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func optional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func sortedCopy(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
