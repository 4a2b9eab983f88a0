package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type TxType string

const (
	TxMint          TxType = "MINT"
	TxUpload        TxType = "UPLOAD"
	TxListingCreate TxType = "LISTING_CREATE"
	TxListingCancel TxType = "LISTING_CANCEL"
	TxNFTBuy        TxType = "NFT_BUY"
	TxGiftClaim     TxType = "GIFT_CLAIM"
	TxGiftRefuse    TxType = "GIFT_REFUSE"
)

// Transaction is one ledger record. ID and AnchorReceipt are assigned by
// storage and the anchor worker; neither is part of the canonical hash.
type Transaction struct {
	ID            string    `json:"id,omitempty"`
	Number        int64     `json:"transaction_number"`
	Type          TxType    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Signer        string    `json:"signer"`
	Signature     string    `json:"signature"`
	Payload       Payload   `json:"payload"`
	Hash          string    `json:"hash,omitempty"`
	AnchorReceipt *string   `json:"anchor_receipt,omitempty"`
}

// Payload is the type-specific part of a transaction. The concrete type
// always matches Transaction.Type.
type Payload interface {
	TxType() TxType
}

type MintPayload struct {
	ItemID    string  `json:"item_id"`
	Owner     string  `json:"owner"`
	PartCount int     `json:"part_count"`
	Amount    *string `json:"amount"`
	Currency  *string `json:"currency"`
	ChainTx   *string `json:"chain_tx"`
}

type UploadPayload struct {
	ItemID      string `json:"item_id"`
	ContentHash string `json:"content_hash"`
	ContentType string `json:"content_type"`
}

type ListingCreatePayload struct {
	ListingID string   `json:"listing_id"`
	ItemID    string   `json:"item_id"`
	Seller    string   `json:"seller"`
	PartIDs   []string `json:"part_ids"`
	UnitPrice string   `json:"unit_price"`
	Bundle    bool     `json:"bundle"`
}

type ListingCancelPayload struct {
	ListingID string   `json:"listing_id"`
	ItemID    string   `json:"item_id"`
	Seller    string   `json:"seller"`
	PartIDs   []string `json:"part_ids"`
}

type BuyPayload struct {
	ListingID     string   `json:"listing_id"`
	ReservationID string   `json:"reservation_id"`
	ItemID        string   `json:"item_id"`
	Buyer         string   `json:"buyer"`
	Seller        string   `json:"seller"`
	PartIDs       []string `json:"part_ids"`
	UnitPrice     string   `json:"unit_price"`
	Amount        *string  `json:"amount"`
	Currency      *string  `json:"currency"`
	ChainTx       *string  `json:"chain_tx"`
}

type GiftClaimPayload struct {
	GiftID   string   `json:"gift_id"`
	ItemID   string   `json:"item_id"`
	Giver    string   `json:"giver"`
	Receiver string   `json:"receiver"`
	PartIDs  []string `json:"part_ids"`
	Quantity int      `json:"quantity"`
	Amount   *string  `json:"amount"`
	Currency *string  `json:"currency"`
	ChainTx  *string  `json:"chain_tx"`
}

type GiftRefusePayload struct {
	GiftID   string   `json:"gift_id"`
	ItemID   string   `json:"item_id"`
	Giver    string   `json:"giver"`
	Receiver string   `json:"receiver"`
	PartIDs  []string `json:"part_ids"`
	Quantity int      `json:"quantity"`
}

func (MintPayload) TxType() TxType          { return TxMint }
func (UploadPayload) TxType() TxType        { return TxUpload }
func (ListingCreatePayload) TxType() TxType { return TxListingCreate }
func (ListingCancelPayload) TxType() TxType { return TxListingCancel }
func (BuyPayload) TxType() TxType           { return TxNFTBuy }
func (GiftClaimPayload) TxType() TxType     { return TxGiftClaim }
func (GiftRefusePayload) TxType() TxType    { return TxGiftRefuse }

// DecodePayload decodes raw JSON into the payload type registered for t.
func DecodePayload(t TxType, raw []byte) (Payload, error) {
	switch t {
	case TxMint:
		return decodeAs[MintPayload](raw)
	case TxUpload:
		return decodeAs[UploadPayload](raw)
	case TxListingCreate:
		return decodeAs[ListingCreatePayload](raw)
	case TxListingCancel:
		return decodeAs[ListingCancelPayload](raw)
	case TxNFTBuy:
		return decodeAs[BuyPayload](raw)
	case TxGiftClaim:
		return decodeAs[GiftClaimPayload](raw)
	case TxGiftRefuse:
		return decodeAs[GiftRefusePayload](raw)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", t)
	}
}

func decodeAs[P Payload](raw []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.TxType(), err)
	}
	return p, nil
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var aux struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Transaction(aux.plain)
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		t.Payload = nil
		return nil
	}
	p, err := DecodePayload(t.Type, aux.Payload)
	if err != nil {
		return err
	}
	t.Payload = p
	return nil
}

// StringPtr returns nil for "" and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
