package app

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/cimillas/partmarket/internal/clock"
	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/signer"
)

const MaxPartsPerItem = 10000

type ItemService struct {
	store    Store
	ledger   *Ledger
	verifier signer.Verifier
	clock    clock.Clock
}

func NewItemService(store Store, ledger *Ledger, verifier signer.Verifier, clk clock.Clock) *ItemService {
	return &ItemService{
		store:    store,
		ledger:   ledger,
		verifier: verifier,
		clock:    clk,
	}
}

type MintInput struct {
	Creator   string
	Name      string
	PartCount int
	Amount    string
	Currency  string
	ChainTx   string
	Signature string
}

func (in MintInput) Message() []byte {
	return signer.Message(string(domain.TxMint), map[string]string{
		"creator":    domain.NormalizeAddress(in.Creator),
		"name":       in.Name,
		"part_count": itoa(in.PartCount),
		"amount":     in.Amount,
		"currency":   in.Currency,
		"chain_tx":   in.ChainTx,
	})
}

type MintResult struct {
	Item        domain.Item
	Parts       []domain.Part
	Transaction domain.Transaction
}

// Mint creates an item and all of its parts, owned by the creator, and
// records MINT in the same transaction.
func (s *ItemService) Mint(ctx context.Context, in MintInput) (MintResult, error) {
	creator, err := domain.ParseAddress(in.Creator)
	if err != nil {
		return MintResult{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return MintResult{}, domain.ErrInvalidName
	}
	if in.PartCount <= 0 || in.PartCount > MaxPartsPerItem {
		return MintResult{}, domain.ErrInvalidPartCount
	}
	if err := checkSignature(s.verifier, creator, in.Message(), in.Signature); err != nil {
		return MintResult{}, err
	}

	now := s.clock.Now()
	item := domain.Item{
		ID:        newID(),
		Creator:   creator,
		Name:      in.Name,
		PartCount: in.PartCount,
		CreatedAt: now,
	}
	parts := make([]domain.Part, in.PartCount)
	for seq := range parts {
		parts[seq] = domain.Part{
			ID:     PartID(item.ID, seq),
			ItemID: item.ID,
			Seq:    seq,
			Owner:  creator,
		}
	}

	var result MintResult
	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateItem(txCtx, item); err != nil {
			return err
		}
		if err := s.store.CreateParts(txCtx, parts); err != nil {
			return err
		}
		rec, err := s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxMint,
			Timestamp: now,
			Signer:    creator,
			Signature: in.Signature,
			Payload: domain.MintPayload{
				ItemID:    item.ID,
				Owner:     creator,
				PartCount: in.PartCount,
				Amount:    domain.StringPtr(in.Amount),
				Currency:  domain.StringPtr(in.Currency),
				ChainTx:   domain.StringPtr(in.ChainTx),
			},
		})
		if err != nil {
			return err
		}
		result = MintResult{Item: item, Parts: parts, Transaction: rec}
		return nil
	})
	if err != nil {
		return MintResult{}, err
	}
	s.ledger.Committed()
	return result, nil
}

type UploadInput struct {
	ItemID      string
	Uploader    string
	ContentHash string
	ContentType string
	Signature   string
}

func (in UploadInput) Message() []byte {
	return signer.Message(string(domain.TxUpload), map[string]string{
		"item_id":      in.ItemID,
		"uploader":     domain.NormalizeAddress(in.Uploader),
		"content_hash": strings.ToLower(in.ContentHash),
		"content_type": in.ContentType,
	})
}

const defaultContentType = "application/octet-stream"

// RecordUpload ledgers the digest of content stored elsewhere for an item.
// Only the item creator may record uploads.
func (s *ItemService) RecordUpload(ctx context.Context, in UploadInput) (domain.Transaction, error) {
	itemID, err := parseID(in.ItemID)
	if err != nil {
		return domain.Transaction{}, err
	}
	uploader, err := domain.ParseAddress(in.Uploader)
	if err != nil {
		return domain.Transaction{}, err
	}
	if b, err := hexutil.Decode(in.ContentHash); err != nil || len(b) != 32 {
		return domain.Transaction{}, domain.ErrInvalidContent
	}
	if err := checkSignature(s.verifier, uploader, in.Message(), in.Signature); err != nil {
		return domain.Transaction{}, err
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	now := s.clock.Now()
	var result domain.Transaction
	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.store.GetItem(txCtx, itemID)
		if err != nil {
			return err
		}
		if item.Creator != uploader {
			return domain.ErrNotCreator
		}
		result, err = s.ledger.Append(txCtx, domain.Transaction{
			Type:      domain.TxUpload,
			Timestamp: now,
			Signer:    uploader,
			Signature: in.Signature,
			Payload: domain.UploadPayload{
				ItemID:      itemID,
				ContentHash: strings.ToLower(in.ContentHash),
				ContentType: contentType,
			},
		})
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.ledger.Committed()
	return result, nil
}

func (s *ItemService) GetItem(ctx context.Context, id string) (domain.Item, error) {
	itemID, err := parseID(id)
	if err != nil {
		return domain.Item{}, err
	}
	return s.store.GetItem(ctx, itemID)
}
