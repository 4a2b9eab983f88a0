package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/domain"
)

// ItemAPI is the item surface the handlers need.
type ItemAPI interface {
	Mint(ctx context.Context, in app.MintInput) (app.MintResult, error)
	RecordUpload(ctx context.Context, in app.UploadInput) (domain.Transaction, error)
	GetItem(ctx context.Context, id string) (domain.Item, error)
}

type mintRequest struct {
	Creator   string `json:"creator"`
	Name      string `json:"name"`
	PartCount int    `json:"part_count"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ChainTx   string `json:"chain_tx"`
	Signature string `json:"signature"`
}

type itemResponse struct {
	ID        string    `json:"id"`
	Creator   string    `json:"creator"`
	Name      string    `json:"name"`
	PartCount int       `json:"part_count"`
	CreatedAt time.Time `json:"created_at"`
}

func toItemResponse(it domain.Item) itemResponse {
	return itemResponse{ID: it.ID, Creator: it.Creator, Name: it.Name, PartCount: it.PartCount, CreatedAt: it.CreatedAt}
}

type mintResponse struct {
	Item        itemResponse       `json:"item"`
	PartIDs     []string           `json:"part_ids"`
	Transaction domain.Transaction `json:"transaction"`
}

// HandleMint creates an item and its parts.
func HandleMint(svc ItemAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Mint(r.Context(), app.MintInput{
			Creator:   req.Creator,
			Name:      req.Name,
			PartCount: req.PartCount,
			Amount:    req.Amount,
			Currency:  req.Currency,
			ChainTx:   req.ChainTx,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ids := make([]string, len(res.Parts))
		for i, p := range res.Parts {
			ids[i] = p.ID
		}
		writeJSON(w, http.StatusCreated, mintResponse{
			Item:        toItemResponse(res.Item),
			PartIDs:     ids,
			Transaction: res.Transaction,
		})
	}
}

type uploadRequest struct {
	Uploader    string `json:"uploader"`
	ContentHash string `json:"content_hash"`
	ContentType string `json:"content_type"`
	Signature   string `json:"signature"`
}

func HandleRecordUpload(svc ItemAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req uploadRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tx, err := svc.RecordUpload(r.Context(), app.UploadInput{
			ItemID:      mux.Vars(r)["id"],
			Uploader:    req.Uploader,
			ContentHash: req.ContentHash,
			ContentType: req.ContentType,
			Signature:   req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func HandleGetItem(svc ItemAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.GetItem(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toItemResponse(item))
	}
}
