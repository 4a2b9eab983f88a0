package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/domain"
)

type GiftAPI interface {
	CreateGift(ctx context.Context, in app.CreateGiftInput) (domain.Gift, error)
	Claim(ctx context.Context, in app.ClaimGiftInput) (app.GiftResult, error)
	Refuse(ctx context.Context, in app.RefuseGiftInput) (app.GiftResult, error)
	GetGift(ctx context.Context, id string) (domain.Gift, error)
}

type createGiftRequest struct {
	Giver     string `json:"giver"`
	Receiver  string `json:"receiver"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	Signature string `json:"signature"`
}

type claimGiftRequest struct {
	Receiver  string `json:"receiver"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ChainTx   string `json:"chain_tx"`
	Signature string `json:"signature"`
}

type refuseGiftRequest struct {
	Receiver  string `json:"receiver"`
	Signature string `json:"signature"`
}

type giftResponse struct {
	ID        string    `json:"id"`
	Giver     string    `json:"giver"`
	Receiver  string    `json:"receiver"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	PartIDs   []string  `json:"part_ids"`
	Status    string    `json:"status"`
	TxNumber  *int64    `json:"transaction_number"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toGiftResponse(g domain.Gift) giftResponse {
	return giftResponse{
		ID:        g.ID,
		Giver:     g.Giver,
		Receiver:  g.Receiver,
		ItemID:    g.ItemID,
		Quantity:  g.Quantity,
		PartIDs:   g.PartIDs,
		Status:    string(g.Status),
		TxNumber:  g.TxNumber,
		CreatedAt: g.CreatedAt,
		ExpiresAt: g.ExpiresAt,
	}
}

type giftResultResponse struct {
	Gift        giftResponse       `json:"gift"`
	Transaction domain.Transaction `json:"transaction"`
}

func HandleCreateGift(svc GiftAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGiftRequest
		if !decodeBody(w, r, &req) {
			return
		}
		g, err := svc.CreateGift(r.Context(), app.CreateGiftInput{
			Giver:     req.Giver,
			Receiver:  req.Receiver,
			ItemID:    req.ItemID,
			Quantity:  req.Quantity,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toGiftResponse(g))
	}
}

func HandleClaimGift(svc GiftAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req claimGiftRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Claim(r.Context(), app.ClaimGiftInput{
			GiftID:    mux.Vars(r)["id"],
			Receiver:  req.Receiver,
			Amount:    req.Amount,
			Currency:  req.Currency,
			ChainTx:   req.ChainTx,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, giftResultResponse{Gift: toGiftResponse(res.Gift), Transaction: res.Transaction})
	}
}

func HandleRefuseGift(svc GiftAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refuseGiftRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Refuse(r.Context(), app.RefuseGiftInput{
			GiftID:    mux.Vars(r)["id"],
			Receiver:  req.Receiver,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, giftResultResponse{Gift: toGiftResponse(res.Gift), Transaction: res.Transaction})
	}
}

func HandleGetGift(svc GiftAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := svc.GetGift(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toGiftResponse(g))
	}
}
