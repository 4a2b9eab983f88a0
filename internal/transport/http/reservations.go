package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/domain"
)

type ReservationAPI interface {
	Reserve(ctx context.Context, in app.ReserveInput) (domain.Reservation, error)
	Consume(ctx context.Context, in app.ConsumeInput) (app.PurchaseResult, error)
	CancelReservation(ctx context.Context, in app.CancelReservationInput) (domain.Reservation, error)
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
}

type reserveRequest struct {
	Buyer     string `json:"buyer"`
	Quantity  int    `json:"quantity"`
	Signature string `json:"signature"`
}

type consumeRequest struct {
	Buyer     string `json:"buyer"`
	Currency  string `json:"currency"`
	ChainTx   string `json:"chain_tx"`
	Signature string `json:"signature"`
}

type cancelReservationRequest struct {
	Buyer     string `json:"buyer"`
	Signature string `json:"signature"`
}

type reservationResponse struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Buyer     string    `json:"buyer"`
	PartIDs   []string  `json:"part_ids"`
	Status    string    `json:"status"`
	TxNumber  *int64    `json:"transaction_number"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toReservationResponse(res domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:        res.ID,
		ListingID: res.ListingID,
		Buyer:     res.Buyer,
		PartIDs:   res.PartIDs,
		Status:    string(res.Status),
		TxNumber:  res.TxNumber,
		CreatedAt: res.CreatedAt,
		ExpiresAt: res.ExpiresAt,
	}
}

type purchaseResponse struct {
	Reservation reservationResponse `json:"reservation"`
	Listing     listingResponse     `json:"listing"`
	Transaction domain.Transaction  `json:"transaction"`
}

func HandleReserve(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reserveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Reserve(r.Context(), app.ReserveInput{
			ListingID: mux.Vars(r)["id"],
			Buyer:     req.Buyer,
			Quantity:  req.Quantity,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func HandleConsume(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req consumeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Consume(r.Context(), app.ConsumeInput{
			ReservationID: mux.Vars(r)["id"],
			Buyer:         req.Buyer,
			Currency:      req.Currency,
			ChainTx:       req.ChainTx,
			Signature:     req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, purchaseResponse{
			Reservation: toReservationResponse(res.Reservation),
			Listing:     toListingResponse(res.Listing),
			Transaction: res.Transaction,
		})
	}
}

func HandleCancelReservation(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelReservationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.CancelReservation(r.Context(), app.CancelReservationInput{
			ReservationID: mux.Vars(r)["id"],
			Buyer:         req.Buyer,
			Signature:     req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func HandleGetReservation(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetReservation(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}
