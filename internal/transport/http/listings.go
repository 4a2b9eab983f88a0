package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/domain"
)

type ListingAPI interface {
	CreateListing(ctx context.Context, in app.CreateListingInput) (app.ListingResult, error)
	CancelListing(ctx context.Context, in app.CancelListingInput) (app.ListingResult, error)
	GetListing(ctx context.Context, id string) (domain.Listing, error)
}

type createListingRequest struct {
	Seller    string   `json:"seller"`
	ItemID    string   `json:"item_id"`
	PartIDs   []string `json:"part_ids"`
	UnitPrice string   `json:"unit_price"`
	Bundle    bool     `json:"bundle"`
	Signature string   `json:"signature"`
}

type cancelListingRequest struct {
	Seller    string `json:"seller"`
	Signature string `json:"signature"`
}

type listingResponse struct {
	ID         string    `json:"id"`
	Seller     string    `json:"seller"`
	ItemID     string    `json:"item_id"`
	UnitPrice  string    `json:"unit_price"`
	Bundle     bool      `json:"bundle"`
	PartIDs    []string  `json:"part_ids"`
	Status     string    `json:"status"`
	TerminalTx *int64    `json:"terminal_tx"`
	CreatedAt  time.Time `json:"created_at"`
}

func toListingResponse(l domain.Listing) listingResponse {
	ids := l.PartIDs
	if ids == nil {
		ids = []string{}
	}
	return listingResponse{
		ID:         l.ID,
		Seller:     l.Seller,
		ItemID:     l.ItemID,
		UnitPrice:  l.UnitPrice,
		Bundle:     l.Bundle,
		PartIDs:    ids,
		Status:     string(l.Status),
		TerminalTx: l.TerminalTx,
		CreatedAt:  l.CreatedAt,
	}
}

type listingResultResponse struct {
	Listing     listingResponse    `json:"listing"`
	Transaction domain.Transaction `json:"transaction"`
}

func HandleCreateListing(svc ListingAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createListingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.CreateListing(r.Context(), app.CreateListingInput{
			Seller:    req.Seller,
			ItemID:    req.ItemID,
			PartIDs:   req.PartIDs,
			UnitPrice: req.UnitPrice,
			Bundle:    req.Bundle,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, listingResultResponse{
			Listing:     toListingResponse(res.Listing),
			Transaction: res.Transaction,
		})
	}
}

func HandleCancelListing(svc ListingAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelListingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.CancelListing(r.Context(), app.CancelListingInput{
			ListingID: mux.Vars(r)["id"],
			Seller:    req.Seller,
			Signature: req.Signature,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listingResultResponse{
			Listing:     toListingResponse(res.Listing),
			Transaction: res.Transaction,
		})
	}
}

func HandleGetListing(svc ListingAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := svc.GetListing(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(l))
	}
}
