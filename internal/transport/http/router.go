package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Services bundles what the router dispatches to.
type Services struct {
	Items        ItemAPI
	Parts        PartLister
	Listings     ListingAPI
	Reservations ReservationAPI
	Gifts        GiftAPI
	Ledger       LedgerReader
	Health       HaltReporter
}

func NewRouter(svc Services) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()

	r.Handle("/health", HealthHandler(svc.Health)).Methods(http.MethodGet)

	r.Handle("/items", HandleMint(svc.Items)).Methods(http.MethodPost)
	r.Handle("/items/{id}", HandleGetItem(svc.Items)).Methods(http.MethodGet)
	r.Handle("/items/{id}/uploads", HandleRecordUpload(svc.Items)).Methods(http.MethodPost)

	r.Handle("/parts", HandleListParts(svc.Parts)).Methods(http.MethodGet)

	r.Handle("/listings", HandleCreateListing(svc.Listings)).Methods(http.MethodPost)
	r.Handle("/listings/{id}", HandleGetListing(svc.Listings)).Methods(http.MethodGet)
	r.Handle("/listings/{id}/cancel", HandleCancelListing(svc.Listings)).Methods(http.MethodPost)
	r.Handle("/listings/{id}/reservations", HandleReserve(svc.Reservations)).Methods(http.MethodPost)

	r.Handle("/reservations/{id}", HandleGetReservation(svc.Reservations)).Methods(http.MethodGet)
	r.Handle("/reservations/{id}/consume", HandleConsume(svc.Reservations)).Methods(http.MethodPost)
	r.Handle("/reservations/{id}/cancel", HandleCancelReservation(svc.Reservations)).Methods(http.MethodPost)

	r.Handle("/gifts", HandleCreateGift(svc.Gifts)).Methods(http.MethodPost)
	r.Handle("/gifts/{id}", HandleGetGift(svc.Gifts)).Methods(http.MethodGet)
	r.Handle("/gifts/{id}/claim", HandleClaimGift(svc.Gifts)).Methods(http.MethodPost)
	r.Handle("/gifts/{id}/refuse", HandleRefuseGift(svc.Gifts)).Methods(http.MethodPost)

	r.Handle("/ledger", HandleLedgerRange(svc.Ledger)).Methods(http.MethodGet)
	r.Handle("/ledger/{number:[0-9]+}", HandleLedgerGet(svc.Ledger)).Methods(http.MethodGet)

	return r
}
