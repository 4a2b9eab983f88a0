package http

import (
	"context"
	"net/http"

	"github.com/cimillas/partmarket/internal/domain"
)

// PartLister serves the paginated part query.
type PartLister interface {
	ListParts(ctx context.Context, filter domain.PartFilter) ([]domain.Part, error)
}

type partResponse struct {
	ID            string  `json:"id"`
	ItemID        string  `json:"item_id"`
	Seq           int     `json:"seq"`
	Owner         string  `json:"owner"`
	ListingID     *string `json:"listing_id"`
	ReservationID *string `json:"reservation_id,omitempty"`
	GiftID        *string `json:"gift_id,omitempty"`
}

type partsResponse struct {
	Parts []partResponse `json:"parts"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// HandleListParts serves GET /parts?owner=&item=&listing=&skip=&limit=.
func HandleListParts(svc PartLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		skip, ok1 := queryInt(r, "skip", 0)
		limit, ok2 := queryInt(r, "limit", domain.DefaultPageLimit)
		if !ok1 || !ok2 {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "skip and limit must be integers")
			return
		}
		filter := domain.PartFilter{
			Owner:     q.Get("owner"),
			ItemID:    q.Get("item"),
			ListingID: q.Get("listing"),
			Skip:      int(skip),
			Limit:     int(limit),
		}
		parts, err := svc.ListParts(r.Context(), filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]partResponse, len(parts))
		for i, p := range parts {
			out[i] = partResponse{
				ID:            p.ID,
				ItemID:        p.ItemID,
				Seq:           p.Seq,
				Owner:         p.Owner,
				ListingID:     p.ListingID,
				ReservationID: p.ReservationID,
				GiftID:        p.GiftID,
			}
		}
		s, l := filter.Page()
		writeJSON(w, http.StatusOK, partsResponse{Parts: out, Skip: s, Limit: l})
	}
}
