package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConsumed  ReservationStatus = "consumed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation holds listed parts for one buyer until ExpiresAt.
type Reservation struct {
	ID        string
	ListingID string
	Buyer     string
	PartIDs   []string
	Status    ReservationStatus
	TxNumber  *int64
	Version   int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Overdue reports whether a pending reservation has outlived its TTL at now.
func (r Reservation) Overdue(now time.Time) bool {
	return r.Status == ReservationStatusPending && !now.Before(r.ExpiresAt)
}
