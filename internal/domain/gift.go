package domain

import "time"

type GiftStatus string

const (
	GiftStatusPending GiftStatus = "pending"
	GiftStatusClaimed GiftStatus = "claimed"
	GiftStatusRefused GiftStatus = "refused"
	GiftStatusExpired GiftStatus = "expired"
)

// Gift offers Quantity parts of an item from Giver to Receiver. PartIDs are
// pinned to the gift while it is pending.
type Gift struct {
	ID        string
	Giver     string
	Receiver  string
	ItemID    string
	Quantity  int
	PartIDs   []string
	Status    GiftStatus
	TxNumber  *int64
	Version   int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (g Gift) Overdue(now time.Time) bool {
	return g.Status == GiftStatusPending && !now.Before(g.ExpiresAt)
}
